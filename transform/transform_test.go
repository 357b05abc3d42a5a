package transform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
)

const tol = 1e-9

// sameRotation treats q and -q as equal.
func sameRotation(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, 4)
	dot := 0.0
	for i := range want {
		dot += want[i] * got[i]
	}
	assert.InDelta(t, 1, math.Abs(dot), tol, "want %v got %v", want, got)
}

func TestQuaternionPassthrough(t *testing.T) {
	in := []float64{0.5, 0, 0.17, 0, 1, 0, 0}

	p, err := ToQuaternionPose(in, Quaternion, "")
	require.NoError(t, err)
	assert.InDeltaSlice(t, in, p[:], tol)
}

func TestQuaternionIsNormalized(t *testing.T) {
	p, err := ToQuaternionPose([]float64{1, 2, 3, 0, 0, 0, 2}, Quaternion, "")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2, 3, 0, 0, 0, 1}, p[:], tol)
}

func TestReadyRotation6D(t *testing.T) {
	p, err := ToQuaternionPose([]float64{0.5, 0, 0.17, -1, 0, 0, 0, 1, 0}, Rotation6D, "")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0, 0.17}, p[:3], tol)
	sameRotation(t, []float64{0, 1, 0, 0}, p[3:])

	back, err := Convert(p[:], Quaternion, Rotation6D, "", "")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0, 0.17, -1, 0, 0, 0, 1, 0}, back, tol)
}

func TestEulerRoundTrip(t *testing.T) {
	angles := []float64{0.3, -0.7, 1.9}
	for _, conv := range []string{"XYZ", "ZYX", "ZYZ", "XZX", "xyz", "zyx", "zxz", "YXZ"} {
		t.Run(conv, func(t *testing.T) {
			a := angles
			if conv[0] == conv[2] {
				// proper euler sequences keep the middle angle in [0, pi]
				a = []float64{0.3, 0.7, 1.9}
			}
			pose := append([]float64{0, 0, 0}, a...)
			q, err := Convert(pose, EulerAngles, Quaternion, conv, "")
			require.NoError(t, err)
			back, err := Convert(q, Quaternion, EulerAngles, "", conv)
			require.NoError(t, err)
			assert.InDeltaSlice(t, pose, back, 1e-7)
		})
	}
}

func TestEulerConventions(t *testing.T) {
	// A single rotation of pi about x is the same in every convention.
	for _, conv := range []string{"XYZ", "xyz"} {
		p, err := ToQuaternionPose([]float64{0, 0, 0, math.Pi, 0, 0}, EulerAngles, conv)
		require.NoError(t, err)
		sameRotation(t, []float64{1, 0, 0, 0}, p[3:])
	}

	// Intrinsic XYZ equals extrinsic zyx with the angles reversed.
	intr, err := ToQuaternionPose([]float64{0, 0, 0, 0.1, 0.2, 0.3}, EulerAngles, "XYZ")
	require.NoError(t, err)
	extr, err := ToQuaternionPose([]float64{0, 0, 0, 0.3, 0.2, 0.1}, EulerAngles, "zyx")
	require.NoError(t, err)
	sameRotation(t, intr[3:], extr[3:])
	sameRotation(t, []float64{0.06407134770607116, 0.09115754934299071, 0.15343930202422257, 0.9818561728660808}, intr[3:])
}

func TestMatrixRoundTrip(t *testing.T) {
	m := []float64{-1, 0, 0, 0, 1, 0, 0, 0, -1}
	p, err := ToQuaternionPose(append([]float64{0, 0, 0}, m...), Matrix, "")
	require.NoError(t, err)
	sameRotation(t, []float64{0, 1, 0, 0}, p[3:])

	back, err := Convert(p[:], Quaternion, Matrix, "", "")
	require.NoError(t, err)
	assert.InDeltaSlice(t, append([]float64{0, 0, 0}, m...), back, tol)
}

func TestAxisAngle(t *testing.T) {
	p, err := ToQuaternionPose([]float64{0, 0, 0, 0, 0, math.Pi / 2}, AxisAngle, "")
	require.NoError(t, err)
	s := math.Sqrt2 / 2
	sameRotation(t, []float64{0, 0, s, s}, p[3:])

	back, err := Convert(p[:], Quaternion, AxisAngle, "", "")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0, 0, 0, 0, math.Pi / 2}, back, 1e-7)
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		rep        Representation
		convention string
		rot        []float64
	}{
		{Quaternion, "", []float64{0, 0, 0, 1}},
		{EulerAngles, "XYZ", []float64{0, 0, 0}},
		{EulerAngles, "zyx", []float64{0, 0, 0}},
		{Matrix, "", []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}},
		{AxisAngle, "", []float64{0, 0, 0}},
		{Rotation6D, "", []float64{1, 0, 0, 0, 1, 0}},
		{OrientationVector, "", []float64{0, 0, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(string(tt.rep)+tt.convention, func(t *testing.T) {
			pose := append([]float64{0.4, 0, 0.3}, tt.rot...)
			p, err := ToQuaternionPose(pose, tt.rep, tt.convention)
			require.NoError(t, err)
			assert.InDeltaSlice(t, []float64{0.4, 0, 0.3, 0, 0, 0, 1}, p[:], tol)

			back, err := Convert(p[:], Quaternion, tt.rep, "", tt.convention)
			require.NoError(t, err)
			assert.InDeltaSlice(t, pose, back, tol)
		})
	}
}

func TestHalfTurns(t *testing.T) {
	tests := []struct {
		name string
		want []float64
		rep  Representation
		rot  []float64
	}{
		{"matrix x", []float64{1, 0, 0, 0}, Matrix, []float64{1, 0, 0, 0, -1, 0, 0, 0, -1}},
		{"matrix y", []float64{0, 1, 0, 0}, Matrix, []float64{-1, 0, 0, 0, 1, 0, 0, 0, -1}},
		{"matrix z", []float64{0, 0, 1, 0}, Matrix, []float64{-1, 0, 0, 0, -1, 0, 0, 0, 1}},
		{"6d x", []float64{1, 0, 0, 0}, Rotation6D, []float64{1, 0, 0, 0, -1, 0}},
		{"6d z", []float64{0, 0, 1, 0}, Rotation6D, []float64{-1, 0, 0, 0, -1, 0}},
		{"axis angle y", []float64{0, 1, 0, 0}, AxisAngle, []float64{0, math.Pi, 0}},
		{"euler xyz", []float64{0, 0, 1, 0}, EulerAngles, []float64{0, 0, math.Pi}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ToQuaternionPose(append([]float64{0, 0, 0}, tt.rot...), tt.rep, "xyz")
			require.NoError(t, err)
			sameRotation(t, tt.want, p[3:])

			// the reverse conversion lands on the same rotation
			back, err := Convert(p[:], Quaternion, tt.rep, "", "xyz")
			require.NoError(t, err)
			q, err := ToQuaternionPose(back, tt.rep, "xyz")
			require.NoError(t, err)
			sameRotation(t, tt.want, q[3:])
		})
	}
}

func TestOrientationVector(t *testing.T) {
	// Tool pointing straight down.
	p, err := ToQuaternionPose([]float64{0, 0, 0, 0, 0, -1, 0}, OrientationVector, "")
	require.NoError(t, err)
	m := rotationMatrix(quat.Number{Real: p[6], Imag: p[3], Jmag: p[4], Kmag: p[5]})
	// the rotated z axis is the third column
	assert.InDeltaSlice(t, []float64{0, 0, -1}, []float64{m[0][2], m[1][2], m[2][2]}, 1e-7)
}

func TestErrors(t *testing.T) {
	_, err := ToQuaternionPose([]float64{0, 0, 0, 1, 2, 3}, Representation("rodrigues"), "")
	assert.ErrorIs(t, err, ErrUnknownRepresentation)

	_, err = ToQuaternionPose([]float64{0, 0, 0, 1, 2}, EulerAngles, "XYZ")
	assert.Error(t, err)

	_, err = ToQuaternionPose([]float64{0, 0, 0, 1, 2, 3}, EulerAngles, "XXY")
	assert.Error(t, err)

	_, err = ToQuaternionPose([]float64{0, 0, 0, 1, 2, 3}, EulerAngles, "XyZ")
	assert.Error(t, err)

	_, err = ToQuaternionPose([]float64{0, 0, 0, 0, 0, 0, 0}, Quaternion, "")
	assert.ErrorIs(t, err, errDegenerate)

	_, err = ToQuaternionPose([]float64{0, 0, 0, 1, 0, 0, 2, 0, 0}, Rotation6D, "")
	assert.ErrorIs(t, err, errDegenerate)

	_, err = ParseRepresentation("Euler_Angles")
	assert.NoError(t, err)
	_, err = ParseRepresentation("nope")
	assert.ErrorIs(t, err, ErrUnknownRepresentation)
}
