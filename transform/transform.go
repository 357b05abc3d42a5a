// Package transform converts poses between rotation representations.
//
// A pose is a flat slice: three position values followed by the rotation in
// the chosen representation. Quaternions are written [qx, qy, qz, qw].
package transform

import (
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/num/quat"

	"evalagent/device"
)

// Representation names a rotation encoding.
type Representation string

const (
	Quaternion        Representation = "quaternion"
	EulerAngles       Representation = "euler_angles"
	Matrix            Representation = "matrix"
	AxisAngle         Representation = "axis_angle"
	Rotation6D        Representation = "rotation_6d"
	OrientationVector Representation = "orientation_vector"
)

// DefaultEulerConvention is used when an euler_angles pose has no convention.
const DefaultEulerConvention = "XYZ"

var (
	// ErrUnknownRepresentation is returned for representation names this package does not know.
	ErrUnknownRepresentation = errors.New("unknown rotation representation")
	errDegenerate            = errors.New("degenerate rotation")
)

func (r Representation) String() string { return string(r) }

// Size returns the number of values the representation occupies.
func (r Representation) Size() (int, error) {
	switch r {
	case Quaternion, OrientationVector:
		return 4, nil
	case EulerAngles, AxisAngle:
		return 3, nil
	case Matrix:
		return 9, nil
	case Rotation6D:
		return 6, nil
	default:
		return 0, errors.Wrapf(ErrUnknownRepresentation, "%q", string(r))
	}
}

// Convert rewrites the rotation part of pose from one representation to another.
// Conventions only matter for euler_angles and may be empty otherwise.
func Convert(pose []float64, from, to Representation, fromConvention, toConvention string) ([]float64, error) {
	n, err := from.Size()
	if err != nil {
		return nil, err
	}
	if len(pose) != 3+n {
		return nil, errors.Errorf("%s pose needs %d values, got %d", from, 3+n, len(pose))
	}

	q, err := ToQuaternion(pose[3:], from, fromConvention)
	if err != nil {
		return nil, err
	}
	rot, err := FromQuaternion(q, to, toConvention)
	if err != nil {
		return nil, err
	}

	out := make([]float64, 0, 3+len(rot))
	out = append(out, pose[:3]...)
	return append(out, rot...), nil
}

// ToQuaternionPose converts pose into the 7-value form the robot accepts.
func ToQuaternionPose(pose []float64, from Representation, convention string) (device.Pose, error) {
	out, err := Convert(pose, from, Quaternion, convention, "")
	if err != nil {
		return device.Pose{}, err
	}
	var p device.Pose
	copy(p[:], out)
	return p, nil
}

// ToQuaternion decodes a rotation into a unit quaternion.
func ToQuaternion(rot []float64, rep Representation, convention string) (quat.Number, error) {
	n, err := rep.Size()
	if err != nil {
		return quat.Number{}, err
	}
	if len(rot) != n {
		return quat.Number{}, errors.Errorf("%s rotation needs %d values, got %d", rep, n, len(rot))
	}

	switch rep {
	case Quaternion:
		return normalize(quat.Number{Real: rot[3], Imag: rot[0], Jmag: rot[1], Kmag: rot[2]})
	case EulerAngles:
		return eulerToQuat(rot, convention)
	case Matrix:
		rm, err := spatialmath.NewRotationMatrix(rot)
		if err != nil {
			return quat.Number{}, err
		}
		return normalize(rm.Quaternion())
	case AxisAngle:
		v := r3.Vector{X: rot[0], Y: rot[1], Z: rot[2]}
		if v.Norm() < 1e-12 {
			return quat.Number{Real: 1}, nil
		}
		return normalize(spatialmath.R3ToR4(v).Quaternion())
	case Rotation6D:
		rm, err := sixDToMatrix(rot)
		if err != nil {
			return quat.Number{}, err
		}
		return normalize(rm.Quaternion())
	default:
		ov := &spatialmath.OrientationVector{OX: rot[0], OY: rot[1], OZ: rot[2], Theta: rot[3]}
		if (r3.Vector{X: ov.OX, Y: ov.OY, Z: ov.OZ}).Norm() < 1e-12 {
			return quat.Number{}, errors.Wrap(errDegenerate, "zero orientation vector")
		}
		return normalize(ov.Quaternion())
	}
}

// FromQuaternion encodes a unit quaternion in rep.
func FromQuaternion(q quat.Number, rep Representation, convention string) ([]float64, error) {
	q, err := normalize(q)
	if err != nil {
		return nil, err
	}

	switch rep {
	case Quaternion:
		return []float64{q.Imag, q.Jmag, q.Kmag, q.Real}, nil
	case EulerAngles:
		axes, intrinsic, err := parseConvention(convention)
		if err != nil {
			return nil, err
		}
		a := matrixToEuler(rotationMatrix(q), axes, intrinsic)
		return a[:], nil
	case Matrix:
		m := rotationMatrix(q)
		out := make([]float64, 0, 9)
		for _, row := range m {
			out = append(out, row[:]...)
		}
		return out, nil
	case AxisAngle:
		sq := spatialmath.Quaternion(q)
		v := sq.AxisAngles().ToR3()
		return []float64{v.X, v.Y, v.Z}, nil
	case Rotation6D:
		rm := spatialmath.QuatToRotationMatrix(q)
		r0, r1 := rm.Row(0), rm.Row(1)
		return []float64{r0.X, r0.Y, r0.Z, r1.X, r1.Y, r1.Z}, nil
	case OrientationVector:
		sq := spatialmath.Quaternion(q)
		ov := sq.OrientationVectorRadians()
		return []float64{ov.OX, ov.OY, ov.OZ, ov.Theta}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownRepresentation, "%q", string(rep))
	}
}

func normalize(q quat.Number) (quat.Number, error) {
	n := quat.Abs(q)
	if n < 1e-12 || math.IsNaN(n) || math.IsInf(n, 0) {
		return quat.Number{}, errors.Wrap(errDegenerate, "quaternion has no usable norm")
	}
	return quat.Scale(1/n, q), nil
}

// parseConvention reads an euler axis sequence such as "XYZ" (intrinsic) or
// "zyx" (extrinsic). Adjacent axes must differ.
func parseConvention(convention string) ([3]int, bool, error) {
	if convention == "" {
		convention = DefaultEulerConvention
	}
	var axes [3]int
	if len(convention) != 3 {
		return axes, false, errors.Errorf("euler convention %q must name three axes", convention)
	}
	upper := strings.ToUpper(convention)
	lower := strings.ToLower(convention)
	if convention != upper && convention != lower {
		return axes, false, errors.Errorf("euler convention %q mixes intrinsic and extrinsic axes", convention)
	}
	for i, c := range upper {
		idx := strings.IndexRune("XYZ", c)
		if idx < 0 {
			return axes, false, errors.Errorf("euler convention %q: bad axis %q", convention, c)
		}
		axes[i] = idx
	}
	if axes[0] == axes[1] || axes[1] == axes[2] {
		return axes, false, errors.Errorf("euler convention %q repeats an axis", convention)
	}
	return axes, convention == upper, nil
}

func axisQuat(axis int, angle float64) quat.Number {
	s, c := math.Sincos(angle / 2)
	q := quat.Number{Real: c}
	switch axis {
	case 0:
		q.Imag = s
	case 1:
		q.Jmag = s
	default:
		q.Kmag = s
	}
	return q
}

func eulerToQuat(angles []float64, convention string) (quat.Number, error) {
	axes, intrinsic, err := parseConvention(convention)
	if err != nil {
		return quat.Number{}, err
	}
	q := quat.Number{Real: 1}
	for i, axis := range axes {
		step := axisQuat(axis, angles[i])
		if intrinsic {
			q = quat.Mul(q, step)
		} else {
			q = quat.Mul(step, q)
		}
	}
	return normalize(q)
}

func sixDToMatrix(d []float64) (*spatialmath.RotationMatrix, error) {
	a1 := r3.Vector{X: d[0], Y: d[1], Z: d[2]}
	a2 := r3.Vector{X: d[3], Y: d[4], Z: d[5]}
	if a1.Norm() < 1e-12 {
		return nil, errors.Wrap(errDegenerate, "6D rotation has a zero first row")
	}
	b1 := a1.Normalize()
	b2 := a2.Sub(b1.Mul(b1.Dot(a2)))
	if b2.Norm() < 1e-12 {
		return nil, errors.Wrap(errDegenerate, "6D rotation rows are parallel")
	}
	b2 = b2.Normalize()
	b3 := b1.Cross(b2)
	return spatialmath.NewRotationMatrix([]float64{
		b1.X, b1.Y, b1.Z,
		b2.X, b2.Y, b2.Z,
		b3.X, b3.Y, b3.Z,
	})
}

// ParseRepresentation accepts a representation name as written in configs and commands.
func ParseRepresentation(s string) (Representation, error) {
	r := Representation(strings.ToLower(strings.TrimSpace(s)))
	if _, err := r.Size(); err != nil {
		return "", fmt.Errorf("parse representation: %w", err)
	}
	return r, nil
}
