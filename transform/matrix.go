package transform

import (
	"math"

	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/num/quat"
)

// mat3 is a row-major rotation matrix.
type mat3 [3][3]float64

// rotationMatrix reads q back as a row-major matrix.
func rotationMatrix(q quat.Number) mat3 {
	rm := spatialmath.QuatToRotationMatrix(q)
	var m mat3
	for i := range 3 {
		r := rm.Row(i)
		m[i] = [3]float64{r.X, r.Y, r.Z}
	}
	return m
}

// matrixToEuler recovers angles for the given axis sequence. Extrinsic
// sequences are solved as the reversed intrinsic sequence.
func matrixToEuler(m mat3, axes [3]int, intrinsic bool) [3]float64 {
	if !intrinsic {
		a := intrinsicEuler(m, [3]int{axes[2], axes[1], axes[0]})
		return [3]float64{a[2], a[1], a[0]}
	}
	return intrinsicEuler(m, axes)
}

func intrinsicEuler(m mat3, axes [3]int) [3]float64 {
	i0, i2 := axes[0], axes[2]
	taitBryan := i0 != i2

	var central float64
	if taitBryan {
		sign := 1.0
		if d := i0 - i2; d == -1 || d == 2 {
			sign = -1
		}
		central = math.Asin(clamp(sign*m[i0][i2], -1, 1))
	} else {
		central = math.Acos(clamp(m[i0][i0], -1, 1))
	}

	col := [3]float64{m[0][i2], m[1][i2], m[2][i2]}
	first := angleFromTan(axes[0], axes[1], col, false, taitBryan)
	third := angleFromTan(axes[2], axes[1], m[i0], true, taitBryan)
	return [3]float64{first, central, third}
}

func angleFromTan(axis, other int, data [3]float64, horizontal, taitBryan bool) float64 {
	pairs := [3][2]int{{2, 1}, {0, 2}, {1, 0}}
	i1, i2 := pairs[axis][0], pairs[axis][1]
	if horizontal {
		i1, i2 = i2, i1
	}
	even := (axis+1)%3 == other
	switch {
	case horizontal == even:
		return math.Atan2(data[i1], data[i2])
	case taitBryan:
		return math.Atan2(-data[i2], data[i1])
	default:
		return math.Atan2(data[i2], -data[i1])
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
