package vec3

import (
	"math"
)

type T [3]float64

func (v T) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func (v T) NormSquared() float64 {
	return v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
}

func Normalize(v T) T {
	l := v.Norm()
	return T{
		v[0] / l,
		v[1] / l,
		v[2] / l,
	}
}

func AddVV(a, b T) T {
	return T{
		a[0] + b[0],
		a[1] + b[1],
		a[2] + b[2],
	}
}

func SubVV(a, b T) T {
	return T{
		a[0] - b[0],
		a[1] - b[1],
		a[2] - b[2],
	}
}

func MulVS(a T, b float64) T {
	return T{
		a[0] * b,
		a[1] * b,
		a[2] * b,
	}
}

func DivVS(a T, b float64) T {
	return T{
		a[0] / b,
		a[1] / b,
		a[2] / b,
	}
}

// AddScaledVV returns a + s*b.
func AddScaledVV(a T, s float64, b T) T {
	return T{
		a[0] + s*b[0],
		a[1] + s*b[1],
		a[2] + s*b[2],
	}
}

func IProd(a, b T) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func CProd(a, b T) T {
	return T{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func Dist(a, b T) float64 {
	return SubVV(a, b).Norm()
}

func Min(a, b T) T {
	return T{math.Min(a[0], b[0]), math.Min(a[1], b[1]), math.Min(a[2], b[2])}
}

func Max(a, b T) T {
	return T{math.Max(a[0], b[0]), math.Max(a[1], b[1]), math.Max(a[2], b[2])}
}

// Orthogonal returns some unit vector perpendicular to v.
func Orthogonal(v T) T {
	// Cross with the axis v is least aligned with.
	axis := T{1, 0, 0}
	if math.Abs(v[1]) < math.Abs(v[0]) && math.Abs(v[1]) <= math.Abs(v[2]) {
		axis = T{0, 1, 0}
	} else if math.Abs(v[2]) < math.Abs(v[0]) {
		axis = T{0, 0, 1}
	}
	return Normalize(CProd(v, axis))
}
