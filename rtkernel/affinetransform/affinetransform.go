package affinetransform

import (
	"math"

	"csgtrace/rtkernel/vmath/mat33"
	"csgtrace/rtkernel/vmath/vec3"

	"golang.org/x/xerrors"
)

type AffineTransform struct {
	Linear mat33.T
	Offset vec3.T
}

func Identity() AffineTransform {
	return AffineTransform{
		Linear: mat33.Identity(),
		Offset: vec3.T{0.0, 0.0, 0.0},
	}
}

func Translate(x vec3.T) AffineTransform {
	result := Identity()
	result.Offset = x
	return result
}

// Rotate returns a rotation of angle radians about the unit vector axis,
// following the right-hand rule.
func Rotate(axis vec3.T, angle float64) AffineTransform {
	c, s := math.Cos(angle), math.Sin(angle)
	t := 1 - c
	x, y, z := axis[0], axis[1], axis[2]
	return AffineTransform{
		Linear: mat33.T{
			t*x*x + c, t*x*y - s*z, t*x*z + s*y,
			t*x*y + s*z, t*y*y + c, t*y*z - s*x,
			t*x*z - s*y, t*y*z + s*x, t*z*z + c,
		},
	}
}

// Compose returns the transform that applies b, then a.
func Compose(a, b AffineTransform) AffineTransform {
	return AffineTransform{
		Linear: mat33.MulMM(a.Linear, b.Linear),
		Offset: vec3.AddVV(a.Offset, mat33.MulMV(a.Linear, b.Offset)),
	}
}

func (t AffineTransform) Invert() (AffineTransform, error) {
	inv, err := mat33.Inverse(t.Linear)
	if err != nil {
		return AffineTransform{}, xerrors.Errorf("while inverting affine transform: %w", err)
	}

	return AffineTransform{
		Linear: inv,
		Offset: vec3.MulVS(mat33.MulMV(inv, t.Offset), -1),
	}, nil
}

func TransformPoint(a AffineTransform, b vec3.T) vec3.T {
	return vec3.AddVV(mat33.MulMV(a.Linear, b), a.Offset)
}

func TransformVector(a AffineTransform, b vec3.T) vec3.T {
	return mat33.MulMV(a.Linear, b)
}
