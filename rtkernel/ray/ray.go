package ray

import (
	"math"

	"csgtrace/rtkernel/vmath/vec3"
)

type Span struct {
	Lo, Hi float64
}

func NaNSpan() Span {
	return Span{math.NaN(), math.NaN()}
}

func SpanOverlaps(a, b Span) bool {
	return !(a.Lo > b.Hi || a.Hi < b.Lo)
}

func MinContainingSpan(a, b Span) Span {
	min := a.Lo
	if b.Lo < a.Lo {
		min = b.Lo
	}

	max := a.Hi
	if b.Hi > a.Hi {
		max = b.Hi
	}

	return Span{min, max}
}

func (s Span) IsFinite() bool {
	return !math.IsInf(s.Lo, 0) && !math.IsInf(s.Hi, 0)
}

func (s Span) IsNaN() bool {
	return math.IsNaN(s.Lo) || math.IsNaN(s.Hi)
}

func (s Span) Width() float64 {
	return s.Hi - s.Lo
}

// Ray is a half-line.  Slope is always unit length, so distances along the
// ray are model-space distances.
type Ray struct {
	Point vec3.T
	Slope vec3.T
}

func (r *Ray) Eval(t float64) vec3.T {
	return vec3.T{
		r.Point[0] + t*r.Slope[0],
		r.Point[1] + t*r.Slope[1],
		r.Point[2] + t*r.Slope[2],
	}
}

type RaySegment struct {
	TheRay     Ray
	TheSegment Span
}

// Hit is one surface crossing along a ray.
type Hit struct {
	Dist float64

	// Surfno identifies which surface of the primitive was crossed.  Its
	// meaning is private to the primitive.
	Surfno int

	// Priv is primitive-private scratch recorded at shoot time, consumed by
	// the normal, curvature, and uv computations.
	Priv vec3.T

	// Point and Normal are filled in on demand by the primitive's Norm.
	Point  vec3.T
	Normal vec3.T
}

// Seg is one primitive's in/out pair along a ray.
type Seg struct {
	In, Out Hit
}
