package aabox

import (
	"math"

	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/vmath/vec3"
)

type AABox struct {
	X, Y, Z ray.Span
}

func AccumZeroAABox() AABox {
	return AABox{
		X: ray.Span{math.Inf(1), math.Inf(-1)},
		Y: ray.Span{math.Inf(1), math.Inf(-1)},
		Z: ray.Span{math.Inf(1), math.Inf(-1)},
	}
}

// InfiniteAABox contains all of space.
func InfiniteAABox() AABox {
	return AABox{
		X: ray.Span{math.Inf(-1), math.Inf(1)},
		Y: ray.Span{math.Inf(-1), math.Inf(1)},
		Z: ray.Span{math.Inf(-1), math.Inf(1)},
	}
}

func FromPoints(min, max vec3.T) AABox {
	return AABox{
		X: ray.Span{min[0], max[0]},
		Y: ray.Span{min[1], max[1]},
		Z: ray.Span{min[2], max[2]},
	}
}

func MinContainingAABox(a, b AABox) AABox {
	return AABox{
		X: ray.MinContainingSpan(a.X, b.X),
		Y: ray.MinContainingSpan(a.Y, b.Y),
		Z: ray.MinContainingSpan(a.Z, b.Z),
	}
}

func GrowAABoxToPoint(a AABox, b vec3.T) AABox {
	return MinContainingAABox(a, FromPoints(b, b))
}

// Axis returns the extent of a along axis i (0, 1, or 2).
func (a *AABox) Axis(i int) *ray.Span {
	switch i {
	case 0:
		return &a.X
	case 1:
		return &a.Y
	default:
		return &a.Z
	}
}

func (a AABox) Min() vec3.T {
	return vec3.T{a.X.Lo, a.Y.Lo, a.Z.Lo}
}

func (a AABox) Max() vec3.T {
	return vec3.T{a.X.Hi, a.Y.Hi, a.Z.Hi}
}

func (a AABox) Center() vec3.T {
	return vec3.MulVS(vec3.AddVV(a.Min(), a.Max()), 0.5)
}

func (a AABox) IsEmpty() bool {
	return a.X.Lo > a.X.Hi || a.Y.Lo > a.Y.Hi || a.Z.Lo > a.Z.Hi
}

func (a AABox) IsFinite() bool {
	return a.X.IsFinite() && a.Y.IsFinite() && a.Z.IsFinite()
}

// Overlaps reports whether the closed boxes a and b share any point.
func Overlaps(a, b AABox) bool {
	return ray.SpanOverlaps(a.X, b.X) && ray.SpanOverlaps(a.Y, b.Y) && ray.SpanOverlaps(a.Z, b.Z)
}

func (a AABox) SurfaceArea() float64 {
	xLen := a.X.Hi - a.X.Lo
	yLen := a.Y.Hi - a.Y.Lo
	zLen := a.Z.Hi - a.Z.Lo
	return 2 * (xLen*yLen + xLen*zLen + yLen*zLen)
}

// RayTestAABox clips the line through r against b.  The result is the span of
// ray distances inside b, or a NaN span if the line misses b entirely.
func RayTestAABox(r ray.RaySegment, b AABox) ray.Span {
	cover := r.TheSegment

	for axis := 0; axis < 3; axis++ {
		bounds := b.Axis(axis)
		p := r.TheRay.Point[axis]
		s := r.TheRay.Slope[axis]

		if s == 0 {
			// Parallel to this slab: either always inside it or never.
			if p < bounds.Lo || p > bounds.Hi {
				return ray.NaNSpan()
			}
			continue
		}

		coverAxis := ray.Span{
			(bounds.Lo - p) / s,
			(bounds.Hi - p) / s,
		}
		if coverAxis.Hi < coverAxis.Lo {
			coverAxis.Lo, coverAxis.Hi = coverAxis.Hi, coverAxis.Lo
		}
		if !ray.SpanOverlaps(cover, coverAxis) {
			return ray.NaNSpan()
		}
		if coverAxis.Lo > cover.Lo {
			cover.Lo = coverAxis.Lo
		}
		if coverAxis.Hi < cover.Hi {
			cover.Hi = coverAxis.Hi
		}
	}

	return cover
}

// WholeLine is the query segment covering the entire line through r.
func WholeLine(r ray.Ray) ray.RaySegment {
	return ray.RaySegment{
		TheRay:     r,
		TheSegment: ray.Span{math.Inf(-1), math.Inf(1)},
	}
}
