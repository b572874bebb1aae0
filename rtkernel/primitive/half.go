package primitive

import (
	"math"

	"csgtrace/rtkernel/aabox"
	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/vmath/vec2"
	"csgtrace/rtkernel/vmath/vec3"

	"golang.org/x/xerrors"
)

// Half is the half-space of points p with N.p <= D.  N is the outward normal
// and need not be unit length.
type Half struct {
	N vec3.T
	D float64
}

func (*Half) Kind() Kind { return KindHalf }

// halfPlotSize is the edge length of the square drawn to represent the
// bounding plane.
const halfPlotSize = 100.0

type halfSpecific struct {
	n vec3.T
	d float64

	// u and v span the bounding plane.
	u, v vec3.T
}

func prepHalf(p Params, tol Tol) (Specific, error) {
	h, ok := p.(*Half)
	if !ok {
		return nil, xerrors.Errorf("half prep got %T: %w", p, ErrUnsupportedKind)
	}
	l := h.N.Norm()
	if l <= tol.Dist {
		return nil, xerrors.Errorf("half-space normal has zero length: %w", ErrDegenerate)
	}
	n := vec3.DivVS(h.N, l)
	u := vec3.Orthogonal(n)
	return &halfSpecific{
		n: n,
		d: h.D / l,
		u: u,
		v: vec3.CProd(n, u),
	}, nil
}

func (s *halfSpecific) Kind() Kind { return KindHalf }
func (s *halfSpecific) Free()      {}
func (s *halfSpecific) sealed()    {}

func (s *halfSpecific) Bounds() Bounds {
	return Bounds{
		Box:      aabox.InfiniteAABox(),
		Center:   vec3.MulVS(s.n, s.d),
		ARadius:  math.Inf(1),
		BRadius:  math.Inf(1),
		Infinite: true,
	}
}

func (s *halfSpecific) Shoot(r *ray.Ray, segs []ray.Seg) []ray.Seg {
	slant := vec3.IProd(s.n, r.Point) - s.d
	dn := vec3.IProd(s.n, r.Slope)

	if math.Abs(dn) <= sqrtSmall {
		// Parallel to the plane: entirely inside or entirely outside.
		if slant > 0 {
			return segs
		}
		return append(segs, ray.Seg{
			In:  ray.Hit{Dist: math.Inf(-1)},
			Out: ray.Hit{Dist: math.Inf(1)},
		})
	}

	t := -slant / dn
	if dn > 0 {
		// Heading out through the plane.
		return append(segs, ray.Seg{
			In:  ray.Hit{Dist: math.Inf(-1)},
			Out: ray.Hit{Dist: t},
		})
	}
	return append(segs, ray.Seg{
		In:  ray.Hit{Dist: t},
		Out: ray.Hit{Dist: math.Inf(1)},
	})
}

func (s *halfSpecific) Norm(r *ray.Ray, h *ray.Hit) {
	h.Point = r.Eval(h.Dist)
	h.Normal = s.n
}

func (s *halfSpecific) Curve(h *ray.Hit) Curvature {
	return Curvature{PDir: s.u}
}

// UV repeats every unit of distance across the plane.
func (s *halfSpecific) UV(h *ray.Hit) UVCoord {
	u := vec3.IProd(h.Point, s.u)
	v := vec3.IProd(h.Point, s.v)
	u -= math.Floor(u)
	v -= math.Floor(v)
	return UVCoord{UV: vec2.T{u, v}}
}

// Plot draws a square in the bounding plane plus a tick along the normal.
func (s *halfSpecific) Plot() []Polyline {
	c := vec3.MulVS(s.n, s.d)
	h := halfPlotSize / 2
	corner := func(a, b float64) vec3.T {
		return vec3.AddScaledVV(vec3.AddScaledVV(c, a*h, s.u), b*h, s.v)
	}
	return []Polyline{
		{corner(-1, -1), corner(1, -1), corner(1, 1), corner(-1, 1), corner(-1, -1)},
		{c, vec3.AddScaledVV(c, h/4, s.n)},
	}
}

func (s *halfSpecific) Tessellate(cells int) (*Mesh, error) {
	return nil, ErrInfinite
}
