package primitive

import (
	"math"

	"csgtrace/rtkernel/aabox"
	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/vmath/mat33"
	"csgtrace/rtkernel/vmath/vec2"
	"csgtrace/rtkernel/vmath/vec3"

	"golang.org/x/xerrors"
)

// REC is a right elliptical cylinder.  The base ellipse is centered on V with
// semi-axes A and B; the cylinder extends along H, which must be
// perpendicular to both.
type REC struct {
	V, H, A, B vec3.T
}

func (*REC) Kind() Kind { return KindREC }

// Surface numbers of a REC.
const (
	recSide = iota + 1
	recBottom
	recTop
)

type recSpecific struct {
	v, h, a, b vec3.T

	// sor maps model space (relative to v) into the unit cylinder
	// x^2+y^2 <= 1, 0 <= z <= 1.
	sor mat33.T

	bounds Bounds
}

func prepREC(p Params, tol Tol) (Specific, error) {
	rec, ok := p.(*REC)
	if !ok {
		return nil, xerrors.Errorf("rec prep got %T: %w", p, ErrUnsupportedKind)
	}

	vecs := [3]vec3.T{rec.A, rec.B, rec.H}
	var lenSq [3]float64
	for i, v := range vecs {
		lenSq[i] = v.NormSquared()
		if lenSq[i] <= tol.DistSq() {
			return nil, xerrors.Errorf("rec vector %d has zero length: %w", i, ErrDegenerate)
		}
	}
	for i := 0; i < 3; i++ {
		j := (i + 1) % 3
		f := vec3.IProd(vecs[i], vecs[j]) / math.Sqrt(lenSq[i]*lenSq[j])
		if math.Abs(f) > tol.Perp {
			return nil, xerrors.Errorf("rec vectors %d and %d are not perpendicular (cos=%g): %w", i, j, f, ErrDegenerate)
		}
	}

	s := &recSpecific{
		v: rec.V,
		h: rec.H,
		a: rec.A,
		b: rec.B,
		sor: mat33.FromRows(
			vec3.DivVS(rec.A, lenSq[0]),
			vec3.DivVS(rec.B, lenSq[1]),
			vec3.DivVS(rec.H, lenSq[2]),
		),
	}

	var half vec3.T
	for k := 0; k < 3; k++ {
		half[k] = math.Sqrt(rec.A[k]*rec.A[k] + rec.B[k]*rec.B[k])
	}
	box := aabox.AccumZeroAABox()
	for _, base := range []vec3.T{rec.V, vec3.AddVV(rec.V, rec.H)} {
		box = aabox.GrowAABoxToPoint(box, vec3.SubVV(base, half))
		box = aabox.GrowAABoxToPoint(box, vec3.AddVV(base, half))
	}
	s.bounds = boundsFromBox(box)

	return s, nil
}

func (s *recSpecific) Kind() Kind     { return KindREC }
func (s *recSpecific) Bounds() Bounds { return s.bounds }
func (s *recSpecific) Free()          {}
func (s *recSpecific) sealed()        {}

func (s *recSpecific) Shoot(r *ray.Ray, segs []ray.Seg) []ray.Seg {
	p := mat33.MulMV(s.sor, vec3.SubVV(r.Point, s.v))
	d := mat33.MulMV(s.sor, r.Slope)

	// Span between the end caps.
	capIn, capOut := math.Inf(-1), math.Inf(1)
	capInSurf, capOutSurf := recBottom, recTop
	if math.Abs(d[2]) <= sqrtSmall {
		if p[2] < 0 || p[2] > 1 {
			return segs
		}
	} else {
		t0 := -p[2] / d[2]
		t1 := (1 - p[2]) / d[2]
		if t0 < t1 {
			capIn, capOut = t0, t1
		} else {
			capIn, capOut = t1, t0
			capInSurf, capOutSurf = recTop, recBottom
		}
	}

	// Span inside the infinite elliptical tube.
	sideIn, sideOut := math.Inf(-1), math.Inf(1)
	a := d[0]*d[0] + d[1]*d[1]
	b := 2 * (p[0]*d[0] + p[1]*d[1])
	c := p[0]*p[0] + p[1]*p[1] - 1
	if a <= sqrtSmall {
		if c >= 0 {
			return segs
		}
	} else {
		disc := b*b - 4*a*c
		if disc <= 0 {
			return segs
		}
		root := math.Sqrt(disc)
		sideIn = (-b - root) / (2 * a)
		sideOut = (-b + root) / (2 * a)
	}

	in, inSurf := sideIn, recSide
	if capIn > in {
		in, inSurf = capIn, capInSurf
	}
	out, outSurf := sideOut, recSide
	if capOut < out {
		out, outSurf = capOut, capOutSurf
	}
	if in >= out {
		return segs
	}

	return append(segs, ray.Seg{
		In:  ray.Hit{Dist: in, Surfno: inSurf},
		Out: ray.Hit{Dist: out, Surfno: outSurf},
	})
}

func (s *recSpecific) Norm(r *ray.Ray, h *ray.Hit) {
	h.Point = r.Eval(h.Dist)
	local := mat33.MulMV(s.sor, vec3.SubVV(h.Point, s.v))
	h.Priv = local
	switch h.Surfno {
	case recBottom:
		h.Normal = vec3.MulVS(vec3.Normalize(s.h), -1)
	case recTop:
		h.Normal = vec3.Normalize(s.h)
	default:
		h.Normal = vec3.Normalize(mat33.MulMV(mat33.Transpose(s.sor), vec3.T{local[0], local[1], 0}))
	}
}

// Curve reports zero curvature along H on the side and the curvature of the
// base ellipse across it.  The caps are flat.
func (s *recSpecific) Curve(h *ray.Hit) Curvature {
	if h.Surfno != recSide {
		return Curvature{PDir: vec3.Orthogonal(h.Normal)}
	}
	theta := math.Atan2(h.Priv[1], h.Priv[0])
	la, lb := s.a.Norm(), s.b.Norm()
	sin, cos := math.Sin(theta), math.Cos(theta)
	k := la * lb / math.Pow(la*la*sin*sin+lb*lb*cos*cos, 1.5)
	return Curvature{
		PDir: vec3.Normalize(s.h),
		C1:   0,
		C2:   -k,
	}
}

// UV wraps u around the side and runs v up H.  On the caps u and v are the
// scaled position across the ellipse.
func (s *recSpecific) UV(h *ray.Hit) UVCoord {
	l := h.Priv
	if h.Surfno != recSide {
		return UVCoord{UV: vec2.Clamp01(vec2.T{(l[0] + 1) / 2, (l[1] + 1) / 2})}
	}
	u := math.Atan2(l[1], l[0])/(2*math.Pi) + 0.5
	return UVCoord{UV: vec2.Clamp01(vec2.T{u, l[2]})}
}

func (s *recSpecific) Plot() []Polyline {
	top := vec3.AddVV(s.v, s.h)
	lines := []Polyline{
		ellipse(s.v, s.a, s.b, ellPlotSegments),
		ellipse(top, s.a, s.b, ellPlotSegments),
	}
	for _, e := range []vec3.T{s.a, s.b, vec3.MulVS(s.a, -1), vec3.MulVS(s.b, -1)} {
		lines = append(lines, Polyline{vec3.AddVV(s.v, e), vec3.AddVV(top, e)})
	}
	return lines
}

func (s *recSpecific) distance(p vec3.T) float64 {
	l := mat33.MulMV(s.sor, vec3.SubVV(p, s.v))
	radial := (math.Hypot(l[0], l[1]) - 1) * math.Min(s.a.Norm(), s.b.Norm())
	hl := s.h.Norm()
	axial := math.Max(-l[2], l[2]-1) * hl
	return math.Max(radial, axial)
}

func (s *recSpecific) Tessellate(cells int) (*Mesh, error) {
	return tessellate(s.distance, s.bounds.Box, cells)
}
