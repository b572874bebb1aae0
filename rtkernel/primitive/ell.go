package primitive

import (
	"math"

	"csgtrace/rtkernel/aabox"
	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/vmath/mat33"
	"csgtrace/rtkernel/vmath/vec2"
	"csgtrace/rtkernel/vmath/vec3"

	"gonum.org/v1/gonum/mat"
	"golang.org/x/xerrors"
)

// Ell is an ellipsoid centered at V with mutually perpendicular semi-axes A,
// B, and C.
type Ell struct {
	V, A, B, C vec3.T
}

func (*Ell) Kind() Kind { return KindEll }

// Sph is a sphere.  It is prepared as an ellipsoid with equal axes.
type Sph struct {
	V vec3.T
	R float64
}

func (*Sph) Kind() Kind { return KindSph }

func (s *Sph) ell() *Ell {
	return &Ell{
		V: s.V,
		A: vec3.T{s.R, 0, 0},
		B: vec3.T{0, s.R, 0},
		C: vec3.T{0, 0, s.R},
	}
}

type ellSpecific struct {
	kind Kind
	tol  Tol
	v    vec3.T
	axes [3]vec3.T

	// sor maps model space (relative to v) onto the unit sphere.
	sor mat33.T

	bounds Bounds
}

func prepEll(p Params, tol Tol) (Specific, error) {
	var e *Ell
	switch p := p.(type) {
	case *Ell:
		e = p
	case *Sph:
		if p.R <= tol.Dist {
			return nil, xerrors.Errorf("sphere radius %v: %w", p.R, ErrDegenerate)
		}
		e = p.ell()
	default:
		return nil, xerrors.Errorf("ell prep got %T: %w", p, ErrUnsupportedKind)
	}

	axes := [3]vec3.T{e.A, e.B, e.C}
	var lenSq [3]float64
	for i, a := range axes {
		lenSq[i] = a.NormSquared()
		if lenSq[i] <= tol.DistSq() {
			return nil, xerrors.Errorf("ell axis %d has zero length: %w", i, ErrDegenerate)
		}
	}
	for i := 0; i < 3; i++ {
		j := (i + 1) % 3
		f := vec3.IProd(axes[i], axes[j]) / math.Sqrt(lenSq[i]*lenSq[j])
		if math.Abs(f) > tol.Perp {
			return nil, xerrors.Errorf("ell axes %d and %d are not perpendicular (cos=%g): %w", i, j, f, ErrDegenerate)
		}
	}

	s := &ellSpecific{
		kind: p.Kind(),
		tol:  tol,
		v:    e.V,
		axes: axes,
		sor: mat33.FromRows(
			vec3.DivVS(e.A, lenSq[0]),
			vec3.DivVS(e.B, lenSq[1]),
			vec3.DivVS(e.C, lenSq[2]),
		),
	}

	// The extent along each world axis is the length of the vector of that
	// component of all three semi-axes.
	var half vec3.T
	for k := 0; k < 3; k++ {
		half[k] = math.Sqrt(e.A[k]*e.A[k] + e.B[k]*e.B[k] + e.C[k]*e.C[k])
	}
	s.bounds = boundsFromBox(aabox.FromPoints(vec3.SubVV(e.V, half), vec3.AddVV(e.V, half)))
	s.bounds.ARadius = math.Sqrt(math.Max(lenSq[0], math.Max(lenSq[1], lenSq[2])))

	return s, nil
}

func (s *ellSpecific) Kind() Kind     { return s.kind }
func (s *ellSpecific) Bounds() Bounds { return s.bounds }
func (s *ellSpecific) Free()          {}
func (s *ellSpecific) sealed()        {}

func (s *ellSpecific) Shoot(r *ray.Ray, segs []ray.Seg) []ray.Seg {
	p := mat33.MulMV(s.sor, vec3.SubVV(r.Point, s.v))
	d := mat33.MulMV(s.sor, r.Slope)

	a := vec3.IProd(d, d)
	b := 2 * vec3.IProd(p, d)
	c := vec3.IProd(p, p) - 1

	disc := b*b - 4*a*c
	if disc <= 0 {
		return segs
	}
	root := math.Sqrt(disc)
	in := (-b - root) / (2 * a)
	out := (-b + root) / (2 * a)
	if out <= in {
		return segs
	}

	return append(segs, ray.Seg{
		In:  ray.Hit{Dist: in},
		Out: ray.Hit{Dist: out},
	})
}

func (s *ellSpecific) Norm(r *ray.Ray, h *ray.Hit) {
	h.Point = r.Eval(h.Dist)
	local := mat33.MulMV(s.sor, vec3.SubVV(h.Point, s.v))
	h.Priv = local
	h.Normal = vec3.Normalize(mat33.MulMV(mat33.Transpose(s.sor), local))
}

// Curve projects the Hessian of the implicit surface into the tangent plane
// and takes its eigen-decomposition.
func (s *ellSpecific) Curve(h *ray.Hit) Curvature {
	m := mat33.MulMM(mat33.Transpose(s.sor), s.sor)
	grad := mat33.MulMV(m, vec3.SubVV(h.Point, s.v))
	gradLen := grad.Norm()
	n := h.Normal

	proj := mat33.T{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			proj[i*3+j] = -n[i] * n[j]
		}
		proj[i*3+i] += 1
	}
	shape := mat33.MulMM(proj, mat33.MulMM(m, proj))

	sym := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			sym.SetSym(i, j, 0.5*(shape[i*3+j]+shape[j*3+i])/gradLen)
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return Curvature{PDir: vec3.Orthogonal(n)}
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// One eigenvector is (nearly) the normal; the other two are the
	// principal directions.
	var dirs []vec3.T
	var curvs []float64
	for k := 0; k < 3; k++ {
		dir := vec3.T{vecs.At(0, k), vecs.At(1, k), vecs.At(2, k)}
		if math.Abs(vec3.IProd(dir, n)) > 0.5 {
			continue
		}
		dirs = append(dirs, dir)
		curvs = append(curvs, -vals[k])
	}
	if len(dirs) != 2 {
		return Curvature{PDir: vec3.Orthogonal(n)}
	}
	if curvs[1] < curvs[0] {
		dirs[0], dirs[1] = dirs[1], dirs[0]
		curvs[0], curvs[1] = curvs[1], curvs[0]
	}
	return Curvature{
		PDir: vec3.Normalize(dirs[0]),
		C1:   curvs[0],
		C2:   curvs[1],
	}
}

// UV is longitude around C and latitude from -C to +C.
func (s *ellSpecific) UV(h *ray.Hit) UVCoord {
	local := vec3.Normalize(h.Priv)
	u := math.Atan2(local[1], local[0])/(2*math.Pi) + 0.5
	v := 1 - math.Acos(math.Max(-1, math.Min(1, local[2])))/math.Pi
	return UVCoord{UV: vec2.Clamp01(vec2.T{u, v})}
}

const ellPlotSegments = 24

func ellipse(center, a, b vec3.T, n int) Polyline {
	line := make(Polyline, 0, n+1)
	for i := 0; i <= n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		p := vec3.AddScaledVV(center, math.Cos(theta), a)
		p = vec3.AddScaledVV(p, math.Sin(theta), b)
		line = append(line, p)
	}
	return line
}

func (s *ellSpecific) Plot() []Polyline {
	return []Polyline{
		ellipse(s.v, s.axes[0], s.axes[1], ellPlotSegments),
		ellipse(s.v, s.axes[0], s.axes[2], ellPlotSegments),
		ellipse(s.v, s.axes[1], s.axes[2], ellPlotSegments),
	}
}

func (s *ellSpecific) distance(p vec3.T) float64 {
	minAxis := math.Min(s.axes[0].Norm(), math.Min(s.axes[1].Norm(), s.axes[2].Norm()))
	return (mat33.MulMV(s.sor, vec3.SubVV(p, s.v)).Norm() - 1) * minAxis
}

func (s *ellSpecific) Tessellate(cells int) (*Mesh, error) {
	return tessellate(s.distance, s.bounds.Box, cells)
}
