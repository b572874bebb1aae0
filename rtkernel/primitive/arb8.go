package primitive

import (
	"math"

	"csgtrace/rtkernel/aabox"
	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/vmath/vec2"
	"csgtrace/rtkernel/vmath/vec3"

	"golang.org/x/xerrors"
)

// ARB8 is a convex polyhedron given by eight vertices.  Vertices 0-3 are one
// quadrilateral and 4-7 the opposite one, so that vertex i+4 is joined to
// vertex i.  Coincident vertices are allowed, which is how wedges,
// tetrahedra and the like are expressed.
type ARB8 struct {
	Pts [8]vec3.T
}

func (*ARB8) Kind() Kind { return KindARB8 }

// Box returns the ARB8 form of the axis-aligned box spanning min to max.
func Box(min, max vec3.T) *ARB8 {
	return &ARB8{
		Pts: [8]vec3.T{
			{min[0], min[1], min[2]},
			{max[0], min[1], min[2]},
			{max[0], max[1], min[2]},
			{min[0], max[1], min[2]},
			{min[0], min[1], max[2]},
			{max[0], min[1], max[2]},
			{max[0], max[1], max[2]},
			{min[0], max[1], max[2]},
		},
	}
}

func (a *ARB8) CacheKey() []byte {
	return appendPoints([]byte("arb8/"), a.Pts[:])
}

// arbFaces lists the vertex indices of each of the six candidate faces.
var arbFaces = [6][4]int{
	{3, 2, 1, 0},
	{4, 5, 6, 7},
	{4, 7, 3, 0},
	{2, 6, 5, 1},
	{1, 5, 4, 0},
	{7, 6, 2, 3},
}

// sloppyDotTol is the cosine of 89.5 degrees.
const sloppyDotTol = 0.0087

type arbFace struct {
	// A is a point on the face, N the outward unit normal, and D the plane
	// offset so that N.p == D on the face.
	A vec3.T
	N vec3.T
	D float64

	// The uv parameterization of the face.
	UVOrig     vec3.T
	U, V       vec3.T
	ULen, VLen float64
}

type arbSpecific struct {
	tol    Tol
	pts    [8]vec3.T
	faces  []arbFace
	bounds Bounds
}

// addPoint adds point number ptno of the face being built.  The third point
// fixes the plane and the rest are checked against it.
func (f *arbFace) addPoint(p vec3.T, ptno int, center vec3.T) error {
	switch ptno {
	case 0:
		f.A = p
		f.UVOrig = p
		return nil
	case 1:
		f.U = vec3.SubVV(p, f.A)
		l := f.U.Norm()
		if l <= sqrtSmall {
			return ErrDegenerate
		}
		f.ULen = l
		f.U = vec3.DivVS(f.U, l)
		return nil
	case 2:
		pa := vec3.SubVV(p, f.A)
		n := vec3.CProd(pa, f.U)
		l := n.Norm()
		if l <= sloppyDotTol {
			// The three points are colinear.
			return ErrDegenerate
		}
		f.N = vec3.DivVS(n, l)

		work := vec3.Normalize(vec3.CProd(f.N, f.U))
		f.V = vec3.MulVS(work, vec3.IProd(work, pa))
		f.VLen = f.V.Norm()
		f.V = vec3.DivVS(f.V, f.VLen)
		f.growU(p)

		// Orient the normal away from the centroid.
		if vec3.IProd(vec3.SubVV(f.A, center), f.N) < 0 {
			f.N = vec3.MulVS(f.N, -1)
		}
		f.D = vec3.IProd(f.N, f.A)
		return nil
	default:
		f.growU(p)
		f.growV(p)
		pa := vec3.Normalize(vec3.SubVV(p, f.A))
		if math.Abs(vec3.IProd(f.N, pa)) > sloppyDotTol {
			return ErrNonPlanar
		}
		return nil
	}
}

func (f *arbFace) growU(p vec3.T) {
	d := vec3.IProd(vec3.SubVV(p, f.UVOrig), f.U)
	if d > f.ULen {
		f.ULen = d
	} else if d < 0 {
		f.UVOrig = vec3.AddScaledVV(f.UVOrig, d, f.U)
		f.ULen -= d
	}
}

func (f *arbFace) growV(p vec3.T) {
	d := vec3.IProd(vec3.SubVV(p, f.UVOrig), f.V)
	if d > f.VLen {
		f.VLen = d
	} else if d < 0 {
		f.UVOrig = vec3.AddScaledVV(f.UVOrig, d, f.V)
		f.VLen -= d
	}
}

func prepARB8(p Params, tol Tol) (Specific, error) {
	arb, ok := p.(*ARB8)
	if !ok {
		return nil, xerrors.Errorf("arb8 prep got %T: %w", p, ErrUnsupportedKind)
	}

	faces, err := arbMakePlanes(arb.Pts, tol)
	if err != nil {
		return nil, err
	}
	return newARBSpecific(arb.Pts, faces, tol), nil
}

func newARBSpecific(pts [8]vec3.T, faces []arbFace, tol Tol) *arbSpecific {
	box := aabox.AccumZeroAABox()
	for _, p := range pts {
		box = aabox.GrowAABoxToPoint(box, p)
	}
	return &arbSpecific{
		tol:    tol,
		pts:    pts,
		faces:  faces,
		bounds: boundsFromBox(box),
	}
}

func arbMakePlanes(pts [8]vec3.T, tol Tol) ([]arbFace, error) {
	// The centroid of the vertices is inside the solid even for thin,
	// skewed plates where the bounding box center is not.
	var center vec3.T
	for _, p := range pts {
		center = vec3.AddVV(center, p)
	}
	center = vec3.MulVS(center, 1.0/8)

	// equiv[i] is the lowest-numbered vertex coincident with vertex i.
	var equiv [8]int
	for i := range pts {
		equiv[i] = i
		for j := i - 1; j >= 0; j-- {
			if vec3.SubVV(pts[i], pts[j]).NormSquared() < tol.DistSq() {
				equiv[i] = equiv[j]
				break
			}
		}
	}

	faces := make([]arbFace, 0, 6)
	for i, corners := range arbFaces {
		face := arbFace{}
		var used []int
	corner:
		for _, c := range corners {
			idx := equiv[c]
			for _, u := range used {
				if u == idx {
					continue corner
				}
			}
			err := face.addPoint(pts[idx], len(used), center)
			if xerrors.Is(err, ErrNonPlanar) {
				return nil, xerrors.Errorf("arb8 face %d: %w", i, err)
			}
			if err != nil {
				continue
			}
			used = append(used, idx)
		}

		if len(used) < 3 {
			continue
		}

		face.U = vec3.DivVS(face.U, face.ULen)
		face.V = vec3.DivVS(face.V, face.VLen)
		faces = append(faces, face)
	}

	if len(faces) < 4 || len(faces) > 6 {
		return nil, xerrors.Errorf("arb8 has %d valid faces, want 4 to 6: %w", len(faces), ErrDegenerate)
	}

	for i, f := range faces {
		for j, p := range pts {
			if vec3.IProd(f.N, p)-f.D > tol.Dist {
				return nil, xerrors.Errorf("arb8 vertex %d lies outside face %d: %w", j, i, ErrNonConvex)
			}
		}
	}

	return faces, nil
}

func (s *arbSpecific) Kind() Kind     { return KindARB8 }
func (s *arbSpecific) Bounds() Bounds { return s.bounds }
func (s *arbSpecific) sealed()        {}

func (s *arbSpecific) Free() {
	s.faces = nil
}

func (s *arbSpecific) Shoot(r *ray.Ray, segs []ray.Seg) []ray.Seg {
	in, out := math.Inf(-1), math.Inf(1)
	iplane, oplane := -1, -1

	for j := len(s.faces) - 1; j >= 0; j-- {
		f := &s.faces[j]
		dxbdn := vec3.IProd(f.N, r.Point) - f.D
		dn := -vec3.IProd(f.N, r.Slope)
		switch {
		case dn < -sqrtSmall:
			// Leaving through this face.
			if t := dxbdn / dn; out > t {
				out = t
				oplane = j
			}
		case dn > sqrtSmall:
			// Entering through this face.
			if t := dxbdn / dn; in < t {
				in = t
				iplane = j
			}
		default:
			// Parallel to the face; outside it means a miss.
			if dxbdn > sqrtSmall {
				return segs
			}
		}
		if in > out {
			return segs
		}
	}

	if iplane == -1 || oplane == -1 {
		return segs
	}
	if in >= out || math.IsInf(out, 1) {
		return segs
	}

	return append(segs, ray.Seg{
		In:  ray.Hit{Dist: in, Surfno: iplane},
		Out: ray.Hit{Dist: out, Surfno: oplane},
	})
}

func (s *arbSpecific) Norm(r *ray.Ray, h *ray.Hit) {
	h.Point = r.Eval(h.Dist)
	h.Normal = s.faces[h.Surfno].N
}

func (s *arbSpecific) Curve(h *ray.Hit) Curvature {
	return Curvature{PDir: vec3.Orthogonal(h.Normal)}
}

func (s *arbSpecific) UV(h *ray.Hit) UVCoord {
	f := &s.faces[h.Surfno]
	pa := vec3.SubVV(h.Point, f.UVOrig)
	u := vec3.IProd(pa, f.U)
	v := 1 - vec3.IProd(pa, f.V)
	if u < 0 {
		u = -u
	}
	if v < 0 {
		v = -v
	}
	return UVCoord{UV: vec2.Clamp01(vec2.T{u, v})}
}

// Plot traces four U-shaped contours, which draws every edge once.
func (s *arbSpecific) Plot() []Polyline {
	p := s.pts
	return []Polyline{
		{p[0], p[1], p[2], p[3]},
		{p[4], p[0], p[3], p[7]},
		{p[5], p[4], p[7], p[6]},
		{p[1], p[5], p[6], p[2]},
	}
}

func (s *arbSpecific) distance(p vec3.T) float64 {
	d := math.Inf(-1)
	for i := range s.faces {
		d = math.Max(d, vec3.IProd(s.faces[i].N, p)-s.faces[i].D)
	}
	return d
}

func (s *arbSpecific) Tessellate(cells int) (*Mesh, error) {
	return tessellate(s.distance, s.bounds.Box, cells)
}
