// Package primitive holds the closed set of solid primitives the kernel can
// intersect, and the dispatch table that selects an implementation by kind.
package primitive

import (
	"fmt"

	"csgtrace/rtkernel/aabox"
	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/vmath/vec2"
	"csgtrace/rtkernel/vmath/vec3"

	"golang.org/x/xerrors"
)

// Kind identifies a primitive type.  The numbering is stable and matches the
// identifiers used by existing geometry databases.
type Kind int

const (
	KindNull Kind = iota
	KindTor
	KindTGC
	KindEll
	KindARB8
	KindARS
	KindHalf
	KindREC
	KindPoly
	KindBSpline
	KindSph

	KindCount
)

var kindNames = [KindCount]string{
	KindNull:    "null",
	KindTor:     "tor",
	KindTGC:     "tgc",
	KindEll:     "ell",
	KindARB8:    "arb8",
	KindARS:     "ars",
	KindHalf:    "half",
	KindREC:     "rec",
	KindPoly:    "poly",
	KindBSpline: "bspline",
	KindSph:     "sph",
}

func (k Kind) String() string {
	if k < 0 || k >= KindCount {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

var (
	ErrUnsupportedKind = xerrors.New("primitive kind has no implementation")
	ErrDegenerate      = xerrors.New("degenerate primitive")
	ErrNonConvex       = xerrors.New("non-convex primitive")
	ErrNonPlanar       = xerrors.New("non-planar face")
	ErrInfinite        = xerrors.New("primitive is unbounded")
)

// Tol is the geometric tolerance used during preparation and shooting.
type Tol struct {
	// Dist is the distance below which two points are considered the same.
	Dist float64
	// Perp is the cosine below which two directions are perpendicular.
	Perp float64
}

func DefaultTol() Tol {
	return Tol{
		Dist: 0.005,
		Perp: 1e-6,
	}
}

func (t Tol) DistSq() float64 {
	return t.Dist * t.Dist
}

// sqrtSmall is the slop used when deciding whether a ray is parallel to a
// plane.
const sqrtSmall = 1.0e-39

// Bounds is the bounding volume of a prepared primitive.
type Bounds struct {
	Box    aabox.AABox
	Center vec3.T

	// ARadius is the radius of a sphere approximating the primitive,
	// BRadius the radius of the sphere containing its bounding box.
	ARadius float64
	BRadius float64

	// Infinite primitives are always tested, never placed in the cut tree.
	Infinite bool
}

func boundsFromBox(box aabox.AABox) Bounds {
	half := vec3.MulVS(vec3.SubVV(box.Max(), box.Min()), 0.5)
	a := half[0]
	if half[1] > a {
		a = half[1]
	}
	if half[2] > a {
		a = half[2]
	}
	return Bounds{
		Box:     box,
		Center:  box.Center(),
		ARadius: a,
		BRadius: half.Norm(),
	}
}

// Params are the unprepared, primitive-specific input parameters.
type Params interface {
	Kind() Kind
}

// Curvature describes the surface at a hit.  C1 is the curvature along PDir,
// C2 the curvature along the direction perpendicular to PDir and the normal.
// Convex surfaces have negative curvature.
type Curvature struct {
	PDir   vec3.T
	C1, C2 float64
}

type UVCoord struct {
	UV vec2.T
}

type Polyline []vec3.T

type Mesh struct {
	Triangles [][3]vec3.T
	Normals   []vec3.T
}

// Specific is a prepared primitive.  It is immutable and safe for concurrent
// use by any number of shooting workers.
//
// The set of implementations is closed: only this package can provide one.
type Specific interface {
	Kind() Kind
	Bounds() Bounds

	// Shoot appends the segments where r passes through the primitive.
	// Tangent and degenerate crossings are misses.
	Shoot(r *ray.Ray, segs []ray.Seg) []ray.Seg

	// Norm fills in h.Point and h.Normal.  The normal points out of the
	// primitive.
	Norm(r *ray.Ray, h *ray.Hit)

	// Curve and UV require a hit that has been through Norm.
	Curve(h *ray.Hit) Curvature
	UV(h *ray.Hit) UVCoord

	Plot() []Polyline
	Tessellate(cells int) (*Mesh, error)
	Free()

	sealed()
}

// Functab is the set of operations registered for one primitive kind.
type Functab struct {
	Name string

	Prep func(p Params, tol Tol) (Specific, error)

	// Encode and Decode are set for kinds whose prepared form is worth
	// persisting in a prep cache.
	Encode func(s Specific) ([]byte, error)
	Decode func(p Params, tol Tol, payload []byte) (Specific, error)
}

var functab = [KindCount]*Functab{
	KindEll: {
		Name: "ell",
		Prep: prepEll,
	},
	KindARB8: {
		Name:   "arb8",
		Prep:   prepARB8,
		Encode: encodeARB8,
		Decode: decodeARB8,
	},
	KindHalf: {
		Name: "half",
		Prep: prepHalf,
	},
	KindREC: {
		Name: "rec",
		Prep: prepREC,
	},
	KindSph: {
		Name: "sph",
		Prep: prepEll,
	},
}

// Lookup returns the dispatch entry for k.
func Lookup(k Kind) (*Functab, error) {
	if k < 0 || k >= KindCount || functab[k] == nil {
		return nil, xerrors.Errorf("while looking up %v: %w", k, ErrUnsupportedKind)
	}
	return functab[k], nil
}

// Prep validates p and builds its prepared form.
func Prep(p Params, tol Tol) (Specific, error) {
	ft, err := Lookup(p.Kind())
	if err != nil {
		return nil, err
	}
	return ft.Prep(p, tol)
}

// Cacheable is implemented by parameters that can key a prep cache entry.
type Cacheable interface {
	Params
	CacheKey() []byte
}
