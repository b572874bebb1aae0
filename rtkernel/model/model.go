// Package model holds the CSG scene the kernel shoots against: named solids,
// regions built from boolean trees over those solids, and the products of
// preparing them for shooting.
package model

import (
	"fmt"
	"runtime"

	"csgtrace/rtkernel/aabox"
	"csgtrace/rtkernel/cuttree"
	"csgtrace/rtkernel/primitive"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/xerrors"
)

var (
	ErrNoSolids      = xerrors.New("model has no solids")
	ErrPrepped       = xerrors.New("model is already prepared")
	ErrUnknownSolid  = xerrors.New("unknown solid")
	ErrDuplicateName = xerrors.New("duplicate name")
)

// PrepCache persists prepared primitive payloads between runs.
type PrepCache interface {
	Get(key []byte) ([]byte, bool, error)
	Put(key, value []byte) error
}

type Options struct {
	Tol         primitive.Tol
	Cut         cuttree.Options
	PrepWorkers int
	Cache       PrepCache
}

type Opt func(*Options)

func WithTol(tol primitive.Tol) Opt {
	return func(o *Options) {
		o.Tol = tol
	}
}

func WithCutLen(n int) Opt {
	return func(o *Options) {
		o.Cut.CutLen = n
	}
}

func WithCutDepth(n int) Opt {
	return func(o *Options) {
		o.Cut.CutDepth = n
	}
}

func WithPrepWorkers(n int) Opt {
	return func(o *Options) {
		o.PrepWorkers = n
	}
}

func WithPrepCache(c PrepCache) Opt {
	return func(o *Options) {
		o.Cache = c
	}
}

// Solid is one named primitive instance.
type Solid struct {
	Name   string
	Params primitive.Params

	// Precedence decides overlaps under the default policy; higher wins.
	Precedence int

	// Prep products.  Bit is -1 when the solid is not part of the prepared
	// model.
	Bit      int
	Specific primitive.Specific
	Bounds   primitive.Bounds
	Regions  *bitset.BitSet
	Err      error
}

func (s *Solid) Kind() primitive.Kind {
	return s.Params.Kind()
}

func (s *Solid) String() string {
	return fmt.Sprintf("%s(%v)", s.Name, s.Kind())
}

// Region is a named boolean combination of solids.
type Region struct {
	Name         string
	ID           int
	AirCode      int
	MaterialCode int
	Tree         *Tree

	// Prep products.
	Bit      int
	Solids   *bitset.BitSet
	Postfix  []Instr
	prepTree *Tree
}

func (r *Region) IsAir() bool {
	return r.AirCode != 0
}

func (r *Region) String() string {
	return r.Name
}

type RegionOpt func(*Region)

func WithRegionID(id int) RegionOpt {
	return func(r *Region) {
		r.ID = id
	}
}

func WithAirCode(code int) RegionOpt {
	return func(r *Region) {
		r.AirCode = code
	}
}

func WithMaterial(code int) RegionOpt {
	return func(r *Region) {
		r.MaterialCode = code
	}
}

// PrepStats summarizes a preparation.
type PrepStats struct {
	Solids       int
	FailedSolids int
	Regions      int
	Cut          cuttree.Stats
}

type Model struct {
	opts Options

	solids  []*Solid
	byName  map[string]*Solid
	regions []*Region

	prepped     bool
	liveSolids  []*Solid
	liveRegions []*Region
	failures    []*PrepError
	bounds      aabox.AABox
	cut         *cuttree.Tree
	stats       PrepStats
}

func New(opts ...Opt) *Model {
	m := &Model{
		opts: Options{
			Tol:         primitive.DefaultTol(),
			Cut:         cuttree.DefaultOptions(),
			PrepWorkers: runtime.NumCPU(),
		},
		byName: map[string]*Solid{},
	}
	for _, opt := range opts {
		opt(&m.opts)
	}
	return m
}

// AddSolid adds a primitive instance.  It must be called before Prep.
func (m *Model) AddSolid(name string, p primitive.Params) (*Solid, error) {
	if m.prepped {
		return nil, xerrors.Errorf("while adding solid %q: %w", name, ErrPrepped)
	}
	if _, ok := m.byName[name]; ok {
		return nil, xerrors.Errorf("solid %q: %w", name, ErrDuplicateName)
	}
	s := &Solid{
		Name:   name,
		Params: p,
		Bit:    -1,
	}
	m.solids = append(m.solids, s)
	m.byName[name] = s
	return s, nil
}

// AddRegion adds a region whose tree names previously added solids.  It
// must be called before Prep.
func (m *Model) AddRegion(name string, tree *Tree, opts ...RegionOpt) (*Region, error) {
	if m.prepped {
		return nil, xerrors.Errorf("while adding region %q: %w", name, ErrPrepped)
	}
	for _, r := range m.regions {
		if r.Name == name {
			return nil, xerrors.Errorf("region %q: %w", name, ErrDuplicateName)
		}
	}
	resolved, err := m.resolve(tree)
	if err != nil {
		return nil, xerrors.Errorf("while adding region %q: %w", name, err)
	}
	r := &Region{
		Name: name,
		ID:   len(m.regions) + 1000,
		Tree: resolved,
		Bit:  -1,
	}
	for _, opt := range opts {
		opt(r)
	}
	m.regions = append(m.regions, r)
	return r, nil
}

func (m *Model) SolidByName(name string) (*Solid, bool) {
	s, ok := m.byName[name]
	return s, ok
}

func (m *Model) Prepped() bool {
	return m.prepped
}

func (m *Model) Tol() primitive.Tol {
	return m.opts.Tol
}

// Solids returns the prepared solids, indexed by solid bit.
func (m *Model) Solids() []*Solid {
	return m.liveSolids
}

// Regions returns the prepared regions, indexed by region bit.
func (m *Model) Regions() []*Region {
	return m.liveRegions
}

// Solid returns the prepared solid with the given bit.  An out-of-range bit
// means corrupted per-ray state and panics.
func (m *Model) Solid(bit int) *Solid {
	if bit < 0 || bit >= len(m.liveSolids) {
		panic(fmt.Sprintf("model: solid bit %d out of range [0, %d)", bit, len(m.liveSolids)))
	}
	return m.liveSolids[bit]
}

// Region returns the prepared region with the given bit.  An out-of-range
// bit panics.
func (m *Model) Region(bit int) *Region {
	if bit < 0 || bit >= len(m.liveRegions) {
		panic(fmt.Sprintf("model: region bit %d out of range [0, %d)", bit, len(m.liveRegions)))
	}
	return m.liveRegions[bit]
}

func (m *Model) Bounds() aabox.AABox {
	return m.bounds
}

func (m *Model) CutTree() *cuttree.Tree {
	return m.cut
}

func (m *Model) Failures() []*PrepError {
	return m.failures
}

func (m *Model) Stats() PrepStats {
	return m.stats
}
