package model

import (
	"context"
	"sync"
	"testing"

	"csgtrace/rtkernel/primitive"
	"csgtrace/rtkernel/vmath/vec3"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/xerrors"
)

func mustAddSolid(t *testing.T, m *Model, name string, p primitive.Params) *Solid {
	t.Helper()
	s, err := m.AddSolid(name, p)
	if err != nil {
		t.Fatalf("Unexpected error adding solid %q: %v", name, err)
	}
	return s
}

func mustAddRegion(t *testing.T, m *Model, name string, tree *Tree, opts ...RegionOpt) *Region {
	t.Helper()
	r, err := m.AddRegion(name, tree, opts...)
	if err != nil {
		t.Fatalf("Unexpected error adding region %q: %v", name, err)
	}
	return r
}

func twoBoxes(t *testing.T, opts ...Opt) *Model {
	t.Helper()
	m := New(opts...)
	mustAddSolid(t, m, "a", primitive.Box(vec3.T{0, 0, 0}, vec3.T{2, 2, 2}))
	mustAddSolid(t, m, "b", primitive.Box(vec3.T{1, 1, 1}, vec3.T{3, 3, 3}))
	return m
}

func TestPrepEmptyModel(t *testing.T) {
	m := New()
	if err := m.Prep(context.Background()); !xerrors.Is(err, ErrNoSolids) {
		t.Errorf("Prep of empty model got err %v, want ErrNoSolids", err)
	}
}

func TestAddRegionErrors(t *testing.T) {
	m := twoBoxes(t)
	if _, err := m.AddRegion("r", Union(Leaf("a"), Leaf("nope"))); !xerrors.Is(err, ErrUnknownSolid) {
		t.Errorf("Unknown leaf got err %v, want ErrUnknownSolid", err)
	}
	if _, err := m.AddSolid("a", &primitive.Sph{R: 1}); !xerrors.Is(err, ErrDuplicateName) {
		t.Errorf("Duplicate solid got err %v, want ErrDuplicateName", err)
	}
	mustAddRegion(t, m, "r", Leaf("a"))
	if _, err := m.AddRegion("r", Leaf("b")); !xerrors.Is(err, ErrDuplicateName) {
		t.Errorf("Duplicate region got err %v, want ErrDuplicateName", err)
	}
}

func TestPrepAssignsBits(t *testing.T) {
	m := twoBoxes(t)
	ra := mustAddRegion(t, m, "ra", Leaf("a"))
	rab := mustAddRegion(t, m, "rab", Subtract(Leaf("a"), Leaf("b")), WithRegionID(7), WithMaterial(3))

	if err := m.Prep(context.Background()); err != nil {
		t.Fatalf("Unexpected error from Prep: %v", err)
	}

	if got, want := len(m.Solids()), 2; got != want {
		t.Fatalf("Got %d solids, want %d", got, want)
	}
	for i, s := range m.Solids() {
		if s.Bit != i || m.Solid(i) != s {
			t.Errorf("Solid %v has bit %d, want %d", s, s.Bit, i)
		}
	}
	if ra.Bit != 0 || rab.Bit != 1 {
		t.Errorf("Got region bits %d, %d, want 0, 1", ra.Bit, rab.Bit)
	}
	if rab.ID != 7 || rab.MaterialCode != 3 {
		t.Errorf("Region options not applied: %+v", rab)
	}

	a, _ := m.SolidByName("a")
	b, _ := m.SolidByName("b")
	if !a.Regions.Test(0) || !a.Regions.Test(1) || a.Regions.Count() != 2 {
		t.Errorf("Solid a regions got %v, want {0 1}", a.Regions)
	}
	if b.Regions.Test(0) || !b.Regions.Test(1) {
		t.Errorf("Solid b regions got %v, want {1}", b.Regions)
	}

	wantProg := []Instr{{Op: OpSolid, Bit: 0}, {Op: OpSolid, Bit: 1}, {Op: OpSubtract}}
	if diff := cmp.Diff(rab.Postfix, wantProg); diff != "" {
		t.Errorf("Bad postfix; diff (-got +want)\n%s", diff)
	}

	bounds := m.Bounds()
	if diff := cmp.Diff(bounds.Min(), vec3.T{-1, -1, -1}); diff != "" {
		t.Errorf("Bad bounds min; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(bounds.Max(), vec3.T{4, 4, 4}); diff != "" {
		t.Errorf("Bad bounds max; diff (-got +want)\n%s", diff)
	}

	if m.CutTree() == nil {
		t.Fatalf("No cut tree after Prep")
	}
	if got := m.Stats(); got.Solids != 2 || got.Regions != 2 || got.FailedSolids != 0 {
		t.Errorf("Bad stats %+v", got)
	}
}

func TestPrepDropsFailedSolids(t *testing.T) {
	m := twoBoxes(t)
	mustAddSolid(t, m, "flat", &primitive.Sph{V: vec3.T{0, 0, 0}, R: 0})
	mustAddRegion(t, m, "u", Union(Leaf("a"), Leaf("flat")))
	mustAddRegion(t, m, "i", Intersect(Leaf("b"), Leaf("flat")))

	if err := m.Prep(context.Background()); err != nil {
		t.Fatalf("Unexpected error from Prep: %v", err)
	}

	failures := m.Failures()
	if len(failures) != 1 || failures[0].Solid != "flat" || failures[0].Kind != primitive.KindSph {
		t.Fatalf("Got failures %v, want just flat", failures)
	}
	if !xerrors.Is(failures[0], primitive.ErrDegenerate) {
		t.Errorf("Failure %v does not wrap ErrDegenerate", failures[0])
	}

	// The union survives as plain "a"; the intersection is empty and goes.
	regions := m.Regions()
	if len(regions) != 1 || regions[0].Name != "u" {
		t.Fatalf("Got regions %v, want [u]", regions)
	}
	if diff := cmp.Diff(regions[0].Postfix, []Instr{{Op: OpSolid, Bit: 0}}); diff != "" {
		t.Errorf("Bad postfix; diff (-got +want)\n%s", diff)
	}

	// b is prepared but used by no region, so it is not indexed.
	if got := m.CutTree().Stats.Occupancy; len(got) > 2 {
		t.Errorf("Cut tree holds more than one solid per leaf: %v", got)
	}
}

func TestPrepAllFailed(t *testing.T) {
	m := New()
	mustAddSolid(t, m, "flat", &primitive.Sph{R: 0})
	if err := m.Prep(context.Background()); !xerrors.Is(err, ErrNoSolids) {
		t.Errorf("Got err %v, want ErrNoSolids", err)
	}
}

func TestHalfSpaceOnlyBounds(t *testing.T) {
	m := New()
	mustAddSolid(t, m, "floor", &primitive.Half{N: vec3.T{0, 0, 1}, D: 0})
	mustAddRegion(t, m, "ground", Leaf("floor"))
	if err := m.Prep(context.Background()); err != nil {
		t.Fatalf("Unexpected error from Prep: %v", err)
	}
	bounds := m.Bounds()
	if !bounds.IsFinite() || bounds.IsEmpty() {
		t.Errorf("Got bounds %v, want a finite box", bounds)
	}
	if diff := cmp.Diff(m.CutTree().Infinite, []int{0}); diff != "" {
		t.Errorf("Bad infinite list; diff (-got +want)\n%s", diff)
	}
}

func TestSecondPrepAndReset(t *testing.T) {
	m := twoBoxes(t)
	mustAddRegion(t, m, "r", Union(Leaf("a"), Leaf("b")))
	ctx := context.Background()
	if err := m.Prep(ctx); err != nil {
		t.Fatalf("Unexpected error from Prep: %v", err)
	}
	tree := m.CutTree()
	if err := m.Prep(ctx); err != nil {
		t.Fatalf("Second Prep got err %v, want nil", err)
	}
	if m.CutTree() != tree {
		t.Errorf("Second Prep rebuilt the model")
	}

	if _, err := m.AddSolid("c", &primitive.Sph{R: 1}); !xerrors.Is(err, ErrPrepped) {
		t.Errorf("AddSolid after Prep got err %v, want ErrPrepped", err)
	}

	m.Reset()
	if m.Prepped() || m.CutTree() != nil || len(m.Solids()) != 0 {
		t.Errorf("Reset left prep products behind")
	}
	mustAddSolid(t, m, "c", &primitive.Sph{V: vec3.T{5, 5, 5}, R: 1})
	mustAddRegion(t, m, "rc", Leaf("c"))
	if err := m.Prep(ctx); err != nil {
		t.Fatalf("Prep after Reset got err %v", err)
	}
	if got, want := len(m.Regions()), 2; got != want {
		t.Errorf("Got %d regions after re-prep, want %d", got, want)
	}

	m.Cleanup()
	if _, ok := m.SolidByName("a"); ok {
		t.Errorf("Cleanup kept solid a")
	}
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	hits    int
}

func (c *memCache) Get(key []byte) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[string(key)]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *memCache) Put(key, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[string(key)] = value
	return nil
}

func TestPrepCache(t *testing.T) {
	cache := &memCache{entries: map[string][]byte{}}
	ctx := context.Background()

	first := twoBoxes(t, WithPrepCache(cache), WithPrepWorkers(1))
	mustAddRegion(t, first, "r", Leaf("a"))
	if err := first.Prep(ctx); err != nil {
		t.Fatalf("Unexpected error from Prep: %v", err)
	}
	if got, want := len(cache.entries), 2; got != want {
		t.Fatalf("Cache holds %d entries, want %d", got, want)
	}
	if cache.hits != 0 {
		t.Errorf("Cold cache reported %d hits", cache.hits)
	}

	second := twoBoxes(t, WithPrepCache(cache))
	mustAddRegion(t, second, "r", Leaf("a"))
	if err := second.Prep(ctx); err != nil {
		t.Fatalf("Unexpected error from Prep: %v", err)
	}
	if cache.hits != 2 {
		t.Errorf("Warm cache got %d hits, want 2", cache.hits)
	}
	if diff := cmp.Diff(second.Bounds(), first.Bounds()); diff != "" {
		t.Errorf("Cached prep changed bounds; diff (-got +want)\n%s", diff)
	}
}
