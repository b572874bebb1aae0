// Package shoot fires single rays at a prepared model.
package shoot

import (
	"math"

	"csgtrace/rtkernel/aabox"
	"csgtrace/rtkernel/booleval"
	"csgtrace/rtkernel/cuttree"
	"csgtrace/rtkernel/model"
	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/raytrace"
	"csgtrace/rtkernel/resource"
	"csgtrace/rtkernel/vmath/vec3"
	"csgtrace/rtkernel/weave"

	"github.com/bits-and-blooms/bitset"
	"github.com/golang/glog"
)

// HitFunc receives the evaluated partitions of a ray that hit something.  The
// partitions go back to the pool when it returns, so it must not retain
// them.  Its result is the result of the shot.
type HitFunc func(parts raytrace.PartitionList, m *model.Model) int

// MissFunc is called for a ray with no partitions.
type MissFunc func() int

// Application describes what to do with each ray.  One Application may be
// shared by all workers; every per-ray value lives in the worker's pool.
type Application struct {
	Model *model.Model

	// OneHit stops the walk as soon as the first partition is known.  Only
	// that partition is reported.
	OneHit bool

	OnHit     HitFunc
	OnMiss    MissFunc
	OnOverlap booleval.OverlapHandler

	eval *booleval.Evaluator
}

type ApplicationOpt func(*Application)

func WithOneHit(oneHit bool) ApplicationOpt {
	return func(a *Application) {
		a.OneHit = oneHit
	}
}

func WithPolicy(p booleval.OverlapPolicy) ApplicationOpt {
	return func(a *Application) {
		a.eval = booleval.New(a.Model, p)
	}
}

func WithOverlapHandler(h booleval.OverlapHandler) ApplicationOpt {
	return func(a *Application) {
		a.OnOverlap = h
	}
}

// NewApplication returns an application shooting at m, which must be
// prepared.
func NewApplication(m *model.Model, onHit HitFunc, onMiss MissFunc, opts ...ApplicationOpt) *Application {
	a := &Application{
		Model:  m,
		OnHit:  onHit,
		OnMiss: onMiss,
		eval:   booleval.New(m, nil),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ShootRay fires one ray from origin along dir with a default application.
func ShootRay(m *model.Model, origin, dir vec3.T, pool *resource.Pool, onHit HitFunc, onMiss MissFunc, onOverlap booleval.OverlapHandler) int {
	a := NewApplication(m, onHit, onMiss, WithOverlapHandler(onOverlap))
	return a.Shoot(origin, dir, pool)
}

// Shoot fires one ray from origin along dir.  dir need not be unit length,
// but must not be zero.  pool must belong to the calling worker.
func (a *Application) Shoot(origin, dir vec3.T, pool *resource.Pool) int {
	pool.Acquire()
	defer pool.Release()

	m := a.Model
	if !m.Prepped() {
		panic("shoot: model is not prepared")
	}

	c := &pool.Counters
	c.Rays++

	l := dir.Norm()
	if l == 0 || math.IsNaN(l) {
		glog.Warningf("Ray from %v has no direction; treating it as a miss", origin)
		c.Misses++
		return a.miss()
	}
	r := ray.Ray{Point: origin, Slope: vec3.DivVS(dir, l)}

	s := &shot{
		app:    a,
		r:      &r,
		pool:   pool,
		segs:   pool.Segments(),
		hits:   pool.Hits(),
		tested: pool.BitSet(),
	}
	defer s.release()

	cut := m.CutTree()
	for _, ref := range cut.Infinite {
		s.shootSolid(m.Solid(ref))
	}

	span := aabox.RayTestAABox(ray.RaySegment{TheRay: r, TheSegment: ray.Span{Lo: 0, Hi: math.Inf(1)}}, m.Bounds())
	if span.IsNaN() {
		if len(s.segs) == 0 {
			c.ModelMisses++
			c.Misses++
			return a.miss()
		}
	} else {
		cut.Walk(&r, span, s.visitLeaf)
	}

	if !s.done {
		s.evaluate()
		if a.OneHit && len(s.parts) > 1 {
			s.truncate()
		}
	}
	if len(s.parts) == 0 {
		c.Misses++
		return a.miss()
	}
	if a.OneHit {
		s.flushOverlaps()
	}

	c.Hits++
	c.Partitions += int64(len(s.parts))
	if a.OnHit == nil {
		return 1
	}
	return a.OnHit(s.parts, m)
}

func (a *Application) miss() int {
	if a.OnMiss == nil {
		return 0
	}
	return a.OnMiss()
}

// shot is the state of one ray in flight.
type shot struct {
	app  *Application
	r    *ray.Ray
	pool *resource.Pool

	segs   []raytrace.Segment
	hits   []ray.Seg
	tested *bitset.BitSet

	parts     raytrace.PartitionList
	evaluated bool
	done      bool

	// In one-hit mode the partitions are evaluated after every leaf, so
	// overlaps are held back until the final evaluation is known.
	pending []raytrace.Overlap
}

func (s *shot) shootSolid(sol *model.Solid) {
	c := &s.pool.Counters
	s.tested.Set(uint(sol.Bit))

	if !sol.Bounds.Infinite {
		if aabox.RayTestAABox(aabox.WholeLine(*s.r), sol.Bounds.Box).IsNaN() {
			return
		}
	}

	c.Shots++
	s.hits = sol.Specific.Shoot(s.r, s.hits[:0])
	if len(s.hits) == 0 {
		return
	}
	c.ShotHits++
	c.Segments += int64(len(s.hits))
	for _, h := range s.hits {
		s.segs = append(s.segs, raytrace.Segment{Seg: h, Solid: sol})
	}
}

func (s *shot) visitLeaf(leaf *cuttree.Node, span ray.Span) bool {
	s.pool.Counters.CutLeaves++
	before := len(s.segs)
	for _, ref := range leaf.Elements {
		if s.tested.Test(uint(ref)) {
			continue
		}
		s.shootSolid(s.app.Model.Solid(ref))
	}
	if !s.app.OneHit || len(s.segs) == 0 {
		return true
	}

	// Everything before the leaf exit is now known.  If the first
	// partition ends before it, no later leaf can change it.
	if len(s.segs) != before || !s.evaluated {
		s.evaluate()
	}
	if len(s.parts) != 0 && s.parts[0].OutDist() < span.Hi {
		s.truncate()
		s.done = true
		return false
	}
	return true
}

func (s *shot) evaluate() {
	s.pool.PutPartitions(s.parts)
	s.parts = weave.Weave(s.segs, s.app.Model.Tol(), s.pool, s.parts[:0])
	if !s.app.OneHit {
		s.parts = s.app.eval.Evaluate(s.r, s.parts, s.pool, s.app.OnOverlap)
		s.evaluated = true
		return
	}

	counted := s.pool.Counters.Overlaps
	s.pending = s.pending[:0]
	s.parts = s.app.eval.Evaluate(s.r, s.parts, s.pool, func(o *raytrace.Overlap) {
		s.pending = append(s.pending, *o)
	})
	s.pool.Counters.Overlaps = counted
	s.evaluated = true
}

// flushOverlaps reports the held-back overlaps that fall in the one
// partition being delivered.
func (s *shot) flushOverlaps() {
	onOverlap := s.app.OnOverlap
	if onOverlap == nil {
		onOverlap = booleval.LogOverlap
	}
	end := s.parts[0].OutDist()
	for i := range s.pending {
		if s.pending[i].InDist >= end {
			continue
		}
		s.pool.Counters.Overlaps++
		onOverlap(&s.pending[i])
	}
}

func (s *shot) truncate() {
	for _, p := range s.parts[1:] {
		s.pool.PutPartition(p)
	}
	s.parts = s.parts[:1]
}

func (s *shot) release() {
	s.pool.PutPartitions(s.parts)
	s.pool.KeepSegments(s.segs)
	s.pool.KeepHits(s.hits)
	s.pool.PutBitSet(s.tested)
}
