package model

import (
	"context"
	"fmt"
	"math"

	"csgtrace/rtkernel/aabox"
	"csgtrace/rtkernel/cuttree"
	"csgtrace/rtkernel/primitive"
	"csgtrace/rtkernel/vmath/vec3"

	"github.com/bits-and-blooms/bitset"
	"github.com/golang/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"
)

// PrepError reports a solid that failed preparation and was left out of the
// model.
type PrepError struct {
	Solid string
	Kind  primitive.Kind

	inner error
	frame xerrors.Frame
}

func newPrepError(s *Solid, inner error) *PrepError {
	return &PrepError{
		Solid: s.Name,
		Kind:  s.Kind(),
		inner: inner,
		frame: xerrors.Caller(1),
	}
}

func (e *PrepError) Error() string {
	return fmt.Sprintf("solid %q (%v) failed prep: %v", e.Solid, e.Kind, e.inner)
}

func (e *PrepError) Format(f fmt.State, c rune) { // implements fmt.Formatter
	xerrors.FormatError(e, f, c)
}

func (e *PrepError) FormatError(p xerrors.Printer) error { // implements xerrors.Formatter
	p.Print(fmt.Sprintf("solid %q (%v) failed prep", e.Solid, e.Kind))
	if p.Detail() {
		e.frame.Format(p)
	}
	return e.inner
}

func (e *PrepError) Unwrap() error {
	return e.inner
}

// Prep readies the model for shooting.  Solids that fail preparation are
// reported and left out; a model left with no solids is an error.  Calling
// Prep on a prepared model does nothing.
func (m *Model) Prep(ctx context.Context) error {
	tracer := otel.Tracer("csgtrace/rtkernel/model")
	var span trace.Span
	ctx, span = tracer.Start(ctx, "Model.Prep")
	defer span.End()

	if m.prepped {
		glog.Warningf("Model already prepared; ignoring second Prep.  Reset it first to prepare again.")
		return nil
	}
	if len(m.solids) == 0 {
		return ErrNoSolids
	}

	if err := m.prepSolids(ctx); err != nil {
		return xerrors.Errorf("while preparing solids: %w", err)
	}

	m.failures = nil
	var ok []*Solid
	for _, s := range m.solids {
		if s.Err != nil {
			pe := newPrepError(s, s.Err)
			glog.Warningf("%v", pe)
			m.failures = append(m.failures, pe)
			continue
		}
		ok = append(ok, s)
	}
	if len(ok) == 0 {
		glog.Errorf("All %d solids failed prep", len(m.solids))
		return xerrors.Errorf("all %d solids failed prep: %w", len(m.solids), ErrNoSolids)
	}

	for i, s := range ok {
		s.Bit = i
		s.Bounds = s.Specific.Bounds()
		s.Regions = bitset.New(0)
	}

	m.liveRegions = nil
	for _, r := range m.regions {
		r.prepTree = simplify(r.Tree)
		if r.prepTree == nil {
			glog.Warningf("Region %q has no surviving solids; dropping it", r.Name)
			r.Bit = -1
			continue
		}
		r.Bit = len(m.liveRegions)
		r.Postfix = compile(r.prepTree, nil)
		r.Solids = bitset.New(uint(len(ok)))
		leaves(r.prepTree, func(s *Solid) {
			r.Solids.Set(uint(s.Bit))
			s.Regions.Set(uint(r.Bit))
		})
		m.liveRegions = append(m.liveRegions, r)
	}
	if len(m.liveRegions) == 0 {
		glog.Warningf("Model has no regions; every ray will miss")
	}

	m.liveSolids = ok
	m.buildCutTree(ctx)

	m.stats = PrepStats{
		Solids:       len(ok),
		FailedSolids: len(m.failures),
		Regions:      len(m.liveRegions),
		Cut:          m.cut.Stats,
	}
	cs := m.stats.Cut
	glog.Infof("Prepared %d solids (%d failed) and %d regions", m.stats.Solids, m.stats.FailedSolids, m.stats.Regions)
	glog.Infof("Model bounds %v..%v", m.bounds.Min(), m.bounds.Max())
	glog.Infof("Cut tree: %d nodes, %d leaves (%d empty), depth max %d mean %.2f, occupancy mean %.2f stddev %.2f, %d infinite solids",
		cs.Nodes, cs.Leaves, cs.EmptyLeaves, cs.MaxDepth, cs.MeanDepth, cs.MeanOccupancy, cs.StdOccupancy, cs.Infinite)
	for n, c := range cs.Occupancy {
		if c != 0 {
			glog.V(1).Infof("  %d leaves hold %d solids", c, n)
		}
	}

	m.prepped = true
	return nil
}

// prepSolids runs each solid's prep concurrently.  Failures are recorded on
// the solid; only context cancellation is returned.
func (m *Model) prepSolids(ctx context.Context) error {
	workers := m.opts.PrepWorkers
	if workers < 1 {
		workers = 1
	}

	eg, egCtx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(workers))
	for _, s := range m.solids {
		if err := sem.Acquire(egCtx, 1); err != nil {
			break
		}
		s := s
		eg.Go(func() error {
			defer sem.Release(1)
			s.Specific, s.Err = m.prepSolid(s)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("while waiting for solid prep: %w", err)
	}
	return ctx.Err()
}

func (m *Model) prepSolid(s *Solid) (primitive.Specific, error) {
	ft, err := primitive.Lookup(s.Kind())
	if err != nil {
		return nil, err
	}

	cacheable, isCacheable := s.Params.(primitive.Cacheable)
	useCache := m.opts.Cache != nil && isCacheable && ft.Encode != nil && ft.Decode != nil

	if useCache {
		key := cacheable.CacheKey()
		payload, found, err := m.opts.Cache.Get(key)
		if err != nil {
			glog.Warningf("Prep cache lookup for %v failed: %v", s, err)
		} else if found {
			sp, err := ft.Decode(s.Params, m.opts.Tol, payload)
			if err == nil {
				return sp, nil
			}
			glog.Warningf("Discarding unreadable prep cache entry for %v: %v", s, err)
		}
	}

	sp, err := ft.Prep(s.Params, m.opts.Tol)
	if err != nil {
		return nil, err
	}

	if useCache {
		payload, err := ft.Encode(sp)
		if err == nil {
			err = m.opts.Cache.Put(cacheable.CacheKey(), payload)
		}
		if err != nil {
			glog.Warningf("Prep cache store for %v failed: %v", s, err)
		}
	}
	return sp, nil
}

func (m *Model) buildCutTree(ctx context.Context) {
	tracer := otel.Tracer("csgtrace/rtkernel/model")
	_, span := tracer.Start(ctx, "Model.buildCutTree")
	defer span.End()

	bounds := aabox.AccumZeroAABox()
	var elements []cuttree.Element
	for _, s := range m.liveSolids {
		if s.Regions.None() {
			glog.V(1).Infof("Solid %v is not used by any region; not shooting it", s)
			continue
		}
		elements = append(elements, cuttree.Element{Ref: s.Bit, Bounds: s.Bounds.Box})
		if !s.Bounds.Infinite {
			bounds = aabox.MinContainingAABox(bounds, s.Bounds.Box)
		}
	}

	if bounds.IsEmpty() {
		glog.Infof("All solids are half-spaces; using a unit model box")
		bounds = aabox.FromPoints(vec3.T{-1, -1, -1}, vec3.T{1, 1, 1})
	}

	// Enlarge the box slightly so no face lies exactly on its edge.
	for axis := 0; axis < 3; axis++ {
		s := bounds.Axis(axis)
		s.Lo = math.Floor(s.Lo - m.opts.Tol.Dist)
		s.Hi = math.Ceil(s.Hi + m.opts.Tol.Dist)
	}
	m.bounds = bounds

	m.cut = cuttree.Build(elements, bounds, m.opts.Cut)
}

// Reset discards everything Prep built, so that solids and regions may be
// added and the model prepared again.
func (m *Model) Reset() {
	for _, s := range m.solids {
		if s.Specific != nil {
			s.Specific.Free()
		}
		s.Specific = nil
		s.Err = nil
		s.Bit = -1
		s.Regions = nil
		s.Bounds = primitive.Bounds{}
	}
	for _, r := range m.regions {
		r.Bit = -1
		r.Solids = nil
		r.Postfix = nil
		r.prepTree = nil
	}
	m.liveSolids = nil
	m.liveRegions = nil
	m.failures = nil
	m.cut = nil
	m.bounds = aabox.AABox{}
	m.stats = PrepStats{}
	m.prepped = false
}

// Cleanup releases the prepared model and every solid and region in it.
func (m *Model) Cleanup() {
	m.Reset()
	m.solids = nil
	m.regions = nil
	m.byName = map[string]*Solid{}
}
