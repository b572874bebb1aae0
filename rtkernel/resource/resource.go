// Package resource provides the per-worker pools that every per-ray
// allocation comes from.  A Pool belongs to exactly one worker; the Shared
// overflow list is the only structure workers contend on.
package resource

import (
	"fmt"
	"sync"
	"sync/atomic"

	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/raytrace"
	"csgtrace/rtkernel/telemetry"

	"github.com/bits-and-blooms/bitset"
)

// Free lists longer than maxLocalFree spill half their items to the shared
// list.  Workers take sharedBatch items at a time when their own list runs
// dry.
const (
	maxLocalFree = 4096
	sharedBatch  = 64
)

// Shared is the process-wide overflow list.
type Shared struct {
	mu    sync.Mutex
	parts []*raytrace.Partition
	sets  []*bitset.BitSet
}

func NewShared() *Shared {
	return &Shared{}
}

func (s *Shared) takeParts(n int) []*raytrace.Partition {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.parts) {
		n = len(s.parts)
	}
	out := append([]*raytrace.Partition(nil), s.parts[len(s.parts)-n:]...)
	s.parts = s.parts[:len(s.parts)-n]
	return out
}

func (s *Shared) takeSets(n int) []*bitset.BitSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.sets) {
		n = len(s.sets)
	}
	out := append([]*bitset.BitSet(nil), s.sets[len(s.sets)-n:]...)
	s.sets = s.sets[:len(s.sets)-n]
	return out
}

func (s *Shared) give(parts []*raytrace.Partition, sets []*bitset.BitSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parts = append(s.parts, parts...)
	s.sets = append(s.sets, sets...)
}

// Len reports how many partitions and bit sets the list holds.
func (s *Shared) Len() (parts, sets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.parts), len(s.sets)
}

type Pool struct {
	Worker int

	// Counters are this worker's telemetry.  They are only touched by the
	// worker holding the pool.
	Counters telemetry.Counters

	inUse  int32
	shared *Shared

	parts []*raytrace.Partition
	sets  []*bitset.BitSet

	segs  []raytrace.Segment
	hits  []ray.Seg
	stack []bool
}

// NewPool returns worker's pool.  shared may be nil, in which case an
// exhausted pool always allocates.
func NewPool(worker int, shared *Shared) *Pool {
	return &Pool{
		Worker: worker,
		shared: shared,
	}
}

// Acquire marks the pool in use for the duration of one ray.  A pool that is
// already in use is being shared between workers, which is a defect.
func (p *Pool) Acquire() {
	if !atomic.CompareAndSwapInt32(&p.inUse, 0, 1) {
		panic(fmt.Sprintf("resource: pool of worker %d used by two workers at once", p.Worker))
	}
}

func (p *Pool) Release() {
	if !atomic.CompareAndSwapInt32(&p.inUse, 1, 0) {
		panic(fmt.Sprintf("resource: pool of worker %d released while not in use", p.Worker))
	}
}

func (p *Pool) InUse() bool {
	return atomic.LoadInt32(&p.inUse) != 0
}

// BitSet returns a cleared bit set.
func (p *Pool) BitSet() *bitset.BitSet {
	if len(p.sets) == 0 && p.shared != nil {
		p.sets = append(p.sets, p.shared.takeSets(sharedBatch)...)
		if len(p.sets) != 0 {
			p.Counters.SharedTakes++
		}
	}
	if n := len(p.sets); n != 0 {
		b := p.sets[n-1]
		p.sets = p.sets[:n-1]
		p.Counters.BitSetReuses++
		return b.ClearAll()
	}
	p.Counters.BitSetAllocs++
	return bitset.New(0)
}

func (p *Pool) PutBitSet(b *bitset.BitSet) {
	if b == nil {
		return
	}
	p.sets = append(p.sets, b)
	p.spill()
}

// Partition returns a zeroed partition with an empty Solids set.
func (p *Pool) Partition() *raytrace.Partition {
	if len(p.parts) == 0 && p.shared != nil {
		p.parts = append(p.parts, p.shared.takeParts(sharedBatch)...)
		if len(p.parts) != 0 {
			p.Counters.SharedTakes++
		}
	}
	var pt *raytrace.Partition
	if n := len(p.parts); n != 0 {
		pt = p.parts[n-1]
		p.parts = p.parts[:n-1]
		p.Counters.PartitionReuses++
	} else {
		pt = &raytrace.Partition{}
		p.Counters.PartitionAllocs++
	}
	*pt = raytrace.Partition{Solids: p.BitSet()}
	return pt
}

func (p *Pool) PutPartition(pt *raytrace.Partition) {
	p.PutBitSet(pt.Solids)
	*pt = raytrace.Partition{}
	p.parts = append(p.parts, pt)
	p.spill()
}

func (p *Pool) PutPartitions(l raytrace.PartitionList) {
	for _, pt := range l {
		p.PutPartition(pt)
	}
}

func (p *Pool) spill() {
	if p.shared == nil || (len(p.parts) <= maxLocalFree && len(p.sets) <= maxLocalFree) {
		return
	}
	var parts []*raytrace.Partition
	var sets []*bitset.BitSet
	if len(p.parts) > maxLocalFree {
		keep := len(p.parts) / 2
		parts = append(parts, p.parts[keep:]...)
		p.parts = p.parts[:keep]
	}
	if len(p.sets) > maxLocalFree {
		keep := len(p.sets) / 2
		sets = append(sets, p.sets[keep:]...)
		p.sets = p.sets[:keep]
	}
	p.shared.give(parts, sets)
	p.Counters.SharedGives++
}

// Segments returns the empty segment scratch buffer.  Callers hand the
// grown buffer back with KeepSegments.
func (p *Pool) Segments() []raytrace.Segment {
	return p.segs[:0]
}

func (p *Pool) KeepSegments(s []raytrace.Segment) {
	p.segs = s[:0]
}

// Hits returns the empty primitive-hit scratch buffer.
func (p *Pool) Hits() []ray.Seg {
	return p.hits[:0]
}

func (p *Pool) KeepHits(h []ray.Seg) {
	p.hits = h[:0]
}

// EvalStack returns the empty boolean evaluation stack.
func (p *Pool) EvalStack() []bool {
	return p.stack[:0]
}

func (p *Pool) KeepEvalStack(s []bool) {
	p.stack = s[:0]
}

// Free reports how many partitions and bit sets the pool holds for reuse.
func (p *Pool) Free() (parts, sets int) {
	return len(p.parts), len(p.sets)
}

// Close gives everything the pool holds to the shared list.
func (p *Pool) Close() {
	if p.InUse() {
		panic(fmt.Sprintf("resource: pool of worker %d closed while in use", p.Worker))
	}
	if p.shared != nil {
		p.shared.give(p.parts, p.sets)
	}
	p.parts = nil
	p.sets = nil
	p.segs = nil
	p.hits = nil
	p.stack = nil
}
