package resource

import (
	"testing"

	"csgtrace/rtkernel/raytrace"
)

func TestPoolReusesPartitions(t *testing.T) {
	p := NewPool(0, nil)

	first := p.Partition()
	first.Solids.Set(5)
	first.InHit.Dist = 3
	p.PutPartition(first)

	second := p.Partition()
	if second != first {
		t.Errorf("Pool allocated a new partition instead of reusing the freed one")
	}
	if second.InHit.Dist != 0 || second.Solids.Any() {
		t.Errorf("Reused partition was not cleared: %v %v", second, second.Solids)
	}
	if got := p.Counters; got.PartitionAllocs != 1 || got.PartitionReuses != 1 {
		t.Errorf("Got allocs=%d reuses=%d, want 1 and 1", got.PartitionAllocs, got.PartitionReuses)
	}
}

func TestPoolAcquireGuard(t *testing.T) {
	p := NewPool(3, nil)
	p.Acquire()
	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("Second Acquire did not panic")
			}
		}()
		p.Acquire()
	}()
	p.Release()
	if p.InUse() {
		t.Errorf("Pool still in use after Release")
	}

	defer func() {
		if recover() == nil {
			t.Errorf("Release of idle pool did not panic")
		}
	}()
	p.Release()
}

func TestSharedOverflow(t *testing.T) {
	shared := NewShared()

	a := NewPool(0, shared)
	var l raytrace.PartitionList
	for i := 0; i < 10; i++ {
		l = append(l, a.Partition())
	}
	a.PutPartitions(l)
	a.Close()

	parts, sets := shared.Len()
	if parts != 10 || sets != 10 {
		t.Fatalf("Shared list got %d partitions and %d sets, want 10 and 10", parts, sets)
	}

	b := NewPool(1, shared)
	pt := b.Partition()
	if pt.Solids == nil {
		t.Fatalf("Partition taken from shared list has no bit set")
	}
	if b.Counters.PartitionAllocs != 0 || b.Counters.SharedTakes == 0 {
		t.Errorf("Worker 1 did not draw from the shared list: %+v", b.Counters)
	}
	if parts, _ := shared.Len(); parts != 0 {
		t.Errorf("Shared list still holds %d partitions", parts)
	}
}

func TestScratchBuffersKeepCapacity(t *testing.T) {
	p := NewPool(0, nil)
	segs := p.Segments()
	for i := 0; i < 8; i++ {
		segs = append(segs, raytrace.Segment{})
	}
	p.KeepSegments(segs)
	if got := p.Segments(); len(got) != 0 || cap(got) < 8 {
		t.Errorf("Segments got len %d cap %d, want 0 and at least 8", len(got), cap(got))
	}

	stack := append(p.EvalStack(), true, false)
	p.KeepEvalStack(stack)
	if got := p.EvalStack(); len(got) != 0 || cap(got) < 2 {
		t.Errorf("EvalStack got len %d cap %d", len(got), cap(got))
	}
}
