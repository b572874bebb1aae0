// Package weave merges the segments of every solid a ray hit into one ordered
// list of non-overlapping partitions.
package weave

import (
	"math"
	"sort"

	"csgtrace/rtkernel/primitive"
	"csgtrace/rtkernel/raytrace"
	"csgtrace/rtkernel/resource"

	"github.com/golang/glog"
)

type event struct {
	dist float64
	exit bool
	seg  int
}

// A boundary is a run of events within tolerance of each other.  All of its
// exits happen before any of its entries.
type boundary struct {
	dist    float64
	exits   []int
	entries []int
}

// Weave sweeps the segments and appends one partition to out for every span
// over which the set of solids the ray is inside is non-empty and unchanged.
// Boundaries closer than tol.Dist are one boundary, so no partition is
// narrower than that.  Segments that are inverted, or that collapse to a
// single boundary, are discarded.
func Weave(segs []raytrace.Segment, tol primitive.Tol, pool *resource.Pool, out raytrace.PartitionList) raytrace.PartitionList {
	events := make([]event, 0, 2*len(segs))
	for i := range segs {
		in, o := segs[i].In.Dist, segs[i].Out.Dist
		if math.IsNaN(in) || math.IsNaN(o) || in > o {
			glog.V(2).Infof("Discarding malformed segment %v", &segs[i])
			continue
		}
		events = append(events, event{dist: in, seg: i}, event{dist: o, exit: true, seg: i})
	}
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		if a.exit != b.exit {
			return a.exit
		}
		return a.seg < b.seg
	})

	// Group the events, then drop segments that begin and end in the same
	// group.
	group := make([]int, len(events))
	inGroup := make([]int, len(segs))
	outGroup := make([]int, len(segs))
	var starts []float64
	g := -1
	for i, e := range events {
		if g < 0 || !(e.dist <= starts[g]+tol.Dist) {
			g++
			starts = append(starts, e.dist)
		}
		group[i] = g
		if e.exit {
			outGroup[e.seg] = g
		} else {
			inGroup[e.seg] = g
		}
	}
	dead := func(seg int) bool {
		return inGroup[seg] == outGroup[seg]
	}

	var bounds []boundary
	last := -1
	for i, e := range events {
		if dead(e.seg) {
			continue
		}
		if group[i] != last {
			bounds = append(bounds, boundary{dist: starts[group[i]]})
			last = group[i]
		}
		b := &bounds[len(bounds)-1]
		if e.exit {
			b.exits = append(b.exits, e.seg)
		} else {
			b.entries = append(b.entries, e.seg)
		}
	}

	active := map[int]bool{}
	for i := range bounds {
		b := &bounds[i]
		for _, s := range b.exits {
			delete(active, s)
		}
		for _, s := range b.entries {
			active[s] = true
		}
		if len(active) == 0 || i+1 == len(bounds) {
			continue
		}

		next := &bounds[i+1]
		pt := pool.Partition()
		for s := range active {
			pt.Solids.Set(uint(segs[s].Solid.Bit))
		}

		if len(b.entries) != 0 {
			s := &segs[b.entries[0]]
			pt.InHit, pt.InSolid = s.In, s.Solid
		} else {
			s := &segs[b.exits[0]]
			pt.InHit, pt.InSolid, pt.InFlip = s.Out, s.Solid, true
		}
		pt.InHit.Dist = b.dist

		if len(next.exits) != 0 {
			s := &segs[next.exits[0]]
			pt.OutHit, pt.OutSolid = s.Out, s.Solid
		} else {
			s := &segs[next.entries[0]]
			pt.OutHit, pt.OutSolid, pt.OutFlip = s.In, s.Solid, true
		}
		pt.OutHit.Dist = next.dist

		out = append(out, pt)
	}

	if glog.V(2) {
		glog.Infof("Wove %d segments into %d partitions: %v", len(segs), len(out), out)
	}
	return out
}

// Check reports whether l is sorted with every partition non-empty and no
// two partitions overlapping.
func Check(l raytrace.PartitionList) bool {
	prev := math.Inf(-1)
	for _, p := range l {
		if !(p.InDist() < p.OutDist()) || p.InDist() < prev {
			return false
		}
		prev = p.OutDist()
	}
	return true
}
