// Package cuttree is the spatial index used to limit which solids a ray is
// tested against.  It is an axis-aligned binary space partition whose leaves
// list every solid whose bounding box touches the leaf.
package cuttree

import (
	"math"
	"sort"

	"csgtrace/rtkernel/aabox"
	"csgtrace/rtkernel/ray"

	"gonum.org/v1/gonum/stat"
)

type Element struct {
	// A handle back into some other storage array.
	Ref int

	// The bounds of this element.
	Bounds aabox.AABox
}

type Options struct {
	// CutLen is the number of elements a leaf may hold before it is split.
	CutLen int
	// CutDepth bounds the depth of the tree.
	CutDepth int
}

func DefaultOptions() Options {
	return Options{
		CutLen:   3,
		CutDepth: 32,
	}
}

// Node is either a cut (Lo and Hi set) or a leaf (Elements set, possibly
// empty).
type Node struct {
	Bounds aabox.AABox
	Depth  int

	Axis int
	Cut  float64
	Lo   *Node
	Hi   *Node

	Elements []int
}

func (n *Node) IsLeaf() bool {
	return n.Lo == nil
}

type Tree struct {
	Root *Node

	// Infinite holds the refs of elements with unbounded extent.  They are
	// never placed in the tree and must be tested by every ray.
	Infinite []int

	Stats Stats
}

// Build constructs a tree covering bounds.  Elements with non-finite bounds
// go to the infinite list.
func Build(elements []Element, bounds aabox.AABox, opts Options) *Tree {
	if opts.CutLen < 1 {
		opts.CutLen = 1
	}

	tree := &Tree{}
	boxes := map[int]aabox.AABox{}
	var finite []int
	for _, e := range elements {
		if !e.Bounds.IsFinite() {
			tree.Infinite = append(tree.Infinite, e.Ref)
			continue
		}
		finite = append(finite, e.Ref)
		boxes[e.Ref] = e.Bounds
	}

	tree.Root = &Node{
		Bounds:   bounds,
		Elements: finite,
	}

	workStack := []*Node{tree.Root}
	for len(workStack) != 0 {
		cur := workStack[len(workStack)-1]
		workStack = workStack[:len(workStack)-1]

		if len(cur.Elements) <= opts.CutLen || cur.Depth >= opts.CutDepth {
			continue
		}
		if !cur.split(boxes) {
			continue
		}
		workStack = append(workStack, cur.Lo, cur.Hi)
	}

	tree.Stats = collectStats(tree)
	return tree
}

// split tries every element box edge inside the node as a cut plane and
// keeps the one with the lowest surface-area cost.  It reports false when no
// cut is cheaper than leaving the node whole.
func (cur *Node) split(boxes map[int]aabox.AABox) bool {
	bestCost := math.Inf(1)
	bestAxis := -1
	bestCut := 0.0

	n := len(cur.Elements)
	for axis := 0; axis < 3; axis++ {
		extent := cur.Bounds.Axis(axis)
		if extent.Hi <= extent.Lo {
			continue
		}

		var candidates []float64
		for _, ref := range cur.Elements {
			b := boxes[ref]
			s := b.Axis(axis)
			candidates = append(candidates, s.Lo, s.Hi)
		}
		sort.Float64s(candidates)

		for i, cut := range candidates {
			if i > 0 && candidates[i-1] == cut {
				continue
			}
			if cut <= extent.Lo || cut >= extent.Hi {
				continue
			}
			lo, hi := partition(cur.Elements, boxes, axis, cut)
			if len(lo) == n && len(hi) == n {
				continue
			}

			loBox, hiBox := cur.Bounds, cur.Bounds
			loBox.Axis(axis).Hi = cut
			hiBox.Axis(axis).Lo = cut
			cost := float64(len(lo))*loBox.SurfaceArea() + float64(len(hi))*hiBox.SurfaceArea()
			if cost < bestCost {
				bestCost = cost
				bestAxis = axis
				bestCut = cut
			}
		}
	}

	if bestAxis == -1 {
		return false
	}

	// Splitting has to beat testing everything in this node.
	if bestCost >= float64(n)*cur.Bounds.SurfaceArea() {
		return false
	}

	lo, hi := partition(cur.Elements, boxes, bestAxis, bestCut)

	loBox, hiBox := cur.Bounds, cur.Bounds
	loBox.Axis(bestAxis).Hi = bestCut
	hiBox.Axis(bestAxis).Lo = bestCut

	cur.Axis = bestAxis
	cur.Cut = bestCut
	cur.Lo = &Node{Bounds: loBox, Depth: cur.Depth + 1, Elements: lo}
	cur.Hi = &Node{Bounds: hiBox, Depth: cur.Depth + 1, Elements: hi}

	// All of cur's elements have been divided among its children.
	cur.Elements = nil
	return true
}

// partition divides refs by a cut plane.  Elements touching the plane go to
// both sides.
func partition(refs []int, boxes map[int]aabox.AABox, axis int, cut float64) (lo, hi []int) {
	for _, ref := range refs {
		b := boxes[ref]
		s := b.Axis(axis)
		if s.Lo <= cut {
			lo = append(lo, ref)
		}
		if s.Hi >= cut {
			hi = append(hi, ref)
		}
	}
	return lo, hi
}

type frame struct {
	node *Node
	span ray.Span
}

// LeafVisitor is called with each leaf the ray passes through and the span of
// ray distances inside it.  Returning false stops the walk.
type LeafVisitor func(leaf *Node, span ray.Span) bool

// Walk visits every leaf that the line through r touches within span, in
// increasing distance along r.
func (t *Tree) Walk(r *ray.Ray, span ray.Span, visit LeafVisitor) {
	span = aabox.RayTestAABox(ray.RaySegment{TheRay: *r, TheSegment: span}, t.Root.Bounds)
	if span.IsNaN() {
		return
	}

	var stackBuf [64]frame
	workStack := append(stackBuf[:0], frame{t.Root, span})
	for len(workStack) != 0 {
		cur := workStack[len(workStack)-1]
		workStack = workStack[:len(workStack)-1]

		if cur.node.IsLeaf() {
			if !visit(cur.node, cur.span) {
				return
			}
			continue
		}

		node := cur.node
		p := r.Point[node.Axis]
		d := r.Slope[node.Axis]

		if d == 0 {
			// Parallel to the cut.  On the plane itself, both sides touch.
			switch {
			case p < node.Cut:
				workStack = append(workStack, frame{node.Lo, cur.span})
			case p > node.Cut:
				workStack = append(workStack, frame{node.Hi, cur.span})
			default:
				workStack = append(workStack, frame{node.Hi, cur.span}, frame{node.Lo, cur.span})
			}
			continue
		}

		near, far := node.Lo, node.Hi
		if d < 0 {
			near, far = far, near
		}
		tCut := (node.Cut - p) / d

		// Push far first so that near is visited first.
		switch {
		case tCut < cur.span.Lo:
			workStack = append(workStack, frame{far, cur.span})
		case tCut > cur.span.Hi:
			workStack = append(workStack, frame{near, cur.span})
		default:
			workStack = append(workStack,
				frame{far, ray.Span{tCut, cur.span.Hi}},
				frame{near, ray.Span{cur.span.Lo, tCut}},
			)
		}
	}
}

// Stats summarizes the shape of a tree for diagnostics.
type Stats struct {
	Nodes         int
	Leaves        int
	EmptyLeaves   int
	MaxDepth      int
	MeanDepth     float64
	MeanOccupancy float64
	StdOccupancy  float64

	// Occupancy[i] is the number of leaves holding i elements.
	Occupancy []int

	// DepthHistogram[i] is the number of leaves at depth i.
	DepthHistogram []int

	Infinite int
}

func collectStats(t *Tree) Stats {
	st := Stats{Infinite: len(t.Infinite)}

	var depths, occupancy []float64
	workStack := []*Node{t.Root}
	for len(workStack) != 0 {
		cur := workStack[len(workStack)-1]
		workStack = workStack[:len(workStack)-1]
		st.Nodes++

		if !cur.IsLeaf() {
			workStack = append(workStack, cur.Lo, cur.Hi)
			continue
		}

		st.Leaves++
		n := len(cur.Elements)
		if n == 0 {
			st.EmptyLeaves++
		}
		if cur.Depth > st.MaxDepth {
			st.MaxDepth = cur.Depth
		}
		for len(st.Occupancy) <= n {
			st.Occupancy = append(st.Occupancy, 0)
		}
		st.Occupancy[n]++
		for len(st.DepthHistogram) <= cur.Depth {
			st.DepthHistogram = append(st.DepthHistogram, 0)
		}
		st.DepthHistogram[cur.Depth]++

		depths = append(depths, float64(cur.Depth))
		occupancy = append(occupancy, float64(n))
	}

	st.MeanDepth = stat.Mean(depths, nil)
	st.MeanOccupancy, st.StdOccupancy = stat.MeanStdDev(occupancy, nil)
	if st.Leaves < 2 {
		st.StdOccupancy = 0
	}
	return st
}
