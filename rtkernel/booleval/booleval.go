// Package booleval decides which region owns each partition of a ray.
package booleval

import (
	"fmt"

	"csgtrace/rtkernel/model"
	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/raytrace"
	"csgtrace/rtkernel/resource"

	"github.com/bits-and-blooms/bitset"
	"github.com/golang/glog"
)

// Eval runs a region's compiled expression against the set of solids active
// in a partition.  stack is scratch space; the grown stack is returned for
// reuse.  A malformed program panics.
func Eval(prog []model.Instr, solids *bitset.BitSet, stack []bool) (bool, []bool) {
	stack = stack[:0]
	for _, in := range prog {
		if in.Op == model.OpSolid {
			stack = append(stack, solids.Test(uint(in.Bit)))
			continue
		}

		n := len(stack)
		if n < 2 {
			panic(fmt.Sprintf("booleval: %v with %d operands on the stack", in.Op, n))
		}
		l, r := stack[n-2], stack[n-1]
		var v bool
		switch in.Op {
		case model.OpUnion:
			v = l || r
		case model.OpIntersect:
			v = l && r
		case model.OpSubtract:
			v = l && !r
		default:
			panic(fmt.Sprintf("booleval: unexpected op %v in compiled expression", in.Op))
		}
		stack = stack[:n-1]
		stack[n-2] = v
	}
	if len(stack) != 1 {
		panic(fmt.Sprintf("booleval: expression left %d values on the stack", len(stack)))
	}
	return stack[0], stack
}

// OverlapPolicy picks which of several regions claiming the same partition
// keeps it.  Claimants are in increasing region bit order.
type OverlapPolicy interface {
	Choose(p *raytrace.Partition, claimants []*model.Region, m *model.Model) int
}

// PrecedencePolicy prefers a non-air region over air, then the region whose
// highest-precedence solid in the partition is highest.  Remaining ties go
// to the lowest region bit.
type PrecedencePolicy struct{}

func (PrecedencePolicy) Choose(p *raytrace.Partition, claimants []*model.Region, m *model.Model) int {
	best := 0
	bestPrec := maxPrecedence(p, claimants[0], m)
	for i := 1; i < len(claimants); i++ {
		c, b := claimants[i], claimants[best]
		prec := maxPrecedence(p, c, m)
		switch {
		case c.IsAir() != b.IsAir():
			if !c.IsAir() {
				best, bestPrec = i, prec
			}
		case prec > bestPrec:
			best, bestPrec = i, prec
		}
	}
	return best
}

// FirstPolicy always keeps the lowest region bit.
type FirstPolicy struct{}

func (FirstPolicy) Choose(p *raytrace.Partition, claimants []*model.Region, m *model.Model) int {
	return 0
}

func maxPrecedence(p *raytrace.Partition, r *model.Region, m *model.Model) int {
	first := true
	prec := 0
	for i, ok := p.Solids.NextSet(0); ok; i, ok = p.Solids.NextSet(i + 1) {
		if !r.Solids.Test(i) {
			continue
		}
		if s := m.Solid(int(i)); first || s.Precedence > prec {
			prec = s.Precedence
			first = false
		}
	}
	return prec
}

// contributor is the first solid of r active in p.
func contributor(p *raytrace.Partition, r *model.Region, m *model.Model) *model.Solid {
	for i, ok := p.Solids.NextSet(0); ok; i, ok = p.Solids.NextSet(i + 1) {
		if r.Solids.Test(i) {
			return m.Solid(int(i))
		}
	}
	// A region can claim a partition only through one of its solids.
	panic(fmt.Sprintf("booleval: region %v claims %v with none of its solids", r, p))
}

// OverlapHandler receives overlap reports.
type OverlapHandler func(o *raytrace.Overlap)

// LogOverlap is the default handler.
func LogOverlap(o *raytrace.Overlap) {
	glog.Warningf("%v on ray from %v dir %v", o, o.Ray.Point, o.Ray.Slope)
}

type Evaluator struct {
	model  *model.Model
	policy OverlapPolicy
}

// New returns an evaluator for the prepared model m.  A nil policy means
// PrecedencePolicy.
func New(m *model.Model, policy OverlapPolicy) *Evaluator {
	if policy == nil {
		policy = PrecedencePolicy{}
	}
	return &Evaluator{
		model:  m,
		policy: policy,
	}
}

// Evaluate assigns a region to every partition, in place.  Partitions no
// region claims are released to the pool, as are partitions lying wholly
// behind the ray origin.  Adjacent partitions of the same region are
// merged.  Overlaps wider than the model's distance tolerance go to
// onOverlap, or are logged if it is nil, after every partition has been
// assigned.
func (e *Evaluator) Evaluate(r *ray.Ray, parts raytrace.PartitionList, pool *resource.Pool, onOverlap OverlapHandler) raytrace.PartitionList {
	if onOverlap == nil {
		onOverlap = LogOverlap
	}
	tol := e.model.Tol()

	candidates := pool.BitSet()
	stack := pool.EvalStack()
	var claimants []*model.Region
	// Overlaps are reported once per run of adjacent partitions claimed by
	// the same pair of regions.
	var runs []raytrace.Overlap

	kept := parts[:0]
	for _, p := range parts {
		candidates.ClearAll()
		for i, ok := p.Solids.NextSet(0); ok; i, ok = p.Solids.NextSet(i + 1) {
			candidates.InPlaceUnion(e.model.Solid(int(i)).Regions)
		}

		claimants = claimants[:0]
		for i, ok := candidates.NextSet(0); ok; i, ok = candidates.NextSet(i + 1) {
			reg := e.model.Region(int(i))
			var in bool
			in, stack = Eval(reg.Postfix, p.Solids, stack)
			if in {
				claimants = append(claimants, reg)
			}
		}

		switch len(claimants) {
		case 0:
			pool.PutPartition(p)
			continue
		case 1:
			p.Region = claimants[0]
		default:
			for _, c := range claimants[1:] {
				runs = e.extendRun(runs, r, p, claimants[0], c)
			}
			p.Region = claimants[e.policy.Choose(p, claimants, e.model)]
		}
		kept = append(kept, p)
	}
	pool.KeepEvalStack(stack)
	pool.PutBitSet(candidates)

	for i := range runs {
		if runs[i].OutDist-runs[i].InDist < tol.Dist {
			continue
		}
		pool.Counters.Overlaps++
		onOverlap(&runs[i])
	}

	return mergeAndClip(kept, pool)
}

// extendRun grows the overlap of r1 and r2 that ends where p begins, or
// starts a new one.  Partitions arrive in order, so a pair's run is always
// the last one recorded for it.
func (e *Evaluator) extendRun(runs []raytrace.Overlap, r *ray.Ray, p *raytrace.Partition, r1, r2 *model.Region) []raytrace.Overlap {
	for i := len(runs) - 1; i >= 0; i-- {
		o := &runs[i]
		if o.Region1 != r1 || o.Region2 != r2 {
			continue
		}
		if o.OutDist == p.InDist() {
			o.OutDist = p.OutDist()
			return runs
		}
		break
	}
	return append(runs, raytrace.Overlap{
		Ray:     *r,
		InDist:  p.InDist(),
		OutDist: p.OutDist(),
		Region1: r1,
		Region2: r2,
		Solid1:  contributor(p, r1, e.model),
		Solid2:  contributor(p, r2, e.model),
	})
}

func mergeAndClip(parts raytrace.PartitionList, pool *resource.Pool) raytrace.PartitionList {
	out := parts[:0]
	for _, p := range parts {
		if p.OutDist() <= 0 {
			pool.PutPartition(p)
			continue
		}
		if n := len(out); n != 0 {
			prev := out[n-1]
			if prev.Region == p.Region && prev.OutDist() == p.InDist() {
				prev.OutHit, prev.OutSolid, prev.OutFlip = p.OutHit, p.OutSolid, p.OutFlip
				prev.Solids.InPlaceUnion(p.Solids)
				pool.PutPartition(p)
				continue
			}
		}
		out = append(out, p)
	}
	return out
}
