// Package raytrace holds the per-ray values passed between the shoot engine,
// the weaver, the evaluator, and the caller.
package raytrace

import (
	"fmt"
	"strings"

	"csgtrace/rtkernel/model"
	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/vmath/vec3"

	"github.com/bits-and-blooms/bitset"
)

// Segment is one solid's entry/exit pair along a ray.
type Segment struct {
	ray.Seg
	Solid *model.Solid
}

func (s *Segment) String() string {
	return fmt.Sprintf("%v[%g, %g]", s.Solid, s.In.Dist, s.Out.Dist)
}

// Partition is one span of the ray over which the set of solids the ray is
// inside does not change.
type Partition struct {
	InHit    ray.Hit
	InSolid  *model.Solid
	OutHit   ray.Hit
	OutSolid *model.Solid

	// A flipped hit was taken from the opposite boundary of its solid (an
	// exit used as a partition entry, or the reverse), so its normal must be
	// reversed.
	InFlip  bool
	OutFlip bool

	// Solids has the bit of every solid the ray is inside across the span.
	Solids *bitset.BitSet

	// Region is set by evaluation.
	Region *model.Region
}

func (p *Partition) InDist() float64 {
	return p.InHit.Dist
}

func (p *Partition) OutDist() float64 {
	return p.OutHit.Dist
}

func (p *Partition) String() string {
	name := "<unevaluated>"
	if p.Region != nil {
		name = p.Region.Name
	}
	return fmt.Sprintf("%s[%g, %g)", name, p.InDist(), p.OutDist())
}

// InNormal fills in the partition's entry point and normal and returns the
// normal, reversed if the entry hit was flipped.
func (p *Partition) InNormal(r *ray.Ray) ray.Hit {
	return normal(r, p.InSolid, p.InHit, p.InFlip)
}

// OutNormal is InNormal for the exit hit.
func (p *Partition) OutNormal(r *ray.Ray) ray.Hit {
	return normal(r, p.OutSolid, p.OutHit, p.OutFlip)
}

func normal(r *ray.Ray, s *model.Solid, h ray.Hit, flip bool) ray.Hit {
	s.Specific.Norm(r, &h)
	if flip {
		h.Normal = vec3.MulVS(h.Normal, -1)
	}
	return h
}

// PartitionList is the partitions of one ray in increasing distance order.
type PartitionList []*Partition

func (l PartitionList) String() string {
	var b strings.Builder
	for i, p := range l {
		if i != 0 {
			b.WriteString(" ")
		}
		b.WriteString(p.String())
	}
	return b.String()
}

// Overlap reports a span claimed by more than one region.
type Overlap struct {
	Ray              ray.Ray
	InDist, OutDist  float64
	Region1, Region2 *model.Region
	Solid1, Solid2   *model.Solid
}

func (o *Overlap) String() string {
	return fmt.Sprintf("overlap %s/%s (solids %s/%s) over [%g, %g], depth %g",
		o.Region1.Name, o.Region2.Name, o.Solid1.Name, o.Solid2.Name, o.InDist, o.OutDist, o.OutDist-o.InDist)
}
