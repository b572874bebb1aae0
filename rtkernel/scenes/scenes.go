// Package scenes holds small built-in models for the command-line tools and
// for tests that need something to shoot at.
package scenes

import (
	"fmt"
	"math/rand"
	"sort"

	"csgtrace/rtkernel/model"
	"csgtrace/rtkernel/primitive"
	"csgtrace/rtkernel/vmath/vec3"

	"golang.org/x/xerrors"
)

var ErrUnknownScene = xerrors.New("unknown scene")

// Builder adds a scene's solids and regions to an empty model.
type Builder func(m *model.Model) error

var builders = map[string]Builder{
	"sphere":   Sphere,
	"boxes":    Boxes,
	"overlap":  Overlap,
	"ground":   Ground,
	"cylinder": Cylinder,
	"field":    Field(64, 12345),
}

func Names() []string {
	names := []string{}
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build returns the named scene as an unprepared model.
func Build(name string, opts ...model.Opt) (*model.Model, error) {
	b, ok := builders[name]
	if !ok {
		return nil, xerrors.Errorf("while building scene %q: %w", name, ErrUnknownScene)
	}
	m := model.New(opts...)
	if err := b(m); err != nil {
		return nil, xerrors.Errorf("while building scene %q: %w", name, err)
	}
	return m, nil
}

// builder accumulates the first error so scene definitions read as a flat
// list.
type builder struct {
	m   *model.Model
	err error
}

func (b *builder) solid(name string, p primitive.Params) {
	if b.err != nil {
		return
	}
	_, b.err = b.m.AddSolid(name, p)
}

func (b *builder) region(name string, tree *model.Tree, opts ...model.RegionOpt) {
	if b.err != nil {
		return
	}
	_, b.err = b.m.AddRegion(name, tree, opts...)
}

// Sphere is a unit sphere at the origin.
func Sphere(m *model.Model) error {
	b := &builder{m: m}
	b.solid("ball.s", &primitive.Sph{R: 1})
	b.region("ball.r", model.Leaf("ball.s"), model.WithRegionID(1))
	return b.err
}

// Boxes is a pair of overlapping cubes shown as a union, a difference, and
// an intersection side by side along y.
func Boxes(m *model.Model) error {
	b := &builder{m: m}
	for i, name := range []string{"union", "diff", "isect"} {
		y := float64(i-1) * 4
		b.solid(name+".a", primitive.Box(vec3.T{-1.5, y - 1, -1}, vec3.T{0.5, y + 1, 1}))
		b.solid(name+".b", primitive.Box(vec3.T{-0.5, y - 0.5, -0.5}, vec3.T{1.5, y + 1.5, 1.5}))
	}
	b.region("union.r", model.Union(model.Leaf("union.a"), model.Leaf("union.b")), model.WithRegionID(1))
	b.region("diff.r", model.Subtract(model.Leaf("diff.a"), model.Leaf("diff.b")), model.WithRegionID(2))
	b.region("isect.r", model.Intersect(model.Leaf("isect.a"), model.Leaf("isect.b")), model.WithRegionID(3))
	return b.err
}

// Overlap is two regions claiming the same space, for exercising overlap
// resolution.
func Overlap(m *model.Model) error {
	b := &builder{m: m}
	b.solid("left.s", &primitive.Sph{V: vec3.T{0, -0.5, 0}, R: 1})
	b.solid("right.s", &primitive.Sph{V: vec3.T{0, 0.5, 0}, R: 1})
	b.region("left.r", model.Leaf("left.s"), model.WithRegionID(1))
	b.region("right.r", model.Leaf("right.s"), model.WithRegionID(2))
	return b.err
}

// Ground is a ball resting on an infinite floor, inside an air-filled room.
func Ground(m *model.Model) error {
	b := &builder{m: m}
	b.solid("floor.s", &primitive.Half{N: vec3.T{0, 0, 1}, D: 0})
	b.solid("ball.s", &primitive.Sph{V: vec3.T{0, 0, 1}, R: 1})
	b.solid("room.s", primitive.Box(vec3.T{-3, -3, 0}, vec3.T{3, 3, 3}))
	b.region("floor.r", model.Leaf("floor.s"), model.WithRegionID(1), model.WithMaterial(2))
	b.region("ball.r", model.Leaf("ball.s"), model.WithRegionID(2), model.WithMaterial(1))
	b.region("air.r", model.Subtract(model.Leaf("room.s"), model.Leaf("ball.s")), model.WithRegionID(3), model.WithAirCode(1))
	return b.err
}

// Cylinder is a pipe: a cylinder with a narrower coaxial one removed.
func Cylinder(m *model.Model) error {
	b := &builder{m: m}
	b.solid("outer.s", &primitive.REC{
		V: vec3.T{0, 0, -2},
		H: vec3.T{0, 0, 4},
		A: vec3.T{1, 0, 0},
		B: vec3.T{0, 1.5, 0},
	})
	b.solid("inner.s", &primitive.REC{
		V: vec3.T{0, 0, -2.5},
		H: vec3.T{0, 0, 5},
		A: vec3.T{0.5, 0, 0},
		B: vec3.T{0, 1, 0},
	})
	b.region("pipe.r", model.Subtract(model.Leaf("outer.s"), model.Leaf("inner.s")), model.WithRegionID(1))
	return b.err
}

// Field returns a builder for n random solids scattered through a cube of
// edge 20, each its own region.  The same seed always gives the same field.
func Field(n int, seed int64) Builder {
	return func(m *model.Model) error {
		b := &builder{m: m}
		rng := rand.New(rand.NewSource(seed))
		coord := func() float64 { return rng.Float64()*20 - 10 }
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("field.%d", i)
			c := vec3.T{coord(), coord(), coord()}
			switch i % 3 {
			case 0:
				b.solid(name, &primitive.Sph{V: c, R: 0.3 + rng.Float64()})
			case 1:
				h := vec3.T{0.3 + rng.Float64(), 0.3 + rng.Float64(), 0.3 + rng.Float64()}
				b.solid(name, primitive.Box(vec3.SubVV(c, h), vec3.AddVV(c, h)))
			case 2:
				b.solid(name, &primitive.Ell{
					V: c,
					A: vec3.T{0.3 + rng.Float64(), 0, 0},
					B: vec3.T{0, 0.3 + rng.Float64(), 0},
					C: vec3.T{0, 0, 0.3 + rng.Float64()},
				})
			}
			b.region(name+".r", model.Leaf(name), model.WithRegionID(i+1))
		}
		return b.err
	}
}
