package primitive

import (
	"csgtrace/rtkernel/aabox"
	"csgtrace/rtkernel/vmath/vec3"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"golang.org/x/xerrors"
)

// DefaultTessellationCells is the marching cubes resolution along the longest
// side of a primitive's bounding box.
const DefaultTessellationCells = 64

// fieldSDF adapts a primitive's distance estimate to sdfx.  The estimate only
// needs the right sign and a zero crossing at the surface.
type fieldSDF struct {
	field func(p vec3.T) float64
	box   sdf.Box3
}

func (f *fieldSDF) Evaluate(p v3.Vec) float64 {
	return f.field(vec3.T{p.X, p.Y, p.Z})
}

func (f *fieldSDF) BoundingBox() sdf.Box3 {
	return f.box
}

func tessellate(field func(p vec3.T) float64, box aabox.AABox, cells int) (*Mesh, error) {
	if !box.IsFinite() {
		return nil, ErrInfinite
	}
	if cells <= 0 {
		return nil, xerrors.Errorf("tessellation needs a positive cell count, got %d", cells)
	}

	// Pad the box so that the surface never lies on the sampling boundary.
	pad := vec3.MulVS(vec3.SubVV(box.Max(), box.Min()), 0.05)
	min := vec3.SubVV(box.Min(), pad)
	max := vec3.AddVV(box.Max(), pad)

	s := &fieldSDF{
		field: field,
		box: sdf.Box3{
			Min: v3.Vec{X: min[0], Y: min[1], Z: min[2]},
			Max: v3.Vec{X: max[0], Y: max[1], Z: max[2]},
		},
	}

	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(s, renderer)

	mesh := &Mesh{
		Triangles: make([][3]vec3.T, 0, len(triangles)),
		Normals:   make([]vec3.T, 0, len(triangles)),
	}
	for _, tri := range triangles {
		n := tri.Normal()
		var t [3]vec3.T
		for j := 0; j < 3; j++ {
			v := tri[j]
			t[j] = vec3.T{v.X, v.Y, v.Z}
		}
		mesh.Triangles = append(mesh.Triangles, t)
		mesh.Normals = append(mesh.Normals, vec3.T{n.X, n.Y, n.Z})
	}
	return mesh, nil
}
