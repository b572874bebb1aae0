// Package gridview lays an orthographic grid of parallel rays over a model,
// looking from a given azimuth and elevation.
package gridview

import (
	"math"

	"csgtrace/rtkernel/aabox"
	"csgtrace/rtkernel/affinetransform"
	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/vmath/vec3"

	"golang.org/x/xerrors"
)

type View struct {
	// Azimuth and Elevation locate the viewer, in degrees.  Azimuth 0,
	// elevation 0 looks from +X toward -X with +Z up.
	Azimuth, Elevation float64

	Cols, Rows int
	CellSize   float64

	// Center is the model point at the middle of the grid.  Rays start
	// Standoff behind the plane through Center.
	Center   vec3.T
	Standoff float64

	viewToModel affinetransform.AffineTransform
	modelToView affinetransform.AffineTransform
}

var (
	ErrEmptyGrid = xerrors.New("grid has no cells")
	ErrEmptyBox  = xerrors.New("model box is empty")
)

// New frames bounds.  A zero cellSize fits the whole box in the grid.
func New(bounds aabox.AABox, azimuth, elevation float64, cols, rows int, cellSize float64) (*View, error) {
	if cols <= 0 || rows <= 0 {
		return nil, xerrors.Errorf("%dx%d: %w", cols, rows, ErrEmptyGrid)
	}
	if bounds.IsEmpty() || !bounds.IsFinite() {
		return nil, xerrors.Errorf("%v: %w", bounds, ErrEmptyBox)
	}

	radius := vec3.Dist(bounds.Max(), bounds.Min()) / 2
	if cellSize <= 0 {
		cellSize = 2 * radius / float64(max(cols, rows))
	}

	v := &View{
		Azimuth:   azimuth,
		Elevation: elevation,
		Cols:      cols,
		Rows:      rows,
		CellSize:  cellSize,
		Center:    bounds.Center(),
		Standoff:  radius + 1,
	}

	// View space has the viewer on +X, right along +Y, up along +Z, centered
	// on Center.
	rot := affinetransform.Compose(
		affinetransform.Rotate(vec3.T{0, 0, 1}, azimuth*math.Pi/180),
		affinetransform.Rotate(vec3.T{0, 1, 0}, -elevation*math.Pi/180),
	)
	v.viewToModel = affinetransform.Compose(affinetransform.Translate(v.Center), rot)

	inv, err := v.viewToModel.Invert()
	if err != nil {
		return nil, xerrors.Errorf("while inverting view transform: %w", err)
	}
	v.modelToView = inv
	return v, nil
}

// Dir is the direction every ray travels.
func (v *View) Dir() vec3.T {
	return affinetransform.TransformVector(v.viewToModel, vec3.T{-1, 0, 0})
}

func (v *View) Right() vec3.T {
	return affinetransform.TransformVector(v.viewToModel, vec3.T{0, 1, 0})
}

func (v *View) Up() vec3.T {
	return affinetransform.TransformVector(v.viewToModel, vec3.T{0, 0, 1})
}

// Ray is the ray through the center of cell (col, row).  Row 0 is the top
// of the grid.
func (v *View) Ray(col, row int) ray.Ray {
	y := (float64(col) + 0.5 - float64(v.Cols)/2) * v.CellSize
	z := (float64(v.Rows)/2 - float64(row) - 0.5) * v.CellSize
	return ray.Ray{
		Point: affinetransform.TransformPoint(v.viewToModel, vec3.T{v.Standoff, y, z}),
		Slope: v.Dir(),
	}
}

// Cell returns the (fractional) grid cell a model point projects to.
func (v *View) Cell(p vec3.T) (col, row float64) {
	q := affinetransform.TransformPoint(v.modelToView, p)
	col = q[1]/v.CellSize + float64(v.Cols)/2 - 0.5
	row = float64(v.Rows)/2 - q[2]/v.CellSize - 0.5
	return col, row
}
