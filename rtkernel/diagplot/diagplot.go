// Package diagplot draws diagnostic pictures of a prepared model: how well
// the cut tree spreads the solids, a wireframe of the solids, and a depth
// map built from grid shots.
package diagplot

import (
	"fmt"
	"image/color"
	"math"

	"csgtrace/rtkernel/cuttree"
	"csgtrace/rtkernel/gridview"
	"csgtrace/rtkernel/model"
	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/raytrace"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"golang.org/x/xerrors"
)

const (
	Width  = 20 * vg.Centimeter
	Height = 15 * vg.Centimeter
)

// Save writes p to path.  The format follows the extension.
func Save(p *plot.Plot, path string) error {
	if err := p.Save(Width, Height, path); err != nil {
		return xerrors.Errorf("while saving plot to %q: %w", path, err)
	}
	return nil
}

// Occupancy plots how many cut tree leaves hold each number of solids.
func Occupancy(st cuttree.Stats) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Cut tree: %d leaves, depth %d, mean %.2f solids/leaf", st.Leaves, st.MaxDepth, st.MeanOccupancy)
	p.X.Label.Text = "Solids in leaf"
	p.Y.Label.Text = "Leaves"

	values := make(plotter.Values, len(st.Occupancy))
	names := make([]string, len(st.Occupancy))
	for i, n := range st.Occupancy {
		values[i] = float64(n)
		names[i] = fmt.Sprint(i)
	}
	if len(values) == 0 {
		return p, nil
	}
	bars, err := plotter.NewBarChart(values, vg.Points(10))
	if err != nil {
		return nil, xerrors.Errorf("while building occupancy bars: %w", err)
	}
	bars.Color = plotutil.Color(0)
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(names...)
	return p, nil
}

// Wireframe draws every prepared solid's outline as seen from v.  Each solid
// gets one color.  Solids that failed prep are left out.
func Wireframe(m *model.Model, v *gridview.View) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("az %g el %g", v.Azimuth, v.Elevation)
	p.HideAxes()

	for i, s := range m.Solids() {
		for _, pl := range s.Specific.Plot() {
			if len(pl) < 2 {
				continue
			}
			xys := make(plotter.XYs, len(pl))
			for j, pt := range pl {
				col, row := v.Cell(pt)
				xys[j] = plotter.XY{X: col, Y: -row}
			}
			line, err := plotter.NewLine(xys)
			if err != nil {
				return nil, xerrors.Errorf("while drawing solid %v: %w", s, err)
			}
			line.Color = plotutil.Color(i)
			p.Add(line)
		}
	}

	// Frame the grid so every view of the same size plots the same way.
	p.X.Min, p.X.Max = 0, float64(v.Cols)
	p.Y.Min, p.Y.Max = -float64(v.Rows), 0
	return p, nil
}

// DepthGrid collects the distance to the first surface hit in each cell.
// It implements plotter.GridXYZ.  Safe for use by one goroutine per row.
type DepthGrid struct {
	Cols, Rows int
	depth      []float64
}

func NewDepthGrid(cols, rows int) *DepthGrid {
	g := &DepthGrid{
		Cols:  cols,
		Rows:  rows,
		depth: make([]float64, cols*rows),
	}
	for i := range g.depth {
		g.depth[i] = math.NaN()
	}
	return g
}

// Record stores the first partition's entry distance for the cell.  It is a
// gridrun.CellFunc.
func (g *DepthGrid) Record(col, row int, r *ray.Ray, parts raytrace.PartitionList) {
	if len(parts) == 0 {
		return
	}
	g.depth[row*g.Cols+col] = math.Max(parts[0].InDist(), 0)
}

func (g *DepthGrid) Depth(col, row int) float64 {
	return g.depth[row*g.Cols+col]
}

func (g *DepthGrid) Dims() (c, r int) {
	return g.Cols, g.Rows
}

// Z reports misses as negative infinity so the heat map draws them in its
// underflow color.
func (g *DepthGrid) Z(c, r int) float64 {
	d := g.depth[(g.Rows-1-r)*g.Cols+c]
	if math.IsNaN(d) {
		return math.Inf(-1)
	}
	return d
}

func (g *DepthGrid) X(c int) float64 {
	return float64(c)
}

func (g *DepthGrid) Y(r int) float64 {
	return float64(r)
}

func (g *DepthGrid) Min() float64 {
	lo := math.Inf(1)
	for _, d := range g.depth {
		if !math.IsNaN(d) {
			lo = math.Min(lo, d)
		}
	}
	if math.IsInf(lo, 1) {
		return 0
	}
	return lo
}

func (g *DepthGrid) Max() float64 {
	hi := math.Inf(-1)
	for _, d := range g.depth {
		if !math.IsNaN(d) {
			hi = math.Max(hi, d)
		}
	}
	if math.IsInf(hi, -1) {
		return 1
	}
	return hi
}

// reversedPalette lists a palette's colors from the far end.
type reversedPalette []color.Color

func (p reversedPalette) Colors() []color.Color {
	return p
}

func reversed(p palette.Palette) palette.Palette {
	c := p.Colors()
	r := make(reversedPalette, len(c))
	for i := range c {
		r[len(c)-1-i] = c[i]
	}
	return r
}

// DepthMap plots g as a heat map, near surfaces hot.
func DepthMap(g *DepthGrid) *plot.Plot {
	p := plot.New()
	p.Title.Text = "Depth"
	p.HideAxes()

	hm := plotter.NewHeatMap(g, reversed(palette.Heat(256, 1)))
	hm.Min = g.Min()
	hm.Max = g.Max()
	if hm.Max <= hm.Min {
		hm.Max = hm.Min + 1
	}
	hm.Underflow = color.Black
	p.Add(hm)
	return p
}
