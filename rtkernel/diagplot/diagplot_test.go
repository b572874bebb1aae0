package diagplot

import (
	"context"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"csgtrace/rtkernel/gridrun"
	"csgtrace/rtkernel/gridview"
	"csgtrace/rtkernel/model"
	"csgtrace/rtkernel/scenes"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/plot/palette"
)

func mustScene(t *testing.T, name string) *model.Model {
	t.Helper()
	m, err := scenes.Build(name)
	if err != nil {
		t.Fatalf("Unexpected error building scene: %v", err)
	}
	if err := m.Prep(context.Background()); err != nil {
		t.Fatalf("Unexpected error from Prep: %v", err)
	}
	return m
}

func mustNonEmptyFile(t *testing.T, path string) {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Unexpected error from Stat: %v", err)
	}
	if fi.Size() == 0 {
		t.Errorf("%s is empty", path)
	}
}

func TestOccupancy(t *testing.T) {
	m := mustScene(t, "field")
	p, err := Occupancy(m.Stats().Cut)
	if err != nil {
		t.Fatalf("Unexpected error from Occupancy: %v", err)
	}
	path := filepath.Join(t.TempDir(), "occupancy.png")
	if err := Save(p, path); err != nil {
		t.Fatalf("Unexpected error from Save: %v", err)
	}
	mustNonEmptyFile(t, path)
}

func TestWireframe(t *testing.T) {
	m := mustScene(t, "ground")
	v, err := gridview.New(m.Bounds(), 30, 20, 64, 48, 0)
	if err != nil {
		t.Fatalf("Unexpected error from gridview.New: %v", err)
	}
	p, err := Wireframe(m, v)
	if err != nil {
		t.Fatalf("Unexpected error from Wireframe: %v", err)
	}
	path := filepath.Join(t.TempDir(), "wire.svg")
	if err := Save(p, path); err != nil {
		t.Fatalf("Unexpected error from Save: %v", err)
	}
	mustNonEmptyFile(t, path)
}

func TestDepthMap(t *testing.T) {
	m := mustScene(t, "sphere")
	v, err := gridview.New(m.Bounds(), 0, 0, 16, 16, 0)
	if err != nil {
		t.Fatalf("Unexpected error from gridview.New: %v", err)
	}
	g := NewDepthGrid(v.Cols, v.Rows)
	if _, err := gridrun.Run(context.Background(), m, v, g.Record, nil, gridrun.WithWorkers(2)); err != nil {
		t.Fatalf("Unexpected error from Run: %v", err)
	}

	// The corners miss the sphere and the middle hits its nearest point.
	if d := g.Depth(0, 0); !math.IsNaN(d) {
		t.Errorf("Got corner depth %v, want a miss", d)
	}
	nearest := v.Standoff - 1
	if diff := cmp.Diff(g.Min(), nearest, cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 0.1 })); diff != "" {
		t.Errorf("Wrong nearest depth; diff (-got +want)\n%s", diff)
	}

	path := filepath.Join(t.TempDir(), "depth.png")
	if err := Save(DepthMap(g), path); err != nil {
		t.Fatalf("Unexpected error from Save: %v", err)
	}
	mustNonEmptyFile(t, path)
}

func TestReversedPalette(t *testing.T) {
	heat := palette.Heat(8, 1).Colors()
	got := reversed(palette.Heat(8, 1)).Colors()

	want := make([]color.Color, len(heat))
	for i := range heat {
		want[i] = heat[len(heat)-1-i]
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Wrong colors; diff (-got +want)\n%s", diff)
	}
}
