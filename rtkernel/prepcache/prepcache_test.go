package prepcache

import (
	"bytes"
	"context"
	"testing"

	"csgtrace/rtkernel/model"
	"csgtrace/rtkernel/primitive"
	"csgtrace/rtkernel/vmath/vec3"

	"github.com/google/go-cmp/cmp"
)

func openCache(t *testing.T, dir string) *Cache {
	t.Helper()
	c, err := Open(dir, false)
	if err != nil {
		t.Fatalf("Unexpected error opening cache: %v", err)
	}
	return c
}

func TestGetPut(t *testing.T) {
	c := openCache(t, t.TempDir())
	defer c.Close()

	if _, ok, err := c.Get([]byte("absent")); err != nil || ok {
		t.Fatalf("Get of absent key got ok=%v err=%v, want false and nil", ok, err)
	}

	payload := bytes.Repeat([]byte("plane"), 100)
	if err := c.Put([]byte("k"), payload); err != nil {
		t.Fatalf("Unexpected error from Put: %v", err)
	}
	got, ok, err := c.Get([]byte("k"))
	if err != nil || !ok {
		t.Fatalf("Get got ok=%v err=%v, want true and nil", ok, err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Get returned a different payload")
	}

	if diff := cmp.Diff(c.Stats(), Stats{Hits: 1, Misses: 1, Puts: 1}); diff != "" {
		t.Errorf("Bad stats; diff (-got +want)\n%s", diff)
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()

	prep := func(c *Cache) *model.Model {
		m := model.New(model.WithPrepCache(c))
		if _, err := m.AddSolid("box", primitive.Box(vec3.T{0, 0, 0}, vec3.T{1, 2, 3})); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if _, err := m.AddRegion("r", model.Leaf("box")); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if err := m.Prep(context.Background()); err != nil {
			t.Fatalf("Unexpected error from Prep: %v", err)
		}
		return m
	}

	c := openCache(t, dir)
	cold := prep(c)
	if got := c.Stats(); got.Puts != 1 || got.Hits != 0 {
		t.Errorf("Cold prep got stats %+v, want one put", got)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Unexpected error closing cache: %v", err)
	}

	c = openCache(t, dir)
	defer c.Close()
	warm := prep(c)
	if got := c.Stats(); got.Hits != 1 || got.Puts != 0 {
		t.Errorf("Warm prep got stats %+v, want one hit", got)
	}
	if diff := cmp.Diff(warm.Bounds(), cold.Bounds()); diff != "" {
		t.Errorf("Cached prep changed bounds; diff (-got +want)\n%s", diff)
	}
}
