package partdump

import (
	"bytes"
	"context"
	"io"
	"math"
	"testing"

	"csgtrace/rtkernel/model"
	"csgtrace/rtkernel/primitive"
	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/raytrace"
	"csgtrace/rtkernel/resource"
	"csgtrace/rtkernel/shoot"
	"csgtrace/rtkernel/vmath/vec3"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestStreamRoundTrip(t *testing.T) {
	records := []*Record{
		{Col: 0, Row: 0, Origin: vec3.T{1, 2, 3}, Dir: vec3.T{0, 0, -1}},
		{
			Col:    -4,
			Row:    17,
			Origin: vec3.T{-5, 0, 0},
			Dir:    vec3.T{1, 0, 0},
			Spans: []Span{
				{Region: "r1", RegionID: 1000, In: 4, Out: 6, InSolid: "a", OutSolid: "a", InNormal: vec3.T{-1, 0, 0}, OutNormal: vec3.T{1, 0, 0}},
				{Region: "ground", RegionID: 7, In: 10, Out: math.Inf(1), InSolid: "h", OutSolid: "h"},
			},
		},
	}

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("Unexpected error creating writer: %v", err)
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			t.Fatalf("Unexpected error writing record: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Unexpected error closing writer: %v", err)
	}
	if got := w.Count(); got != 2 {
		t.Errorf("Count got %d, want 2", got)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("Unexpected error creating reader: %v", err)
	}
	defer r.Close()
	var got []*Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Unexpected error reading record: %v", err)
		}
		got = append(got, rec)
	}
	if diff := cmp.Diff(got, records, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Bad records; diff (-got +want)\n%s", diff)
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	b := (&Record{Col: 3, Spans: []Span{{Region: "r"}}}).Marshal()
	if _, err := Unmarshal(b[:len(b)-3]); err == nil {
		t.Errorf("Truncated record decoded without error")
	}
}

func TestNewRecordFromShot(t *testing.T) {
	m := model.New()
	if _, err := m.AddSolid("a", &primitive.Sph{V: vec3.T{0, 0, 0}, R: 1}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := m.AddRegion("r1", model.Leaf("a"), model.WithRegionID(42)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := m.Prep(context.Background()); err != nil {
		t.Fatalf("Unexpected error from Prep: %v", err)
	}

	var rec *Record
	origin, dir := vec3.T{-5, 0, 0}, vec3.T{1, 0, 0}
	shoot.ShootRay(m, origin, dir, resource.NewPool(0, nil), func(parts raytrace.PartitionList, m *model.Model) int {
		rec = NewRecord(2, 3, &ray.Ray{Point: origin, Slope: dir}, parts)
		return 1
	}, nil, nil)

	want := &Record{
		Col:    2,
		Row:    3,
		Origin: origin,
		Dir:    dir,
		Spans: []Span{
			{Region: "r1", RegionID: 42, In: 4, Out: 6, InSolid: "a", OutSolid: "a", InNormal: vec3.T{-1, 0, 0}, OutNormal: vec3.T{1, 0, 0}},
		},
	}
	if diff := cmp.Diff(rec, want, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("Bad record; diff (-got +want)\n%s", diff)
	}
}
