package aabox

import (
	"math"
	"testing"

	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/vmath/vec3"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestRayTestAABox(t *testing.T) {
	box := FromPoints(vec3.T{-1, -1, -1}, vec3.T{1, 1, 1})
	testCases := []struct {
		desc  string
		r     ray.Ray
		cover ray.Span
		want  ray.Span
		miss  bool
	}{
		{
			desc:  "through the middle",
			r:     ray.Ray{Point: vec3.T{-5, 0, 0}, Slope: vec3.T{1, 0, 0}},
			cover: ray.Span{0, math.Inf(1)},
			want:  ray.Span{4, 6},
		},
		{
			desc:  "backwards from inside",
			r:     ray.Ray{Point: vec3.T{0, 0, 0}, Slope: vec3.T{0, 0, -1}},
			cover: ray.Span{0, math.Inf(1)},
			want:  ray.Span{0, 1},
		},
		{
			desc:  "whole line",
			r:     ray.Ray{Point: vec3.T{0, 0.5, 0}, Slope: vec3.T{0, 1, 0}},
			cover: ray.Span{math.Inf(-1), math.Inf(1)},
			want:  ray.Span{-1.5, 0.5},
		},
		{
			desc:  "parallel outside a slab",
			r:     ray.Ray{Point: vec3.T{-5, 2, 0}, Slope: vec3.T{1, 0, 0}},
			cover: ray.Span{0, math.Inf(1)},
			miss:  true,
		},
		{
			desc:  "box behind the segment",
			r:     ray.Ray{Point: vec3.T{5, 0, 0}, Slope: vec3.T{1, 0, 0}},
			cover: ray.Span{0, math.Inf(1)},
			miss:  true,
		},
		{
			desc:  "diagonal",
			r:     ray.Ray{Point: vec3.T{-2, -2, 0}, Slope: vec3.Normalize(vec3.T{1, 1, 0})},
			cover: ray.Span{0, math.Inf(1)},
			want:  ray.Span{math.Sqrt2, 3 * math.Sqrt2},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := RayTestAABox(ray.RaySegment{TheRay: tc.r, TheSegment: tc.cover}, box)
			if tc.miss {
				if !got.IsNaN() {
					t.Errorf("Got %v, want a miss", got)
				}
				return
			}
			if diff := cmp.Diff(got, tc.want, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
				t.Errorf("Wrong cover; diff (-got +want)\n%s", diff)
			}
		})
	}
}

func TestAccumulate(t *testing.T) {
	box := AccumZeroAABox()
	if !box.IsEmpty() {
		t.Errorf("Accumulator %v is not empty", box)
	}
	box = GrowAABoxToPoint(box, vec3.T{1, 2, 3})
	box = GrowAABoxToPoint(box, vec3.T{-1, 0, 5})
	want := FromPoints(vec3.T{-1, 0, 3}, vec3.T{1, 2, 5})
	if diff := cmp.Diff(box, want); diff != "" {
		t.Errorf("Wrong box; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(box.Center(), vec3.T{0, 1, 4}); diff != "" {
		t.Errorf("Wrong center; diff (-got +want)\n%s", diff)
	}
	if InfiniteAABox().IsFinite() {
		t.Errorf("InfiniteAABox reports finite")
	}
}
