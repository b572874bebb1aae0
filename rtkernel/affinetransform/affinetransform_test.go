package affinetransform

import (
	"math"
	"testing"

	"csgtrace/rtkernel/vmath/mat33"
	"csgtrace/rtkernel/vmath/vec3"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var approx = cmpopts.EquateApprox(0, 1e-12)

func TestRotate(t *testing.T) {
	rot := Rotate(vec3.T{0, 0, 1}, math.Pi/2)
	if diff := cmp.Diff(TransformVector(rot, vec3.T{1, 0, 0}), vec3.T{0, 1, 0}, approx); diff != "" {
		t.Errorf("Wrong rotated x axis; diff (-got +want)\n%s", diff)
	}
}

func TestComposeInvert(t *testing.T) {
	a := Compose(Translate(vec3.T{1, 2, 3}), Rotate(vec3.Normalize(vec3.T{1, 1, 0}), 0.7))
	inv, err := a.Invert()
	if err != nil {
		t.Fatalf("Unexpected error from Invert: %v", err)
	}

	p := vec3.T{4, -5, 6}
	q := TransformPoint(a, p)
	if diff := cmp.Diff(TransformPoint(inv, q), p, approx); diff != "" {
		t.Errorf("Point did not round trip; diff (-got +want)\n%s", diff)
	}

	// Translation does not move vectors.
	v := vec3.T{0, 0, 1}
	if diff := cmp.Diff(TransformVector(inv, TransformVector(a, v)), v, approx); diff != "" {
		t.Errorf("Vector did not round trip; diff (-got +want)\n%s", diff)
	}
}

func TestInvertSingular(t *testing.T) {
	a := AffineTransform{Linear: mat33.T{1, 0, 0, 0, 0, 0, 0, 0, 1}}
	if _, err := a.Invert(); err == nil {
		t.Errorf("Expected an error inverting a singular transform")
	}
}
