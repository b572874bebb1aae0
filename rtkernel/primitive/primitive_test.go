package primitive

import (
	"math"
	"testing"

	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/vmath/vec3"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"golang.org/x/xerrors"
)

func mustPrep(t *testing.T, p Params) Specific {
	t.Helper()
	s, err := Prep(p, DefaultTol())
	if err != nil {
		t.Fatalf("Unexpected error preparing %v: %v", p.Kind(), err)
	}
	return s
}

func dists(segs []ray.Seg) [][2]float64 {
	out := [][2]float64{}
	for _, s := range segs {
		out = append(out, [2]float64{s.In.Dist, s.Out.Dist})
	}
	return out
}

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestUnsupportedKinds(t *testing.T) {
	for _, k := range []Kind{KindNull, KindTor, KindTGC, KindARS, KindPoly, KindBSpline, Kind(99)} {
		if _, err := Lookup(k); !xerrors.Is(err, ErrUnsupportedKind) {
			t.Errorf("Lookup(%v) got err %v, want ErrUnsupportedKind", k, err)
		}
	}
	for _, k := range []Kind{KindEll, KindARB8, KindHalf, KindREC, KindSph} {
		if _, err := Lookup(k); err != nil {
			t.Errorf("Lookup(%v) got err %v, want nil", k, err)
		}
	}
}

func TestSphereShot(t *testing.T) {
	s := mustPrep(t, &Sph{V: vec3.T{0, 0, 0}, R: 1})

	r := ray.Ray{Point: vec3.T{-5, 0, 0}, Slope: vec3.T{1, 0, 0}}
	segs := s.Shoot(&r, nil)
	if diff := cmp.Diff(dists(segs), [][2]float64{{4, 6}}, approx); diff != "" {
		t.Fatalf("Bad segments; diff (-got +want)\n%s", diff)
	}

	s.Norm(&r, &segs[0].In)
	if diff := cmp.Diff(segs[0].In.Normal, vec3.T{-1, 0, 0}, approx); diff != "" {
		t.Errorf("Bad entry normal; diff (-got +want)\n%s", diff)
	}
	s.Norm(&r, &segs[0].Out)
	if diff := cmp.Diff(segs[0].Out.Normal, vec3.T{1, 0, 0}, approx); diff != "" {
		t.Errorf("Bad exit normal; diff (-got +want)\n%s", diff)
	}
}

func TestSphereTangentIsMiss(t *testing.T) {
	s := mustPrep(t, &Sph{V: vec3.T{0, 0, 0}, R: 1})
	r := ray.Ray{Point: vec3.T{-5, 1, 0}, Slope: vec3.T{1, 0, 0}}
	if segs := s.Shoot(&r, nil); len(segs) != 0 {
		t.Errorf("Tangent ray got segments %v, want none", dists(segs))
	}
}

func TestSphereCurvature(t *testing.T) {
	s := mustPrep(t, &Sph{V: vec3.T{0, 0, 0}, R: 2})
	r := ray.Ray{Point: vec3.T{-5, 0, 0}, Slope: vec3.T{1, 0, 0}}
	segs := s.Shoot(&r, nil)
	if len(segs) != 1 {
		t.Fatalf("Got %d segments, want 1", len(segs))
	}
	h := segs[0].In
	s.Norm(&r, &h)
	c := s.Curve(&h)
	if math.Abs(c.C1+0.5) > 1e-9 || math.Abs(c.C2+0.5) > 1e-9 {
		t.Errorf("Bad curvature; got (%v, %v), want (-0.5, -0.5)", c.C1, c.C2)
	}
	if d := vec3.IProd(c.PDir, h.Normal); math.Abs(d) > 1e-9 {
		t.Errorf("Principal direction not tangent; dot with normal is %v", d)
	}
}

func TestEllRejectsSkewAxes(t *testing.T) {
	_, err := Prep(&Ell{
		A: vec3.T{1, 0, 0},
		B: vec3.T{1, 1, 0},
		C: vec3.T{0, 0, 1},
	}, DefaultTol())
	if !xerrors.Is(err, ErrDegenerate) {
		t.Errorf("Got err %v, want ErrDegenerate", err)
	}
}

func TestBoxShot(t *testing.T) {
	s := mustPrep(t, Box(vec3.T{0, 0, 0}, vec3.T{2, 2, 2}))

	r := ray.Ray{Point: vec3.T{-1, 1.5, 1.5}, Slope: vec3.T{1, 0, 0}}
	segs := s.Shoot(&r, nil)
	if diff := cmp.Diff(dists(segs), [][2]float64{{1, 3}}, approx); diff != "" {
		t.Fatalf("Bad segments; diff (-got +want)\n%s", diff)
	}

	s.Norm(&r, &segs[0].In)
	s.Norm(&r, &segs[0].Out)
	if diff := cmp.Diff(segs[0].In.Normal, vec3.T{-1, 0, 0}, approx); diff != "" {
		t.Errorf("Bad entry normal; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(segs[0].Out.Normal, vec3.T{1, 0, 0}, approx); diff != "" {
		t.Errorf("Bad exit normal; diff (-got +want)\n%s", diff)
	}

	uv := s.UV(&segs[0].In)
	for i, c := range uv.UV {
		if c < 0 || c > 1 {
			t.Errorf("uv component %d = %v outside [0, 1]", i, c)
		}
	}

	miss := ray.Ray{Point: vec3.T{-1, 2.5, 1.5}, Slope: vec3.T{1, 0, 0}}
	if segs := s.Shoot(&miss, nil); len(segs) != 0 {
		t.Errorf("Ray beside the box got segments %v", dists(segs))
	}
}

func TestBoxFaceNormalsPointOutward(t *testing.T) {
	s := mustPrep(t, Box(vec3.T{-1, -1, -1}, vec3.T{1, 1, 1})).(*arbSpecific)
	if len(s.faces) != 6 {
		t.Fatalf("Got %d faces, want 6", len(s.faces))
	}
	for i, f := range s.faces {
		if vec3.IProd(f.N, f.A) <= 0 {
			t.Errorf("Face %d normal %v points inward", i, f.N)
		}
	}
}

func TestWedgeMergesVertices(t *testing.T) {
	// A triangular prism: the top edge is collapsed from four vertices to
	// two.
	w := &ARB8{
		Pts: [8]vec3.T{
			{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
			{0, 0, 1}, {1, 0, 1}, {1, 0, 1}, {0, 0, 1},
		},
	}
	s := mustPrep(t, w).(*arbSpecific)
	if len(s.faces) != 5 {
		t.Errorf("Got %d faces, want 5", len(s.faces))
	}
}

func TestARB8PrepFailures(t *testing.T) {
	flat := Box(vec3.T{0, 0, 0}, vec3.T{1, 1, 0})

	warped := Box(vec3.T{0, 0, 0}, vec3.T{1, 1, 1})
	warped.Pts[6] = vec3.T{1, 1, 1.5}

	testCases := []struct {
		name string
		arb  *ARB8
		want error
	}{
		{"flat", flat, ErrDegenerate},
		{"point", &ARB8{}, ErrDegenerate},
		{"warped", warped, ErrNonPlanar},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Prep(tc.arb, DefaultTol())
			if !xerrors.Is(err, tc.want) {
				t.Errorf("Got err %v, want %v", err, tc.want)
			}
		})
	}
}

func TestARB8PayloadRestoresShots(t *testing.T) {
	arb := &ARB8{
		Pts: [8]vec3.T{
			{0, 0, 0}, {2, 0, 0}, {2, 2, 0}, {0, 2, 0},
			{0.5, 0.5, 2}, {1.5, 0.5, 2}, {1.5, 1.5, 2}, {0.5, 1.5, 2},
		},
	}
	orig := mustPrep(t, arb)

	ft, err := Lookup(KindARB8)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	payload, err := ft.Encode(orig)
	if err != nil {
		t.Fatalf("Unexpected error encoding: %v", err)
	}
	restored, err := ft.Decode(arb, DefaultTol(), payload)
	if err != nil {
		t.Fatalf("Unexpected error decoding: %v", err)
	}

	rays := []ray.Ray{
		{Point: vec3.T{-1, 1, 1}, Slope: vec3.T{1, 0, 0}},
		{Point: vec3.T{1, 1, -3}, Slope: vec3.T{0, 0, 1}},
		{Point: vec3.T{-1, -1, -1}, Slope: vec3.Normalize(vec3.T{1, 1, 1})},
	}
	for i, r := range rays {
		if diff := cmp.Diff(dists(restored.Shoot(&r, nil)), dists(orig.Shoot(&r, nil)), approx); diff != "" {
			t.Errorf("Ray %d: restored shots differ; diff (-got +want)\n%s", i, diff)
		}
	}

	if _, err := ft.Decode(arb, DefaultTol(), payload[:len(payload)-3]); err == nil {
		t.Errorf("Truncated payload decoded without error")
	}
}

func TestHalfShot(t *testing.T) {
	s := mustPrep(t, &Half{N: vec3.T{0, 0, 2}, D: 0})
	if !s.Bounds().Infinite {
		t.Errorf("Half-space bounds are not infinite")
	}

	down := ray.Ray{Point: vec3.T{0, 0, 5}, Slope: vec3.T{0, 0, -1}}
	segs := s.Shoot(&down, nil)
	if len(segs) != 1 || segs[0].In.Dist != 5 || !math.IsInf(segs[0].Out.Dist, 1) {
		t.Errorf("Downward ray got %v, want [5, +Inf)", dists(segs))
	}

	up := ray.Ray{Point: vec3.T{0, 0, -5}, Slope: vec3.T{0, 0, 1}}
	segs = s.Shoot(&up, nil)
	if len(segs) != 1 || !math.IsInf(segs[0].In.Dist, -1) || segs[0].Out.Dist != 5 {
		t.Errorf("Upward ray got %v, want (-Inf, 5]", dists(segs))
	}

	above := ray.Ray{Point: vec3.T{0, 0, 5}, Slope: vec3.T{1, 0, 0}}
	if segs := s.Shoot(&above, nil); len(segs) != 0 {
		t.Errorf("Parallel ray outside got %v, want none", dists(segs))
	}

	if _, err := s.Tessellate(8); !xerrors.Is(err, ErrInfinite) {
		t.Errorf("Tessellate got err %v, want ErrInfinite", err)
	}
}

func TestRECShot(t *testing.T) {
	s := mustPrep(t, &REC{
		V: vec3.T{0, 0, 0},
		H: vec3.T{0, 0, 2},
		A: vec3.T{1, 0, 0},
		B: vec3.T{0, 1, 0},
	})

	side := ray.Ray{Point: vec3.T{-5, 0, 1}, Slope: vec3.T{1, 0, 0}}
	segs := s.Shoot(&side, nil)
	if diff := cmp.Diff(dists(segs), [][2]float64{{4, 6}}, approx); diff != "" {
		t.Fatalf("Bad side segments; diff (-got +want)\n%s", diff)
	}
	if segs[0].In.Surfno != recSide || segs[0].Out.Surfno != recSide {
		t.Errorf("Got surfaces %d/%d, want side/side", segs[0].In.Surfno, segs[0].Out.Surfno)
	}
	s.Norm(&side, &segs[0].In)
	c := s.Curve(&segs[0].In)
	if math.Abs(c.C2+1) > 1e-9 || c.C1 != 0 {
		t.Errorf("Bad side curvature; got (%v, %v), want (0, -1)", c.C1, c.C2)
	}

	axial := ray.Ray{Point: vec3.T{0, 0, -5}, Slope: vec3.T{0, 0, 1}}
	segs = s.Shoot(&axial, nil)
	if diff := cmp.Diff(dists(segs), [][2]float64{{5, 7}}, approx); diff != "" {
		t.Fatalf("Bad axial segments; diff (-got +want)\n%s", diff)
	}
	s.Norm(&axial, &segs[0].In)
	if diff := cmp.Diff(segs[0].In.Normal, vec3.T{0, 0, -1}, approx); diff != "" {
		t.Errorf("Bad bottom normal; diff (-got +want)\n%s", diff)
	}

	outside := ray.Ray{Point: vec3.T{2, 0, -5}, Slope: vec3.T{0, 0, 1}}
	if segs := s.Shoot(&outside, nil); len(segs) != 0 {
		t.Errorf("Ray outside tube got %v", dists(segs))
	}
}

func TestPlotProducesPolylines(t *testing.T) {
	params := []Params{
		&Sph{R: 1},
		Box(vec3.T{0, 0, 0}, vec3.T{1, 1, 1}),
		&Half{N: vec3.T{0, 0, 1}},
		&REC{H: vec3.T{0, 0, 1}, A: vec3.T{1, 0, 0}, B: vec3.T{0, 1, 0}},
	}
	for _, p := range params {
		lines := mustPrep(t, p).Plot()
		if len(lines) == 0 {
			t.Errorf("%v: no polylines", p.Kind())
		}
		for i, l := range lines {
			if len(l) < 2 {
				t.Errorf("%v: polyline %d has %d points", p.Kind(), i, len(l))
			}
		}
	}
}

func TestTessellateSphere(t *testing.T) {
	s := mustPrep(t, &Sph{V: vec3.T{1, 2, 3}, R: 1})
	mesh, err := s.Tessellate(16)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(mesh.Triangles) == 0 {
		t.Fatalf("Mesh has no triangles")
	}
	for i, tri := range mesh.Triangles {
		for _, v := range tri {
			if d := vec3.Dist(v, vec3.T{1, 2, 3}); math.Abs(d-1) > 0.1 {
				t.Fatalf("Triangle %d vertex %v is %v from center, want about 1", i, v, d)
			}
		}
	}
}
