package primitive

import (
	"math"

	"csgtrace/rtkernel/vmath/vec3"

	"golang.org/x/xerrors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Prepared ARB8 payloads are a sequence of length-delimited face records
// (field 1).  Each face record holds its scalars as fixed64 fields numbered
// in the order listed by faceScalars.

const payloadFaceField protowire.Number = 1

func faceScalars(f *arbFace) []*float64 {
	return []*float64{
		&f.A[0], &f.A[1], &f.A[2],
		&f.N[0], &f.N[1], &f.N[2],
		&f.D,
		&f.UVOrig[0], &f.UVOrig[1], &f.UVOrig[2],
		&f.U[0], &f.U[1], &f.U[2],
		&f.V[0], &f.V[1], &f.V[2],
		&f.ULen, &f.VLen,
	}
}

func appendPoints(b []byte, pts []vec3.T) []byte {
	for i, p := range pts {
		for k := 0; k < 3; k++ {
			b = protowire.AppendTag(b, protowire.Number(i*3+k+1), protowire.Fixed64Type)
			b = protowire.AppendFixed64(b, math.Float64bits(p[k]))
		}
	}
	return b
}

func encodeARB8(s Specific) ([]byte, error) {
	arb, ok := s.(*arbSpecific)
	if !ok {
		return nil, xerrors.Errorf("arb8 encode got %T: %w", s, ErrUnsupportedKind)
	}

	var out []byte
	for i := range arb.faces {
		var rec []byte
		for n, v := range faceScalars(&arb.faces[i]) {
			rec = protowire.AppendTag(rec, protowire.Number(n+1), protowire.Fixed64Type)
			rec = protowire.AppendFixed64(rec, math.Float64bits(*v))
		}
		out = protowire.AppendTag(out, payloadFaceField, protowire.BytesType)
		out = protowire.AppendBytes(out, rec)
	}
	return out, nil
}

func decodeARB8(p Params, tol Tol, payload []byte) (Specific, error) {
	arb, ok := p.(*ARB8)
	if !ok {
		return nil, xerrors.Errorf("arb8 decode got %T: %w", p, ErrUnsupportedKind)
	}

	var faces []arbFace
	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return nil, xerrors.Errorf("while reading payload tag: %w", protowire.ParseError(n))
		}
		payload = payload[n:]
		if num != payloadFaceField || typ != protowire.BytesType {
			return nil, xerrors.Errorf("unexpected payload field %d (type %d)", num, typ)
		}
		rec, n := protowire.ConsumeBytes(payload)
		if n < 0 {
			return nil, xerrors.Errorf("while reading face record: %w", protowire.ParseError(n))
		}
		payload = payload[n:]

		face, err := decodeFace(rec)
		if err != nil {
			return nil, xerrors.Errorf("while decoding face %d: %w", len(faces), err)
		}
		faces = append(faces, face)
	}

	if len(faces) < 4 || len(faces) > 6 {
		return nil, xerrors.Errorf("cached arb8 has %d faces: %w", len(faces), ErrDegenerate)
	}
	return newARBSpecific(arb.Pts, faces, tol), nil
}

func decodeFace(rec []byte) (arbFace, error) {
	face := arbFace{}
	scalars := faceScalars(&face)
	for len(rec) > 0 {
		num, typ, n := protowire.ConsumeTag(rec)
		if n < 0 {
			return arbFace{}, protowire.ParseError(n)
		}
		rec = rec[n:]
		if typ != protowire.Fixed64Type || num < 1 || int(num) > len(scalars) {
			return arbFace{}, xerrors.Errorf("unexpected face field %d (type %d)", num, typ)
		}
		v, n := protowire.ConsumeFixed64(rec)
		if n < 0 {
			return arbFace{}, protowire.ParseError(n)
		}
		rec = rec[n:]
		*scalars[num-1] = math.Float64frombits(v)
	}
	return face, nil
}
