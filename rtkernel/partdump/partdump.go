// Package partdump writes and reads a compressed stream of per-ray partition
// records.  Each record is a length-delimited protobuf-wire message; the
// stream as a whole is zstd compressed.
package partdump

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"sync"

	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/raytrace"
	"csgtrace/rtkernel/vmath/vec3"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/xerrors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Span is one evaluated partition.
type Span struct {
	Region   string
	RegionID int

	In, Out             float64
	InSolid, OutSolid   string
	InNormal, OutNormal vec3.T
}

// Record is everything one ray hit.
type Record struct {
	Col, Row int
	Origin   vec3.T
	Dir      vec3.T
	Spans    []Span
}

// NewRecord captures the partitions of the ray r shot for grid cell (col,
// row).
func NewRecord(col, row int, r *ray.Ray, parts raytrace.PartitionList) *Record {
	rec := &Record{
		Col:    col,
		Row:    row,
		Origin: r.Point,
		Dir:    r.Slope,
	}
	for _, p := range parts {
		in := p.InNormal(r)
		out := p.OutNormal(r)
		rec.Spans = append(rec.Spans, Span{
			Region:    p.Region.Name,
			RegionID:  p.Region.ID,
			In:        p.InDist(),
			Out:       p.OutDist(),
			InSolid:   p.InSolid.Name,
			OutSolid:  p.OutSolid.Name,
			InNormal:  in.Normal,
			OutNormal: out.Normal,
		})
	}
	return rec
}

// Field numbers.
const (
	recCol    protowire.Number = 1
	recRow    protowire.Number = 2
	recOrigin protowire.Number = 3
	recDir    protowire.Number = 4
	recSpan   protowire.Number = 5

	spanRegion    protowire.Number = 1
	spanRegionID  protowire.Number = 2
	spanIn        protowire.Number = 3
	spanOut       protowire.Number = 4
	spanInSolid   protowire.Number = 5
	spanOutSolid  protowire.Number = 6
	spanInNormal  protowire.Number = 7
	spanOutNormal protowire.Number = 8
)

func appendVec(b []byte, num protowire.Number, v vec3.T) []byte {
	var packed []byte
	for _, c := range v {
		packed = protowire.AppendFixed64(packed, math.Float64bits(c))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendInt(b []byte, num protowire.Number, v int) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v)))
}

// Marshal encodes rec without the length prefix.
func (rec *Record) Marshal() []byte {
	var b []byte
	b = appendInt(b, recCol, rec.Col)
	b = appendInt(b, recRow, rec.Row)
	b = appendVec(b, recOrigin, rec.Origin)
	b = appendVec(b, recDir, rec.Dir)
	for _, s := range rec.Spans {
		var sb []byte
		sb = appendString(sb, spanRegion, s.Region)
		sb = appendInt(sb, spanRegionID, s.RegionID)
		sb = appendDouble(sb, spanIn, s.In)
		sb = appendDouble(sb, spanOut, s.Out)
		sb = appendString(sb, spanInSolid, s.InSolid)
		sb = appendString(sb, spanOutSolid, s.OutSolid)
		sb = appendVec(sb, spanInNormal, s.InNormal)
		sb = appendVec(sb, spanOutNormal, s.OutNormal)
		b = protowire.AppendTag(b, recSpan, protowire.BytesType)
		b = protowire.AppendBytes(b, sb)
	}
	return b
}

// field is one decoded tag/value pair.
type field struct {
	num   protowire.Number
	typ   protowire.Type
	bytes []byte
	u64   uint64
}

func eachField(b []byte, visit func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return xerrors.Errorf("while reading tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u64, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.u64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return xerrors.Errorf("while reading field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}

func decodeVec(b []byte) (vec3.T, error) {
	var v vec3.T
	for i := range v {
		u, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return v, xerrors.Errorf("while reading vector component %d: %w", i, protowire.ParseError(n))
		}
		v[i] = math.Float64frombits(u)
		b = b[n:]
	}
	return v, nil
}

func decodeInt(u uint64) int {
	return int(protowire.DecodeZigZag(u))
}

func decodeSpan(b []byte) (Span, error) {
	var s Span
	err := eachField(b, func(f field) error {
		var err error
		switch f.num {
		case spanRegion:
			s.Region = string(f.bytes)
		case spanRegionID:
			s.RegionID = decodeInt(f.u64)
		case spanIn:
			s.In = math.Float64frombits(f.u64)
		case spanOut:
			s.Out = math.Float64frombits(f.u64)
		case spanInSolid:
			s.InSolid = string(f.bytes)
		case spanOutSolid:
			s.OutSolid = string(f.bytes)
		case spanInNormal:
			s.InNormal, err = decodeVec(f.bytes)
		case spanOutNormal:
			s.OutNormal, err = decodeVec(f.bytes)
		}
		return err
	})
	return s, err
}

// Unmarshal decodes a record produced by Marshal.  Unknown fields are
// skipped.
func Unmarshal(b []byte) (*Record, error) {
	rec := &Record{}
	err := eachField(b, func(f field) error {
		var err error
		switch f.num {
		case recCol:
			rec.Col = decodeInt(f.u64)
		case recRow:
			rec.Row = decodeInt(f.u64)
		case recOrigin:
			rec.Origin, err = decodeVec(f.bytes)
		case recDir:
			rec.Dir, err = decodeVec(f.bytes)
		case recSpan:
			var s Span
			s, err = decodeSpan(f.bytes)
			rec.Spans = append(rec.Spans, s)
		}
		return err
	})
	if err != nil {
		return nil, xerrors.Errorf("while decoding partition record: %w", err)
	}
	return rec, nil
}

// Writer is safe for use by several workers at once.
type Writer struct {
	mu     sync.Mutex
	stream *zstd.Encoder
	count  int
}

func NewWriter(w io.Writer) (*Writer, error) {
	stream, err := zstd.NewWriter(w)
	if err != nil {
		return nil, xerrors.Errorf("while creating zstd encoder: %w", err)
	}
	return &Writer{stream: stream}, nil
}

func (w *Writer) Write(rec *Record) error {
	body := rec.Marshal()
	buf := protowire.AppendVarint(make([]byte, 0, len(body)+binary.MaxVarintLen64), uint64(len(body)))
	buf = append(buf, body...)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.stream.Write(buf); err != nil {
		return xerrors.Errorf("while writing partition record: %w", err)
	}
	w.count++
	return nil
}

// Count is the number of records written so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes the stream.  It does not close the underlying writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.stream.Close(); err != nil {
		return xerrors.Errorf("while closing zstd stream: %w", err)
	}
	return nil
}

type Reader struct {
	stream *zstd.Decoder
	buf    *bufio.Reader
}

func NewReader(r io.Reader) (*Reader, error) {
	stream, err := zstd.NewReader(r)
	if err != nil {
		return nil, xerrors.Errorf("while creating zstd decoder: %w", err)
	}
	return &Reader{
		stream: stream,
		buf:    bufio.NewReader(stream),
	}, nil
}

// Next returns the next record, or io.EOF at the clean end of the stream.
func (r *Reader) Next() (*Record, error) {
	n, err := binary.ReadUvarint(r.buf)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, xerrors.Errorf("while reading record length: %w", err)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r.buf, body); err != nil {
		return nil, xerrors.Errorf("while reading %d byte record: %w", n, err)
	}
	return Unmarshal(body)
}

func (r *Reader) Close() {
	r.stream.Close()
}
