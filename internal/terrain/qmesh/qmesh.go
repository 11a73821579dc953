// Package qmesh reads and writes quantized-mesh-1.0 terrain tiles.
//
// A tile is little-endian binary: an 88 byte header, zig-zag delta encoded
// u/v/height arrays, high-water-mark encoded triangle indices and four
// edge index lists. Extensions that may follow the edge lists are ignored.
package qmesh

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxValue is the quantized coordinate of the east, north and maximum
// height edges.
const MaxValue = 32767

// HeaderSize is the encoded size of Header.
const HeaderSize = 88

// ErrMalformed is returned for payloads that do not decode.
var ErrMalformed = errors.New("malformed quantized mesh")

var byteOrder = binary.LittleEndian

// Header is the fixed tile header. Positions are earth-centered fixed
// coordinates in meters.
type Header struct {
	CenterX, CenterY, CenterZ float64

	MinimumHeight float32
	MaximumHeight float32

	BoundingSphereCenterX float64
	BoundingSphereCenterY float64
	BoundingSphereCenterZ float64
	BoundingSphereRadius  float64

	HorizonOcclusionPointX float64
	HorizonOcclusionPointY float64
	HorizonOcclusionPointZ float64
}

// Mesh is a decoded tile. U runs west to east, V south to north, and H
// from MinimumHeight to MaximumHeight, each over 0..MaxValue.
type Mesh struct {
	Header Header

	U, V, H []uint16

	// Indices are triangle triples in counter-clockwise order.
	Indices []uint32

	West, South, East, North []uint32
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.U) }

func wideIndices(vertexCount int) bool { return vertexCount > 65536 }

// Decode parses a quantized-mesh payload. The payload must already be
// inflated.
func Decode(data []byte) (*Mesh, error) {
	if len(data) < HeaderSize+4 {
		return nil, fmt.Errorf("%d bytes: %w", len(data), ErrMalformed)
	}
	r := bytes.NewReader(data)
	m := &Mesh{}
	if err := binary.Read(r, byteOrder, &m.Header); err != nil {
		return nil, fmt.Errorf("header: %w: %w", ErrMalformed, err)
	}

	var vertexCount uint32
	if err := binary.Read(r, byteOrder, &vertexCount); err != nil {
		return nil, fmt.Errorf("vertex count: %w: %w", ErrMalformed, err)
	}
	if int64(vertexCount)*6 > int64(r.Len()) {
		return nil, fmt.Errorf("vertex count %d exceeds payload: %w", vertexCount, ErrMalformed)
	}
	n := int(vertexCount)

	var err error
	if m.U, err = readZigZag(r, n); err != nil {
		return nil, fmt.Errorf("u: %w", err)
	}
	if m.V, err = readZigZag(r, n); err != nil {
		return nil, fmt.Errorf("v: %w", err)
	}
	if m.H, err = readZigZag(r, n); err != nil {
		return nil, fmt.Errorf("height: %w", err)
	}

	wide := wideIndices(n)
	align := 2
	if wide {
		align = 4
	}
	if pad := (len(data) - r.Len()) % align; pad != 0 {
		if _, err := r.Seek(int64(align-pad), io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("index padding: %w: %w", ErrMalformed, err)
		}
	}

	var triangleCount uint32
	if err := binary.Read(r, byteOrder, &triangleCount); err != nil {
		return nil, fmt.Errorf("triangle count: %w: %w", ErrMalformed, err)
	}
	encoded, err := readIndices(r, int64(triangleCount)*3, wide)
	if err != nil {
		return nil, fmt.Errorf("indices: %w", err)
	}
	m.Indices = decodeHighWaterMark(encoded)
	for _, idx := range m.Indices {
		if idx >= vertexCount {
			return nil, fmt.Errorf("index %d out of range for %d vertices: %w", idx, n, ErrMalformed)
		}
	}

	for _, edge := range []*[]uint32{&m.West, &m.South, &m.East, &m.North} {
		var count uint32
		if err := binary.Read(r, byteOrder, &count); err != nil {
			return nil, fmt.Errorf("edge count: %w: %w", ErrMalformed, err)
		}
		if *edge, err = readIndices(r, int64(count), wide); err != nil {
			return nil, fmt.Errorf("edge indices: %w", err)
		}
	}
	return m, nil
}

func readZigZag(r *bytes.Reader, n int) ([]uint16, error) {
	raw := make([]uint16, n)
	if err := binary.Read(r, byteOrder, raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	var value int32
	for i, v := range raw {
		value += zigZagDecode(v)
		raw[i] = uint16(value)
	}
	return raw, nil
}

func readIndices(r *bytes.Reader, count int64, wide bool) ([]uint32, error) {
	size := int64(2)
	if wide {
		size = 4
	}
	if count*size > int64(r.Len()) {
		return nil, fmt.Errorf("%d indices exceed payload: %w", count, ErrMalformed)
	}
	out := make([]uint32, count)
	if wide {
		if err := binary.Read(r, byteOrder, out); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return out, nil
	}
	narrow := make([]uint16, count)
	if err := binary.Read(r, byteOrder, narrow); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	for i, v := range narrow {
		out[i] = uint32(v)
	}
	return out, nil
}

func zigZagDecode(v uint16) int32 {
	return int32(v>>1) ^ -int32(v&1)
}

func zigZagEncode(v int32) uint16 {
	return uint16((v << 1) ^ (v >> 31))
}

func decodeHighWaterMark(codes []uint32) []uint32 {
	var highest uint32
	for i, code := range codes {
		codes[i] = highest - code
		if code == 0 {
			highest++
		}
	}
	return codes
}

// Encode writes m in quantized-mesh-1.0 form. Triangle indices must
// introduce vertices in order, as produced by mesh optimizers for this
// format.
func Encode(m *Mesh) ([]byte, error) {
	n := len(m.U)
	if len(m.V) != n || len(m.H) != n {
		return nil, fmt.Errorf("u/v/height lengths %d/%d/%d differ", len(m.U), len(m.V), len(m.H))
	}
	if len(m.Indices)%3 != 0 {
		return nil, fmt.Errorf("%d indices do not form triangles", len(m.Indices))
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, byteOrder, m.Header); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, byteOrder, uint32(n)); err != nil {
		return nil, err
	}
	for _, arr := range [][]uint16{m.U, m.V, m.H} {
		enc := make([]uint16, n)
		var prev int32
		for i, v := range arr {
			enc[i] = zigZagEncode(int32(v) - prev)
			prev = int32(v)
		}
		if err := binary.Write(&buf, byteOrder, enc); err != nil {
			return nil, err
		}
	}

	wide := wideIndices(n)
	align := 2
	if wide {
		align = 4
	}
	if pad := buf.Len() % align; pad != 0 {
		buf.Write(make([]byte, align-pad))
	}

	codes := make([]uint32, len(m.Indices))
	var highest uint32
	for i, idx := range m.Indices {
		if idx > highest {
			return nil, fmt.Errorf("index %d at %d skips ahead of %d", idx, i, highest)
		}
		codes[i] = highest - idx
		if idx == highest {
			highest++
		}
	}
	if err := binary.Write(&buf, byteOrder, uint32(len(m.Indices)/3)); err != nil {
		return nil, err
	}
	if err := writeIndices(&buf, codes, wide); err != nil {
		return nil, err
	}

	for _, edge := range [][]uint32{m.West, m.South, m.East, m.North} {
		if err := binary.Write(&buf, byteOrder, uint32(len(edge))); err != nil {
			return nil, err
		}
		if err := writeIndices(&buf, edge, wide); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeIndices(w io.Writer, indices []uint32, wide bool) error {
	if wide {
		return binary.Write(w, byteOrder, indices)
	}
	narrow := make([]uint16, len(indices))
	for i, v := range indices {
		narrow[i] = uint16(v)
	}
	return binary.Write(w, byteOrder, narrow)
}
