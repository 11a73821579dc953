// Package heightmap provides height grids for terrain tiles: a decoder for
// the heightmap-1.0 tile format, a tile-source backed reader and a
// procedural noise generator.
package heightmap

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Heightmap-1.0 tile layout.
const (
	TileSize      = 65
	HeightScale   = 5.0
	HeightOffset  = -1000.0
	WaterMaskSize = 256
)

// Child mask bits, set when the corresponding child tile exists.
const (
	ChildSouthwest byte = 1 << iota
	ChildSoutheast
	ChildNorthwest
	ChildNortheast
)

// ErrMalformed is returned for payloads that do not decode.
var ErrMalformed = errors.New("malformed heightmap")

// Heightmap is a row-major grid of heights in meters. Row 0 is the
// northern edge, column 0 the western edge.
type Heightmap struct {
	Width, Height int
	Heights       []float32

	// ChildMask and WaterMask are only set by Decode.
	ChildMask byte
	WaterMask []byte
}

// At returns the height at (col, row).
func (h *Heightmap) At(col, row int) float32 {
	return h.Heights[row*h.Width+col]
}

// Validate checks that the grid can be meshed.
func (h *Heightmap) Validate() error {
	if h == nil {
		return fmt.Errorf("nil heightmap: %w", ErrMalformed)
	}
	if h.Width < 2 || h.Height < 2 {
		return fmt.Errorf("%dx%d grid: %w", h.Width, h.Height, ErrMalformed)
	}
	if len(h.Heights) != h.Width*h.Height {
		return fmt.Errorf("%d heights for %dx%d grid: %w", len(h.Heights), h.Width, h.Height, ErrMalformed)
	}
	return nil
}

// HasChild reports whether the child bit is set in the mask.
func (h *Heightmap) HasChild(bit byte) bool {
	return h.ChildMask&bit != 0
}

// Decode parses a heightmap-1.0 payload: 65x65 little-endian uint16
// samples, a child mask byte and an optional water mask of either one
// byte or 256x256 bytes.
func Decode(data []byte) (*Heightmap, error) {
	const samples = TileSize * TileSize
	if len(data) < samples*2+1 {
		return nil, fmt.Errorf("%d bytes: %w", len(data), ErrMalformed)
	}

	heights := make([]float32, samples)
	for i := range heights {
		v := binary.LittleEndian.Uint16(data[i*2:])
		heights[i] = float32(float64(v)/HeightScale + HeightOffset)
	}

	h := &Heightmap{
		Width:     TileSize,
		Height:    TileSize,
		Heights:   heights,
		ChildMask: data[samples*2],
	}

	switch rest := data[samples*2+1:]; len(rest) {
	case 0:
	case 1, WaterMaskSize * WaterMaskSize:
		h.WaterMask = append([]byte(nil), rest...)
	default:
		return nil, fmt.Errorf("water mask of %d bytes: %w", len(rest), ErrMalformed)
	}
	return h, nil
}

// Encode writes h as a heightmap-1.0 payload. h must be TileSize square.
func Encode(h *Heightmap) ([]byte, error) {
	if h.Width != TileSize || h.Height != TileSize || len(h.Heights) != TileSize*TileSize {
		return nil, fmt.Errorf("%dx%d grid is not %dx%d", h.Width, h.Height, TileSize, TileSize)
	}
	out := make([]byte, TileSize*TileSize*2, TileSize*TileSize*2+1+len(h.WaterMask))
	for i, height := range h.Heights {
		v := (float64(height) - HeightOffset) * HeightScale
		if v < 0 || v > 65535 {
			return nil, fmt.Errorf("height %.1f out of range", height)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v+0.5))
	}
	out = append(out, h.ChildMask)
	return append(out, h.WaterMask...), nil
}
