package main

import (
	"fmt"
	"io"
	"math"

	"github.com/Faultbox/midgard-terrain/internal/gpu"
	"github.com/Faultbox/midgard-terrain/internal/terrain/heightmap"
	"github.com/Faultbox/midgard-terrain/internal/terrain/qmesh"
)

func components(a gpu.AttributeDescriptor) int {
	switch src := a.Source.(type) {
	case gpu.PerVertexStream:
		return src.Components
	case gpu.Constant:
		return len(src.Values)
	default:
		return 0
	}
}

func describeSource(a gpu.AttributeDescriptor) string {
	switch src := a.Source.(type) {
	case gpu.PerVertexStream:
		return fmt.Sprintf("stream offset=%d stride=%d", src.OffsetInBytes, src.StrideInBytes)
	case gpu.Constant:
		return fmt.Sprintf("constant %v", src.Values)
	default:
		return "none"
	}
}

// describeHeightmap prints a summary of a heightmap-1.0 payload.
func describeHeightmap(w io.Writer, data []byte) error {
	h, err := heightmap.Decode(data)
	if err != nil {
		return err
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range h.Heights {
		lo = math.Min(lo, float64(v))
		hi = math.Max(hi, float64(v))
	}

	fmt.Fprintf(w, "Format:   heightmap-1.0\n")
	fmt.Fprintf(w, "Grid:     %dx%d\n", h.Width, h.Height)
	fmt.Fprintf(w, "Heights:  %.1f .. %.1f m\n", lo, hi)
	fmt.Fprintf(w, "Children:")
	for _, c := range []struct {
		bit  byte
		name string
	}{
		{heightmap.ChildSouthwest, "SW"},
		{heightmap.ChildSoutheast, "SE"},
		{heightmap.ChildNorthwest, "NW"},
		{heightmap.ChildNortheast, "NE"},
	} {
		if h.HasChild(c.bit) {
			fmt.Fprintf(w, " %s", c.name)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Water:    %d bytes\n", len(h.WaterMask))
	return nil
}

// describeMesh prints a summary of a quantized-mesh payload.
func describeMesh(w io.Writer, data []byte) error {
	m, err := qmesh.Decode(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Format:    quantized-mesh-1.0\n")
	fmt.Fprintf(w, "Vertices:  %d\n", m.VertexCount())
	fmt.Fprintf(w, "Triangles: %d\n", len(m.Indices)/3)
	fmt.Fprintf(w, "Heights:   %.1f .. %.1f m\n", m.Header.MinimumHeight, m.Header.MaximumHeight)
	fmt.Fprintf(w, "Center:    %.1f %.1f %.1f\n", m.Header.CenterX, m.Header.CenterY, m.Header.CenterZ)
	fmt.Fprintf(w, "Edges:     W=%d S=%d E=%d N=%d\n", len(m.West), len(m.South), len(m.East), len(m.North))
	return nil
}
