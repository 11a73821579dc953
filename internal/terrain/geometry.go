package terrain

import "fmt"

// FloatsPerVertex is the number of interleaved floats per vertex: x, y, z, u, v.
const FloatsPerVertex = 5

// MaxVertices16 is the largest vertex count addressable with 16-bit indices.
const MaxVertices16 = 1 << 16

// Geometry is a raw tile mesh produced by a provider and consumed once by
// the Packer.
type Geometry struct {
	// Vertices holds x, y, z, u, v per vertex, already interleaved.
	Vertices []float32
	// Indices holds triangle triples into Vertices.
	Indices []uint32
	// Positions2D optionally holds a projected x, y per vertex. When set the
	// position2D attribute is bound to a real stream instead of a constant.
	Positions2D []float32
}

// VertexCount returns the number of vertices.
func (g *Geometry) VertexCount() int {
	return len(g.Vertices) / FloatsPerVertex
}

// Validate checks the invariants for a mesh packed with 16-bit indices.
func (g *Geometry) Validate() error {
	return g.validate(MaxVertices16)
}

func (g *Geometry) validate(maxVertices int) error {
	if g == nil {
		return fmt.Errorf("nil geometry: %w", ErrInvalidGeometry)
	}
	if len(g.Vertices)%FloatsPerVertex != 0 {
		return fmt.Errorf("%d vertex floats is not a multiple of %d: %w",
			len(g.Vertices), FloatsPerVertex, ErrInvalidGeometry)
	}
	if len(g.Indices)%3 != 0 {
		return fmt.Errorf("%d indices do not form triangles: %w", len(g.Indices), ErrInvalidGeometry)
	}
	n := g.VertexCount()
	if n == 0 || len(g.Indices) == 0 {
		return fmt.Errorf("empty geometry: %w", ErrInvalidGeometry)
	}
	if n > maxVertices {
		return fmt.Errorf("%d vertices exceed limit %d: %w", n, maxVertices, ErrInvalidGeometry)
	}
	for i, idx := range g.Indices {
		if int64(idx) >= int64(n) {
			return fmt.Errorf("index %d at %d out of range for %d vertices: %w", idx, i, n, ErrInvalidGeometry)
		}
	}
	if g.Positions2D != nil && len(g.Positions2D) != 2*n {
		return fmt.Errorf("%d 2D position floats for %d vertices: %w", len(g.Positions2D), n, ErrInvalidGeometry)
	}
	return nil
}
