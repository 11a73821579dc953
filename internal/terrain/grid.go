package terrain

import (
	"github.com/Faultbox/midgard-terrain/pkg/geo"
)

// grid describes a regular vertex lattice laid over a tile extent.
type grid struct {
	ellipsoid geo.Ellipsoid
	extent    geo.Extent
	// columns and rows are vertex counts, both at least 2.
	columns, rows int
	// height returns the height in meters of the vertex at (col, row),
	// row 0 being the northern edge. Nil means height 0.
	height    func(col, row int) float64
	project2D bool
}

// build emits the interleaved vertices and two triangles per grid cell.
// Texture coordinates run 0..1 west to east and south to north.
func (g grid) build() *Geometry {
	n := g.columns * g.rows
	vertices := make([]float32, 0, n*FloatsPerVertex)
	var positions2D []float32
	if g.project2D {
		positions2D = make([]float32, 0, n*2)
	}
	radius := g.ellipsoid.MaximumRadius()

	for row := range g.rows {
		v := 1 - float64(row)/float64(g.rows-1)
		for col := range g.columns {
			u := float64(col) / float64(g.columns-1)

			c := g.extent.Lerp(u, v)
			if g.height != nil {
				c.Height = g.height(col, row)
			}
			p := g.ellipsoid.CartographicToCartesian(c)
			vertices = append(vertices,
				float32(p.X), float32(p.Y), float32(p.Z),
				float32(u), float32(v),
			)
			if g.project2D {
				positions2D = append(positions2D,
					float32(c.Longitude*radius), float32(c.Latitude*radius))
			}
		}
	}

	indices := make([]uint32, 0, (g.columns-1)*(g.rows-1)*6)
	for row := range g.rows - 1 {
		for col := range g.columns - 1 {
			nw := uint32(row*g.columns + col)
			ne := nw + 1
			sw := nw + uint32(g.columns)
			se := sw + 1
			indices = append(indices,
				nw, sw, ne,
				ne, sw, se,
			)
		}
	}

	return &Geometry{Vertices: vertices, Indices: indices, Positions2D: positions2D}
}
