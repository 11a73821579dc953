package terrain

import (
	"context"
	"fmt"

	"github.com/Faultbox/midgard-terrain/internal/terrain/qmesh"
	"github.com/Faultbox/midgard-terrain/internal/tilesource"
	"github.com/Faultbox/midgard-terrain/pkg/geo"
	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

// MeshProvider builds tiles from quantized-mesh payloads. Vertex positions
// are placed on the scheme's ellipsoid; texture coordinates are the
// normalized u/v of each vertex.
type MeshProvider struct {
	r         *runner
	source    tilesource.Source
	project2D bool
}

// NewMeshProvider creates a provider fetching payloads from opts.Meshes.
func NewMeshProvider(opts Options) (*MeshProvider, error) {
	if opts.Meshes == nil {
		return nil, fmt.Errorf("mesh provider without tile source: %w", ErrContractViolation)
	}
	r, err := newRunner(KindMesh, opts)
	if err != nil {
		return nil, err
	}
	return &MeshProvider{r: r, source: opts.Meshes, project2D: opts.Project2D}, nil
}

// TilingScheme implements Provider.
func (p *MeshProvider) TilingScheme() tiling.Scheme {
	if p == nil {
		return nil
	}
	return p.r.tilingScheme()
}

// CreateTileGeometry implements Provider.
func (p *MeshProvider) CreateTileGeometry(ctx context.Context, tile *Tile) (*Request, error) {
	if p == nil {
		return nil, notConstructed("MeshProvider")
	}
	return p.r.start(ctx, tile, p.geometry)
}

func (p *MeshProvider) geometry(ctx context.Context, addr tiling.Address, extent geo.Extent) (*Geometry, error) {
	data, err := p.source.Fetch(ctx, addr)
	if err != nil {
		return nil, err
	}
	m, err := qmesh.Decode(data)
	if err != nil {
		return nil, err
	}
	return meshGeometry(m, p.r.scheme.Ellipsoid(), extent, p.project2D), nil
}

// meshGeometry lifts decoded quantized vertices onto the ellipsoid.
func meshGeometry(m *qmesh.Mesh, e geo.Ellipsoid, extent geo.Extent, project2D bool) *Geometry {
	n := m.VertexCount()
	vertices := make([]float32, 0, n*FloatsPerVertex)
	var positions2D []float32
	if project2D {
		positions2D = make([]float32, 0, n*2)
	}
	radius := e.MaximumRadius()
	heightRange := float64(m.Header.MaximumHeight - m.Header.MinimumHeight)

	for i := range n {
		u := float64(m.U[i]) / qmesh.MaxValue
		v := float64(m.V[i]) / qmesh.MaxValue
		c := extent.Lerp(u, v)
		c.Height = float64(m.Header.MinimumHeight) + float64(m.H[i])/qmesh.MaxValue*heightRange

		pos := e.CartographicToCartesian(c)
		vertices = append(vertices,
			float32(pos.X), float32(pos.Y), float32(pos.Z),
			float32(u), float32(v),
		)
		if project2D {
			positions2D = append(positions2D,
				float32(c.Longitude*radius), float32(c.Latitude*radius))
		}
	}

	return &Geometry{
		Vertices:    vertices,
		Indices:     append([]uint32(nil), m.Indices...),
		Positions2D: positions2D,
	}
}
