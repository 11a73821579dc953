package terrain

import (
	"context"
	"fmt"

	"github.com/Faultbox/midgard-terrain/pkg/geo"
	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

// EllipsoidProvider produces a smooth ellipsoid surface with no relief.
// Geometry is computed locally, so any valid address at any level succeeds.
type EllipsoidProvider struct {
	r         *runner
	gridSize  int
	project2D bool
}

// NewEllipsoidProvider creates a provider meshing each tile as a
// GridSize x GridSize vertex grid at height zero.
func NewEllipsoidProvider(opts Options) (*EllipsoidProvider, error) {
	gridSize := opts.GridSize
	if gridSize == 0 {
		gridSize = DefaultGridSize
	}
	if gridSize < 2 {
		return nil, fmt.Errorf("grid size %d below 2: %w", gridSize, ErrContractViolation)
	}
	if gridSize*gridSize > MaxVertices16 && !opts.Allow32BitIndices {
		return nil, fmt.Errorf("grid size %d needs 32-bit indices: %w", gridSize, ErrContractViolation)
	}
	r, err := newRunner(KindEllipsoid, opts)
	if err != nil {
		return nil, err
	}
	return &EllipsoidProvider{r: r, gridSize: gridSize, project2D: opts.Project2D}, nil
}

// TilingScheme implements Provider.
func (p *EllipsoidProvider) TilingScheme() tiling.Scheme {
	if p == nil {
		return nil
	}
	return p.r.tilingScheme()
}

// CreateTileGeometry implements Provider.
func (p *EllipsoidProvider) CreateTileGeometry(ctx context.Context, tile *Tile) (*Request, error) {
	if p == nil {
		return nil, notConstructed("EllipsoidProvider")
	}
	return p.r.start(ctx, tile, p.geometry)
}

func (p *EllipsoidProvider) geometry(_ context.Context, _ tiling.Address, extent geo.Extent) (*Geometry, error) {
	return grid{
		ellipsoid: p.r.scheme.Ellipsoid(),
		extent:    extent,
		columns:   p.gridSize,
		rows:      p.gridSize,
		project2D: p.project2D,
	}.build(), nil
}
