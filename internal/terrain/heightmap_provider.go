package terrain

import (
	"context"
	"fmt"

	"github.com/Faultbox/midgard-terrain/internal/terrain/heightmap"
	"github.com/Faultbox/midgard-terrain/pkg/geo"
	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

// HeightmapSource supplies a height grid covering a tile extent.
type HeightmapSource interface {
	Heightmap(ctx context.Context, addr tiling.Address, extent geo.Extent) (*heightmap.Heightmap, error)
}

// HeightmapProvider meshes each tile from a height grid, one vertex per sample.
type HeightmapProvider struct {
	r         *runner
	source    HeightmapSource
	project2D bool
}

// NewHeightmapProvider creates a provider reading heights from opts.Heightmaps.
func NewHeightmapProvider(opts Options) (*HeightmapProvider, error) {
	if opts.Heightmaps == nil {
		return nil, fmt.Errorf("heightmap provider without source: %w", ErrContractViolation)
	}
	r, err := newRunner(KindHeightmap, opts)
	if err != nil {
		return nil, err
	}
	return &HeightmapProvider{r: r, source: opts.Heightmaps, project2D: opts.Project2D}, nil
}

// TilingScheme implements Provider.
func (p *HeightmapProvider) TilingScheme() tiling.Scheme {
	if p == nil {
		return nil
	}
	return p.r.tilingScheme()
}

// CreateTileGeometry implements Provider.
func (p *HeightmapProvider) CreateTileGeometry(ctx context.Context, tile *Tile) (*Request, error) {
	if p == nil {
		return nil, notConstructed("HeightmapProvider")
	}
	return p.r.start(ctx, tile, p.geometry)
}

func (p *HeightmapProvider) geometry(ctx context.Context, addr tiling.Address, extent geo.Extent) (*Geometry, error) {
	hm, err := p.source.Heightmap(ctx, addr, extent)
	if err != nil {
		return nil, err
	}
	if err := hm.Validate(); err != nil {
		return nil, err
	}
	return grid{
		ellipsoid: p.r.scheme.Ellipsoid(),
		extent:    extent,
		columns:   hm.Width,
		rows:      hm.Height,
		height: func(col, row int) float64 {
			return float64(hm.At(col, row))
		},
		project2D: p.project2D,
	}.build(), nil
}
