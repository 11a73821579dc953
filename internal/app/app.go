// Package app turns a loaded config into a ready terrain provider.
package app

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/gpu"
	"github.com/Faultbox/midgard-terrain/internal/terrain"
	"github.com/Faultbox/midgard-terrain/internal/terrain/heightmap"
	"github.com/Faultbox/midgard-terrain/internal/tilesource"
	"github.com/Faultbox/midgard-terrain/pkg/geo"
	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

// Terrain is a provider plus the resources it was built on.
type Terrain struct {
	Provider terrain.Provider
	Scheme   tiling.Scheme
	Metrics  *terrain.Metrics

	// Source is nil for providers that fetch nothing.
	Source tilesource.Source
	cache  *tilesource.Cached
}

// CacheStats returns fetch cache counters, or zero when caching is off.
func (t *Terrain) CacheStats() tilesource.Stats {
	if t.cache == nil {
		return tilesource.Stats{}
	}
	return t.cache.Stats()
}

// Close releases the fetch cache.
func (t *Terrain) Close() {
	if t.cache != nil {
		t.cache.Close()
	}
}

// NewScheme returns the tiling scheme named by cfg on WGS84.
func NewScheme(name string) (tiling.Scheme, error) {
	switch name {
	case "geographic":
		return tiling.NewGeographicScheme(geo.WGS84), nil
	case "webmercator":
		return tiling.NewWebMercatorScheme(geo.WGS84), nil
	default:
		return nil, fmt.Errorf("unknown tiling scheme %q", name)
	}
}

// NewSource builds the tile source described by cfg. Both a directory
// and a URL may be set; the directory then overrides the URL per tile.
// It returns nil when neither is set.
func NewSource(cfg config.SourceConfig, scheme tiling.Scheme) (tilesource.Source, *tilesource.Cached, error) {
	if cfg.Dir == "" && cfg.URL == "" {
		return nil, nil, nil
	}

	layered := tilesource.NewLayered()
	if cfg.URL != "" {
		tmpl, err := tilesource.NewTemplate(cfg.URL, scheme)
		if err != nil {
			return nil, nil, fmt.Errorf("source url: %w", err)
		}
		layered.Add(tilesource.NewHTTPSource(tmpl, cfg.Timeout))
	}
	if cfg.Dir != "" {
		tmpl, err := tilesource.NewTemplate(cfg.Template, scheme)
		if err != nil {
			return nil, nil, fmt.Errorf("source template: %w", err)
		}
		fs, err := tilesource.NewFileSource(cfg.Dir, tmpl)
		if err != nil {
			return nil, nil, err
		}
		layered.Add(fs)
	}

	if cfg.CacheMB == 0 {
		return layered, nil, nil
	}
	cached, err := tilesource.NewCached(layered, int64(cfg.CacheMB)<<20)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached, nil
}

// Build wires a provider from cfg. reg may be nil to skip metrics
// registration.
func Build(cfg *config.Config, factory gpu.Factory, reg prometheus.Registerer, log *zap.Logger) (*Terrain, error) {
	if log == nil {
		log = zap.NewNop()
	}
	scheme, err := NewScheme(cfg.Terrain.Scheme)
	if err != nil {
		return nil, err
	}
	metrics, err := terrain.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("terrain metrics: %w", err)
	}

	t := &Terrain{Scheme: scheme, Metrics: metrics}
	opts := terrain.Options{
		Kind:              cfg.Terrain.Provider,
		Scheme:            scheme,
		Factory:           factory,
		Workers:           cfg.Terrain.Workers,
		GridSize:          cfg.Terrain.GridSize,
		Allow32BitIndices: cfg.Terrain.Allow32BitIndices,
		Project2D:         cfg.Terrain.Project2D,
		Logger:            log,
		Metrics:           metrics,
	}

	switch cfg.Terrain.Provider {
	case terrain.KindHeightmap, terrain.KindMesh:
		src, cache, err := NewSource(cfg.Source, scheme)
		if err != nil {
			return nil, err
		}
		t.Source, t.cache = src, cache
	}

	switch cfg.Terrain.Provider {
	case terrain.KindHeightmap:
		if t.Source != nil {
			opts.Heightmaps = heightmap.NewTileSource(t.Source)
		} else {
			opts.Heightmaps = heightmap.NewNoiseSource(noiseConfig(cfg.Noise))
			log.Info("heightmap provider without source, using noise",
				zap.Int64("seed", cfg.Noise.Seed))
		}
	case terrain.KindMesh:
		if t.Source == nil {
			return nil, errors.New("mesh provider needs source.dir or source.url")
		}
		opts.Meshes = t.Source
	}

	p, err := terrain.New(opts)
	if err != nil {
		t.Close()
		return nil, err
	}
	t.Provider = p

	log.Info("terrain provider ready",
		zap.String("provider", cfg.Terrain.Provider),
		zap.String("scheme", cfg.Terrain.Scheme),
		zap.Bool("cached", t.cache != nil),
	)
	return t, nil
}

func noiseConfig(c config.NoiseConfig) heightmap.NoiseConfig {
	return heightmap.NoiseConfig{
		Alpha:     c.Alpha,
		Beta:      c.Beta,
		Octaves:   int32(c.Octaves),
		Seed:      c.Seed,
		Amplitude: c.Amplitude,
		Frequency: c.Frequency,
		Size:      c.Size,
	}
}

// Tiles returns a fresh tile record for every address at level.
func Tiles(scheme tiling.Scheme, level int) []*terrain.Tile {
	nx, ny := scheme.TilesX(level), scheme.TilesY(level)
	tiles := make([]*terrain.Tile, 0, nx*ny)
	for y := range ny {
		for x := range nx {
			tiles = append(tiles, terrain.NewTile(tiling.NewAddress(level, x, y)))
		}
	}
	return tiles
}
