package heightmap

import (
	"context"
	"fmt"

	"github.com/aquilax/go-perlin"

	"github.com/Faultbox/midgard-terrain/internal/tilesource"
	"github.com/Faultbox/midgard-terrain/pkg/geo"
	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

// TileSource decodes heightmap-1.0 payloads fetched from a tile source.
type TileSource struct {
	src tilesource.Source
}

// NewTileSource creates a heightmap reader over src.
func NewTileSource(src tilesource.Source) *TileSource {
	return &TileSource{src: src}
}

// Heightmap fetches and decodes the tile at addr.
func (s *TileSource) Heightmap(ctx context.Context, addr tiling.Address, _ geo.Extent) (*Heightmap, error) {
	data, err := s.src.Fetch(ctx, addr)
	if err != nil {
		return nil, err
	}
	h, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", addr, err)
	}
	return h, nil
}

// NoiseConfig parameterizes the procedural height field.
type NoiseConfig struct {
	Alpha     float64
	Beta      float64
	Octaves   int32
	Seed      int64
	Amplitude float64 // meters
	// Frequency is noise periods per radian of longitude or latitude.
	Frequency float64
	// Size is the samples per tile side.
	Size int
}

// DefaultNoiseConfig returns gentle rolling hills.
func DefaultNoiseConfig() NoiseConfig {
	return NoiseConfig{
		Alpha:     2,
		Beta:      2,
		Octaves:   3,
		Seed:      1,
		Amplitude: 2000,
		Frequency: 8,
		Size:      33,
	}
}

// NoiseSource produces deterministic perlin heights sampled at geographic
// positions, so neighbouring tiles share their edge heights at any level.
type NoiseSource struct {
	cfg   NoiseConfig
	noise *perlin.Perlin
}

// NewNoiseSource creates a noise height field.
func NewNoiseSource(cfg NoiseConfig) *NoiseSource {
	if cfg.Size < 2 {
		cfg.Size = DefaultNoiseConfig().Size
	}
	if cfg.Octaves < 1 {
		cfg.Octaves = 1
	}
	return &NoiseSource{
		cfg:   cfg,
		noise: perlin.NewPerlin(cfg.Alpha, cfg.Beta, cfg.Octaves, cfg.Seed),
	}
}

// Sample returns the height at a geographic position in radians.
func (s *NoiseSource) Sample(lon, lat float64) float64 {
	return s.noise.Noise2D(lon*s.cfg.Frequency, lat*s.cfg.Frequency) * s.cfg.Amplitude
}

// Heightmap samples a Size x Size grid over extent.
func (s *NoiseSource) Heightmap(ctx context.Context, _ tiling.Address, extent geo.Extent) (*Heightmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := s.cfg.Size
	heights := make([]float32, 0, n*n)
	for row := range n {
		v := 1 - float64(row)/float64(n-1)
		for col := range n {
			c := extent.Lerp(float64(col)/float64(n-1), v)
			heights = append(heights, float32(s.Sample(c.Longitude, c.Latitude)))
		}
	}
	return &Heightmap{Width: n, Height: n, Heights: heights}, nil
}
