// Package config handles terrain tool configuration loading and management.
package config

import (
	"fmt"
	"time"
)

// Config holds all settings.
type Config struct {
	Terrain TerrainConfig `yaml:"terrain"`
	Source  SourceConfig  `yaml:"source"`
	Noise   NoiseConfig   `yaml:"noise"`
	Viewer  ViewerConfig  `yaml:"viewer"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// TerrainConfig selects and tunes the terrain provider.
type TerrainConfig struct {
	Provider          string `yaml:"provider"` // ellipsoid, heightmap or mesh
	Scheme            string `yaml:"scheme"`   // geographic or webmercator
	GridSize          int    `yaml:"grid_size"`
	Workers           int    `yaml:"workers"` // 0 = one per CPU
	Allow32BitIndices bool   `yaml:"allow_32bit_indices"`
	Project2D         bool   `yaml:"project_2d"`
}

// SourceConfig locates tile payloads for the heightmap and mesh providers.
type SourceConfig struct {
	Dir      string        `yaml:"dir"`      // Local tile tree
	URL      string        `yaml:"url"`      // URL template, takes priority over Dir
	Template string        `yaml:"template"` // Path template under Dir
	Timeout  time.Duration `yaml:"timeout"`
	CacheMB  int           `yaml:"cache_mb"` // 0 disables the cache
}

// NoiseConfig shapes procedural heights when the heightmap provider has no source.
type NoiseConfig struct {
	Alpha     float64 `yaml:"alpha"`
	Beta      float64 `yaml:"beta"`
	Octaves   int     `yaml:"octaves"`
	Seed      int64   `yaml:"seed"`
	Amplitude float64 `yaml:"amplitude"`
	Frequency float64 `yaml:"frequency"`
	Size      int     `yaml:"size"`
}

// ViewerConfig holds display settings for terrainview.
type ViewerConfig struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	VSync  bool    `yaml:"vsync"`
	Level  int     `yaml:"level"` // Tile level to display
	Morph  float32 `yaml:"morph"` // 0 = globe, 1 = flat map
}

// MetricsConfig holds the prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // Empty disables /metrics
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	JSON    bool   `yaml:"json"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Terrain: TerrainConfig{
			Provider: "ellipsoid",
			Scheme:   "geographic",
			GridSize: 17,
		},
		Source: SourceConfig{
			Template: "{z}/{x}/{y}.terrain",
			Timeout:  10 * time.Second,
			CacheMB:  64,
		},
		Noise: NoiseConfig{
			Alpha:     2,
			Beta:      2,
			Octaves:   3,
			Seed:      1,
			Amplitude: 2000,
			Frequency: 8,
			Size:      33,
		},
		Viewer: ViewerConfig{
			Width:  1280,
			Height: 720,
			VSync:  true,
			Level:  2,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports settings no component can work with.
func (c *Config) Validate() error {
	switch c.Terrain.Provider {
	case "ellipsoid", "heightmap", "mesh":
	default:
		return fmt.Errorf("terrain.provider %q: want ellipsoid, heightmap or mesh", c.Terrain.Provider)
	}
	switch c.Terrain.Scheme {
	case "geographic", "webmercator":
	default:
		return fmt.Errorf("terrain.scheme %q: want geographic or webmercator", c.Terrain.Scheme)
	}
	if c.Terrain.GridSize < 2 {
		return fmt.Errorf("terrain.grid_size %d: must be at least 2", c.Terrain.GridSize)
	}
	if c.Terrain.Workers < 0 {
		return fmt.Errorf("terrain.workers %d: must not be negative", c.Terrain.Workers)
	}
	if c.Terrain.Provider == "mesh" && c.Source.Dir == "" && c.Source.URL == "" {
		return fmt.Errorf("terrain.provider mesh needs source.dir or source.url")
	}
	if c.Source.CacheMB < 0 {
		return fmt.Errorf("source.cache_mb %d: must not be negative", c.Source.CacheMB)
	}
	if c.Viewer.Level < 0 {
		return fmt.Errorf("viewer.level %d: must not be negative", c.Viewer.Level)
	}
	if c.Viewer.Morph < 0 || c.Viewer.Morph > 1 {
		return fmt.Errorf("viewer.morph %.2f: must be within [0, 1]", c.Viewer.Morph)
	}
	return nil
}
