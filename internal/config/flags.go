package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagProvider  = flag.String("provider", "", "Terrain provider: ellipsoid, heightmap or mesh")
	flagScheme    = flag.String("scheme", "", "Tiling scheme: geographic or webmercator")
	flagWorkers   = flag.Int("workers", 0, "Concurrent geometry workers")
	flagSourceDir = flag.String("source-dir", "", "Directory of tile payloads")
	flagSourceURL = flag.String("source-url", "", "URL template of tile payloads")
	flagMetrics   = flag.String("metrics-addr", "", "Serve prometheus metrics on this address")
	flagLevel     = flag.Int("level", -1, "Tile level to display")
	flagWidth     = flag.Int("width", 0, "Window width")
	flagHeight    = flag.Int("height", 0, "Window height")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagProvider != "" {
		cfg.Terrain.Provider = *flagProvider
	}
	if *flagScheme != "" {
		cfg.Terrain.Scheme = *flagScheme
	}
	if *flagWorkers > 0 {
		cfg.Terrain.Workers = *flagWorkers
	}
	if *flagSourceDir != "" {
		cfg.Source.Dir = *flagSourceDir
	}
	if *flagSourceURL != "" {
		cfg.Source.URL = *flagSourceURL
	}
	if *flagMetrics != "" {
		cfg.Metrics.Addr = *flagMetrics
	}
	if *flagLevel >= 0 {
		cfg.Viewer.Level = *flagLevel
	}
	if *flagWidth > 0 {
		cfg.Viewer.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Viewer.Height = *flagHeight
	}
}

// ParseArgs parses flags from args rather than the process arguments and
// returns what is left. Subcommand tools pass everything after the command.
func ParseArgs(args []string) []string {
	_ = flag.CommandLine.Parse(args)
	return flag.CommandLine.Args()
}
