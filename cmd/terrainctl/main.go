// terrainctl is a CLI utility for inspecting and exercising terrain providers.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/internal/terrain"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "layout":
		cmdLayout()
	case "pack":
		cmdPack(args)
	case "fetch":
		cmdFetch(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`terrainctl - terrain geometry utility

Usage:
  terrainctl <command> [flags] [args]

Commands:
  layout                 Print the tile vertex attribute layout
  pack [max-level] [w s e n]
                         Build every tile of levels 0..max-level headlessly,
                         optionally only those overlapping an extent (degrees)
  fetch <level> <x> <y>  Fetch a tile payload and describe it
  config [path|-]        Write the effective config (defaults, file, flags)
                         to path, stdout, or the user config directory

Flags (all commands):
  -config <file>         Config file (default: ./terrain.yaml)
  -provider <kind>       ellipsoid, heightmap or mesh
  -scheme <name>         geographic or webmercator
  -source-dir <dir>      Directory of tile payloads
  -source-url <url>      URL template of tile payloads
  -workers <n>           Concurrent geometry workers
  -metrics-addr <addr>   Serve prometheus metrics while packing
  -debug                 Enable debug logging

Examples:
  terrainctl layout
  terrainctl pack -provider heightmap 3
  terrainctl pack 6 5 45 15 55
  terrainctl fetch -provider mesh -source-dir ./tiles 2 5 1
  terrainctl config -provider heightmap -workers 4 ./terrain.yaml`)
}

// setup parses flags, loads config and starts logging.
func setup(args []string) (*config.Config, []string) {
	rest := config.ParseArgs(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.InitWithFileConfig(cfg.Logging.Level, logFile(cfg.Logging), true); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	logger.Sugar.Debugf("Config: %+v", cfg)
	return cfg, rest
}

func logFile(c config.LoggingConfig) logger.FileConfig {
	if c.LogFile == "" {
		return logger.FileConfig{}
	}
	fc := logger.DefaultFileConfig(c.LogFile)
	fc.JSON = c.JSON
	return fc
}

func fatal(msg string, err error) {
	logger.Error(msg, zap.Error(err))
	logger.Sync()
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func cmdLayout() {
	fmt.Printf("Vertex stride: %d bytes (%d floats)\n", terrain.VertexStrideInBytes, terrain.FloatsPerVertex)
	fmt.Println()
	fmt.Printf("  %-5s %-20s %-10s %s\n", "LOC", "NAME", "COMPONENTS", "SOURCE")
	for _, a := range terrain.Attributes(nil, nil) {
		fmt.Printf("  %-5d %-20s %-10d %s\n", a.Index, a.Name, components(a), describeSource(a))
	}
	fmt.Println()
	fmt.Printf("With projected positions, %s reads a separate stream with stride %d bytes.\n",
		terrain.NamePosition2D, terrain.Position2DStrideInBytes)
	fmt.Printf("Indices are 16-bit up to %d vertices.\n", terrain.MaxVertices16)
}
