package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/Faultbox/midgard-terrain/internal/app"
	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/internal/terrain"
	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

func cmdFetch(args []string) {
	cfg, rest := setup(args)
	defer logger.Sync()

	if len(rest) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: terrainctl fetch <level> <x> <y>")
		os.Exit(1)
	}
	addr, err := parseAddress(rest[0], rest[1], rest[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	scheme, err := app.NewScheme(cfg.Terrain.Scheme)
	if err != nil {
		fatal("invalid scheme", err)
	}
	if !scheme.IsValid(addr) {
		fatal("invalid tile", fmt.Errorf("tile %s is outside the %s scheme", addr, cfg.Terrain.Scheme))
	}

	src, cache, err := app.NewSource(cfg.Source, scheme)
	if err != nil {
		fatal("failed to open tile source", err)
	}
	if src == nil {
		fatal("no tile source", fmt.Errorf("set source.dir or source.url"))
	}
	if cache != nil {
		defer cache.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Source.Timeout+time.Second)
	defer cancel()
	data, err := src.Fetch(ctx, addr)
	if err != nil {
		fatal("fetch failed", err)
	}

	fmt.Printf("Tile:     %s\n", addr)
	fmt.Printf("Extent:   %s\n", scheme.TileExtent(addr))
	fmt.Printf("Size:     %d bytes\n", len(data))
	if err := describePayload(os.Stdout, cfg.Terrain.Provider, data); err != nil {
		fatal("decode failed", err)
	}
}

// describePayload decodes data in the format the provider kind consumes.
func describePayload(w io.Writer, kind string, data []byte) error {
	switch kind {
	case terrain.KindHeightmap:
		return describeHeightmap(w, data)
	case terrain.KindMesh:
		return describeMesh(w, data)
	default:
		fmt.Fprintf(w, "Format:   raw (%s provider reads no payloads)\n", kind)
		return nil
	}
}

func parseAddress(level, x, y string) (tiling.Address, error) {
	l, err := strconv.Atoi(level)
	if err != nil {
		return tiling.Address{}, fmt.Errorf("level %q: %w", level, err)
	}
	tx, err := strconv.ParseInt(x, 10, 64)
	if err != nil {
		return tiling.Address{}, fmt.Errorf("x %q: %w", x, err)
	}
	ty, err := strconv.ParseInt(y, 10, 64)
	if err != nil {
		return tiling.Address{}, fmt.Errorf("y %q: %w", y, err)
	}
	return tiling.NewAddress(l, tx, ty), nil
}
