package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/midgard-terrain/internal/app"
	"github.com/Faultbox/midgard-terrain/internal/gpu"
	"github.com/Faultbox/midgard-terrain/internal/gpu/memgpu"
	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/internal/terrain"
	"github.com/Faultbox/midgard-terrain/pkg/geo"
	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

// levelStats summarizes the meshes produced for one level.
type levelStats struct {
	Level     int
	Tiles     int
	Vertices  int
	Triangles int
	Wide      int // meshes with 32-bit indices
	Elapsed   time.Duration
}

func (s *levelStats) add(mesh gpu.Mesh) {
	s.Tiles++
	for _, a := range mesh.Attributes() {
		if a.Index != terrain.AttributePosition3D {
			continue
		}
		if src, ok := a.Source.(gpu.PerVertexStream); ok {
			s.Vertices += src.Buffer.SizeInBytes() / terrain.VertexStrideInBytes
		}
	}
	ib := mesh.IndexBuffer()
	s.Triangles += ib.Count() / 3
	if ib.Datatype() == gpu.UnsignedInt {
		s.Wide++
	}
}

func cmdPack(args []string) {
	cfg, rest := setup(args)
	defer logger.Sync()

	maxLevel := 2
	if len(rest) > 0 {
		n, err := strconv.Atoi(rest[0])
		if err != nil || n < 0 {
			fmt.Fprintln(os.Stderr, packUsage)
			os.Exit(1)
		}
		maxLevel = n
	}
	within := geo.MaxExtent
	if len(rest) > 1 {
		e, err := parseExtent(rest[1:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n%s\n", err, packUsage)
			os.Exit(1)
		}
		within = e
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := logger.Named("pack")

	// The headless device is driven from one goroutine, the way a render
	// thread would drive a real one.
	queue := gpu.NewQueue(64)
	defer queue.Close()
	device := memgpu.New()
	serveCtx, stopServe := context.WithCancel(context.Background())
	defer stopServe()
	go func() { _ = queue.Serve(serveCtx) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	tr, err := app.Build(cfg, gpu.Serialize(device, queue), reg, log)
	if err != nil {
		fatal("failed to build terrain provider", err)
	}
	defer tr.Close()

	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, reg, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	fmt.Printf("Provider: %s  Scheme: %s  Levels: 0..%d  Extent: %s\n\n",
		cfg.Terrain.Provider, cfg.Terrain.Scheme, maxLevel, within)
	fmt.Printf("  %-6s %-8s %-12s %-12s %-6s %s\n", "LEVEL", "TILES", "VERTICES", "TRIANGLES", "WIDE", "ELAPSED")

	err = packLevels(ctx, tr.Provider, tr.Scheme, maxLevel, within, func(s levelStats) {
		fmt.Printf("  %-6d %-8d %-12d %-12d %-6d %v\n",
			s.Level, s.Tiles, s.Vertices, s.Triangles, s.Wide, s.Elapsed.Round(time.Millisecond))
	})
	if err != nil {
		fatal("pack failed", err)
	}

	if tr.Source != nil {
		st := tr.CacheStats()
		fmt.Printf("\nFetch cache: %d hits, %d misses, %d shared\n", st.Hits, st.Misses, st.Shared)
	}
	if live := device.Live(); live != 0 {
		fatal("pack leaked gpu resources", fmt.Errorf("%d resources still live", live))
	}
	log.Info("pack finished", zap.Int("max_level", maxLevel))
}

const packUsage = "Usage: terrainctl pack [max-level] [west south east north]"

// parseExtent reads west, south, east and north in degrees.
func parseExtent(args []string) (geo.Extent, error) {
	if len(args) != 4 {
		return geo.Extent{}, fmt.Errorf("extent needs 4 values, got %d", len(args))
	}
	var v [4]float64
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return geo.Extent{}, fmt.Errorf("extent value %q: %w", a, err)
		}
		v[i] = f
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if b.Min.Lon() >= b.Max.Lon() || b.Min.Lat() >= b.Max.Lat() {
		return geo.Extent{}, fmt.Errorf("extent %v is empty", args)
	}
	return geo.ExtentFromBound(b), nil
}

// maxPackTiles bounds the tile records one level may allocate.
const maxPackTiles = 1 << 20

// tilesWithin returns tile records for the addresses at level that
// overlap within. Only the overlapping block is allocated.
func tilesWithin(scheme tiling.Scheme, level int, within geo.Extent) ([]*terrain.Tile, error) {
	r, ok := tiling.Overlapping(scheme, level, within)
	if !ok {
		return nil, nil
	}
	if r.Columns() > maxPackTiles || r.Rows() > maxPackTiles || r.Columns()*r.Rows() > maxPackTiles {
		return nil, fmt.Errorf("%dx%d tiles exceed the limit of %d per level, narrow the extent",
			r.Columns(), r.Rows(), maxPackTiles)
	}
	tiles := make([]*terrain.Tile, 0, r.Columns()*r.Rows())
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			tiles = append(tiles, terrain.NewTile(tiling.NewAddress(level, x, y)))
		}
	}
	return tiles, nil
}

// packLevels requests every tile of levels 0..maxLevel overlapping
// within, reports each level and releases its meshes before moving on.
// The first failure cancels the level and is returned.
func packLevels(ctx context.Context, p terrain.Provider, scheme tiling.Scheme, maxLevel int, within geo.Extent, report func(levelStats)) error {
	for level := 0; level <= maxLevel; level++ {
		start := time.Now()
		tiles, err := tilesWithin(scheme, level, within)
		if err != nil {
			return fmt.Errorf("level %d: %w", level, err)
		}
		stats := levelStats{Level: level}
		var mu sync.Mutex

		g, gctx := errgroup.WithContext(ctx)
		for _, tile := range tiles {
			req, err := p.CreateTileGeometry(gctx, tile)
			if err != nil {
				_ = g.Wait()
				return errors.Join(err, evictAll(tiles))
			}
			g.Go(func() error {
				mesh, err := req.Wait(gctx)
				if err != nil {
					return err
				}
				mu.Lock()
				stats.add(mesh)
				mu.Unlock()
				return nil
			})
		}
		err = g.Wait()
		if evictErr := evictAll(tiles); evictErr != nil {
			err = errors.Join(err, evictErr)
		}
		if err != nil {
			return fmt.Errorf("level %d: %w", level, err)
		}

		stats.Elapsed = time.Since(start)
		report(stats)
	}
	return nil
}

func evictAll(tiles []*terrain.Tile) error {
	var errs []error
	for _, t := range tiles {
		if err := t.Evict(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return srv
}
