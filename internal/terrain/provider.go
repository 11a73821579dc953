// Package terrain produces GPU-ready tile meshes for a quadtree-tiled globe.
//
// A Provider turns a tile address into surface geometry. Every provider
// shares one attribute layout (see Attributes) so the renderer's shaders
// work with any of them. Geometry is computed on worker goroutines; the
// resulting Request resolves once the mesh is attached to the tile or the
// attempt fails.
//
// Providers do not deduplicate concurrent requests for the same address.
// Wrap the tile source with tilesource.NewCached to share fetches.
package terrain

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Faultbox/midgard-terrain/internal/gpu"
	"github.com/Faultbox/midgard-terrain/internal/tilesource"
	"github.com/Faultbox/midgard-terrain/pkg/geo"
	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

// Provider produces tile geometry in a tiling scheme.
type Provider interface {
	// TilingScheme returns the scheme every requested address must be valid in.
	TilingScheme() tiling.Scheme

	// CreateTileGeometry starts producing geometry for tile and returns
	// without blocking. The returned error is only set for contract
	// violations; production failures are reported by the Request.
	// Cancelling ctx abandons the request.
	CreateTileGeometry(ctx context.Context, tile *Tile) (*Request, error)
}

// Provider kinds accepted by New.
const (
	KindBase      = "base"
	KindEllipsoid = "ellipsoid"
	KindHeightmap = "heightmap"
	KindMesh      = "mesh"
)

// DefaultGridSize is the vertex count per side of an ellipsoid tile.
const DefaultGridSize = 17

// Options configures a provider.
type Options struct {
	// Kind selects the provider built by New.
	Kind string

	Scheme  tiling.Scheme
	Factory gpu.Factory

	// Workers bounds concurrent geometry production. Defaults to GOMAXPROCS.
	Workers int

	// GridSize is the vertex count per side for EllipsoidProvider.
	GridSize int

	Allow32BitIndices bool

	// Project2D emits projected positions so the position2D attribute is
	// bound to a real stream.
	Project2D bool

	// Heightmaps feeds HeightmapProvider.
	Heightmaps HeightmapSource

	// Meshes feeds MeshProvider with quantized-mesh payloads.
	Meshes tilesource.Source

	Logger  *zap.Logger
	Metrics *Metrics
}

// New builds the provider named by opts.Kind. The abstract kind and
// unknown kinds are contract violations.
func New(opts Options) (Provider, error) {
	switch opts.Kind {
	case "", KindBase:
		return nil, fmt.Errorf("terrain provider kind %q is abstract: %w", opts.Kind, ErrContractViolation)
	case KindEllipsoid:
		p, err := NewEllipsoidProvider(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KindHeightmap:
		p, err := NewHeightmapProvider(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KindMesh:
		p, err := NewMeshProvider(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown terrain provider kind %q: %w", opts.Kind, ErrContractViolation)
	}
}

// produceFunc computes raw geometry for one tile.
type produceFunc func(ctx context.Context, addr tiling.Address, extent geo.Extent) (*Geometry, error)

// runner carries what every provider shares: the scheme, the packer and
// the worker limit.
type runner struct {
	name    string
	scheme  tiling.Scheme
	packer  *Packer
	workers *semaphore.Weighted
	log     *zap.Logger
	metrics *Metrics
}

func newRunner(name string, opts Options) (*runner, error) {
	if opts.Scheme == nil {
		return nil, fmt.Errorf("%s provider without tiling scheme: %w", name, ErrContractViolation)
	}
	if opts.Factory == nil {
		return nil, fmt.Errorf("%s provider without gpu factory: %w", name, ErrContractViolation)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &runner{
		name:    name,
		scheme:  opts.Scheme,
		packer:  NewPacker(opts.Factory, PackerOptions{Allow32BitIndices: opts.Allow32BitIndices}),
		workers: semaphore.NewWeighted(int64(workers)),
		log:     log.With(zap.String("provider", name)),
		metrics: opts.Metrics,
	}, nil
}

func (r *runner) tilingScheme() tiling.Scheme {
	if r == nil {
		return nil
	}
	return r.scheme
}

func notConstructed(name string) error {
	return fmt.Errorf("%s used without its constructor: %w", name, ErrContractViolation)
}

// start checks the call contract and runs produce on a worker goroutine.
func (r *runner) start(ctx context.Context, tile *Tile, produce produceFunc) (*Request, error) {
	if r == nil || r.scheme == nil || r.packer == nil {
		return nil, notConstructed("terrain provider")
	}
	if tile == nil {
		return nil, fmt.Errorf("nil tile: %w", ErrContractViolation)
	}
	addr := tile.Address()
	if !r.scheme.IsValid(addr) {
		return nil, fmt.Errorf("tile %s: %w", addr, ErrInvalidAddress)
	}

	gen := tile.Generation()
	req := newRequest(addr)
	r.metrics.started()
	start := time.Now()

	go func() {
		mesh, err := r.run(ctx, tile, gen, produce)
		r.metrics.finished(r.name, start, err)
		if err != nil {
			r.log.Debug("tile geometry failed", zap.Stringer("tile", addr), zap.Error(err))
		} else {
			r.log.Debug("tile geometry attached", zap.Stringer("tile", addr),
				zap.Duration("elapsed", time.Since(start)))
		}
		req.complete(mesh, err)
	}()
	return req, nil
}

func (r *runner) run(ctx context.Context, tile *Tile, gen uint64, produce produceFunc) (gpu.Mesh, error) {
	addr := tile.Address()
	if err := r.workers.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("tile %s: %w", addr, err)
	}
	defer r.workers.Release(1)

	g, err := produce(ctx, addr, r.scheme.TileExtent(addr))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("tile %s: %w", addr, ctxErr)
		}
		return nil, fmt.Errorf("tile %s: %w: %w", addr, ErrGeometryUnavailable, err)
	}

	// Skip the upload entirely when the tile went away while producing.
	if !tile.current(gen) {
		return nil, fmt.Errorf("tile %s: %w", addr, ErrTileEvicted)
	}

	mesh, err := r.packer.Pack(g)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", addr, err)
	}
	replaced, err := tile.attach(gen, mesh)
	if err != nil {
		return nil, err
	}
	releaseReplaced(r.log, addr, replaced)
	return mesh, nil
}
