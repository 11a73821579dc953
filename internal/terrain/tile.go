package terrain

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/gpu"
	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

// Tile is the per-node record owned by the tile tree. Providers only ever
// write its mesh, and only while the generation they started with is
// still current.
type Tile struct {
	address tiling.Address

	mu         sync.Mutex
	generation uint64
	mesh       gpu.Mesh
}

// NewTile creates an empty tile record.
func NewTile(addr tiling.Address) *Tile {
	return &Tile{address: addr}
}

// Address returns the tile address.
func (t *Tile) Address() tiling.Address { return t.address }

// Generation returns the eviction counter.
func (t *Tile) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}

// Mesh returns the attached mesh, or nil.
func (t *Tile) Mesh() gpu.Mesh {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mesh
}

// Evict invalidates pending requests and releases the attached mesh.
func (t *Tile) Evict() error {
	t.mu.Lock()
	t.generation++
	mesh := t.mesh
	t.mesh = nil
	t.mu.Unlock()

	if mesh == nil {
		return nil
	}
	if err := mesh.Destroy(); err != nil {
		return fmt.Errorf("release tile %s mesh: %w", t.address, err)
	}
	return nil
}

// current reports whether gen is still the live generation.
func (t *Tile) current(gen uint64) bool {
	return t.Generation() == gen
}

// attach stores mesh if gen is still current and returns the mesh it
// replaced, which the caller must release. Otherwise mesh is destroyed, the
// tile is left untouched and the error wraps ErrTileEvicted.
func (t *Tile) attach(gen uint64, mesh gpu.Mesh) (gpu.Mesh, error) {
	t.mu.Lock()
	if t.generation != gen {
		t.mu.Unlock()
		err := fmt.Errorf("tile %s: %w", t.address, ErrTileEvicted)
		if derr := mesh.Destroy(); derr != nil {
			err = errors.Join(err, derr)
		}
		return nil, err
	}
	old := t.mesh
	t.mesh = mesh
	t.mu.Unlock()

	if old == mesh {
		return nil, nil
	}
	return old, nil
}

// releaseReplaced destroys a mesh no tile references any more. The tile
// already holds its new mesh, so a failure only leaks GPU memory and is
// logged rather than failing the request that attached the new one.
func releaseReplaced(log *zap.Logger, addr tiling.Address, old gpu.Mesh) {
	if old == nil {
		return
	}
	if err := old.Destroy(); err != nil {
		log.Warn("releasing replaced tile mesh failed", zap.Stringer("tile", addr), zap.Error(err))
	}
}
