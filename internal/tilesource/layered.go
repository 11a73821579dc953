package tilesource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

// Layered searches several sources, most recently added first. A source
// without the tile defers to the next one; any other error stops the search.
type Layered struct {
	mu      sync.RWMutex
	sources []Source
}

// NewLayered creates a layered source searching sources in reverse order.
func NewLayered(sources ...Source) *Layered {
	return &Layered{sources: sources}
}

// Add puts src on top.
func (l *Layered) Add(src Source) {
	l.mu.Lock()
	l.sources = append(l.sources, src)
	l.mu.Unlock()
}

// Len returns the number of sources.
func (l *Layered) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sources)
}

// Fetch implements Source.
func (l *Layered) Fetch(ctx context.Context, addr tiling.Address) ([]byte, error) {
	l.mu.RLock()
	sources := append([]Source(nil), l.sources...)
	l.mu.RUnlock()

	for i := len(sources) - 1; i >= 0; i-- {
		data, err := sources[i].Fetch(ctx, addr)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("tile %s in %d sources: %w", addr, len(sources), ErrNotFound)
}
