package viewer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/midgard-terrain/internal/app"
	"github.com/Faultbox/midgard-terrain/internal/gpu"
	"github.com/Faultbox/midgard-terrain/internal/gpu/memgpu"
	"github.com/Faultbox/midgard-terrain/internal/terrain"
	"github.com/Faultbox/midgard-terrain/pkg/geo"
	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

func TestStepMorph(t *testing.T) {
	tests := []struct {
		name                string
		current, target, dt float32
		want                float32
	}{
		{"toward map", 0, 1, 0.5, 0.25},
		{"toward globe", 1, 0, 0.5, 0.75},
		{"no overshoot up", 0.9, 1, 1, 1},
		{"no overshoot down", 0.1, 0, 1, 0},
		{"settled", 1, 1, 0.016, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, stepMorph(tt.current, tt.target, tt.dt), 1e-6)
		})
	}
}

func TestClampLevel(t *testing.T) {
	assert.Equal(t, 0, clampLevel(-3))
	assert.Equal(t, 4, clampLevel(4))
	assert.Equal(t, MaxLevel, clampLevel(MaxLevel+5))
}

// attachThroughQueue gives every tile a mesh created on the queue, serving
// the queue the way the render loop does.
func attachThroughQueue(t *testing.T, queue *gpu.Queue, factory gpu.Factory, tiles []*terrain.Tile) {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		var errs []error
		for _, tile := range tiles {
			g := &terrain.Geometry{
				Vertices: []float32{0, 0, 0, 0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1},
				Indices:  []uint32{0, 1, 2},
			}
			errs = append(errs, terrain.CreateTileGeometryFromBuffers(factory, tile, g))
		}
		done <- errors.Join(errs...)
	}()
	for {
		select {
		case err := <-done:
			require.NoError(t, err)
			return
		default:
			queue.RunPending()
		}
	}
}

func TestReleaseAllWaitsForEarlierLevelEviction(t *testing.T) {
	device := memgpu.New()
	queue := gpu.NewQueue(16)
	factory := gpu.Serialize(device, queue)

	scheme := tiling.NewGeographicScheme(geo.WGS84)
	previous := app.Tiles(scheme, 1)
	current := app.Tiles(scheme, 0)
	attachThroughQueue(t, queue, factory, append(append([]*terrain.Tile(nil), previous...), current...))
	require.Equal(t, 3*(len(previous)+len(current)), device.Live())

	core, logs := observer.New(zap.WarnLevel)
	v := &Viewer{queue: queue, log: zap.New(core), tiles: current}

	// Nothing serves the queue between a level switch and shutdown, so the
	// earlier level is still waiting to be released.
	v.evictAsync(previous)
	v.releaseAll()

	assert.Zero(t, device.Live())
	assert.Zero(t, logs.Len(), "no release may hit a closed queue")
	for _, tile := range append(previous, current...) {
		assert.Nil(t, tile.Mesh())
	}
	assert.Nil(t, v.tiles)
}
