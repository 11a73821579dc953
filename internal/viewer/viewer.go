// Package viewer implements the interactive globe viewer: it requests the
// tiles of one level from a terrain provider and draws whatever has been
// attached so far.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/app"
	"github.com/Faultbox/midgard-terrain/internal/engine/camera"
	"github.com/Faultbox/midgard-terrain/internal/engine/input"
	"github.com/Faultbox/midgard-terrain/internal/engine/renderer"
	"github.com/Faultbox/midgard-terrain/internal/engine/window"
	"github.com/Faultbox/midgard-terrain/internal/gpu"
	"github.com/Faultbox/midgard-terrain/internal/gpu/glgpu"
	"github.com/Faultbox/midgard-terrain/internal/terrain"
	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

// MaxLevel bounds the level the viewer will request; every tile of a
// level is kept resident.
const MaxLevel = 7

// Config holds viewer configuration.
type Config struct {
	Title  string
	Width  int
	Height int
	VSync  bool
	Level  int
	Morph  float32
	// CanMorph is set when meshes carry projected positions.
	CanMorph bool
}

// BuildFunc creates the provider once the GPU factory exists.
type BuildFunc func(factory gpu.Factory) (terrain.Provider, error)

// Viewer is the main viewer instance.
type Viewer struct {
	config   Config
	running  bool
	window   *window.Window
	renderer *renderer.Renderer
	input    *input.Input
	camera   *camera.GlobeCamera
	log      *zap.Logger

	queue    *gpu.Queue
	provider terrain.Provider
	scheme   tiling.Scheme

	level       int
	tiles       []*terrain.Tile
	cancelLevel context.CancelFunc
	inFlight    sync.WaitGroup
	evicting    sync.WaitGroup

	morph       float32
	morphTarget float32
}

// New opens the window and builds the provider on a GL factory.
func New(cfg Config, build BuildFunc, log *zap.Logger) (*Viewer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("initializing viewer",
		zap.String("title", cfg.Title),
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
	)

	v := &Viewer{
		config:      cfg,
		log:         log,
		queue:       gpu.NewQueue(256),
		morph:       cfg.Morph,
		morphTarget: cfg.Morph,
	}

	var err error
	v.window, err = window.New(window.Config{
		Title:  cfg.Title,
		Width:  cfg.Width,
		Height: cfg.Height,
		VSync:  cfg.VSync,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	// Renderer AFTER window, since the OpenGL context must exist
	dw, dh := v.window.DrawableSize()
	v.renderer, err = renderer.New(renderer.Config{Width: dw, Height: dh})
	if err != nil {
		v.window.Close()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	v.provider, err = build(gpu.Serialize(glgpu.New(), v.queue))
	if err != nil {
		v.renderer.Close()
		v.window.Close()
		return nil, fmt.Errorf("failed to create terrain provider: %w", err)
	}
	v.scheme = v.provider.TilingScheme()

	v.input = input.New()
	v.camera = camera.NewGlobeCamera(float32(v.scheme.Ellipsoid().MaximumRadius()))
	v.requestLevel(clampLevel(cfg.Level))

	log.Info("viewer initialized")
	return v, nil
}

// Run starts the main loop.
func (v *Viewer) Run() error {
	v.running = true

	lastTime := time.Now()
	frameCount := 0
	fpsTimer := time.Now()

	for v.running {
		now := time.Now()
		dt := float32(now.Sub(lastTime).Seconds())
		lastTime = now

		// 1. Process input
		if v.input.Update() {
			v.running = false
			break
		}
		for _, event := range v.input.Events() {
			v.handle(event)
		}

		// 2. Run GPU uploads and releases queued by the workers
		v.queue.RunPending()

		// 3. Update
		v.morph = stepMorph(v.morph, v.morphTarget, dt)

		// 4. Render and present
		v.render()
		v.window.SwapBuffers()

		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			ready := v.ready()
			v.window.SetTitle(fmt.Sprintf("%s - level %d, %d/%d tiles, %d fps",
				v.config.Title, v.level, ready, len(v.tiles), frameCount))
			v.log.Debug("fps", zap.Int("count", frameCount), zap.Int("tiles_ready", ready))
			frameCount = 0
			fpsTimer = time.Now()
		}
	}

	return nil
}

func (v *Viewer) handle(event input.Event) {
	switch event.Type {
	case input.EventWindowResize:
		v.renderer.Resize(v.window.DrawableSize())
	case input.EventDrag:
		v.camera.HandleDrag(event.DX, event.DY)
	case input.EventZoom:
		v.camera.HandleZoom(event.Zoom)
	case input.EventKeyDown:
		switch event.Key {
		case sdl.K_ESCAPE:
			v.running = false
		case sdl.K_EQUALS, sdl.K_KP_PLUS:
			v.requestLevel(clampLevel(v.level + 1))
		case sdl.K_MINUS, sdl.K_KP_MINUS:
			v.requestLevel(clampLevel(v.level - 1))
		case sdl.K_m:
			if !v.config.CanMorph {
				v.log.Info("morphing needs terrain.project_2d")
				return
			}
			v.morphTarget = 1 - v.morphTarget
		}
	}
}

func (v *Viewer) render() {
	// Sun over the camera's shoulder
	light := v.camera.Position().Add(mgl32.Vec3{0, 0, v.camera.Radius})
	v.renderer.Begin(v.camera.ViewProjection(v.renderer.Aspect()), v.morph, light)
	for _, t := range v.tiles {
		mesh := t.Mesh()
		if mesh == nil {
			continue
		}
		if m, ok := gpu.Unwrap(mesh).(*glgpu.Mesh); ok {
			v.renderer.DrawMesh(m)
		}
	}
	v.renderer.End()
}

// requestLevel replaces the resident tiles with every tile of level.
func (v *Viewer) requestLevel(level int) {
	if v.tiles != nil && level == v.level {
		return
	}
	old := v.tiles
	if v.cancelLevel != nil {
		v.cancelLevel()
	}
	v.evictAsync(old)

	ctx, cancel := context.WithCancel(context.Background())
	v.cancelLevel = cancel
	v.level = level
	v.tiles = app.Tiles(v.scheme, level)

	for _, t := range v.tiles {
		req, err := v.provider.CreateTileGeometry(ctx, t)
		if err != nil {
			v.log.Error("tile request rejected", zap.Stringer("tile", t.Address()), zap.Error(err))
			continue
		}
		v.inFlight.Add(1)
		go v.watch(ctx, req)
	}
	v.log.Info("requested level", zap.Int("level", level), zap.Int("tiles", len(v.tiles)))
}

func (v *Viewer) watch(ctx context.Context, req *terrain.Request) {
	defer v.inFlight.Done()
	<-req.Done()
	_, err := req.Result()
	if err == nil || ctx.Err() != nil || errors.Is(err, terrain.ErrTileEvicted) {
		return
	}
	v.log.Warn("tile geometry failed", zap.Stringer("tile", req.Address()), zap.Error(err))
}

// evictAsync releases tiles off the render thread, since releasing goes
// through the queue the render thread drains.
func (v *Viewer) evictAsync(tiles []*terrain.Tile) {
	if len(tiles) == 0 {
		return
	}
	v.evicting.Add(1)
	go func() {
		defer v.evicting.Done()
		v.evict(tiles)
	}()
}

func (v *Viewer) evict(tiles []*terrain.Tile) {
	for _, t := range tiles {
		if err := t.Evict(); err != nil {
			v.log.Warn("tile release failed", zap.Error(err))
		}
	}
}

func (v *Viewer) ready() int {
	n := 0
	for _, t := range v.tiles {
		if t.Mesh() != nil {
			n++
		}
	}
	return n
}

// Close waits for outstanding requests, releases every mesh and closes
// the window.
func (v *Viewer) Close() {
	v.log.Info("closing viewer")

	v.releaseAll()

	if v.renderer != nil {
		v.renderer.Close()
	}
	if v.window != nil {
		v.window.Close()
	}
}

// releaseAll cancels the current level and serves GPU work until every
// request and every eviction, including those of earlier levels, is done.
// The queue is closed afterwards.
func (v *Viewer) releaseAll() {
	if v.cancelLevel != nil {
		v.cancelLevel()
	}
	current := v.tiles
	v.tiles = nil

	done := make(chan struct{})
	go func() {
		v.inFlight.Wait()
		v.evict(current)
		v.evicting.Wait()
		close(done)
	}()
	for drained := false; !drained; {
		select {
		case <-done:
			drained = true
		default:
			if v.queue.RunPending() == 0 {
				time.Sleep(time.Millisecond)
			}
		}
	}
	v.queue.RunPending()
	v.queue.Close()
}

func clampLevel(level int) int {
	return max(0, min(level, MaxLevel))
}

// morphRate is the fraction of the globe-to-map transition per second.
const morphRate = 0.5

// stepMorph moves current toward target without overshooting.
func stepMorph(current, target, dt float32) float32 {
	step := morphRate * dt
	switch {
	case current < target:
		return min(current+step, target)
	case current > target:
		return max(current-step, target)
	default:
		return current
	}
}
