package terrain

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/midgard-terrain/internal/gpu"
	"github.com/Faultbox/midgard-terrain/internal/gpu/memgpu"
	"github.com/Faultbox/midgard-terrain/internal/terrain/heightmap"
	"github.com/Faultbox/midgard-terrain/internal/terrain/qmesh"
	"github.com/Faultbox/midgard-terrain/internal/tilesource"
	"github.com/Faultbox/midgard-terrain/pkg/geo"
	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

var testEllipsoid = geo.WGS84

func wait(t *testing.T, req *Request) (gpu.Mesh, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mesh, err := req.Wait(ctx)
	require.False(t, errors.Is(err, context.DeadlineExceeded), "request %s did not resolve", req.Address())
	return mesh, err
}

func ellipsoidOptions(f gpu.Factory) Options {
	return Options{
		Kind:     KindEllipsoid,
		Scheme:   tiling.NewGeographicScheme(testEllipsoid),
		Factory:  f,
		GridSize: 5,
	}
}

func TestNewRejectsAbstractAndUnknownKinds(t *testing.T) {
	for _, kind := range []string{"", KindBase, "voxel"} {
		opts := ellipsoidOptions(memgpu.New())
		opts.Kind = kind
		p, err := New(opts)
		assert.Nil(t, p, "kind %q", kind)
		assert.ErrorIs(t, err, ErrContractViolation, "kind %q", kind)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	f := memgpu.New()
	scheme := tiling.NewGeographicScheme(testEllipsoid)

	tests := []struct {
		name string
		opts Options
	}{
		{"no scheme", Options{Kind: KindEllipsoid, Factory: f}},
		{"no factory", Options{Kind: KindEllipsoid, Scheme: scheme}},
		{"tiny grid", Options{Kind: KindEllipsoid, Scheme: scheme, Factory: f, GridSize: 1}},
		{"huge grid", Options{Kind: KindEllipsoid, Scheme: scheme, Factory: f, GridSize: 300}},
		{"heightmap without source", Options{Kind: KindHeightmap, Scheme: scheme, Factory: f}},
		{"mesh without source", Options{Kind: KindMesh, Scheme: scheme, Factory: f}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.opts)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, ErrContractViolation)
		})
	}
}

func TestUnconstructedProvidersViolateContract(t *testing.T) {
	tile := NewTile(tiling.NewAddress(0, 0, 0))
	ctx := context.Background()

	providers := []Provider{
		&EllipsoidProvider{},
		&HeightmapProvider{},
		&MeshProvider{},
		(*EllipsoidProvider)(nil),
		(*HeightmapProvider)(nil),
		(*MeshProvider)(nil),
	}
	for _, p := range providers {
		assert.Nil(t, p.TilingScheme())
		req, err := p.CreateTileGeometry(ctx, tile)
		assert.Nil(t, req)
		assert.ErrorIs(t, err, ErrContractViolation)
		assert.False(t, errors.Is(err, ErrGeometryUnavailable))
	}
}

func TestCreateTileGeometryContract(t *testing.T) {
	p, err := New(ellipsoidOptions(memgpu.New()))
	require.NoError(t, err)
	require.NotNil(t, p.TilingScheme())
	ctx := context.Background()

	_, err = p.CreateTileGeometry(ctx, nil)
	assert.ErrorIs(t, err, ErrContractViolation)

	for _, addr := range []tiling.Address{
		tiling.NewAddress(0, 2, 0),
		tiling.NewAddress(1, 0, 2),
		tiling.NewAddress(-1, 0, 0),
		tiling.NewAddress(3, -1, 0),
	} {
		_, err = p.CreateTileGeometry(ctx, NewTile(addr))
		assert.ErrorIs(t, err, ErrInvalidAddress, "address %s", addr)
		assert.ErrorIs(t, err, ErrContractViolation, "address %s", addr)
	}
}

func TestEllipsoidProviderGeometry(t *testing.T) {
	f := memgpu.New()
	p, err := NewEllipsoidProvider(ellipsoidOptions(f))
	require.NoError(t, err)

	tile := NewTile(tiling.NewAddress(0, 1, 0))
	req, err := p.CreateTileGeometry(context.Background(), tile)
	require.NoError(t, err)
	assert.Equal(t, tile.Address(), req.Address())

	mesh, err := wait(t, req)
	require.NoError(t, err)
	assert.Same(t, mesh, tile.Mesh())

	got, err := req.Result()
	require.NoError(t, err)
	assert.Same(t, mesh, got)

	vb := mesh.Attributes()[0].Source.(gpu.PerVertexStream).Buffer.(*memgpu.VertexBuffer)
	require.Len(t, vb.Data, 5*5*FloatsPerVertex)
	for i := 0; i < len(vb.Data); i += FloatsPerVertex {
		r := math.Sqrt(float64(vb.Data[i])*float64(vb.Data[i]) +
			float64(vb.Data[i+1])*float64(vb.Data[i+1]) +
			float64(vb.Data[i+2])*float64(vb.Data[i+2]))
		assert.InDelta(t, testEllipsoid.MaximumRadius(), r, 25000)
	}
	assert.Equal(t, 4*4*6, mesh.IndexBuffer().Count())
}

func TestProvidersHaveNoLevelCeiling(t *testing.T) {
	f := memgpu.New()
	opts := ellipsoidOptions(f)
	opts.Workers = 4
	p, err := New(opts)
	require.NoError(t, err)

	const deepest = 40
	var requests []*Request
	for level := 0; level <= deepest; level++ {
		tile := NewTile(tiling.NewAddress(level, 1, 0))
		req, err := p.CreateTileGeometry(context.Background(), tile)
		require.NoError(t, err, "level %d", level)
		requests = append(requests, req)
	}
	for _, req := range requests {
		_, err := wait(t, req)
		assert.NoError(t, err, "tile %s", req.Address())
	}
}

type blockingHeights struct {
	release chan struct{}
	err     error
}

func (b *blockingHeights) Heightmap(ctx context.Context, _ tiling.Address, _ geo.Extent) (*heightmap.Heightmap, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if b.err != nil {
		return nil, b.err
	}
	return &heightmap.Heightmap{Width: 2, Height: 2, Heights: []float32{1, 2, 3, 4}}, nil
}

func heightmapProvider(t *testing.T, f gpu.Factory, src HeightmapSource) Provider {
	t.Helper()
	p, err := New(Options{
		Kind:       KindHeightmap,
		Scheme:     tiling.NewGeographicScheme(testEllipsoid),
		Factory:    f,
		Heightmaps: src,
	})
	require.NoError(t, err)
	return p
}

func TestStaleCompletionDoesNotTouchTile(t *testing.T) {
	f := memgpu.New()
	src := &blockingHeights{release: make(chan struct{})}
	p := heightmapProvider(t, f, src)

	tile := NewTile(tiling.NewAddress(2, 3, 1))
	req, err := p.CreateTileGeometry(context.Background(), tile)
	require.NoError(t, err)

	_, err = req.Result()
	assert.ErrorIs(t, err, ErrPending)

	require.NoError(t, tile.Evict())
	close(src.release)

	mesh, err := wait(t, req)
	assert.Nil(t, mesh)
	assert.ErrorIs(t, err, ErrTileEvicted)
	assert.Nil(t, tile.Mesh())
	assert.Zero(t, f.Live())
}

func TestProductionFailureIsNotContractViolation(t *testing.T) {
	release := make(chan struct{})
	close(release)
	p := heightmapProvider(t, memgpu.New(), &blockingHeights{release: release, err: errors.New("decoder exploded")})

	tile := NewTile(tiling.NewAddress(0, 0, 0))
	req, err := p.CreateTileGeometry(context.Background(), tile)
	require.NoError(t, err)

	_, err = wait(t, req)
	assert.ErrorIs(t, err, ErrGeometryUnavailable)
	assert.False(t, errors.Is(err, ErrContractViolation))
	assert.Nil(t, tile.Mesh())
}

func TestGPUFailureIsReported(t *testing.T) {
	f := memgpu.New()
	f.FailAlways(memgpu.OpCreateMesh, gpu.ErrDeviceLost)
	p, err := New(ellipsoidOptions(f))
	require.NoError(t, err)

	tile := NewTile(tiling.NewAddress(0, 0, 0))
	req, err := p.CreateTileGeometry(context.Background(), tile)
	require.NoError(t, err)

	_, err = wait(t, req)
	assert.ErrorIs(t, err, ErrGPUResource)
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
	assert.Nil(t, tile.Mesh())
	assert.Zero(t, f.Live())
}

func TestReplacedMeshReleaseFailureKeepsRequest(t *testing.T) {
	f := memgpu.New()
	core, logs := observer.New(zap.WarnLevel)
	opts := ellipsoidOptions(f)
	opts.Logger = zap.New(core)
	p, err := New(opts)
	require.NoError(t, err)

	tile := NewTile(tiling.NewAddress(1, 2, 0))
	req, err := p.CreateTileGeometry(context.Background(), tile)
	require.NoError(t, err)
	first, err := wait(t, req)
	require.NoError(t, err)

	f.FailNext(memgpu.OpDestroy, gpu.ErrDeviceLost)
	req, err = p.CreateTileGeometry(context.Background(), tile)
	require.NoError(t, err)
	second, err := wait(t, req)

	// The tile holds the new mesh, so the request reports it.
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.Same(t, second, tile.Mesh())

	entries := logs.FilterMessage("releasing replaced tile mesh failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, gpu.ErrDeviceLost.Error(), entries[0].ContextMap()["error"])

	// The first mesh leaked; the second is released normally.
	require.NoError(t, tile.Evict())
	assert.Equal(t, 3, f.Live())
}

func TestCancelledRequestFails(t *testing.T) {
	p := heightmapProvider(t, memgpu.New(), &blockingHeights{release: make(chan struct{})})

	ctx, cancel := context.WithCancel(context.Background())
	tile := NewTile(tiling.NewAddress(1, 1, 1))
	req, err := p.CreateTileGeometry(ctx, tile)
	require.NoError(t, err)
	cancel()

	_, err = wait(t, req)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, tile.Mesh())
}

func TestConcurrentRequestsSerializeGPUAccess(t *testing.T) {
	inner := memgpu.New()
	q := gpu.NewQueue(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Serve(ctx)

	opts := ellipsoidOptions(gpu.Serialize(inner, q))
	opts.Workers = 8
	opts.Project2D = true
	p, err := New(opts)
	require.NoError(t, err)

	scheme := p.TilingScheme()
	var tiles []*Tile
	var requests []*Request
	for x := int64(0); x < scheme.TilesX(3); x++ {
		for y := int64(0); y < scheme.TilesY(3); y++ {
			tile := NewTile(tiling.NewAddress(3, x, y))
			req, err := p.CreateTileGeometry(ctx, tile)
			require.NoError(t, err)
			tiles = append(tiles, tile)
			requests = append(requests, req)
		}
	}
	for _, req := range requests {
		_, err := wait(t, req)
		require.NoError(t, err)
	}

	assert.Zero(t, inner.Overlapped())
	assert.Equal(t, len(tiles), inner.CallCount(memgpu.OpCreateMesh))

	var wg sync.WaitGroup
	for _, tile := range tiles {
		wg.Add(1)
		go func(tile *Tile) {
			defer wg.Done()
			assert.NoError(t, tile.Evict())
		}(tile)
	}
	wg.Wait()
	assert.Zero(t, inner.Live())
	assert.Zero(t, inner.Overlapped())
}

type memSource map[tiling.Address][]byte

func (m memSource) Fetch(_ context.Context, addr tiling.Address) ([]byte, error) {
	if data, ok := m[addr]; ok {
		return data, nil
	}
	return nil, tilesource.ErrNotFound
}

func TestMeshProvider(t *testing.T) {
	payload, err := qmesh.Encode(&qmesh.Mesh{
		Header:  qmesh.Header{MinimumHeight: 0, MaximumHeight: 1000},
		U:       []uint16{0, qmesh.MaxValue, 0, qmesh.MaxValue},
		V:       []uint16{0, 0, qmesh.MaxValue, qmesh.MaxValue},
		H:       []uint16{0, 0, qmesh.MaxValue, qmesh.MaxValue},
		Indices: []uint32{0, 1, 2, 2, 1, 3},
	})
	require.NoError(t, err)

	addr := tiling.NewAddress(0, 0, 0)
	f := memgpu.New()
	p, err := New(Options{
		Kind:    KindMesh,
		Scheme:  tiling.NewGeographicScheme(testEllipsoid),
		Factory: f,
		Meshes:  memSource{addr: payload, tiling.NewAddress(0, 1, 0): []byte("junk")},
	})
	require.NoError(t, err)
	ctx := context.Background()

	req, err := p.CreateTileGeometry(ctx, NewTile(addr))
	require.NoError(t, err)
	mesh, err := wait(t, req)
	require.NoError(t, err)

	vb := mesh.Attributes()[0].Source.(gpu.PerVertexStream).Buffer.(*memgpu.VertexBuffer)
	require.Len(t, vb.Data, 4*FloatsPerVertex)
	assert.Equal(t, []float32{0, 0}, vb.Data[3:5])
	assert.Equal(t, []float32{1, 1}, vb.Data[18:20])
	assert.Equal(t, gpu.Uint16Indices{0, 1, 2, 2, 1, 3}, mesh.IndexBuffer().(*memgpu.IndexBuffer).U16)

	req, err = p.CreateTileGeometry(ctx, NewTile(tiling.NewAddress(0, 1, 0)))
	require.NoError(t, err)
	_, err = wait(t, req)
	assert.ErrorIs(t, err, ErrGeometryUnavailable)
	assert.ErrorIs(t, err, qmesh.ErrMalformed)

	req, err = p.CreateTileGeometry(ctx, NewTile(tiling.NewAddress(1, 0, 0)))
	require.NoError(t, err)
	_, err = wait(t, req)
	assert.ErrorIs(t, err, ErrGeometryUnavailable)
	assert.ErrorIs(t, err, tilesource.ErrNotFound)
}

func TestMetricsRecordOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	f := memgpu.New()
	opts := ellipsoidOptions(f)
	opts.Metrics = m
	p, err := New(opts)
	require.NoError(t, err)

	req, err := p.CreateTileGeometry(context.Background(), NewTile(tiling.NewAddress(0, 0, 0)))
	require.NoError(t, err)
	_, err = wait(t, req)
	require.NoError(t, err)

	f.FailNext(memgpu.OpCreateVertexBuffer, gpu.ErrOutOfMemory)
	req, err = p.CreateTileGeometry(context.Background(), NewTile(tiling.NewAddress(0, 1, 0)))
	require.NoError(t, err)
	_, err = wait(t, req)
	require.Error(t, err)

	// The counters are updated just before the request resolves.
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(KindEllipsoid, OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(KindEllipsoid, OutcomeGPUError)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "duplicate registration")
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeOK, outcome(nil))
	assert.Equal(t, OutcomeEvicted, outcome(ErrTileEvicted))
	assert.Equal(t, OutcomeCanceled, outcome(context.Canceled))
	assert.Equal(t, OutcomeInvalidGeometry, outcome(ErrInvalidGeometry))
	assert.Equal(t, OutcomeGPUError, outcome(ErrGPUResource))
	assert.Equal(t, OutcomeUnavailable, outcome(ErrGeometryUnavailable))
}
