package terrain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/gpu"
	"github.com/Faultbox/midgard-terrain/internal/gpu/memgpu"
	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

func triangle() *Geometry {
	return &Geometry{
		Vertices: []float32{
			0, 0, 0, 0, 0,
			1, 0, 0, 1, 0,
			0, 1, 0, 0, 1,
		},
		Indices: []uint32{0, 1, 2},
	}
}

func TestPackTriangle(t *testing.T) {
	f := memgpu.New()
	mesh, err := NewPacker(f, PackerOptions{}).Pack(triangle())
	require.NoError(t, err)

	calls := f.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, memgpu.OpCreateVertexBuffer, calls[0].Op)
	assert.Equal(t, 15, calls[0].Length)
	assert.Equal(t, gpu.StaticDraw, calls[0].Usage)
	assert.Equal(t, memgpu.OpCreateIndexBuffer, calls[1].Op)
	assert.Equal(t, 3, calls[1].Length)
	assert.Equal(t, gpu.UnsignedShort, calls[1].Datatype)
	assert.Equal(t, gpu.StaticDraw, calls[1].Usage)
	assert.Equal(t, memgpu.OpCreateMesh, calls[2].Op)

	ib := mesh.IndexBuffer().(*memgpu.IndexBuffer)
	assert.Equal(t, gpu.Uint16Indices{0, 1, 2}, ib.U16)

	attrs := mesh.Attributes()
	require.Len(t, attrs, 3)

	pos := attrs[0].Source.(gpu.PerVertexStream)
	assert.Equal(t, uint32(0), attrs[0].Index)
	assert.Equal(t, 3, pos.Components)
	assert.Equal(t, 0, pos.OffsetInBytes)
	assert.Equal(t, 5*4, pos.StrideInBytes)
	assert.Equal(t, 15, len(pos.Buffer.(*memgpu.VertexBuffer).Data))

	tex := attrs[1].Source.(gpu.PerVertexStream)
	assert.Equal(t, uint32(1), attrs[1].Index)
	assert.Equal(t, 2, tex.Components)
	assert.Equal(t, 3*4, tex.OffsetInBytes)
	assert.Equal(t, 5*4, tex.StrideInBytes)
	assert.Same(t, pos.Buffer, tex.Buffer)

	assert.Equal(t, uint32(2), attrs[2].Index)
	assert.Equal(t, gpu.Constant{Values: []float32{0, 0}}, attrs[2].Source)
}

func TestPackRejectsInvalidGeometry(t *testing.T) {
	tests := []struct {
		name string
		geom *Geometry
	}{
		{"nil", nil},
		{"seven floats", &Geometry{Vertices: make([]float32, 7), Indices: []uint32{0, 0, 0}}},
		{"index out of range", &Geometry{Vertices: triangle().Vertices, Indices: []uint32{0, 1, 3}}},
		{"partial triangle", &Geometry{Vertices: triangle().Vertices, Indices: []uint32{0, 1}}},
		{"empty", &Geometry{}},
		{"too many vertices", &Geometry{Vertices: make([]float32, (MaxVertices16+1)*FloatsPerVertex), Indices: []uint32{0, 1, 2}}},
		{"short 2D positions", &Geometry{Vertices: triangle().Vertices, Indices: []uint32{0, 1, 2}, Positions2D: []float32{0, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := memgpu.New()
			_, err := NewPacker(f, PackerOptions{}).Pack(tt.geom)
			assert.ErrorIs(t, err, ErrInvalidGeometry)
			assert.False(t, errors.Is(err, ErrContractViolation))
			assert.Empty(t, f.Calls())
		})
	}
}

func TestPackIsDeterministic(t *testing.T) {
	f := memgpu.New()
	p := NewPacker(f, PackerOptions{})

	describe := func() []gpu.AttributeDescriptor {
		mesh, err := p.Pack(triangle())
		require.NoError(t, err)
		attrs := mesh.Attributes()
		for i, a := range attrs {
			if src, ok := a.Source.(gpu.PerVertexStream); ok {
				src.Buffer = nil
				attrs[i].Source = src
			}
		}
		return attrs
	}
	assert.Equal(t, describe(), describe())
}

func TestPackWideIndices(t *testing.T) {
	n := MaxVertices16 + 1
	g := &Geometry{Vertices: make([]float32, n*FloatsPerVertex), Indices: []uint32{0, 1, uint32(n - 1)}}

	f := memgpu.New()
	mesh, err := NewPacker(f, PackerOptions{Allow32BitIndices: true}).Pack(g)
	require.NoError(t, err)
	ib := mesh.IndexBuffer().(*memgpu.IndexBuffer)
	assert.Equal(t, gpu.UnsignedInt, ib.Datatype())
	assert.Equal(t, gpu.Uint32Indices{0, 1, uint32(n - 1)}, ib.U32)

	// Small meshes stay narrow even when wide indices are allowed.
	mesh, err = NewPacker(f, PackerOptions{Allow32BitIndices: true}).Pack(triangle())
	require.NoError(t, err)
	assert.Equal(t, gpu.UnsignedShort, mesh.IndexBuffer().Datatype())
}

func TestPackProjectedPositions(t *testing.T) {
	g := triangle()
	g.Positions2D = []float32{0, 0, 10, 0, 0, 10}

	f := memgpu.New()
	mesh, err := NewPacker(f, PackerOptions{}).Pack(g)
	require.NoError(t, err)
	assert.Equal(t, 2, f.CallCount(memgpu.OpCreateVertexBuffer))

	src, ok := mesh.Attributes()[2].Source.(gpu.PerVertexStream)
	require.True(t, ok)
	assert.Equal(t, 2, src.Components)
	assert.Equal(t, 8, src.StrideInBytes)
	assert.Equal(t, []float32{0, 0, 10, 0, 0, 10}, src.Buffer.(*memgpu.VertexBuffer).Data)

	require.NoError(t, mesh.Destroy())
	assert.Zero(t, f.Live())
}

func TestPackGPUFailureReleasesPartialResources(t *testing.T) {
	for _, op := range []memgpu.Op{memgpu.OpCreateVertexBuffer, memgpu.OpCreateIndexBuffer, memgpu.OpCreateMesh} {
		t.Run(string(op), func(t *testing.T) {
			f := memgpu.New()
			f.FailNext(op, gpu.ErrOutOfMemory)

			mesh, err := NewPacker(f, PackerOptions{}).Pack(triangle())
			assert.Nil(t, mesh)
			assert.ErrorIs(t, err, ErrGPUResource)
			assert.ErrorIs(t, err, gpu.ErrOutOfMemory)
			assert.Zero(t, f.Live())
		})
	}
}

func TestPackWithoutFactory(t *testing.T) {
	_, err := NewPacker(nil, PackerOptions{}).Pack(triangle())
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestCreateTileGeometryFromBuffers(t *testing.T) {
	f := memgpu.New()
	tile := NewTile(tiling.NewAddress(0, 0, 0))

	require.NoError(t, CreateTileGeometryFromBuffers(f, tile, triangle()))
	require.NotNil(t, tile.Mesh())
	assert.Equal(t, 3, f.Live())

	err := CreateTileGeometryFromBuffers(f, tile, &Geometry{Vertices: make([]float32, 7)})
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	assert.ErrorIs(t, CreateTileGeometryFromBuffers(f, nil, triangle()), ErrContractViolation)
}

func TestTileEvictAndStaleAttach(t *testing.T) {
	f := memgpu.New()
	tile := NewTile(tiling.NewAddress(1, 0, 0))
	p := NewPacker(f, PackerOptions{})

	gen := tile.Generation()
	first, err := p.Pack(triangle())
	require.NoError(t, err)
	replaced, err := tile.attach(gen, first)
	require.NoError(t, err)
	assert.Nil(t, replaced)

	// Re-attaching in the same generation hands back the old mesh.
	second, err := p.Pack(triangle())
	require.NoError(t, err)
	replaced, err = tile.attach(gen, second)
	require.NoError(t, err)
	assert.Same(t, first, replaced)
	assert.Same(t, second, tile.Mesh())
	releaseReplaced(zap.NewNop(), tile.Address(), replaced)
	assert.Equal(t, 3, f.Live())

	require.NoError(t, tile.Evict())
	assert.Nil(t, tile.Mesh())
	assert.Zero(t, f.Live())
	assert.Equal(t, gen+1, tile.Generation())

	stale, err := p.Pack(triangle())
	require.NoError(t, err)
	replaced, err = tile.attach(gen, stale)
	assert.ErrorIs(t, err, ErrTileEvicted)
	assert.Nil(t, replaced)
	assert.Nil(t, tile.Mesh())
	assert.Zero(t, f.Live())

	require.NoError(t, tile.Evict())
}

func TestGridBuild(t *testing.T) {
	scheme := tiling.NewGeographicScheme(testEllipsoid)
	g := grid{
		ellipsoid: testEllipsoid,
		extent:    scheme.TileExtent(tiling.NewAddress(0, 0, 0)),
		columns:   3,
		rows:      3,
		project2D: true,
	}.build()

	require.NoError(t, g.Validate())
	assert.Equal(t, 9, g.VertexCount())
	assert.Len(t, g.Indices, 2*2*6)
	assert.Len(t, g.Positions2D, 9*2)

	// First vertex is the north-west corner, last the south-east one.
	assert.Equal(t, []float32{0, 1}, g.Vertices[3:5])
	last := (g.VertexCount() - 1) * FloatsPerVertex
	assert.Equal(t, []float32{1, 0}, g.Vertices[last+3:last+5])
}
