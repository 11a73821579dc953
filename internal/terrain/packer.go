package terrain

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/gpu"
)

// PackerOptions configures a Packer.
type PackerOptions struct {
	// Allow32BitIndices lets meshes above MaxVertices16 vertices use 32-bit
	// indices instead of being rejected.
	Allow32BitIndices bool
}

// Packer uploads raw tile geometry through a GPU factory using the fixed
// attribute layout. It holds no per-tile state.
type Packer struct {
	factory gpu.Factory
	opts    PackerOptions
}

// NewPacker creates a packer. The factory must tolerate calls from the
// goroutines that call Pack; wrap it with gpu.Serialize otherwise.
func NewPacker(factory gpu.Factory, opts PackerOptions) *Packer {
	return &Packer{factory: factory, opts: opts}
}

func (p *Packer) maxVertices() int {
	if p.opts.Allow32BitIndices {
		return math.MaxInt32
	}
	return MaxVertices16
}

// Pack validates g and uploads it as one static vertex buffer, one static
// index buffer of the narrowest width, and a mesh binding them. Invalid
// geometry is rejected before any factory call. On a factory failure every
// resource created so far is destroyed.
func (p *Packer) Pack(g *Geometry) (gpu.Mesh, error) {
	if p == nil || p.factory == nil {
		return nil, fmt.Errorf("packer without factory: %w", ErrContractViolation)
	}
	if err := g.validate(p.maxVertices()); err != nil {
		return nil, err
	}

	var created []gpu.Resource
	fail := func(what string, err error) (gpu.Mesh, error) {
		for i := len(created) - 1; i >= 0; i-- {
			if derr := created[i].Destroy(); derr != nil {
				err = errors.Join(err, derr)
			}
		}
		return nil, fmt.Errorf("%s: %w: %w", what, ErrGPUResource, err)
	}

	vb, err := p.factory.CreateVertexBuffer(g.Vertices, gpu.StaticDraw)
	if err != nil {
		return fail("create vertex buffer", err)
	}
	created = append(created, vb)

	var pos2D gpu.VertexBuffer
	if g.Positions2D != nil {
		pos2D, err = p.factory.CreateVertexBuffer(g.Positions2D, gpu.StaticDraw)
		if err != nil {
			return fail("create 2D position buffer", err)
		}
		created = append(created, pos2D)
	}

	ib, err := p.factory.CreateIndexBuffer(indexData(g.Indices, g.VertexCount()), gpu.StaticDraw)
	if err != nil {
		return fail("create index buffer", err)
	}
	created = append(created, ib)

	mesh, err := p.factory.CreateMesh(Attributes(vb, pos2D), ib)
	if err != nil {
		return fail("create mesh", err)
	}
	return mesh, nil
}

// indexData converts indices to the narrowest width that addresses
// vertexCount vertices.
func indexData(indices []uint32, vertexCount int) gpu.IndexData {
	if vertexCount <= MaxVertices16 {
		out := make(gpu.Uint16Indices, len(indices))
		for i, idx := range indices {
			out[i] = uint16(idx)
		}
		return out
	}
	return gpu.Uint32Indices(append([]uint32(nil), indices...))
}

// CreateTileGeometryFromBuffers packs g with default options and attaches
// the mesh to tile. A failure to release a replaced mesh goes to zap.L().
func CreateTileGeometryFromBuffers(factory gpu.Factory, tile *Tile, g *Geometry) error {
	if tile == nil {
		return fmt.Errorf("nil tile: %w", ErrContractViolation)
	}
	gen := tile.Generation()
	mesh, err := NewPacker(factory, PackerOptions{}).Pack(g)
	if err != nil {
		return err
	}
	replaced, err := tile.attach(gen, mesh)
	if err != nil {
		return err
	}
	releaseReplaced(zap.L(), tile.Address(), replaced)
	return nil
}
