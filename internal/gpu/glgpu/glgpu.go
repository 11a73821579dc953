// Package glgpu implements gpu.Factory on an OpenGL 4.1 core context.
//
// Every call must come from the thread that owns the context. Wrap the
// factory with gpu.Serialize and drain the queue from the render loop.
package glgpu

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/midgard-terrain/internal/gpu"
)

// Factory creates GL buffers and vertex arrays.
type Factory struct{}

// New returns a factory for the current GL context. gl.Init must have run.
func New() *Factory {
	return &Factory{}
}

// CreateVertexBuffer implements gpu.Factory.
func (f *Factory) CreateVertexBuffer(data []float32, usage gpu.BufferUsage) (gpu.VertexBuffer, error) {
	size := len(data) * gpu.Float.SizeInBytes()
	id, err := createBuffer(gl.ARRAY_BUFFER, size, pointer(data), usage)
	if err != nil {
		return nil, fmt.Errorf("vertex buffer: %w", err)
	}
	return &VertexBuffer{id: id, size: size}, nil
}

// CreateIndexBuffer implements gpu.Factory.
func (f *Factory) CreateIndexBuffer(data gpu.IndexData, usage gpu.BufferUsage) (gpu.IndexBuffer, error) {
	var (
		ptr  unsafe.Pointer
		size int
	)
	switch d := data.(type) {
	case gpu.Uint16Indices:
		if len(d) > 0 {
			ptr = unsafe.Pointer(&d[0])
		}
		size = len(d) * 2
	case gpu.Uint32Indices:
		if len(d) > 0 {
			ptr = unsafe.Pointer(&d[0])
		}
		size = len(d) * 4
	default:
		return nil, fmt.Errorf("unsupported index data %T", data)
	}

	// Element buffers bind to the current VAO; keep the default one clean.
	gl.BindVertexArray(0)
	id, err := createBuffer(gl.ELEMENT_ARRAY_BUFFER, size, ptr, usage)
	if err != nil {
		return nil, fmt.Errorf("index buffer: %w", err)
	}
	return &IndexBuffer{id: id, datatype: data.Datatype(), count: data.Len()}, nil
}

// CreateMesh implements gpu.Factory.
//
// Stream attributes are recorded in a vertex array object. Constant
// attributes are not vertex array state in GL, so Draw applies them.
func (f *Factory) CreateMesh(attributes []gpu.AttributeDescriptor, indices gpu.IndexBuffer) (gpu.Mesh, error) {
	if err := gpu.ValidateAttributes(attributes); err != nil {
		return nil, err
	}
	ib, ok := indices.(*IndexBuffer)
	if !ok || ib == nil {
		return nil, fmt.Errorf("index buffer %T is not a GL buffer", indices)
	}
	if ib.destroyed {
		return nil, fmt.Errorf("index buffer: %w", gpu.ErrDestroyed)
	}

	var vao uint32
	gl.GenVertexArrays(1, &vao)
	gl.BindVertexArray(vao)

	for _, a := range attributes {
		src, ok := a.Source.(gpu.PerVertexStream)
		if !ok {
			continue
		}
		vb, ok := src.Buffer.(*VertexBuffer)
		if !ok {
			gl.BindVertexArray(0)
			gl.DeleteVertexArrays(1, &vao)
			return nil, fmt.Errorf("attribute %d: buffer %T is not a GL buffer", a.Index, src.Buffer)
		}
		if vb.destroyed {
			gl.BindVertexArray(0)
			gl.DeleteVertexArrays(1, &vao)
			return nil, fmt.Errorf("attribute %d: %w", a.Index, gpu.ErrDestroyed)
		}
		gl.BindBuffer(gl.ARRAY_BUFFER, vb.id)
		gl.VertexAttribPointerWithOffset(a.Index, int32(src.Components), gl.FLOAT, false,
			int32(src.StrideInBytes), uintptr(src.OffsetInBytes))
		gl.EnableVertexAttribArray(a.Index)
	}
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, ib.id)

	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)

	if err := glError(); err != nil {
		gl.DeleteVertexArrays(1, &vao)
		return nil, fmt.Errorf("vertex array: %w", err)
	}

	attrs := make([]gpu.AttributeDescriptor, len(attributes))
	copy(attrs, attributes)
	return &Mesh{vao: vao, attributes: attrs, indices: ib}, nil
}

func createBuffer(target uint32, size int, data unsafe.Pointer, usage gpu.BufferUsage) (uint32, error) {
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(target, id)
	gl.BufferData(target, size, data, usageEnum(usage))
	gl.BindBuffer(target, 0)

	if err := glError(); err != nil {
		gl.DeleteBuffers(1, &id)
		return 0, err
	}
	return id, nil
}

func pointer(data []float32) unsafe.Pointer {
	if len(data) == 0 {
		return nil
	}
	return gl.Ptr(data)
}

func usageEnum(u gpu.BufferUsage) uint32 {
	switch u {
	case gpu.DynamicDraw:
		return gl.DYNAMIC_DRAW
	case gpu.StreamDraw:
		return gl.STREAM_DRAW
	default:
		return gl.STATIC_DRAW
	}
}

func indexEnum(d gpu.IndexDatatype) uint32 {
	if d == gpu.UnsignedInt {
		return gl.UNSIGNED_INT
	}
	return gl.UNSIGNED_SHORT
}

// GL_CONTEXT_LOST is core in 4.5; 4.1 drivers report it through KHR_robustness.
const contextLost = 0x0507

// glError drains the GL error flags and maps the first one.
func glError() error {
	var first uint32
	for code := gl.GetError(); code != gl.NO_ERROR; code = gl.GetError() {
		if first == 0 {
			first = code
		}
	}
	return errorFor(first)
}

func errorFor(code uint32) error {
	switch code {
	case gl.NO_ERROR:
		return nil
	case gl.OUT_OF_MEMORY:
		return gpu.ErrOutOfMemory
	case contextLost:
		return gpu.ErrDeviceLost
	default:
		return fmt.Errorf("gl error 0x%04X", code)
	}
}

// VertexBuffer is a GL array buffer.
type VertexBuffer struct {
	id        uint32
	size      int
	destroyed bool
}

// ID returns the GL buffer name.
func (b *VertexBuffer) ID() uint32 { return b.id }

// SizeInBytes implements gpu.VertexBuffer.
func (b *VertexBuffer) SizeInBytes() int { return b.size }

// Destroy implements gpu.Resource.
func (b *VertexBuffer) Destroy() error {
	if b.destroyed {
		return gpu.ErrDestroyed
	}
	b.destroyed = true
	gl.DeleteBuffers(1, &b.id)
	return nil
}

// IndexBuffer is a GL element array buffer.
type IndexBuffer struct {
	id        uint32
	datatype  gpu.IndexDatatype
	count     int
	destroyed bool
}

// Datatype implements gpu.IndexBuffer.
func (b *IndexBuffer) Datatype() gpu.IndexDatatype { return b.datatype }

// Count implements gpu.IndexBuffer.
func (b *IndexBuffer) Count() int { return b.count }

// Destroy implements gpu.Resource.
func (b *IndexBuffer) Destroy() error {
	if b.destroyed {
		return gpu.ErrDestroyed
	}
	b.destroyed = true
	gl.DeleteBuffers(1, &b.id)
	return nil
}

// Mesh is a GL vertex array object. It owns its buffers.
type Mesh struct {
	vao        uint32
	attributes []gpu.AttributeDescriptor
	indices    *IndexBuffer
	destroyed  bool
}

// VAO returns the GL vertex array name.
func (m *Mesh) VAO() uint32 { return m.vao }

// Attributes implements gpu.Mesh.
func (m *Mesh) Attributes() []gpu.AttributeDescriptor { return m.attributes }

// IndexBuffer implements gpu.Mesh.
func (m *Mesh) IndexBuffer() gpu.IndexBuffer { return m.indices }

// Bind makes the vertex array current and loads constant attributes.
func (m *Mesh) Bind() {
	gl.BindVertexArray(m.vao)
	for _, a := range m.attributes {
		c, ok := a.Source.(gpu.Constant)
		if !ok {
			continue
		}
		gl.DisableVertexAttribArray(a.Index)
		v := c.Values
		switch len(v) {
		case 1:
			gl.VertexAttrib1f(a.Index, v[0])
		case 2:
			gl.VertexAttrib2f(a.Index, v[0], v[1])
		case 3:
			gl.VertexAttrib3f(a.Index, v[0], v[1], v[2])
		case 4:
			gl.VertexAttrib4f(a.Index, v[0], v[1], v[2], v[3])
		}
	}
}

// Draw binds the mesh and draws its triangles.
func (m *Mesh) Draw() {
	if m.destroyed {
		return
	}
	m.Bind()
	gl.DrawElements(gl.TRIANGLES, int32(m.indices.count), indexEnum(m.indices.datatype), nil)
	gl.BindVertexArray(0)
}

// Destroy deletes the vertex array and the buffers it references.
func (m *Mesh) Destroy() error {
	if m.destroyed {
		return gpu.ErrDestroyed
	}
	m.destroyed = true
	gl.DeleteVertexArrays(1, &m.vao)

	seen := make(map[uint32]bool)
	for _, a := range m.attributes {
		src, ok := a.Source.(gpu.PerVertexStream)
		if !ok {
			continue
		}
		if vb, ok := src.Buffer.(*VertexBuffer); ok && !seen[vb.id] {
			seen[vb.id] = true
			if err := vb.Destroy(); err != nil {
				return err
			}
		}
	}
	return m.indices.Destroy()
}
