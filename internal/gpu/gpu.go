// Package gpu defines the GPU resource factory used to upload tile geometry.
//
// The factory is an opaque device abstraction: it creates vertex buffers,
// index buffers and meshes (vertex arrays) from raw typed data. Backends live
// in subpackages (glgpu for OpenGL, memgpu for headless use and tests).
package gpu

import (
	"errors"
	"fmt"
)

// Factory creation errors.
var (
	ErrDeviceLost       = errors.New("gpu device lost")
	ErrOutOfMemory      = errors.New("gpu out of memory")
	ErrInvalidAttribute = errors.New("invalid attribute descriptor")
	ErrDestroyed        = errors.New("gpu resource already destroyed")
)

// BufferUsage hints how often buffer contents change.
type BufferUsage int

// Buffer usage hints.
const (
	StaticDraw BufferUsage = iota
	DynamicDraw
	StreamDraw
)

// String returns the usage name.
func (u BufferUsage) String() string {
	switch u {
	case StaticDraw:
		return "STATIC_DRAW"
	case DynamicDraw:
		return "DYNAMIC_DRAW"
	case StreamDraw:
		return "STREAM_DRAW"
	default:
		return fmt.Sprintf("BufferUsage(%d)", int(u))
	}
}

// ComponentDatatype is the scalar type of a vertex attribute component.
type ComponentDatatype int

// Component datatypes.
const (
	Float ComponentDatatype = iota
)

// SizeInBytes returns the size of one component.
func (d ComponentDatatype) SizeInBytes() int {
	switch d {
	case Float:
		return 4
	default:
		return 0
	}
}

// IndexDatatype is the width of an index buffer element.
type IndexDatatype int

// Index datatypes.
const (
	UnsignedShort IndexDatatype = iota
	UnsignedInt
)

// SizeInBytes returns the size of one index.
func (d IndexDatatype) SizeInBytes() int {
	switch d {
	case UnsignedShort:
		return 2
	case UnsignedInt:
		return 4
	default:
		return 0
	}
}

// String returns the datatype name.
func (d IndexDatatype) String() string {
	switch d {
	case UnsignedShort:
		return "UNSIGNED_SHORT"
	case UnsignedInt:
		return "UNSIGNED_INT"
	default:
		return fmt.Sprintf("IndexDatatype(%d)", int(d))
	}
}

// IndexData is index buffer content. The concrete type carries the width.
type IndexData interface {
	Datatype() IndexDatatype
	Len() int
}

// Uint16Indices is 16-bit index data.
type Uint16Indices []uint16

// Datatype implements IndexData.
func (Uint16Indices) Datatype() IndexDatatype { return UnsignedShort }

// Len implements IndexData.
func (d Uint16Indices) Len() int { return len(d) }

// Uint32Indices is 32-bit index data.
type Uint32Indices []uint32

// Datatype implements IndexData.
func (Uint32Indices) Datatype() IndexDatatype { return UnsignedInt }

// Len implements IndexData.
func (d Uint32Indices) Len() int { return len(d) }

// Resource is a GPU object that must be released explicitly.
type Resource interface {
	Destroy() error
}

// VertexBuffer is an opaque vertex buffer handle.
type VertexBuffer interface {
	Resource
	SizeInBytes() int
}

// IndexBuffer is an opaque index buffer handle.
type IndexBuffer interface {
	Resource
	Datatype() IndexDatatype
	Count() int
}

// Mesh is an opaque vertex array handle: attribute bindings plus an index buffer.
// A mesh owns the buffers it references; Destroy releases them too.
type Mesh interface {
	Resource
	Attributes() []AttributeDescriptor
	IndexBuffer() IndexBuffer
}

// Factory creates GPU resources.
//
// Implementations are not required to be safe for concurrent use; wrap
// them with Serialize when calls come from several goroutines.
type Factory interface {
	CreateVertexBuffer(data []float32, usage BufferUsage) (VertexBuffer, error)
	CreateIndexBuffer(data IndexData, usage BufferUsage) (IndexBuffer, error)
	CreateMesh(attributes []AttributeDescriptor, indices IndexBuffer) (Mesh, error)
}
