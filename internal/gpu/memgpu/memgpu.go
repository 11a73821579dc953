// Package memgpu is a headless gpu.Factory that keeps resources in memory.
//
// It records every call, can inject failures, and flags overlapping calls so
// tests can check that access to the device was serialized.
package memgpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Faultbox/midgard-terrain/internal/gpu"
)

// Op names a factory operation.
type Op string

// Factory operations.
const (
	OpCreateVertexBuffer Op = "CreateVertexBuffer"
	OpCreateIndexBuffer  Op = "CreateIndexBuffer"
	OpCreateMesh         Op = "CreateMesh"
	OpDestroy            Op = "Destroy"
)

// Call is one recorded factory call.
type Call struct {
	Op       Op
	ID       uint32
	Usage    gpu.BufferUsage
	Length   int
	Datatype gpu.IndexDatatype
}

// Factory is an in-memory gpu.Factory.
type Factory struct {
	mu       sync.Mutex
	nextID   uint32
	calls    []Call
	live     map[uint32]bool
	failures map[Op][]error
	sticky   map[Op]error

	inCall     atomic.Int32
	overlapped atomic.Int32
}

// New creates an empty factory.
func New() *Factory {
	return &Factory{
		live:     make(map[uint32]bool),
		failures: make(map[Op][]error),
		sticky:   make(map[Op]error),
	}
}

// FailNext makes the next call of op fail with err.
func (f *Factory) FailNext(op Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], err)
}

// FailAlways makes every call of op fail with err. A nil err clears it.
func (f *Factory) FailAlways(op Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.sticky, op)
		return
	}
	f.sticky[op] = err
}

// Calls returns a copy of the recorded calls.
func (f *Factory) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many calls of op were recorded, failed ones included.
func (f *Factory) CallCount(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Live returns the number of resources created and not yet destroyed.
func (f *Factory) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

// Overlapped returns how many calls started while another call was running.
func (f *Factory) Overlapped() int {
	return int(f.overlapped.Load())
}

// CreateVertexBuffer implements gpu.Factory.
func (f *Factory) CreateVertexBuffer(data []float32, usage gpu.BufferUsage) (gpu.VertexBuffer, error) {
	defer f.enter()()

	id, err := f.record(Call{Op: OpCreateVertexBuffer, Usage: usage, Length: len(data)})
	if err != nil {
		return nil, err
	}
	buf := make([]float32, len(data))
	copy(buf, data)
	return &VertexBuffer{resource: resource{id: id, f: f}, Data: buf, Usage: usage}, nil
}

// CreateIndexBuffer implements gpu.Factory.
func (f *Factory) CreateIndexBuffer(data gpu.IndexData, usage gpu.BufferUsage) (gpu.IndexBuffer, error) {
	defer f.enter()()

	if data == nil {
		return nil, fmt.Errorf("nil index data")
	}
	ib := &IndexBuffer{Usage: usage, datatype: data.Datatype()}
	switch d := data.(type) {
	case gpu.Uint16Indices:
		ib.U16 = append(gpu.Uint16Indices(nil), d...)
	case gpu.Uint32Indices:
		ib.U32 = append(gpu.Uint32Indices(nil), d...)
	default:
		return nil, fmt.Errorf("unsupported index data %T", data)
	}

	id, err := f.record(Call{Op: OpCreateIndexBuffer, Usage: usage, Length: data.Len(), Datatype: data.Datatype()})
	if err != nil {
		return nil, err
	}
	ib.resource = resource{id: id, f: f}
	return ib, nil
}

// CreateMesh implements gpu.Factory.
func (f *Factory) CreateMesh(attributes []gpu.AttributeDescriptor, indices gpu.IndexBuffer) (gpu.Mesh, error) {
	defer f.enter()()

	if err := gpu.ValidateAttributes(attributes); err != nil {
		return nil, err
	}
	for _, a := range attributes {
		if src, ok := a.Source.(gpu.PerVertexStream); ok {
			if err := f.owned(src.Buffer); err != nil {
				return nil, fmt.Errorf("attribute %d: %w", a.Index, err)
			}
		}
	}
	if indices != nil {
		if err := f.owned(indices); err != nil {
			return nil, fmt.Errorf("index buffer: %w", err)
		}
	}

	id, err := f.record(Call{Op: OpCreateMesh, Length: len(attributes)})
	if err != nil {
		return nil, err
	}
	attrs := make([]gpu.AttributeDescriptor, len(attributes))
	copy(attrs, attributes)
	return &Mesh{resource: resource{id: id, f: f}, attributes: attrs, indices: indices}, nil
}

func (f *Factory) enter() func() {
	if f.inCall.Add(1) > 1 {
		f.overlapped.Add(1)
	}
	return func() { f.inCall.Add(-1) }
}

func (f *Factory) record(c Call) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failure(c.Op); err != nil {
		f.calls = append(f.calls, c)
		return 0, err
	}
	f.nextID++
	c.ID = f.nextID
	f.calls = append(f.calls, c)
	f.live[c.ID] = true
	return c.ID, nil
}

// failure pops an injected error for op. Caller holds f.mu.
func (f *Factory) failure(op Op) error {
	if err, ok := f.sticky[op]; ok {
		return err
	}
	if q := f.failures[op]; len(q) > 0 {
		f.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func (f *Factory) owned(r gpu.Resource) error {
	var id uint32
	switch h := r.(type) {
	case *VertexBuffer:
		if h.f != f {
			return fmt.Errorf("buffer from another factory")
		}
		id = h.id
	case *IndexBuffer:
		if h.f != f {
			return fmt.Errorf("buffer from another factory")
		}
		id = h.id
	default:
		return fmt.Errorf("foreign resource %T", r)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live[id] {
		return gpu.ErrDestroyed
	}
	return nil
}

func (f *Factory) destroy(id uint32) error {
	defer f.enter()()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: OpDestroy, ID: id})
	if !f.live[id] {
		return gpu.ErrDestroyed
	}
	if err := f.failure(OpDestroy); err != nil {
		return err
	}
	delete(f.live, id)
	return nil
}

type resource struct {
	id uint32
	f  *Factory
}

// ID returns the resource id, unique within its factory.
func (r resource) ID() uint32 { return r.id }

// Destroy implements gpu.Resource.
func (r resource) Destroy() error { return r.f.destroy(r.id) }

// VertexBuffer is an in-memory vertex buffer.
type VertexBuffer struct {
	resource
	Data  []float32
	Usage gpu.BufferUsage
}

// SizeInBytes implements gpu.VertexBuffer.
func (b *VertexBuffer) SizeInBytes() int { return len(b.Data) * gpu.Float.SizeInBytes() }

// IndexBuffer is an in-memory index buffer. Exactly one of U16 and U32 is set.
type IndexBuffer struct {
	resource
	U16   gpu.Uint16Indices
	U32   gpu.Uint32Indices
	Usage gpu.BufferUsage

	datatype gpu.IndexDatatype
}

// Datatype implements gpu.IndexBuffer.
func (b *IndexBuffer) Datatype() gpu.IndexDatatype { return b.datatype }

// Count implements gpu.IndexBuffer.
func (b *IndexBuffer) Count() int {
	if b.datatype == gpu.UnsignedInt {
		return len(b.U32)
	}
	return len(b.U16)
}

// Mesh is an in-memory vertex array.
type Mesh struct {
	resource
	attributes []gpu.AttributeDescriptor
	indices    gpu.IndexBuffer
}

// Attributes implements gpu.Mesh.
func (m *Mesh) Attributes() []gpu.AttributeDescriptor { return m.attributes }

// Destroy releases the mesh and the buffers it references.
func (m *Mesh) Destroy() error {
	if err := m.f.destroy(m.id); err != nil {
		return err
	}
	seen := make(map[uint32]bool)
	for _, a := range m.attributes {
		if src, ok := a.Source.(gpu.PerVertexStream); ok {
			if vb, ok := src.Buffer.(*VertexBuffer); ok && !seen[vb.id] {
				seen[vb.id] = true
				if err := vb.Destroy(); err != nil {
					return err
				}
			}
		}
	}
	if m.indices != nil {
		return m.indices.Destroy()
	}
	return nil
}

// IndexBuffer implements gpu.Mesh.
func (m *Mesh) IndexBuffer() gpu.IndexBuffer { return m.indices }
