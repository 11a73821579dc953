package gpu

import "context"

// Serialize wraps a factory so every call, including Destroy on the
// returned handles, runs through the queue.
func Serialize(f Factory, q *Queue) Factory {
	return &serialFactory{inner: f, queue: q}
}

// Unwrapper is implemented by handles that wrap a backend handle.
type Unwrapper interface {
	Unwrap() Resource
}

// Unwrap returns the innermost backend handle of r.
func Unwrap(r Resource) Resource {
	for {
		u, ok := r.(Unwrapper)
		if !ok {
			return r
		}
		r = u.Unwrap()
	}
}

type serialFactory struct {
	inner Factory
	queue *Queue
}

func (s *serialFactory) CreateVertexBuffer(data []float32, usage BufferUsage) (VertexBuffer, error) {
	var (
		vb  VertexBuffer
		err error
	)
	if qerr := s.queue.Do(context.Background(), func() {
		vb, err = s.inner.CreateVertexBuffer(data, usage)
	}); qerr != nil {
		return nil, qerr
	}
	if err != nil {
		return nil, err
	}
	return &serialVertexBuffer{VertexBuffer: vb, queue: s.queue}, nil
}

func (s *serialFactory) CreateIndexBuffer(data IndexData, usage BufferUsage) (IndexBuffer, error) {
	var (
		ib  IndexBuffer
		err error
	)
	if qerr := s.queue.Do(context.Background(), func() {
		ib, err = s.inner.CreateIndexBuffer(data, usage)
	}); qerr != nil {
		return nil, qerr
	}
	if err != nil {
		return nil, err
	}
	return &serialIndexBuffer{IndexBuffer: ib, queue: s.queue}, nil
}

func (s *serialFactory) CreateMesh(attributes []AttributeDescriptor, indices IndexBuffer) (Mesh, error) {
	inner := make([]AttributeDescriptor, len(attributes))
	for i, a := range attributes {
		if src, ok := a.Source.(PerVertexStream); ok && src.Buffer != nil {
			src.Buffer = Unwrap(src.Buffer).(VertexBuffer)
			a.Source = src
		}
		inner[i] = a
	}
	var innerIndices IndexBuffer
	if indices != nil {
		innerIndices = Unwrap(indices).(IndexBuffer)
	}

	var (
		m   Mesh
		err error
	)
	if qerr := s.queue.Do(context.Background(), func() {
		m, err = s.inner.CreateMesh(inner, innerIndices)
	}); qerr != nil {
		return nil, qerr
	}
	if err != nil {
		return nil, err
	}
	return &serialMesh{Mesh: m, queue: s.queue}, nil
}

func destroyOn(q *Queue, r Resource) error {
	var err error
	if qerr := q.Do(context.Background(), func() {
		err = r.Destroy()
	}); qerr != nil {
		return qerr
	}
	return err
}

type serialVertexBuffer struct {
	VertexBuffer
	queue *Queue
}

func (b *serialVertexBuffer) Destroy() error   { return destroyOn(b.queue, b.VertexBuffer) }
func (b *serialVertexBuffer) Unwrap() Resource { return b.VertexBuffer }

type serialIndexBuffer struct {
	IndexBuffer
	queue *Queue
}

func (b *serialIndexBuffer) Destroy() error   { return destroyOn(b.queue, b.IndexBuffer) }
func (b *serialIndexBuffer) Unwrap() Resource { return b.IndexBuffer }

type serialMesh struct {
	Mesh
	queue *Queue
}

func (m *serialMesh) Destroy() error   { return destroyOn(m.queue, m.Mesh) }
func (m *serialMesh) Unwrap() Resource { return m.Mesh }
