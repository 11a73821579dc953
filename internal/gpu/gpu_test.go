package gpu_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-terrain/internal/gpu"
	"github.com/Faultbox/midgard-terrain/internal/gpu/memgpu"
)

func TestValidateAttributes(t *testing.T) {
	f := memgpu.New()
	vb, err := f.CreateVertexBuffer([]float32{0, 0, 0, 0, 0}, gpu.StaticDraw)
	require.NoError(t, err)

	tests := []struct {
		name    string
		attrs   []gpu.AttributeDescriptor
		wantErr bool
	}{
		{
			name: "stream and constant",
			attrs: []gpu.AttributeDescriptor{
				{Index: 0, Source: gpu.PerVertexStream{Buffer: vb, Components: 3, StrideInBytes: 20}},
				{Index: 2, Source: gpu.Constant{Values: []float32{0, 0}}},
			},
		},
		{
			name:    "missing source",
			attrs:   []gpu.AttributeDescriptor{{Index: 0}},
			wantErr: true,
		},
		{
			name:    "empty constant",
			attrs:   []gpu.AttributeDescriptor{{Index: 0, Source: gpu.Constant{}}},
			wantErr: true,
		},
		{
			name:    "stream without buffer",
			attrs:   []gpu.AttributeDescriptor{{Index: 0, Source: gpu.PerVertexStream{Components: 3}}},
			wantErr: true,
		},
		{
			name: "duplicate index",
			attrs: []gpu.AttributeDescriptor{
				{Index: 1, Source: gpu.Constant{Values: []float32{1}}},
				{Index: 1, Source: gpu.Constant{Values: []float32{1}}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gpu.ValidateAttributes(tt.attrs)
			if tt.wantErr {
				assert.ErrorIs(t, err, gpu.ErrInvalidAttribute)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQueueRunPending(t *testing.T) {
	q := gpu.NewQueue(4)
	defer q.Close()

	var ran []int
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, q.Do(context.Background(), func() { ran = append(ran, i) }))
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	total := 0
	for total < 3 && time.Now().Before(deadline) {
		total += q.RunPending()
		time.Sleep(time.Millisecond)
	}
	wg.Wait()
	assert.Equal(t, 3, total)
	assert.Len(t, ran, 3)
}

func TestQueueAbandonOnContext(t *testing.T) {
	q := gpu.NewQueue(1)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	ran := false
	go func() {
		done <- q.Do(ctx, func() { ran = true })
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)

	// The abandoned job is drained but never executed.
	q.RunPending()
	assert.False(t, ran)
}

func TestQueueClosed(t *testing.T) {
	q := gpu.NewQueue(1)
	q.Close()
	err := q.Do(context.Background(), func() {})
	assert.ErrorIs(t, err, gpu.ErrQueueClosed)
}

func TestSerializePreventsOverlap(t *testing.T) {
	inner := memgpu.New()
	q := gpu.NewQueue(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Serve(ctx)

	f := gpu.Serialize(inner, q)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vb, err := f.CreateVertexBuffer(make([]float32, 15), gpu.StaticDraw)
			require.NoError(t, err)
			ib, err := f.CreateIndexBuffer(gpu.Uint16Indices{0, 1, 2}, gpu.StaticDraw)
			require.NoError(t, err)
			m, err := f.CreateMesh([]gpu.AttributeDescriptor{
				{Index: 0, Source: gpu.PerVertexStream{Buffer: vb, Datatype: gpu.Float, Components: 3, StrideInBytes: 20}},
			}, ib)
			require.NoError(t, err)
			require.NoError(t, m.Destroy())
		}()
	}
	wg.Wait()

	assert.Zero(t, inner.Overlapped())
	assert.Zero(t, inner.Live())
	assert.Equal(t, 32, inner.CallCount(memgpu.OpCreateMesh))
}

func TestSerializeUnwrapsHandles(t *testing.T) {
	inner := memgpu.New()
	q := gpu.NewQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Serve(ctx)

	f := gpu.Serialize(inner, q)
	vb, err := f.CreateVertexBuffer([]float32{1, 2, 3}, gpu.DynamicDraw)
	require.NoError(t, err)

	raw, ok := gpu.Unwrap(vb).(*memgpu.VertexBuffer)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, raw.Data)
	assert.Equal(t, gpu.DynamicDraw, raw.Usage)
}

func TestSerializePropagatesFactoryErrors(t *testing.T) {
	inner := memgpu.New()
	inner.FailNext(memgpu.OpCreateVertexBuffer, gpu.ErrOutOfMemory)
	q := gpu.NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Serve(ctx)

	_, err := gpu.Serialize(inner, q).CreateVertexBuffer([]float32{1}, gpu.StaticDraw)
	assert.True(t, errors.Is(err, gpu.ErrOutOfMemory))
}

func TestMemgpuMeshDestroyReleasesBuffers(t *testing.T) {
	f := memgpu.New()
	vb, err := f.CreateVertexBuffer(make([]float32, 10), gpu.StaticDraw)
	require.NoError(t, err)
	ib, err := f.CreateIndexBuffer(gpu.Uint32Indices{0, 1, 1}, gpu.StaticDraw)
	require.NoError(t, err)
	m, err := f.CreateMesh([]gpu.AttributeDescriptor{
		{Index: 0, Source: gpu.PerVertexStream{Buffer: vb, Components: 3, StrideInBytes: 20}},
		{Index: 1, Source: gpu.PerVertexStream{Buffer: vb, Components: 2, OffsetInBytes: 12, StrideInBytes: 20}},
	}, ib)
	require.NoError(t, err)
	assert.Equal(t, 3, f.Live())
	assert.Equal(t, gpu.UnsignedInt, m.IndexBuffer().Datatype())

	require.NoError(t, m.Destroy())
	assert.Zero(t, f.Live())
	assert.ErrorIs(t, m.Destroy(), gpu.ErrDestroyed)
}
