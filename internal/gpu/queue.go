package gpu

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrQueueClosed is returned for work submitted to a closed queue.
var ErrQueueClosed = errors.New("gpu queue closed")

const (
	jobPending int32 = iota
	jobRunning
	jobAbandoned
)

type job struct {
	fn    func()
	state atomic.Int32
	done  chan struct{}
}

// Queue funnels GPU work onto a single goroutine.
//
// GPU command submission is not safe to call concurrently (OpenGL calls must
// stay on the thread that owns the context), so geometry can be computed on
// any goroutine but every factory call is executed by whoever drains the
// queue: either Serve on a dedicated locked OS thread, or RunPending from the
// render loop.
type Queue struct {
	jobs      chan *job
	closed    chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue buffering up to capacity pending jobs.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		jobs:   make(chan *job, capacity),
		closed: make(chan struct{}),
	}
}

// Do runs fn on the queue goroutine and waits for it to finish.
// If ctx ends before fn starts, fn is skipped and ctx's error is returned.
func (q *Queue) Do(ctx context.Context, fn func()) error {
	j := &job{fn: fn, done: make(chan struct{})}

	select {
	case q.jobs <- j:
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-j.done:
		return nil
	case <-q.closed:
		if j.state.CompareAndSwap(jobPending, jobAbandoned) {
			return ErrQueueClosed
		}
	case <-ctx.Done():
		if j.state.CompareAndSwap(jobPending, jobAbandoned) {
			return ctx.Err()
		}
	}

	// Already running; it must complete.
	<-j.done
	return nil
}

// RunPending executes every job queued so far without blocking and
// returns how many ran. Call it from the thread that owns the GPU context.
func (q *Queue) RunPending() int {
	n := 0
	for {
		select {
		case j := <-q.jobs:
			if q.run(j) {
				n++
			}
		default:
			return n
		}
	}
}

// Serve executes jobs on a locked OS thread until ctx ends or the queue is closed.
func (q *Queue) Serve(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case j := <-q.jobs:
			q.run(j)
		case <-q.closed:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops accepting work. Pending jobs that never started are abandoned.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
}

func (q *Queue) run(j *job) bool {
	if !j.state.CompareAndSwap(jobPending, jobRunning) {
		return false
	}
	defer close(j.done)
	j.fn()
	return true
}
