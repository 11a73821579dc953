package terrain

import (
	"context"

	"github.com/Faultbox/midgard-terrain/internal/gpu"
	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

// Request is the pending result of CreateTileGeometry. It resolves exactly
// once, either with the mesh that was attached to the tile or an error.
type Request struct {
	address tiling.Address
	done    chan struct{}
	mesh    gpu.Mesh
	err     error
}

func newRequest(addr tiling.Address) *Request {
	return &Request{address: addr, done: make(chan struct{})}
}

// Address returns the requested tile address.
func (r *Request) Address() tiling.Address { return r.address }

// Done is closed once the request resolves.
func (r *Request) Done() <-chan struct{} { return r.done }

// Wait blocks until the request resolves or ctx ends. Giving up on Wait
// does not cancel the request.
func (r *Request) Wait(ctx context.Context) (gpu.Mesh, error) {
	select {
	case <-r.done:
		return r.mesh, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome, or ErrPending if the request has not resolved.
func (r *Request) Result() (gpu.Mesh, error) {
	select {
	case <-r.done:
		return r.mesh, r.err
	default:
		return nil, ErrPending
	}
}

func (r *Request) complete(mesh gpu.Mesh, err error) {
	r.mesh, r.err = mesh, err
	close(r.done)
}
