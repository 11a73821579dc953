package terrain

import (
	"errors"
	"fmt"
)

// Contract violations are returned synchronously; everything else is
// delivered through a Request.
var (
	// ErrContractViolation marks programmer errors: using a provider that
	// was not built by its constructor, passing a nil tile, or asking for
	// the abstract provider kind.
	ErrContractViolation = errors.New("terrain provider contract violation")

	// ErrInvalidAddress is returned for addresses outside the provider's
	// tiling scheme.
	ErrInvalidAddress = fmt.Errorf("invalid tile address: %w", ErrContractViolation)

	// ErrInvalidGeometry is returned when a raw geometry buffer breaks the
	// packing invariants.
	ErrInvalidGeometry = errors.New("invalid tile geometry")

	// ErrGeometryUnavailable wraps production failures such as fetch or
	// decode errors.
	ErrGeometryUnavailable = errors.New("tile geometry unavailable")

	// ErrGPUResource wraps failures of the GPU resource factory.
	ErrGPUResource = errors.New("gpu resource creation failed")

	// ErrTileEvicted is returned when the tile was evicted before its
	// geometry could be attached.
	ErrTileEvicted = errors.New("tile evicted")

	// ErrPending is returned by Request.Result before the request resolves.
	ErrPending = errors.New("tile geometry request pending")
)
