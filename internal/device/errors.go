package device

import "errors"

var (
	// ErrAllocation reports device memory exhaustion or an allocator failure.
	ErrAllocation = errors.New("device allocation failed")
	// ErrGemm reports a failure of the integer matrix-multiply primitive.
	ErrGemm = errors.New("integer gemm failed")
	// ErrTransfer reports a failed host<->device copy.
	ErrTransfer = errors.New("device transfer failed")
	// ErrReleased is returned when a released Buffer is used.
	ErrReleased = errors.New("device buffer already released")
	// ErrUnavailable is returned when no accelerator runtime is compiled in or present.
	ErrUnavailable = errors.New("accelerator runtime unavailable")
)
