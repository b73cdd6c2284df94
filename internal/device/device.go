// Package device describes the accelerator runtime a quantized layer runs on.
//
// A Runtime is the compute handle: it is created once by the caller, shared by
// every layer placed on the same device, and passed to each layer explicitly.
// Raw allocations made through a Runtime are wrapped in a *Buffer, which owns
// the allocation until Release.
package device

// Ptr is an opaque device address. It never refers to Go memory.
type Ptr uintptr

// Gemm describes one int8 x int8 -> int32 matrix multiply in the fixed
// column-major convention used by cuBLAS:
//
//	C[m x n] = A^T[m x k] * B[k x n]
//
// A holds k x m int8 values (lda = K), so a row-major [M][K] weight matrix is
// passed as-is and used transposed. B holds k x n int8 values (ldb = K), which
// is a row-major [N][K] activation. C receives m x n int32 values (ldc = M),
// which reads back on the host as row-major [N][M]. Alpha is 1 and beta is 0.
type Gemm struct {
	A, B, C Ptr
	M, N, K int
}

// Runtime is the set of primitives the accelerator provides. Every call is
// blocking from the caller's point of view.
type Runtime interface {
	Name() string
	Malloc(bytes int64) (Ptr, error)
	Free(p Ptr) error
	CopyHostToDevice(dst Ptr, src []byte) error
	CopyDeviceToHost(dst []byte, src Ptr) error
	GemmInt8(g Gemm) error
	Close() error
}
