//go:build cuda

package native

/*
#cgo LDFLAGS: -lcudart -lcublas

// Minimal CUDA runtime forward declarations to avoid requiring headers at compile time.
// Linker will still require libcudart when building with the cuda tag.
typedef void* cudaStream_t;
typedef int cudaError_t;

extern const char* cudaGetErrorString(cudaError_t err);
extern cudaError_t cudaGetDeviceCount(int* count);
extern cudaError_t cudaSetDevice(int device);
extern cudaError_t cudaStreamCreate(cudaStream_t* stream);
extern cudaError_t cudaStreamDestroy(cudaStream_t stream);
extern cudaError_t cudaStreamSynchronize(cudaStream_t stream);
extern cudaError_t cudaMalloc(void** ptr, unsigned long long size);
extern cudaError_t cudaFree(void* ptr);
extern cudaError_t cudaMemcpyAsync(void* dst, const void* src, unsigned long long size, int kind, cudaStream_t stream);

#define QLINEAR_CUDA_MEMCPY_HOST_TO_DEVICE 1
#define QLINEAR_CUDA_MEMCPY_DEVICE_TO_HOST 2

typedef struct cublasContext* cublasHandle_t;
typedef int cublasStatus_t;

extern cublasStatus_t cublasCreate_v2(cublasHandle_t* handle);
extern cublasStatus_t cublasDestroy_v2(cublasHandle_t handle);
extern cublasStatus_t cublasSetStream_v2(cublasHandle_t handle, cudaStream_t stream);
extern cublasStatus_t cublasGemmEx(
	cublasHandle_t handle,
	int transa,
	int transb,
	int m,
	int n,
	int k,
	const void* alpha,
	const void* A,
	int Atype,
	int lda,
	const void* B,
	int Btype,
	int ldb,
	const void* beta,
	void* C,
	int Ctype,
	int ldc,
	int computeType,
	int algo);

static const char* qlinearCudaGetErrorString(cudaError_t err) {
	return cudaGetErrorString(err);
}

static int qlinearCudaGetDeviceCount(int* out) {
	return (int)cudaGetDeviceCount(out);
}

static int qlinearCudaSetDevice(int device) {
	return (int)cudaSetDevice(device);
}

static int qlinearCudaStreamCreate(cudaStream_t* out) {
	return (int)cudaStreamCreate(out);
}

static int qlinearCudaStreamDestroy(cudaStream_t stream) {
	return (int)cudaStreamDestroy(stream);
}

static int qlinearCudaStreamSynchronize(cudaStream_t stream) {
	return (int)cudaStreamSynchronize(stream);
}

static int qlinearCudaMalloc(void** ptr, unsigned long long size) {
	return (int)cudaMalloc(ptr, size);
}

static int qlinearCudaFree(void* ptr) {
	return (int)cudaFree(ptr);
}

static int qlinearCudaMemcpyAsync(void* dst, const void* src, unsigned long long size, int kind, cudaStream_t stream) {
	return (int)cudaMemcpyAsync(dst, src, size, kind, stream);
}

static int qlinearCublasCreate(cublasHandle_t* out) {
	return (int)cublasCreate_v2(out);
}

static int qlinearCublasDestroy(cublasHandle_t handle) {
	return (int)cublasDestroy_v2(handle);
}

static int qlinearCublasSetStream(cublasHandle_t handle, cudaStream_t stream) {
	return (int)cublasSetStream_v2(handle, stream);
}

static int qlinearCublasGemmEx(
	cublasHandle_t handle,
	int transa,
	int transb,
	int m,
	int n,
	int k,
	const void* alpha,
	const void* A,
	int Atype,
	int lda,
	const void* B,
	int Btype,
	int ldb,
	const void* beta,
	void* C,
	int Ctype,
	int ldc,
	int computeType,
	int algo) {
	return (int)cublasGemmEx(handle, transa, transb, m, n, k, alpha, A, Atype, lda, B, Btype, ldb, beta, C, Ctype, ldc, computeType, algo);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

type Stream struct {
	ptr C.cudaStream_t
}

type BlasHandle struct {
	ptr C.cublasHandle_t
}

// DeviceBuffer is a raw device allocation. It carries no ownership; callers
// pair every AllocDevice with exactly one Free.
type DeviceBuffer struct {
	ptr unsafe.Pointer
}

func DeviceCount() (int, error) {
	var count C.int
	if err := cudaErr(C.qlinearCudaGetDeviceCount(&count)); err != nil {
		return 0, err
	}
	return int(count), nil
}

func SetDevice(ordinal int) error {
	return cudaErr(C.qlinearCudaSetDevice(C.int(ordinal)))
}

func NewStream() (Stream, error) {
	var stream C.cudaStream_t
	if err := cudaErr(C.qlinearCudaStreamCreate(&stream)); err != nil {
		return Stream{}, err
	}
	return Stream{ptr: stream}, nil
}

func (s Stream) Destroy() error {
	if s.ptr == nil {
		return nil
	}
	return cudaErr(C.qlinearCudaStreamDestroy(s.ptr))
}

func (s Stream) Synchronize() error {
	if s.ptr == nil {
		return nil
	}
	return cudaErr(C.qlinearCudaStreamSynchronize(s.ptr))
}

func AllocDevice(bytes int64) (DeviceBuffer, error) {
	if bytes <= 0 {
		return DeviceBuffer{}, fmt.Errorf("device alloc size must be > 0")
	}
	var ptr unsafe.Pointer
	if err := cudaErr(C.qlinearCudaMalloc((*unsafe.Pointer)(&ptr), C.ulonglong(bytes))); err != nil {
		return DeviceBuffer{}, err
	}
	return DeviceBuffer{ptr: ptr}, nil
}

// WrapDevice rebuilds a DeviceBuffer from an address previously returned by Addr.
func WrapDevice(addr uintptr) DeviceBuffer {
	return DeviceBuffer{ptr: unsafe.Pointer(addr)}
}

func (b DeviceBuffer) Free() error {
	if b.ptr == nil {
		return nil
	}
	return cudaErr(C.qlinearCudaFree(b.ptr))
}

func (b DeviceBuffer) Addr() uintptr {
	return uintptr(b.ptr)
}

func MemcpyH2DAsync(dst DeviceBuffer, src unsafe.Pointer, bytes int64, stream Stream) error {
	if bytes <= 0 {
		return nil
	}
	return cudaErr(C.qlinearCudaMemcpyAsync(dst.ptr, src, C.ulonglong(bytes), C.QLINEAR_CUDA_MEMCPY_HOST_TO_DEVICE, stream.ptr))
}

func MemcpyD2HAsync(dst unsafe.Pointer, src DeviceBuffer, bytes int64, stream Stream) error {
	if bytes <= 0 {
		return nil
	}
	return cudaErr(C.qlinearCudaMemcpyAsync(dst, src.ptr, C.ulonglong(bytes), C.QLINEAR_CUDA_MEMCPY_DEVICE_TO_HOST, stream.ptr))
}

func NewBlasHandle(stream Stream) (BlasHandle, error) {
	var handle C.cublasHandle_t
	if err := cublasErr(C.qlinearCublasCreate(&handle)); err != nil {
		return BlasHandle{}, err
	}
	if err := cublasErr(C.qlinearCublasSetStream(handle, stream.ptr)); err != nil {
		_ = cublasErr(C.qlinearCublasDestroy(handle))
		return BlasHandle{}, err
	}
	return BlasHandle{ptr: handle}, nil
}

func (h BlasHandle) Destroy() error {
	if h.ptr == nil {
		return nil
	}
	return cublasErr(C.qlinearCublasDestroy(h.ptr))
}

type BlasDataType int

const (
	BlasI8  BlasDataType = 3  // CUDA_R_8I
	BlasI32 BlasDataType = 10 // CUDA_R_32I
)

type BlasComputeType int

const (
	BlasComputeI32 BlasComputeType = 72 // CUBLAS_COMPUTE_32I
)

type BlasOp int

const (
	BlasOpN BlasOp = 0 // CUBLAS_OP_N
	BlasOpT BlasOp = 1 // CUBLAS_OP_T
)

type BlasGemmAlgo int

const (
	BlasGemmDefault BlasGemmAlgo = -1 // CUBLAS_GEMM_DEFAULT
)

// GemmExI32 runs cublasGemmEx with int32 alpha/beta, as required by the
// int8 x int8 -> int32 compute path.
func GemmExI32(handle BlasHandle, transA, transB BlasOp, m, n, k int, alpha int32, a DeviceBuffer, aType BlasDataType, lda int, b DeviceBuffer, bType BlasDataType, ldb int, beta int32, c DeviceBuffer, cType BlasDataType, ldc int, compute BlasComputeType, algo BlasGemmAlgo) error {
	alphaPtr := unsafe.Pointer(&alpha)
	betaPtr := unsafe.Pointer(&beta)
	return cublasErr(C.qlinearCublasGemmEx(
		handle.ptr,
		C.int(transA),
		C.int(transB),
		C.int(m),
		C.int(n),
		C.int(k),
		alphaPtr,
		a.ptr,
		C.int(aType),
		C.int(lda),
		b.ptr,
		C.int(bType),
		C.int(ldb),
		betaPtr,
		c.ptr,
		C.int(cType),
		C.int(ldc),
		C.int(compute),
		C.int(algo),
	))
}

func cublasErr(code C.int) error {
	if code == 0 {
		return nil
	}
	return fmt.Errorf("cublas error %d", int(code))
}

func cudaErr(code C.int) error {
	if code == 0 {
		return nil
	}
	msg := C.GoString(C.qlinearCudaGetErrorString(C.cudaError_t(code)))
	return fmt.Errorf("cuda runtime error %d: %s", int(code), msg)
}
