//go:build cuda

// Package cuda implements device.Runtime on the CUDA runtime and cuBLAS.
package cuda

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/samcharles93/qlinear/internal/backend/cuda/native"
	"github.com/samcharles93/qlinear/internal/device"
)

// Runtime owns one CUDA stream and one cuBLAS handle bound to it. Every
// primitive synchronizes the stream before returning.
type Runtime struct {
	ordinal int
	stream  native.Stream
	blas    native.BlasHandle
}

var _ device.Runtime = (*Runtime)(nil)

func Open(ordinal int) (*Runtime, error) {
	count, err := native.DeviceCount()
	if err != nil {
		return nil, fmt.Errorf("cuda device query failed: %w", err)
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: no cuda devices detected", device.ErrUnavailable)
	}
	if ordinal < 0 || ordinal >= count {
		return nil, fmt.Errorf("cuda device %d out of range (have %d)", ordinal, count)
	}
	if err := native.SetDevice(ordinal); err != nil {
		return nil, fmt.Errorf("cuda set device %d: %w", ordinal, err)
	}
	stream, err := native.NewStream()
	if err != nil {
		return nil, fmt.Errorf("cuda stream create failed: %w", err)
	}
	blas, err := native.NewBlasHandle(stream)
	if err != nil {
		_ = stream.Destroy()
		return nil, fmt.Errorf("cublas init failed: %w", err)
	}
	return &Runtime{ordinal: ordinal, stream: stream, blas: blas}, nil
}

func (r *Runtime) Name() string {
	return fmt.Sprintf("cuda:%d", r.ordinal)
}

func (r *Runtime) Malloc(bytes int64) (device.Ptr, error) {
	buf, err := native.AllocDevice(bytes)
	if err != nil {
		return 0, err
	}
	return device.Ptr(buf.Addr()), nil
}

func (r *Runtime) Free(p device.Ptr) error {
	return native.WrapDevice(uintptr(p)).Free()
}

func (r *Runtime) CopyHostToDevice(dst device.Ptr, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	if err := native.MemcpyH2DAsync(native.WrapDevice(uintptr(dst)), unsafe.Pointer(&src[0]), int64(len(src)), r.stream); err != nil {
		return err
	}
	err := r.stream.Synchronize()
	runtime.KeepAlive(src)
	return err
}

func (r *Runtime) CopyDeviceToHost(dst []byte, src device.Ptr) error {
	if len(dst) == 0 {
		return nil
	}
	if err := native.MemcpyD2HAsync(unsafe.Pointer(&dst[0]), native.WrapDevice(uintptr(src)), int64(len(dst)), r.stream); err != nil {
		return err
	}
	err := r.stream.Synchronize()
	runtime.KeepAlive(dst)
	return err
}

func (r *Runtime) GemmInt8(g device.Gemm) error {
	if err := native.GemmExI32(
		r.blas,
		native.BlasOpT,
		native.BlasOpN,
		g.M,
		g.N,
		g.K,
		1,
		native.WrapDevice(uintptr(g.A)),
		native.BlasI8,
		g.K,
		native.WrapDevice(uintptr(g.B)),
		native.BlasI8,
		g.K,
		0,
		native.WrapDevice(uintptr(g.C)),
		native.BlasI32,
		g.M,
		native.BlasComputeI32,
		native.BlasGemmDefault,
	); err != nil {
		return err
	}
	return r.stream.Synchronize()
}

func (r *Runtime) Close() error {
	var err error
	if e := r.blas.Destroy(); e != nil {
		err = e
	}
	if e := r.stream.Destroy(); e != nil && err == nil {
		err = e
	}
	r.blas = native.BlasHandle{}
	r.stream = native.Stream{}
	return err
}
