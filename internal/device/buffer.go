package device

import (
	"fmt"
	"unsafe"
)

// Buffer owns one device allocation. The zero value and a nil *Buffer are
// both empty and safe to Release.
//
// A Buffer must not be copied after Alloc; pass the pointer around instead.
type Buffer struct {
	rt   Runtime
	ptr  Ptr
	size int64
}

// Alloc reserves bytes of device memory on rt. Any failure is reported as
// ErrAllocation.
func Alloc(rt Runtime, bytes int64) (*Buffer, error) {
	if rt == nil {
		return nil, fmt.Errorf("%w: nil runtime", ErrAllocation)
	}
	if bytes <= 0 {
		return nil, fmt.Errorf("%w: size must be > 0, got %d", ErrAllocation, bytes)
	}
	ptr, err := rt.Malloc(bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %d bytes on %s: %w", ErrAllocation, bytes, rt.Name(), err)
	}
	return &Buffer{rt: rt, ptr: ptr, size: bytes}, nil
}

func (b *Buffer) Ptr() Ptr {
	if b == nil {
		return 0
	}
	return b.ptr
}

func (b *Buffer) Size() int64 {
	if b == nil {
		return 0
	}
	return b.size
}

// Released reports whether the buffer no longer owns an allocation.
func (b *Buffer) Released() bool {
	return b == nil || b.rt == nil
}

// Release frees the allocation. Subsequent calls are no-ops.
func (b *Buffer) Release() error {
	if b.Released() {
		return nil
	}
	rt, ptr := b.rt, b.ptr
	b.rt, b.ptr, b.size = nil, 0, 0
	if err := rt.Free(ptr); err != nil {
		return fmt.Errorf("free device buffer on %s: %w", rt.Name(), err)
	}
	return nil
}

// Upload copies src to the start of the buffer.
func (b *Buffer) Upload(src []byte) error {
	if b.Released() {
		return ErrReleased
	}
	if int64(len(src)) > b.size {
		return fmt.Errorf("%w: upload of %d bytes into %d byte buffer", ErrTransfer, len(src), b.size)
	}
	if len(src) == 0 {
		return nil
	}
	if err := b.rt.CopyHostToDevice(b.ptr, src); err != nil {
		return fmt.Errorf("%w: host to device (%d bytes): %w", ErrTransfer, len(src), err)
	}
	return nil
}

// Download copies len(dst) bytes from the start of the buffer into dst.
func (b *Buffer) Download(dst []byte) error {
	if b.Released() {
		return ErrReleased
	}
	if int64(len(dst)) > b.size {
		return fmt.Errorf("%w: download of %d bytes from %d byte buffer", ErrTransfer, len(dst), b.size)
	}
	if len(dst) == 0 {
		return nil
	}
	if err := b.rt.CopyDeviceToHost(dst, b.ptr); err != nil {
		return fmt.Errorf("%w: device to host (%d bytes): %w", ErrTransfer, len(dst), err)
	}
	return nil
}

// Int8Bytes reinterprets an int8 slice as bytes without copying.
func Int8Bytes(v []int8) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v))
}

// Int32Bytes reinterprets an int32 slice as native-endian bytes without copying.
func Int32Bytes(v []int32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4)
}
