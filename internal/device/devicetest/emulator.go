// Package devicetest provides a host-memory stand-in for an accelerator
// runtime, with fault injection, for tests of code built on package device.
//
// The emulator is a test double only. It is never selected by the backend
// factory and must not be used as a compute fallback.
package devicetest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/samcharles93/qlinear/internal/device"
)

// ErrInjected is returned by primitives configured to fail.
var ErrInjected = errors.New("devicetest: injected failure")

// Emulator implements device.Runtime on host memory.
type Emulator struct {
	mu sync.Mutex

	next     device.Ptr
	mem      map[device.Ptr][]byte
	maxBytes int64
	used     int64
	closed   bool

	mallocCalls  int
	failMallocAt int
	failUpload   bool
	failDownload bool
	gemmErr      error
	gemmCalls    []device.Gemm
}

// Option configures an Emulator.
type Option func(*Emulator)

// WithMemoryLimit caps the total bytes that may be live at once.
func WithMemoryLimit(bytes int64) Option {
	return func(e *Emulator) { e.maxBytes = bytes }
}

func New(opts ...Option) *Emulator {
	e := &Emulator{
		next: 0x1000,
		mem:  make(map[device.Ptr][]byte),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FailMallocAfter makes the nth Malloc call from now fail (n >= 1).
func (e *Emulator) FailMallocAfter(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failMallocAt = e.mallocCalls + n
}

// FailGemm makes every following GemmInt8 call return err. A nil err clears it.
func (e *Emulator) FailGemm(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gemmErr = err
}

// FailTransfers toggles failure of host->device and device->host copies.
func (e *Emulator) FailTransfers(upload, download bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failUpload = upload
	e.failDownload = download
}

// Live returns the number of allocations that have not been freed.
func (e *Emulator) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.mem)
}

// LiveBytes returns the total size of allocations that have not been freed.
func (e *Emulator) LiveBytes() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.used
}

// GemmCalls returns the descriptors of every GemmInt8 call seen so far.
func (e *Emulator) GemmCalls() []device.Gemm {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]device.Gemm(nil), e.gemmCalls...)
}

// Bytes returns a copy of the memory behind p.
func (e *Emulator) Bytes(p device.Ptr) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.mem[p]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

func (e *Emulator) Name() string {
	return "devicetest"
}

func (e *Emulator) Malloc(bytes int64) (device.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, errors.New("devicetest: runtime closed")
	}
	e.mallocCalls++
	if e.failMallocAt > 0 && e.mallocCalls == e.failMallocAt {
		return 0, ErrInjected
	}
	if bytes <= 0 {
		return 0, fmt.Errorf("devicetest: invalid allocation size %d", bytes)
	}
	if e.maxBytes > 0 && e.used+bytes > e.maxBytes {
		return 0, fmt.Errorf("devicetest: out of memory (%d live + %d requested > %d)", e.used, bytes, e.maxBytes)
	}
	p := e.next
	// Keep addresses 256-byte aligned, like cudaMalloc.
	e.next += device.Ptr((bytes + 255) &^ 255)
	e.mem[p] = make([]byte, bytes)
	e.used += bytes
	return p, nil
}

func (e *Emulator) Free(p device.Ptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.mem[p]
	if !ok {
		return fmt.Errorf("devicetest: free of unknown pointer %#x", uintptr(p))
	}
	delete(e.mem, p)
	e.used -= int64(len(b))
	return nil
}

func (e *Emulator) CopyHostToDevice(dst device.Ptr, src []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failUpload {
		return ErrInjected
	}
	mem, err := e.lookup(dst, len(src))
	if err != nil {
		return err
	}
	copy(mem, src)
	return nil
}

func (e *Emulator) CopyDeviceToHost(dst []byte, src device.Ptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failDownload {
		return ErrInjected
	}
	mem, err := e.lookup(src, len(dst))
	if err != nil {
		return err
	}
	copy(dst, mem)
	return nil
}

// GemmInt8 computes C = A^T * B on the host with the layout documented on
// device.Gemm.
func (e *Emulator) GemmInt8(g device.Gemm) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gemmCalls = append(e.gemmCalls, g)
	if e.gemmErr != nil {
		return e.gemmErr
	}
	if g.M <= 0 || g.N <= 0 || g.K <= 0 {
		return fmt.Errorf("devicetest: invalid gemm dims m=%d n=%d k=%d", g.M, g.N, g.K)
	}
	a, err := e.lookup(g.A, g.M*g.K)
	if err != nil {
		return fmt.Errorf("operand A: %w", err)
	}
	b, err := e.lookup(g.B, g.N*g.K)
	if err != nil {
		return fmt.Errorf("operand B: %w", err)
	}
	c, err := e.lookup(g.C, g.M*g.N*4)
	if err != nil {
		return fmt.Errorf("operand C: %w", err)
	}
	for n := 0; n < g.N; n++ {
		bRow := b[n*g.K : (n+1)*g.K]
		for m := 0; m < g.M; m++ {
			aRow := a[m*g.K : (m+1)*g.K]
			var sum int32
			for k := range aRow {
				sum += int32(int8(aRow[k])) * int32(int8(bRow[k]))
			}
			binary.NativeEndian.PutUint32(c[(n*g.M+m)*4:], uint32(sum))
		}
	}
	return nil
}

func (e *Emulator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *Emulator) lookup(p device.Ptr, n int) ([]byte, error) {
	b, ok := e.mem[p]
	if !ok {
		return nil, fmt.Errorf("devicetest: unknown pointer %#x", uintptr(p))
	}
	if n > len(b) {
		return nil, fmt.Errorf("devicetest: access of %d bytes exceeds %d byte allocation", n, len(b))
	}
	return b[:n], nil
}
