//go:build cuda

package native

import (
	"runtime"
	"testing"
	"unsafe"
)

func newTestStream(t *testing.T) Stream {
	t.Helper()
	count, err := DeviceCount()
	if err != nil {
		t.Fatalf("DeviceCount: %v", err)
	}
	if count < 1 {
		t.Skip("no cuda device available")
	}
	stream, err := NewStream()
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	t.Cleanup(func() {
		if err := stream.Destroy(); err != nil {
			t.Errorf("stream destroy: %v", err)
		}
	})
	return stream
}

func allocDevice(t *testing.T, bytes int64) DeviceBuffer {
	t.Helper()
	buf, err := AllocDevice(bytes)
	if err != nil {
		t.Fatalf("AllocDevice(%d): %v", bytes, err)
	}
	t.Cleanup(func() { _ = buf.Free() })
	return buf
}

func TestMemcpyRoundTripInt8(t *testing.T) {
	stream := newTestStream(t)

	const n = 256
	in := make([]int8, n)
	out := make([]int8, n)
	for i := range in {
		in[i] = int8(i%255 - 127)
	}

	dev := allocDevice(t, n)
	if err := MemcpyH2DAsync(dev, unsafe.Pointer(&in[0]), n, stream); err != nil {
		t.Fatalf("MemcpyH2DAsync: %v", err)
	}
	if err := MemcpyD2HAsync(unsafe.Pointer(&out[0]), dev, n, stream); err != nil {
		t.Fatalf("MemcpyD2HAsync: %v", err)
	}
	if err := stream.Synchronize(); err != nil {
		t.Fatalf("stream synchronize: %v", err)
	}
	runtime.KeepAlive(in)

	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestWrapDeviceKeepsAddress(t *testing.T) {
	newTestStream(t)
	dev := allocDevice(t, 64)
	if got := WrapDevice(dev.Addr()); got.Addr() != dev.Addr() {
		t.Fatalf("address changed: got %#x want %#x", got.Addr(), dev.Addr())
	}
}

func TestCublasGemmExInt8(t *testing.T) {
	stream := newTestStream(t)
	blas, err := NewBlasHandle(stream)
	if err != nil {
		t.Fatalf("NewBlasHandle: %v", err)
	}
	defer func() {
		if err := blas.Destroy(); err != nil {
			t.Fatalf("blas destroy: %v", err)
		}
	}()

	// cuBLAS int8 paths want leading dimensions that are multiples of 4.
	const (
		out   = 8
		batch = 4
		in    = 16
	)

	w := make([]int8, out*in)
	x := make([]int8, batch*in)
	for i := range w {
		w[i] = int8((i*7)%21 - 10)
	}
	for i := range x {
		x[i] = int8((i*5)%17 - 8)
	}
	ref := make([]int32, batch*out)
	for b := 0; b < batch; b++ {
		for o := 0; o < out; o++ {
			var sum int32
			for k := 0; k < in; k++ {
				sum += int32(w[o*in+k]) * int32(x[b*in+k])
			}
			ref[b*out+o] = sum
		}
	}

	wDev := allocDevice(t, int64(len(w)))
	xDev := allocDevice(t, int64(len(x)))
	cDev := allocDevice(t, int64(len(ref))*4)

	if err := MemcpyH2DAsync(wDev, unsafe.Pointer(&w[0]), int64(len(w)), stream); err != nil {
		t.Fatalf("MemcpyH2DAsync W: %v", err)
	}
	if err := MemcpyH2DAsync(xDev, unsafe.Pointer(&x[0]), int64(len(x)), stream); err != nil {
		t.Fatalf("MemcpyH2DAsync X: %v", err)
	}
	if err := GemmExI32(blas, BlasOpT, BlasOpN, out, batch, in, 1, wDev, BlasI8, in, xDev, BlasI8, in, 0, cDev, BlasI32, out, BlasComputeI32, BlasGemmDefault); err != nil {
		t.Fatalf("GemmExI32: %v", err)
	}
	got := make([]int32, len(ref))
	if err := MemcpyD2HAsync(unsafe.Pointer(&got[0]), cDev, int64(len(got))*4, stream); err != nil {
		t.Fatalf("MemcpyD2HAsync C: %v", err)
	}
	if err := stream.Synchronize(); err != nil {
		t.Fatalf("stream synchronize: %v", err)
	}
	runtime.KeepAlive(w)
	runtime.KeepAlive(x)

	for i := range ref {
		if got[i] != ref[i] {
			t.Fatalf("gemm mismatch at %d: got %d want %d", i, got[i], ref[i])
		}
	}
}
