//go:build cuda

package cuda

import (
	"errors"
	"testing"

	"github.com/samcharles93/qlinear/internal/device"
)

func openOrSkip(t *testing.T) *Runtime {
	t.Helper()
	rt, err := Open(0)
	if errors.Is(err, device.ErrUnavailable) {
		t.Skip("no cuda device available")
	}
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := rt.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return rt
}

func TestGemmInt8MatchesHostReference(t *testing.T) {
	rt := openOrSkip(t)

	const m, n, k = 4, 8, 8
	a := make([]int8, m*k)
	b := make([]int8, n*k)
	for i := range a {
		a[i] = int8(i%9 - 4)
	}
	for i := range b {
		b[i] = int8(i%7 - 3)
	}

	aBuf, err := device.Alloc(rt, int64(len(a)))
	if err != nil {
		t.Fatalf("Alloc A: %v", err)
	}
	defer aBuf.Release()
	bBuf, err := device.Alloc(rt, int64(len(b)))
	if err != nil {
		t.Fatalf("Alloc B: %v", err)
	}
	defer bBuf.Release()
	cBuf, err := device.Alloc(rt, int64(m*n*4))
	if err != nil {
		t.Fatalf("Alloc C: %v", err)
	}
	defer cBuf.Release()

	if err := aBuf.Upload(device.Int8Bytes(a)); err != nil {
		t.Fatalf("Upload A: %v", err)
	}
	if err := bBuf.Upload(device.Int8Bytes(b)); err != nil {
		t.Fatalf("Upload B: %v", err)
	}
	if err := rt.GemmInt8(device.Gemm{A: aBuf.Ptr(), B: bBuf.Ptr(), C: cBuf.Ptr(), M: m, N: n, K: k}); err != nil {
		t.Fatalf("GemmInt8: %v", err)
	}
	got := make([]int32, m*n)
	if err := cBuf.Download(device.Int32Bytes(got)); err != nil {
		t.Fatalf("Download C: %v", err)
	}

	for col := 0; col < n; col++ {
		for row := 0; row < m; row++ {
			var want int32
			for i := 0; i < k; i++ {
				want += int32(a[row*k+i]) * int32(b[col*k+i])
			}
			if got[col*m+row] != want {
				t.Fatalf("C[%d,%d]: got %d want %d", row, col, got[col*m+row], want)
			}
		}
	}
}
