package qlinear

import (
	"fmt"

	"github.com/samcharles93/qlinear/internal/device"
)

// invokeGemm computes acc[b][o] = sum_k weight[o][k] * x[b][k] on the device.
// The weight is used transposed so the contraction runs over the input size;
// acc reads back as row-major [batch][outputSize].
func invokeGemm(rt device.Runtime, w *WeightStore, x, acc *device.Buffer, batch int) error {
	g := device.Gemm{
		A: w.Ptr(),
		B: x.Ptr(),
		C: acc.Ptr(),
		M: w.OutputSize(),
		N: batch,
		K: w.InputSize(),
	}
	if need := int64(g.N) * int64(g.K); x.Size() < need {
		return fmt.Errorf("%w: activation buffer holds %d bytes, need %d", device.ErrGemm, x.Size(), need)
	}
	if need := int64(g.M) * int64(g.N) * 4; acc.Size() < need {
		return fmt.Errorf("%w: accumulator holds %d bytes, need %d", device.ErrGemm, acc.Size(), need)
	}
	if err := rt.GemmInt8(g); err != nil {
		return fmt.Errorf("%w: m=%d n=%d k=%d on %s: %w", device.ErrGemm, g.M, g.N, g.K, rt.Name(), err)
	}
	return nil
}
