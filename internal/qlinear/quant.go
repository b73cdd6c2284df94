package qlinear

import (
	"github.com/samcharles93/qlinear/internal/tensor"
)

// qmax is the largest magnitude a quantized activation or weight takes.
const qmax = 127

// QuantizeRows quantizes each row of x symmetrically to int8 using the row's
// maximum absolute value m. Rows with m > 0 are multiplied in place by 127/m
// and truncated toward zero into dst; all-zero rows produce zeros and are left
// untouched. rowMax[i] receives m.
//
// dst must hold x.R*x.C values and rowMax x.R values.
func QuantizeRows(x *tensor.Mat, dst []int8, rowMax []float32) {
	for i := 0; i < x.R; i++ {
		row := x.Row(i)
		q := dst[i*x.C : (i+1)*x.C]
		m := maxAbs(row)
		rowMax[i] = m
		if m == 0 {
			clear(q)
			continue
		}
		s := qmax / m
		for j, v := range row {
			v *= s
			row[j] = v
			q[j] = int8(v)
		}
	}
}

// DequantizeRows converts int32 accumulators back to floats:
//
//	out[i][o] = acc[i][o] * scale[o] * rowMax[i] / (127*127)
//
// then adds bias to every row when it is non-empty. A row whose rowMax is zero
// is zero before the bias is added. acc is row-major [out.R][out.C].
func DequantizeRows(acc []int32, rowMax, scale, bias []float32, out *tensor.Mat) {
	const norm = qmax * qmax
	for i := 0; i < out.R; i++ {
		dst := out.Row(i)
		if m := rowMax[i]; m == 0 {
			clear(dst)
		} else {
			src := acc[i*out.C : (i+1)*out.C]
			for o, a := range src {
				dst[o] = float32(a) * scale[o] * m / norm
			}
		}
		if len(bias) > 0 {
			for o := range dst {
				dst[o] += bias[o]
			}
		}
	}
}

func maxAbs(row []float32) float32 {
	var m float32
	for _, v := range row {
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return m
}
