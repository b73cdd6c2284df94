package qlinear

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/qlinear/internal/tensor"
)

func mat(t *testing.T, r, c int, data ...float32) tensor.Mat {
	t.Helper()
	m, err := tensor.NewMatFromData(r, c, data)
	require.NoError(t, err)
	return m
}

func TestQuantizeRowsScalesInPlace(t *testing.T) {
	t.Parallel()
	x := mat(t, 2, 3,
		1, -0.5, 0.25,
		2, 1, -1,
	)
	q := make([]int8, 6)
	rowMax := make([]float32, 2)

	QuantizeRows(&x, q, rowMax)

	assert.Equal(t, []float32{1, 2}, rowMax)
	assert.Equal(t, []int8{127, -63, 31, 127, 63, -63}, q)
	assert.Equal(t, []float32{127, -63.5, 31.75, 127, 63.5, -63.5}, x.Data)
}

func TestQuantizeRowsZeroRow(t *testing.T) {
	t.Parallel()
	x := mat(t, 2, 2,
		0, 0,
		-4, 2,
	)
	q := []int8{9, 9, 9, 9}
	rowMax := []float32{7, 7}

	QuantizeRows(&x, q, rowMax)

	assert.Equal(t, []float32{0, 4}, rowMax)
	assert.Equal(t, []int8{0, 0, -127, 63}, q)
	assert.Equal(t, []float32{0, 0}, x.Row(0))
}

func TestQuantizeRowsStaysInRange(t *testing.T) {
	t.Parallel()
	x := tensor.NewMat(16, 64)
	tensor.FillRand(&x, 7, 10)
	q := make([]int8, len(x.Data))
	rowMax := make([]float32, x.R)

	QuantizeRows(&x, q, rowMax)

	for i, v := range q {
		require.GreaterOrEqual(t, v, int8(-127), "index %d", i)
	}
	for i := 0; i < x.R; i++ {
		assert.InDelta(t, 127, maxAbs(x.Row(i)), 1e-3)
	}
}

func TestDequantizeRows(t *testing.T) {
	t.Parallel()
	acc := []int32{
		16129, -16129,
		8000, 8000,
	}
	out := tensor.NewMat(2, 2)

	DequantizeRows(acc, []float32{1, 0}, []float32{1, 2}, []float32{0.5, 0}, &out)

	assert.Equal(t, []float32{1.5, -2}, out.Row(0))
	// rowMax of zero ignores the accumulator and leaves only the bias.
	assert.Equal(t, []float32{0.5, 0}, out.Row(1))
}

func TestDequantizeRowsWithoutBias(t *testing.T) {
	t.Parallel()
	acc := []int32{16129 * 3, 0}
	out := tensor.NewMat(1, 2)

	DequantizeRows(acc, []float32{0.5}, []float32{2, 2}, nil, &out)

	assert.Equal(t, []float32{3, 0}, out.Row(0))
}

func TestMaxAbs(t *testing.T) {
	t.Parallel()
	assert.Equal(t, float32(3), maxAbs([]float32{1, -3, 2}))
	assert.Equal(t, float32(0), maxAbs(nil))
	assert.Equal(t, float32(0), maxAbs([]float32{0, 0}))
}
