package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMatFromData(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	m, err := NewMatFromData(2, 3, data)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 5, 6}, m.Row(1))

	m.Row(0)[0] = 9
	assert.Equal(t, float32(9), data[0], "no copy is made")

	_, err = NewMatFromData(2, 2, data)
	assert.ErrorIs(t, err, errDataSizeMismatch)
	_, err = NewMatFromData(-1, 2, nil)
	assert.ErrorIs(t, err, errNegativeDim)
}

func TestFromRows(t *testing.T) {
	m, err := FromRows([][]float32{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	assert.Equal(t, 3, m.R)
	assert.Equal(t, 2, m.C)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, m.Data)
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}, {5, 6}}, m.Rows())

	empty, err := FromRows(nil)
	require.NoError(t, err)
	assert.Zero(t, empty.R)

	_, err = FromRows([][]float32{{1, 2}, {3}})
	assert.ErrorIs(t, err, errRaggedRows)
}

func TestRowIsCapped(t *testing.T) {
	m := NewMat(2, 2)
	row := m.Row(0)
	row = append(row, 7)
	assert.Zero(t, m.Data[2], "append must not spill into the next row")
	assert.Len(t, row, 3)

	assert.Panics(t, func() { m.Row(2) })
}

func TestClone(t *testing.T) {
	m := NewMat(1, 3)
	FillRand(&m, 1, 2)
	c := m.Clone()
	assert.Equal(t, m.Data, c.Data)

	c.Data[0] = 100
	assert.NotEqual(t, m.Data[0], c.Data[0])
}

func TestFillRandDeterministic(t *testing.T) {
	a, b := NewMat(4, 8), NewMat(4, 8)
	FillRand(&a, 42, 1)
	FillRand(&b, 42, 1)
	assert.Equal(t, a.Data, b.Data)
	for _, v := range a.Data {
		assert.InDelta(t, 0, v, 0.5)
	}

	FillRand(&b, 43, 1)
	assert.NotEqual(t, a.Data, b.Data)
}
