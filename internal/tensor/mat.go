package tensor

import (
	"math/rand"
)

// Mat represents a dense row‑major matrix of float32 values.
//
// R and C are the number of rows and columns. Data holds the flattened values
// with row i starting at i*C.
type Mat struct {
	R, C int
	Data []float32
}

// NewMat allocates a zero initialised r x c matrix.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{
		R:    r,
		C:    c,
		Data: make([]float32, r*c),
	}
}

// NewMatFromData wraps data as an r x c matrix without copying.
func NewMatFromData(r, c int, data []float32) (Mat, error) {
	if r < 0 || c < 0 {
		return Mat{}, errNegativeDim
	}
	if r != 0 && (r*c)/r != c {
		return Mat{}, errMatTooLarge
	}
	if r*c != len(data) {
		return Mat{}, errDataSizeMismatch
	}
	return Mat{R: r, C: c, Data: data}, nil
}

// FromRows copies a slice of equal-length rows into a new matrix. A nil or
// empty rows slice yields a 0 x 0 matrix.
func FromRows(rows [][]float32) (Mat, error) {
	if len(rows) == 0 {
		return Mat{}, nil
	}
	c := len(rows[0])
	m := NewMat(len(rows), c)
	for i, row := range rows {
		if len(row) != c {
			return Mat{}, errRaggedRows
		}
		copy(m.Data[i*c:(i+1)*c], row)
	}
	return m, nil
}

// Rows returns the matrix as a slice of row views. Modifying a row updates
// the matrix.
func (m *Mat) Rows() [][]float32 {
	rows := make([][]float32, m.R)
	for i := range rows {
		rows[i] = m.Row(i)
	}
	return rows
}

// Row returns a view of the i‑th row. Modifications to the returned slice
// update the underlying matrix values.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.C
	return m.Data[start : start+m.C : start+m.C]
}

// Clone returns a deep copy of m.
func (m *Mat) Clone() Mat {
	return Mat{
		R:    m.R,
		C:    m.C,
		Data: append([]float32(nil), m.Data...),
	}
}

// FillRand fills the matrix with reproducible pseudo‑random values in
// (-scale/2, scale/2). The same seed always produces the same matrix.
func FillRand(m *Mat, seed int64, scale float32) {
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = (rng.Float32() - 0.5) * scale
	}
}

var (
	errNegativeDim      = fmtError("negative dimension for matrix")
	errMatTooLarge      = fmtError("matrix too large")
	errDataSizeMismatch = fmtError("data length mismatch")
	errRaggedRows       = fmtError("rows have different lengths")
)

type fmtError string

func (e fmtError) Error() string { return string(e) }
