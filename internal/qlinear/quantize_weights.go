package qlinear

import (
	"fmt"
	"math"
)

// QuantizeWeights converts a float row-major [outputSize][inputSize] weight
// into the stored form. Each output row is scaled so its largest magnitude
// maps to 127 and rounded to nearest; that magnitude becomes the row's
// channel scale. An all-zero row stores zeros with scale 0. Bias, if given,
// is copied.
func QuantizeWeights(weight []float32, outputSize, inputSize int, bias []float32) (Weights, error) {
	if outputSize <= 0 || inputSize <= 0 {
		return Weights{}, fmt.Errorf("%w: sizes must be positive, got output=%d input=%d", ErrLoad, outputSize, inputSize)
	}
	if inputSize > math.MaxInt/outputSize || len(weight) != outputSize*inputSize {
		return Weights{}, fmt.Errorf("%w: weight has %d values, want %d x %d", ErrLoad, len(weight), outputSize, inputSize)
	}
	w := Weights{
		Weight:     make([]int8, len(weight)),
		OutputSize: outputSize,
		InputSize:  inputSize,
		Scale:      make([]float32, outputSize),
	}
	if len(bias) > 0 {
		w.Bias = append([]float32(nil), bias...)
	}
	for o := range outputSize {
		row := weight[o*inputSize : (o+1)*inputSize]
		for k, v := range row {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return Weights{}, fmt.Errorf("%w: weight[%d][%d] is %v", ErrLoad, o, k, v)
			}
		}
		m := maxAbs(row)
		w.Scale[o] = m
		if m == 0 {
			continue
		}
		q := w.Weight[o*inputSize : (o+1)*inputSize]
		for k, v := range row {
			r := math.Round(float64(v) * qmax / float64(m))
			q[k] = int8(max(-qmax, min(qmax, r)))
		}
	}
	if err := w.validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}
