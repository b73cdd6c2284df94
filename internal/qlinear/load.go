package qlinear

import (
	"fmt"

	"github.com/samcharles93/qlinear/internal/device"
)

// Tensor names a quantized linear layer is stored under.
const (
	TensorWeight = "weight"
	TensorScale  = "s"
	TensorBias   = "bias"
)

// TensorSource provides named tensors from a loaded model file.
type TensorSource interface {
	Has(name string) bool
	ReadI8(name string) ([]int8, []int, error)
	ReadF32(name string) ([]float32, []int, error)
}

// ReadWeights resolves prefix+"weight", prefix+"s" and the optional
// prefix+"bias" from src. The weight must be 2-D [output, input]; scale and
// bias may have any shape with exactly output elements.
func ReadWeights(src TensorSource, prefix string) (Weights, error) {
	weight, shape, err := src.ReadI8(prefix + TensorWeight)
	if err != nil {
		return Weights{}, fmt.Errorf("%w: %s: %w", ErrLoad, prefix+TensorWeight, err)
	}
	if len(shape) != 2 {
		return Weights{}, fmt.Errorf("%w: %s: want 2-D shape, got %v", ErrLoad, prefix+TensorWeight, shape)
	}
	w := Weights{
		Weight:     weight,
		OutputSize: shape[0],
		InputSize:  shape[1],
	}
	scale, _, err := src.ReadF32(prefix + TensorScale)
	if err != nil {
		return Weights{}, fmt.Errorf("%w: %s: %w", ErrLoad, prefix+TensorScale, err)
	}
	w.Scale = scale
	if src.Has(prefix + TensorBias) {
		bias, _, err := src.ReadF32(prefix + TensorBias)
		if err != nil {
			return Weights{}, fmt.Errorf("%w: %s: %w", ErrLoad, prefix+TensorBias, err)
		}
		w.Bias = bias
	}
	if err := w.validate(); err != nil {
		return Weights{}, fmt.Errorf("%s: %w", prefix+TensorWeight, err)
	}
	return w, nil
}

// Load reads the layer tensors under prefix from src and uploads them to rt.
func Load(rt device.Runtime, src TensorSource, prefix string, opts ...Option) (*Layer, error) {
	w, err := ReadWeights(src, prefix)
	if err != nil {
		return nil, err
	}
	return New(rt, w, opts...)
}
