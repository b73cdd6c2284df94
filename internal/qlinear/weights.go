package qlinear

import (
	"fmt"
	"math"

	"github.com/samcharles93/qlinear/internal/device"
)

// Weights are the host-side tensors a layer is built from. Weight is row-major
// [OutputSize][InputSize] and already quantized to [-127, 127]. Bias may be
// empty.
type Weights struct {
	Weight     []int8
	OutputSize int
	InputSize  int
	Scale      []float32
	Bias       []float32
}

// MaxSafeInputSize is the largest input size whose worst-case dot product
// (input * 127 * 127) still fits in an int32 accumulator.
const MaxSafeInputSize = math.MaxInt32 / (qmax * qmax)

func (w Weights) validate() error {
	if w.OutputSize <= 0 || w.InputSize <= 0 {
		return fmt.Errorf("%w: sizes must be positive, got output=%d input=%d", ErrLoad, w.OutputSize, w.InputSize)
	}
	if w.InputSize > math.MaxInt/w.OutputSize || len(w.Weight) != w.OutputSize*w.InputSize {
		return fmt.Errorf("%w: weight has %d values, want %d x %d", ErrLoad, len(w.Weight), w.OutputSize, w.InputSize)
	}
	if len(w.Scale) != w.OutputSize {
		return fmt.Errorf("%w: scale has %d values, want %d", ErrLoad, len(w.Scale), w.OutputSize)
	}
	if len(w.Bias) != 0 && len(w.Bias) != w.OutputSize {
		return fmt.Errorf("%w: bias has %d values, want 0 or %d", ErrLoad, len(w.Bias), w.OutputSize)
	}
	for i, v := range w.Weight {
		if v == math.MinInt8 {
			return fmt.Errorf("%w: weight[%d][%d] is -128, outside [-127, 127]", ErrLoad, i/w.InputSize, i%w.InputSize)
		}
	}
	return nil
}

// WeightStore holds the device-resident weight matrix together with the
// host-side per-channel scale and bias. It is immutable after construction.
type WeightStore struct {
	buf        *device.Buffer
	outputSize int
	inputSize  int
	scale      []float32
	bias       []float32
}

// NewWeightStore validates w and copies the weight matrix to the device once.
// Scale and bias are copied, so the caller may reuse its slices.
func NewWeightStore(rt device.Runtime, w Weights) (*WeightStore, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	buf, err := device.Alloc(rt, int64(len(w.Weight)))
	if err != nil {
		return nil, fmt.Errorf("upload weight: %w", err)
	}
	if err := buf.Upload(device.Int8Bytes(w.Weight)); err != nil {
		_ = buf.Release()
		return nil, fmt.Errorf("upload weight: %w", err)
	}
	var bias []float32
	if len(w.Bias) > 0 {
		bias = append([]float32(nil), w.Bias...)
	}
	return &WeightStore{
		buf:        buf,
		outputSize: w.OutputSize,
		inputSize:  w.InputSize,
		scale:      append([]float32(nil), w.Scale...),
		bias:       bias,
	}, nil
}

func (s *WeightStore) Ptr() device.Ptr  { return s.buf.Ptr() }
func (s *WeightStore) OutputSize() int  { return s.outputSize }
func (s *WeightStore) InputSize() int   { return s.inputSize }
func (s *WeightStore) Scale() []float32 { return s.scale }
func (s *WeightStore) Bias() []float32  { return s.bias }
func (s *WeightStore) HasBias() bool    { return len(s.bias) > 0 }

// Release frees the device copy of the weight.
func (s *WeightStore) Release() error {
	return s.buf.Release()
}
