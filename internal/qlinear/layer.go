// Package qlinear implements an 8-bit quantized fully-connected layer that
// runs its matrix multiply on an accelerator.
//
// Each Forward call quantizes the activation rows symmetrically to int8,
// multiplies them against the stored int8 weight with int32 accumulation on
// the device, and rescales the result with the per-row maxima and per-channel
// scales before adding the bias.
package qlinear

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/samcharles93/qlinear/internal/device"
	"github.com/samcharles93/qlinear/internal/logger"
	"github.com/samcharles93/qlinear/internal/tensor"
)

// Layer is a quantized linear transform bound to one device runtime.
//
// A Layer is not safe for concurrent use: Forward mutates the accumulator
// cache without locking. Distinct layers are independent and may run on
// separate goroutines.
type Layer struct {
	id      uuid.UUID
	rt      device.Runtime
	weights *WeightStore
	acc     bufferCache
	log     logger.Logger
	closed  bool
}

// Option configures a Layer.
type Option func(*Layer)

// WithLogger sets the logger used for debug tracing. The default discards.
func WithLogger(l logger.Logger) Option {
	return func(layer *Layer) {
		if l != nil {
			layer.log = l
		}
	}
}

// New uploads w to the device behind rt and returns a ready layer. rt is the
// shared compute handle; the layer does not close it.
func New(rt device.Runtime, w Weights, opts ...Option) (*Layer, error) {
	if rt == nil {
		return nil, fmt.Errorf("qlinear: nil device runtime")
	}
	l := &Layer{
		id:  uuid.New(),
		rt:  rt,
		log: logger.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	ws, err := NewWeightStore(rt, w)
	if err != nil {
		return nil, err
	}
	l.weights = ws
	l.acc = newBufferCache(ws.OutputSize())
	l.log = l.log.With("layer", l.id.String())
	if ws.InputSize() > MaxSafeInputSize {
		l.log.Warn("input size may overflow int32 accumulation", "input_size", ws.InputSize(), "max_safe", MaxSafeInputSize)
	}
	l.log.Debug("layer loaded",
		"device", rt.Name(),
		"output_size", ws.OutputSize(),
		"input_size", ws.InputSize(),
		"bias", ws.HasBias(),
	)
	return l, nil
}

func (l *Layer) ID() uuid.UUID   { return l.id }
func (l *Layer) InputSize() int  { return l.weights.InputSize() }
func (l *Layer) OutputSize() int { return l.weights.OutputSize() }
func (l *Layer) HasBias() bool   { return l.weights.HasBias() }

// Capacity returns the number of batch rows the cached accumulator can hold.
// It equals the largest batch seen so far and never decreases.
func (l *Layer) Capacity() int { return l.acc.capacity }

// Forward computes x * W^T * scale + bias for every row of x and returns a
// new R x OutputSize matrix.
//
// Forward consumes x: each non-zero row is rescaled in place by 127/max|row|
// during quantization, so x no longer holds the caller's values afterwards.
// Use ForwardCopy to keep x intact.
//
// A column count other than InputSize fails with ErrInputShape before any
// device work. Device failures surface as device.ErrAllocation,
// device.ErrTransfer or device.ErrGemm; none are retried.
func (l *Layer) Forward(x *tensor.Mat) (tensor.Mat, error) {
	if l.closed {
		return tensor.Mat{}, ErrClosed
	}
	if x == nil {
		return tensor.Mat{}, fmt.Errorf("%w: nil activation", ErrInputShape)
	}
	if x.C != l.InputSize() {
		return tensor.Mat{}, fmt.Errorf("%w: got %d columns, want %d", ErrInputShape, x.C, l.InputSize())
	}
	if len(x.Data) != x.R*x.C {
		return tensor.Mat{}, fmt.Errorf("%w: %d values for %d x %d", ErrInputShape, len(x.Data), x.R, x.C)
	}
	batch := x.R
	if batch == 0 {
		return tensor.NewMat(0, l.OutputSize()), nil
	}

	acc, grew, err := l.acc.ensure(l.rt, batch)
	if err != nil {
		return tensor.Mat{}, err
	}
	if grew {
		l.log.Debug("accumulator grown", "capacity", l.acc.capacity, "bytes", acc.Size())
	}

	q := make([]int8, batch*x.C)
	rowMax := make([]float32, batch)
	QuantizeRows(x, q, rowMax)

	accHost, err := l.multiply(acc, q, batch)
	if err != nil {
		l.log.Debug("forward failed", "batch", batch, "error", err)
		return tensor.Mat{}, err
	}

	out := tensor.NewMat(batch, l.OutputSize())
	DequantizeRows(accHost, rowMax, l.weights.Scale(), l.weights.Bias(), &out)
	l.log.Debug("forward", "batch", batch, "capacity", l.acc.capacity)
	return out, nil
}

// ForwardCopy is Forward on a private copy of x; x is left unchanged.
func (l *Layer) ForwardCopy(x *tensor.Mat) (tensor.Mat, error) {
	if x == nil {
		return l.Forward(nil)
	}
	c := x.Clone()
	return l.Forward(&c)
}

// multiply uploads the quantized activation into a transient device buffer,
// runs the GEMM and reads the accumulator back. The transient buffer is
// released on every path out of this function.
func (l *Layer) multiply(acc *device.Buffer, q []int8, batch int) (_ []int32, err error) {
	xBuf, err := device.Alloc(l.rt, int64(len(q)))
	if err != nil {
		return nil, fmt.Errorf("quantized activation: %w", err)
	}
	defer func() {
		if e := xBuf.Release(); e != nil && err == nil {
			err = e
		}
	}()

	if err := xBuf.Upload(device.Int8Bytes(q)); err != nil {
		return nil, err
	}
	if err := invokeGemm(l.rt, l.weights, xBuf, acc, batch); err != nil {
		return nil, err
	}
	if err := xBuf.Release(); err != nil {
		return nil, err
	}

	out := make([]int32, batch*l.OutputSize())
	if err := acc.Download(device.Int32Bytes(out)); err != nil {
		return nil, err
	}
	return out, nil
}

// Close frees the weight and accumulator device buffers. The runtime passed
// to New stays open.
func (l *Layer) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	var err error
	if e := l.acc.release(); e != nil {
		err = e
	}
	if e := l.weights.Release(); e != nil && err == nil {
		err = e
	}
	return err
}
