package qlinear

import "errors"

var (
	// ErrLoad reports malformed weight, scale or bias tensors.
	ErrLoad = errors.New("malformed quantized linear tensors")
	// ErrInputShape reports an activation whose column count is not the layer input size.
	ErrInputShape = errors.New("activation shape mismatch")
	// ErrClosed is returned by Forward after Close.
	ErrClosed = errors.New("quantized linear layer closed")
)
