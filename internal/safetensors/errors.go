package safetensors

import "errors"

var (
	ErrCorruptFile      = errors.New("corrupt safetensors file")
	ErrTensorNotFound   = errors.New("tensor not found")
	ErrUnsupportedDType = errors.New("unsupported dtype")
)
