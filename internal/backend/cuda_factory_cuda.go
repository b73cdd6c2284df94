//go:build cuda

package backend

import (
	"github.com/samcharles93/qlinear/internal/device"
	"github.com/samcharles93/qlinear/internal/device/cuda"
)

func NewCUDA(ordinal int) (device.Runtime, error) {
	rt, err := cuda.Open(ordinal)
	if err != nil {
		return nil, err
	}
	return rt, nil
}
