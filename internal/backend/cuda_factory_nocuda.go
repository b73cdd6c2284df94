//go:build !cuda

package backend

import (
	"fmt"

	"github.com/samcharles93/qlinear/internal/device"
)

func NewCUDA(int) (device.Runtime, error) {
	return nil, fmt.Errorf("%w: cuda backend is not available in this build", device.ErrUnavailable)
}
