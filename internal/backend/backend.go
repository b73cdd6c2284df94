// Package backend selects the accelerator runtime a layer is placed on.
package backend

import (
	"fmt"
	"strings"

	"github.com/samcharles93/qlinear/internal/device"
)

const (
	CUDA = "cuda"
	Auto = "auto"
)

func Normalize(name string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(name))
	if backend == "" {
		return Auto, nil
	}
	switch backend {
	case CUDA, Auto:
		return backend, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto or cuda)", backend)
	}
}

// Open creates the runtime for the named backend on device ordinal. Auto
// resolves to the first compiled-in backend.
func Open(name string, ordinal int) (device.Runtime, error) {
	backend, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	if backend == Auto {
		if !Has(CUDA) {
			return nil, fmt.Errorf("%w: no accelerator backend in this build (available: %q)", device.ErrUnavailable, Available())
		}
		backend = CUDA
	}
	switch backend {
	case CUDA:
		return NewCUDA(ordinal)
	default:
		return nil, fmt.Errorf("backend %q cannot be opened", backend)
	}
}
