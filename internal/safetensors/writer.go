package safetensors

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"

	json "github.com/goccy/go-json"
	"github.com/x448/float16"
)

// Tensor is one entry to be written by Write.
type Tensor struct {
	DType string
	Shape []int
	Data  []byte
}

func I8Tensor(shape []int, values []int8) Tensor {
	data := make([]byte, len(values))
	for i, v := range values {
		data[i] = byte(v)
	}
	return Tensor{DType: I8, Shape: shape, Data: data}
}

func F32Tensor(shape []int, values []float32) Tensor {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return Tensor{DType: F32, Shape: shape, Data: data}
}

func F16Tensor(shape []int, values []float32) Tensor {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(data[i*2:], float16.Fromfloat32(v).Bits())
	}
	return Tensor{DType: F16, Shape: shape, Data: data}
}

// Write encodes tensors in name order with contiguous data offsets.
func Write(w io.Writer, tensors map[string]Tensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if name == metadataKey {
			return fmt.Errorf("tensor name %q is reserved", name)
		}
		names = append(names, name)
	}
	slices.Sort(names)

	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var off int64
	for _, name := range names {
		t := tensors[name]
		n, err := numElements(t.Shape)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		width, ok := dtypeSize(t.DType)
		if !ok {
			return fmt.Errorf("%w: tensor %s: %s", ErrUnsupportedDType, name, t.DType)
		}
		if len(t.Data) != n*width {
			return fmt.Errorf("tensor %s: %d bytes for shape %v", name, len(t.Data), t.Shape)
		}
		end := off + int64(len(t.Data))
		header[name] = tensorHeader{DType: t.DType, Shape: t.Shape, DataOffsets: []int64{off, end}}
		off = end
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	var lenBuf [headerLenSize]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(headerBytes); err != nil {
		return err
	}
	for _, name := range names {
		if _, err := w.Write(tensors[name].Data); err != nil {
			return fmt.Errorf("write tensor %s: %w", name, err)
		}
	}
	return nil
}
