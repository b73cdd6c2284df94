// Package safetensors reads and writes the safetensors container: an 8-byte
// little-endian header length, a JSON header mapping tensor names to dtype,
// shape and data offsets, then the raw tensor bytes.
package safetensors

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	json "github.com/goccy/go-json"
	"github.com/x448/float16"
	"golang.org/x/sys/unix"
)

// Supported dtype names.
const (
	I8   = "I8"
	F32  = "F32"
	F16  = "F16"
	BF16 = "BF16"
)

const (
	headerLenSize = 8
	maxHeaderSize = 100 << 20
	metadataKey   = "__metadata__"
)

type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

// File is an opened safetensors file. Tensor bytes are served from a
// read-only mapping when the platform supports it.
type File struct {
	Path      string
	DataStart int64
	Tensors   map[string]TensorInfo
	Metadata  map[string]string

	data    []byte
	mmapped bool
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// Open maps path read-only and parses its header. If mmap is unavailable it
// falls back to reading the whole file. The returned file must be closed.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < headerLenSize || size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: %s: size %d", ErrCorruptFile, path, size64)
	}
	size := int(size64)

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		sf, parseErr := parse(path, data, true)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		return sf, nil
	}

	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return parse(path, data, false)
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

func parse(path string, data []byte, mmapped bool) (*File, error) {
	headerLen := binary.LittleEndian.Uint64(data[:headerLenSize])
	if headerLen > maxHeaderSize || headerLen > uint64(len(data)-headerLenSize) {
		return nil, fmt.Errorf("%w: header length %d exceeds file", ErrCorruptFile, headerLen)
	}
	dataStart := int64(headerLenSize + headerLen)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data[headerLenSize:dataStart], &raw); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrCorruptFile, err)
	}

	var meta map[string]string
	if msg, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(msg, &meta); err != nil {
			return nil, fmt.Errorf("%w: metadata: %w", ErrCorruptFile, err)
		}
		delete(raw, metadataKey)
	}

	payload := int64(len(data)) - dataStart
	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("%w: parse tensor %s: %w", ErrCorruptFile, name, err)
		}
		if len(th.DataOffsets) != 2 {
			return nil, fmt.Errorf("%w: tensor %s: invalid data_offsets", ErrCorruptFile, name)
		}
		start, end := th.DataOffsets[0], th.DataOffsets[1]
		if start < 0 || end > payload {
			return nil, fmt.Errorf("%w: tensor %s: offsets [%d, %d) out of bounds", ErrCorruptFile, name, start, end)
		}
		tensors[name] = TensorInfo{
			DType: th.DType,
			Shape: th.Shape,
			Start: start,
			End:   end,
		}
	}
	return &File{
		Path:      path,
		DataStart: dataStart,
		Tensors:   tensors,
		Metadata:  meta,
		data:      data,
		mmapped:   mmapped,
	}, nil
}

// Close releases the mapping. Slices returned by ReadTensor are invalid
// afterwards.
func (f *File) Close() error {
	if f == nil || f.data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.data)
	}
	f.data = nil
	f.mmapped = false
	return err
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	t, ok := f.Tensors[name]
	return t, ok
}

func (f *File) Has(name string) bool {
	_, ok := f.Tensors[name]
	return ok
}

// Names returns the tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ReadTensor returns a zero-copy view of the tensor bytes. The caller must
// not retain it after Close.
func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	if t.End < t.Start {
		return nil, TensorInfo{}, fmt.Errorf("%w: tensor %s: invalid offsets", ErrCorruptFile, name)
	}
	if f.data == nil {
		return nil, TensorInfo{}, fmt.Errorf("read tensor %s: file closed", name)
	}
	start := f.DataStart + t.Start
	end := f.DataStart + t.End
	return f.data[start:end:end], t, nil
}

// ReadI8 copies an I8 tensor out of the file.
func (f *File) ReadI8(name string) ([]int8, []int, error) {
	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, nil, err
	}
	if info.DType != I8 {
		return nil, nil, fmt.Errorf("%w: tensor %s is %s, want %s", ErrUnsupportedDType, name, info.DType, I8)
	}
	n, err := numElements(info.Shape)
	if err != nil {
		return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	if len(raw) != n {
		return nil, nil, fmt.Errorf("%w: tensor %s: invalid i8 data size", ErrCorruptFile, name)
	}
	out := make([]int8, n)
	for i, b := range raw {
		out[i] = int8(b)
	}
	return out, info.Shape, nil
}

// ReadF32 decodes an F32, F16 or BF16 tensor to float32.
func (f *File) ReadF32(name string) ([]float32, []int, error) {
	out, info, err := f.ReadTensorF32(name)
	if err != nil {
		return nil, nil, err
	}
	return out, info.Shape, nil
}

func (f *File) ReadTensorF32(name string) ([]float32, TensorInfo, error) {
	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	n, err := numElements(info.Shape)
	if err != nil {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	width, ok := dtypeSize(info.DType)
	if !ok || info.DType == I8 {
		return nil, TensorInfo{}, fmt.Errorf("%w: tensor %s: %s", ErrUnsupportedDType, name, info.DType)
	}
	if len(raw) != n*width {
		return nil, TensorInfo{}, fmt.Errorf("%w: tensor %s: invalid %s data size", ErrCorruptFile, name, info.DType)
	}
	out := make([]float32, n)
	switch info.DType {
	case F32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case BF16:
		for i := range out {
			out[i] = bf16ToF32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
	case F16:
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
	}
	return out, info, nil
}

func dtypeSize(dtype string) (int, bool) {
	switch dtype {
	case I8:
		return 1, true
	case F16, BF16:
		return 2, true
	case F32:
		return 4, true
	default:
		return 0, false
	}
}

func numElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("empty shape")
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("invalid dim %d", d)
		}
		if n > (int(^uint(0)>>1))/d {
			return 0, fmt.Errorf("tensor too large")
		}
		n *= d
	}
	return n, nil
}

func bf16ToF32(u uint16) float32 {
	return math.Float32frombits(uint32(u) << 16)
}
