package qlinear

import (
	"fmt"

	"github.com/samcharles93/qlinear/internal/device"
)

// bufferCache owns the int32 accumulator the GEMM writes into. Its capacity,
// in batch rows, only ever grows: a request for more rows than it holds frees
// the current buffer and allocates a new one sized exactly to the request.
type bufferCache struct {
	rowBytes int64
	buf      *device.Buffer
	capacity int
	grows    int
}

func newBufferCache(outputSize int) bufferCache {
	return bufferCache{rowBytes: int64(outputSize) * 4}
}

// ensure returns a buffer with room for batch rows and reports whether it had
// to be reallocated.
func (c *bufferCache) ensure(rt device.Runtime, batch int) (*device.Buffer, bool, error) {
	if batch <= c.capacity {
		return c.buf, false, nil
	}
	old := c.buf
	c.buf, c.capacity = nil, 0
	if err := old.Release(); err != nil {
		return nil, false, fmt.Errorf("release accumulator: %w", err)
	}
	buf, err := device.Alloc(rt, c.rowBytes*int64(batch))
	if err != nil {
		return nil, false, fmt.Errorf("grow accumulator to %d rows: %w", batch, err)
	}
	c.buf, c.capacity = buf, batch
	c.grows++
	return buf, true, nil
}

func (c *bufferCache) release() error {
	buf := c.buf
	c.buf, c.capacity = nil, 0
	return buf.Release()
}
