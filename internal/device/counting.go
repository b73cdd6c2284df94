package device

import (
	"sync"
	"sync/atomic"
)

// Stats is a snapshot of the calls observed by a Counting runtime.
type Stats struct {
	Mallocs   int64
	Frees     int64
	LiveBytes int64
	Uploads   int64
	Downloads int64
	Gemms     int64
}

// Live returns the number of allocations not yet freed.
func (s Stats) Live() int64 {
	return s.Mallocs - s.Frees
}

// Counting wraps a Runtime and counts every primitive it forwards.
type Counting struct {
	rt Runtime

	mallocs   atomic.Int64
	frees     atomic.Int64
	liveBytes atomic.Int64
	uploads   atomic.Int64
	downloads atomic.Int64
	gemms     atomic.Int64

	mu    sync.Mutex
	sizes map[Ptr]int64
}

func NewCounting(rt Runtime) *Counting {
	return &Counting{rt: rt, sizes: make(map[Ptr]int64)}
}

func (c *Counting) Name() string {
	return c.rt.Name()
}

func (c *Counting) Malloc(bytes int64) (Ptr, error) {
	p, err := c.rt.Malloc(bytes)
	if err != nil {
		return 0, err
	}
	c.mallocs.Add(1)
	c.liveBytes.Add(bytes)
	c.mu.Lock()
	c.sizes[p] = bytes
	c.mu.Unlock()
	return p, nil
}

func (c *Counting) Free(p Ptr) error {
	if err := c.rt.Free(p); err != nil {
		return err
	}
	c.frees.Add(1)
	c.mu.Lock()
	size := c.sizes[p]
	delete(c.sizes, p)
	c.mu.Unlock()
	c.liveBytes.Add(-size)
	return nil
}

func (c *Counting) CopyHostToDevice(dst Ptr, src []byte) error {
	c.uploads.Add(1)
	return c.rt.CopyHostToDevice(dst, src)
}

func (c *Counting) CopyDeviceToHost(dst []byte, src Ptr) error {
	c.downloads.Add(1)
	return c.rt.CopyDeviceToHost(dst, src)
}

func (c *Counting) GemmInt8(g Gemm) error {
	c.gemms.Add(1)
	return c.rt.GemmInt8(g)
}

func (c *Counting) Close() error {
	return c.rt.Close()
}

func (c *Counting) Stats() Stats {
	return Stats{
		Mallocs:   c.mallocs.Load(),
		Frees:     c.frees.Load(),
		LiveBytes: c.liveBytes.Load(),
		Uploads:   c.uploads.Load(),
		Downloads: c.downloads.Load(),
		Gemms:     c.gemms.Load(),
	}
}
