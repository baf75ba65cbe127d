package pool

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Buffer is a float32 sample buffer owned by exactly one execution context at
// a time.
type Buffer struct {
	Data []float32
}

// NewBuffer allocates a zeroed buffer of n samples.
func NewBuffer(n int) *Buffer {
	return &Buffer{Data: make([]float32, n)}
}

// Transfer moves the contents into a new Buffer and detaches the receiver:
// afterwards b.Data is nil and Detached reports true.
func (b *Buffer) Transfer() *Buffer {
	moved := &Buffer{Data: b.Data}
	b.Data = nil
	return moved
}

// Detached reports whether the buffer's contents were transferred away.
func (b *Buffer) Detached() bool {
	return b.Data == nil
}

// Len returns the number of samples, zero when detached.
func (b *Buffer) Len() int {
	return len(b.Data)
}

// Buffers recycles sample buffers by length.
type Buffers struct {
	mu   sync.Mutex
	free map[int][]*Buffer
}

// NewBuffers creates an empty buffer pool.
func NewBuffers() *Buffers {
	return &Buffers{free: make(map[int][]*Buffer)}
}

// Get returns a buffer of exactly n samples, recycled when possible. Recycled
// buffers are not zeroed.
func (p *Buffers) Get(n int) *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if list := p.free[n]; len(list) > 0 {
		b := list[len(list)-1]
		p.free[n] = list[:len(list)-1]
		return b
	}
	return NewBuffer(n)
}

// Put returns b to the pool. Detached buffers are rejected.
func (p *Buffers) Put(b *Buffer) error {
	if b == nil || b.Detached() {
		logrus.WithFields(logrus.Fields{
			"function": "Buffers.Put",
		}).Warn("Attempt to recycle a detached buffer")
		return ErrDetached
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(b.Data)
	p.free[n] = append(p.free[n], b)
	return nil
}

// Available reports how many free buffers of n samples are pooled.
func (p *Buffers) Available(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free[n])
}
