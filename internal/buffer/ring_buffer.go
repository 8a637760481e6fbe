// Package buffer keeps the trailing bytes of a stream.
package buffer

import (
	"sync"
)

// RingBuffer is a thread-safe circular buffer holding the last Cap() bytes
// written to it. It is used to keep the tail of a terminal's output so
// that exits can be logged with the text that preceded them.
type RingBuffer struct {
	buf   []byte
	start int
	size  int
	mu    sync.RWMutex
}

// NewRingBuffer creates a new RingBuffer with the specified capacity.
// A capacity below 1 is raised to 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Write appends p, overwriting the oldest bytes once the buffer is full.
// It never fails.
func (rb *RingBuffer) Write(p []byte) (n int, err error) {
	n = len(p)
	if n == 0 {
		return 0, nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	capacity := len(rb.buf)
	if len(p) >= capacity {
		copy(rb.buf, p[len(p)-capacity:])
		rb.start = 0
		rb.size = capacity
		return n, nil
	}

	end := (rb.start + rb.size) % capacity
	copied := copy(rb.buf[end:], p)
	copy(rb.buf, p[copied:])

	rb.size += len(p)
	if rb.size > capacity {
		rb.start = (rb.start + rb.size - capacity) % capacity
		rb.size = capacity
	}
	return n, nil
}

// ReadAll returns a copy of the buffered bytes, oldest first.
func (rb *RingBuffer) ReadAll() []byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 {
		return nil
	}

	out := make([]byte, rb.size)
	copied := copy(out, rb.buf[rb.start:min(rb.start+rb.size, len(rb.buf))])
	copy(out[copied:], rb.buf)
	return out
}

// String returns the buffered bytes as a string.
func (rb *RingBuffer) String() string {
	return string(rb.ReadAll())
}

// Reset discards all buffered bytes.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.start = 0
	rb.size = 0
}

// Len returns the current number of bytes in the buffer.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer) Cap() int {
	return len(rb.buf)
}
