package buffer

import (
	"errors"
	"sharkcam/internal/model"
)

// ErrInvalidCapacity is returned when a ring buffer is created with capacity <= 0.
var ErrInvalidCapacity = errors.New("ring buffer capacity must be greater than zero")

// RingBuffer keeps the most recent frames in a fixed-size array.
// It is not safe for concurrent use; the ingestion loop owns it.
type RingBuffer struct {
	frames []model.Frame
	head   int // index of the oldest frame
	length int
}

// NewRingBuffer allocates a buffer holding at most capacity frames.
func NewRingBuffer(capacity int) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &RingBuffer{frames: make([]model.Frame, capacity)}, nil
}

// Push appends a frame, evicting the oldest one when the buffer is full.
func (b *RingBuffer) Push(frame model.Frame) {
	capacity := len(b.frames)
	if b.length < capacity {
		b.frames[(b.head+b.length)%capacity] = frame
		b.length++
		return
	}
	b.frames[b.head] = frame
	b.head = (b.head + 1) % capacity
}

// Snapshot returns a copy of the buffered frames ordered oldest to newest.
func (b *RingBuffer) Snapshot() []model.Frame {
	out := make([]model.Frame, b.length)
	for i := 0; i < b.length; i++ {
		out[i] = b.frames[(b.head+i)%len(b.frames)]
	}
	return out
}

// Len returns the number of buffered frames.
func (b *RingBuffer) Len() int {
	return b.length
}

// Cap returns the fixed capacity.
func (b *RingBuffer) Cap() int {
	return len(b.frames)
}
