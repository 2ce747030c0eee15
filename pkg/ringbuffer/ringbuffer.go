package ringbuffer

import (
	"errors"
	"sync"

	"github.com/illmade-knight/go-datalogger/pkg/types"
)

// DefaultCapacity is the number of sample slots allocated when no capacity is
// configured.
const DefaultCapacity = 1024

var (
	// ErrBufferFull is returned by Push when every slot holds an unread sample.
	ErrBufferFull = errors.New("ring buffer full")
	// ErrBufferEmpty is returned by Pop and Peek when there is nothing to read.
	ErrBufferEmpty = errors.New("ring buffer empty")
)

// State is a read-only snapshot of the cursors, for diagnostics.
type State struct {
	Size       int `json:"size"`
	Capacity   int `json:"capacity"`
	ReadIndex  int `json:"read_index"`
	WriteIndex int `json:"write_index"`
}

// RingBuffer is a fixed-capacity FIFO of samples with one producer and one
// consumer. Samples live permanently in the backing array; callers only ever
// borrow a slot (Push) or receive a copy (Pop).
//
// All cursor updates happen under a single mutex, so the producer and the
// consumer may run on different goroutines.
type RingBuffer struct {
	mu         sync.Mutex
	slots      []types.Sample
	size       int
	readIndex  int
	writeIndex int
}

// New allocates a ring buffer with exactly capacity slots. A non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingBuffer{
		slots: make([]types.Sample, capacity),
	}
}

// Push hands the slot at the write cursor to fill, then advances the write
// cursor. The pointer is only valid for the duration of fill. When the buffer
// is full it returns ErrBufferFull and nothing is modified.
func (r *RingBuffer) Push(fill func(slot *types.Sample)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == len(r.slots) {
		return ErrBufferFull
	}
	if fill != nil {
		fill(&r.slots[r.writeIndex])
	}
	r.writeIndex = (r.writeIndex + 1) % len(r.slots)
	r.size++
	return nil
}

// Pop returns a copy of the oldest unread sample and advances the read cursor.
func (r *RingBuffer) Pop() (types.Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return types.Sample{}, ErrBufferEmpty
	}
	s := r.slots[r.readIndex]
	r.readIndex = (r.readIndex + 1) % len(r.slots)
	r.size--
	return s, nil
}

// Peek returns a copy of the oldest unread sample without consuming it.
func (r *RingBuffer) Peek() (types.Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return types.Sample{}, ErrBufferEmpty
	}
	return r.slots[r.readIndex], nil
}

// PeekPartitionBoundary reports whether the next sample to be consumed was
// taken at or after rollover, returning that sample so the caller can derive
// the new partition from it. It is false when the buffer is empty.
func (r *RingBuffer) PeekPartitionBoundary(rollover int64) (types.Sample, bool) {
	s, err := r.Peek()
	if err != nil {
		return types.Sample{}, false
	}
	return s, s.Timestamp >= rollover
}

// State returns a snapshot of the buffer cursors.
func (r *RingBuffer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return State{
		Size:       r.size,
		Capacity:   len(r.slots),
		ReadIndex:  r.readIndex,
		WriteIndex: r.writeIndex,
	}
}

// Len returns the number of unread samples.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *RingBuffer) Cap() int {
	return len(r.slots)
}

// IsEmpty reports whether there is nothing to read.
func (r *RingBuffer) IsEmpty() bool {
	return r.Len() == 0
}

// IsFull reports whether a Push would fail.
func (r *RingBuffer) IsFull() bool {
	return r.Len() == len(r.slots)
}

// Dump copies the raw backing slots in [start, end), regardless of whether
// they are currently occupied. Bounds are clamped to the backing array.
func (r *RingBuffer) Dump(start, end int) []types.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	if start < 0 {
		start = 0
	}
	if end > len(r.slots) {
		end = len(r.slots)
	}
	if start >= end {
		return nil
	}
	out := make([]types.Sample, end-start)
	copy(out, r.slots[start:end])
	return out
}
