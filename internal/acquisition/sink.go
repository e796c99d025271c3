package acquisition

import (
	"context"
	"sync"

	"github.com/calderlab/scopecore/internal/hardware"
)

// Sink receives captured frames for persistence. Enqueue must not block:
// it returns false when the sink cannot accept the frame right now, and
// the worker retries on a bounded budget. Flush blocks until everything
// accepted so far is durable.
type Sink interface {
	Enqueue(frame *hardware.Frame, info CaptureInfo) bool
	Flush(ctx context.Context) error
}

// SavedFrame pairs a frame with its scan coordinates.
type SavedFrame struct {
	Frame *hardware.Frame
	Info  CaptureInfo
}

// MemorySink keeps accepted frames in memory. It backs tests and dry
// runs, and doubles as a bounded buffer for exercising the worker's
// retry path.
type MemorySink struct {
	mu       sync.Mutex
	capacity int
	frames   []SavedFrame
	flushes  int
}

// NewMemorySink returns a sink accepting at most capacity frames.
// Capacity zero or below means unbounded.
func NewMemorySink(capacity int) *MemorySink {
	return &MemorySink{capacity: capacity}
}

// Enqueue stores the frame, refusing once the capacity is reached.
func (s *MemorySink) Enqueue(frame *hardware.Frame, info CaptureInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capacity > 0 && len(s.frames) >= s.capacity {
		return false
	}
	s.frames = append(s.frames, SavedFrame{Frame: frame, Info: info})
	return true
}

// Flush is immediate for an in-memory sink; it only counts invocations.
func (s *MemorySink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return ctx.Err()
}

// Saved returns a snapshot of the accepted frames in arrival order.
func (s *MemorySink) Saved() []SavedFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SavedFrame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Count returns the number of accepted frames.
func (s *MemorySink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Flushes returns how many times Flush has been called.
func (s *MemorySink) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}
