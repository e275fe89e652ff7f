package capture

import (
	"sync"
	"sync/atomic"
)

// Slot is a single-capacity frame hand-off between the acquisition
// goroutine and the processing loop. A newer frame always replaces an
// unread older one, so the producer never waits on a slow consumer and the
// consumer never sees anything but the latest frame.
type Slot struct {
	mu    sync.Mutex
	frame *Frame
	drops uint64
}

// NewSlot returns an empty hand-off slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Put places a frame in the slot, overwriting and releasing any unread
// frame already there. Never blocks.
func (s *Slot) Put(f *Frame) {
	s.mu.Lock()
	if s.frame != nil {
		s.frame.Close()
		atomic.AddUint64(&s.drops, 1)
	}
	s.frame = f
	s.mu.Unlock()
}

// TryTake removes and returns the latest frame, or (nil, false) when the
// slot is empty. An empty slot is the normal case when the consumer polls
// faster than the camera captures, not an error. The caller owns the
// returned frame and must Close it.
func (s *Slot) TryTake() (*Frame, bool) {
	s.mu.Lock()
	f := s.frame
	s.frame = nil
	s.mu.Unlock()
	return f, f != nil
}

// Drops reports how many unread frames were overwritten.
func (s *Slot) Drops() uint64 {
	return atomic.LoadUint64(&s.drops)
}

// Drain releases any frame still sitting in the slot.
func (s *Slot) Drain() {
	s.mu.Lock()
	if s.frame != nil {
		s.frame.Close()
		s.frame = nil
	}
	s.mu.Unlock()
}
