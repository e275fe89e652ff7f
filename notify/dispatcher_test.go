package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink records speak calls and lets the test decide when each
// one completes.
type recordingSink struct {
	mu       sync.Mutex
	spoken   []string
	chimes   int
	dones    []func()
	shutdown bool
}

func (s *recordingSink) Speak(text string, done func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	s.dones = append(s.dones, done)
	return nil
}

func (s *recordingSink) Chime() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chimes++
}

func (s *recordingSink) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
}

func (s *recordingSink) spokenTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// finish completes the oldest unfinished utterance.
func (s *recordingSink) finish(t *testing.T) {
	s.mu.Lock()
	require.NotEmpty(t, s.dones, "no utterance in flight")
	done := s.dones[0]
	s.dones = s.dones[1:]
	s.mu.Unlock()
	done()
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestDispatcherPlaysInOrder(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink)
	d.SetPacing(time.Millisecond)

	d.Enqueue(Item{Text: "first"})
	d.Enqueue(Item{Text: "second"})
	d.Enqueue(Item{Text: "third"})

	// Only the head plays; the rest wait their turn.
	assert.Equal(t, []string{"first"}, sink.spokenTexts())
	assert.True(t, d.Playing())
	assert.Equal(t, 2, d.PendingCount())

	sink.finish(t)
	waitFor(t, func() bool { return len(sink.spokenTexts()) == 2 }, "second item never played")
	assert.Equal(t, []string{"first", "second"}, sink.spokenTexts())

	sink.finish(t)
	waitFor(t, func() bool { return len(sink.spokenTexts()) == 3 }, "third item never played")
	assert.Equal(t, []string{"first", "second", "third"}, sink.spokenTexts())

	sink.finish(t)
	waitFor(t, func() bool { return !d.Playing() }, "dispatcher never went idle")
	assert.Zero(t, d.PendingCount())
}

func TestDispatcherNoOverlap(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink)
	d.SetPacing(time.Millisecond)

	d.Enqueue(Item{Text: "a"})
	d.Enqueue(Item{Text: "b"})

	// While "a" is in flight nothing else may start, no matter how long
	// we wait.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"a"}, sink.spokenTexts())
	assert.True(t, d.Playing())
}

func TestDispatcherAllowsDuplicateTexts(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink)
	d.SetPacing(time.Millisecond)

	d.Enqueue(Item{Text: "5 pills dispensed"})
	d.Enqueue(Item{Text: "5 pills dispensed"})

	sink.finish(t)
	waitFor(t, func() bool { return len(sink.spokenTexts()) == 2 }, "duplicate was dropped")
}

func TestDispatcherChimeBeforeSpeech(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink)

	d.Enqueue(Item{Text: "done", Chime: true})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, 1, sink.chimes)
	assert.Equal(t, []string{"done"}, sink.spoken)
}

func TestDispatcherNilSinkIsNoOp(t *testing.T) {
	d := NewDispatcher(nil)

	d.Enqueue(Item{Text: "lost"})
	assert.False(t, d.Playing())
	assert.Zero(t, d.PendingCount())
	d.Stop()
}

func TestDispatcherStopClearsPending(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink)

	d.Enqueue(Item{Text: "a"})
	d.Enqueue(Item{Text: "b"})
	d.Stop()

	assert.True(t, sink.shutdown)
	assert.Zero(t, d.PendingCount())
	assert.False(t, d.Playing())

	// The abandoned completion callback must not resurrect the queue.
	sink.finish(t)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"a"}, sink.spokenTexts())

	d.Enqueue(Item{Text: "late"})
	assert.Equal(t, []string{"a"}, sink.spokenTexts())
}
