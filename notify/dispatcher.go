// Package notify serializes audio announcements. Announcements queue in
// strict FIFO order and play one at a time through a Sink; nothing is
// deduplicated and nothing is silently dropped while a sink is attached.
package notify

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "notify")

// DefaultPacing is the gap between the end of one announcement and the
// start of the next.
const DefaultPacing = 500 * time.Millisecond

// Item is one announcement. Immutable once enqueued.
type Item struct {
	Text  string
	Chime bool
}

// Sink is the speech/chime device boundary. Speak is asynchronous and
// must invoke done exactly once when playback finishes (possibly from a
// driver goroutine). Chime is fire-and-forget.
type Sink interface {
	Speak(text string, done func()) error
	Chime()
	Shutdown()
}

// Dispatcher owns the pending list and the single-flight playback
// invariant: at most one item plays at a time, in enqueue order.
//
// Enqueue is called from the processing loop; the sink's completion
// callback may arrive on any goroutine. One mutex is the serialization
// point for both.
type Dispatcher struct {
	mu      sync.Mutex
	sink    Sink
	pending []Item
	playing bool
	stopped bool
	pacing  time.Duration
}

// NewDispatcher wraps a sink. A nil sink is allowed: audio is best-effort
// and every Enqueue simply becomes a no-op.
func NewDispatcher(sink Sink) *Dispatcher {
	return &Dispatcher{sink: sink, pacing: DefaultPacing}
}

// SetPacing adjusts the inter-announcement gap. Mostly for tests.
func (d *Dispatcher) SetPacing(pacing time.Duration) {
	d.mu.Lock()
	d.pacing = pacing
	d.mu.Unlock()
}

// Enqueue appends an announcement and starts playback if nothing is
// currently playing. Never blocks and never fails.
func (d *Dispatcher) Enqueue(item Item) {
	d.mu.Lock()
	if d.sink == nil || d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending = append(d.pending, item)
	start := !d.playing
	d.mu.Unlock()

	if start {
		d.playNext()
	}
}

// playNext pops the head of the pending list and hands it to the sink.
// The sink calls back into onDone when playback finishes.
func (d *Dispatcher) playNext() {
	d.mu.Lock()
	if d.playing || d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	item := d.pending[0]
	d.pending = d.pending[1:]
	d.playing = true
	sink := d.sink
	d.mu.Unlock()

	if item.Chime {
		sink.Chime()
	}
	if err := sink.Speak(item.Text, d.onDone); err != nil {
		log.Warnf("announcement failed: %v", err)
		d.onDone()
	}
}

// onDone is the sink's completion callback. After the pacing delay the
// next pending item, if any, starts.
func (d *Dispatcher) onDone() {
	d.mu.Lock()
	d.playing = false
	more := len(d.pending) > 0 && !d.stopped
	pacing := d.pacing
	d.mu.Unlock()

	if more {
		time.AfterFunc(pacing, d.playNext)
	}
}

// Playing reports whether an announcement is currently being spoken.
func (d *Dispatcher) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

// PendingCount reports how many announcements are queued behind the
// current one.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop hard-resets the dispatcher on shutdown: the pending list is
// cleared, the in-flight announcement is abandoned and the sink is told
// to halt. Not used during normal operation.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.pending = nil
	d.playing = false
	sink := d.sink
	d.mu.Unlock()

	if sink != nil {
		sink.Shutdown()
	}
}
