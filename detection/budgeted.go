package detection

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// DefaultBudget bounds how long one tick may wait on inference.
const DefaultBudget = 150 * time.Millisecond

type request struct {
	id    uint64
	frame gocv.Mat
	conf  float32
}

type result struct {
	id    uint64
	boxes []Box
	err   error
}

// Budgeted wraps a Detector so the processing loop never stalls on a slow
// model. Inference runs on a worker goroutine with single-flight
// semantics: if the worker is still busy when a new tick arrives, or the
// current call overruns the budget, the tick is treated as a
// no-detection tick and any late result is discarded.
//
// Detect is meant to be called from a single goroutine (the tick loop).
type Budgeted struct {
	inner  Detector
	budget time.Duration

	reqCh chan request
	resCh chan result
	seq   uint64

	closeOnce sync.Once
	doneCh    chan struct{}
}

// NewBudgeted starts the inference worker. budget <= 0 uses DefaultBudget.
func NewBudgeted(inner Detector, budget time.Duration) *Budgeted {
	if budget <= 0 {
		budget = DefaultBudget
	}
	// reqCh is unbuffered on purpose: the send succeeds only while the
	// worker is parked at the receive, so a busy worker means the tick is
	// skipped rather than queued behind the in-flight frame.
	b := &Budgeted{
		inner:  inner,
		budget: budget,
		reqCh:  make(chan request),
		resCh:  make(chan result, 1),
		doneCh: make(chan struct{}),
	}
	go b.worker()
	return b
}

func (b *Budgeted) worker() {
	defer close(b.doneCh)
	for req := range b.reqCh {
		boxes, err := b.inner.Detect(req.frame, req.conf)
		req.frame.Close()
		res := result{id: req.id, boxes: boxes, err: err}
		select {
		case b.resCh <- res:
		default:
			// An abandoned result is still parked; replace it so the
			// worker never blocks on a consumer that gave up.
			select {
			case <-b.resCh:
			default:
			}
			b.resCh <- res
		}
	}
}

// Detect hands the frame to the worker and waits at most the budget for
// the answer. A busy worker or an overrun both come back as (nil, nil).
func (b *Budgeted) Detect(frame gocv.Mat, confThreshold float32) ([]Box, error) {
	b.seq++
	id := b.seq

	cloned := frame.Clone()
	select {
	case b.reqCh <- request{id: id, frame: cloned, conf: confThreshold}:
	default:
		// Worker still chewing on an earlier frame.
		cloned.Close()
		return nil, nil
	}

	timer := time.NewTimer(b.budget)
	defer timer.Stop()
	for {
		select {
		case res := <-b.resCh:
			if res.id != id {
				// Late answer for an abandoned tick.
				continue
			}
			return res.boxes, res.err
		case <-timer.C:
			log.Warnf("inference exceeded %v budget, treating as no detection", b.budget)
			return nil, nil
		}
	}
}

// Close stops the worker and closes the wrapped detector.
func (b *Budgeted) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.reqCh)
		<-b.doneCh
		// Drain a result the worker may have parked before exit.
		select {
		case <-b.resCh:
		default:
		}
		err = b.inner.Close()
	})
	return err
}
