// Package pipeline runs the tick loop that ties capture, detection,
// stability tracking, notification, overlay and recording together. One
// Session owns one camera worth of state; every per-tick step runs on the
// caller's goroutine so collaborators never race each other.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"pillcam/capture"
	"pillcam/config"
	"pillcam/detection"
	"pillcam/metrics"
	"pillcam/notify"
	"pillcam/overlay"
	"pillcam/recording"
	"pillcam/stability"
)

var log = logrus.WithField("component", "pipeline")

// TickInterval is the processing cadence. Frames arriving faster than
// this are dropped by the capture slot, never queued.
const TickInterval = 50 * time.Millisecond

// FrameSource yields frames without blocking the tick loop.
type FrameSource interface {
	Start() error
	Stop() error
	TryTakeFrame() (*capture.Frame, bool)
	Drops() uint64
}

// Recorder persists annotated frames to disk.
type Recorder interface {
	Open(dir string, fps float64, width, height int) error
	Write(frame gocv.Mat)
	Active() bool
	Status() recording.Status
	Close() error
}

// Notifier accepts announcements. Enqueue must not block the tick loop.
type Notifier interface {
	Enqueue(item notify.Item)
	Stop()
}

// Options wires a Session together. Source and Config are required; the
// rest default to working implementations when nil.
type Options struct {
	Config   *config.Settings
	Source   FrameSource
	Detector detection.Detector
	Monitor  *stability.Monitor
	Notifier Notifier
	Renderer *overlay.Renderer
	Recorder Recorder
	Counters *metrics.Counters

	// FrameHandler, when set, receives each annotated frame after the
	// tick finishes with it. The Mat is only valid during the call.
	FrameHandler func(frame gocv.Mat)
}

// Session is the per-camera processing state machine.
type Session struct {
	cfg      *config.Settings
	src      FrameSource
	det      detection.Detector
	monitor  *stability.Monitor
	notifier Notifier
	renderer *overlay.Renderer
	rec      Recorder
	counters *metrics.Counters
	onFrame  func(frame gocv.Mat)

	mu           sync.Mutex
	opened       bool
	detecting    bool
	lastCount    int
	lastDrops    uint64
	snapshotPath string
}

func New(opts Options) *Session {
	if opts.Monitor == nil {
		opts.Monitor = stability.New()
	}
	if opts.Renderer == nil {
		opts.Renderer = overlay.NewRenderer()
	}
	if opts.Recorder == nil {
		opts.Recorder = &recording.Writer{}
	}
	if opts.Counters == nil {
		opts.Counters = &metrics.Counters{}
	}

	s := &Session{
		cfg:      opts.Config,
		src:      opts.Source,
		det:      opts.Detector,
		monitor:  opts.Monitor,
		notifier: opts.Notifier,
		renderer: opts.Renderer,
		rec:      opts.Recorder,
		counters: opts.Counters,
		onFrame:  opts.FrameHandler,
	}
	s.monitor.SetTarget(opts.Config.GetTargetCount())
	return s
}

// Open starts the frame source. The tick loop itself is driven by Run or
// by calling Step directly. A session closed by Close can be opened
// again; the camera toggles with it.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil
	}
	if err := s.src.Start(); err != nil {
		return err
	}
	s.opened = true
	return nil
}

// Run ticks the session until ctx is done, then tears it down.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Open(); err != nil {
		return err
	}

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.Close()
		case <-ticker.C:
			s.Step()
		}
	}
}

// Step processes at most one frame: detect, observe, announce, annotate,
// record. A tick with no fresh frame does nothing but count itself.
func (s *Session) Step() {
	frame, ok := s.src.TryTakeFrame()
	if !ok {
		s.counters.EmptyTick()
		return
	}
	defer frame.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters.FrameCaptured()
	s.counters.TickProcessed()
	if drops := s.src.Drops(); drops > s.lastDrops {
		s.counters.FramesDropped(drops - s.lastDrops)
		s.lastDrops = drops
	}

	var boxes []detection.Box
	count := 0
	if s.detecting && s.det != nil {
		var err error
		boxes, err = s.det.Detect(frame.Mat, s.cfg.GetConfidence())
		if err != nil {
			log.Warnf("detect failed on frame %d: %v", frame.Seq, err)
			boxes = nil
		}
		count = len(boxes)
		s.counters.Detections(count)
	}
	s.lastCount = count

	if s.monitor.Observe(count) {
		s.monitor.MarkNotified()
		s.announceLocked()
	}

	s.renderer.Annotate(&frame.Mat, boxes, s.monitor.Status(), s.rec.Status())

	if s.rec.Active() {
		s.rec.Write(frame.Mat)
		s.counters.RecordedFrame()
	}

	if s.snapshotPath != "" {
		if ok := gocv.IMWrite(s.snapshotPath, frame.Mat); !ok {
			log.Warnf("snapshot write failed: %s", s.snapshotPath)
		} else {
			log.Infof("snapshot saved: %s", s.snapshotPath)
		}
		s.snapshotPath = ""
	}

	if s.onFrame != nil {
		s.onFrame(frame.Mat)
	}
}

func (s *Session) announceLocked() {
	if s.notifier == nil {
		return
	}
	text := fmt.Sprintf("%s%d pills dispensed", s.cfg.AnnouncePrefix, s.monitor.Target())
	s.notifier.Enqueue(notify.Item{Text: text, Chime: true})
	s.counters.Notification()
	log.Infof("count confirmed: %q", text)
}

// SetTarget updates the stability target and the persisted setting.
func (s *Session) SetTarget(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitor.SetTarget(n)
	s.cfg.SetTargetCount(n)
}

// SetDetecting toggles inference. While off, every tick observes a count
// of zero, so a pending episode clears on the next frame.
func (s *Session) SetDetecting(on bool) {
	s.mu.Lock()
	s.detecting = on
	s.mu.Unlock()
	log.Infof("detection %v", on)
}

// Detecting reports whether inference runs on ticks.
func (s *Session) Detecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detecting
}

// LastCount is the pill count from the most recent processed frame.
func (s *Session) LastCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCount
}

// StartRecording opens a new clip in the configured directory.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Open(s.cfg.RecordDir, s.cfg.RecordFPS, s.cfg.FrameWidth, s.cfg.FrameHeight)
}

// StopRecording finalizes the open clip, if any.
func (s *Session) StopRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Close()
}

// Snapshot asks the next processed frame to be written to path.
func (s *Session) Snapshot(path string) {
	s.mu.Lock()
	s.snapshotPath = path
	s.mu.Unlock()
}

// Close tears the session down: camera first so no new frames arrive,
// then the recording, then the counting state. The notifier is left
// running — it belongs to the process, not the session, so a closed
// session can be opened again with announcements intact.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return nil
	}
	s.opened = false

	err := s.src.Stop()
	if cerr := s.rec.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.monitor.Reset()
	s.lastCount = 0
	return err
}
