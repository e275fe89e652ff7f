// Package capture owns the camera device. A Source runs the acquisition
// loop on its own goroutine and publishes the newest frame through a
// single-slot hand-off; the processing loop polls with TryTakeFrame and
// never blocks on the camera.
package capture

import (
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

var log = logrus.WithField("component", "capture")

// ErrDeviceUnavailable means no capture backend could open the device.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// ErrStopTimeout means the acquisition goroutine did not exit within the
// join bound; the device handle may still be held.
var ErrStopTimeout = errors.New("timed out waiting for acquisition loop")

// backendOrder is the ordered list of capture APIs tried when opening the
// device. Platform-specific backends first, then whatever OpenCV picks.
func backendOrder() []gocv.VideoCaptureAPI {
	switch runtime.GOOS {
	case "windows":
		return []gocv.VideoCaptureAPI{
			gocv.VideoCaptureDshow,
			gocv.VideoCaptureMSMF,
			gocv.VideoCaptureAny,
		}
	case "darwin":
		return []gocv.VideoCaptureAPI{
			gocv.VideoCaptureAVFoundation,
			gocv.VideoCaptureAny,
		}
	default:
		return []gocv.VideoCaptureAPI{
			gocv.VideoCaptureV4L2,
			gocv.VideoCaptureGstreamer,
			gocv.VideoCaptureAny,
		}
	}
}

const joinTimeout = 3 * time.Second

// Source acquires frames from one camera device on a dedicated goroutine.
// Stop releases the device; a stopped source can be started again, so the
// camera can be toggled open and closed across one process lifetime.
type Source struct {
	device int
	width  int
	height int
	fps    float64

	slot *Slot

	mu        sync.Mutex
	cam       *gocv.VideoCapture
	started   bool
	abandoned bool
	loopDone  bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewSource prepares a source for the given device index. Nothing touches
// the hardware until Start.
func NewSource(device, width, height int, fps float64) *Source {
	return &Source{
		device: device,
		width:  width,
		height: height,
		fps:    fps,
		slot:   NewSlot(),
	}
}

// Start opens the device, trying each backend in order, and begins the
// acquisition loop. Returns ErrDeviceUnavailable when every backend fails.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("source already started")
	}
	if s.doneCh != nil && !s.loopDone {
		return errors.New("previous acquisition loop still shutting down")
	}

	var cam *gocv.VideoCapture
	for _, api := range backendOrder() {
		c, err := gocv.OpenVideoCaptureWithAPI(s.device, api)
		if err != nil {
			log.Debugf("backend %d failed for device %d: %v", api, s.device, err)
			continue
		}
		if !c.IsOpened() {
			c.Close()
			continue
		}
		cam = c
		log.Infof("device %d opened (backend %d)", s.device, api)
		break
	}
	if cam == nil {
		return errors.Wrapf(ErrDeviceUnavailable, "device %d", s.device)
	}

	cam.Set(gocv.VideoCaptureFrameWidth, float64(s.width))
	cam.Set(gocv.VideoCaptureFrameHeight, float64(s.height))
	cam.Set(gocv.VideoCaptureFPS, s.fps)

	s.cam = cam
	s.started = true
	s.abandoned = false
	s.loopDone = false
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.acquireLoop(cam, s.stopCh, s.doneCh)
	return nil
}

// acquireLoop reads frames as fast as the camera provides them and
// publishes each one into the slot. Read failures skip the frame unless
// the device itself has closed, which ends the loop. When Stop gave up
// waiting for the loop, the loop releases the device itself on exit.
func (s *Source) acquireLoop(cam *gocv.VideoCapture, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer func() {
		s.mu.Lock()
		s.loopDone = true
		if s.abandoned && s.cam == cam {
			cam.Close()
			s.cam = nil
			log.Warnf("device %d released late by acquisition loop", s.device)
		}
		s.mu.Unlock()
		close(doneCh)
	}()

	img := gocv.NewMat()
	defer img.Close()

	var seq uint64
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if ok := cam.Read(&img); !ok {
			if !cam.IsOpened() {
				log.Warnf("device %d closed, acquisition loop exiting", s.device)
				return
			}
			log.Debugf("device %d read failed, skipping frame", s.device)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if img.Empty() || img.Channels() != 3 {
			continue
		}

		seq++
		s.slot.Put(&Frame{
			Mat:       img.Clone(),
			Timestamp: time.Now(),
			Seq:       seq,
		})
	}
}

// TryTakeFrame returns the latest frame if one is available. Non-blocking;
// (nil, false) just means nothing new has arrived.
func (s *Source) TryTakeFrame() (*Frame, bool) {
	return s.slot.TryTake()
}

// Drops reports frames overwritten before the consumer read them.
func (s *Source) Drops() uint64 {
	return s.slot.Drops()
}

// Stop signals the acquisition loop, joins it with a bounded wait, then
// releases the device so it can be reopened immediately. Stopping an
// already stopped source is a no-op. On ErrStopTimeout the device handle
// stays with the loop, which closes it when it finally exits.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(joinTimeout):
		// Decide ownership of the device handle under the lock: either
		// the loop already finished and Stop closes the handle below, or
		// the loop is marked abandoned and closes it itself on exit.
		s.mu.Lock()
		if !s.loopDone {
			s.abandoned = true
			s.mu.Unlock()
			return ErrStopTimeout
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	if s.cam != nil {
		s.cam.Close()
		s.cam = nil
	}
	s.abandoned = false
	s.mu.Unlock()
	s.slot.Drain()
	log.Infof("device %d released", s.device)
	return nil
}
