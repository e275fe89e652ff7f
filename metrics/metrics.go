// Package metrics exposes pipeline counters over a Prometheus endpoint.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "metrics")

// Counters tracks pipeline activity. All methods are safe for concurrent use.
type Counters struct {
	framesCaptured uint64
	framesDropped  uint64
	ticksProcessed uint64
	emptyTicks     uint64
	detections     uint64
	notifications  uint64
	recordedFrames uint64
}

func (c *Counters) FrameCaptured()         { atomic.AddUint64(&c.framesCaptured, 1) }
func (c *Counters) FramesDropped(n uint64) { atomic.AddUint64(&c.framesDropped, n) }
func (c *Counters) TickProcessed()         { atomic.AddUint64(&c.ticksProcessed, 1) }
func (c *Counters) EmptyTick()             { atomic.AddUint64(&c.emptyTicks, 1) }
func (c *Counters) Detections(n int) {
	if n > 0 {
		atomic.AddUint64(&c.detections, uint64(n))
	}
}
func (c *Counters) Notification()  { atomic.AddUint64(&c.notifications, 1) }
func (c *Counters) RecordedFrame() { atomic.AddUint64(&c.recordedFrames, 1) }

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	FramesCaptured uint64
	FramesDropped  uint64
	TicksProcessed uint64
	EmptyTicks     uint64
	Detections     uint64
	Notifications  uint64
	RecordedFrames uint64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		FramesCaptured: atomic.LoadUint64(&c.framesCaptured),
		FramesDropped:  atomic.LoadUint64(&c.framesDropped),
		TicksProcessed: atomic.LoadUint64(&c.ticksProcessed),
		EmptyTicks:     atomic.LoadUint64(&c.emptyTicks),
		Detections:     atomic.LoadUint64(&c.detections),
		Notifications:  atomic.LoadUint64(&c.notifications),
		RecordedFrames: atomic.LoadUint64(&c.recordedFrames),
	}
}

// Registry builds a Prometheus registry backed by the counters.
func Registry(c *Counters) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	gauge := func(name, help string, field *uint64) {
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: "pillcam", Name: name, Help: help},
			func() float64 { return float64(atomic.LoadUint64(field)) },
		))
	}

	gauge("frames_captured_total", "Frames read from the camera.", &c.framesCaptured)
	gauge("frames_dropped_total", "Frames overwritten before the pipeline consumed them.", &c.framesDropped)
	gauge("ticks_processed_total", "Pipeline ticks that processed a frame.", &c.ticksProcessed)
	gauge("empty_ticks_total", "Pipeline ticks with no fresh frame available.", &c.emptyTicks)
	gauge("detections_total", "Pills detected across all processed frames.", &c.detections)
	gauge("notifications_total", "Count confirmations announced.", &c.notifications)
	gauge("recorded_frames_total", "Frames written to recording files.", &c.recordedFrames)

	return reg
}

// Handler returns an HTTP handler serving the counters in Prometheus format.
func Handler(c *Counters) http.Handler {
	return promhttp.HandlerFor(Registry(c), promhttp.HandlerOpts{})
}

// Serve runs a metrics endpoint on addr. It blocks until the server fails.
func Serve(addr string, c *Counters) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(c))
	log.Infof("metrics listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
