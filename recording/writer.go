// Package recording writes annotated frames to an mp4 file. The writer is
// an external-sink wrapper: opened with fixed dimensions and frame rate
// at session start, fed one frame per tick, flushed at session end.
package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

var log = logrus.WithField("component", "recording")

const codec = "mp4v"

// Status is a snapshot of the recording state.
type Status struct {
	Active  bool
	Path    string
	Frames  uint64
	Elapsed time.Duration
}

// Writer records frames of a fixed resolution. Zero value is a closed
// writer; Open arms it.
type Writer struct {
	mu      sync.Mutex
	vw      *gocv.VideoWriter
	path    string
	frames  uint64
	started time.Time
}

// Open creates the output file under dir and arms the writer. The file is
// named after the start time plus a short unique suffix so back-to-back
// sessions never collide.
func (w *Writer) Open(dir string, fps float64, width, height int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.vw != nil {
		return errors.New("already recording")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	name := fmt.Sprintf("detection_%s_%s.mp4",
		time.Now().Format("20060102_150405"), uuid.NewString()[:8])
	path := filepath.Join(dir, name)

	vw, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return errors.Wrapf(err, "open video writer for %s", path)
	}
	if !vw.IsOpened() {
		vw.Close()
		return errors.Errorf("video writer did not open for %s", path)
	}

	w.vw = vw
	w.path = path
	w.frames = 0
	w.started = time.Now()
	log.Infof("recording to %s (%gfps %dx%d)", path, fps, width, height)
	return nil
}

// Write appends one frame. Silently ignored when the writer is closed;
// write errors are logged, never escalated.
func (w *Writer) Write(frame gocv.Mat) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.vw == nil {
		return
	}
	if err := w.vw.Write(frame); err != nil {
		log.Warnf("frame write failed: %v", err)
		return
	}
	w.frames++
}

// Active reports whether a recording is in progress.
func (w *Writer) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.vw != nil
}

// Status returns a snapshot for display.
func (w *Writer) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := Status{Path: w.path, Frames: w.frames}
	if w.vw != nil {
		st.Active = true
		st.Elapsed = time.Since(w.started)
	}
	return st
}

// Close flushes and releases the output file. Idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.vw == nil {
		return nil
	}
	err := w.vw.Close()
	log.Infof("recording saved: %s (%d frames)", w.path, w.frames)
	w.vw = nil
	return err
}
