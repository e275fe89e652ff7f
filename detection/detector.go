// Package detection is the boundary to the object-detection model. The
// processing loop only sees the Detector interface; the gocv DNN provider
// and the per-tick budget wrapper live behind it.
package detection

import (
	"image"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

var log = logrus.WithField("component", "detection")

// Box is one detected object.
type Box struct {
	Rect       image.Rectangle
	Confidence float32
	Class      string
}

// Detector runs inference on a single frame. Implementations are invoked
// at most once per processing tick; errors are reported to the caller but
// must never take the loop down.
type Detector interface {
	Detect(frame gocv.Mat, confThreshold float32) ([]Box, error)
	Close() error
}
