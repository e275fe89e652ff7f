package capture

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame is one snapshot taken from the camera. The Mat is owned by exactly
// one party at a time: the source clones it out of the camera buffer, the
// hand-off slot owns it while it sits there, and whoever takes it from the
// slot must Close it.
type Frame struct {
	Mat       gocv.Mat
	Timestamp time.Time
	Seq       uint64
}

// Close releases the underlying Mat. Safe to call once per owner.
func (f *Frame) Close() {
	f.Mat.Close()
}
