// Package overlay draws detection boxes and the status panel onto frames
// before they hit the preview window or the recording sink.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"pillcam/detection"
	"pillcam/recording"
	"pillcam/stability"
)

// Renderer draws per-frame annotations. Construct with NewRenderer.
type Renderer struct {
	boxColor    color.RGBA
	labelColor  color.RGBA
	panelColor  color.RGBA
	recColor    color.RGBA
	confirmed   color.RGBA
	lineSpacing int
}

func NewRenderer() *Renderer {
	return &Renderer{
		boxColor:    color.RGBA{0, 255, 0, 255},
		labelColor:  color.RGBA{0, 255, 0, 255},
		panelColor:  color.RGBA{255, 255, 255, 255},
		confirmed:   color.RGBA{0, 255, 255, 255},
		recColor:    color.RGBA{255, 0, 0, 255},
		lineSpacing: 22,
	}
}

// Annotate draws detection boxes, the status panel and the recording stamp
// in place on frame.
func (r *Renderer) Annotate(frame *gocv.Mat, boxes []detection.Box, st stability.Status, rec recording.Status) {
	for _, b := range boxes {
		gocv.Rectangle(frame, b.Rect, r.boxColor, 2)

		label := fmt.Sprintf("%s %.0f%%", b.Class, b.Confidence*100)
		pos := image.Pt(b.Rect.Min.X, b.Rect.Min.Y-6)
		if pos.Y < 14 {
			pos.Y = b.Rect.Max.Y + 16
		}
		gocv.PutText(frame, label, pos, gocv.FontHersheySimplex, 0.45, r.labelColor, 1)
	}

	lines := statusLines(st)
	for i, line := range lines {
		pos := image.Pt(10, 24+i*r.lineSpacing)
		c := r.panelColor
		if st.Reached && st.Notified && i == len(lines)-1 {
			c = r.confirmed
		}
		gocv.PutText(frame, line, pos, gocv.FontHersheySimplex, 0.55, c, 2)
	}

	if rec.Active {
		w := frame.Cols()
		stamp := fmt.Sprintf("REC %s", formatElapsed(rec.Elapsed))
		gocv.Circle(frame, image.Pt(w-130, 20), 6, r.recColor, -1)
		gocv.PutText(frame, stamp, image.Pt(w-115, 26), gocv.FontHersheySimplex, 0.5, r.recColor, 2)
	}
}

// statusLines builds the text block for the status panel.
func statusLines(st stability.Status) []string {
	lines := []string{fmt.Sprintf("Count: %d", st.Count)}
	if st.Target <= 0 {
		return append(lines, "Target: off")
	}
	lines = append(lines, fmt.Sprintf("Target: %d  (max %d)", st.Target, st.MaxCount))

	switch {
	case st.Reached && st.Notified:
		lines = append(lines, fmt.Sprintf("Confirmed %s", st.ConfirmedAt.Format("15:04:05")))
	case st.Reached:
		lines = append(lines, fmt.Sprintf("Settling %.1fs", st.Remaining.Seconds()))
	}
	return lines
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
