package detection

import (
	"image"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const (
	defaultInputSize   = 640
	defaultNMSOverlap  = 0.45
	minUsableThreshold = 0.01
)

// YOLO runs a YOLO-family network through the OpenCV DNN module. ONNX
// exports and darknet weights+cfg pairs are both accepted.
type YOLO struct {
	net        gocv.Net
	classNames []string
	inputSize  int
	mu         sync.Mutex
}

// YOLOOptions configures the provider.
type YOLOOptions struct {
	// WeightsPath is the .onnx model or darknet .weights file.
	WeightsPath string
	// ConfigPath is the darknet .cfg; empty for ONNX.
	ConfigPath string
	// ClassesPath is a YAML "classes:" document or a .names file.
	ClassesPath string
	// InputSize is the square network input; 0 means 640.
	InputSize int
}

// NewYOLO loads the network onto the CPU backend.
func NewYOLO(opts YOLOOptions) (*YOLO, error) {
	var net gocv.Net
	if strings.HasSuffix(opts.WeightsPath, ".onnx") {
		net = gocv.ReadNetFromONNX(opts.WeightsPath)
	} else {
		net = gocv.ReadNet(opts.WeightsPath, opts.ConfigPath)
	}
	if net.Empty() {
		return nil, errors.Errorf("failed to load network from %s", opts.WeightsPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	classNames, err := LoadClasses(opts.ClassesPath)
	if err != nil {
		net.Close()
		return nil, err
	}

	size := opts.InputSize
	if size <= 0 {
		size = defaultInputSize
	}

	return &YOLO{
		net:        net,
		classNames: classNames,
		inputSize:  size,
	}, nil
}

// Detect runs one forward pass and returns NMS-filtered boxes in frame
// coordinates.
func (y *YOLO) Detect(frame gocv.Mat, confThreshold float32) ([]Box, error) {
	y.mu.Lock()
	defer y.mu.Unlock()

	if confThreshold < minUsableThreshold {
		confThreshold = minUsableThreshold
	}

	blob := gocv.BlobFromImage(frame, 1.0/255.0,
		image.Pt(y.inputSize, y.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	y.net.SetInput(blob, "")
	output := y.net.Forward("")
	defer output.Close()

	view, release := candidateMatrix(output)
	defer release()

	scaleX := float32(frame.Cols()) / float32(y.inputSize)
	scaleY := float32(frame.Rows()) / float32(y.inputSize)

	rects, scores, classIDs, err := parseDetections(
		view, len(y.classNames), y.inputSize, scaleX, scaleY, confThreshold)
	if err != nil {
		return nil, err
	}
	if len(rects) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(rects, scores, confThreshold, defaultNMSOverlap)
	boxes := make([]Box, 0, len(indices))
	for _, idx := range indices {
		boxes = append(boxes, Box{
			Rect:       rects[idx],
			Confidence: scores[idx],
			Class:      y.classNames[classIDs[idx]],
		})
	}
	return boxes, nil
}

// candidateMatrix flattens a raw network output blob into a 2D matrix
// with one candidate per row. v5-era exports come back as
// [1, candidates, attributes] and only need flattening; v8 exports are
// attribute-major [1, attributes, candidates] and need a transpose on
// top, otherwise the parse would walk attributes as if they were
// candidates.
func candidateMatrix(output gocv.Mat) (gocv.Mat, func()) {
	if output.Dims() <= 2 {
		return output, func() {}
	}
	sz := output.Size()
	flat := output.Reshape(1, sz[1])
	if sz[1] >= sz[2] {
		return flat, func() { flat.Close() }
	}
	rows := gocv.NewMat()
	gocv.Transpose(flat, &rows)
	flat.Close()
	return rows, func() { rows.Close() }
}

// parseDetections collects every candidate above the threshold. Rows are
// [cx cy w h objectness class...] for heads with an objectness column and
// [cx cy w h class...] for v8-style heads without one; the row width
// against the class count tells the layouts apart.
func parseDetections(view gocv.Mat, classes, inputSize int, scaleX, scaleY, confThreshold float32) ([]image.Rectangle, []float32, []int, error) {
	cols := view.Cols()
	classStart := 5
	switch {
	case cols == classes+4:
		classStart = 4
	case cols >= classes+5:
	default:
		return nil, nil, nil, errors.Errorf("unexpected network output shape %dx%d", view.Rows(), cols)
	}

	var rects []image.Rectangle
	var scores []float32
	var classIDs []int

	for i := 0; i < view.Rows(); i++ {
		objectness := float32(1)
		if classStart == 5 {
			objectness = view.GetFloatAt(i, 4)
			if objectness < confThreshold {
				continue
			}
		}

		bestScore := float32(0)
		bestClass := 0
		for c := classStart; c < cols; c++ {
			if s := view.GetFloatAt(i, c); s > bestScore {
				bestScore = s
				bestClass = c - classStart
			}
		}
		score := objectness * bestScore
		if score < confThreshold || bestClass >= classes {
			continue
		}

		cx := view.GetFloatAt(i, 0)
		cy := view.GetFloatAt(i, 1)
		w := view.GetFloatAt(i, 2)
		h := view.GetFloatAt(i, 3)
		// Darknet heads emit normalized coordinates, ONNX heads emit
		// pixels in input space; normalize the former.
		if cx <= 1.5 && cy <= 1.5 && w <= 1.5 && h <= 1.5 {
			cx *= float32(inputSize)
			cy *= float32(inputSize)
			w *= float32(inputSize)
			h *= float32(inputSize)
		}

		left := int((cx - w/2) * scaleX)
		top := int((cy - h/2) * scaleY)
		width := int(w * scaleX)
		height := int(h * scaleY)

		rects = append(rects, image.Rect(left, top, left+width, top+height))
		scores = append(scores, score)
		classIDs = append(classIDs, bestClass)
	}
	return rects, scores, classIDs, nil
}

// Close releases the network.
func (y *YOLO) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.net.Close()
}
