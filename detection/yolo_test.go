package detection

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func floatMat(t *testing.T, rows, cols int, vals [][]float32) gocv.Mat {
	t.Helper()
	m := gocv.Zeros(rows, cols, gocv.MatTypeCV32F)
	for r, row := range vals {
		for c, v := range row {
			m.SetFloatAt(r, c, v)
		}
	}
	return m
}

func TestCandidateMatrixTransposesAttributeMajor(t *testing.T) {
	// v8-shaped blob: [1, attributes, candidates], attributes < candidates.
	blob := gocv.NewMatWithSizes([]int{1, 6, 8}, gocv.MatTypeCV32F)
	defer blob.Close()
	for a := 0; a < 6; a++ {
		for c := 0; c < 8; c++ {
			blob.SetFloatAt3(0, a, c, float32(a*100+c))
		}
	}

	view, release := candidateMatrix(blob)
	defer release()

	require.Equal(t, 8, view.Rows(), "candidates must become rows")
	require.Equal(t, 6, view.Cols())
	assert.Equal(t, float32(0), view.GetFloatAt(0, 0))
	assert.Equal(t, float32(503), view.GetFloatAt(3, 5))
	assert.Equal(t, float32(107), view.GetFloatAt(7, 1))
}

func TestCandidateMatrixKeepsCandidateMajor(t *testing.T) {
	// v5-shaped blob: [1, candidates, attributes], candidates >= attributes.
	blob := gocv.NewMatWithSizes([]int{1, 8, 7}, gocv.MatTypeCV32F)
	defer blob.Close()
	for r := 0; r < 8; r++ {
		for c := 0; c < 7; c++ {
			blob.SetFloatAt3(0, r, c, float32(r*10+c))
		}
	}

	view, release := candidateMatrix(blob)
	defer release()

	require.Equal(t, 8, view.Rows())
	require.Equal(t, 7, view.Cols())
	assert.Equal(t, float32(42), view.GetFloatAt(4, 2))
}

func TestParseDetectionsObjectnessHead(t *testing.T) {
	// Rows: cx cy w h objectness class0 class1. Two classes, 7 columns.
	view := floatMat(t, 3, 7, [][]float32{
		{100, 80, 40, 20, 0.8, 0.9, 0.1},       // kept: 0.8*0.9 = 0.72
		{200, 200, 30, 30, 0.3, 0.99, 0.01},    // objectness below threshold
		{0.5, 0.5, 0.25, 0.25, 0.9, 0.1, 0.95}, // normalized coords, class 1
	})
	defer view.Close()

	rects, scores, classIDs, err := parseDetections(view, 2, 640, 1, 1, 0.5)
	require.NoError(t, err)
	require.Len(t, rects, 2)

	assert.Equal(t, image.Rect(80, 70, 120, 90), rects[0])
	assert.InDelta(t, 0.72, float64(scores[0]), 1e-5)
	assert.Equal(t, 0, classIDs[0])

	// 0.5*640 = 320 center, 0.25*640 = 160 extent.
	assert.Equal(t, image.Rect(240, 240, 400, 400), rects[1])
	assert.Equal(t, 1, classIDs[1])
}

func TestParseDetectionsNoObjectnessHead(t *testing.T) {
	// v8-style rows: cx cy w h class0 class1. No objectness column; the
	// best class score alone stands against the threshold.
	view := floatMat(t, 3, 6, [][]float32{
		{100, 80, 40, 20, 0.1, 0.9},  // kept, class 1
		{300, 300, 50, 50, 0.2, 0.3}, // best score below threshold
		{64, 64, 16, 16, 0.7, 0.05},  // kept, class 0
	})
	defer view.Close()

	rects, scores, classIDs, err := parseDetections(view, 2, 640, 1, 1, 0.5)
	require.NoError(t, err)
	require.Len(t, rects, 2)

	assert.Equal(t, image.Rect(80, 70, 120, 90), rects[0])
	assert.InDelta(t, 0.9, float64(scores[0]), 1e-5)
	assert.Equal(t, 1, classIDs[0])

	assert.Equal(t, image.Rect(56, 56, 72, 72), rects[1])
	assert.Equal(t, 0, classIDs[1])
}

func TestParseDetectionsScaling(t *testing.T) {
	view := floatMat(t, 1, 6, [][]float32{
		{320, 320, 160, 80, 0.05, 0.9},
	})
	defer view.Close()

	// 800x600 frame over a 640 square input.
	rects, _, _, err := parseDetections(view, 2, 640, 800.0/640.0, 600.0/640.0, 0.5)
	require.NoError(t, err)
	require.Len(t, rects, 1)
	assert.Equal(t, image.Rect(300, 262, 500, 337), rects[0])
}

func TestParseDetectionsRejectsNarrowRows(t *testing.T) {
	view := floatMat(t, 2, 4, [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}})
	defer view.Close()

	_, _, _, err := parseDetections(view, 2, 640, 1, 1, 0.5)
	assert.Error(t, err)
}
