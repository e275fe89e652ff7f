package recording

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestWriterLifecycle(t *testing.T) {
	dir := t.TempDir()

	var w Writer
	assert.False(t, w.Active())
	w.Write(gocv.NewMat()) // closed writer swallows frames

	require.NoError(t, w.Open(dir, 20, 320, 240))
	assert.True(t, w.Active())
	assert.Error(t, w.Open(dir, 20, 320, 240), "double open must fail")

	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()
	w.Write(frame)
	w.Write(frame)

	st := w.Status()
	assert.True(t, st.Active)
	assert.Equal(t, uint64(2), st.Frames)
	assert.True(t, strings.HasPrefix(filepath.Base(st.Path), "detection_"))
	assert.True(t, strings.HasSuffix(st.Path, ".mp4"))

	require.NoError(t, w.Close())
	assert.False(t, w.Active())
	require.NoError(t, w.Close(), "close is idempotent")
}

func TestWriterUniqueNames(t *testing.T) {
	dir := t.TempDir()

	var a, b Writer
	require.NoError(t, a.Open(dir, 20, 320, 240))
	require.NoError(t, b.Open(dir, 20, 320, 240))
	defer a.Close()
	defer b.Close()

	assert.NotEqual(t, a.Status().Path, b.Status().Path)
}
