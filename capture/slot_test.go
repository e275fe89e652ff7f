package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func newTestFrame(seq uint64) *Frame {
	return &Frame{
		Mat:       gocv.NewMat(),
		Timestamp: time.Now(),
		Seq:       seq,
	}
}

func TestSlotEmptyTake(t *testing.T) {
	s := NewSlot()

	f, ok := s.TryTake()
	assert.False(t, ok, "untouched slot should report empty")
	assert.Nil(t, f)
	assert.Equal(t, uint64(0), s.Drops())
}

func TestSlotLatestWins(t *testing.T) {
	s := NewSlot()

	// N writes with no reads: exactly one frame retrievable, the newest.
	for i := uint64(1); i <= 5; i++ {
		s.Put(newTestFrame(i))
	}

	f, ok := s.TryTake()
	require.True(t, ok)
	assert.Equal(t, uint64(5), f.Seq)
	assert.Equal(t, uint64(4), s.Drops())
	f.Close()

	_, ok = s.TryTake()
	assert.False(t, ok, "slot should be empty after the take")
}

func TestSlotTakeThenPut(t *testing.T) {
	s := NewSlot()

	s.Put(newTestFrame(1))
	f, ok := s.TryTake()
	require.True(t, ok)
	f.Close()

	s.Put(newTestFrame(2))
	f, ok = s.TryTake()
	require.True(t, ok)
	assert.Equal(t, uint64(2), f.Seq)
	assert.Equal(t, uint64(0), s.Drops(), "consumed frames are not drops")
	f.Close()
}

func TestSlotDrain(t *testing.T) {
	s := NewSlot()
	s.Put(newTestFrame(1))
	s.Drain()

	_, ok := s.TryTake()
	assert.False(t, ok)
}
