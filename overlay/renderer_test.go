package overlay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pillcam/stability"
)

func TestStatusLinesTargetOff(t *testing.T) {
	lines := statusLines(stability.Status{Count: 3, Target: 0})
	assert.Equal(t, []string{"Count: 3", "Target: off"}, lines)
}

func TestStatusLinesCounting(t *testing.T) {
	lines := statusLines(stability.Status{Count: 2, Target: 5, MaxCount: 4})
	assert.Equal(t, []string{"Count: 2", "Target: 5  (max 4)"}, lines)
}

func TestStatusLinesSettling(t *testing.T) {
	lines := statusLines(stability.Status{
		Count:     5,
		Target:    5,
		MaxCount:  5,
		Reached:   true,
		Remaining: 1500 * time.Millisecond,
	})
	assert.Len(t, lines, 3)
	assert.Equal(t, "Settling 1.5s", lines[2])
}

func TestStatusLinesConfirmed(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)
	lines := statusLines(stability.Status{
		Count:       5,
		Target:      5,
		MaxCount:    5,
		Reached:     true,
		Notified:    true,
		ConfirmedAt: at,
	})
	assert.Equal(t, "Confirmed 09:26:53", lines[2])
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:07", formatElapsed(7*time.Second+300*time.Millisecond))
	assert.Equal(t, "02:05", formatElapsed(125*time.Second))
}
