package launcher

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressFraction(t *testing.T) {
	assert.InDelta(t, 0.0, progressFraction(0, time.Minute), 1e-9)
	assert.InDelta(t, 0.5, progressFraction(time.Hour, 30*time.Minute), 1e-9)
	assert.InDelta(t, 1.0, progressFraction(time.Hour, 2*time.Hour), 1e-9)
	assert.InDelta(t, 0.0, progressFraction(time.Hour, -time.Minute), 1e-9)
}

func TestProgressLine(t *testing.T) {
	line := progressLine(time.Hour, 10*time.Minute, "###")
	assert.Equal(t, "SSH session (1h timeout) - Elapsed: 00:10, Remaining: 00:50:  17%|###| 10/60min", line)
}

func TestNewProgressBar(t *testing.T) {
	var buf bytes.Buffer

	bar := NewProgressBar(&buf, 2*time.Hour)
	bar.Update(30 * time.Minute)
	bar.Close()
	bar.Update(time.Hour)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if assert.Len(t, lines, 2) {
		assert.Contains(t, lines[0], "Elapsed: 00:00, Remaining: 02:00")
		assert.Contains(t, lines[0], "0/120min")
		assert.Contains(t, lines[1], "Elapsed: 00:30, Remaining: 01:30")
		assert.Contains(t, lines[1], " 25%")
	}
}
