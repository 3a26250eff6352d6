package launcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in       time.Duration
		expected string
	}{
		{0, "00:00"},
		{59 * time.Second, "00:00"},
		{3661 * time.Second, "01:01"},
		{25*time.Hour + 30*time.Minute, "25:30"},
		{-time.Minute, "00:00"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatClock(tt.in), "FormatClock(%s)", tt.in)
	}
}
