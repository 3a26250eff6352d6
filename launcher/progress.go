package launcher

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"golang.org/x/term"
)

// Progress shows how much of the session timeout has elapsed
type Progress interface {
	Update(elapsed time.Duration)
	Close()
}

// ProgressFactory creates the indicator for a session with the given timeout
type ProgressFactory func(w io.Writer, timeout time.Duration) Progress

const progressBarWidth = 30

type barProgress struct {
	w       io.Writer
	timeout time.Duration
	bar     progress.Model
	inPlace bool
	closed  bool
}

// NewProgressBar renders a text progress bar to w. On a terminal the line is
// redrawn in place; otherwise each update is printed on its own line.
func NewProgressBar(w io.Writer, timeout time.Duration) Progress {
	p := &barProgress{
		w:       w,
		timeout: timeout,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(progressBarWidth),
			progress.WithoutPercentage(),
		),
		inPlace: isTerminal(w),
	}
	p.Update(0)
	return p
}

func (p *barProgress) Update(elapsed time.Duration) {
	if p.closed {
		return
	}
	line := progressLine(p.timeout, elapsed, p.bar.ViewAs(progressFraction(p.timeout, elapsed)))
	if p.inPlace {
		fmt.Fprintf(p.w, "\r%s", line)
		return
	}
	fmt.Fprintln(p.w, line)
}

func (p *barProgress) Close() {
	if p.closed {
		return
	}
	p.closed = true
	if p.inPlace {
		fmt.Fprintln(p.w)
	}
}

func progressFraction(timeout, elapsed time.Duration) float64 {
	if timeout <= 0 {
		return 0
	}
	f := float64(elapsed) / float64(timeout)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// progressLine formats one indicator line, e.g.
// "SSH session (1h timeout) - Elapsed: 00:10, Remaining: 00:50:  17%|<bar>| 10/60min".
func progressLine(timeout, elapsed time.Duration, bar string) string {
	return fmt.Sprintf("SSH session (%dh timeout) - Elapsed: %s, Remaining: %s: %3.0f%%|%s| %d/%dmin",
		int(timeout/time.Hour),
		FormatClock(elapsed),
		FormatClock(timeout-elapsed),
		progressFraction(timeout, elapsed)*100,
		bar,
		int(elapsed/time.Minute),
		int(timeout/time.Minute))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
