// Package spinner renders a single-line animated status for long runs.
package spinner

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates on one terminal line. The message can change while the
// spinner runs, which is how split progress surfaces during a run.
type Spinner struct {
	w    io.Writer
	done chan struct{}

	mu       sync.Mutex
	message  string
	maxWidth int
	stopped  bool
}

// Start displays an animated spinner with the given message on w.
func Start(w io.Writer, message string) *Spinner {
	s := &Spinner{w: w, message: message, maxWidth: len(message), done: make(chan struct{})}
	go s.loop()
	return s
}

// Update replaces the spinner message in place.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
	if len(message) > s.maxWidth {
		s.maxWidth = len(message)
	}
}

// Stop halts the animation and clears the line. Safe to call twice.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.done)

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", s.maxWidth+2)) //nolint:errcheck
}

func (s *Spinner) loop() {
	i := 0
	for {
		select {
		case <-s.done:
			return
		case <-time.After(80 * time.Millisecond):
			s.mu.Lock()
			fmt.Fprintf(s.w, "\r%s %s", frames[i%len(frames)], s.message) //nolint:errcheck
			s.mu.Unlock()
			i++
		}
	}
}
