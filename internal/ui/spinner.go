package ui

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Spinner is a braille spinner for the analysis wait. It writes to stderr
// so piped stdout stays clean, and it is safe to Stop more than once.
type Spinner struct {
	frames   []string
	interval time.Duration
	suffix   string
	stopChan chan struct{}
	wg       sync.WaitGroup
	active   bool
	mu       sync.Mutex
}

// NewSpinner creates a spinner with the given trailing label.
func NewSpinner(suffix string) *Spinner {
	return &Spinner{
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		interval: 100 * time.Millisecond,
		suffix:   suffix,
		stopChan: make(chan struct{}),
	}
}

// Start begins animating in a background goroutine. Starting a running
// spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		i := 0
		for {
			select {
			case <-s.stopChan:
				return
			case <-time.After(s.interval):
				i = (i + 1) % len(s.frames)
				fmt.Fprintf(os.Stderr, "\r%s %s", StylePrimary.Render(s.frames[i]), s.suffix)
			}
		}
	}()
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	fmt.Fprint(os.Stderr, "\r\033[K")
}
