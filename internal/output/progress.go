package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// writerIsTTY returns true if the given writer exposes an Fd() method
// (e.g. *os.File) and that fd is a terminal.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

// ProgressBar counts items of a known total, e.g. manifests being indexed.
// On a terminal it redraws in place; elsewhere it prints a single line when
// finished.
type ProgressBar struct {
	mu          sync.Mutex
	total       int
	current     int
	failed      int
	description string
	width       int
	writer      io.Writer
}

// NewProgress creates a progress bar writing to stderr, so that it does not
// mix with table output on stdout.
func NewProgress(total int, description string) *ProgressBar {
	return &ProgressBar{
		total:       total,
		description: description,
		width:       30,
		writer:      os.Stderr,
	}
}

// SetWriter sets the output writer (useful for testing).
func (p *ProgressBar) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer = w
}

// Increment records one finished item. A failed item still advances the bar
// and is counted separately.
func (p *ProgressBar) Increment(failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current < p.total {
		p.current++
	}
	if failed {
		p.failed++
	}
	if writerIsTTY(p.writer) {
		fmt.Fprintf(p.writer, "\r%s", p.line())
	}
}

// Finish prints the final state and returns the number of failed items.
func (p *ProgressBar) Finish() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writerIsTTY(p.writer) {
		fmt.Fprintf(p.writer, "\r%s\n", p.line())
	} else {
		fmt.Fprintln(p.writer, p.line())
	}
	return p.failed
}

// line draws the bar (must be called with lock held).
func (p *ProgressBar) line() string {
	filled := p.width
	if p.total > 0 {
		filled = p.current * p.width / p.total
	}

	var bar strings.Builder
	bar.WriteString("[")
	bar.WriteString(strings.Repeat("=", filled))
	bar.WriteString(strings.Repeat(" ", p.width-filled))
	bar.WriteString("]")

	s := fmt.Sprintf("%s %d/%d %s", bar.String(), p.current, p.total, p.description)
	if p.failed > 0 {
		s += colorize(colorRed, fmt.Sprintf(" (%d failed)", p.failed))
	}
	return s
}

// Spinner shows that an operation of unknown length is running.
// Example: |  Syncing installed apps... (3s)
type Spinner struct {
	mu      sync.Mutex
	message string
	running bool
	writer  io.Writer
	started time.Time
	done    chan struct{}
}

// NewSpinner creates a spinner writing to stderr. Call Start to show it.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		writer:  os.Stderr,
	}
}

// SetWriter sets the output writer (useful for testing).
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Start begins the animation. On a non-TTY writer the message is printed
// once instead.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.started = time.Now()
	s.done = make(chan struct{})

	if !writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "%s...\n", s.message)
		return
	}

	go s.spin(s.done)
}

func (s *Spinner) spin(done <-chan struct{}) {
	chars := []string{"|", "/", "-", "\\"}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ticker.C:
			s.mu.Lock()
			fmt.Fprintf(s.writer, "\r%s  %s... (%ds)", chars[i%len(chars)], s.message,
				int(time.Since(s.started).Seconds()))
			s.mu.Unlock()
		case <-done:
			return
		}
	}
}

// Stop ends the animation and prints message, if not empty, on its own line.
func (s *Spinner) Stop(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.done)

	if writerIsTTY(s.writer) {
		fmt.Fprint(s.writer, "\r\033[K")
	}
	if message != "" {
		fmt.Fprintln(s.writer, message)
	}
}
