// Package terminal runs the chat in a terminal: a line-oriented REPL whose
// replies stream in place.
package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"webchat/internal/domain"
)

var (
	promptColor    = color.New(color.FgGreen)
	assistantColor = color.New(color.FgCyan, color.Bold)
	dimColor       = color.New(color.FgHiBlack)
	errorColor     = color.New(color.FgRed)
)

// Spinner wraps a terminal spinner shown while waiting for the first
// fragment. It only animates when w is a terminal.
type Spinner struct {
	s *spinner.Spinner
}

// NewSpinner creates a spinner with the given message.
func NewSpinner(w io.Writer, msg string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 80*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = "  " + msg
	s.Color("cyan")
	return &Spinner{s: s}
}

// Start begins the animation.
func (sp *Spinner) Start() { sp.s.Start() }

// Stop halts the animation and clears the line.
func (sp *Spinner) Stop() { sp.s.Stop() }

// Sink writes a streaming reply to a terminal. A terminal cannot redraw
// earlier output cheaply, so each update prints only the text not yet
// shown and the cursor is never printed.
type Sink struct {
	mu      sync.Mutex
	w       io.Writer
	spinner *Spinner
	prefix  string
	shown   int
	started bool
	done    bool
}

// NewSink returns a sink that stops sp (if not nil) before the first
// fragment is printed.
func NewSink(w io.Writer, sp *Spinner) *Sink {
	return &Sink{w: w, spinner: sp, prefix: "  assistant → "}
}

// Update prints the new part of a reply in progress; text ends with
// domain.Cursor.
func (s *Sink) Update(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(strings.TrimSuffix(text, domain.Cursor), false)
}

// Final prints the rest of the finished reply and ends it.
func (s *Sink) Final(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(text, true)
}

var _ domain.FinalSink = (*Sink)(nil)

func (s *Sink) write(body string, final bool) error {
	if !s.started {
		s.stopSpinner()
		assistantColor.Fprint(s.w, s.prefix)
		s.started = true
	}
	if len(body) > s.shown {
		if _, err := io.WriteString(s.w, body[s.shown:]); err != nil {
			return err
		}
		s.shown = len(body)
	}
	if final {
		s.done = true
		fmt.Fprint(s.w, "\n\n")
	}
	return nil
}

// Abort ends a reply that failed midway, leaving the partial text in place.
func (s *Sink) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopSpinner()
	if s.started && !s.done {
		fmt.Fprintln(s.w)
	}
}

func (s *Sink) stopSpinner() {
	if s.spinner != nil {
		s.spinner.Stop()
		s.spinner = nil
	}
}
