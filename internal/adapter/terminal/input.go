package terminal

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

// ErrInterrupted is returned by a LineReader when the user pressed Ctrl+C
// at the prompt.
var ErrInterrupted = errors.New("input interrupted")

// LineReader reads one line of user input per call. io.EOF ends the chat.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

type scanReader struct {
	sc  *bufio.Scanner
	out io.Writer
}

// NewScanReader reads lines from in and prints prompts to out. It is used
// when input is piped.
func NewScanReader(in io.Reader, out io.Writer) LineReader {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &scanReader{sc: sc, out: out}
}

func (r *scanReader) ReadLine(prompt string) (string, error) {
	promptColor.Fprint(r.out, prompt)
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.sc.Text(), nil
}

func (r *scanReader) Close() error { return nil }

// HistoryReader is an interactive LineReader with line editing and input
// history kept in a file.
type HistoryReader struct {
	state *liner.State
	path  string
}

// NewHistoryReader takes over the terminal. historyPath may be empty to
// keep history in memory only. Close restores the terminal.
func NewHistoryReader(historyPath string) *HistoryReader {
	st := liner.NewLiner()
	st.SetCtrlCAborts(true)
	r := &HistoryReader{state: st, path: historyPath}
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = st.ReadHistory(f)
			f.Close()
		}
	}
	return r
}

func (r *HistoryReader) ReadLine(prompt string) (string, error) {
	line, err := r.state.Prompt(prompt)
	switch {
	case errors.Is(err, liner.ErrPromptAborted):
		return "", ErrInterrupted
	case err != nil:
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		r.state.AppendHistory(line)
	}
	return line, nil
}

// Close writes the history file (mode 0600) and restores the terminal.
func (r *HistoryReader) Close() error {
	defer r.state.Close()
	if r.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = r.state.WriteHistory(f)
	return err
}
