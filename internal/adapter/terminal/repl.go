package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"webchat/internal/domain"
	"webchat/internal/usecase"
)

// REPL is an interactive chat loop over one session.
type REPL struct {
	ctrl    *usecase.Controller
	session *usecase.Session
	in      LineReader
	out     io.Writer
	spinner bool
}

// NewREPL creates a loop reading lines from in and writing to out. The
// waiting spinner is shown when spinner is set.
func NewREPL(ctrl *usecase.Controller, session *usecase.Session, in LineReader, out io.Writer, spinner bool) *REPL {
	return &REPL{ctrl: ctrl, session: session, in: in, out: out, spinner: spinner}
}

const helpText = `  /reset            clear the conversation
  /model <name>     switch model
  /temp <0..1>      set temperature
  /system [text]    set the system prompt (empty clears it)
  /settings         show current settings
  /history          show the conversation
  /exit             quit`

// Run reads until EOF, /exit or ctx is cancelled.
func (r *REPL) Run(ctx context.Context) error {
	s := r.session.Settings()
	fmt.Fprintln(r.out)
	assistantColor.Fprintln(r.out, "  webchat")
	dimColor.Fprintf(r.out, "  model %s, temperature %.1f. Type /help for commands.\n\n", s.Model, s.Temperature)

	for {
		l, err := r.next(ctx)
		if err != nil {
			fmt.Fprintln(r.out)
			if errors.Is(err, io.EOF) || errors.Is(err, ErrInterrupted) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		line := strings.TrimSpace(l)

		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(line); quit {
				return nil
			}
			continue
		}
		r.turn(ctx, line)
	}
}

const prompt = "  you → "

// next waits for one line of input or for ctx to end. A pending read is
// abandoned on cancellation.
func (r *REPL) next(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.in.ReadLine(prompt)
		ch <- result{line, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		return res.line, res.err
	}
}

func (r *REPL) turn(ctx context.Context, text string) {
	var sp *Spinner
	if r.spinner {
		sp = NewSpinner(r.out, "Thinking...")
		sp.Start()
	}
	sink := NewSink(r.out, sp)

	_, err := r.ctrl.Submit(ctx, r.session, text, sink)
	if err == nil {
		return
	}
	sink.Abort()

	var ce *domain.ChatError
	if errors.As(err, &ce) {
		errorColor.Fprintf(r.out, "  %s\n\n", ce.Message)
		return
	}
	errorColor.Fprintf(r.out, "  Error: %v\n\n", err)
}

// command handles a slash command and reports whether to quit.
func (r *REPL) command(line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	s := r.session.Settings()

	switch name {
	case "/exit", "/quit":
		dimColor.Fprintf(r.out, "\n  Bye.\n\n")
		return true
	case "/help":
		dimColor.Fprintln(r.out, helpText)
	case "/reset":
		if err := r.ctrl.Reset(r.session); err != nil {
			errorColor.Fprintf(r.out, "  %v\n", err)
			break
		}
		dimColor.Fprintln(r.out, "  Conversation cleared.")
	case "/model":
		s.Model = arg
		r.apply(s)
	case "/temp":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			errorColor.Fprintf(r.out, "  Temperature must be a number, got %q\n", arg)
			break
		}
		s.Temperature = v
		r.apply(s)
	case "/system":
		s.SystemPrompt = arg
		r.apply(s)
	case "/settings":
		r.printSettings(s)
	case "/history":
		msgs := r.session.Conversation().Messages()
		if len(msgs) == 0 {
			dimColor.Fprintln(r.out, "  (empty)")
		}
		for _, m := range msgs {
			dimColor.Fprintf(r.out, "  [%s] ", m.Role)
			fmt.Fprintln(r.out, m.Content)
		}
	default:
		errorColor.Fprintf(r.out, "  Unknown command %s. Type /help.\n", name)
	}
	fmt.Fprintln(r.out)
	return false
}

func (r *REPL) apply(s domain.Settings) {
	if err := r.ctrl.UpdateSettings(r.session, s); err != nil {
		errorColor.Fprintf(r.out, "  %v\n", err)
		return
	}
	r.printSettings(s)
}

func (r *REPL) printSettings(s domain.Settings) {
	prompt := s.SystemPrompt
	if prompt == "" {
		prompt = "(none)"
	}
	dimColor.Fprintf(r.out, "  model %s, temperature %.1f, %d messages\n  system: %s\n",
		s.Model, s.Temperature, r.session.Conversation().Len(), prompt)
}
