package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"webchat/internal/domain"
	"webchat/internal/infra/tracer"
)

// Streamer produces reply fragments for a message list. *llm.Client
// satisfies it.
type Streamer interface {
	StreamChat(ctx context.Context, messages []domain.Message, model string, temperature float64) <-chan domain.StreamDelta
}

// TurnObserver is notified when a turn ends. Implementations must not block.
type TurnObserver interface {
	TurnCompleted(model string, d time.Duration, chars int)
	TurnFailed(model string, category domain.ErrorCategory)
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithObserver registers an observer for finished turns.
func WithObserver(o TurnObserver) ControllerOption {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

// Controller runs chat turns against a session.
type Controller struct {
	llm       Streamer
	logger    *slog.Logger
	observers []TurnObserver
}

// NewController creates a controller that streams replies from llm.
func NewController(llm Streamer, logger *slog.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{llm: llm, logger: logger}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Submit runs one turn: the trimmed text is appended as a user message,
// the reply is streamed onto sink and, if it completes, appended as an
// assistant message. On failure the conversation keeps the user message
// only and the returned error is the translated *domain.ChatError.
func (c *Controller) Submit(ctx context.Context, s *Session, text string, sink domain.Sink) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.NewDomainError("Controller.Submit", domain.ErrInvalidInput, "empty message")
	}

	end, err := s.Begin()
	if err != nil {
		return "", err
	}
	defer end()

	settings := s.Settings()
	ctx, span := tracer.StartSpan(ctx, "chat.turn")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("session.id", s.ID),
		tracer.StringAttr("llm.model", settings.Model),
		tracer.Float64Attr("llm.temperature", settings.Temperature),
	)

	s.conv.Append(domain.Message{Role: domain.RoleUser, Content: text})
	s.touch()

	messages := BuildMessages(settings.SystemPrompt, s.conv.Messages())
	span.SetAttributes(tracer.IntAttr("chat.messages", len(messages)))

	start := time.Now()
	reply, err := RenderStream(sink, c.llm.StreamChat(ctx, messages, settings.Model, settings.Temperature))
	if err != nil {
		tracer.RecordError(span, err)
		var ce *domain.ChatError
		if errors.As(err, &ce) {
			c.notifyFailed(settings.Model, ce.Category)
		} else {
			c.logger.Warn("sink update failed", "session_id", s.ID, "error", err)
		}
		return reply, err
	}

	s.conv.Append(domain.Message{Role: domain.RoleAssistant, Content: reply})
	s.touch()
	tracer.SetOK(span)

	elapsed := time.Since(start)
	c.logger.Debug("turn completed",
		"session_id", s.ID,
		"model", settings.Model,
		"chars", len(reply),
		"duration", elapsed,
	)
	for _, o := range c.observers {
		o.TurnCompleted(settings.Model, elapsed, len(reply))
	}
	return reply, nil
}

func (c *Controller) notifyFailed(model string, cat domain.ErrorCategory) {
	for _, o := range c.observers {
		o.TurnFailed(model, cat)
	}
}

// Reset clears the session's conversation. Settings are kept. While a
// turn is in flight the conversation is left alone and the error wraps
// domain.ErrSessionBusy.
func (c *Controller) Reset(s *Session) error {
	end, err := s.Begin()
	if err != nil {
		return err
	}
	defer end()

	s.conv.Clear()
	s.touch()
	c.logger.Info("conversation reset", "session_id", s.ID)
	return nil
}

// UpdateSettings replaces the session's settings. They take effect on the
// next turn.
func (c *Controller) UpdateSettings(s *Session, settings domain.Settings) error {
	if err := s.SetSettings(settings); err != nil {
		return err
	}
	c.logger.Debug("settings updated",
		"session_id", s.ID,
		"model", settings.Model,
		"temperature", settings.Temperature,
	)
	return nil
}

// BuildMessages assembles the API-bound message list. A non-blank system
// prompt becomes the first message; history follows in order. The result
// is a new slice and history is not modified.
func BuildMessages(systemPrompt string, history []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(history)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		out = append(out, domain.Message{Role: domain.RoleSystem, Content: systemPrompt})
	}
	return append(out, history...)
}
