package llm

import (
	"context"
	"errors"
	"log/slog"

	"webchat/internal/domain"
	"webchat/internal/uxerror"
)

// KeyValidator checks an API key before any request is made.
type KeyValidator interface {
	Check(key string) error
}

// Client is the application-facing LLM client. Every failure it returns,
// or delivers on a stream, is a *domain.ChatError carrying a display-ready
// message.
type Client struct {
	provider domain.StreamingLLMProvider
	logger   *slog.Logger
}

// NewClient validates apiKey and returns a client over provider. An invalid
// key yields a *domain.CredentialError and no client.
func NewClient(provider domain.StreamingLLMProvider, validator KeyValidator, apiKey string, logger *slog.Logger) (*Client, error) {
	if err := validator.Check(apiKey); err != nil {
		return nil, err
	}
	return &Client{provider: provider, logger: logger}, nil
}

// Chat sends messages and waits for the complete reply.
func (c *Client) Chat(ctx context.Context, messages []domain.Message, model string, temperature float64) (string, error) {
	resp, err := c.provider.Chat(ctx, domain.ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", c.translate(err, model)
	}
	return resp.Message.Content, nil
}

// StreamChat returns a channel of reply fragments. Nothing is sent upstream
// until the returned channel's producer runs. Only non-empty fragments are
// delivered; a failure at any point arrives as one final delta with Err set
// to a *domain.ChatError, after which the channel closes. Fragments already
// delivered are not retracted.
//
// The caller must drain the channel until it is closed.
func (c *Client) StreamChat(ctx context.Context, messages []domain.Message, model string, temperature float64) <-chan domain.StreamDelta {
	out := make(chan domain.StreamDelta)

	go func() {
		defer close(out)

		in, err := c.provider.ChatStream(ctx, domain.ChatRequest{
			Model:       model,
			Messages:    messages,
			Temperature: temperature,
			Stream:      true,
		})
		if err != nil {
			out <- domain.StreamDelta{Err: c.translate(err, model)}
			return
		}

		for d := range in {
			if d.Err != nil {
				out <- domain.StreamDelta{Err: c.translate(d.Err, model)}
				return
			}
			if d.Content == "" {
				continue
			}
			out <- domain.StreamDelta{Content: d.Content}
		}

		// The provider stops without an error delta when ctx ends first.
		if err := ctx.Err(); err != nil {
			out <- domain.StreamDelta{Err: c.translate(err, model)}
		}
	}()

	return out
}

// translate is the single point where provider failures become
// *domain.ChatError. It logs each failure once.
func (c *Client) translate(err error, model string) *domain.ChatError {
	var ce *domain.ChatError
	if errors.As(err, &ce) {
		return ce
	}

	fe := uxerror.Translate(err)
	attrs := []any{
		"provider", c.provider.Name(),
		"model", model,
		"category", fe.Category,
		"code", domain.ErrorCodeOf(err),
		"error", err,
	}
	switch {
	case errors.Is(err, context.Canceled):
		c.logger.Debug("llm request canceled", attrs...)
	case fe.Category == domain.CategoryUnknown:
		c.logger.Error("unexpected llm error", attrs...)
	default:
		c.logger.Warn("llm request failed", attrs...)
	}
	return fe.ChatError(err)
}
