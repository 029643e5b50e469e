package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"

	"webchat/internal/domain"
	"webchat/internal/infra/tracer"
)

// mapProviderError maps SDK and transport errors to domain sentinels so the
// translator can classify them by type before falling back to their text.
// The original error stays in the chain.
func mapProviderError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return mapStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return mapStatus(reqErr.HTTPStatusCode, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %w", domain.ErrConnectivity, err)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", domain.ErrConnectivity, err)
	}

	return fmt.Errorf("%w: %w", domain.ErrProviderError, err)
}

// mapStatus maps an HTTP status code from the API to a domain sentinel.
// A zero status is an error event inside an open stream.
func mapStatus(status int, err error) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden: // 401, 403
		return fmt.Errorf("%w: %w", domain.ErrAuthInvalid, err)
	case status == http.StatusTooManyRequests: // 429
		return fmt.Errorf("%w: %w", domain.ErrRateLimit, err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout: // 408, 504
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable: // 502, 503
		return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrProviderError, err)
	}
}

// logChatCompleted logs the standard debug message after a successful LLM chat.
func logChatCompleted(logger *slog.Logger, providerName string, result *domain.ChatResponse) {
	logger.Debug("llm chat completed",
		"provider", providerName,
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
	)
}

// setUsageAttrs adds token usage attributes to a trace span.
func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", usage.CompletionTokens),
	)
}

func fromOpenAIUsage(u openai.Usage) domain.Usage {
	return domain.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
