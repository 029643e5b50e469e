package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"webchat/internal/domain"
	"webchat/internal/infra/config"
)

// CircuitBreakerProvider fails fast with domain.ErrProviderUnavailable while
// the wrapped provider keeps failing. It never retries: a request either
// reaches the provider once or not at all.
type CircuitBreakerProvider struct {
	inner   domain.StreamingLLMProvider
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func breakerSettings(name string, cfg config.CircuitBreakerConfig, logger *slog.Logger) gobreaker.Settings {
	trip := cfg.MaxFailures
	if trip == 0 {
		trip = 5
	}
	st := gobreaker.Settings{
		Name:        "llm:" + name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= trip },
		// A caller hanging up says nothing about the upstream.
		IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, context.Canceled) },
		OnStateChange: func(breaker string, from, to gobreaker.State) {
			logger.Warn("llm circuit breaker", "breaker", breaker, "from", from.String(), "to", to.String())
		},
	}
	if st.Interval == 0 {
		st.Interval = time.Minute
	}
	if st.Timeout == 0 {
		st.Timeout = 30 * time.Second
	}
	return st
}

// NewCircuitBreakerProvider wraps inner. Zero cfg fields take defaults:
// 5 consecutive failures, 30s open, counts reset every minute.
func NewCircuitBreakerProvider(inner domain.StreamingLLMProvider, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerProvider {
	return &CircuitBreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[struct{}](breakerSettings(inner.Name(), cfg, logger)),
	}
}

func (p *CircuitBreakerProvider) guard(fn func() error) error {
	_, err := p.breaker.Execute(func() (struct{}, error) { return struct{}{}, fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: provider %q circuit open: %w", domain.ErrProviderUnavailable, p.inner.Name(), err)
	}
	return err
}

func (p *CircuitBreakerProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	var resp *domain.ChatResponse
	err := p.guard(func() (err error) {
		resp, err = p.inner.Chat(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ChatStream guards opening the stream only. Errors delivered through the
// channel after it opened do not count against the breaker.
func (p *CircuitBreakerProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	var ch <-chan domain.StreamDelta
	err := p.guard(func() (err error) {
		ch, err = p.inner.ChatStream(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (p *CircuitBreakerProvider) Name() string { return p.inner.Name() }

// State reports closed, half-open or open.
func (p *CircuitBreakerProvider) State() gobreaker.State { return p.breaker.State() }

// Counts returns the counters of the current breaker generation.
func (p *CircuitBreakerProvider) Counts() gobreaker.Counts { return p.breaker.Counts() }

var _ domain.StreamingLLMProvider = (*CircuitBreakerProvider)(nil)
