package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"webchat/internal/adapter/llm"
	"webchat/internal/domain"
	"webchat/internal/infra/config"
	"webchat/internal/infra/logger"
	"webchat/internal/infra/tracer"
	"webchat/internal/security"
)

// errReported marks a failure that has already been logged for the user.
var errReported = errors.New("startup failed")

// keyHint is shown when the API key is rejected at startup.
const keyHint = "export " + config.EnvAPIKey + "=sk-... (or set llm.api_key in the config file) and try again"

// app is what every command that talks to the model needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider domain.StreamingLLMProvider
	breaker  *llm.CircuitBreakerProvider // nil when disabled
	client   *llm.Client

	closers []func(context.Context)
}

// bootstrap loads configuration and builds the logger, tracer and LLM
// client. An unusable API key is logged with a hint and reported as
// errReported.
func bootstrap(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &app{cfg: cfg, logger: log}
	a.closers = append(a.closers, func(context.Context) { _ = logCloser() })

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer, version)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.closers = append(a.closers, func(ctx context.Context) { _ = tracerShutdown(ctx) })

	var provider domain.StreamingLLMProvider = llm.NewOpenAIProvider(cfg.LLM, log)
	if cfg.LLM.CircuitBreaker.Enabled {
		a.breaker = llm.NewCircuitBreakerProvider(provider, cfg.LLM.CircuitBreaker, log)
		provider = a.breaker
		log.Info("llm circuit breaker enabled",
			"max_failures", cfg.LLM.CircuitBreaker.MaxFailures,
			"timeout", cfg.LLM.CircuitBreaker.Timeout,
		)
	}
	a.provider = provider

	validator := security.NewCredentialValidator(config.EnvAPIKey, cfg.LLM.KeyPrefix)
	client, err := llm.NewClient(provider, validator, cfg.LLM.APIKey, log)
	if err != nil {
		var ce *domain.CredentialError
		if errors.As(err, &ce) {
			log.Error("cannot start: invalid API key", "reason", ce.Reason, "code", domain.ErrorCodeOf(err))
			log.Info("hint: " + keyHint)
			a.close(ctx)
			return nil, errReported
		}
		a.close(ctx)
		return nil, fmt.Errorf("llm client: %w", err)
	}
	a.client = client

	log.Debug("llm client ready",
		"provider", provider.Name(),
		"base_url", cfg.LLM.BaseURL,
		"model", cfg.LLM.Model,
		"api_key", cfg.LLM.APIKey,
	)
	return a, nil
}

// defaults are the settings every new session starts with.
func (a *app) defaults() domain.Settings {
	return domain.Settings{
		Model:        a.cfg.LLM.Model,
		Temperature:  a.cfg.LLM.Temperature,
		SystemPrompt: a.cfg.LLM.SystemPrompt,
	}
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
}
