package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"webchat/internal/adapter/llm"
	"webchat/internal/domain"
	"webchat/internal/infra/config"
	"webchat/internal/security"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check configuration, API key and connectivity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, cfgErr := config.Load(opts.configPath)

			checks := []Check{
				{Name: "Config file", Fn: checkConfigFile(opts.configPath, cfgErr)},
				{Name: "API key", Fn: checkAPIKey},
				{Name: "API endpoint", Fn: checkEndpoint},
			}
			if live {
				checks = append(checks, Check{Name: "Completion", Fn: checkCompletion(cmd.Context())})
			}
			return runChecks(cmd.OutOrStdout(), cfg, checks)
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "also send a one-word completion request")
	return cmd
}

// runChecks executes checks in order and reports results to w.
func runChecks(w io.Writer, cfg *config.Config, checks []Check) error {
	fmt.Fprintln(w, "webchat check")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return color.GreenString("[PASS]")
	case StatusWarn:
		return color.YellowString("[WARN]")
	case StatusFail:
		return color.RedString("[FAIL]")
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file was found and loaded.
// Running without a file is allowed; defaults and environment apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			var ve *config.ValidationError
			if errors.As(cfgErr, &ve) {
				return CheckResult{
					Status:  StatusFail,
					Message: fmt.Sprintf("%d invalid setting(s): %s", len(ve.Errors), strings.Join(ve.Errors, "; ")),
					Fix:     "Correct the listed settings in " + cfgPath + " or the environment",
				}
			}
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check " + cfgPath + " syntax and permissions (must not be group/world writable)",
			}
		}
		if _, err := os.Stat(cfgPath); errors.Is(err, fs.ErrNotExist) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s; using defaults and environment", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkAPIKey validates the API key without contacting the provider.
func checkAPIKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	ok, reason := security.NewCredentialValidator(config.EnvAPIKey, cfg.LLM.KeyPrefix).Validate(cfg.LLM.APIKey)
	if !ok {
		return CheckResult{Status: StatusFail, Message: reason, Fix: keyHint}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: "key present (" + security.MaskKey(cfg.LLM.APIKey) + ")",
	}
}

// checkEndpoint verifies the API host accepts TCP connections.
func checkEndpoint(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	u, err := url.Parse(cfg.LLM.BaseURL)
	if err != nil || u.Host == "" {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("invalid base URL %q", cfg.LLM.BaseURL)}
	}

	host := u.Host
	if u.Port() == "" {
		port := "443"
		if u.Scheme == "http" {
			port = "80"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	timeout := cfg.LLM.ConnTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := net.DialTimeout("tcp", host, timeout)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", host, err),
			Fix:     "Check your network connection or " + config.EnvBaseURL,
		}
	}
	conn.Close()
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s reachable", host)}
}

// checkCompletion sends a minimal chat request through the real client.
func checkCompletion(ctx context.Context) func(*config.Config) CheckResult {
	return func(cfg *config.Config) CheckResult {
		if cfg == nil {
			return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
		}
		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		client, err := llm.NewClient(
			llm.NewOpenAIProvider(cfg.LLM, log),
			security.NewCredentialValidator(config.EnvAPIKey, cfg.LLM.KeyPrefix),
			cfg.LLM.APIKey,
			log,
		)
		if err != nil {
			return CheckResult{Status: StatusFail, Message: err.Error(), Fix: keyHint}
		}

		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		reply, err := client.Chat(ctx, []domain.Message{
			{Role: domain.RoleUser, Content: "Reply with the single word: pong"},
		}, cfg.LLM.Model, 0)
		if err != nil {
			return CheckResult{Status: StatusFail, Message: err.Error()}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s answered %q", cfg.LLM.Model, strings.TrimSpace(reply)),
		}
	}
}
