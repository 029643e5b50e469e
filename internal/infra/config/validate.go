package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
//
// The API key itself is not checked here; the credential validator reports
// a missing or malformed key with a more specific reason.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateServer(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateMetrics(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLLM(cfg *Config, ve *ValidationError) {
	l := cfg.LLM
	if strings.TrimSpace(l.Model) == "" {
		ve.Add("llm.model must not be empty (set via %s)", EnvModel)
	}
	if l.Temperature < 0 || l.Temperature > 1 {
		ve.Add("llm.temperature %.2f is out of range [0, 1]", l.Temperature)
	}
	if l.BaseURL != "" {
		u, err := url.Parse(l.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			ve.Add("llm.base_url %q is not a valid http(s) URL", l.BaseURL)
		}
	}
	if l.ConnTimeout < 0 {
		ve.Add("llm.conn_timeout must be >= 0")
	}
	if l.RespTimeout < 0 {
		ve.Add("llm.resp_timeout must be >= 0")
	}
	if l.Pool.MaxIdleConns < 0 || l.Pool.MaxIdleConnsPerHost < 0 || l.Pool.MaxConnsPerHost < 0 {
		ve.Add("llm.pool sizes must be >= 0")
	}
	if l.CircuitBreaker.Enabled {
		if l.CircuitBreaker.MaxFailures == 0 {
			ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if l.CircuitBreaker.Timeout < 0 {
			ve.Add("llm.circuit_breaker.timeout must be >= 0")
		}
	}
}

func validateServer(cfg *Config, ve *ValidationError) {
	s := cfg.Server
	if s.Addr == "" {
		ve.Add("server.addr is required")
	} else if _, _, err := net.SplitHostPort(s.Addr); err != nil {
		ve.Add("server.addr %q is not a valid host:port", s.Addr)
	}
	for i, tok := range s.Auth.Tokens {
		if tok.Token == "" {
			ve.Add("server.auth.tokens[%d].token must not be empty", i)
		}
	}
	for i, p := range s.TrustedProxies {
		if _, _, err := net.ParseCIDR(p); err != nil && net.ParseIP(p) == nil {
			ve.Add("server.trusted_proxies[%d] %q is not an IP or CIDR", i, p)
		}
	}
	if s.RateLimit.Enabled {
		if s.RateLimit.RequestsPerSecond <= 0 {
			ve.Add("server.rate_limit.requests_per_second must be > 0 when enabled")
		}
		if s.RateLimit.Burst <= 0 {
			ve.Add("server.rate_limit.burst must be > 0 when enabled")
		}
	}
	if s.MaxSessions < 0 {
		ve.Add("server.max_sessions must be >= 0")
	}
	if s.ShutdownTimeout < 0 {
		ve.Add("server.shutdown_timeout must be >= 0")
	}
}

var (
	validLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	validFormats   = map[string]bool{"text": true, "json": true, "": true}
	validExporters = map[string]bool{"stdout": true, "noop": true, "": true}
)

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if cfg.Tracer.Enabled && !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: stdout, noop)", cfg.Tracer.Exporter)
	}
	if cfg.Tracer.SampleRatio < 0 || cfg.Tracer.SampleRatio > 1 {
		ve.Add("tracer.sample_ratio %.2f is out of range [0, 1]", cfg.Tracer.SampleRatio)
	}
}

func validateMetrics(cfg *Config, ve *ValidationError) {
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		ve.Add("metrics.path %q must start with /", cfg.Metrics.Path)
	}
}
