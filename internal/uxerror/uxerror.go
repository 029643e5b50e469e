// Package uxerror translates raw provider errors into user-facing messages.
//
// Classification runs in two passes. Typed domain sentinels are checked
// first; the lower-cased error text is then scanned for keyword families
// in a fixed order: credentials, rate limiting, connectivity, timeout.
// The first family that matches wins.
package uxerror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"webchat/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Category domain.ErrorCategory
	Title    string   // short heading, e.g. "Rate Limited"
	Message  string   // one-liner shown to the user
	Hints    []string // actionable recovery suggestions
	Raw      string   // original error text (for logs)
}

// Render formats the FriendlyError for display in a terminal.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			sb.WriteString(fmt.Sprintf("\n    • %s", h))
		}
	}
	return sb.String()
}

// ChatError converts fe into the application-level error, keeping cause in
// the chain.
func (fe FriendlyError) ChatError(cause error) *domain.ChatError {
	return &domain.ChatError{Category: fe.Category, Message: fe.Message, Err: cause}
}

// User-facing messages, one per category.
const (
	MsgAuth      = "The OpenAI API key is invalid. Check the OPENAI_API_KEY environment variable."
	MsgRateLimit = "The API rate limit was reached. Please try again in a moment."
	MsgNetwork   = "A network connection error occurred. Check your internet connection."
	MsgTimeout   = "The request timed out. Please try again."
	msgGeneric   = "An error occurred: %s"
)

var (
	authError = FriendlyError{
		Category: domain.CategoryAuth,
		Title:    "Authentication Failed",
		Message:  MsgAuth,
		Hints:    []string{"Check your API key environment variable", "Verify the key hasn't expired or been revoked"},
	}
	rateLimitError = FriendlyError{
		Category: domain.CategoryRateLimit,
		Title:    "Rate Limited",
		Message:  MsgRateLimit,
		Hints:    []string{"Wait a moment before sending again", "Check the usage limits of your API plan"},
	}
	networkError = FriendlyError{
		Category: domain.CategoryNetwork,
		Title:    "Connection Failed",
		Message:  MsgNetwork,
		Hints:    []string{"Check your internet connection", "Verify llm.base_url in config"},
	}
	timeoutError = FriendlyError{
		Category: domain.CategoryTimeout,
		Title:    "Request Timed Out",
		Message:  MsgTimeout,
		Hints:    []string{"Try again", "Increase llm.resp_timeout in config"},
	}
)

type errorPattern struct {
	match  func(err error) bool
	result FriendlyError
}

// typedPatterns classify by sentinel or error type, in priority order.
var typedPatterns = []errorPattern{
	{match: isAny(domain.ErrAuthInvalid), result: authError},
	{match: isAny(domain.ErrRateLimit), result: rateLimitError},
	{match: isAny(domain.ErrConnectivity), result: networkError},
	{match: isTimeout, result: timeoutError},
}

// keywordPatterns classify by message text, in priority order.
var keywordPatterns = []struct {
	keywords []string
	result   FriendlyError
}{
	{[]string{"api_key", "authentication"}, authError},
	{[]string{"rate limit"}, rateLimitError},
	{[]string{"network", "connection"}, networkError},
	{[]string{"timeout"}, timeoutError},
}

// Translate converts a raw error into a FriendlyError. A *domain.ChatError
// is returned as already translated.
func Translate(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Category: domain.CategoryUnknown, Title: "Unknown Error", Raw: "nil"}
	}

	var ce *domain.ChatError
	if errors.As(err, &ce) {
		return FriendlyError{Category: ce.Category, Title: titleOf(ce.Category), Message: ce.Message, Raw: err.Error()}
	}

	for _, p := range typedPatterns {
		if p.match(err) {
			return withRaw(p.result, err.Error())
		}
	}
	return TranslateText(err.Error())
}

// TranslateText applies only the keyword pass to an error message.
func TranslateText(text string) FriendlyError {
	lower := strings.ToLower(text)
	for _, p := range keywordPatterns {
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				return withRaw(p.result, text)
			}
		}
	}
	return FriendlyError{
		Category: domain.CategoryUnknown,
		Title:    "Unexpected Error",
		Message:  fmt.Sprintf(msgGeneric, text),
		Hints:    []string{"Try again", "Set WEBCHAT_LOGGER_LEVEL=debug for more details"},
		Raw:      text,
	}
}

func withRaw(fe FriendlyError, raw string) FriendlyError {
	fe.Raw = raw
	return fe
}

func titleOf(c domain.ErrorCategory) string {
	switch c {
	case domain.CategoryAuth:
		return authError.Title
	case domain.CategoryRateLimit:
		return rateLimitError.Title
	case domain.CategoryNetwork:
		return networkError.Title
	case domain.CategoryTimeout:
		return timeoutError.Title
	default:
		return "Unexpected Error"
	}
}

// isAny returns a match func that checks errors.Is against each sentinel.
func isAny(sentinels ...error) func(error) bool {
	return func(err error) bool {
		for _, s := range sentinels {
			if errors.Is(err, s) {
				return true
			}
		}
		return false
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
