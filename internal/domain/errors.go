package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrSessionNotFound = fmt.Errorf("session: %w", ErrNotFound)
	ErrSessionBusy     = fmt.Errorf("a reply is already being generated for this session")
	ErrSessionLimit    = fmt.Errorf("too many active sessions")
	ErrConfigLoad      = fmt.Errorf("failed to load configuration")
	ErrDecryption      = fmt.Errorf("decryption failed")
	ErrEncryption      = fmt.Errorf("encryption operation failed")

	// Credential errors (construction time, fatal).
	ErrCredentialMissing = fmt.Errorf("api key not set")
	ErrCredentialFormat  = fmt.Errorf("api key has unexpected format")

	// Gateway / RPC errors.
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")

	// Provider failure families.
	ErrAuthInvalid         = fmt.Errorf("authentication failed")
	ErrRateLimit           = fmt.Errorf("rate limit exceeded")
	ErrConnectivity        = fmt.Errorf("network connection failed")
	ErrProviderUnavailable = fmt.Errorf("provider unavailable")
	ErrEmptyCompletion     = fmt.Errorf("provider returned no choices")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Controller.Submit")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCategory is the user-facing family a provider failure falls into.
type ErrorCategory string

// Categories in classification priority order.
const (
	CategoryAuth      ErrorCategory = "auth"
	CategoryRateLimit ErrorCategory = "rate_limit"
	CategoryNetwork   ErrorCategory = "network"
	CategoryTimeout   ErrorCategory = "timeout"
	CategoryUnknown   ErrorCategory = "unknown"
)

// ChatError is the single application-level error produced at the LLM
// client boundary. Message is already translated for display.
type ChatError struct {
	Category ErrorCategory
	Message  string
	Err      error
}

func (e *ChatError) Error() string { return e.Message }

func (e *ChatError) Unwrap() error { return e.Err }

// CredentialError reports why an API key was rejected before any network call.
type CredentialError struct {
	Reason string
	Err    error // ErrCredentialMissing or ErrCredentialFormat
}

func (e *CredentialError) Error() string { return e.Reason }

func (e *CredentialError) Unwrap() error { return e.Err }

// CategoryOf returns the category carried by a *ChatError in err's chain,
// or CategoryUnknown.
func CategoryOf(err error) ErrorCategory {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryUnknown
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeTimeout             ErrorCode = "TIMEOUT"
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeProviderError       ErrorCode = "PROVIDER_ERROR"
	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionBusy         ErrorCode = "SESSION_BUSY"
	CodeSessionLimit        ErrorCode = "SESSION_LIMIT"
	CodeConfigLoad          ErrorCode = "CONFIG_LOAD"
	CodeEncryption          ErrorCode = "ENCRYPTION"
	CodeDecryption          ErrorCode = "DECRYPTION"
	CodeCredentialMissing   ErrorCode = "CREDENTIAL_MISSING"
	CodeCredentialFormat    ErrorCode = "CREDENTIAL_FORMAT"
	CodeGatewayAuth         ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound   ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload   ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeAuthInvalid         ErrorCode = "AUTH_INVALID"
	CodeRateLimit           ErrorCode = "RATE_LIMIT"
	CodeConnectivity        ErrorCode = "CONNECTIVITY"
	CodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	CodeEmptyCompletion     ErrorCode = "EMPTY_COMPLETION"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:            CodeNotFound,
	ErrTimeout:             CodeTimeout,
	ErrInvalidInput:        CodeInvalidInput,
	ErrProviderError:       CodeProviderError,
	ErrSessionNotFound:     CodeSessionNotFound,
	ErrSessionBusy:         CodeSessionBusy,
	ErrSessionLimit:        CodeSessionLimit,
	ErrConfigLoad:          CodeConfigLoad,
	ErrEncryption:          CodeEncryption,
	ErrDecryption:          CodeDecryption,
	ErrCredentialMissing:   CodeCredentialMissing,
	ErrCredentialFormat:    CodeCredentialFormat,
	ErrGatewayAuthFailed:   CodeGatewayAuth,
	ErrRPCMethodNotFound:   CodeRPCMethodNotFound,
	ErrRPCInvalidPayload:   CodeRPCInvalidPayload,
	ErrAuthInvalid:         CodeAuthInvalid,
	ErrRateLimit:           CodeRateLimit,
	ErrConnectivity:        CodeConnectivity,
	ErrProviderUnavailable: CodeProviderUnavailable,
	ErrEmptyCompletion:     CodeEmptyCompletion,
}

// codePriority lists sentinels whose codes win when an error wraps several
// (e.g. ErrSessionNotFound also wraps ErrNotFound).
var codePriority = []error{
	ErrSessionNotFound,
	ErrGatewayAuthFailed,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for _, sentinel := range codePriority {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
