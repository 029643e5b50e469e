package security

import (
	"fmt"
	"strings"

	"webchat/internal/domain"
)

// DefaultKeyPrefix is the prefix OpenAI secret keys carry.
const DefaultKeyPrefix = "sk-"

// CredentialValidator checks an API key's presence and shape before any
// network call is made. An empty Prefix disables the shape check.
type CredentialValidator struct {
	EnvVar string // name shown in reasons, e.g. "OPENAI_API_KEY"
	Prefix string
}

// NewCredentialValidator returns a validator for keys read from envVar.
func NewCredentialValidator(envVar, prefix string) CredentialValidator {
	return CredentialValidator{EnvVar: envVar, Prefix: prefix}
}

// Validate reports whether key is usable. When it is not, reason explains why.
func (v CredentialValidator) Validate(key string) (bool, string) {
	if err := v.Check(key); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// Check is Validate in error form; the result unwraps to
// domain.ErrCredentialMissing or domain.ErrCredentialFormat.
func (v CredentialValidator) Check(key string) error {
	name := v.EnvVar
	if name == "" {
		name = "API key"
	}
	if strings.TrimSpace(key) == "" {
		return &domain.CredentialError{
			Reason: fmt.Sprintf("%s is not set", name),
			Err:    domain.ErrCredentialMissing,
		}
	}
	if v.Prefix != "" && !strings.HasPrefix(key, v.Prefix) {
		return &domain.CredentialError{
			Reason: fmt.Sprintf("%s has an invalid format: it must start with %q", name, v.Prefix),
			Err:    domain.ErrCredentialFormat,
		}
	}
	return nil
}

// MaskKey hides all but the prefix and the last four characters of key.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	head := 3
	if i := strings.Index(key, "-"); i >= 0 && i < 8 {
		head = i + 1
	}
	return key[:head] + "****" + key[len(key)-4:]
}
