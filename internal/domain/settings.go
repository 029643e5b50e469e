package domain

import (
	"fmt"
	"strings"
)

// Temperature bounds accepted from the settings surface.
const (
	MinTemperature = 0.0
	MaxTemperature = 1.0
)

// Settings are the per-session request parameters. They are read at the
// moment a request is issued.
type Settings struct {
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	SystemPrompt string  `json:"system_prompt"`
}

// Validate checks the settings are usable for a request.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Model) == "" {
		return fmt.Errorf("%w: model must not be empty", ErrInvalidInput)
	}
	if s.Temperature < MinTemperature || s.Temperature > MaxTemperature {
		return fmt.Errorf("%w: temperature %.2f outside [%.1f, %.1f]",
			ErrInvalidInput, s.Temperature, MinTemperature, MaxTemperature)
	}
	return nil
}
