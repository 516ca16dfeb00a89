package model

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks a configuration or input problem detected before
// any simulation work begins.
var ErrConfiguration = errors.New("invalid configuration")

// ErrPhysicalInconsistency marks a violated physical invariant. It signals a
// programming defect and must never surface for valid inputs.
var ErrPhysicalInconsistency = errors.New("physical inconsistency")

// ConfigError describes a single rejected configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, ErrConfiguration).
func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// Configf builds a ConfigError for field with a formatted reason.
func Configf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InconsistencyError reports the timestep at which an invariant broke.
type InconsistencyError struct {
	Step   int
	Reason string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("step %d: %s", e.Step, e.Reason)
}

// Unwrap allows errors.Is(err, ErrPhysicalInconsistency).
func (e *InconsistencyError) Unwrap() error { return ErrPhysicalInconsistency }
