package registry

import (
	"errors"
	"fmt"
)

// Configuration error codes (E001-E099).
const (
	ErrMissingField     = "E001" // rule without name, type or writer
	ErrDuplicate        = "E002" // rule or canonical registered twice
	ErrBadPattern       = "E003" // pattern text does not parse
	ErrUnknownCapture   = "E004" // rule reads a capture its pattern never binds
	ErrUnknownCanonical = "E005" // rule targets an undefined canonical type
	ErrBadCanonical     = "E006" // canonical arity bounds are inconsistent
	ErrBadArity         = "E007" // pattern boundary arity not allowed by the canonical type
)

// ConfigError reports a rule set that must not be used for conversion.
type ConfigError struct {
	Code    string
	Rule    string // offending rule or canonical name
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("[%s] rule %s: %s", e.Code, e.Rule, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError returns true if err is a ConfigError.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
