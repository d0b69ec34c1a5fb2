package calculator

import (
	"errors"
	"fmt"
)

var (
	errNotPositive = errors.New("must be positive")
	errTooSmall    = errors.New("must be at least 2")
	errNegative    = errors.New("must be a finite, non-negative number")
)

// ConfigError reports invalid indicator parameters. It is returned before any
// computation takes place.
type ConfigError struct {
	Indicator string
	Field     string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %s: %v", e.Indicator, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func requirePositive(indicator, field string, v int) error {
	if v <= 0 {
		return &ConfigError{Indicator: indicator, Field: field, Err: fmt.Errorf("%w: %d", errNotPositive, v)}
	}
	return nil
}
