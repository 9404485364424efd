package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig means the raw configuration could not be parsed at all
	// or a number is outside of its allowed range.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrMissingData means a required field, thread or CAPTCHA detail is absent.
	ErrMissingData = errors.New("missing data")
	// ErrInvalidType means a field is present but of the wrong type.
	ErrInvalidType = errors.New("invalid type")
)

// ConfigError is returned by Validate and Configuration.Check, it unwraps to
// one of ErrInvalidConfig, ErrMissingData or ErrInvalidType.
type ConfigError struct {
	Kind    error
	Message string
	// Field is the offending field for ErrInvalidType and out of range values.
	Field string
	// Index is the 1-based thread index for a thread with missing data, 0 otherwise.
	Index int
}

func (e *ConfigError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("config: %s: %s (%s)", e.Kind, e.Message, e.Field)
	case e.Index > 0:
		return fmt.Sprintf("config: %s: %s (thread %d)", e.Kind, e.Message, e.Index)
	default:
		return fmt.Sprintf("config: %s: %s", e.Kind, e.Message)
	}
}

func (e *ConfigError) Unwrap() error {
	return e.Kind
}

func invalidConfig(message string) error {
	return &ConfigError{Kind: ErrInvalidConfig, Message: message}
}

func missingData(message string) error {
	return &ConfigError{Kind: ErrMissingData, Message: message}
}

func missingThreadData(index int) error {
	return &ConfigError{
		Kind:    ErrMissingData,
		Message: fmt.Sprintf("Missing data in thread %d", index),
		Index:   index,
	}
}

func invalidType(field string) error {
	return &ConfigError{Kind: ErrInvalidType, Message: "Incorrect type", Field: field}
}

func outOfRange(field string) error {
	return &ConfigError{Kind: ErrInvalidConfig, Message: "Value out of range", Field: field}
}
