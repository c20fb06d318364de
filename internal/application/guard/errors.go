package guard

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyConfig is returned when a configuration string has no guard type
	ErrEmptyConfig = errors.New("guard config has no type")

	// ErrUnknownGuardType is returned when a configuration names an unregistered type
	ErrUnknownGuardType = errors.New("unknown guard type")

	// ErrInvalidGuardConfig is returned when a guard rejects its parameters
	ErrInvalidGuardConfig = errors.New("invalid guard config")

	// ErrAlreadyConfigured is returned when Configure is called twice
	ErrAlreadyConfigured = errors.New("guard already configured")

	// ErrGuardTypeExists is returned when registering a type name twice
	ErrGuardTypeExists = errors.New("guard type already registered")

	// ErrNoCallbackRegistered is returned when a callback name has no handler
	ErrNoCallbackRegistered = errors.New("no callback registered")

	// ErrInvalidCallbackResult is returned when a handler's output is malformed
	ErrInvalidCallbackResult = errors.New("invalid callback result")
)

// UnknownGuardTypeError lists the known types for discoverability
type UnknownGuardTypeError struct {
	Type  string
	Known []string
}

func (e *UnknownGuardTypeError) Error() string {
	return fmt.Sprintf("unknown guard type %q (known types: %s)", e.Type, strings.Join(e.Known, ", "))
}

func (e *UnknownGuardTypeError) Unwrap() error {
	return ErrUnknownGuardType
}

// InvalidConfigError carries every validation problem of one configuration
type InvalidConfigError struct {
	Config string
	Errs   []error
}

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid guard config %q: %s", e.Config, strings.Join(msgs, "; "))
}

func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidGuardConfig}, e.Errs...)
}
