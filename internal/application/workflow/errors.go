package workflow

import (
	"errors"
	"fmt"
)

// ErrorClass groups transition errors by how a caller should react
type ErrorClass string

const (
	// ClassRequest marks caller or integration bugs
	ClassRequest ErrorClass = "request"
	// ClassRejection marks expected business outcomes
	ClassRejection ErrorClass = "rejection"
	// ClassInfrastructure marks storage or lock failures; the only retryable class
	ClassInfrastructure ErrorClass = "infrastructure"
	// ClassConfiguration marks broken guard configuration
	ClassConfiguration ErrorClass = "configuration"
)

// Stage is a terminal stage of the validation and execution pipeline
type Stage string

const (
	StageReceived               Stage = "received"
	StageValidated              Stage = "validated"
	StageAuthorized             Stage = "authorized"
	StageCommitted              Stage = "committed"
	StageRejectedInvalidRequest Stage = "rejected_invalid_request"
	StageRejectedStateMismatch  Stage = "rejected_state_mismatch"
	StageRejectedByGuard        Stage = "rejected_by_guard"
	StageFailedPersist          Stage = "failed_persist"
)

// Stable reason codes
const (
	CodeInvalidParams             = "invalid_params"
	CodeMachineNotFound           = "machine_not_found"
	CodeTransitionNotFound        = "transition_not_found"
	CodeTransitionMachineMismatch = "transition_machine_mismatch"
	CodeStateMismatch             = "state_mismatch"
	CodeStateConflict             = "state_conflict"
	CodeGuardFailed               = "guard_failed"
	CodeLogFailed                 = "log_failed"
	CodeDefinitionLookupFailed    = "definition_lookup_failed"
	CodeHistoryLookupFailed       = "history_lookup_failed"
	CodeLockFailed                = "lock_failed"
	CodeUnknownGuardType          = "unknown_guard_type"
	CodeInvalidGuardConfig        = "invalid_guard_config"
	CodeNoCallbackRegistered      = "no_callback_registered"
)

// TransitionError is the typed outcome of a transition that did not commit.
// Data carries the diagnostics a caller needs to render the rejection.
type TransitionError struct {
	Class   ErrorClass
	Code    string
	Stage   Stage
	Message string
	Data    map[string]interface{}
	Err     error
}

func (e *TransitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the same request
func (e *TransitionError) Retryable() bool {
	return e.Class == ClassInfrastructure
}

func requestError(code, message string, err error) *TransitionError {
	return &TransitionError{
		Class:   ClassRequest,
		Code:    code,
		Stage:   StageRejectedInvalidRequest,
		Message: message,
		Err:     err,
	}
}

func infrastructureError(code string, stage Stage, message string, err error) *TransitionError {
	return &TransitionError{
		Class:   ClassInfrastructure,
		Code:    code,
		Stage:   stage,
		Message: message,
		Err:     err,
	}
}

func configurationError(code, message string, err error) *TransitionError {
	return &TransitionError{
		Class:   ClassConfiguration,
		Code:    code,
		Stage:   StageRejectedByGuard,
		Message: message,
		Err:     err,
	}
}

// AsTransitionError extracts a *TransitionError from err
func AsTransitionError(err error) (*TransitionError, bool) {
	var te *TransitionError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// CodeOf returns the reason code of err, or "" for foreign errors
func CodeOf(err error) string {
	if te, ok := AsTransitionError(err); ok {
		return te.Code
	}
	return ""
}

// IsStateMismatch reports whether err rejects a transition because the entity
// is no longer in the transition's from-state
func IsStateMismatch(err error) bool {
	code := CodeOf(err)
	return code == CodeStateMismatch || code == CodeStateConflict
}

// IsGuardFailed reports whether a guard denied the transition
func IsGuardFailed(err error) bool {
	return CodeOf(err) == CodeGuardFailed
}

// IsRequestError reports whether err is a caller bug
func IsRequestError(err error) bool {
	te, ok := AsTransitionError(err)
	return ok && te.Class == ClassRequest
}
