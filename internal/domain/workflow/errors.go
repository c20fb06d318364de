package workflow

import "errors"

var (
	// ErrInvalidDefinition is returned when a machine definition is malformed
	ErrInvalidDefinition = errors.New("invalid machine definition")

	// ErrNoInitialState is returned when a machine has no initial state
	ErrNoInitialState = errors.New("machine has no initial state")

	// ErrMultipleInitialStates is returned when a machine has more than one initial state
	ErrMultipleInitialStates = errors.New("machine has more than one initial state")

	// ErrNoFinalState is returned when a machine has no final state
	ErrNoFinalState = errors.New("machine has no final state")

	// ErrInvalidStateKind is returned when a state kind is not initial, normal or final
	ErrInvalidStateKind = errors.New("invalid state kind")

	// ErrDuplicateSlug is returned when a slug is reused within a machine
	ErrDuplicateSlug = errors.New("duplicate slug")

	// ErrForeignState is returned when a transition references a state outside its machine
	ErrForeignState = errors.New("transition references a state of another machine")

	// ErrMachineNotFound is returned when a machine lookup has no result
	ErrMachineNotFound = errors.New("machine not found")

	// ErrStateNotFound is returned when a state lookup has no result
	ErrStateNotFound = errors.New("state not found")

	// ErrTransitionNotFound is returned when a transition lookup has no result
	ErrTransitionNotFound = errors.New("transition not found")

	// ErrGroupNotFound is returned when a group lookup has no result
	ErrGroupNotFound = errors.New("group not found")

	// ErrDuplicateMachine is returned when a machine slug is already registered
	ErrDuplicateMachine = errors.New("machine slug already registered")

	// ErrDuplicateGroup is returned when a group slug is already registered
	ErrDuplicateGroup = errors.New("group slug already registered")

	// ErrMachineHasHistory is returned when deleting a machine that still owns log entries
	ErrMachineHasHistory = errors.New("machine has transition history")

	// ErrAppendConflict is returned when a log append loses an optimistic race:
	// a newer entry exists than the one observed during validation
	ErrAppendConflict = errors.New("transition log append conflict")
)
