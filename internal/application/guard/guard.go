// Package guard implements pluggable authorization checks evaluated before a
// transition is committed, and the factory that builds them from compact
// "GuardType:param1,param2" configuration strings.
package guard

import "context"

// Reason codes reported by the built-in guards
const (
	ReasonAllowed               = "allowed"
	ReasonInsufficientRole      = "insufficient_role"
	ReasonMissingCapability     = "missing_capability"
	ReasonNotOwner              = "not_owner"
	ReasonMissingEntityData     = "missing_entity_data"
	ReasonOwnerFieldNotFound    = "owner_field_not_found"
	ReasonNoCallbackRegistered  = "no_callback_registered"
	ReasonInvalidCallbackResult = "invalid_callback_result"
	ReasonCallbackError         = "callback_error"
	ReasonAuthorizationError    = "authorization_error"
	ReasonNotConfigured         = "guard_not_configured"
)

// Guard is one authorization strategy. A guard is configured exactly once and
// is immutable and safe for concurrent use afterwards.
type Guard interface {
	// Name returns the type name used in configuration strings
	Name() string

	// Description returns a human readable summary of the configured check
	Description() string

	// Configure applies the parameters parsed from the configuration string
	Configure(params []string) error

	// ValidateConfig reports every problem with params without configuring
	ValidateConfig(params []string) []error

	// Check evaluates the guard for an actor acting on an entity
	Check(ctx context.Context, entityID, actorID string, in Input) Result
}

// Input is the context handed to a guard
type Input struct {
	EntityType     string                 `json:"entity_type"`
	EntityData     map[string]interface{} `json:"entity_data,omitempty"`
	MachineSlug    string                 `json:"machine_slug"`
	TransitionSlug string                 `json:"transition_slug"`
	Extra          map[string]interface{} `json:"extra,omitempty"`
}

// Result is the outcome of a guard check
type Result struct {
	Allowed    bool                   `json:"allowed" mapstructure:"allowed"`
	ReasonCode string                 `json:"reason_code" mapstructure:"reason_code"`
	Message    string                 `json:"message" mapstructure:"message"`
	Data       map[string]interface{} `json:"data,omitempty" mapstructure:"data"`
}

// Allow builds a passing result
func Allow(message string) Result {
	return Result{Allowed: true, ReasonCode: ReasonAllowed, Message: message}
}

// Deny builds a failing result
func Deny(reasonCode, message string, data map[string]interface{}) Result {
	return Result{Allowed: false, ReasonCode: reasonCode, Message: message, Data: data}
}
