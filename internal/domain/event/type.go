package event

// Type identifies the topic of a transition notification
type Type string

const (
	TypeBeforeTransition Type = "before_transition"
	TypeAfterTransition  Type = "after_transition"
	TypeTransitionFailed Type = "transition_failed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeBeforeTransition,
		TypeAfterTransition,
		TypeTransitionFailed:
		return true
	default:
		return false
	}
}

// Payload keys shared by all transition events
const (
	KeyMachineID      = "machine_id"
	KeyMachineSlug    = "machine_slug"
	KeyTransitionID   = "transition_id"
	KeyTransitionSlug = "transition_slug"
	KeyFromStateID    = "from_state_id"
	KeyFromState      = "from_state"
	KeyToStateID      = "to_state_id"
	KeyToState        = "to_state"
	KeyActorID        = "actor_id"
	KeyLogEntryID     = "log_entry_id"
	KeyComment        = "comment"
	KeyMetadata       = "metadata"
	KeyReasonCode     = "reason_code"
	KeyMessage        = "message"
	KeyForced         = "forced"

	// set on transition_failed when a guard denied the transition
	KeyGuard           = "guard"
	KeyGuardReasonCode = "guard_reason_code"
	KeyGuardData       = "guard_data"
)
