package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

// Event is a transition notification published on the event bus
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	EntityType    string                 `json:"entity_type"`
	EntityID      string                 `json:"entity_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new event with a generated ID and a fresh correlation ID
func NewEvent(eventType Type, entityType, entityID string, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, entityType, entityID, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain.
// The before/after (or failed) events of one transition share a correlation ID.
func NewEventWithCorrelation(eventType Type, entityType, entityID string, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		EntityType:    entityType,
		EntityID:      entityID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	clone := *e
	clone.Payload = newPayload
	return &clone
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case *int64:
			if v != nil {
				return *v
			}
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}

// TransitionNotice is the typed view of before_transition and after_transition payloads
type TransitionNotice struct {
	EntityType     string                 `mapstructure:"-"`
	EntityID       string                 `mapstructure:"-"`
	MachineID      int64                  `mapstructure:"machine_id"`
	MachineSlug    string                 `mapstructure:"machine_slug"`
	TransitionID   *int64                 `mapstructure:"transition_id"`
	TransitionSlug string                 `mapstructure:"transition_slug"`
	FromStateID    *int64                 `mapstructure:"from_state_id"`
	FromState      string                 `mapstructure:"from_state"`
	ToStateID      int64                  `mapstructure:"to_state_id"`
	ToState        string                 `mapstructure:"to_state"`
	ActorID        string                 `mapstructure:"actor_id"`
	LogEntryID     int64                  `mapstructure:"log_entry_id"`
	Comment        string                 `mapstructure:"comment"`
	Metadata       map[string]interface{} `mapstructure:"metadata"`
	Forced         bool                   `mapstructure:"forced"`
}

// FailureNotice is the typed view of transition_failed payloads
type FailureNotice struct {
	EntityType     string                 `mapstructure:"-"`
	EntityID       string                 `mapstructure:"-"`
	MachineID      int64                  `mapstructure:"machine_id"`
	TransitionID   *int64                 `mapstructure:"transition_id"`
	TransitionSlug string                 `mapstructure:"transition_slug"`
	ActorID        string                 `mapstructure:"actor_id"`
	ReasonCode     string                 `mapstructure:"reason_code"`
	Message        string                 `mapstructure:"message"`
	Metadata       map[string]interface{} `mapstructure:"metadata"`

	// Guard fields are empty unless a guard denied the transition
	Guard           string                 `mapstructure:"guard"`
	GuardReasonCode string                 `mapstructure:"guard_reason_code"`
	GuardData       map[string]interface{} `mapstructure:"guard_data"`
}

// DecodeTransition decodes the payload of a before/after event
func (e *Event) DecodeTransition() (*TransitionNotice, error) {
	if e.Type != TypeBeforeTransition && e.Type != TypeAfterTransition {
		return nil, fmt.Errorf("event %s is not a transition event", e.Type)
	}
	var notice TransitionNotice
	if err := decode(e.Payload, &notice); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	notice.EntityType = e.EntityType
	notice.EntityID = e.EntityID
	return &notice, nil
}

// DecodeFailure decodes the payload of a transition_failed event
func (e *Event) DecodeFailure() (*FailureNotice, error) {
	if e.Type != TypeTransitionFailed {
		return nil, fmt.Errorf("event %s is not a failure event", e.Type)
	}
	var notice FailureNotice
	if err := decode(e.Payload, &notice); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	notice.EntityType = e.EntityType
	notice.EntityID = e.EntityID
	return &notice, nil
}

func decode(input map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
