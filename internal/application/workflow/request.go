package workflow

import (
	"strings"

	"github.com/garyjia/workflow-engine/internal/application/guard"
	domainwf "github.com/garyjia/workflow-engine/internal/domain/workflow"
)

// TransitionRequest asks the engine to move an entity along a transition.
// The transition is addressed by ID, or by machine slug plus transition slug.
type TransitionRequest struct {
	EntityType     string                 `json:"entity_type"`
	EntityID       string                 `json:"entity_id"`
	TransitionID   int64                  `json:"transition_id,omitempty"`
	MachineSlug    string                 `json:"machine,omitempty"`
	TransitionSlug string                 `json:"transition,omitempty"`
	ActorID        string                 `json:"actor_id"`
	Comment        string                 `json:"comment,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	EntityData     map[string]interface{} `json:"entity_data,omitempty"`
	Context        map[string]interface{} `json:"context,omitempty"`
}

func (r *TransitionRequest) validate() *TransitionError {
	var missing []string
	if strings.TrimSpace(r.EntityType) == "" {
		missing = append(missing, "entity_type")
	}
	if strings.TrimSpace(r.EntityID) == "" {
		missing = append(missing, "entity_id")
	}
	if r.TransitionID <= 0 && (r.MachineSlug == "" || r.TransitionSlug == "") {
		missing = append(missing, "transition_id or machine+transition")
	}
	if len(missing) == 0 {
		return nil
	}
	te := requestError(CodeInvalidParams, "missing required parameters: "+strings.Join(missing, ", "), nil)
	te.Data = map[string]interface{}{"missing": missing}
	return te
}

// ForceRequest moves an entity to any state of a machine without a transition
// definition or guard. It is meant for administrative corrections.
type ForceRequest struct {
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Machine    domainwf.MachineRef    `json:"-"`
	ToState    string                 `json:"to_state"`
	ActorID    string                 `json:"actor_id"`
	Comment    string                 `json:"comment,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Validation is the resolved outcome of a successful CanTransition
type Validation struct {
	Machine    *domainwf.Machine
	Transition *domainwf.Transition
	FromState  *domainwf.State // nil when the entity has no history in the machine
	ToState    *domainwf.State
	Latest     *domainwf.LogEntry
	Guard      *guard.Result // nil when the transition has no guard
	Stage      Stage
}

// Result describes a committed transition
type Result struct {
	Entry      *domainwf.LogEntry   `json:"entry"`
	Machine    *domainwf.Machine    `json:"machine"`
	Transition *domainwf.Transition `json:"transition,omitempty"`
	FromState  *domainwf.State      `json:"from_state,omitempty"`
	ToState    *domainwf.State      `json:"to_state"`
	Guard      *guard.Result        `json:"guard,omitempty"`
}

// AvailableQuery selects the actionable transitions of an entity
type AvailableQuery struct {
	EntityType string
	EntityID   string
	Machine    domainwf.MachineRef
	ActorID    string                 // empty disables guard filtering
	EntityData map[string]interface{} // handed to guards such as OwnerGuard
	Context    map[string]interface{} // handed to guards as Input.Extra, as on apply
}

// AvailableTransition is a transition leaving the entity's current state
type AvailableTransition struct {
	Transition *domainwf.Transition `json:"transition"`
	ToState    *domainwf.State      `json:"to_state"`
}

// StateView is an entity's derived current state
type StateView struct {
	Machine *domainwf.Machine  `json:"machine"`
	State   *domainwf.State    `json:"state"` // nil when the entity has no history
	Entry   *domainwf.LogEntry `json:"entry,omitempty"`
}

// HistoryItem is a log entry enriched with display labels
type HistoryItem struct {
	Entry           *domainwf.LogEntry `json:"entry"`
	MachineSlug     string             `json:"machine"`
	FromState       string             `json:"from_state,omitempty"`
	FromLabel       string             `json:"from_label,omitempty"`
	ToState         string             `json:"to_state"`
	ToLabel         string             `json:"to_label"`
	TransitionSlug  string             `json:"transition,omitempty"`
	TransitionLabel string             `json:"transition_label,omitempty"`
}
