package workflow

// StateKind classifies a state within its machine graph
type StateKind string

const (
	KindInitial StateKind = "initial"
	KindNormal  StateKind = "normal"
	KindFinal   StateKind = "final"
)

var validKinds = map[StateKind]bool{
	KindInitial: true,
	KindNormal:  true,
	KindFinal:   true,
}

// String returns the string representation of the kind
func (k StateKind) String() string {
	return string(k)
}

// IsValid returns true if the kind is one of the known kinds
func (k StateKind) IsValid() bool {
	return validKinds[k]
}

// State is one node of a machine's graph. Slugs are unique within a machine only.
type State struct {
	ID        int64     `json:"id"`
	MachineID int64     `json:"machine_id"`
	Slug      string    `json:"slug"`
	Label     string    `json:"label"`
	Kind      StateKind `json:"kind"`
}

// IsInitial returns true if the state is the machine's entry state
func (s *State) IsInitial() bool {
	return s.Kind == KindInitial
}

// IsTerminal returns true if the state is a final state (no further transitions expected)
func (s *State) IsTerminal() bool {
	return s.Kind == KindFinal
}

// DisplayName returns the label, falling back to the slug
func (s *State) DisplayName() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Slug
}
