package workflow

import "time"

// LogEntry is one immutable record of an executed transition.
// ID is the monotonic insertion sequence and is the authoritative order;
// CreatedAt is advisory.
type LogEntry struct {
	ID           int64                  `json:"id"`
	MachineID    int64                  `json:"machine_id"`
	EntityType   string                 `json:"entity_type"`
	EntityID     string                 `json:"entity_id"`
	FromStateID  *int64                 `json:"from_state_id"`
	ToStateID    int64                  `json:"to_state_id"`
	TransitionID *int64                 `json:"transition_id"`
	ActorID      string                 `json:"actor_id"`
	Comment      string                 `json:"comment,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// IsFirst returns true if the entry created the entity inside its machine
func (e *LogEntry) IsFirst() bool {
	return e.FromStateID == nil
}

// IsForced returns true if the entry was written without a transition definition
func (e *LogEntry) IsForced() bool {
	return e.TransitionID == nil
}

// Sequence returns the entry's position in the log, or 0 for a nil entry.
// Appends use it as the optimistic precondition.
func (e *LogEntry) Sequence() int64 {
	if e == nil {
		return 0
	}
	return e.ID
}

// Clone returns a copy of the entry that shares no mutable state with it
func (e *LogEntry) Clone() *LogEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.FromStateID != nil {
		c.FromStateID = Int64Ptr(*e.FromStateID)
	}
	if e.TransitionID != nil {
		c.TransitionID = Int64Ptr(*e.TransitionID)
	}
	c.Metadata = CloneMetadata(e.Metadata)
	return &c
}

// CloneMetadata deep-copies nested maps and slices; other values are copied as is
func CloneMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return CloneMetadata(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}
	return v
}

// HistoryQuery selects log entries of one entity
type HistoryQuery struct {
	EntityType string
	EntityID   string
	MachineID  int64 // 0 matches every machine
	Limit      int   // 0 means no limit
}

// Int64Ptr returns a pointer to v
func Int64Ptr(v int64) *int64 {
	return &v
}
