package workflow

import (
	"errors"
	"testing"
)

func orderFlow() DefinitionBuilder {
	b := NewBuilder(Machine{Slug: "order-flow", Module: "shop", EntityType: "order", Active: true})
	b.State("draft", KindInitial).
		State("submitted", KindNormal).
		State("approved", KindFinal).
		State("rejected", KindFinal)

	b.Configure("draft").Permit("submit", "submitted")
	b.Configure("submitted").
		PermitIf("approve", "approved", "RoleGuard:manager").
		Permit("reject", "rejected")
	return b
}

func TestStateKind_IsValid(t *testing.T) {
	tests := []struct {
		kind     StateKind
		expected bool
	}{
		{KindInitial, true},
		{KindNormal, true},
		{KindFinal, true},
		{StateKind("terminal"), false},
		{StateKind(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.IsValid(); got != tt.expected {
				t.Errorf("StateKind.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{State{Slug: "draft", Kind: KindInitial}, false},
		{State{Slug: "submitted", Kind: KindNormal}, false},
		{State{Slug: "approved", Kind: KindFinal}, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.Slug, func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuilder_Build(t *testing.T) {
	def, err := orderFlow().Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	if len(def.States) != 4 {
		t.Errorf("Build() returned %d states, want 4", len(def.States))
	}
	if len(def.Transitions) != 3 {
		t.Errorf("Build() returned %d transitions, want 3", len(def.Transitions))
	}

	initial, err := def.InitialState()
	if err != nil {
		t.Fatalf("InitialState() failed: %v", err)
	}
	if initial.Slug != "draft" {
		t.Errorf("InitialState() = %s, want draft", initial.Slug)
	}

	submitted, _ := def.StateBySlug("submitted")
	for _, tr := range def.Transitions {
		if tr.Slug == "submit" && tr.ToStateID != submitted.ID {
			t.Errorf("submit.ToStateID = %d, want %d", tr.ToStateID, submitted.ID)
		}
		if tr.Slug == "approve" && tr.GuardConfig != "RoleGuard:manager" {
			t.Errorf("approve.GuardConfig = %q", tr.GuardConfig)
		}
		if tr.Label == "" {
			t.Errorf("transition %s has no label", tr.Slug)
		}
	}
}

func TestBuilder_Labeled(t *testing.T) {
	b := NewBuilder(Machine{Slug: "doc", EntityType: "document"})
	b.State("open", KindInitial).State("closed", KindFinal)
	b.Configure("open").Permit("close", "closed").Labeled("Close document")

	def, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if def.Transitions[0].Label != "Close document" {
		t.Errorf("Label = %q, want %q", def.Transitions[0].Label, "Close document")
	}
}

func TestBuilder_UnknownTargetState(t *testing.T) {
	b := NewBuilder(Machine{Slug: "doc", EntityType: "document"})
	b.State("open", KindInitial).State("closed", KindFinal)
	b.Configure("open").Permit("archive", "archived")

	_, err := b.Build()
	if !errors.Is(err, ErrStateNotFound) {
		t.Errorf("Build() error = %v, want %v", err, ErrStateNotFound)
	}
}

func TestBuilder_DuplicateState(t *testing.T) {
	b := NewBuilder(Machine{Slug: "doc", EntityType: "document"})
	b.State("open", KindInitial).State("open", KindNormal).State("closed", KindFinal)

	_, err := b.Build()
	if !errors.Is(err, ErrDuplicateSlug) {
		t.Errorf("Build() error = %v, want %v", err, ErrDuplicateSlug)
	}
}

func TestDefinition_Validate(t *testing.T) {
	base := func() *Definition {
		def, err := orderFlow().Build()
		if err != nil {
			t.Fatalf("Build() failed: %v", err)
		}
		return def
	}

	tests := []struct {
		name    string
		mutate  func(d *Definition)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(d *Definition) {},
		},
		{
			name: "no initial state",
			mutate: func(d *Definition) {
				d.States[0].Kind = KindNormal
			},
			wantErr: ErrNoInitialState,
		},
		{
			name: "two initial states",
			mutate: func(d *Definition) {
				d.States[1].Kind = KindInitial
			},
			wantErr: ErrMultipleInitialStates,
		},
		{
			name: "no final state",
			mutate: func(d *Definition) {
				d.States[2].Kind = KindNormal
				d.States[3].Kind = KindNormal
			},
			wantErr: ErrNoFinalState,
		},
		{
			name: "bad kind",
			mutate: func(d *Definition) {
				d.States[1].Kind = StateKind("paused")
			},
			wantErr: ErrInvalidStateKind,
		},
		{
			name: "foreign state",
			mutate: func(d *Definition) {
				d.Transitions[0].ToStateID = 999
			},
			wantErr: ErrForeignState,
		},
		{
			name: "duplicate transition slug",
			mutate: func(d *Definition) {
				d.Transitions[1].Slug = d.Transitions[0].Slug
			},
			wantErr: ErrDuplicateSlug,
		},
		{
			name: "missing entity type",
			mutate: func(d *Definition) {
				d.Machine.EntityType = ""
			},
			wantErr: ErrInvalidDefinition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := base()
			tt.mutate(def)

			err := def.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefinition_ParallelTransitionsBetweenSameStates(t *testing.T) {
	b := NewBuilder(Machine{Slug: "expense", EntityType: "expense"})
	b.State("pending", KindInitial).State("approved", KindFinal)
	b.Configure("pending").
		PermitIf("approve", "approved", "RoleGuard:manager").
		PermitIf("emergency-approve", "approved", "CapabilityGuard:override_approvals")

	def, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if len(def.Transitions) != 2 {
		t.Errorf("expected 2 transitions between the same pair, got %d", len(def.Transitions))
	}
}

func TestParseMachineRef(t *testing.T) {
	tests := []struct {
		in   string
		want MachineRef
	}{
		{"42", MachineRef{ID: 42}},
		{"order-flow", MachineRef{Slug: "order-flow"}},
		{" order-flow ", MachineRef{Slug: "order-flow"}},
		{"0", MachineRef{Slug: "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseMachineRef(tt.in); got != tt.want {
				t.Errorf("ParseMachineRef(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogEntry_Sequence(t *testing.T) {
	var nilEntry *LogEntry
	if nilEntry.Sequence() != 0 {
		t.Error("nil entry should have sequence 0")
	}

	entry := &LogEntry{ID: 7, ToStateID: 2}
	if entry.Sequence() != 7 {
		t.Errorf("Sequence() = %d, want 7", entry.Sequence())
	}
	if !entry.IsFirst() || !entry.IsForced() {
		t.Error("entry without from-state and transition should be first and forced")
	}
}

func TestLogEntry_Clone(t *testing.T) {
	from := int64(1)
	entry := &LogEntry{
		ID:          3,
		FromStateID: &from,
		ToStateID:   2,
		Metadata: map[string]interface{}{
			"nested": map[string]interface{}{"k": "v"},
			"list":   []interface{}{"a"},
		},
	}

	c := entry.Clone()
	c.Metadata["nested"].(map[string]interface{})["k"] = "changed"
	c.Metadata["list"].([]interface{})[0] = "changed"
	*c.FromStateID = 9

	if got := entry.Metadata["nested"].(map[string]interface{})["k"]; got != "v" {
		t.Errorf("nested metadata = %v, want v", got)
	}
	if got := entry.Metadata["list"].([]interface{})[0]; got != "a" {
		t.Errorf("list metadata = %v, want a", got)
	}
	if *entry.FromStateID != 1 {
		t.Errorf("FromStateID = %d, want 1", *entry.FromStateID)
	}

	var nilEntry *LogEntry
	if nilEntry.Clone() != nil {
		t.Error("clone of nil entry should be nil")
	}
}
