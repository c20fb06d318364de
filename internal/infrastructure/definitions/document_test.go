package definitions

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/garyjia/workflow-engine/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderFlowYAML = `
machine:
  slug: order-flow
  module: sales
  entity_type: order
  label: Orders
states:
  - {slug: draft, kind: initial, label: Draft}
  - {slug: submitted, kind: normal}
  - {slug: approved, kind: final}
  - {slug: rejected, kind: final}
transitions:
  - {slug: submit, from: draft, to: submitted, label: Submit}
  - {slug: approve, from: submitted, to: approved, guard: "RoleGuard:manager"}
  - slug: reject
    from: submitted
    to: rejected
    metadata:
      color: red
---
machine:
  slug: tiny
  entity_type: note
  active: false
states:
  - {slug: open, kind: initial}
  - {slug: done, kind: final}
transitions:
  - {slug: finish, from: open, to: done}
`

func TestDecodeAndBuild(t *testing.T) {
	docs, err := Decode(strings.NewReader(orderFlowYAML))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	def, err := docs[0].Build()
	require.NoError(t, err)
	assert.Equal(t, "order-flow", def.Machine.Slug)
	assert.True(t, def.Machine.Active)
	require.Len(t, def.States, 4)
	require.Len(t, def.Transitions, 3)

	approve := def.Transitions[1]
	assert.Equal(t, "RoleGuard:manager", approve.GuardConfig)
	assert.Equal(t, "approve", approve.Label)
	assert.Equal(t, "red", def.Transitions[2].Metadata["color"])

	initial, err := def.InitialState()
	require.NoError(t, err)
	assert.Equal(t, "draft", initial.Slug)

	tiny, err := docs[1].Build()
	require.NoError(t, err)
	assert.False(t, tiny.Machine.Active)
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("machine: {slug: x, entity_type: y}\nstatez: []\n"))
	assert.Error(t, err)
}

func TestBuild_InvalidDefinition(t *testing.T) {
	doc := &Document{
		Machine: MachineDoc{Slug: "broken", EntityType: "x"},
		States:  []StateDoc{{Slug: "a", Kind: "normal"}, {Slug: "b", Kind: "final"}},
		Transitions: []TransitionDoc{
			{Slug: "go", From: "a", To: "b"},
		},
	}
	_, err := doc.Build()
	assert.ErrorIs(t, err, workflow.ErrNoInitialState)
}

func TestRoundTripThroughDefinition(t *testing.T) {
	docs, err := Decode(strings.NewReader(orderFlowYAML))
	require.NoError(t, err)
	def, err := docs[0].Build()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FromDefinition(def)))

	again, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "submitted", again[0].Transitions[1].From)
	assert.Equal(t, "approved", again[0].Transitions[1].To)

	rebuilt, err := again[0].Build()
	require.NoError(t, err)
	assert.Equal(t, def.Transitions, rebuilt.Transitions)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01-orders.yaml"), []byte(orderFlowYAML), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("skip"), 0644))

	defs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "tiny", defs[1].Machine.Slug)

	_, err = LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestLoadDir_ShippedDefinitions(t *testing.T) {
	defs, err := LoadDir(filepath.Join("..", "..", "..", "configs", "definitions"))
	require.NoError(t, err)
	require.NotEmpty(t, defs)
	for _, def := range defs {
		assert.NoError(t, def.Validate(), def.Machine.Slug)
	}
}
