package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/workflow-engine/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docDefinition(t *testing.T, slug string) *workflow.Definition {
	t.Helper()
	b := workflow.NewBuilder(workflow.Machine{Slug: slug, EntityType: "document", Active: true})
	b.State("draft", workflow.KindInitial).State("published", workflow.KindFinal)
	b.Configure("draft").Permit("publish", "published")
	def, err := b.Build()
	require.NoError(t, err)
	return def
}

func TestDefinitionRepository_SaveRemapsIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewDefinitionRepository()

	_, err := repo.SaveDefinition(ctx, docDefinition(t, "first"))
	require.NoError(t, err)

	saved, err := repo.SaveDefinition(ctx, docDefinition(t, "second"))
	require.NoError(t, err)

	states, err := repo.StatesByMachine(ctx, saved.Machine.ID)
	require.NoError(t, err)
	require.Len(t, states, 2)

	tr, err := repo.GetTransitionBySlug(ctx, saved.Machine.ID, "publish")
	require.NoError(t, err)
	assert.Equal(t, states[0].ID, tr.FromStateID)
	assert.Equal(t, states[1].ID, tr.ToStateID)
	assert.Equal(t, saved.Machine.ID, states[0].MachineID)

	_, err = repo.SaveDefinition(ctx, docDefinition(t, "second"))
	assert.ErrorIs(t, err, workflow.ErrDuplicateMachine)
}

func TestDefinitionRepository_DeleteMachine(t *testing.T) {
	ctx := context.Background()
	repo := NewDefinitionRepository()
	saved, err := repo.SaveDefinition(ctx, docDefinition(t, "doc"))
	require.NoError(t, err)

	require.NoError(t, repo.DeleteMachine(ctx, saved.Machine.ID))

	_, err = repo.GetMachineBySlug(ctx, "doc")
	assert.ErrorIs(t, err, workflow.ErrMachineNotFound)
	_, err = repo.GetTransition(ctx, saved.Transitions[0].ID)
	assert.ErrorIs(t, err, workflow.ErrTransitionNotFound)
	assert.ErrorIs(t, repo.DeleteMachine(ctx, saved.Machine.ID), workflow.ErrMachineNotFound)
}

func TestDefinitionRepository_Groups(t *testing.T) {
	ctx := context.Background()
	repo := NewDefinitionRepository()

	require.NoError(t, repo.CreateGroup(ctx, &workflow.Group{Name: "B", Slug: "b", DisplayOrder: 2}))
	require.NoError(t, repo.CreateGroup(ctx, &workflow.Group{Name: "A", Slug: "a", DisplayOrder: 1}))
	assert.ErrorIs(t, repo.CreateGroup(ctx, &workflow.Group{Slug: "a"}), workflow.ErrDuplicateGroup)

	groups, err := repo.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "a", groups[0].Slug)

	def := docDefinition(t, "grouped")
	missing := int64(999)
	def.Machine.GroupID = &missing
	_, err = repo.SaveDefinition(ctx, def)
	assert.ErrorIs(t, err, workflow.ErrGroupNotFound)
}

func TestHistoryStore_AppendPrecondition(t *testing.T) {
	ctx := context.Background()
	h := NewHistoryStore()

	latest, err := h.LatestEntry(ctx, "document", "1", 1)
	require.NoError(t, err)
	assert.Nil(t, latest)

	first, err := h.AppendEntry(ctx, &workflow.LogEntry{MachineID: 1, EntityType: "document", EntityID: "1", ToStateID: 10}, 0)
	require.NoError(t, err)

	_, err = h.AppendEntry(ctx, &workflow.LogEntry{MachineID: 1, EntityType: "document", EntityID: "1", ToStateID: 11}, 0)
	assert.True(t, errors.Is(err, workflow.ErrAppendConflict))

	second, err := h.AppendEntry(ctx, &workflow.LogEntry{MachineID: 1, EntityType: "document", EntityID: "1", ToStateID: 11}, first)
	require.NoError(t, err)
	assert.Greater(t, second, first)

	// other entities and machines are independent
	_, err = h.AppendEntry(ctx, &workflow.LogEntry{MachineID: 2, EntityType: "document", EntityID: "1", ToStateID: 20}, 0)
	require.NoError(t, err)

	latest, err = h.LatestEntry(ctx, "document", "1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(11), latest.ToStateID)
	assert.False(t, latest.CreatedAt.IsZero())
}

func TestHistoryStore_HistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	h := NewHistoryStore()

	var seq int64
	for i := int64(1); i <= 3; i++ {
		id, err := h.AppendEntry(ctx, &workflow.LogEntry{MachineID: 1, EntityType: "order", EntityID: "7", ToStateID: i}, seq)
		require.NoError(t, err)
		seq = id
	}

	all, err := h.History(ctx, workflow.HistoryQuery{EntityType: "order", EntityID: "7"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].ToStateID)
	assert.Equal(t, int64(1), all[2].ToStateID)

	capped, err := h.History(ctx, workflow.HistoryQuery{EntityType: "order", EntityID: "7", Limit: 1})
	require.NoError(t, err)
	require.Len(t, capped, 1)
	assert.Equal(t, int64(3), capped[0].ToStateID)

	n, err := h.CountByMachine(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, h.DeleteByMachine(ctx, 1))
	n, _ = h.CountByMachine(ctx, 1)
	assert.Zero(t, n)
}

func TestHistoryStore_EntriesAreIsolated(t *testing.T) {
	ctx := context.Background()
	h := NewHistoryStore()

	entry := &workflow.LogEntry{
		MachineID:  1,
		EntityType: "document",
		EntityID:   "1",
		ToStateID:  10,
		Metadata:   map[string]interface{}{"note": "original", "tags": map[string]interface{}{"k": "v"}},
	}
	_, err := h.AppendEntry(ctx, entry, 0)
	require.NoError(t, err)

	entry.Metadata["note"] = "changed by writer"
	entry.Metadata["tags"].(map[string]interface{})["k"] = "changed"

	latest, err := h.LatestEntry(ctx, "document", "1", 1)
	require.NoError(t, err)
	assert.Equal(t, "original", latest.Metadata["note"])
	assert.Equal(t, "v", latest.Metadata["tags"].(map[string]interface{})["k"])

	latest.Metadata["note"] = "changed by reader"
	all, err := h.History(ctx, workflow.HistoryQuery{EntityType: "document", EntityID: "1"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "original", all[0].Metadata["note"])

	all[0].Metadata["note"] = "changed by history reader"
	latest, err = h.LatestEntry(ctx, "document", "1", 1)
	require.NoError(t, err)
	assert.Equal(t, "original", latest.Metadata["note"])
}
