package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/garyjia/workflow-engine/internal/domain/workflow"
	"github.com/garyjia/workflow-engine/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), database.Config{Path: filepath.Join(t.TempDir(), "workflow.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ticketDefinition(t *testing.T, slug string) *workflow.Definition {
	t.Helper()
	b := workflow.NewBuilder(workflow.Machine{Slug: slug, Module: "support", EntityType: "ticket", Label: "Tickets", Active: true})
	b.State("open", workflow.KindInitial, "Open").
		State("closed", workflow.KindFinal, "Closed")
	b.Configure("open").
		PermitIf("close", "closed", "RoleGuard:agent").
		Labeled("Close").
		WithMetadata(map[string]interface{}{"color": "green"})
	def, err := b.Build()
	require.NoError(t, err)
	return def
}

func TestDefinitionRepository_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewDefinitionRepository(openTestDB(t), zap.NewNop())

	saved, err := repo.SaveDefinition(ctx, ticketDefinition(t, "tickets"))
	require.NoError(t, err)
	require.NotZero(t, saved.Machine.ID)

	machine, err := repo.GetMachineBySlug(ctx, "tickets")
	require.NoError(t, err)
	assert.Equal(t, saved.Machine, *machine)

	states, err := repo.StatesByMachine(ctx, machine.ID)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, workflow.KindInitial, states[0].Kind)

	tr, err := repo.GetTransitionBySlug(ctx, machine.ID, "close")
	require.NoError(t, err)
	assert.Equal(t, states[0].ID, tr.FromStateID)
	assert.Equal(t, states[1].ID, tr.ToStateID)
	assert.Equal(t, "RoleGuard:agent", tr.GuardConfig)
	assert.Equal(t, "green", tr.Metadata["color"])

	_, err = repo.SaveDefinition(ctx, ticketDefinition(t, "tickets"))
	assert.ErrorIs(t, err, workflow.ErrDuplicateMachine)

	_, err = repo.GetState(ctx, 12345)
	assert.ErrorIs(t, err, workflow.ErrStateNotFound)
	_, err = repo.GetTransition(ctx, 12345)
	assert.ErrorIs(t, err, workflow.ErrTransitionNotFound)
}

func TestDefinitionRepository_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	repo := NewDefinitionRepository(openTestDB(t), zap.NewNop())

	saved, err := repo.SaveDefinition(ctx, ticketDefinition(t, "tickets"))
	require.NoError(t, err)

	require.NoError(t, repo.DeleteMachine(ctx, saved.Machine.ID))

	_, err = repo.GetMachine(ctx, saved.Machine.ID)
	assert.ErrorIs(t, err, workflow.ErrMachineNotFound)
	states, err := repo.StatesByMachine(ctx, saved.Machine.ID)
	require.NoError(t, err)
	assert.Empty(t, states)
	assert.ErrorIs(t, repo.DeleteMachine(ctx, saved.Machine.ID), workflow.ErrMachineNotFound)
}

func TestDefinitionRepository_Groups(t *testing.T) {
	ctx := context.Background()
	repo := NewDefinitionRepository(openTestDB(t), zap.NewNop())

	support := &workflow.Group{Name: "Support", Slug: "support", DisplayOrder: 2, Active: true}
	require.NoError(t, repo.CreateGroup(ctx, support))
	require.NoError(t, repo.CreateGroup(ctx, &workflow.Group{Name: "Sales", Slug: "sales", DisplayOrder: 1}))
	assert.ErrorIs(t, repo.CreateGroup(ctx, &workflow.Group{Name: "Dup", Slug: "sales"}), workflow.ErrDuplicateGroup)

	groups, err := repo.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "sales", groups[0].Slug)

	def := ticketDefinition(t, "grouped")
	def.Machine.GroupID = &support.ID
	saved, err := repo.SaveDefinition(ctx, def)
	require.NoError(t, err)
	require.NotNil(t, saved.Machine.GroupID)

	missing := int64(999)
	def = ticketDefinition(t, "orphan")
	def.Machine.GroupID = &missing
	_, err = repo.SaveDefinition(ctx, def)
	assert.ErrorIs(t, err, workflow.ErrGroupNotFound)
}

func TestHistoryRepository_AppendAndQuery(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	defs := NewDefinitionRepository(db, zap.NewNop())
	history := NewHistoryRepository(db, zap.NewNop())

	saved, err := defs.SaveDefinition(ctx, ticketDefinition(t, "tickets"))
	require.NoError(t, err)
	open, closed := saved.States[0].ID, saved.States[1].ID

	latest, err := history.LatestEntry(ctx, "ticket", "T-1", saved.Machine.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	first, err := history.AppendEntry(ctx, &workflow.LogEntry{
		MachineID: saved.Machine.ID, EntityType: "ticket", EntityID: "T-1",
		ToStateID: open, ActorID: "u1",
	}, 0)
	require.NoError(t, err)

	_, err = history.AppendEntry(ctx, &workflow.LogEntry{
		MachineID: saved.Machine.ID, EntityType: "ticket", EntityID: "T-1",
		ToStateID: open, ActorID: "u2",
	}, 0)
	assert.ErrorIs(t, err, workflow.ErrAppendConflict)

	second, err := history.AppendEntry(ctx, &workflow.LogEntry{
		MachineID: saved.Machine.ID, EntityType: "ticket", EntityID: "T-1",
		FromStateID: &open, ToStateID: closed, TransitionID: &saved.Transitions[0].ID,
		ActorID: "u1", Comment: "done", Metadata: map[string]interface{}{"source": "api"},
	}, first)
	require.NoError(t, err)
	assert.Greater(t, second, first)

	latest, err = history.LatestEntry(ctx, "ticket", "T-1", saved.Machine.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second, latest.ID)
	assert.Equal(t, open, *latest.FromStateID)
	assert.Equal(t, "api", latest.Metadata["source"])
	assert.False(t, latest.CreatedAt.IsZero())

	entries, err := history.History(ctx, workflow.HistoryQuery{EntityType: "ticket", EntityID: "T-1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second, entries[0].ID)
	assert.True(t, entries[1].IsFirst())

	entries, err = history.History(ctx, workflow.HistoryQuery{EntityType: "ticket", EntityID: "T-1", MachineID: saved.Machine.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, second, entries[0].ID)

	n, err := history.CountByMachine(ctx, saved.Machine.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, history.DeleteByMachine(ctx, saved.Machine.ID))
	n, err = history.CountByMachine(ctx, saved.Machine.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHistoryRepository_ConcurrentAppendsOneWins(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	defs := NewDefinitionRepository(db, zap.NewNop())
	history := NewHistoryRepository(db, zap.NewNop())

	saved, err := defs.SaveDefinition(ctx, ticketDefinition(t, "tickets"))
	require.NoError(t, err)

	const workers = 6
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := history.AppendEntry(ctx, &workflow.LogEntry{
				MachineID: saved.Machine.ID, EntityType: "ticket", EntityID: "T-9",
				ToStateID: saved.States[0].ID, ActorID: "u1",
			}, 0)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, workflow.ErrAppendConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)
}

func TestDB_WithTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	defs := NewDefinitionRepository(db, zap.NewNop())

	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		if err := defs.CreateGroup(ctx, &workflow.Group{Name: "Temp", Slug: "temp"}); err != nil {
			return err
		}
		return workflow.ErrMachineHasHistory
	})
	assert.ErrorIs(t, err, workflow.ErrMachineHasHistory)

	groups, err := defs.ListGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestHistoryRepository_AppendToDeletedMachine(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	defs := NewDefinitionRepository(db, zap.NewNop())
	history := NewHistoryRepository(db, zap.NewNop())

	saved, err := defs.SaveDefinition(ctx, ticketDefinition(t, "tickets"))
	require.NoError(t, err)
	require.NoError(t, defs.DeleteMachine(ctx, saved.Machine.ID))

	_, err = history.AppendEntry(ctx, &workflow.LogEntry{
		MachineID: saved.Machine.ID, EntityType: "ticket", EntityID: "T-1",
		ToStateID: saved.States[0].ID, ActorID: "u1",
	}, 0)
	assert.ErrorIs(t, err, workflow.ErrMachineNotFound)

	n, err := history.CountByMachine(ctx, saved.Machine.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
