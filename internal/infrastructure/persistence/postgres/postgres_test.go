package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/workflow-engine/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Set WFE_TEST_POSTGRES_DSN to run against a disposable database.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("WFE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("WFE_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, Config{DSN: dsn, RetryAttempts: 1, RetryInterval: time.Second}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool, "", zap.NewNop()))
	_, err = pool.Exec(ctx, `TRUNCATE wf_history, wf_transitions, wf_states, wf_machines, wf_groups RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	require.NoError(t, Healthcheck(pool)(ctx))
	return NewDB(pool, zap.NewNop())
}

func TestPostgres_DefinitionAndHistory(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	defs := NewDefinitionRepository(db, zap.NewNop())
	history := NewHistoryStore(db, zap.NewNop())

	b := workflow.NewBuilder(workflow.Machine{Slug: "tickets", EntityType: "ticket", Active: true})
	b.State("open", workflow.KindInitial).State("closed", workflow.KindFinal)
	b.Configure("open").Permit("close", "closed").WithMetadata(map[string]interface{}{"color": "green"})
	def, err := b.Build()
	require.NoError(t, err)

	saved, err := defs.SaveDefinition(ctx, def)
	require.NoError(t, err)
	_, err = defs.SaveDefinition(ctx, def)
	assert.ErrorIs(t, err, workflow.ErrDuplicateMachine)

	tr, err := defs.GetTransitionBySlug(ctx, saved.Machine.ID, "close")
	require.NoError(t, err)
	assert.Equal(t, "green", tr.Metadata["color"])

	var wg sync.WaitGroup
	results := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := history.AppendEntry(ctx, &workflow.LogEntry{
				MachineID: saved.Machine.ID, EntityType: "ticket", EntityID: "T-1",
				ToStateID: saved.States[0].ID, ActorID: "u1",
			}, 0)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, workflow.ErrAppendConflict)
	}
	assert.Equal(t, 1, ok)

	latest, err := history.LatestEntry(ctx, "ticket", "T-1", saved.Machine.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.IsFirst())

	entries, err := history.History(ctx, workflow.HistoryQuery{EntityType: "ticket", EntityID: "T-1", Limit: 5})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, db.WithTransaction(ctx, func(ctx context.Context) error {
		return history.LockMachineHistory(ctx, saved.Machine.ID)
	}))
	require.NoError(t, history.DeleteByMachine(ctx, saved.Machine.ID))
	require.NoError(t, defs.DeleteMachine(ctx, saved.Machine.ID))
	_, err = history.AppendEntry(ctx, &workflow.LogEntry{
		MachineID: saved.Machine.ID, EntityType: "ticket", EntityID: "T-2",
		ToStateID: saved.States[0].ID, ActorID: "u1",
	}, 0)
	assert.ErrorIs(t, err, workflow.ErrMachineNotFound)
}
