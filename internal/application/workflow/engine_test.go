package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/workflow-engine/internal/application/guard"
	"github.com/garyjia/workflow-engine/internal/application/port"
	"github.com/garyjia/workflow-engine/internal/domain/event"
	domainwf "github.com/garyjia/workflow-engine/internal/domain/workflow"
	"github.com/garyjia/workflow-engine/internal/infrastructure/lock"
	"github.com/garyjia/workflow-engine/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock implementations

type mockAuthorizer struct {
	roles map[string][]string
}

func (m *mockAuthorizer) ActorHasRole(ctx context.Context, actorID, role string) (bool, error) {
	for _, r := range m.roles[actorID] {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAuthorizer) ActorHasCapability(ctx context.Context, actorID, capability string) (bool, error) {
	return false, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []*event.Event
}

func (b *recordingBus) Publish(ctx context.Context, evt *event.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
	return nil
}

func (b *recordingBus) types() []event.Type {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]event.Type, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

func (b *recordingBus) count(t event.Type) int {
	n := 0
	for _, got := range b.types() {
		if got == t {
			n++
		}
	}
	return n
}

// failingHistory fails every append
type failingHistory struct {
	port.HistoryStore
	err error
}

func (f *failingHistory) AppendEntry(ctx context.Context, entry *domainwf.LogEntry, expectedSeq int64) (int64, error) {
	return 0, f.err
}

// barrierHistory holds LatestEntry until n callers have read, so they all
// observe the same state before any of them appends.
type barrierHistory struct {
	port.HistoryStore
	mu      sync.Mutex
	waiting int
	n       int
	release chan struct{}
}

func newBarrierHistory(inner port.HistoryStore, n int) *barrierHistory {
	return &barrierHistory{HistoryStore: inner, n: n, release: make(chan struct{})}
}

func (b *barrierHistory) LatestEntry(ctx context.Context, entityType, entityID string, machineID int64) (*domainwf.LogEntry, error) {
	latest, err := b.HistoryStore.LatestEntry(ctx, entityType, entityID, machineID)

	b.mu.Lock()
	b.waiting++
	if b.waiting == b.n {
		close(b.release)
	}
	b.mu.Unlock()

	select {
	case <-b.release:
	case <-time.After(2 * time.Second):
	}
	return latest, err
}

type fixture struct {
	defs    *memory.DefinitionRepository
	history port.HistoryStore
	bus     *recordingBus
	guards  *guard.Registry
	order   *domainwf.Definition
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	b := domainwf.NewBuilder(domainwf.Machine{Slug: "order-flow", Module: "shop", EntityType: "order", Active: true})
	b.State("draft", domainwf.KindInitial).
		State("submitted", domainwf.KindNormal).
		State("approved", domainwf.KindFinal).
		State("rejected", domainwf.KindFinal)
	b.Configure("draft").Permit("submit", "submitted")
	b.Configure("submitted").
		PermitIf("approve", "approved", "RoleGuard:manager").
		Permit("reject", "rejected").
		Permit("withdraw", "draft")
	def, err := b.Build()
	require.NoError(t, err)

	defs := memory.NewDefinitionRepository()
	saved, err := defs.SaveDefinition(context.Background(), def)
	require.NoError(t, err)

	return &fixture{
		defs:    defs,
		history: memory.NewHistoryStore(),
		bus:     &recordingBus{},
		guards: guard.NewRegistry(guard.Dependencies{
			Authorizer: &mockAuthorizer{roles: map[string][]string{"m1": {"manager"}}},
		}),
		order: saved,
	}
}

func (f *fixture) engine(opts ...EngineOption) Engine {
	opts = append([]EngineOption{WithEventBus(f.bus)}, opts...)
	return NewEngine(f.defs, f.history, f.guards, opts...)
}

func (f *fixture) transition(slug string) *domainwf.Transition {
	for i := range f.order.Transitions {
		if f.order.Transitions[i].Slug == slug {
			return &f.order.Transitions[i]
		}
	}
	return nil
}

func apply(slug, actor string) TransitionRequest {
	return TransitionRequest{
		EntityType:     "order",
		EntityID:       "42",
		MachineSlug:    "order-flow",
		TransitionSlug: slug,
		ActorID:        actor,
	}
}

func TestEngine_OrderFlowScenario(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	ctx := context.Background()

	res, err := e.ApplyTransition(ctx, apply("submit", "u1"))
	require.NoError(t, err)
	assert.Nil(t, res.FromState)
	assert.Equal(t, "submitted", res.ToState.Slug)
	assert.True(t, res.Entry.IsFirst())

	_, err = e.ApplyTransition(ctx, apply("approve", "u1"))
	require.Error(t, err)
	assert.True(t, IsGuardFailed(err))
	te, _ := AsTransitionError(err)
	assert.Equal(t, guard.ReasonInsufficientRole, te.Data["reason_code"])
	assert.Equal(t, StageRejectedByGuard, te.Stage)
	assert.False(t, te.Retryable())

	res, err = e.ApplyTransition(ctx, apply("approve", "m1"))
	require.NoError(t, err)
	assert.Equal(t, "submitted", res.FromState.Slug)
	assert.Equal(t, "approved", res.ToState.Slug)
	require.NotNil(t, res.Guard)
	assert.True(t, res.Guard.Allowed)

	view, err := e.CurrentState(ctx, "order", "42", domainwf.MachineRef{Slug: "order-flow"})
	require.NoError(t, err)
	assert.Equal(t, "approved", view.State.Slug)

	history, err := e.EntityHistory(ctx, "order", "42", domainwf.MachineRef{Slug: "order-flow"}, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "approve", history[0].TransitionSlug)
	assert.Equal(t, "approved", history[0].ToState)
	assert.Equal(t, "submit", history[1].TransitionSlug)
	assert.Equal(t, "", history[1].FromState)

	assert.Equal(t, []event.Type{
		event.TypeBeforeTransition, event.TypeAfterTransition,
		event.TypeTransitionFailed,
		event.TypeBeforeTransition, event.TypeAfterTransition,
	}, f.bus.types())

	notice, err := f.bus.events[2].DecodeFailure()
	require.NoError(t, err)
	assert.Equal(t, CodeGuardFailed, notice.ReasonCode)
	assert.Equal(t, "RoleGuard", notice.Guard)
	assert.Equal(t, guard.ReasonInsufficientRole, notice.GuardReasonCode)
}

func TestEngine_FirstTransitionMustLeaveInitial(t *testing.T) {
	f := newFixture(t)
	e := f.engine()

	for _, slug := range []string{"approve", "reject", "withdraw"} {
		t.Run(slug, func(t *testing.T) {
			req := apply(slug, "m1")
			req.EntityID = "fresh-" + slug

			_, err := e.CanTransition(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, CodeStateMismatch, CodeOf(err))

			te, _ := AsTransitionError(err)
			assert.Equal(t, "submitted", te.Data["expected_state"])
			assert.Nil(t, te.Data["actual_state_id"])
		})
	}

	req := apply("submit", "u1")
	req.EntityID = "fresh"
	v, err := e.CanTransition(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, v.FromState)
	assert.Equal(t, StageValidated, v.Stage)
	assert.Empty(t, f.bus.types(), "CanTransition must not emit events")
}

func TestEngine_StateMismatchSurfacesBothStates(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	ctx := context.Background()

	_, err := e.ApplyTransition(ctx, apply("submit", "u1"))
	require.NoError(t, err)

	_, err = e.ApplyTransition(ctx, apply("submit", "u1"))
	require.Error(t, err)
	assert.True(t, IsStateMismatch(err))

	te, _ := AsTransitionError(err)
	assert.Equal(t, "draft", te.Data["expected_state"])
	assert.Equal(t, "submitted", te.Data["actual_state"])
	assert.Equal(t, ClassRejection, te.Class)
}

func TestEngine_CurrentStateMatchesNewestHistory(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	ctx := context.Background()
	ref := domainwf.MachineRef{Slug: "order-flow"}

	view, err := e.CurrentState(ctx, "order", "42", ref)
	require.NoError(t, err)
	assert.Nil(t, view.State)

	for _, slug := range []string{"submit", "withdraw", "submit", "reject"} {
		_, err := e.ApplyTransition(ctx, apply(slug, "u1"))
		require.NoError(t, err, slug)

		view, err := e.CurrentState(ctx, "order", "42", ref)
		require.NoError(t, err)
		newest, err := e.EntityHistory(ctx, "order", "42", ref, 1)
		require.NoError(t, err)
		require.Len(t, newest, 1)

		assert.Equal(t, newest[0].Entry.ToStateID, view.State.ID)
		assert.Equal(t, newest[0].Entry.ID, view.Entry.ID)
	}
}

func TestEngine_HistoryFormsConnectedChain(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	ctx := context.Background()

	path := []string{"submit", "withdraw", "submit", "withdraw", "submit", "approve"}
	for _, slug := range path {
		_, err := e.ApplyTransition(ctx, apply(slug, "m1"))
		require.NoError(t, err, slug)
	}

	history, err := e.EntityHistory(ctx, "order", "42", domainwf.MachineRef{}, 0)
	require.NoError(t, err)
	require.Len(t, history, len(path))

	// newest-first: each entry starts where the older one ended
	for i := 0; i < len(history)-1; i++ {
		newer, older := history[i].Entry, history[i+1].Entry
		require.NotNil(t, newer.FromStateID)
		assert.Equal(t, older.ToStateID, *newer.FromStateID)
		assert.Greater(t, newer.ID, older.ID)
	}
	assert.Nil(t, history[len(history)-1].Entry.FromStateID)
}

func TestEngine_ConcurrentApplyWithLocker(t *testing.T) {
	f := newFixture(t)
	e := f.engine(WithLocker(lock.NewLocal()))

	const workers = 8
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ApplyTransition(context.Background(), apply("submit", "u1"))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, IsStateMismatch(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	history, err := f.history.History(context.Background(), domainwf.HistoryQuery{EntityType: "order", EntityID: "42"})
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, 1, f.bus.count(event.TypeAfterTransition))
	assert.Equal(t, workers-1, f.bus.count(event.TypeTransitionFailed))
}

func TestEngine_ConcurrentApplyWithStoragePreconditionOnly(t *testing.T) {
	f := newFixture(t)
	f.history = newBarrierHistory(memory.NewHistoryStore(), 2)
	e := f.engine()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.ApplyTransition(context.Background(), apply("submit", "u1"))
		}(i)
	}
	wg.Wait()

	var conflicts, successes int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case CodeOf(err) == CodeStateConflict:
			conflicts++
			assert.True(t, IsStateMismatch(err))
			assert.ErrorIs(t, err, domainwf.ErrAppendConflict)
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
}

func TestEngine_LogAppendFailure(t *testing.T) {
	f := newFixture(t)
	inner := f.history
	f.history = &failingHistory{HistoryStore: inner, err: errors.New("disk full")}
	e := f.engine()

	_, err := e.ApplyTransition(context.Background(), apply("submit", "u1"))
	require.Error(t, err)
	assert.Equal(t, CodeLogFailed, CodeOf(err))

	te, _ := AsTransitionError(err)
	assert.True(t, te.Retryable())
	assert.Equal(t, StageFailedPersist, te.Stage)

	assert.Equal(t, []event.Type{event.TypeBeforeTransition, event.TypeTransitionFailed}, f.bus.types())

	latest, err := inner.LatestEntry(context.Background(), "order", "42", f.order.Machine.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestEngine_EventsShareCorrelation(t *testing.T) {
	f := newFixture(t)
	e := f.engine()

	res, err := e.ApplyTransition(context.Background(), apply("submit", "u1"))
	require.NoError(t, err)

	require.Len(t, f.bus.events, 2)
	before, after := f.bus.events[0], f.bus.events[1]
	assert.Equal(t, before.CorrelationID, after.CorrelationID)
	assert.Equal(t, "order", after.EntityType)
	assert.Equal(t, "42", after.EntityID)

	notice, err := after.DecodeTransition()
	require.NoError(t, err)
	assert.Equal(t, res.Entry.ID, notice.LogEntryID)
	assert.Equal(t, "submit", notice.TransitionSlug)
	assert.Nil(t, notice.FromStateID)
	assert.False(t, notice.Forced)

	_, hasEntryID := before.Payload[event.KeyLogEntryID]
	assert.False(t, hasEntryID, "before_transition precedes the append")
}

func TestEngine_RequestErrors(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	submit := f.transition("submit")

	tests := []struct {
		name string
		req  TransitionRequest
		code string
	}{
		{
			name: "missing entity",
			req:  TransitionRequest{TransitionID: submit.ID},
			code: CodeInvalidParams,
		},
		{
			name: "missing transition",
			req:  TransitionRequest{EntityType: "order", EntityID: "1", MachineSlug: "order-flow"},
			code: CodeInvalidParams,
		},
		{
			name: "unknown machine",
			req:  TransitionRequest{EntityType: "order", EntityID: "1", MachineSlug: "nope", TransitionSlug: "submit"},
			code: CodeMachineNotFound,
		},
		{
			name: "unknown transition id",
			req:  TransitionRequest{EntityType: "order", EntityID: "1", TransitionID: 9999},
			code: CodeTransitionNotFound,
		},
		{
			name: "unknown transition slug",
			req:  TransitionRequest{EntityType: "order", EntityID: "1", MachineSlug: "order-flow", TransitionSlug: "ship"},
			code: CodeTransitionNotFound,
		},
		{
			name: "transition of another machine",
			req:  TransitionRequest{EntityType: "order", EntityID: "1", TransitionID: submit.ID, MachineSlug: "invoice-flow"},
			code: CodeTransitionMachineMismatch,
		},
		{
			name: "wrong entity type",
			req:  TransitionRequest{EntityType: "invoice", EntityID: "1", TransitionID: submit.ID},
			code: CodeInvalidParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ApplyTransition(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
			assert.True(t, IsRequestError(err))
		})
	}

	assert.Equal(t, len(tests), f.bus.count(event.TypeTransitionFailed))
	assert.Zero(t, f.bus.count(event.TypeBeforeTransition))
}

func TestEngine_TransitionByID(t *testing.T) {
	f := newFixture(t)
	e := f.engine()

	res, err := e.ApplyTransition(context.Background(), TransitionRequest{
		EntityType:   "order",
		EntityID:     "7",
		TransitionID: f.transition("submit").ID,
		ActorID:      "u1",
		Comment:      "ready",
		Metadata:     map[string]interface{}{"channel": "web"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ready", res.Entry.Comment)
	assert.Equal(t, "web", res.Entry.Metadata["channel"])
}

func TestEngine_GuardConfigurationErrors(t *testing.T) {
	ctx := context.Background()
	defs := memory.NewDefinitionRepository()
	b := domainwf.NewBuilder(domainwf.Machine{Slug: "broken", EntityType: "doc", Active: true})
	b.State("open", domainwf.KindInitial).State("closed", domainwf.KindFinal)
	b.Configure("open").
		PermitIf("close", "closed", "TimeGuard:weekdays").
		PermitIf("archive", "closed", "CallbackGuard:archive_check").
		PermitIf("own", "closed", "OwnerGuard")
	def, err := b.Build()
	require.NoError(t, err)
	_, err = defs.SaveDefinition(ctx, def)
	require.NoError(t, err)

	e := NewEngine(defs, memory.NewHistoryStore(), guard.NewRegistry(guard.Dependencies{}))

	tests := map[string]string{
		"close":   CodeUnknownGuardType,
		"archive": CodeNoCallbackRegistered,
		"own":     CodeInvalidGuardConfig,
	}
	for slug, code := range tests {
		t.Run(slug, func(t *testing.T) {
			_, err := e.CanTransition(ctx, TransitionRequest{EntityType: "doc", EntityID: "1", MachineSlug: "broken", TransitionSlug: slug, ActorID: "u1"})
			require.Error(t, err)
			assert.Equal(t, code, CodeOf(err))
			te, _ := AsTransitionError(err)
			assert.Equal(t, ClassConfiguration, te.Class)
		})
	}
}

func TestEngine_AvailableTransitions(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	ctx := context.Background()
	ref := domainwf.MachineRef{Slug: "order-flow"}

	fresh, err := e.AvailableTransitions(ctx, AvailableQuery{EntityType: "order", EntityID: "42", Machine: ref})
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "submit", fresh[0].Transition.Slug)
	assert.Equal(t, "submitted", fresh[0].ToState.Slug)

	_, err = e.ApplyTransition(ctx, apply("submit", "u1"))
	require.NoError(t, err)

	slugs := func(actor string) []string {
		list, err := e.AvailableTransitions(ctx, AvailableQuery{EntityType: "order", EntityID: "42", Machine: ref, ActorID: actor})
		require.NoError(t, err)
		out := make([]string, 0, len(list))
		for _, a := range list {
			out = append(out, a.Transition.Slug)
		}
		return out
	}

	assert.Equal(t, []string{"approve", "reject", "withdraw"}, slugs(""))
	assert.Equal(t, []string{"approve", "reject", "withdraw"}, slugs("m1"))
	assert.Equal(t, []string{"reject", "withdraw"}, slugs("u1"))
}

func TestEngine_ForceTransition(t *testing.T) {
	f := newFixture(t)
	e := f.engine(WithLocker(lock.NewLocal()))
	ctx := context.Background()

	_, err := e.ApplyTransition(ctx, apply("submit", "u1"))
	require.NoError(t, err)

	res, err := e.ForceTransition(ctx, ForceRequest{
		EntityType: "order",
		EntityID:   "42",
		Machine:    domainwf.MachineRef{Slug: "order-flow"},
		ToState:    "rejected",
		ActorID:    "admin",
		Comment:    "cleanup",
	})
	require.NoError(t, err)
	assert.True(t, res.Entry.IsForced())
	assert.Equal(t, "submitted", res.FromState.Slug)
	assert.Nil(t, res.Transition)

	view, err := e.CurrentState(ctx, "order", "42", domainwf.MachineRef{ID: f.order.Machine.ID})
	require.NoError(t, err)
	assert.Equal(t, "rejected", view.State.Slug)

	notice, err := f.bus.events[len(f.bus.events)-1].DecodeTransition()
	require.NoError(t, err)
	assert.True(t, notice.Forced)

	_, err = e.ForceTransition(ctx, ForceRequest{EntityType: "order", EntityID: "42", Machine: domainwf.MachineRef{Slug: "order-flow"}, ToState: "shipped"})
	assert.Equal(t, CodeInvalidParams, CodeOf(err))
}

func TestEngine_LockTimeout(t *testing.T) {
	f := newFixture(t)
	locker := lock.NewLocal()
	e := f.engine(WithLocker(locker), WithLockTimeout(20*time.Millisecond))

	unlock, err := locker.Lock(context.Background(), "order:42", time.Second)
	require.NoError(t, err)
	defer unlock(context.Background())

	_, err = e.ApplyTransition(context.Background(), apply("submit", "u1"))
	require.Error(t, err)
	assert.Equal(t, CodeLockFailed, CodeOf(err))
	te, _ := AsTransitionError(err)
	assert.True(t, te.Retryable())
}

func TestTransitionError_Helpers(t *testing.T) {
	assert.Equal(t, "", CodeOf(errors.New("plain")))
	assert.False(t, IsRequestError(nil))

	te := requestError(CodeInvalidParams, "bad", nil)
	assert.Contains(t, te.Error(), "invalid_params")
	assert.False(t, te.Retryable())
}

func TestEngine_AvailableTransitionsMatchApplyGuardInput(t *testing.T) {
	ctx := context.Background()
	defs := memory.NewDefinitionRepository()
	b := domainwf.NewBuilder(domainwf.Machine{Slug: "ticket", EntityType: "ticket", Active: true})
	b.State("open", domainwf.KindInitial).
		State("escalated", domainwf.KindNormal).
		State("closed", domainwf.KindFinal)
	b.Configure("open").
		PermitIf("escalate", "escalated", "CallbackGuard:urgent").
		PermitIf("close", "closed", "OwnerGuard:owner_id")
	def, err := b.Build()
	require.NoError(t, err)
	saved, err := defs.SaveDefinition(ctx, def)
	require.NoError(t, err)
	states, err := defs.StatesByMachine(ctx, saved.Machine.ID)
	require.NoError(t, err)
	var openID int64
	for _, st := range states {
		if st.Slug == "open" {
			openID = st.ID
		}
	}
	require.NotZero(t, openID)

	callbacks := guard.NewCallbackRegistry()
	callbacks.RegisterHandler("urgent", func(ctx context.Context, entityID, actorID string, in guard.Input) (interface{}, error) {
		if in.Extra["urgent"] == true {
			return guard.Allow("urgent ticket"), nil
		}
		return guard.Deny("not_urgent", "ticket is not urgent", nil), nil
	})

	history := memory.NewHistoryStore()
	_, err = history.AppendEntry(ctx, &domainwf.LogEntry{
		MachineID:  saved.Machine.ID,
		EntityType: "ticket",
		EntityID:   "9",
		ToStateID:  openID,
		ActorID:    "u1",
	}, 0)
	require.NoError(t, err)

	e := NewEngine(defs, history, guard.NewRegistry(guard.Dependencies{Callbacks: callbacks}))
	ref := domainwf.MachineRef{Slug: "ticket"}
	entityData := map[string]interface{}{"owner_id": "u1"}
	extra := map[string]interface{}{"urgent": true}

	list, err := e.AvailableTransitions(ctx, AvailableQuery{
		EntityType: "ticket", EntityID: "9", Machine: ref, ActorID: "u1",
		EntityData: entityData, Context: extra,
	})
	require.NoError(t, err)
	var listed []string
	for _, a := range list {
		listed = append(listed, a.Transition.Slug)
	}
	assert.Contains(t, listed, "escalate")
	assert.Contains(t, listed, "close")

	for _, slug := range listed {
		_, err := e.CanTransition(ctx, TransitionRequest{
			EntityType: "ticket", EntityID: "9", MachineSlug: "ticket", TransitionSlug: slug,
			ActorID: "u1", EntityData: entityData, Context: extra,
		})
		assert.NoError(t, err, slug)
	}

	bare, err := e.AvailableTransitions(ctx, AvailableQuery{EntityType: "ticket", EntityID: "9", Machine: ref, ActorID: "u1"})
	require.NoError(t, err)
	for _, a := range bare {
		assert.NotEqual(t, "escalate", a.Transition.Slug)
		assert.NotEqual(t, "close", a.Transition.Slug)
	}
}
