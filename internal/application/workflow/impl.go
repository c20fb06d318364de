package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/workflow-engine/internal/application/guard"
	"github.com/garyjia/workflow-engine/internal/application/port"
	"github.com/garyjia/workflow-engine/internal/domain/event"
	domainwf "github.com/garyjia/workflow-engine/internal/domain/workflow"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultLockTTL     = 30 * time.Second
	defaultLockTimeout = 5 * time.Second
)

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	definitions port.DefinitionStore
	history     port.HistoryStore
	guards      GuardFactory

	bus         port.EventBus
	locker      port.EntityLocker
	lockTTL     time.Duration
	lockTimeout time.Duration
	metrics     Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewEngine creates a new transition engine
func NewEngine(
	definitions port.DefinitionStore,
	history port.HistoryStore,
	guards GuardFactory,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		definitions: definitions,
		history:     history,
		guards:      guards,
		lockTTL:     defaultLockTTL,
		lockTimeout: defaultLockTimeout,
		logger:      zap.NewNop(),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// subject identifies what a pipeline run is acting on, for events and logs
type subject struct {
	entityType     string
	entityID       string
	actorID        string
	transitionSlug string
	machine        *domainwf.Machine
	transition     *domainwf.Transition
	metadata       map[string]interface{}
}

func (s *subject) machineLabel() string {
	if s.machine == nil {
		return "unknown"
	}
	return s.machine.Slug
}

// resolved holds the definition lookups of one request
type resolved struct {
	machine    *domainwf.Machine
	transition *domainwf.Transition
	states     []*domainwf.State
}

func (r *resolved) state(id int64) *domainwf.State {
	return findState(r.states, id)
}

func findState(states []*domainwf.State, id int64) *domainwf.State {
	for _, s := range states {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func initialOf(states []*domainwf.State) *domainwf.State {
	for _, s := range states {
		if s.IsInitial() {
			return s
		}
	}
	return nil
}

// CanTransition checks a request without writing anything
func (e *engineImpl) CanTransition(ctx context.Context, req TransitionRequest) (*Validation, error) {
	r, te := e.resolve(ctx, &req)
	if te != nil {
		return nil, te
	}

	v, te := e.evaluate(ctx, &req, r)
	if te != nil {
		return nil, te
	}
	return v, nil
}

// ApplyTransition validates and commits a transition. The state read and the
// log append run under the entity lock, and the append is additionally
// conditioned on the sequence observed during validation.
func (e *engineImpl) ApplyTransition(ctx context.Context, req TransitionRequest) (*Result, error) {
	start := time.Now()
	correlationID := uuid.NewString()
	sub := &subject{
		entityType:     req.EntityType,
		entityID:       req.EntityID,
		actorID:        req.ActorID,
		transitionSlug: req.TransitionSlug,
		metadata:       req.Metadata,
	}

	r, te := e.resolve(ctx, &req)
	if r != nil {
		sub.machine = r.machine
		sub.transition = r.transition
	}
	if te != nil {
		return nil, e.reject(ctx, sub, te, correlationID, start)
	}

	release, te := e.lock(ctx, req.EntityType, req.EntityID)
	if te != nil {
		return nil, e.reject(ctx, sub, te, correlationID, start)
	}
	defer release()

	v, te := e.evaluate(ctx, &req, r)
	if te != nil {
		release()
		return nil, e.reject(ctx, sub, te, correlationID, start)
	}

	entry := &domainwf.LogEntry{
		MachineID:    r.machine.ID,
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		ToStateID:    v.ToState.ID,
		TransitionID: domainwf.Int64Ptr(r.transition.ID),
		ActorID:      req.ActorID,
		Comment:      req.Comment,
		Metadata:     req.Metadata,
		CreatedAt:    e.now(),
	}
	if v.Latest != nil {
		entry.FromStateID = domainwf.Int64Ptr(v.Latest.ToStateID)
	}

	payload := transitionPayload(sub, v.FromState, v.ToState, entry)
	if te := e.commit(ctx, sub, entry, v.Latest.Sequence(), payload, correlationID, release); te != nil {
		return nil, e.reject(ctx, sub, te, correlationID, start)
	}

	e.logger.Info("Transition committed",
		zap.String("machine", r.machine.Slug),
		zap.String("transition", r.transition.Slug),
		zap.String("entity", req.EntityType+"#"+req.EntityID),
		zap.String("actor_id", req.ActorID),
		zap.Int64("log_entry_id", entry.ID),
	)
	e.observeTransition(sub, string(StageCommitted), start)

	return &Result{
		Entry:      entry,
		Machine:    r.machine,
		Transition: r.transition,
		FromState:  v.FromState,
		ToState:    v.ToState,
		Guard:      v.Guard,
	}, nil
}

// ForceTransition moves an entity to any state of the machine
func (e *engineImpl) ForceTransition(ctx context.Context, req ForceRequest) (*Result, error) {
	start := time.Now()
	correlationID := uuid.NewString()
	sub := &subject{
		entityType: req.EntityType,
		entityID:   req.EntityID,
		actorID:    req.ActorID,
		metadata:   req.Metadata,
	}

	if req.EntityType == "" || req.EntityID == "" || req.Machine.IsZero() || req.ToState == "" {
		te := requestError(CodeInvalidParams, "entity_type, entity_id, machine and to_state are required", nil)
		return nil, e.reject(ctx, sub, te, correlationID, start)
	}

	machine, err := port.FindMachine(ctx, e.definitions, req.Machine)
	if err != nil {
		return nil, e.reject(ctx, sub, lookupError(err, "machine "+req.Machine.String()), correlationID, start)
	}
	sub.machine = machine

	states, err := e.definitions.StatesByMachine(ctx, machine.ID)
	if err != nil {
		return nil, e.reject(ctx, sub, lookupError(err, "states of "+machine.Slug), correlationID, start)
	}

	var to *domainwf.State
	for _, s := range states {
		if s.Slug == req.ToState {
			to = s
			break
		}
	}
	if to == nil {
		te := requestError(CodeInvalidParams, fmt.Sprintf("machine %s has no state %s", machine.Slug, req.ToState), domainwf.ErrStateNotFound)
		return nil, e.reject(ctx, sub, te, correlationID, start)
	}

	release, te := e.lock(ctx, req.EntityType, req.EntityID)
	if te != nil {
		return nil, e.reject(ctx, sub, te, correlationID, start)
	}
	defer release()

	latest, err := e.history.LatestEntry(ctx, req.EntityType, req.EntityID, machine.ID)
	if err != nil {
		release()
		te := infrastructureError(CodeHistoryLookupFailed, StageReceived, "could not read entity history", err)
		return nil, e.reject(ctx, sub, te, correlationID, start)
	}

	entry := &domainwf.LogEntry{
		MachineID:  machine.ID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		ToStateID:  to.ID,
		ActorID:    req.ActorID,
		Comment:    req.Comment,
		Metadata:   req.Metadata,
		CreatedAt:  e.now(),
	}
	var from *domainwf.State
	if latest != nil {
		entry.FromStateID = domainwf.Int64Ptr(latest.ToStateID)
		from = findState(states, latest.ToStateID)
	}

	payload := transitionPayload(sub, from, to, entry)
	if te := e.commit(ctx, sub, entry, latest.Sequence(), payload, correlationID, release); te != nil {
		return nil, e.reject(ctx, sub, te, correlationID, start)
	}

	e.logger.Warn("Forced transition committed",
		zap.String("machine", machine.Slug),
		zap.String("entity", req.EntityType+"#"+req.EntityID),
		zap.String("to_state", to.Slug),
		zap.String("actor_id", req.ActorID),
		zap.Int64("log_entry_id", entry.ID),
	)
	e.observeTransition(sub, "forced", start)

	return &Result{
		Entry:     entry,
		Machine:   machine,
		FromState: from,
		ToState:   to,
	}, nil
}

// AvailableTransitions lists transitions leaving the entity's current state.
// An entity without history is treated as being in the initial state.
func (e *engineImpl) AvailableTransitions(ctx context.Context, q AvailableQuery) ([]AvailableTransition, error) {
	if q.EntityType == "" || q.EntityID == "" || q.Machine.IsZero() {
		return nil, requestError(CodeInvalidParams, "entity_type, entity_id and machine are required", nil)
	}

	machine, err := port.FindMachine(ctx, e.definitions, q.Machine)
	if err != nil {
		return nil, lookupError(err, "machine "+q.Machine.String())
	}

	states, err := e.definitions.StatesByMachine(ctx, machine.ID)
	if err != nil {
		return nil, lookupError(err, "states of "+machine.Slug)
	}

	latest, err := e.history.LatestEntry(ctx, q.EntityType, q.EntityID, machine.ID)
	if err != nil {
		return nil, infrastructureError(CodeHistoryLookupFailed, StageReceived, "could not read entity history", err)
	}

	var current int64
	if latest != nil {
		current = latest.ToStateID
	} else if initial := initialOf(states); initial != nil {
		current = initial.ID
	}

	transitions, err := e.definitions.TransitionsByMachine(ctx, machine.ID)
	if err != nil {
		return nil, lookupError(err, "transitions of "+machine.Slug)
	}
	sort.SliceStable(transitions, func(i, j int) bool {
		return transitions[i].DisplayOrder < transitions[j].DisplayOrder
	})

	available := make([]AvailableTransition, 0)
	for _, t := range transitions {
		if t.FromStateID != current {
			continue
		}
		if q.ActorID != "" && t.HasGuard() && !e.guardAllows(ctx, q, machine, t) {
			continue
		}
		available = append(available, AvailableTransition{
			Transition: t,
			ToState:    findState(states, t.ToStateID),
		})
	}

	return available, nil
}

// CurrentState returns the to-state of the entity's newest log entry
func (e *engineImpl) CurrentState(ctx context.Context, entityType, entityID string, ref domainwf.MachineRef) (*StateView, error) {
	if entityType == "" || entityID == "" || ref.IsZero() {
		return nil, requestError(CodeInvalidParams, "entity_type, entity_id and machine are required", nil)
	}

	machine, err := port.FindMachine(ctx, e.definitions, ref)
	if err != nil {
		return nil, lookupError(err, "machine "+ref.String())
	}

	latest, err := e.history.LatestEntry(ctx, entityType, entityID, machine.ID)
	if err != nil {
		return nil, infrastructureError(CodeHistoryLookupFailed, StageReceived, "could not read entity history", err)
	}

	view := &StateView{Machine: machine, Entry: latest}
	if latest == nil {
		return view, nil
	}

	state, err := e.definitions.GetState(ctx, latest.ToStateID)
	if err != nil {
		return nil, infrastructureError(CodeDefinitionLookupFailed, StageReceived,
			fmt.Sprintf("could not load state %d", latest.ToStateID), err)
	}
	view.State = state
	return view, nil
}

// EntityHistory returns the entity's log newest-first with display labels
func (e *engineImpl) EntityHistory(ctx context.Context, entityType, entityID string, ref domainwf.MachineRef, limit int) ([]HistoryItem, error) {
	if entityType == "" || entityID == "" {
		return nil, requestError(CodeInvalidParams, "entity_type and entity_id are required", nil)
	}
	if limit < 0 {
		return nil, requestError(CodeInvalidParams, "limit must not be negative", nil)
	}

	query := domainwf.HistoryQuery{EntityType: entityType, EntityID: entityID, Limit: limit}
	if !ref.IsZero() {
		machine, err := port.FindMachine(ctx, e.definitions, ref)
		if err != nil {
			return nil, lookupError(err, "machine "+ref.String())
		}
		query.MachineID = machine.ID
	}

	entries, err := e.history.History(ctx, query)
	if err != nil {
		return nil, infrastructureError(CodeHistoryLookupFailed, StageReceived, "could not read entity history", err)
	}

	labels := newLabeler(e.definitions, e.logger)
	items := make([]HistoryItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, labels.item(ctx, entry))
	}
	return items, nil
}

// resolve validates the request shape and loads the machine, transition and states
func (e *engineImpl) resolve(ctx context.Context, req *TransitionRequest) (*resolved, *TransitionError) {
	if te := req.validate(); te != nil {
		return nil, te
	}

	var (
		machine    *domainwf.Machine
		transition *domainwf.Transition
		err        error
	)

	if req.TransitionID > 0 {
		transition, err = e.definitions.GetTransition(ctx, req.TransitionID)
		if err != nil {
			return nil, lookupError(err, fmt.Sprintf("transition %d", req.TransitionID))
		}
		machine, err = e.definitions.GetMachine(ctx, transition.MachineID)
		if err != nil {
			return nil, lookupError(err, fmt.Sprintf("machine %d", transition.MachineID))
		}
		if req.MachineSlug != "" && req.MachineSlug != machine.Slug {
			te := requestError(CodeTransitionMachineMismatch,
				fmt.Sprintf("transition %d belongs to machine %s, not %s", transition.ID, machine.Slug, req.MachineSlug), nil)
			te.Data = map[string]interface{}{"transition_machine": machine.Slug, "requested_machine": req.MachineSlug}
			return &resolved{machine: machine}, te
		}
	} else {
		machine, err = e.definitions.GetMachineBySlug(ctx, req.MachineSlug)
		if err != nil {
			return nil, lookupError(err, "machine "+req.MachineSlug)
		}
		transition, err = e.definitions.GetTransitionBySlug(ctx, machine.ID, req.TransitionSlug)
		if err != nil {
			return &resolved{machine: machine}, lookupError(err, fmt.Sprintf("transition %s of %s", req.TransitionSlug, machine.Slug))
		}
	}

	r := &resolved{machine: machine, transition: transition}

	if transition.MachineID != machine.ID {
		return r, requestError(CodeTransitionMachineMismatch,
			fmt.Sprintf("transition %s does not belong to machine %s", transition.Slug, machine.Slug), nil)
	}
	if !machine.Active {
		return r, requestError(CodeMachineNotFound, fmt.Sprintf("machine %s is inactive", machine.Slug), domainwf.ErrMachineNotFound)
	}
	if machine.EntityType != req.EntityType {
		te := requestError(CodeInvalidParams,
			fmt.Sprintf("machine %s manages %s entities, not %s", machine.Slug, machine.EntityType, req.EntityType), nil)
		te.Data = map[string]interface{}{"machine_entity_type": machine.EntityType}
		return r, te
	}

	r.states, err = e.definitions.StatesByMachine(ctx, machine.ID)
	if err != nil {
		return r, lookupError(err, "states of "+machine.Slug)
	}
	if r.state(transition.FromStateID) == nil || r.state(transition.ToStateID) == nil {
		return r, requestError(CodeTransitionMachineMismatch,
			fmt.Sprintf("transition %s references a state outside machine %s", transition.Slug, machine.Slug), domainwf.ErrForeignState)
	}
	if initialOf(r.states) == nil {
		return r, &TransitionError{
			Class:   ClassConfiguration,
			Code:    CodeDefinitionLookupFailed,
			Stage:   StageRejectedInvalidRequest,
			Message: fmt.Sprintf("machine %s has no initial state", machine.Slug),
			Err:     domainwf.ErrNoInitialState,
		}
	}

	return r, nil
}

// evaluate runs the state check and the guard against resolved definitions
func (e *engineImpl) evaluate(ctx context.Context, req *TransitionRequest, r *resolved) (*Validation, *TransitionError) {
	latest, current, te := e.checkState(ctx, req, r)
	if te != nil {
		return nil, te
	}

	v := &Validation{
		Machine:    r.machine,
		Transition: r.transition,
		FromState:  current,
		ToState:    r.state(r.transition.ToStateID),
		Latest:     latest,
		Stage:      StageValidated,
	}

	res, te := e.authorize(ctx, req, r)
	if te != nil {
		return nil, te
	}
	if res != nil {
		v.Guard = res
		v.Stage = StageAuthorized
	}
	return v, nil
}

// checkState derives the entity's current state and compares it with the
// transition's from-state. A missing history only matches the initial state.
func (e *engineImpl) checkState(ctx context.Context, req *TransitionRequest, r *resolved) (*domainwf.LogEntry, *domainwf.State, *TransitionError) {
	latest, err := e.history.LatestEntry(ctx, req.EntityType, req.EntityID, r.machine.ID)
	if err != nil {
		return nil, nil, infrastructureError(CodeHistoryLookupFailed, StageReceived, "could not read entity history", err)
	}

	expected := r.state(r.transition.FromStateID)

	if latest == nil {
		initial := initialOf(r.states)
		if expected.ID != initial.ID {
			return nil, nil, stateMismatch(expected, nil,
				fmt.Sprintf("entity has no history in %s; its first transition must leave %s", r.machine.Slug, initial.Slug))
		}
		return nil, nil, nil
	}

	current := r.state(latest.ToStateID)
	if latest.ToStateID != expected.ID {
		actual := current
		if actual == nil {
			actual = &domainwf.State{ID: latest.ToStateID}
		}
		return nil, nil, stateMismatch(expected, actual,
			fmt.Sprintf("entity is in state %s, transition %s requires %s", actual.Slug, r.transition.Slug, expected.Slug))
	}

	return latest, current, nil
}

func stateMismatch(expected, actual *domainwf.State, message string) *TransitionError {
	data := map[string]interface{}{
		"expected_state_id": expected.ID,
		"expected_state":    expected.Slug,
		"actual_state_id":   nil,
		"actual_state":      "",
	}
	if actual != nil {
		data["actual_state_id"] = actual.ID
		data["actual_state"] = actual.Slug
	}
	return &TransitionError{
		Class:   ClassRejection,
		Code:    CodeStateMismatch,
		Stage:   StageRejectedStateMismatch,
		Message: message,
		Data:    data,
	}
}

// authorize resolves and runs the transition's guard
func (e *engineImpl) authorize(ctx context.Context, req *TransitionRequest, r *resolved) (*guard.Result, *TransitionError) {
	if !r.transition.HasGuard() {
		return nil, nil
	}

	config := r.transition.GuardConfig
	g, err := e.guards.Create(config)
	if err != nil {
		te := guardConfigError(err)
		te.Data = map[string]interface{}{"guard_config": config}
		return nil, te
	}

	res := g.Check(ctx, req.EntityID, req.ActorID, guard.Input{
		EntityType:     req.EntityType,
		EntityData:     req.EntityData,
		MachineSlug:    r.machine.Slug,
		TransitionSlug: r.transition.Slug,
		Extra:          req.Context,
	})
	e.observeGuard(g.Name(), res.ReasonCode)

	if res.Allowed {
		return &res, nil
	}

	data := map[string]interface{}{
		"guard":        g.Name(),
		"guard_config": config,
		"reason_code":  res.ReasonCode,
		"guard_data":   res.Data,
	}

	if res.ReasonCode == guard.ReasonNoCallbackRegistered {
		te := configurationError(CodeNoCallbackRegistered, res.Message, guard.ErrNoCallbackRegistered)
		te.Data = data
		return &res, te
	}

	return &res, &TransitionError{
		Class:   ClassRejection,
		Code:    CodeGuardFailed,
		Stage:   StageRejectedByGuard,
		Message: res.Message,
		Data:    data,
	}
}

func guardConfigError(err error) *TransitionError {
	switch {
	case errors.Is(err, guard.ErrUnknownGuardType):
		return configurationError(CodeUnknownGuardType, err.Error(), err)
	case errors.Is(err, guard.ErrNoCallbackRegistered):
		return configurationError(CodeNoCallbackRegistered, err.Error(), err)
	default:
		return configurationError(CodeInvalidGuardConfig, err.Error(), err)
	}
}

// guardAllows evaluates a guard for listing purposes; broken guards hide the transition
func (e *engineImpl) guardAllows(ctx context.Context, q AvailableQuery, machine *domainwf.Machine, t *domainwf.Transition) bool {
	g, err := e.guards.Create(t.GuardConfig)
	if err != nil {
		e.logger.Warn("Skipping transition with unusable guard",
			zap.String("machine", machine.Slug),
			zap.String("transition", t.Slug),
			zap.String("guard_config", t.GuardConfig),
			zap.Error(err),
		)
		return false
	}

	res := g.Check(ctx, q.EntityID, q.ActorID, guard.Input{
		EntityType:     q.EntityType,
		EntityData:     q.EntityData,
		MachineSlug:    machine.Slug,
		TransitionSlug: t.Slug,
		Extra:          q.Context,
	})
	e.observeGuard(g.Name(), res.ReasonCode)
	return res.Allowed
}

// lock acquires the entity lock. The returned release func is idempotent.
func (e *engineImpl) lock(ctx context.Context, entityType, entityID string) (func(), *TransitionError) {
	if e.locker == nil {
		return func() {}, nil
	}

	key := entityType + ":" + entityID

	lockCtx := ctx
	if e.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, e.lockTimeout)
		defer cancel()
	}

	start := time.Now()
	unlock, err := e.locker.Lock(lockCtx, key, e.lockTTL)
	if e.metrics != nil {
		e.metrics.ObserveLockWait(time.Since(start))
	}
	if err != nil {
		te := infrastructureError(CodeLockFailed, StageReceived, "could not acquire entity lock", err)
		te.Data = map[string]interface{}{"lock_key": key}
		return nil, te
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("Failed to release entity lock", zap.String("lock_key", key), zap.Error(err))
		}
	}, nil
}

// commit emits before_transition, appends the entry, releases the lock and
// emits after_transition. The after event is only emitted once the entry is durable.
func (e *engineImpl) commit(
	ctx context.Context,
	sub *subject,
	entry *domainwf.LogEntry,
	expectedSeq int64,
	payload map[string]interface{},
	correlationID string,
	release func(),
) *TransitionError {
	e.publish(ctx, event.TypeBeforeTransition, sub, payload, correlationID)

	id, err := e.history.AppendEntry(ctx, entry, expectedSeq)
	release()
	if err != nil {
		if errors.Is(err, domainwf.ErrAppendConflict) {
			return &TransitionError{
				Class:   ClassRejection,
				Code:    CodeStateConflict,
				Stage:   StageRejectedStateMismatch,
				Message: "entity state changed while the transition was being applied",
				Data:    map[string]interface{}{"expected_sequence": expectedSeq},
				Err:     err,
			}
		}
		if errors.Is(err, domainwf.ErrMachineNotFound) {
			return requestError(CodeMachineNotFound, "machine was deleted while the transition was being applied", err)
		}
		return infrastructureError(CodeLogFailed, StageFailedPersist,
			"transition log append failed; the transition did not happen", err)
	}
	entry.ID = id

	after := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		after[k] = v
	}
	after[event.KeyLogEntryID] = id
	e.publish(ctx, event.TypeAfterTransition, sub, after, correlationID)
	return nil
}

func transitionPayload(sub *subject, from, to *domainwf.State, entry *domainwf.LogEntry) map[string]interface{} {
	payload := map[string]interface{}{
		event.KeyMachineID:   sub.machine.ID,
		event.KeyMachineSlug: sub.machine.Slug,
		event.KeyToStateID:   to.ID,
		event.KeyToState:     to.Slug,
		event.KeyActorID:     sub.actorID,
		event.KeyComment:     entry.Comment,
		event.KeyMetadata:    entry.Metadata,
		event.KeyForced:      sub.transition == nil,
	}
	if sub.transition != nil {
		payload[event.KeyTransitionID] = sub.transition.ID
		payload[event.KeyTransitionSlug] = sub.transition.Slug
	}
	if entry.FromStateID != nil {
		payload[event.KeyFromStateID] = *entry.FromStateID
	}
	if from != nil {
		payload[event.KeyFromState] = from.Slug
	}
	return payload
}

// reject emits transition_failed, logs and records the outcome, and returns te
func (e *engineImpl) reject(ctx context.Context, sub *subject, te *TransitionError, correlationID string, start time.Time) error {
	payload := map[string]interface{}{
		event.KeyReasonCode: te.Code,
		event.KeyMessage:    te.Message,
		event.KeyActorID:    sub.actorID,
		event.KeyMetadata:   sub.metadata,
	}
	if sub.machine != nil {
		payload[event.KeyMachineID] = sub.machine.ID
	}
	if sub.transition != nil {
		payload[event.KeyTransitionID] = sub.transition.ID
		payload[event.KeyTransitionSlug] = sub.transition.Slug
	} else if sub.transitionSlug != "" {
		payload[event.KeyTransitionSlug] = sub.transitionSlug
	}
	if name, ok := te.Data["guard"]; ok {
		payload[event.KeyGuard] = name
		payload[event.KeyGuardReasonCode] = te.Data["reason_code"]
		payload[event.KeyGuardData] = te.Data["guard_data"]
	}
	e.publish(ctx, event.TypeTransitionFailed, sub, payload, correlationID)

	fields := []zap.Field{
		zap.String("machine", sub.machineLabel()),
		zap.String("entity", sub.entityType+"#"+sub.entityID),
		zap.String("actor_id", sub.actorID),
		zap.String("code", te.Code),
		zap.String("stage", string(te.Stage)),
		zap.String("message", te.Message),
	}
	switch te.Class {
	case ClassInfrastructure, ClassConfiguration:
		e.logger.Error("Transition failed", append(fields, zap.Error(te.Err))...)
	default:
		e.logger.Info("Transition rejected", fields...)
	}

	e.observeTransition(sub, te.Code, start)
	return te
}

func (e *engineImpl) publish(ctx context.Context, eventType event.Type, sub *subject, payload map[string]interface{}, correlationID string) {
	if e.bus == nil {
		return
	}
	evt := event.NewEventWithCorrelation(eventType, sub.entityType, sub.entityID, payload, correlationID)
	if err := e.bus.Publish(ctx, evt); err != nil {
		e.logger.Warn("Event subscriber failed",
			zap.String("event_type", string(eventType)),
			zap.String("event_id", evt.ID),
			zap.String("entity", sub.entityType+"#"+sub.entityID),
			zap.Error(err),
		)
	}
}

func (e *engineImpl) observeTransition(sub *subject, code string, start time.Time) {
	if e.metrics != nil {
		e.metrics.ObserveTransition(sub.machineLabel(), code, time.Since(start))
	}
}

func (e *engineImpl) observeGuard(guardType, reason string) {
	if e.metrics != nil {
		e.metrics.ObserveGuard(guardType, reason)
	}
}

func lookupError(err error, what string) *TransitionError {
	switch {
	case errors.Is(err, domainwf.ErrMachineNotFound):
		return requestError(CodeMachineNotFound, what+" not found", err)
	case errors.Is(err, domainwf.ErrTransitionNotFound):
		return requestError(CodeTransitionNotFound, what+" not found", err)
	default:
		return infrastructureError(CodeDefinitionLookupFailed, StageReceived, "could not load "+what, err)
	}
}
