package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/garyjia/workflow-engine/internal/domain/event"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Observations(t *testing.T) {
	c := NewCollector()

	c.ObserveTransition("order-flow", "ok", 20*time.Millisecond)
	c.ObserveTransition("order-flow", "ok", 10*time.Millisecond)
	c.ObserveTransition("order-flow", "guard_failed", time.Millisecond)
	c.ObserveGuard("RoleGuard", "insufficient_role")
	c.ObserveLockWait(time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.transitions.WithLabelValues("order-flow", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("order-flow", "guard_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.guards.WithLabelValues("RoleGuard", "insufficient_role")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.lockWait))
}

func TestCollector_CountEvent(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()

	require.NoError(t, c.CountEvent(ctx, event.NewEvent(event.TypeBeforeTransition, "order", "1", nil)))
	require.NoError(t, c.CountEvent(ctx, event.NewEvent(event.TypeAfterTransition, "order", "1", nil)))
	require.NoError(t, c.CountEvent(ctx, event.NewEvent(event.TypeAfterTransition, "order", "2", nil)))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues("after_transition")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.ObserveTransition("order-flow", "ok", time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `workflow_engine_transitions_total{code="ok",machine="order-flow"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
