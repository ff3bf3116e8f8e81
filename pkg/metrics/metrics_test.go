package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	m := New()
	m.ObserveReconcile(3, 1)
	m.ObserveReconcile(2, 0)
	m.ObserveInvalid("drop", 2)
	m.ObserveInvalid("drop", 0)
	m.ObserveChat("rules")
	m.ObserveWhaleFetch("simulated", "ok", 0.01)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.Reconciliations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClampedChanges))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InvalidChanges.WithLabelValues("drop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChatMessages.WithLabelValues("rules")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WhaleFetches.WithLabelValues("simulated", "ok")))
}

func TestRegistry_NilSafe(t *testing.T) {
	var m *Registry
	assert.NotPanics(t, func() {
		m.ObserveReconcile(1, 1)
		m.ObserveChat("ai")
		m.ObserveApply("ok")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveApply("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `coreai_allocation_apply_total{result="ok"} 1`)
}
