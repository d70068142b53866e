package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeline-orchestrator/internal/domain"
)

func TestCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordDispatch(domain.KindJobDefinition, "add")
	c.RecordDispatch(domain.KindJobDefinition, "add")
	c.RecordDelivery("delivered")
	c.RecordDelivery("failed")
	c.SetSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.dispatched.WithLabelValues("JobDefinition", "add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deliveries.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.sessions))
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordDelivery("delivered")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := rec.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "pipeline_orchestrator_session_deliveries_total")
	assert.Contains(t, string(body), "pipeline_orchestrator_sessions_active")
}
