package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrouter/dispatch"
	"github.com/BaSui01/agentrouter/dispatch/classifier"
)

var (
	_ dispatch.Recorder        = (*Collector)(nil)
	_ classifier.CacheRecorder = (*Collector)(nil)
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("test", reg, zap.NewNop()), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordHTTPRequest("POST", "/v1/dispatch", 200, 100*time.Millisecond, 1024, 2048)
	c.RecordHTTPRequest("POST", "/v1/dispatch", 201, 50*time.Millisecond, 512, 1024)
	c.RecordHTTPRequest("POST", "/v1/dispatch", 422, 5*time.Millisecond, 10, 100)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/v1/dispatch", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/v1/dispatch", "4xx")))
}

func TestCollector_DispatchRecorder(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RecordClassification("urgency", "urgent", "ok", 2*time.Millisecond)
	c.RecordClassification("topic", "", "unrecognized_label", time.Millisecond)
	c.RecordSelection("credit_card_team", "credit_card_agent_1")
	c.RecordSelection("credit_card_team", "credit_card_agent_2")
	c.RecordSelection("credit_card_team", "credit_card_agent_1")
	c.RecordDispatch("credit_card_team", "ok", 300*time.Millisecond)
	c.RecordDispatch("", "no_route_and_no_default", time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.selectionsTotal.WithLabelValues("credit_card_team", "credit_card_agent_1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.classificationsTotal.WithLabelValues("topic", "none", "unrecognized_label")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.dispatchesTotal.WithLabelValues("none", "no_route_and_no_default")))

	expected := `
# HELP test_dispatches_total Total number of dispatches by outcome
# TYPE test_dispatches_total counter
test_dispatches_total{pool="credit_card_team",status="ok"} 1
test_dispatches_total{pool="none",status="no_route_and_no_default"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_dispatches_total"))
}

func TestCollector_RecordCacheLookup(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordCacheLookup("topic", false)
	c.RecordCacheLookup("topic", true)
	c.RecordCacheLookup("topic", true)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.cacheLookups.WithLabelValues("topic", "hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheLookups.WithLabelValues("topic", "miss")))
}

func TestCollector_AuditAndDB(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordAuditStats(10, 2, 1)
	c.RecordAuditStats(12, 2, 1)
	c.RecordDBConnections("audit", 3, 1)

	assert.Equal(t, float64(12), testutil.ToFloat64(c.auditEntries.WithLabelValues("written")))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("audit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("audit")))
}

func TestCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector("dup", prometheus.NewRegistry(), nil)
		NewCollector("dup", prometheus.NewRegistry(), nil)
	})
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
		{100, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}
