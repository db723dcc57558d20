package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector(nil)
	c.RecordTiming(OpRetrieval, 10*time.Millisecond)
	c.RecordTiming(OpRetrieval, 30*time.Millisecond)
	c.RecordLLMUsage(OpLLMStream, time.Second, 100, 20)

	snap := c.Snapshot()
	require.Contains(t, snap.Operations, OpRetrieval)

	r := snap.Operations[OpRetrieval]
	assert.Equal(t, int64(2), r.Count)
	assert.Equal(t, int64(10), r.MinTimeMs)
	assert.Equal(t, int64(30), r.MaxTimeMs)
	assert.Equal(t, 20.0, r.AvgTimeMs)
	assert.Nil(t, r.TotalInputTokens)

	llm := snap.Operations[OpLLMStream]
	require.NotNil(t, llm.TotalInputTokens)
	assert.Equal(t, int64(100), *llm.TotalInputTokens)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTiming(OpTool, time.Millisecond)
		c.RecordError(OpTool, "boom")
		c.Prometheus().IncToolCall("list_dives", "ok")
	})
}

func TestPrometheusExport(t *testing.T) {
	prom := NewPrometheus()
	c := NewCollector(prom)
	c.RecordTiming(OpUpload, 5*time.Millisecond)
	c.RecordError(OpRetrieval, "unavailable")
	prom.SetSessions(2)
	prom.IncToolCall("search_dan_incidents", "unavailable")

	rec := httptest.NewRecorder()
	prom.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, `diveroast_operation_duration_seconds_count{op="upload"} 1`)
	assert.Contains(t, out, `diveroast_operation_errors_total{kind="unavailable",op="retrieval"} 1`)
	assert.Contains(t, out, "diveroast_sessions_active 2")
	assert.Contains(t, out, `diveroast_tool_calls_total{status="unavailable",tool="search_dan_incidents"} 1`)
}
