package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpEmbed, 10*time.Millisecond)
	c.RecordTiming(OpEmbed, 30*time.Millisecond)
	c.RecordTiming(OpDownload, 5*time.Millisecond)

	snap := c.Snapshot()
	require.Len(t, snap.Operations, 2)
	assert.Equal(t, OpDownload, snap.Operations[0].Name)

	embed := snap.Get(OpEmbed)
	require.NotNil(t, embed)
	assert.Equal(t, int64(2), embed.Count)
	assert.Equal(t, int64(10), embed.MinTimeMs)
	assert.Equal(t, int64(30), embed.MaxTimeMs)
	assert.InDelta(t, 20.0, embed.AvgTimeMs, 0.001)
	assert.Nil(t, snap.Get(OpStore))
}

func TestMetrics(t *testing.T) {
	m := New()
	m.JobStarted()
	m.ObserveStage(OpParse, 20*time.Millisecond)
	m.EmbeddingFailures(2)
	m.EmbeddingFailures(0)
	m.JobFinished("completed")
	m.JobDone()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.embeddingFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("completed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.jobsRunning))
	assert.NotNil(t, m.Snapshot().Get(OpParse))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "docingest_jobs_total")
	assert.Contains(t, string(body), "docingest_stage_duration_seconds")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobStarted()
		m.ObserveStage(OpStore, time.Second)
		m.EmbeddingFailures(1)
		m.JobFinished("failed")
		m.JobDone()
		_ = m.Snapshot()
	})
}
