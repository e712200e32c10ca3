package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recording(t *testing.T) {
	m := New()

	m.ChunkWritten(true)
	m.ChunkWritten(true)
	m.ChunkWritten(false)
	m.ChunksRemoved(5)
	m.Retrieval("few")
	m.SummarizerTimeout()
	m.JobDone("ingest", "success", 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChunksWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DedupHits))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ChunksDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetrievalsTotal.WithLabelValues("few")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SummarizerTimeouts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("ingest", "success")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ChunkWritten(true)
		m.ChunksRemoved(3)
		m.Retrieval("many")
		m.SummarizerTimeout()
		m.JobDone("delete", "failure", time.Second)
		m.JobAbandoned("delete")
		m.HTTPRequest("GET", "/v1/files", "200", time.Millisecond)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ChunkWritten(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docket_index_chunks_written_total 1")
}
