package telemetry

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_BuildLifecycle(t *testing.T) {
	// Given: fresh metrics
	m := New()

	// When: two builds start and one finishes
	m.BuildStarted("git")
	m.BuildStarted("local")
	m.BuildFinished("git", "Completed", 3*time.Second)

	// Then: counters and the active gauge follow
	assert.Equal(t, 1.0, testutil.ToFloat64(m.buildsStarted.WithLabelValues("git")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.buildsFinished.WithLabelValues("git", "Completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.buildsActive))
}

func TestMetrics_QueryOutcomes(t *testing.T) {
	m := New()

	m.QueryObserved("search", 3, time.Millisecond, nil)
	m.QueryObserved("search", 0, time.Millisecond, nil)
	m.QueryObserved("files", 0, time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("search", OutcomeHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("search", OutcomeEmpty)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("files", OutcomeError)))
}

func TestMetrics_ChunksAndDrops(t *testing.T) {
	m := New()

	m.ChunksWritten(5)
	m.ChunksWritten(0)
	m.SnapshotDropped()

	assert.Equal(t, 5.0, testutil.ToFloat64(m.chunksWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.snapshotsDropped))
}

func TestMetrics_HandlerExposesCollectors(t *testing.T) {
	m := New()
	m.BuildStarted("archive")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `repoindex_builds_started_total{kind="archive"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.BuildStarted("git")
		m.BuildFinished("git", "Failed", time.Second)
		m.SnapshotDropped()
		m.ChunksWritten(3)
		m.QueryObserved("search", 1, time.Millisecond, nil)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
