package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/jaki95/dataset-cleaner/internal/knowledge"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ knowledge.Observer = (*Collector)(nil)

func TestJobMetrics(t *testing.T) {
	c := NewCollector()
	c.JobStarted()
	c.JobStarted()
	c.JobFinished("completed")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.JobsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.JobsTotal.WithLabelValues("completed")))
}

func TestObserveStage(t *testing.T) {
	c := NewCollector()
	c.ObserveStage(domain.StageOutcome{
		Stage:    domain.StageSchema,
		Duration: 10 * time.Millisecond,
		Degraded: true,
		Errors:   []domain.ColumnError{{Column: "a"}, {Column: "b"}},
	})
	c.StageFault(domain.StageReport)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ColumnErrors.WithLabelValues(domain.StageSchema)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DegradedStages.WithLabelValues(domain.StageSchema)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StageFaults.WithLabelValues(domain.StageReport)))
}

func TestObserveKnowledge(t *testing.T) {
	c := NewCollector()
	c.ObserveKnowledge(knowledge.ResultMalformed, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.KnowledgeCalls.WithLabelValues(knowledge.ResultMalformed)))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.JobStarted()
		c.JobFinished("failed")
		c.ObserveStage(domain.StageOutcome{Stage: "x"})
		c.StageFault("x")
		c.ObserveKnowledge("ok", time.Second)
	})
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.JobStarted()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dataset_cleaner_jobs_in_flight 1")
}
