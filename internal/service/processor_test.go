package service

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jaki95/dataset-cleaner/config"
	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/jaki95/dataset-cleaner/internal/job"
	"github.com/jaki95/dataset-cleaner/internal/knowledge"
	"github.com/jaki95/dataset-cleaner/internal/metrics"
	"github.com/jaki95/dataset-cleaner/internal/storage"
	"github.com/jaki95/dataset-cleaner/internal/tabular"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ordersCSV = `order_id,price,qty,status
1,$10.50,1,shipped
2,$12.00,2,shipped
3,,3,pending
4,$11.25,,shipped
5,$13.00,5,returned
6,$12.50,6,shipped
7,$9.75,7,pending
8,$10.00,8,shipped
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.OutputDir = t.TempDir()
	return cfg
}

func newTestProcessor(t *testing.T, cfg *config.Config) (*Processor, *metrics.Collector) {
	t.Helper()
	store, err := storage.NewLocalFileStorage(cfg.Storage.OutputDir)
	require.NoError(t, err)
	collector := metrics.NewCollector()
	p := NewProcessor(cfg, Options{
		Knowledge: &knowledge.MockService{},
		Storage:   store,
		Metrics:   collector,
	})
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, collector
}

// waitFor polls until the job is terminal and, when completed, its artifacts
// have been recorded.
func waitFor(t *testing.T, p *Processor, jobID string) *job.Status {
	t.Helper()
	var status *job.Status
	require.Eventually(t, func() bool {
		s, err := p.GetStatus(jobID)
		if err != nil {
			return false
		}
		status = s
		if s.Status == job.StatusCompleted {
			return len(s.Artifacts) > 0
		}
		return s.Status == job.StatusFailed
	}, 10*time.Second, 10*time.Millisecond)
	return status
}

func TestProcessCSVEndToEnd(t *testing.T) {
	p, collector := newTestProcessor(t, testConfig(t))

	jobID, err := p.CreateJobFromCSV("orders", strings.NewReader(ordersCSV))
	require.NoError(t, err)

	events, err := p.SubscribeProgress(context.Background(), jobID)
	require.NoError(t, err)
	require.NoError(t, p.StartProcessing(jobID))

	var last float64
	for e := range events {
		assert.GreaterOrEqual(t, e.Progress, last)
		last = e.Progress
	}
	assert.Equal(t, 100.0, last)

	status := waitFor(t, p, jobID)
	require.Equal(t, job.StatusCompleted, status.Status)
	require.NotNil(t, status.Report)
	assert.True(t, status.Report.Degraded)
	assert.Len(t, status.Artifacts, 2)

	rc, err := p.OpenArtifact(context.Background(), jobID, storage.CleanedFile)
	require.NoError(t, err)
	cleaned, err := tabular.Read(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, 8, cleaned.Rows())
	price, ok := cleaned.Column("price")
	require.True(t, ok)
	assert.Equal(t, 10.5, price[0])

	rc, err = p.OpenArtifact(context.Background(), jobID, storage.ReportFile)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	var report domain.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, status.Report.Summary, report.Summary)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.JobsTotal.WithLabelValues(job.StatusCompleted)))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.JobsInFlight))
}

func TestStartProcessingErrors(t *testing.T) {
	p, _ := newTestProcessor(t, testConfig(t))

	assert.ErrorIs(t, p.StartProcessing("missing"), job.ErrNotFound)

	jobID, err := p.CreateJobFromCSV("orders", strings.NewReader(ordersCSV))
	require.NoError(t, err)
	require.NoError(t, p.StartProcessing(jobID))

	err = p.StartProcessing(jobID)
	assert.Error(t, err, "a job starts once")

	waitFor(t, p, jobID)
	assert.ErrorIs(t, p.StartProcessing(jobID), job.ErrInvalidState)
}

func TestCreateJobFromInvalidCSV(t *testing.T) {
	p, _ := newTestProcessor(t, testConfig(t))

	_, err := p.CreateJobFromCSV("empty", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrInvalidDataset)

	_, err = p.CreateJob("nil", nil)
	assert.ErrorIs(t, err, ErrInvalidDataset)
}

func TestCancelBeforeStart(t *testing.T) {
	p, _ := newTestProcessor(t, testConfig(t))

	jobID, err := p.CreateJobFromCSV("orders", strings.NewReader(ordersCSV))
	require.NoError(t, err)
	require.NoError(t, p.Cancel(jobID))
	require.NoError(t, p.StartProcessing(jobID))

	status := waitFor(t, p, jobID)
	assert.Equal(t, job.StatusFailed, status.Status)
	assert.Equal(t, job.ReasonCancelled, status.Error)
	assert.Empty(t, status.Artifacts)

	_, err = p.OpenArtifact(context.Background(), jobID, storage.CleanedFile)
	assert.ErrorIs(t, err, ErrArtifactNotReady)

	assert.ErrorIs(t, p.Cancel(jobID), job.ErrInvalidState)
	assert.ErrorIs(t, p.Cancel("missing"), job.ErrNotFound)
}

func TestJobTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.JobTimeout = time.Nanosecond
	p, _ := newTestProcessor(t, cfg)

	jobID, err := p.CreateJobFromCSV("orders", strings.NewReader(ordersCSV))
	require.NoError(t, err)
	require.NoError(t, p.StartProcessing(jobID))

	status := waitFor(t, p, jobID)
	assert.Equal(t, job.StatusFailed, status.Status)
	assert.Equal(t, "timed out", status.Error)
}

func TestSubscribeUnknownJob(t *testing.T) {
	p, _ := newTestProcessor(t, testConfig(t))
	_, err := p.SubscribeProgress(context.Background(), "missing")
	assert.ErrorIs(t, err, job.ErrNotFound)
}

func TestListJobs(t *testing.T) {
	p, _ := newTestProcessor(t, testConfig(t))
	for i := 0; i < 3; i++ {
		_, err := p.CreateJobFromCSV("orders", strings.NewReader(ordersCSV))
		require.NoError(t, err)
	}

	resp := p.ListJobs(1, 2)
	assert.Equal(t, 3, resp.TotalJobs)
	assert.Equal(t, 2, resp.TotalPages)
	assert.Len(t, resp.Jobs, 2)
}

func TestShutdownRejectsNewJobs(t *testing.T) {
	p, _ := newTestProcessor(t, testConfig(t))
	jobID, err := p.CreateJobFromCSV("orders", strings.NewReader(ordersCSV))
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(context.Background()))
	assert.ErrorIs(t, p.StartProcessing(jobID), ErrShuttingDown)
}

func TestNewKnowledgeService(t *testing.T) {
	cfg := testConfig(t)

	svc := NewKnowledgeService(cfg.Knowledge, nil, nil)
	assert.IsType(t, knowledge.Unavailable{}, svc)

	cfg.Knowledge.URL = "http://localhost:1"
	svc = NewKnowledgeService(cfg.Knowledge, metrics.NewCollector(), nil)
	assert.IsType(t, &knowledge.Guarded{}, svc)
}

func TestStageOptions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.Workers = 7
	cfg.Pipeline.OutlierAction = "flag"
	cfg.Knowledge.SampleRows = 3

	opts := StageOptions(cfg, nil)
	assert.Equal(t, 7, opts.Workers)
	assert.Equal(t, "flag", opts.OutlierAction)
	assert.Equal(t, 3, opts.SampleRows)
	assert.Equal(t, cfg.Pipeline.Seed, opts.Seed)
}
