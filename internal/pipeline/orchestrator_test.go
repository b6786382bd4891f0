package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/jaki95/dataset-cleaner/internal/job"
	"github.com/jaki95/dataset-cleaner/internal/knowledge"
	"github.com/jaki95/dataset-cleaner/internal/metrics"
	"github.com/jaki95/dataset-cleaner/internal/progress"
	"github.com/jaki95/dataset-cleaner/internal/stage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStage passes the dataset through, optionally running hook first.
type fakeStage struct {
	name  string
	hook  func() error
	calls int
}

func (f *fakeStage) Name() string { return f.name }

func (f *fakeStage) Execute(_ context.Context, ds *domain.Dataset, _ []domain.StageOutcome) (*domain.Dataset, domain.StageOutcome, error) {
	f.calls++
	if f.hook != nil {
		if err := f.hook(); err != nil {
			return nil, domain.StageOutcome{Stage: f.name}, err
		}
	}
	return ds.Clone(), domain.StageOutcome{Stage: f.name}, nil
}

func fakeStages(names ...string) []*fakeStage {
	stages := make([]*fakeStage, len(names))
	for i, n := range names {
		stages[i] = &fakeStage{name: n}
	}
	return stages
}

func asStages(fakes []*fakeStage) []stage.Stage {
	stages := make([]stage.Stage, len(fakes))
	for i, f := range fakes {
		stages[i] = f
	}
	return stages
}

type fixture struct {
	jobs    *job.Manager
	bus     *progress.Bus
	metrics *metrics.Collector
	jobID   string
	events  <-chan progress.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ds, err := domain.NewDataset([]string{"price", "qty"}, map[string][]any{
		"price": {"$10", "$12", nil, "$11", "$13", "$12", "$9", "$10"},
		"qty":   {1.0, 2.0, 3.0, nil, 5.0, 6.0, 7.0, 8.0},
	})
	require.NoError(t, err)

	f := &fixture{jobs: job.NewManager(), bus: progress.NewBus(), metrics: metrics.NewCollector()}
	f.jobID = f.jobs.CreateJob("orders", ds).ID
	f.events = f.bus.Subscribe(context.Background(), f.jobID)
	require.NoError(t, f.jobs.Start(f.jobID))
	return f
}

func (f *fixture) orchestrator(stages []stage.Stage) *Orchestrator {
	return New(stages, f.jobs, f.bus, Options{Metrics: f.metrics})
}

func (f *fixture) drain(t *testing.T) []progress.Event {
	t.Helper()
	var events []progress.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-f.events:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatal("progress topic not closed")
		}
	}
}

func TestRunCompletesWithRealStages(t *testing.T) {
	f := newFixture(t)
	opts := stage.DefaultOptions()
	opts.KnowledgeTimeout = 50 * time.Millisecond

	err := f.orchestrator(stage.Pipeline(&knowledge.MockService{}, opts)).Run(context.Background(), f.jobID)
	require.NoError(t, err)

	status, err := f.jobs.GetJob(f.jobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, status.Status)
	assert.Equal(t, 100.0, status.Progress)
	require.Len(t, status.Outcomes, 5)
	require.NotNil(t, status.Report)
	assert.True(t, status.Report.Degraded)
	assert.NotNil(t, status.EndTime)

	events := f.drain(t)
	var pcts []float64
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
		pcts = append(pcts, e.Progress)
	}
	assert.Equal(t, []float64{0, 20, 40, 60, 80, 100, 100}, pcts)
	assert.Equal(t, job.StatusCompleted, events[len(events)-1].Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.JobsTotal.WithLabelValues(job.StatusCompleted)))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.JobsInFlight))
}

func TestStageFaultFailsJob(t *testing.T) {
	f := newFixture(t)
	fakes := fakeStages("one", "two", "three")
	fakes[1].hook = func() error { return stage.ErrMissingOutcome }

	err := f.orchestrator(asStages(fakes)).Run(context.Background(), f.jobID)
	assert.ErrorIs(t, err, stage.ErrMissingOutcome)
	assert.Equal(t, 0, fakes[2].calls, "remaining stages never run")

	status, err := f.jobs.GetJob(f.jobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, status.Status)
	assert.Contains(t, status.Error, "stage two")
	require.Len(t, status.Outcomes, 1, "partial outcomes are kept")
	assert.Equal(t, "one", status.Outcomes[0].Stage)

	events := f.drain(t)
	last := events[len(events)-1]
	assert.Equal(t, job.StatusFailed, last.Status)
	assert.Equal(t, "two", last.Stage)
	assert.GreaterOrEqual(t, last.Progress, 100.0/3)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StageFaults.WithLabelValues("two")))
}

func TestStagePanicFailsJob(t *testing.T) {
	f := newFixture(t)
	fakes := fakeStages("one", "two")
	fakes[0].hook = func() error { panic("index out of range") }

	err := f.orchestrator(asStages(fakes)).Run(context.Background(), f.jobID)
	assert.ErrorIs(t, err, ErrStagePanic)

	status, err := f.jobs.GetJob(f.jobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, status.Status)
	assert.Contains(t, status.Error, "index out of range")
	assert.Empty(t, status.Outcomes)
}

func TestCancellationBetweenStages(t *testing.T) {
	f := newFixture(t)
	fakes := fakeStages("one", "two", "three")
	fakes[0].hook = func() error { return f.jobs.RequestCancel(f.jobID) }

	err := f.orchestrator(asStages(fakes)).Run(context.Background(), f.jobID)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 1, fakes[0].calls, "the running stage finishes")
	assert.Equal(t, 0, fakes[1].calls)

	status, err := f.jobs.GetJob(f.jobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, status.Status)
	assert.Equal(t, job.ReasonCancelled, status.Error)
	assert.Len(t, status.Outcomes, 1)

	events := f.drain(t)
	assert.Equal(t, job.ReasonCancelled, events[len(events)-1].Error)
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t)
	fakes := fakeStages("one")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.orchestrator(asStages(fakes)).Run(ctx, f.jobID)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, fakes[0].calls)
}

func TestStageErrorAfterDeadlineIsTimeout(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	fakes := fakeStages("slow")
	fakes[0].hook = func() error {
		<-ctx.Done()
		return ctx.Err()
	}

	err := f.orchestrator(asStages(fakes)).Run(ctx, f.jobID)
	assert.ErrorIs(t, err, ErrTimedOut)

	status, err := f.jobs.GetJob(f.jobID)
	require.NoError(t, err)
	assert.Equal(t, "timed out", status.Error)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.StageFaults.WithLabelValues("slow")))
}

func TestRunRequiresKnownJob(t *testing.T) {
	o := New(nil, job.NewManager(), progress.NewBus(), Options{})
	err := o.Run(context.Background(), "missing")
	assert.True(t, errors.Is(err, job.ErrNotFound))
}
