package advisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/cache"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/pipeline"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/session"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
	text  string
}

func (r *countingRunner) Run(_ context.Context, g *pipeline.Graph, req models.Request) (*models.PipelineResult, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &models.PipelineResult{
		Workflow: g.Name,
		Outputs: []models.StageOutput{
			{Stage: models.StagePlan, Status: models.StatusOK, Verdict: models.VerdictInScope},
			{Stage: models.StageWrite, Status: models.StatusOK, Verdict: models.VerdictInScope, Text: r.text + req.Question},
		},
	}, nil
}

func newAdvisor(t *testing.T, runner PipelineRunner) *Advisor {
	t.Helper()
	guide, err := pipeline.NewGraph(models.WorkflowGuide, false,
		pipeline.Stage{Kind: models.StagePlan},
		pipeline.Stage{Kind: models.StageWrite, After: []models.StageKind{models.StagePlan}},
	)
	require.NoError(t, err)
	insights, err := pipeline.NewGraph(models.WorkflowInsights, true,
		pipeline.Stage{Kind: models.StagePlan},
		pipeline.Stage{Kind: models.StageWrite, After: []models.StageKind{models.StagePlan}},
	)
	require.NoError(t, err)
	return New(runner, guide, insights, cache.NewMemoryStore())
}

func TestInvalidInputNeverRuns(t *testing.T) {
	runner := &countingRunner{}
	a := newAdvisor(t, runner)
	st := session.NewStore().Resolve("")

	for _, q := range []string{"", "12345", "?!", "   "} {
		_, err := a.Ask(context.Background(), st, q, nil)
		assert.ErrorIs(t, err, models.ErrInvalidInput, q)
		_, err = a.Explore(context.Background(), st, q)
		assert.ErrorIs(t, err, models.ErrInvalidInput, q)
	}

	income := 200000
	_, err := a.Ask(context.Background(), st, "What grants am I eligible for?", &models.Profile{MonthlyIncome: &income})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.ErrorIs(t, err, models.ErrInvalidProfile)
	assert.Equal(t, "monthly household income must be between 0 and 100000", UserMessage(err, "question"))

	assert.Zero(t, runner.calls.Load())
	assert.Nil(t, st.Snapshot().Guide)
}

func TestRepeatSubmissionIsServedFromCache(t *testing.T) {
	runner := &countingRunner{text: "answer to "}
	a := newAdvisor(t, runner)
	st := session.NewStore().Resolve("")

	age := 35
	profile := &models.Profile{Age: &age}
	first, err := a.Ask(context.Background(), st, "What grants am I eligible for?", profile)
	require.NoError(t, err)
	second, err := a.Ask(context.Background(), st, "What grants am I eligible for?", profile)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, runner.calls.Load())
	assert.Equal(t, "answer to What grants am I eligible for?", st.Snapshot().Guide.Answer)

	// a different profile is a different submission
	_, err = a.Ask(context.Background(), st, "What grants am I eligible for?", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, runner.calls.Load())

	// the same text on the other page is a different submission too
	_, err = a.Explore(context.Background(), st, "What grants am I eligible for?")
	require.NoError(t, err)
	assert.EqualValues(t, 3, runner.calls.Load())
}

func TestConcurrentIdenticalSubmissionsRunOnce(t *testing.T) {
	runner := &countingRunner{text: "report on "}
	a := newAdvisor(t, runner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Explore(context.Background(), nil, "Queenstown prices")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, runner.calls.Load())
}

// gatedRunner blocks until released or until its context ends.
type gatedRunner struct {
	countingRunner
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{started: make(chan struct{}), release: make(chan struct{})}
}

func (r *gatedRunner) Run(ctx context.Context, g *pipeline.Graph, req models.Request) (*models.PipelineResult, error) {
	r.once.Do(func() { close(r.started) })
	select {
	case <-r.release:
		return r.countingRunner.Run(ctx, g, req)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCancelledCallerDoesNotFailOthers(t *testing.T) {
	runner := newGatedRunner()
	a := newAdvisor(t, runner)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := a.Explore(ctx, nil, "Queenstown prices")
		first <- err
	}()
	<-runner.started

	second := make(chan error, 1)
	go func() {
		_, err := a.Explore(context.Background(), nil, "Queenstown prices")
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(runner.release)
	assert.NoError(t, <-second)
	assert.EqualValues(t, 1, runner.calls.Load())

	// the run finished for the caller that stayed, so it is cached
	_, err := a.Explore(context.Background(), nil, "Queenstown prices")
	require.NoError(t, err)
	assert.EqualValues(t, 1, runner.calls.Load())
}

func TestFailureLeavesSessionAndCacheUntouched(t *testing.T) {
	runner := &countingRunner{text: "answer to "}
	a := newAdvisor(t, runner)
	st := session.NewStore().Resolve("")

	_, err := a.Ask(context.Background(), st, "How do I buy a resale flat?", nil)
	require.NoError(t, err)
	before := st.Snapshot()

	runner.err = errors.New("model unavailable")
	_, err = a.Ask(context.Background(), st, "What grants am I eligible for?", nil)
	require.Error(t, err)
	assert.Equal(t, TryAgainMessage, UserMessage(err, "question"))
	assert.Equal(t, before, st.Snapshot())

	// nothing was cached, so the next attempt runs again
	runner.err = nil
	_, err = a.Ask(context.Background(), st, "What grants am I eligible for?", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, runner.calls.Load())
	assert.Equal(t, "answer to What grants am I eligible for?", st.Snapshot().Guide.Answer)
}

func TestEmptyProfileIsNoProfile(t *testing.T) {
	runner := &countingRunner{}
	a := newAdvisor(t, runner)

	_, err := a.Ask(context.Background(), nil, "How do I buy a resale flat?", &models.Profile{})
	require.NoError(t, err)
	_, err = a.Ask(context.Background(), nil, "How do I buy a resale flat?", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, runner.calls.Load())
}
