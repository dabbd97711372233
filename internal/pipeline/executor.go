// Package pipeline runs the guide and insights workflows. A workflow is a
// Graph of declared stages; every stage, whatever its kind, goes through the
// same Executor.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/dataset"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/llm"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/metrics"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/prompts"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/retrieval"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/scope"
)

const DefaultStageTimeout = 90 * time.Second

var (
	ErrStageFailed   = errors.New("stage failed")
	ErrMissingInput  = errors.New("missing predecessor output")
	ErrNotConfigured = errors.New("collaborator not configured")
)

// Dataset is the read-only tabular collaborator used by the analyze stage.
type Dataset interface {
	Resolve(q dataset.Query) dataset.Query
	Run(ctx context.Context, q dataset.Query) (*dataset.Result, error)
	Range() string
}

// StageExecutor runs one stage given exactly its predecessors' outputs.
type StageExecutor interface {
	Execute(ctx context.Context, wf models.WorkflowName, st Stage, req models.Request, upstream map[models.StageKind]models.StageOutput) (models.StageOutput, error)
}

type Executor struct {
	completer llm.Completer
	gate      *scope.Gate
	searcher  retrieval.Searcher
	data      Dataset
	timeout   time.Duration
}

type ExecutorOption func(*Executor)

func WithSearcher(s retrieval.Searcher) ExecutorOption {
	return func(e *Executor) { e.searcher = s }
}

func WithDataset(d Dataset) ExecutorOption {
	return func(e *Executor) { e.data = d }
}

// WithStageTimeout bounds every collaborator call made by one stage.
// Zero disables the bound.
func WithStageTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

func NewExecutor(completer llm.Completer, gate *scope.Gate, opts ...ExecutorOption) *Executor {
	if gate == nil {
		gate = scope.NewGate(scope.ModeLLM)
	}
	e := &Executor{completer: completer, gate: gate, timeout: DefaultStageTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Execute(ctx context.Context, wf models.WorkflowName, st Stage, req models.Request, upstream map[models.StageKind]models.StageOutput) (models.StageOutput, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	var out models.StageOutput
	var err error

	switch st.Kind {
	case models.StagePlan:
		out, err = e.plan(ctx, wf, st, req)
	case models.StageResearch:
		out, err = e.research(ctx, wf, st, req)
	case models.StageAnalyze:
		out, err = e.analyze(ctx, wf, st, req, upstream)
	case models.StageWrite:
		out, err = e.write(ctx, wf, st, req, upstream)
	case models.StageCode:
		out, err = e.code(ctx, wf, st, req, upstream)
	default:
		err = fmt.Errorf("unknown stage kind %q", st.Kind)
	}

	elapsed := time.Since(start)
	metrics.StageDuration.WithLabelValues(string(wf), string(st.Kind)).Observe(elapsed.Seconds())

	if err != nil {
		metrics.StageRuns.WithLabelValues(string(wf), string(st.Kind), "failed").Inc()
		log.Error().Err(err).Str("workflow", string(wf)).Str("stage", string(st.Kind)).Dur("elapsed", elapsed).Msg("stage failed")
		return models.StageOutput{}, fmt.Errorf("%w: %s/%s: %w", ErrStageFailed, wf, st.Kind, err)
	}

	out.Stage = st.Kind
	metrics.StageRuns.WithLabelValues(string(wf), string(st.Kind), string(out.Status)).Inc()
	log.Info().
		Str("workflow", string(wf)).
		Str("stage", string(st.Kind)).
		Str("status", string(out.Status)).
		Str("verdict", string(out.Verdict)).
		Dur("elapsed", elapsed).
		Msg("stage completed")
	return out, nil
}

// ask renders the stage template and sends it to the model.
func (e *Executor) ask(ctx context.Context, st Stage, req models.Request, contextText string) (string, error) {
	if st.Template == nil {
		return "", fmt.Errorf("stage %s has no template", st.Kind)
	}
	if e.completer == nil {
		return "", fmt.Errorf("%w: language model", ErrNotConfigured)
	}

	prompt, err := st.Template.Render(e.promptData(req), contextText)
	if err != nil {
		return "", err
	}

	reply, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to complete %s prompt: %w", st.Kind, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", llm.ErrEmptyReply
	}
	return reply, nil
}

func (e *Executor) promptData(req models.Request) prompts.Data {
	d := prompts.Data{
		Question: req.Question,
		Profile:  req.Profile.Describe(),
		Metrics:  dataset.MetricNames(),
		GroupBys: dataset.GroupByNames(),
	}
	if e.searcher != nil {
		d.Site = e.searcher.Site()
	}
	if e.data != nil {
		d.DatasetRange = e.data.Range()
	}
	return d
}

// classify applies the deterministic screen and, when it defers, asks the
// model. The returned body is the reply without its SCOPE line.
func (e *Executor) classify(ctx context.Context, st Stage, req models.Request, contextText string) (models.Verdict, string, error) {
	if v := e.gate.Screen(req.Question); v.Refused() {
		log.Warn().Str("stage", string(st.Kind)).Str("verdict", string(v)).Msg("rejected by scope screen")
		return v, "", nil
	}

	reply, err := e.ask(ctx, st, req, contextText)
	if err != nil {
		return "", "", err
	}
	v, body, err := scope.ParseVerdict(reply)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", llm.ErrMalformedReply, err)
	}
	return v, body, nil
}

func refusal(v models.Verdict, text string) models.StageOutput {
	return models.StageOutput{Status: models.StatusRefused, Verdict: v, Text: text}
}

func noData(text string) models.StageOutput {
	return models.StageOutput{Status: models.StatusNoData, Verdict: models.VerdictInScope, Text: text}
}

func ok(text string) models.StageOutput {
	return models.StageOutput{Status: models.StatusOK, Verdict: models.VerdictInScope, Text: text}
}

// inputs returns the predecessor outputs in declaration order.
func inputs(st Stage, upstream map[models.StageKind]models.StageOutput) ([]models.StageOutput, error) {
	out := make([]models.StageOutput, 0, len(st.After))
	for _, dep := range st.After {
		o, found := upstream[dep]
		if !found {
			return nil, fmt.Errorf("%w: %s needs %s", ErrMissingInput, st.Kind, dep)
		}
		out = append(out, o)
	}
	return out, nil
}

// blocked returns the first predecessor that did not complete normally.
// Refusals take precedence over missing data.
func blocked(in []models.StageOutput) (models.StageOutput, bool) {
	for _, o := range in {
		if o.Verdict.Refused() {
			return o, true
		}
	}
	for _, o := range in {
		if !o.OK() {
			return o, true
		}
	}
	return models.StageOutput{}, false
}

func contextFrom(in []models.StageOutput) string {
	var b strings.Builder
	for _, o := range in {
		fmt.Fprintf(&b, "## %s output\n%s\n\n", o.Stage, o.Text)
	}
	return strings.TrimSpace(b.String())
}
