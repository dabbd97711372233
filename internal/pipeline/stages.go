package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/chart"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/dataset"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/llm"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/retrieval"
)

// Fixed texts emitted instead of model output.
const (
	RefusalOutline  = "Out of scope: the question is not related to HDB resale flats, so no outline was planned."
	RefusalFindings = "Out of scope: the question is not related to HDB resale flats, so no research was done."
	NoAnalysis      = "No analysis: the topic is not related to HDB resale housing."
	NotFound        = "No relevant information was found on the official HDB website."
	NoChart         = "no chart available"

	GuideRefusal = "I'm sorry, but your question is out of scope and I am unable to answer it. " +
		"I can only help with questions about buying an HDB resale flat."
	InsightsRefusal = "I'm sorry, but this topic is out of scope and I am unable to answer it. " +
		"I can only report on historical HDB resale transactions."
	NotFoundAnswer = "I could not find information on this question on the official HDB website. " +
		"Please try rephrasing your question or visit www.hdb.gov.sg directly."
	InsufficientData = "There is insufficient data in the HDB resale transactions dataset to answer this topic."
)

func (e *Executor) plan(ctx context.Context, wf models.WorkflowName, st Stage, req models.Request) (models.StageOutput, error) {
	v, body, err := e.classify(ctx, st, req, "")
	if err != nil {
		return models.StageOutput{}, err
	}
	if v.Refused() {
		return refusal(v, RefusalOutline), nil
	}
	return ok(body), nil
}

// research does not read the plan, so it can run beside it.
func (e *Executor) research(ctx context.Context, wf models.WorkflowName, st Stage, req models.Request) (models.StageOutput, error) {
	if e.searcher == nil {
		return models.StageOutput{}, fmt.Errorf("%w: retrieval", ErrNotConfigured)
	}
	if v := e.gate.Screen(req.Question); v.Refused() {
		return refusal(v, RefusalFindings), nil
	}

	findings, err := e.searcher.Search(ctx, req.Question)
	if errors.Is(err, retrieval.ErrNotFound) {
		log.Info().Str("site", e.searcher.Site()).Msg("nothing found on the official site")
		return noData(NotFound), nil
	}
	if err != nil {
		return models.StageOutput{}, fmt.Errorf("failed to search %s: %w", e.searcher.Site(), err)
	}

	v, body, err := e.classify(ctx, st, req, findings.Text())
	if err != nil {
		return models.StageOutput{}, err
	}
	if v.Refused() {
		return refusal(v, RefusalFindings), nil
	}

	out := ok(body)
	out.Sources = findings.Sources()
	return out, nil
}

func (e *Executor) analyze(ctx context.Context, wf models.WorkflowName, st Stage, req models.Request, upstream map[models.StageKind]models.StageOutput) (models.StageOutput, error) {
	in, err := inputs(st, upstream)
	if err != nil {
		return models.StageOutput{}, err
	}
	if prev, stop := blocked(in); stop {
		return models.StageOutput{Status: models.StatusRefused, Verdict: prev.Verdict, Text: NoAnalysis}, nil
	}
	if e.data == nil {
		return models.StageOutput{}, fmt.Errorf("%w: dataset", ErrNotConfigured)
	}

	v, body, err := e.classify(ctx, st, req, contextFrom(in))
	if err != nil {
		return models.StageOutput{}, err
	}
	if v.Refused() {
		return refusal(v, NoAnalysis), nil
	}

	var q dataset.Query
	if err := llm.DecodeJSON(body, &q); err != nil {
		return models.StageOutput{}, err
	}
	q = e.data.Resolve(q)

	res, err := e.data.Run(ctx, q)
	if errors.Is(err, dataset.ErrNoData) {
		if wider, broadened := dataset.Broaden(q); broadened {
			log.Info().Str("from", q.Describe()).Str("to", wider.Describe()).Msg("no rows, broadening query")
			res, err = e.data.Run(ctx, wider)
			if res != nil {
				res.Broadened = true
			}
		}
	}
	if errors.Is(err, dataset.ErrNoData) {
		return noData(InsufficientData), nil
	}
	if err != nil {
		return models.StageOutput{}, fmt.Errorf("failed to query dataset: %w", err)
	}

	out := ok(dataset.Format(res))
	out.Metric = string(res.Query.Metric)
	out.Group = string(res.Query.GroupBy)
	out.Statistics = res.Statistics
	return out, nil
}

func (e *Executor) write(ctx context.Context, wf models.WorkflowName, st Stage, req models.Request, upstream map[models.StageKind]models.StageOutput) (models.StageOutput, error) {
	in, err := inputs(st, upstream)
	if err != nil {
		return models.StageOutput{}, err
	}
	if prev, stop := blocked(in); stop {
		if prev.Verdict.Refused() {
			return refusal(prev.Verdict, refusalText(wf)), nil
		}
		if wf == models.WorkflowGuide {
			return noData(NotFoundAnswer), nil
		}
		return noData(InsufficientData), nil
	}

	reply, err := e.ask(ctx, st, req, contextFrom(in))
	if err != nil {
		return models.StageOutput{}, err
	}

	out := ok(reply)
	for _, o := range in {
		out.Sources = append(out.Sources, o.Sources...)
	}
	return out, nil
}

// code describes the chart. Values come from the analyze statistics; the
// model only chooses kind, title and axis labels.
func (e *Executor) code(ctx context.Context, wf models.WorkflowName, st Stage, req models.Request, upstream map[models.StageKind]models.StageOutput) (models.StageOutput, error) {
	in, err := inputs(st, upstream)
	if err != nil {
		return models.StageOutput{}, err
	}
	if prev, stop := blocked(in); stop {
		return models.StageOutput{Status: prev.Status, Verdict: prev.Verdict, Text: NoChart}, nil
	}

	analysis, found := upstream[models.StageAnalyze]
	if !found || len(analysis.Statistics) == 0 {
		return noData(NoChart), nil
	}

	reply, err := e.ask(ctx, st, req, contextFrom(in))
	if err != nil {
		return models.StageOutput{}, err
	}

	spec := buildChart(analysis, llm.ParsePairs(reply))
	if err := spec.Validate(); err != nil {
		log.Warn().Err(err).Msg("chart description rejected")
		return noData(NoChart), nil
	}

	out := ok(fmt.Sprintf("%s chart: %s", spec.Kind, spec.Title))
	out.Chart = spec
	return out, nil
}

func buildChart(analysis models.StageOutput, pairs map[string]string) *chart.Spec {
	metric := dataset.Metric(analysis.Metric)
	group := dataset.GroupBy(analysis.Group)

	kind, valid := chart.ParseKind(pairs["kind"])
	if !valid {
		kind = chart.KindBar
		if group.Temporal() {
			kind = chart.KindLine
		}
	}

	spec := &chart.Spec{
		Kind:   kind,
		Title:  firstNonEmpty(pairs["title"], metric.Label()+" by "+group.Label()),
		XLabel: firstNonEmpty(pairs["x_label"], group.Label()),
		YLabel: firstNonEmpty(pairs["y_label"], metric.Label()),
	}

	series := chart.Series{Name: metric.Label()}
	for _, s := range analysis.Statistics {
		series.Points = append(series.Points, chart.Point{X: s.Label, Y: s.Value})
	}
	spec.Series = []chart.Series{series}
	return spec
}

func refusalText(wf models.WorkflowName) string {
	if wf == models.WorkflowInsights {
		return InsightsRefusal
	}
	return GuideRefusal
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
