package models

import (
	"errors"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/chart"
)

var ErrInvalidInput = errors.New("invalid input")

type WorkflowName string

const (
	WorkflowGuide    WorkflowName = "guide"
	WorkflowInsights WorkflowName = "insights"
)

type StageKind string

const (
	StagePlan     StageKind = "plan"
	StageResearch StageKind = "research"
	StageAnalyze  StageKind = "analyze"
	StageWrite    StageKind = "write"
	StageCode     StageKind = "code"
)

func (k StageKind) Valid() bool {
	switch k {
	case StagePlan, StageResearch, StageAnalyze, StageWrite, StageCode:
		return true
	}
	return false
}

type StageStatus string

const (
	StatusOK      StageStatus = "ok"
	StatusRefused StageStatus = "refused"
	StatusNoData  StageStatus = "no_data"
)

// Verdict is the scope classification carried by every stage output so that
// downstream stages never have to classify the input again.
type Verdict string

const (
	VerdictInScope    Verdict = "in_scope"
	VerdictOutOfScope Verdict = "out_of_scope"
	VerdictHarmful    Verdict = "harmful"
)

func (v Verdict) Refused() bool {
	return v == VerdictOutOfScope || v == VerdictHarmful
}

// Request is one user submission. Topic submissions for the insights
// workflow carry no profile.
type Request struct {
	Question string   `json:"question"`
	Profile  *Profile `json:"profile,omitempty"`
}

type Statistic struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

type StageOutput struct {
	Stage      StageKind   `json:"stage"`
	Status     StageStatus `json:"status"`
	Verdict    Verdict     `json:"verdict"`
	Text       string      `json:"text"`
	Sources    []string    `json:"sources,omitempty"`
	Metric     string      `json:"metric,omitempty"`
	Group      string      `json:"group,omitempty"`
	Statistics []Statistic `json:"statistics,omitempty"`
	Chart      *chart.Spec `json:"chart,omitempty"`
}

func (o StageOutput) OK() bool {
	return o.Status == StatusOK
}

// PipelineResult holds one output per declared stage, in declaration order.
type PipelineResult struct {
	Workflow WorkflowName  `json:"workflow"`
	Outputs  []StageOutput `json:"outputs"`
}

func (r *PipelineResult) Output(kind StageKind) (StageOutput, bool) {
	if r == nil {
		return StageOutput{}, false
	}
	for _, o := range r.Outputs {
		if o.Stage == kind {
			return o, true
		}
	}
	return StageOutput{}, false
}

// Final returns the write stage output, which is the user-facing answer or
// report in both workflows.
func (r *PipelineResult) Final() string {
	o, _ := r.Output(StageWrite)
	return o.Text
}

func (r *PipelineResult) Chart() *chart.Spec {
	o, _ := r.Output(StageCode)
	return o.Chart
}
