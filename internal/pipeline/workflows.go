package pipeline

import (
	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/prompts"
)

// GuideGraph is the personalized guidance workflow. Plan and research are
// independent; write joins them.
func GuideGraph(lib *prompts.Library) (*Graph, error) {
	stages, err := bind(lib, models.WorkflowGuide,
		Stage{Kind: models.StagePlan},
		Stage{Kind: models.StageResearch},
		Stage{Kind: models.StageWrite, After: []models.StageKind{models.StagePlan, models.StageResearch}},
	)
	if err != nil {
		return nil, err
	}
	return NewGraph(models.WorkflowGuide, false, stages...)
}

// InsightsGraph is the historical insights workflow. It runs strictly in
// declaration order.
func InsightsGraph(lib *prompts.Library) (*Graph, error) {
	stages, err := bind(lib, models.WorkflowInsights,
		Stage{Kind: models.StagePlan},
		Stage{Kind: models.StageAnalyze, After: []models.StageKind{models.StagePlan}},
		Stage{Kind: models.StageWrite, After: []models.StageKind{models.StagePlan, models.StageAnalyze}},
		Stage{Kind: models.StageCode, After: []models.StageKind{models.StagePlan, models.StageAnalyze}},
	)
	if err != nil {
		return nil, err
	}
	return NewGraph(models.WorkflowInsights, true, stages...)
}

func bind(lib *prompts.Library, wf models.WorkflowName, stages ...Stage) ([]Stage, error) {
	for i := range stages {
		t, err := lib.Template(wf, stages[i].Kind)
		if err != nil {
			return nil, err
		}
		stages[i].Template = t
	}
	return stages, nil
}
