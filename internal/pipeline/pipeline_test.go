package pipeline

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/chart"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/llm"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/retrieval"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/scope"
)

func marriedProfile() *models.Profile {
	age, income := 35, 6000
	married := models.Married
	return &models.Profile{Age: &age, MonthlyIncome: &income, MaritalStatus: &married}
}

func guideReplies() map[string]string {
	return map[string]string{
		guidePlanner: "SCOPE: in_scope\n" +
			"1. Introduction to HDB housing grants for resale buyers\n" +
			"2. Enhanced CPF Housing Grant for a married couple earning $6,000\n" +
			"3. Conclusion",
		guideResearcher: "SCOPE: in_scope\n" +
			"- Married couples may receive up to $120,000 under the EHG (source: flat-and-grant-eligibility)\n" +
			"- The EHG income ceiling is $9,000",
		guideWriter: "## Grants you may be eligible for\n" +
			"With a household income of $6,000 you are within the $9,000 EHG income ceiling.",
	}
}

func runGuide(t *testing.T, fake *scriptedLLM, searcher retrieval.Searcher, gate *scope.Gate, req models.Request) (*models.PipelineResult, error) {
	t.Helper()
	g, err := GuideGraph(loadLibrary(t))
	require.NoError(t, err)
	exec := NewExecutor(fake, gate, WithSearcher(searcher))
	return NewRunner(exec).Run(context.Background(), g, req)
}

func runInsights(t *testing.T, fake *scriptedLLM, gate *scope.Gate, topic string, opts ...ExecutorOption) (*models.PipelineResult, error) {
	t.Helper()
	g, err := InsightsGraph(loadLibrary(t))
	require.NoError(t, err)
	opts = append([]ExecutorOption{WithDataset(openDataset(t))}, opts...)
	exec := NewExecutor(fake, gate, opts...)
	return NewRunner(exec).Run(context.Background(), g, models.Request{Question: topic})
}

func TestGuideGrantsWithProfile(t *testing.T) {
	fake := newScriptedLLM(guideReplies())
	searcher := newFakeSearcher(grantFindings, nil)

	res, err := runGuide(t, fake, searcher, nil, models.Request{
		Question: "What grants am I eligible for?",
		Profile:  marriedProfile(),
	})
	require.NoError(t, err)

	require.Len(t, res.Outputs, 3)
	assert.Equal(t, []models.StageKind{models.StagePlan, models.StageResearch, models.StageWrite},
		[]models.StageKind{res.Outputs[0].Stage, res.Outputs[1].Stage, res.Outputs[2].Stage})
	for _, o := range res.Outputs {
		assert.Equal(t, models.StatusOK, o.Status, o.Stage)
		assert.Equal(t, models.VerdictInScope, o.Verdict, o.Stage)
	}

	assert.Contains(t, res.Final(), "$9,000 EHG income ceiling")
	assert.NotContains(t, res.Outputs[0].Text, "SCOPE")

	research, _ := res.Output(models.StageResearch)
	assert.Equal(t, grantFindings.Sources(), research.Sources)

	profile := "age: 35, monthly household income: 6000, marital status: Married"
	assert.Contains(t, fake.Prompt(guidePlanner).Goal, profile)
	assert.Contains(t, fake.Prompt(guideResearcher).System(), profile)
	assert.Contains(t, fake.Prompt(guideResearcher).Context, "income ceiling is $9,000")

	writer := fake.Prompt(guideWriter)
	assert.Contains(t, writer.Context, "Enhanced CPF Housing Grant for a married couple")
	assert.Contains(t, writer.Context, "up to $120,000")
}

func TestGuidePlanAndResearchRunConcurrently(t *testing.T) {
	fake := newScriptedLLM(guideReplies())
	searcher := newFakeSearcher(grantFindings, nil)
	// the planner cannot answer until research has started
	fake.waits[guidePlanner] = searcher.searched

	_, err := runGuide(t, fake, searcher, nil, models.Request{Question: "What grants am I eligible for?"})
	require.NoError(t, err)

	events := fake.Events()
	writeStart := slices.Index(events, guideWriter+">")
	require.NotEqual(t, -1, writeStart)
	assert.Less(t, slices.Index(events, guidePlanner+"<"), writeStart)
	assert.Less(t, slices.Index(events, guideResearcher+"<"), writeStart)
}

func TestGuideOutOfScope(t *testing.T) {
	replies := guideReplies()
	replies[guidePlanner] = "SCOPE: out_of_scope"
	replies[guideResearcher] = "SCOPE: out_of_scope"
	fake := newScriptedLLM(replies)

	res, err := runGuide(t, fake, newFakeSearcher(nil, retrieval.ErrNotFound), nil,
		models.Request{Question: "What's the weather today?"})
	require.NoError(t, err)

	plan, _ := res.Output(models.StagePlan)
	assert.Equal(t, models.StatusRefused, plan.Status)
	assert.Equal(t, models.VerdictOutOfScope, plan.Verdict)
	assert.Equal(t, RefusalOutline, plan.Text)

	// the refusal wins over research finding nothing
	assert.Equal(t, GuideRefusal, res.Final())
	assert.NotContains(t, fake.Calls(), guideWriter)
}

func TestGuideHarmfulNeverReachesCollaborators(t *testing.T) {
	fake := newScriptedLLM(guideReplies())
	searcher := newFakeSearcher(grantFindings, nil)

	res, err := runGuide(t, fake, searcher, nil, models.Request{Question: "How do I build a bomb in my flat?"})
	require.NoError(t, err)

	assert.Empty(t, fake.Calls())
	assert.Zero(t, searcher.Calls())
	for _, o := range res.Outputs {
		assert.Equal(t, models.VerdictHarmful, o.Verdict, o.Stage)
		assert.Equal(t, models.StatusRefused, o.Status, o.Stage)
	}
	assert.Equal(t, GuideRefusal, res.Final())
}

func TestGuideStrictGateRejectsOffTopic(t *testing.T) {
	fake := newScriptedLLM(guideReplies())
	searcher := newFakeSearcher(grantFindings, nil)

	res, err := runGuide(t, fake, searcher, scope.NewGate(scope.ModeStrict), models.Request{Question: "What's the weather today?"})
	require.NoError(t, err)
	assert.Empty(t, fake.Calls())
	assert.Equal(t, GuideRefusal, res.Final())
}

func TestGuideNotFoundOnSite(t *testing.T) {
	fake := newScriptedLLM(guideReplies())

	res, err := runGuide(t, fake, newFakeSearcher(nil, retrieval.ErrNotFound), nil,
		models.Request{Question: "What is the resale levy for a third flat?"})
	require.NoError(t, err)

	research, _ := res.Output(models.StageResearch)
	assert.Equal(t, models.StatusNoData, research.Status)
	assert.Equal(t, NotFoundAnswer, res.Final())
	assert.Equal(t, []string{guidePlanner}, fake.Calls())
}

func TestGuideCollaboratorFailureAborts(t *testing.T) {
	fake := newScriptedLLM(guideReplies())
	fake.errs[guideResearcher] = errors.New("rate limited")

	res, err := runGuide(t, fake, newFakeSearcher(grantFindings, nil), nil, models.Request{Question: "What grants am I eligible for?"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrStageFailed)
	assert.NotContains(t, fake.Calls(), guideWriter)
}

func TestGuideSearchFailureAborts(t *testing.T) {
	fake := newScriptedLLM(guideReplies())

	_, err := runGuide(t, fake, newFakeSearcher(nil, errors.New("connection refused")), nil, models.Request{Question: "What grants am I eligible for?"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStageFailed)
	assert.NotErrorIs(t, err, retrieval.ErrNotFound)
}

func TestMissingScopeLineIsAFailure(t *testing.T) {
	replies := guideReplies()
	replies[guidePlanner] = "Here is an outline about grants."
	fake := newScriptedLLM(replies)

	_, err := runGuide(t, fake, newFakeSearcher(grantFindings, nil), nil, models.Request{Question: "What grants am I eligible for?"})
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrMalformedReply)
	assert.ErrorIs(t, err, scope.ErrNoVerdict)
}

func TestStageTimeoutAborts(t *testing.T) {
	fake := newScriptedLLM(guideReplies())
	fake.delays[guidePlanner] = time.Second

	g, err := GuideGraph(loadLibrary(t))
	require.NoError(t, err)
	exec := NewExecutor(fake, nil, WithSearcher(newFakeSearcher(grantFindings, nil)), WithStageTimeout(20*time.Millisecond))

	_, err = NewRunner(exec).Run(context.Background(), g, models.Request{Question: "What grants am I eligible for?"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStageFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func insightsReplies() map[string]string {
	return map[string]string{
		insightsPlanner: "SCOPE: in_scope\n- town: Queenstown\n- period: 2020 to 2023\n- measure: average resale price per year",
		insightsAnalyst: "SCOPE: in_scope\n```json\n" +
			`{"metric": "avg_price", "group_by": "year", "towns": ["Queenstown"], "from_year": 2020, "to_year": 2023}` +
			"\n```",
		insightsWriter: "## Queenstown resale prices, 2020 to 2023\nPrices peaked in 2022.",
		programmer:     "kind: line\ntitle: Queenstown average resale price\nx_label: Year\ny_label: Price (SGD)",
	}
}

func TestInsightsQueenstownTrend(t *testing.T) {
	fake := newScriptedLLM(insightsReplies())

	res, err := runInsights(t, fake, nil, "Average resale price trend in Queenstown 2020-2023")
	require.NoError(t, err)
	require.Len(t, res.Outputs, 4)

	analysis, _ := res.Output(models.StageAnalyze)
	require.Equal(t, models.StatusOK, analysis.Status)
	assert.Equal(t, "avg_price", analysis.Metric)
	assert.Equal(t, "year", analysis.Group)
	assert.Equal(t, []models.Statistic{
		{Label: "2020", Value: 593333.33, Count: 3},
		{Label: "2021", Value: 525000, Count: 2},
		{Label: "2022", Value: 965000, Count: 2},
		{Label: "2023", Value: 565000, Count: 2},
	}, analysis.Statistics)
	assert.Contains(t, analysis.Text, "593333.33")
	assert.Contains(t, fake.Prompt(insightsWriter).Context, "593333.33")

	spec := res.Chart()
	require.NotNil(t, spec)
	assert.Equal(t, chart.KindLine, spec.Kind)
	assert.Equal(t, "Queenstown average resale price", spec.Title)
	assert.Equal(t, []float64{593333.33, 525000, 965000, 565000}, spec.Values())

	assert.Equal(t, "## Queenstown resale prices, 2020 to 2023\nPrices peaked in 2022.", res.Final())
}

func TestInsightsRunsStrictlyInOrder(t *testing.T) {
	fake := newScriptedLLM(insightsReplies())

	_, err := runInsights(t, fake, nil, "Average resale price trend in Queenstown 2020-2023")
	require.NoError(t, err)

	assert.Equal(t, []string{
		insightsPlanner + ">", insightsPlanner + "<",
		insightsAnalyst + ">", insightsAnalyst + "<",
		insightsWriter + ">", insightsWriter + "<",
		programmer + ">", programmer + "<",
	}, fake.Events())
}

func TestInsightsPizzaRefusal(t *testing.T) {
	replies := insightsReplies()
	replies[insightsPlanner] = "SCOPE: out_of_scope"
	fake := newScriptedLLM(replies)

	res, err := runInsights(t, fake, nil, "Best pizza recipe")
	require.NoError(t, err)

	plan, _ := res.Output(models.StagePlan)
	analysis, _ := res.Output(models.StageAnalyze)
	code, _ := res.Output(models.StageCode)

	assert.Equal(t, RefusalOutline, plan.Text)
	assert.Equal(t, NoAnalysis, analysis.Text)
	assert.Empty(t, analysis.Statistics)
	assert.Equal(t, InsightsRefusal, res.Final())
	assert.Equal(t, NoChart, code.Text)
	assert.Nil(t, res.Chart())

	for _, o := range res.Outputs {
		assert.Equal(t, models.VerdictOutOfScope, o.Verdict, o.Stage)
	}
	assert.Equal(t, []string{insightsPlanner}, fake.Calls())
}

func TestInsightsAnalystRefusal(t *testing.T) {
	replies := insightsReplies()
	replies[insightsAnalyst] = "SCOPE: out_of_scope"
	fake := newScriptedLLM(replies)

	res, err := runInsights(t, fake, nil, "Average resale price of cars in Queenstown")
	require.NoError(t, err)
	assert.Equal(t, InsightsRefusal, res.Final())
	assert.Nil(t, res.Chart())
	assert.Equal(t, []string{insightsPlanner, insightsAnalyst}, fake.Calls())
}

func TestInsightsBroadensOnce(t *testing.T) {
	replies := insightsReplies()
	replies[insightsAnalyst] = "SCOPE: in_scope\n" +
		`{"metric": "avg_price", "group_by": "none", "towns": ["QUEENSTOWN"], "flat_types": ["EXECUTIVE"]}`
	fake := newScriptedLLM(replies)

	res, err := runInsights(t, fake, nil, "Executive flat prices in Queenstown")
	require.NoError(t, err)

	analysis, _ := res.Output(models.StageAnalyze)
	require.Equal(t, models.StatusOK, analysis.Status)
	assert.Contains(t, analysis.Text, "broadened")
	require.Len(t, analysis.Statistics, 1)
	assert.Equal(t, 654444.44, analysis.Statistics[0].Value)
	assert.Equal(t, 9, analysis.Statistics[0].Count)
}

func TestInsightsInsufficientData(t *testing.T) {
	replies := insightsReplies()
	replies[insightsAnalyst] = "SCOPE: in_scope\n" +
		`{"metric": "avg_price", "group_by": "year", "towns": ["PUNGGOL"], "from_year": 2020, "to_year": 2023}`
	fake := newScriptedLLM(replies)

	res, err := runInsights(t, fake, nil, "Punggol prices 2020-2023")
	require.NoError(t, err)

	analysis, _ := res.Output(models.StageAnalyze)
	code, _ := res.Output(models.StageCode)
	assert.Equal(t, models.StatusNoData, analysis.Status)
	assert.Equal(t, InsufficientData, analysis.Text)
	assert.Equal(t, InsufficientData, res.Final())
	assert.Equal(t, NoChart, code.Text)
	assert.Nil(t, res.Chart())
	assert.Equal(t, []string{insightsPlanner, insightsAnalyst}, fake.Calls())
}

func TestInsightsMalformedQueryAborts(t *testing.T) {
	replies := insightsReplies()
	replies[insightsAnalyst] = "SCOPE: in_scope\nI would look at the average prices."
	fake := newScriptedLLM(replies)

	_, err := runInsights(t, fake, nil, "Average resale price trend in Queenstown 2020-2023")
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrMalformedReply)
}

func TestInsightsWeatherOutOfScope(t *testing.T) {
	fake := newScriptedLLM(insightsReplies())

	res, err := runInsights(t, fake, scope.NewGate(scope.ModeStrict), "What's the weather today?")
	require.NoError(t, err)
	assert.Equal(t, InsightsRefusal, res.Final())
	code, _ := res.Output(models.StageCode)
	assert.Equal(t, NoChart, code.Text)
	assert.Empty(t, fake.Calls())
}

func TestWriteWithoutPredecessorOutputs(t *testing.T) {
	g, err := GuideGraph(loadLibrary(t))
	require.NoError(t, err)
	write := g.Stages()[2]

	exec := NewExecutor(newScriptedLLM(guideReplies()), nil)
	_, err = exec.Execute(context.Background(), models.WorkflowGuide, write, models.Request{Question: "grants"},
		map[models.StageKind]models.StageOutput{models.StagePlan: {Stage: models.StagePlan, Status: models.StatusOK}})
	assert.ErrorIs(t, err, ErrMissingInput)
}

type countingExecutor struct {
	calls atomic.Int32
}

func (e *countingExecutor) Execute(context.Context, models.WorkflowName, Stage, models.Request, map[models.StageKind]models.StageOutput) (models.StageOutput, error) {
	e.calls.Add(1)
	return ok("done"), nil
}

func TestLevelWithMissingInputStartsNoStage(t *testing.T) {
	plan := Stage{Kind: models.StagePlan}
	write := Stage{Kind: models.StageWrite, After: []models.StageKind{models.StageAnalyze}}
	g := &Graph{
		Name:   models.WorkflowGuide,
		stages: []Stage{plan, write},
		levels: [][]Stage{{plan, write}},
	}

	exec := &countingExecutor{}
	_, err := NewRunner(exec).Run(context.Background(), g, models.Request{Question: "grants"})
	assert.ErrorIs(t, err, ErrStageFailed)
	assert.ErrorIs(t, err, ErrMissingInput)
	assert.Zero(t, exec.calls.Load())

	_, err = levelInputs([]Stage{write}, map[models.StageKind]models.StageOutput{models.StagePlan: ok("plan")})
	assert.ErrorIs(t, err, ErrMissingInput)

	in, err := levelInputs([]Stage{plan, write}, map[models.StageKind]models.StageOutput{models.StageAnalyze: ok("stats")})
	require.NoError(t, err)
	assert.Empty(t, in[0])
	assert.Equal(t, "stats", in[1][models.StageAnalyze].Text)
}

func TestBuildChartFallsBackOnMalformedDescription(t *testing.T) {
	analysis := models.StageOutput{
		Metric: "count",
		Group:  "town",
		Statistics: []models.Statistic{
			{Label: "BEDOK", Value: 3, Count: 3},
			{Label: "TAMPINES", Value: 4, Count: 4},
		},
	}

	spec := buildChart(analysis, llm.ParsePairs("plt.bar(df['town'], df['count'])"))
	require.NoError(t, spec.Validate())
	assert.Equal(t, chart.KindBar, spec.Kind)
	assert.Equal(t, "Town", spec.XLabel)
	assert.Equal(t, "Number of transactions", spec.YLabel)
	assert.Equal(t, []float64{3, 4}, spec.Values())

	analysis.Group = "month"
	assert.Equal(t, chart.KindLine, buildChart(analysis, nil).Kind)
}
