package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func TestProfileDescribe(t *testing.T) {
	p, err := NewProfile(intp(35), intp(6000), "married")
	require.NoError(t, err)
	assert.Equal(t, "age: 35, monthly household income: 6000, marital status: Married", p.Describe())

	partial, err := NewProfile(nil, intp(0), "")
	require.NoError(t, err)
	assert.Equal(t, "monthly household income: 0", partial.Describe())

	var none *Profile
	assert.True(t, none.IsEmpty())
	assert.Equal(t, "", none.Describe())
	assert.True(t, (&Profile{}).IsEmpty())
}

func TestProfileBounds(t *testing.T) {
	tests := []struct {
		name    string
		age     *int
		income  *int
		marital string
		wantErr bool
	}{
		{"all empty", nil, nil, "", false},
		{"min age", intp(18), nil, "", false},
		{"max age", intp(120), nil, "", false},
		{"too young", intp(17), nil, "", true},
		{"too old", intp(121), nil, "", true},
		{"max income", nil, intp(100000), "", false},
		{"negative income", nil, intp(-1), "", true},
		{"income too high", nil, intp(100001), "", true},
		{"single", nil, nil, "Single", false},
		{"unknown status", nil, nil, "Divorced", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProfile(tt.age, tt.income, tt.marital)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidProfile)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPipelineResultLookup(t *testing.T) {
	r := &PipelineResult{
		Workflow: WorkflowInsights,
		Outputs: []StageOutput{
			{Stage: StagePlan, Status: StatusOK, Text: "plan"},
			{Stage: StageWrite, Status: StatusOK, Text: "report"},
		},
	}
	assert.Equal(t, "report", r.Final())
	assert.Nil(t, r.Chart())

	_, ok := r.Output(StageCode)
	assert.False(t, ok)

	var nilResult *PipelineResult
	assert.Equal(t, "", nilResult.Final())
}
