package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/agentcore/core"
)

func coreExecutionPlan(query string) core.ExecutionPlan {
	return core.ExecutionPlan{
		PlanID:        "plan-1",
		OriginalQuery: query,
		Steps:         []core.ExecutionStep{{ID: "step_1", ToolName: "weather"}},
	}
}

type stubTools struct {
	registered map[string]bool
}

func (s stubTools) Has(name string) bool { return s.registered[name] }
func (s stubTools) RenderCatalog() string { return "- weather: get weather\n" }
func (s stubTools) Names() []string {
	names := make([]string, 0, len(s.registered))
	for n := range s.registered {
		names = append(names, n)
	}
	return names
}

type stubOracle struct {
	response string
	err      error
}

func (s stubOracle) Plan(ctx context.Context, promptText string) (string, error) {
	return s.response, s.err
}

func TestFastTrackWeather(t *testing.T) {
	p := New(stubOracle{}, stubTools{registered: map[string]bool{"weather": true}})

	plan, ok := p.TryFastTrack("what's the weather in Boston?")
	require.True(t, ok)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "weather", plan.Steps[0].ToolName)
	assert.Equal(t, "Boston", plan.Steps[0].Parameters["city"])
	assert.False(t, plan.Steps[0].RequiresPermission)
	assert.False(t, plan.Steps[0].Parallelizable)
	assert.False(t, plan.RequiresUserPermission)
}

func TestFastTrackSkippedWhenToolMissing(t *testing.T) {
	p := New(stubOracle{}, stubTools{registered: map[string]bool{}})

	_, ok := p.TryFastTrack("what's the weather in Boston?")
	assert.False(t, ok)
}

func TestPlanParsesStepsWithDefaults(t *testing.T) {
	o := stubOracle{response: `{"steps": [{"toolName": "weather", "description": "get weather"}, {"id": "s2", "toolName": "news", "dependencies": ["step_1"], "requiresPermission": true}]}`}
	p := New(o, stubTools{registered: map[string]bool{"weather": true, "news": true}})

	plan, err := p.Plan(context.Background(), PromptInputs{Query: "weather then news"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "step_1", plan.Steps[0].ID)
	assert.True(t, plan.Steps[0].Parallelizable)
	assert.False(t, plan.Steps[0].RequiresPermission)
	assert.Equal(t, "s2", plan.Steps[1].ID)
	assert.True(t, plan.Steps[1].RequiresPermission)
	assert.True(t, plan.RequiresUserPermission)
	assert.Equal(t, 2000*time.Millisecond, plan.EstimatedTotalDuration)
}

func TestPlanParsesFencedJSON(t *testing.T) {
	o := stubOracle{response: "```json\n{\"steps\": [{\"toolName\": \"weather\"}]}\n```"}
	p := New(o, stubTools{registered: map[string]bool{"weather": true}})

	plan, err := p.Plan(context.Background(), PromptInputs{Query: "weather"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
}

func TestPlanMemoryToolsAlwaysAutoApproved(t *testing.T) {
	o := stubOracle{response: `{"steps": [{"toolName": "memory", "requiresPermission": true}]}`}
	p := New(o, stubTools{registered: map[string]bool{"memory": true}})

	plan, err := p.Plan(context.Background(), PromptInputs{Query: "remember this"})
	require.NoError(t, err)
	assert.False(t, plan.Steps[0].RequiresPermission)
}

func TestReviseCancel(t *testing.T) {
	o := stubOracle{response: `{"action": "cancel"}`}
	p := New(o, stubTools{registered: map[string]bool{}})

	revised, err := p.Revise(context.Background(), coreExecutionPlan("q"), "never mind", nil)
	require.NoError(t, err)
	assert.Nil(t, revised)
}

func TestReviseContinueReturnsOriginal(t *testing.T) {
	o := stubOracle{response: `{"action": "continue"}`}
	p := New(o, stubTools{registered: map[string]bool{}})

	original := coreExecutionPlan("q")
	revised, err := p.Revise(context.Background(), original, "keep going", nil)
	require.NoError(t, err)
	require.NotNil(t, revised)
	assert.Equal(t, original.PlanID, revised.PlanID)
}

func TestReviseNewStepsProducesFreshPlan(t *testing.T) {
	o := stubOracle{response: `{"steps": [{"toolName": "weather"}]}`}
	p := New(o, stubTools{registered: map[string]bool{"weather": true}})

	original := coreExecutionPlan("q")
	revised, err := p.Revise(context.Background(), original, "check weather too", []string{"step_1"})
	require.NoError(t, err)
	require.NotNil(t, revised)
	assert.NotEqual(t, original.PlanID, revised.PlanID)
	assert.Contains(t, revised.OriginalQuery, "revised")
}

func TestReviseFallsBackToOriginalOnTransportError(t *testing.T) {
	o := stubOracle{err: assertError{}}
	p := New(o, stubTools{registered: map[string]bool{}})

	original := coreExecutionPlan("q")
	revised, err := p.Revise(context.Background(), original, "x", nil)
	require.NoError(t, err)
	require.NotNil(t, revised)
	assert.Equal(t, original.PlanID, revised.PlanID)
}

func TestReviseFallsBackToOriginalOnParseError(t *testing.T) {
	o := stubOracle{response: "not json at all and no braces"}
	p := New(o, stubTools{registered: map[string]bool{}})

	original := coreExecutionPlan("q")
	revised, err := p.Revise(context.Background(), original, "x", nil)
	require.NoError(t, err)
	require.NotNil(t, revised)
	assert.Equal(t, original.PlanID, revised.PlanID)
}

type assertError struct{}

func (assertError) Error() string { return "oracle transport failure" }
