package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/agentcore/core"
)

type stubTool struct {
	name    string
	result  core.ToolResult
	err     error
	calls   int
	mu      sync.Mutex
	failN   int // fail this many times before succeeding
}

func (s *stubTool) Execute(ctx context.Context, params map[string]interface{}, tctx core.ToolContext) (core.ToolResult, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	if call <= s.failN {
		return core.ToolResult{Success: false, Error: "transient"}, nil
	}
	if s.err != nil {
		return core.ToolResult{}, s.err
	}
	return s.result, nil
}

type stubRegistry struct {
	tools map[string]*stubTool
}

func (r *stubRegistry) Get(name string) (core.Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, core.ErrToolUnavailable
	}
	return t, nil
}

type autoApprovePermission struct{}

func (autoApprovePermission) Request(ctx context.Context, clientID, stepID, tool, description string, params map[string]interface{}, level core.PermissionLevel, timeout time.Duration) (core.PermissionResponse, error) {
	return core.PermissionResponse{Approved: true}, nil
}

type denyingPermission struct{}

func (denyingPermission) Request(ctx context.Context, clientID, stepID, tool, description string, params map[string]interface{}, level core.PermissionLevel, timeout time.Duration) (core.PermissionResponse, error) {
	return core.PermissionResponse{Approved: false, Reason: "no"}, nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(event core.Event) error { return nil }

type noopAuditor struct{}

func (noopAuditor) LogEvent(clientID string, eventType core.AuditEventKind, payload map[string]interface{}, correlationID, userID string) error {
	return nil
}

type stubSynthesizer struct {
	text string
	err  error
}

func (s stubSynthesizer) Synthesize(ctx context.Context, query string, successes, failures map[string]core.ToolResult) (string, error) {
	return s.text, s.err
}

type noopReviser struct{}

func (noopReviser) Revise(ctx context.Context, plan core.ExecutionPlan, contextMessage string, completedStepIDs []string) (*core.ExecutionPlan, error) {
	return &plan, nil
}

func newTestExecutor(registry *stubRegistry, perm Approver, synth Synthesizer, opts ...Option) *Executor {
	base := []Option{WithStepTimeout(time.Second)}
	return New(registry, perm, noopPublisher{}, noopAuditor{}, synth, noopReviser{}, append(base, opts...)...)
}

func TestExecuteSingleStepSuccess(t *testing.T) {
	reg := &stubRegistry{tools: map[string]*stubTool{
		"weather": {name: "weather", result: core.ToolResult{Success: true, Data: map[string]interface{}{"formatted": "sunny"}}},
	}}
	e := newTestExecutor(reg, autoApprovePermission{}, stubSynthesizer{text: "It is sunny."})

	plan := core.ExecutionPlan{
		PlanID: "plan1",
		Steps:  []core.ExecutionStep{{ID: "step_1", ToolName: "weather", Parallelizable: true}},
	}

	result, err := e.Execute(context.Background(), "task1", plan, "client1", nil, "corr1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "It is sunny.", result.FinalAnswer)
	assert.Contains(t, result.ToolsUsed, "weather")
}

func TestExecuteDependencyOrdering(t *testing.T) {
	track := func(name string) *stubTool {
		return &stubTool{name: name, result: core.ToolResult{Success: true}}
	}
	reg := &stubRegistry{tools: map[string]*stubTool{
		"first":  track("first"),
		"second": track("second"),
	}}
	e := newTestExecutor(reg, autoApprovePermission{}, stubSynthesizer{text: "done"})

	plan := core.ExecutionPlan{
		PlanID: "plan1",
		Steps: []core.ExecutionStep{
			{ID: "step_1", ToolName: "first", Parallelizable: true},
			{ID: "step_2", ToolName: "second", Dependencies: []string{"step_1"}, Parallelizable: true},
		},
	}

	result, err := e.Execute(context.Background(), "task1", plan, "client1", nil, "corr1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.StepResults, 2)
}

func TestExecuteDetectsCycle(t *testing.T) {
	reg := &stubRegistry{tools: map[string]*stubTool{"a": {name: "a"}}}
	e := newTestExecutor(reg, autoApprovePermission{}, stubSynthesizer{})

	plan := core.ExecutionPlan{
		PlanID: "plan1",
		Steps: []core.ExecutionStep{
			{ID: "step_1", ToolName: "a", Dependencies: []string{"step_2"}},
			{ID: "step_2", ToolName: "a", Dependencies: []string{"step_1"}},
		},
	}

	_, err := e.Execute(context.Background(), "task1", plan, "client1", nil, "corr1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPlanStructure)
}

func TestExecutePermissionDeniedFailsStepButContinues(t *testing.T) {
	reg := &stubRegistry{tools: map[string]*stubTool{
		"delete": {name: "delete", result: core.ToolResult{Success: true}},
		"notify": {name: "notify", result: core.ToolResult{Success: true}},
	}}
	e := newTestExecutor(reg, denyingPermission{}, stubSynthesizer{text: "partial"})

	plan := core.ExecutionPlan{
		PlanID: "plan1",
		Steps: []core.ExecutionStep{
			{ID: "step_1", ToolName: "delete", RequiresPermission: true, Parallelizable: true},
			{ID: "step_2", ToolName: "notify", Parallelizable: true},
		},
	}

	result, err := e.Execute(context.Background(), "task1", plan, "client1", nil, "corr1")
	require.NoError(t, err)
	assert.True(t, result.Success, "one successful step keeps the overall outcome Completed")
	assert.False(t, result.StepResults["step_1"].Success)
	assert.True(t, result.StepResults["step_2"].Success)
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	reg := &stubRegistry{tools: map[string]*stubTool{
		"flaky": {name: "flaky", failN: 1, result: core.ToolResult{Success: true}},
	}}
	e := newTestExecutor(reg, autoApprovePermission{}, stubSynthesizer{text: "ok"}, WithMaxRetries(2))

	plan := core.ExecutionPlan{
		PlanID: "plan1",
		Steps:  []core.ExecutionStep{{ID: "step_1", ToolName: "flaky", Parallelizable: true}},
	}

	result, err := e.Execute(context.Background(), "task1", plan, "client1", nil, "corr1")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestExecuteAllStepsFailReturnsFailed(t *testing.T) {
	reg := &stubRegistry{tools: map[string]*stubTool{
		"broken": {name: "broken", result: core.ToolResult{Success: false, Error: "nope"}},
	}}
	e := newTestExecutor(reg, autoApprovePermission{}, stubSynthesizer{}, WithMaxRetries(0))

	plan := core.ExecutionPlan{
		PlanID: "plan1",
		Steps:  []core.ExecutionStep{{ID: "step_1", ToolName: "broken", Parallelizable: true}},
	}

	result, err := e.Execute(context.Background(), "task1", plan, "client1", nil, "corr1")
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestExecuteSynthesisErrorFallsBackToFormattedResults(t *testing.T) {
	reg := &stubRegistry{tools: map[string]*stubTool{
		"weather": {name: "weather", result: core.ToolResult{Success: true, Data: map[string]interface{}{"formatted": "sunny"}}},
	}}
	e := newTestExecutor(reg, autoApprovePermission{}, stubSynthesizer{err: assertError{}})

	plan := core.ExecutionPlan{
		PlanID: "plan1",
		Steps:  []core.ExecutionStep{{ID: "step_1", ToolName: "weather", Parallelizable: true}},
	}

	result, err := e.Execute(context.Background(), "task1", plan, "client1", nil, "corr1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.FinalAnswer, "sunny")
}

type assertError struct{}

func (assertError) Error() string { return "synthesis failure" }
