// Package executor runs one core.ExecutionPlan to completion: a
// dependency-ordered scheduler dispatches each ready step, gates tool
// calls through PermissionGate, retries transient failures with
// backoff, and synthesizes a final answer once every step settles.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/agentcore/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("agentcore/executor")

// ToolResolver is the narrow registry slice the executor depends on.
type ToolResolver interface {
	Get(name string) (core.Tool, error)
}

// Approver is the narrow PermissionGate slice the executor depends on.
type Approver interface {
	Request(ctx context.Context, clientID, stepID, tool, description string, params map[string]interface{}, level core.PermissionLevel, timeout time.Duration) (core.PermissionResponse, error)
}

// Publisher is the narrow eventbus slice the executor depends on.
type Publisher interface {
	Publish(event core.Event) error
}

// Auditor is the narrow AuditLog slice the executor depends on.
type Auditor interface {
	LogEvent(clientID string, eventType core.AuditEventKind, payload map[string]interface{}, correlationID, userID string) error
}

// Synthesizer is the narrow LanguageOracle slice the executor depends on.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, successes, failures map[string]core.ToolResult) (string, error)
}

// Reviser is the narrow Planner slice the executor depends on for
// mid-flight context injection.
type Reviser interface {
	Revise(ctx context.Context, plan core.ExecutionPlan, contextMessage string, completedStepIDs []string) (*core.ExecutionPlan, error)
}

// ContextUpdateSource drains ContextUpdates addressed to a task,
// marking them processed. TaskManager implements this.
type ContextUpdateSource interface {
	DrainContextUpdates(taskID string) []core.ContextUpdate
}

// Executor runs one ExecutionPlan to completion.
type Executor struct {
	tools       ToolResolver
	permission  Approver
	bus         Publisher
	audit       Auditor
	oracle      Synthesizer
	planner     Reviser
	updates     ContextUpdateSource
	clock       core.Clock

	maxRetries  int
	stepTimeout time.Duration
	logger      core.Logger
}

// Option configures an Executor.
type Option func(*Executor)

func WithMaxRetries(n int) Option          { return func(e *Executor) { e.maxRetries = n } }
func WithStepTimeout(d time.Duration) Option { return func(e *Executor) { e.stepTimeout = d } }
func WithClock(c core.Clock) Option         { return func(e *Executor) { e.clock = c } }
func WithLogger(l core.Logger) Option       { return func(e *Executor) { e.logger = l } }
func WithContextUpdateSource(s ContextUpdateSource) Option {
	return func(e *Executor) { e.updates = s }
}

// New creates an Executor. maxRetries defaults to 2, stepTimeout to 30s.
func New(tools ToolResolver, permission Approver, bus Publisher, audit Auditor, oracle Synthesizer, planner Reviser, opts ...Option) *Executor {
	e := &Executor{
		tools:       tools,
		permission:  permission,
		bus:         bus,
		audit:       audit,
		oracle:      oracle,
		planner:     planner,
		clock:       core.SystemClock{},
		maxRetries:  2,
		stepTimeout: 30 * time.Second,
		logger:      core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs execute(plan, client_id, conversation_history,
// correlation_id) → ExecutionResult.
func (e *Executor) Execute(ctx context.Context, taskID string, plan core.ExecutionPlan, clientID string, conversationHistory []string, correlationID string) (core.ExecutionResult, error) {
	ctx, span := tracer.Start(ctx, "executor.execute", trace.WithAttributes(
		attribute.String("executor.plan_id", plan.PlanID),
		attribute.String("executor.task_id", taskID),
		attribute.String("executor.correlation_id", correlationID),
		attribute.Int("executor.step_count", len(plan.Steps)),
	))
	defer span.End()

	start := e.clock.Now()

	_ = e.audit.LogEvent(clientID, core.EventExecutionStarted, map[string]interface{}{"plan_id": plan.PlanID}, correlationID, "")
	e.publishProgress(plan.PlanID, 0, "execution started")

	pe := &core.PlanExecution{
		PlanID:        plan.PlanID,
		ClientID:      clientID,
		OriginalQuery: plan.OriginalQuery,
		Status:        core.PlanRunning,
		Steps:         make(map[string]*core.StepExecution),
		Results:       make(map[string]core.ToolResult),
		StartedAt:     e.clock.Now(),
	}
	steps := plan.Steps
	for _, s := range steps {
		pe.Steps[s.ID] = &core.StepExecution{Step: s, Status: core.StepPending}
	}

	result, err := e.runSchedulingLoop(ctx, taskID, pe, &steps, clientID, conversationHistory)
	if err != nil {
		span.RecordError(err)
		return core.ExecutionResult{}, err
	}

	duration := e.clock.Now().Sub(start)
	result.Duration = duration

	if result.Success {
		_ = e.audit.LogEvent(clientID, core.EventExecutionCompleted, map[string]interface{}{"plan_id": plan.PlanID}, correlationID, "")
	} else {
		_ = e.audit.LogEvent(clientID, core.EventExecutionFailed, map[string]interface{}{"plan_id": plan.PlanID}, correlationID, "")
	}

	return result, nil
}

func (e *Executor) publishProgress(planID string, percent float64, message string) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(core.Event{
		Type:      core.EventProgressUpdate,
		Priority:  core.PriorityMedium,
		Source:    "executor",
		Timestamp: e.clock.Now(),
		Payload: map[string]interface{}{
			"plan_id": planID,
			"percent": percent,
			"message": message,
		},
	})
}

// runSchedulingLoop is the ready-set scheduling loop: batch
// parallel/sequential execution, progress events, and mid-flight
// context-update-driven revision.
func (e *Executor) runSchedulingLoop(ctx context.Context, taskID string, pe *core.PlanExecution, steps *[]core.ExecutionStep, clientID string, history []string) (core.ExecutionResult, error) {
	d := newDAG(*steps)
	if d.detectCycle() {
		return core.ExecutionResult{}, fmt.Errorf("%w: plan %s has a dependency cycle", core.ErrPlanStructure, pe.PlanID)
	}

	completed := make(map[string]bool)
	remaining := make(map[string]bool)
	for _, s := range *steps {
		remaining[s.ID] = true
	}

	cancelled := false

	for len(remaining) > 0 {
		ready := d.ready(remaining, completed)
		if len(ready) == 0 {
			return core.ExecutionResult{}, fmt.Errorf("%w: no ready steps but %d remain in plan %s", core.ErrPlanStructure, len(remaining), pe.PlanID)
		}

		var parallelBatch, sequentialBatch []string
		for _, id := range ready {
			if d.steps[id].Parallelizable {
				parallelBatch = append(parallelBatch, id)
			} else {
				sequentialBatch = append(sequentialBatch, id)
			}
		}

		e.runParallelBatch(ctx, pe, d, parallelBatch, clientID, history)

		for _, id := range sequentialBatch {
			e.executeStep(ctx, pe, d.steps[id], clientID, history)
		}

		for _, id := range append(append([]string{}, parallelBatch...), sequentialBatch...) {
			delete(remaining, id)
			completed[id] = true
		}

		e.publishProgress(pe.PlanID, float64(len(completed))/float64(len(*steps)), "batch completed")

		if e.updates != nil && len(remaining) > 0 {
			updates := e.updates.DrainContextUpdates(taskID)
			for _, u := range updates {
				revised, err := e.planner.Revise(ctx, core.ExecutionPlan{PlanID: pe.PlanID, OriginalQuery: pe.OriginalQuery, Steps: remainingSteps(d, remaining)}, u.Message, completedIDs(completed))
				if err != nil {
					continue
				}
				if revised == nil {
					cancelled = true
					pe.Status = core.PlanCancelled
					break
				}
				*steps = append(completedStepList(d, completed), revised.Steps...)
				d = newDAG(*steps)
				remaining = make(map[string]bool, len(revised.Steps))
				for _, s := range revised.Steps {
					if completed[s.ID] {
						continue
					}
					remaining[s.ID] = true
					if _, ok := pe.Steps[s.ID]; !ok {
						pe.Steps[s.ID] = &core.StepExecution{Step: s, Status: core.StepPending}
					}
				}
			}
		}
		if cancelled {
			break
		}
	}

	return e.finalize(ctx, pe, cancelled)
}

func remainingSteps(d *dag, remaining map[string]bool) []core.ExecutionStep {
	out := make([]core.ExecutionStep, 0, len(remaining))
	for id := range remaining {
		out = append(out, d.steps[id])
	}
	return out
}

func completedStepList(d *dag, completed map[string]bool) []core.ExecutionStep {
	out := make([]core.ExecutionStep, 0, len(completed))
	for id := range completed {
		out = append(out, d.steps[id])
	}
	return out
}

func completedIDs(completed map[string]bool) []string {
	out := make([]string, 0, len(completed))
	for id := range completed {
		out = append(out, id)
	}
	return out
}

// runParallelBatch runs every id in ids concurrently and blocks until
// all have finished and been settled into pe.
func (e *Executor) runParallelBatch(ctx context.Context, pe *core.PlanExecution, d *dag, ids []string, clientID string, history []string) {
	if len(ids) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		se := pe.Steps[id]
		se.Status = core.StepRunning
		now := e.clock.Now()
		se.StartedAt = &now
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := e.invokeWithRetry(ctx, pe, d.steps[id], clientID, history)
			se.Result = result
		}()
	}
	wg.Wait()
	for _, id := range ids {
		e.settleStep(pe, pe.Steps[id])
	}
}

func (e *Executor) executeStep(ctx context.Context, pe *core.PlanExecution, step core.ExecutionStep, clientID string, history []string) {
	se := pe.Steps[step.ID]
	se.Status = core.StepRunning
	now := e.clock.Now()
	se.StartedAt = &now
	se.Result = e.invokeWithRetry(ctx, pe, step, clientID, history)
	e.settleStep(pe, se)
}

func (e *Executor) settleStep(pe *core.PlanExecution, se *core.StepExecution) {
	now := e.clock.Now()
	se.EndedAt = &now
	if se.Result != nil {
		pe.Results[se.Step.ID] = *se.Result
		if se.Result.Success {
			se.Status = core.StepCompleted
		} else {
			se.Status = core.StepFailed
		}
	}
}

func (e *Executor) finalize(ctx context.Context, pe *core.PlanExecution, cancelled bool) (core.ExecutionResult, error) {
	successes := make(map[string]core.ToolResult)
	failures := make(map[string]core.ToolResult)
	var toolsUsed []string
	for id, se := range pe.Steps {
		r, ok := pe.Results[id]
		if !ok {
			continue
		}
		toolsUsed = append(toolsUsed, se.Step.ToolName)
		if r.Success {
			successes[se.Step.ToolName] = r
		} else {
			failures[se.Step.ToolName] = r
		}
	}

	if cancelled {
		return core.ExecutionResult{Success: false, StepResults: pe.Results, ToolsUsed: toolsUsed, FinalAnswer: "execution cancelled"}, nil
	}

	success := len(successes) > 0
	var finalAnswer string
	if success {
		text, err := e.oracle.Synthesize(ctx, pe.OriginalQuery, successes, failures)
		if err != nil {
			finalAnswer = formatFallback(pe.Results)
		} else {
			finalAnswer = text
		}
	} else {
		finalAnswer = formatFallback(pe.Results)
	}

	return core.ExecutionResult{
		Success:     success,
		FinalAnswer: finalAnswer,
		StepResults: pe.Results,
		ToolsUsed:   toolsUsed,
	}, nil
}

func formatFallback(results map[string]core.ToolResult) string {
	out := ""
	for name, r := range results {
		out += name + ": " + core.FormatToolResult(r) + "\n"
	}
	return out
}
