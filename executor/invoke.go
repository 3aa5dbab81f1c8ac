package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/itsneelabh/agentcore/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// invokeWithRetry runs one step: permission gating, tool resolution,
// timeout-bounded invocation, and retry with exponential backoff
// 2^retry × 1000ms up to e.maxRetries.
func (e *Executor) invokeWithRetry(ctx context.Context, pe *core.PlanExecution, step core.ExecutionStep, clientID string, history []string) *core.ToolResult {
	ctx, span := tracer.Start(ctx, "executor.invoke_step", trace.WithAttributes(
		attribute.String("executor.step_id", step.ID),
		attribute.String("executor.tool_name", step.ToolName),
	))
	defer span.End()

	if step.RequiresPermission {
		level := core.RequireConfirmation
		resp, err := e.permission.Request(ctx, clientID, step.ID, step.ToolName, step.Description, step.Parameters, level, 5*time.Minute)
		if err != nil || !resp.Approved {
			reason := "denied"
			if err != nil {
				reason = err.Error()
			} else if resp.Reason != "" {
				reason = resp.Reason
			}
			return &core.ToolResult{Success: false, Error: fmt.Sprintf("%v: %s", core.ErrPermissionDenied, reason)}
		}
	}

	tool, err := e.tools.Get(step.ToolName)
	if err != nil {
		return &core.ToolResult{Success: false, Error: fmt.Sprintf("%v: %s", core.ErrToolUnavailable, step.ToolName)}
	}

	tctx := core.ToolContext{
		ClientID:            clientID,
		ConversationHistory: history,
		PreviousStepResults: pe.Results,
	}

	var lastResult core.ToolResult
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return &core.ToolResult{Success: false, Error: ctx.Err().Error()}
			case <-timer.C:
			}
		}

		stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
		lastResult, lastErr = tool.Execute(stepCtx, step.Parameters, tctx)
		cancel()

		if lastErr == nil && lastResult.Success {
			pe.Steps[step.ID].RetryCount = attempt
			return &lastResult
		}
	}

	pe.Steps[step.ID].RetryCount = e.maxRetries
	errMsg := lastResult.Error
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	if errMsg == "" {
		errMsg = "tool execution failed after retries"
	}
	return &core.ToolResult{Success: false, Error: fmt.Sprintf("%v: %s", core.ErrToolExecution, errMsg)}
}
