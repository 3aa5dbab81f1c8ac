package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/itsneelabh/agentcore/core"
	"github.com/itsneelabh/agentcore/oracle"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type reviseResponse struct {
	Action string    `json:"action"`
	Steps  []rawStep `json:"steps"`
}

// Revise implements revise(plan, context_message, completed_step_ids).
// It returns (nil, nil) on "cancel" (the Executor must honor
// cancellation), the original plan unchanged on "continue", and a
// fresh plan (new plan id) when the oracle supplies new steps. Any
// parse or transport failure falls back to the original plan, never to
// cancellation.
func (p *Planner) Revise(ctx context.Context, plan core.ExecutionPlan, contextMessage string, completedStepIDs []string) (*core.ExecutionPlan, error) {
	ctx, span := tracer.Start(ctx, "planner.revise", trace.WithAttributes(
		attribute.String("planner.plan_id", plan.PlanID),
		attribute.Int("planner.completed_steps", len(completedStepIDs)),
	))
	defer span.End()

	promptText := p.buildRevisePrompt(plan, contextMessage, completedStepIDs)

	raw, err := p.oracle.Plan(ctx, promptText)
	if err != nil {
		span.RecordError(err)
		p.logger.Warn("plan revision transport failure, keeping original plan", map[string]interface{}{"error": err.Error()})
		return &plan, nil
	}

	var resp reviseResponse
	if err := json.Unmarshal([]byte(oracle.ExtractJSON(raw)), &resp); err != nil {
		p.logger.Warn("plan revision parse failure, keeping original plan", map[string]interface{}{"error": err.Error()})
		return &plan, nil
	}

	switch {
	case resp.Action == "cancel":
		return nil, nil
	case resp.Action == "continue", resp.Action == "" && len(resp.Steps) == 0:
		return &plan, nil
	default:
		steps, err := p.parseSteps(string(mustMarshalSteps(resp.Steps)))
		if err != nil {
			p.logger.Warn("plan revision produced unparseable steps, keeping original plan", map[string]interface{}{"error": err.Error()})
			return &plan, nil
		}
		depth := criticalPathDepth(steps)
		revised := core.ExecutionPlan{
			PlanID:                 p.idGen.New(),
			OriginalQuery:          fmt.Sprintf("%s (revised: %s)", plan.OriginalQuery, contextMessage),
			Steps:                  steps,
			RequiresUserPermission: core.ComputeRequiresPermission(steps),
			CreatedAt:              p.clock.Now(),
			EstimatedTotalDuration: time.Duration(depth+1) * 1000 * time.Millisecond,
		}
		return &revised, nil
	}
}

func (p *Planner) buildRevisePrompt(plan core.ExecutionPlan, contextMessage string, completedStepIDs []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original query: %s\n", plan.OriginalQuery)
	fmt.Fprintf(&b, "New context: %s\n", contextMessage)
	fmt.Fprintf(&b, "Completed steps: %s\n", strings.Join(completedStepIDs, ", "))
	fmt.Fprintf(&b, "Respond with one of: {\"action\": \"cancel\"}, {\"action\": \"continue\"}, or {\"steps\": [...]}.\n")
	return b.String()
}

// mustMarshalSteps re-encodes the already-decoded raw steps so they
// can be run back through parseSteps's defaulting logic without
// duplicating it.
func mustMarshalSteps(steps []rawStep) []byte {
	data, _ := json.Marshal(rawPlan{Steps: steps})
	return data
}
