// Package planner decomposes a user query into a core.ExecutionPlan.
// Fast-track regex matching and the LLM-backed decomposition path are
// both generalized from prompt assembly (orchestration/prompt_builder.go,
// default_prompt_builder.go) and tolerant plan-JSON parsing
// (orchestration/orchestrator.go).
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/itsneelabh/agentcore/core"
	"github.com/itsneelabh/agentcore/oracle"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("agentcore/planner")

// ToolCatalog is the narrow registry slice the planner depends on:
// both for building the LLM prompt and for the fast-track check.
type ToolCatalog interface {
	Has(name string) bool
	RenderCatalog() string
	Names() []string
}

// OraclePlanner is the narrow LanguageOracle slice the planner needs.
type OraclePlanner interface {
	Plan(ctx context.Context, promptText string) (string, error)
}

// Planner produces ExecutionPlans.
type Planner struct {
	oracle  OraclePlanner
	tools   ToolCatalog
	idGen   core.IDGenerator
	clock   core.Clock
	logger  core.Logger
}

// Option configures a Planner.
type Option func(*Planner)

func WithIDGenerator(g core.IDGenerator) Option { return func(p *Planner) { p.idGen = g } }
func WithClock(c core.Clock) Option             { return func(p *Planner) { p.clock = c } }
func WithLogger(l core.Logger) Option           { return func(p *Planner) { p.logger = l } }

// New creates a Planner.
func New(oracle OraclePlanner, tools ToolCatalog, opts ...Option) *Planner {
	p := &Planner{
		oracle: oracle,
		tools:  tools,
		idGen:  core.UUIDGenerator{},
		clock:  core.SystemClock{},
		logger: core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var memoryCategories = map[string]bool{"memory": true}

// fastTrackRule is one entry in the built-in regex family.
type fastTrackRule struct {
	tool    string
	pattern *regexp.Regexp
	extract func(matches []string) map[string]interface{}
}

var fastTrackRules = []fastTrackRule{
	{
		tool:    "weather",
		pattern: regexp.MustCompile(`(?i)^(?:what's|what is|how's) the weather(?: like)?(?: in ([a-zA-Z ]+))?\??$`),
		extract: func(m []string) map[string]interface{} {
			params := map[string]interface{}{}
			if len(m) > 1 && strings.TrimSpace(m[1]) != "" {
				params["city"] = strings.TrimSpace(m[1])
			}
			return params
		},
	},
	{
		tool:    "news",
		pattern: regexp.MustCompile(`(?i)^(?:get|show|find)(?: me)? the (?:top )?(\d+)? ?(?:latest )?news(?: about (.+))?\??$`),
		extract: func(m []string) map[string]interface{} {
			params := map[string]interface{}{}
			if len(m) > 1 && strings.TrimSpace(m[1]) != "" {
				if n, err := strconv.Atoi(strings.TrimSpace(m[1])); err == nil {
					params["count"] = n
				}
			}
			if len(m) > 2 && strings.TrimSpace(m[2]) != "" {
				params["topic"] = strings.TrimSpace(m[2])
			}
			return params
		},
	},
	{
		tool:    "calculator",
		pattern: regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*([+\-*/])\s*(-?\d+(?:\.\d+)?)\s*$`),
		extract: func(m []string) map[string]interface{} {
			return map[string]interface{}{"expression": strings.Join(m[1:], " ")}
		},
	},
}

// TryFastTrack is the fast-track path: if query matches a built-in
// regex AND the corresponding tool is registered,
// return a single-step plan with requires_permission=false,
// parallelizable=false.
func (p *Planner) TryFastTrack(query string) (core.ExecutionPlan, bool) {
	for _, rule := range fastTrackRules {
		if !p.tools.Has(rule.tool) {
			continue
		}
		m := rule.pattern.FindStringSubmatch(query)
		if m == nil {
			continue
		}
		step := core.ExecutionStep{
			ID:                  "step_1",
			ToolName:            rule.tool,
			Description:         fmt.Sprintf("fast-track %s", rule.tool),
			Parameters:          rule.extract(m),
			RequiresPermission:  false,
			Parallelizable:      false,
			EstimatedDuration:   1000 * time.Millisecond,
		}
		plan := core.ExecutionPlan{
			PlanID:                 p.idGen.New(),
			OriginalQuery:          query,
			Steps:                  []core.ExecutionStep{step},
			RequiresUserPermission: false,
			CreatedAt:              p.clock.Now(),
			EstimatedTotalDuration: 2000 * time.Millisecond,
		}
		return plan, true
	}
	return core.ExecutionPlan{}, false
}

// rawStep is the tolerant wire shape for one LLM-produced step, before
// defaults are applied.
type rawStep struct {
	ID                 string                 `json:"id"`
	ToolName           string                 `json:"toolName"`
	Description        string                 `json:"description"`
	Parameters         map[string]interface{} `json:"parameters"`
	Dependencies       []string               `json:"dependencies"`
	RequiresPermission *bool                  `json:"requiresPermission"`
	Parallelizable     *bool                  `json:"parallelizable"`
}

type rawPlan struct {
	Steps []rawStep `json:"steps"`
}

// PromptInputs bundles everything the LLM planning prompt needs beyond
// the tool catalog, which the Planner renders itself from ToolCatalog.
type PromptInputs struct {
	Query               string
	ConversationHistory []string
	Memories            []string
	CrossClientContext  []string
}

// Plan runs the LLM planning path.
func (p *Planner) Plan(ctx context.Context, in PromptInputs) (core.ExecutionPlan, error) {
	ctx, span := tracer.Start(ctx, "planner.plan", trace.WithAttributes(
		attribute.Int("planner.history_len", len(in.ConversationHistory)),
	))
	defer span.End()

	promptText := p.buildPrompt(in)
	raw, err := p.oracle.Plan(ctx, promptText)
	if err != nil {
		span.RecordError(err)
		return core.ExecutionPlan{}, err
	}

	steps, err := p.parseSteps(raw)
	if err != nil {
		span.RecordError(err)
		return core.ExecutionPlan{}, fmt.Errorf("%w: %v", core.ErrPlanParse, err)
	}

	depth := criticalPathDepth(steps)
	plan := core.ExecutionPlan{
		PlanID:                 p.idGen.New(),
		OriginalQuery:          in.Query,
		Steps:                  steps,
		RequiresUserPermission: core.ComputeRequiresPermission(steps),
		CreatedAt:              p.clock.Now(),
		EstimatedTotalDuration: time.Duration(depth+1) * 1000 * time.Millisecond,
	}
	span.SetAttributes(
		attribute.String("planner.plan_id", plan.PlanID),
		attribute.Int("planner.step_count", len(steps)),
	)
	return plan, nil
}

func (p *Planner) buildPrompt(in PromptInputs) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n", in.Query)
	if len(in.ConversationHistory) > 0 {
		fmt.Fprintf(&b, "Conversation history:\n%s\n", strings.Join(in.ConversationHistory, "\n"))
	}
	if len(in.Memories) > 0 {
		fmt.Fprintf(&b, "Relevant memories:\n%s\n", strings.Join(in.Memories, "\n"))
	}
	if len(in.CrossClientContext) > 0 {
		fmt.Fprintf(&b, "Cross-client context:\n%s\n", strings.Join(in.CrossClientContext, "\n"))
	}
	fmt.Fprintf(&b, "Available tools:\n%s", p.tools.RenderCatalog())
	return b.String()
}

func (p *Planner) parseSteps(raw string) ([]core.ExecutionStep, error) {
	var rp rawPlan
	if err := json.Unmarshal([]byte(oracle.ExtractJSON(raw)), &rp); err != nil {
		return nil, err
	}

	steps := make([]core.ExecutionStep, 0, len(rp.Steps))
	for i, rs := range rp.Steps {
		id := rs.ID
		if id == "" {
			id = fmt.Sprintf("step_%d", i+1)
		}
		params := rs.Parameters
		if params == nil {
			params = map[string]interface{}{}
		}
		deps := rs.Dependencies
		if deps == nil {
			deps = []string{}
		}
		requiresPermission := false
		if rs.RequiresPermission != nil {
			requiresPermission = *rs.RequiresPermission
		}
		parallelizable := true
		if rs.Parallelizable != nil {
			parallelizable = *rs.Parallelizable
		}
		if memoryCategories[rs.ToolName] {
			requiresPermission = false
		}
		steps = append(steps, core.ExecutionStep{
			ID:                 id,
			ToolName:           rs.ToolName,
			Description:        rs.Description,
			Parameters:         params,
			Dependencies:       deps,
			RequiresPermission: requiresPermission,
			Parallelizable:     parallelizable,
			EstimatedDuration:  1000 * time.Millisecond,
		})
	}
	return steps, nil
}

// criticalPathDepth computes the longest dependency chain length
// across steps, used for estimated_total_duration.
func criticalPathDepth(steps []core.ExecutionStep) int {
	byID := make(map[string]core.ExecutionStep, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}
	memo := make(map[string]int)
	var depth func(id string, visiting map[string]bool) int
	depth = func(id string, visiting map[string]bool) int {
		if d, ok := memo[id]; ok {
			return d
		}
		if visiting[id] {
			return 0 // cycle guard; Executor is the authority on cycle rejection
		}
		visiting[id] = true
		step, ok := byID[id]
		if !ok {
			return 0
		}
		max := 0
		for _, dep := range step.Dependencies {
			if d := depth(dep, visiting); d+1 > max {
				max = d + 1
			}
		}
		delete(visiting, id)
		memo[id] = max
		return max
	}

	best := 0
	for _, s := range steps {
		if d := depth(s.ID, map[string]bool{}); d > best {
			best = d
		}
	}
	return best
}
