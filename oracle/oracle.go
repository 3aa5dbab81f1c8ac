// Package oracle defines the LanguageOracle port and a provider-backed
// implementation. It generalizes ai/provider.go's core.AIClient
// abstraction into the three domain-specific operations this system
// actually needs: classify, plan, and synthesize, plus a streaming
// variant for conversational replies, all served by a single
// configured Provider with no multi-provider fallback.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itsneelabh/agentcore/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("agentcore/oracle")

// ClassifyResult is the LanguageOracle.classify response shape.
type ClassifyResult struct {
	Tool       string
	Confidence float64
	Reasoning  string
}

// Provider is the narrow interface a concrete LLM backend implements.
// It mirrors core.AIClient.GenerateResponse's signature (prompt in,
// completion out) so any provider package (openai, bedrock, gemini,
// anthropic) can be adapted with a thin wrapper.
type Provider interface {
	// Generate returns the model's completion for prompt. temperature
	// is passed through so callers needing deterministic output (0) get it.
	Generate(ctx context.Context, prompt, systemPrompt string, temperature float64) (string, error)
	// Stream returns successive text fragments on the returned channel;
	// the channel is closed when generation completes or ctx is done.
	// The error channel receives at most one error.
	Stream(ctx context.Context, prompt, systemPrompt string) (<-chan string, <-chan error)
}

// Oracle is the LanguageOracle implementation. It wraps a single
// Provider; multi-provider fallback (as in ai/chain_client.go) is out
// of scope for this port but the interface composes the same way
// should that be needed later.
type Oracle struct {
	provider Provider
	logger   core.Logger
}

// New creates an Oracle backed by provider.
func New(provider Provider, logger core.Logger) *Oracle {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Oracle{provider: provider, logger: logger}
}

const classifySystemPrompt = `You are a routing classifier. Given a user message and a list of valid tool names, respond with a compact JSON object: {"tool": "<name>", "confidence": <0..1>, "reasoning": "<short>"}. Pick exactly one name from the valid set. Use "conversational" for chitchat and "general_search" for general factual lookups that don't match a specific tool.`

// Classify runs classify(message, valid_tool_names) → {tool,
// confidence, reasoning}. It calls the provider at temperature 0
// for deterministic, short-token output, and tolerantly parses the
// JSON response the way the planner tolerates fenced/bare JSON.
func (o *Oracle) Classify(ctx context.Context, message string, validToolNames []string) (ClassifyResult, error) {
	ctx, span := tracer.Start(ctx, "oracle.classify", trace.WithAttributes(
		attribute.Int("oracle.valid_tool_count", len(validToolNames)),
	))
	defer span.End()

	prompt := fmt.Sprintf("Message: %s\nValid tools: %s", message, strings.Join(validToolNames, ", "))
	raw, err := o.provider.Generate(ctx, prompt, classifySystemPrompt, 0)
	if err != nil {
		span.RecordError(err)
		return ClassifyResult{}, fmt.Errorf("%w: %v", core.ErrOracle, err)
	}

	var parsed struct {
		Tool       string  `json:"tool"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &parsed); err != nil {
		span.RecordError(err)
		return ClassifyResult{}, fmt.Errorf("%w: unparseable classify response: %v", core.ErrOracle, err)
	}
	return ClassifyResult{Tool: parsed.Tool, Confidence: parsed.Confidence, Reasoning: parsed.Reasoning}, nil
}

const planSystemPrompt = `You are a task planner. Respond ONLY with a JSON object of the form {"steps": [{"id": "step_1", "toolName": "...", "description": "...", "parameters": {}, "dependencies": [], "requiresPermission": false, "parallelizable": true}, ...]}.`

// Plan implements plan(prompt_text) → text. The caller (planner
// package) owns prompt assembly and JSON-shape parsing; Plan is
// deliberately thin so the planner's parsing stays testable without an
// oracle in the loop.
func (o *Oracle) Plan(ctx context.Context, promptText string) (string, error) {
	ctx, span := tracer.Start(ctx, "oracle.plan")
	defer span.End()

	text, err := o.provider.Generate(ctx, promptText, planSystemPrompt, 0)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: %v", core.ErrOracle, err)
	}
	return text, nil
}

const synthesizeSystemPrompt = `You write a concise, natural-language answer to the user's original question from the results of the steps that were executed to answer it. Mention failures briefly if any occurred; do not apologize excessively.`

// Synthesize implements synthesize(query, successes, failures) → text.
func (o *Oracle) Synthesize(ctx context.Context, query string, successes, failures map[string]core.ToolResult) (string, error) {
	ctx, span := tracer.Start(ctx, "oracle.synthesize", trace.WithAttributes(
		attribute.Int("oracle.success_count", len(successes)),
		attribute.Int("oracle.failure_count", len(failures)),
	))
	defer span.End()

	var b strings.Builder
	fmt.Fprintf(&b, "Original question: %s\n\nResults:\n", query)
	for name, r := range successes {
		fmt.Fprintf(&b, "- %s succeeded: %s\n", name, core.FormatToolResult(r))
	}
	for name, r := range failures {
		fmt.Fprintf(&b, "- %s failed: %s\n", name, r.Error)
	}

	text, err := o.provider.Generate(ctx, b.String(), synthesizeSystemPrompt, 0.3)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: %v", core.ErrOracle, err)
	}
	return text, nil
}

const streamSystemPrompt = `You are a helpful, concise conversational assistant.`

// Stream implements stream(message, conversation_history) → async
// sequence of text fragments, used only by the orchestrator's
// simple-query path.
func (o *Oracle) Stream(ctx context.Context, message string, history []string) (<-chan string, <-chan error) {
	_, span := tracer.Start(ctx, "oracle.stream")
	prompt := message
	if len(history) > 0 {
		prompt = strings.Join(history, "\n") + "\n" + message
	}
	frag, errc := o.provider.Stream(ctx, prompt, streamSystemPrompt)

	out := make(chan string)
	outErr := make(chan error, 1)
	go func() {
		defer span.End()
		defer close(out)
		for f := range frag {
			out <- f
		}
		if err := <-errc; err != nil {
			outErr <- err
		}
		close(outErr)
	}()
	return out, outErr
}

// ExtractJSON pulls the first JSON object out of text, tolerating a
// fenced ```json ... ``` block or a bare `{...}` object embedded in
// prose. The planner uses it to parse plan and revision responses.
func ExtractJSON(text string) string {
	if start := strings.Index(text, "```json"); start != -1 {
		rest := text[start+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if start := strings.Index(text, "```"); start != -1 {
		rest := text[start+3:]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end != -1 && end > start {
		return text[start : end+1]
	}
	return text
}
