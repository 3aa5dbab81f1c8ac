// Package orchestrator is the façade: it owns every other component
// and implements handle_message's decision tree (audit → meta-query →
// context-update routing → routing fast-path → simple-query streaming
// → planned background execution), generalizing the
// orchestration/orchestrator.go ProcessRequest / ProcessRequestStreaming
// entry points this system grew out of.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/itsneelabh/agentcore/audit"
	"github.com/itsneelabh/agentcore/core"
	"github.com/itsneelabh/agentcore/eventbus"
	"github.com/itsneelabh/agentcore/oracle"
	"github.com/itsneelabh/agentcore/permission"
	"github.com/itsneelabh/agentcore/planner"
	"github.com/itsneelabh/agentcore/recovery"
	"github.com/itsneelabh/agentcore/registry"
	"github.com/itsneelabh/agentcore/routing"
	"github.com/itsneelabh/agentcore/taskmanager"
)

// Executor is the narrow executor.Executor slice the façade depends on.
type Executor interface {
	Execute(ctx context.Context, taskID string, plan core.ExecutionPlan, clientID string, conversationHistory []string, correlationID string) (core.ExecutionResult, error)
}

// Orchestrator wires every component together and is the single entry
// point a transport (SSE, WebSocket, CLI) talks to.
type Orchestrator struct {
	bus        *eventbus.Bus
	auditLog   *audit.Log
	permission *permission.Gate
	routing    *routing.RoutingClassifier
	registry   *registry.Registry
	oracle     *oracle.Oracle
	planner    *planner.Planner
	executor   Executor
	tasks      *taskmanager.Manager
	recovery   *recovery.Manager
	monitor    *recovery.Monitor

	clock  core.Clock
	idGen  core.IDGenerator
	logger core.Logger

	mu       sync.Mutex
	history  map[string][]string // per-client conversation history
	cancels  map[string]context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithClock(c core.Clock) Option   { return func(o *Orchestrator) { o.clock = c } }
func WithIDGenerator(g core.IDGenerator) Option {
	return func(o *Orchestrator) { o.idGen = g }
}
func WithLogger(l core.Logger) Option { return func(o *Orchestrator) { o.logger = l } }
func WithMonitor(m *recovery.Monitor) Option {
	return func(o *Orchestrator) { o.monitor = m }
}

// New assembles an Orchestrator from its already-constructed
// dependencies. cmd/agentcored is the only caller that should need to
// build each of these first.
func New(
	bus *eventbus.Bus,
	auditLog *audit.Log,
	perm *permission.Gate,
	rc *routing.RoutingClassifier,
	reg *registry.Registry,
	orc *oracle.Oracle,
	pl *planner.Planner,
	ex Executor,
	tm *taskmanager.Manager,
	rec *recovery.Manager,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		bus:        bus,
		auditLog:   auditLog,
		permission: perm,
		routing:    rc,
		registry:   reg,
		oracle:     orc,
		planner:    pl,
		executor:   ex,
		tasks:      tm,
		recovery:   rec,
		clock:      core.SystemClock{},
		idGen:      core.UUIDGenerator{},
		logger:     core.NoOpLogger{},
		history:    make(map[string][]string),
		cancels:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

const maxHistoryPerClient = 50

func (o *Orchestrator) appendHistory(clientID, entry string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	h := append(o.history[clientID], entry)
	if len(h) > maxHistoryPerClient {
		h = h[len(h)-maxHistoryPerClient:]
	}
	o.history[clientID] = h
	out := make([]string, len(h))
	copy(out, h)
	return out
}

func (o *Orchestrator) historyFor(clientID string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	h := o.history[clientID]
	out := make([]string, len(h))
	copy(out, h)
	return out
}

// HandleMessage implements the handle_message(client_id, message) →
// response_text decision tree, each branch short-circuiting.
func (o *Orchestrator) HandleMessage(ctx context.Context, clientID, message string) (string, error) {
	correlationID := RequestIDFromContext(ctx)
	if correlationID == "" {
		correlationID = o.idGen.New()
	}

	_ = o.auditLog.LogEvent(clientID, core.EventQueryReceived, map[string]interface{}{"message": message}, correlationID, "")

	// Step 2: meta-query (skipped in resume mode).
	if !ResumeModeFromContext(ctx) && isMetaQuery(message) {
		resp := renderMetaResponse(o.registry.RenderCatalog(), string(o.recovery.OverallHealth()))
		o.publishResponseGenerated(clientID, resp, "meta")
		return resp, nil
	}

	// Step 3: context-update routing.
	if related := o.tasks.FindRelatedTask(clientID, message); related != nil {
		if related.State == core.TaskActive || related.State == core.TaskPaused {
			_ = o.tasks.AddContextUpdate(related.TaskID, message)
			return fmt.Sprintf("Got it, I'll factor that into task %s.", truncateID(related.TaskID)), nil
		}
	}

	// Step 4: routing fast-path.
	decision, err := o.routing.Classify(ctx, message)
	if err != nil {
		o.logger.Warn("routing classify failed, falling back to planned execution", map[string]interface{}{"error": err.Error()})
	} else if o.routing.ShouldRouteDirectly(decision) && decision.Tool != routing.SyntheticConversational && decision.Tool != routing.SyntheticGeneralSearch {
		resp, err := o.executeDirect(ctx, clientID, message, decision, correlationID)
		if err == nil {
			return resp, nil
		}
		o.logger.Warn("direct routing invocation failed, falling back", map[string]interface{}{"error": err.Error()})
	}

	// Step 5: simple-query streaming.
	if isSimpleQuery(message) {
		return o.streamConversational(ctx, clientID, message)
	}

	// Step 6: planned background execution.
	return o.beginPlannedExecution(ctx, clientID, message, correlationID)
}

// executeDirect invokes decision.Tool directly, bypassing the
// Planner/Executor entirely for a single confident match.
func (o *Orchestrator) executeDirect(ctx context.Context, clientID, message string, decision routing.Decision, correlationID string) (string, error) {
	tool, err := o.registry.Get(decision.Tool)
	if err != nil {
		return "", err
	}
	history := o.historyFor(clientID)
	result, err := tool.Execute(ctx, map[string]interface{}{"query": message}, core.ToolContext{
		ClientID:            clientID,
		ConversationHistory: history,
	})
	if err != nil {
		return "", err
	}
	text := core.FormatToolResult(result)
	o.appendHistory(clientID, message)
	o.appendHistory(clientID, text)
	o.publishResponseGenerated(clientID, text, decision.Tool)
	return text, nil
}

func (o *Orchestrator) publishResponseGenerated(clientID, text, subsystem string) {
	_ = o.bus.Publish(core.Event{
		Type:      core.EventResponseGenerated,
		Priority:  core.PriorityMedium,
		Source:    "orchestrator",
		Timestamp: o.clock.Now(),
		Payload:   map[string]interface{}{"client_id": clientID, "text": text, "subsystem": subsystem},
	})
}

// streamConversational streams the oracle's output for a simple,
// single-turn query: buffering into sentence-terminated chunks and
// publishing each as a ResponseChunk(Urgent) event. No terminal
// ResponseGenerated is published in this branch.
func (o *Orchestrator) streamConversational(ctx context.Context, clientID, message string) (string, error) {
	history := o.historyFor(clientID)
	frag, errc := o.oracle.Stream(ctx, message, history)

	var full strings.Builder
	var pending strings.Builder
	for f := range frag {
		full.WriteString(f)
		pending.WriteString(f)
		if idx := lastSentenceBoundary(pending.String()); idx > 0 {
			buffered := pending.String()
			o.publishChunk(clientID, buffered[:idx], false)
			pending.Reset()
			pending.WriteString(buffered[idx:])
		}
	}
	if err := <-errc; err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrOracle, err)
	}
	if pending.Len() > 0 {
		o.publishChunk(clientID, pending.String(), true)
	} else {
		o.publishChunk(clientID, "", true)
	}

	result := full.String()
	o.appendHistory(clientID, message)
	o.appendHistory(clientID, result)
	return result, nil
}

// lastSentenceBoundary returns the index just past the last
// whitespace-followed sentence terminator in s, or -1 if none.
func lastSentenceBoundary(s string) int {
	runes := []rune(s)
	for i := len(runes) - 2; i >= 0; i-- {
		if isSentenceTerminator(runes[i]) && (runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t') {
			return i + 2
		}
	}
	return -1
}

func (o *Orchestrator) publishChunk(clientID, text string, isComplete bool) {
	_ = o.bus.Publish(core.Event{
		Type:      core.EventResponseChunk,
		Priority:  core.PriorityUrgent,
		Source:    "orchestrator",
		Timestamp: o.clock.Now(),
		Payload: map[string]interface{}{
			"client_id":   clientID,
			"text":        text,
			"is_complete": isComplete,
		},
	})
}

// beginPlannedExecution creates an ActiveTask, replies immediately with
// a short acknowledgement, and runs planning+execution on a background
// goroutine.
func (o *Orchestrator) beginPlannedExecution(ctx context.Context, clientID, message, correlationID string) (string, error) {
	task, err := o.tasks.Create(clientID, message)
	if err != nil {
		return "", err
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[task.TaskID] = cancel
	o.mu.Unlock()

	go o.runPlannedExecution(bgCtx, task.TaskID, clientID, message, correlationID)

	return fmt.Sprintf("Working on it (task %s)...", truncateID(task.TaskID)), nil
}

func (o *Orchestrator) runPlannedExecution(ctx context.Context, taskID, clientID, message, correlationID string) {
	defer func() {
		o.mu.Lock()
		delete(o.cancels, taskID)
		o.mu.Unlock()
	}()

	_ = o.tasks.UpdateState(taskID, core.TaskActive)

	history := o.historyFor(clientID)

	plan, ok := o.planner.TryFastTrack(message)
	if !ok {
		built, err := o.planner.Plan(ctx, planner.PromptInputs{Query: message, ConversationHistory: history})
		if err != nil {
			o.recovery.RecordFailure("planner", err)
			_ = o.tasks.UpdateState(taskID, core.TaskFailed)
			_ = o.auditLog.LogEvent(clientID, core.EventExecutionFailed, map[string]interface{}{"task_id": taskID, "error": err.Error()}, correlationID, "")
			return
		}
		plan = built
	}
	_ = o.auditLog.LogEvent(clientID, core.EventPlanCreated, map[string]interface{}{"task_id": taskID, "plan_id": plan.PlanID}, correlationID, "")

	result, err := o.executor.Execute(ctx, taskID, plan, clientID, history, correlationID)
	if err != nil {
		o.recovery.RecordFailure("executor", err)
		_ = o.tasks.UpdateState(taskID, core.TaskFailed)
		_ = o.auditLog.LogEvent(clientID, core.EventExecutionFailed, map[string]interface{}{"task_id": taskID, "error": err.Error()}, correlationID, "")
		return
	}
	o.recovery.RecordSuccess("executor")

	o.appendHistory(clientID, message)
	o.appendHistory(clientID, result.FinalAnswer)
	o.publishResponseGenerated(clientID, result.FinalAnswer, "planned")

	_ = o.tasks.Complete(taskID, result)
	_ = o.bus.Publish(core.Event{
		Type:      core.EventTaskStateChanged,
		Priority:  core.PriorityMedium,
		Source:    "orchestrator",
		Timestamp: o.clock.Now(),
		Payload:   map[string]interface{}{"task_id": taskID, "state": string(core.TaskCompleted)},
	})
}

// CancelTask implements the façade's cancel operation: it cancels the
// task's background context (unblocking any in-flight oracle/tool/
// permission wait at its next checkpoint) and marks the task Cancelled.
func (o *Orchestrator) CancelTask(taskID string) error {
	o.mu.Lock()
	cancel, ok := o.cancels[taskID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return o.tasks.Cancel(taskID)
}

// RespondToPermission implements the façade's respond operation.
func (o *Orchestrator) RespondToPermission(requestID string, approved bool, reason string) error {
	return o.permission.Respond(requestID, approved, reason)
}

// ActiveTasks implements the façade's fetch-active-tasks operation.
func (o *Orchestrator) ActiveTasks(clientID string) []*core.ActiveTask {
	return o.tasks.ActiveTasksForClient(clientID)
}

// Statistics implements the façade's fetch-statistics operation.
type Statistics struct {
	Permission permission.Stats
	Health     core.HealthStatus
}

func (o *Orchestrator) Statistics() Statistics {
	return Statistics{Permission: o.permission.Statistics(), Health: o.recovery.OverallHealth()}
}

// Shutdown implements the façade's graceful shutdown: stop timers,
// flush the audit log, and close the event bus.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if o.monitor != nil {
		o.monitor.Stop()
	}
	o.auditLog.Stop()
	if _, err := o.auditLog.Cleanup(); err != nil {
		o.logger.Warn("final audit cleanup failed", map[string]interface{}{"error": err.Error()})
	}
	o.routing.Close()

	o.mu.Lock()
	for _, cancel := range o.cancels {
		cancel()
	}
	o.mu.Unlock()

	return o.bus.Shutdown(ctx)
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

