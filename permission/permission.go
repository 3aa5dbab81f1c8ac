// Package permission implements the PermissionGate bounded-wait
// approval broker. It generalizes the HITL subsystem
// (orchestration/hitl_controller.go's wait-for-decision loop,
// hitl_policy.go's rule evaluation, hitl_errors.go's non-failure
// interrupt signaling) from a plan-level approval gate into a
// per-step approval broker with a hard timeout instead of an
// indefinite checkpoint.
package permission

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

var tracer = otel.Tracer("agentcore/permission")

// Publisher is the narrow eventbus slice PermissionGate depends on.
type Publisher interface {
	Publish(event core.Event) error
}

// pending tracks one outstanding request's resolution channel.
type pending struct {
	requestedAt time.Time
	resolved    chan core.PermissionResponse
}

// Stats is the snapshot returned by Gate.Statistics.
type Stats struct {
	Outstanding int
	Answered    int
	AverageWait time.Duration
}

// Gate is the PermissionGate implementation.
type Gate struct {
	mu       sync.Mutex
	pending  map[string]*pending
	resolved map[string]bool
	answered int
	waitSum  time.Duration
	bus      Publisher
	idGen    core.IDGenerator
	clock    core.Clock
	logger   core.Logger
}

// Option configures a Gate.
type Option func(*Gate)

func WithLogger(l core.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

func WithIDGenerator(g2 core.IDGenerator) Option {
	return func(g *Gate) { g.idGen = g2 }
}

func WithClock(c core.Clock) Option {
	return func(g *Gate) { g.clock = c }
}

// New creates a Gate that publishes permission-request events onto bus.
func New(bus Publisher, opts ...Option) *Gate {
	g := &Gate{
		pending:  make(map[string]*pending),
		resolved: make(map[string]bool),
		bus:      bus,
		idGen:    core.UUIDGenerator{},
		clock:    core.SystemClock{},
		logger:   core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Request asks for approval. AutoApprove returns
// synchronously; otherwise it blocks the caller up to timeout waiting
// for a matching Respond call, or until ctx is cancelled (the executor
// cancels ctx when the owning task is cancelled, which resolves the
// waiter with a denied result).
func (g *Gate) Request(ctx context.Context, clientID, stepID, tool, description string, params map[string]interface{}, level core.PermissionLevel, timeout time.Duration) (core.PermissionResponse, error) {
	_, span := tracer.Start(ctx, "permission.request", trace.WithAttributes(
		attribute.String("permission.step_id", stepID),
		attribute.String("permission.tool", tool),
		attribute.String("permission.level", string(level)),
	))
	defer span.End()

	requestID := g.idGen.New()
	now := g.clock.Now()

	if level == core.AutoApprove {
		return core.PermissionResponse{RequestID: requestID, Approved: true}, nil
	}

	req := core.PermissionRequest{
		RequestID:   requestID,
		ClientID:    clientID,
		StepID:      stepID,
		ToolName:    tool,
		Description: description,
		Parameters:  params,
		Level:       level,
		RequestedAt: now,
		ExpiresAt:   now.Add(timeout),
	}

	p := &pending{requestedAt: now, resolved: make(chan core.PermissionResponse, 1)}
	g.mu.Lock()
	g.pending[requestID] = p
	g.mu.Unlock()

	if g.bus != nil {
		_ = g.bus.Publish(core.Event{
			Type:      core.EventTypePermissionRequest,
			Priority:  core.PriorityHigh,
			Source:    "permission",
			Timestamp: now,
			Payload: map[string]interface{}{
				"request": req,
			},
		})
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-p.resolved:
		g.recordAnswered(requestID, p.requestedAt)
		return resp, nil
	case <-timer.C:
		g.resolveTimeout(requestID)
		return core.PermissionResponse{RequestID: requestID, Approved: false, Reason: "timeout"}, nil
	case <-ctx.Done():
		g.resolveTimeout(requestID)
		return core.PermissionResponse{RequestID: requestID, Approved: false, Reason: "cancelled"}, nil
	}
}

// Respond resolves a pending request. Further calls for the same id,
// once resolved (by Respond or by timeout/cancellation), are no-ops;
// only an id that never existed returns ErrNotFound.
func (g *Gate) Respond(requestID string, approved bool, reason string) error {
	g.mu.Lock()
	p, ok := g.pending[requestID]
	if ok {
		delete(g.pending, requestID)
		g.resolved[requestID] = true
	}
	alreadyResolved := g.resolved[requestID]
	g.mu.Unlock()

	if !ok {
		if alreadyResolved {
			return nil
		}
		return fmt.Errorf("%w: %s", core.ErrNotFound, requestID)
	}

	p.resolved <- core.PermissionResponse{RequestID: requestID, Approved: approved, Reason: reason}
	return nil
}

func (g *Gate) resolveTimeout(requestID string) {
	g.mu.Lock()
	p, ok := g.pending[requestID]
	if ok {
		delete(g.pending, requestID)
		g.resolved[requestID] = true
	}
	g.mu.Unlock()
	if ok {
		g.recordAnswered(requestID, p.requestedAt)
	}
}

func (g *Gate) recordAnswered(requestID string, requestedAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.answered++
	g.waitSum += g.clock.Now().Sub(requestedAt)
}

// Statistics reports aggregate counters for this gate.
func (g *Gate) Statistics() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	var avg time.Duration
	if g.answered > 0 {
		avg = g.waitSum / time.Duration(g.answered)
	}
	return Stats{
		Outstanding: len(g.pending),
		Answered:    g.answered,
		AverageWait: avg,
	}
}
