// Package recovery implements RecoveryManager and HealthMonitor. It
// generalizes resilience/circuit_breaker.go (states
// Closed/Open/HalfOpen, ErrorClassifier, MetricsCollector) from a
// single named circuit breaker into a per-component ComponentHealth
// ring with strategy selection. retry.go carries resilience/retry.go's
// exponential-backoff helper as Retry; the Manager does not call it and
// hands every chosen strategy, Retry included, to its StrategyExecutor.
package recovery

import (
	"sync"
	"time"

	"github.com/itsneelabh/agentcore/core"
)

const (
	maxErrorRingSize = 10
	defaultThreshold = 3
	maxBackoff       = 30 * time.Second
)

// Alert is raised when a component's recovery strategy fires. Alerts
// are acknowledged but never auto-cleared.
type Alert struct {
	Component    string
	Strategy     core.RecoveryStrategy
	RaisedAt     time.Time
	Acknowledged bool
	Reason       string
}

// componentKind classifies a component for strategy selection.
type componentKind int

const (
	kindGeneral componentKind = iota
	kindCriticalInfra
	kindToolPlugin
)

// state is the manager's internal per-component tracking, layered on
// top of the public core.ComponentHealth snapshot.
type state struct {
	health      core.ComponentHealth
	kind        componentKind
	breachCount int // how many times the threshold has been crossed
}

// Manager is the RecoveryManager implementation.
type Manager struct {
	mu         sync.Mutex
	components map[string]*state
	threshold  int
	clock      core.Clock
	logger     core.Logger
	alerts     []Alert
	executor   StrategyExecutor
}

// StrategyExecutor performs the side effect of a chosen recovery
// strategy (e.g. actually restarting a component). The default no-op
// executor only records the Alert; callers wire in real actions.
type StrategyExecutor interface {
	Execute(component string, strategy core.RecoveryStrategy) error
}

// NoOpExecutor records strategies without taking any action.
type NoOpExecutor struct{}

func (NoOpExecutor) Execute(component string, strategy core.RecoveryStrategy) error { return nil }

// Option configures a Manager.
type Option func(*Manager)

func WithFailureThreshold(n int) Option {
	return func(m *Manager) { m.threshold = n }
}

func WithClock(c core.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithLogger(l core.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithStrategyExecutor(e StrategyExecutor) Option {
	return func(m *Manager) { m.executor = e }
}

// New creates a Manager with the given default failure threshold
// (failure_threshold, default 3).
func New(opts ...Option) *Manager {
	m := &Manager{
		components: make(map[string]*state),
		threshold:  defaultThreshold,
		clock:      core.SystemClock{},
		logger:     core.NoOpLogger{},
		executor:   NoOpExecutor{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterCriticalInfra marks component as critical infrastructure
// (orchestrator, registry): breaching the threshold triggers Restart.
func (m *Manager) RegisterCriticalInfra(component string) {
	m.ensure(component).kind = kindCriticalInfra
}

// RegisterToolPlugin marks component as a tool/plugin: first breach
// triggers Fallback, repeated breaches trigger Degrade.
func (m *Manager) RegisterToolPlugin(component string) {
	m.ensure(component).kind = kindToolPlugin
}

func (m *Manager) ensure(component string) *state {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLocked(component)
}

func (m *Manager) ensureLocked(component string) *state {
	s, ok := m.components[component]
	if !ok {
		s = &state{health: core.ComponentHealth{Component: component, Status: core.HealthHealthy}}
		m.components[component] = s
	}
	return s
}

func statusForCount(n int) core.HealthStatus {
	switch {
	case n == 0:
		return core.HealthHealthy
	case n <= 2:
		return core.HealthDegraded
	case n <= 4:
		return core.HealthUnhealthy
	default:
		return core.HealthCritical
	}
}

// statusRank orders HealthStatus values for OverallHealth's worst-of
// comparison, since HealthStatus is a string type with no natural order.
func statusRank(s core.HealthStatus) int {
	switch s {
	case core.HealthCritical:
		return 3
	case core.HealthUnhealthy:
		return 2
	case core.HealthDegraded:
		return 1
	default:
		return 0
	}
}

// RecordFailure registers a failure against component, advancing its
// consecutive-failure count and firing a recovery strategy once the
// threshold is crossed.
func (m *Manager) RecordFailure(component string, err error) {
	m.mu.Lock()
	s := m.ensureLocked(component)
	s.health.ConsecutiveFailures++
	s.health.LastCheck = m.clock.Now()
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	s.health.Errors = append(s.health.Errors, errMsg)
	if len(s.health.Errors) > maxErrorRingSize {
		s.health.Errors = s.health.Errors[len(s.health.Errors)-maxErrorRingSize:]
	}
	s.health.Status = statusForCount(s.health.ConsecutiveFailures)

	crossedThreshold := s.health.ConsecutiveFailures >= m.threshold &&
		s.health.ConsecutiveFailures-1 < m.threshold
	var strategy core.RecoveryStrategy
	fire := false
	if s.health.ConsecutiveFailures >= m.threshold {
		strategy = m.selectStrategy(s)
		fire = true
		if crossedThreshold {
			s.breachCount = 1
		} else {
			s.breachCount++
		}
		s.health.ActiveRecovery = strategy
	}
	m.mu.Unlock()

	if fire {
		m.fireStrategy(component, strategy, errMsg)
	}
}

func (m *Manager) selectStrategy(s *state) core.RecoveryStrategy {
	switch s.kind {
	case kindCriticalInfra:
		return core.StrategyRestart
	case kindToolPlugin:
		if s.breachCount == 0 {
			return core.StrategyFallback
		}
		return core.StrategyDegrade
	default:
		return core.StrategyRetry
	}
}

func (m *Manager) fireStrategy(component string, strategy core.RecoveryStrategy, reason string) {
	_ = m.executor.Execute(component, strategy)
	m.mu.Lock()
	m.alerts = append(m.alerts, Alert{
		Component: component,
		Strategy:  strategy,
		RaisedAt:  m.clock.Now(),
		Reason:    reason,
	})
	m.mu.Unlock()
	m.logger.Warn("recovery strategy applied", map[string]interface{}{
		"component": component,
		"strategy":  strategy,
	})
}

// RecordSuccess resets component's consecutive-failure count and marks
// it healthy.
func (m *Manager) RecordSuccess(component string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.ensureLocked(component)
	s.health.ConsecutiveFailures = 0
	s.health.Status = core.HealthHealthy
	s.health.LastSuccess = m.clock.Now()
	s.health.ActiveRecovery = ""
	s.breachCount = 0
}

// Health returns the current snapshot for component.
func (m *Manager) Health(component string) core.ComponentHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLocked(component).health
}

// Alerts returns every alert raised so far, oldest first. Acknowledging
// is left to the caller; alerts are never auto-cleared.
func (m *Manager) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// Acknowledge marks the alert at index i acknowledged.
func (m *Manager) Acknowledge(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i >= 0 && i < len(m.alerts) {
		m.alerts[i].Acknowledged = true
	}
}

// OverallHealth returns the worst status across every component, the
// HealthMonitor's get_overall_health().
func (m *Manager) OverallHealth() core.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	worst := core.HealthHealthy
	for _, s := range m.components {
		if statusRank(s.health.Status) > statusRank(worst) {
			worst = s.health.Status
		}
	}
	return worst
}
