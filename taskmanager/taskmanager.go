// Package taskmanager implements the per-client concurrent-task
// registry. It generalizes core/async_task.go's in-memory task
// tracking and orchestration's task_api.go/task_worker.go
// admission-control idiom, and reuses core.Tokenize (shared with
// routing) for find_related_task's keyword-overlap comparison.
package taskmanager

import (
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/agentcore/core"
)

const relatedTaskOverlapThreshold = 0.30

// Publisher is the narrow eventbus slice the manager depends on.
type Publisher interface {
	Publish(event core.Event) error
}

// Manager is the TaskManager implementation.
type Manager struct {
	mu               sync.Mutex
	tasks            map[string]*core.ActiveTask
	byClient         map[string]map[string]bool
	maxPerClient     int
	completionDelay  time.Duration
	cancellationDelay time.Duration

	idGen  core.IDGenerator
	clock  core.Clock
	bus    Publisher
	logger core.Logger

	timers map[string]*time.Timer
}

// Option configures a Manager.
type Option func(*Manager)

func WithMaxConcurrentTasks(n int) Option { return func(m *Manager) { m.maxPerClient = n } }
func WithIDGenerator(g core.IDGenerator) Option { return func(m *Manager) { m.idGen = g } }
func WithClock(c core.Clock) Option       { return func(m *Manager) { m.clock = c } }
func WithLogger(l core.Logger) Option     { return func(m *Manager) { m.logger = l } }
func WithCompletionRetention(d time.Duration) Option {
	return func(m *Manager) { m.completionDelay = d }
}
func WithCancellationRetention(d time.Duration) Option {
	return func(m *Manager) { m.cancellationDelay = d }
}

// New creates a Manager. maxPerClient defaults to 5
// (max_concurrent_tasks_per_client).
func New(bus Publisher, opts ...Option) *Manager {
	m := &Manager{
		tasks:             make(map[string]*core.ActiveTask),
		byClient:          make(map[string]map[string]bool),
		maxPerClient:      5,
		completionDelay:   60 * time.Second,
		cancellationDelay: 5 * time.Second,
		idGen:             core.UUIDGenerator{},
		clock:             core.SystemClock{},
		bus:               bus,
		logger:            core.NoOpLogger{},
		timers:            make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) nonTerminalCount(clientID string) int {
	n := 0
	for id := range m.byClient[clientID] {
		if t, ok := m.tasks[id]; ok && !t.State.IsTerminal() {
			n++
		}
	}
	return n
}

// Create admits a new task for clientID, rejecting it if the client
// already has maxPerClient non-terminal tasks outstanding.
func (m *Manager) Create(clientID, query string) (*core.ActiveTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nonTerminalCount(clientID) >= m.maxPerClient {
		return nil, fmt.Errorf("%w: client %s already has %d active tasks", core.ErrTooManyTasks, clientID, m.maxPerClient)
	}

	task := &core.ActiveTask{
		TaskID:        m.idGen.New(),
		ClientID:      clientID,
		OriginalQuery: query,
		State:         core.TaskPending,
		CreatedAt:     m.clock.Now(),
	}
	m.tasks[task.TaskID] = task
	if m.byClient[clientID] == nil {
		m.byClient[clientID] = make(map[string]bool)
	}
	m.byClient[clientID][task.TaskID] = true
	return task, nil
}

// ActiveTasksForClient returns every non-removed task belonging to
// clientID, in no particular order.
func (m *Manager) ActiveTasksForClient(clientID string) []*core.ActiveTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.ActiveTask, 0, len(m.byClient[clientID]))
	for id := range m.byClient[clientID] {
		if t, ok := m.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Get returns the task if it is still registered (retained).
func (m *Manager) Get(taskID string) (*core.ActiveTask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	return t, ok
}

// UpdateState transitions taskID to state. It is idempotent, and
// records started_at/completed_at on entry to Active/terminal.
func (m *Manager) UpdateState(taskID string, state core.TaskState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrNotFound, taskID)
	}
	if t.State == state {
		return nil
	}
	t.State = state
	now := m.clock.Now()
	if state == core.TaskActive && t.StartedAt == nil {
		t.StartedAt = &now
	}
	if state.IsTerminal() && t.CompletedAt == nil {
		t.CompletedAt = &now
	}
	return nil
}

// AddContextUpdate appends a background-progress message to taskID and
// publishes an EventTypeContextUpdate event.
func (m *Manager) AddContextUpdate(taskID, message string) error {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", core.ErrNotFound, taskID)
	}
	update := core.ContextUpdate{
		UpdateID:   m.idGen.New(),
		TaskID:     taskID,
		Message:    message,
		ReceivedAt: m.clock.Now(),
	}
	t.ContextUpdates = append(t.ContextUpdates, update)
	m.mu.Unlock()

	if m.bus != nil {
		_ = m.bus.Publish(core.Event{
			Type:      core.EventTypeContextUpdate,
			Priority:  core.PriorityMedium,
			Source:    "taskmanager",
			Timestamp: update.ReceivedAt,
			Payload:   map[string]interface{}{"task_id": taskID, "update": update},
		})
	}
	return nil
}

// DrainContextUpdates returns every unprocessed ContextUpdate for
// taskID and marks them processed. Satisfies executor.ContextUpdateSource.
func (m *Manager) DrainContextUpdates(taskID string) []core.ContextUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil
	}
	var drained []core.ContextUpdate
	for i := range t.ContextUpdates {
		if !t.ContextUpdates[i].Processed {
			t.ContextUpdates[i].Processed = true
			drained = append(drained, t.ContextUpdates[i])
		}
	}
	return drained
}

// FindRelatedTask returns the most recent Active/Paused task for
// clientID whose keyword set overlaps the new query's keyword set by
// more than 30%.
func (m *Manager) FindRelatedTask(clientID, query string) *core.ActiveTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	queryTokens := significantTokens(query)
	if len(queryTokens) == 0 {
		return nil
	}

	var best *core.ActiveTask
	for id := range m.byClient[clientID] {
		t, ok := m.tasks[id]
		if !ok || (t.State != core.TaskActive && t.State != core.TaskPaused) {
			continue
		}
		otherTokens := significantTokens(t.OriginalQuery)
		if overlapRatio(queryTokens, otherTokens) > relatedTaskOverlapThreshold {
			if best == nil || t.CreatedAt.After(best.CreatedAt) {
				best = t
			}
		}
	}
	return best
}

// significantTokens is core.Tokenize restricted to tokens longer than
// 2 characters.
func significantTokens(s string) map[string]bool {
	all := core.Tokenize(s)
	out := make(map[string]bool, len(all))
	for tok := range all {
		if len(tok) > 2 {
			out[tok] = true
		}
	}
	return out
}

func overlapRatio(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(intersection) / float64(smaller)
}

// Complete transitions taskID to terminal and schedules its removal
// after the completion retention delay (default 60s).
func (m *Manager) Complete(taskID string, result interface{}) error {
	if err := m.UpdateState(taskID, core.TaskCompleted); err != nil {
		return err
	}
	m.scheduleRemoval(taskID, m.completionDelay)
	return nil
}

// Cancel transitions taskID to terminal and schedules its removal
// after the cancellation retention delay (default 5s).
func (m *Manager) Cancel(taskID string) error {
	if err := m.UpdateState(taskID, core.TaskCancelled); err != nil {
		return err
	}
	m.scheduleRemoval(taskID, m.cancellationDelay)
	return nil
}

func (m *Manager) scheduleRemoval(taskID string, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.timers[taskID]; ok {
		existing.Stop()
	}
	m.timers[taskID] = time.AfterFunc(delay, func() {
		m.remove(taskID)
	})
}

func (m *Manager) remove(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return
	}
	delete(m.tasks, taskID)
	delete(m.byClient[t.ClientID], taskID)
	delete(m.timers, taskID)
}
