// Package audit implements a durable, append-only audit log. Store is
// the storage port; MemoryStore generalizes core/memory_store.go's
// mutex-guarded map, and RedisStore generalizes core/redis_registry.go's
// JSON-into-Redis convention into a durable backing store with the
// same indexing semantics.
package audit

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/itsneelabh/agentcore/core"
)

// Criteria filters a query/count call. Zero-valued fields are
// unconstrained ("match anything").
type Criteria struct {
	ClientID      string
	EventType     core.AuditEventKind
	CorrelationID string
	Since         time.Time
	Until         time.Time
	Limit         int
}

func (c Criteria) matches(e core.AuditEntry) bool {
	if c.ClientID != "" && e.ClientID != c.ClientID {
		return false
	}
	if c.EventType != "" && e.EventType != c.EventType {
		return false
	}
	if c.CorrelationID != "" && e.CorrelationID != c.CorrelationID {
		return false
	}
	if !c.Since.IsZero() && e.Timestamp.Before(c.Since) {
		return false
	}
	if !c.Until.IsZero() && e.Timestamp.After(c.Until) {
		return false
	}
	return true
}

// Store is the AuditLog's storage port.
type Store interface {
	Append(entry core.AuditEntry) error
	Query(criteria Criteria) ([]core.AuditEntry, error)
	Count(criteria Criteria) (int, error)
	DeleteOlderThan(cutoff time.Time) (int, error)
}

// Log is the AuditLog façade: id assignment, clock stamping, and the
// daily cleanup timer live here, independent of the storage backend.
type Log struct {
	store     Store
	clock     core.Clock
	idGen     core.IDGenerator
	retention time.Duration
	logger    core.Logger

	mu       sync.Mutex
	lastTS   time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Log.
type Option func(*Log)

func WithClock(c core.Clock) Option {
	return func(l *Log) { l.clock = c }
}

func WithIDGenerator(g core.IDGenerator) Option {
	return func(l *Log) { l.idGen = g }
}

func WithRetention(d time.Duration) Option {
	return func(l *Log) { l.retention = d }
}

func WithLogger(log core.Logger) Option {
	return func(l *Log) { l.logger = log }
}

// New creates a Log backed by store. retention defaults to 30 days.
func New(store Store, opts ...Option) *Log {
	l := &Log{
		store:     store,
		clock:     core.SystemClock{},
		idGen:     core.UUIDGenerator{},
		retention: 30 * 24 * time.Hour,
		logger:    core.NoOpLogger{},
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogEvent appends one audit entry. Timestamps are kept monotonic
// non-decreasing within this process by clamping to the
// previous entry's timestamp when the clock hasn't advanced.
func (l *Log) LogEvent(clientID string, eventType core.AuditEventKind, payload map[string]interface{}, correlationID, userID string) error {
	l.mu.Lock()
	ts := l.clock.Now()
	if !ts.After(l.lastTS) {
		ts = l.lastTS.Add(time.Nanosecond)
	}
	l.lastTS = ts
	l.mu.Unlock()

	entry := core.AuditEntry{
		ID:            l.idGen.New(),
		Timestamp:     ts,
		ClientID:      clientID,
		UserID:        userID,
		EventType:     eventType,
		Payload:       payload,
		CorrelationID: correlationID,
	}
	if err := l.store.Append(entry); err != nil {
		l.logger.Error("audit append failed", map[string]interface{}{"error": err.Error()})
		return &core.FrameworkError{Op: "Log.LogEvent", Kind: "audit", Err: err}
	}
	return nil
}

// Query returns matches in descending timestamp order, honoring
// Criteria.Limit.
func (l *Log) Query(criteria Criteria) ([]core.AuditEntry, error) {
	entries, err := l.store.Query(criteria)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrAudit, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
	if criteria.Limit > 0 && len(entries) > criteria.Limit {
		entries = entries[:criteria.Limit]
	}
	return entries, nil
}

// Count returns the number of entries matching criteria.
func (l *Log) Count(criteria Criteria) (int, error) {
	n, err := l.store.Count(criteria)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrAudit, err)
	}
	return n, nil
}

// Cleanup deletes entries older than the configured retention horizon
// and returns the number deleted.
func (l *Log) Cleanup() (int, error) {
	cutoff := l.clock.Now().Add(-l.retention)
	n, err := l.store.DeleteOlderThan(cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrAudit, err)
	}
	return n, nil
}

// StartDailyCleanup runs Cleanup once every 24h until Stop is called.
func (l *Log) StartDailyCleanup() {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := l.Cleanup(); err != nil {
					l.logger.Error("audit cleanup failed", map[string]interface{}{"error": err.Error()})
				}
			case <-l.stop:
				return
			}
		}
	}()
}

// Stop halts the daily cleanup goroutine, if running. Safe to call more than once.
func (l *Log) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
