// Package eventbus implements a typed, priority-aware, fan-out
// publish/subscribe bus. It generalizes the bounded-worker-queue idiom
// (core/async_task.go, orchestration/task_worker.go): each subscriber
// gets its own buffered dispatch queue and goroutine, so one slow
// handler can never stall a publisher or another subscriber.
package eventbus

import (
	"context"
	"sort"
	"sync"

	"github.com/itsneelabh/agentcore/core"
)

// Subscriber receives events the bus routes to it. CanHandle lets a
// single subscriber register for a type set and still filter within it
// (e.g. only Urgent-priority events); Handle must not block for long:
// it is always run off of its own per-subscriber goroutine, but a
// permanently blocked handler fills that one bounded queue, after which
// Publish drops further events for it.
type Subscriber interface {
	ID() string
	CanHandle(event core.Event) bool
	Handle(event core.Event)
	Priority() int // higher is enqueued first among subscribers matching the same event; each handler runs on its own goroutine
}

// JournalStore is the durable append-only backing store for published
// events. MemoryJournal is the default; a Redis-streams-backed
// implementation can be substituted without changing Bus's API.
type JournalStore interface {
	Append(event core.Event) error
	Close() error
}

type subscription struct {
	sub   Subscriber
	types map[core.EventType]bool // empty set == all types
	queue chan core.Event
	done  chan struct{}
}

// FailureRecorder is the narrow slice of the recovery package the bus
// reports dispatch failures to, avoiding a circular import.
type FailureRecorder interface {
	RecordFailure(component string, err error)
}

// Bus is the process-scoped EventBus. Its lifecycle is bound to
// whatever constructs it (normally the orchestrator façade): Shutdown
// stops accepting publishes, drains in-flight dispatch, and closes the
// journal.
type Bus struct {
	mu          sync.RWMutex
	subs        []*subscription
	journal     JournalStore
	recovery    FailureRecorder
	shutdown    bool
	queueDepth  int
	wg          sync.WaitGroup
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithJournal overrides the default in-memory journal.
func WithJournal(j JournalStore) Option {
	return func(b *Bus) { b.journal = j }
}

// WithRecoveryRecorder wires dispatch failures into the RecoveryManager.
func WithRecoveryRecorder(r FailureRecorder) Option {
	return func(b *Bus) { b.recovery = r }
}

// WithSubscriberQueueDepth sets the per-subscriber buffer size (default 64).
func WithSubscriberQueueDepth(n int) Option {
	return func(b *Bus) { b.queueDepth = n }
}

// New creates a running Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		journal:    NewMemoryJournal(1000),
		queueDepth: 64,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish appends the event to the journal and enqueues it for every
// matching subscriber, then returns: it does not wait for handlers to
// run. Per-publisher FIFO is preserved because each subscriber's queue
// is itself FIFO and Publish enqueues synchronously before returning.
func (b *Bus) Publish(event core.Event) error {
	b.mu.RLock()
	if b.shutdown {
		b.mu.RUnlock()
		return core.ErrBusShutDown
	}
	matches := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if len(s.types) > 0 && !s.types[event.Type] {
			continue
		}
		if s.sub.CanHandle(event) {
			matches = append(matches, s)
		}
	}
	b.mu.RUnlock()

	if err := b.journal.Append(event); err != nil {
		return &core.FrameworkError{Op: "Bus.Publish", Kind: "eventbus", Err: err}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].sub.Priority() > matches[j].sub.Priority()
	})

	for _, s := range matches {
		select {
		case s.queue <- event:
		default:
			// Queue full: a handler is badly backed up. Drop rather than
			// block the publisher, and let the recovery loop know.
			if b.recovery != nil {
				b.recovery.RecordFailure("eventbus", &core.FrameworkError{
					Op: "Bus.Publish", Kind: "eventbus", ID: s.sub.ID(),
					Message: "subscriber queue full, event dropped",
				})
			}
		}
	}
	return nil
}

// Subscribe registers sub for the given event types (pass nil/empty to
// receive every type subject to CanHandle) and starts its dispatch
// goroutine.
func (b *Bus) Subscribe(types []core.EventType, sub Subscriber) {
	typeSet := make(map[core.EventType]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}
	s := &subscription{
		sub:   sub,
		types: typeSet,
		queue: make(chan core.Event, b.queueDepth),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	b.wg.Add(1)
	go b.dispatchLoop(s)
}

func (b *Bus) dispatchLoop(s *subscription) {
	defer b.wg.Done()
	for {
		select {
		case event, ok := <-s.queue:
			if !ok {
				return
			}
			b.safeHandle(s, event)
		case <-s.done:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case event := <-s.queue:
					b.safeHandle(s, event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) safeHandle(s *subscription, event core.Event) {
	defer func() {
		if r := recover(); r != nil && b.recovery != nil {
			b.recovery.RecordFailure("eventbus", &core.FrameworkError{
				Op: "Subscriber.Handle", Kind: "eventbus", ID: s.sub.ID(),
				Message: "handler panicked",
			})
		}
	}()
	s.sub.Handle(event)
}

// Unsubscribe stops delivering to the subscriber with the given id.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.sub.ID() == id {
			close(s.done)
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Shutdown stops accepting new publishes, drains in-flight dispatch for
// every subscriber, and closes the journal.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		return nil
	}
	b.shutdown = true
	subs := append([]*subscription(nil), b.subs...)
	b.mu.Unlock()

	for _, s := range subs {
		close(s.done)
	}

	drained := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
	}
	return b.journal.Close()
}

// FuncSubscriber adapts a plain function into a Subscriber, the way
// most components want to subscribe without defining a named type.
type FuncSubscriber struct {
	IDValue       string
	Types         map[core.EventType]bool
	PriorityValue int
	Fn            func(core.Event)
}

func (f *FuncSubscriber) ID() string { return f.IDValue }

func (f *FuncSubscriber) CanHandle(event core.Event) bool {
	if len(f.Types) == 0 {
		return true
	}
	return f.Types[event.Type]
}

func (f *FuncSubscriber) Handle(event core.Event) { f.Fn(event) }

func (f *FuncSubscriber) Priority() int { return f.PriorityValue }
