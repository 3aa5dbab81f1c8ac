package eventbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/itsneelabh/agentcore/core"
)

// MemoryJournal keeps the most recent N published events in a ring
// buffer. It is the default journal and what every test uses; it
// follows core/memory_store.go's in-process store idiom.
type MemoryJournal struct {
	mu       sync.Mutex
	buf      []core.Event
	capacity int
	next     int
	filled   bool
}

// NewMemoryJournal creates a ring-buffered journal holding at most
// capacity events.
func NewMemoryJournal(capacity int) *MemoryJournal {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryJournal{buf: make([]core.Event, capacity), capacity: capacity}
}

func (j *MemoryJournal) Append(event core.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.buf[j.next] = event
	j.next = (j.next + 1) % j.capacity
	if j.next == 0 {
		j.filled = true
	}
	return nil
}

// Recent returns the journaled events oldest-first.
func (j *MemoryJournal) Recent() []core.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.filled {
		out := make([]core.Event, j.next)
		copy(out, j.buf[:j.next])
		return out
	}
	out := make([]core.Event, j.capacity)
	copy(out, j.buf[j.next:])
	copy(out[j.capacity-j.next:], j.buf[:j.next])
	return out
}

func (j *MemoryJournal) Close() error { return nil }

// RedisJournal persists published events to a Redis list, giving the
// bus a durable record that survives process restarts. Follows
// core/redis_client.go's connection handling and
// core/redis_registry.go's JSON-marshal-into-list convention.
type RedisJournal struct {
	client *redis.Client
	key    string
}

// NewRedisJournal wraps an existing redis client. The caller owns the
// client's lifecycle; Close does not close it.
func NewRedisJournal(client *redis.Client, key string) *RedisJournal {
	if key == "" {
		key = "agentcore:eventbus:journal"
	}
	return &RedisJournal{client: client, key: key}
}

func (j *RedisJournal) Append(event core.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ctx := context.Background()
	return j.client.RPush(ctx, j.key, data).Err()
}

func (j *RedisJournal) Close() error { return nil }
