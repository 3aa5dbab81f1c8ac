package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/itsneelabh/agentcore/core"
)

// RedisStore is a durable Store backed by Redis: entries are hashed by
// id under a namespaced key, with sorted sets providing the
// (timestamp), (client id), (event type), (correlation id) indices a
// query needs. Follows core/redis_registry.go's JSON-marshal-into-hash
// convention and core/redis_client.go's connection handling.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore wraps an existing redis client. The caller owns the
// client's lifecycle.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "agentcore:audit"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (r *RedisStore) entryKey() string             { return r.keyPrefix + ":entries" }
func (r *RedisStore) byTimeKey() string             { return r.keyPrefix + ":by_time" }
func (r *RedisStore) byClientKey(id string) string  { return r.keyPrefix + ":by_client:" + id }
func (r *RedisStore) byTypeKey(t string) string     { return r.keyPrefix + ":by_type:" + t }
func (r *RedisStore) byCorrKey(id string) string     { return r.keyPrefix + ":by_corr:" + id }

func (r *RedisStore) Append(entry core.AuditEntry) error {
	ctx := context.Background()
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	score := float64(entry.Timestamp.UnixNano())

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.entryKey(), entry.ID, data)
	pipe.ZAdd(ctx, r.byTimeKey(), &redis.Z{Score: score, Member: entry.ID})
	if entry.ClientID != "" {
		pipe.ZAdd(ctx, r.byClientKey(entry.ClientID), &redis.Z{Score: score, Member: entry.ID})
	}
	if entry.EventType != "" {
		pipe.ZAdd(ctx, r.byTypeKey(string(entry.EventType)), &redis.Z{Score: score, Member: entry.ID})
	}
	if entry.CorrelationID != "" {
		pipe.ZAdd(ctx, r.byCorrKey(entry.CorrelationID), &redis.Z{Score: score, Member: entry.ID})
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) indexKeyFor(c Criteria) string {
	switch {
	case c.CorrelationID != "":
		return r.byCorrKey(c.CorrelationID)
	case c.ClientID != "":
		return r.byClientKey(c.ClientID)
	case c.EventType != "":
		return r.byTypeKey(string(c.EventType))
	default:
		return r.byTimeKey()
	}
}

func (r *RedisStore) Query(c Criteria) ([]core.AuditEntry, error) {
	ctx := context.Background()
	ids, err := r.client.ZRevRange(ctx, r.indexKeyFor(c), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("audit redis query: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	raws, err := r.client.HMGet(ctx, r.entryKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("audit redis hmget: %w", err)
	}

	var out []core.AuditEntry
	for _, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var e core.AuditEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			continue
		}
		if c.matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *RedisStore) Count(c Criteria) (int, error) {
	entries, err := r.Query(c)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// DeleteOlderThan prunes the primary hash and the by-time index. The
// secondary client/type/correlation indices are left with stale
// members that Query already tolerates (it joins against the hash and
// drops misses), trading eventual index bloat for a single-roundtrip
// delete.
func (r *RedisStore) DeleteOlderThan(cutoff time.Time) (int, error) {
	ctx := context.Background()
	ids, err := r.client.ZRangeByScore(ctx, r.byTimeKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff.UnixNano()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("audit redis range: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := r.client.TxPipeline()
	for _, id := range ids {
		pipe.HDel(ctx, r.entryKey(), id)
		pipe.ZRem(ctx, r.byTimeKey(), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("audit redis delete: %w", err)
	}
	return len(ids), nil
}
