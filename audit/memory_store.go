package audit

import (
	"sync"
	"time"

	"github.com/itsneelabh/agentcore/core"
)

// MemoryStore is an in-process Store backed by a map keyed by entry id plus secondary
// indices on client id, event type, and correlation id, following
// core/memory_store.go's mutex-guarded map idiom.
type MemoryStore struct {
	mu            sync.RWMutex
	entries       map[string]core.AuditEntry
	byClient      map[string][]string
	byType        map[core.AuditEventKind][]string
	byCorrelation map[string][]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:       make(map[string]core.AuditEntry),
		byClient:      make(map[string][]string),
		byType:        make(map[core.AuditEventKind][]string),
		byCorrelation: make(map[string][]string),
	}
}

func (m *MemoryStore) Append(entry core.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = entry
	m.byClient[entry.ClientID] = append(m.byClient[entry.ClientID], entry.ID)
	m.byType[entry.EventType] = append(m.byType[entry.EventType], entry.ID)
	if entry.CorrelationID != "" {
		m.byCorrelation[entry.CorrelationID] = append(m.byCorrelation[entry.CorrelationID], entry.ID)
	}
	return nil
}

// candidateIDs picks the narrowest available index to scan, falling
// back to a full scan when no index applies.
func (m *MemoryStore) candidateIDs(c Criteria) []string {
	switch {
	case c.CorrelationID != "":
		return m.byCorrelation[c.CorrelationID]
	case c.ClientID != "":
		return m.byClient[c.ClientID]
	case c.EventType != "":
		return m.byType[c.EventType]
	default:
		ids := make([]string, 0, len(m.entries))
		for id := range m.entries {
			ids = append(ids, id)
		}
		return ids
	}
}

func (m *MemoryStore) Query(c Criteria) ([]core.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.AuditEntry
	for _, id := range m.candidateIDs(c) {
		e, ok := m.entries[id]
		if ok && c.matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) Count(c Criteria) (int, error) {
	entries, _ := m.Query(c)
	return len(entries), nil
}

func (m *MemoryStore) DeleteOlderThan(cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, e := range m.entries {
		if e.Timestamp.Before(cutoff) {
			delete(m.entries, id)
			deleted++
		}
	}
	m.byClient = rebuildIndex(m.entries, func(e core.AuditEntry) string { return e.ClientID })
	m.byCorrelation = rebuildIndex(m.entries, func(e core.AuditEntry) string { return e.CorrelationID })
	m.byType = rebuildTypeIndex(m.entries)
	return deleted, nil
}

func rebuildIndex(entries map[string]core.AuditEntry, key func(core.AuditEntry) string) map[string][]string {
	idx := make(map[string][]string)
	for id, e := range entries {
		k := key(e)
		if k == "" {
			continue
		}
		idx[k] = append(idx[k], id)
	}
	return idx
}

func rebuildTypeIndex(entries map[string]core.AuditEntry) map[core.AuditEventKind][]string {
	idx := make(map[core.AuditEventKind][]string)
	for id, e := range entries {
		idx[e.EventType] = append(idx[e.EventType], id)
	}
	return idx
}
