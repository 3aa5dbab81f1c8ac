package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/agentcore/core"
)

type fixedClock struct{ t time.Time }

func (f *fixedClock) Now() time.Time { return f.t }

func TestLogEventAssignsMonotonicTimestamps(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(NewMemoryStore(), WithClock(clock))

	require.NoError(t, l.LogEvent("client1", core.EventQueryReceived, nil, "corr1", ""))
	require.NoError(t, l.LogEvent("client1", core.EventPlanCreated, nil, "corr1", ""))

	entries, err := l.Query(Criteria{ClientID: "client1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Timestamp.After(entries[1].Timestamp) || entries[0].Timestamp.Equal(entries[1].Timestamp))
}

func TestQueryDescendingOrder(t *testing.T) {
	l := New(NewMemoryStore())
	require.NoError(t, l.LogEvent("c1", core.EventQueryReceived, nil, "", ""))
	time.Sleep(time.Millisecond)
	require.NoError(t, l.LogEvent("c1", core.EventPlanCreated, nil, "", ""))

	entries, err := l.Query(Criteria{ClientID: "c1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, core.EventPlanCreated, entries[0].EventType)
	assert.Equal(t, core.EventQueryReceived, entries[1].EventType)
}

func TestQueryFiltersByCorrelationID(t *testing.T) {
	l := New(NewMemoryStore())
	require.NoError(t, l.LogEvent("c1", core.EventQueryReceived, nil, "corr-a", ""))
	require.NoError(t, l.LogEvent("c1", core.EventPlanCreated, nil, "corr-b", ""))

	entries, err := l.Query(Criteria{CorrelationID: "corr-a"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "corr-a", entries[0].CorrelationID)
}

func TestQueryRespectsLimit(t *testing.T) {
	l := New(NewMemoryStore())
	for i := 0; i < 5; i++ {
		require.NoError(t, l.LogEvent("c1", core.EventQueryReceived, nil, "", ""))
	}
	entries, err := l.Query(Criteria{ClientID: "c1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCountMatchesQueryLength(t *testing.T) {
	l := New(NewMemoryStore())
	require.NoError(t, l.LogEvent("c1", core.EventQueryReceived, nil, "", ""))
	require.NoError(t, l.LogEvent("c2", core.EventQueryReceived, nil, "", ""))

	n, err := l.Count(Criteria{EventType: core.EventQueryReceived})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCleanupDeletesOlderThanRetention(t *testing.T) {
	clock := &fixedClock{t: time.Now().Add(-48 * time.Hour)}
	l := New(NewMemoryStore(), WithClock(clock), WithRetention(24*time.Hour))
	require.NoError(t, l.LogEvent("c1", core.EventQueryReceived, nil, "", ""))

	clock.t = time.Now()
	require.NoError(t, l.LogEvent("c1", core.EventPlanCreated, nil, "", ""))

	n, err := l.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := l.Query(Criteria{ClientID: "c1"})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, core.EventPlanCreated, remaining[0].EventType)
}
