package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/agentcore/core"
)

func TestPublishDeliversToMatchingSubscriber(t *testing.T) {
	b := New()
	defer b.Shutdown(context.Background())

	var mu sync.Mutex
	var received []core.Event
	done := make(chan struct{}, 1)

	sub := &FuncSubscriber{
		IDValue: "sub1",
		Types:   map[core.EventType]bool{core.EventResponseGenerated: true},
		Fn: func(e core.Event) {
			mu.Lock()
			received = append(received, e)
			mu.Unlock()
			done <- struct{}{}
		},
	}
	b.Subscribe([]core.EventType{core.EventResponseGenerated}, sub)

	require.NoError(t, b.Publish(core.Event{Type: core.EventResponseGenerated, Source: "test"}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "test", received[0].Source)
}

func TestPublishSkipsNonMatchingSubscriber(t *testing.T) {
	b := New()
	defer b.Shutdown(context.Background())

	called := make(chan struct{}, 1)
	sub := &FuncSubscriber{
		IDValue: "sub1",
		Types:   map[core.EventType]bool{core.EventProgressUpdate: true},
		Fn:      func(e core.Event) { called <- struct{}{} },
	}
	b.Subscribe([]core.EventType{core.EventProgressUpdate}, sub)

	require.NoError(t, b.Publish(core.Event{Type: core.EventResponseGenerated}))

	select {
	case <-called:
		t.Fatal("subscriber should not have been invoked")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishAfterShutdownFails(t *testing.T) {
	b := New()
	require.NoError(t, b.Shutdown(context.Background()))

	err := b.Publish(core.Event{Type: core.EventResponseGenerated})
	require.ErrorIs(t, err, core.ErrBusShutDown)
}

func TestPublishReachesSubscribersOfEveryPriority(t *testing.T) {
	b := New()
	defer b.Shutdown(context.Background())

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 2)

	low := &FuncSubscriber{IDValue: "low", PriorityValue: 1, Fn: func(e core.Event) {
		mu.Lock()
		order = append(order, "low")
		mu.Unlock()
		done <- struct{}{}
	}}
	high := &FuncSubscriber{IDValue: "high", PriorityValue: 10, Fn: func(e core.Event) {
		mu.Lock()
		order = append(order, "high")
		mu.Unlock()
		done <- struct{}{}
	}}
	b.Subscribe(nil, low)
	b.Subscribe(nil, high)

	require.NoError(t, b.Publish(core.Event{Type: core.EventResponseGenerated}))

	for i := 0; i < 2; i++ {
		<-done
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
}

func TestMemoryJournalRecentOrdersOldestFirst(t *testing.T) {
	j := NewMemoryJournal(2)
	require.NoError(t, j.Append(core.Event{Source: "a"}))
	require.NoError(t, j.Append(core.Event{Source: "b"}))
	require.NoError(t, j.Append(core.Event{Source: "c"}))

	recent := j.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Source)
	assert.Equal(t, "c", recent[1].Source)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Shutdown(context.Background())

	called := make(chan struct{}, 1)
	sub := &FuncSubscriber{IDValue: "sub1", Fn: func(e core.Event) { called <- struct{}{} }}
	b.Subscribe(nil, sub)
	b.Unsubscribe("sub1")

	require.NoError(t, b.Publish(core.Event{Type: core.EventResponseGenerated}))

	select {
	case <-called:
		t.Fatal("unsubscribed subscriber should not be invoked")
	case <-time.After(100 * time.Millisecond):
	}
}
