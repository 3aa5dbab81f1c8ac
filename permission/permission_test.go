package permission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/agentcore/core"
)

type recordingBus struct {
	mu     sync.Mutex
	events []core.Event
}

func (b *recordingBus) Publish(event core.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func TestAutoApproveResolvesSynchronously(t *testing.T) {
	bus := &recordingBus{}
	g := New(bus)

	resp, err := g.Request(context.Background(), "client1", "step1", "delete_file", "delete a file", nil, core.AutoApprove, time.Second)
	require.NoError(t, err)
	assert.True(t, resp.Approved)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Empty(t, bus.events, "auto-approve must not publish a permission-request event")
}

func TestRequestWaitsForRespond(t *testing.T) {
	bus := &recordingBus{}
	g := New(bus)

	var resp core.PermissionResponse
	var err error
	done := make(chan struct{})
	go func() {
		resp, err = g.Request(context.Background(), "client1", "step1", "delete_file", "delete a file", nil, core.RequireConfirmation, 5*time.Second)
		close(done)
	}()

	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.events) == 1
	}, time.Second, 5*time.Millisecond)

	bus.mu.Lock()
	req := bus.events[0].Payload["request"].(core.PermissionRequest)
	bus.mu.Unlock()

	require.NoError(t, g.Respond(req.RequestID, true, "looks fine"))
	<-done

	require.NoError(t, err)
	assert.True(t, resp.Approved)
	assert.Equal(t, "looks fine", resp.Reason)
}

func TestRequestTimesOut(t *testing.T) {
	g := New(&recordingBus{})

	resp, err := g.Request(context.Background(), "client1", "step1", "delete_file", "delete", nil, core.RequireConfirmation, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, resp.Approved)
	assert.Equal(t, "timeout", resp.Reason)
}

func TestRequestCancelledByContext(t *testing.T) {
	g := New(&recordingBus{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan core.PermissionResponse, 1)
	go func() {
		resp, _ := g.Request(ctx, "client1", "step1", "delete_file", "delete", nil, core.RequireConfirmation, 5*time.Second)
		done <- resp
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case resp := <-done:
		assert.False(t, resp.Approved)
		assert.Equal(t, "cancelled", resp.Reason)
	case <-time.After(time.Second):
		t.Fatal("request should have resolved after context cancellation")
	}
}

func TestRespondIsIdempotent(t *testing.T) {
	bus := &recordingBus{}
	g := New(bus)

	done := make(chan struct{})
	go func() {
		g.Request(context.Background(), "client1", "step1", "tool", "desc", nil, core.RequireConfirmation, 5*time.Second)
		close(done)
	}()

	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.events) == 1
	}, time.Second, 5*time.Millisecond)

	bus.mu.Lock()
	req := bus.events[0].Payload["request"].(core.PermissionRequest)
	bus.mu.Unlock()

	require.NoError(t, g.Respond(req.RequestID, true, ""))
	<-done

	assert.NoError(t, g.Respond(req.RequestID, false, "too late"))
}

func TestStatisticsTracksOutstandingAndAnswered(t *testing.T) {
	bus := &recordingBus{}
	g := New(bus)

	done := make(chan struct{})
	go func() {
		g.Request(context.Background(), "client1", "step1", "tool", "desc", nil, core.RequireConfirmation, 5*time.Second)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return g.Statistics().Outstanding == 1
	}, time.Second, 5*time.Millisecond)

	bus.mu.Lock()
	req := bus.events[0].Payload["request"].(core.PermissionRequest)
	bus.mu.Unlock()

	require.NoError(t, g.Respond(req.RequestID, true, ""))
	<-done

	stats := g.Statistics()
	assert.Equal(t, 0, stats.Outstanding)
	assert.Equal(t, 1, stats.Answered)
}
