package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/itsneelabh/agentcore/core"
	"github.com/itsneelabh/agentcore/eventbus"
	"github.com/itsneelabh/agentcore/orchestrator"
)

// sseHandler streams one client's ResponseChunk/ResponseGenerated/
// TaskStateChanged events as Server-Sent Events. Grounded on
// ui/transports/sse/sse.go: the http.Flusher check, the SSE header
// set, and the event/data framing are reused verbatim; what changes is
// the event source, since this system streams off the shared
// eventbus.Bus rather than a per-session agent.StreamResponse channel.
func sseHandler(bus *eventbus.Bus, orch *orchestrator.Orchestrator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "SSE not supported", http.StatusInternalServerError)
			return
		}

		clientID := r.URL.Query().Get("client_id")
		message := r.URL.Query().Get("message")
		if clientID == "" || message == "" {
			http.Error(w, "client_id and message query parameters are required", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		events := make(chan core.Event, 64)
		subID := fmt.Sprintf("sse-%s-%s", clientID, uuid.NewString())
		sub := &eventbus.FuncSubscriber{
			IDValue: subID,
			Fn: func(e core.Event) {
				if id, _ := e.Payload["client_id"].(string); id == clientID {
					select {
					case events <- e:
					default:
					}
				}
			},
		}
		bus.Subscribe(nil, sub)
		defer bus.Unsubscribe(subID)

		ctx := r.Context()
		respCh := make(chan struct {
			text string
			err  error
		}, 1)
		go func() {
			text, err := orch.HandleMessage(ctx, clientID, message)
			respCh <- struct {
				text string
				err  error
			}{text, err}
		}()

		// awaitingBackground is set once only when HandleMessage's
		// immediate reply is the planned-execution acknowledgement
		// (see orchestrator.beginPlannedExecution): every other reply
		// path (meta, direct routing, context-update ack, conversational
		// stream) is already complete by the time HandleMessage returns.
		awaitingBackground := false
		for {
			select {
			case <-ctx.Done():
				return
			case res := <-respCh:
				if res.err != nil {
					sendEvent(w, flusher, "error", map[string]string{"error": res.err.Error()})
					return
				}
				sendEvent(w, flusher, "ack", map[string]string{"text": res.text})
				if strings.Contains(res.text, "Working on it") {
					awaitingBackground = true
					continue
				}
				sendEvent(w, flusher, "done", map[string]bool{"finished": true})
				return
			case event := <-events:
				sendEvent(w, flusher, string(event.Type), event.Payload)
				if awaitingBackground && (event.Type == core.EventResponseGenerated || event.Type == core.EventTaskStateChanged) {
					sendEvent(w, flusher, "done", map[string]bool{"finished": true})
					return
				}
			}
		}
	})
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
	flusher.Flush()
}
