package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/itsneelabh/agentcore/core"
	"github.com/itsneelabh/agentcore/eventbus"
	"github.com/itsneelabh/agentcore/orchestrator"
)

// wsUpgrader mirrors ui/transports/websocket's permissive CheckOrigin
// default (CORS enforcement belongs to a fronting proxy in this
// deployment, not the transport itself).
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsEnvelope is the bidirectional wire message shape: inbound, Message
// carries the user's text; outbound, Type/Data carry a bus event or a
// transport-level notice (connected, ack, error).
type wsEnvelope struct {
	Type     string      `json:"type"`
	ClientID string      `json:"client_id,omitempty"`
	Message  string      `json:"message,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

// websocketHandler upgrades to a bidirectional connection and pumps
// every bus event addressed to the connecting client back down the
// socket, generalizing wsClient's writePump/readPump pair
// (ui/transports/websocket/websocket.go) from a single-agent chat
// session onto this system's per-client eventbus subscription.
func websocketHandler(bus *eventbus.Bus, orch *orchestrator.Orchestrator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "websocket upgrade failed: "+err.Error(), http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		send := make(chan wsEnvelope, 256)

		go wsWritePump(conn, send, cancel)
		wsReadPump(ctx, conn, bus, orch, send)
		cancel()
	})
}

func wsWritePump(conn *websocket.Conn, send <-chan wsEnvelope, cancel context.CancelFunc) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case env, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				cancel()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cancel()
				return
			}
		}
	}
}

func wsReadPump(ctx context.Context, conn *websocket.Conn, bus *eventbus.Bus, orch *orchestrator.Orchestrator, send chan<- wsEnvelope) {
	defer close(send)

	var subID string
	var clientID string
	subscribed := false

	for {
		var in wsEnvelope
		if err := conn.ReadJSON(&in); err != nil {
			if subscribed {
				bus.Unsubscribe(subID)
			}
			return
		}
		if in.ClientID == "" || in.Message == "" {
			send <- wsEnvelope{Type: "error", Data: "client_id and message are both required"}
			continue
		}

		if !subscribed {
			clientID = in.ClientID
			subID = "ws-" + clientID
			bus.Subscribe(nil, &eventbus.FuncSubscriber{
				IDValue: subID,
				Fn: func(e core.Event) {
					if id, _ := e.Payload["client_id"].(string); id == clientID {
						select {
						case send <- wsEnvelope{Type: string(e.Type), ClientID: clientID, Data: e.Payload}:
						default:
						}
					}
				},
			})
			subscribed = true
			send <- wsEnvelope{Type: "connected", ClientID: clientID}
		}

		text, err := orch.HandleMessage(ctx, in.ClientID, in.Message)
		if err != nil {
			send <- wsEnvelope{Type: "error", ClientID: clientID, Data: err.Error()}
			continue
		}
		send <- wsEnvelope{Type: "ack", ClientID: clientID, Data: text}
	}
}
