package main

import (
	"encoding/json"
	"net/http"

	"github.com/itsneelabh/agentcore/orchestrator"
	"github.com/itsneelabh/agentcore/recovery"
)

type messageRequest struct {
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
}

type messageResponse struct {
	Text string `json:"text"`
}

// messageHandler is the plain request/response entry point for a
// caller that wants one synchronous turn, no streaming: HandleMessage
// may still return only an acknowledgement for a planned-execution
// task, with the real answer arriving later over /chat/sse or /chat/ws.
func messageHandler(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.ClientID == "" || req.Message == "" {
			http.Error(w, "client_id and message are both required", http.StatusBadRequest)
			return
		}

		text, err := orch.HandleMessage(r.Context(), req.ClientID, req.Message)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messageResponse{Text: text})
	}
}

func healthHandler(mgr *recovery.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := mgr.OverallHealth()
		w.Header().Set("Content-Type", "application/json")
		if status == "unhealthy" || status == "critical" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": status,
			"alerts": mgr.Alerts(),
		})
	}
}

func statsHandler(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orch.Statistics())
	}
}
