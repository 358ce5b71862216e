package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Handler exposes the agent over Server-Sent Events.
type Handler struct {
	log *slog.Logger
	svc *Service
}

func NewHandler(log *slog.Logger, svc *Service) *Handler {
	return &Handler{log: log, svc: svc}
}

// Register mounts the chat endpoint on mux. The caller decides which
// auth middleware wraps it.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/agents/chat", h.handleChat)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.httpError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	agentType := r.URL.Query().Get("agent_type")
	query := r.URL.Query().Get("query")

	if agentType != "ollama" {
		h.httpError(w, http.StatusBadRequest, "invalid_agent", "Invalid agent type")
		return
	}
	if query == "" {
		h.httpError(w, http.StatusBadRequest, "missing_query", "Query must not be empty")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.httpError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sendEvent := func(ev Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := h.svc.Respond(r.Context(), query, sendEvent); err != nil {
		// Headers are already out; the best we can do is log and close.
		h.log.Error("agent.chat.fail", "error", err)
		return
	}

	_ = sendEvent(Event{Event: "done", Data: ""})
}

func (h *Handler) httpError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}
