package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/syntellix/syntellix-go/internal/chat"
	"github.com/syntellix/syntellix-go/internal/log"
)

// ChatHandler handles the streaming answer endpoint.
//
// Endpoint:
//   - POST /api/chat/stream - newline-delimited JSON event stream
//
// Each line is one event: {"status":...}, {"chunk":...} or {"error":...},
// and the stream always ends with {"done":true}.
type ChatHandler struct {
	orchestrator *chat.Orchestrator
	logger       log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(orchestrator *chat.Orchestrator, logger log.Logger) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat/stream", h.handleStream)
}

type chatStreamRequest struct {
	TenantID       int64     `json:"tenant_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         int64     `json:"user_id"`
	AgentID        int64     `json:"agent_id"`
	Message        string    `json:"message"`
}

func (h *ChatHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	var req chatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.TenantID == 0 || req.AgentID == 0 || req.ConversationID == uuid.Nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_request", "tenant_id, agent_id and conversation_id are required")
		return
	}
	if req.Message == "" {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		writeError(h.logger, w, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot stream")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	h.logger.Info("chat stream started", "conversation_id", req.ConversationID, "agent_id", req.AgentID)

	encoder := json.NewEncoder(w)
	for event := range h.orchestrator.Answer(ctx, chat.Request{
		TenantID:       req.TenantID,
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		AgentID:        req.AgentID,
		Message:        req.Message,
	}) {
		if err := encoder.Encode(event); err != nil {
			// Client is gone; the orchestrator notices via ctx and
			// persists whatever was generated.
			h.logger.Debug("chat stream write failed", "error", err)
			return
		}
		flusher.Flush()
	}
}
