package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/syntellix/syntellix-go/internal/conversation"
	"github.com/syntellix/syntellix-go/internal/log"
)

// ConversationHandler handles conversation management endpoints.
//
// Endpoints:
//   - POST   /api/conversations                  - create
//   - GET    /api/conversations                  - list for user+agent
//   - GET    /api/conversations/latest           - most recently active
//   - GET    /api/conversations/{id}             - fetch one
//   - GET    /api/conversations/{id}/messages    - bounded history
//   - PATCH  /api/conversations/{id}             - rename
//   - PUT    /api/conversations/{id}/pin         - pin or unpin
//   - DELETE /api/conversations/{id}             - delete
type ConversationHandler struct {
	store  *conversation.Store
	logger log.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(store *conversation.Store, logger log.Logger) *ConversationHandler {
	return &ConversationHandler{store: store, logger: logger}
}

// RegisterRoutes registers conversation routes on the given mux.
func (h *ConversationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/conversations", h.create)
	mux.HandleFunc("GET /api/conversations", h.list)
	mux.HandleFunc("GET /api/conversations/latest", h.latest)
	mux.HandleFunc("GET /api/conversations/{id}", h.get)
	mux.HandleFunc("GET /api/conversations/{id}/messages", h.messages)
	mux.HandleFunc("PATCH /api/conversations/{id}", h.rename)
	mux.HandleFunc("PUT /api/conversations/{id}/pin", h.pin)
	mux.HandleFunc("DELETE /api/conversations/{id}", h.remove)
}

type createConversationRequest struct {
	UserID  int64  `json:"user_id"`
	AgentID int64  `json:"agent_id"`
	Name    string `json:"name"`
}

func (h *ConversationHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.UserID == 0 || req.AgentID == 0 {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_request", "user_id and agent_id are required")
		return
	}

	conv, err := h.store.Create(r.Context(), req.UserID, req.AgentID, req.Name)
	if err != nil {
		h.logger.Error("create conversation failed", "error", err)
		writeError(h.logger, w, http.StatusInternalServerError, "internal_error", "failed to create conversation")
		return
	}
	writeJSON(h.logger, w, http.StatusCreated, conv)
}

func (h *ConversationHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, agentID, ok := h.userAgentParams(w, r)
	if !ok {
		return
	}
	limit := intQuery(r, "limit", 20)
	offset := intQuery(r, "offset", 0)

	conversations, err := h.store.List(r.Context(), userID, agentID, limit, offset)
	if err != nil {
		h.logger.Error("list conversations failed", "error", err)
		writeError(h.logger, w, http.StatusInternalServerError, "internal_error", "failed to list conversations")
		return
	}
	if conversations == nil {
		conversations = []*conversation.Conversation{}
	}
	writeJSON(h.logger, w, http.StatusOK, conversations)
}

func (h *ConversationHandler) latest(w http.ResponseWriter, r *http.Request) {
	userID, agentID, ok := h.userAgentParams(w, r)
	if !ok {
		return
	}

	conv, err := h.store.Latest(r.Context(), userID, agentID)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		writeError(h.logger, w, http.StatusNotFound, "not_found", "no conversations yet")
		return
	}
	if err != nil {
		h.logger.Error("latest conversation failed", "error", err)
		writeError(h.logger, w, http.StatusInternalServerError, "internal_error", "failed to load conversation")
		return
	}
	writeJSON(h.logger, w, http.StatusOK, conv)
}

func (h *ConversationHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	conv, err := h.store.Get(r.Context(), id)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		writeError(h.logger, w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("get conversation failed", "id", id, "error", err)
		writeError(h.logger, w, http.StatusInternalServerError, "internal_error", "failed to load conversation")
		return
	}
	writeJSON(h.logger, w, http.StatusOK, conv)
}

func (h *ConversationHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	limit := intQuery(r, "limit", 20)

	history, err := h.store.GetHistory(r.Context(), id, limit)
	if errors.Is(err, conversation.ErrDataIntegrity) {
		h.logger.Error("message chain corrupt", "id", id, "error", err)
		writeError(h.logger, w, http.StatusInternalServerError, "data_integrity", "conversation history is corrupt")
		return
	}
	if err != nil {
		h.logger.Error("load history failed", "id", id, "error", err)
		writeError(h.logger, w, http.StatusInternalServerError, "internal_error", "failed to load history")
		return
	}
	if history == nil {
		history = []conversation.Message{}
	}
	writeJSON(h.logger, w, http.StatusOK, history)
}

type renameConversationRequest struct {
	Name string `json:"name"`
}

func (h *ConversationHandler) rename(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req renameConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Name == "" {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	err := h.store.Rename(r.Context(), id, req.Name)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		writeError(h.logger, w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("rename conversation failed", "id", id, "error", err)
		writeError(h.logger, w, http.StatusInternalServerError, "internal_error", "failed to rename conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pinConversationRequest struct {
	Pinned bool `json:"pinned"`
}

func (h *ConversationHandler) pin(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req pinConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	err := h.store.SetPinned(r.Context(), id, req.Pinned)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		writeError(h.logger, w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("pin conversation failed", "id", id, "error", err)
		writeError(h.logger, w, http.StatusInternalServerError, "internal_error", "failed to pin conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	err := h.store.Delete(r.Context(), id)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		writeError(h.logger, w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("delete conversation failed", "id", id, "error", err)
		writeError(h.logger, w, http.StatusInternalServerError, "internal_error", "failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathID parses the {id} path segment as a UUID.
func (h *ConversationHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_request", "invalid conversation id")
		return uuid.Nil, false
	}
	return id, true
}

// userAgentParams parses the required user_id and agent_id query params.
func (h *ConversationHandler) userAgentParams(w http.ResponseWriter, r *http.Request) (userID, agentID int64, ok bool) {
	userID = int64(intQuery(r, "user_id", 0))
	agentID = int64(intQuery(r, "agent_id", 0))
	if userID == 0 || agentID == 0 {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_request", "user_id and agent_id are required")
		return 0, 0, false
	}
	return userID, agentID, true
}

func intQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
