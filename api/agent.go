package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/syntellix/syntellix-go/internal/agent"
	"github.com/syntellix/syntellix-go/internal/log"
)

// AgentHandler exposes resolved agent configuration, including the greeting
// shown before the first turn.
type AgentHandler struct {
	agents *agent.Store
	logger log.Logger
}

// NewAgentHandler creates an agent handler.
func NewAgentHandler(agents *agent.Store, logger log.Logger) *AgentHandler {
	return &AgentHandler{agents: agents, logger: logger}
}

// RegisterRoutes registers agent routes on the given mux.
func (h *AgentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/agents/{id}", h.get)
}

type agentResponse struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Description      string  `json:"description,omitempty"`
	GreetingMessage  string  `json:"greeting_message,omitempty"`
	ShowCitation     bool    `json:"show_citation"`
	TopN             int     `json:"top_n"`
	SimilarityThresh float32 `json:"similarity_threshold"`
	KnowledgeBaseIDs []int64 `json:"knowledge_base_ids"`
}

func (h *AgentHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_request", "invalid agent id")
		return
	}

	ag, err := h.agents.Resolve(r.Context(), id)
	if errors.Is(err, agent.ErrAgentNotFound) {
		writeError(h.logger, w, http.StatusNotFound, "not_found", "agent not found")
		return
	}
	if err != nil {
		h.logger.Error("resolve agent failed", "id", id, "error", err)
		writeError(h.logger, w, http.StatusInternalServerError, "internal_error", "failed to load agent")
		return
	}

	kbIDs := ag.KnowledgeBaseIDs
	if kbIDs == nil {
		kbIDs = []int64{}
	}
	writeJSON(h.logger, w, http.StatusOK, agentResponse{
		ID:               ag.ID,
		Name:             ag.Name,
		Description:      ag.Description,
		GreetingMessage:  ag.GreetingMessage,
		ShowCitation:     ag.ShowCitation,
		TopN:             ag.TopN,
		SimilarityThresh: ag.SimilarityThreshold,
		KnowledgeBaseIDs: kbIDs,
	})
}
