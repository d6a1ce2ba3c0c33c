// Package chat orchestrates one conversational turn: persist the user
// message, retrieve evidence, stream a grounded answer, persist it.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/syntellix/syntellix-go/internal/agent"
	"github.com/syntellix/syntellix-go/internal/conversation"
	"github.com/syntellix/syntellix-go/internal/llm"
	"github.com/syntellix/syntellix-go/internal/retrieval"
)

// snippetRunes bounds the citation snippet taken from each source node.
const snippetRunes = 200

// AgentResolver looks up the agent configuration a turn runs under.
type AgentResolver interface {
	Resolve(ctx context.Context, agentID int64) (*agent.Agent, error)
}

// HistoryStore persists messages and serves bounded history.
type HistoryStore interface {
	AppendMessage(ctx context.Context, params conversation.AppendParams) (*conversation.Message, error)
	GetHistory(ctx context.Context, conversationID uuid.UUID, maxMessages int) ([]conversation.Message, error)
}

// Retriever produces ranked evidence for a query within a scope.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) ([]retrieval.Result, error)
}

// Orchestrator drives the turn state machine.
type Orchestrator struct {
	agents       AgentResolver
	store        HistoryStore
	retriever    Retriever
	model        llm.ChatModel
	historyLimit int
	logger       *slog.Logger
}

// NewOrchestrator creates an orchestrator. historyLimit bounds the
// conversation history handed to the model; zero uses 20. logger may be nil.
func NewOrchestrator(agents AgentResolver, store HistoryStore, retriever Retriever, model llm.ChatModel, historyLimit int, logger *slog.Logger) *Orchestrator {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		agents:       agents,
		store:        store,
		retriever:    retriever,
		model:        model,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// Request describes one user turn.
type Request struct {
	TenantID       int64
	ConversationID uuid.UUID
	UserID         int64
	AgentID        int64
	Message        string
}

// Answer runs the turn and streams its events. The returned channel always
// delivers a final Done event (unless the caller's context dies first) and
// is closed when the turn finishes.
//
// Client cancellation stops the model stream promptly but never discards
// generated text: whatever partial answer exists is persisted so history
// matches what the user saw.
func (o *Orchestrator) Answer(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		o.run(ctx, req, events)
	}()
	return events
}

// emit delivers ev unless the consumer's context is gone.
func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) run(ctx context.Context, req Request, events chan<- Event) {
	logger := o.logger.With("conversation_id", req.ConversationID, "agent_id", req.AgentID)

	fail := func(stage string, err error) {
		logger.Error("turn failed", "stage", stage, "error", err)
		emit(ctx, events, Event{Error: fmt.Sprintf("%s: %v", stage, err)})
		emit(ctx, events, Event{Done: true})
	}

	if req.Message == "" {
		fail("validating message", fmt.Errorf("message is empty"))
		return
	}

	ag, err := o.agents.Resolve(ctx, req.AgentID)
	if err != nil {
		fail("resolving agent", err)
		return
	}

	history, err := o.store.GetHistory(ctx, req.ConversationID, o.historyLimit)
	if err != nil {
		fail("loading history", err)
		return
	}

	// The store links the message to the chain tail under its own lock;
	// the history read above is only prompt context.
	if _, err := o.store.AppendMessage(ctx, conversation.AppendParams{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		AgentID:        req.AgentID,
		Role:           conversation.RoleUser,
		Body:           req.Message,
	}); err != nil {
		fail("persisting user message", err)
		return
	}

	// The user message stays persisted from here on, even if retrieval or
	// generation fails, so the record matches what the user sent.
	emit(ctx, events, Event{Status: StatusRetrieving})
	results, err := o.retriever.Retrieve(ctx, retrieval.Request{
		TenantID:            req.TenantID,
		KnowledgeBaseIDs:    ag.KnowledgeBaseIDs,
		Query:               req.Message,
		TopN:                ag.TopN,
		SimilarityThreshold: ag.SimilarityThreshold,
	})
	if err != nil {
		fail("retrieving", err)
		return
	}
	emit(ctx, events, Event{Status: StatusRetrievingDone})

	if len(results) == 0 {
		// No evidence: answer with the agent's canned text and skip the
		// model entirely.
		emit(ctx, events, Event{Chunk: ag.EmptyResponse})
		if err := o.persistAnswer(ctx, req, ag.EmptyResponse, nil); err != nil {
			fail("persisting answer", err)
			return
		}
		emit(ctx, events, Event{Done: true})
		logger.Info("turn answered without evidence")
		return
	}

	emit(ctx, events, Event{Status: StatusGenerating})

	turns := make([]llm.Turn, 0, len(history)+1)
	for _, msg := range history {
		role := llm.RoleUser
		if msg.Role == conversation.RoleAgent {
			role = llm.RoleAssistant
		}
		turns = append(turns, llm.Turn{Role: role, Content: msg.Body})
	}
	turns = append(turns, llm.Turn{Role: llm.RoleUser, Content: req.Message})

	systemPrompt := groundedSystemPrompt(retrieval.FormatContext(results))

	var answer []byte
	streamErr := o.model.StreamChat(ctx, systemPrompt, turns, func(token string) error {
		answer = append(answer, token...)
		if !emit(ctx, events, Event{Chunk: token}) {
			return context.Cause(ctx)
		}
		return nil
	})

	var citations []conversation.Citation
	if ag.ShowCitation {
		citations = buildCitations(results)
	}

	if streamErr != nil {
		// Persist whatever was generated before the failure, on a fresh
		// context in case the request's one is already dead.
		if len(answer) > 0 {
			persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := o.persistAnswer(persistCtx, req, string(answer), citations); err != nil {
				logger.Error("persisting partial answer failed", "error", err)
			} else {
				logger.Info("partial answer persisted", "bytes", len(answer))
			}
		}
		fail("generating", streamErr)
		return
	}

	if err := o.persistAnswer(ctx, req, string(answer), citations); err != nil {
		fail("persisting answer", err)
		return
	}

	emit(ctx, events, Event{Done: true})
	logger.Info("turn answered", "evidence", len(results), "answer_bytes", len(answer))
}

func (o *Orchestrator) persistAnswer(ctx context.Context, req Request, body string, citations []conversation.Citation) error {
	_, err := o.store.AppendMessage(ctx, conversation.AppendParams{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		AgentID:        req.AgentID,
		Role:           conversation.RoleAgent,
		Body:           body,
		Citations:      citations,
	})
	return err
}

func buildCitations(results []retrieval.Result) []conversation.Citation {
	citations := make([]conversation.Citation, 0, len(results))
	for _, r := range results {
		snippet := r.Node.Content
		if runes := []rune(snippet); len(runes) > snippetRunes {
			snippet = string(runes[:snippetRunes])
		}
		citations = append(citations, conversation.Citation{
			DocumentID: r.Node.Metadata.DocumentID,
			FileName:   r.Node.Metadata.FileName,
			Snippet:    snippet,
			Score:      r.RerankScore,
		})
	}
	return citations
}
