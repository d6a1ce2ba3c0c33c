package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntellix/syntellix-go/internal/agent"
	"github.com/syntellix/syntellix-go/internal/chat"
	"github.com/syntellix/syntellix-go/internal/conversation"
	"github.com/syntellix/syntellix-go/internal/log"
	"github.com/syntellix/syntellix-go/internal/retrieval"
	"github.com/syntellix/syntellix-go/internal/testutil"
	"github.com/syntellix/syntellix-go/internal/vector"
)

type stubResolver struct{ agent *agent.Agent }

func (s *stubResolver) Resolve(context.Context, int64) (*agent.Agent, error) {
	return s.agent, nil
}

type stubHistory struct{ appended []conversation.AppendParams }

func (s *stubHistory) AppendMessage(_ context.Context, params conversation.AppendParams) (*conversation.Message, error) {
	s.appended = append(s.appended, params)
	return &conversation.Message{
		ID:             uuid.New(),
		ConversationID: params.ConversationID,
		Body:           params.Body,
		Role:           params.Role,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func (s *stubHistory) GetHistory(context.Context, uuid.UUID, int) ([]conversation.Message, error) {
	return nil, nil
}

type stubRetriever struct{ results []retrieval.Result }

func (s *stubRetriever) Retrieve(context.Context, retrieval.Request) ([]retrieval.Result, error) {
	return s.results, nil
}

func newStreamHandler(model *testutil.ScriptedChat, results []retrieval.Result) *ChatHandler {
	resolver := &stubResolver{agent: &agent.Agent{
		ID: 1, TenantID: 7, EmptyResponse: "nothing found",
		TopN: 5, SimilarityThreshold: 0.5, KnowledgeBaseIDs: []int64{3},
	}}
	orchestrator := chat.NewOrchestrator(resolver, &stubHistory{}, &stubRetriever{results: results}, model, 20, nil)
	return NewChatHandler(orchestrator, log.NewNop())
}

func streamRequest(t *testing.T, body any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	return httptest.NewRequest(http.MethodPost, "/api/chat/stream", bytes.NewReader(payload))
}

func decodeEvents(t *testing.T, body string) []chat.Event {
	t.Helper()
	var events []chat.Event
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev chat.Event
		require.NoError(t, json.Unmarshal([]byte(line), &ev), "line %q", line)
		events = append(events, ev)
	}
	return events
}

func TestChatStreamHandler(t *testing.T) {
	validBody := map[string]any{
		"tenant_id":       7,
		"conversation_id": uuid.New(),
		"user_id":         100,
		"agent_id":        1,
		"message":         "how do refunds work?",
	}

	t.Run("streams NDJSON terminated by done", func(t *testing.T) {
		model := &testutil.ScriptedChat{Tokens: []string{"Refunds ", "work."}}
		handler := newStreamHandler(model, []retrieval.Result{{
			Node: vector.Node{ID: "n1", Content: "refund details", Metadata: vector.NodeMetadata{DocumentID: 42, FileName: "policy.pdf"}},
		}})

		rec := httptest.NewRecorder()
		handler.handleStream(rec, streamRequest(t, validBody))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

		events := decodeEvents(t, rec.Body.String())
		require.NotEmpty(t, events)
		assert.True(t, events[len(events)-1].Done)

		var answer string
		for _, ev := range events {
			answer += ev.Chunk
		}
		assert.Equal(t, "Refunds work.", answer)
	})

	t.Run("empty evidence streams fallback only", func(t *testing.T) {
		model := &testutil.ScriptedChat{Tokens: []string{"never"}}
		handler := newStreamHandler(model, nil)

		rec := httptest.NewRecorder()
		handler.handleStream(rec, streamRequest(t, validBody))

		events := decodeEvents(t, rec.Body.String())
		var chunks []string
		for _, ev := range events {
			if ev.Chunk != "" {
				chunks = append(chunks, ev.Chunk)
			}
		}
		assert.Equal(t, []string{"nothing found"}, chunks)
		assert.Zero(t, model.CallCount())
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		handler := newStreamHandler(&testutil.ScriptedChat{}, nil)

		rec := httptest.NewRecorder()
		handler.handleStream(rec, streamRequest(t, map[string]any{"message": "hi"}))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		handler := newStreamHandler(&testutil.ScriptedChat{}, nil)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader("{not json"))
		handler.handleStream(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
