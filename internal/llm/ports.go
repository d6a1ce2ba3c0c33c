// Package llm defines the narrow contracts through which the engine consumes
// externally supplied models, plus the concrete provider adapters.
//
// The engine never talks to a model SDK directly: the indexing pipeline and
// retrieval engine depend on Embedder and Reranker, the chat orchestrator on
// ChatModel. Adapters are selected by configuration at process start through
// the provider registry (registry.go) and injected as explicit shared
// handles, one instance per process.
package llm

import "context"

// Role constants for conversation turns passed to ChatModel.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of conversation history.
type Turn struct {
	Role    string
	Content string
}

// Embedder produces dense vectors for texts. Implementations must truncate
// any input exceeding the model's token budget before calling the model; the
// budget is the model's declared maximum, not negotiable by callers.
type Embedder interface {
	// Encode embeds a batch of texts, returning one vector per input in
	// input order.
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// Reranker scores (query, candidate) pairs with a cross-encoder.
// Scores are sigmoid-squashed into [0,1], one per candidate, in input order.
type Reranker interface {
	Score(ctx context.Context, query string, candidates []string) ([]float32, error)
}

// ChatModel streams a chat completion. Each generated token is delivered to
// onToken in order; returning an error from onToken stops the stream and
// surfaces that error. Implementations must honor ctx cancellation promptly,
// including mid-stream.
type ChatModel interface {
	StreamChat(ctx context.Context, systemPrompt string, history []Turn, onToken func(token string) error) error
}

// Complete runs a ChatModel to completion and returns the accumulated text.
// Used where a full response is needed rather than a token stream, e.g.
// chunk contextualization during indexing.
func Complete(ctx context.Context, m ChatModel, systemPrompt string, history []Turn) (string, error) {
	var buf []byte
	err := m.StreamChat(ctx, systemPrompt, history, func(token string) error {
		buf = append(buf, token...)
		return nil
	})
	if err != nil {
		return "", err
	}
	return string(buf), nil
}
