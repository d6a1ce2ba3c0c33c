package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/syntellix/syntellix-go/internal/config"
)

func init() {
	RegisterChatProvider(config.ProviderGemini, func(cfg ProviderConfig) (ChatModel, error) {
		return NewGeminiChat(context.Background(), cfg)
	})
}

// embedTokenBudget is the input token limit of gemini-embedding-001.
const embedTokenBudget = 2048

// GeminiEmbedder produces dense vectors via the Gemini embedding API.
//
// gemini-embedding-001 outputs 3072 dimensions by default but supports
// truncation via OutputDimensionality (Matryoshka Representation Learning).
// The dimension here must match the vector column in storage.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int32
}

// NewGeminiEmbedder creates an embedder backed by the Gemini API.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimension int) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiEmbedder{
		client:    client,
		model:     model,
		dimension: int32(dimension),
	}, nil
}

// Encode embeds each text in order. Inputs beyond the model's token budget
// are truncated from the middle before submission.
func (e *GeminiEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range TruncateBatch(texts, TokenBudgetRunes(embedTokenBudget)) {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	dim := e.dimension
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if result == nil || len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors, want %d", embeddingCount(result), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range result.Embeddings {
		if len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at position %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func embeddingCount(result *genai.EmbedContentResponse) int {
	if result == nil {
		return 0
	}
	return len(result.Embeddings)
}

// GeminiChat streams completions from a Gemini chat model.
type GeminiChat struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

// NewGeminiChat creates a streaming chat adapter backed by the Gemini API.
func NewGeminiChat(ctx context.Context, cfg ProviderConfig) (*GeminiChat, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiChat{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   int32(cfg.MaxTokens),
	}, nil
}

// geminiRole maps a turn role onto the genai.Role type the SDK expects.
func geminiRole(role string) genai.Role {
	if role == RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// StreamChat generates a completion for history and feeds tokens to onToken
// as they arrive. A non-nil error from onToken aborts the stream.
func (c *GeminiChat) StreamChat(ctx context.Context, systemPrompt string, history []Turn, onToken func(token string) error) error {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		contents = append(contents, genai.NewContentFromText(turn.Content, geminiRole(turn.Role)))
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	if c.maxTokens > 0 {
		genCfg.MaxOutputTokens = c.maxTokens
	}
	if systemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	for chunk, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, genCfg) {
		if err != nil {
			return fmt.Errorf("streaming from %s: %w", c.model, err)
		}
		for _, candidate := range chunk.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text == "" {
					continue
				}
				if err := onToken(part.Text); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
