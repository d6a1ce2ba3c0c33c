package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/syntellix/syntellix-go/internal/config"
)

func init() {
	RegisterChatProvider(config.ProviderClaude, func(cfg ProviderConfig) (ChatModel, error) {
		return NewClaudeChat(cfg)
	})
}

// ClaudeChat streams completions from an Anthropic chat model.
type ClaudeChat struct {
	client      anthropic.Client
	model       string
	temperature float32
	maxTokens   int64
}

// NewClaudeChat creates a streaming chat adapter backed by the Anthropic API.
func NewClaudeChat(cfg ProviderConfig) (*ClaudeChat, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is empty")
	}
	return &ClaudeChat{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   int64(cfg.MaxTokens),
	}, nil
}

// StreamChat generates a completion for history and feeds text deltas to
// onToken as they arrive. A non-nil error from onToken aborts the stream.
func (c *ClaudeChat) StreamChat(ctx context.Context, systemPrompt string, history []Turn, onToken func(token string) error) error {
	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, turn := range history {
		block := anthropic.NewTextBlock(turn.Content)
		if turn.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Messages:    messages,
		Temperature: anthropic.Float(float64(c.temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		event := stream.Current()
		switch variant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := variant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text == "" {
					continue
				}
				if err := onToken(delta.Text); err != nil {
					return err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("streaming from %s: %w", c.model, err)
	}
	return nil
}
