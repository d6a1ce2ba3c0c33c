package indexing

import (
	"context"
	"fmt"
	"strings"

	"github.com/syntellix/syntellix-go/internal/llm"
)

// documentTokenBudget bounds how much of the source document accompanies
// each chunk in the situating prompt. The output budget is reserved
// separately by the model's max-tokens setting.
const documentTokenBudget = 16000

const situatePrompt = `<document>
%s
</document>

Here is the chunk we want to situate within the whole document:

<chunk>
%s
</chunk>

Please give a short succinct context to situate this chunk within the overall document for the purposes of improving search retrieval of the chunk. Answer only with the succinct context and nothing else.`

// Contextualizer generates the short situating context prepended to each
// chunk before embedding.
type Contextualizer struct {
	model llm.ChatModel
	retry llm.RetryConfig
}

// NewContextualizer creates a contextualizer over model.
func NewContextualizer(model llm.ChatModel) *Contextualizer {
	return &Contextualizer{
		model: model,
		retry: llm.DefaultRetryConfig(),
	}
}

// Situate returns a short context situating chunk within documentText.
// The document is truncated head and tail before prompting, so repeated
// calls with the same inputs produce the same prompt.
func (c *Contextualizer) Situate(ctx context.Context, documentText, chunk string) (string, error) {
	doc := llm.TruncateMiddle(documentText, llm.TokenBudgetRunes(documentTokenBudget))
	prompt := fmt.Sprintf(situatePrompt, doc, chunk)

	var situated string
	err := llm.WithRetry(ctx, c.retry, func() error {
		var callErr error
		situated, callErr = llm.Complete(ctx, c.model, "", []llm.Turn{
			{Role: llm.RoleUser, Content: prompt},
		})
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("situating chunk: %w", err)
	}
	return strings.TrimSpace(situated), nil
}
