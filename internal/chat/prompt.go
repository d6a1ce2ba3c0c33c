package chat

import "fmt"

const groundedPromptFormat = `You are a helpful assistant answering questions about the user's documents.

Answer using only the reference content below. If the references do not contain the information needed, say so plainly instead of guessing. When you use a reference, mention its file name so the answer stays traceable.

References:

%s`

// groundedSystemPrompt embeds the retrieved evidence block into the system
// prompt for the answering model.
func groundedSystemPrompt(contextBlock string) string {
	return fmt.Sprintf(groundedPromptFormat, contextBlock)
}
