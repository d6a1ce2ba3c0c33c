package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestGeminiRole(t *testing.T) {
	tests := []struct {
		name string
		role string
		want genai.Role
	}{
		{name: "user maps to user", role: RoleUser, want: genai.RoleUser},
		{name: "assistant maps to model", role: RoleAssistant, want: genai.RoleModel},
		{name: "unknown defaults to user", role: "system", want: genai.RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := geminiRole(tt.role)
			assert.Equal(t, tt.want, got)

			// NewContentFromText requires a genai.Role argument.
			_ = genai.NewContentFromText("x", got)
		})
	}
}
