package llm

import "strings"

// ElisionMarker is inserted where TruncateMiddle drops text.
const ElisionMarker = "\n[...]\n"

// runesPerToken is the conservative character-to-token ratio used to convert
// model token budgets into rune budgets without a tokenizer dependency.
const runesPerToken = 3

// TokenBudgetRunes converts a model token budget into a rune budget.
func TokenBudgetRunes(tokens int) int {
	return tokens * runesPerToken
}

// TruncateMiddle bounds s to at most maxRunes runes by keeping the head and
// tail and dropping the middle, marking the cut with ElisionMarker.
//
// The operation is deterministic and idempotent: the output always fits the
// budget, so truncating an already-truncated string returns it unchanged.
func TruncateMiddle(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}

	marker := []rune(ElisionMarker)
	if maxRunes <= len(marker) {
		// Budget too small to mark the cut; keep the head only.
		return string(runes[:maxRunes])
	}

	keep := maxRunes - len(marker)
	head := keep / 2
	tail := keep - head

	var b strings.Builder
	b.Grow(maxRunes)
	b.WriteString(string(runes[:head]))
	b.WriteString(ElisionMarker)
	b.WriteString(string(runes[len(runes)-tail:]))
	return b.String()
}

// TruncateBatch applies a per-text rune budget to every element of texts,
// returning a new slice. Inputs within budget are passed through unchanged.
func TruncateBatch(texts []string, maxRunes int) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = TruncateMiddle(t, maxRunes)
	}
	return out
}
