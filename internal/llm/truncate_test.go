package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateMiddle(t *testing.T) {
	t.Run("short input unchanged", func(t *testing.T) {
		assert.Equal(t, "hello", TruncateMiddle("hello", 100))
	})

	t.Run("long input keeps head and tail", func(t *testing.T) {
		head := strings.Repeat("a", 500)
		tail := strings.Repeat("z", 500)
		got := TruncateMiddle(head+strings.Repeat("m", 5000)+tail, 1000)

		assert.LessOrEqual(t, len([]rune(got)), 1000)
		assert.True(t, strings.HasPrefix(got, "aaa"))
		assert.True(t, strings.HasSuffix(got, "zzz"))
		assert.Contains(t, got, ElisionMarker)
	})

	t.Run("deterministic", func(t *testing.T) {
		in := strings.Repeat("abcdef", 2000)
		assert.Equal(t, TruncateMiddle(in, 300), TruncateMiddle(in, 300))
	})

	t.Run("idempotent", func(t *testing.T) {
		once := TruncateMiddle(strings.Repeat("xy", 5000), 400)
		assert.Equal(t, once, TruncateMiddle(once, 400))
	})

	t.Run("multibyte runes not split", func(t *testing.T) {
		in := strings.Repeat("世界和平", 1000)
		got := TruncateMiddle(in, 200)
		assert.True(t, strings.HasPrefix(got, "世界"))
		for _, r := range got {
			assert.NotEqual(t, rune(0xFFFD), r)
		}
	})
}

func TestTruncateBatch(t *testing.T) {
	in := []string{"short", strings.Repeat("b", 900)}
	got := TruncateBatch(in, 100)

	assert.Len(t, got, 2)
	assert.Equal(t, "short", got[0])
	assert.LessOrEqual(t, len([]rune(got[1])), 100)
	assert.Equal(t, "short", in[0], "input slice must not be mutated")
}
