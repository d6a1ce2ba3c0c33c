package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuseRRF(t *testing.T) {
	t.Run("agreement outranks single top placement", func(t *testing.T) {
		dense := []string{"a", "b", "c"}
		lexical := []string{"b", "d", "a"}

		fused := FuseRRF(RRFConstant, dense, lexical)

		// b appears at ranks 2 and 1, a at ranks 1 and 3.
		assert.Greater(t, fused["b"], fused["d"])
		assert.Greater(t, fused["a"], fused["c"])
		assert.InDelta(t, 1.0/61+1.0/62, fused["b"], 1e-12)
	})

	t.Run("absent from one ranking still scored", func(t *testing.T) {
		fused := FuseRRF(RRFConstant, []string{"a"}, []string{"b"})
		assert.InDelta(t, fused["a"], fused["b"], 1e-12)
	})

	t.Run("no rankings", func(t *testing.T) {
		assert.Empty(t, FuseRRF(RRFConstant))
	})
}

func TestNormalizeScores(t *testing.T) {
	t.Run("best maps to one, order preserved", func(t *testing.T) {
		normalized := NormalizeScores(map[string]float64{
			"best": 0.032, "mid": 0.020, "worst": 0.016,
		})

		assert.InDelta(t, 1.0, normalized["best"], 1e-12)
		assert.Greater(t, normalized["mid"], normalized["worst"])
		for _, s := range normalized {
			assert.Greater(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, NormalizeScores(nil))
	})
}

func TestTopIDs(t *testing.T) {
	scores := map[string]float64{"a": 0.2, "b": 0.9, "c": 0.5, "d": 0.5}

	t.Run("descending with deterministic ties", func(t *testing.T) {
		got := TopIDs(scores, 0)
		require.Equal(t, []string{"b", "c", "d", "a"}, got)
	})

	t.Run("bounded by n", func(t *testing.T) {
		assert.Equal(t, []string{"b", "c"}, TopIDs(scores, 2))
	})
}
