package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("API rate limit exceeded"), true},
		{"http 429", errors.New("unexpected status 429"), true},
		{"server error", errors.New("503 Service Unavailable"), true},
		{"timeout", errors.New("dial tcp: i/o timeout"), true},
		{"permanent", errors.New("invalid api key"), false},
		{"wrapped transient", errors.New("calling model: quota exceeded"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	fastCfg := RetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), fastCfg, func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient then succeeds", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), fastCfg, func() error {
			calls++
			if calls < 3 {
				return errors.New("503 upstream")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error fails immediately", func(t *testing.T) {
		permanent := errors.New("invalid request")
		calls := 0
		err := WithRetry(context.Background(), fastCfg, func() error {
			calls++
			return permanent
		})
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausts retries", func(t *testing.T) {
		transient := errors.New("connection reset by peer")
		calls := 0
		err := WithRetry(context.Background(), fastCfg, func() error {
			calls++
			return transient
		})
		assert.ErrorIs(t, err, transient)
		assert.Equal(t, fastCfg.MaxRetries+1, calls)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WithRetry(ctx, RetryConfig{MaxRetries: 3, InitialInterval: time.Minute, MaxInterval: time.Minute}, func() error {
			return errors.New("timeout")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
