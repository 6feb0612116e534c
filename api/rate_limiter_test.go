package api

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeroknots/lazyaccount/metrics"
)

func TestNewLimiterStore(t *testing.T) {
	ctx := context.Background()

	t.Run("zero disables limiting", func(t *testing.T) {
		store, err := NewLimiterStore(0)
		require.NoError(t, err)

		for i := 0; i < 100; i++ {
			_, _, _, ok, err := store.Take(ctx, "127.0.0.1")
			require.NoError(t, err)
			require.True(t, ok)
		}
	})

	t.Run("tokens per client", func(t *testing.T) {
		store, err := NewLimiterStore(1)
		require.NoError(t, err)

		_, _, _, ok, err := store.Take(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)

		_, _, _, ok, err = store.Take(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.False(t, ok)

		_, _, _, ok, err = store.Take(ctx, "10.0.0.2")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("in-process calls are not limited", func(t *testing.T) {
		store, err := NewLimiterStore(1)
		require.NoError(t, err)

		rl := NewRateLimiter(store, metrics.NewNoopCollector(), zerolog.Nop())
		for i := 0; i < 3; i++ {
			require.NoError(t, rl.Apply(ctx, LazyDeriveNonceKey))
		}
	})
}
