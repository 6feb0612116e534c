package api

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
	"github.com/sethvargo/go-limiter/noopstore"

	"github.com/zeroknots/lazyaccount/metrics"
	errs "github.com/zeroknots/lazyaccount/models/errors"
)

type RateLimiter interface {
	Apply(ctx context.Context, method string) error
}

// NewLimiterStore returns a token bucket refilled with requestsPerSecond
// tokens every second. Zero disables limiting.
func NewLimiterStore(requestsPerSecond uint64) (limiter.Store, error) {
	if requestsPerSecond == 0 {
		return noopstore.New()
	}

	store, err := memorystore.New(&memorystore.Config{
		Tokens:   requestsPerSecond,
		Interval: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}
	return store, nil
}

// ClientLimiter takes one token per request from the bucket of the calling
// host. All ports of a host share a bucket.
type ClientLimiter struct {
	store     limiter.Store
	collector metrics.Collector
	logger    zerolog.Logger
}

func NewRateLimiter(
	store limiter.Store,
	collector metrics.Collector,
	logger zerolog.Logger,
) *ClientLimiter {
	return &ClientLimiter{
		store:     store,
		collector: collector,
		logger:    logger.With().Str("component", "rate-limiter").Logger(),
	}
}

// Apply returns ErrRateLimit once the caller used up its tokens. In-process
// calls carry no remote address and are never limited.
func (rl *ClientLimiter) Apply(ctx context.Context, method string) error {
	client := clientHost(ctx)
	if client == "" {
		return nil
	}

	_, _, _, ok, err := rl.store.Take(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to check rate limit: %w", err)
	}
	if ok {
		return nil
	}

	rl.collector.RequestRateLimited(method)
	rl.logger.Debug().Str("client", client).Str("method", method).Msg("rate limit reached")
	return errs.ErrRateLimit
}

func clientHost(ctx context.Context) string {
	remote := rpc.PeerInfoFromContext(ctx).RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}
