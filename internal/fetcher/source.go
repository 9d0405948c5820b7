// Package fetcher discovers new episodes from tracked channels.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/flightstudio/podscribe/pkg/types"
)

// Batch is the result of listing one channel: the episodes that normalized
// cleanly plus the records that did not. Malformed records are reported, never
// fatal to the batch.
type Batch struct {
	Episodes  []types.Episode
	Malformed []*types.MalformedMetadataError
}

// Source is the video-platform capability: it lists episodes for a channel
// published after a floor timestamp, oldest first. Implementations handle
// pagination and surface unreachability as types.ErrSourceUnavailable.
type Source interface {
	ListEpisodes(ctx context.Context, channel types.ChannelConfig, since time.Time) (*Batch, error)
}

// guardedSource wraps a Source with a circuit breaker and a rate limiter so a
// flapping or throttling platform API fails fast instead of stalling a run.
type guardedSource struct {
	inner   Source
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// Guard wraps src with circuit breaking and rate limiting. ratePerSecond <= 0
// disables the limiter.
func Guard(src Source, ratePerSecond int) Source {
	g := &guardedSource{
		inner: src,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "episode-source",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
	if ratePerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond)
	}
	return g
}

func (g *guardedSource) ListEpisodes(ctx context.Context, channel types.ChannelConfig, since time.Time) (*Batch, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	result, err := g.breaker.Execute(func() (any, error) {
		return g.inner.ListEpisodes(ctx, channel, since)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open for channel %s", types.ErrSourceUnavailable, channel.ID)
		}
		return nil, err
	}
	return result.(*Batch), nil
}
