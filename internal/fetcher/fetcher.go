package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flightstudio/podscribe/internal/statestore"
	"github.com/flightstudio/podscribe/pkg/types"
)

// ChannelResult is the outcome of discovering one channel.
type ChannelResult struct {
	ChannelID  string
	Discovered []types.Episode
	Skipped    int // already-seen or malformed records
	Malformed  int
	// NewMark is the high-water mark to persist once the batch is durably
	// handed off. Nil when nothing new was discovered.
	NewMark *types.HighWaterMark
}

// Fetcher discovers new episodes past each channel's high-water mark and
// persists them in the discovered state. It never advances the mark itself;
// the orchestrator does that only after the batch is durably handed off.
type Fetcher struct {
	source Source
	store  statestore.Store
	logger *slog.Logger
}

// New creates a Fetcher.
func New(source Source, store statestore.Store, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{source: source, store: store, logger: logger}
}

// Discover lists episodes for a channel published after its high-water mark,
// dedups against previously seen episodes, and persists the new ones as
// discovered. Re-running with an unchanged mark discovers nothing new.
func (f *Fetcher) Discover(ctx context.Context, channel types.ChannelConfig) (*ChannelResult, error) {
	since, err := f.sinceFor(ctx, channel)
	if err != nil {
		return nil, err
	}
	return f.DiscoverSince(ctx, channel, since)
}

// DiscoverSince is Discover with an explicit fetch floor, bypassing the stored
// high-water mark. Backfills use it to reach behind the mark.
func (f *Fetcher) DiscoverSince(ctx context.Context, channel types.ChannelConfig, since time.Time) (*ChannelResult, error) {
	batch, err := f.source.ListEpisodes(ctx, channel, since)
	if err != nil {
		return nil, err
	}

	result := &ChannelResult{ChannelID: channel.ID, Malformed: len(batch.Malformed)}
	for _, m := range batch.Malformed {
		f.logger.Warn("skipping malformed episode record", "channel", channel.ID, "error", m)
		result.Skipped++
	}

	for _, ep := range batch.Episodes {
		seen, err := f.alreadySeen(ctx, ep.EpisodeID)
		if err != nil {
			return nil, err
		}
		if seen {
			result.Skipped++
			continue
		}

		if err := f.store.PutEpisode(ctx, ep); err != nil {
			return nil, fmt.Errorf("persisting episode %s: %w", ep.EpisodeID, err)
		}
		st := types.EpisodeState{
			EpisodeID:   ep.EpisodeID,
			ChannelID:   ep.ChannelID,
			State:       types.EpisodeDiscovered,
			PublishedAt: ep.PublishedAt,
			UpdatedAt:   time.Now().UTC(),
		}
		if err := f.store.PutEpisodeState(ctx, st); err != nil {
			return nil, fmt.Errorf("persisting episode state %s: %w", ep.EpisodeID, err)
		}
		result.Discovered = append(result.Discovered, ep)
	}

	// Episodes arrive oldest-first, so the last one carries the new mark.
	if n := len(result.Discovered); n > 0 {
		last := result.Discovered[n-1]
		result.NewMark = &types.HighWaterMark{
			ChannelID:     channel.ID,
			PublishedAt:   last.PublishedAt,
			LastEpisodeID: last.EpisodeID,
			UpdatedAt:     time.Now().UTC(),
		}
	}

	f.logger.Info("channel discovery complete",
		"channel", channel.ID,
		"discovered", len(result.Discovered),
		"skipped", result.Skipped)
	return result, nil
}

// sinceFor returns the fetch floor for a channel: its stored high-water mark,
// or the configured since window on first run.
func (f *Fetcher) sinceFor(ctx context.Context, channel types.ChannelConfig) (time.Time, error) {
	mark, err := f.store.GetHighWaterMark(ctx, channel.ID)
	if err != nil && !errors.Is(err, statestore.ErrNotFound) {
		return time.Time{}, fmt.Errorf("reading high-water mark for %s: %w", channel.ID, err)
	}
	if mark != nil {
		return mark.PublishedAt, nil
	}
	if channel.Since != "" {
		t, err := time.Parse(time.RFC3339, channel.Since)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid since for channel %s: %w", channel.ID, err)
		}
		return t, nil
	}
	return time.Time{}, nil
}

func (f *Fetcher) alreadySeen(ctx context.Context, episodeID string) (bool, error) {
	_, err := f.store.GetEpisodeState(ctx, episodeID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, statestore.ErrNotFound) {
		return false, nil
	}
	return false, err
}
