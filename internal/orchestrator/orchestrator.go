// Package orchestrator drives pipeline runs end to end.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/flightstudio/podscribe/internal/fetcher"
	"github.com/flightstudio/podscribe/internal/jobs"
	"github.com/flightstudio/podscribe/internal/lifecycle"
	"github.com/flightstudio/podscribe/internal/statestore"
	"github.com/flightstudio/podscribe/internal/telemetry"
	"github.com/flightstudio/podscribe/internal/warehouse"
	"github.com/flightstudio/podscribe/pkg/types"
)

// ErrRunInProgress is returned when another orchestrator holds the run lock.
var ErrRunInProgress = errors.New("orchestrator: another run is in progress")

const defaultLockTTL = 30 * time.Minute

// Orchestrator owns the run state machine and is the single writer of episode
// state. Fetching, transcription, and loading are delegated; all transitions
// flow through here.
type Orchestrator struct {
	store    statestore.Store
	fetch    *fetcher.Fetcher
	jobs     *jobs.Manager
	loader   *warehouse.Loader
	channels []types.ChannelConfig
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	lockTTL  time.Duration
}

// New creates an orchestrator.
func New(
	store statestore.Store,
	fetch *fetcher.Fetcher,
	jobManager *jobs.Manager,
	loader *warehouse.Loader,
	channels []types.ChannelConfig,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		fetch:    fetch,
		jobs:     jobManager,
		loader:   loader,
		channels: channels,
		metrics:  metrics,
		logger:   logger,
		lockTTL:  defaultLockTTL,
	}
}

// Run executes one full pipeline pass over every configured channel:
// discover, transcribe, load, summarize. Work left unfinished by earlier runs
// is picked up before new work is scheduled.
func (o *Orchestrator) Run(ctx context.Context) (*types.RunState, error) {
	return o.execute(ctx, func(ctx context.Context, run *types.RunState) error {
		for _, channel := range o.channels {
			result, err := o.fetch.Discover(ctx, channel)
			if err != nil {
				return err
			}
			o.recordFetch(ctx, run, result)
		}
		return nil
	})
}

// Backfill fetches a single channel from an explicit floor, reaching behind
// its high-water mark, then runs the normal transcribe and load stages. The
// mark never moves backwards.
func (o *Orchestrator) Backfill(ctx context.Context, channelID string, since time.Time) (*types.RunState, error) {
	channel, err := o.channel(channelID)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, func(ctx context.Context, run *types.RunState) error {
		result, err := o.fetch.DiscoverSince(ctx, channel, since)
		if err != nil {
			return err
		}
		o.recordFetch(ctx, run, result)
		return nil
	})
}

// Status returns the most recent runs, newest first.
func (o *Orchestrator) Status(ctx context.Context, limit int) ([]types.RunState, error) {
	return o.store.ListRuns(ctx, limit)
}

type fetchStage func(ctx context.Context, run *types.RunState) error

func (o *Orchestrator) execute(ctx context.Context, fetchAll fetchStage) (*types.RunState, error) {
	acquired, err := o.store.AcquireLock(ctx, statestore.RunLockKey, o.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: acquiring run lock: %w", err)
	}
	if !acquired {
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := o.store.ReleaseLock(context.WithoutCancel(ctx), statestore.RunLockKey); err != nil {
			o.logger.Warn("releasing run lock failed", slog.String("error", err.Error()))
		}
	}()

	now := time.Now().UTC()
	run := types.RunState{
		RunID:     ulid.Make().String(),
		Status:    types.RunIdle,
		Version:   1,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.PutRun(ctx, run); err != nil {
		return nil, fmt.Errorf("orchestrator: creating run %s: %w", run.RunID, err)
	}
	o.logger.Info("run started", slog.String("runId", run.RunID))

	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.run")
	defer span.End()

	if err := o.runStages(ctx, &run, fetchAll); err != nil {
		return o.finish(ctx, &run, err)
	}
	return o.finish(ctx, &run, nil)
}

func (o *Orchestrator) runStages(ctx context.Context, run *types.RunState, fetchAll fetchStage) error {
	if err := o.advance(ctx, run, types.RunFetching); err != nil {
		return err
	}
	if err := fetchAll(ctx, run); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.advance(ctx, run, types.RunTranscribing); err != nil {
		return err
	}

	// The discovered batch is durably persisted now, so the marks may advance:
	// a crash from here on resumes from episode state, not from refetching.
	if err := o.advanceMarks(ctx); err != nil {
		return err
	}

	items, err := o.transcribe(ctx, run)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.advance(ctx, run, types.RunLoading); err != nil {
		return err
	}
	if err := o.load(ctx, run, items); err != nil {
		return err
	}

	return o.advance(ctx, run, types.RunCompleted)
}

// transcribe runs every pending episode through the job manager. Pending
// covers this run's discoveries plus non-terminal leftovers from earlier
// runs; an episode already transcribed but never loaded is re-collected.
func (o *Orchestrator) transcribe(ctx context.Context, run *types.RunState) ([]warehouse.Item, error) {
	pending, err := o.store.ListEpisodeStates(ctx,
		types.EpisodeDiscovered, types.EpisodeTranscribing, types.EpisodeTranscribed)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: listing pending episodes: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	episodes := make([]types.Episode, 0, len(pending))
	for _, st := range pending {
		ep, err := o.store.GetEpisode(ctx, st.EpisodeID)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: reading episode %s: %w", st.EpisodeID, err)
		}
		// Discovered moves to transcribing; resumed transcribing and
		// transcribed episodes keep their state.
		if st.State == types.EpisodeDiscovered {
			if err := o.transitionEpisode(ctx, st, types.EpisodeTranscribing, nil); err != nil {
				return nil, err
			}
		}
		episodes = append(episodes, *ep)
	}
	o.metrics.JobsSubmitted(ctx, len(episodes))

	outcomes := o.jobs.Process(ctx, episodes)

	items := make([]warehouse.Item, 0, len(outcomes))
	for i, out := range outcomes {
		st, err := o.store.GetEpisodeState(ctx, out.EpisodeID)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: reading state for %s: %w", out.EpisodeID, err)
		}
		if out.Err != nil {
			if ctx.Err() != nil {
				// Cancelled mid-flight; leave the episode for the next run.
				continue
			}
			run.Summary.Failed++
			run.Summary.Record(types.ErrKindTranscriptionFailed)
			o.metrics.JobsFailed(ctx, out.Category, 1)
			if err := o.transitionEpisode(ctx, *st, types.EpisodeFailed, out.Err); err != nil {
				return nil, err
			}
			continue
		}

		if st.State != types.EpisodeTranscribed {
			st.JobID = out.JobID
			st.Attempts = out.Attempts
			if err := o.transitionEpisode(ctx, *st, types.EpisodeTranscribed, nil); err != nil {
				return nil, err
			}
			run.Summary.Transcribed++
			o.metrics.JobsSucceeded(ctx, 1)
		}
		items = append(items, warehouse.Item{Episode: episodes[i], Transcript: out.Transcript})
	}
	return items, nil
}

// load writes transcribed episodes to the warehouse. Rows that fail stay in
// the transcribed state so the next run retries them; the upsert key makes
// the retry idempotent.
func (o *Orchestrator) load(ctx context.Context, run *types.RunState, items []warehouse.Item) error {
	if len(items) == 0 {
		return nil
	}

	result, err := o.loader.Load(ctx, items)
	if err != nil {
		return err
	}

	for _, episodeID := range result.Loaded {
		st, err := o.store.GetEpisodeState(ctx, episodeID)
		if err != nil {
			return fmt.Errorf("orchestrator: reading state for %s: %w", episodeID, err)
		}
		if err := o.transitionEpisode(ctx, *st, types.EpisodeLoaded, nil); err != nil {
			return err
		}
		run.Summary.Loaded++
	}
	for range result.Failed {
		run.Summary.Failed++
		run.Summary.Record(types.ErrKindWarehouseWriteFailed)
	}
	o.metrics.RowsLoaded(ctx, len(result.Loaded))
	o.metrics.RowsFailed(ctx, len(result.Failed))
	return nil
}

func (o *Orchestrator) recordFetch(ctx context.Context, run *types.RunState, result *fetcher.ChannelResult) {
	run.Summary.Discovered += len(result.Discovered)
	run.Summary.Skipped += result.Skipped
	for i := 0; i < result.Malformed; i++ {
		run.Summary.Record(types.ErrKindMalformedMetadata)
	}
	o.metrics.EpisodesDiscovered(ctx, result.ChannelID, len(result.Discovered))
	o.metrics.EpisodesSkipped(ctx, result.ChannelID, result.Skipped)
}

// advanceMarks moves each channel's high-water mark up to the newest episode
// now durably recorded. Marks only ever move forward.
func (o *Orchestrator) advanceMarks(ctx context.Context) error {
	pending, err := o.store.ListEpisodeStates(ctx,
		types.EpisodeDiscovered, types.EpisodeTranscribing)
	if err != nil {
		return fmt.Errorf("orchestrator: listing episodes for mark advance: %w", err)
	}

	newest := make(map[string]types.EpisodeState)
	for _, st := range pending {
		if cur, ok := newest[st.ChannelID]; !ok || st.PublishedAt.After(cur.PublishedAt) {
			newest[st.ChannelID] = st
		}
	}

	for channelID, st := range newest {
		mark := types.HighWaterMark{
			ChannelID:     channelID,
			PublishedAt:   st.PublishedAt,
			LastEpisodeID: st.EpisodeID,
			UpdatedAt:     time.Now().UTC(),
		}
		if err := o.putMarkIfNewer(ctx, mark); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) putMarkIfNewer(ctx context.Context, mark types.HighWaterMark) error {
	existing, err := o.store.GetHighWaterMark(ctx, mark.ChannelID)
	if err != nil && !errors.Is(err, statestore.ErrNotFound) {
		return fmt.Errorf("orchestrator: reading mark for %s: %w", mark.ChannelID, err)
	}
	if existing != nil && !mark.PublishedAt.After(existing.PublishedAt) {
		return nil
	}
	if err := o.store.PutHighWaterMark(ctx, mark); err != nil {
		return fmt.Errorf("orchestrator: advancing mark for %s: %w", mark.ChannelID, err)
	}
	o.logger.Info("high-water mark advanced",
		slog.String("channel", mark.ChannelID),
		slog.Time("publishedAt", mark.PublishedAt),
		slog.String("episodeId", mark.LastEpisodeID))
	return nil
}

// transitionEpisode validates and persists an episode state change. The
// orchestrator is the only writer of episode state.
func (o *Orchestrator) transitionEpisode(ctx context.Context, st types.EpisodeState, to types.ProcessingState, cause error) error {
	if err := lifecycle.TransitionEpisode(st.State, to); err != nil {
		return fmt.Errorf("orchestrator: episode %s: %w", st.EpisodeID, err)
	}
	st.State = to
	st.UpdatedAt = time.Now().UTC()
	if cause != nil {
		st.LastError = cause.Error()
		st.ErrorKind = types.ErrKindTranscriptionFailed
	}
	if err := o.store.PutEpisodeState(context.WithoutCancel(ctx), st); err != nil {
		return fmt.Errorf("orchestrator: persisting state for %s: %w", st.EpisodeID, err)
	}
	return nil
}

// advance moves the run to the next status with a compare-and-swap, so a
// concurrent writer (expired lock, split brain) loses instead of corrupting
// the run record.
func (o *Orchestrator) advance(ctx context.Context, run *types.RunState, to types.RunStatus) error {
	if err := lifecycle.TransitionRun(run.Status, to); err != nil {
		return err
	}
	next := *run
	next.Status = to
	next.Version = run.Version + 1
	next.UpdatedAt = time.Now().UTC()

	swapped, err := o.store.CompareAndSwapRun(context.WithoutCancel(ctx), run.RunID, run.Version, next)
	if err != nil {
		return fmt.Errorf("orchestrator: advancing run %s to %s: %w", run.RunID, to, err)
	}
	if !swapped {
		return fmt.Errorf("orchestrator: run %s was modified by another writer", run.RunID)
	}
	*run = next
	o.logger.Info("run advanced",
		slog.String("runId", run.RunID),
		slog.String("status", string(to)))
	return nil
}

// finish drives the run to its terminal status and reports the summary.
func (o *Orchestrator) finish(ctx context.Context, run *types.RunState, cause error) (*types.RunState, error) {
	if cause != nil && !lifecycle.IsRunTerminal(run.Status) {
		terminal := types.RunFailed
		if errors.Is(cause, context.Canceled) {
			terminal = types.RunCancelled
		}
		if errors.Is(cause, types.ErrSourceUnavailable) {
			run.Summary.Record(types.ErrKindSourceUnavailable)
		}
		if err := o.advance(ctx, run, terminal); err != nil {
			o.logger.Error("failed to finalize run",
				slog.String("runId", run.RunID),
				slog.String("error", err.Error()))
		}
	}

	o.metrics.RunFinished(ctx, run.Status)
	o.logger.Info("run finished",
		slog.String("runId", run.RunID),
		slog.String("status", string(run.Status)),
		slog.Int("discovered", run.Summary.Discovered),
		slog.Int("transcribed", run.Summary.Transcribed),
		slog.Int("loaded", run.Summary.Loaded),
		slog.Int("failed", run.Summary.Failed))

	if cause != nil {
		return run, cause
	}
	return run, nil
}

func (o *Orchestrator) channel(channelID string) (types.ChannelConfig, error) {
	for _, c := range o.channels {
		if c.ID == channelID {
			return c, nil
		}
	}
	return types.ChannelConfig{}, fmt.Errorf("orchestrator: unknown channel %q", channelID)
}
