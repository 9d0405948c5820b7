// Package jobs manages transcription job submission, polling, and collection.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/flightstudio/podscribe/internal/lifecycle"
	"github.com/flightstudio/podscribe/internal/retry"
	"github.com/flightstudio/podscribe/internal/statestore"
	"github.com/flightstudio/podscribe/internal/transcriber"
	"github.com/flightstudio/podscribe/pkg/types"
)

// Config bundles the manager's runtime knobs. Events is optional; when set,
// webhook completion events wake waiting jobs ahead of the next poll tick.
type Config struct {
	Run    types.RunConfig
	Policy types.RetryPolicy
	Events <-chan transcriber.CompletionEvent
}

// Outcome is the per-episode result of a processing pass. Exactly one of
// Transcript and Err is set.
type Outcome struct {
	EpisodeID  string
	JobID      string
	Attempts   int
	Transcript *types.Transcript
	Category   types.FailureCategory
	Err        error
}

// Manager drives transcription jobs from submission to collection. It owns
// the job ledger; episode state mutations stay with the orchestrator.
type Manager struct {
	client transcriber.Client
	store  statestore.Store
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	waiters map[string]chan struct{}

	// sleep is replaced in tests to skip real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a job manager.
func New(client transcriber.Client, store statestore.Store, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client:  client,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		waiters: make(map[string]chan struct{}),
		sleep:   sleepCtx,
	}
}

// Submit starts a transcription job for an episode. Submission is idempotent:
// an existing non-terminal job (or an uncollected success) is returned as-is
// and no second provider job is created. A failed job is resubmitted with the
// attempt count carried forward.
func (m *Manager) Submit(ctx context.Context, ep types.Episode) (*types.TranscriptionJob, error) {
	existing, err := m.store.GetJob(ctx, ep.EpisodeID)
	if err != nil && !errors.Is(err, statestore.ErrNotFound) {
		return nil, fmt.Errorf("jobs: reading job for %s: %w", ep.EpisodeID, err)
	}
	if existing != nil && existing.State != types.JobFailed {
		return existing, nil
	}

	attempts := 0
	if existing != nil {
		attempts = existing.Attempts
	}

	jobID, err := m.client.SubmitJob(ctx, ep.AudioRef)
	if err != nil {
		return nil, fmt.Errorf("jobs: submitting %s: %w", ep.EpisodeID, err)
	}

	job := types.TranscriptionJob{
		EpisodeID:   ep.EpisodeID,
		JobID:       jobID,
		State:       types.JobSubmitted,
		SubmittedAt: time.Now().UTC(),
		Attempts:    attempts + 1,
	}
	// Persist the handle even when the caller is already cancelled: a provider
	// job exists now, and the next run must find it instead of submitting twice.
	if err := m.store.PutJob(context.WithoutCancel(ctx), job); err != nil {
		return nil, fmt.Errorf("jobs: persisting job %s: %w", jobID, err)
	}

	m.logger.Info("submitted transcription job",
		slog.String("episodeId", ep.EpisodeID),
		slog.String("jobId", jobID),
		slog.Int("attempt", job.Attempts))
	return &job, nil
}

// Poll checks the current state of an episode's job and records transitions
// on the ledger. Terminal states are immutable: once a job has succeeded or
// failed, Poll answers from the ledger without calling the provider.
func (m *Manager) Poll(ctx context.Context, episodeID string) (transcriber.Status, error) {
	job, err := m.store.GetJob(ctx, episodeID)
	if err != nil {
		return transcriber.Status{}, fmt.Errorf("jobs: reading job for %s: %w", episodeID, err)
	}
	if lifecycle.IsJobTerminal(job.State) {
		return transcriber.Status{State: job.State, Message: job.LastError}, nil
	}

	status, err := m.client.GetStatus(ctx, job.JobID)
	if err != nil {
		return transcriber.Status{}, err
	}
	if status.State != job.State {
		if err := m.recordTransition(ctx, *job, status); err != nil {
			return transcriber.Status{}, err
		}
	}
	return status, nil
}

// Collect fetches the transcript for a succeeded job and persists it as the
// next version for the episode.
func (m *Manager) Collect(ctx context.Context, episodeID string) (*types.Transcript, error) {
	job, err := m.store.GetJob(ctx, episodeID)
	if err != nil {
		return nil, fmt.Errorf("jobs: reading job for %s: %w", episodeID, err)
	}
	if job.State == types.JobFailed {
		return nil, fmt.Errorf("jobs: cannot collect failed job %s", job.JobID)
	}

	tr, err := m.client.GetResult(ctx, job.JobID)
	if err != nil {
		return nil, err
	}

	latest, err := m.store.LatestTranscriptVersion(ctx, episodeID)
	if err != nil {
		return nil, fmt.Errorf("jobs: reading transcript version for %s: %w", episodeID, err)
	}
	tr.EpisodeID = episodeID
	tr.Version = latest + 1
	if err := m.store.PutTranscript(ctx, *tr); err != nil {
		return nil, fmt.Errorf("jobs: persisting transcript for %s: %w", episodeID, err)
	}

	if job.State != types.JobSucceeded {
		if err := m.recordTransition(ctx, *job, transcriber.Status{State: types.JobSucceeded}); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

// Process runs every episode through submit/poll/collect concurrently, bounded
// by the configured ceiling. Individual failures land in their Outcome; the
// slice is ordered like the input.
func (m *Manager) Process(ctx context.Context, episodes []types.Episode) []Outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if m.cfg.Events != nil {
		go m.dispatch(ctx)
	}

	sem := semaphore.NewWeighted(int64(m.cfg.Run.Concurrency()))
	g, gctx := errgroup.WithContext(ctx)
	outcomes := make([]Outcome, len(episodes))

	for i, ep := range episodes {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				outcomes[i] = Outcome{EpisodeID: ep.EpisodeID, Err: err}
				return nil
			}
			defer sem.Release(1)
			outcomes[i] = m.processOne(gctx, ep)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (m *Manager) processOne(ctx context.Context, ep types.Episode) Outcome {
	out := Outcome{EpisodeID: ep.EpisodeID}
	maxAttempts := retry.MaxAttempts(m.cfg.Policy)
	attempt := 0
	if existing, err := m.store.GetJob(ctx, ep.EpisodeID); err == nil {
		attempt = existing.Attempts
	}

	for {
		job, err := m.Submit(ctx, ep)
		if err != nil {
			attempt++
			out.Attempts = attempt
			cat := transcriber.ClassifyFailure(err)
			if !m.retryAfter(ctx, ep.EpisodeID, cat, attempt, maxAttempts) {
				out.Category, out.Err = cat, err
				return out
			}
			continue
		}
		if job.Attempts > attempt {
			attempt = job.Attempts
		}
		out.JobID, out.Attempts = job.JobID, attempt

		status := transcriber.Status{State: job.State}
		if !lifecycle.IsJobTerminal(job.State) {
			status, err = m.await(ctx, ep.EpisodeID, job.JobID)
			if err != nil {
				// Transport failures spend the attempt budget too.
				attempt++
				out.Attempts = attempt
				cat := transcriber.ClassifyFailure(err)
				if !m.retryAfter(ctx, ep.EpisodeID, cat, attempt, maxAttempts) {
					out.Category, out.Err = cat, err
					return out
				}
				continue
			}
		}

		if status.State == types.JobSucceeded {
			tr, err := m.Collect(ctx, ep.EpisodeID)
			if err != nil {
				out.Category, out.Err = transcriber.ClassifyFailure(err), err
				return out
			}
			out.Transcript = tr
			return out
		}

		// Job failed.
		if !m.retryAfter(ctx, ep.EpisodeID, status.Category, attempt, maxAttempts) {
			out.Category = status.Category
			out.Err = &types.TranscriptionError{
				JobID:    job.JobID,
				Category: status.Category,
				Message:  status.Message,
			}
			return out
		}
	}
}

// retryAfter decides whether another attempt is allowed and, when it is,
// sleeps out the backoff. Returns false when the episode is out of budget or
// the context was cancelled during the wait.
func (m *Manager) retryAfter(ctx context.Context, episodeID string, cat types.FailureCategory, attempt, maxAttempts int) bool {
	if !retry.IsRetryable(m.cfg.Policy, cat) || attempt >= maxAttempts {
		return false
	}
	backoff := retry.Backoff(m.cfg.Policy, attempt)
	m.logger.Warn("transcription attempt failed, retrying",
		slog.String("episodeId", episodeID),
		slog.String("category", string(cat)),
		slog.Int("attempt", attempt),
		slog.Duration("backoff", backoff))
	return m.sleep(ctx, backoff) == nil
}

// await polls a job until it reaches a terminal state, the per-job timeout
// expires, or ctx is cancelled. A completion event for the job short-circuits
// the poll interval.
func (m *Manager) await(ctx context.Context, episodeID, jobID string) (transcriber.Status, error) {
	deadline := time.NewTimer(m.cfg.Run.JobTimeoutDuration())
	defer deadline.Stop()
	ticker := time.NewTicker(m.cfg.Run.PollIntervalDuration())
	defer ticker.Stop()
	wake := m.subscribe(jobID)
	defer m.unsubscribe(jobID)

	for {
		job, err := m.store.GetJob(ctx, episodeID)
		if err != nil {
			return transcriber.Status{}, fmt.Errorf("jobs: reading job for %s: %w", episodeID, err)
		}

		status, err := m.client.GetStatus(ctx, job.JobID)
		if err != nil {
			return transcriber.Status{}, err
		}
		if status.State != job.State {
			if err := m.recordTransition(ctx, *job, status); err != nil {
				return transcriber.Status{}, err
			}
		}
		if lifecycle.IsJobTerminal(status.State) {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return transcriber.Status{}, ctx.Err()
		case <-deadline.C:
			timedOut := transcriber.Status{
				State:    types.JobFailed,
				Message:  fmt.Sprintf("job %s exceeded timeout %s", jobID, m.cfg.Run.JobTimeoutDuration()),
				Category: types.FailureTimeout,
			}
			if err := m.recordTransition(ctx, *job, timedOut); err != nil {
				return transcriber.Status{}, err
			}
			return timedOut, nil
		case <-ticker.C:
		case <-wake:
		}
	}
}

// recordTransition writes a job state change to the ledger. Terminal states
// on the ledger are never overwritten.
func (m *Manager) recordTransition(ctx context.Context, job types.TranscriptionJob, status transcriber.Status) error {
	if lifecycle.IsJobTerminal(job.State) {
		return nil
	}
	job.State = status.State
	if lifecycle.IsJobTerminal(status.State) {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	if status.State == types.JobFailed {
		job.LastError = status.Message
	}
	if err := m.store.PutJob(context.WithoutCancel(ctx), job); err != nil {
		return fmt.Errorf("jobs: recording %s for job %s: %w", status.State, job.JobID, err)
	}
	return nil
}

func (m *Manager) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.cfg.Events:
			if !ok {
				return
			}
			m.wakeWaiter(ev.JobID)
		}
	}
}

func (m *Manager) subscribe(jobID string) <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{}, 1)
	m.waiters[jobID] = ch
	return ch
}

func (m *Manager) unsubscribe(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.waiters, jobID)
}

func (m *Manager) wakeWaiter(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.waiters[jobID]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
