// Package statestore defines the durable key-value backend for pipeline state.
package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/flightstudio/podscribe/pkg/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("statestore: not found")

// Store is the durable state backend. It holds per-channel high-water marks,
// per-episode processing state, the transcription job ledger, transcript
// versions, and run records. DynamoDB backs production deployments; SQLite
// backs local/single-host mode.
type Store interface {
	// High-water marks, one per channel. Read at run start, written only
	// after the fetched batch is durably handed to the job manager.
	GetHighWaterMark(ctx context.Context, channelID string) (*types.HighWaterMark, error)
	PutHighWaterMark(ctx context.Context, mark types.HighWaterMark) error

	// Episode catalog and processing state.
	PutEpisode(ctx context.Context, ep types.Episode) error
	GetEpisode(ctx context.Context, episodeID string) (*types.Episode, error)
	PutEpisodeState(ctx context.Context, st types.EpisodeState) error
	GetEpisodeState(ctx context.Context, episodeID string) (*types.EpisodeState, error)
	ListEpisodeStates(ctx context.Context, states ...types.ProcessingState) ([]types.EpisodeState, error)

	// Job ledger — archived for audit, never deleted.
	PutJob(ctx context.Context, job types.TranscriptionJob) error
	GetJob(ctx context.Context, episodeID string) (*types.TranscriptionJob, error)

	// Transcript versions — re-runs append, never overwrite.
	PutTranscript(ctx context.Context, tr types.Transcript) error
	LatestTranscriptVersion(ctx context.Context, episodeID string) (int, error)

	// Run records (with CAS so only one writer advances a run).
	PutRun(ctx context.Context, run types.RunState) error
	GetRun(ctx context.Context, runID string) (*types.RunState, error)
	ListRuns(ctx context.Context, limit int) ([]types.RunState, error)
	CompareAndSwapRun(ctx context.Context, runID string, expectedVersion int, run types.RunState) (bool, error)

	// Locking so at most one orchestrator processes at a time.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}

// RunLockKey is the lock key guarding pipeline runs.
const RunLockKey = "run:pipeline"
