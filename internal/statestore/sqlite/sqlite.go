// Package sqlite implements the statestore.Store interface on an embedded
// SQLite database, for local and single-host deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/flightstudio/podscribe/internal/statestore"
	"github.com/flightstudio/podscribe/pkg/types"
)

// Compile-time interface satisfaction check.
var _ statestore.Store = (*Store)(nil)

// sortableTime is RFC3339 with fixed-width nanoseconds, so ORDER BY over the
// stored text matches chronological order inside a second. RFC3339Nano strips
// trailing zeros and breaks that.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

// Config holds the SQLite store settings from podscribe.yaml.
type Config struct {
	Path string `yaml:"path"`
}

// Store implements statestore.Store backed by SQLite.
type Store struct {
	db *sqlx.DB
}

// New opens (or creates) the database at cfg.Path and applies the schema.
func New(cfg *Config) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = "podscribe.db"
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Pragmas for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Start pings the database.
func (s *Store) Start(ctx context.Context) error {
	return s.Ping(ctx)
}

// Stop closes the database.
func (s *Store) Stop(_ context.Context) error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func putJSON(ctx context.Context, db *sqlx.DB, query string, rec any, args ...any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	_, err = db.ExecContext(ctx, query, append(args, string(data))...)
	return err
}

func getJSON(ctx context.Context, db *sqlx.DB, query string, out any, args ...any) error {
	var data string
	if err := db.GetContext(ctx, &data, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return statestore.ErrNotFound
		}
		return err
	}
	return json.Unmarshal([]byte(data), out)
}

// GetHighWaterMark retrieves the per-channel checkpoint.
func (s *Store) GetHighWaterMark(ctx context.Context, channelID string) (*types.HighWaterMark, error) {
	var mark types.HighWaterMark
	if err := getJSON(ctx, s.db, `SELECT data FROM high_water_marks WHERE channel_id = ?`, &mark, channelID); err != nil {
		return nil, err
	}
	return &mark, nil
}

// PutHighWaterMark stores the per-channel checkpoint.
func (s *Store) PutHighWaterMark(ctx context.Context, mark types.HighWaterMark) error {
	return putJSON(ctx, s.db,
		`INSERT INTO high_water_marks (channel_id, data) VALUES (?, ?)
		 ON CONFLICT(channel_id) DO UPDATE SET data = excluded.data`,
		mark, mark.ChannelID)
}

// PutEpisode stores an episode's immutable metadata.
func (s *Store) PutEpisode(ctx context.Context, ep types.Episode) error {
	return putJSON(ctx, s.db,
		`INSERT INTO episodes (episode_id, data) VALUES (?, ?)
		 ON CONFLICT(episode_id) DO UPDATE SET data = excluded.data`,
		ep, ep.EpisodeID)
}

// GetEpisode retrieves an episode's metadata.
func (s *Store) GetEpisode(ctx context.Context, episodeID string) (*types.Episode, error) {
	var ep types.Episode
	if err := getJSON(ctx, s.db, `SELECT data FROM episodes WHERE episode_id = ?`, &ep, episodeID); err != nil {
		return nil, err
	}
	return &ep, nil
}

// PutEpisodeState stores an episode's processing state.
func (s *Store) PutEpisodeState(ctx context.Context, st types.EpisodeState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO episode_states (episode_id, state, data) VALUES (?, ?, ?)
		 ON CONFLICT(episode_id) DO UPDATE SET state = excluded.state, data = excluded.data`,
		st.EpisodeID, string(st.State), string(data))
	return err
}

// GetEpisodeState retrieves an episode's processing state.
func (s *Store) GetEpisodeState(ctx context.Context, episodeID string) (*types.EpisodeState, error) {
	var st types.EpisodeState
	if err := getJSON(ctx, s.db, `SELECT data FROM episode_states WHERE episode_id = ?`, &st, episodeID); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListEpisodeStates returns episode states matching any of the given states.
func (s *Store) ListEpisodeStates(ctx context.Context, states ...types.ProcessingState) ([]types.EpisodeState, error) {
	if len(states) == 0 {
		return nil, nil
	}

	args := make([]any, len(states))
	for i, st := range states {
		args[i] = string(st)
	}
	query, inArgs, err := sqlx.In(`SELECT data FROM episode_states WHERE state IN (?) ORDER BY episode_id`, args)
	if err != nil {
		return nil, err
	}

	var rows []string
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), inArgs...); err != nil {
		return nil, err
	}

	out := make([]types.EpisodeState, 0, len(rows))
	for _, data := range rows {
		var st types.EpisodeState
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			return nil, fmt.Errorf("unmarshaling episode state: %w", err)
		}
		out = append(out, st)
	}
	return out, nil
}

// PutJob stores the current job for an episode and appends an archive copy.
func (s *Store) PutJob(ctx context.Context, job types.TranscriptionJob) error {
	if err := putJSON(ctx, s.db,
		`INSERT INTO jobs_current (episode_id, data) VALUES (?, ?)
		 ON CONFLICT(episode_id) DO UPDATE SET data = excluded.data`,
		job, job.EpisodeID); err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs_archive (episode_id, job_id, submitted_at, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(episode_id, job_id, submitted_at) DO UPDATE SET data = excluded.data`,
		job.EpisodeID, job.JobID, job.SubmittedAt.UTC().Format(sortableTime), string(data))
	return err
}

// GetJob retrieves the current (latest) job for an episode.
func (s *Store) GetJob(ctx context.Context, episodeID string) (*types.TranscriptionJob, error) {
	var job types.TranscriptionJob
	if err := getJSON(ctx, s.db, `SELECT data FROM jobs_current WHERE episode_id = ?`, &job, episodeID); err != nil {
		return nil, err
	}
	return &job, nil
}

// PutTranscript appends a transcript version.
func (s *Store) PutTranscript(ctx context.Context, tr types.Transcript) error {
	data, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transcripts (episode_id, version, data) VALUES (?, ?, ?)`,
		tr.EpisodeID, tr.Version, string(data))
	return err
}

// LatestTranscriptVersion returns the highest stored version, or 0 when none.
func (s *Store) LatestTranscriptVersion(ctx context.Context, episodeID string) (int, error) {
	var version sql.NullInt64
	err := s.db.GetContext(ctx, &version,
		`SELECT MAX(version) FROM transcripts WHERE episode_id = ?`, episodeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

// PutRun stores a run record.
func (s *Store) PutRun(ctx context.Context, run types.RunState) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, version, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET version = excluded.version, data = excluded.data`,
		run.RunID, run.StartedAt.UTC().Format(sortableTime), run.Version, string(data))
	return err
}

// GetRun retrieves a run record.
func (s *Store) GetRun(ctx context.Context, runID string) (*types.RunState, error) {
	var run types.RunState
	if err := getJSON(ctx, s.db, `SELECT data FROM runs WHERE run_id = ?`, &run, runID); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]types.RunState, error) {
	if limit <= 0 {
		limit = 10
	}

	var rows []string
	err := s.db.SelectContext(ctx, &rows,
		`SELECT data FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}

	out := make([]types.RunState, 0, len(rows))
	for _, data := range rows {
		var run types.RunState
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			return nil, fmt.Errorf("unmarshaling run: %w", err)
		}
		out = append(out, run)
	}
	return out, nil
}

// CompareAndSwapRun atomically updates a run if the stored version matches.
func (s *Store) CompareAndSwapRun(ctx context.Context, runID string, expectedVersion int, run types.RunState) (bool, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return false, fmt.Errorf("marshaling record: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET version = ?, data = ? WHERE run_id = ? AND version = ?`,
		run.Version, string(data), runID, expectedVersion)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AcquireLock acquires a lock by inserting the key, reclaiming it when expired.
func (s *Store) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	expires := time.Now().Add(ttl).Unix()
	now := time.Now().Unix()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO locks (key, expires_at) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET expires_at = excluded.expires_at
		 WHERE locks.expires_at < ?`,
		key, expires, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseLock releases a previously acquired lock.
func (s *Store) ReleaseLock(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE key = ?`, key)
	return err
}
