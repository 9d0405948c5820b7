// Package statetest provides an in-memory statestore.Store for tests.
package statetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flightstudio/podscribe/internal/statestore"
	"github.com/flightstudio/podscribe/pkg/types"
)

// Compile-time interface satisfaction check.
var _ statestore.Store = (*Store)(nil)

// Store is an in-memory implementation of statestore.Store.
type Store struct {
	mu          sync.Mutex
	marks       map[string]types.HighWaterMark
	episodes    map[string]types.Episode
	states      map[string]types.EpisodeState
	jobs        map[string]types.TranscriptionJob
	jobArchive  []types.TranscriptionJob
	transcripts map[string][]types.Transcript
	runs        map[string]types.RunState
	locks       map[string]time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		marks:       make(map[string]types.HighWaterMark),
		episodes:    make(map[string]types.Episode),
		states:      make(map[string]types.EpisodeState),
		jobs:        make(map[string]types.TranscriptionJob),
		transcripts: make(map[string][]types.Transcript),
		runs:        make(map[string]types.RunState),
		locks:       make(map[string]time.Time),
	}
}

func (s *Store) GetHighWaterMark(_ context.Context, channelID string) (*types.HighWaterMark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mark, ok := s.marks[channelID]
	if !ok {
		return nil, statestore.ErrNotFound
	}
	return &mark, nil
}

func (s *Store) PutHighWaterMark(_ context.Context, mark types.HighWaterMark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[mark.ChannelID] = mark
	return nil
}

func (s *Store) PutEpisode(_ context.Context, ep types.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes[ep.EpisodeID] = ep
	return nil
}

func (s *Store) GetEpisode(_ context.Context, episodeID string) (*types.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.episodes[episodeID]
	if !ok {
		return nil, statestore.ErrNotFound
	}
	return &ep, nil
}

func (s *Store) PutEpisodeState(_ context.Context, st types.EpisodeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.EpisodeID] = st
	return nil
}

func (s *Store) GetEpisodeState(_ context.Context, episodeID string) (*types.EpisodeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[episodeID]
	if !ok {
		return nil, statestore.ErrNotFound
	}
	return &st, nil
}

func (s *Store) ListEpisodeStates(_ context.Context, states ...types.ProcessingState) ([]types.EpisodeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[types.ProcessingState]bool, len(states))
	for _, st := range states {
		want[st] = true
	}

	var out []types.EpisodeState
	for _, st := range s.states {
		if want[st.State] {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EpisodeID < out[j].EpisodeID })
	return out, nil
}

func (s *Store) PutJob(_ context.Context, job types.TranscriptionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.EpisodeID] = job
	s.jobArchive = append(s.jobArchive, job)
	return nil
}

func (s *Store) GetJob(_ context.Context, episodeID string) (*types.TranscriptionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[episodeID]
	if !ok {
		return nil, statestore.ErrNotFound
	}
	return &job, nil
}

// JobArchive returns all archived job writes, for assertions.
func (s *Store) JobArchive() []types.TranscriptionJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TranscriptionJob, len(s.jobArchive))
	copy(out, s.jobArchive)
	return out
}

func (s *Store) PutTranscript(_ context.Context, tr types.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[tr.EpisodeID] = append(s.transcripts[tr.EpisodeID], tr)
	return nil
}

func (s *Store) LatestTranscriptVersion(_ context.Context, episodeID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for _, tr := range s.transcripts[episodeID] {
		if tr.Version > max {
			max = tr.Version
		}
	}
	return max, nil
}

// Transcripts returns all stored transcript versions for an episode.
func (s *Store) Transcripts(episodeID string) []types.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Transcript, len(s.transcripts[episodeID]))
	copy(out, s.transcripts[episodeID])
	return out
}

func (s *Store) PutRun(_ context.Context, run types.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	return nil
}

func (s *Store) GetRun(_ context.Context, runID string) (*types.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, statestore.ErrNotFound
	}
	return &run, nil
}

func (s *Store) ListRuns(_ context.Context, limit int) ([]types.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.RunState
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CompareAndSwapRun(_ context.Context, runID string, expectedVersion int, run types.RunState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.runs[runID]
	if !ok || cur.Version != expectedVersion {
		return false, nil
	}
	s.runs[runID] = run
	return true, nil
}

func (s *Store) AcquireLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expires, held := s.locks[key]; held && time.Now().Before(expires) {
		return false, nil
	}
	s.locks[key] = time.Now().Add(ttl)
	return true, nil
}

func (s *Store) ReleaseLock(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}

func (s *Store) Start(_ context.Context) error { return nil }
func (s *Store) Stop(_ context.Context) error  { return nil }
func (s *Store) Ping(_ context.Context) error  { return nil }
