package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/flightstudio/podscribe/internal/fetcher"
	"github.com/flightstudio/podscribe/internal/jobs"
	"github.com/flightstudio/podscribe/internal/statestore"
	"github.com/flightstudio/podscribe/internal/statestore/statetest"
	"github.com/flightstudio/podscribe/internal/transcriber"
	"github.com/flightstudio/podscribe/internal/warehouse"
	"github.com/flightstudio/podscribe/pkg/types"
)

var (
	t1 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
)

type fakeSource struct {
	episodes map[string][]types.Episode
	err      error
}

func (f *fakeSource) ListEpisodes(_ context.Context, channel types.ChannelConfig, since time.Time) (*fetcher.Batch, error) {
	if f.err != nil {
		return nil, f.err
	}
	batch := &fetcher.Batch{}
	for _, ep := range f.episodes[channel.ID] {
		if ep.PublishedAt.After(since) {
			batch.Episodes = append(batch.Episodes, ep)
		}
	}
	return batch, nil
}

// fakeTranscriber succeeds every job unless the episode ID appears in fail.
type fakeTranscriber struct {
	fail map[string]types.FailureCategory
}

func episodeOf(ref string) string { return strings.TrimPrefix(ref, "ref-") }

func (f *fakeTranscriber) SubmitJob(_ context.Context, audioRef string) (string, error) {
	return "job-" + episodeOf(audioRef), nil
}

func (f *fakeTranscriber) GetStatus(_ context.Context, jobID string) (transcriber.Status, error) {
	id := strings.TrimPrefix(jobID, "job-")
	if cat, ok := f.fail[id]; ok {
		return transcriber.Status{State: types.JobFailed, Message: "provider error", Category: cat}, nil
	}
	return transcriber.Status{State: types.JobSucceeded}, nil
}

func (f *fakeTranscriber) GetResult(_ context.Context, jobID string) (*types.Transcript, error) {
	id := strings.TrimPrefix(jobID, "job-")
	return &types.Transcript{
		TranscriptID: "tr-" + id,
		Text:         "transcript of " + id,
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

type fakeWarehouse struct {
	failRows map[string]bool
	rows     map[string]types.WarehouseRecord
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{rows: make(map[string]types.WarehouseRecord)}
}

func (f *fakeWarehouse) Upsert(_ context.Context, _ string, rows []types.WarehouseRecord) ([]types.RowResult, error) {
	results := make([]types.RowResult, 0, len(rows))
	for _, row := range rows {
		if f.failRows[row.EpisodeID] {
			results = append(results, types.RowResult{EpisodeID: row.EpisodeID, Err: assert.AnError})
			continue
		}
		f.rows[row.EpisodeID] = row
		results = append(results, types.RowResult{EpisodeID: row.EpisodeID})
	}
	return results, nil
}

func (f *fakeWarehouse) Ping(context.Context) error { return nil }
func (f *fakeWarehouse) Close()                     {}

type harness struct {
	store  *statetest.Store
	source *fakeSource
	client *fakeTranscriber
	wh     *fakeWarehouse
	orch   *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  statetest.New(),
		source: &fakeSource{episodes: map[string][]types.Episode{}},
		client: &fakeTranscriber{fail: map[string]types.FailureCategory{}},
		wh:     newFakeWarehouse(),
	}

	channels := []types.ChannelConfig{{ID: "C"}}
	fetch := fetcher.New(h.source, h.store, nil)
	manager := jobs.New(h.client, h.store, jobs.Config{
		Run:    types.RunConfig{PollInterval: "1ms", JobTimeout: "5s"},
		Policy: types.RetryPolicy{MaxAttempts: 1},
	}, nil)
	loader := warehouse.NewLoader(h.wh, types.WarehouseConfig{Table: "podcast_transcripts"}, nil)

	h.orch = New(h.store, fetch, manager, loader, channels, nil, nil)
	return h
}

func episode(id string, published time.Time) types.Episode {
	return types.Episode{
		EpisodeID:   id,
		ChannelID:   "C",
		Title:       "Episode " + id,
		PublishedAt: published,
		AudioRef:    "ref-" + id,
	}
}

func (h *harness) state(t *testing.T, episodeID string) types.EpisodeState {
	t.Helper()
	st, err := h.store.GetEpisodeState(context.Background(), episodeID)
	require.NoError(t, err)
	return *st
}

func TestRun_EndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	h.source.episodes["C"] = []types.Episode{episode("e1", t1), episode("e2", t2)}

	run, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Equal(t, 2, run.Summary.Discovered)
	assert.Equal(t, 2, run.Summary.Transcribed)
	assert.Equal(t, 2, run.Summary.Loaded)
	assert.Zero(t, run.Summary.Failed)

	assert.Equal(t, types.EpisodeLoaded, h.state(t, "e1").State)
	assert.Equal(t, types.EpisodeLoaded, h.state(t, "e2").State)

	mark, err := h.store.GetHighWaterMark(context.Background(), "C")
	require.NoError(t, err)
	assert.Equal(t, t2, mark.PublishedAt)
	assert.Equal(t, "e2", mark.LastEpisodeID)

	assert.Equal(t, "transcript of e1", h.wh.rows["e1"].Transcript)
	assert.Equal(t, "Episode e2", h.wh.rows["e2"].EpisodeName)

	// The run lock is released again.
	acquired, err := h.store.AcquireLock(context.Background(), statestore.RunLockKey, time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestRun_SecondRunDiscoversNothing(t *testing.T) {
	h := newHarness(t)
	h.source.episodes["C"] = []types.Episode{episode("e1", t1)}

	_, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	run, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Zero(t, run.Summary.Discovered)
	assert.Zero(t, run.Summary.Loaded)
}

func TestRun_ResumesUnfinishedEpisodes(t *testing.T) {
	h := newHarness(t)

	// A previous run crashed after persisting the discovery.
	require.NoError(t, h.store.PutEpisode(context.Background(), episode("e1", t1)))
	require.NoError(t, h.store.PutEpisodeState(context.Background(), types.EpisodeState{
		EpisodeID:   "e1",
		ChannelID:   "C",
		State:       types.EpisodeDiscovered,
		PublishedAt: t1,
	}))

	run, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Equal(t, types.EpisodeLoaded, h.state(t, "e1").State)
	assert.Equal(t, "transcript of e1", h.wh.rows["e1"].Transcript)

	// The mark advanced even though this run fetched nothing.
	mark, err := h.store.GetHighWaterMark(context.Background(), "C")
	require.NoError(t, err)
	assert.Equal(t, t1, mark.PublishedAt)
}

func TestRun_TranscriptionFailureIsReportedNotFatal(t *testing.T) {
	h := newHarness(t)
	h.source.episodes["C"] = []types.Episode{episode("e1", t1), episode("e2", t2)}
	h.client.fail["e1"] = types.FailurePermanent

	run, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Equal(t, 1, run.Summary.Transcribed)
	assert.Equal(t, 1, run.Summary.Loaded)
	assert.Equal(t, 1, run.Summary.Failed)
	assert.Equal(t, 1, run.Summary.Errors[types.ErrKindTranscriptionFailed])

	st := h.state(t, "e1")
	assert.Equal(t, types.EpisodeFailed, st.State)
	assert.Equal(t, types.ErrKindTranscriptionFailed, st.ErrorKind)
	assert.NotEmpty(t, st.LastError)

	assert.Equal(t, types.EpisodeLoaded, h.state(t, "e2").State)
}

func TestRun_SourceUnavailableFailsRun(t *testing.T) {
	h := newHarness(t)
	h.source.err = types.ErrSourceUnavailable

	run, err := h.orch.Run(context.Background())
	require.ErrorIs(t, err, types.ErrSourceUnavailable)
	assert.Equal(t, types.RunFailed, run.Status)
	assert.Equal(t, 1, run.Summary.Errors[types.ErrKindSourceUnavailable])
}

func TestRun_LockHeldRejectsSecondRun(t *testing.T) {
	h := newHarness(t)
	acquired, err := h.store.AcquireLock(context.Background(), statestore.RunLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = h.orch.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestRun_FailedLoadRetriedNextRun(t *testing.T) {
	h := newHarness(t)
	h.source.episodes["C"] = []types.Episode{episode("e1", t1)}
	h.wh.failRows = map[string]bool{"e1": true}

	run, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Equal(t, 1, run.Summary.Errors[types.ErrKindWarehouseWriteFailed])
	assert.Equal(t, types.EpisodeTranscribed, h.state(t, "e1").State)

	// Warehouse recovers; the next run reloads the episode.
	h.wh.failRows = nil
	run, err = h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Summary.Loaded)
	assert.Equal(t, types.EpisodeLoaded, h.state(t, "e1").State)
	assert.Equal(t, "transcript of e1", h.wh.rows["e1"].Transcript)
}

func TestRun_Cancelled(t *testing.T) {
	h := newHarness(t)
	h.source.episodes["C"] = []types.Episode{episode("e1", t1)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := h.orch.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.RunCancelled, run.Status)
}

func TestBackfill_ReachesBehindMarkWithoutMovingIt(t *testing.T) {
	h := newHarness(t)
	t0 := t1.Add(-30 * 24 * time.Hour)
	h.source.episodes["C"] = []types.Episode{episode("e0", t0), episode("e2", t2)}
	require.NoError(t, h.store.PutHighWaterMark(context.Background(), types.HighWaterMark{
		ChannelID:   "C",
		PublishedAt: t2,
	}))

	run, err := h.orch.Backfill(context.Background(), "C", t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Equal(t, 2, run.Summary.Discovered)
	assert.Equal(t, types.EpisodeLoaded, h.state(t, "e0").State)

	mark, err := h.store.GetHighWaterMark(context.Background(), "C")
	require.NoError(t, err)
	assert.Equal(t, t2, mark.PublishedAt)
}

func TestBackfill_UnknownChannel(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Backfill(context.Background(), "nope", t1)
	assert.ErrorContains(t, err, "unknown channel")
}

func TestStatus_ListsRunsNewestFirst(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	_, err = h.orch.Run(context.Background())
	require.NoError(t, err)

	runs, err := h.orch.Status(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.False(t, runs[0].StartedAt.Before(runs[1].StartedAt))
}
