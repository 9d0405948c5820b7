package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightstudio/podscribe/internal/statestore/statetest"
	"github.com/flightstudio/podscribe/pkg/types"
)

type fakeSource struct {
	batches map[string]*Batch
	err     error
	calls   int
	since   time.Time
}

func (f *fakeSource) ListEpisodes(_ context.Context, channel types.ChannelConfig, since time.Time) (*Batch, error) {
	f.calls++
	f.since = since
	if f.err != nil {
		return nil, f.err
	}
	batch := f.batches[channel.ID]
	if batch == nil {
		return &Batch{}, nil
	}
	// Honor the since floor the way a real source does.
	out := &Batch{Malformed: batch.Malformed}
	for _, ep := range batch.Episodes {
		if ep.PublishedAt.After(since) {
			out.Episodes = append(out.Episodes, ep)
		}
	}
	return out, nil
}

func episode(id, channel string, published time.Time) types.Episode {
	return types.Episode{
		EpisodeID:   id,
		ChannelID:   channel,
		Title:       "Episode " + id,
		PublishedAt: published,
		AudioRef:    "https://youtube.com/watch?v=" + id,
	}
}

func TestDiscover_NewEpisodesOldestFirst(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)

	src := &fakeSource{batches: map[string]*Batch{
		"C": {Episodes: []types.Episode{episode("e1", "C", t1), episode("e2", "C", t2)}},
	}}
	store := statetest.New()
	f := New(src, store, nil)

	result, err := f.Discover(context.Background(), types.ChannelConfig{ID: "C"})
	require.NoError(t, err)
	require.Len(t, result.Discovered, 2)
	assert.Equal(t, "e1", result.Discovered[0].EpisodeID)
	assert.Equal(t, "e2", result.Discovered[1].EpisodeID)

	require.NotNil(t, result.NewMark)
	assert.Equal(t, t2, result.NewMark.PublishedAt)
	assert.Equal(t, "e2", result.NewMark.LastEpisodeID)

	st, err := store.GetEpisodeState(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, types.EpisodeDiscovered, st.State)
}

func TestDiscover_RespectsHighWaterMark(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)

	src := &fakeSource{batches: map[string]*Batch{
		"C": {Episodes: []types.Episode{episode("e1", "C", t1), episode("e2", "C", t2)}},
	}}
	store := statetest.New()
	require.NoError(t, store.PutHighWaterMark(context.Background(), types.HighWaterMark{
		ChannelID:   "C",
		PublishedAt: t1,
	}))

	f := New(src, store, nil)
	result, err := f.Discover(context.Background(), types.ChannelConfig{ID: "C"})
	require.NoError(t, err)

	assert.Equal(t, t1, src.since)
	require.Len(t, result.Discovered, 1)
	assert.Equal(t, "e2", result.Discovered[0].EpisodeID)
}

func TestDiscover_UnchangedMarkFetchesNothing(t *testing.T) {
	t2 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	src := &fakeSource{batches: map[string]*Batch{
		"C": {Episodes: []types.Episode{episode("e2", "C", t2)}},
	}}
	store := statetest.New()
	require.NoError(t, store.PutHighWaterMark(context.Background(), types.HighWaterMark{
		ChannelID:   "C",
		PublishedAt: t2,
	}))

	f := New(src, store, nil)
	result, err := f.Discover(context.Background(), types.ChannelConfig{ID: "C"})
	require.NoError(t, err)
	assert.Empty(t, result.Discovered)
	assert.Nil(t, result.NewMark)
}

func TestDiscover_DedupsSeenEpisodes(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	src := &fakeSource{batches: map[string]*Batch{
		"C": {Episodes: []types.Episode{episode("e1", "C", t1)}},
	}}
	store := statetest.New()
	require.NoError(t, store.PutEpisodeState(context.Background(), types.EpisodeState{
		EpisodeID: "e1",
		State:     types.EpisodeLoaded,
	}))

	f := New(src, store, nil)
	result, err := f.Discover(context.Background(), types.ChannelConfig{ID: "C"})
	require.NoError(t, err)
	assert.Empty(t, result.Discovered)
	assert.Equal(t, 1, result.Skipped)
}

func TestDiscover_MalformedRecordsAreSkippedNotFatal(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	src := &fakeSource{batches: map[string]*Batch{
		"C": {
			Episodes: []types.Episode{episode("e1", "C", t1)},
			Malformed: []*types.MalformedMetadataError{
				{ChannelID: "C", GUID: "bad", Reason: "missing publish timestamp"},
			},
		},
	}}
	store := statetest.New()

	f := New(src, store, nil)
	result, err := f.Discover(context.Background(), types.ChannelConfig{ID: "C"})
	require.NoError(t, err)
	assert.Len(t, result.Discovered, 1)
	assert.Equal(t, 1, result.Malformed)
}

func TestDiscover_SinceFloorOnFirstRun(t *testing.T) {
	src := &fakeSource{}
	store := statetest.New()
	f := New(src, store, nil)

	_, err := f.Discover(context.Background(), types.ChannelConfig{
		ID:    "C",
		Since: "2021-08-22T00:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 8, 22, 0, 0, 0, 0, time.UTC), src.since)
}

func TestDiscover_SourceErrorPropagates(t *testing.T) {
	src := &fakeSource{err: types.ErrSourceUnavailable}
	f := New(src, statetest.New(), nil)

	_, err := f.Discover(context.Background(), types.ChannelConfig{ID: "C"})
	assert.ErrorIs(t, err, types.ErrSourceUnavailable)
}
