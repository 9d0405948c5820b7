package fetcher

import (
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightstudio/podscribe/pkg/types"
)

func TestNormalizeItem(t *testing.T) {
	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	channel := types.ChannelConfig{ID: "UCGq"}

	item := &gofeed.Item{
		GUID:            "yt:video:abc123",
		Title:           "Episode 42 with Jane Doe",
		Description:     "A conversation about flight.",
		Link:            "https://www.youtube.com/watch?v=abc123",
		PublishedParsed: &published,
	}

	ep, merr := normalizeItem(channel, item)
	require.Nil(t, merr)
	assert.Equal(t, "abc123", ep.EpisodeID)
	assert.Equal(t, "UCGq", ep.ChannelID)
	assert.Equal(t, "Episode 42 with Jane Doe", ep.Title)
	assert.Equal(t, published, ep.PublishedAt)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", ep.AudioRef)
}

func TestNormalizeItem_AudioBaseOverride(t *testing.T) {
	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	channel := types.ChannelConfig{ID: "UCGq", AudioBase: "gs://podcast-audio/"}

	item := &gofeed.Item{
		GUID:            "yt:video:abc123",
		Link:            "https://www.youtube.com/watch?v=abc123",
		PublishedParsed: &published,
	}

	ep, merr := normalizeItem(channel, item)
	require.Nil(t, merr)
	assert.Equal(t, "gs://podcast-audio/abc123", ep.AudioRef)
}

func TestNormalizeItem_Malformed(t *testing.T) {
	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	channel := types.ChannelConfig{ID: "UCGq"}

	tests := []struct {
		name string
		item *gofeed.Item
	}{
		{"missing video id", &gofeed.Item{PublishedParsed: &published, Link: "x"}},
		{"missing publish timestamp", &gofeed.Item{GUID: "yt:video:abc", Link: "x"}},
		{"missing audio reference", &gofeed.Item{GUID: "yt:video:abc", PublishedParsed: &published}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, merr := normalizeItem(channel, tt.item)
			require.NotNil(t, merr)
			assert.Equal(t, tt.name, merr.Reason)
			assert.True(t, types.IsMalformedMetadata(merr))
		})
	}
}

func TestExtractVideoID(t *testing.T) {
	assert.Equal(t, "abc", extractVideoID(&gofeed.Item{GUID: "yt:video:abc"}))
	assert.Equal(t, "raw-guid", extractVideoID(&gofeed.Item{GUID: "raw-guid"}))
	assert.Equal(t, "", extractVideoID(&gofeed.Item{}))
}
