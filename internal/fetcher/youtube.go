package fetcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/flightstudio/podscribe/pkg/types"
)

// youtubeFeedURL is the public uploads feed for a channel. It needs no API
// quota and carries the most recent uploads with publish timestamps.
const youtubeFeedURL = "https://www.youtube.com/feeds/videos.xml?channel_id=%s"

// YouTubeSource discovers episodes from a channel's uploads feed.
type YouTubeSource struct {
	parser *gofeed.Parser
}

// NewYouTubeSource creates a feed-backed episode source.
func NewYouTubeSource() *YouTubeSource {
	return &YouTubeSource{parser: gofeed.NewParser()}
}

// ListEpisodes fetches the channel's uploads feed and returns episodes
// published after since, oldest first, alongside any records that failed
// normalization.
func (s *YouTubeSource) ListEpisodes(ctx context.Context, channel types.ChannelConfig, since time.Time) (*Batch, error) {
	feedURL := channel.FeedURL
	if feedURL == "" {
		feedURL = fmt.Sprintf(youtubeFeedURL, channel.ID)
	}

	feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching feed for channel %s: %v", types.ErrSourceUnavailable, channel.ID, err)
	}

	batch := &Batch{}
	for _, item := range feed.Items {
		ep, err := normalizeItem(channel, item)
		if err != nil {
			batch.Malformed = append(batch.Malformed, err)
			continue
		}
		if !ep.PublishedAt.After(since) {
			continue
		}
		batch.Episodes = append(batch.Episodes, ep)
	}

	sort.Slice(batch.Episodes, func(i, j int) bool {
		return batch.Episodes[i].PublishedAt.Before(batch.Episodes[j].PublishedAt)
	})
	return batch, nil
}

// normalizeItem converts one feed entry into an Episode.
func normalizeItem(channel types.ChannelConfig, item *gofeed.Item) (types.Episode, *types.MalformedMetadataError) {
	videoID := extractVideoID(item)
	if videoID == "" {
		return types.Episode{}, &types.MalformedMetadataError{
			ChannelID: channel.ID,
			GUID:      item.GUID,
			Reason:    "missing video id",
		}
	}
	if item.PublishedParsed == nil {
		return types.Episode{}, &types.MalformedMetadataError{
			ChannelID: channel.ID,
			GUID:      item.GUID,
			Reason:    "missing publish timestamp",
		}
	}

	audioRef := item.Link
	if channel.AudioBase != "" {
		audioRef = strings.TrimRight(channel.AudioBase, "/") + "/" + videoID
	}
	if audioRef == "" {
		return types.Episode{}, &types.MalformedMetadataError{
			ChannelID: channel.ID,
			GUID:      item.GUID,
			Reason:    "missing audio reference",
		}
	}

	return types.Episode{
		EpisodeID:    videoID,
		ChannelID:    channel.ID,
		Title:        item.Title,
		Description:  item.Description,
		PublishedAt:  item.PublishedParsed.UTC(),
		AudioRef:     audioRef,
		DiscoveredAt: time.Now().UTC(),
	}, nil
}

// extractVideoID pulls the platform-native ID from a feed entry GUID of the
// form "yt:video:<id>", falling back to the raw GUID.
func extractVideoID(item *gofeed.Item) string {
	guid := item.GUID
	if strings.HasPrefix(guid, "yt:video:") {
		return strings.TrimPrefix(guid, "yt:video:")
	}
	return guid
}
