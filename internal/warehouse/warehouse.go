// Package warehouse loads transcripts into the analytics warehouse.
package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flightstudio/podscribe/pkg/types"
)

// Warehouse is the warehouse capability: batched, content-based upserts keyed
// by episode ID. Implementations report per-row outcomes; a row failure never
// aborts the rest of the batch.
type Warehouse interface {
	Upsert(ctx context.Context, table string, rows []types.WarehouseRecord) ([]types.RowResult, error)
	Ping(ctx context.Context) error
	Close()
}

// Item pairs an episode with the transcript to load for it.
type Item struct {
	Episode    types.Episode
	Transcript *types.Transcript
}

const defaultBatchSize = 250

// Loader flattens episodes and transcripts into warehouse rows and writes
// them in batches.
type Loader struct {
	wh     Warehouse
	cfg    types.WarehouseConfig
	logger *slog.Logger
}

// NewLoader creates a loader.
func NewLoader(wh Warehouse, cfg types.WarehouseConfig, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{wh: wh, cfg: cfg, logger: logger}
}

// Load writes every item to the warehouse and reports exactly which episode
// IDs committed and which failed. Failed rows are retried on the next run;
// the upsert key makes that safe.
func (l *Loader) Load(ctx context.Context, items []Item) (*types.LoadResult, error) {
	result := &types.LoadResult{}
	if len(items) == 0 {
		return result, nil
	}

	batchSize := l.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	rows := make([]types.WarehouseRecord, 0, len(items))
	for _, item := range items {
		rows = append(rows, BuildRecord(item.Episode, item.Transcript))
	}

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		outcomes, err := l.wh.Upsert(ctx, l.cfg.Table, rows[start:end])
		if err != nil {
			// Whole-batch failure: every row in it must be retried.
			for _, row := range rows[start:end] {
				result.Failed = append(result.Failed, row.EpisodeID)
			}
			l.logger.Error("warehouse batch failed",
				slog.Int("rows", end-start),
				slog.String("error", err.Error()))
			continue
		}
		for _, out := range outcomes {
			if out.Err != nil {
				result.Failed = append(result.Failed, out.EpisodeID)
				l.logger.Warn("warehouse row failed",
					slog.String("episodeId", out.EpisodeID),
					slog.String("error", out.Err.Error()))
				continue
			}
			result.Loaded = append(result.Loaded, out.EpisodeID)
		}
	}

	l.logger.Info("warehouse load finished",
		slog.Int("loaded", len(result.Loaded)),
		slog.Int("failed", len(result.Failed)))
	return result, nil
}

// BuildRecord flattens an episode and its transcript into one warehouse row.
func BuildRecord(ep types.Episode, tr *types.Transcript) types.WarehouseRecord {
	rec := types.WarehouseRecord{
		EpisodeID:          ep.EpisodeID,
		EpisodeName:        ep.Title,
		EpisodeDescription: ep.Description,
		GuestName:          ExtractGuestName(ep.Title, ep.Description),
		ReleaseDate:        ep.PublishedAt,
		LoadTime:           time.Now().UTC(),
	}
	if tr != nil {
		rec.Transcript = tr.Text
		rec.TranscriptLength = len(tr.Text)
		rec.Language = tr.Language
		rec.Confidence = tr.Confidence
		rec.Version = tr.Version
		rec.TranscribedTime = tr.GeneratedAt
	}
	return rec
}

// rowError is a convenience for implementations reporting one failed row.
func rowError(episodeID string, err error) types.RowResult {
	return types.RowResult{EpisodeID: episodeID, Err: fmt.Errorf("upserting %s: %w", episodeID, err)}
}
