package dynamodb

import (
	"context"

	"github.com/flightstudio/podscribe/pkg/types"
)

// PutJob stores the current job for an episode using dual-write: a truth item
// holding the latest job plus an append-only archive copy for audit.
func (s *Store) PutJob(ctx context.Context, job types.TranscriptionJob) error {
	if err := s.putItem(ctx, episodePK(job.EpisodeID), skJob, job, nil); err != nil {
		return err
	}
	// Archive copies are keyed by submission time so history survives re-runs.
	return s.putItem(ctx, episodePK(job.EpisodeID), jobArchiveSK(job.SubmittedAt, job.JobID), job, nil)
}

// GetJob retrieves the current (latest) job for an episode.
func (s *Store) GetJob(ctx context.Context, episodeID string) (*types.TranscriptionJob, error) {
	var job types.TranscriptionJob
	if err := s.getItem(ctx, episodePK(episodeID), skJob, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
