package dynamodb

import (
	"context"

	"github.com/flightstudio/podscribe/pkg/types"
)

// GetHighWaterMark retrieves the per-channel checkpoint.
func (s *Store) GetHighWaterMark(ctx context.Context, channelID string) (*types.HighWaterMark, error) {
	var mark types.HighWaterMark
	if err := s.getItem(ctx, channelPK(channelID), skMark, &mark); err != nil {
		return nil, err
	}
	return &mark, nil
}

// PutHighWaterMark stores the per-channel checkpoint. Callers must only write
// marks that never move backwards; the store does not re-check monotonicity.
func (s *Store) PutHighWaterMark(ctx context.Context, mark types.HighWaterMark) error {
	return s.putItem(ctx, channelPK(mark.ChannelID), skMark, mark, nil)
}
