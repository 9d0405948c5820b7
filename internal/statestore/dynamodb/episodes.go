package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/flightstudio/podscribe/pkg/types"
)

// PutEpisode stores an episode's immutable metadata.
func (s *Store) PutEpisode(ctx context.Context, ep types.Episode) error {
	return s.putItem(ctx, episodePK(ep.EpisodeID), skMeta, ep, nil)
}

// GetEpisode retrieves an episode's metadata.
func (s *Store) GetEpisode(ctx context.Context, episodeID string) (*types.Episode, error) {
	var ep types.Episode
	if err := s.getItem(ctx, episodePK(episodeID), skMeta, &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

// PutEpisodeState stores an episode's processing state. The state item carries
// GSI1 keys so episodes can be listed by state without a table scan.
func (s *Store) PutEpisodeState(ctx context.Context, st types.EpisodeState) error {
	extra := map[string]ddbtypes.AttributeValue{
		"GSI1PK": &ddbtypes.AttributeValueMemberS{Value: statePK(string(st.State))},
		"GSI1SK": &ddbtypes.AttributeValueMemberS{Value: st.EpisodeID},
	}
	return s.putItem(ctx, episodePK(st.EpisodeID), skState, st, extra)
}

// GetEpisodeState retrieves an episode's processing state.
func (s *Store) GetEpisodeState(ctx context.Context, episodeID string) (*types.EpisodeState, error) {
	var st types.EpisodeState
	if err := s.getItem(ctx, episodePK(episodeID), skState, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListEpisodeStates returns episode states matching any of the given states,
// queried per state over GSI1.
func (s *Store) ListEpisodeStates(ctx context.Context, states ...types.ProcessingState) ([]types.EpisodeState, error) {
	var out []types.EpisodeState
	for _, state := range states {
		var startKey map[string]ddbtypes.AttributeValue
		for {
			res, err := s.client.Query(ctx, &dynamodb.QueryInput{
				TableName:              &s.tableName,
				IndexName:              aws.String(gsi1Name),
				KeyConditionExpression: aws.String("GSI1PK = :pk"),
				ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
					":pk": &ddbtypes.AttributeValueMemberS{Value: statePK(string(state))},
				},
				ExclusiveStartKey: startKey,
			})
			if err != nil {
				return nil, err
			}
			for _, item := range res.Items {
				var st types.EpisodeState
				if err := attributevalue.UnmarshalMap(item, &st); err != nil {
					s.logger.Warn("skipping corrupt episode state item", "error", err)
					continue
				}
				out = append(out, st)
			}
			if len(res.LastEvaluatedKey) == 0 {
				break
			}
			startKey = res.LastEvaluatedKey
		}
	}
	return out, nil
}
