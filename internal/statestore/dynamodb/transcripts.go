package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/flightstudio/podscribe/pkg/types"
)

// PutTranscript appends a transcript version. Versions are never overwritten.
func (s *Store) PutTranscript(ctx context.Context, tr types.Transcript) error {
	return s.putItem(ctx, episodePK(tr.EpisodeID), transcriptSK(tr.Version), tr, nil)
}

// LatestTranscriptVersion returns the highest stored version for an episode,
// or 0 when no transcript exists yet.
func (s *Store) LatestTranscriptVersion(ctx context.Context, episodeID string) (int, error) {
	res, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: episodePK(episodeID)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixTranscript},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, err
	}
	if len(res.Items) == 0 {
		return 0, nil
	}
	var tr types.Transcript
	if err := attributevalue.UnmarshalMap(res.Items[0], &tr); err != nil {
		return 0, err
	}
	return tr.Version, nil
}
