package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/flightstudio/podscribe/pkg/types"
)

// PutRun stores a run record using dual-write: truth item + list copy.
func (s *Store) PutRun(ctx context.Context, run types.RunState) error {
	truth, err := attributevalue.MarshalMap(run)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	truth["PK"] = &ddbtypes.AttributeValueMemberS{Value: runPK(run.RunID)}
	truth["SK"] = &ddbtypes.AttributeValueMemberS{Value: skRunTruth}

	list, err := attributevalue.MarshalMap(run)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	list["PK"] = &ddbtypes.AttributeValueMemberS{Value: pkRunList}
	list["SK"] = &ddbtypes.AttributeValueMemberS{Value: runListSK(run.StartedAt, run.RunID)}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []ddbtypes.TransactWriteItem{
			{Put: &ddbtypes.Put{TableName: &s.tableName, Item: truth}},
			{Put: &ddbtypes.Put{TableName: &s.tableName, Item: list}},
		},
	})
	return err
}

// GetRun retrieves a run from the truth item (strongly consistent).
func (s *Store) GetRun(ctx context.Context, runID string) (*types.RunState, error) {
	var run types.RunState
	if err := s.getItem(ctx, runPK(runID), skRunTruth, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]types.RunState, error) {
	if limit <= 0 {
		limit = 10
	}

	res, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: pkRunList},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixRun},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, err
	}

	var runs []types.RunState
	for _, item := range res.Items {
		var run types.RunState
		if err := attributevalue.UnmarshalMap(item, &run); err != nil {
			s.logger.Warn("skipping corrupt run item", "error", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// CompareAndSwapRun atomically updates a run if the stored version matches.
// Returns false (without error) when another writer got there first.
func (s *Store) CompareAndSwapRun(ctx context.Context, runID string, expectedVersion int, run types.RunState) (bool, error) {
	truth, err := attributevalue.MarshalMap(run)
	if err != nil {
		return false, fmt.Errorf("marshaling run: %w", err)
	}
	truth["PK"] = &ddbtypes.AttributeValueMemberS{Value: runPK(runID)}
	truth["SK"] = &ddbtypes.AttributeValueMemberS{Value: skRunTruth}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []ddbtypes.TransactWriteItem{
			{
				Put: &ddbtypes.Put{
					TableName:           &s.tableName,
					Item:                truth,
					ConditionExpression: aws.String("Version = :expected"),
					ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
						":expected": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
					},
				},
			},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, err
	}

	// Best-effort update of the list copy.
	list, err := attributevalue.MarshalMap(run)
	if err == nil {
		list["PK"] = &ddbtypes.AttributeValueMemberS{Value: pkRunList}
		list["SK"] = &ddbtypes.AttributeValueMemberS{Value: runListSK(run.StartedAt, runID)}
		_, _ = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: &s.tableName,
			Item:      list,
		})
	}

	return true, nil
}
