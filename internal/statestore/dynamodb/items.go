package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/flightstudio/podscribe/internal/statestore"
)

// putItem marshals rec with attributevalue and writes it under (pk, sk).
// Extra attributes (GSI keys, ttl) are merged in after marshaling.
func (s *Store) putItem(ctx context.Context, pk, sk string, rec any, extra map[string]ddbtypes.AttributeValue) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}
	item["PK"] = &ddbtypes.AttributeValueMemberS{Value: pk}
	item["SK"] = &ddbtypes.AttributeValueMemberS{Value: sk}
	for k, v := range extra {
		item[k] = v
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	return err
}

// getItem reads (pk, sk) with a strongly consistent read and unmarshals into out.
// Returns statestore.ErrNotFound when the item does not exist.
func (s *Store) getItem(ctx context.Context, pk, sk string, out any) error {
	res, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: pk},
			"SK": &ddbtypes.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return err
	}
	if len(res.Item) == 0 {
		return statestore.ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return fmt.Errorf("unmarshaling item: %w", err)
	}
	return nil
}
