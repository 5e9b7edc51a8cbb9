package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-notify-engine/internal/domain"
)

const batchGetLimit = 100

// ReceiptRepo stores read/dismissal receipts keyed by (group_key, user_id).
type ReceiptRepo struct {
	client    API
	tableName string
}

func NewReceiptRepo(client API, tableName string) *ReceiptRepo {
	return &ReceiptRepo{client: client, tableName: tableName}
}

// Receipts returns userID's own receipts and the group-wide receipts for groupKeys.
func (r *ReceiptRepo) Receipts(ctx context.Context, userID string, groupKeys []string) ([]domain.Receipt, error) {
	keys := make([]map[string]types.AttributeValue, 0, 2*len(groupKeys))
	for _, gk := range groupKeys {
		keys = append(keys,
			compositeKey(attrGroupKey, gk, attrUserID, userID),
			compositeKey(attrGroupKey, gk, attrUserID, domain.GroupWideRecipient),
		)
	}

	var receipts []domain.Receipt
	for _, batch := range chunk(keys, batchGetLimit) {
		pending := map[string]types.KeysAndAttributes{r.tableName: {Keys: batch}}
		for len(pending) > 0 {
			out, err := r.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: pending})
			if err != nil {
				return nil, fmt.Errorf("batch get receipts: %w", err)
			}
			var page []domain.Receipt
			if err := attributevalue.UnmarshalListOfMaps(out.Responses[r.tableName], &page); err != nil {
				return nil, fmt.Errorf("unmarshal receipts: %w", err)
			}
			receipts = append(receipts, page...)
			pending = out.UnprocessedKeys
		}
	}
	return receipts, nil
}

func (r *ReceiptRepo) MarkRead(ctx context.Context, groupKey, userID string, at time.Time) error {
	return r.stamp(ctx, groupKey, userID, at, "SET #r = if_not_exists(#r, :at)",
		map[string]string{"#r": attrReadAt})
}

// Dismiss stamps dismissed_at and read_at; existing stamps are kept.
func (r *ReceiptRepo) Dismiss(ctx context.Context, groupKey, userID string, at time.Time) error {
	return r.stamp(ctx, groupKey, userID, at, "SET #r = if_not_exists(#r, :at), #d = if_not_exists(#d, :at)",
		map[string]string{"#r": attrReadAt, "#d": attrDismissedAt})
}

func (r *ReceiptRepo) stamp(ctx context.Context, groupKey, userID string, at time.Time, expr string, names map[string]string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       compositeKey(attrGroupKey, groupKey, attrUserID, userID),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: map[string]types.AttributeValue{":at": timeValue(at)},
	})
	if err != nil {
		return fmt.Errorf("receipt %s/%s: %w", groupKey, userID, err)
	}
	return nil
}
