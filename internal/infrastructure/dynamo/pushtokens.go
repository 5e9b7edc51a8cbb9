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

const (
	itemToken   = "token"
	itemDevice  = "device"
	tokenPrefix = "token#"

	maxRegisterAttempts = 4
)

// The push_tokens table holds two item kinds under PK user_id:
//   - token rows,  sk "token#<token>"
//   - device slots, sk "device#<platform>#<deviceId>", naming the slot's active token.
//
// Register writes both in one transaction, conditioned on what it read, so two concurrent
// registrations for the same device cannot both leave an active row behind.
type tokenItem struct {
	domain.PushToken
	SK       string `dynamodbav:"sk"`
	ItemType string `dynamodbav:"item_type"`
}

type slotItem struct {
	UserID      string `dynamodbav:"user_id"`
	SK          string `dynamodbav:"sk"`
	ItemType    string `dynamodbav:"item_type"`
	ActiveToken string `dynamodbav:"active_token"`
	TokenID     string `dynamodbav:"token_id"`
}

func tokenSK(token string) string { return tokenPrefix + token }

func slotSK(platform domain.Platform, deviceID string) string {
	return fmt.Sprintf("device#%s#%s", platform, deviceID)
}

// PushTokenRepo is the DynamoDB push token registry.
type PushTokenRepo struct {
	client    API
	tableName string
}

func NewPushTokenRepo(client API, tableName string) *PushTokenRepo {
	return &PushTokenRepo{client: client, tableName: tableName}
}

// Register reactivates candidate's (user, token) row if present, otherwise inserts it and
// deactivates the token previously active on the same device slot. Transaction conflicts
// are retried from a fresh read.
func (r *PushTokenRepo) Register(ctx context.Context, c *domain.PushToken) (string, domain.RegisterOutcome, error) {
	for attempt := 0; attempt < maxRegisterAttempts; attempt++ {
		tokenID, outcome, err := r.tryRegister(ctx, c)
		if isTransactionConflict(err) {
			continue
		}
		return tokenID, outcome, err
	}
	return "", "", fmt.Errorf("register push token: %w", domain.ErrConflict)
}

func (r *PushTokenRepo) tryRegister(ctx context.Context, c *domain.PushToken) (string, domain.RegisterOutcome, error) {
	existing, err := r.getToken(ctx, c.UserID, c.Token)
	if err != nil {
		return "", "", err
	}
	var slot *slotItem
	if c.DeviceID != nil {
		if slot, err = r.getSlot(ctx, c.UserID, c.Platform, *c.DeviceID); err != nil {
			return "", "", err
		}
	}

	tokenID, outcome := c.TokenID, domain.OutcomeCreated
	var writes []types.TransactWriteItem
	if existing != nil {
		tokenID, outcome = existing.TokenID, domain.OutcomeReactivated
		writes = append(writes, types.TransactWriteItem{Update: &types.Update{
			TableName:                 aws.String(r.tableName),
			Key:                       compositeKey(attrUserID, c.UserID, attrSK, tokenSK(c.Token)),
			UpdateExpression:          aws.String("SET #a = :t REMOVE #da"),
			ConditionExpression:       aws.String("attribute_exists(#sk)"),
			ExpressionAttributeNames:  map[string]string{"#a": attrIsActive, "#da": attrDeactivatedAt, "#sk": attrSK},
			ExpressionAttributeValues: map[string]types.AttributeValue{":t": boolean(true)},
		}})
	} else {
		item, err := attributevalue.MarshalMap(tokenItem{PushToken: *c, SK: tokenSK(c.Token), ItemType: itemToken})
		if err != nil {
			return "", "", fmt.Errorf("marshal push token: %w", err)
		}
		writes = append(writes, types.TransactWriteItem{Put: &types.Put{
			TableName:                aws.String(r.tableName),
			Item:                     item,
			ConditionExpression:      aws.String("attribute_not_exists(#sk)"),
			ExpressionAttributeNames: map[string]string{"#sk": attrSK},
		}})
	}

	if c.DeviceID != nil && (slot == nil || slot.ActiveToken != c.Token) {
		if slot != nil && slot.ActiveToken != "" {
			writes = append(writes, r.deactivateWrite(c.UserID, slot.ActiveToken, c.CreatedAt))
			if existing == nil {
				outcome = domain.OutcomeRotated
			}
		}
		slotPut, err := r.slotWrite(c, tokenID, slot)
		if err != nil {
			return "", "", err
		}
		writes = append(writes, slotPut)
	}

	if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes}); err != nil {
		return "", "", err
	}
	return tokenID, outcome, nil
}

func (r *PushTokenRepo) deactivateWrite(userID, token string, at time.Time) types.TransactWriteItem {
	return types.TransactWriteItem{Update: &types.Update{
		TableName:                aws.String(r.tableName),
		Key:                      compositeKey(attrUserID, userID, attrSK, tokenSK(token)),
		UpdateExpression:         aws.String("SET #a = :f, #da = if_not_exists(#da, :at)"),
		ConditionExpression:      aws.String("attribute_exists(#sk)"),
		ExpressionAttributeNames: map[string]string{"#a": attrIsActive, "#da": attrDeactivatedAt, "#sk": attrSK},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":f":  boolean(false),
			":at": timeValue(at),
		},
	}}
}

// slotWrite points the device slot at c, conditioned on the slot still holding prev.
func (r *PushTokenRepo) slotWrite(c *domain.PushToken, tokenID string, prev *slotItem) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(slotItem{
		UserID:      c.UserID,
		SK:          slotSK(c.Platform, *c.DeviceID),
		ItemType:    itemDevice,
		ActiveToken: c.Token,
		TokenID:     tokenID,
	})
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal device slot: %w", err)
	}
	put := &types.Put{TableName: aws.String(r.tableName), Item: item}
	if prev == nil {
		put.ConditionExpression = aws.String("attribute_not_exists(#sk)")
		put.ExpressionAttributeNames = map[string]string{"#sk": attrSK}
	} else {
		put.ConditionExpression = aws.String("#at = :prev")
		put.ExpressionAttributeNames = map[string]string{"#at": attrActiveToken}
		put.ExpressionAttributeValues = map[string]types.AttributeValue{":prev": str(prev.ActiveToken)}
	}
	return types.TransactWriteItem{Put: put}, nil
}

func (r *PushTokenRepo) getToken(ctx context.Context, userID, token string) (*domain.PushToken, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey(attrUserID, userID, attrSK, tokenSK(token)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	var t domain.PushToken
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PushTokenRepo) getSlot(ctx context.Context, userID string, platform domain.Platform, deviceID string) (*slotItem, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey(attrUserID, userID, attrSK, slotSK(platform, deviceID)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	var s slotItem
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Deactivate soft-deletes the active (userID, token) row and reports whether one matched.
func (r *PushTokenRepo) Deactivate(ctx context.Context, userID, token string, at time.Time) (bool, error) {
	ue, err := buildUpdateExpr(map[string]interface{}{
		attrIsActive:      false,
		attrDeactivatedAt: at.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return false, err
	}
	ue.Names["#sk"] = attrSK
	ue.Values[":t"] = boolean(true)
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       compositeKey(attrUserID, userID, attrSK, tokenSK(token)),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(fmt.Sprintf("attribute_exists(#sk) AND %s = :t", ue.placeholder(attrIsActive))),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionalFailure(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *PushTokenRepo) ListActiveByUser(ctx context.Context, userID string) ([]domain.PushToken, error) {
	items, err := queryAll(ctx, r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("#u = :u AND begins_with(#sk, :prefix)"),
		FilterExpression:       aws.String("#a = :t"),
		ExpressionAttributeNames: map[string]string{
			"#u":  attrUserID,
			"#sk": attrSK,
			"#a":  attrIsActive,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u":      str(userID),
			":prefix": str(tokenPrefix),
			":t":      boolean(true),
		},
	})
	if err != nil {
		return nil, err
	}
	return unmarshalTokens(items)
}

// ListActive scans every active token; used for system-wide broadcasts.
func (r *PushTokenRepo) ListActive(ctx context.Context) ([]domain.PushToken, error) {
	var tokens []domain.PushToken
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		FilterExpression:         aws.String("#it = :token AND #a = :t"),
		ExpressionAttributeNames: map[string]string{"#it": attrItemType, "#a": attrIsActive},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":token": str(itemToken),
			":t":     boolean(true),
		},
	})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		page, err := unmarshalTokens(out.Items)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, page...)
	}
	return tokens, nil
}

func unmarshalTokens(items []map[string]types.AttributeValue) ([]domain.PushToken, error) {
	tokens := make([]domain.PushToken, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &tokens); err != nil {
		return nil, fmt.Errorf("unmarshal push tokens: %w", err)
	}
	return tokens, nil
}
