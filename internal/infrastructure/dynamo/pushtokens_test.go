package dynamo

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-notify-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(token string, device *string) *domain.PushToken {
	return &domain.PushToken{
		TokenID:   "ptk_new",
		UserID:    "u1",
		Token:     token,
		DeviceID:  device,
		Platform:  domain.PlatformIOS,
		IsActive:  true,
		CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func skOf(key map[string]types.AttributeValue) string {
	return key[attrSK].(*types.AttributeValueMemberS).Value
}

func TestRegister_NewTokenInsertsConditionally(t *testing.T) {
	api := &fakeAPI{}
	repo := NewPushTokenRepo(api, "push_tokens")

	id, outcome, err := repo.Register(context.Background(), candidate("abc", nil))

	require.NoError(t, err)
	assert.Equal(t, "ptk_new", id)
	assert.Equal(t, domain.OutcomeCreated, outcome)
	writes := api.transactCalls[0].TransactItems
	require.Len(t, writes, 1)
	assert.Equal(t, "attribute_not_exists(#sk)", aws.ToString(writes[0].Put.ConditionExpression))
	assert.Equal(t, str("token#abc"), writes[0].Put.Item[attrSK])
}

func TestRegister_ExistingTokenIsReactivated(t *testing.T) {
	existing, err := attributevalue.MarshalMap(tokenItem{
		PushToken: domain.PushToken{TokenID: "ptk_old", UserID: "u1", Token: "abc", Platform: domain.PlatformIOS},
		SK:        tokenSK("abc"),
		ItemType:  itemToken,
	})
	require.NoError(t, err)
	api := &fakeAPI{getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		if skOf(in.Key) == "token#abc" {
			return &dynamodb.GetItemOutput{Item: existing}, nil
		}
		return &dynamodb.GetItemOutput{}, nil
	}}
	repo := NewPushTokenRepo(api, "push_tokens")

	id, outcome, err := repo.Register(context.Background(), candidate("abc", nil))

	require.NoError(t, err)
	assert.Equal(t, "ptk_old", id)
	assert.Equal(t, domain.OutcomeReactivated, outcome)
	writes := api.transactCalls[0].TransactItems
	require.Len(t, writes, 1)
	assert.Equal(t, "SET #a = :t REMOVE #da", aws.ToString(writes[0].Update.UpdateExpression))
}

func TestRegister_DeviceRotationDeactivatesPreviousToken(t *testing.T) {
	device := "iphone-1"
	slot, err := attributevalue.MarshalMap(slotItem{
		UserID: "u1", SK: slotSK(domain.PlatformIOS, device), ItemType: itemDevice, ActiveToken: "old", TokenID: "ptk_old",
	})
	require.NoError(t, err)
	api := &fakeAPI{getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		if skOf(in.Key) == "device#ios#iphone-1" {
			return &dynamodb.GetItemOutput{Item: slot}, nil
		}
		return &dynamodb.GetItemOutput{}, nil
	}}
	repo := NewPushTokenRepo(api, "push_tokens")

	_, outcome, err := repo.Register(context.Background(), candidate("new", &device))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRotated, outcome)
	writes := api.transactCalls[0].TransactItems
	require.Len(t, writes, 3)
	assert.Equal(t, "token#old", skOf(writes[1].Update.Key))
	assert.Equal(t, boolean(false), writes[1].Update.ExpressionAttributeValues[":f"])
	assert.Equal(t, "#at = :prev", aws.ToString(writes[2].Put.ConditionExpression))
	assert.Equal(t, str("old"), writes[2].Put.ExpressionAttributeValues[":prev"])
	assert.Equal(t, str("new"), writes[2].Put.Item[attrActiveToken])
}

func TestRegister_RetriesOnTransactionConflict(t *testing.T) {
	calls := 0
	api := &fakeAPI{transact: func(*dynamodb.TransactWriteItemsInput) error {
		calls++
		if calls == 1 {
			return &types.TransactionCanceledException{Message: aws.String("ConditionalCheckFailed")}
		}
		return nil
	}}
	repo := NewPushTokenRepo(api, "push_tokens")

	_, _, err := repo.Register(context.Background(), candidate("abc", nil))

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRegister_GivesUpAfterRepeatedConflicts(t *testing.T) {
	api := &fakeAPI{transact: func(*dynamodb.TransactWriteItemsInput) error {
		return &types.TransactionCanceledException{Message: aws.String("ConditionalCheckFailed")}
	}}
	repo := NewPushTokenRepo(api, "push_tokens")

	_, _, err := repo.Register(context.Background(), candidate("abc", nil))

	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Len(t, api.transactCalls, maxRegisterAttempts)
}

func TestDeactivate_NoActiveRowIsNoop(t *testing.T) {
	api := &fakeAPI{updateItem: func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("no match")}
	}}
	repo := NewPushTokenRepo(api, "push_tokens")

	changed, err := repo.Deactivate(context.Background(), "u1", "abc", time.Now())

	require.NoError(t, err)
	assert.False(t, changed)
}

func TestDeactivate_ConditionalSoftDelete(t *testing.T) {
	api := &fakeAPI{}
	repo := NewPushTokenRepo(api, "push_tokens")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	changed, err := repo.Deactivate(context.Background(), "u1", "abc", at)

	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, api.updateCalls, 1)
	in := api.updateCalls[0]
	assert.Equal(t, "token#abc", skOf(in.Key))
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1", aws.ToString(in.UpdateExpression))
	assert.Equal(t, "attribute_exists(#sk) AND #f1 = :t", aws.ToString(in.ConditionExpression))
	assert.Equal(t, attrDeactivatedAt, in.ExpressionAttributeNames["#f0"])
	assert.Equal(t, attrIsActive, in.ExpressionAttributeNames["#f1"])
	assert.Equal(t, str("2026-03-01T12:00:00Z"), in.ExpressionAttributeValues[":v0"])
	assert.Equal(t, boolean(false), in.ExpressionAttributeValues[":v1"])
	assert.Equal(t, boolean(true), in.ExpressionAttributeValues[":t"])
}
