package dynamo

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MembershipRepo resolves organization membership from the organization_members table
// (PK organization_id, SK user_id, user_id-index for the reverse lookup).
type MembershipRepo struct {
	client    API
	tableName string
}

func NewMembershipRepo(client API, tableName string) *MembershipRepo {
	return &MembershipRepo{client: client, tableName: tableName}
}

func (r *MembershipRepo) MemberIDs(ctx context.Context, organizationID string) ([]string, error) {
	items, err := queryAll(ctx, r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    aws.String("#o = :o"),
		ExpressionAttributeNames:  map[string]string{"#o": attrOrganizationID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":o": str(organizationID)},
	})
	if err != nil {
		return nil, err
	}
	return stringAttr(items, attrUserID), nil
}

func (r *MembershipRepo) OrganizationsOf(ctx context.Context, userID string) ([]string, error) {
	items, err := queryAll(ctx, r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexUser),
		KeyConditionExpression:    aws.String("#u = :u"),
		ExpressionAttributeNames:  map[string]string{"#u": attrUserID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":u": str(userID)},
	})
	if err != nil {
		return nil, err
	}
	return stringAttr(items, attrOrganizationID), nil
}

// AddMember records userID as a member of organizationID. Re-adding is a no-op overwrite.
func (r *MembershipRepo) AddMember(ctx context.Context, organizationID, userID string) error {
	item := compositeKey(attrOrganizationID, organizationID, attrUserID, userID)
	item["created_at"] = timeValue(time.Now())
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func stringAttr(items []map[string]types.AttributeValue, name string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if v, ok := it[name].(*types.AttributeValueMemberS); ok {
			out = append(out, v.Value)
		}
	}
	return out
}
