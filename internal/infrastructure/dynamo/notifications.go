package dynamo

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-notify-engine/internal/config"
	"github.com/go-notify-engine/internal/domain"
)

const (
	feedAll             = "all"
	pendingMarker       = "1"
	notificationCounter = "notifications"
)

// notificationItem is the stored shape of a row. The extra attributes key the GSIs:
// feed/feed_sort for history pages, pending/due_at (sparse, removed on delivery) for
// FindDue, audience/feed_sort for inbox reads and group_key/feed_sort for trial checks.
type notificationItem struct {
	domain.Notification
	Feed     string `dynamodbav:"feed"`
	FeedSort string `dynamodbav:"feed_sort"`
	Audience string `dynamodbav:"audience"`
	Pending  string `dynamodbav:"pending,omitempty"`
	DueAt    string `dynamodbav:"due_at"`
}

// NotificationRepo stores notification rows and maintains per-group aggregates
// (row count, organization rows, distinct recipients) in the same transaction as the insert.
type NotificationRepo struct {
	client API
	tables config.DynamoTables
}

func NewNotificationRepo(client API, tables config.DynamoTables) *NotificationRepo {
	return &NotificationRepo{client: client, tables: tables}
}

func (r *NotificationRepo) Insert(ctx context.Context, n *domain.Notification) (int64, error) {
	if strings.TrimSpace(n.GroupKey) == "" {
		return 0, domain.NewValidationError("groupKey", "is required")
	}
	if n.UserID != nil && n.OrganizationID != nil {
		return 0, domain.NewValidationError("target", "userId and organizationId are mutually exclusive")
	}
	if n.DeliveredAt != nil {
		return 0, domain.NewValidationError("deliveredAt", "must be empty on insert")
	}
	nid, err := r.nextID(ctx)
	if err != nil {
		return 0, err
	}
	n.ID = nid
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	item, err := attributevalue.MarshalMap(notificationItem{
		Notification: *n,
		Feed:         feedAll,
		FeedSort:     feedSortKey(n.CreatedAt, n.ID),
		Audience:     audienceKey(n),
		Pending:      pendingMarker,
		DueAt:        sortTime(n.DueAt()),
	})
	if err != nil {
		return 0, fmt.Errorf("marshal notification: %w", err)
	}

	var orgRows int64
	if n.OrganizationID != nil {
		orgRows = 1
	}
	writes := []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:           aws.String(r.tables.Notifications),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(notification_id)"),
		}},
		{Update: &types.Update{
			TableName:                aws.String(r.tables.NotificationGroups),
			Key:                      strKey(attrGroupKey, n.GroupKey),
			UpdateExpression:         aws.String("ADD #rc :one, #org :org"),
			ExpressionAttributeNames: map[string]string{"#rc": attrRowCount, "#org": attrOrgRows},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one": num(1),
				":org": num(orgRows),
			},
		}},
	}
	if n.UserID != nil {
		writes = append(writes, types.TransactWriteItem{Put: &types.Put{
			TableName: aws.String(r.tables.GroupRecipients),
			Item:      compositeKey(attrGroupKey, n.GroupKey, attrUserID, *n.UserID),
		}})
	}
	if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes}); err != nil {
		return 0, fmt.Errorf("insert notification %d: %w", nid, err)
	}
	return nid, nil
}

// nextID draws the next value of the atomic notification counter.
func (r *NotificationRepo) nextID(ctx context.Context) (int64, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tables.Counters),
		Key:                       strKey(attrCounterName, notificationCounter),
		UpdateExpression:          aws.String("ADD #seq :one"),
		ExpressionAttributeNames:  map[string]string{"#seq": attrSeq},
		ExpressionAttributeValues: map[string]types.AttributeValue{":one": num(1)},
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("next notification id: %w", err)
	}
	seq, ok := out.Attributes[attrSeq].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("next notification id: counter attribute missing")
	}
	return strconv.ParseInt(seq.Value, 10, 64)
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID int64) (*domain.Notification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tables.Notifications),
		Key:       numKey(attrNotificationID, notificationID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("notification %d: %w", notificationID, domain.ErrNotFound)
	}
	var n domain.Notification
	if err := attributevalue.UnmarshalMap(out.Item, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// FindDue reads the sparse pending index up to now, ordered by id.
func (r *NotificationRepo) FindDue(ctx context.Context, now time.Time) ([]domain.Notification, error) {
	items, err := queryAll(ctx, r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tables.Notifications),
		IndexName:              aws.String(indexPending),
		KeyConditionExpression: aws.String("#p = :p AND #due <= :now"),
		ExpressionAttributeNames: map[string]string{
			"#p":   attrPending,
			"#due": attrDueAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p":   str(pendingMarker),
			":now": str(sortTime(now)),
		},
	})
	if err != nil {
		return nil, err
	}
	rows, err := unmarshalRows(items)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

// MarkDelivered is the conditional transition; a lost race reports false.
func (r *NotificationRepo) MarkDelivered(ctx context.Context, notificationID int64, at time.Time) (bool, error) {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tables.Notifications),
		Key:                 numKey(attrNotificationID, notificationID),
		UpdateExpression:    aws.String("SET #d = :at REMOVE #p"),
		ConditionExpression: aws.String("attribute_exists(#id) AND attribute_not_exists(#d)"),
		ExpressionAttributeNames: map[string]string{
			"#d":  attrDeliveredAt,
			"#p":  attrPending,
			"#id": attrNotificationID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{":at": timeValue(at)},
	})
	if isConditionalFailure(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Page returns rows ordered createdAt desc, id desc, skipping offset matches.
func (r *NotificationRepo) Page(ctx context.Context, filter domain.PageFilter, offset, limit int) ([]domain.Notification, error) {
	in := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tables.Notifications),
		IndexName:                 aws.String(indexFeed),
		KeyConditionExpression:    aws.String("#feed = :feed"),
		ExpressionAttributeNames:  map[string]string{"#feed": attrFeed},
		ExpressionAttributeValues: map[string]types.AttributeValue{":feed": str(feedAll)},
		ScanIndexForward:          aws.Bool(false),
	}
	applyFilter(filter, &in.FilterExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)

	var rows []domain.Notification
	skipped := 0
	p := dynamodb.NewQueryPaginator(r.client, in)
	for p.HasMorePages() && len(rows) < limit {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		page, err := unmarshalRows(out.Items)
		if err != nil {
			return nil, err
		}
		for _, n := range page {
			if skipped < offset {
				skipped++
				continue
			}
			rows = append(rows, n)
			if len(rows) == limit {
				break
			}
		}
	}
	return rows, nil
}

// CountRows counts raw rows matching filter.
func (r *NotificationRepo) CountRows(ctx context.Context, filter domain.PageFilter) (int64, error) {
	in := &dynamodb.ScanInput{TableName: aws.String(r.tables.Notifications)}
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	applyFilter(filter, &in.FilterExpression, names, values)
	if len(names) > 0 {
		in.ExpressionAttributeNames = names
		in.ExpressionAttributeValues = values
	}
	return countScan(ctx, r.client, in)
}

// CountGroups counts distinct group keys; each key has exactly one aggregate item.
func (r *NotificationRepo) CountGroups(ctx context.Context) (int64, error) {
	return countScan(ctx, r.client, &dynamodb.ScanInput{TableName: aws.String(r.tables.NotificationGroups)})
}

// GroupStats reads whole-group aggregates for each key.
func (r *NotificationRepo) GroupStats(ctx context.Context, groupKeys []string) (map[string]domain.GroupStats, error) {
	stats := make(map[string]domain.GroupStats, len(groupKeys))
	for _, key := range groupKeys {
		out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(r.tables.NotificationGroups),
			Key:       strKey(attrGroupKey, key),
		})
		if err != nil {
			return nil, fmt.Errorf("group aggregate %s: %w", key, err)
		}
		var agg struct {
			OrgRows int `dynamodbav:"org_rows"`
		}
		if out.Item != nil {
			if err := attributevalue.UnmarshalMap(out.Item, &agg); err != nil {
				return nil, err
			}
		}

		var recipients int
		p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tables.GroupRecipients),
			KeyConditionExpression:    aws.String("#g = :g"),
			ExpressionAttributeNames:  map[string]string{"#g": attrGroupKey},
			ExpressionAttributeValues: map[string]types.AttributeValue{":g": str(key)},
			Select:                    types.SelectCount,
		})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("group recipients %s: %w", key, err)
			}
			recipients += int(page.Count)
		}
		stats[key] = domain.GroupStats{Recipients: recipients, OrganizationRows: agg.OrgRows}
	}
	return stats, nil
}

// LatestDeliveredPerGroup reads every audience partition visible to a and keeps the newest
// delivered row of each group, newest first.
func (r *NotificationRepo) LatestDeliveredPerGroup(ctx context.Context, a domain.Audience) ([]domain.Notification, error) {
	partitions := []string{systemAudience}
	if a.UserID != "" {
		partitions = append(partitions, userAudience(a.UserID))
	}
	for _, org := range a.OrganizationIDs {
		partitions = append(partitions, orgAudience(org))
	}

	latest := map[string]domain.Notification{}
	for _, part := range partitions {
		items, err := queryAll(ctx, r.client, &dynamodb.QueryInput{
			TableName:              aws.String(r.tables.Notifications),
			IndexName:              aws.String(indexAudience),
			KeyConditionExpression: aws.String("#a = :a"),
			FilterExpression:       aws.String("attribute_exists(#d)"),
			ExpressionAttributeNames: map[string]string{
				"#a": attrAudience,
				"#d": attrDeliveredAt,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{":a": str(part)},
			ScanIndexForward:          aws.Bool(false),
		})
		if err != nil {
			return nil, fmt.Errorf("audience %s: %w", part, err)
		}
		rows, err := unmarshalRows(items)
		if err != nil {
			return nil, err
		}
		for _, n := range rows {
			cur, ok := latest[n.GroupKey]
			if !ok || n.CreatedAt.After(cur.CreatedAt) || (n.CreatedAt.Equal(cur.CreatedAt) && n.ID > cur.ID) {
				latest[n.GroupKey] = n
			}
		}
	}

	out := make([]domain.Notification, 0, len(latest))
	for _, n := range latest {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// PendingInGroup returns undelivered rows of groupKey addressed to userID.
func (r *NotificationRepo) PendingInGroup(ctx context.Context, groupKey, userID string) ([]domain.Notification, error) {
	items, err := queryAll(ctx, r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tables.Notifications),
		IndexName:              aws.String(indexGroup),
		KeyConditionExpression: aws.String("#g = :g"),
		FilterExpression:       aws.String("attribute_not_exists(#d) AND #u = :u"),
		ExpressionAttributeNames: map[string]string{
			"#g": attrGroupKey,
			"#d": attrDeliveredAt,
			"#u": attrUserID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":g": str(groupKey),
			":u": str(userID),
		},
	})
	if err != nil {
		return nil, err
	}
	return unmarshalRows(items)
}

func applyFilter(f domain.PageFilter, expr **string, names map[string]string, values map[string]types.AttributeValue) {
	var conds []string
	if f.UserID != "" {
		names["#fu"] = attrUserID
		values[":fu"] = str(f.UserID)
		conds = append(conds, "#fu = :fu")
	}
	if f.OrganizationID != "" {
		names["#fo"] = attrOrganizationID
		values[":fo"] = str(f.OrganizationID)
		conds = append(conds, "#fo = :fo")
	}
	if f.Type != "" {
		names["#ft"] = attrType
		values[":ft"] = str(string(f.Type))
		conds = append(conds, "#ft = :ft")
	}
	if len(conds) > 0 {
		*expr = aws.String(strings.Join(conds, " AND "))
	}
}

func unmarshalRows(items []map[string]types.AttributeValue) ([]domain.Notification, error) {
	rows := make([]domain.Notification, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal notifications: %w", err)
	}
	return rows, nil
}
