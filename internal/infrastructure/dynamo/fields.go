package dynamo

// DynamoDB attribute and index names shared by the repos and Bootstrap.
const (
	attrNotificationID = "notification_id"
	attrGroupKey       = "group_key"
	attrUserID         = "user_id"
	attrOrganizationID = "organization_id"
	attrDeliveredAt    = "delivered_at"
	attrFeed           = "feed"
	attrFeedSort       = "feed_sort"
	attrAudience       = "audience"
	attrPending        = "pending"
	attrDueAt          = "due_at"
	attrType           = "type"

	attrRowCount = "row_count"
	attrOrgRows  = "org_rows"

	attrReadAt      = "read_at"
	attrDismissedAt = "dismissed_at"

	attrSK            = "sk"
	attrItemType      = "item_type"
	attrIsActive      = "is_active"
	attrDeactivatedAt = "deactivated_at"
	attrActiveToken   = "active_token"
	attrTokenID       = "token_id"

	attrCounterName = "counter_name"
	attrSeq         = "seq"

	indexFeed     = "feed-index"
	indexPending  = "pending-index"
	indexAudience = "audience-index"
	indexGroup    = "group_key-index"
	indexUser     = "user_id-index"
)
