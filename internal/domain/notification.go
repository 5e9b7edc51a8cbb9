package domain

import "time"

// NotificationType is the display category of a notification.
type NotificationType string

const (
	TypeInfo     NotificationType = "info"
	TypeBilling  NotificationType = "billing"
	TypeTrial    NotificationType = "trial"
	TypeSystem   NotificationType = "system"
	TypeSecurity NotificationType = "security"
)

// Valid reports whether t is one of the known categories.
func (t NotificationType) Valid() bool {
	switch t {
	case TypeInfo, TypeBilling, TypeTrial, TypeSystem, TypeSecurity:
		return true
	}
	return false
}

// Target is the addressing mode of a notification or group.
type Target string

const (
	TargetUser         Target = "user"
	TargetOrganization Target = "organization"
	TargetSystem       Target = "system"
)

// Notification is one stored row. Rows created from the same logical event share GroupKey.
// Once inserted a row is immutable except for the single DeliveredAt transition.
type Notification struct {
	ID                  int64            `json:"id" dynamodbav:"notification_id"`
	GroupKey            string           `json:"groupKey" dynamodbav:"group_key"`
	Type                NotificationType `json:"type" dynamodbav:"type"`
	Title               string           `json:"title" dynamodbav:"title"`
	Message             string           `json:"message" dynamodbav:"message"`
	CreatedAt           time.Time        `json:"createdAt" dynamodbav:"created_at"`
	ScheduledFor        *time.Time       `json:"scheduledFor,omitempty" dynamodbav:"scheduled_for,omitempty"`
	DeliveredAt         *time.Time       `json:"deliveredAt,omitempty" dynamodbav:"delivered_at,omitempty"`
	UserID              *string          `json:"userId,omitempty" dynamodbav:"user_id,omitempty"`
	OrganizationID      *string          `json:"organizationId,omitempty" dynamodbav:"organization_id,omitempty"`
	SingleReadDismissal bool             `json:"singleReadDismissal" dynamodbav:"single_read_dismissal"`
}

// Target classifies a single row by its addressing fields.
func (n *Notification) Target() Target {
	switch {
	case n.OrganizationID != nil:
		return TargetOrganization
	case n.UserID != nil:
		return TargetUser
	default:
		return TargetSystem
	}
}

// Delivered reports whether the Dispatcher has already transitioned the row.
func (n *Notification) Delivered() bool { return n.DeliveredAt != nil }

// DueAt is the instant the row becomes eligible for delivery.
func (n *Notification) DueAt() time.Time {
	if n.ScheduledFor != nil {
		return *n.ScheduledFor
	}
	return n.CreatedAt
}

// IsDue reports whether the row is undelivered and its scheduled time has arrived.
func (n *Notification) IsDue(now time.Time) bool {
	return !n.Delivered() && !n.DueAt().After(now)
}

// NotificationGroup is the display unit computed on read by collapsing rows sharing a GroupKey.
// It is never persisted.
type NotificationGroup struct {
	GroupKey            string           `json:"groupKey"`
	ID                  int64            `json:"id"`
	Type                NotificationType `json:"type"`
	Title               string           `json:"title"`
	Message             string           `json:"message"`
	CreatedAt           time.Time        `json:"createdAt"`
	ScheduledFor        *time.Time       `json:"scheduledFor,omitempty"`
	DeliveredAt         *time.Time       `json:"deliveredAt,omitempty"`
	OrganizationID      *string          `json:"organizationId,omitempty"`
	RecipientCount      int              `json:"recipientCount"`
	Target              Target           `json:"target"`
	SingleReadDismissal bool             `json:"singleReadDismissal"`
	Read                bool             `json:"read,omitempty"`
}

// GroupStats are whole-group aggregates, independent of any page window.
type GroupStats struct {
	// Recipients is the number of distinct non-null user ids in the group.
	Recipients int
	// OrganizationRows is the number of rows in the group addressed to an organization.
	OrganizationRows int
}

// PageFilter narrows a Store page. Zero values match everything.
type PageFilter struct {
	UserID         string
	OrganizationID string
	Type           NotificationType
}

// Audience is the set of addressing keys a single recipient can see.
type Audience struct {
	UserID          string
	OrganizationIDs []string
}

// Matches reports whether n is addressed to the audience.
func (a Audience) Matches(n *Notification) bool {
	switch n.Target() {
	case TargetSystem:
		return true
	case TargetUser:
		return *n.UserID == a.UserID
	default:
		for _, org := range a.OrganizationIDs {
			if org == *n.OrganizationID {
				return true
			}
		}
		return false
	}
}

// HistoryPage is the admin history response.
type HistoryPage struct {
	Notifications []NotificationGroup `json:"notifications"`
	HasMore       bool                `json:"hasMore"`
}

// Inbox is a recipient's grouped view of delivered notifications.
type Inbox struct {
	Notifications []NotificationGroup `json:"notifications"`
	UnreadCount   int                 `json:"unreadCount"`
}

// CreateNotificationRequest is the producer input. Exactly one addressing mode applies:
// UserIDs (one row per user), OrganizationID, or neither (system-wide).
type CreateNotificationRequest struct {
	GroupKey            string           `json:"groupKey" validate:"omitempty,max=200"`
	Type                NotificationType `json:"type" validate:"required"`
	Title               string           `json:"title" validate:"required,max=200"`
	Message             string           `json:"message" validate:"required,max=4000"`
	ScheduledFor        *time.Time       `json:"scheduledFor"`
	UserIDs             []string         `json:"userIds" validate:"omitempty,dive,required"`
	OrganizationID      *string          `json:"organizationId" validate:"omitempty,min=1"`
	SingleReadDismissal bool             `json:"singleReadDismissal"`
}
