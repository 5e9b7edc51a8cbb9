package sqlstore

import (
	"time"

	"github.com/go-notify-engine/internal/domain"
)

type notificationModel struct {
	ID                  int64      `gorm:"primaryKey;autoIncrement"`
	GroupKey            string     `gorm:"size:200;not null;index:idx_notifications_group"`
	Type                string     `gorm:"size:32;not null"`
	Title               string     `gorm:"size:200;not null"`
	Message             string     `gorm:"type:text;not null"`
	CreatedAt           time.Time  `gorm:"not null;index:idx_notifications_feed"`
	ScheduledFor        *time.Time `gorm:"index:idx_notifications_due,priority:2"`
	DeliveredAt         *time.Time `gorm:"index:idx_notifications_due,priority:1"`
	UserID              *string    `gorm:"size:191;index"`
	OrganizationID      *string    `gorm:"size:191;index"`
	SingleReadDismissal bool       `gorm:"not null"`
}

func (notificationModel) TableName() string { return "notifications" }

func notificationFromDomain(n *domain.Notification) notificationModel {
	return notificationModel{
		ID:                  n.ID,
		GroupKey:            n.GroupKey,
		Type:                string(n.Type),
		Title:               n.Title,
		Message:             n.Message,
		CreatedAt:           n.CreatedAt.UTC(),
		ScheduledFor:        utcPtr(n.ScheduledFor),
		DeliveredAt:         utcPtr(n.DeliveredAt),
		UserID:              n.UserID,
		OrganizationID:      n.OrganizationID,
		SingleReadDismissal: n.SingleReadDismissal,
	}
}

func (m *notificationModel) toDomain() domain.Notification {
	return domain.Notification{
		ID:                  m.ID,
		GroupKey:            m.GroupKey,
		Type:                domain.NotificationType(m.Type),
		Title:               m.Title,
		Message:             m.Message,
		CreatedAt:           m.CreatedAt.UTC(),
		ScheduledFor:        utcPtr(m.ScheduledFor),
		DeliveredAt:         utcPtr(m.DeliveredAt),
		UserID:              m.UserID,
		OrganizationID:      m.OrganizationID,
		SingleReadDismissal: m.SingleReadDismissal,
	}
}

// pushTokenModel: (user_id, token) is unique; (user_id, device_id, platform) is the device slot.
type pushTokenModel struct {
	ID            string     `gorm:"primaryKey;size:40"`
	UserID        string     `gorm:"size:191;not null;uniqueIndex:uq_push_tokens_user_token,priority:1;index:idx_push_tokens_slot,priority:1"`
	Token         string     `gorm:"size:512;not null;uniqueIndex:uq_push_tokens_user_token,priority:2"`
	DeviceID      *string    `gorm:"size:191;index:idx_push_tokens_slot,priority:2"`
	Platform      string     `gorm:"size:16;not null;index:idx_push_tokens_slot,priority:3"`
	IsActive      bool       `gorm:"not null;index"`
	CreatedAt     time.Time  `gorm:"not null"`
	DeactivatedAt *time.Time
}

func (pushTokenModel) TableName() string { return "push_tokens" }

func (m *pushTokenModel) toDomain() domain.PushToken {
	return domain.PushToken{
		TokenID:       m.ID,
		UserID:        m.UserID,
		Token:         m.Token,
		DeviceID:      m.DeviceID,
		Platform:      domain.Platform(m.Platform),
		IsActive:      m.IsActive,
		CreatedAt:     m.CreatedAt.UTC(),
		DeactivatedAt: utcPtr(m.DeactivatedAt),
	}
}

type receiptModel struct {
	GroupKey    string `gorm:"primaryKey;size:200"`
	UserID      string `gorm:"primaryKey;size:191"`
	ReadAt      *time.Time
	DismissedAt *time.Time
}

func (receiptModel) TableName() string { return "notification_receipts" }

type membershipModel struct {
	OrganizationID string    `gorm:"primaryKey;size:191"`
	UserID         string    `gorm:"primaryKey;size:191;index"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (membershipModel) TableName() string { return "organization_members" }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
