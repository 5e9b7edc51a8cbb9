// Package storage selects the configured store backend and exposes it through backend-neutral contracts.
package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/go-notify-engine/internal/config"
	"github.com/go-notify-engine/internal/domain"
	"github.com/go-notify-engine/internal/infrastructure/dynamo"
	"github.com/go-notify-engine/internal/infrastructure/sqlstore"
)

// NotificationStore is the full notification store contract shared by both backends.
type NotificationStore interface {
	Insert(ctx context.Context, n *domain.Notification) (int64, error)
	Get(ctx context.Context, notificationID int64) (*domain.Notification, error)
	FindDue(ctx context.Context, now time.Time) ([]domain.Notification, error)
	MarkDelivered(ctx context.Context, notificationID int64, at time.Time) (bool, error)
	Page(ctx context.Context, filter domain.PageFilter, offset, limit int) ([]domain.Notification, error)
	CountRows(ctx context.Context, filter domain.PageFilter) (int64, error)
	CountGroups(ctx context.Context) (int64, error)
	GroupStats(ctx context.Context, groupKeys []string) (map[string]domain.GroupStats, error)
	LatestDeliveredPerGroup(ctx context.Context, audience domain.Audience) ([]domain.Notification, error)
	PendingInGroup(ctx context.Context, groupKey, userID string) ([]domain.Notification, error)
}

type ReceiptStore interface {
	Receipts(ctx context.Context, userID string, groupKeys []string) ([]domain.Receipt, error)
	MarkRead(ctx context.Context, groupKey, userID string, at time.Time) error
	Dismiss(ctx context.Context, groupKey, userID string, at time.Time) error
}

type PushTokenStore interface {
	Register(ctx context.Context, candidate *domain.PushToken) (string, domain.RegisterOutcome, error)
	Deactivate(ctx context.Context, userID, token string, at time.Time) (bool, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.PushToken, error)
	ListActive(ctx context.Context) ([]domain.PushToken, error)
}

type MembershipStore interface {
	MemberIDs(ctx context.Context, organizationID string) ([]string, error)
	OrganizationsOf(ctx context.Context, userID string) ([]string, error)
	AddMember(ctx context.Context, organizationID, userID string) error
}

// Stores is one opened backend.
type Stores struct {
	Backend       string
	Notifications NotificationStore
	Receipts      ReceiptStore
	Tokens        PushTokenStore
	Members       MembershipStore

	bootstrap func(ctx context.Context) error
	close     func() error
}

// Bootstrap creates the DynamoDB tables or runs the SQL migrations.
func (s *Stores) Bootstrap(ctx context.Context) error { return s.bootstrap(ctx) }

func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open connects to cfg.StoreBackend.
func Open(cfg *config.Config) (*Stores, error) {
	switch cfg.StoreBackend {
	case config.BackendDynamo:
		return openDynamo(cfg), nil
	case config.BackendSQL:
		db, err := sqlstore.Open(cfg.SQLDriver, cfg.SQLDSN, cfg.Debug())
		if err != nil {
			return nil, err
		}
		return FromGorm(db), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func openDynamo(cfg *config.Config) *Stores {
	client := dynamo.NewClient(cfg)
	t := cfg.DynamoTables
	return &Stores{
		Backend:       config.BackendDynamo,
		Notifications: dynamo.NewNotificationRepo(client, t),
		Receipts:      dynamo.NewReceiptRepo(client, t.Receipts),
		Tokens:        dynamo.NewPushTokenRepo(client, t.PushTokens),
		Members:       dynamo.NewMembershipRepo(client, t.OrganizationMembers),
		bootstrap: func(ctx context.Context) error {
			dynamo.Bootstrap(ctx, client, t)
			return nil
		},
	}
}

// FromGorm wraps an open gorm connection.
func FromGorm(db *gorm.DB) *Stores {
	return &Stores{
		Backend:       config.BackendSQL,
		Notifications: sqlstore.NewNotificationRepo(db),
		Receipts:      sqlstore.NewReceiptRepo(db),
		Tokens:        sqlstore.NewPushTokenRepo(db),
		Members:       sqlstore.NewMembershipRepo(db),
		bootstrap: func(context.Context) error {
			return sqlstore.Migrate(db)
		},
		close: func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}
}
