package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/go-notify-engine/internal/domain"
)

// NotificationRepo is the gorm notification store.
type NotificationRepo struct {
	db *gorm.DB
}

func NewNotificationRepo(db *gorm.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
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
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	m := notificationFromDomain(n)
	m.ID = 0
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	n.ID = m.ID
	return m.ID, nil
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID int64) (*domain.Notification, error) {
	var m notificationModel
	err := r.db.WithContext(ctx).First(&m, notificationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("notification %d: %w", notificationID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	n := m.toDomain()
	return &n, nil
}

func (r *NotificationRepo) FindDue(ctx context.Context, now time.Time) ([]domain.Notification, error) {
	var models []notificationModel
	err := r.db.WithContext(ctx).
		Where("delivered_at IS NULL AND (scheduled_for IS NULL OR scheduled_for <= ?)", now.UTC()).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainRows(models), nil
}

// MarkDelivered is a single conditional UPDATE; the affected-row count decides the winner.
func (r *NotificationRepo) MarkDelivered(ctx context.Context, notificationID int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&notificationModel{}).
		Where("id = ? AND delivered_at IS NULL", notificationID).
		Update("delivered_at", at.UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *NotificationRepo) Page(ctx context.Context, filter domain.PageFilter, offset, limit int) ([]domain.Notification, error) {
	var models []notificationModel
	err := r.db.WithContext(ctx).
		Scopes(pageFilter(filter)).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainRows(models), nil
}

func (r *NotificationRepo) CountRows(ctx context.Context, filter domain.PageFilter) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&notificationModel{}).Scopes(pageFilter(filter)).Count(&n).Error
	return n, err
}

func (r *NotificationRepo) CountGroups(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&notificationModel{}).Distinct("group_key").Count(&n).Error
	return n, err
}

// GroupStats aggregates over every row of each group, independent of any page window.
func (r *NotificationRepo) GroupStats(ctx context.Context, groupKeys []string) (map[string]domain.GroupStats, error) {
	stats := make(map[string]domain.GroupStats, len(groupKeys))
	if len(groupKeys) == 0 {
		return stats, nil
	}
	var rows []struct {
		GroupKey   string
		Recipients int
		OrgRows    int
	}
	err := r.db.WithContext(ctx).Model(&notificationModel{}).
		Select("group_key, COUNT(DISTINCT user_id) AS recipients, COUNT(organization_id) AS org_rows").
		Where("group_key IN ?", groupKeys).
		Group("group_key").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats[row.GroupKey] = domain.GroupStats{Recipients: row.Recipients, OrganizationRows: row.OrgRows}
	}
	return stats, nil
}

// LatestDeliveredPerGroup returns the newest delivered row of each group visible to a.
// Ids are assigned in insertion order, so MAX(id) picks the newest row of a group.
func (r *NotificationRepo) LatestDeliveredPerGroup(ctx context.Context, a domain.Audience) ([]domain.Notification, error) {
	db := r.db.WithContext(ctx)
	latest := db.Model(&notificationModel{}).
		Select("MAX(id)").
		Scopes(visibleTo(db, a)).
		Group("group_key")

	var models []notificationModel
	err := db.Where("id IN (?)", latest).
		Order("created_at DESC, id DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainRows(models), nil
}

func (r *NotificationRepo) PendingInGroup(ctx context.Context, groupKey, userID string) ([]domain.Notification, error) {
	var models []notificationModel
	err := r.db.WithContext(ctx).
		Where("group_key = ? AND user_id = ? AND delivered_at IS NULL", groupKey, userID).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainRows(models), nil
}

func pageFilter(f domain.PageFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.UserID != "" {
			db = db.Where("user_id = ?", f.UserID)
		}
		if f.OrganizationID != "" {
			db = db.Where("organization_id = ?", f.OrganizationID)
		}
		if f.Type != "" {
			db = db.Where("type = ?", string(f.Type))
		}
		return db
	}
}

// visibleTo restricts to delivered rows addressed to the audience: system rows, the
// user's own rows and rows of the user's organizations.
func visibleTo(db *gorm.DB, a domain.Audience) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		addressed := db.Where("user_id IS NULL AND organization_id IS NULL")
		if a.UserID != "" {
			addressed = addressed.Or("user_id = ?", a.UserID)
		}
		if len(a.OrganizationIDs) > 0 {
			addressed = addressed.Or("organization_id IN ?", a.OrganizationIDs)
		}
		return q.Where("delivered_at IS NOT NULL").Where(addressed)
	}
}

func toDomainRows(models []notificationModel) []domain.Notification {
	rows := make([]domain.Notification, 0, len(models))
	for i := range models {
		rows = append(rows, models[i].toDomain())
	}
	return rows
}
