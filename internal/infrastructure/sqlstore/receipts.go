package sqlstore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/go-notify-engine/internal/domain"
)

type ReceiptRepo struct {
	db *gorm.DB
}

func NewReceiptRepo(db *gorm.DB) *ReceiptRepo {
	return &ReceiptRepo{db: db}
}

// Receipts returns userID's own and the group-wide receipts for groupKeys.
func (r *ReceiptRepo) Receipts(ctx context.Context, userID string, groupKeys []string) ([]domain.Receipt, error) {
	if len(groupKeys) == 0 {
		return nil, nil
	}
	var models []receiptModel
	if err := r.db.WithContext(ctx).
		Where("group_key IN ? AND user_id IN ?", groupKeys, []string{userID, domain.GroupWideRecipient}).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Receipt, 0, len(models))
	for _, m := range models {
		out = append(out, domain.Receipt{
			GroupKey:    m.GroupKey,
			UserID:      m.UserID,
			ReadAt:      utcPtr(m.ReadAt),
			DismissedAt: utcPtr(m.DismissedAt),
		})
	}
	return out, nil
}

func (r *ReceiptRepo) MarkRead(ctx context.Context, groupKey, userID string, at time.Time) error {
	at = at.UTC()
	return r.upsert(ctx, receiptModel{GroupKey: groupKey, UserID: userID, ReadAt: &at}, map[string]any{
		"read_at": gorm.Expr("COALESCE(read_at, ?)", at),
	})
}

// Dismiss also marks the group read. Existing stamps are kept.
func (r *ReceiptRepo) Dismiss(ctx context.Context, groupKey, userID string, at time.Time) error {
	at = at.UTC()
	return r.upsert(ctx, receiptModel{GroupKey: groupKey, UserID: userID, ReadAt: &at, DismissedAt: &at}, map[string]any{
		"read_at":      gorm.Expr("COALESCE(read_at, ?)", at),
		"dismissed_at": gorm.Expr("COALESCE(dismissed_at, ?)", at),
	})
}

func (r *ReceiptRepo) upsert(ctx context.Context, m receiptModel, onConflict map[string]any) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_key"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(onConflict),
		}).
		Create(&m).Error
}
