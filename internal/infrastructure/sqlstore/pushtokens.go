package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/go-notify-engine/internal/domain"
)

const (
	maxRegisterAttempts = 4

	mysqlDeadlock = 1213
)

// PushTokenRepo is the gorm push token registry.
type PushTokenRepo struct {
	db *gorm.DB
}

func NewPushTokenRepo(db *gorm.DB) *PushTokenRepo {
	return &PushTokenRepo{db: db}
}

// Register runs reactivation or rotation plus insert in one transaction. The slot rows are
// read with FOR UPDATE so concurrent registrations for one device serialize; a lost insert
// race surfaces as a duplicate key, or on MySQL as a gap-lock deadlock, and is retried.
func (r *PushTokenRepo) Register(ctx context.Context, c *domain.PushToken) (string, domain.RegisterOutcome, error) {
	for attempt := 0; attempt < maxRegisterAttempts; attempt++ {
		tokenID, outcome, err := r.tryRegister(ctx, c)
		if retryableRegister(err) {
			continue
		}
		return tokenID, outcome, err
	}
	return "", "", fmt.Errorf("register push token: %w", domain.ErrConflict)
}

func retryableRegister(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDeadlock
}

func (r *PushTokenRepo) tryRegister(ctx context.Context, c *domain.PushToken) (string, domain.RegisterOutcome, error) {
	var (
		tokenID string
		outcome domain.RegisterOutcome
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing pushTokenModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND token = ?", c.UserID, c.Token).
			Take(&existing).Error
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		rotated := false
		if c.DeviceID != nil {
			var slot []pushTokenModel
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("user_id = ? AND device_id = ? AND platform = ? AND is_active = ? AND token <> ?",
					c.UserID, *c.DeviceID, string(c.Platform), true, c.Token).
				Find(&slot).Error; err != nil {
				return err
			}
			if len(slot) > 0 {
				ids := make([]string, 0, len(slot))
				for _, s := range slot {
					ids = append(ids, s.ID)
				}
				if err := tx.Model(&pushTokenModel{}).Where("id IN ?", ids).
					Updates(map[string]any{"is_active": false, "deactivated_at": c.CreatedAt.UTC()}).Error; err != nil {
					return err
				}
				rotated = true
			}
		}

		if found {
			tokenID, outcome = existing.ID, domain.OutcomeReactivated
			return tx.Model(&existing).
				Updates(map[string]any{"is_active": true, "deactivated_at": nil}).Error
		}

		m := pushTokenModel{
			ID:        c.TokenID,
			UserID:    c.UserID,
			Token:     c.Token,
			DeviceID:  c.DeviceID,
			Platform:  string(c.Platform),
			IsActive:  true,
			CreatedAt: c.CreatedAt.UTC(),
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		tokenID, outcome = m.ID, domain.OutcomeCreated
		if rotated {
			outcome = domain.OutcomeRotated
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return tokenID, outcome, nil
}

func (r *PushTokenRepo) Deactivate(ctx context.Context, userID, token string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&pushTokenModel{}).
		Where("user_id = ? AND token = ? AND is_active = ?", userID, token, true).
		Updates(map[string]any{"is_active": false, "deactivated_at": at.UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PushTokenRepo) ListActiveByUser(ctx context.Context, userID string) ([]domain.PushToken, error) {
	var models []pushTokenModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return toDomainTokens(models), nil
}

func (r *PushTokenRepo) ListActive(ctx context.Context) ([]domain.PushToken, error) {
	var models []pushTokenModel
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("user_id, created_at").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return toDomainTokens(models), nil
}

func toDomainTokens(models []pushTokenModel) []domain.PushToken {
	out := make([]domain.PushToken, 0, len(models))
	for i := range models {
		out = append(out, models[i].toDomain())
	}
	return out
}
