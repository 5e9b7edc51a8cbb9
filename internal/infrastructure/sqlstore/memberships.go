package sqlstore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MembershipRepo struct {
	db *gorm.DB
}

func NewMembershipRepo(db *gorm.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

func (r *MembershipRepo) MemberIDs(ctx context.Context, organizationID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&membershipModel{}).
		Where("organization_id = ?", organizationID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *MembershipRepo) OrganizationsOf(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&membershipModel{}).
		Where("user_id = ?", userID).
		Order("organization_id").
		Pluck("organization_id", &ids).Error
	return ids, err
}

func (r *MembershipRepo) AddMember(ctx context.Context, organizationID, userID string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&membershipModel{OrganizationID: organizationID, UserID: userID, CreatedAt: time.Now().UTC()}).Error
}
