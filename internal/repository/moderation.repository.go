package repository

import (
	"context"
	"time"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/pkg/pg"
	"gorm.io/gorm/clause"
)

type ModerationRecordEntity struct {
	ID         int64     `db:"id"          gorm:"primaryKey;autoIncrement;column:id"`
	CampaignID int64     `db:"campaign_id" gorm:"column:campaign_id;not null;uniqueIndex"`
	Status     string    `db:"status"      gorm:"column:status;not null;default:pending"`
	CreatedAt  time.Time `db:"created_at"  gorm:"column:created_at;autoCreateTime"`
}

func (ModerationRecordEntity) TableName() string {
	return "moderation_records"
}

type ModerationRepository struct {
	*pg.DB
}

func NewModerationRepository(db *pg.DB) *ModerationRepository {
	return &ModerationRepository{
		db,
	}
}

// CreateOrGet returns the moderation record for a campaign, creating a
// pending one on first call. created reports whether this call created it,
// so the orchestrator notifies operators exactly once per campaign.
func (r *ModerationRepository) CreateOrGet(ctx context.Context, campaignID int64) (*model.ModerationRecord, bool, error) {
	entity := &ModerationRecordEntity{
		CampaignID: campaignID,
		Status:     string(model.ModerationStatusPending),
	}

	res := r.Write(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entity)
	if res.Error != nil {
		return nil, false, res.Error
	}
	created := res.RowsAffected > 0

	if !created {
		if err := r.Read(ctx).WithContext(ctx).
			Where("campaign_id = ?", campaignID).
			First(entity).Error; err != nil {
			return nil, false, err
		}
	}

	return &model.ModerationRecord{
		ID:         entity.ID,
		CampaignID: entity.CampaignID,
		Status:     model.ModerationStatus(entity.Status),
		CreatedAt:  entity.CreatedAt,
	}, created, nil
}
