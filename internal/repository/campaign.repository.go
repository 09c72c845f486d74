package repository

import (
	"context"
	"errors"
	"time"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrCampaignNotFound is returned when a campaign does not exist.
	ErrCampaignNotFound = errors.New("campaign not found")
)

type CampaignRepository struct {
	*pg.DB
}

func NewCampaignRepository(db *pg.DB) *CampaignRepository {
	return &CampaignRepository{
		db,
	}
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) (*model.Campaign, error) {
	entity := toCampaignEntity(c)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toCampaignModel(entity), nil
}

func (r *CampaignRepository) Get(ctx context.Context, id int64) (*model.Campaign, error) {
	var entity CampaignEntity

	err := r.Read(ctx).WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}

	return toCampaignModel(&entity), nil
}

// ListIDs returns the recipient-list ids attached to a campaign.
func (r *CampaignRepository) ListIDs(ctx context.Context, campaignID int64) ([]int64, error) {
	var ids []int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&CampaignListEntity{}).
		Where("campaign_id = ?", campaignID).
		Pluck("list_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *CampaignRepository) AttachList(ctx context.Context, campaignID, listID int64) error {
	return r.Write(ctx).WithContext(ctx).
		Create(&CampaignListEntity{CampaignID: campaignID, ListID: listID}).Error
}

// MarkSending transitions the campaign into "sending" and records the task
// identity that owns the run.
func (r *CampaignRepository) MarkSending(ctx context.Context, id int64, taskID string) error {
	return r.updateStatus(ctx, id, model.CampaignStatusSending, taskID, "")
}

// MarkPending parks the campaign behind the moderation gate.
func (r *CampaignRepository) MarkPending(ctx context.Context, id int64) error {
	return r.updateStatus(ctx, id, model.CampaignStatusPending, "", "")
}

// MarkFailed records a terminal failure with a short human-readable reason
// and clears the task identity.
func (r *CampaignRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.updateStatus(ctx, id, model.CampaignStatusFailed, "", reason)
}

// Resolve forces a campaign to the given status, clearing the task identity.
// Used by the reconciliation sweeps when repairing from ground truth.
func (r *CampaignRepository) Resolve(ctx context.Context, id int64, status model.CampaignStatus, reason string) error {
	return r.updateStatus(ctx, id, status, "", reason)
}

func (r *CampaignRepository) updateStatus(ctx context.Context, id int64, status model.CampaignStatus, taskID, reason string) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&CampaignEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         string(status),
			"task_id":        taskID,
			"failure_reason": reason,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// FinalizeSent performs the exactly-once terminal transition to "sent".
// The conditional update on status makes the transition idempotent under
// concurrent finalizer calls: only the caller that still observes "sending"
// flips the row, everyone else gets false.
func (r *CampaignRepository) FinalizeSent(ctx context.Context, id int64) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).
		Model(&CampaignEntity{}).
		Where("id = ? AND status = ?", id, string(model.CampaignStatusSending)).
		Updates(map[string]interface{}{
			"status":         string(model.CampaignStatusSent),
			"task_id":        "",
			"failure_reason": "",
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListStuckSending returns campaigns still in "sending" whose last update
// predates the cutoff.
func (r *CampaignRepository) ListStuckSending(ctx context.Context, cutoff time.Time) ([]*model.Campaign, error) {
	var entities []*CampaignEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(model.CampaignStatusSending), cutoff).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toCampaignModels(entities), nil
}

// ListSendingWithoutTask returns "sending" campaigns whose task identity has
// been lost.
func (r *CampaignRepository) ListSendingWithoutTask(ctx context.Context) ([]*model.Campaign, error) {
	var entities []*CampaignEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("status = ? AND (task_id IS NULL OR task_id = '')", string(model.CampaignStatusSending)).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toCampaignModels(entities), nil
}
