package repository

import (
	"context"
	"errors"
	"time"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrTrackingNotFound is returned when no delivery-tracking row matches
	// a tracking id.
	ErrTrackingNotFound = errors.New("delivery tracking not found")
)

type AttemptRepository struct {
	*pg.DB
}

func NewAttemptRepository(db *pg.DB) *AttemptRepository {
	return &AttemptRepository{
		db,
	}
}

// RecordSuccess records a completed successful attempt together with its
// delivery-tracking row inside one transaction. The uniqueness constraint on
// (campaign_id, contact_id) makes the insert idempotent: when another worker
// already recorded this contact, nothing is written and created=false tells
// the caller not to touch the progress counter.
func (r *AttemptRepository) RecordSuccess(ctx context.Context, campaignID, contactID int64, trackingID string) (created bool, err error) {
	now := time.Now()

	err = r.WithinTransaction(ctx, func(ctx context.Context) error {
		res := r.Write(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&RecipientAttemptEntity{
				CampaignID:  campaignID,
				ContactID:   contactID,
				IsSent:      true,
				AttemptedAt: now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Someone else already attempted this contact.
			return nil
		}
		created = true

		return r.Write(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&DeliveryTrackingEntity{
				CampaignID:  campaignID,
				ContactID:   contactID,
				TrackingID:  trackingID,
				SentAt:      &now,
				DeliveredAt: &now,
			}).Error
	})
	return created, err
}

// RecordFailure records a completed-failed attempt. The attempt still counts
// as "done" for campaign progress: the campaign-level contract is
// "attempted", not "delivered".
func (r *AttemptRepository) RecordFailure(ctx context.Context, campaignID, contactID int64, reason string) (created bool, err error) {
	res := r.Write(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&RecipientAttemptEntity{
			CampaignID:    campaignID,
			ContactID:     contactID,
			IsSent:        true,
			Failed:        true,
			FailureReason: reason,
			AttemptedAt:   time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Get returns the attempt row for a (campaign, contact) pair, or nil when no
// attempt completed yet.
func (r *AttemptRepository) Get(ctx context.Context, campaignID, contactID int64) (*model.RecipientAttempt, error) {
	var entity RecipientAttemptEntity

	err := r.Read(ctx).WithContext(ctx).
		Where("campaign_id = ? AND contact_id = ?", campaignID, contactID).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return toAttemptModel(&entity), nil
}

// AttemptedIDs returns the subset of the given contacts that already have a
// completed attempt for the campaign.
func (r *AttemptRepository) AttemptedIDs(ctx context.Context, campaignID int64, contactIDs []int64) (map[int64]bool, error) {
	attempted := make(map[int64]bool, len(contactIDs))
	if len(contactIDs) == 0 {
		return attempted, nil
	}

	var ids []int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&RecipientAttemptEntity{}).
		Where("campaign_id = ? AND contact_id IN ? AND is_sent = ?", campaignID, contactIDs, true).
		Pluck("contact_id", &ids).Error
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		attempted[id] = true
	}
	return attempted, nil
}

// CountCompleted returns the ground-truth number of completed attempts for a
// campaign. The reconciliation sweeps and the finalizer trust this number
// over the cached progress counter.
func (r *AttemptRepository) CountCompleted(ctx context.Context, campaignID int64) (int64, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&RecipientAttemptEntity{}).
		Where("campaign_id = ? AND is_sent = ?", campaignID, true).
		Count(&count).Error
	return count, err
}

func (r *AttemptRepository) GetTracking(ctx context.Context, trackingID string) (*model.DeliveryTracking, error) {
	var entity DeliveryTrackingEntity

	err := r.Read(ctx).WithContext(ctx).Where("tracking_id = ?", trackingID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTrackingNotFound
		}
		return nil, err
	}

	return toTrackingModel(&entity), nil
}

// MarkOpened stamps opened_at the first time the tracking pixel fires.
func (r *AttemptRepository) MarkOpened(ctx context.Context, trackingID string, at time.Time) error {
	return r.touchTracking(ctx, trackingID, "opened_at", at)
}

// MarkClicked stamps clicked_at the first time a rewritten link is followed.
func (r *AttemptRepository) MarkClicked(ctx context.Context, trackingID string, at time.Time) error {
	return r.touchTracking(ctx, trackingID, "clicked_at", at)
}

// MarkBounced records an asynchronous bounce callback.
func (r *AttemptRepository) MarkBounced(ctx context.Context, trackingID string, at time.Time, reason string) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&DeliveryTrackingEntity{}).
		Where("tracking_id = ?", trackingID).
		Updates(map[string]interface{}{
			"bounced_at":    at,
			"bounce_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTrackingNotFound
	}
	return nil
}

func (r *AttemptRepository) touchTracking(ctx context.Context, trackingID, column string, at time.Time) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&DeliveryTrackingEntity{}).
		Where("tracking_id = ? AND "+column+" IS NULL", trackingID).
		Update(column, at)
	if res.Error != nil {
		return res.Error
	}
	// Zero rows is fine: either unknown id or already stamped; open/click
	// endpoints must never error at the recipient.
	return nil
}
