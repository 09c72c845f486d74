package repository

import (
	"time"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
)

type RecipientAttemptEntity struct {
	ID            int64     `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	CampaignID    int64     `db:"campaign_id"    gorm:"column:campaign_id;not null;uniqueIndex:idx_attempt_campaign_contact"`
	ContactID     int64     `db:"contact_id"     gorm:"column:contact_id;not null;uniqueIndex:idx_attempt_campaign_contact"`
	IsSent        bool      `db:"is_sent"        gorm:"column:is_sent;not null;default:false"`
	Failed        bool      `db:"failed"         gorm:"column:failed;not null;default:false"`
	FailureReason string    `db:"failure_reason" gorm:"column:failure_reason"`
	AttemptedAt   time.Time `db:"attempted_at"   gorm:"column:attempted_at"`
}

func (RecipientAttemptEntity) TableName() string {
	return "recipient_attempts"
}

type DeliveryTrackingEntity struct {
	ID           int64      `db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	CampaignID   int64      `db:"campaign_id"   gorm:"column:campaign_id;not null;uniqueIndex:idx_tracking_campaign_contact"`
	ContactID    int64      `db:"contact_id"    gorm:"column:contact_id;not null;uniqueIndex:idx_tracking_campaign_contact"`
	TrackingID   string     `db:"tracking_id"   gorm:"column:tracking_id;not null;uniqueIndex"`
	SentAt       *time.Time `db:"sent_at"       gorm:"column:sent_at"`
	DeliveredAt  *time.Time `db:"delivered_at"  gorm:"column:delivered_at"`
	OpenedAt     *time.Time `db:"opened_at"     gorm:"column:opened_at"`
	ClickedAt    *time.Time `db:"clicked_at"    gorm:"column:clicked_at"`
	BouncedAt    *time.Time `db:"bounced_at"    gorm:"column:bounced_at"`
	BounceReason string     `db:"bounce_reason" gorm:"column:bounce_reason"`
}

func (DeliveryTrackingEntity) TableName() string {
	return "delivery_tracking"
}

func toAttemptModel(e *RecipientAttemptEntity) *model.RecipientAttempt {
	if e == nil {
		return nil
	}
	return &model.RecipientAttempt{
		ID:            e.ID,
		CampaignID:    e.CampaignID,
		ContactID:     e.ContactID,
		IsSent:        e.IsSent,
		Failed:        e.Failed,
		FailureReason: e.FailureReason,
		AttemptedAt:   e.AttemptedAt,
	}
}

func toTrackingModel(e *DeliveryTrackingEntity) *model.DeliveryTracking {
	if e == nil {
		return nil
	}
	return &model.DeliveryTracking{
		ID:           e.ID,
		CampaignID:   e.CampaignID,
		ContactID:    e.ContactID,
		TrackingID:   e.TrackingID,
		SentAt:       e.SentAt,
		DeliveredAt:  e.DeliveredAt,
		OpenedAt:     e.OpenedAt,
		ClickedAt:    e.ClickedAt,
		BouncedAt:    e.BouncedAt,
		BounceReason: e.BounceReason,
	}
}
