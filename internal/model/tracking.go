package model

import "time"

// DeliveryTracking carries the delivery lifecycle timestamps for a
// (campaign, contact) pair. Distinct from RecipientAttempt: an attempt that
// completed as "sent" may still bounce asynchronously hours later.
// Rows are created by the delivery worker and mutated by the open/click/
// bounce callback handlers.
type DeliveryTracking struct {
	ID           int64      `json:"id"`
	CampaignID   int64      `json:"campaign_id"`
	ContactID    int64      `json:"contact_id"`
	TrackingID   string     `json:"tracking_id"`
	SentAt       *time.Time `json:"sent_at"`
	DeliveredAt  *time.Time `json:"delivered_at"`
	OpenedAt     *time.Time `json:"opened_at"`
	ClickedAt    *time.Time `json:"clicked_at"`
	BouncedAt    *time.Time `json:"bounced_at"`
	BounceReason string     `json:"bounce_reason"`
}
