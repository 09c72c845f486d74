package model

import "time"

type ModerationStatus string

const (
	ModerationStatusPending  ModerationStatus = "pending"
	ModerationStatusApproved ModerationStatus = "approved"
	ModerationStatusRejected ModerationStatus = "rejected"
)

// ModerationRecord gates a campaign of an untrusted owner. Approval re-enters
// the orchestrator with skipModeration set; the review flow itself is external.
type ModerationRecord struct {
	ID         int64            `json:"id"`
	CampaignID int64            `json:"campaign_id"`
	Status     ModerationStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
}
