package model

import "time"

// RecipientAttempt records that a delivery attempt, successful or
// terminally failed, has completed for a (campaign, contact) pair.
// The (campaign_id, contact_id) uniqueness constraint is the cross-process
// concurrency primitive: a second worker racing on the same contact hits the
// constraint and treats the pair as already attempted.
//
// IsSent means "no further attempt should be scheduled", not "the email
// reached the inbox": a completed-failed attempt still sets it.
type RecipientAttempt struct {
	ID            int64     `json:"id"`
	CampaignID    int64     `json:"campaign_id"`
	ContactID     int64     `json:"contact_id"`
	IsSent        bool      `json:"is_sent"`
	Failed        bool      `json:"failed"`
	FailureReason string    `json:"failure_reason"`
	AttemptedAt   time.Time `json:"attempted_at"`
}
