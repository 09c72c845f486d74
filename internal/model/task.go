package model

// Queue task payloads. Every task is idempotent under at-least-once
// delivery: re-running one must never produce a duplicate send.

// CampaignTask kicks off the orchestrator for one campaign.
type CampaignTask struct {
	CampaignID     int64  `json:"campaign_id"`
	TaskID         string `json:"task_id"`
	SkipModeration bool   `json:"skip_moderation"`
}

// BatchTask fans one recipient batch into per-contact delivery tasks.
type BatchTask struct {
	CampaignID int64   `json:"campaign_id"`
	TaskID     string  `json:"task_id"`
	ContactIDs []int64 `json:"contact_ids"`
}

// DeliveryTask sends one message to one contact. Attempt is zero-based and
// carried across re-enqueues so backoff keeps growing.
type DeliveryTask struct {
	CampaignID int64 `json:"campaign_id"`
	ContactID  int64 `json:"contact_id"`
	Attempt    int   `json:"attempt"`
}
