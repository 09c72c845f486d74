package model

import (
	"errors"
	"strings"
	"time"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft    CampaignStatus = "draft"
	CampaignStatusPending  CampaignStatus = "pending"
	CampaignStatusSending  CampaignStatus = "sending"
	CampaignStatusSent     CampaignStatus = "sent"
	CampaignStatusFailed   CampaignStatus = "failed"
	CampaignStatusRejected CampaignStatus = "rejected"
)

// IsTerminal reports whether no further pipeline work may touch the campaign.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusSent || s == CampaignStatusFailed || s == CampaignStatusRejected
}

type Campaign struct {
	ID            int64          `json:"id"`
	UserID        int64          `json:"user_id"`
	Subject       string         `json:"subject"`
	Content       string         `json:"content"`
	TemplateHTML  string         `json:"template_html"`
	SenderName    string         `json:"sender_name"`
	SenderEmail   string         `json:"sender_email"`
	Status        CampaignStatus `json:"status"`
	TaskID        string         `json:"task_id"`
	FailureReason string         `json:"failure_reason"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// SenderDomain extracts the domain part of the sender address, ignoring any
// garbage after a second "@". Empty when the address carries no domain.
func (c *Campaign) SenderDomain() string {
	parts := strings.Split(c.SenderEmail, "@")
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// CampaignStartRequest is the input for kicking off a send.
type CampaignStartRequest struct {
	CampaignID     int64
	SkipModeration bool
}

func (p CampaignStartRequest) Validate() error {
	if p.CampaignID == 0 {
		return errors.New("campaign_id is required")
	}
	return nil
}
