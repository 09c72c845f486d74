package processor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/byagge/vashsender-2.0-sub000/internal/campaign"
	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/internal/queue"
	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
)

// Orchestrator starts the send pipeline for one campaign.
type Orchestrator interface {
	Start(ctx context.Context, campaignID int64, taskID string, skipModeration bool) error
}

// CampaignProcessor runs the send orchestrator for campaign kickoff tasks.
type CampaignProcessor struct {
	orchestrator Orchestrator
}

func NewCampaignProcessor(orchestrator Orchestrator) *CampaignProcessor {
	return &CampaignProcessor{orchestrator: orchestrator}
}

func (p *CampaignProcessor) GetType() string {
	return "campaign"
}

func (p *CampaignProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var task model.CampaignTask
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		// Poison payload: redelivery cannot fix it.
		logger.Error("Dropping malformed campaign task", "message_id", msg.ID, "error", err)
		return nil
	}

	err := p.orchestrator.Start(ctx, task.CampaignID, task.TaskID, task.SkipModeration)
	if errors.Is(err, campaign.ErrSendConflict) {
		// Duplicate kickoff, the first one owns the campaign.
		logger.Warn("Campaign already being sent", "campaign_id", task.CampaignID, "task_id", task.TaskID)
		return nil
	}
	if err != nil {
		return err
	}

	return nil
}
