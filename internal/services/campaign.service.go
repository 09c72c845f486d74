package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/internal/repository"
	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
)

var (
	ErrNotFound         = errors.New("error notfound")
	ErrAlreadyTerminal  = errors.New("campaign already completed")
	ErrAlreadySending   = errors.New("campaign is already sending")
	ErrMissingRecipient = errors.New("campaign has no recipient lists")
)

type CampaignRepository interface {
	Get(ctx context.Context, id int64) (*model.Campaign, error)
	ListIDs(ctx context.Context, campaignID int64) ([]int64, error)
}

type TaskPublisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// CampaignService is the API-side entry into the pipeline: it validates the
// campaign and enqueues the kickoff task. All state transitions happen in
// the orchestrator, on the consumer side, so the HTTP request stays cheap.
type CampaignService struct {
	campaigns CampaignRepository
	queue     TaskPublisher
}

func NewCampaignService(campaigns CampaignRepository, queue TaskPublisher) *CampaignService {
	return &CampaignService{campaigns: campaigns, queue: queue}
}

// Start enqueues a send for the campaign and returns the task identity the
// caller can correlate with. The checks here are advisory: the orchestrator
// re-checks under its conditional transition, so a race between two Start
// calls resolves there, not here.
func (s *CampaignService) Start(ctx context.Context, p model.CampaignStartRequest) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	c, err := s.campaigns.Get(ctx, p.CampaignID)
	if errors.Is(err, repository.ErrCampaignNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get campaign: %w", err)
	}

	if c.Status.IsTerminal() {
		return "", ErrAlreadyTerminal
	}
	if c.Status == model.CampaignStatusSending {
		return "", ErrAlreadySending
	}

	listIDs, err := s.campaigns.ListIDs(ctx, p.CampaignID)
	if err != nil {
		return "", fmt.Errorf("list recipient lists: %w", err)
	}
	if len(listIDs) == 0 {
		return "", ErrMissingRecipient
	}

	taskID := uuid.NewString()
	task := model.CampaignTask{
		CampaignID:     p.CampaignID,
		TaskID:         taskID,
		SkipModeration: p.SkipModeration,
	}
	if _, err := s.queue.PublishJSON(ctx, task, nil); err != nil {
		return "", fmt.Errorf("enqueue campaign task: %w", err)
	}

	logger.Info("campaign send enqueued", "campaign_id", p.CampaignID, "task_id", taskID)
	return taskID, nil
}
