package campaign

import (
	"context"
	"errors"

	"github.com/byagge/vashsender-2.0-sub000/internal/delivery"
	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/internal/repository"
	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
)

// ErrSendConflict reports that another task identity currently owns the
// campaign's send. The caller acks the task instead of retrying it.
var ErrSendConflict = errors.New("campaign send already in flight")

const FailureNoContacts = "no contacts"

type CampaignRepository interface {
	Get(ctx context.Context, id int64) (*model.Campaign, error)
	ListIDs(ctx context.Context, campaignID int64) ([]int64, error)
	MarkSending(ctx context.Context, id int64, taskID string) error
	MarkPending(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

type ContactRepository interface {
	ResolveValidRecipients(ctx context.Context, listIDs []int64) ([]int64, error)
	FilterValid(ctx context.Context, ids []int64) ([]int64, error)
}

type AttemptRepository interface {
	AttemptedIDs(ctx context.Context, campaignID int64, contactIDs []int64) (map[int64]bool, error)
}

type ModerationRepository interface {
	CreateOrGet(ctx context.Context, campaignID int64) (*model.ModerationRecord, bool, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

type Progress interface {
	Reset(campaignID int64) error
	Init(campaignID, total int64) error
	Get(campaignID int64) (delivery.Progress, error)
}

// Orchestrator is the pipeline entry point: it gates a campaign through
// moderation and quota, flips it to sending and fans the recipient set out
// into batch tasks. It never waits for batches to finish; completion is
// detected by whichever delivery worker records the last attempt.
type Orchestrator struct {
	campaigns  CampaignRepository
	contacts   ContactRepository
	users      UserRepository
	moderation ModerationRepository
	quota      *QuotaService
	progress   Progress
	batches    Publisher
	notifier   Notifier
	batchSize  int
}

func NewOrchestrator(
	campaigns CampaignRepository,
	contacts ContactRepository,
	users UserRepository,
	moderation ModerationRepository,
	quota *QuotaService,
	progress Progress,
	batches Publisher,
	notifier Notifier,
	batchSize int,
) *Orchestrator {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Orchestrator{
		campaigns:  campaigns,
		contacts:   contacts,
		users:      users,
		moderation: moderation,
		quota:      quota,
		progress:   progress,
		batches:    batches,
		notifier:   notifier,
		batchSize:  batchSize,
	}
}

// Start runs the send state machine for one campaign. Every gate can
// short-circuit with a terminal outcome; a returned error means an
// infrastructure failure worth a queue-level retry.
func (o *Orchestrator) Start(ctx context.Context, campaignID int64, taskID string, skipModeration bool) error {
	c, err := o.campaigns.Get(ctx, campaignID)
	if errors.Is(err, repository.ErrCampaignNotFound) {
		// Deleted between enqueue and pickup: normal user action.
		logger.Info("campaign gone before start", "campaign_id", campaignID)
		return nil
	}
	if err != nil {
		return err
	}

	if c.Status == model.CampaignStatusSent || c.Status == model.CampaignStatusRejected {
		logger.Info("campaign already resolved", "campaign_id", campaignID, "status", string(c.Status))
		return nil
	}

	// Aborted previous runs must not leave a locked counter blocking this one.
	if err := o.progress.Reset(campaignID); err != nil {
		return err
	}

	if c.Status == model.CampaignStatusSending && c.TaskID != "" && c.TaskID != taskID {
		return ErrSendConflict
	}

	user, err := o.users.Get(ctx, c.UserID)
	if err != nil {
		return err
	}

	if !skipModeration && !user.Trusted {
		return o.holdForModeration(ctx, c)
	}

	listIDs, err := o.campaigns.ListIDs(ctx, campaignID)
	if err != nil {
		return err
	}
	recipients, err := o.contacts.ResolveValidRecipients(ctx, listIDs)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		logger.Warn("campaign has no sendable recipients", "campaign_id", campaignID)
		return o.campaigns.MarkFailed(ctx, campaignID, FailureNoContacts)
	}

	allowed, reason, err := o.quota.CanSendEmails(ctx, c.UserID, len(recipients))
	if err != nil {
		return err
	}
	if !allowed {
		logger.Warn("campaign blocked by quota", "campaign_id", campaignID, "reason", reason)
		return o.campaigns.MarkFailed(ctx, campaignID, reason)
	}

	if err := o.campaigns.MarkSending(ctx, campaignID, taskID); err != nil {
		return err
	}
	if err := o.progress.Init(campaignID, int64(len(recipients))); err != nil {
		return err
	}

	if err := o.quota.RecordEmailsSent(ctx, c.UserID, int64(len(recipients))); err != nil {
		logger.Warn("failed to account sent emails", "user_id", c.UserID, "error", err)
	}

	enqueued := 0
	for start := 0; start < len(recipients); start += o.batchSize {
		end := start + o.batchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		task := model.BatchTask{CampaignID: campaignID, TaskID: taskID, ContactIDs: recipients[start:end]}
		if _, err := o.batches.PublishJSON(ctx, task, nil); err != nil {
			// Remaining batches still go out; the sweep repairs the gap.
			logger.Error("failed to enqueue batch", "campaign_id", campaignID, "offset", start, "error", err)
			continue
		}
		enqueued++
	}

	logger.Info("campaign dispatch scheduled",
		"campaign_id", campaignID,
		"task_id", taskID,
		"recipients", len(recipients),
		"batches", enqueued,
	)
	return nil
}

func (o *Orchestrator) holdForModeration(ctx context.Context, c *model.Campaign) error {
	if _, _, err := o.moderation.CreateOrGet(ctx, c.ID); err != nil {
		return err
	}
	if err := o.campaigns.MarkPending(ctx, c.ID); err != nil {
		return err
	}
	if o.notifier != nil {
		o.notifier.NotifyModerationPending(ctx, c)
	}
	logger.Info("campaign held for moderation", "campaign_id", c.ID, "user_id", c.UserID)
	return nil
}
