package processor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/byagge/vashsender-2.0-sub000/internal/delivery"
	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/internal/queue"
	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
	"github.com/byagge/vashsender-2.0-sub000/pkg/prom"
)

// RetryPublisher schedules a delivery task for a later attempt.
type RetryPublisher interface {
	PublishDelayedJSON(ctx context.Context, data interface{}, metadata map[string]string, attempts int, delay time.Duration) error
}

// Sender performs one delivery attempt and reports its outcome.
type Sender interface {
	Send(ctx context.Context, campaignID, contactID int64, attempt int) delivery.Outcome
}

// DeliveryProcessor sends one message per task. The guard keeps concurrent
// redeliveries of the same task from double-sending; the worker owns retry
// policy and reports it through the returned outcome.
type DeliveryProcessor struct {
	worker  Sender
	guard   *DeliveryGuard
	retries RetryPublisher
}

func NewDeliveryProcessor(worker Sender, guard *DeliveryGuard, retries RetryPublisher) *DeliveryProcessor {
	return &DeliveryProcessor{worker: worker, guard: guard, retries: retries}
}

func (p *DeliveryProcessor) GetType() string {
	return "delivery"
}

func (p *DeliveryProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var task model.DeliveryTask
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		logger.Error("Dropping malformed delivery task", "message_id", msg.ID, "error", err)
		return nil
	}

	claim, err := p.guard.Acquire(task.CampaignID, task.ContactID)
	if errors.Is(err, ErrAlreadyDelivered) {
		logger.Info("Delivery already completed, skipping", "campaign_id", task.CampaignID, "contact_id", task.ContactID)
		return nil
	}
	if errors.Is(err, ErrDeliveryLocked) {
		// Another worker holds this recipient right now. NACK so the
		// stream redelivers after the visibility timeout.
		return err
	}
	if err != nil {
		return err
	}

	start := time.Now()
	outcome := p.worker.Send(ctx, task.CampaignID, task.ContactID, task.Attempt)
	duration := time.Since(start)

	switch outcome.Kind {
	case delivery.OutcomeRetry:
		next := model.DeliveryTask{
			CampaignID: task.CampaignID,
			ContactID:  task.ContactID,
			Attempt:    task.Attempt + 1,
		}
		if err := p.retries.PublishDelayedJSON(ctx, next, nil, task.Attempt+1, outcome.Backoff); err != nil {
			// Keep the lock-release but leave the task unacked so the
			// stream redelivers; better a duplicate attempt than a lost one.
			claim.Release()
			return err
		}
		claim.Release()
		prom.RecordDeliveryOutcome("retry", duration.Seconds())
		logger.Warn("Delivery scheduled for retry", "campaign_id", task.CampaignID, "contact_id", task.ContactID, "attempt", task.Attempt, "backoff", outcome.Backoff, "reason", outcome.Reason)
		return nil

	case delivery.OutcomeSuccess:
		claim.Done()
		prom.RecordDeliveryOutcome("success", duration.Seconds())
		return nil

	case delivery.OutcomeSkip:
		claim.Done()
		prom.RecordDeliveryOutcome("skip", duration.Seconds())
		logger.Info("Delivery skipped", "campaign_id", task.CampaignID, "contact_id", task.ContactID, "reason", outcome.Reason)
		return nil

	case delivery.OutcomeFail:
		claim.Done()
		prom.RecordDeliveryOutcome("fail", duration.Seconds())
		logger.Warn("Delivery failed permanently", "campaign_id", task.CampaignID, "contact_id", task.ContactID, "reason", outcome.Reason)
		return nil

	default:
		claim.Release()
		return errors.New("unknown delivery outcome")
	}
}
