package campaign

import (
	"context"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
)

// Dispatcher expands one recipient batch into independent delivery tasks.
// It never retries a contact synchronously: a slow or failing contact must
// not block the rest of the batch.
type Dispatcher struct {
	campaigns  CampaignRepository
	contacts   ContactRepository
	attempts   AttemptRepository
	progress   Progress
	deliveries Publisher
}

func NewDispatcher(
	campaigns CampaignRepository,
	contacts ContactRepository,
	attempts AttemptRepository,
	progress Progress,
	deliveries Publisher,
) *Dispatcher {
	return &Dispatcher{
		campaigns:  campaigns,
		contacts:   contacts,
		attempts:   attempts,
		progress:   progress,
		deliveries: deliveries,
	}
}

// Dispatch filters the batch to still-valid, not-yet-attempted contacts and
// enqueues one delivery task per survivor, back to back. Throughput is
// bounded by the connection pool and worker concurrency, not here.
func (d *Dispatcher) Dispatch(ctx context.Context, campaignID int64, taskID string, contactIDs []int64) error {
	if len(contactIDs) == 0 {
		return nil
	}

	valid, err := d.contacts.FilterValid(ctx, contactIDs)
	if err != nil {
		return err
	}

	attempted, err := d.attempts.AttemptedIDs(ctx, campaignID, valid)
	if err != nil {
		return err
	}

	if err := d.ensureTotal(ctx, campaignID); err != nil {
		return err
	}

	enqueued := 0
	for _, contactID := range valid {
		if attempted[contactID] {
			continue
		}
		task := model.DeliveryTask{CampaignID: campaignID, ContactID: contactID, Attempt: 0}
		if _, err := d.deliveries.PublishJSON(ctx, task, nil); err != nil {
			logger.Error("failed to enqueue delivery", "campaign_id", campaignID, "contact_id", contactID, "error", err)
			continue
		}
		enqueued++
	}

	logger.Info("batch dispatched",
		"campaign_id", campaignID,
		"task_id", taskID,
		"batch", len(contactIDs),
		"enqueued", enqueued,
		"already_attempted", len(attempted),
	)
	return nil
}

// ensureTotal re-seeds the progress total when the counter is missing, as
// after a worker restart evicted it. Totals are never decreased.
func (d *Dispatcher) ensureTotal(ctx context.Context, campaignID int64) error {
	p, err := d.progress.Get(campaignID)
	if err != nil {
		return err
	}
	if p.Total > 0 {
		return nil
	}

	listIDs, err := d.campaigns.ListIDs(ctx, campaignID)
	if err != nil {
		return err
	}
	recipients, err := d.contacts.ResolveValidRecipients(ctx, listIDs)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}
	return d.progress.Init(campaignID, int64(len(recipients)))
}
