package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/byagge/vashsender-2.0-sub000/internal/message"
	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/internal/repository"
	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
)

const maxReasonLen = 255

type CampaignRepository interface {
	Get(ctx context.Context, id int64) (*model.Campaign, error)
	FinalizeSent(ctx context.Context, id int64) (bool, error)
}

type ContactRepository interface {
	Get(ctx context.Context, id int64) (*model.Contact, error)
	MarkInvalid(ctx context.Context, id int64, reason string) error
}

type AttemptRepository interface {
	Get(ctx context.Context, campaignID, contactID int64) (*model.RecipientAttempt, error)
	RecordSuccess(ctx context.Context, campaignID, contactID int64, trackingID string) (bool, error)
	RecordFailure(ctx context.Context, campaignID, contactID int64, reason string) (bool, error)
	CountCompleted(ctx context.Context, campaignID int64) (int64, error)
}

type WorkerConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Worker delivers one message to one contact and reports the classified
// Outcome. It never panics across its boundary: builder and connection
// failures are converted into outcomes so a checked-out session cannot
// leak and an attempt is never half-recorded.
type Worker struct {
	transmitter Transmitter
	builder     *message.Builder
	campaigns   CampaignRepository
	contacts    ContactRepository
	attempts    AttemptRepository
	progress    *ProgressTracker
	finalizer   *Finalizer
	config      WorkerConfig
}

func NewWorker(
	transmitter Transmitter,
	builder *message.Builder,
	campaigns CampaignRepository,
	contacts ContactRepository,
	attempts AttemptRepository,
	progress *ProgressTracker,
	finalizer *Finalizer,
	config WorkerConfig,
) *Worker {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	return &Worker{
		transmitter: transmitter,
		builder:     builder,
		campaigns:   campaigns,
		contacts:    contacts,
		attempts:    attempts,
		progress:    progress,
		finalizer:   finalizer,
		config:      config,
	}
}

// Send executes one delivery attempt. attempt is zero-based and owned by
// the task payload, surviving re-enqueues.
func (w *Worker) Send(ctx context.Context, campaignID, contactID int64, attempt int) Outcome {
	campaign, err := w.campaigns.Get(ctx, campaignID)
	if errors.Is(err, repository.ErrCampaignNotFound) {
		// Deletion is a normal user action, not a fault.
		return Skip(ReasonObjectNotFound)
	}
	if err != nil {
		return w.transient(ctx, campaignID, contactID, attempt, err)
	}

	contact, err := w.contacts.Get(ctx, contactID)
	if errors.Is(err, repository.ErrContactNotFound) {
		return Skip(ReasonObjectNotFound)
	}
	if err != nil {
		return w.transient(ctx, campaignID, contactID, attempt, err)
	}
	if contact.Status != model.ContactStatusValid {
		return Skip(ReasonInvalidContact)
	}

	// The queue delivers at least once: a completed attempt means another
	// worker already handled this contact.
	if existing, err := w.attempts.Get(ctx, campaignID, contactID); err != nil {
		return w.transient(ctx, campaignID, contactID, attempt, err)
	} else if existing != nil && existing.IsSent {
		w.checkFinalize(ctx, campaignID)
		return Skip("already_attempted")
	}

	trackingID := uuid.NewString()
	mail, err := w.builder.Build(campaign, contact, trackingID)
	if err != nil {
		return w.transient(ctx, campaignID, contactID, attempt, err)
	}

	if err := w.transmitter.Transmit(ctx, mail); err != nil {
		if classify(err) == classPermanent {
			return w.permanent(ctx, campaignID, contact, err)
		}
		return w.transient(ctx, campaignID, contactID, attempt, err)
	}

	created, err := w.attempts.RecordSuccess(ctx, campaignID, contactID, trackingID)
	if err != nil {
		// The message left the wire but the attempt is unrecorded; a retry
		// lands on the idempotent upsert, not on a second SMTP send.
		return w.transient(ctx, campaignID, contactID, attempt, err)
	}
	if created {
		w.countAttempt(campaignID)
	}
	w.checkFinalize(ctx, campaignID)
	return Success()
}

// permanent records a completed-failed attempt and invalidates the contact.
// 5xx means the address is dead; retrying would burn sender reputation.
func (w *Worker) permanent(ctx context.Context, campaignID int64, contact *model.Contact, cause error) Outcome {
	reason := truncateReason(cause.Error())

	created, err := w.attempts.RecordFailure(ctx, campaignID, contact.ID, reason)
	if err != nil {
		logger.Error("failed to record permanent failure", "campaign_id", campaignID, "contact_id", contact.ID, "error", err)
		return Fail(reason, true)
	}
	if created {
		w.countAttempt(campaignID)
	}

	if err := w.contacts.MarkInvalid(ctx, contact.ID, reason); err != nil {
		logger.Error("failed to invalidate contact", "contact_id", contact.ID, "error", err)
	}

	w.checkFinalize(ctx, campaignID)
	return Fail(reason, true)
}

// transient schedules a retry with exponential backoff, or on exhaustion
// records a completed-failed attempt without touching the contact's
// validation status: the cause may be throttling or pool pressure, not the
// address.
func (w *Worker) transient(ctx context.Context, campaignID, contactID int64, attempt int, cause error) Outcome {
	reason := truncateReason(cause.Error())

	if attempt+1 < w.config.MaxAttempts {
		return Retry(reason, backoffFor(attempt, w.config.BackoffBase, w.config.BackoffCap))
	}

	created, err := w.attempts.RecordFailure(ctx, campaignID, contactID, reason)
	if err != nil {
		logger.Error("failed to record exhausted attempt", "campaign_id", campaignID, "contact_id", contactID, "error", err)
		return Fail(reason, false)
	}
	if created {
		w.countAttempt(campaignID)
	}
	w.checkFinalize(ctx, campaignID)
	return Fail(reason, false)
}

// countAttempt bumps the sent tally. Completed-failed attempts count too:
// the campaign-level contract is "attempted", not "delivered".
func (w *Worker) countAttempt(campaignID int64) {
	if err := w.progress.IncrSent(campaignID); err != nil {
		logger.Warn("failed to increment progress", "campaign_id", campaignID, "error", err)
	}
}

func (w *Worker) checkFinalize(ctx context.Context, campaignID int64) {
	if _, err := w.finalizer.FinalizeIfComplete(ctx, campaignID); err != nil {
		logger.Warn("finalize check failed", "campaign_id", campaignID, "error", err)
	}
}

func truncateReason(s string) string {
	if len(s) > maxReasonLen {
		return s[:maxReasonLen]
	}
	return s
}
