package delivery

import (
	"context"

	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
	"github.com/byagge/vashsender-2.0-sub000/pkg/prom"
)

// Finalizer performs the exactly-once terminal transition to sent. Every
// worker calls it after recording an attempt; only the one that observes
// the campaign still in sending wins the conditional update.
type Finalizer struct {
	campaigns CampaignRepository
	attempts  AttemptRepository
	progress  *ProgressTracker
}

func NewFinalizer(campaigns CampaignRepository, attempts AttemptRepository, progress *ProgressTracker) *Finalizer {
	return &Finalizer{campaigns: campaigns, attempts: attempts, progress: progress}
}

// FinalizeIfComplete transitions the campaign to sent when every recipient
// has a completed attempt. The counter is only a hint: completion is
// re-derived from the durable attempt count before the transition, so a
// double-incremented counter can never finalize early.
func (f *Finalizer) FinalizeIfComplete(ctx context.Context, campaignID int64) (bool, error) {
	p, err := f.progress.Get(campaignID)
	if err != nil {
		return false, err
	}
	if !p.Complete() {
		return false, nil
	}

	done, err := f.attempts.CountCompleted(ctx, campaignID)
	if err != nil {
		return false, err
	}
	if done < p.Total {
		return false, nil
	}

	finalized, err := f.campaigns.FinalizeSent(ctx, campaignID)
	if err != nil {
		return false, err
	}

	if err := f.progress.Lock(campaignID, true); err != nil {
		logger.Warn("failed to lock progress counter", "campaign_id", campaignID, "error", err)
	}

	if finalized {
		prom.RecordCampaignFinalized()
		logger.Info("campaign finalized", "campaign_id", campaignID, "attempted", done)
	}
	return finalized, nil
}
