package sweeper

import (
	"context"
	"time"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
)

const FailureInterrupted = "delivery interrupted"

type CampaignRepository interface {
	ListStuckSending(ctx context.Context, cutoff time.Time) ([]*model.Campaign, error)
	ListSendingWithoutTask(ctx context.Context) ([]*model.Campaign, error)
	ListIDs(ctx context.Context, campaignID int64) ([]int64, error)
	Resolve(ctx context.Context, id int64, status model.CampaignStatus, reason string) error
}

type ContactRepository interface {
	ResolveValidRecipients(ctx context.Context, listIDs []int64) ([]int64, error)
}

type AttemptRepository interface {
	CountCompleted(ctx context.Context, campaignID int64) (int64, error)
}

type Progress interface {
	Reset(campaignID int64) error
}

// Sweeper is the self-healing mechanism of last resort: the pipeline has no
// durable coordinator, so campaigns whose workers all crashed would stay in
// sending forever without it. Resolution always re-derives from the durable
// attempt count, never from the cached counter.
type Sweeper struct {
	campaigns    CampaignRepository
	contacts     ContactRepository
	attempts     AttemptRepository
	progress     Progress
	stuckTimeout time.Duration
}

func NewSweeper(
	campaigns CampaignRepository,
	contacts ContactRepository,
	attempts AttemptRepository,
	progress Progress,
	stuckTimeout time.Duration,
) *Sweeper {
	if stuckTimeout <= 0 {
		stuckTimeout = 15 * time.Minute
	}
	return &Sweeper{
		campaigns:    campaigns,
		contacts:     contacts,
		attempts:     attempts,
		progress:     progress,
		stuckTimeout: stuckTimeout,
	}
}

// RepairStuck resolves campaigns whose last update predates the stuck
// timeout.
func (s *Sweeper) RepairStuck(ctx context.Context) error {
	cutoff := time.Now().Add(-s.stuckTimeout)
	stuck, err := s.campaigns.ListStuckSending(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, c := range stuck {
		s.resolve(ctx, c, "stuck")
	}
	return nil
}

// MonitorProgress resolves campaigns marked sending that no longer own a
// task identity. The queue exposes no per-task state; a cleared or missing
// task id is the terminal-task signal.
func (s *Sweeper) MonitorProgress(ctx context.Context) error {
	orphaned, err := s.campaigns.ListSendingWithoutTask(ctx)
	if err != nil {
		return err
	}
	for _, c := range orphaned {
		s.resolve(ctx, c, "orphaned")
	}
	return nil
}

// resolve applies the ground-truth rules: every recipient attempted means
// sent; nothing attempted means the send never really started, back to
// draft; a partial tally is an interrupted delivery; no resolvable
// recipients is the no-contacts failure.
func (s *Sweeper) resolve(ctx context.Context, c *model.Campaign, cause string) {
	listIDs, err := s.campaigns.ListIDs(ctx, c.ID)
	if err != nil {
		logger.Error("sweep: failed to load campaign lists", "campaign_id", c.ID, "error", err)
		return
	}
	recipients, err := s.contacts.ResolveValidRecipients(ctx, listIDs)
	if err != nil {
		logger.Error("sweep: failed to resolve recipients", "campaign_id", c.ID, "error", err)
		return
	}
	done, err := s.attempts.CountCompleted(ctx, c.ID)
	if err != nil {
		logger.Error("sweep: failed to count attempts", "campaign_id", c.ID, "error", err)
		return
	}

	total := int64(len(recipients))
	var status model.CampaignStatus
	var reason string
	// The attempted check runs first: permanent rejections invalidate
	// contacts mid-send, so a fully attempted campaign can re-resolve with
	// fewer (even zero) valid recipients than it was dispatched with.
	switch {
	case done > 0 && done >= total:
		status = model.CampaignStatusSent
	case total == 0:
		status, reason = model.CampaignStatusFailed, "no contacts"
	case done == 0:
		status = model.CampaignStatusDraft
	default:
		status, reason = model.CampaignStatusFailed, FailureInterrupted
	}

	if err := s.campaigns.Resolve(ctx, c.ID, status, reason); err != nil {
		logger.Error("sweep: failed to resolve campaign", "campaign_id", c.ID, "error", err)
		return
	}
	if err := s.progress.Reset(c.ID); err != nil {
		logger.Warn("sweep: failed to drop progress counter", "campaign_id", c.ID, "error", err)
	}

	logger.Info("sweep resolved campaign",
		"campaign_id", c.ID,
		"cause", cause,
		"status", string(status),
		"attempted", done,
		"total", total,
	)
}
