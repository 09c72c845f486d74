package delivery

import (
	"fmt"
	"strconv"
	"time"

	"github.com/byagge/vashsender-2.0-sub000/pkg/redis"
)

// Progress mirrors the ephemeral per-campaign counter hash. It is a
// best-effort UI and completion hint only; the recipient attempt count is
// the ground truth, and every authoritative decision re-derives from it.
type Progress struct {
	Total  int64
	Sent   int64
	Locked bool
}

func (p Progress) Complete() bool {
	return p.Total > 0 && p.Sent >= p.Total
}

// ProgressTracker keeps {total, sent, locked} per campaign in a TTL'd Redis
// hash. Once locked, only forced writes land: a stale worker finishing late
// cannot reopen a finalized campaign.
type ProgressTracker struct {
	redis redis.RedisAdapter
	ttl   time.Duration
}

func NewProgressTracker(adapter redis.RedisAdapter, ttl time.Duration) *ProgressTracker {
	return &ProgressTracker{redis: adapter, ttl: ttl}
}

func progressKey(campaignID int64) string {
	return fmt.Sprintf("progress:%d", campaignID)
}

// Init records the recipient total at send-start. Total never decreases
// here and sent is only seeded when absent, so a re-dispatched batch cannot
// erase progress already made.
func (t *ProgressTracker) Init(campaignID, total int64) error {
	locked, err := t.isLocked(campaignID)
	if err != nil {
		return err
	}
	if locked {
		return nil
	}

	key := progressKey(campaignID)
	current, err := t.Get(campaignID)
	if err != nil {
		return err
	}
	if total > current.Total {
		if err := t.redis.HSet(key, "total", total); err != nil {
			return err
		}
	}
	if err := t.redis.HSetIfNotExists(key, "sent", 0); err != nil {
		return err
	}
	return t.redis.Expire(key, t.ttl)
}

func (t *ProgressTracker) IncrSent(campaignID int64) error {
	locked, err := t.isLocked(campaignID)
	if err != nil {
		return err
	}
	if locked {
		return nil
	}

	key := progressKey(campaignID)
	if err := t.redis.HIncrement(key, "sent", 1); err != nil {
		return err
	}
	return t.redis.Expire(key, t.ttl)
}

// Lock freezes the counter. Non-forced locking respects an existing lock;
// the finalizer locks with force so its write always lands.
func (t *ProgressTracker) Lock(campaignID int64, force bool) error {
	if !force {
		locked, err := t.isLocked(campaignID)
		if err != nil {
			return err
		}
		if locked {
			return nil
		}
	}

	key := progressKey(campaignID)
	if err := t.redis.HSet(key, "locked", 1); err != nil {
		return err
	}
	return t.redis.Expire(key, t.ttl)
}

// Get reads the counter, clamping numeric fields non-negative. A missing
// hash reads as zeroes.
func (t *ProgressTracker) Get(campaignID int64) (Progress, error) {
	fields, err := t.redis.HGetAll(progressKey(campaignID))
	if err != nil {
		return Progress{}, err
	}
	p := Progress{
		Total:  clampNonNegative(fields["total"]),
		Sent:   clampNonNegative(fields["sent"]),
		Locked: fields["locked"] == "1",
	}
	return p, nil
}

// Reset drops the counter entirely, stale lock included.
func (t *ProgressTracker) Reset(campaignID int64) error {
	return t.redis.Del(progressKey(campaignID))
}

func (t *ProgressTracker) isLocked(campaignID int64) (bool, error) {
	p, err := t.Get(campaignID)
	if err != nil {
		return false, err
	}
	return p.Locked, nil
}

func clampNonNegative(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
