package processor

import (
	"errors"
	"fmt"
	"time"

	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
	"github.com/byagge/vashsender-2.0-sub000/pkg/redis"
)

var (
	// ErrAlreadyDelivered means a done marker exists for this pair: the
	// attempt completed on an earlier run of the same task.
	ErrAlreadyDelivered = errors.New("delivery already handled")
	// ErrDeliveryLocked means another consumer is working on the pair
	// right now.
	ErrDeliveryLocked = errors.New("delivery locked by another consumer")
)

type GuardConfig struct {
	// LockTTL bounds how long a crashed consumer can block the pair. It
	// must exceed the worst-case send duration.
	LockTTL time.Duration
	DoneTTL time.Duration
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		LockTTL: 2 * time.Minute,
		DoneTTL: 24 * time.Hour,
	}
}

// DeliveryGuard is a Redis fast path in front of the recipient attempt
// table. The table's unique constraint is the real cross-process
// idempotency primitive; the guard just keeps redelivered queue tasks from
// re-running SMTP work they already finished, and keeps two consumers from
// racing the same contact concurrently.
type DeliveryGuard struct {
	redis  redis.RedisAdapter
	config GuardConfig
}

func NewDeliveryGuard(redisAdapter redis.RedisAdapter, config GuardConfig) *DeliveryGuard {
	return &DeliveryGuard{redis: redisAdapter, config: config}
}

// DeliveryClaim is a held lock on one (campaign, contact) pair.
type DeliveryClaim struct {
	campaignID int64
	contactID  int64
	held       bool
	guard      *DeliveryGuard
}

func deliveryPair(campaignID, contactID int64) string {
	return fmt.Sprintf("%d:%d", campaignID, contactID)
}

// Acquire claims the pair for this consumer. ErrAlreadyDelivered and
// ErrDeliveryLocked are the two skip signals; any other error means Redis
// trouble and the task should be redelivered.
func (g *DeliveryGuard) Acquire(campaignID, contactID int64) (*DeliveryClaim, error) {
	pair := deliveryPair(campaignID, contactID)

	exists, err := g.redis.Exist("delivery:done:" + pair)
	if err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, ErrAlreadyDelivered
	}

	lockValue := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
	acquired, err := g.redis.SetNX("delivery:lock:"+pair, lockValue, g.config.LockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrDeliveryLocked
	}

	return &DeliveryClaim{
		campaignID: campaignID,
		contactID:  contactID,
		held:       true,
		guard:      g,
	}, nil
}

// Done marks the pair's attempt as completed and drops the lock. Called
// for every completed outcome, failed attempts included: those are
// terminal for the pair too.
func (c *DeliveryClaim) Done() {
	pair := deliveryPair(c.campaignID, c.contactID)

	if err := c.guard.redis.Set("delivery:done:"+pair, []byte("1"), c.guard.config.DoneTTL); err != nil {
		logger.Warn("failed to set delivery done marker", "pair", pair, "error", err)
	}
	c.release(pair)
}

// Release drops the lock without a done marker, so a scheduled retry can
// reclaim the pair.
func (c *DeliveryClaim) Release() {
	c.release(deliveryPair(c.campaignID, c.contactID))
}

func (c *DeliveryClaim) release(pair string) {
	if !c.held {
		return
	}
	if err := c.guard.redis.Del("delivery:lock:" + pair); err != nil {
		logger.Warn("failed to release delivery lock", "pair", pair, "error", err)
	}
	c.held = false
}
