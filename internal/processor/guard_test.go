package processor

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byagge/vashsender-2.0-sub000/pkg/redis"
)

func setupGuard(t *testing.T) (*miniredis.Miniredis, *DeliveryGuard) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	connName := t.Name() + "-" + mr.Addr()
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, NewDeliveryGuard(adapter, DefaultGuardConfig())
}

func TestGuardAcquireAndDone(t *testing.T) {
	mr, guard := setupGuard(t)

	claim, err := guard.Acquire(1, 100)
	require.NoError(t, err)
	assert.True(t, mr.Exists("delivery:lock:1:100"))

	claim.Done()
	assert.False(t, mr.Exists("delivery:lock:1:100"))
	assert.True(t, mr.Exists("delivery:done:1:100"))

	_, err = guard.Acquire(1, 100)
	assert.ErrorIs(t, err, ErrAlreadyDelivered)
}

func TestGuardConcurrentAcquireBlocked(t *testing.T) {
	_, guard := setupGuard(t)

	claim, err := guard.Acquire(1, 100)
	require.NoError(t, err)

	_, err = guard.Acquire(1, 100)
	assert.ErrorIs(t, err, ErrDeliveryLocked)

	claim.Release()

	// Released without a done marker: the pair is claimable again.
	claim2, err := guard.Acquire(1, 100)
	require.NoError(t, err)
	claim2.Done()
}

func TestGuardDistinctPairsIndependent(t *testing.T) {
	_, guard := setupGuard(t)

	claimA, err := guard.Acquire(1, 100)
	require.NoError(t, err)

	claimB, err := guard.Acquire(1, 101)
	require.NoError(t, err)

	claimC, err := guard.Acquire(2, 100)
	require.NoError(t, err)

	claimA.Done()
	claimB.Done()
	claimC.Done()
}

func TestGuardLockExpiry(t *testing.T) {
	mr, guard := setupGuard(t)

	_, err := guard.Acquire(1, 100)
	require.NoError(t, err)

	// A crashed consumer never releases; the TTL frees the pair.
	mr.FastForward(DefaultGuardConfig().LockTTL * 2)

	claim, err := guard.Acquire(1, 100)
	require.NoError(t, err)
	claim.Done()
}

func TestGuardReleaseIsIdempotent(t *testing.T) {
	mr, guard := setupGuard(t)

	claim, err := guard.Acquire(1, 100)
	require.NoError(t, err)

	claim.Release()
	claim.Release()
	claim.Done()

	// A stale claim must not write a done marker's lock back.
	assert.False(t, mr.Exists("delivery:lock:1:100"))
}
