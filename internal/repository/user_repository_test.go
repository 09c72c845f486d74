package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db.DB)

	u := seedUser(t, db, false)

	got, err := repo.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.False(t, got.Trusted)
	assert.EqualValues(t, 1000, got.EmailsRemaining)

	_, err = repo.Get(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_RecordEmailsSent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db.DB)
	ctx := context.Background()

	u := seedUser(t, db, false)

	require.NoError(t, repo.RecordEmailsSent(ctx, u.ID, 300))
	got, err := repo.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 700, got.EmailsRemaining)

	// Deducting past the remaining volume clamps at zero.
	require.NoError(t, repo.RecordEmailsSent(ctx, u.ID, 5000))
	got, err = repo.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.EmailsRemaining)

	assert.ErrorIs(t, repo.RecordEmailsSent(ctx, 9999, 1), ErrUserNotFound)
}

func TestModerationRepository_CreateOrGetOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewModerationRepository(db.DB)
	ctx := context.Background()

	rec, created, err := repo.CreateOrGet(ctx, 42)
	require.NoError(t, err)
	assert.True(t, created)
	assert.EqualValues(t, 42, rec.CampaignID)
	assert.Equal(t, model.ModerationStatusPending, rec.Status)

	again, created, err := repo.CreateOrGet(ctx, 42)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, rec.ID, again.ID)
}
