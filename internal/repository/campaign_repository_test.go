package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
)

func seedUser(t *testing.T, db *testDB, trusted bool) *model.User {
	t.Helper()
	repo := NewUserRepository(db.DB)
	u, err := repo.Create(context.Background(), &model.User{
		Email:           "owner@shop.example.com",
		Trusted:         trusted,
		PlanType:        "pro",
		EmailsRemaining: 1000,
	})
	require.NoError(t, err)
	return u
}

func seedCampaign(t *testing.T, db *testDB, userID int64) *model.Campaign {
	t.Helper()
	repo := NewCampaignRepository(db.DB)
	c, err := repo.Create(context.Background(), &model.Campaign{
		UserID:      userID,
		Subject:     "August digest",
		SenderEmail: "news@shop.example.com",
		Status:      model.CampaignStatusDraft,
	})
	require.NoError(t, err)
	return c
}

func TestCampaignRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db.DB)
	user := seedUser(t, db, true)

	c := seedCampaign(t, db, user.ID)
	require.NotZero(t, c.ID)

	got, err := repo.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "August digest", got.Subject)
	assert.Equal(t, model.CampaignStatusDraft, got.Status)

	_, err = repo.Get(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestCampaignRepository_AttachAndListIDs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db.DB)
	user := seedUser(t, db, true)
	c := seedCampaign(t, db, user.ID)

	require.NoError(t, repo.AttachList(context.Background(), c.ID, 3))
	require.NoError(t, repo.AttachList(context.Background(), c.ID, 5))

	ids, err := repo.ListIDs(context.Background(), c.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{3, 5}, ids)
}

func TestCampaignRepository_StatusTransitions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db.DB)
	user := seedUser(t, db, true)
	c := seedCampaign(t, db, user.ID)
	ctx := context.Background()

	require.NoError(t, repo.MarkSending(ctx, c.ID, "task-1"))
	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusSending, got.Status)
	assert.Equal(t, "task-1", got.TaskID)

	require.NoError(t, repo.MarkFailed(ctx, c.ID, "no contacts"))
	got, err = repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusFailed, got.Status)
	assert.Equal(t, "no contacts", got.FailureReason)
	assert.Empty(t, got.TaskID)

	assert.ErrorIs(t, repo.MarkSending(ctx, 9999, "task-1"), ErrCampaignNotFound)
}

func TestCampaignRepository_FinalizeSentIsExactlyOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db.DB)
	user := seedUser(t, db, true)
	c := seedCampaign(t, db, user.ID)
	ctx := context.Background()

	require.NoError(t, repo.MarkSending(ctx, c.ID, "task-1"))

	flipped, err := repo.FinalizeSent(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, flipped)

	// Second caller loses the conditional update.
	flipped, err = repo.FinalizeSent(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, flipped)

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusSent, got.Status)
	assert.Empty(t, got.TaskID)
}

func TestCampaignRepository_ListStuckSending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db.DB)
	user := seedUser(t, db, true)
	ctx := context.Background()

	stale := seedCampaign(t, db, user.ID)
	fresh := seedCampaign(t, db, user.ID)
	require.NoError(t, repo.MarkSending(ctx, stale.ID, "task-old"))
	require.NoError(t, repo.MarkSending(ctx, fresh.ID, "task-new"))

	// Backdate the stale row past the cutoff.
	old := time.Now().Add(-time.Hour)
	require.NoError(t, db.rawDB.Model(&CampaignEntity{}).
		Where("id = ?", stale.ID).Update("updated_at", old).Error)

	stuck, err := repo.ListStuckSending(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, stale.ID, stuck[0].ID)
}

func TestCampaignRepository_ListSendingWithoutTask(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db.DB)
	user := seedUser(t, db, true)
	ctx := context.Background()

	orphan := seedCampaign(t, db, user.ID)
	owned := seedCampaign(t, db, user.ID)
	require.NoError(t, repo.MarkSending(ctx, orphan.ID, ""))
	require.NoError(t, repo.MarkSending(ctx, owned.ID, "task-1"))

	lost, err := repo.ListSendingWithoutTask(ctx)
	require.NoError(t, err)
	require.Len(t, lost, 1)
	assert.Equal(t, orphan.ID, lost[0].ID)
}
