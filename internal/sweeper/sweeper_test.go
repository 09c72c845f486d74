package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
)

type MockCampaignRepository struct {
	mock.Mock
}

func (m *MockCampaignRepository) ListStuckSending(ctx context.Context, cutoff time.Time) ([]*model.Campaign, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) ListSendingWithoutTask(ctx context.Context) ([]*model.Campaign, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) ListIDs(ctx context.Context, campaignID int64) ([]int64, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockCampaignRepository) Resolve(ctx context.Context, id int64, status model.CampaignStatus, reason string) error {
	args := m.Called(ctx, id, status, reason)
	return args.Error(0)
}

type MockContactRepository struct {
	mock.Mock
}

func (m *MockContactRepository) ResolveValidRecipients(ctx context.Context, listIDs []int64) ([]int64, error) {
	args := m.Called(ctx, listIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

type MockAttemptRepository struct {
	mock.Mock
}

func (m *MockAttemptRepository) CountCompleted(ctx context.Context, campaignID int64) (int64, error) {
	args := m.Called(ctx, campaignID)
	return args.Get(0).(int64), args.Error(1)
}

type MockProgress struct {
	mock.Mock
}

func (m *MockProgress) Reset(campaignID int64) error {
	args := m.Called(campaignID)
	return args.Error(0)
}

type sweeperFixture struct {
	sweeper   *Sweeper
	campaigns *MockCampaignRepository
	contacts  *MockContactRepository
	attempts  *MockAttemptRepository
	progress  *MockProgress
}

func setupSweeper(t *testing.T) *sweeperFixture {
	t.Helper()
	f := &sweeperFixture{
		campaigns: new(MockCampaignRepository),
		contacts:  new(MockContactRepository),
		attempts:  new(MockAttemptRepository),
		progress:  new(MockProgress),
	}
	f.sweeper = NewSweeper(f.campaigns, f.contacts, f.attempts, f.progress, 15*time.Minute)
	return f
}

func stuckCampaign(id int64) *model.Campaign {
	return &model.Campaign{ID: id, UserID: 1, Status: model.CampaignStatusSending, TaskID: "task-x"}
}

func (f *sweeperFixture) expectGroundTruth(ctx context.Context, id int64, recipients []int64, done int64) {
	f.campaigns.On("ListIDs", ctx, id).Return([]int64{5}, nil)
	f.contacts.On("ResolveValidRecipients", ctx, []int64{5}).Return(recipients, nil)
	f.attempts.On("CountCompleted", ctx, id).Return(done, nil)
}

func TestRepairStuckFullyAttemptedResolvesSent(t *testing.T) {
	f := setupSweeper(t)
	ctx := context.Background()

	f.campaigns.On("ListStuckSending", ctx, mock.Anything).Return([]*model.Campaign{stuckCampaign(1)}, nil)
	f.expectGroundTruth(ctx, 1, []int64{101, 102, 103}, 3)
	f.campaigns.On("Resolve", ctx, int64(1), model.CampaignStatusSent, "").Return(nil)
	f.progress.On("Reset", int64(1)).Return(nil)

	require.NoError(t, f.sweeper.RepairStuck(ctx))

	f.campaigns.AssertExpectations(t)
	f.progress.AssertExpectations(t)
}

func TestRepairStuckNothingAttemptedresolvesDraft(t *testing.T) {
	f := setupSweeper(t)
	ctx := context.Background()

	f.campaigns.On("ListStuckSending", ctx, mock.Anything).Return([]*model.Campaign{stuckCampaign(1)}, nil)
	f.expectGroundTruth(ctx, 1, []int64{101, 102}, 0)
	f.campaigns.On("Resolve", ctx, int64(1), model.CampaignStatusDraft, "").Return(nil)
	f.progress.On("Reset", int64(1)).Return(nil)

	require.NoError(t, f.sweeper.RepairStuck(ctx))
	f.campaigns.AssertExpectations(t)
}

func TestRepairStuckPartialResolvesFailed(t *testing.T) {
	f := setupSweeper(t)
	ctx := context.Background()

	f.campaigns.On("ListStuckSending", ctx, mock.Anything).Return([]*model.Campaign{stuckCampaign(1)}, nil)
	f.expectGroundTruth(ctx, 1, []int64{101, 102, 103}, 1)
	f.campaigns.On("Resolve", ctx, int64(1), model.CampaignStatusFailed, FailureInterrupted).Return(nil)
	f.progress.On("Reset", int64(1)).Return(nil)

	require.NoError(t, f.sweeper.RepairStuck(ctx))
	f.campaigns.AssertExpectations(t)
}

func TestRepairStuckAllRecipientsInvalidatedResolvesSent(t *testing.T) {
	f := setupSweeper(t)
	ctx := context.Background()

	// Every recipient was attempted and permanently rejected, so the valid
	// set re-resolves empty. Fully attempted still means sent.
	f.campaigns.On("ListStuckSending", ctx, mock.Anything).Return([]*model.Campaign{stuckCampaign(1)}, nil)
	f.expectGroundTruth(ctx, 1, []int64{}, 3)
	f.campaigns.On("Resolve", ctx, int64(1), model.CampaignStatusSent, "").Return(nil)
	f.progress.On("Reset", int64(1)).Return(nil)

	require.NoError(t, f.sweeper.RepairStuck(ctx))
	f.campaigns.AssertExpectations(t)
}

func TestRepairStuckNoRecipientsResolvesFailed(t *testing.T) {
	f := setupSweeper(t)
	ctx := context.Background()

	f.campaigns.On("ListStuckSending", ctx, mock.Anything).Return([]*model.Campaign{stuckCampaign(1)}, nil)
	f.expectGroundTruth(ctx, 1, []int64{}, 0)
	f.campaigns.On("Resolve", ctx, int64(1), model.CampaignStatusFailed, "no contacts").Return(nil)
	f.progress.On("Reset", int64(1)).Return(nil)

	require.NoError(t, f.sweeper.RepairStuck(ctx))
	f.campaigns.AssertExpectations(t)
}

func TestRepairStuckContinuesPastFailures(t *testing.T) {
	f := setupSweeper(t)
	ctx := context.Background()

	f.campaigns.On("ListStuckSending", ctx, mock.Anything).
		Return([]*model.Campaign{stuckCampaign(1), stuckCampaign(2)}, nil)

	// Ground truth for campaign 1 is unreadable; campaign 2 still resolves.
	f.campaigns.On("ListIDs", ctx, int64(1)).Return(nil, context.DeadlineExceeded)
	f.expectGroundTruth(ctx, 2, []int64{101}, 1)
	f.campaigns.On("Resolve", ctx, int64(2), model.CampaignStatusSent, "").Return(nil)
	f.progress.On("Reset", int64(2)).Return(nil)

	require.NoError(t, f.sweeper.RepairStuck(ctx))
	f.campaigns.AssertExpectations(t)
}

func TestMonitorProgressResolvesOrphanedCampaigns(t *testing.T) {
	f := setupSweeper(t)
	ctx := context.Background()

	orphan := stuckCampaign(3)
	orphan.TaskID = ""

	f.campaigns.On("ListSendingWithoutTask", ctx).Return([]*model.Campaign{orphan}, nil)
	f.expectGroundTruth(ctx, 3, []int64{101, 102}, 2)
	f.campaigns.On("Resolve", ctx, int64(3), model.CampaignStatusSent, "").Return(nil)
	f.progress.On("Reset", int64(3)).Return(nil)

	require.NoError(t, f.sweeper.MonitorProgress(ctx))
	f.campaigns.AssertExpectations(t)
}
