package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/internal/repository"
)

type MockCampaignRepository struct {
	mock.Mock
}

func (m *MockCampaignRepository) Get(ctx context.Context, id int64) (*model.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) ListIDs(ctx context.Context, campaignID int64) ([]int64, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

type MockTaskPublisher struct {
	mock.Mock
}

func (m *MockTaskPublisher) PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error) {
	args := m.Called(ctx, data, metadata)
	return args.String(0), args.Error(1)
}

func draftCampaign(id int64) *model.Campaign {
	return &model.Campaign{
		ID:          id,
		UserID:      1,
		Subject:     "August digest",
		SenderEmail: "news@shop.example.com",
		Status:      model.CampaignStatusDraft,
	}
}

func TestCampaignServiceStartEnqueuesTask(t *testing.T) {
	repo := new(MockCampaignRepository)
	pub := new(MockTaskPublisher)
	svc := NewCampaignService(repo, pub)

	repo.On("Get", mock.Anything, int64(7)).Return(draftCampaign(7), nil).Once()
	repo.On("ListIDs", mock.Anything, int64(7)).Return([]int64{3}, nil).Once()
	pub.On("PublishJSON", mock.Anything, mock.MatchedBy(func(data interface{}) bool {
		task, ok := data.(model.CampaignTask)
		return ok && task.CampaignID == 7 && task.TaskID != "" && !task.SkipModeration
	}), mock.Anything).Return("1-0", nil).Once()

	taskID, err := svc.Start(context.Background(), model.CampaignStartRequest{CampaignID: 7})
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestCampaignServiceStartValidation(t *testing.T) {
	svc := NewCampaignService(new(MockCampaignRepository), new(MockTaskPublisher))

	_, err := svc.Start(context.Background(), model.CampaignStartRequest{})
	assert.Error(t, err)
}

func TestCampaignServiceStartNotFound(t *testing.T) {
	repo := new(MockCampaignRepository)
	svc := NewCampaignService(repo, new(MockTaskPublisher))

	repo.On("Get", mock.Anything, int64(7)).Return(nil, repository.ErrCampaignNotFound).Once()

	_, err := svc.Start(context.Background(), model.CampaignStartRequest{CampaignID: 7})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCampaignServiceStartStatusGates(t *testing.T) {
	tests := []struct {
		name    string
		status  model.CampaignStatus
		wantErr error
	}{
		{"sent is terminal", model.CampaignStatusSent, ErrAlreadyTerminal},
		{"rejected is terminal", model.CampaignStatusRejected, ErrAlreadyTerminal},
		{"sending conflicts", model.CampaignStatusSending, ErrAlreadySending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockCampaignRepository)
			pub := new(MockTaskPublisher)
			svc := NewCampaignService(repo, pub)

			c := draftCampaign(7)
			c.Status = tt.status
			repo.On("Get", mock.Anything, int64(7)).Return(c, nil).Once()

			_, err := svc.Start(context.Background(), model.CampaignStartRequest{CampaignID: 7})
			assert.ErrorIs(t, err, tt.wantErr)
			pub.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCampaignServiceStartNoLists(t *testing.T) {
	repo := new(MockCampaignRepository)
	svc := NewCampaignService(repo, new(MockTaskPublisher))

	repo.On("Get", mock.Anything, int64(7)).Return(draftCampaign(7), nil).Once()
	repo.On("ListIDs", mock.Anything, int64(7)).Return([]int64{}, nil).Once()

	_, err := svc.Start(context.Background(), model.CampaignStartRequest{CampaignID: 7})
	assert.ErrorIs(t, err, ErrMissingRecipient)
}

func TestCampaignServiceStartPublishFailure(t *testing.T) {
	repo := new(MockCampaignRepository)
	pub := new(MockTaskPublisher)
	svc := NewCampaignService(repo, pub)

	repo.On("Get", mock.Anything, int64(7)).Return(draftCampaign(7), nil).Once()
	repo.On("ListIDs", mock.Anything, int64(7)).Return([]int64{3}, nil).Once()
	pub.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything).Return("", assert.AnError).Once()

	_, err := svc.Start(context.Background(), model.CampaignStartRequest{CampaignID: 7})
	assert.Error(t, err)
}
