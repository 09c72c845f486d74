package processor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/byagge/vashsender-2.0-sub000/internal/campaign"
	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/internal/queue"
)

type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) Start(ctx context.Context, campaignID int64, taskID string, skipModeration bool) error {
	args := m.Called(ctx, campaignID, taskID, skipModeration)
	return args.Error(0)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, campaignID int64, taskID string, contactIDs []int64) error {
	args := m.Called(ctx, campaignID, taskID, contactIDs)
	return args.Error(0)
}

func taskMessage(t *testing.T, task interface{}) *queue.Message {
	t.Helper()
	data, err := json.Marshal(task)
	require.NoError(t, err)
	return &queue.Message{ID: "1-0", Data: data}
}

func TestCampaignProcessorStartsOrchestrator(t *testing.T) {
	orch := new(MockOrchestrator)
	p := NewCampaignProcessor(orch)

	orch.On("Start", mock.Anything, int64(7), "task-1", false).Return(nil).Once()

	err := p.Process(context.Background(), taskMessage(t, model.CampaignTask{CampaignID: 7, TaskID: "task-1"}))
	require.NoError(t, err)
	orch.AssertExpectations(t)
}

func TestCampaignProcessorSendConflictAcks(t *testing.T) {
	orch := new(MockOrchestrator)
	p := NewCampaignProcessor(orch)

	orch.On("Start", mock.Anything, int64(7), "task-1", false).Return(campaign.ErrSendConflict).Once()

	err := p.Process(context.Background(), taskMessage(t, model.CampaignTask{CampaignID: 7, TaskID: "task-1"}))
	assert.NoError(t, err)
}

func TestCampaignProcessorOtherErrorNacks(t *testing.T) {
	orch := new(MockOrchestrator)
	p := NewCampaignProcessor(orch)

	orch.On("Start", mock.Anything, int64(7), "task-1", true).Return(assert.AnError).Once()

	err := p.Process(context.Background(), taskMessage(t, model.CampaignTask{CampaignID: 7, TaskID: "task-1", SkipModeration: true}))
	assert.Error(t, err)
}

func TestCampaignProcessorMalformedPayloadAcks(t *testing.T) {
	orch := new(MockOrchestrator)
	p := NewCampaignProcessor(orch)

	err := p.Process(context.Background(), &queue.Message{ID: "1-0", Data: []byte("nope")})
	assert.NoError(t, err)
	orch.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBatchProcessorDispatches(t *testing.T) {
	disp := new(MockDispatcher)
	p := NewBatchProcessor(disp)

	disp.On("Dispatch", mock.Anything, int64(7), "task-1", []int64{1, 2, 3}).Return(nil).Once()

	err := p.Process(context.Background(), taskMessage(t, model.BatchTask{CampaignID: 7, TaskID: "task-1", ContactIDs: []int64{1, 2, 3}}))
	require.NoError(t, err)
	disp.AssertExpectations(t)
}

func TestBatchProcessorDispatchErrorNacks(t *testing.T) {
	disp := new(MockDispatcher)
	p := NewBatchProcessor(disp)

	disp.On("Dispatch", mock.Anything, int64(7), "task-1", []int64{1}).Return(assert.AnError).Once()

	err := p.Process(context.Background(), taskMessage(t, model.BatchTask{CampaignID: 7, TaskID: "task-1", ContactIDs: []int64{1}}))
	assert.Error(t, err)
}
