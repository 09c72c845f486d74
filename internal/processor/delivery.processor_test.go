package processor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/byagge/vashsender-2.0-sub000/internal/delivery"
	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/internal/queue"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, campaignID, contactID int64, attempt int) delivery.Outcome {
	args := m.Called(ctx, campaignID, contactID, attempt)
	return args.Get(0).(delivery.Outcome)
}

type MockRetryPublisher struct {
	mock.Mock
}

func (m *MockRetryPublisher) PublishDelayedJSON(ctx context.Context, data interface{}, metadata map[string]string, attempts int, delay time.Duration) error {
	args := m.Called(ctx, data, metadata, attempts, delay)
	return args.Error(0)
}

func deliveryMessage(t *testing.T, task model.DeliveryTask) *queue.Message {
	t.Helper()
	data, err := json.Marshal(task)
	require.NoError(t, err)
	return &queue.Message{ID: "1-0", Data: data}
}

func TestDeliveryProcessorSuccessMarksDone(t *testing.T) {
	mr, guard := setupGuard(t)
	sender := new(MockSender)
	retries := new(MockRetryPublisher)
	p := NewDeliveryProcessor(sender, guard, retries)

	sender.On("Send", mock.Anything, int64(1), int64(100), 0).Return(delivery.Success()).Once()

	err := p.Process(context.Background(), deliveryMessage(t, model.DeliveryTask{CampaignID: 1, ContactID: 100}))
	require.NoError(t, err)

	assert.True(t, mr.Exists("delivery:done:1:100"))
	assert.False(t, mr.Exists("delivery:lock:1:100"))
	sender.AssertExpectations(t)
	retries.AssertNotCalled(t, "PublishDelayedJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliveryProcessorRetrySchedulesNextAttempt(t *testing.T) {
	mr, guard := setupGuard(t)
	sender := new(MockSender)
	retries := new(MockRetryPublisher)
	p := NewDeliveryProcessor(sender, guard, retries)

	sender.On("Send", mock.Anything, int64(1), int64(100), 1).
		Return(delivery.Retry("451 try later", 60*time.Second)).Once()
	retries.On("PublishDelayedJSON", mock.Anything,
		model.DeliveryTask{CampaignID: 1, ContactID: 100, Attempt: 2},
		mock.Anything, 2, 60*time.Second).Return(nil).Once()

	err := p.Process(context.Background(), deliveryMessage(t, model.DeliveryTask{CampaignID: 1, ContactID: 100, Attempt: 1}))
	require.NoError(t, err)

	// No done marker: the retry must be able to reclaim the pair.
	assert.False(t, mr.Exists("delivery:done:1:100"))
	assert.False(t, mr.Exists("delivery:lock:1:100"))
	sender.AssertExpectations(t)
	retries.AssertExpectations(t)
}

func TestDeliveryProcessorRetryPublishFailureNacks(t *testing.T) {
	mr, guard := setupGuard(t)
	sender := new(MockSender)
	retries := new(MockRetryPublisher)
	p := NewDeliveryProcessor(sender, guard, retries)

	sender.On("Send", mock.Anything, int64(1), int64(100), 0).
		Return(delivery.Retry("timeout", 30*time.Second)).Once()
	retries.On("PublishDelayedJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(assert.AnError).Once()

	err := p.Process(context.Background(), deliveryMessage(t, model.DeliveryTask{CampaignID: 1, ContactID: 100}))
	require.Error(t, err)
	assert.False(t, mr.Exists("delivery:lock:1:100"))
}

func TestDeliveryProcessorPermanentFailureMarksDone(t *testing.T) {
	mr, guard := setupGuard(t)
	sender := new(MockSender)
	p := NewDeliveryProcessor(sender, guard, new(MockRetryPublisher))

	sender.On("Send", mock.Anything, int64(1), int64(100), 0).
		Return(delivery.Fail("550 no such user", true)).Once()

	err := p.Process(context.Background(), deliveryMessage(t, model.DeliveryTask{CampaignID: 1, ContactID: 100}))
	require.NoError(t, err)

	// Permanent failures are terminal for the pair.
	assert.True(t, mr.Exists("delivery:done:1:100"))
}

func TestDeliveryProcessorAlreadyDeliveredSkipsSend(t *testing.T) {
	mr, guard := setupGuard(t)
	sender := new(MockSender)
	p := NewDeliveryProcessor(sender, guard, new(MockRetryPublisher))

	mr.Set("delivery:done:1:100", "1")

	err := p.Process(context.Background(), deliveryMessage(t, model.DeliveryTask{CampaignID: 1, ContactID: 100}))
	require.NoError(t, err)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliveryProcessorLockedPairNacks(t *testing.T) {
	_, guard := setupGuard(t)
	sender := new(MockSender)
	p := NewDeliveryProcessor(sender, guard, new(MockRetryPublisher))

	_, err := guard.Acquire(1, 100)
	require.NoError(t, err)

	err = p.Process(context.Background(), deliveryMessage(t, model.DeliveryTask{CampaignID: 1, ContactID: 100}))
	assert.ErrorIs(t, err, ErrDeliveryLocked)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliveryProcessorMalformedPayloadAcks(t *testing.T) {
	_, guard := setupGuard(t)
	sender := new(MockSender)
	p := NewDeliveryProcessor(sender, guard, new(MockRetryPublisher))

	err := p.Process(context.Background(), &queue.Message{ID: "1-0", Data: []byte("{not json")})
	require.NoError(t, err)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
