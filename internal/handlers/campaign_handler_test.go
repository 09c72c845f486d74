package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/internal/services"
	xhttp "github.com/byagge/vashsender-2.0-sub000/pkg/http"
)

type MockCampaignService struct {
	mock.Mock
}

func (m *MockCampaignService) Start(ctx context.Context, p model.CampaignStartRequest) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func TestCampaignHandler_StartSend(t *testing.T) {
	t.Run("queues a send", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)

		svc.On("Start", mock.Anything, model.CampaignStartRequest{CampaignID: 7}).
			Return("task-abc", nil).Once()

		ctx := setupTestContext("POST", "/campaigns/7/send", nil)
		ctx.SetUserValue("id", "7")
		handler.StartSend(ctx)

		assert.Equal(t, 202, ctx.Response.StatusCode())
		var resp startSendResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
		assert.Equal(t, int64(7), resp.CampaignID)
		assert.Equal(t, "task-abc", resp.TaskID)
		assert.Equal(t, "queued", resp.Status)
		svc.AssertExpectations(t)
	})

	t.Run("passes skip_moderation through", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)

		svc.On("Start", mock.Anything, model.CampaignStartRequest{CampaignID: 7, SkipModeration: true}).
			Return("task-abc", nil).Once()

		ctx := setupTestContext("POST", "/campaigns/7/send", []byte(`{"skip_moderation":true}`))
		ctx.SetUserValue("id", "7")
		handler.StartSend(ctx)

		assert.Equal(t, 202, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("invalid id", func(t *testing.T) {
		handler := NewCampaignHandler(new(MockCampaignService))

		ctx := setupTestContext("POST", "/campaigns/abc/send", nil)
		ctx.SetUserValue("id", "abc")
		handler.StartSend(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("unknown campaign", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)

		svc.On("Start", mock.Anything, mock.Anything).Return("", services.ErrNotFound).Once()

		ctx := setupTestContext("POST", "/campaigns/7/send", nil)
		ctx.SetUserValue("id", "7")
		handler.StartSend(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})

	t.Run("already sending conflicts", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)

		svc.On("Start", mock.Anything, mock.Anything).Return("", services.ErrAlreadySending).Once()

		ctx := setupTestContext("POST", "/campaigns/7/send", nil)
		ctx.SetUserValue("id", "7")
		handler.StartSend(ctx)

		assert.Equal(t, 409, ctx.Response.StatusCode())
	})

	t.Run("malformed body", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)

		ctx := setupTestContext("POST", "/campaigns/7/send", []byte(`{`))
		ctx.SetUserValue("id", "7")
		handler.StartSend(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
	})
}
