package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/fasthttp/router"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/internal/services"
	xhttp "github.com/byagge/vashsender-2.0-sub000/pkg/http"
)

type CampaignService interface {
	Start(ctx context.Context, p model.CampaignStartRequest) (string, error)
}

type CampaignHandler struct {
	svc CampaignService
}

func RegisterCampaignRoutes(e *router.Group, h *CampaignHandler) {
	e.POST("/campaigns/{id}/send", h.StartSend)
}

func NewCampaignHandler(campaignService CampaignService) *CampaignHandler {
	return &CampaignHandler{
		svc: campaignService,
	}
}

type startSendRequest struct {
	SkipModeration bool `json:"skip_moderation"`
}

type startSendResponse struct {
	CampaignID int64  `json:"campaign_id"`
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
}

func (h *CampaignHandler) StartSend(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid campaign id")
		return
	}

	// Body is optional: a bare POST starts a normal moderated send.
	var req startSendRequest
	if body := ctx.PostBody(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(ctx, 400, "invalid JSON: "+err.Error())
			return
		}
	}

	taskID, err := h.svc.Start(ctx, model.CampaignStartRequest{
		CampaignID:     id,
		SkipModeration: req.SkipModeration,
	})
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeError(ctx, 404, "campaign not found")
	case errors.Is(err, services.ErrAlreadySending):
		writeError(ctx, 409, err.Error())
	case errors.Is(err, services.ErrAlreadyTerminal):
		writeError(ctx, 409, err.Error())
	case err != nil:
		writeError(ctx, 400, err.Error())
	default:
		writeJSON(ctx, 202, startSendResponse{CampaignID: id, TaskID: taskID, Status: "queued"})
	}
}

func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	v, ok := ctx.UserValue(name).(string)
	if !ok {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(v, 10, 64)
}
