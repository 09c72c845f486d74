package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fasthttp/router"

	"github.com/byagge/vashsender-2.0-sub000/internal/services"
	xhttp "github.com/byagge/vashsender-2.0-sub000/pkg/http"
)

// transparentPixel is a 1x1 transparent gif served to open-tracking
// requests. Mail clients fetch it when the recipient renders the message.
var transparentPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type TrackingService interface {
	RecordOpen(ctx context.Context, trackingID string)
	RecordClick(ctx context.Context, trackingID, target string) (string, error)
	RecordBounce(ctx context.Context, trackingID, reason string, hard bool) error
}

type TrackingHandler struct {
	svc TrackingService
}

// RegisterTrackingRoutes hangs the callbacks off the root router: the URLs
// are baked into sent messages and must stay short and stable.
func RegisterTrackingRoutes(e *router.Router, h *TrackingHandler) {
	e.GET("/t/o/{trackingID}", h.TrackOpen)
	e.GET("/t/c/{trackingID}", h.TrackClick)
	e.POST("/bounces", h.RecordBounce)
}

func NewTrackingHandler(trackingService TrackingService) *TrackingHandler {
	return &TrackingHandler{
		svc: trackingService,
	}
}

// TrackOpen always serves the pixel. Whether the write succeeded is
// invisible to the mail client on purpose.
func (h *TrackingHandler) TrackOpen(ctx *xhttp.RequestCtx) {
	trackingID, _ := ctx.UserValue("trackingID").(string)
	if trackingID != "" {
		h.svc.RecordOpen(ctx, trackingID)
	}

	ctx.Response.Header.Set("Content-Type", "image/gif")
	ctx.Response.Header.Set("Cache-Control", "no-store, max-age=0")
	ctx.Response.SetStatusCode(200)
	ctx.Response.SetBodyRaw(transparentPixel)
}

func (h *TrackingHandler) TrackClick(ctx *xhttp.RequestCtx) {
	trackingID, _ := ctx.UserValue("trackingID").(string)
	target := string(ctx.QueryArgs().Peek("u"))

	redirect, err := h.svc.RecordClick(ctx, trackingID, target)
	if err != nil {
		writeError(ctx, 400, "invalid redirect target")
		return
	}

	ctx.Response.Header.Set("Location", redirect)
	ctx.Response.SetStatusCode(302)
}

type bounceRequest struct {
	TrackingID string `json:"tracking_id"`
	Reason     string `json:"reason"`
	Hard       bool   `json:"hard"`
}

func (h *TrackingHandler) RecordBounce(ctx *xhttp.RequestCtx) {
	var req bounceRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.TrackingID == "" {
		writeError(ctx, 400, "tracking_id is required")
		return
	}

	err := h.svc.RecordBounce(ctx, req.TrackingID, req.Reason, req.Hard)
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeError(ctx, 404, "unknown tracking id")
	case err != nil:
		writeError(ctx, 500, err.Error())
	default:
		writeJSON(ctx, 200, map[string]string{"status": "recorded"})
	}
}
