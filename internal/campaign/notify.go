package campaign

import (
	"context"
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
)

// Notifier tells an operator channel about a campaign awaiting moderation.
// Strictly best effort: a dead webhook must never abort an orchestrator run.
type Notifier interface {
	NotifyModerationPending(ctx context.Context, campaign *model.Campaign)
}

type WebhookNotifier struct {
	url     string
	client  *fasthttp.Client
	timeout time.Duration
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         5 * time.Second,
			WriteTimeout:        5 * time.Second,
			MaxIdleConnDuration: time.Minute,
		},
		timeout: 5 * time.Second,
	}
}

func (n *WebhookNotifier) NotifyModerationPending(ctx context.Context, campaign *model.Campaign) {
	if n.url == "" {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"event":       "campaign.moderation_pending",
		"campaign_id": campaign.ID,
		"user_id":     campaign.UserID,
		"subject":     campaign.Subject,
	})
	if err != nil {
		logger.Warn("failed to encode moderation notification", "campaign_id", campaign.ID, "error", err)
		return
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(n.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(n.timeout)
	}

	if err := n.client.DoDeadline(req, resp, deadline); err != nil {
		logger.Warn("moderation notification failed", "campaign_id", campaign.ID, "error", err)
		return
	}
	if resp.StatusCode() >= 300 {
		logger.Warn("moderation notification rejected", "campaign_id", campaign.ID, "status", resp.StatusCode())
	}
}
