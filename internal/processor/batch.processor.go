package processor

import (
	"context"
	"encoding/json"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
	"github.com/byagge/vashsender-2.0-sub000/internal/queue"
	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
	"github.com/byagge/vashsender-2.0-sub000/pkg/prom"
)

// Dispatcher fans a recipient batch into per-contact delivery tasks.
type Dispatcher interface {
	Dispatch(ctx context.Context, campaignID int64, taskID string, contactIDs []int64) error
}

// BatchProcessor fans one recipient batch out into per-contact delivery tasks.
type BatchProcessor struct {
	dispatcher Dispatcher
}

func NewBatchProcessor(dispatcher Dispatcher) *BatchProcessor {
	return &BatchProcessor{dispatcher: dispatcher}
}

func (p *BatchProcessor) GetType() string {
	return "batch"
}

func (p *BatchProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var task model.BatchTask
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		logger.Error("Dropping malformed batch task", "message_id", msg.ID, "error", err)
		return nil
	}

	if err := p.dispatcher.Dispatch(ctx, task.CampaignID, task.TaskID, task.ContactIDs); err != nil {
		return err
	}

	prom.RecordBatchDispatched()
	return nil
}
