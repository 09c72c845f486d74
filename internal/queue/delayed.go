package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// delayedEnvelope is what sits in the delay sorted set until its due time.
type delayedEnvelope struct {
	Data     []byte            `json:"data"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Attempts int               `json:"attempts,omitempty"`
}

func (q *Queue) delayedKey() string {
	return q.config.Name + ":delayed"
}

// PublishDelayed schedules a message to enter the queue after the given
// delay. The consume loop promotes due messages back onto the stream, so a
// delayed message is only delivered while at least one consumer is running.
func (q *Queue) PublishDelayed(ctx context.Context, data []byte, metadata map[string]string, attempts int, delay time.Duration) error {
	env := delayedEnvelope{
		Data:     data,
		Metadata: metadata,
		Attempts: attempts,
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal delayed message: %w", err)
	}

	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.adapter.ZAdd(q.delayedKey(), due, string(payload)); err != nil {
		return fmt.Errorf("failed to schedule delayed message: %w", err)
	}
	return nil
}

// PublishDelayedJSON schedules a JSON-encoded message.
func (q *Queue) PublishDelayedJSON(ctx context.Context, data interface{}, metadata map[string]string, attempts int, delay time.Duration) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return q.PublishDelayed(ctx, jsonData, metadata, attempts, delay)
}

// promoteDelayed moves every due delayed message back onto the stream.
// The ZRem removal count is the claim: only the consumer whose removal took
// effect publishes, so competing consumers cannot promote the same member
// twice. A crash in the window between ZRem and XAdd loses the retry, which
// the reconciliation sweeps repair from ground truth.
func (q *Queue) promoteDelayed() {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	members, err := q.adapter.ZRangeByScore(q.delayedKey(), "-inf", now, q.config.BatchSize)
	if err != nil || len(members) == 0 {
		return
	}

	for _, member := range members {
		removed, err := q.adapter.ZRem(q.delayedKey(), member)
		if err != nil || removed == 0 {
			// Another consumer claimed this member first.
			continue
		}

		var env delayedEnvelope
		if err := json.Unmarshal([]byte(member), &env); err != nil {
			continue
		}

		values := map[string]interface{}{
			"data":      string(env.Data),
			"timestamp": time.Now().Unix(),
			"attempts":  env.Attempts,
		}
		for k, v := range env.Metadata {
			values["meta_"+k] = v
		}

		_, _ = q.adapter.XAdd(q.config.Name, values)
	}
}
