package client

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"animate3d/internal/jobs"
	"animate3d/internal/logging"
	"animate3d/internal/notifications"
	"animate3d/internal/params"
)

// BatchItem is the result of one media file in a batch.
type BatchItem struct {
	Media   string
	RID     string
	Outcome *jobs.Outcome
	Err     error
}

// Succeeded reports whether the item's job produced a result.
func (i BatchItem) Succeeded() bool {
	return i.Err == nil && i.Outcome != nil && i.Outcome.Succeeded()
}

// RunBatch submits one single-person job per media entry, at most
// concurrency at a time, and waits for all of them. Failures are reported
// per item and never stop the rest of the batch. onItem, when set, is called
// as each item finishes.
func (c *Client) RunBatch(ctx context.Context, media []string, p params.ProcessParams, concurrency int, onItem func(BatchItem)) []BatchItem {
	if concurrency <= 0 {
		concurrency = 1
	}
	started := time.Now()
	items := make([]BatchItem, len(media))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, m := range media {
		g.Go(func() error {
			item := BatchItem{Media: m}
			reg := c.DefaultRegistration()
			reg.Blocking = true
			reg.OnResult = func(outcome jobs.Outcome) {
				item.Outcome = &outcome
			}
			item.RID, item.Err = c.StartNewJob(ctx, m, p, reg)
			items[i] = item
			if onItem != nil {
				onItem(item)
			}
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, item := range items {
		if item.Succeeded() {
			succeeded++
		}
	}
	elapsed := time.Since(started)
	c.logger.Info("batch finished",
		logging.String(logging.FieldEventType, "batch_completed"),
		logging.Int("succeeded", succeeded),
		logging.Int("failed", len(items)-succeeded),
		logging.Duration("elapsed", elapsed),
	)
	c.executor.publish(ctx, notifications.EventBatchCompleted, notifications.Payload{
		"succeeded": succeeded,
		"failed":    len(items) - succeeded,
		"duration":  elapsed,
	})
	return items
}
