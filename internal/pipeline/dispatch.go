package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gammazero/workerpool"

	"github.com/cropsight/veg-analytics-service/internal/domain"
	"github.com/cropsight/veg-analytics-service/internal/observability"
)

// dispatcher fans a batch out across a worker pool, one task per field.
// Messages sharing a key are evaluated sequentially in arrival order inside
// a single task, so a field's history snapshots are never raced; distinct
// fields run in parallel.
type dispatcher struct {
	evaluator Evaluator
	workers   int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

func newDispatcher(ev Evaluator, workers int, logger *slog.Logger, metrics *observability.Metrics) *dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &dispatcher{evaluator: ev, workers: workers, logger: logger, metrics: metrics}
}

type groupResult struct {
	events     []domain.OutputEvent
	successful []domain.RawEvent
	failed     []domain.RawEvent
}

// run evaluates every message in the batch and partitions the raws into
// successes and failures. Output order is deterministic: groups appear in
// the order their key first occurs in the batch, events within a group in
// arrival order.
func (d *dispatcher) run(ctx context.Context, rawBatch []domain.RawEvent) (events []domain.OutputEvent, successful, failed []domain.RawEvent) {
	keys, groups := groupByKey(rawBatch)

	results := make(map[string]*groupResult, len(groups))
	var mu sync.Mutex

	wp := workerpool.New(d.workers)
	for _, key := range keys {
		group := groups[key]
		k := key
		wp.Submit(func() {
			res := d.evaluateGroup(ctx, group)
			mu.Lock()
			results[k] = res
			mu.Unlock()
		})
	}
	wp.StopWait()

	for _, key := range keys {
		res := results[key]
		events = append(events, res.events...)
		successful = append(successful, res.successful...)
		failed = append(failed, res.failed...)
	}
	return events, successful, failed
}

func (d *dispatcher) evaluateGroup(ctx context.Context, group []domain.RawEvent) *groupResult {
	res := &groupResult{}
	for _, raw := range group {
		out, err := d.evaluator.Evaluate(ctx, raw)
		if err != nil {
			d.logger.Warn("evaluation failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			d.metrics.TransformErrors.Inc()
			res.failed = append(res.failed, raw)
			continue
		}
		res.events = append(res.events, out...)
		res.successful = append(res.successful, raw)
	}
	return res
}

// groupByKey splits a batch by message key, remembering first-occurrence
// order. Messages without a key each form their own group.
func groupByKey(rawBatch []domain.RawEvent) ([]string, map[string][]domain.RawEvent) {
	keys := make([]string, 0, len(rawBatch))
	groups := make(map[string][]domain.RawEvent, len(rawBatch))
	anon := 0

	for _, raw := range rawBatch {
		key := string(raw.Key)
		if key == "" {
			// Keyless messages cannot be ordered against anything; give
			// each its own group so they still parallelize.
			key = fmt.Sprintf("\x00anon-%d", anon)
			anon++
		}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], raw)
	}
	return keys, groups
}
