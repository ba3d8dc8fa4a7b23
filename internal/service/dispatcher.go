package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/ReviewLoop/internal/adapter/otel"
	"github.com/Strob0t/ReviewLoop/internal/domain/queue"
	"github.com/Strob0t/ReviewLoop/internal/port/database"
	"github.com/Strob0t/ReviewLoop/internal/port/messagequeue"
	"github.com/Strob0t/ReviewLoop/internal/port/ratelimit"
)

// DispatcherConfig holds the dispatcher's tunables.
type DispatcherConfig struct {
	Interval time.Duration
	// CycleTimeout caps one full cycle including every store, limiter,
	// and publish call. A hung backend then surfaces as a timeout
	// failure instead of stalling the loop.
	CycleTimeout   time.Duration
	BatchSize      int
	InspectorModel string
	Method         string
}

const defaultCycleTimeout = time.Minute

// CycleResult summarizes one dispatch cycle.
type CycleResult struct {
	Dispatched  int
	RateLimited int
	Skipped     int
	Failed      int
}

// Dispatcher periodically drains the review queue, consulting the shared
// rate limiter before each dispatch. Multiple engine instances may run
// dispatchers concurrently; the PENDING claim and the limiter keep every
// entry and every token single-use.
type Dispatcher struct {
	store   database.Store
	mq      messagequeue.Queue
	limiter ratelimit.Limiter
	metrics *otel.Metrics
	cfg     DispatcherConfig

	running sync.Mutex // held for the duration of one cycle
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(store database.Store, mq messagequeue.Queue, limiter ratelimit.Limiter, metrics *otel.Metrics, cfg DispatcherConfig) *Dispatcher {
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = defaultCycleTimeout
	}
	return &Dispatcher{
		store:   store,
		mq:      mq,
		limiter: limiter,
		metrics: metrics,
		cfg:     cfg,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
}

// Start launches the background dispatch loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				d.RunCycle(ctx)
			case <-d.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	slog.Info("dispatcher started", "interval", d.cfg.Interval, "batch_size", d.cfg.BatchSize)
}

// Stop halts the loop and waits for an in-flight cycle to finish.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.stop) })
	d.wg.Wait()
}

// dispatchEvent is the payload published when a review is handed to an
// inspector.
type dispatchEvent struct {
	BuildID   string `json:"build_id"`
	ProjectID string `json:"project_id"`
	TaskID    string `json:"task_id,omitempty"`
	QueueType string `json:"queue_type"`
	Priority  int    `json:"priority"`
}

// RunCycle drains up to BatchSize pending entries. A refused token ends
// the cycle early: the remaining entries stay PENDING for the next tick.
// Only one cycle runs at a time, and the whole cycle runs under
// CycleTimeout so no backend call can block it indefinitely.
func (d *Dispatcher) RunCycle(ctx context.Context) CycleResult {
	d.running.Lock()
	defer d.running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.CycleTimeout)
	defer cancel()

	start := d.now()
	var res CycleResult
	defer func() {
		if d.metrics != nil {
			d.metrics.CycleDuration.Record(ctx, d.now().Sub(start).Seconds())
		}
	}()

	entries, err := d.store.FetchPendingEntries(ctx, d.cfg.BatchSize)
	if err != nil {
		slog.Error("fetch pending entries", "error", err)
		return res
	}
	if len(entries) == 0 {
		return res
	}

	for i, entry := range entries {
		allowed, err := d.limiter.Allow(ctx)
		if err != nil {
			// A broken limiter backend must not stall every review.
			slog.Warn("rate limiter unavailable, failing open", "error", err)
			allowed = true
		}
		if !allowed {
			res.RateLimited = len(entries) - i
			if d.metrics != nil {
				d.metrics.DispatchRateLimited.Add(ctx, int64(res.RateLimited))
			}
			slog.Info("dispatch budget exhausted",
				"deferred", res.RateLimited, "dispatched", res.Dispatched)
			return res
		}

		claimed, err := d.store.MarkDispatched(ctx, entry.ID)
		if err != nil {
			slog.Error("claim queue entry", "entry_id", entry.ID, "error", err)
			res.Failed++
			continue
		}
		if !claimed {
			// Another instance claimed it first. The token is spent;
			// that is the price of optimistic claiming.
			res.Skipped++
			continue
		}

		if err := d.dispatch(ctx, entry); err != nil {
			res.Failed++
			continue
		}
		res.Dispatched++
	}

	slog.Info("dispatch cycle finished",
		"dispatched", res.Dispatched, "rate_limited", res.RateLimited,
		"skipped", res.Skipped, "failed", res.Failed)
	return res
}

// dispatch publishes the review to the inspector subject and records the
// attempt in the append-only dispatch log.
func (d *Dispatcher) dispatch(ctx context.Context, entry *queue.Entry) error {
	data, err := json.Marshal(dispatchEvent{
		BuildID:   entry.BuildID,
		ProjectID: entry.ProjectID,
		TaskID:    entry.TaskID,
		QueueType: string(entry.QueueType),
		Priority:  entry.Priority,
	})
	if err != nil {
		d.recordFailure(ctx, entry, err)
		return err
	}

	if err := d.mq.Publish(ctx, messagequeue.SubjectReviewDispatch, data); err != nil {
		d.recordFailure(ctx, entry, err)
		return err
	}

	code := 200
	d.appendDispatch(ctx, &queue.Dispatch{
		ID:             uuid.NewString(),
		QueueEntryPK:   entry.ID,
		BuildID:        entry.BuildID,
		InspectorModel: d.cfg.InspectorModel,
		Method:         d.cfg.Method,
		ResponseCode:   &code,
		ResponseBody:   "dispatched",
		CreatedAt:      d.now().UTC(),
	})
	if d.metrics != nil {
		d.metrics.ReviewsDispatched.Add(ctx, 1)
	}
	return nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, entry *queue.Entry, cause error) {
	errType := classifyDispatchError(cause)
	if err := d.store.MarkEntryFailed(ctx, entry.ID, cause.Error()); err != nil {
		slog.Error("mark entry failed", "entry_id", entry.ID, "error", err)
	}
	d.appendDispatch(ctx, &queue.Dispatch{
		ID:             uuid.NewString(),
		QueueEntryPK:   entry.ID,
		BuildID:        entry.BuildID,
		InspectorModel: d.cfg.InspectorModel,
		Method:         d.cfg.Method,
		ResponseBody:   cause.Error(),
		ErrorType:      errType,
		CreatedAt:      d.now().UTC(),
	})
	if d.metrics != nil {
		d.metrics.DispatchFailed.Add(ctx, 1)
	}
	slog.Error("dispatch failed", "entry_id", entry.ID, "build_id", entry.BuildID,
		"error_type", errType, "error", cause)
}

func (d *Dispatcher) appendDispatch(ctx context.Context, rec *queue.Dispatch) {
	if err := d.store.AppendDispatch(ctx, rec); err != nil {
		slog.Error("append dispatch record", "build_id", rec.BuildID, "error", err)
	}
}

func classifyDispatchError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return queue.ErrorTypeTimeout
	default:
		return queue.ErrorTypeDispatch
	}
}
