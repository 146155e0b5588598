package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ckgmra/amare-api/core"
)

// RetryWorker periodically scans the ledger for due deliveries and re-drives
// them through the pipeline. Ticks are single-flight: a slow batch causes
// the next tick to be skipped rather than stacking concurrent scans, which
// keeps the ledger's latest-row-wins resolution free of same-row races from
// a single process.
type RetryWorker struct {
	ledger    core.LedgerStore
	pipeline  *core.Pipeline
	logger    core.Logger
	metrics   core.MetricsRecorder
	interval  time.Duration
	batchSize int

	running atomic.Bool
}

type Option func(*RetryWorker)

func WithLogger(logger core.Logger) Option {
	return func(w *RetryWorker) {
		if w == nil || logger == nil {
			return
		}
		w.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(w *RetryWorker) {
		if w == nil || recorder == nil {
			return
		}
		w.metrics = recorder
	}
}

func New(ledger core.LedgerStore, pipeline *core.Pipeline, cfg core.DeliveryConfig, opts ...Option) (*RetryWorker, error) {
	if ledger == nil {
		return nil, fmt.Errorf("worker: ledger store is required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("worker: pipeline is required")
	}
	defaults := core.DefaultConfig().Delivery
	if cfg.TickIntervalSeconds <= 0 {
		cfg.TickIntervalSeconds = defaults.TickIntervalSeconds
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	w := &RetryWorker{
		ledger:    ledger,
		pipeline:  pipeline,
		logger:    nil,
		metrics:   core.NopMetricsRecorder{},
		interval:  time.Duration(cfg.TickIntervalSeconds) * time.Second,
		batchSize: cfg.BatchSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run blocks, ticking at the configured interval until ctx is canceled.
func (w *RetryWorker) Run(ctx context.Context) error {
	if w == nil {
		return fmt.Errorf("worker: retry worker is not configured")
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Tick(ctx); err != nil {
				w.logWarn("retry tick failed", "error", err.Error())
			}
		}
	}
}

// Tick performs one scan-and-retry pass. A tick that finds a pass already
// in flight returns immediately with an empty summary. Per-row failures do
// not abort the batch; each due row gets its attempt and the ledger records
// whatever happened.
func (w *RetryWorker) Tick(ctx context.Context) (core.RetrySummary, error) {
	if w == nil || w.ledger == nil {
		return core.RetrySummary{}, fmt.Errorf("worker: retry worker is not configured")
	}
	if !w.running.CompareAndSwap(false, true) {
		return core.RetrySummary{}, nil
	}
	defer w.running.Store(false)

	due, err := w.ledger.DueForRetry(ctx, w.batchSize)
	if err != nil {
		return core.RetrySummary{}, fmt.Errorf("worker: scan due deliveries: %w", err)
	}

	summary := core.RetrySummary{}
	for _, row := range due {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		outcome := w.pipeline.Attempt(ctx, row)
		summary.Processed++
		switch {
		case outcome.Success:
			summary.Sent++
		default:
			latest, found, lookupErr := w.ledger.LatestByQueueID(ctx, row.QueueID)
			if lookupErr != nil || !found {
				summary.Failed++
				continue
			}
			if latest.Status == core.DeliveryStatusDead {
				summary.Dead++
			} else {
				summary.Failed++
			}
		}
	}

	if summary.Processed > 0 {
		w.logInfo("retry pass complete",
			"processed", summary.Processed,
			"sent", summary.Sent,
			"failed", summary.Failed,
			"dead", summary.Dead,
		)
	}
	w.metrics.IncCounter(ctx, "delivery.retry.processed", int64(summary.Processed), nil)
	w.metrics.IncCounter(ctx, "delivery.retry.dead", int64(summary.Dead), nil)
	return summary, nil
}

func (w *RetryWorker) logInfo(message string, args ...any) {
	if w == nil || w.logger == nil {
		return
	}
	w.logger.Info(message, args...)
}

func (w *RetryWorker) logWarn(message string, args ...any) {
	if w == nil || w.logger == nil {
		return
	}
	w.logger.Warn(message, args...)
}
