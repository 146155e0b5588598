package core

import (
	"context"
	"fmt"
	"time"
)

// Reconciler resolves webhook notifications that arrived with a placeholder
// payment id (0). It polls the CRM for freshly created transactions and
// diffs them against the dedup index until the expected number of new
// transactions is found or its attempt ladder is exhausted. One reconciler
// run exists per webhook call; concurrent runs coordinate only through the
// dedup index, never through mutual exclusion.
type Reconciler struct {
	crm        CRMClient
	dedup      DedupIndex
	classifier *Classifier
	pipeline   *Pipeline
	tasks      TaskRunner
	logger     Logger

	contactDelays []time.Duration
	globalDelays  []time.Duration
	lookback      time.Duration
	scanLimit     int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type ReconcilerOption func(*Reconciler)

func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if r == nil || now == nil {
			return
		}
		r.now = now
	}
}

// WithReconcilerSleep replaces the inter-attempt delay. Tests use it to run
// the ladder without waiting.
func WithReconcilerSleep(sleep func(ctx context.Context, d time.Duration) error) ReconcilerOption {
	return func(r *Reconciler) {
		if r == nil || sleep == nil {
			return
		}
		r.sleep = sleep
	}
}

func NewReconciler(
	crm CRMClient,
	dedup DedupIndex,
	classifier *Classifier,
	pipeline *Pipeline,
	tasks TaskRunner,
	logger Logger,
	cfg ReconcileConfig,
	opts ...ReconcilerOption,
) (*Reconciler, error) {
	if crm == nil {
		return nil, fmt.Errorf("core: crm client is required")
	}
	if dedup == nil {
		return nil, fmt.Errorf("core: dedup index is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("core: classifier is required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("core: pipeline is required")
	}
	if tasks == nil {
		tasks = GoTaskRunner{Logger: logger}
	}
	if logger == nil {
		logger = nopLogger()
	}
	defaults := DefaultConfig().Reconcile
	if len(cfg.ContactDelaysSeconds) == 0 {
		cfg.ContactDelaysSeconds = defaults.ContactDelaysSeconds
	}
	if len(cfg.GlobalDelaysSeconds) == 0 {
		cfg.GlobalDelaysSeconds = defaults.GlobalDelaysSeconds
	}
	if cfg.LookbackMinutes <= 0 {
		cfg.LookbackMinutes = defaults.LookbackMinutes
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = defaults.ScanLimit
	}
	r := &Reconciler{
		crm:           crm,
		dedup:         dedup,
		classifier:    classifier,
		pipeline:      pipeline,
		tasks:         tasks,
		logger:        logger,
		contactDelays: secondsToDurations(cfg.ContactDelaysSeconds),
		globalDelays:  secondsToDurations(cfg.GlobalDelaysSeconds),
		lookback:      time.Duration(cfg.LookbackMinutes) * time.Minute,
		scanLimit:     cfg.ScanLimit,
		now: func() time.Time {
			return time.Now().UTC()
		},
		sleep: sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// ReconcileDeferred detaches one reconciliation run for expectedCount
// placeholder notifications. knownContactID scopes the CRM scan when a
// sibling notification in the same webhook call carried a real contact id;
// pass 0 to scan globally.
func (r *Reconciler) ReconcileDeferred(ctx context.Context, expectedCount int, knownContactID int64) error {
	if r == nil || r.tasks == nil {
		return fmt.Errorf("core: reconciler is not configured")
	}
	if expectedCount < 1 {
		return fmt.Errorf("core: expected count must be >= 1")
	}
	r.tasks.Detach(ctx, "reconcile_deferred", func(taskCtx context.Context) error {
		_, err := r.Run(taskCtx, expectedCount, knownContactID)
		return err
	})
	return nil
}

// Run executes the reconciliation ladder synchronously and returns how many
// placeholder notifications were resolved to real transactions. Exhaustion
// is not an error: the run logs a warning and gives up, accepting that the
// event is lost unless a later webhook call rediscovers it.
func (r *Reconciler) Run(ctx context.Context, expectedCount int, knownContactID int64) (int, error) {
	if r == nil || r.crm == nil {
		return 0, fmt.Errorf("core: reconciler is not configured")
	}
	if expectedCount < 1 {
		return 0, fmt.Errorf("core: expected count must be >= 1")
	}

	delays := r.globalDelays
	scope := "global"
	if knownContactID > 0 {
		delays = r.contactDelays
		scope = "contact"
	}

	resolved := map[int64]bool{}
	for attempt, delay := range delays {
		if err := r.sleep(ctx, delay); err != nil {
			return len(resolved), err
		}

		transactions, err := r.scan(ctx, knownContactID)
		if err != nil {
			r.logger.Warn("reconcile scan failed",
				"attempt", attempt+1,
				"scope", scope,
				"error", err.Error(),
			)
			continue
		}

		for _, txn := range transactions {
			if txn.ID == 0 || resolved[txn.ID] {
				continue
			}
			seen, seenErr := r.dedup.SeenEventID(ctx, PurchaseEventID(txn.ID))
			if seenErr != nil {
				r.logger.Warn("dedup lookup failed",
					"transaction_id", txn.ID,
					"error", seenErr.Error(),
				)
				continue
			}
			if seen {
				continue
			}

			r.process(ctx, txn)
			resolved[txn.ID] = true
			if len(resolved) >= expectedCount {
				r.logger.Info("reconciliation resolved all placeholders",
					"scope", scope,
					"expected", expectedCount,
					"attempts", attempt+1,
				)
				return len(resolved), nil
			}
		}
	}

	r.logger.Warn("reconciliation exhausted",
		"scope", scope,
		"expected", expectedCount,
		"resolved", len(resolved),
		"attempts", len(delays),
	)
	return len(resolved), nil
}

func (r *Reconciler) scan(ctx context.Context, knownContactID int64) ([]Transaction, error) {
	if knownContactID > 0 {
		return r.crm.GetRecentTransactionsForContact(ctx, knownContactID, r.scanLimit)
	}
	since := r.nowUTC().Add(-r.lookback)
	return r.crm.GetRecentTransactions(ctx, since, r.scanLimit)
}

// process feeds one resolved transaction through the same classifier and
// pipeline path a real-id notification takes.
func (r *Reconciler) process(ctx context.Context, txn Transaction) {
	event, classification, err := r.classifier.Classify(ctx, txn.ID)
	if err != nil {
		r.logger.Warn("reconciled transaction classification failed",
			"transaction_id", txn.ID,
			"error", err.Error(),
		)
		return
	}
	if classification.Decision == DecisionSkip {
		return
	}
	outcome := r.pipeline.EnqueueAndSend(ctx, event)
	r.logger.Info("reconciled transaction dispatched",
		"transaction_id", txn.ID,
		"event_id", event.EventID,
		"event_name", string(event.Name),
		"success", outcome.Success,
	)
}

func (r *Reconciler) nowUTC() time.Time {
	if r != nil && r.now != nil {
		return r.now().UTC()
	}
	return time.Now().UTC()
}

func secondsToDurations(seconds []int) []time.Duration {
	out := make([]time.Duration, 0, len(seconds))
	for _, s := range seconds {
		if s < 0 {
			s = 0
		}
		out = append(out, time.Duration(s)*time.Second)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
