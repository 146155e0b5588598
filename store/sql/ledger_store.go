package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ckgmra/amare-api/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

const defaultDedupWindow = 7 * 24 * time.Hour

// DeliveryLedgerStore persists delivery attempts as append-only rows and
// answers the latest-row-wins queries the pipeline and retry worker need.
// It also serves as the dedup index: an event id counts as seen when any
// row within the dedup window carries it, regardless of delivery outcome.
type DeliveryLedgerStore struct {
	db          *bun.DB
	repo        repository.Repository[*deliveryAttemptRecord]
	dedupWindow time.Duration
	now         func() time.Time
}

type LedgerOption func(*DeliveryLedgerStore)

func WithDedupWindow(window time.Duration) LedgerOption {
	return func(s *DeliveryLedgerStore) {
		if s == nil || window <= 0 {
			return
		}
		s.dedupWindow = window
	}
}

func WithClock(now func() time.Time) LedgerOption {
	return func(s *DeliveryLedgerStore) {
		if s == nil || now == nil {
			return
		}
		s.now = now
	}
}

func NewDeliveryLedgerStore(db *bun.DB, opts ...LedgerOption) (*DeliveryLedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryAttemptRecord](db, deliveryAttemptHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery ledger repository wiring: %w", err)
		}
	}
	store := &DeliveryLedgerStore{
		db:          db,
		repo:        repo,
		dedupWindow: defaultDedupWindow,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Append inserts one row. There is no update path on purpose; correcting a
// row means appending a newer one for the same queue id.
func (s *DeliveryLedgerStore) Append(ctx context.Context, attempt core.DeliveryAttempt) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: delivery ledger store is not configured")
	}
	if strings.TrimSpace(attempt.QueueID) == "" {
		return fmt.Errorf("sqlstore: queue id is required")
	}
	if strings.TrimSpace(string(attempt.Status)) == "" {
		return fmt.Errorf("sqlstore: delivery status is required")
	}
	record := newDeliveryAttemptRecord(attempt, s.nowUTC())
	_, err := s.repo.Create(ctx, record)
	if err != nil {
		return fmt.Errorf("sqlstore: append delivery attempt: %w", err)
	}
	return nil
}

func (s *DeliveryLedgerStore) LatestByQueueID(ctx context.Context, queueID string) (core.DeliveryAttempt, bool, error) {
	if s == nil || s.db == nil {
		return core.DeliveryAttempt{}, false, fmt.Errorf("sqlstore: delivery ledger store is not configured")
	}
	queueID = strings.TrimSpace(queueID)
	if queueID == "" {
		return core.DeliveryAttempt{}, false, fmt.Errorf("sqlstore: queue id is required")
	}

	record := &deliveryAttemptRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("cda.queue_id = ?", queueID).
		OrderExpr("cda.updated_at DESC").
		OrderExpr("cda.id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.DeliveryAttempt{}, false, nil
		}
		return core.DeliveryAttempt{}, false, fmt.Errorf("sqlstore: latest delivery attempt: %w", err)
	}
	return record.toDomain(), true, nil
}

// DueForRetry resolves each queue id to its latest row and returns the rows
// still waiting for an attempt. A queue id whose latest row is sent or dead
// never appears, no matter how many retryable rows sit beneath it.
func (s *DeliveryLedgerStore) DueForRetry(ctx context.Context, limit int) ([]core.DeliveryAttempt, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery ledger store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now := s.nowUTC()

	var records []deliveryAttemptRecord
	query := `
SELECT
	cda.id,
	cda.queue_id,
	cda.source,
	cda.brand,
	cda.event_name,
	cda.email,
	cda.email_hash,
	cda.keap_contact_id,
	cda.order_id,
	cda.event_id,
	cda.pixel_id,
	cda.event_time,
	cda.action_source,
	cda.event_source_url,
	cda.payload,
	cda.status,
	cda.attempt_count,
	cda.next_attempt_at,
	cda.last_http_status,
	cda.last_error_message,
	cda.last_response_json,
	cda.last_latency_ms,
	cda.created_at,
	cda.updated_at
FROM conversion_delivery_attempts AS cda
WHERE cda.updated_at = (
	SELECT MAX(prior.updated_at)
	FROM conversion_delivery_attempts AS prior
	WHERE prior.queue_id = cda.queue_id
)
  AND cda.status IN (?, ?)
  AND cda.next_attempt_at IS NOT NULL
  AND cda.next_attempt_at <= ?
ORDER BY cda.next_attempt_at ASC
LIMIT ?
`
	err := s.db.NewRaw(
		query,
		string(core.DeliveryStatusPending),
		string(core.DeliveryStatusFailed),
		now,
		limit,
	).Scan(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: scan due deliveries: %w", err)
	}

	due := make([]core.DeliveryAttempt, 0, len(records))
	for i := range records {
		due = append(due, records[i].toDomain())
	}
	return due, nil
}

// SeenEventID reports whether any ledger row within the dedup window carries
// the event id. Rows count from their first append, so a queue id mid-retry
// still blocks a duplicate enqueue.
func (s *DeliveryLedgerStore) SeenEventID(ctx context.Context, eventID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: delivery ledger store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, fmt.Errorf("sqlstore: event id is required")
	}
	cutoff := s.nowUTC().Add(-s.window())

	exists, err := s.db.NewSelect().
		Model((*deliveryAttemptRecord)(nil)).
		Where("cda.event_id = ?", eventID).
		Where("cda.created_at >= ?", cutoff).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("sqlstore: dedup lookup: %w", err)
	}
	return exists, nil
}

func (s *DeliveryLedgerStore) nowUTC() time.Time {
	if s != nil && s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *DeliveryLedgerStore) window() time.Duration {
	if s == nil || s.dedupWindow <= 0 {
		return defaultDedupWindow
	}
	return s.dedupWindow
}
