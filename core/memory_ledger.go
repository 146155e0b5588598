package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultMemoryDedupWindow = 7 * 24 * time.Hour

// MemoryLedgerStore is an in-process append-only ledger. Authoritative state
// is reconstructed by folding all rows for a queue id ordered by UpdatedAt,
// the same latest-row-wins resolution the SQL store applies server-side. It
// doubles as a DedupIndex for local runs and tests.
type MemoryLedgerStore struct {
	mu          sync.Mutex
	rows        []DeliveryAttempt
	dedupWindow time.Duration
	Now         func() time.Time
}

func NewMemoryLedgerStore(dedupWindow time.Duration) *MemoryLedgerStore {
	if dedupWindow <= 0 {
		dedupWindow = defaultMemoryDedupWindow
	}
	return &MemoryLedgerStore{
		dedupWindow: dedupWindow,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryLedgerStore) Append(_ context.Context, attempt DeliveryAttempt) error {
	if s == nil {
		return fmt.Errorf("core: memory ledger is not configured")
	}
	if strings.TrimSpace(attempt.QueueID) == "" {
		return fmt.Errorf("core: queue id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, attempt)
	return nil
}

func (s *MemoryLedgerStore) LatestByQueueID(_ context.Context, queueID string) (DeliveryAttempt, bool, error) {
	if s == nil {
		return DeliveryAttempt{}, false, fmt.Errorf("core: memory ledger is not configured")
	}
	queueID = strings.TrimSpace(queueID)
	if queueID == "" {
		return DeliveryAttempt{}, false, fmt.Errorf("core: queue id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest DeliveryAttempt
	found := false
	for _, row := range s.rows {
		if row.QueueID != queueID {
			continue
		}
		// Ties on updated_at go to the later append, matching the SQL
		// store's ORDER BY updated_at DESC, id DESC.
		if !found || !row.UpdatedAt.Before(latest.UpdatedAt) {
			latest = row
			found = true
		}
	}
	return latest, found, nil
}

func (s *MemoryLedgerStore) DueForRetry(_ context.Context, limit int) ([]DeliveryAttempt, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory ledger is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	latest := map[string]DeliveryAttempt{}
	for _, row := range s.rows {
		current, ok := latest[row.QueueID]
		if !ok || !row.UpdatedAt.Before(current.UpdatedAt) {
			latest[row.QueueID] = row
		}
	}

	due := make([]DeliveryAttempt, 0, len(latest))
	for _, row := range latest {
		if row.Status != DeliveryStatusPending && row.Status != DeliveryStatusFailed {
			continue
		}
		if row.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, row)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryLedgerStore) SeenEventID(_ context.Context, eventID string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("core: memory ledger is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, fmt.Errorf("core: event id is required")
	}
	cutoff := s.now().Add(-s.window())

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.EventID == eventID && !row.CreatedAt.Before(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

// Rows returns a copy of every appended row, oldest first. Diagnostics only.
func (s *MemoryLedgerStore) Rows() []DeliveryAttempt {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DeliveryAttempt(nil), s.rows...)
}

func (s *MemoryLedgerStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *MemoryLedgerStore) window() time.Duration {
	if s == nil || s.dedupWindow <= 0 {
		return defaultMemoryDedupWindow
	}
	return s.dedupWindow
}
