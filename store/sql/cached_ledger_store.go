package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ckgmra/amare-api/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const ledgerLatestCacheKeyPrefix = "amare::ledger_latest::v1"

type cachedLatestRow struct {
	Attempt core.DeliveryAttempt
	Found   bool
}

// LedgerBackend is the store surface the cache wraps. Both
// *DeliveryLedgerStore and core.MemoryLedgerStore satisfy it.
type LedgerBackend interface {
	core.LedgerStore
	core.DedupIndex
}

// CachedDeliveryLedgerStore layers a read cache over the latest-row lookup.
// Appends invalidate the queue id's entry, so readers observe a new result
// row at the next lookup. DueForRetry and SeenEventID always hit the base
// store: retry scans and dedup checks must see the newest rows.
type CachedDeliveryLedgerStore struct {
	base  LedgerBackend
	cache repositorycache.CacheService
}

func NewCachedDeliveryLedgerStore(
	base LedgerBackend,
	cacheService repositorycache.CacheService,
) (*CachedDeliveryLedgerStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base delivery ledger store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: ledger cache service is required")
	}
	return &CachedDeliveryLedgerStore{base: base, cache: cacheService}, nil
}

// LedgerLatestCacheKey returns the cache key contract for latest-row reads:
// amare::ledger_latest::v1::<queue_id> with the queue id URL-path escaped.
func LedgerLatestCacheKey(queueID string) (string, error) {
	queueID = strings.TrimSpace(queueID)
	if queueID == "" {
		return "", fmt.Errorf("sqlstore: queue id is required")
	}
	return ledgerLatestCacheKeyPrefix + "::" + url.PathEscape(queueID), nil
}

func (s *CachedDeliveryLedgerStore) Append(ctx context.Context, attempt core.DeliveryAttempt) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached delivery ledger store is not configured")
	}
	if err := s.base.Append(ctx, attempt); err != nil {
		return err
	}
	cacheKey, err := LedgerLatestCacheKey(attempt.QueueID)
	if err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return err
	}
	return nil
}

func (s *CachedDeliveryLedgerStore) LatestByQueueID(ctx context.Context, queueID string) (core.DeliveryAttempt, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.DeliveryAttempt{}, false, fmt.Errorf("sqlstore: cached delivery ledger store is not configured")
	}
	cacheKey, err := LedgerLatestCacheKey(queueID)
	if err != nil {
		return core.DeliveryAttempt{}, false, err
	}

	row, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (cachedLatestRow, error) {
		attempt, found, fetchErr := s.base.LatestByQueueID(ctx, queueID)
		if fetchErr != nil {
			return cachedLatestRow{}, fetchErr
		}
		return cachedLatestRow{Attempt: attempt, Found: found}, nil
	})
	if err != nil {
		return core.DeliveryAttempt{}, false, err
	}
	return row.Attempt, row.Found, nil
}

func (s *CachedDeliveryLedgerStore) DueForRetry(ctx context.Context, limit int) ([]core.DeliveryAttempt, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached delivery ledger store is not configured")
	}
	return s.base.DueForRetry(ctx, limit)
}

func (s *CachedDeliveryLedgerStore) SeenEventID(ctx context.Context, eventID string) (bool, error) {
	if s == nil || s.base == nil {
		return false, fmt.Errorf("sqlstore: cached delivery ledger store is not configured")
	}
	return s.base.SeenEventID(ctx, eventID)
}
