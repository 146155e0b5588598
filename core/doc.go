// Package core contains the canonical delivery-pipeline contracts, entities,
// and orchestration logic: the append-only delivery ledger model, the
// retry/backoff scheduler, the payment classifier, and the placeholder-id
// reconciler. Lower-level adapters must depend on this package; core must not
// depend on storage-specific or transport-specific adapters.
package core
