// Package worker drives scheduled retries of failed deliveries. A single
// RetryWorker owns the periodic scan of the ledger's due rows; hosts run one
// per process and point it at the shared pipeline.
package worker
