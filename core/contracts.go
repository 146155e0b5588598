package core

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// LedgerStore is the append-only delivery ledger. Append never updates an
// existing row; the backing store is assumed to reject in-place updates to
// recently written rows, which is why authoritative state is resolved as
// latest-row-wins instead of a mutable job table.
type LedgerStore interface {
	Append(ctx context.Context, attempt DeliveryAttempt) error
	// LatestByQueueID returns the authoritative row for a queue id: the row
	// with the maximum UpdatedAt among all rows ever appended for it.
	LatestByQueueID(ctx context.Context, queueID string) (DeliveryAttempt, bool, error)
	// DueForRetry returns, per queue id, only the latest row, filtered to
	// status pending or failed with next_attempt_at at or before now,
	// ordered by next_attempt_at ascending.
	DueForRetry(ctx context.Context, limit int) ([]DeliveryAttempt, error)
}

// DedupIndex answers whether a business event was already delivered or
// queued within the store's dedup window. Concurrent reconciler runs
// coordinate exclusively through this surface.
type DedupIndex interface {
	SeenEventID(ctx context.Context, eventID string) (bool, error)
}

// Destination selects the outbound conversions endpoint and its credential.
type Destination struct {
	PixelID     string
	AccessToken string
}

// Sender performs one delivery attempt against the ads API. It must never
// panic or return a Go error; all failure modes are fields of SendOutcome.
type Sender interface {
	Send(ctx context.Context, dest Destination, events []ConversionEvent) SendOutcome
}

// CRMClient is the consumed contact/transaction surface of the upstream CRM.
type CRMClient interface {
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	GetContact(ctx context.Context, id int64) (Contact, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	GetOrdersByContact(ctx context.Context, contactID int64, status string) ([]Order, error)
	GetRecentTransactions(ctx context.Context, since time.Time, limit int) ([]Transaction, error)
	GetRecentTransactionsForContact(ctx context.Context, contactID int64, limit int) ([]Transaction, error)
	DetectBrandFromTags(ctx context.Context, contactID int64) (string, error)
}

// BrandResolver maps a brand to its destination credentials. Implementations
// are built from explicit configuration; there is no hidden environment
// lookup.
type BrandResolver interface {
	AccessToken(brand string) (string, bool)
	PixelID(brand string) (string, bool)
}

// TaskRunner is the single handoff boundary for detached background work.
// Detached tasks outlive the caller's request; their errors feed logging
// only, never the caller's result path. Tests inject a synchronous runner.
type TaskRunner interface {
	Detach(ctx context.Context, name string, fn func(context.Context) error)
}

// DeliveryService is the operation surface the webhook and command layers
// consume.
type DeliveryService interface {
	EnqueueAndSend(ctx context.Context, event ConversionEvent) (SendOutcome, error)
	ProcessPayment(ctx context.Context, notification PaymentNotification) error
	ReconcileDeferred(ctx context.Context, expectedCount int, knownContactID int64) error
	HandleWebhook(ctx context.Context, notifications []PaymentNotification) (WebhookSummary, error)
}

// InboundRequest is a transport-neutral inbound webhook request.
type InboundRequest struct {
	Headers http.Header
	Body    []byte
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// JobExecutionMessage mirrors the queue execution contract so hosts can ride
// delivery dispatch and reconciliation on an external job queue without core
// importing the queue library.
type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
