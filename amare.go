package amare

import (
	"github.com/ckgmra/amare-api/core"
	sqlstore "github.com/ckgmra/amare-api/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
)

type Config = core.Config

type DeliveryConfig = core.DeliveryConfig

type ReconcileConfig = core.ReconcileConfig

type BrandConfig = core.BrandConfig

type Option = core.Option

type Service = core.Service

type ConversionEvent = core.ConversionEvent
type PaymentNotification = core.PaymentNotification
type DeliveryAttempt = core.DeliveryAttempt
type SendOutcome = core.SendOutcome
type WebhookSummary = core.WebhookSummary
type RetrySummary = core.RetrySummary

type LedgerStore = core.LedgerStore
type DedupIndex = core.DedupIndex
type Sender = core.Sender
type CRMClient = core.CRMClient
type BrandResolver = core.BrandResolver
type DeliveryService = core.DeliveryService

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithLedgerStore       = core.WithLedgerStore
	WithDedupIndex        = core.WithDedupIndex
	WithSender            = core.WithSender
	WithCRMClient         = core.WithCRMClient
	WithBrandResolver     = core.WithBrandResolver
	WithTaskRunner        = core.WithTaskRunner
	WithScheduler         = core.WithScheduler
	WithReconcilerOptions = core.WithReconcilerOptions
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

// Setup wires the SQL ledger behind a persistence client and builds the
// delivery service on top of it. Hosts that manage their own stores use
// NewService with explicit options instead.
func Setup(cfg Config, client *persistence.Client, opts ...Option) (*Service, error) {
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return nil, err
	}
	merged := make([]Option, 0, len(opts)+2)
	merged = append(merged,
		core.WithLedgerStore(factory.LedgerStore()),
		core.WithDedupIndex(factory.DedupIndex()),
	)
	merged = append(merged, opts...)
	return core.NewService(cfg, merged...)
}
