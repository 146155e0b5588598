package core

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service wires the classifier, delivery pipeline, and reconciler behind the
// operations the webhook surface consumes. Nothing in here surfaces an error
// back to the original webhook caller: the caller always gets an ack, and
// internal failures are observable only through logs and the ledger's
// terminal rows.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper

	ledger     LedgerStore
	dedup      DedupIndex
	sender     Sender
	crm        CRMClient
	brands     BrandResolver
	scheduler  *DeliveryScheduler
	classifier *Classifier
	pipeline   *Pipeline
	reconciler *Reconciler
	tasks      TaskRunner
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("amare", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("amare"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = deliveryErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	loaded, err := builder.configProvider.Load(context.Background(), DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("core: load config: %w", err)
	}
	resolved, err := builder.optionsResolver.Resolve(DefaultConfig(), loaded, cfg)
	if err != nil {
		return nil, fmt.Errorf("core: resolve config: %w", err)
	}

	if builder.ledger == nil {
		return nil, fmt.Errorf("core: ledger store is required")
	}
	if builder.sender == nil {
		return nil, fmt.Errorf("core: sender is required")
	}
	if builder.crm == nil {
		return nil, fmt.Errorf("core: crm client is required")
	}
	if builder.dedup == nil {
		if index, ok := builder.ledger.(DedupIndex); ok {
			builder.dedup = index
		} else {
			return nil, fmt.Errorf("core: dedup index is required")
		}
	}
	if builder.brands == nil {
		builder.brands = NewStaticBrandResolver(resolved.Brands)
	}
	if builder.tasks == nil {
		builder.tasks = GoTaskRunner{Logger: logger}
	}
	if builder.scheduler == nil {
		builder.scheduler = NewDeliveryScheduler(resolved.Delivery)
	}

	classifier, err := NewClassifier(builder.crm, logger)
	if err != nil {
		return nil, err
	}
	pipeline, err := NewPipeline(
		builder.ledger,
		builder.sender,
		builder.brands,
		builder.scheduler,
		logger,
		WithPipelineMetrics(builder.metricsRecorder),
	)
	if err != nil {
		return nil, err
	}
	reconciler, err := NewReconciler(
		builder.crm,
		builder.dedup,
		classifier,
		pipeline,
		builder.tasks,
		logger,
		resolved.Reconcile,
		builder.reconcilerOpts...,
	)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:          resolved,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		ledger:          builder.ledger,
		dedup:           builder.dedup,
		sender:          builder.sender,
		crm:             builder.crm,
		brands:          builder.brands,
		scheduler:       builder.scheduler,
		classifier:      classifier,
		pipeline:        pipeline,
		reconciler:      reconciler,
		tasks:           builder.tasks,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Pipeline() *Pipeline {
	if s == nil {
		return nil
	}
	return s.pipeline
}

func (s *Service) Ledger() LedgerStore {
	if s == nil {
		return nil
	}
	return s.ledger
}

// EnqueueAndSend appends a new event and performs its first delivery
// attempt inline, returning that attempt's outcome.
func (s *Service) EnqueueAndSend(ctx context.Context, event ConversionEvent) (SendOutcome, error) {
	if s == nil || s.pipeline == nil {
		return SendOutcome{}, fmt.Errorf("core: service is not configured")
	}
	if event.Name == "" {
		return SendOutcome{}, s.mapError(fmt.Errorf("core: event name is required"))
	}
	startedAt := time.Now()
	outcome := s.pipeline.EnqueueAndSend(ctx, event)
	s.observeOperation(ctx, startedAt, "enqueue_and_send", nil, map[string]any{
		"brand":      event.Brand,
		"source":     string(event.Source),
		"event_name": string(event.Name),
		"event_id":   event.EventID,
		"success":    outcome.Success,
	})
	return outcome, nil
}

// ProcessPayment classifies one resolved payment and dispatches the derived
// event. A Skip classification dispatches nothing and is not an error.
func (s *Service) ProcessPayment(ctx context.Context, notification PaymentNotification) error {
	if s == nil || s.classifier == nil {
		return fmt.Errorf("core: service is not configured")
	}
	if notification.IsPlaceholder() {
		return s.mapError(fmt.Errorf("core: placeholder notifications require reconciliation, not direct processing"))
	}

	startedAt := time.Now()
	event, classification, err := s.classifier.Classify(ctx, notification.PaymentID)
	if err != nil {
		s.observeOperation(ctx, startedAt, "process_payment", err, map[string]any{
			"payment_id": notification.PaymentID,
		})
		return s.mapError(err)
	}
	if classification.Decision == DecisionSkip {
		s.observeOperation(ctx, startedAt, "process_payment", nil, map[string]any{
			"payment_id": notification.PaymentID,
			"decision":   string(classification.Decision),
		})
		return nil
	}
	outcome := s.pipeline.EnqueueAndSend(ctx, event)
	s.observeOperation(ctx, startedAt, "process_payment", nil, map[string]any{
		"payment_id": notification.PaymentID,
		"decision":   string(classification.Decision),
		"event_id":   event.EventID,
		"success":    outcome.Success,
	})
	return nil
}

// ReconcileDeferred starts a detached reconciliation run for placeholder
// notifications received in one webhook call.
func (s *Service) ReconcileDeferred(ctx context.Context, expectedCount int, knownContactID int64) error {
	if s == nil || s.reconciler == nil {
		return fmt.Errorf("core: service is not configured")
	}
	if err := s.reconciler.ReconcileDeferred(ctx, expectedCount, knownContactID); err != nil {
		return s.mapError(err)
	}
	return nil
}

// HandleWebhook splits one webhook call's notifications between the
// immediate pipeline and deferred reconciliation. All heavy work is
// detached; the summary reflects intake, not delivery outcomes, so the
// webhook response stays inside the provider's ack timeout.
func (s *Service) HandleWebhook(ctx context.Context, notifications []PaymentNotification) (WebhookSummary, error) {
	if s == nil || s.tasks == nil {
		return WebhookSummary{}, fmt.Errorf("core: service is not configured")
	}

	summary := WebhookSummary{Received: len(notifications)}
	var knownContactID int64
	for _, notification := range notifications {
		if notification.IsPlaceholder() {
			summary.Placeholders++
			continue
		}
		if knownContactID == 0 && notification.ContactID > 0 {
			knownContactID = notification.ContactID
		}
		summary.Processed++
		resolved := notification
		s.tasks.Detach(ctx, "process_payment", func(taskCtx context.Context) error {
			return s.ProcessPayment(taskCtx, resolved)
		})
	}

	if summary.Placeholders > 0 {
		if err := s.ReconcileDeferred(ctx, summary.Placeholders, knownContactID); err != nil {
			// Never propagated to the webhook caller; the ack stands.
			s.logError(ctx, "reconcile dispatch failed", map[string]any{
				"placeholders": summary.Placeholders,
				"error":        err.Error(),
			})
		}
	}
	return summary, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

// ErrorMapper normalizes internal failures into categorized envelopes.
type ErrorMapper func(err error) *goerrors.Error

func nopLogger() Logger {
	return glog.Nop()
}
