package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pipeline owns the write path of the delivery ledger: minting queue ids,
// appending the pending row, driving Sender attempts, and appending result
// rows with the Scheduler's computed next state. It is shared by the inline
// first-attempt path and the retry worker.
type Pipeline struct {
	ledger    LedgerStore
	sender    Sender
	brands    BrandResolver
	scheduler *DeliveryScheduler
	logger    Logger
	metrics   MetricsRecorder

	now        func() time.Time
	newQueueID func() string
}

type PipelineOption func(*Pipeline)

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if p == nil || now == nil {
			return
		}
		p.now = now
	}
}

func WithPipelineQueueIDs(mint func() string) PipelineOption {
	return func(p *Pipeline) {
		if p == nil || mint == nil {
			return
		}
		p.newQueueID = mint
	}
}

func WithPipelineMetrics(recorder MetricsRecorder) PipelineOption {
	return func(p *Pipeline) {
		if p == nil || recorder == nil {
			return
		}
		p.metrics = recorder
	}
}

func NewPipeline(
	ledger LedgerStore,
	sender Sender,
	brands BrandResolver,
	scheduler *DeliveryScheduler,
	logger Logger,
	opts ...PipelineOption,
) (*Pipeline, error) {
	if ledger == nil {
		return nil, fmt.Errorf("core: ledger store is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("core: sender is required")
	}
	if brands == nil {
		return nil, fmt.Errorf("core: brand resolver is required")
	}
	if scheduler == nil {
		scheduler = NewDeliveryScheduler(DefaultConfig().Delivery)
	}
	if logger == nil {
		logger = nopLogger()
	}
	p := &Pipeline{
		ledger:    ledger,
		sender:    sender,
		brands:    brands,
		scheduler: scheduler,
		logger:    logger,
		metrics:   NopMetricsRecorder{},
		now: func() time.Time {
			return time.Now().UTC()
		},
		newQueueID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// EnqueueAndSend appends the pending ledger row for a new event, performs
// the first delivery attempt inline, and appends the result row. The
// returned outcome is the immediate outcome of that first attempt. Ledger
// append failures are logged and never abort the flow: a lost result row
// only means the event stays visible to the retry scan, and retries are
// idempotent at the destination via the event id.
func (p *Pipeline) EnqueueAndSend(ctx context.Context, event ConversionEvent) SendOutcome {
	if p == nil || p.ledger == nil {
		return SendOutcome{Success: false, ErrorMessage: "core: pipeline is not configured"}
	}
	now := p.now()
	pending := p.attemptFromEvent(event, now)
	if err := p.ledger.Append(ctx, pending); err != nil {
		p.logger.Error("ledger append failed",
			"queue_id", pending.QueueID,
			"event_id", pending.EventID,
			"stage", "pending",
			"error", err.Error(),
		)
	}
	return p.Attempt(ctx, pending)
}

// Attempt performs one delivery attempt for the latest row of a queue id
// and appends the result row. Missing brand credentials synthesize a failed
// outcome so the event still ages through backoff and eventually
// dead-letters instead of retrying hot forever.
func (p *Pipeline) Attempt(ctx context.Context, latest DeliveryAttempt) SendOutcome {
	if p == nil || p.ledger == nil || p.sender == nil {
		return SendOutcome{Success: false, ErrorMessage: "core: pipeline is not configured"}
	}

	var outcome SendOutcome
	dest, err := p.resolveDestination(latest.Brand)
	if err != nil {
		outcome = SendOutcome{Success: false, ErrorMessage: err.Error()}
	} else {
		outcome = p.sender.Send(ctx, dest, []ConversionEvent{eventFromAttempt(latest)})
	}

	status, nextAttemptAt := p.scheduler.NextState(latest.AttemptCount, outcome.Success)

	result := latest
	result.Status = status
	result.AttemptCount = latest.AttemptCount + 1
	result.NextAttemptAt = nextAttemptAt
	if dest.PixelID != "" {
		result.PixelID = dest.PixelID
	}
	result.LastHTTPStatus = outcome.HTTPStatus
	result.LastErrorMessage = outcome.ErrorMessage
	result.LastResponseJSON = outcome.ResponseBody
	result.LastLatencyMS = outcome.LatencyMS
	result.UpdatedAt = p.now()

	if err := p.ledger.Append(ctx, result); err != nil {
		// The row's scan position does not advance, so the next tick simply
		// retries the same attempt.
		p.logger.Error("ledger append failed",
			"queue_id", result.QueueID,
			"event_id", result.EventID,
			"stage", "result",
			"error", err.Error(),
		)
	}

	p.metrics.IncCounter(ctx, "delivery.attempt.total", 1, map[string]string{
		"brand":  latest.Brand,
		"status": string(status),
	})
	return outcome
}

func (p *Pipeline) resolveDestination(brand string) (Destination, error) {
	pixelID, ok := p.brands.PixelID(brand)
	if !ok {
		return Destination{}, fmt.Errorf("core: no pixel id credential configured for brand %q", brand)
	}
	token, ok := p.brands.AccessToken(brand)
	if !ok {
		return Destination{PixelID: pixelID}, fmt.Errorf("core: no access token credential configured for brand %q", brand)
	}
	return Destination{PixelID: pixelID, AccessToken: token}, nil
}

func (p *Pipeline) attemptFromEvent(event ConversionEvent, now time.Time) DeliveryAttempt {
	pixelID, _ := p.brands.PixelID(event.Brand)
	return DeliveryAttempt{
		QueueID:        p.newQueueID(),
		Source:         event.Source,
		Brand:          strings.TrimSpace(event.Brand),
		EventName:      event.Name,
		Email:          event.Email,
		EmailHash:      event.EmailHash,
		KeapContactID:  event.KeapContactID,
		OrderID:        event.OrderID,
		EventID:        event.EventID,
		PixelID:        pixelID,
		EventTime:      event.EventTime.UTC(),
		ActionSource:   event.ActionSource,
		EventSourceURL: event.EventSourceURL,
		Payload:        copyAnyMap(event.Payload),
		Status:         DeliveryStatusPending,
		AttemptCount:   0,
		NextAttemptAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func eventFromAttempt(attempt DeliveryAttempt) ConversionEvent {
	return ConversionEvent{
		Source:         attempt.Source,
		Brand:          attempt.Brand,
		Name:           attempt.EventName,
		EventID:        attempt.EventID,
		EventTime:      attempt.EventTime,
		ActionSource:   attempt.ActionSource,
		EventSourceURL: attempt.EventSourceURL,
		Email:          attempt.Email,
		EmailHash:      attempt.EmailHash,
		KeapContactID:  attempt.KeapContactID,
		OrderID:        attempt.OrderID,
		Payload:        copyAnyMap(attempt.Payload),
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
