package webhooks

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ckgmra/amare-api/core"
	glog "github.com/goliatone/go-logger/glog"
)

const hookSecretHeader = "X-Hook-Secret"

// Verifier authenticates an inbound hook delivery before any payload
// parsing happens.
type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

// HookSecretVerifier checks the shared-secret header the CRM attaches to
// every REST hook delivery.
type HookSecretVerifier struct {
	Secret string
}

func (v HookSecretVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	if strings.TrimSpace(v.Secret) == "" {
		return webhookUnauthorizedError("webhooks: hook secret is not configured")
	}
	presented := ""
	if req.Headers != nil {
		presented = strings.TrimSpace(req.Headers.Get(hookSecretHeader))
	}
	if presented == "" {
		return webhookUnauthorizedError("webhooks: hook secret header is missing")
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(v.Secret)) != 1 {
		return webhookUnauthorizedError("webhooks: hook secret mismatch")
	}
	return nil
}

type hookObjectKey struct {
	ID        int64  `json:"id"`
	ContactID int64  `json:"contactId"`
	Timestamp string `json:"timestamp"`
	APIURL    string `json:"apiUrl"`
}

type hookPayload struct {
	EventKey   string          `json:"event_key"`
	ObjectType string          `json:"object_type"`
	ObjectKeys []hookObjectKey `json:"object_keys"`
}

// ParseNotifications decodes a REST hook body into payment notifications.
// Placeholder ids (0) are preserved so the service can route them to
// reconciliation.
func ParseNotifications(body []byte) ([]core.PaymentNotification, error) {
	if len(body) == 0 {
		return nil, webhookBadPayloadError("webhooks: request body is empty")
	}
	var payload hookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, webhookBadPayloadError(fmt.Sprintf("webhooks: decode hook payload: %v", err))
	}
	notifications := make([]core.PaymentNotification, 0, len(payload.ObjectKeys))
	for _, key := range payload.ObjectKeys {
		if key.ID < 0 {
			return nil, webhookBadPayloadError(fmt.Sprintf("webhooks: invalid object key id %d", key.ID))
		}
		notifications = append(notifications, core.PaymentNotification{
			PaymentID: key.ID,
			ContactID: key.ContactID,
		})
	}
	return notifications, nil
}

// Processor turns verified hook deliveries into service calls. Delivery
// failures downstream never reach the hook response, only the logs.
type Processor struct {
	Verifier Verifier
	Service  core.DeliveryService
	Logger   core.Logger
	Now      func() time.Time
}

func NewProcessor(service core.DeliveryService, verifier Verifier, logger core.Logger) (*Processor, error) {
	if service == nil {
		return nil, fmt.Errorf("webhooks: delivery service is required")
	}
	if logger == nil {
		logger = glog.Nop()
	}
	return &Processor{
		Verifier: verifier,
		Service:  service,
		Logger:   logger,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Service == nil {
		return core.InboundResult{}, fmt.Errorf("webhooks: processor requires a delivery service")
	}

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, req); err != nil {
			return core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusUnauthorized,
				Metadata: map[string]any{
					"rejected": true,
				},
			}, err
		}
	}

	// Subscription verification handshake: the provider POSTs an empty
	// body and expects the secret header echoed back.
	if len(req.Body) == 0 {
		secret := ""
		if req.Headers != nil {
			secret = strings.TrimSpace(req.Headers.Get(hookSecretHeader))
		}
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"verification": true,
				"hook_secret":  secret,
			},
		}, nil
	}

	notifications, err := ParseNotifications(req.Body)
	if err != nil {
		return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusBadRequest,
			Metadata: map[string]any{
				"rejected": true,
			},
		}, err
	}

	started := p.now()
	summary, err := p.Service.HandleWebhook(ctx, notifications)
	if err != nil {
		// The provider must still get an ack or it disables the
		// subscription. The failure stays in the logs and the ledger.
		p.logger().Error("webhook processing failed",
			"error", err,
			"received", len(notifications),
		)
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"received": len(notifications),
				"degraded": true,
			},
		}, nil
	}

	p.logger().Info("webhook processed",
		"received", summary.Received,
		"processed", summary.Processed,
		"placeholders", summary.Placeholders,
		"elapsed_ms", p.now().Sub(started).Milliseconds(),
	)
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"received":     summary.Received,
			"processed":    summary.Processed,
			"placeholders": summary.Placeholders,
		},
	}, nil
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) logger() core.Logger {
	if p != nil && p.Logger != nil {
		return p.Logger
	}
	return glog.Nop()
}
