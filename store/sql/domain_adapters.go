package sqlstore

import (
	"strings"
	"time"

	"github.com/ckgmra/amare-api/core"
	"github.com/google/uuid"
)

func newDeliveryAttemptRecord(attempt core.DeliveryAttempt, now time.Time) *deliveryAttemptRecord {
	createdAt := attempt.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := attempt.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}
	record := &deliveryAttemptRecord{
		ID:               uuid.NewString(),
		QueueID:          strings.TrimSpace(attempt.QueueID),
		Source:           string(attempt.Source),
		Brand:            strings.TrimSpace(attempt.Brand),
		EventName:        string(attempt.EventName),
		Email:            attempt.Email,
		EmailHash:        attempt.EmailHash,
		KeapContactID:    attempt.KeapContactID,
		OrderID:          attempt.OrderID,
		EventID:          strings.TrimSpace(attempt.EventID),
		PixelID:          strings.TrimSpace(attempt.PixelID),
		ActionSource:     attempt.ActionSource,
		EventSourceURL:   attempt.EventSourceURL,
		Payload:          copyAnyMap(attempt.Payload),
		Status:           string(attempt.Status),
		AttemptCount:     attempt.AttemptCount,
		LastHTTPStatus:   attempt.LastHTTPStatus,
		LastErrorMessage: attempt.LastErrorMessage,
		LastResponseJSON: attempt.LastResponseJSON,
		LastLatencyMS:    attempt.LastLatencyMS,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}
	if !attempt.EventTime.IsZero() {
		record.EventTime = attempt.EventTime.UTC()
	}
	if !attempt.NextAttemptAt.IsZero() {
		at := attempt.NextAttemptAt.UTC()
		record.NextAttemptAt = &at
	}
	return record
}

func (r *deliveryAttemptRecord) toDomain() core.DeliveryAttempt {
	if r == nil {
		return core.DeliveryAttempt{}
	}
	attempt := core.DeliveryAttempt{
		QueueID:          r.QueueID,
		Source:           core.EventSource(r.Source),
		Brand:            r.Brand,
		EventName:        core.EventName(r.EventName),
		Email:            r.Email,
		EmailHash:        r.EmailHash,
		KeapContactID:    r.KeapContactID,
		OrderID:          r.OrderID,
		EventID:          r.EventID,
		PixelID:          r.PixelID,
		EventTime:        r.EventTime,
		ActionSource:     r.ActionSource,
		EventSourceURL:   r.EventSourceURL,
		Payload:          copyAnyMap(r.Payload),
		Status:           core.DeliveryStatus(r.Status),
		AttemptCount:     r.AttemptCount,
		LastHTTPStatus:   r.LastHTTPStatus,
		LastErrorMessage: r.LastErrorMessage,
		LastResponseJSON: r.LastResponseJSON,
		LastLatencyMS:    r.LastLatencyMS,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.NextAttemptAt != nil {
		attempt.NextAttemptAt = r.NextAttemptAt.UTC()
	}
	return attempt
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
