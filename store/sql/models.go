package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type deliveryAttemptRecord struct {
	bun.BaseModel `bun:"table:conversion_delivery_attempts,alias:cda"`

	ID               string         `bun:"id,pk"`
	QueueID          string         `bun:"queue_id,notnull"`
	Source           string         `bun:"source,notnull"`
	Brand            string         `bun:"brand"`
	EventName        string         `bun:"event_name,notnull"`
	Email            string         `bun:"email"`
	EmailHash        string         `bun:"email_hash"`
	KeapContactID    int64          `bun:"keap_contact_id"`
	OrderID          int64          `bun:"order_id"`
	EventID          string         `bun:"event_id"`
	PixelID          string         `bun:"pixel_id"`
	EventTime        time.Time      `bun:"event_time,nullzero"`
	ActionSource     string         `bun:"action_source"`
	EventSourceURL   string         `bun:"event_source_url"`
	Payload          map[string]any `bun:"payload,type:jsonb"`
	Status           string         `bun:"status,notnull"`
	AttemptCount     int            `bun:"attempt_count,notnull"`
	NextAttemptAt    *time.Time     `bun:"next_attempt_at,nullzero"`
	LastHTTPStatus   int            `bun:"last_http_status"`
	LastErrorMessage string         `bun:"last_error_message"`
	LastResponseJSON string         `bun:"last_response_json"`
	LastLatencyMS    int64          `bun:"last_latency_ms"`
	CreatedAt        time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
