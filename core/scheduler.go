package core

import (
	"math/rand"
	"time"
)

// DeliveryScheduler decides status transitions after each delivery attempt.
// NextState is the only state-transition authority in the pipeline: every
// appended result row goes through it, including synthesized failures for
// unresolvable brand credentials.
type DeliveryScheduler struct {
	MaxAttempts int
	BackoffCap  time.Duration
	JitterMax   time.Duration
	Now         func() time.Time
	Jitter      func(max time.Duration) time.Duration
}

func NewDeliveryScheduler(cfg DeliveryConfig) *DeliveryScheduler {
	defaults := DefaultConfig().Delivery
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.BackoffCapMinutes <= 0 {
		cfg.BackoffCapMinutes = defaults.BackoffCapMinutes
	}
	if cfg.JitterMaxSeconds < 0 {
		cfg.JitterMaxSeconds = defaults.JitterMaxSeconds
	}
	return &DeliveryScheduler{
		MaxAttempts: cfg.MaxAttempts,
		BackoffCap:  time.Duration(cfg.BackoffCapMinutes) * time.Minute,
		JitterMax:   time.Duration(cfg.JitterMaxSeconds) * time.Second,
		Now: func() time.Time {
			return time.Now().UTC()
		},
		Jitter: uniformJitter,
	}
}

// NextState computes the status and next attempt time after one attempt.
// priorAttempts is the attempt count before the attempt being recorded, so
// the recorded row carries priorAttempts+1.
func (s *DeliveryScheduler) NextState(priorAttempts int, success bool) (DeliveryStatus, time.Time) {
	now := s.now()
	if success {
		return DeliveryStatusSent, now
	}
	attempt := priorAttempts + 1
	if attempt >= s.maxAttempts() {
		return DeliveryStatusDead, now
	}
	return DeliveryStatusFailed, now.Add(s.BackoffDelay(attempt) + s.jitter())
}

// BackoffDelay returns min(2^attempt, cap) minutes for a 1-indexed attempt,
// before jitter. The cap bounds worst-case time-to-delivery for a transient
// outage while still backing off aggressively early.
func (s *DeliveryScheduler) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	cap := s.BackoffCap
	if cap <= 0 {
		cap = time.Duration(DefaultConfig().Delivery.BackoffCapMinutes) * time.Minute
	}
	minutes := time.Minute
	for i := 0; i < attempt; i++ {
		minutes *= 2
		if minutes >= cap {
			return cap
		}
	}
	return minutes
}

func (s *DeliveryScheduler) maxAttempts() int {
	if s == nil || s.MaxAttempts <= 0 {
		return DefaultConfig().Delivery.MaxAttempts
	}
	return s.MaxAttempts
}

func (s *DeliveryScheduler) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *DeliveryScheduler) jitter() time.Duration {
	if s == nil || s.JitterMax <= 0 {
		return 0
	}
	jitter := s.Jitter
	if jitter == nil {
		jitter = uniformJitter
	}
	return jitter(s.JitterMax)
}

// uniformJitter spreads simultaneous failures so a provider outage does not
// produce a synchronized retry storm.
func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
