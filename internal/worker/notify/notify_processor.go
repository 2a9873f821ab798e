// Package notify consumes phase events from the notification queue and
// fans them out to the scope's audience. Delivery latency and failures
// stay decoupled from the scheduler this way.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"attendance.service/internal/ports/messaging"
)

// Processor handles jobs from the notification queue. A circuit breaker
// protects the mail provider when it is having issues.
type Processor struct {
	mailer Mailer
	domain string
	cb     *gobreaker.CircuitBreaker
}

// NewProcessor sets up a notification processor with a circuit breaker
// around the delivery call.
func NewProcessor(mailer Mailer, domain string) *Processor {
	settings := gobreaker.Settings{
		Name:        "Phase-Mailer",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip when the failure rate passes 50% over at least 10 requests
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
	}

	return &Processor{
		mailer: mailer,
		domain: domain,
		cb:     gobreaker.NewCircuitBreaker(settings),
	}
}

// Process delivers one phase event. Malformed messages are dropped;
// delivery failures are retried with exponential backoff via the queue's
// visibility timeout.
func (p *Processor) Process(ctx context.Context, msg types.Message) (bool, int32, error) {
	var event messaging.PhaseEvent
	if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to unmarshal phase event")
		return false, 0, err // Do not retry on malformed message
	}

	retries := receiveAttempts(msg)
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, p.mailer.SendPhaseNotice(ctx, p.audienceAddress(event.Scope), event)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			log.Ctx(ctx).Warn().Msg("Circuit breaker is OPEN; skipping mail delivery")
		}
		return true, calculateBackoff(retries + 1), err
	}

	log.Ctx(ctx).Info().
		Str("session_id", event.SessionID).
		Str("phase", string(event.Phase)).
		Msg("Phase notification delivered")
	return false, 0, nil
}

// audienceAddress maps a scope to its distribution address: a category
// alias, or the members list for the global scope.
func (p *Processor) audienceAddress(scope string) string {
	if scope == "" {
		return "members@" + p.domain
	}
	return scope + "@" + p.domain
}

func receiveAttempts(msg types.Message) int {
	attr, ok := msg.Attributes["ApproximateReceiveCount"]
	if !ok {
		return 0
	}
	count, err := strconv.Atoi(attr)
	if err != nil {
		return 0
	}
	return count
}

// calculateBackoff increases the retry delay exponentially, capped at an
// hour.
func calculateBackoff(retryCount int) int32 {
	backoff := int32(math.Pow(2, float64(retryCount)) * 10)
	if backoff > 3600 {
		return 3600
	}
	return backoff
}
