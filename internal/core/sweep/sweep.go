// Package sweep reconciles unpunched enrolled users into absent records at
// session close.
package sweep

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"attendance.service/internal/core/attendance"
	"attendance.service/internal/ports/repository"
)

const maxAttempts = 5

// Sweeper creates exactly one absence record per enrolled-minus-seen user
// for a session occurrence. Store failures are retried with exponential
// backoff since the sweep is the integrity-critical half of the late
// firing.
type Sweeper struct {
	records    repository.AttendanceStore
	enrollment repository.EnrollmentProvider
}

func New(records repository.AttendanceStore, enrollment repository.EnrollmentProvider) *Sweeper {
	return &Sweeper{records: records, enrollment: enrollment}
}

func (s *Sweeper) Sweep(ctx context.Context, sess *attendance.Session, occurrenceStart time.Time) error {
	operation := func() (int, error) {
		return s.sweepOnce(ctx, sess, occurrenceStart)
	}
	marked, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxAttempts),
	)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().
		Str("session_id", sess.ID).
		Int("absent_count", marked).
		Msg("Absence sweep completed")
	return nil
}

// sweepOnce runs one pass of the set difference. The guarded punch-in
// insert makes repeated passes (and a sweep racing a live punch) write at
// most one record per user; re-firing after a restart is therefore safe.
// Early punch-ins carry timestamps before the occurrence start, so both the
// seen query and the insert guard open at start minus the early window.
func (s *Sweeper) sweepOnce(ctx context.Context, sess *attendance.Session, occurrenceStart time.Time) (int, error) {
	windowStart := occurrenceStart.Add(-sess.EarlyWindow)
	windowEnd := occurrenceStart.Add(sess.Duration)

	seenList, err := s.records.PunchedInUsers(ctx, sess.ID, windowStart, windowEnd)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(seenList))
	for _, id := range seenList {
		seen[id] = true
	}

	enrolled := sess.EnrolledUserIDs
	if len(enrolled) == 0 {
		enrolled, err = s.enrollment.EligibleUsers(ctx, sess.CategoryID)
		if err != nil {
			return 0, err
		}
	}

	marked := 0
	for _, userID := range enrolled {
		if seen[userID] {
			continue
		}
		record := attendance.Record{
			ID:        uuid.NewString(),
			UserID:    userID,
			SessionID: sess.ID,
			Type:      attendance.PunchIn,
			Timestamp: windowEnd,
			Status:    attendance.StatusAbsent,
		}
		inserted, err := s.records.InsertPunchIn(ctx, record, windowStart, windowEnd.Add(time.Nanosecond))
		if err != nil {
			return 0, err
		}
		if inserted {
			marked++
		}
	}
	return marked, nil
}
