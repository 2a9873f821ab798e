// Package engine evaluates punch attempts against the live sessions and
// the user's punch history for the day.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"attendance.service/internal/core/attendance"
	"attendance.service/internal/core/geo"
	"attendance.service/internal/core/grace"
	"attendance.service/internal/ports/repository"
)

// SessionSource yields the live sessions in their governing order.
type SessionSource interface {
	Snapshot() []*attendance.Session
}

// PunchResult reports what a successful punch recorded.
type PunchResult struct {
	Type   attendance.PunchType `json:"type"`
	Status attendance.Status    `json:"status,omitempty"`
	Record attendance.Record    `json:"record"`
}

// Evaluator is the punch decision state machine. Per calendar day a
// (user, session) pair moves NoPunchToday -> PunchedIn -> PunchedOut and
// stops, except in full-time mode where each punch toggles in/out.
type Evaluator struct {
	sessions SessionSource
	records  repository.AttendanceStore
	roles    repository.RoleProvider
	grace    *grace.Tracker
	locks    *keyMutex
}

func New(sessions SessionSource, records repository.AttendanceStore, roles repository.RoleProvider, graceTracker *grace.Tracker) *Evaluator {
	return &Evaluator{
		sessions: sessions,
		records:  records,
		roles:    roles,
		grace:    graceTracker,
		locks:    newKeyMutex(),
	}
}

// SubmitPunch decides whether the attempt is a punch-in (early, on-time or
// late), a punch-out, or a rejection, and appends the resulting record.
func (e *Evaluator) SubmitPunch(ctx context.Context, userID string, lat, lng float64, reason string, now time.Time) (*PunchResult, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("app.userId", userID))

	role, err := e.roles.RoleOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !role.CanPunch() {
		return nil, attendance.ErrForbidden
	}

	point := geo.Point{Lat: lat, Lng: lng}
	sess := e.matchSession(point, now)
	if sess == nil {
		return nil, attendance.ErrNoActiveCheckHere
	}
	span.SetAttributes(attribute.String("app.sessionId", sess.ID))

	// Serialize the decision per (user, session) so concurrent submissions
	// cannot each observe the pre-punch state.
	unlock := e.locks.lock(userID + "|" + sess.ID)
	defer unlock()

	if sess.Mode == attendance.ModeFullTime {
		return e.toggleFullTime(ctx, sess, userID, reason, now)
	}
	return e.punchScheduled(ctx, sess, userID, point, reason, now)
}

// matchSession picks the governing session for the punch, in registry
// order. A session whose geofence contains the point wins outright; failing
// that, the first time-candidate session is matched so that punches from
// outside the fence still reach the exit flow and late punch-ins get the
// session-ended rejection. A session stops being a candidate at its sweep
// instant.
func (e *Evaluator) matchSession(point geo.Point, now time.Time) *attendance.Session {
	var fallback *attendance.Session
	for _, sess := range e.sessions.Snapshot() {
		if sess.Mode == attendance.ModeFullTime {
			// Full-time toggles are always made at the premises.
			if sess.Region.Contains(point) {
				return sess
			}
			continue
		}
		start, ok := sess.OccurrenceStart(now)
		if !ok || now.After(sess.ExpiresAt(start).Add(sess.LateWindow)) {
			continue
		}
		if sess.Region.Contains(point) {
			return sess
		}
		if fallback == nil {
			fallback = sess
		}
	}
	return fallback
}

// toggleFullTime alternates punch-in and punch-out with no status band.
func (e *Evaluator) toggleFullTime(ctx context.Context, sess *attendance.Session, userID, reason string, now time.Time) (*PunchResult, error) {
	dayStart, dayEnd := dayBounds(now)
	records, err := e.records.DayRecords(ctx, userID, sess.ID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	punchType := attendance.PunchIn
	if len(records) > 0 && records[len(records)-1].Type == attendance.PunchIn {
		punchType = attendance.PunchOut
	}

	record := attendance.Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sess.ID,
		Type:      punchType,
		Timestamp: now,
		Reason:    reason,
	}
	if err := e.records.InsertRecord(ctx, record); err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().
		Str("user_id", userID).
		Str("session_id", sess.ID).
		Str("type", string(punchType)).
		Msg("Full-time punch recorded")
	return &PunchResult{Type: punchType, Record: record}, nil
}

func (e *Evaluator) punchScheduled(ctx context.Context, sess *attendance.Session, userID string, point geo.Point, reason string, now time.Time) (*PunchResult, error) {
	start, _ := sess.OccurrenceStart(now)
	sessionEnd := sess.ExpiresAt(start)
	dayStart, dayEnd := dayBounds(now)

	records, err := e.records.DayRecords(ctx, userID, sess.ID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	punchedIn, punchedOut := punchState(records)

	switch {
	case !punchedIn:
		return e.punchIn(ctx, sess, userID, point, reason, now, start, sessionEnd, dayStart, dayEnd)
	case !punchedOut:
		return e.punchOut(ctx, sess, userID, point, reason, now)
	default:
		return nil, attendance.ErrUnableToRecordPunch
	}
}

func (e *Evaluator) punchIn(ctx context.Context, sess *attendance.Session, userID string, point geo.Point, reason string, now, start, sessionEnd, dayStart, dayEnd time.Time) (*PunchResult, error) {
	if now.After(sessionEnd) {
		return nil, attendance.ErrSessionEnded
	}
	if !sess.Region.Contains(point) {
		return nil, attendance.ErrMustBeInside
	}

	earlyStart := start.Add(-sess.EarlyWindow)
	lateEnd := start.Add(sess.LateWindow)

	status := attendance.StatusOnTime
	switch {
	case now.Before(earlyStart):
		status = attendance.StatusEarly
	case now.After(lateEnd):
		status = attendance.StatusLate
	}

	record := attendance.Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sess.ID,
		Type:      attendance.PunchIn,
		Timestamp: now,
		Status:    status,
		Reason:    reason,
	}
	inserted, err := e.records.InsertPunchIn(ctx, record, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost a race with a duplicate submission or the absence sweep.
		return nil, attendance.ErrUnableToRecordPunch
	}
	log.Ctx(ctx).Info().
		Str("user_id", userID).
		Str("session_id", sess.ID).
		Str("status", string(status)).
		Msg("Punch-in recorded")
	return &PunchResult{Type: attendance.PunchIn, Status: status, Record: record}, nil
}

// punchOut confirms an exit only after the user has stayed outside the
// geofence for the session's grace period.
func (e *Evaluator) punchOut(ctx context.Context, sess *attendance.Session, userID string, point geo.Point, reason string, now time.Time) (*PunchResult, error) {
	if sess.Region.Contains(point) {
		if err := e.grace.OnInsideObserved(ctx, userID, sess.ID); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("Failed to reset exit grace state")
		}
		return nil, attendance.ErrMustLeaveToExit
	}

	result, err := e.grace.OnOutsideObserved(ctx, userID, sess.ID, now, sess.OutGrace)
	if err != nil {
		return nil, err
	}
	if !result.Confirmed {
		return nil, &attendance.WaitError{MinutesLeft: result.MinutesLeft}
	}

	record := attendance.Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sess.ID,
		Type:      attendance.PunchOut,
		Timestamp: now,
		Reason:    reason,
	}
	if err := e.records.InsertRecord(ctx, record); err != nil {
		return nil, err
	}
	if err := e.grace.Clear(ctx, userID, sess.ID); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Failed to clear exit grace state")
	}
	log.Ctx(ctx).Info().
		Str("user_id", userID).
		Str("session_id", sess.ID).
		Msg("Punch-out recorded")
	return &PunchResult{Type: attendance.PunchOut, Record: record}, nil
}

// punchState reduces the day's records to the pair of flags driving the
// state machine. Absence records count as a punch-in; the day is terminal
// either way.
func punchState(records []attendance.Record) (punchedIn, punchedOut bool) {
	for _, rec := range records {
		switch rec.Type {
		case attendance.PunchIn:
			punchedIn = true
		case attendance.PunchOut:
			punchedOut = true
		}
	}
	return punchedIn, punchedOut
}

func dayBounds(now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return dayStart, dayStart.AddDate(0, 0, 1)
}
