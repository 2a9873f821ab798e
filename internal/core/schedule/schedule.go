// Package schedule arms the phase-transition timers of location check
// sessions: an early reminder, the on-time mark and the late instant that
// also triggers the absence sweep.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"attendance.service/internal/core/attendance"
	"attendance.service/internal/core/clock"
	"attendance.service/internal/ports/messaging"
)

const fireTimeout = 30 * time.Second

// Sweeper marks unpunched enrolled users absent when a session's late
// instant fires.
type Sweeper interface {
	Sweep(ctx context.Context, sess *attendance.Session, occurrenceStart time.Time) error
}

// Scheduler owns all armed timers, keyed by session id. Arm replaces a
// session's timers wholesale; a generation counter makes sure a timer that
// was mid-fire when its session was re-armed or deleted does nothing.
type Scheduler struct {
	mu       sync.Mutex
	sessions map[string]*armedSession
	clock    clock.Clock
	notifier messaging.Notifier
	sweeper  Sweeper
}

type armedSession struct {
	generation uint64
	timers     []*time.Timer
}

// phase couples a notification phase with its offset from the session start.
type phaseSpec struct {
	phase  messaging.Phase
	sweep  bool
	offset func(s *attendance.Session) time.Duration
}

func phases() []phaseSpec {
	return []phaseSpec{
		{phase: messaging.PhaseEarly, offset: func(s *attendance.Session) time.Duration { return -s.EarlyWindow }},
		{phase: messaging.PhaseOnTime, offset: func(s *attendance.Session) time.Duration { return 0 }},
		{phase: messaging.PhaseLate, sweep: true, offset: func(s *attendance.Session) time.Duration { return s.Duration + s.LateWindow }},
	}
}

func New(clk clock.Clock, notifier messaging.Notifier, sweeper Sweeper) *Scheduler {
	return &Scheduler{
		sessions: make(map[string]*armedSession),
		clock:    clk,
		notifier: notifier,
		sweeper:  sweeper,
	}
}

// Arm validates the session's schedule and replaces any previously armed
// timers for its id. Full-time sessions carry no timers; a misconfigured
// schedule fails here, never at fire time.
func (s *Scheduler) Arm(sess *attendance.Session) error {
	if err := Validate(sess); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked(sess.ID)
	if sess.Mode == attendance.ModeFullTime {
		return nil
	}

	armed := &armedSession{generation: s.nextGeneration(sess.ID)}
	s.sessions[sess.ID] = armed

	now := s.clock.Now()
	for _, spec := range phases() {
		switch sess.Schedule.Kind {
		case attendance.ScheduleOnce:
			s.armOnceLocked(sess, armed, spec, now)
		case attendance.ScheduleWeekly:
			s.armWeeklyLocked(sess, armed, spec, now)
		}
	}
	return nil
}

// Disarm cancels all timers for the session id. Unknown ids are a no-op.
func (s *Scheduler) Disarm(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked(sessionID)
}

// Close disarms every session.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.sessions {
		s.disarmLocked(id)
	}
}

func (s *Scheduler) disarmLocked(sessionID string) {
	armed, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	for _, t := range armed.timers {
		t.Stop()
	}
	delete(s.sessions, sessionID)
}

// nextGeneration returns a generation strictly above any the session has
// used before, so stale fire callbacks can be told apart.
func (s *Scheduler) nextGeneration(sessionID string) uint64 {
	if prev, ok := s.sessions[sessionID]; ok {
		return prev.generation + 1
	}
	return uint64(time.Now().UnixNano())
}

func (s *Scheduler) armOnceLocked(sess *attendance.Session, armed *armedSession, spec phaseSpec, now time.Time) {
	start := sess.Schedule.StartAt
	fireAt := start.Add(spec.offset(sess))
	delay := fireAt.Sub(now)
	if delay < 0 {
		if !spec.sweep {
			return
		}
		// A past-due sweep still fires: a restart may have skipped it,
		// and sweeping is idempotent.
		delay = 0
	}

	gen := armed.generation
	timer := time.AfterFunc(delay, func() {
		if !s.currentGeneration(sess.ID, gen) {
			return
		}
		s.fire(sess, spec, start)
	})
	armed.timers = append(armed.timers, timer)
}

func (s *Scheduler) armWeeklyLocked(sess *attendance.Session, armed *armedSession, spec phaseSpec, now time.Time) {
	offset := spec.offset(sess)
	fireAt := nextWeeklyFire(now, sess.Schedule.Weekdays, sess.Schedule.Hour, sess.Schedule.Minute, offset)
	if fireAt.IsZero() {
		return
	}

	gen := armed.generation
	slot := len(armed.timers)
	timer := time.AfterFunc(fireAt.Sub(now), func() {
		if !s.currentGeneration(sess.ID, gen) {
			return
		}
		s.fire(sess, spec, fireAt.Add(-offset))
		s.rearmWeekly(sess, gen, spec, fireAt, slot)
	})
	armed.timers = append(armed.timers, timer)
}

// rearmWeekly schedules the phase's next weekly occurrence after a firing,
// provided the session has not been re-armed or deleted in the meantime.
// The new timer replaces the fired one in its slot so the timer set stays
// bounded over the session's lifetime.
func (s *Scheduler) rearmWeekly(sess *attendance.Session, gen uint64, spec phaseSpec, lastFire time.Time, slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	armed, ok := s.sessions[sess.ID]
	if !ok || armed.generation != gen {
		return
	}

	offset := spec.offset(sess)
	after := lastFire.Add(time.Minute)
	if now := s.clock.Now(); now.After(after) {
		after = now
	}
	fireAt := nextWeeklyFire(after, sess.Schedule.Weekdays, sess.Schedule.Hour, sess.Schedule.Minute, offset)
	if fireAt.IsZero() {
		return
	}

	timer := time.AfterFunc(fireAt.Sub(s.clock.Now()), func() {
		if !s.currentGeneration(sess.ID, gen) {
			return
		}
		s.fire(sess, spec, fireAt.Add(-offset))
		s.rearmWeekly(sess, gen, spec, fireAt, slot)
	})
	armed.timers[slot] = timer
}

func (s *Scheduler) currentGeneration(sessionID string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	armed, ok := s.sessions[sessionID]
	return ok && armed.generation == gen
}

// fire delivers the phase notification and, for the late phase, runs the
// absence sweep. Notification failures are logged and never block the
// sweep.
func (s *Scheduler) fire(sess *attendance.Session, spec phaseSpec, occurrenceStart time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	event := messaging.PhaseEvent{
		SessionID: sess.ID,
		Phase:     spec.phase,
		Scope:     sess.CategoryID,
		Message:   phaseMessage(spec.phase),
		FiredAt:   s.clock.Now(),
	}
	if err := s.notifier.NotifyPhase(ctx, event); err != nil {
		log.Error().Err(err).
			Str("session_id", sess.ID).
			Str("phase", string(spec.phase)).
			Msg("Failed to publish phase notification")
	}

	if spec.sweep {
		if err := s.sweeper.Sweep(ctx, sess, occurrenceStart); err != nil {
			log.Error().Err(err).
				Str("session_id", sess.ID).
				Msg("Absence sweep failed")
		}
	}
}

func phaseMessage(phase messaging.Phase) string {
	switch phase {
	case messaging.PhaseEarly:
		return "A location check opens soon. You can punch in early."
	case messaging.PhaseOnTime:
		return "The location check has started. Punch in now."
	case messaging.PhaseLate:
		return "The location check has closed. Unpunched members were marked absent."
	default:
		return ""
	}
}

// Validate rejects misconfigured schedules at create/update time.
func Validate(sess *attendance.Session) error {
	if sess.Mode == attendance.ModeFullTime {
		if sess.Schedule != nil {
			return attendance.ErrInvalidSchedule
		}
		return nil
	}
	if sess.Schedule == nil || sess.Duration <= 0 {
		return attendance.ErrInvalidSchedule
	}
	switch sess.Schedule.Kind {
	case attendance.ScheduleOnce:
		if sess.Schedule.StartAt.IsZero() {
			return attendance.ErrInvalidSchedule
		}
	case attendance.ScheduleWeekly:
		if len(sess.Schedule.Weekdays) == 0 {
			return attendance.ErrInvalidSchedule
		}
		if sess.Schedule.Hour < 0 || sess.Schedule.Hour > 23 ||
			sess.Schedule.Minute < 0 || sess.Schedule.Minute > 59 {
			return attendance.ErrInvalidSchedule
		}
	default:
		return attendance.ErrInvalidSchedule
	}
	return nil
}
