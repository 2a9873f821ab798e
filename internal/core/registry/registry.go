// Package registry holds the live location check session definitions and
// coordinates their durable storage with timer (re-)arming.
package registry

import (
	"context"
	"time"

	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"attendance.service/internal/core/attendance"
	"attendance.service/internal/core/clock"
	"attendance.service/internal/core/geo"
	"attendance.service/internal/core/schedule"
	"attendance.service/internal/ports/repository"
)

// SessionSpec is the caller-supplied definition of a session.
type SessionSpec struct {
	Region          geo.Region           `json:"region"`
	Mode            attendance.Mode      `json:"mode"`
	Schedule        *attendance.Schedule `json:"schedule,omitempty"`
	DurationMin     int                  `json:"durationMinutes"`
	EarlyWindowMin  int                  `json:"earlyWindowMinutes"`
	LateWindowMin   int                  `json:"lateWindowMinutes"`
	OutGraceMin     int                  `json:"outGraceMinutes"`
	EnrolledUserIDs []string             `json:"enrolledUserIds,omitempty"`
	CategoryID      string               `json:"categoryId,omitempty"`
	Protected       bool                 `json:"protected,omitempty"`
}

// Registry keeps sessions in creation order, mirrored to the SessionStore.
// Every create or update re-arms the scheduler; cancel and delete tear the
// timers down.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	sessions map[string]*attendance.Session

	store   repository.SessionStore
	records repository.AttendanceStore
	sched   *schedule.Scheduler
	clock   clock.Clock
}

func New(store repository.SessionStore, records repository.AttendanceStore, sched *schedule.Scheduler, clk clock.Clock) *Registry {
	return &Registry{
		sessions: make(map[string]*attendance.Session),
		store:    store,
		records:  records,
		sched:    sched,
		clock:    clk,
	}
}

// Restore loads all stored sessions and re-arms their timers. Past-due
// sweeps re-fire; the sweeper is idempotent so a restart cannot double-mark
// anyone absent.
func (r *Registry) Restore(ctx context.Context) error {
	stored, err := r.store.ListAll(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sess := range stored {
		if err := r.sched.Arm(sess); err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID).Msg("Skipping stored session with invalid schedule")
			continue
		}
		r.sessions[sess.ID] = sess
		r.order = append(r.order, sess.ID)
	}
	log.Info().Int("count", len(r.sessions)).Msg("Restored location check sessions")
	return nil
}

// Create validates the spec, persists the session and arms its timers.
func (r *Registry) Create(ctx context.Context, creatorID string, spec SessionSpec) (*attendance.Session, error) {
	sess := sessionFromSpec(spec)
	sess.ID = uuid.NewString()
	sess.CreatorID = creatorID
	sess.CreatedAt = r.clock.Now()

	if err := schedule.Validate(sess); err != nil {
		return nil, err
	}
	if err := r.store.Save(ctx, sess); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sched.Arm(sess); err != nil {
		return nil, err
	}
	r.sessions[sess.ID] = sess
	r.order = append(r.order, sess.ID)
	return sess, nil
}

// Update replaces the session definition and re-arms its timers. The
// scheduler cancels the old timers first, so a v1 phase armed before the
// update can never fire afterwards.
func (r *Registry) Update(ctx context.Context, id string, spec SessionSpec) (*attendance.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}

	sess := sessionFromSpec(spec)
	sess.ID = id
	sess.CreatorID = existing.CreatorID
	sess.CreatedAt = existing.CreatedAt

	if err := schedule.Validate(sess); err != nil {
		return nil, err
	}
	if err := r.store.Update(ctx, sess); err != nil {
		return nil, err
	}
	if err := r.sched.Arm(sess); err != nil {
		return nil, err
	}
	r.sessions[id] = sess
	return sess, nil
}

// Cancel tears down the session's timers without touching stored records.
// Unknown ids are a no-op.
func (r *Registry) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sched.Disarm(id)
	r.removeLocked(id)
}

// Delete cancels the session and removes it durably. For normal mode the
// attendance records of the most recent occurrence go with it, whether or
// not the deletion happens on an occurrence day.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		r.sched.Disarm(id)
		r.removeLocked(id)
	}
	r.mu.Unlock()

	if !ok {
		var err error
		sess, err = r.store.Get(ctx, id)
		if err != nil {
			return err
		}
	}

	if sess.Mode == attendance.ModeNormal {
		if start, ok := lastOccurrenceStart(sess, r.clock.Now()); ok {
			// Early punches land before the start and the absence records
			// sit exactly on the occurrence end, so widen both bounds.
			from := start.Add(-sess.EarlyWindow)
			to := sess.ExpiresAt(start).Add(time.Nanosecond)
			if err := r.records.DeleteWindow(ctx, id, from, to); err != nil {
				return err
			}
		}
	}
	return r.store.Delete(ctx, id)
}

// lastOccurrenceStart resolves the latest occurrence start at or before
// now. A once session keeps its fixed start. A weekly session scans back up
// to a week, so deleting on a non-occurrence day still finds the last run.
func lastOccurrenceStart(sess *attendance.Session, now time.Time) (time.Time, bool) {
	if sess.Schedule == nil {
		return time.Time{}, false
	}
	switch sess.Schedule.Kind {
	case attendance.ScheduleOnce:
		return sess.Schedule.StartAt, true
	case attendance.ScheduleWeekly:
		for back := 0; back <= 7; back++ {
			day := now.AddDate(0, 0, -back)
			for _, wd := range sess.Schedule.Weekdays {
				if day.Weekday() != wd {
					continue
				}
				y, m, d := day.Date()
				start := time.Date(y, m, d, sess.Schedule.Hour, sess.Schedule.Minute, 0, 0, day.Location())
				if !start.After(now) {
					return start, true
				}
			}
		}
	}
	return time.Time{}, false
}

// Get returns the live session for id.
func (r *Registry) Get(id string) (*attendance.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Snapshot returns the live sessions in creation order; punch evaluation
// iterates this to pick the first geofence match.
func (r *Registry) Snapshot() []*attendance.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*attendance.Session, 0, len(r.order))
	for _, id := range r.order {
		if sess, ok := r.sessions[id]; ok {
			out = append(out, sess)
		}
	}
	return out
}

// ListActive returns sessions whose occurrence window contains now.
// Full-time sessions are always active once created.
func (r *Registry) ListActive(now time.Time) []*attendance.Session {
	var active []*attendance.Session
	for _, sess := range r.Snapshot() {
		if sess.Mode == attendance.ModeFullTime {
			active = append(active, sess)
			continue
		}
		start, ok := sess.OccurrenceStart(now)
		if !ok {
			continue
		}
		if !now.Before(start) && now.Before(sess.ExpiresAt(start)) {
			active = append(active, sess)
		}
	}
	return active
}

func (r *Registry) removeLocked(id string) {
	delete(r.sessions, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func sessionFromSpec(spec SessionSpec) *attendance.Session {
	return &attendance.Session{
		Region:          spec.Region,
		Mode:            spec.Mode,
		Schedule:        spec.Schedule,
		Duration:        time.Duration(spec.DurationMin) * time.Minute,
		EarlyWindow:     time.Duration(spec.EarlyWindowMin) * time.Minute,
		LateWindow:      time.Duration(spec.LateWindowMin) * time.Minute,
		OutGrace:        time.Duration(spec.OutGraceMin) * time.Minute,
		EnrolledUserIDs: spec.EnrolledUserIDs,
		CategoryID:      spec.CategoryID,
		Protected:       spec.Protected,
	}
}
