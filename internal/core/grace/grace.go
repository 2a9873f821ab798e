// Package grace tracks the debounce window between a punched-in user
// leaving the geofence and the confirmed automatic punch-out.
package grace

import (
	"context"
	"math"
	"time"
)

// Store keeps the first-exit timestamp per (user, session). State exists
// only between the first outside observation and either a confirmed
// punch-out or a re-entry.
type Store interface {
	Get(ctx context.Context, userID, sessionID string) (time.Time, bool, error)
	Set(ctx context.Context, userID, sessionID string, exitAt time.Time, ttl time.Duration) error
	Clear(ctx context.Context, userID, sessionID string) error
}

// Result of an outside observation.
type Result struct {
	Confirmed   bool
	MinutesLeft int
}

// Tracker decides when an outside-radius observation becomes a confirmed
// punch-out.
type Tracker struct {
	store Store
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// OnOutsideObserved records or advances the exit debounce for the pair.
// The first observation starts the window and reports the full grace period
// remaining. Later observations report the minutes left, rounded up, until
// the observation at or past the deadline confirms the exit. The caller
// clears the state after committing the punch-out.
func (t *Tracker) OnOutsideObserved(ctx context.Context, userID, sessionID string, now time.Time, gracePeriod time.Duration) (Result, error) {
	exitAt, ok, err := t.store.Get(ctx, userID, sessionID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		// Keep the entry around a little past the deadline so a slow
		// confirming observation still finds it.
		if err := t.store.Set(ctx, userID, sessionID, now, gracePeriod*2); err != nil {
			return Result{}, err
		}
		return Result{MinutesLeft: ceilMinutes(gracePeriod)}, nil
	}

	graceUntil := exitAt.Add(gracePeriod)
	if !now.Before(graceUntil) {
		return Result{Confirmed: true}, nil
	}
	return Result{MinutesLeft: ceilMinutes(graceUntil.Sub(now))}, nil
}

// OnInsideObserved resets the debounce; a re-entry forgives the exit.
func (t *Tracker) OnInsideObserved(ctx context.Context, userID, sessionID string) error {
	return t.store.Clear(ctx, userID, sessionID)
}

// Clear drops any tracked exit for the pair.
func (t *Tracker) Clear(ctx context.Context, userID, sessionID string) error {
	return t.store.Clear(ctx, userID, sessionID)
}

func ceilMinutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}
