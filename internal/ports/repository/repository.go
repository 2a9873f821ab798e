// Package repository defines the durable store contracts the engine
// consumes, plus their PostgreSQL implementations.
package repository

import (
	"context"
	"time"

	"attendance.service/internal/core/attendance"
)

// SessionStore is durable CRUD for location check sessions.
type SessionStore interface {
	Save(ctx context.Context, s *attendance.Session) error
	Update(ctx context.Context, s *attendance.Session) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*attendance.Session, error)
	// ListAll returns every stored session in creation order. Used to
	// rebuild the in-memory registry and re-arm timers on startup.
	ListAll(ctx context.Context) ([]*attendance.Session, error)
}

// AttendanceStore is durable append of attendance records.
type AttendanceStore interface {
	// InsertPunchIn appends a punch-in unless the user already has one for
	// this session within [dayStart, dayEnd). Reports whether a row was
	// written; the guarded insert is what makes concurrent duplicate
	// punches and repeated absence sweeps safe.
	InsertPunchIn(ctx context.Context, rec attendance.Record, dayStart, dayEnd time.Time) (bool, error)
	// InsertRecord appends a record unconditionally (punch-outs and
	// full-time toggles).
	InsertRecord(ctx context.Context, rec attendance.Record) error
	// DayRecords returns the user's records for a session within
	// [dayStart, dayEnd), oldest first.
	DayRecords(ctx context.Context, userID, sessionID string, dayStart, dayEnd time.Time) ([]attendance.Record, error)
	// PunchedInUsers returns the distinct user ids with a punch-in for the
	// session within [from, to).
	PunchedInUsers(ctx context.Context, sessionID string, from, to time.Time) ([]string, error)
	// DeleteWindow removes the session's records with timestamps in
	// [from, to). Used when a normal-mode session is deleted.
	DeleteWindow(ctx context.Context, sessionID string, from, to time.Time) error
}

// EnrollmentProvider resolves "all eligible users" for a session scope at
// sweep time. An empty categoryID means the global scope.
type EnrollmentProvider interface {
	EligibleUsers(ctx context.Context, categoryID string) ([]string, error)
}

// RoleProvider supplies the caller's role before any punch or session
// management operation runs.
type RoleProvider interface {
	RoleOf(ctx context.Context, userID string) (attendance.Role, error)
}
