package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"attendance.service/internal/core/attendance"
)

// In-memory store implementations. Used by tests and by the load-test tool;
// they honor the same guarded-insert semantics as the PostgreSQL stores.

var ErrSessionNotFound = errors.New("session not found")

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*attendance.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*attendance.Session)}
}

func (s *MemorySessionStore) Save(_ context.Context, sess *attendance.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *sess
	s.sessions[sess.ID] = &copied
	return nil
}

func (s *MemorySessionStore) Update(ctx context.Context, sess *attendance.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return ErrSessionNotFound
	}
	copied := *sess
	s.sessions[sess.ID] = &copied
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (*attendance.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *sess
	return &copied, nil
}

func (s *MemorySessionStore) ListAll(_ context.Context) ([]*attendance.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*attendance.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		copied := *sess
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type MemoryAttendanceStore struct {
	mu      sync.Mutex
	records []attendance.Record
}

func NewMemoryAttendanceStore() *MemoryAttendanceStore {
	return &MemoryAttendanceStore{}
}

func (s *MemoryAttendanceStore) InsertPunchIn(_ context.Context, rec attendance.Record, dayStart, dayEnd time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.UserID == rec.UserID && existing.SessionID == rec.SessionID &&
			existing.Type == attendance.PunchIn &&
			!existing.Timestamp.Before(dayStart) && existing.Timestamp.Before(dayEnd) {
			return false, nil
		}
	}
	s.records = append(s.records, rec)
	return true, nil
}

func (s *MemoryAttendanceStore) InsertRecord(_ context.Context, rec attendance.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryAttendanceStore) DayRecords(_ context.Context, userID, sessionID string, dayStart, dayEnd time.Time) ([]attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []attendance.Record
	for _, rec := range s.records {
		if rec.UserID == userID && rec.SessionID == sessionID &&
			!rec.Timestamp.Before(dayStart) && rec.Timestamp.Before(dayEnd) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryAttendanceStore) PunchedInUsers(_ context.Context, sessionID string, from, to time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, rec := range s.records {
		if rec.SessionID == sessionID && rec.Type == attendance.PunchIn &&
			!rec.Timestamp.Before(from) && rec.Timestamp.Before(to) && !seen[rec.UserID] {
			seen[rec.UserID] = true
			out = append(out, rec.UserID)
		}
	}
	return out, nil
}

func (s *MemoryAttendanceStore) DeleteWindow(_ context.Context, sessionID string, from, to time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, rec := range s.records {
		inWindow := rec.SessionID == sessionID &&
			!rec.Timestamp.Before(from) && rec.Timestamp.Before(to)
		if !inWindow {
			kept = append(kept, rec)
		}
	}
	s.records = kept
	return nil
}

// All returns a snapshot of every stored record.
func (s *MemoryAttendanceStore) All() []attendance.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]attendance.Record, len(s.records))
	copy(out, s.records)
	return out
}

// StaticRoles is a fixed userID -> role map.
type StaticRoles map[string]attendance.Role

func (r StaticRoles) RoleOf(_ context.Context, userID string) (attendance.Role, error) {
	if role, ok := r[userID]; ok {
		return role, nil
	}
	return attendance.RoleMember, nil
}

// StaticEnrollment resolves every scope to a fixed user list.
type StaticEnrollment []string

func (e StaticEnrollment) EligibleUsers(_ context.Context, _ string) ([]string, error) {
	return e, nil
}
