package attendance

import (
	"time"

	"attendance.service/internal/core/geo"
)

// Mode controls how a session treats punches. Normal sessions have a
// start, a duration and status bands; full-time sessions are always open
// and simply toggle in/out.
type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeFullTime Mode = "full-time"
)

// ScheduleKind distinguishes a one-shot session from a weekly recurring one.
type ScheduleKind string

const (
	ScheduleOnce   ScheduleKind = "once"
	ScheduleWeekly ScheduleKind = "weekly"
)

// Schedule describes when a normal-mode session opens. For Once, StartAt is
// the single start instant. For Weekly, Weekdays plus Hour:Minute give the
// recurring time of day.
type Schedule struct {
	Kind     ScheduleKind   `json:"kind"`
	StartAt  time.Time      `json:"startAt,omitempty"`
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
	Hour     int            `json:"hour"`
	Minute   int            `json:"minute"`
}

// Session is a scheduled, geofenced attendance window.
// Schedule is nil exactly when Mode is full-time.
type Session struct {
	ID          string        `json:"id"`
	Region      geo.Region    `json:"region"`
	Mode        Mode          `json:"mode"`
	Schedule    *Schedule     `json:"schedule,omitempty"`
	Duration    time.Duration `json:"duration"`
	EarlyWindow time.Duration `json:"earlyWindow"`
	LateWindow  time.Duration `json:"lateWindow"`
	OutGrace    time.Duration `json:"outGrace"`
	// EnrolledUserIDs empty means "all eligible users" in the session's scope.
	EnrolledUserIDs []string  `json:"enrolledUserIds,omitempty"`
	CategoryID      string    `json:"categoryId,omitempty"`
	CreatorID       string    `json:"creatorId"`
	Protected       bool      `json:"protected"`
	CreatedAt       time.Time `json:"createdAt"`
}

// OccurrenceStart resolves the session's start instant governing a punch at
// now. A once session always has its fixed start. A weekly session has an
// occurrence only on one of its configured weekdays, at the configured time
// of day. Full-time sessions have no start.
func (s *Session) OccurrenceStart(now time.Time) (time.Time, bool) {
	if s.Mode == ModeFullTime || s.Schedule == nil {
		return time.Time{}, false
	}
	switch s.Schedule.Kind {
	case ScheduleOnce:
		return s.Schedule.StartAt, true
	case ScheduleWeekly:
		for _, wd := range s.Schedule.Weekdays {
			if now.Weekday() == wd {
				y, m, d := now.Date()
				return time.Date(y, m, d, s.Schedule.Hour, s.Schedule.Minute, 0, 0, now.Location()), true
			}
		}
	}
	return time.Time{}, false
}

// ExpiresAt is the end of the occurrence starting at start. Full-time
// sessions never expire.
func (s *Session) ExpiresAt(start time.Time) time.Time {
	return start.Add(s.Duration)
}

// PunchType is the direction of an attendance record.
type PunchType string

const (
	PunchIn  PunchType = "punch-in"
	PunchOut PunchType = "punch-out"
)

// Status is the band a punch-in landed in. Punch-outs and full-time records
// carry no status.
type Status string

const (
	StatusEarly  Status = "early"
	StatusOnTime Status = "on-time"
	StatusLate   Status = "late"
	StatusAbsent Status = "absent"
	StatusNone   Status = ""
)

// Record is an immutable attendance ledger entry. SessionID is empty for
// records produced by the QR-token flow, which shares this shape and sets
// QRTokenID instead.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	SessionID string    `json:"sessionId,omitempty"`
	QRTokenID string    `json:"qrTokenId,omitempty"`
	Type      PunchType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}
