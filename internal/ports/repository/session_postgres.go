package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"attendance.service/internal/core/attendance"
	"attendance.service/internal/core/geo"
)

// SessionRepository is the PostgreSQL SessionStore.
type SessionRepository struct {
	DB *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

// Schedule weekdays and enrolled user ids are stored as JSONB; durations as
// whole seconds.
const sessionColumns = `id, latitude, longitude, radius_m, mode, schedule_kind, start_at,
       weekdays, start_hour, start_minute, duration_secs, early_secs, late_secs,
       out_grace_secs, enrolled_user_ids, category_id, creator_id, protected, created_at`

func (r *SessionRepository) Save(ctx context.Context, s *attendance.Session) error {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.sessionId", s.ID))

	row, err := newSessionRow(s)
	if err != nil {
		return err
	}
	query := `INSERT INTO location_check_sessions (` + sessionColumns + `)
              VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`
	_, err = r.DB.ExecContext(ctx, query, row.args()...)
	return err
}

func (r *SessionRepository) Update(ctx context.Context, s *attendance.Session) error {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.sessionId", s.ID))

	row, err := newSessionRow(s)
	if err != nil {
		return err
	}
	query := `UPDATE location_check_sessions
              SET latitude = $2, longitude = $3, radius_m = $4, mode = $5,
                  schedule_kind = $6, start_at = $7, weekdays = $8,
                  start_hour = $9, start_minute = $10, duration_secs = $11,
                  early_secs = $12, late_secs = $13, out_grace_secs = $14,
                  enrolled_user_ids = $15, category_id = $16, creator_id = $17,
                  protected = $18, created_at = $19
              WHERE id = $1`
	_, err = r.DB.ExecContext(ctx, query, row.args()...)
	return err
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM location_check_sessions WHERE id = $1`, id)
	return err
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*attendance.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM location_check_sessions WHERE id = $1`
	s, err := scanSession(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

func (r *SessionRepository) ListAll(ctx context.Context) ([]*attendance.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM location_check_sessions ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*attendance.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

type sessionRow struct {
	id           string
	lat, lng     float64
	radius       float64
	mode         string
	scheduleKind sql.NullString
	startAt      sql.NullTime
	weekdays     []byte
	hour, minute int
	durationSecs int64
	earlySecs    int64
	lateSecs     int64
	outGraceSecs int64
	enrolled     []byte
	categoryID   sql.NullString
	creatorID    string
	protected    bool
	createdAt    time.Time
}

func newSessionRow(s *attendance.Session) (*sessionRow, error) {
	row := &sessionRow{
		id:           s.ID,
		lat:          s.Region.Center.Lat,
		lng:          s.Region.Center.Lng,
		radius:       s.Region.RadiusMeters,
		mode:         string(s.Mode),
		durationSecs: int64(s.Duration.Seconds()),
		earlySecs:    int64(s.EarlyWindow.Seconds()),
		lateSecs:     int64(s.LateWindow.Seconds()),
		outGraceSecs: int64(s.OutGrace.Seconds()),
		creatorID:    s.CreatorID,
		protected:    s.Protected,
		createdAt:    s.CreatedAt.UTC(),
	}
	if s.CategoryID != "" {
		row.categoryID = sql.NullString{String: s.CategoryID, Valid: true}
	}
	enrolled, err := json.Marshal(s.EnrolledUserIDs)
	if err != nil {
		return nil, err
	}
	row.enrolled = enrolled
	row.weekdays = []byte("[]")
	if s.Schedule != nil {
		row.scheduleKind = sql.NullString{String: string(s.Schedule.Kind), Valid: true}
		row.hour = s.Schedule.Hour
		row.minute = s.Schedule.Minute
		if !s.Schedule.StartAt.IsZero() {
			row.startAt = sql.NullTime{Time: s.Schedule.StartAt.UTC(), Valid: true}
		}
		weekdays, err := json.Marshal(s.Schedule.Weekdays)
		if err != nil {
			return nil, err
		}
		row.weekdays = weekdays
	}
	return row, nil
}

func (row *sessionRow) args() []any {
	return []any{
		row.id, row.lat, row.lng, row.radius, row.mode, row.scheduleKind,
		row.startAt, row.weekdays, row.hour, row.minute, row.durationSecs,
		row.earlySecs, row.lateSecs, row.outGraceSecs, row.enrolled,
		row.categoryID, row.creatorID, row.protected, row.createdAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(sc rowScanner) (*attendance.Session, error) {
	var row sessionRow
	err := sc.Scan(
		&row.id, &row.lat, &row.lng, &row.radius, &row.mode, &row.scheduleKind,
		&row.startAt, &row.weekdays, &row.hour, &row.minute, &row.durationSecs,
		&row.earlySecs, &row.lateSecs, &row.outGraceSecs, &row.enrolled,
		&row.categoryID, &row.creatorID, &row.protected, &row.createdAt,
	)
	if err != nil {
		return nil, err
	}

	s := &attendance.Session{
		ID: row.id,
		Region: geo.Region{
			Center:       geo.Point{Lat: row.lat, Lng: row.lng},
			RadiusMeters: row.radius,
		},
		Mode:        attendance.Mode(row.mode),
		Duration:    time.Duration(row.durationSecs) * time.Second,
		EarlyWindow: time.Duration(row.earlySecs) * time.Second,
		LateWindow:  time.Duration(row.lateSecs) * time.Second,
		OutGrace:    time.Duration(row.outGraceSecs) * time.Second,
		CategoryID:  row.categoryID.String,
		CreatorID:   row.creatorID,
		Protected:   row.protected,
		CreatedAt:   row.createdAt,
	}
	if err := json.Unmarshal(row.enrolled, &s.EnrolledUserIDs); err != nil {
		return nil, err
	}
	if row.scheduleKind.Valid {
		sched := &attendance.Schedule{
			Kind:   attendance.ScheduleKind(row.scheduleKind.String),
			Hour:   row.hour,
			Minute: row.minute,
		}
		if row.startAt.Valid {
			sched.StartAt = row.startAt.Time
		}
		if err := json.Unmarshal(row.weekdays, &sched.Weekdays); err != nil {
			return nil, err
		}
		s.Schedule = sched
	}
	return s, nil
}
