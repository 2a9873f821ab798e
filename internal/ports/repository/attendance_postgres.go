package repository

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"attendance.service/internal/core/attendance"
)

// AttendanceRepository is the PostgreSQL AttendanceStore.
type AttendanceRepository struct {
	DB *sql.DB
}

func NewAttendanceRepository(db *sql.DB) *AttendanceRepository {
	return &AttendanceRepository{DB: db}
}

// InsertPunchIn appends the record only if the user has no punch-in for the
// session within the day window. The guarded INSERT makes concurrent
// duplicate punches and re-fired absence sweeps write at most one row.
func (r *AttendanceRepository) InsertPunchIn(ctx context.Context, rec attendance.Record, dayStart, dayEnd time.Time) (bool, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("app.userId", rec.UserID),
		attribute.String("app.sessionId", rec.SessionID),
	)

	query := `INSERT INTO attendance_records (id, user_id, session_id, qr_token_id, type, timestamp, status, reason)
              SELECT $1, $2, $3, $4, $5, $6, $7, $8
              WHERE NOT EXISTS (
                  SELECT 1 FROM attendance_records
                  WHERE user_id = $2 AND session_id = $3 AND type = $5
                    AND timestamp >= $9 AND timestamp < $10
              )`
	result, err := r.DB.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.SessionID, nullable(rec.QRTokenID),
		string(rec.Type), rec.Timestamp.UTC(), nullable(string(rec.Status)),
		nullable(rec.Reason), dayStart.UTC(), dayEnd.UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *AttendanceRepository) InsertRecord(ctx context.Context, rec attendance.Record) error {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.userId", rec.UserID))

	query := `INSERT INTO attendance_records (id, user_id, session_id, qr_token_id, type, timestamp, status, reason)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.DB.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.SessionID, nullable(rec.QRTokenID),
		string(rec.Type), rec.Timestamp.UTC(), nullable(string(rec.Status)),
		nullable(rec.Reason),
	)
	return err
}

func (r *AttendanceRepository) DayRecords(ctx context.Context, userID, sessionID string, dayStart, dayEnd time.Time) ([]attendance.Record, error) {
	query := `SELECT id, user_id, session_id, COALESCE(qr_token_id, ''), type, timestamp,
                     COALESCE(status, ''), COALESCE(reason, '')
              FROM attendance_records
              WHERE user_id = $1 AND session_id = $2 AND timestamp >= $3 AND timestamp < $4
              ORDER BY timestamp`
	rows, err := r.DB.QueryContext(ctx, query, userID, sessionID, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []attendance.Record
	for rows.Next() {
		var rec attendance.Record
		var typ, status string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &rec.QRTokenID,
			&typ, &rec.Timestamp, &status, &rec.Reason); err != nil {
			return nil, err
		}
		rec.Type = attendance.PunchType(typ)
		rec.Status = attendance.Status(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *AttendanceRepository) PunchedInUsers(ctx context.Context, sessionID string, from, to time.Time) ([]string, error) {
	query := `SELECT DISTINCT user_id FROM attendance_records
              WHERE session_id = $1 AND type = $2 AND timestamp >= $3 AND timestamp < $4`
	rows, err := r.DB.QueryContext(ctx, query, sessionID, string(attendance.PunchIn), from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (r *AttendanceRepository) DeleteWindow(ctx context.Context, sessionID string, from, to time.Time) error {
	query := `DELETE FROM attendance_records
              WHERE session_id = $1 AND timestamp >= $2 AND timestamp < $3`
	_, err := r.DB.ExecContext(ctx, query, sessionID, from.UTC(), to.UTC())
	return err
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
