package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"campusattend/internal/attendance"
)

const recordColumns = `id, session_id, student_id, checked_in_at, latitude, longitude,
	distance_meters, mock_location, velocity_mps, fraud_score, is_flagged,
	flag_reason, ip_address, device_info`

// GetRecord returns the student's check-in for a session.
func (s *Store) GetRecord(ctx context.Context, sessionID, studentID string) (attendance.Record, error) {
	var rec attendance.Record
	err := s.db.GetContext(ctx, &rec, s.rebind(`
		SELECT `+recordColumns+` FROM attendance_records
		WHERE session_id = ? AND student_id = ?
	`), sessionID, studentID)
	if err != nil {
		return attendance.Record{}, notFound(err, "attendance record")
	}
	return rec, nil
}

// LatestRecord returns the student's most recent check-in in any session.
func (s *Store) LatestRecord(ctx context.Context, studentID string) (attendance.Record, error) {
	var rec attendance.Record
	err := s.db.GetContext(ctx, &rec, s.rebind(`
		SELECT `+recordColumns+` FROM attendance_records
		WHERE student_id = ?
		ORDER BY checked_in_at DESC
		LIMIT 1
	`), studentID)
	if err != nil {
		return attendance.Record{}, notFound(err, "attendance record")
	}
	return rec, nil
}

// InsertRecord writes rec while holding the session row, so a concurrent
// close cannot slip between the status check and the insert. The unique
// (session_id, student_id) constraint settles racing check-ins.
func (s *Store) InsertRecord(ctx context.Context, rec attendance.Record) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		lock := ""
		if s.driver == DriverPostgres {
			lock = " FOR SHARE"
		}
		var status attendance.SessionStatus
		err := tx.GetContext(ctx, &status, tx.Rebind(`SELECT status FROM attendance_sessions WHERE id = ?`+lock), rec.SessionID)
		if err != nil {
			return notFound(err, "session "+rec.SessionID)
		}
		if status != attendance.SessionOpen {
			return errors.Wrapf(attendance.ErrSessionClosed, "session is %s", status)
		}

		var one int
		err = tx.GetContext(ctx, &one, tx.Rebind(`
			SELECT 1 FROM attendance_records WHERE session_id = ? AND student_id = ?
		`), rec.SessionID, rec.StudentID)
		switch {
		case err == nil:
			return errors.Wrap(attendance.ErrConflict, "already checked in")
		case !errors.Is(err, sql.ErrNoRows):
			return errors.Wrap(err, "check existing record")
		}

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO attendance_records (`+recordColumns+`)
			VALUES (:id, :session_id, :student_id, :checked_in_at, :latitude, :longitude,
				:distance_meters, :mock_location, :velocity_mps, :fraud_score, :is_flagged,
				:flag_reason, :ip_address, :device_info)
		`, rec)
		if isUniqueViolation(err) {
			return errors.Wrap(attendance.ErrConflict, "already checked in")
		}
		return errors.Wrap(err, "insert record")
	})
}

// ListRecordsBySession returns a session's check-ins, newest first.
func (s *Store) ListRecordsBySession(ctx context.Context, sessionID string) ([]attendance.Record, error) {
	out := []attendance.Record{}
	err := s.db.SelectContext(ctx, &out, s.rebind(`
		SELECT `+recordColumns+` FROM attendance_records
		WHERE session_id = ?
		ORDER BY checked_in_at DESC
	`), sessionID)
	return out, errors.Wrap(err, "list records")
}

// ListRecordsByStudent pages through a student's check-ins, newest first.
func (s *Store) ListRecordsByStudent(ctx context.Context, studentID string, limit, offset int) ([]attendance.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	out := []attendance.Record{}
	err := s.db.SelectContext(ctx, &out, s.rebind(`
		SELECT `+recordColumns+` FROM attendance_records
		WHERE student_id = ?
		ORDER BY checked_in_at DESC
		LIMIT ? OFFSET ?
	`), studentID, limit, offset)
	return out, errors.Wrap(err, "list records")
}
