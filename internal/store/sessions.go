package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"campusattend/internal/attendance"
)

const sessionColumns = `id, section_id, instructor_id, session_date, starts_at, ends_at,
	center_latitude, center_longitude, radius_meters, check_in_token,
	token_generated_at, token_expires_at, status, created_at`

// CreateSession inserts a new session.
func (s *Store) CreateSession(ctx context.Context, sess attendance.Session) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO attendance_sessions (`+sessionColumns+`)
		VALUES (:id, :section_id, :instructor_id, :session_date, :starts_at, :ends_at,
			:center_latitude, :center_longitude, :radius_meters, :check_in_token,
			:token_generated_at, :token_expires_at, :status, :created_at)
	`, sess)
	if isUniqueViolation(err) {
		return errors.Wrapf(attendance.ErrConflict, "session %s exists", sess.ID)
	}
	return errors.Wrap(err, "insert session")
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (attendance.Session, error) {
	var sess attendance.Session
	err := s.db.GetContext(ctx, &sess, s.rebind(`SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = ?`), id)
	if err != nil {
		return attendance.Session{}, notFound(err, "session "+id)
	}
	return sess, nil
}

// ListSessionsBySection returns a section's sessions, newest first.
func (s *Store) ListSessionsBySection(ctx context.Context, sectionID string) ([]attendance.Session, error) {
	return s.listSessions(ctx, "section_id", sectionID)
}

// ListSessionsByInstructor returns an instructor's sessions, newest first.
func (s *Store) ListSessionsByInstructor(ctx context.Context, instructorID string) ([]attendance.Session, error) {
	return s.listSessions(ctx, "instructor_id", instructorID)
}

func (s *Store) listSessions(ctx context.Context, column, value string) ([]attendance.Session, error) {
	out := []attendance.Session{}
	err := s.db.SelectContext(ctx, &out, s.rebind(`
		SELECT `+sessionColumns+` FROM attendance_sessions
		WHERE `+column+` = ?
		ORDER BY session_date DESC, starts_at DESC
	`), value)
	return out, errors.Wrap(err, "list sessions")
}

// OpenSession moves a scheduled session to open with a fresh token.
func (s *Store) OpenSession(ctx context.Context, id, token string, generatedAt, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE attendance_sessions
		SET status = 'open', check_in_token = ?, token_generated_at = ?, token_expires_at = ?
		WHERE id = ? AND status = 'scheduled'
	`), token, generatedAt, expiresAt, id)
	if err != nil {
		return errors.Wrap(err, "open session")
	}
	return s.transitioned(ctx, res, id, attendance.ErrConflict)
}

// ReplaceToken swaps the token of an open session.
func (s *Store) ReplaceToken(ctx context.Context, id, token string, generatedAt, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE attendance_sessions
		SET check_in_token = ?, token_generated_at = ?, token_expires_at = ?
		WHERE id = ? AND status = 'open'
	`), token, generatedAt, expiresAt, id)
	if err != nil {
		return errors.Wrap(err, "replace token")
	}
	return s.transitioned(ctx, res, id, attendance.ErrSessionClosed)
}

// CloseSession moves an open session to closed.
func (s *Store) CloseSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE attendance_sessions SET status = 'closed' WHERE id = ? AND status = 'open'
	`), id)
	if err != nil {
		return errors.Wrap(err, "close session")
	}
	return s.transitioned(ctx, res, id, attendance.ErrConflict)
}

// transitioned interprets a conditional UPDATE: no affected row means the
// session is missing or was not in the required state.
func (s *Store) transitioned(ctx context.Context, res interface{ RowsAffected() (int64, error) }, id string, stateErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n > 0 {
		return nil
	}
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	return errors.Wrapf(stateErr, "session is %s", sess.Status)
}
