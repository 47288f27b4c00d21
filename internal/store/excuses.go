package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"campusattend/internal/attendance"
)

const excuseColumns = `e.id, e.student_id, e.session_id, e.reason, e.document_ref, e.status,
	e.reviewer_id, e.reviewed_at, e.reviewer_notes, e.created_at`

// CreateExcuse inserts a request. The partial unique index on pending
// requests rejects a second pending request for the same pair.
func (s *Store) CreateExcuse(ctx context.Context, e attendance.ExcuseRequest) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO excuse_requests (id, student_id, session_id, reason, document_ref, status,
			reviewer_id, reviewed_at, reviewer_notes, created_at)
		VALUES (:id, :student_id, :session_id, :reason, :document_ref, :status,
			:reviewer_id, :reviewed_at, :reviewer_notes, :created_at)
	`, e)
	if isUniqueViolation(err) {
		return errors.Wrap(attendance.ErrConflict, "a pending excuse already exists for this session")
	}
	return errors.Wrap(err, "insert excuse")
}

// GetExcuse returns a request by id.
func (s *Store) GetExcuse(ctx context.Context, id string) (attendance.ExcuseRequest, error) {
	var e attendance.ExcuseRequest
	err := s.db.GetContext(ctx, &e, s.rebind(`SELECT `+excuseColumns+` FROM excuse_requests e WHERE e.id = ?`), id)
	if err != nil {
		return attendance.ExcuseRequest{}, notFound(err, "excuse request "+id)
	}
	return e, nil
}

// HasExcuse reports whether the pair has a request in status.
func (s *Store) HasExcuse(ctx context.Context, studentID, sessionID string, status attendance.ExcuseStatus) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.rebind(`
		SELECT COUNT(*) FROM excuse_requests
		WHERE student_id = ? AND session_id = ? AND status = ?
	`), studentID, sessionID, status)
	if err != nil {
		return false, errors.Wrap(err, "count excuses")
	}
	return n > 0, nil
}

// DecideExcuse records a decision on a still-pending request.
func (s *Store) DecideExcuse(ctx context.Context, d attendance.Decision) error {
	var notes any
	if d.Notes != "" {
		notes = d.Notes
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE excuse_requests
		SET status = ?, reviewer_id = ?, reviewed_at = ?, reviewer_notes = ?
		WHERE id = ? AND status = 'pending'
	`), d.Status, d.ReviewerID, d.ReviewedAt, notes, d.RequestID)
	if err != nil {
		return errors.Wrap(err, "decide excuse")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n > 0 {
		return nil
	}
	cur, err := s.GetExcuse(ctx, d.RequestID)
	if err != nil {
		return err
	}
	return errors.Wrapf(attendance.ErrConflict, "request already %s", cur.Status)
}

// ListExcuses returns requests matching f, newest first.
func (s *Store) ListExcuses(ctx context.Context, f attendance.ExcuseFilter) ([]attendance.ExcuseRequest, error) {
	query := `SELECT ` + excuseColumns + ` FROM excuse_requests e`
	var clauses []string
	var args []any
	if f.SectionID != "" || f.InstructorID != "" {
		query += ` JOIN attendance_sessions s ON s.id = e.session_id`
	}
	if f.StudentID != "" {
		clauses = append(clauses, "e.student_id = ?")
		args = append(args, f.StudentID)
	}
	if f.SectionID != "" {
		clauses = append(clauses, "s.section_id = ?")
		args = append(args, f.SectionID)
	}
	if f.InstructorID != "" {
		clauses = append(clauses, "s.instructor_id = ?")
		args = append(args, f.InstructorID)
	}
	if f.Status != "" {
		clauses = append(clauses, "e.status = ?")
		args = append(args, f.Status)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY e.created_at DESC"

	out := []attendance.ExcuseRequest{}
	err := s.db.SelectContext(ctx, &out, s.rebind(query), args...)
	return out, errors.Wrap(err, "list excuses")
}
