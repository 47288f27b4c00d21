package store

import (
	"context"

	"github.com/pkg/errors"

	"campusattend/internal/attendance"
)

// Reads against the user, course and enrollment tables. Those subsystems
// own the rows; attendance only queries them.

// ActiveEnrollmentsForStudent lists the sections a student actively attends.
func (s *Store) ActiveEnrollmentsForStudent(ctx context.Context, studentID string) ([]attendance.Enrollment, error) {
	out := []attendance.Enrollment{}
	err := s.db.SelectContext(ctx, &out, s.rebind(`
		SELECT student_id, section_id FROM enrollments
		WHERE student_id = ? AND status = 'active'
		ORDER BY section_id
	`), studentID)
	return out, errors.Wrap(err, "student enrollments")
}

// ActiveEnrollmentsForSection lists a section's active students.
func (s *Store) ActiveEnrollmentsForSection(ctx context.Context, sectionID string) ([]attendance.Enrollment, error) {
	out := []attendance.Enrollment{}
	err := s.db.SelectContext(ctx, &out, s.rebind(`
		SELECT student_id, section_id FROM enrollments
		WHERE section_id = ? AND status = 'active'
		ORDER BY student_id
	`), sectionID)
	return out, errors.Wrap(err, "section enrollments")
}

// Section returns a section joined with its course.
func (s *Store) Section(ctx context.Context, sectionID string) (attendance.Section, error) {
	var sec attendance.Section
	err := s.db.GetContext(ctx, &sec, s.rebind(`
		SELECT sec.id, sec.code, c.code AS course_code, c.name AS course_name, sec.instructor_id
		FROM sections sec
		JOIN courses c ON c.id = sec.course_id
		WHERE sec.id = ?
	`), sectionID)
	if err != nil {
		return attendance.Section{}, notFound(err, "section "+sectionID)
	}
	return sec, nil
}

// IsActive reports whether the user exists and is active.
func (s *Store) IsActive(ctx context.Context, userID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.rebind(`
		SELECT COUNT(*) FROM users WHERE id = ? AND is_active = ?
	`), userID, true)
	return n > 0, errors.Wrap(err, "user lookup")
}

// ActiveStudents lists the ids of all active students.
func (s *Store) ActiveStudents(ctx context.Context) ([]string, error) {
	out := []string{}
	err := s.db.SelectContext(ctx, &out, s.rebind(`
		SELECT id FROM users WHERE role = ? AND is_active = ? ORDER BY id
	`), string(attendance.RoleStudent), true)
	return out, errors.Wrap(err, "active students")
}

// AttendanceStats counts the held sessions of a section, those the student
// checked in to, and those without a record covered by an approved excuse.
func (s *Store) AttendanceStats(ctx context.Context, studentID, sectionID string) (attendance.AttendanceStats, error) {
	var st attendance.AttendanceStats
	err := s.db.GetContext(ctx, &st, s.rebind(`
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN r.id IS NOT NULL THEN 1 ELSE 0 END), 0) AS attended,
			COALESCE(SUM(CASE WHEN r.id IS NULL AND EXISTS (
				SELECT 1 FROM excuse_requests e
				WHERE e.session_id = s.id AND e.student_id = ? AND e.status = 'approved'
			) THEN 1 ELSE 0 END), 0) AS excused
		FROM attendance_sessions s
		LEFT JOIN attendance_records r ON r.session_id = s.id AND r.student_id = ?
		WHERE s.section_id = ? AND s.status IN ('open', 'closed')
	`), studentID, studentID, sectionID)
	return st, errors.Wrap(err, "attendance stats")
}
