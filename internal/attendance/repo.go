package attendance

import (
	"context"
	"time"
)

// SessionStore persists attendance sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessionsBySection(ctx context.Context, sectionID string) ([]Session, error)
	ListSessionsByInstructor(ctx context.Context, instructorID string) ([]Session, error)
	// OpenSession moves a scheduled session to open with a fresh token.
	// It returns ErrConflict if the session is not scheduled.
	OpenSession(ctx context.Context, id, token string, generatedAt, expiresAt time.Time) error
	// ReplaceToken swaps the check-in token of an open session.
	// It returns ErrSessionClosed if the session is not open.
	ReplaceToken(ctx context.Context, id, token string, generatedAt, expiresAt time.Time) error
	// CloseSession moves an open session to closed.
	// It returns ErrConflict if the session is not open.
	CloseSession(ctx context.Context, id string) error
}

// RecordStore persists attendance records.
type RecordStore interface {
	GetRecord(ctx context.Context, sessionID, studentID string) (Record, error)
	// LatestRecord returns the student's most recent check-in in any session.
	LatestRecord(ctx context.Context, studentID string) (Record, error)
	// InsertRecord writes rec if its session is still open and no record
	// exists for the (session, student) pair, both decided atomically with
	// the insert. It returns ErrSessionClosed or ErrConflict otherwise.
	InsertRecord(ctx context.Context, rec Record) error
	ListRecordsBySession(ctx context.Context, sessionID string) ([]Record, error)
	ListRecordsByStudent(ctx context.Context, studentID string, limit, offset int) ([]Record, error)
}

// ExcuseFilter narrows ListExcuses. Empty fields match everything.
type ExcuseFilter struct {
	StudentID    string
	SectionID    string
	InstructorID string
	Status       ExcuseStatus
}

// Decision is a reviewer's verdict on a pending excuse request.
type Decision struct {
	RequestID  string
	Status     ExcuseStatus
	ReviewerID string
	ReviewedAt time.Time
	Notes      string
}

// ExcuseStore persists excuse requests.
type ExcuseStore interface {
	// CreateExcuse returns ErrConflict when a pending request already
	// exists for the (student, session) pair.
	CreateExcuse(ctx context.Context, e ExcuseRequest) error
	GetExcuse(ctx context.Context, id string) (ExcuseRequest, error)
	// HasExcuse reports whether a request in the given status exists for the pair.
	HasExcuse(ctx context.Context, studentID, sessionID string, status ExcuseStatus) (bool, error)
	// DecideExcuse applies d only if the request is still pending and
	// returns ErrConflict otherwise.
	DecideExcuse(ctx context.Context, d Decision) error
	ListExcuses(ctx context.Context, f ExcuseFilter) ([]ExcuseRequest, error)
}

// Store is the full persistence surface the attendance services need.
type Store interface {
	SessionStore
	RecordStore
	ExcuseStore
}

// Roster exposes enrollments owned by the enrollment subsystem.
type Roster interface {
	ActiveEnrollmentsForStudent(ctx context.Context, studentID string) ([]Enrollment, error)
	ActiveEnrollmentsForSection(ctx context.Context, sectionID string) ([]Enrollment, error)
}

// Catalog exposes section and course identifiers.
type Catalog interface {
	Section(ctx context.Context, sectionID string) (Section, error)
}

// Directory exposes the user directory's active-status view.
type Directory interface {
	IsActive(ctx context.Context, userID string) (bool, error)
	ActiveStudents(ctx context.Context) ([]string, error)
}

// Notifier hands a notification to the delivery subsystem.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// IsEnrolled reports whether studentID actively attends sectionID.
func IsEnrolled(ctx context.Context, roster Roster, studentID, sectionID string) (bool, error) {
	enrollments, err := roster.ActiveEnrollmentsForStudent(ctx, studentID)
	if err != nil {
		return false, err
	}
	for _, e := range enrollments {
		if e.SectionID == sectionID {
			return true, nil
		}
	}
	return false, nil
}
