package attendance

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/volatiletech/null/v8"
)

// SessionStatus is the lifecycle state of an attendance session.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionOpen      SessionStatus = "open"
	SessionClosed    SessionStatus = "closed"
)

// Valid reports whether s is one of the known session states.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionScheduled, SessionOpen, SessionClosed:
		return true
	default:
		return false
	}
}

// Scan implements sql.Scanner and rejects unknown values.
func (s *SessionStatus) Scan(src any) error {
	v, err := scanString(src)
	if err != nil {
		return err
	}
	status := SessionStatus(v)
	if !status.Valid() {
		return fmt.Errorf("invalid session status %q", v)
	}
	*s = status
	return nil
}

// Value implements driver.Valuer.
func (s SessionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid session status %q", string(s))
	}
	return string(s), nil
}

// ExcuseStatus is the review state of an excuse request.
type ExcuseStatus string

const (
	ExcusePending  ExcuseStatus = "pending"
	ExcuseApproved ExcuseStatus = "approved"
	ExcuseRejected ExcuseStatus = "rejected"
)

// Valid reports whether s is one of the known excuse states.
func (s ExcuseStatus) Valid() bool {
	switch s {
	case ExcusePending, ExcuseApproved, ExcuseRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed.
func (s ExcuseStatus) Terminal() bool {
	return s == ExcuseApproved || s == ExcuseRejected
}

// Scan implements sql.Scanner and rejects unknown values.
func (s *ExcuseStatus) Scan(src any) error {
	v, err := scanString(src)
	if err != nil {
		return err
	}
	status := ExcuseStatus(v)
	if !status.Valid() {
		return fmt.Errorf("invalid excuse status %q", v)
	}
	*s = status
	return nil
}

// Value implements driver.Valuer.
func (s ExcuseStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid excuse status %q", string(s))
	}
	return string(s), nil
}

// ParseExcuseStatus maps the wire value to an ExcuseStatus.
func ParseExcuseStatus(v string) (ExcuseStatus, error) {
	s := ExcuseStatus(v)
	if !s.Valid() {
		return "", NewValidationError(fmt.Errorf("invalid excuse status %q", v),
			FieldError{Field: "status", Error: "must be one of pending, approved, rejected"})
	}
	return s, nil
}

// Role is the capability an authenticated caller holds.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleInstructor || r == RoleAdmin
}

// Actor is the identity an operation is evaluated against.
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the actor holds the admin capability.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Session is one scheduled meeting of a section that students check in to.
type Session struct {
	ID               string        `db:"id" json:"id"`
	SectionID        string        `db:"section_id" json:"section_id"`
	InstructorID     string        `db:"instructor_id" json:"instructor_id"`
	Date             time.Time     `db:"session_date" json:"date"`
	StartsAt         time.Time     `db:"starts_at" json:"starts_at"`
	EndsAt           time.Time     `db:"ends_at" json:"ends_at"`
	CenterLatitude   float64       `db:"center_latitude" json:"center_latitude"`
	CenterLongitude  float64       `db:"center_longitude" json:"center_longitude"`
	RadiusMeters     float64       `db:"radius_meters" json:"radius_meters"`
	Token            string        `db:"check_in_token" json:"-"`
	TokenGeneratedAt time.Time     `db:"token_generated_at" json:"-"`
	TokenExpiresAt   time.Time     `db:"token_expires_at" json:"-"`
	Status           SessionStatus `db:"status" json:"status"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
}

// Record is one student's check-in against one session.
type Record struct {
	ID             string       `db:"id" json:"id"`
	SessionID      string       `db:"session_id" json:"session_id"`
	StudentID      string       `db:"student_id" json:"student_id"`
	CheckedInAt    time.Time    `db:"checked_in_at" json:"checked_in_at"`
	Latitude       float64      `db:"latitude" json:"latitude"`
	Longitude      float64      `db:"longitude" json:"longitude"`
	DistanceMeters float64      `db:"distance_meters" json:"distance_meters"`
	MockLocation   bool         `db:"mock_location" json:"mock_location"`
	VelocityMPS    null.Float64 `db:"velocity_mps" json:"velocity_mps"`
	FraudScore     int          `db:"fraud_score" json:"fraud_score"`
	IsFlagged      bool         `db:"is_flagged" json:"is_flagged"`
	FlagReason     null.String  `db:"flag_reason" json:"flag_reason"`
	IPAddress      null.String  `db:"ip_address" json:"ip_address,omitempty"`
	DeviceInfo     null.String  `db:"device_info" json:"device_info,omitempty"`
}

// ExcuseRequest is a student's claim of justified absence for one session.
type ExcuseRequest struct {
	ID            string       `db:"id" json:"id"`
	StudentID     string       `db:"student_id" json:"student_id"`
	SessionID     string       `db:"session_id" json:"session_id"`
	Reason        string       `db:"reason" json:"reason"`
	DocumentRef   null.String  `db:"document_ref" json:"document_ref"`
	Status        ExcuseStatus `db:"status" json:"status"`
	ReviewerID    null.String  `db:"reviewer_id" json:"reviewer_id"`
	ReviewedAt    null.Time    `db:"reviewed_at" json:"reviewed_at"`
	ReviewerNotes null.String  `db:"reviewer_notes" json:"reviewer_notes"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

// Enrollment links a student to a section they actively attend.
type Enrollment struct {
	StudentID string `db:"student_id"`
	SectionID string `db:"section_id"`
}

// Section carries the identifiers needed for ownership checks and
// human-readable messages.
type Section struct {
	ID           string `db:"id"`
	Code         string `db:"code"`
	CourseCode   string `db:"course_code"`
	CourseName   string `db:"course_name"`
	InstructorID string `db:"instructor_id"`
}

// Notification is a message handed to the external notification subsystem.
type Notification struct {
	UserID            string `json:"user_id"`
	Title             string `json:"title"`
	Message           string `json:"message"`
	Category          string `json:"category"`
	RelatedEntityType string `json:"related_entity_type"`
	RelatedEntityID   string `json:"related_entity_id"`
}

func scanString(src any) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("unexpected NULL status")
	default:
		return "", fmt.Errorf("unsupported status type %T", src)
	}
}

// AttendanceStats summarises one student's standing in one section.
// Excused only counts held sessions without a record.
type AttendanceStats struct {
	Total    int `db:"total"`
	Attended int `db:"attended"`
	Excused  int `db:"excused"`
}
