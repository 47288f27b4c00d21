package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
)

// DefaultTokenTTL bounds how long a displayed QR code stays usable.
const DefaultTokenTTL = 5 * time.Minute

// NewSession is the instructor's input for creating a session.
type NewSession struct {
	SectionID       string    `json:"section_id" validate:"required"`
	Date            time.Time `json:"date" validate:"required"`
	StartsAt        time.Time `json:"starts_at" validate:"required"`
	EndsAt          time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
	CenterLatitude  float64   `json:"center_latitude"`
	CenterLongitude float64   `json:"center_longitude"`
	RadiusMeters    float64   `json:"radius_meters" validate:"min=5,max=100"`
}

// Sessions manages the lifecycle of attendance sessions and their
// rotating check-in tokens.
type Sessions struct {
	store    Store
	catalog  Catalog
	clock    clockwork.Clock
	tokenTTL time.Duration
}

// NewSessions creates the session lifecycle service.
func NewSessions(store Store, catalog Catalog, clock clockwork.Clock, tokenTTL time.Duration) *Sessions {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Sessions{store: store, catalog: catalog, clock: clock, tokenTTL: tokenTTL}
}

// Create opens a session for a section the actor teaches. Sessions dated
// in the future start out scheduled and must be opened explicitly.
func (s *Sessions) Create(ctx context.Context, actor Actor, in NewSession) (Session, error) {
	if err := check(in, coordinateErrors("center_latitude", "center_longitude", in.CenterLatitude, in.CenterLongitude)...); err != nil {
		return Session{}, err
	}
	section, err := s.catalog.Section(ctx, in.SectionID)
	if err != nil {
		return Session{}, errors.Wrapf(err, "section %s", in.SectionID)
	}
	if actor.Role != RoleInstructor || actor.ID != section.InstructorID {
		return Session{}, errors.Wrap(ErrForbidden, "only the section's instructor can create sessions")
	}

	now := s.now()
	date := dateOf(in.Date)
	status := SessionOpen
	if date.After(dateOf(now)) {
		status = SessionScheduled
	}
	sess := Session{
		ID:               uuid.NewString(),
		SectionID:        section.ID,
		InstructorID:     actor.ID,
		Date:             date,
		StartsAt:         in.StartsAt.UTC().Truncate(time.Microsecond),
		EndsAt:           in.EndsAt.UTC().Truncate(time.Microsecond),
		CenterLatitude:   in.CenterLatitude,
		CenterLongitude:  in.CenterLongitude,
		RadiusMeters:     in.RadiusMeters,
		Token:            newToken(),
		TokenGeneratedAt: now,
		TokenExpiresAt:   now.Add(s.tokenTTL),
		Status:           status,
		CreatedAt:        now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return Session{}, errors.Wrap(err, "create session")
	}
	return sess, nil
}

// Open moves a scheduled session to open and issues a fresh token.
func (s *Sessions) Open(ctx context.Context, actor Actor, sessionID string) (Session, error) {
	sess, err := s.owned(ctx, actor, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.Status != SessionScheduled {
		return Session{}, errors.Wrapf(ErrConflict, "session is %s", sess.Status)
	}
	now := s.now()
	token := newToken()
	if err := s.store.OpenSession(ctx, sess.ID, token, now, now.Add(s.tokenTTL)); err != nil {
		return Session{}, errors.Wrap(err, "open session")
	}
	sess.Status = SessionOpen
	sess.Token, sess.TokenGeneratedAt, sess.TokenExpiresAt = token, now, now.Add(s.tokenTTL)
	return sess, nil
}

// RotateToken replaces the token of an open session. The previous token
// stops working as soon as the store commits.
func (s *Sessions) RotateToken(ctx context.Context, actor Actor, sessionID string) (Session, error) {
	sess, err := s.owned(ctx, actor, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.Status != SessionOpen {
		return Session{}, errors.Wrapf(ErrSessionClosed, "session is %s", sess.Status)
	}
	now := s.now()
	token := newToken()
	if err := s.store.ReplaceToken(ctx, sess.ID, token, now, now.Add(s.tokenTTL)); err != nil {
		return Session{}, errors.Wrap(err, "rotate token")
	}
	sess.Token, sess.TokenGeneratedAt, sess.TokenExpiresAt = token, now, now.Add(s.tokenTTL)
	return sess, nil
}

// Close ends the check-in window for good. Closing a session that is not
// open is a conflict.
func (s *Sessions) Close(ctx context.Context, actor Actor, sessionID string) (Session, error) {
	sess, err := s.owned(ctx, actor, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.Status != SessionOpen {
		return Session{}, errors.Wrapf(ErrConflict, "session is %s", sess.Status)
	}
	if err := s.store.CloseSession(ctx, sess.ID); err != nil {
		return Session{}, errors.Wrap(err, "close session")
	}
	sess.Status = SessionClosed
	return sess, nil
}

// Get returns a session by id.
func (s *Sessions) Get(ctx context.Context, sessionID string) (Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// ListBySection returns a section's sessions, newest first.
func (s *Sessions) ListBySection(ctx context.Context, sectionID string) ([]Session, error) {
	return s.store.ListSessionsBySection(ctx, sectionID)
}

// ListByInstructor returns the sessions an instructor runs, newest first.
func (s *Sessions) ListByInstructor(ctx context.Context, instructorID string) ([]Session, error) {
	return s.store.ListSessionsByInstructor(ctx, instructorID)
}

// Records returns the check-ins of a session to its instructor or an admin.
func (s *Sessions) Records(ctx context.Context, actor Actor, sessionID string) ([]Record, error) {
	sess, err := s.owned(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	return s.store.ListRecordsBySession(ctx, sess.ID)
}

// CanManage reports whether actor may administer sess.
func CanManage(actor Actor, sess Session) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.Role == RoleInstructor && actor.ID == sess.InstructorID
}

func (s *Sessions) owned(ctx context.Context, actor Actor, sessionID string) (Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if !CanManage(actor, sess) {
		return Session{}, errors.Wrap(ErrForbidden, "session belongs to another instructor")
	}
	return sess, nil
}

func (s *Sessions) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

func newToken() string {
	return uuid.NewString()
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
