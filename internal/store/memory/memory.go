package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"campusattend/internal/attendance"
)

type pairKey struct {
	a, b string
}

type user struct {
	role   attendance.Role
	active bool
}

// Store keeps attendance state in process memory. Uniqueness of
// (session, student) records and of pending excuses is enforced under the
// store's lock, mirroring the database constraints.
type Store struct {
	mu sync.RWMutex

	sessions map[string]attendance.Session
	records  map[string]attendance.Record
	checkins map[pairKey]string // (session, student) -> record id
	excuses  map[string]attendance.ExcuseRequest
	pending  map[pairKey]string // (student, session) -> pending excuse id

	// reference data owned by other subsystems
	sections    map[string]attendance.Section
	enrollments map[string][]attendance.Enrollment
	users       map[string]user
}

var (
	_ attendance.Store     = (*Store)(nil)
	_ attendance.Roster    = (*Store)(nil)
	_ attendance.Catalog   = (*Store)(nil)
	_ attendance.Directory = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		sessions:    make(map[string]attendance.Session),
		records:     make(map[string]attendance.Record),
		checkins:    make(map[pairKey]string),
		excuses:     make(map[string]attendance.ExcuseRequest),
		pending:     make(map[pairKey]string),
		sections:    make(map[string]attendance.Section),
		enrollments: make(map[string][]attendance.Enrollment),
		users:       make(map[string]user),
	}
}

// AddSection registers a section in the catalog.
func (s *Store) AddSection(sec attendance.Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections[sec.ID] = sec
}

// AddUser registers a user in the directory.
func (s *Store) AddUser(id string, role attendance.Role, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = user{role: role, active: active}
}

// Enroll adds an active enrollment.
func (s *Store) Enroll(studentID, sectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[studentID] = append(s.enrollments[studentID],
		attendance.Enrollment{StudentID: studentID, SectionID: sectionID})
}

// -------- Sessions --------

func (s *Store) CreateSession(_ context.Context, sess attendance.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return errors.Wrapf(attendance.ErrConflict, "session %s exists", sess.ID)
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (attendance.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return attendance.Session{}, errors.Wrapf(attendance.ErrNotFound, "session %s", id)
	}
	return sess, nil
}

func (s *Store) ListSessionsBySection(_ context.Context, sectionID string) ([]attendance.Session, error) {
	return s.filterSessions(func(sess attendance.Session) bool { return sess.SectionID == sectionID }), nil
}

func (s *Store) ListSessionsByInstructor(_ context.Context, instructorID string) ([]attendance.Session, error) {
	return s.filterSessions(func(sess attendance.Session) bool { return sess.InstructorID == instructorID }), nil
}

func (s *Store) OpenSession(_ context.Context, id, token string, generatedAt, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return errors.Wrapf(attendance.ErrNotFound, "session %s", id)
	}
	if sess.Status != attendance.SessionScheduled {
		return errors.Wrapf(attendance.ErrConflict, "session is %s", sess.Status)
	}
	sess.Status = attendance.SessionOpen
	sess.Token, sess.TokenGeneratedAt, sess.TokenExpiresAt = token, generatedAt, expiresAt
	s.sessions[id] = sess
	return nil
}

func (s *Store) ReplaceToken(_ context.Context, id, token string, generatedAt, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return errors.Wrapf(attendance.ErrNotFound, "session %s", id)
	}
	if sess.Status != attendance.SessionOpen {
		return errors.Wrapf(attendance.ErrSessionClosed, "session is %s", sess.Status)
	}
	sess.Token, sess.TokenGeneratedAt, sess.TokenExpiresAt = token, generatedAt, expiresAt
	s.sessions[id] = sess
	return nil
}

func (s *Store) CloseSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return errors.Wrapf(attendance.ErrNotFound, "session %s", id)
	}
	if sess.Status != attendance.SessionOpen {
		return errors.Wrapf(attendance.ErrConflict, "session is %s", sess.Status)
	}
	sess.Status = attendance.SessionClosed
	s.sessions[id] = sess
	return nil
}

func (s *Store) filterSessions(keep func(attendance.Session) bool) []attendance.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []attendance.Session{}
	for _, sess := range s.sessions {
		if keep(sess) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].StartsAt.After(out[j].StartsAt)
	})
	return out
}

// -------- Records --------

func (s *Store) GetRecord(_ context.Context, sessionID, studentID string) (attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.checkins[pairKey{sessionID, studentID}]
	if !ok {
		return attendance.Record{}, errors.Wrap(attendance.ErrNotFound, "attendance record")
	}
	return s.records[id], nil
}

func (s *Store) LatestRecord(_ context.Context, studentID string) (attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest attendance.Record
	found := false
	for _, rec := range s.records {
		if rec.StudentID != studentID {
			continue
		}
		if !found || rec.CheckedInAt.After(latest.CheckedInAt) {
			latest, found = rec, true
		}
	}
	if !found {
		return attendance.Record{}, errors.Wrap(attendance.ErrNotFound, "attendance record")
	}
	return latest, nil
}

func (s *Store) InsertRecord(_ context.Context, rec attendance.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[rec.SessionID]
	if !ok {
		return errors.Wrapf(attendance.ErrNotFound, "session %s", rec.SessionID)
	}
	if sess.Status != attendance.SessionOpen {
		return errors.Wrapf(attendance.ErrSessionClosed, "session is %s", sess.Status)
	}
	key := pairKey{rec.SessionID, rec.StudentID}
	if _, dup := s.checkins[key]; dup {
		return errors.Wrap(attendance.ErrConflict, "already checked in")
	}
	s.records[rec.ID] = rec
	s.checkins[key] = rec.ID
	return nil
}

func (s *Store) ListRecordsBySession(_ context.Context, sessionID string) ([]attendance.Record, error) {
	out := s.filterRecords(func(r attendance.Record) bool { return r.SessionID == sessionID })
	return out, nil
}

func (s *Store) ListRecordsByStudent(_ context.Context, studentID string, limit, offset int) ([]attendance.Record, error) {
	out := s.filterRecords(func(r attendance.Record) bool { return r.StudentID == studentID })
	return page(out, limit, offset), nil
}

func (s *Store) filterRecords(keep func(attendance.Record) bool) []attendance.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []attendance.Record{}
	for _, rec := range s.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckedInAt.After(out[j].CheckedInAt) })
	return out
}

// -------- Excuses --------

func (s *Store) CreateExcuse(_ context.Context, e attendance.ExcuseRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Status == attendance.ExcusePending {
		key := pairKey{e.StudentID, e.SessionID}
		if _, dup := s.pending[key]; dup {
			return errors.Wrap(attendance.ErrConflict, "a pending excuse already exists for this session")
		}
		s.pending[key] = e.ID
	}
	s.excuses[e.ID] = e
	return nil
}

func (s *Store) GetExcuse(_ context.Context, id string) (attendance.ExcuseRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.excuses[id]
	if !ok {
		return attendance.ExcuseRequest{}, errors.Wrapf(attendance.ErrNotFound, "excuse request %s", id)
	}
	return e, nil
}

func (s *Store) HasExcuse(_ context.Context, studentID, sessionID string, status attendance.ExcuseStatus) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.excuses {
		if e.StudentID == studentID && e.SessionID == sessionID && e.Status == status {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DecideExcuse(_ context.Context, d attendance.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.excuses[d.RequestID]
	if !ok {
		return errors.Wrapf(attendance.ErrNotFound, "excuse request %s", d.RequestID)
	}
	if e.Status != attendance.ExcusePending {
		return errors.Wrapf(attendance.ErrConflict, "request already %s", e.Status)
	}
	e.Status = d.Status
	e.ReviewerID = null.StringFrom(d.ReviewerID)
	e.ReviewedAt = null.TimeFrom(d.ReviewedAt)
	if d.Notes != "" {
		e.ReviewerNotes = null.StringFrom(d.Notes)
	}
	s.excuses[e.ID] = e
	delete(s.pending, pairKey{e.StudentID, e.SessionID})
	return nil
}

func (s *Store) ListExcuses(_ context.Context, f attendance.ExcuseFilter) ([]attendance.ExcuseRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []attendance.ExcuseRequest{}
	for _, e := range s.excuses {
		if f.StudentID != "" && e.StudentID != f.StudentID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.SectionID != "" || f.InstructorID != "" {
			sess, ok := s.sessions[e.SessionID]
			if !ok {
				continue
			}
			if f.SectionID != "" && sess.SectionID != f.SectionID {
				continue
			}
			if f.InstructorID != "" && sess.InstructorID != f.InstructorID {
				continue
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// -------- Absentee statistics --------

// AttendanceStats counts held sessions of a section and how many of them
// the student attended or had excused.
func (s *Store) AttendanceStats(_ context.Context, studentID, sectionID string) (attendance.AttendanceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st attendance.AttendanceStats
	for _, sess := range s.sessions {
		if sess.SectionID != sectionID || sess.Status == attendance.SessionScheduled {
			continue
		}
		st.Total++
		if _, ok := s.checkins[pairKey{sess.ID, studentID}]; ok {
			st.Attended++
			continue
		}
		for _, e := range s.excuses {
			if e.StudentID == studentID && e.SessionID == sess.ID && e.Status == attendance.ExcuseApproved {
				st.Excused++
				break
			}
		}
	}
	return st, nil
}

// -------- Reference data --------

func (s *Store) ActiveEnrollmentsForStudent(_ context.Context, studentID string) ([]attendance.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]attendance.Enrollment{}, s.enrollments[studentID]...), nil
}

func (s *Store) ActiveEnrollmentsForSection(_ context.Context, sectionID string) ([]attendance.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []attendance.Enrollment{}
	for _, list := range s.enrollments {
		for _, e := range list {
			if e.SectionID == sectionID {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (s *Store) Section(_ context.Context, sectionID string) (attendance.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.sections[sectionID]
	if !ok {
		return attendance.Section{}, errors.Wrapf(attendance.ErrNotFound, "section %s", sectionID)
	}
	return sec, nil
}

func (s *Store) IsActive(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID].active, nil
}

func (s *Store) ActiveStudents(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []string{}
	for id, u := range s.users {
		if u.active && u.role == attendance.RoleStudent {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
