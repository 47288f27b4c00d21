package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"campusattend/internal/attendance"
	"campusattend/internal/store/memory"
)

var (
	base = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	instructor = attendance.Actor{ID: "ins-1", Role: attendance.RoleInstructor}
	otherInstr = attendance.Actor{ID: "ins-2", Role: attendance.RoleInstructor}
	admin      = attendance.Actor{ID: "adm-1", Role: attendance.RoleAdmin}
	studentA   = attendance.Actor{ID: "stu-a", Role: attendance.RoleStudent}
	studentB   = attendance.Actor{ID: "stu-b", Role: attendance.RoleStudent}
	outsider   = attendance.Actor{ID: "stu-x", Role: attendance.RoleStudent}
)

// Geofence from the classroom scenario: radius 15 m.
const (
	centerLat = 41.0150
	centerLon = 29.0450
	radius    = 15.0
	// about 600 m north of the center
	farLat = centerLat + 600.0/111195.0
)

type fixture struct {
	store    *memory.Store
	clock    *clockwork.FakeClock
	sessions *attendance.Sessions
	verifier *attendance.Verifier
	excuses  *attendance.Excuses
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	st.AddSection(attendance.Section{ID: "sec-1", Code: "A", CourseCode: "CS101", CourseName: "Programming", InstructorID: instructor.ID})
	st.AddSection(attendance.Section{ID: "sec-2", Code: "B", CourseCode: "MA201", CourseName: "Calculus", InstructorID: otherInstr.ID})
	for _, a := range []attendance.Actor{instructor, otherInstr, admin, studentA, studentB, outsider} {
		st.AddUser(a.ID, a.Role, true)
	}
	st.Enroll(studentA.ID, "sec-1")
	st.Enroll(studentB.ID, "sec-1")
	st.Enroll(outsider.ID, "sec-2")

	clock := clockwork.NewFakeClockAt(base)
	return &fixture{
		store:    st,
		clock:    clock,
		sessions: attendance.NewSessions(st, st, clock, 5*time.Minute),
		verifier: attendance.NewVerifier(st, st, attendance.NewDetector(attendance.DefaultThresholds()), clock),
		excuses:  attendance.NewExcuses(st, st, clock),
	}
}

func (f *fixture) newSession(t *testing.T) attendance.Session {
	t.Helper()
	sess, err := f.sessions.Create(context.Background(), instructor, attendance.NewSession{
		SectionID:       "sec-1",
		Date:            base,
		StartsAt:        base,
		EndsAt:          base.Add(90 * time.Minute),
		CenterLatitude:  centerLat,
		CenterLongitude: centerLon,
		RadiusMeters:    radius,
	})
	require.NoError(t, err)
	require.Equal(t, attendance.SessionOpen, sess.Status)
	return sess
}

func (f *fixture) attempt(sess attendance.Session, student attendance.Actor, lat, lon float64) attendance.CheckInAttempt {
	return attendance.CheckInAttempt{
		StudentID: student.ID,
		SessionID: sess.ID,
		Token:     sess.Token,
		Latitude:  lat,
		Longitude: lon,
	}
}
