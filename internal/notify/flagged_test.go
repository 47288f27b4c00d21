package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"campusattend/internal/attendance"
	"campusattend/internal/queue"
	"campusattend/internal/store/memory"
)

type captured struct {
	mu   sync.Mutex
	sent []attendance.Notification
}

func (c *captured) Send(_ context.Context, n attendance.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func (c *captured) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	st := memory.New()
	st.AddSection(attendance.Section{ID: "sec-1", Code: "A", CourseCode: "CS101", InstructorID: "ins-1"})
	require.NoError(t, st.CreateSession(context.Background(), attendance.Session{
		ID:           "sess-1",
		SectionID:    "sec-1",
		InstructorID: "ins-1",
		Date:         time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC),
		Status:       attendance.SessionOpen,
	}))
	return st
}

func TestFlaggedAlertsNotifyInstructor(t *testing.T) {
	st := seededStore(t)
	out := &captured{}
	alerts := NewFlaggedAlerts(st, st, out, nil)

	rec := attendance.Record{
		ID:         "rec-1",
		SessionID:  "sess-1",
		StudentID:  "stu-a",
		FraudScore: 70,
		IsFlagged:  true,
		FlagReason: null.StringFrom("outside geofence; mock location"),
	}
	msg, err := queue.NewMessage(FlaggedMessageType, FlaggedFromRecord(rec))
	require.NoError(t, err)
	require.NoError(t, alerts.Handle(context.Background(), msg))

	require.Len(t, out.sent, 1)
	n := out.sent[0]
	assert.Equal(t, "ins-1", n.UserID)
	assert.Equal(t, CategoryFlagged, n.Category)
	assert.Equal(t, "attendance_record", n.RelatedEntityType)
	assert.Equal(t, "rec-1", n.RelatedEntityID)
	assert.Contains(t, n.Message, "CS101")
	assert.Contains(t, n.Message, "2026-10-15")
	assert.Contains(t, n.Message, "score 70")
}

func TestFlaggedAlertsUnknownSession(t *testing.T) {
	st := seededStore(t)
	alerts := NewFlaggedAlerts(st, st, &captured{}, nil)

	msg, err := queue.NewMessage(FlaggedMessageType, FlaggedCheckIn{SessionID: "missing"})
	require.NoError(t, err)
	assert.ErrorIs(t, alerts.Handle(context.Background(), msg), attendance.ErrNotFound)
}

func TestFlaggedAlertsRunDrainsQueue(t *testing.T) {
	st := seededStore(t)
	out := &captured{}
	alerts := NewFlaggedAlerts(st, st, out, nil)

	q := queue.NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	other, _ := queue.NewMessage("something.else", map[string]string{})
	require.NoError(t, q.Publish(ctx, other))
	msg, _ := queue.NewMessage(FlaggedMessageType, FlaggedCheckIn{RecordID: "rec-1", SessionID: "sess-1", StudentID: "stu-a"})
	require.NoError(t, q.Publish(ctx, msg))

	done := make(chan error, 1)
	go func() { done <- alerts.Run(ctx, q) }()

	require.Eventually(t, func() bool { return out.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
