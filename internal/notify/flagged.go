package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"campusattend/internal/attendance"
	"campusattend/internal/queue"
)

// FlaggedMessageType tags flagged check-in events on queue.FlaggedCheckIns.
const FlaggedMessageType = "checkin.flagged"

// FlaggedCheckIn is published by the API for every accepted check-in the
// detector flagged.
type FlaggedCheckIn struct {
	RecordID   string `json:"record_id"`
	SessionID  string `json:"session_id"`
	StudentID  string `json:"student_id"`
	FraudScore int    `json:"fraud_score"`
	Reason     string `json:"reason"`
}

// FlaggedFromRecord builds the event for rec.
func FlaggedFromRecord(rec attendance.Record) FlaggedCheckIn {
	return FlaggedCheckIn{
		RecordID:   rec.ID,
		SessionID:  rec.SessionID,
		StudentID:  rec.StudentID,
		FraudScore: rec.FraudScore,
		Reason:     rec.FlagReason.String,
	}
}

// SessionGetter is the part of the session store alerts need.
type SessionGetter interface {
	GetSession(ctx context.Context, id string) (attendance.Session, error)
}

// FlaggedAlerts turns flagged check-in events into notifications for the
// session's instructor.
type FlaggedAlerts struct {
	sessions SessionGetter
	catalog  attendance.Catalog
	notifier attendance.Notifier
	log      *slog.Logger
}

// NewFlaggedAlerts creates the alert consumer.
func NewFlaggedAlerts(sessions SessionGetter, catalog attendance.Catalog, notifier attendance.Notifier, log *slog.Logger) *FlaggedAlerts {
	if log == nil {
		log = slog.Default()
	}
	return &FlaggedAlerts{sessions: sessions, catalog: catalog, notifier: notifier, log: log}
}

// Run consumes q until ctx is done. Failed events are logged and dropped.
func (a *FlaggedAlerts) Run(ctx context.Context, q queue.Queue) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return errors.Wrap(err, "consume flagged check-ins")
	}
	for msg := range msgs {
		if msg.Type != FlaggedMessageType {
			a.log.Warn("skipping unexpected message", "type", msg.Type)
			continue
		}
		if err := a.Handle(ctx, msg); err != nil {
			a.log.Error("flagged check-in alert failed", "error", err)
		}
	}
	return nil
}

// Handle notifies the instructor about one flagged check-in.
func (a *FlaggedAlerts) Handle(ctx context.Context, msg queue.Message) error {
	var evt FlaggedCheckIn
	if err := msg.Decode(&evt); err != nil {
		return err
	}
	sess, err := a.sessions.GetSession(ctx, evt.SessionID)
	if err != nil {
		return errors.Wrapf(err, "session %s", evt.SessionID)
	}
	course := sess.SectionID
	if sec, err := a.catalog.Section(ctx, sess.SectionID); err == nil {
		course = sec.CourseCode
	} else {
		a.log.Warn("section lookup failed", "section", sess.SectionID, "error", err)
	}

	n := attendance.Notification{
		UserID:            sess.InstructorID,
		Title:             "Suspicious check-in",
		Message:           fmt.Sprintf("A check-in by student %s for %s on %s was flagged (score %d): %s.", evt.StudentID, course, sess.Date.Format("2006-01-02"), evt.FraudScore, evt.Reason),
		Category:          CategoryFlagged,
		RelatedEntityType: "attendance_record",
		RelatedEntityID:   evt.RecordID,
	}
	return a.notifier.Send(ctx, n)
}
