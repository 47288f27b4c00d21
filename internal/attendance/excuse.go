package attendance

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
)

// NewExcuse is a student's excuse submission.
type NewExcuse struct {
	SessionID   string `json:"session_id" validate:"required"`
	Reason      string `json:"reason" validate:"required,max=2000"`
	DocumentRef string `json:"document_ref" validate:"omitempty,url"`
}

// Excuses runs the excuse request workflow.
type Excuses struct {
	store  Store
	roster Roster
	clock  clockwork.Clock
}

// NewExcuses creates the excuse workflow service.
func NewExcuses(store Store, roster Roster, clock clockwork.Clock) *Excuses {
	return &Excuses{store: store, roster: roster, clock: clock}
}

// Create files a pending excuse for a session the student missed or was
// flagged in.
func (x *Excuses) Create(ctx context.Context, actor Actor, in NewExcuse) (ExcuseRequest, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if err := check(in); err != nil {
		return ExcuseRequest{}, err
	}
	if actor.Role != RoleStudent {
		return ExcuseRequest{}, errors.Wrap(ErrForbidden, "only students can file excuses")
	}
	sess, err := x.store.GetSession(ctx, in.SessionID)
	if err != nil {
		return ExcuseRequest{}, err
	}
	enrolled, err := IsEnrolled(ctx, x.roster, actor.ID, sess.SectionID)
	if err != nil {
		return ExcuseRequest{}, errors.Wrap(err, "roster lookup")
	}
	if !enrolled {
		return ExcuseRequest{}, errors.Wrap(ErrForbidden, "student is not enrolled in this section")
	}

	rec, err := x.store.GetRecord(ctx, sess.ID, actor.ID)
	switch {
	case err == nil && !rec.IsFlagged:
		return ExcuseRequest{}, errors.Wrap(ErrConflict, "attendance already recorded for this session")
	case err != nil && !errors.Is(err, ErrNotFound):
		return ExcuseRequest{}, err
	}
	approved, err := x.store.HasExcuse(ctx, actor.ID, sess.ID, ExcuseApproved)
	if err != nil {
		return ExcuseRequest{}, err
	}
	if approved {
		return ExcuseRequest{}, errors.Wrap(ErrConflict, "session already excused")
	}

	req := ExcuseRequest{
		ID:          uuid.NewString(),
		StudentID:   actor.ID,
		SessionID:   sess.ID,
		Reason:      in.Reason,
		DocumentRef: optional(in.DocumentRef),
		Status:      ExcusePending,
		CreatedAt:   x.clock.Now().UTC().Truncate(time.Microsecond),
	}
	if err := x.store.CreateExcuse(ctx, req); err != nil {
		return ExcuseRequest{}, err
	}
	return req, nil
}

// Approve accepts a pending request; the session then counts as excused.
func (x *Excuses) Approve(ctx context.Context, actor Actor, requestID, notes string) (ExcuseRequest, error) {
	return x.decide(ctx, actor, requestID, ExcuseApproved, notes)
}

// Reject declines a pending request.
func (x *Excuses) Reject(ctx context.Context, actor Actor, requestID, notes string) (ExcuseRequest, error) {
	return x.decide(ctx, actor, requestID, ExcuseRejected, notes)
}

// List returns requests visible to a reviewer. Instructors only see
// requests against their own sessions.
func (x *Excuses) List(ctx context.Context, actor Actor, f ExcuseFilter) ([]ExcuseRequest, error) {
	switch actor.Role {
	case RoleAdmin:
	case RoleInstructor:
		f.InstructorID = actor.ID
	default:
		return nil, errors.Wrap(ErrForbidden, "only reviewers can list excuse requests")
	}
	f.StudentID = ""
	return x.store.ListExcuses(ctx, f)
}

// Mine returns the actor's own requests.
func (x *Excuses) Mine(ctx context.Context, actor Actor) ([]ExcuseRequest, error) {
	return x.store.ListExcuses(ctx, ExcuseFilter{StudentID: actor.ID})
}

func (x *Excuses) decide(ctx context.Context, actor Actor, requestID string, status ExcuseStatus, notes string) (ExcuseRequest, error) {
	req, err := x.store.GetExcuse(ctx, requestID)
	if err != nil {
		return ExcuseRequest{}, err
	}
	sess, err := x.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return ExcuseRequest{}, errors.Wrap(err, "excused session")
	}
	if !CanManage(actor, sess) {
		return ExcuseRequest{}, errors.Wrap(ErrForbidden, "reviewer must be the session's instructor or an admin")
	}
	if req.Status.Terminal() {
		return ExcuseRequest{}, errors.Wrapf(ErrConflict, "request already %s", req.Status)
	}

	d := Decision{
		RequestID:  req.ID,
		Status:     status,
		ReviewerID: actor.ID,
		ReviewedAt: x.clock.Now().UTC().Truncate(time.Microsecond),
		Notes:      strings.TrimSpace(notes),
	}
	if err := x.store.DecideExcuse(ctx, d); err != nil {
		return ExcuseRequest{}, err
	}
	req.Status = d.Status
	req.ReviewerID = optional(d.ReviewerID)
	req.ReviewedAt.SetValid(d.ReviewedAt)
	req.ReviewerNotes = optional(d.Notes)
	return req, nil
}
