package attendance

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"campusattend/internal/geo"
)

// Device is what the client platform reports about itself.
type Device struct {
	MockLocation bool   `json:"mock_location"`
	Description  string `json:"description"`
}

// CheckInAttempt is one student's presence claim.
type CheckInAttempt struct {
	StudentID string  `json:"student_id" validate:"required"`
	SessionID string  `json:"session_id" validate:"required"`
	Token     string  `json:"token" validate:"required"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Device    Device  `json:"device"`
	IPAddress string  `json:"-"`
	// At defaults to the verifier's clock.
	At time.Time `json:"-"`
}

// Verdict is the outcome of an accepted check-in. Flagged check-ins are
// still accepted and count as present.
type Verdict struct {
	Record         Record   `json:"record"`
	Accepted       bool     `json:"accepted"`
	Flagged        bool     `json:"flagged"`
	DistanceMeters float64  `json:"distance_meters"`
	FraudScore     int      `json:"fraud_score"`
	Reasons        []string `json:"reasons,omitempty"`
}

// Verifier turns check-in attempts into attendance records.
type Verifier struct {
	store    Store
	roster   Roster
	detector *Detector
	clock    clockwork.Clock
}

// NewVerifier creates a verifier.
func NewVerifier(store Store, roster Roster, detector *Detector, clock clockwork.Clock) *Verifier {
	return &Verifier{store: store, roster: roster, detector: detector, clock: clock}
}

// CheckIn validates the attempt against the session, scores it and
// persists the record. Only precondition failures reject the attempt.
func (v *Verifier) CheckIn(ctx context.Context, in CheckInAttempt) (Verdict, error) {
	if err := check(in, coordinateErrors("latitude", "longitude", in.Latitude, in.Longitude)...); err != nil {
		return Verdict{}, err
	}
	at := in.At
	if at.IsZero() {
		at = v.clock.Now()
	}
	at = at.UTC().Truncate(time.Microsecond)

	sess, err := v.store.GetSession(ctx, in.SessionID)
	if err != nil {
		return Verdict{}, err
	}
	if sess.Status != SessionOpen {
		return Verdict{}, errors.Wrapf(ErrSessionClosed, "session %s is %s", sess.ID, sess.Status)
	}
	if !tokenValid(sess, in.Token, at) {
		return Verdict{}, ErrQRExpired
	}
	enrolled, err := IsEnrolled(ctx, v.roster, in.StudentID, sess.SectionID)
	if err != nil {
		return Verdict{}, errors.Wrap(err, "roster lookup")
	}
	if !enrolled {
		return Verdict{}, errors.Wrap(ErrForbidden, "student is not enrolled in this section")
	}
	if _, err := v.store.GetRecord(ctx, sess.ID, in.StudentID); err == nil {
		return Verdict{}, errors.Wrap(ErrConflict, "already checked in")
	} else if !errors.Is(err, ErrNotFound) {
		return Verdict{}, err
	}

	distance := geo.Haversine(in.Latitude, in.Longitude, sess.CenterLatitude, sess.CenterLongitude)
	velocity, err := v.velocity(ctx, in, at)
	if err != nil {
		return Verdict{}, err
	}
	assessment := v.detector.Assess(Signals{
		DistanceMeters: distance,
		RadiusMeters:   sess.RadiusMeters,
		MockLocation:   in.Device.MockLocation,
		Velocity:       velocity,
	})

	rec := Record{
		ID:             uuid.NewString(),
		SessionID:      sess.ID,
		StudentID:      in.StudentID,
		CheckedInAt:    at,
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
		DistanceMeters: distance,
		MockLocation:   in.Device.MockLocation,
		VelocityMPS:    null.Float64FromPtr(velocity),
		FraudScore:     assessment.Score,
		IsFlagged:      assessment.Flagged,
		FlagReason:     assessment.Reason(),
		IPAddress:      optional(in.IPAddress),
		DeviceInfo:     optional(in.Device.Description),
	}
	if err := v.store.InsertRecord(ctx, rec); err != nil {
		return Verdict{}, err
	}
	return Verdict{
		Record:         rec,
		Accepted:       true,
		Flagged:        assessment.Flagged,
		DistanceMeters: distance,
		FraudScore:     assessment.Score,
		Reasons:        assessment.Reasons,
	}, nil
}

// History returns a student's own check-ins, newest first.
func (v *Verifier) History(ctx context.Context, studentID string, limit, offset int) ([]Record, error) {
	return v.store.ListRecordsByStudent(ctx, studentID, limit, offset)
}

// velocity derives travel speed from the student's previous check-in, or
// nil when there is none.
func (v *Verifier) velocity(ctx context.Context, in CheckInAttempt, at time.Time) (*float64, error) {
	prev, err := v.store.LatestRecord(ctx, in.StudentID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "previous check-in")
	}
	meters := geo.Haversine(prev.Latitude, prev.Longitude, in.Latitude, in.Longitude)
	speed := geo.Speed(meters, at.Sub(prev.CheckedInAt).Seconds())
	return &speed, nil
}

func tokenValid(sess Session, token string, at time.Time) bool {
	if sess.Token == "" || subtle.ConstantTimeCompare([]byte(sess.Token), []byte(token)) != 1 {
		return false
	}
	return at.Before(sess.TokenExpiresAt)
}

func optional(s string) null.String {
	if s == "" {
		return null.String{}
	}
	return null.StringFrom(s)
}
