package attendance

import (
	"strings"

	"github.com/volatiletech/null/v8"
)

// Reasons attached to a flagged record, in scoring order.
const (
	ReasonOutsideGeofence   = "outside_geofence"
	ReasonMockLocation      = "mock_location"
	ReasonImplausibleTravel = "implausible_travel"
)

// Thresholds are the tunable weights and cut-offs of the fraud score.
type Thresholds struct {
	GeofenceWeight     int
	MockLocationWeight int
	VelocityWeight     int
	// MaxPlausibleSpeed is the fastest believable travel, in m/s, between
	// two consecutive check-ins.
	MaxPlausibleSpeed float64
	FlagThreshold     int
	// FlagOutsideGeofence flags any geofence violation even when the
	// total stays under FlagThreshold.
	FlagOutsideGeofence bool
}

// DefaultThresholds returns the stock weights: 40 for leaving the geofence,
// 30 each for a mock-location device and implausible travel, flag at 50.
func DefaultThresholds() Thresholds {
	return Thresholds{
		GeofenceWeight:      40,
		MockLocationWeight:  30,
		VelocityWeight:      30,
		MaxPlausibleSpeed:   50,
		FlagThreshold:       50,
		FlagOutsideGeofence: true,
	}
}

// Signals are the measured facts about one check-in attempt.
type Signals struct {
	DistanceMeters float64
	RadiusMeters   float64
	MockLocation   bool
	// Velocity is nil when the student has no earlier check-in.
	Velocity *float64
}

// Assessment is the detector's verdict on one attempt.
type Assessment struct {
	Score   int
	Flagged bool
	Reasons []string
}

// Reason joins the triggered signals for storage, or null when none fired.
func (a Assessment) Reason() null.String {
	if len(a.Reasons) == 0 {
		return null.String{}
	}
	return null.StringFrom(strings.Join(a.Reasons, ","))
}

// Detector scores check-in attempts. It holds no state besides its
// thresholds and is safe for concurrent use.
type Detector struct {
	t Thresholds
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(t Thresholds) *Detector {
	return &Detector{t: t}
}

// Thresholds returns the configured thresholds.
func (d *Detector) Thresholds() Thresholds { return d.t }

// Assess sums the weights of every independently triggered signal.
func (d *Detector) Assess(s Signals) Assessment {
	var a Assessment
	outside := s.DistanceMeters > s.RadiusMeters
	if outside {
		a.Score += d.t.GeofenceWeight
		a.Reasons = append(a.Reasons, ReasonOutsideGeofence)
	}
	if s.MockLocation {
		a.Score += d.t.MockLocationWeight
		a.Reasons = append(a.Reasons, ReasonMockLocation)
	}
	if s.Velocity != nil && *s.Velocity > d.t.MaxPlausibleSpeed {
		a.Score += d.t.VelocityWeight
		a.Reasons = append(a.Reasons, ReasonImplausibleTravel)
	}
	a.Flagged = a.Score >= d.t.FlagThreshold || (outside && d.t.FlagOutsideGeofence)
	return a
}
