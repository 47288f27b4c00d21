package attendance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"campusattend/internal/attendance"
)

func ptr(v float64) *float64 { return &v }

func TestAssessScoresTriggeredSignals(t *testing.T) {
	d := attendance.NewDetector(attendance.DefaultThresholds())

	cases := []struct {
		name    string
		s       attendance.Signals
		score   int
		flagged bool
		reasons []string
	}{
		{"on site", attendance.Signals{DistanceMeters: 3, RadiusMeters: 15}, 0, false, nil},
		{"first check-in has no velocity", attendance.Signals{DistanceMeters: 0, RadiusMeters: 15, Velocity: nil}, 0, false, nil},
		{"outside geofence", attendance.Signals{DistanceMeters: 600, RadiusMeters: 15, Velocity: ptr(1)}, 40, true,
			[]string{attendance.ReasonOutsideGeofence}},
		{"mock location only", attendance.Signals{DistanceMeters: 1, RadiusMeters: 15, MockLocation: true}, 30, false,
			[]string{attendance.ReasonMockLocation}},
		{"outside and mocked", attendance.Signals{DistanceMeters: 600, RadiusMeters: 15, MockLocation: true}, 70, true,
			[]string{attendance.ReasonOutsideGeofence, attendance.ReasonMockLocation}},
		{"mocked and teleporting", attendance.Signals{DistanceMeters: 1, RadiusMeters: 15, MockLocation: true, Velocity: ptr(900)}, 60, true,
			[]string{attendance.ReasonMockLocation, attendance.ReasonImplausibleTravel}},
		{"everything", attendance.Signals{DistanceMeters: 600, RadiusMeters: 15, MockLocation: true, Velocity: ptr(900)}, 100, true,
			[]string{attendance.ReasonOutsideGeofence, attendance.ReasonMockLocation, attendance.ReasonImplausibleTravel}},
		{"speed at the limit is plausible", attendance.Signals{DistanceMeters: 1, RadiusMeters: 15, Velocity: ptr(50)}, 0, false, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := d.Assess(tc.s)
			assert.Equal(t, tc.score, a.Score)
			assert.Equal(t, tc.flagged, a.Flagged)
			assert.Equal(t, tc.reasons, a.Reasons)
		})
	}
}

func TestAssessGeofenceBoundary(t *testing.T) {
	d := attendance.NewDetector(attendance.DefaultThresholds())
	for _, r := range []float64{5, 15, 42.5, 100} {
		inside := d.Assess(attendance.Signals{DistanceMeters: r, RadiusMeters: r})
		assert.NotContains(t, inside.Reasons, attendance.ReasonOutsideGeofence, "D == R is inside")

		outside := d.Assess(attendance.Signals{DistanceMeters: r + 0.001, RadiusMeters: r})
		assert.Contains(t, outside.Reasons, attendance.ReasonOutsideGeofence, "D > R is outside")
	}
}

func TestAssessThresholdOnlyFlagging(t *testing.T) {
	th := attendance.DefaultThresholds()
	th.FlagOutsideGeofence = false
	d := attendance.NewDetector(th)

	a := d.Assess(attendance.Signals{DistanceMeters: 600, RadiusMeters: 15})
	assert.Equal(t, 40, a.Score)
	assert.False(t, a.Flagged, "40 stays below the threshold of 50")

	a = d.Assess(attendance.Signals{DistanceMeters: 600, RadiusMeters: 15, MockLocation: true})
	assert.True(t, a.Flagged)
}

func TestAssessmentReason(t *testing.T) {
	assert.False(t, attendance.Assessment{}.Reason().Valid)
	r := attendance.Assessment{Reasons: []string{"a", "b"}}.Reason()
	assert.True(t, r.Valid)
	assert.Equal(t, "a,b", r.String)
}
