package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine_SamePointIsZero(t *testing.T) {
	points := [][2]float64{
		{41.0150, 29.0450},
		{0, 0},
		{-33.8688, 151.2093},
		{90, 0},
	}
	for _, p := range points {
		assert.Equal(t, 0.0, Haversine(p[0], p[1], p[0], p[1]))
	}
}

func TestHaversine_Symmetric(t *testing.T) {
	a := [2]float64{41.0150, 29.0450}
	b := [2]float64{40.9920, 29.0290}
	ab := Haversine(a[0], a[1], b[0], b[1])
	ba := Haversine(b[0], b[1], a[0], a[1])
	assert.InDelta(t, ab, ba, 1e-9)
}

func TestHaversine_KnownDistances(t *testing.T) {
	tests := []struct {
		name       string
		lat1, lon1 float64
		lat2, lon2 float64
		want, tol  float64
	}{
		// one degree of latitude along a meridian
		{"one degree latitude", 0, 0, 1, 0, 111195, 1},
		// ~600 m north of the campus center
		{"600m north", 41.0150, 29.0450, 41.0150 + 600/111195.0, 29.0450, 600, 0.5},
		{"antipodal", 0, 0, 0, 180, math.Pi * EarthRadiusMeters, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.want, got, tt.tol)
		})
	}
}

func TestSpeed(t *testing.T) {
	assert.Equal(t, 10.0, Speed(100, 10))
	assert.Equal(t, Unbounded, Speed(100, 0))
	assert.Equal(t, Unbounded, Speed(0, -5))
}

func TestValidCoordinate(t *testing.T) {
	assert.True(t, ValidCoordinate(41.015, 29.045))
	assert.True(t, ValidCoordinate(-90, 180))
	assert.False(t, ValidCoordinate(90.1, 0))
	assert.False(t, ValidCoordinate(0, -180.5))
	assert.False(t, ValidCoordinate(math.NaN(), 0))
}
