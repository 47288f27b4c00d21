package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "pgx", cfg.DBDriver)
	assert.Equal(t, 5*time.Minute, cfg.QRTokenTTL)
	assert.Equal(t, 40, cfg.Fraud.GeofenceWeight)
	assert.Equal(t, 30, cfg.Fraud.MockLocationWeight)
	assert.Equal(t, 30, cfg.Fraud.VelocityWeight)
	assert.Equal(t, 50, cfg.Fraud.FlagThreshold)
	assert.True(t, cfg.Fraud.FlagOutsideGeofence)
	assert.InDelta(t, 50.0, cfg.Fraud.MaxPlausibleSpeed, 1e-9)
	assert.InDelta(t, 20.0, cfg.Absentee.ThresholdPercent, 1e-9)
	assert.Equal(t, "0 6 * * *", cfg.Absentee.Schedule)
	assert.Equal(t, 5*time.Minute, cfg.Absentee.RetryCooldown)
	assert.False(t, cfg.CloudinaryConfigured())
	assert.Empty(t, cfg.CORSOrigins)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("QR_TOKEN_TTL", "90s")
	t.Setenv("FRAUD_FLAG_OUTSIDE_GEOFENCE", "false")
	t.Setenv("ABSENTEE_THRESHOLD_PERCENT", "35")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://portal.example.edu, https://staff.example.edu,")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 90*time.Second, cfg.QRTokenTTL)
	assert.False(t, cfg.Fraud.FlagOutsideGeofence)
	assert.InDelta(t, 35.0, cfg.Absentee.ThresholdPercent, 1e-9)
	assert.Equal(t, []string{"https://portal.example.edu", "https://staff.example.edu"}, cfg.CORSOrigins)
}

func TestLoadDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RATE_LIMIT_PER_MIN=7\nCLOUDINARY_CLOUD_NAME=demo\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("RATE_LIMIT_PER_MIN")
		os.Unsetenv("CLOUDINARY_CLOUD_NAME")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.RateLimitPerMin)
	assert.Equal(t, "demo", cfg.CloudinaryCloudName)
}

func TestLoadMissingDotEnvIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(*App){
		"unknown driver":      func(a *App) { a.DBDriver = "mysql" },
		"unknown queue":       func(a *App) { a.QueueBackend = "kafka" },
		"dev key in prod":     func(a *App) { a.Env = "production" },
		"zero token ttl":      func(a *App) { a.QRTokenTTL = 0 },
		"threshold over 100":  func(a *App) { a.Absentee.ThresholdPercent = 120 },
		"zero retry cooldown": func(a *App) { a.Absentee.RetryCooldown = 0 },
		"zero rate limit":     func(a *App) { a.RateLimitPerMin = 0 },
		"negative rate limit": func(a *App) { a.RateLimitPerMin = -5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsDisabledRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MIN", "0")
	_, err := Load("")
	assert.ErrorContains(t, err, "RATE_LIMIT_PER_MIN")
}
