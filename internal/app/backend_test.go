package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/config"
	"campusattend/internal/store/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestOpenInMemory(t *testing.T) {
	b, err := Open(context.Background(), config.App{DBDriver: "memory", QueueBackend: "memory"}, discard)
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &memory.Store{}, b.Store)
	assert.NotNil(t, b.Alerts)
	assert.NotNil(t, b.Notifications)
	assert.Empty(t, b.Health)
}

func TestOpenSQLite(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "attendance.db")
	b, err := Open(context.Background(), config.App{DBDriver: "sqlite", DatabaseURL: dsn, QueueBackend: "memory"}, discard)
	require.NoError(t, err)

	require.Contains(t, b.Health, "db")
	assert.NoError(t, b.Health["db"](context.Background()))
	assert.NoError(t, b.Close())
}
