// Package app assembles the storage and queue backends shared by the API
// and the worker.
package app

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"campusattend/internal/absentee"
	"campusattend/internal/attendance"
	"campusattend/internal/config"
	"campusattend/internal/queue"
	"campusattend/internal/store"
	"campusattend/internal/store/memory"
)

// Persistence is everything the services read and write.
type Persistence interface {
	attendance.Store
	attendance.Roster
	attendance.Catalog
	attendance.Directory
	absentee.Stats
}

// Backend holds the opened backends. Close releases them.
type Backend struct {
	Store         Persistence
	Alerts        queue.Queue
	Notifications queue.Queue
	Health        map[string]func(ctx context.Context) error

	closers []func() error
}

// Open connects the configured database and queue backend.
func Open(ctx context.Context, cfg config.App, log *slog.Logger) (*Backend, error) {
	b := &Backend{Health: map[string]func(ctx context.Context) error{}}

	switch cfg.DBDriver {
	case "memory":
		log.Warn("using in-memory store; data is lost on exit")
		b.Store = memory.New()
	default:
		st, err := store.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s store", cfg.DBDriver)
		}
		b.Store = st
		b.Health["db"] = st.Ping
		b.closers = append(b.closers, st.Close)
	}

	switch cfg.QueueBackend {
	case "memory":
		b.Alerts = queue.NewInMemory(256)
		b.Notifications = queue.NewInMemory(256)
	default:
		client := store.NewRedis(cfg.RedisAddr)
		if err := store.PingRedis(ctx, client); err != nil {
			log.Warn("redis not reachable at startup", "addr", cfg.RedisAddr, "error", err)
		}
		b.Alerts = queue.NewRedisQueue(client, queue.FlaggedCheckIns, log)
		b.Notifications = queue.NewRedisQueue(client, queue.Notifications, log)
		b.Health["redis"] = func(ctx context.Context) error { return store.PingRedis(ctx, client) }
		b.closers = append(b.closers, client.Close)
	}
	return b, nil
}

// Close releases the backends in reverse order of opening.
func (b *Backend) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
