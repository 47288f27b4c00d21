package store

import (
	"context"
	"embed"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"campusattend/internal/attendance"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Supported database drivers.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Store persists attendance state in Postgres or SQLite.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects, waits for the database and applies pending migrations.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver == "" {
		driver = DriverPostgres
	}
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	switch driver {
	case DriverSQLite:
		// one connection serialises writers and keeps :memory: databases alive
		db.SetMaxOpenConns(1)
	default:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "pinging database")
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	dialect := "postgres"
	if s.driver == DriverSQLite {
		dialect = "sqlite3"
	}
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return errors.Wrap(err, "migration dialect")
	}
	if err := goose.UpContext(ctx, s.db.DB, "migrations"); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

// sqliteDSN makes timestamps sortable text and turns on foreign keys
// unless the DSN already says otherwise.
func sqliteDSN(dsn string) string {
	var extra []string
	if !strings.Contains(dsn, "_time_format=") {
		extra = append(extra, "_time_format=sqlite")
	}
	if !strings.Contains(dsn, "foreign_keys") {
		extra = append(extra, "_pragma=foreign_keys(1)")
	}
	if len(extra) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(extra, "&")
}

// Ping reports database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind converts ? placeholders to the driver's bindvar style.
func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}

// withTx runs fn in a transaction, committing if it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

var (
	_ attendance.Store     = (*Store)(nil)
	_ attendance.Roster    = (*Store)(nil)
	_ attendance.Catalog   = (*Store)(nil)
	_ attendance.Directory = (*Store)(nil)
)
