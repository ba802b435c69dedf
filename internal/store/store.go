// Package store is the relational backing of the Scoped Entity Store. Each
// entity kind lives in its own table holding the full row as a JSON document
// next to the few promoted columns used for filtering and ordering.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	sqlite "github.com/mattn/go-sqlite3"

	"github.com/starford/staykeep/internal/apperr"
	"github.com/starford/staykeep/internal/entity"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// timeLayout sorts lexically in the same order as the instants it encodes.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

//go:embed migrations
var migrationsFS embed.FS

// DB wraps a sql.DB with entity-store operations.
type DB struct {
	conn    *sql.DB
	dialect string
	now     func() time.Time

	mu    sync.RWMutex
	hooks []func(entity.Change)
}

// Open connects to the database and applies pending migrations.
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := runMigrations(conn, driver); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &DB{
		conn:    conn,
		dialect: driver,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func runMigrations(conn *sql.DB, driver string) error {
	dir := "migrations/sqlite3"
	if driver == DriverPostgres {
		dir = "migrations/pgx"
	}
	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var m *migrate.Migrate
	switch driver {
	case DriverPostgres:
		drv, err := pgxmigrate.WithInstance(conn, &pgxmigrate.Config{})
		if err != nil {
			return err
		}
		m, err = migrate.NewWithInstance("iofs", src, "pgx", drv)
		if err != nil {
			return err
		}
	default:
		drv, err := sqlite3.WithInstance(conn, &sqlite3.Config{})
		if err != nil {
			return err
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite3", drv)
		if err != nil {
			return err
		}
	}
	// m.Close would close conn through the database driver; only the source is released.
	defer src.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// OnChange registers fn to be called after every committed write.
func (db *DB) OnChange(fn func(entity.Change)) {
	db.mu.Lock()
	db.hooks = append(db.hooks, fn)
	db.mu.Unlock()
}

func (db *DB) emit(changes ...entity.Change) {
	db.mu.RLock()
	hooks := db.hooks
	db.mu.RUnlock()
	for _, c := range changes {
		for _, fn := range hooks {
			fn(c)
		}
	}
}

// rebind rewrites "?" placeholders for dialects that number them.
func (db *DB) rebind(query string) string {
	if db.dialect != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func isUniqueViolation(err error) bool {
	var se sqlite.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite.ErrConstraintUnique || se.ExtendedCode == sqlite.ErrConstraintPrimaryKey
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

// wrapWriteErr maps driver constraint errors onto apperr sentinels.
func wrapWriteErr(op, table string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("store: %s %s: %w", op, table, apperr.ErrAlreadyExists)
	}
	return fmt.Errorf("store: %s %s: %w", op, table, err)
}
