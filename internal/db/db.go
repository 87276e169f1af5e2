package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	ErrNotFound        = errors.New("not found")
	ErrMalformedRecord = errors.New("malformed record")
)

// DB wraps the Postgres connection pool.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// ── Constructor ────────────────────────────────────────────────────────────────

// Open connects to Postgres without touching the schema.
func Open(databaseURL string) (*DB, error) {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging db: %w", err)
	}
	return NewWithConn(conn), nil
}

// New connects to Postgres and migrates the schema to the latest version.
func New(databaseURL string) (*DB, error) {
	if err := Migrate(databaseURL, -1); err != nil {
		return nil, err
	}
	return Open(databaseURL)
}

// NewWithConn wraps an existing connection. Used by tests.
func NewWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn, now: time.Now}
}

func (d *DB) Close() error { return d.conn.Close() }

// Ping checks connectivity.
func (d *DB) Ping() error { return d.conn.Ping() }

// ── Migrations ─────────────────────────────────────────────────────────────────

// Migrate moves the schema to targetVersion. A negative target means latest,
// zero rolls everything back. It uses its own connection.
func Migrate(databaseURL string, targetVersion int) error {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("opening db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("pinging db: %w", err)
	}
	driver, err := postgres.WithInstance(conn, &postgres.Config{})
	if err != nil {
		conn.Close()
		return fmt.Errorf("migrate driver: %w", err)
	}
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		driver.Close()
		return fmt.Errorf("migrations dir: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		driver.Close()
		return fmt.Errorf("migrations source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "coderats", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("migrate instance: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is dirty at version %d; fix manually", version)
	}

	switch {
	case targetVersion < 0:
		err = m.Up()
	case targetVersion == 0:
		err = m.Down()
	default:
		err = m.Migrate(uint(targetVersion))
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Printf("[db] schema already at version %d", version)
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	newVersion, _, _ := m.Version()
	log.Printf("[db] migrated schema from version %d to %d", version, newVersion)
	return nil
}
