package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/roach88/sqlrest/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Empty database
// 1 - CRM fixture tables (accounts, leads, activities, tasks)
const currentSchemaVersion = 1

// Config selects the database to run requests against.
type Config struct {
	// Driver is a database/sql driver name: pgx, postgres, mysql or sqlite3.
	Driver string

	// DSN is the driver-specific data source name.
	DSN string

	// ApplySchema creates the embedded CRM fixture tables (SQLite only).
	ApplySchema bool

	Logger *slog.Logger
}

// Store executes postgrest requests on a SQL database.
//
// Thread-safety: Store is safe for concurrent use; database/sql pools
// connections. SQLite is limited to one connection.
type Store struct {
	db       *sql.DB
	driver   string
	compiler *querysql.SQLCompiler
	logger   *slog.Logger
}

// Open connects to the configured database and verifies the connection.
//
// For SQLite the database is configured with the pragmas listed in the
// package documentation. This function is idempotent.
func Open(cfg Config) (*Store, error) {
	dialect, err := querysql.DialectForDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store: DSN is required for driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect == querysql.SQLite {
		// SQLite only supports one writer at a time, so limit connections
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
		if cfg.ApplySchema {
			if err := applySchema(db); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to apply schema: %w", err)
			}
		}
	} else if cfg.ApplySchema {
		db.Close()
		return nil, fmt.Errorf("store: the fixture schema is only available for sqlite3")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		db:       db,
		driver:   cfg.Driver,
		compiler: querysql.NewSQLCompiler(dialect),
		logger:   logger,
	}, nil
}

// OpenSQLite opens (or creates) a SQLite database at path with the
// fixture schema applied.
func OpenSQLite(path string) (*Store, error) {
	return Open(Config{Driver: "sqlite3", DSN: path, ApplySchema: true})
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer Execute.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the database/sql driver name.
func (s *Store) Driver() string {
	return s.driver
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the fixture tables and records the schema version.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
