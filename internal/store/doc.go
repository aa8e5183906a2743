// Package store executes structured query requests against a SQL database.
//
// Store implements postgrest.Client: each Request is compiled to one
// parameterized statement by querysql and run on database/sql. Supported
// drivers:
//
//   - pgx      (github.com/jackc/pgx/v5/stdlib)
//   - postgres (github.com/lib/pq)
//   - mysql    (github.com/go-sql-driver/mysql)
//   - sqlite3  (github.com/mattn/go-sqlite3)
//
// # Result normalization
//
// Rows come back the way the PostgREST HTTP client returns them: numbers
// as json.Number, JSON columns decoded, byte slices as strings and
// timestamps as RFC 3339 text.
//
// # Errors
//
// Driver errors are converted to *postgrest.Error with the SQLSTATE (or
// driver error number) in Code, so callers see one error shape whichever
// backend is configured.
//
// # SQLite configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// With Config.ApplySchema the embedded CRM fixture schema is created.
package store
