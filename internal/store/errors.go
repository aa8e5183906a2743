package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/sqlrest/internal/postgrest"
)

// normalizeError converts driver errors to *postgrest.Error.
// Context cancellation passes through so callers can detect it.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("query interrupted: %w", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &postgrest.Error{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &postgrest.Error{
			Code:    string(pqErr.Code),
			Message: pqErr.Message,
			Details: pqErr.Detail,
			Hint:    pqErr.Hint,
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		code := string(myErr.SQLState[:])
		if myErr.SQLState == [5]byte{} {
			code = strconv.Itoa(int(myErr.Number))
		}
		return &postgrest.Error{
			Code:    code,
			Message: myErr.Message,
			Details: "MySQL error " + strconv.Itoa(int(myErr.Number)),
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return &postgrest.Error{
			Code:    fmt.Sprintf("SQLITE%d", int(liteErr.ExtendedCode)),
			Message: liteErr.Error(),
		}
	}

	return err
}
