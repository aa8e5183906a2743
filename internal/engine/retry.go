package engine

import (
	"errors"
	"regexp"
	"slices"

	"github.com/roach88/sqlrest/internal/postgrest"
	"github.com/roach88/sqlrest/internal/queryir"
)

// stalenessPattern matches the errors a lagging schema cache produces
// when a recently added column is written: PostgREST's PGRST204, Postgres
// "column ... does not exist", SQLite "no such column", MySQL "Unknown
// column".
var stalenessPattern = regexp.MustCompile(`(?i)schema cache|PGRST204|column .* does not exist|no such column|unknown column`)

// VolatileSource reports which columns of a table may be missing from the
// backend's schema cache. catalog.Catalog implements it.
type VolatileSource interface {
	VolatileColumns(table string) []string
}

// StaticVolatile applies one column list to every table.
type StaticVolatile []string

// VolatileColumns implements VolatileSource.
func (s StaticVolatile) VolatileColumns(string) []string {
	return s
}

// DefaultVolatileColumns are the recently introduced CRM columns used when
// no catalog is configured.
var DefaultVolatileColumns = StaticVolatile{
	"last_contacted_at",
	"last_activity_at",
	"enriched_at",
	"ai_summary",
}

// isStale reports whether err has the stale schema signature.
func isStale(err error) bool {
	if err == nil {
		return false
	}
	if stalenessPattern.MatchString(err.Error()) {
		return true
	}
	if pe, ok := postgrest.AsError(err); ok {
		return stalenessPattern.MatchString(pe.Details) || stalenessPattern.MatchString(pe.Hint)
	}
	var qe *queryir.Error
	if errors.As(err, &qe) {
		return stalenessPattern.MatchString(qe.Detail)
	}
	return false
}

// retryStatement decides whether a failed statement gets its one retry.
// It returns the stripped statement and the removed columns, or ok=false
// when the error is not a staleness error, the statement is not an
// UPDATE, the payload holds no volatile column, or stripping would leave
// nothing to write.
func retryStatement(stmt *queryir.CompiledStatement, err error, volatile []string) (retry *queryir.CompiledStatement, stripped []string, ok bool) {
	if stmt.Kind != queryir.KindUpdate || !isStale(err) {
		return nil, nil, false
	}
	for _, col := range stmt.PayloadColumns() {
		if slices.Contains(volatile, col) {
			stripped = append(stripped, col)
		}
	}
	if len(stripped) == 0 || len(stripped) == len(stmt.Payload) {
		return nil, nil, false
	}
	return stmt.WithoutColumns(stripped), stripped, true
}
