package engine

import (
	"strconv"

	"github.com/roach88/sqlrest/internal/postgrest"
	"github.com/roach88/sqlrest/internal/queryir"
)

// LiteralColumn is the column name of the synthetic SELECT <int> row,
// matching what Postgres reports for an unnamed expression.
const LiteralColumn = "?column?"

// literalResult answers SELECT <int> without touching the backend.
func literalResult(n int64) *queryir.Result {
	return queryir.NewResult([]map[string]any{{LiteralColumn: n}})
}

// normalize converts a backend response into the caller-facing result.
//
// COUNT(*) yields one synthetic {"count": "<N>"} row. SELECT yields the
// rows. Mutations yield their RETURNING rows (none without RETURNING) and
// report the number of rows touched as RowCount.
func normalize(stmt *queryir.CompiledStatement, resp *postgrest.Response) *queryir.Result {
	if resp == nil {
		resp = &postgrest.Response{}
	}

	if stmt.Count {
		var n int64
		if resp.Count != nil {
			n = *resp.Count
		}
		return queryir.NewResult([]map[string]any{{"count": strconv.FormatInt(n, 10)}})
	}

	if stmt.Kind == queryir.KindSelect {
		return queryir.NewResult(resp.Rows)
	}

	var res *queryir.Result
	if stmt.HasReturning() {
		res = queryir.NewResult(resp.Rows)
	} else {
		res = queryir.NewResult(nil)
	}
	if n := int(resp.Affected); n > res.RowCount {
		res.RowCount = n
	}
	return res
}
