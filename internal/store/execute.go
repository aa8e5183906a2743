package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/sqlrest/internal/postgrest"
	"github.com/roach88/sqlrest/internal/querysql"
)

// Execute runs req as a single SQL statement.
//
// Count requests return Response.Count. Selects and mutations with
// Returning return rows; mutations without Returning report only
// Affected.
func (s *Store) Execute(ctx context.Context, req *postgrest.Request) (*postgrest.Response, error) {
	stmt, err := s.compiler.Compile(req)
	if err != nil {
		if errors.Is(err, querysql.ErrUnsupported) {
			return nil, &postgrest.Error{Code: "0A000", Message: err.Error()}
		}
		return nil, fmt.Errorf("compile request: %w", err)
	}

	s.logger.Debug("executing statement",
		"table", req.Table,
		"action", string(req.Action),
		"sql", stmt.SQL,
		"args", len(stmt.Args))

	switch {
	case req.Count:
		return s.count(ctx, stmt)
	case stmt.Query:
		return s.query(ctx, req, stmt)
	default:
		return s.exec(ctx, stmt)
	}
}

func (s *Store) count(ctx context.Context, stmt querysql.Statement) (*postgrest.Response, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		return nil, normalizeError(err)
	}
	return &postgrest.Response{Rows: []map[string]any{}, Count: &n}, nil
}

func (s *Store) query(ctx context.Context, req *postgrest.Request, stmt querysql.Statement) (*postgrest.Response, error) {
	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, normalizeError(err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, normalizeError(err)
	}

	resp := &postgrest.Response{Rows: records}
	if req.Action != postgrest.ActionSelect {
		resp.Affected = int64(len(records))
	}
	return resp, nil
}

func (s *Store) exec(ctx context.Context, stmt querysql.Statement) (*postgrest.Response, error) {
	res, err := s.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, normalizeError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	return &postgrest.Response{Rows: []map[string]any{}, Affected: n}, nil
}

// scanRows reads every row into a column-keyed map.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}

	out := []map[string]any{}
	for rows.Next() {
		dest := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		record := make(map[string]any, len(types))
		for i, ct := range types {
			v, err := normalizeValue(dest[i], ct.DatabaseTypeName())
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", ct.Name(), err)
			}
			record[ct.Name()] = v
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
