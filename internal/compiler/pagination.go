package compiler

import (
	"errors"
	"math"

	"github.com/roach88/sqlrest/internal/ir"
	"github.com/roach88/sqlrest/internal/queryir"
	"github.com/roach88/sqlrest/internal/sqltext"
)

// window computes the row range for a SELECT.
//
// A missing LIMIT (or LIMIT bound to NULL) selects the default window so
// the adapter never asks for an unbounded set. LIMIT 0 reports empty.
func (c *Compiler) window(s *scope, limitExpr, offsetExpr sqltext.Expr) (rng *queryir.Range, empty bool, err error) {
	limit, ok, err := paginationValue(s, "LIMIT", limitExpr)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		limit = int64(c.opts.DefaultLimit)
	}
	offset, _, err := paginationValue(s, "OFFSET", offsetExpr)
	if err != nil {
		return nil, false, err
	}

	if limit == 0 {
		return nil, true, nil
	}
	if limit > int64(c.opts.MaxRows) {
		c.logger.Debug("limit capped",
			"limit", limit,
			"max_rows", c.opts.MaxRows,
		)
		limit = int64(c.opts.MaxRows)
	}
	if offset > math.MaxInt64-limit+1 {
		return nil, false, queryir.NewParseError("OFFSET %d is too large", offset)
	}
	return &queryir.Range{From: offset, To: offset + limit - 1}, false, nil
}

// paginationValue resolves a LIMIT/OFFSET operand. ok is false when the
// clause is absent or bound to NULL.
func paginationValue(s *scope, clause string, e sqltext.Expr) (int64, bool, error) {
	if e == nil {
		return 0, false, nil
	}
	v, err := s.value(e)
	if err != nil {
		var d *declined
		if errors.As(err, &d) {
			return 0, false, queryir.NewParseError("%s: %s", clause, d.Reason)
		}
		return 0, false, err
	}
	if ir.IsNull(v) {
		return 0, false, nil
	}
	n, ok := ir.AsInt(v)
	if !ok {
		return 0, false, queryir.NewParseError("%s must be an integer, got %s", clause, ir.Text(v))
	}
	if n < 0 {
		return 0, false, queryir.NewParseError("%s must not be negative, got %d", clause, n)
	}
	return n, true, nil
}
