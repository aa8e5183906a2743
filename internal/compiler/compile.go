package compiler

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/sqlrest/internal/ir"
	"github.com/roach88/sqlrest/internal/queryir"
	"github.com/roach88/sqlrest/internal/sqltext"
)

// Default pagination bounds.
const (
	DefaultLimit   = 1000
	DefaultMaxRows = 10000
)

// Options configures a Compiler.
type Options struct {
	// Strict turns every dropped WHERE fragment into a ParseError.
	Strict bool

	// DefaultLimit is the window size used when a SELECT has no LIMIT.
	DefaultLimit int

	// MaxRows caps any LIMIT.
	MaxRows int

	// Clock supplies "now" for relative-time conditions.
	Clock Clock

	Logger *slog.Logger
}

// Compiler turns parsed statements into CompiledStatements.
// It holds no per-call state and is safe for concurrent use.
type Compiler struct {
	opts   Options
	clock  Clock
	logger *slog.Logger
}

// New creates a Compiler, filling in defaults for zero options.
func New(opts Options) *Compiler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.DefaultLimit > opts.MaxRows {
		opts.DefaultLimit = opts.MaxRows
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{opts: opts, clock: clock, logger: logger}
}

// Translate parses sql, converts params and compiles the result.
func (c *Compiler) Translate(sql string, params []any) (*queryir.CompiledStatement, error) {
	stmt, err := sqltext.Parse(sql)
	if err != nil {
		return nil, err
	}
	values, err := ir.FromGoSlice(params)
	if err != nil {
		return nil, queryir.NewParseError("%v", err)
	}
	return c.Compile(stmt, values)
}

// Compile binds params into stmt and produces the statement the execution
// adapter consumes. WHERE fragments that match no recognizer are dropped
// with a warning, or rejected when Options.Strict is set.
func (c *Compiler) Compile(stmt *sqltext.ParsedStatement, params []ir.Value) (*queryir.CompiledStatement, error) {
	if stmt.Literal != nil {
		lit := *stmt.Literal
		return &queryir.CompiledStatement{Kind: queryir.KindSelect, Literal: &lit}, nil
	}

	s := &scope{binder: NewBinder(params), now: c.clock.Now()}
	out := &queryir.CompiledStatement{
		Kind:  stmt.Kind,
		Table: stmt.Table,
	}

	if err := c.compileWhere(s, stmt, out); err != nil {
		return nil, err
	}

	switch stmt.Kind {
	case queryir.KindSelect:
		out.Select = stmt.Columns
		out.Order = stmt.OrderBy
		out.Count = stmt.Count
		if !stmt.Count {
			rng, empty, err := c.window(s, stmt.Limit, stmt.Offset)
			if err != nil {
				return nil, err
			}
			out.Range = rng
			out.Empty = out.Empty || empty
		}
	case queryir.KindInsert:
		rows, err := insertRows(s, stmt)
		if err != nil {
			return nil, err
		}
		out.Rows = rows
		out.Returning = stmt.Returning
	case queryir.KindUpdate:
		payload := make(ir.Object, len(stmt.Assignments))
		for _, a := range stmt.Assignments {
			v, err := s.value(a.Value)
			if err != nil {
				return nil, valueError(a.Column, err)
			}
			payload[a.Column] = v
		}
		out.Payload = payload
		out.Returning = stmt.Returning
	case queryir.KindDelete:
		out.Returning = stmt.Returning
	default:
		return nil, queryir.NewParseError("statement type not supported")
	}

	if err := queryir.Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Compiler) compileWhere(s *scope, stmt *sqltext.ParsedStatement, out *queryir.CompiledStatement) error {
	if mixesAndOr(stmt.Where) {
		const reason = "OR mixed with AND must be parenthesized"
		if c.opts.Strict {
			return queryir.NewUnsupportedError(stmt.WhereText, reason)
		}
		c.drop(out, stmt.WhereText, reason)
		return nil
	}

	for _, frag := range stmt.Where {
		if frag.Err != nil {
			if c.opts.Strict {
				return frag.Err
			}
			c.drop(out, frag.Text, reasonOf(frag.Err))
			continue
		}

		filters, skip, err := compileCondition(s, frag.Expr)
		if err != nil {
			var n *unsatisfiable
			if errors.As(err, &n) {
				c.logger.Debug("condition never matches",
					"table", stmt.Table,
					"fragment", frag.Text,
					"reason", n.Reason,
				)
				out.Empty = true
				continue
			}
			var d *declined
			if !errors.As(err, &d) {
				return err
			}
			if c.opts.Strict {
				return queryir.NewUnsupportedError(frag.Text, d.Reason)
			}
			c.drop(out, frag.Text, d.Reason)
			continue
		}
		if skip {
			c.logger.Debug("condition skipped",
				"table", stmt.Table,
				"fragment", frag.Text,
			)
			continue
		}
		out.Filters = append(out.Filters, filters...)
	}
	return nil
}

// mixesAndOr reports a WHERE clause with AND and OR both at the top
// level. Splitting on AND first would group the OR tighter than SQL does.
func mixesAndOr(frags []sqltext.Fragment) bool {
	if len(frags) < 2 {
		return false
	}
	for _, frag := range frags {
		if _, ok := frag.Expr.(sqltext.Or); ok {
			return true
		}
	}
	return false
}

func (c *Compiler) drop(out *queryir.CompiledStatement, text, reason string) {
	c.logger.Warn("where condition dropped",
		"table", out.Table,
		"kind", string(out.Kind),
		"fragment", text,
		"reason", reason,
	)
	out.Dropped = append(out.Dropped, queryir.DroppedFragment{Text: text, Reason: reason})
}

func reasonOf(err error) string {
	var qe *queryir.Error
	if errors.As(err, &qe) {
		return qe.Message
	}
	return err.Error()
}

func insertRows(s *scope, stmt *sqltext.ParsedStatement) ([]ir.Object, error) {
	rows := make([]ir.Object, len(stmt.InsertRows))
	for i, tuple := range stmt.InsertRows {
		row := make(ir.Object, len(stmt.InsertColumns))
		for j, col := range stmt.InsertColumns {
			v, err := s.value(tuple[j])
			if err != nil {
				return nil, valueError(col, err)
			}
			row[col] = v
		}
		rows[i] = row
	}
	return rows, nil
}

// valueError reports a VALUES or SET expression that cannot be bound.
// Unlike a WHERE fragment it is never dropped: writing a partial record
// would be wrong.
func valueError(column string, err error) error {
	var d *declined
	if errors.As(err, &d) {
		return &queryir.Error{
			Kind:    queryir.KindParse,
			Code:    queryir.CodeFeatureNotSupp,
			Message: fmt.Sprintf("unsupported value for column %q", column),
			Detail:  d.Reason,
		}
	}
	return err
}
