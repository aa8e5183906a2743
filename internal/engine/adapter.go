package engine

import (
	"fmt"

	"github.com/roach88/sqlrest/internal/ir"
	"github.com/roach88/sqlrest/internal/postgrest"
	"github.com/roach88/sqlrest/internal/queryir"
)

// buildRequest maps a compiled statement onto builder calls. Each filter
// becomes exactly one call; the recorded sequence is kept on the request.
func buildRequest(stmt *queryir.CompiledStatement) (*postgrest.Request, error) {
	b := postgrest.From(stmt.Table)

	switch stmt.Kind {
	case queryir.KindSelect:
		if stmt.Count {
			b.Count()
		} else {
			b.Select(stmt.Select...)
		}
	case queryir.KindInsert:
		b.Insert(stmt.Rows...)
	case queryir.KindUpdate:
		b.Update(stmt.Payload)
	case queryir.KindDelete:
		b.Delete()
	default:
		return nil, fmt.Errorf("unsupported statement kind %q", stmt.Kind)
	}

	for _, f := range stmt.Filters {
		if err := applyFilter(b, f); err != nil {
			return nil, err
		}
	}

	if stmt.Kind == queryir.KindSelect && !stmt.Count {
		for _, o := range stmt.Order {
			b.Order(o.Column, o.Ascending)
		}
		if stmt.Range != nil {
			b.Range(stmt.Range.From, stmt.Range.To)
		}
	}
	if stmt.Returning != nil {
		b.Returning(stmt.Returning...)
	}
	return b.Request(), nil
}

func field(c queryir.Column) postgrest.Field {
	return postgrest.Field{Column: c.Name, Path: c.Path, Text: c.Text}
}

// applyFilter issues the builder call for one filter.
func applyFilter(b *postgrest.QueryBuilder, f queryir.Filter) error {
	fd := field(f.Column)

	switch f.Op {
	case queryir.OpEq:
		b.Eq(fd, f.Value)
	case queryir.OpNotEq:
		b.Neq(fd, f.Value)
	case queryir.OpIn:
		b.In(fd, f.Values)
	case queryir.OpNotIn:
		for _, v := range f.Values {
			b.Neq(fd, v)
		}
	case queryir.OpILike:
		b.ILike(fd, f.Value)
	case queryir.OpJSONTextEq:
		b.Filter(fd, postgrest.OpEq, f.Value)
	case queryir.OpJSONTextILike:
		b.Filter(fd, postgrest.OpILike, f.Value)
	case queryir.OpJSONContains:
		b.Contains(fd, f.Value)
	case queryir.OpBoolEq:
		if fd.IsJSON() {
			b.Filter(fd, postgrest.OpEq, ir.Bool(f.Expected))
		} else {
			b.Eq(fd, ir.Bool(f.Expected))
		}
	case queryir.OpBoolOrDefault:
		// A missing flag counts as the default, which equals Expected.
		b.Or(
			postgrest.Cond(fd, postgrest.OpIs, ir.Null{}),
			postgrest.Cond(fd, postgrest.OpEq, ir.Bool(f.Expected)),
		)
	case queryir.OpDateGte, queryir.OpGte:
		b.Gte(fd, f.Value)
	case queryir.OpDateLte, queryir.OpLte:
		b.Lte(fd, f.Value)
	case queryir.OpIntervalGt, queryir.OpGt:
		b.Gt(fd, f.Value)
	case queryir.OpIntervalLt, queryir.OpLt:
		b.Lt(fd, f.Value)
	case queryir.OpIsNull:
		b.Is(fd, ir.Null{})
	case queryir.OpNotNull:
		b.Not(fd, postgrest.OpIs, ir.Null{})
	case queryir.OpAnyOf:
		alternatives := make([]postgrest.Condition, len(f.Any))
		for i, sub := range f.Any {
			c, err := condition(sub)
			if err != nil {
				return err
			}
			alternatives[i] = c
		}
		b.Or(alternatives...)
	default:
		return fmt.Errorf("no builder call for operator %q", f.Op)
	}
	return nil
}

// condition renders a leaf filter as a standalone condition for use
// inside an OR group.
func condition(f queryir.Filter) (postgrest.Condition, error) {
	fd := field(f.Column)

	switch f.Op {
	case queryir.OpEq, queryir.OpJSONTextEq:
		return postgrest.Cond(fd, postgrest.OpEq, f.Value), nil
	case queryir.OpNotEq:
		return postgrest.Cond(fd, postgrest.OpNeq, f.Value), nil
	case queryir.OpBoolEq:
		return postgrest.Cond(fd, postgrest.OpEq, ir.Bool(f.Expected)), nil
	case queryir.OpILike, queryir.OpJSONTextILike:
		return postgrest.Cond(fd, postgrest.OpILike, f.Value), nil
	case queryir.OpJSONContains:
		return postgrest.Cond(fd, postgrest.OpContains, f.Value), nil
	case queryir.OpGt, queryir.OpIntervalGt:
		return postgrest.Cond(fd, postgrest.OpGt, f.Value), nil
	case queryir.OpGte, queryir.OpDateGte:
		return postgrest.Cond(fd, postgrest.OpGte, f.Value), nil
	case queryir.OpLt, queryir.OpIntervalLt:
		return postgrest.Cond(fd, postgrest.OpLt, f.Value), nil
	case queryir.OpLte, queryir.OpDateLte:
		return postgrest.Cond(fd, postgrest.OpLte, f.Value), nil
	case queryir.OpIn:
		return postgrest.InCond(fd, f.Values), nil
	case queryir.OpNotIn:
		c := postgrest.InCond(fd, f.Values)
		c.Negate = true
		return c, nil
	case queryir.OpIsNull:
		return postgrest.Cond(fd, postgrest.OpIs, ir.Null{}), nil
	case queryir.OpNotNull:
		c := postgrest.Cond(fd, postgrest.OpIs, ir.Null{})
		c.Negate = true
		return c, nil
	default:
		return postgrest.Condition{}, fmt.Errorf("operator %q cannot appear inside OR", f.Op)
	}
}
