package compiler

import (
	"errors"
	"strings"
	"time"

	"github.com/roach88/sqlrest/internal/ir"
	"github.com/roach88/sqlrest/internal/queryir"
	"github.com/roach88/sqlrest/internal/sqltext"
)

// recognizer matches one condition shape.
//
// It returns (nil, nil) when the expression does not have its shape, so
// the cascade moves on. A *declined error means the shape matched but the
// fragment cannot be translated; an *unsatisfiable error means it matches
// no row. skip reports an intentional no-op.
type recognizer struct {
	name  string
	match func(s *scope, e sqltext.Expr) (filters []queryir.Filter, skip bool, err error)
}

// cascade lists recognizers in precedence order. The first one whose shape
// matches wins. It is filled in init because matchAnyOf recurses into
// compileCondition.
var cascade []recognizer

func init() {
	cascade = []recognizer{
		{"ilike", matchILike},
		{"lower_eq", matchLowerEq},
		{"json_text_eq", matchJSONTextEq},
		{"json_text_ilike", matchJSONTextILike},
		{"json_contains", matchJSONContains},
		{"bool_default", matchBoolDefault},
		{"date_range", matchDateRange},
		{"not_in", matchNotIn},
		{"in", matchIn},
		{"not_eq", matchNotEq},
		{"eq", matchEq},
		{"interval_gt", matchIntervalGt},
		{"interval_lt", matchIntervalLt},
		{"tautology", matchTautology},
		{"range", matchRange},
		{"is", matchIs},
		{"any_of", matchAnyOf},
		{"like", matchLike},
	}
}

// compileCondition runs the cascade over one fragment expression.
// A parenthesized conjunction is split and each term compiled on its own.
func compileCondition(s *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	if and, ok := sqltext.Unparen(e).(sqltext.And); ok {
		var out []queryir.Filter
		for _, term := range and.Terms {
			filters, _, err := compileCondition(s, term)
			if err != nil {
				return nil, false, err
			}
			out = append(out, filters...)
		}
		return out, len(out) == 0, nil
	}

	e = sqltext.Unparen(e)
	for _, r := range cascade {
		filters, skip, err := r.match(s, e)
		if err != nil {
			return nil, false, err
		}
		if skip || filters != nil {
			return filters, skip, nil
		}
	}
	return nil, false, decline("no supported pattern matches")
}

// column resolves a plain column reference.
func column(e sqltext.Expr) (queryir.Column, bool) {
	if ref, ok := sqltext.Unparen(e).(sqltext.ColumnRef); ok {
		return queryir.Col(ref.Name), true
	}
	return queryir.Column{}, false
}

// jsonColumn resolves a JSON path chain (metadata->'a'->>'b') to a Column.
// It accepts the path wrapped in parentheses and casts.
func jsonColumn(e sqltext.Expr) (queryir.Column, bool) {
	path, ok := stripCasts(e).(sqltext.JSONPath)
	if !ok {
		return queryir.Column{}, false
	}
	var keys []string
	text := path.Text
	var cur sqltext.Expr = path
	for {
		switch node := sqltext.Unparen(cur).(type) {
		case sqltext.JSONPath:
			keys = append([]string{node.Key}, keys...)
			cur = node.Base
			continue
		case sqltext.ColumnRef:
			return queryir.Column{Name: node.Name, Path: keys, Text: text}, true
		}
		return queryir.Column{}, false
	}
}

// jsonTextColumn resolves a ->> path.
func jsonTextColumn(e sqltext.Expr) (queryir.Column, bool) {
	col, ok := jsonColumn(e)
	if !ok || !col.Text {
		return queryir.Column{}, false
	}
	return col, true
}

// anyColumn accepts a plain column or a ->> path.
func anyColumn(e sqltext.Expr) (queryir.Column, bool) {
	if col, ok := column(e); ok {
		return col, true
	}
	return jsonTextColumn(e)
}

// stripCasts removes enclosing parentheses and casts.
func stripCasts(e sqltext.Expr) sqltext.Expr {
	for {
		switch x := e.(type) {
		case sqltext.Paren:
			e = x.X
		case sqltext.Cast:
			e = x.X
		default:
			return e
		}
	}
}

func compareOf(e sqltext.Expr, ops ...string) (sqltext.Compare, bool) {
	cmp, ok := e.(sqltext.Compare)
	if !ok {
		return cmp, false
	}
	for _, op := range ops {
		if cmp.Op == op {
			return cmp, true
		}
	}
	return cmp, false
}

func single(col queryir.Column, op queryir.Operator, v ir.Value) []queryir.Filter {
	return []queryir.Filter{{Column: col, Op: op, Value: v}}
}

// scalar resolves a comparison operand. A comparison with NULL is never
// true in SQL, so the condition matches no rows.
func scalar(s *scope, e sqltext.Expr) (ir.Value, error) {
	v, err := s.value(e)
	if err != nil {
		return nil, err
	}
	if ir.IsNull(v) {
		return nil, never("comparison with NULL")
	}
	return v, nil
}

func text(s *scope, e sqltext.Expr) (ir.String, error) {
	v, err := scalar(s, e)
	if err != nil {
		return "", err
	}
	str, ok := v.(ir.String)
	if !ok {
		return ir.String(ir.Text(v)), nil
	}
	return str, nil
}

// 1. column ILIKE $n
func matchILike(s *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	cmp, ok := compareOf(e, "ILIKE")
	if !ok {
		return nil, false, nil
	}
	col, ok := column(cmp.Left)
	if !ok {
		return nil, false, nil
	}
	pattern, err := text(s, cmp.Right)
	if err != nil {
		return nil, false, err
	}
	return single(col, queryir.OpILike, pattern), false, nil
}

// 2. LOWER(column) = LOWER($n)
func matchLowerEq(s *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	cmp, ok := compareOf(e, "=")
	if !ok {
		return nil, false, nil
	}
	left, ok := cmp.Left.(sqltext.FuncCall)
	if !ok || left.Name != "lower" || len(left.Args) != 1 {
		return nil, false, nil
	}
	right, ok := cmp.Right.(sqltext.FuncCall)
	if !ok || right.Name != "lower" || len(right.Args) != 1 {
		return nil, false, nil
	}
	col, ok := anyColumn(left.Args[0])
	if !ok {
		return nil, false, nil
	}
	v, err := scalar(s, right)
	if err != nil {
		return nil, false, err
	}
	op := queryir.OpEq
	if col.IsJSON() {
		op = queryir.OpJSONTextEq
	}
	return single(col, op, v), false, nil
}

// 3. metadata->>'field' = $n
func matchJSONTextEq(s *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	cmp, ok := compareOf(e, "=")
	if !ok {
		return nil, false, nil
	}
	if _, isCast := cmp.Left.(sqltext.Cast); isCast {
		return nil, false, nil
	}
	col, ok := jsonTextColumn(cmp.Left)
	if !ok {
		return nil, false, nil
	}
	v, err := text(s, cmp.Right)
	if err != nil {
		return nil, false, err
	}
	return single(col, queryir.OpJSONTextEq, v), false, nil
}

// 4. metadata->>'field' ILIKE $n
func matchJSONTextILike(s *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	cmp, ok := compareOf(e, "ILIKE")
	if !ok {
		return nil, false, nil
	}
	col, ok := jsonTextColumn(cmp.Left)
	if !ok {
		return nil, false, nil
	}
	v, err := text(s, cmp.Right)
	if err != nil {
		return nil, false, err
	}
	return single(col, queryir.OpJSONTextILike, v), false, nil
}

// 5. (metadata->'tags')::jsonb @> $n::jsonb
func matchJSONContains(s *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	cmp, ok := compareOf(e, "@>")
	if !ok {
		return nil, false, nil
	}
	col, ok := jsonColumn(cmp.Left)
	if !ok {
		col, ok = column(stripCasts(cmp.Left))
	}
	if !ok {
		return nil, false, nil
	}
	v, err := scalar(s, stripCasts(cmp.Right))
	if err != nil {
		return nil, false, err
	}
	return single(col, queryir.OpJSONContains, containmentValue(v)), false, nil
}

// containmentValue parses text as JSON when possible. A bare scalar is
// treated as a one-element array: "vip" means the array contains "vip".
func containmentValue(v ir.Value) ir.Value {
	if str, ok := v.(ir.String); ok {
		v = parseJSONOrRaw(string(str))
	}
	switch v.(type) {
	case ir.Array, ir.Object:
		return v
	default:
		return ir.Array{v}
	}
}

// 6. COALESCE((metadata->>'flag')::boolean, false) = true|false
func matchBoolDefault(s *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	cmp, ok := compareOf(e, "=")
	if !ok {
		return nil, false, nil
	}
	fn, ok := cmp.Left.(sqltext.FuncCall)
	if !ok || fn.Name != "coalesce" || len(fn.Args) != 2 {
		return nil, false, nil
	}
	cast, ok := sqltext.Unparen(fn.Args[0]).(sqltext.Cast)
	if !ok || (cast.Type != "boolean" && cast.Type != "bool") {
		return nil, false, nil
	}
	col, ok := anyColumn(cast.X)
	if !ok {
		return nil, false, nil
	}
	def, ok := boolLiteral(fn.Args[1])
	if !ok {
		return nil, false, nil
	}

	v, err := scalar(s, cmp.Right)
	if err != nil {
		return nil, false, err
	}
	if str, isStr := v.(ir.String); isStr {
		if v, err = castValue(str, "boolean"); err != nil {
			return nil, false, err
		}
	}
	expected, ok := v.(ir.Bool)
	if !ok {
		return nil, false, decline("COALESCE boolean compared with non-boolean %s", ir.Text(v))
	}

	f := queryir.Filter{Column: col, Expected: bool(expected), Default: def}
	if bool(expected) == def {
		f.Op = queryir.OpBoolOrDefault
	} else {
		f.Op = queryir.OpBoolEq
	}
	return []queryir.Filter{f}, false, nil
}

func boolLiteral(e sqltext.Expr) (bool, bool) {
	lit, ok := sqltext.Unparen(e).(sqltext.Literal)
	if !ok {
		return false, false
	}
	b, ok := lit.Value.(ir.Bool)
	return bool(b), ok
}

// 7. to_date(metadata->>'due_date','yyyy-mm-dd') >= to_date($n,'yyyy-mm-dd')
func matchDateRange(s *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	cmp, ok := compareOf(e, ">=", "<=")
	if !ok {
		return nil, false, nil
	}
	left, ok := toDate(cmp.Left)
	if !ok {
		return nil, false, nil
	}
	right, ok := toDate(cmp.Right)
	if !ok {
		return nil, false, nil
	}
	col, ok := anyColumn(left)
	if !ok {
		return nil, false, nil
	}
	v, err := text(s, right)
	if err != nil {
		return nil, false, err
	}
	if _, err := time.Parse("2006-01-02", string(v)); err != nil {
		return nil, false, decline("invalid date %q (want yyyy-mm-dd)", string(v))
	}
	op := queryir.OpDateGte
	if cmp.Op == "<=" {
		op = queryir.OpDateLte
	}
	return single(col, op, v), false, nil
}

// toDate matches to_date(x, 'yyyy-mm-dd') and returns x.
func toDate(e sqltext.Expr) (sqltext.Expr, bool) {
	fn, ok := e.(sqltext.FuncCall)
	if !ok || fn.Name != "to_date" || len(fn.Args) != 2 {
		return nil, false
	}
	format, ok := fn.Args[1].(sqltext.Literal)
	if !ok {
		return nil, false
	}
	str, ok := format.Value.(ir.String)
	if !ok || !strings.EqualFold(string(str), "yyyy-mm-dd") {
		return nil, false
	}
	return fn.Args[0], true
}

// listValues resolves an IN list. A single placeholder bound to an array
// expands to its elements. NULL items are left out and reported through
// hasNull.
func listValues(s *scope, list []sqltext.Expr) (values []ir.Value, hasNull bool, err error) {
	add := func(v ir.Value) {
		if ir.IsNull(v) {
			hasNull = true
			return
		}
		values = append(values, v)
	}
	for _, item := range list {
		v, err := s.value(item)
		if err != nil {
			return nil, false, err
		}
		if arr, ok := v.(ir.Array); ok && len(list) == 1 {
			for _, elem := range arr {
				add(elem)
			}
			continue
		}
		add(v)
	}
	return values, hasNull, nil
}

// 8. column NOT IN ($a, $b, ...) -> NotEq chain
//
// A NULL in the list makes the condition unknown for every row.
func matchNotIn(s *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	in, ok := e.(sqltext.InList)
	if !ok || !in.Not {
		return nil, false, nil
	}
	col, ok := anyColumn(in.X)
	if !ok {
		return nil, false, nil
	}
	values, hasNull, err := listValues(s, in.List)
	if err != nil {
		return nil, false, err
	}
	if hasNull {
		return nil, false, never("NOT IN list containing NULL")
	}
	if len(values) == 0 {
		return nil, true, nil
	}
	filters := make([]queryir.Filter, len(values))
	for i, v := range values {
		filters[i] = queryir.Filter{Column: col, Op: queryir.OpNotEq, Value: v}
	}
	return filters, false, nil
}

// 9. column IN ($a, $b, ...)
func matchIn(s *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	in, ok := e.(sqltext.InList)
	if !ok || in.Not {
		return nil, false, nil
	}
	col, ok := anyColumn(in.X)
	if !ok {
		return nil, false, nil
	}
	values, _, err := listValues(s, in.List)
	if err != nil {
		return nil, false, err
	}
	if len(values) == 0 {
		return nil, false, never("IN list without non-NULL values")
	}
	return []queryir.Filter{{Column: col, Op: queryir.OpIn, Values: values}}, false, nil
}

// 10. column != $n, column <> $n
func matchNotEq(s *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	cmp, ok := compareOf(e, "!=")
	if !ok {
		return nil, false, nil
	}
	col, ok := anyColumn(cmp.Left)
	if !ok {
		return nil, false, nil
	}
	v, err := scalar(s, cmp.Right)
	if err != nil {
		return nil, false, err
	}
	return single(col, queryir.OpNotEq, v), false, nil
}

// 11. column = $n
func matchEq(s *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	cmp, ok := compareOf(e, "=")
	if !ok {
		return nil, false, nil
	}
	col, ok := column(cmp.Left)
	if !ok {
		return nil, false, nil
	}
	v, err := scalar(s, cmp.Right)
	if err != nil {
		return nil, false, err
	}
	return single(col, queryir.OpEq, v), false, nil
}

// 12. column > NOW() - $n::INTERVAL
func matchIntervalGt(s *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	return matchInterval(s, e, ">", queryir.OpIntervalGt)
}

// 13. column < NOW() - INTERVAL 'N unit'
func matchIntervalLt(s *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	return matchInterval(s, e, "<", queryir.OpIntervalLt)
}

func matchInterval(s *scope, e sqltext.Expr, cmpOp string, op queryir.Operator) ([]queryir.Filter, bool, error) {
	cmp, ok := compareOf(e, cmpOp)
	if !ok {
		return nil, false, nil
	}
	col, ok := column(cmp.Left)
	if !ok {
		return nil, false, nil
	}
	bin, ok := sqltext.Unparen(cmp.Right).(sqltext.Binary)
	if !ok {
		return nil, false, nil
	}
	if fn, isCall := sqltext.Unparen(bin.Left).(sqltext.FuncCall); !isCall || fn.Name != "now" {
		return nil, false, nil
	}
	cutoff, err := s.relativeTime(bin)
	if err != nil {
		return nil, false, err
	}
	return single(col, op, ir.String(formatTime(cutoff))), false, nil
}

// 14. 1 = 1
func matchTautology(_ *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	_, ok := e.(sqltext.Tautology)
	return nil, ok, nil
}

// column >, >=, <, <= operand
func matchRange(s *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	cmp, ok := compareOf(e, ">", ">=", "<", "<=")
	if !ok {
		return nil, false, nil
	}
	col, ok := anyColumn(cmp.Left)
	if !ok {
		return nil, false, nil
	}
	v, err := scalar(s, cmp.Right)
	if err != nil {
		return nil, false, err
	}
	ops := map[string]queryir.Operator{
		">": queryir.OpGt, ">=": queryir.OpGte, "<": queryir.OpLt, "<=": queryir.OpLte,
	}
	return single(col, ops[cmp.Op], v), false, nil
}

// column IS [NOT] NULL | TRUE | FALSE
func matchIs(_ *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	is, ok := e.(sqltext.Is)
	if !ok {
		return nil, false, nil
	}
	col, ok := anyColumn(stripCasts(is.X))
	if !ok {
		return nil, false, nil
	}
	switch {
	case is.Value == "NULL" && is.Not:
		return []queryir.Filter{{Column: col, Op: queryir.OpNotNull}}, false, nil
	case is.Value == "NULL":
		return []queryir.Filter{{Column: col, Op: queryir.OpIsNull}}, false, nil
	case is.Not:
		return nil, false, decline("IS NOT %s is not supported", is.Value)
	default:
		return []queryir.Filter{{Column: col, Op: queryir.OpBoolEq, Expected: is.Value == "TRUE"}}, false, nil
	}
}

// (a OR b OR ...) where every alternative is a single leaf filter.
// Alternatives that can never match are left out.
func matchAnyOf(s *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	or, ok := e.(sqltext.Or)
	if !ok {
		return nil, false, nil
	}
	var alternatives []queryir.Filter
	for _, term := range or.Terms {
		filters, skip, err := compileCondition(s, term)
		if err != nil {
			var n *unsatisfiable
			if errors.As(err, &n) {
				continue
			}
			var d *declined
			if errors.As(err, &d) {
				return nil, false, decline("OR alternative %q: %s", term.String(), d.Reason)
			}
			return nil, false, err
		}
		if skip {
			// An always-true alternative makes the whole disjunction true.
			return nil, true, nil
		}
		if len(filters) != 1 || filters[0].Op == queryir.OpAnyOf || filters[0].Op == queryir.OpBoolOrDefault {
			return nil, false, decline("OR alternative %q is not a single condition", term.String())
		}
		alternatives = append(alternatives, filters[0])
	}
	switch len(alternatives) {
	case 0:
		return nil, false, never("OR without a satisfiable alternative")
	case 1:
		return alternatives, false, nil
	}
	return []queryir.Filter{{Op: queryir.OpAnyOf, Any: alternatives}}, false, nil
}

// LIKE is recognized only to explain why it is dropped.
func matchLike(_ *scope, e sqltext.Expr) ([]queryir.Filter, bool, error) {
	if _, ok := compareOf(e, "LIKE", "NOT LIKE", "NOT ILIKE"); ok {
		return nil, false, decline("case-sensitive LIKE and negated pattern matches are not supported")
	}
	return nil, false, nil
}
