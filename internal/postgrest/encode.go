package postgrest

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/roach88/sqlrest/internal/ir"
)

// reservedChars must be quoted inside in.(...) lists and or=(...) groups.
const reservedChars = ",.:()\" \\"

// QueryValues renders the conditions, projection and ordering of req as
// PostgREST query parameters.
func QueryValues(req *Request) url.Values {
	q := url.Values{}

	switch {
	case req.Action == ActionSelect && !req.Count:
		q.Set("select", projection(req.Columns))
	case req.Returning != nil:
		q.Set("select", projection(req.Returning))
	}

	for _, c := range req.Conditions {
		if c.Op == OpOr {
			q.Add("or", "("+OrExpression(c.Any)+")")
			continue
		}
		q.Add(c.Field.String(), operand(c, false))
	}

	if len(req.Order) > 0 {
		terms := make([]string, len(req.Order))
		for i, o := range req.Order {
			dir := "asc"
			if !o.Ascending {
				dir = "desc"
			}
			terms[i] = o.Column + "." + dir
		}
		q.Set("order", strings.Join(terms, ","))
	}

	if req.Action == ActionInsert {
		if cols := BodyColumns(req.Body); len(cols) > 0 {
			q.Set("columns", strings.Join(cols, ","))
		}
	}
	return q
}

// OrExpression renders alternatives as the inside of or=(...):
// name.ilike.*ann*,metadata->>email.ilike.*ann*
func OrExpression(alternatives []Condition) string {
	parts := make([]string, len(alternatives))
	for i, c := range alternatives {
		parts[i] = c.Field.String() + "." + operand(c, true)
	}
	return strings.Join(parts, ",")
}

// operand renders [not.]op.value for one condition. nested quotes values
// that would break an enclosing or=(...) group.
func operand(c Condition, nested bool) string {
	var b strings.Builder
	if c.Negate {
		b.WriteString("not.")
	}
	b.WriteString(string(c.Op))
	b.WriteByte('.')

	switch c.Op {
	case OpIn:
		items := make([]string, len(c.Values))
		for i, v := range c.Values {
			items[i] = quoteListItem(ir.Text(v))
		}
		b.WriteString("(" + strings.Join(items, ",") + ")")
	case OpIs:
		b.WriteString(isValue(c.Value))
	case OpILike:
		b.WriteString(maybeQuote(strings.ReplaceAll(ir.Text(c.Value), "%", "*"), nested))
	case OpContains:
		b.WriteString(maybeQuote(containsValue(c.Value), nested))
	default:
		b.WriteString(maybeQuote(ir.Text(c.Value), nested))
	}
	return b.String()
}

func isValue(v ir.Value) string {
	switch val := v.(type) {
	case ir.Bool:
		return strconv.FormatBool(bool(val))
	default:
		return "null"
	}
}

// containsValue renders a containment operand. Arrays of scalars use the
// JSON form, which PostgREST accepts for jsonb columns.
func containsValue(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return ir.Text(v)
	}
	return string(data)
}

func quoteListItem(s string) string {
	if s == "" || strings.ContainsAny(s, reservedChars) {
		return doubleQuote(s)
	}
	return s
}

func maybeQuote(s string, nested bool) string {
	if nested && strings.ContainsAny(s, reservedChars) {
		return doubleQuote(s)
	}
	return s
}

func doubleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// BodyColumns returns the union of record keys: the keys of the first
// record in canonical order, then keys first seen in later records.
func BodyColumns(rows []ir.Object) []string {
	seen := map[string]bool{}
	var cols []string
	for _, row := range rows {
		for _, k := range row.SortedKeys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}
