package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/sqlrest/internal/ir"
)

// Operator identifies the comparison a Filter performs.
//
// The set is closed. Backends switch over it exhaustively, and Validate
// rejects anything outside it.
type Operator string

const (
	OpEq            Operator = "eq"
	OpNotEq         Operator = "neq"
	OpIn            Operator = "in"
	OpNotIn         Operator = "not_in"
	OpILike         Operator = "ilike"
	OpJSONTextEq    Operator = "json_text_eq"
	OpJSONTextILike Operator = "json_text_ilike"
	OpJSONContains  Operator = "json_contains"
	OpBoolEq        Operator = "bool_eq"
	OpBoolOrDefault Operator = "bool_or_default"
	OpDateGte       Operator = "date_gte"
	OpDateLte       Operator = "date_lte"
	OpIntervalGt    Operator = "interval_gt"
	OpIntervalLt    Operator = "interval_lt"
	OpGt            Operator = "gt"
	OpGte           Operator = "gte"
	OpLt            Operator = "lt"
	OpLte           Operator = "lte"
	OpIsNull        Operator = "is_null"
	OpNotNull       Operator = "not_null"
	OpAnyOf         Operator = "any_of"
)

var operators = map[Operator]bool{
	OpEq: true, OpNotEq: true, OpIn: true, OpNotIn: true, OpILike: true,
	OpJSONTextEq: true, OpJSONTextILike: true, OpJSONContains: true,
	OpBoolEq: true, OpBoolOrDefault: true, OpDateGte: true, OpDateLte: true,
	OpIntervalGt: true, OpIntervalLt: true, OpGt: true, OpGte: true,
	OpLt: true, OpLte: true, OpIsNull: true, OpNotNull: true, OpAnyOf: true,
}

// Valid reports whether op belongs to the closed operator set.
func (op Operator) Valid() bool {
	return operators[op]
}

// Column addresses either a plain column or a key path inside a JSON
// column.
//
// Examples:
//
//	Column{Name: "status"}                                    // status
//	Column{Name: "metadata", Path: []string{"email"}, Text: true} // metadata->>'email'
//	Column{Name: "metadata", Path: []string{"tags"}}          // metadata->'tags'
type Column struct {
	Name string   // base column
	Path []string // JSON keys below Name (empty for plain columns)
	Text bool     // last hop extracts text (->>) rather than JSON (->)
}

// Col returns a plain column reference.
func Col(name string) Column {
	return Column{Name: name}
}

// JSONText returns a text-extracting path reference (col->>'key').
func JSONText(name string, path ...string) Column {
	return Column{Name: name, Path: path, Text: true}
}

// JSONPath returns a JSON-valued path reference (col->'key').
func JSONPath(name string, path ...string) Column {
	return Column{Name: name, Path: path}
}

// IsJSON reports whether the column reaches into a JSON document.
func (c Column) IsJSON() bool {
	return len(c.Path) > 0
}

// Key returns the last path element, or the column name for plain columns.
func (c Column) Key() string {
	if len(c.Path) == 0 {
		return c.Name
	}
	return c.Path[len(c.Path)-1]
}

// String renders the column in PostgreSQL arrow notation.
func (c Column) String() string {
	if len(c.Path) == 0 {
		return c.Name
	}
	var b strings.Builder
	b.WriteString(c.Name)
	for i, key := range c.Path {
		if i == len(c.Path)-1 && c.Text {
			b.WriteString("->>")
		} else {
			b.WriteString("->")
		}
		b.WriteString("'")
		b.WriteString(strings.ReplaceAll(key, "'", "''"))
		b.WriteString("'")
	}
	return b.String()
}

// Filter is one structured condition. The Filters of a statement are
// ANDed together.
//
// Which fields are meaningful depends on Op:
//
//	Eq, NotEq, ILike, Gt, Gte, Lt, Lte    Value
//	JSONTextEq, JSONTextILike             Value (Column is a text path)
//	JSONContains                          Value (Array or Object)
//	In, NotIn                             Values
//	BoolEq                                Expected
//	BoolOrDefault                         Expected, Default
//	DateGte, DateLte                      Value (yyyy-mm-dd text)
//	IntervalGt, IntervalLt                Value (RFC 3339 cutoff)
//	IsNull, NotNull                       none
//	AnyOf                                 Any (leaf filters, ORed)
type Filter struct {
	Column   Column
	Op       Operator
	Value    ir.Value
	Values   []ir.Value
	Expected bool
	Default  bool
	Any      []Filter
}

// String renders the filter for logs and the CLI.
func (f Filter) String() string {
	switch f.Op {
	case OpIn, OpNotIn:
		parts := make([]string, len(f.Values))
		for i, v := range f.Values {
			parts[i] = ir.Text(v)
		}
		return fmt.Sprintf("%s(%s, [%s])", f.Op, f.Column, strings.Join(parts, ", "))
	case OpBoolEq:
		return fmt.Sprintf("%s(%s, %t)", f.Op, f.Column, f.Expected)
	case OpBoolOrDefault:
		return fmt.Sprintf("%s(%s, default=%t, expected=%t)", f.Op, f.Column, f.Default, f.Expected)
	case OpIsNull, OpNotNull:
		return fmt.Sprintf("%s(%s)", f.Op, f.Column)
	case OpAnyOf:
		parts := make([]string, len(f.Any))
		for i, sub := range f.Any {
			parts[i] = sub.String()
		}
		return fmt.Sprintf("%s(%s)", f.Op, strings.Join(parts, " | "))
	default:
		return fmt.Sprintf("%s(%s, %s)", f.Op, f.Column, ir.Text(f.Value))
	}
}

// columnObject renders a Column for the canonical plan.
func columnObject(c Column) ir.Object {
	obj := ir.Object{"name": ir.String(c.Name)}
	if len(c.Path) > 0 {
		path := make(ir.Array, len(c.Path))
		for i, p := range c.Path {
			path[i] = ir.String(p)
		}
		obj["path"] = path
		obj["text"] = ir.Bool(c.Text)
	}
	return obj
}

// Object renders the filter as an ir.Object for canonical serialization.
func (f Filter) Object() ir.Object {
	obj := ir.Object{"op": ir.String(string(f.Op))}
	if f.Op != OpAnyOf {
		obj["column"] = columnObject(f.Column)
	}
	switch f.Op {
	case OpIn, OpNotIn:
		vals := make(ir.Array, len(f.Values))
		copy(vals, f.Values)
		obj["values"] = vals
	case OpBoolEq:
		obj["expected"] = ir.Bool(f.Expected)
	case OpBoolOrDefault:
		obj["expected"] = ir.Bool(f.Expected)
		obj["default"] = ir.Bool(f.Default)
	case OpIsNull, OpNotNull:
	case OpAnyOf:
		anyOf := make(ir.Array, len(f.Any))
		for i, sub := range f.Any {
			anyOf[i] = sub.Object()
		}
		obj["any"] = anyOf
	default:
		if f.Value == nil {
			obj["value"] = ir.Null{}
		} else {
			obj["value"] = f.Value
		}
	}
	return obj
}
