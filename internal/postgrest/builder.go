package postgrest

import (
	"slices"
	"strings"

	"github.com/roach88/sqlrest/internal/ir"
)

// Call is one recorded builder invocation, kept for logs and the CLI.
type Call struct {
	Method string
	Args   []string
}

// String renders the call as method(arg, ...).
func (c Call) String() string {
	return c.Method + "(" + strings.Join(c.Args, ", ") + ")"
}

// QueryBuilder is a chainable, table-scoped request builder.
//
// Every method records a Call and returns the builder. A builder is not
// safe for concurrent use; build one per request.
type QueryBuilder struct {
	req Request
}

// From starts a request against table. The default action is select.
func From(table string) *QueryBuilder {
	b := &QueryBuilder{req: Request{Table: table, Action: ActionSelect}}
	b.record("from", quoteArg(table))
	return b
}

func (b *QueryBuilder) record(method string, args ...string) {
	b.req.Calls = append(b.req.Calls, Call{Method: method, Args: args})
}

// Select sets the projection. No columns selects every column.
func (b *QueryBuilder) Select(columns ...string) *QueryBuilder {
	b.req.Action = ActionSelect
	b.req.Columns = slices.Clone(columns)
	b.record("select", quoteArg(projection(columns)))
	return b
}

// Count turns the request into a head-only exact count.
func (b *QueryBuilder) Count() *QueryBuilder {
	b.req.Action = ActionSelect
	b.req.Count = true
	b.req.Columns = nil
	b.record("select", quoteArg("*"), `{"count":"exact","head":true}`)
	return b
}

// Insert sets the records to insert.
func (b *QueryBuilder) Insert(rows ...ir.Object) *QueryBuilder {
	b.req.Action = ActionInsert
	b.req.Body = slices.Clone(rows)
	arr := make(ir.Array, len(rows))
	for i, r := range rows {
		arr[i] = r
	}
	b.record("insert", valueArg(arr))
	return b
}

// Update sets the update payload.
func (b *QueryBuilder) Update(payload ir.Object) *QueryBuilder {
	b.req.Action = ActionUpdate
	b.req.Body = []ir.Object{payload}
	b.record("update", valueArg(payload))
	return b
}

// Delete turns the request into a delete.
func (b *QueryBuilder) Delete() *QueryBuilder {
	b.req.Action = ActionDelete
	b.record("delete")
	return b
}

func (b *QueryBuilder) filter(method string, c Condition) *QueryBuilder {
	b.req.Conditions = append(b.req.Conditions, c)
	args := []string{quoteArg(c.Field.String())}
	switch {
	case method == "filter" || method == "not":
		args = append(args, quoteArg(string(c.Op)), valueArg(c.Value))
	case c.Op == OpIn:
		args = append(args, valueArg(ir.Array(c.Values)))
	default:
		args = append(args, valueArg(c.Value))
	}
	b.record(method, args...)
	return b
}

// Eq adds field = value.
func (b *QueryBuilder) Eq(f Field, v ir.Value) *QueryBuilder {
	return b.filter("eq", Condition{Field: f, Op: OpEq, Value: v})
}

// Neq adds field <> value.
func (b *QueryBuilder) Neq(f Field, v ir.Value) *QueryBuilder {
	return b.filter("neq", Condition{Field: f, Op: OpNeq, Value: v})
}

// Gt adds field > value.
func (b *QueryBuilder) Gt(f Field, v ir.Value) *QueryBuilder {
	return b.filter("gt", Condition{Field: f, Op: OpGt, Value: v})
}

// Gte adds field >= value.
func (b *QueryBuilder) Gte(f Field, v ir.Value) *QueryBuilder {
	return b.filter("gte", Condition{Field: f, Op: OpGte, Value: v})
}

// Lt adds field < value.
func (b *QueryBuilder) Lt(f Field, v ir.Value) *QueryBuilder {
	return b.filter("lt", Condition{Field: f, Op: OpLt, Value: v})
}

// Lte adds field <= value.
func (b *QueryBuilder) Lte(f Field, v ir.Value) *QueryBuilder {
	return b.filter("lte", Condition{Field: f, Op: OpLte, Value: v})
}

// ILike adds a case-insensitive pattern match. % and _ are wildcards.
func (b *QueryBuilder) ILike(f Field, pattern ir.Value) *QueryBuilder {
	return b.filter("ilike", Condition{Field: f, Op: OpILike, Value: pattern})
}

// In adds field IN (values...).
func (b *QueryBuilder) In(f Field, values []ir.Value) *QueryBuilder {
	return b.filter("in", Condition{Field: f, Op: OpIn, Values: slices.Clone(values)})
}

// Is adds field IS null|true|false.
func (b *QueryBuilder) Is(f Field, v ir.Value) *QueryBuilder {
	return b.filter("is", Condition{Field: f, Op: OpIs, Value: v})
}

// Not adds a negated filter, e.g. Not(f, OpIs, ir.Null{}).
func (b *QueryBuilder) Not(f Field, op FilterOp, v ir.Value) *QueryBuilder {
	return b.filter("not", Condition{Field: f, Op: op, Negate: true, Value: v})
}

// Contains adds a JSON containment check (field @> value).
func (b *QueryBuilder) Contains(f Field, v ir.Value) *QueryBuilder {
	return b.filter("contains", Condition{Field: f, Op: OpContains, Value: v})
}

// Filter adds a filter with an explicit operator. It is the generic path
// filter used for JSON fields.
func (b *QueryBuilder) Filter(f Field, op FilterOp, v ir.Value) *QueryBuilder {
	return b.filter("filter", Condition{Field: f, Op: op, Value: v})
}

// Or adds a disjunction of conditions.
func (b *QueryBuilder) Or(alternatives ...Condition) *QueryBuilder {
	b.req.Conditions = append(b.req.Conditions, Condition{Op: OpOr, Any: slices.Clone(alternatives)})
	b.record("or", quoteArg(OrExpression(alternatives)))
	return b
}

// Order appends an ordering term.
func (b *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	b.req.Order = append(b.req.Order, Order{Column: column, Ascending: ascending})
	if ascending {
		b.record("order", quoteArg(column), `{"ascending":true}`)
	} else {
		b.record("order", quoteArg(column), `{"ascending":false}`)
	}
	return b
}

// Range restricts the result to rows from..to inclusive.
func (b *QueryBuilder) Range(from, to int64) *QueryBuilder {
	b.req.Range = &Range{From: from, To: to}
	b.record("range", ir.Text(ir.Int(from)), ir.Text(ir.Int(to)))
	return b
}

// Returning asks a mutation to send back the named columns.
func (b *QueryBuilder) Returning(columns ...string) *QueryBuilder {
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	b.req.Returning = slices.Clone(columns)
	b.record("select", quoteArg(projection(columns)))
	return b
}

// Request returns the built request. The builder may keep being used;
// later calls do not affect the returned value.
func (b *QueryBuilder) Request() *Request {
	out := b.req
	out.Columns = slices.Clone(b.req.Columns)
	out.Conditions = slices.Clone(b.req.Conditions)
	out.Order = slices.Clone(b.req.Order)
	out.Body = slices.Clone(b.req.Body)
	out.Returning = slices.Clone(b.req.Returning)
	out.Calls = slices.Clone(b.req.Calls)
	if b.req.Range != nil {
		r := *b.req.Range
		out.Range = &r
	}
	return &out
}

// Cond builds a condition for use inside Or.
func Cond(f Field, op FilterOp, v ir.Value) Condition {
	return Condition{Field: f, Op: op, Value: v}
}

// InCond builds an IN condition for use inside Or.
func InCond(f Field, values []ir.Value) Condition {
	return Condition{Field: f, Op: OpIn, Values: slices.Clone(values)}
}

func projection(columns []string) string {
	if len(columns) == 0 {
		return "*"
	}
	return strings.Join(columns, ",")
}

func quoteArg(s string) string {
	data, err := ir.MarshalCanonical(ir.String(s))
	if err != nil {
		return s
	}
	return string(data)
}

func valueArg(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return ir.Text(v)
	}
	return string(data)
}
