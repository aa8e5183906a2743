package queryir

import (
	"slices"

	"github.com/roach88/sqlrest/internal/ir"
)

// Kind is the statement type chosen by the classifier.
type Kind string

const (
	KindSelect Kind = "select"
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// IsMutation reports whether the kind changes rows in place.
// INSERT is excluded: it has no WHERE clause to guard.
func (k Kind) IsMutation() bool {
	return k == KindUpdate || k == KindDelete
}

// OrderTerm is one ORDER BY entry.
type OrderTerm struct {
	Column    string
	Ascending bool
}

// Range is an inclusive row window (PostgREST Range semantics).
type Range struct {
	From int64
	To   int64
}

// Len returns the number of rows the window covers.
func (r Range) Len() int64 {
	return r.To - r.From + 1
}

// DroppedFragment records a WHERE fragment the compiler could not turn
// into a Filter.
type DroppedFragment struct {
	Text   string
	Reason string
}

// CompiledStatement is the unit the execution adapter consumes.
//
// It is never mutated after compilation. Recovery paths build a new value
// (see WithoutColumns).
type CompiledStatement struct {
	Kind  Kind
	Table string

	// Filters are ANDed together.
	Filters []Filter

	// Select is the projection; empty means every column.
	Select []string

	// Payload holds UPDATE assignments.
	Payload ir.Object

	// Rows holds INSERT records, one per VALUES tuple.
	Rows []ir.Object

	Order []OrderTerm

	// Range is the row window for SELECT. Nil for COUNT and mutations.
	Range *Range

	// Count requests a head-only exact count instead of rows.
	Count bool

	// Returning lists RETURNING columns; nil means no RETURNING clause,
	// ["*"] means every column.
	Returning []string

	// Literal is set for the degenerate SELECT <int> form.
	Literal *int64

	// Empty marks a statement that provably matches nothing: LIMIT 0, or a
	// condition such as a comparison with NULL that is never true.
	Empty bool

	// Dropped lists WHERE fragments that produced no Filter.
	Dropped []DroppedFragment
}

// HasReturning reports whether the statement carries a RETURNING clause.
func (s *CompiledStatement) HasReturning() bool {
	return s.Returning != nil
}

// PayloadColumns returns the UPDATE payload keys in canonical order.
func (s *CompiledStatement) PayloadColumns() []string {
	return s.Payload.SortedKeys()
}

// WithoutColumns returns a copy of the statement whose UPDATE payload
// omits the named columns. The receiver is left untouched.
func (s *CompiledStatement) WithoutColumns(columns []string) *CompiledStatement {
	out := *s
	payload := make(ir.Object, len(s.Payload))
	for k, v := range s.Payload {
		if slices.Contains(columns, k) {
			continue
		}
		payload[k] = v
	}
	out.Payload = payload
	out.Filters = slices.Clone(s.Filters)
	out.Dropped = slices.Clone(s.Dropped)
	return &out
}

// Plan renders the statement as an ir.Object. The result is what gets
// fingerprinted (ir.PlanID) and snapshotted in golden files.
func (s *CompiledStatement) Plan() ir.Object {
	plan := ir.Object{
		"version": ir.String(ir.PlanVersion),
		"kind":    ir.String(string(s.Kind)),
	}
	if s.Literal != nil {
		plan["literal"] = ir.Int(*s.Literal)
		return plan
	}
	plan["table"] = ir.String(s.Table)

	filters := make(ir.Array, len(s.Filters))
	for i, f := range s.Filters {
		filters[i] = f.Object()
	}
	plan["filters"] = filters

	if len(s.Select) > 0 {
		plan["select"] = stringArray(s.Select)
	}
	if s.Payload != nil {
		plan["payload"] = s.Payload
	}
	if s.Rows != nil {
		rows := make(ir.Array, len(s.Rows))
		for i, r := range s.Rows {
			rows[i] = r
		}
		plan["rows"] = rows
	}
	if len(s.Order) > 0 {
		order := make(ir.Array, len(s.Order))
		for i, o := range s.Order {
			order[i] = ir.Object{
				"column":    ir.String(o.Column),
				"ascending": ir.Bool(o.Ascending),
			}
		}
		plan["order"] = order
	}
	if s.Range != nil {
		plan["range"] = ir.Array{ir.Int(s.Range.From), ir.Int(s.Range.To)}
	}
	if s.Count {
		plan["count"] = ir.Bool(true)
	}
	if s.Returning != nil {
		plan["returning"] = stringArray(s.Returning)
	}
	if s.Empty {
		plan["empty"] = ir.Bool(true)
	}
	if len(s.Dropped) > 0 {
		dropped := make(ir.Array, len(s.Dropped))
		for i, d := range s.Dropped {
			dropped[i] = ir.Object{
				"text":   ir.String(d.Text),
				"reason": ir.String(d.Reason),
			}
		}
		plan["dropped"] = dropped
	}
	return plan
}

func stringArray(ss []string) ir.Array {
	arr := make(ir.Array, len(ss))
	for i, s := range ss {
		arr[i] = ir.String(s)
	}
	return arr
}

// Result is the normalized outcome every caller observes.
// For COUNT(*) statements Rows holds one synthetic {"count": "<N>"} row.
type Result struct {
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"rowCount"`
}

// NewResult wraps rows, keeping Rows non-nil so it encodes as [].
func NewResult(rows []map[string]any) *Result {
	if rows == nil {
		rows = []map[string]any{}
	}
	return &Result{Rows: rows, RowCount: len(rows)}
}
