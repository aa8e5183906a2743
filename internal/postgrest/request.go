package postgrest

import (
	"context"
	"strings"

	"github.com/roach88/sqlrest/internal/ir"
)

// Action is the HTTP-level verb of a request.
type Action string

const (
	ActionSelect Action = "select"
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// FilterOp is a PostgREST filter operator.
type FilterOp string

const (
	OpEq       FilterOp = "eq"
	OpNeq      FilterOp = "neq"
	OpGt       FilterOp = "gt"
	OpGte      FilterOp = "gte"
	OpLt       FilterOp = "lt"
	OpLte      FilterOp = "lte"
	OpILike    FilterOp = "ilike"
	OpIn       FilterOp = "in"
	OpIs       FilterOp = "is"
	OpContains FilterOp = "cs"
	OpOr       FilterOp = "or"
)

// Field addresses a column or a key path inside a JSON column.
type Field struct {
	Column string
	Path   []string
	// Text selects ->> (text) for the last hop instead of -> (json).
	Text bool
}

// Column returns a plain column field.
func Column(name string) Field {
	return Field{Column: name}
}

// JSONText returns a field for column->key1->>key2 style text access.
func JSONText(column string, path ...string) Field {
	return Field{Column: column, Path: path, Text: true}
}

// JSON returns a field for column->key json access.
func JSON(column string, path ...string) Field {
	return Field{Column: column, Path: path}
}

// IsJSON reports whether the field reaches into a JSON document.
func (f Field) IsJSON() bool {
	return len(f.Path) > 0
}

// String renders the field in PostgREST notation: metadata->tags,
// metadata->address->>city.
func (f Field) String() string {
	if len(f.Path) == 0 {
		return f.Column
	}
	var b strings.Builder
	b.WriteString(f.Column)
	for i, key := range f.Path {
		if i == len(f.Path)-1 && f.Text {
			b.WriteString("->>")
		} else {
			b.WriteString("->")
		}
		b.WriteString(key)
	}
	return b.String()
}

// Condition is one filter. Conditions of a Request are ANDed.
//
// For OpOr, Any holds the alternatives and Field is unused. For OpIn,
// Values holds the set. Every other operator uses Value.
type Condition struct {
	Field  Field
	Op     FilterOp
	Negate bool
	Value  ir.Value
	Values []ir.Value
	Any    []Condition
}

// Order is one ordering term.
type Order struct {
	Column    string
	Ascending bool
}

// Range is an inclusive row window.
type Range struct {
	From int64
	To   int64
}

// Request is a fully built structured query.
type Request struct {
	Table  string
	Action Action

	// Columns is the projection for select; empty means every column.
	Columns []string

	Conditions []Condition
	Order      []Order
	Range      *Range

	// Count requests a head-only exact count.
	Count bool

	// Body holds insert records, or the single update payload.
	Body []ir.Object

	// Returning lists the columns to send back for a mutation. Nil asks
	// for no representation; ["*"] asks for every column.
	Returning []string

	// Calls is the builder call sequence that produced the request.
	Calls []Call
}

// Response is what a Client returns.
type Response struct {
	// Rows holds the returned records. Numbers decode as json.Number.
	Rows []map[string]any

	// Count is set for count requests.
	Count *int64

	// Affected is the number of rows a mutation touched.
	Affected int64
}

// Client executes requests against a backend.
type Client interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}
