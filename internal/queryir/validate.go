package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/sqlrest/internal/ir"
)

// GuardOptions tunes the mutation safety guard.
type GuardOptions struct {
	// StrictMutations also rejects UPDATE/DELETE statements that had any
	// WHERE fragment dropped during compilation.
	StrictMutations bool
}

// Guard enforces the mutation safety rule: UPDATE and DELETE must carry at
// least one usable filter. It runs before any network call.
//
// Guard is a pure function with no side effects.
func Guard(stmt *CompiledStatement, opts GuardOptions) error {
	if !stmt.Kind.IsMutation() {
		return nil
	}
	if len(stmt.Filters) == 0 {
		return NewSafetyError("mutation without WHERE is not permitted",
			fmt.Sprintf("%s on %q compiled to zero filters", strings.ToUpper(string(stmt.Kind)), stmt.Table))
	}
	if opts.StrictMutations && len(stmt.Dropped) > 0 {
		texts := make([]string, len(stmt.Dropped))
		for i, d := range stmt.Dropped {
			texts[i] = d.Text
		}
		return NewSafetyError("mutation with untranslated WHERE conditions is not permitted",
			strings.Join(texts, "; "))
	}
	return nil
}

// Validate checks the structural invariants of a compiled statement: a
// table is named, every operator is known and carries the operands it
// needs, and UPDATE/INSERT have something to write.
//
// Validate is a pure function with no side effects.
func Validate(stmt *CompiledStatement) error {
	v := &validator{}
	v.validateStatement(stmt)
	if len(v.problems) == 0 {
		return nil
	}
	return &Error{
		Kind:    KindParse,
		Code:    CodeSyntaxError,
		Message: "invalid compiled statement",
		Detail:  strings.Join(v.problems, "; "),
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateStatement(stmt *CompiledStatement) {
	if stmt == nil {
		v.addProblem("nil statement")
		return
	}
	if stmt.Literal != nil {
		return
	}
	if stmt.Table == "" {
		v.addProblem("missing table")
	}

	switch stmt.Kind {
	case KindSelect, KindDelete:
	case KindUpdate:
		if len(stmt.Payload) == 0 {
			v.addProblem("UPDATE without assignments")
		}
	case KindInsert:
		if len(stmt.Rows) == 0 {
			v.addProblem("INSERT without rows")
		}
	default:
		v.addProblem("unknown statement kind %q", stmt.Kind)
	}

	if stmt.Range != nil && stmt.Range.To < stmt.Range.From {
		v.addProblem("empty range [%d, %d]", stmt.Range.From, stmt.Range.To)
	}

	for i, f := range stmt.Filters {
		v.validateFilter(fmt.Sprintf("filter[%d]", i), f, true)
	}
}

func (v *validator) validateFilter(where string, f Filter, allowAnyOf bool) {
	if !f.Op.Valid() {
		v.addProblem("%s: unknown operator %q", where, f.Op)
		return
	}
	if f.Op != OpAnyOf && f.Column.Name == "" {
		v.addProblem("%s: missing column", where)
	}

	switch f.Op {
	case OpIn, OpNotIn:
		if len(f.Values) == 0 {
			v.addProblem("%s: %s needs at least one value", where, f.Op)
		}
	case OpJSONTextEq, OpJSONTextILike:
		if !f.Column.IsJSON() || !f.Column.Text {
			v.addProblem("%s: %s needs a text JSON path", where, f.Op)
		}
	case OpJSONContains:
		switch f.Value.(type) {
		case ir.Array, ir.Object:
		default:
			v.addProblem("%s: %s needs an array or object", where, f.Op)
		}
	case OpBoolEq, OpBoolOrDefault, OpIsNull, OpNotNull:
	case OpAnyOf:
		if !allowAnyOf {
			v.addProblem("%s: nested %s", where, f.Op)
			return
		}
		if len(f.Any) < 2 {
			v.addProblem("%s: %s needs at least two alternatives", where, f.Op)
		}
		for i, sub := range f.Any {
			v.validateFilter(fmt.Sprintf("%s.any[%d]", where, i), sub, false)
		}
	default:
		if f.Value == nil {
			v.addProblem("%s: %s needs a value", where, f.Op)
		}
	}
}
