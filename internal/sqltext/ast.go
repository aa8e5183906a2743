package sqltext

import (
	"fmt"
	"strings"

	"github.com/roach88/sqlrest/internal/ir"
)

// Expr is a node of a parsed WHERE condition or value expression.
//
// This is a sealed interface; only types in this package implement it.
//
// Condition nodes: And, Or, Not, Paren, Compare, InList, Is, Tautology.
// Operand nodes: ColumnRef, JSONPath, Param, Literal, FuncCall, Cast,
// Interval, Binary, Star.
type Expr interface {
	exprNode()
	String() string
}

// And is a conjunction of terms.
type And struct{ Terms []Expr }

// Or is a disjunction of terms.
type Or struct{ Terms []Expr }

// Not negates X.
type Not struct{ X Expr }

// Paren is a parenthesized expression, kept so recognizers can match the
// idioms callers write, e.g. (metadata->'tags')::jsonb.
type Paren struct{ X Expr }

// Compare is a binary comparison. Op is normalized to upper case for
// keywords: "=", "!=", "<", "<=", ">", ">=", "@>", "<@", "LIKE", "ILIKE",
// "NOT LIKE", "NOT ILIKE". "<>" is folded into "!=".
type Compare struct {
	Left  Expr
	Op    string
	Right Expr
}

// InList is X [NOT] IN (List...).
type InList struct {
	X    Expr
	Not  bool
	List []Expr
}

// Is is X IS [NOT] NULL|TRUE|FALSE. Value holds the keyword upper-cased.
type Is struct {
	X     Expr
	Not   bool
	Value string
}

// Tautology is a comparison of two identical literals, such as 1 = 1.
type Tautology struct{ Text string }

// ColumnRef names a column, optionally qualified by a table.
type ColumnRef struct {
	Table string
	Name  string
}

// JSONPath is Base->'Key' (Text false) or Base->>'Key' (Text true).
type JSONPath struct {
	Base Expr
	Key  string
	Text bool
}

// Param is a positional placeholder $Index (1-based).
type Param struct{ Index int }

// Literal is a constant: string, number, boolean or NULL.
type Literal struct{ Value ir.Value }

// FuncCall is a function application. Name is lower-cased.
type FuncCall struct {
	Name string
	Args []Expr
}

// Cast is X::Type. Type is lower-cased.
type Cast struct {
	X    Expr
	Type string
}

// Interval is the literal INTERVAL 'Text'.
type Interval struct{ Text string }

// Binary is an arithmetic or concatenation expression.
type Binary struct {
	Left  Expr
	Op    string
	Right Expr
}

// Star is the * argument of COUNT(*).
type Star struct{}

func (And) exprNode()       {}
func (Or) exprNode()        {}
func (Not) exprNode()       {}
func (Paren) exprNode()     {}
func (Compare) exprNode()   {}
func (InList) exprNode()    {}
func (Is) exprNode()        {}
func (Tautology) exprNode() {}
func (ColumnRef) exprNode() {}
func (JSONPath) exprNode()  {}
func (Param) exprNode()     {}
func (Literal) exprNode()   {}
func (FuncCall) exprNode()  {}
func (Cast) exprNode()      {}
func (Interval) exprNode()  {}
func (Binary) exprNode()    {}
func (Star) exprNode()      {}

func joinExprs(exprs []Expr, sep string) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, sep)
}

func (e And) String() string   { return joinExprs(e.Terms, " AND ") }
func (e Or) String() string    { return joinExprs(e.Terms, " OR ") }
func (e Not) String() string   { return "NOT " + e.X.String() }
func (e Paren) String() string { return "(" + e.X.String() + ")" }

func (e Compare) String() string {
	return fmt.Sprintf("%s %s %s", e.Left, e.Op, e.Right)
}

func (e InList) String() string {
	op := "IN"
	if e.Not {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", e.X, op, joinExprs(e.List, ", "))
}

func (e Is) String() string {
	if e.Not {
		return fmt.Sprintf("%s IS NOT %s", e.X, e.Value)
	}
	return fmt.Sprintf("%s IS %s", e.X, e.Value)
}

func (e Tautology) String() string { return e.Text }

func (e ColumnRef) String() string {
	if e.Table != "" {
		return e.Table + "." + e.Name
	}
	return e.Name
}

func (e JSONPath) String() string {
	op := "->"
	if e.Text {
		op = "->>"
	}
	return fmt.Sprintf("%s%s'%s'", e.Base, op, strings.ReplaceAll(e.Key, "'", "''"))
}

func (e Param) String() string { return fmt.Sprintf("$%d", e.Index) }

func (e Literal) String() string {
	switch v := e.Value.(type) {
	case ir.String:
		return "'" + strings.ReplaceAll(string(v), "'", "''") + "'"
	case ir.Null:
		return "NULL"
	case ir.Bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return ir.Text(v)
	}
}

func (e FuncCall) String() string {
	return fmt.Sprintf("%s(%s)", strings.ToUpper(e.Name), joinExprs(e.Args, ", "))
}

func (e Cast) String() string     { return e.X.String() + "::" + e.Type }
func (e Interval) String() string { return "INTERVAL '" + e.Text + "'" }

func (e Binary) String() string {
	return fmt.Sprintf("%s %s %s", e.Left, e.Op, e.Right)
}

func (Star) String() string { return "*" }

// Unparen strips any number of enclosing Paren nodes.
func Unparen(e Expr) Expr {
	for {
		p, ok := e.(Paren)
		if !ok {
			return e
		}
		e = p.X
	}
}
