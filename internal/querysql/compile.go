package querysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/sqlrest/internal/ir"
	"github.com/roach88/sqlrest/internal/postgrest"
)

// ErrUnsupported marks a request the dialect cannot express.
var ErrUnsupported = errors.New("not supported by dialect")

// Statement is one compiled SQL statement.
type Statement struct {
	SQL  string
	Args []any

	// Query reports whether the statement returns rows (SELECT, COUNT or
	// a mutation with RETURNING).
	Query bool
}

// SQLCompiler compiles postgrest Requests to parameterized SQL.
//
// CRITICAL: All values are parameterized (never interpolated). JSON keys
// and identifiers come from statement text and are quoted.
type SQLCompiler struct {
	dialect Dialect
}

// NewSQLCompiler creates a compiler for dialect.
func NewSQLCompiler(dialect Dialect) *SQLCompiler {
	return &SQLCompiler{dialect: dialect}
}

// Dialect returns the compiler's dialect.
func (c *SQLCompiler) Dialect() Dialect {
	return c.dialect
}

// builder accumulates SQL text and arguments for one statement.
type builder struct {
	d    Dialect
	sb   strings.Builder
	args []any
}

func (b *builder) write(parts ...string) {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
}

// bind appends an argument and returns its placeholder.
func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.placeholder(len(b.args))
}

func (b *builder) bindValue(v ir.Value) (string, error) {
	arg, err := ir.ToDriver(v)
	if err != nil {
		return "", err
	}
	return b.bind(arg), nil
}

// Compile converts a request to SQL.
func (c *SQLCompiler) Compile(req *postgrest.Request) (Statement, error) {
	if req == nil {
		return Statement{}, fmt.Errorf("cannot compile nil request")
	}
	if req.Table == "" {
		return Statement{}, fmt.Errorf("request has no table")
	}
	if req.Returning != nil && !c.dialect.supportsReturning() {
		return Statement{}, fmt.Errorf("RETURNING: %w %s", ErrUnsupported, c.dialect)
	}

	b := &builder{d: c.dialect}
	var err error
	switch req.Action {
	case postgrest.ActionSelect:
		err = c.compileSelect(b, req)
	case postgrest.ActionInsert:
		err = c.compileInsert(b, req)
	case postgrest.ActionUpdate:
		err = c.compileUpdate(b, req)
	case postgrest.ActionDelete:
		err = c.compileDelete(b, req)
	default:
		err = fmt.Errorf("unsupported action %q", req.Action)
	}
	if err != nil {
		return Statement{}, err
	}

	return Statement{
		SQL:   b.sb.String(),
		Args:  b.args,
		Query: req.Action == postgrest.ActionSelect || req.Returning != nil,
	}, nil
}

func (c *SQLCompiler) compileSelect(b *builder, req *postgrest.Request) error {
	if req.Count {
		b.write("SELECT COUNT(*) FROM ", c.dialect.quoteIdent(req.Table))
	} else {
		b.write("SELECT ", c.columnList(req.Columns), " FROM ", c.dialect.quoteIdent(req.Table))
	}
	if err := c.compileWhere(b, req.Conditions); err != nil {
		return err
	}
	if req.Count {
		return nil
	}

	if len(req.Order) > 0 {
		terms := make([]string, len(req.Order))
		for i, o := range req.Order {
			dir := "ASC"
			if !o.Ascending {
				dir = "DESC"
			}
			terms[i] = c.dialect.quoteIdent(o.Column) + " " + dir
		}
		b.write(" ORDER BY ", strings.Join(terms, ", "))
	}

	if req.Range != nil {
		limit := req.Range.To - req.Range.From + 1
		if limit < 0 {
			limit = 0
		}
		b.write(" LIMIT ", b.bind(limit), " OFFSET ", b.bind(req.Range.From))
	}
	return nil
}

func (c *SQLCompiler) compileInsert(b *builder, req *postgrest.Request) error {
	if len(req.Body) == 0 {
		return fmt.Errorf("insert without records")
	}
	cols := postgrest.BodyColumns(req.Body)
	if len(cols) == 0 {
		return fmt.Errorf("insert records have no columns")
	}

	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = c.dialect.quoteIdent(col)
	}
	b.write("INSERT INTO ", c.dialect.quoteIdent(req.Table), " (", strings.Join(quoted, ", "), ") VALUES ")

	for i, row := range req.Body {
		if i > 0 {
			b.write(", ")
		}
		marks := make([]string, len(cols))
		for j, col := range cols {
			v, ok := row[col]
			if !ok {
				marks[j] = "NULL"
				continue
			}
			mark, err := b.bindValue(v)
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", i, col, err)
			}
			marks[j] = mark
		}
		b.write("(", strings.Join(marks, ", "), ")")
	}
	c.compileReturning(b, req.Returning)
	return nil
}

func (c *SQLCompiler) compileUpdate(b *builder, req *postgrest.Request) error {
	if len(req.Body) != 1 || len(req.Body[0]) == 0 {
		return fmt.Errorf("update needs one non-empty payload")
	}
	payload := req.Body[0]

	b.write("UPDATE ", c.dialect.quoteIdent(req.Table), " SET ")
	for i, col := range payload.SortedKeys() {
		if i > 0 {
			b.write(", ")
		}
		mark, err := b.bindValue(payload[col])
		if err != nil {
			return fmt.Errorf("column %q: %w", col, err)
		}
		b.write(c.dialect.quoteIdent(col), " = ", mark)
	}
	if err := c.compileWhere(b, req.Conditions); err != nil {
		return err
	}
	c.compileReturning(b, req.Returning)
	return nil
}

func (c *SQLCompiler) compileDelete(b *builder, req *postgrest.Request) error {
	b.write("DELETE FROM ", c.dialect.quoteIdent(req.Table))
	if err := c.compileWhere(b, req.Conditions); err != nil {
		return err
	}
	c.compileReturning(b, req.Returning)
	return nil
}

func (c *SQLCompiler) compileReturning(b *builder, cols []string) {
	if cols == nil {
		return
	}
	b.write(" RETURNING ", c.columnList(cols))
}

func (c *SQLCompiler) columnList(cols []string) string {
	if len(cols) == 0 {
		return "*"
	}
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = c.dialect.quoteIdent(col)
	}
	return strings.Join(quoted, ", ")
}

// compileWhere writes the WHERE clause. Conditions are ANDed.
func (c *SQLCompiler) compileWhere(b *builder, conds []postgrest.Condition) error {
	if len(conds) == 0 {
		return nil
	}
	b.write(" WHERE ")
	for i, cond := range conds {
		if i > 0 {
			b.write(" AND ")
		}
		sql, err := c.compileCondition(b, cond)
		if err != nil {
			return err
		}
		b.write(sql)
	}
	return nil
}

// compileCondition renders one condition. Arguments are bound in text
// order, which keeps $n numbering aligned for Postgres.
func (c *SQLCompiler) compileCondition(b *builder, cond postgrest.Condition) (string, error) {
	sql, err := c.compilePositive(b, cond)
	if err != nil {
		return "", err
	}
	if cond.Negate {
		return "NOT (" + sql + ")", nil
	}
	return sql, nil
}

var comparisons = map[postgrest.FilterOp]string{
	postgrest.OpEq:  "=",
	postgrest.OpNeq: "<>",
	postgrest.OpGt:  ">",
	postgrest.OpGte: ">=",
	postgrest.OpLt:  "<",
	postgrest.OpLte: "<=",
}

func (c *SQLCompiler) compilePositive(b *builder, cond postgrest.Condition) (string, error) {
	if cond.Op == postgrest.OpOr {
		if len(cond.Any) == 0 {
			return "1 = 0", nil
		}
		parts := make([]string, len(cond.Any))
		for i, alt := range cond.Any {
			sql, err := c.compileCondition(b, alt)
			if err != nil {
				return "", err
			}
			parts[i] = sql
		}
		return "(" + strings.Join(parts, " OR ") + ")", nil
	}

	field := c.fieldExpr(cond.Field)

	if sqlOp, ok := comparisons[cond.Op]; ok {
		mark, err := b.bindValue(c.comparable(cond.Field, cond.Value))
		if err != nil {
			return "", err
		}
		return field + " " + sqlOp + " " + mark, nil
	}

	switch cond.Op {
	case postgrest.OpILike:
		mark, err := b.bindValue(cond.Value)
		if err != nil {
			return "", err
		}
		if c.dialect == Postgres {
			return field + " ILIKE " + mark, nil
		}
		// SQLite LIKE is case-insensitive for ASCII; MySQL follows the
		// column collation, which is case-insensitive by default.
		return field + " LIKE " + mark, nil

	case postgrest.OpIn:
		if len(cond.Values) == 0 {
			return "1 = 0", nil
		}
		marks := make([]string, len(cond.Values))
		for i, v := range cond.Values {
			mark, err := b.bindValue(c.comparable(cond.Field, v))
			if err != nil {
				return "", err
			}
			marks[i] = mark
		}
		return field + " IN (" + strings.Join(marks, ", ") + ")", nil

	case postgrest.OpIs:
		switch v := cond.Value.(type) {
		case ir.Bool:
			if v {
				return field + " IS TRUE", nil
			}
			return field + " IS FALSE", nil
		default:
			return field + " IS NULL", nil
		}

	case postgrest.OpContains:
		return c.compileContains(b, cond)
	}
	return "", fmt.Errorf("unsupported filter operator %q", cond.Op)
}

// fieldExpr renders a column or JSON path expression.
func (c *SQLCompiler) fieldExpr(f postgrest.Field) string {
	col := c.dialect.quoteIdent(f.Column)
	if !f.IsJSON() {
		return col
	}
	switch c.dialect {
	case Postgres:
		var sb strings.Builder
		sb.WriteString(col)
		for i, key := range f.Path {
			if i == len(f.Path)-1 && f.Text {
				sb.WriteString("->>")
			} else {
				sb.WriteString("->")
			}
			sb.WriteString(quoteString(key))
		}
		return sb.String()
	case MySQL:
		expr := "JSON_EXTRACT(" + col + ", " + jsonPathLiteral(f.Path) + ")"
		if f.Text {
			return "JSON_UNQUOTE(" + expr + ")"
		}
		return expr
	default:
		return "json_extract(" + col + ", " + jsonPathLiteral(f.Path) + ")"
	}
}

// comparable adapts a value for comparison with a field. Booleans
// compared against extracted JSON text become 'true'/'false' text, or 1/0
// on SQLite, where json_extract yields integers for JSON booleans.
func (c *SQLCompiler) comparable(f postgrest.Field, v ir.Value) ir.Value {
	b, ok := v.(ir.Bool)
	if !ok || !f.IsJSON() || !f.Text {
		return v
	}
	if c.dialect == SQLite {
		if b {
			return ir.Int(1)
		}
		return ir.Int(0)
	}
	return ir.String(ir.Text(b))
}

func (c *SQLCompiler) compileContains(b *builder, cond postgrest.Condition) (string, error) {
	field := c.fieldExpr(cond.Field)
	switch c.dialect {
	case Postgres:
		mark, err := b.bindValue(cond.Value)
		if err != nil {
			return "", err
		}
		return "(" + field + ")::jsonb @> " + mark + "::jsonb", nil
	case MySQL:
		mark, err := b.bindValue(cond.Value)
		if err != nil {
			return "", err
		}
		return "JSON_CONTAINS(" + field + ", " + mark + ")", nil
	}

	// SQLite has no containment operator: expand to one membership test
	// per element (arrays) or per key (objects with scalar values).
	var parts []string
	switch v := cond.Value.(type) {
	case ir.Array:
		for _, elem := range v {
			if !isScalar(elem) {
				return "", fmt.Errorf("contains with nested value: %w %s", ErrUnsupported, c.dialect)
			}
			mark, err := b.bindValue(elem)
			if err != nil {
				return "", err
			}
			parts = append(parts, "EXISTS (SELECT 1 FROM json_each("+field+") WHERE value = "+mark+")")
		}
	case ir.Object:
		for _, key := range v.SortedKeys() {
			elem := v[key]
			if !isScalar(elem) {
				return "", fmt.Errorf("contains with nested value: %w %s", ErrUnsupported, c.dialect)
			}
			mark, err := b.bindValue(elem)
			if err != nil {
				return "", err
			}
			parts = append(parts, "json_extract("+field+", "+jsonPathLiteral([]string{key})+") = "+mark)
		}
	default:
		return "", fmt.Errorf("contains needs an array or object, got %T", cond.Value)
	}
	if len(parts) == 0 {
		return "json_type(" + field + ") IS NOT NULL", nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

func isScalar(v ir.Value) bool {
	switch v.(type) {
	case ir.Array, ir.Object:
		return false
	default:
		return true
	}
}
