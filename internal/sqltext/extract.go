package sqltext

import (
	"strings"

	"github.com/roach88/sqlrest/internal/ir"
	"github.com/roach88/sqlrest/internal/queryir"
)

// ParsedStatement is the clause-level breakdown of one statement.
// It is produced once per call and never modified afterwards.
type ParsedStatement struct {
	Kind  queryir.Kind
	Text  string
	Table string

	// Columns is the SELECT projection; nil means *.
	Columns []string

	// Count marks SELECT COUNT(*).
	Count bool

	// Literal is set for SELECT <int> without FROM.
	Literal *int64

	WhereText string
	Where     []Fragment

	SetText     string
	Assignments []Assignment

	InsertColumns []string
	InsertRows    [][]Expr

	OrderBy []queryir.OrderTerm

	// Limit and Offset are Param or Literal operands, nil when absent.
	Limit  Expr
	Offset Expr

	// Returning is nil without a RETURNING clause.
	Returning []string
}

// Assignment is one column = value pair from an UPDATE SET clause.
type Assignment struct {
	Column string
	Value  Expr
	Text   string
}

// clause names used while splitting the statement tail.
const (
	clauseWhere     = "WHERE"
	clauseOrderBy   = "ORDER BY"
	clauseLimit     = "LIMIT"
	clauseOffset    = "OFFSET"
	clauseReturning = "RETURNING"
)

// unsupportedKeywords introduce syntax outside the supported subset.
var unsupportedKeywords = map[string]string{
	"JOIN":   "joins",
	"LEFT":   "joins",
	"RIGHT":  "joins",
	"INNER":  "joins",
	"FULL":   "joins",
	"CROSS":  "joins",
	"GROUP":  "GROUP BY",
	"HAVING": "HAVING",
	"UNION":  "UNION",
	"WINDOW": "window functions",
	"FOR":    "row locking",
	"ON":     "ON CONFLICT",
	"FETCH":  "FETCH",
}

// trailingKeywords end a WHERE clause even though they are not clause
// boundaries of the supported subset. Other entries of unsupportedKeywords
// (LEFT, RIGHT, ON, ...) can legitimately appear inside a condition.
var trailingKeywords = map[string]bool{
	"GROUP": true, "HAVING": true, "UNION": true, "WINDOW": true, "FETCH": true,
}

func unsupportedSyntax(what string) *queryir.Error {
	return &queryir.Error{
		Kind:    queryir.KindParse,
		Code:    queryir.CodeFeatureNotSupp,
		Message: what + " not supported",
	}
}

// Parse tokenizes, classifies and splits a statement into clauses.
//
// Clauses are located on token boundaries at parenthesis depth zero, so
// whitespace, newlines and comments in the text are irrelevant. A clause
// runs from its introducing keyword to the next boundary keyword (WHERE,
// ORDER BY, LIMIT, OFFSET, RETURNING) or the end of the statement.
func Parse(sql string) (*ParsedStatement, error) {
	toks, err := Tokenize(sql)
	if err != nil {
		return nil, err
	}
	toks, err = trimTerminator(toks)
	if err != nil {
		return nil, err
	}
	kind, err := classifyTokens(toks)
	if err != nil {
		return nil, err
	}

	stmt := &ParsedStatement{Kind: kind, Text: sql}
	body := toks[:len(toks)-1] // drop EOF

	switch kind {
	case queryir.KindSelect:
		err = extractSelect(sql, stmt, body[1:])
	case queryir.KindInsert:
		err = extractInsert(sql, stmt, body[2:])
	case queryir.KindUpdate:
		err = extractUpdate(sql, stmt, body[1:])
	case queryir.KindDelete:
		err = extractDelete(sql, stmt, body[2:])
	}
	if err != nil {
		return nil, err
	}
	return stmt, nil
}

// trimTerminator drops one trailing semicolon and rejects any other.
func trimTerminator(toks []Token) ([]Token, error) {
	n := len(toks)
	if n >= 2 && toks[n-2].Is(";") {
		toks = append(toks[:n-2:n-2], toks[n-1])
	}
	for _, t := range toks {
		if t.Is(";") {
			return nil, unsupportedSyntax("multiple statements")
		}
	}
	if toks[0].Type == TokEOF {
		return nil, queryir.NewParseError("empty statement")
	}
	return toks, nil
}

func extractSelect(sql string, stmt *ParsedStatement, toks []Token) error {
	from := indexKeyword(toks, 0, "FROM")
	if from < 0 {
		return extractLiteralSelect(stmt, toks)
	}

	if err := extractProjection(sql, stmt, toks[:from]); err != nil {
		return err
	}

	table, rest, err := extractTable(toks[from+1:])
	if err != nil {
		return err
	}
	stmt.Table = table

	clauses, err := splitClauses(sql, rest, clauseWhere, clauseOrderBy, clauseLimit, clauseOffset)
	if err != nil {
		return err
	}
	if err := stmt.applyWhere(sql, clauses); err != nil {
		return err
	}
	if t, ok := clauses[clauseOrderBy]; ok {
		if stmt.OrderBy, err = extractOrderBy(sql, t); err != nil {
			return err
		}
	}
	if t, ok := clauses[clauseLimit]; ok {
		if stmt.Limit, err = extractOperand(sql, clauseLimit, t, true); err != nil {
			return err
		}
	}
	if t, ok := clauses[clauseOffset]; ok {
		if stmt.Offset, err = extractOperand(sql, clauseOffset, t, false); err != nil {
			return err
		}
	}
	return nil
}

// extractLiteralSelect handles the FROM-less SELECT <int> form.
func extractLiteralSelect(stmt *ParsedStatement, toks []Token) error {
	neg := false
	if len(toks) == 2 && toks[0].Is("-") {
		neg = true
		toks = toks[1:]
	}
	if len(toks) == 1 && toks[0].Type == TokNumber {
		v, err := numberValue(toks[0].Value)
		if iv, ok := asInt64(v); ok && err == nil {
			if neg {
				iv = -iv
			}
			stmt.Literal = &iv
			return nil
		}
	}
	return queryir.NewParseError(errNotSupported)
}

func extractProjection(sql string, stmt *ParsedStatement, toks []Token) error {
	if len(toks) == 0 {
		return queryir.NewParseError("missing select list")
	}
	if toks[0].IsKeyword("DISTINCT") {
		return unsupportedSyntax("DISTINCT")
	}
	if len(toks) == 1 && toks[0].Is("*") {
		return nil
	}

	items := splitTopLevel(toks, ",")
	for _, item := range items {
		switch {
		case isCountStar(item):
			if len(items) > 1 {
				return unsupportedSyntax("COUNT(*) mixed with columns")
			}
			stmt.Count = true
		case len(item) == 1 && isIdent(item[0]):
			stmt.Columns = append(stmt.Columns, identName(item[0]))
		case len(item) == 3 && isIdent(item[0]) && item[1].Is(".") && isIdent(item[2]):
			stmt.Columns = append(stmt.Columns, identName(item[2]))
		default:
			return unsupportedSyntax("select list item " + quote(source(sql, item)))
		}
	}
	return nil
}

// isCountStar matches COUNT(*) with an optional AS alias.
func isCountStar(item []Token) bool {
	if len(item) == 6 && item[4].IsKeyword("AS") && isIdent(item[5]) {
		item = item[:4]
	}
	return len(item) == 4 && item[0].IsKeyword("COUNT") && item[1].Is("(") && item[2].Is("*") && item[3].Is(")")
}

// extractTable reads a possibly schema-qualified table name and returns
// the tokens that follow it.
func extractTable(toks []Token) (string, []Token, error) {
	if len(toks) == 0 || !isIdent(toks[0]) {
		return "", nil, queryir.NewParseError(errNotSupported)
	}
	name := identName(toks[0])
	rest := toks[1:]
	if len(rest) >= 2 && rest[0].Is(".") && isIdent(rest[1]) {
		name = identName(rest[1])
		rest = rest[2:]
	}
	if len(rest) > 0 {
		next := rest[0]
		if next.Is(",") {
			return "", nil, unsupportedSyntax("joins")
		}
		if next.Type == TokIdent && !isBoundary(rest, 0) {
			if what, ok := unsupportedKeywords[strings.ToUpper(next.Value)]; ok {
				return "", nil, unsupportedSyntax(what)
			}
			if isIdent(next) || next.IsKeyword("AS") {
				return "", nil, unsupportedSyntax("table aliases")
			}
		}
	}
	return name, rest, nil
}

func extractInsert(sql string, stmt *ParsedStatement, toks []Token) error {
	table, rest, err := extractTable(toks)
	if err != nil {
		return err
	}
	stmt.Table = table

	if len(rest) == 0 || !rest[0].Is("(") {
		return queryir.NewParseError("INSERT requires a parenthesized column list")
	}
	closeIdx := matchParen(rest, 0)
	if closeIdx < 0 {
		return queryir.NewParseError("unbalanced parentheses in INSERT column list")
	}
	for _, item := range splitTopLevel(rest[1:closeIdx], ",") {
		if len(item) != 1 || !isIdent(item[0]) {
			return queryir.NewParseError("invalid INSERT column %s", quote(source(sql, item)))
		}
		stmt.InsertColumns = append(stmt.InsertColumns, identName(item[0]))
	}
	if len(stmt.InsertColumns) == 0 {
		return queryir.NewParseError("INSERT requires at least one column")
	}

	rest = rest[closeIdx+1:]
	if len(rest) > 0 && rest[0].IsKeyword("SELECT") {
		return unsupportedSyntax("INSERT ... SELECT")
	}
	if len(rest) == 0 || !rest[0].IsKeyword("VALUES") {
		return queryir.NewParseError("INSERT requires a VALUES clause")
	}

	p := newParser(sql, rest[1:])
	for {
		if err := p.expect("("); err != nil {
			return err
		}
		var row []Expr
		for {
			e, err := p.parseAdditive()
			if err != nil {
				return err
			}
			row = append(row, e)
			if !p.accept(",") {
				break
			}
		}
		if err := p.expect(")"); err != nil {
			return err
		}
		if len(row) != len(stmt.InsertColumns) {
			return queryir.NewParseError("INSERT has %d columns but %d values", len(stmt.InsertColumns), len(row))
		}
		stmt.InsertRows = append(stmt.InsertRows, row)
		if !p.accept(",") {
			break
		}
	}

	tail := p.toks[p.pos : len(p.toks)-1]
	clauses, err := splitClauses(sql, tail, clauseReturning)
	if err != nil {
		return err
	}
	return stmt.applyReturning(sql, clauses)
}

func extractUpdate(sql string, stmt *ParsedStatement, toks []Token) error {
	table, rest, err := extractTable(toks)
	if err != nil {
		return err
	}
	stmt.Table = table

	if len(rest) == 0 || !rest[0].IsKeyword("SET") {
		return queryir.NewParseError("UPDATE requires a SET clause")
	}
	rest = rest[1:]
	end := nextBoundary(rest, 0)
	setToks := rest[:end]
	if len(setToks) == 0 {
		return queryir.NewParseError("UPDATE requires at least one assignment")
	}
	stmt.SetText = source(sql, setToks)

	for _, item := range splitTopLevel(setToks, ",") {
		if len(item) < 3 || !isIdent(item[0]) || !item[1].Is("=") {
			return queryir.NewParseError("invalid assignment %s", quote(source(sql, item)))
		}
		value, err := ParseExpr(sql, item[2:])
		if err != nil {
			return err
		}
		stmt.Assignments = append(stmt.Assignments, Assignment{
			Column: identName(item[0]),
			Value:  value,
			Text:   source(sql, item),
		})
	}

	clauses, err := splitClauses(sql, rest[end:], clauseWhere, clauseReturning)
	if err != nil {
		return err
	}
	if err := stmt.applyWhere(sql, clauses); err != nil {
		return err
	}
	return stmt.applyReturning(sql, clauses)
}

func extractDelete(sql string, stmt *ParsedStatement, toks []Token) error {
	table, rest, err := extractTable(toks)
	if err != nil {
		return err
	}
	stmt.Table = table

	clauses, err := splitClauses(sql, rest, clauseWhere, clauseReturning)
	if err != nil {
		return err
	}
	if err := stmt.applyWhere(sql, clauses); err != nil {
		return err
	}
	return stmt.applyReturning(sql, clauses)
}

func (stmt *ParsedStatement) applyWhere(sql string, clauses map[string][]Token) error {
	t, ok := clauses[clauseWhere]
	if !ok {
		return nil
	}
	if len(t) == 0 {
		return queryir.NewParseError("empty WHERE clause")
	}
	stmt.WhereText = source(sql, t)
	stmt.Where = SplitConjuncts(sql, t)
	return nil
}

func (stmt *ParsedStatement) applyReturning(sql string, clauses map[string][]Token) error {
	t, ok := clauses[clauseReturning]
	if !ok {
		return nil
	}
	if len(t) == 1 && t[0].Is("*") {
		stmt.Returning = []string{"*"}
		return nil
	}
	stmt.Returning = []string{}
	for _, item := range splitTopLevel(t, ",") {
		if len(item) != 1 || !isIdent(item[0]) {
			return unsupportedSyntax("RETURNING item " + quote(source(sql, item)))
		}
		stmt.Returning = append(stmt.Returning, identName(item[0]))
	}
	if len(stmt.Returning) == 0 {
		return queryir.NewParseError("empty RETURNING clause")
	}
	return nil
}

func extractOrderBy(sql string, toks []Token) ([]queryir.OrderTerm, error) {
	var terms []queryir.OrderTerm
	for _, item := range splitTopLevel(toks, ",") {
		if len(item) == 0 {
			return nil, queryir.NewParseError("empty ORDER BY term")
		}
		var name string
		switch {
		case isIdent(item[0]) && len(item) >= 3 && item[1].Is(".") && isIdent(item[2]):
			name = identName(item[2])
			item = item[3:]
		case isIdent(item[0]):
			name = identName(item[0])
			item = item[1:]
		default:
			return nil, unsupportedSyntax("ORDER BY term " + quote(source(sql, item)))
		}

		term := queryir.OrderTerm{Column: name, Ascending: true}
		if len(item) > 0 && (item[0].IsKeyword("ASC") || item[0].IsKeyword("DESC")) {
			term.Ascending = item[0].IsKeyword("ASC")
			item = item[1:]
		}
		if len(item) == 2 && item[0].IsKeyword("NULLS") && (item[1].IsKeyword("FIRST") || item[1].IsKeyword("LAST")) {
			item = nil
		}
		if len(item) > 0 {
			return nil, unsupportedSyntax("ORDER BY term " + quote(source(sql, item)))
		}
		terms = append(terms, term)
	}
	return terms, nil
}

// extractOperand reads a LIMIT or OFFSET operand: a placeholder or an
// integer literal. LIMIT ALL yields nil.
func extractOperand(sql, clause string, toks []Token, allowAll bool) (Expr, error) {
	if len(toks) == 1 && allowAll && toks[0].IsKeyword("ALL") {
		return nil, nil
	}
	if clause == clauseOffset && len(toks) == 2 && (toks[1].IsKeyword("ROWS") || toks[1].IsKeyword("ROW")) {
		toks = toks[:1]
	}
	if len(toks) == 0 {
		return nil, queryir.NewParseError("%s requires a value", clause)
	}
	e, err := ParseExpr(sql, toks)
	if err != nil {
		return nil, err
	}
	switch v := e.(type) {
	case Param:
		return v, nil
	case Literal:
		if _, ok := asInt64(v.Value); ok {
			return v, nil
		}
	}
	return nil, queryir.NewParseError("%s must be an integer or placeholder, got %s", clause, quote(source(sql, toks)))
}

// splitClauses partitions the statement tail into clauses keyed by their
// introducing keyword. Only the allowed clauses may appear, each at most
// once, and nothing may precede the first clause.
func splitClauses(sql string, toks []Token, allowed ...string) (map[string][]Token, error) {
	clauses := make(map[string][]Token)
	current := ""
	start := 0

	closeClause := func(end int) {
		if current != "" {
			clauses[current] = toks[start:end]
		}
	}

	depth := 0
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		switch {
		case tok.Is("("):
			depth++
			continue
		case tok.Is(")"):
			depth--
			continue
		}
		if depth != 0 {
			continue
		}

		name, width := boundaryAt(toks, i)
		if name == "" {
			if current == "" {
				if what, ok := unsupportedKeywords[strings.ToUpper(tok.Value)]; ok && tok.Type == TokIdent {
					return nil, unsupportedSyntax(what)
				}
				return nil, queryir.NewParseError("unexpected %s", quote(source(sql, toks[i:])))
			}
			if tok.Type == TokIdent {
				upper := strings.ToUpper(tok.Value)
				if what, ok := unsupportedKeywords[upper]; ok && (current != clauseWhere || trailingKeywords[upper]) {
					return nil, unsupportedSyntax(what)
				}
			}
			continue
		}

		if !containsString(allowed, name) {
			return nil, unsupportedSyntax(name + " in this statement")
		}
		if _, dup := clauses[name]; dup || name == current {
			return nil, queryir.NewParseError("duplicate %s clause", name)
		}
		closeClause(i)
		current = name
		start = i + width
		i += width - 1
	}
	if depth != 0 {
		return nil, queryir.NewParseError("unbalanced parentheses")
	}
	closeClause(len(toks))
	return clauses, nil
}

// boundaryAt reports the clause keyword starting at toks[i], and how many
// tokens it spans.
func boundaryAt(toks []Token, i int) (string, int) {
	tok := toks[i]
	switch {
	case tok.IsKeyword("WHERE"):
		return clauseWhere, 1
	case tok.IsKeyword("ORDER") && i+1 < len(toks) && toks[i+1].IsKeyword("BY"):
		return clauseOrderBy, 2
	case tok.IsKeyword("LIMIT"):
		return clauseLimit, 1
	case tok.IsKeyword("OFFSET"):
		return clauseOffset, 1
	case tok.IsKeyword("RETURNING"):
		return clauseReturning, 1
	}
	return "", 0
}

func isBoundary(toks []Token, i int) bool {
	name, _ := boundaryAt(toks, i)
	return name != ""
}

// nextBoundary returns the index of the next depth-zero clause keyword at
// or after from, or len(toks).
func nextBoundary(toks []Token, from int) int {
	depth := 0
	for i := from; i < len(toks); i++ {
		switch {
		case toks[i].Is("("):
			depth++
		case toks[i].Is(")"):
			depth--
		case depth == 0 && isBoundary(toks, i):
			return i
		}
	}
	return len(toks)
}

// indexKeyword finds kw at parenthesis depth zero.
func indexKeyword(toks []Token, from int, kw string) int {
	depth := 0
	for i := from; i < len(toks); i++ {
		switch {
		case toks[i].Is("("):
			depth++
		case toks[i].Is(")"):
			depth--
		case depth == 0 && toks[i].IsKeyword(kw):
			return i
		}
	}
	return -1
}

// matchParen returns the index of the parenthesis closing toks[open].
func matchParen(toks []Token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		switch {
		case toks[i].Is("("):
			depth++
		case toks[i].Is(")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits toks on sep at parenthesis depth zero.
func splitTopLevel(toks []Token, sep string) [][]Token {
	var out [][]Token
	depth, start := 0, 0
	for i, tok := range toks {
		switch {
		case tok.Is("("):
			depth++
		case tok.Is(")"):
			depth--
		case depth == 0 && tok.Is(sep):
			out = append(out, toks[start:i])
			start = i + 1
		}
	}
	return append(out, toks[start:])
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func asInt64(v ir.Value) (int64, bool) {
	i, ok := v.(ir.Int)
	return int64(i), ok
}

func quote(s string) string {
	return "\"" + s + "\""
}
