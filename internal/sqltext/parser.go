package sqltext

import (
	"strconv"
	"strings"

	"github.com/roach88/sqlrest/internal/ir"
	"github.com/roach88/sqlrest/internal/queryir"
)

// parser is a recursive-descent parser over a token slice.
//
// Grammar (lowest to highest precedence):
//
//	or        = and { OR and }
//	and       = not { AND not }
//	not       = NOT not | predicate
//	predicate = additive [ cmpop additive
//	                     | [NOT] IN "(" additive { "," additive } ")"
//	                     | [NOT] (LIKE|ILIKE) additive
//	                     | IS [NOT] (NULL|TRUE|FALSE) ]
//	additive  = mul { ("+"|"-"|"||") mul }
//	mul       = unary { ("*"|"/"|"%") unary }
//	unary     = "-" Number | postfix
//	postfix   = primary { "::" type | ("->"|"->>") key }
//	primary   = Param | Number | String | TRUE | FALSE | NULL
//	          | INTERVAL String | ident "(" args ")" | ident ["." ident]
//	          | "(" or ")"
type parser struct {
	sql  string
	toks []Token
	pos  int
}

func newParser(sql string, toks []Token) *parser {
	if len(toks) == 0 || toks[len(toks)-1].Type != TokEOF {
		end := 0
		if len(toks) > 0 {
			end = toks[len(toks)-1].End()
		}
		toks = append(toks[:len(toks):len(toks)], Token{Type: TokEOF, Offset: end})
	}
	return &parser{sql: sql, toks: toks}
}

// ParseExpr parses tokens as one complete expression.
func ParseExpr(sql string, toks []Token) (Expr, error) {
	p := newParser(sql, toks)
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokEOF {
		return nil, p.errorf(tok, "unexpected %q", tok.Value)
	}
	return e, nil
}

func (p *parser) peek() Token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() Token {
	tok := p.toks[p.pos]
	if tok.Type != TokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) acceptKeyword(kw string) bool {
	if p.peek().IsKeyword(kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) accept(sym string) bool {
	if p.peek().Is(sym) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(sym string) error {
	if p.accept(sym) {
		return nil
	}
	tok := p.peek()
	if tok.Type == TokEOF {
		return p.errorf(tok, "expected %q, found end of text", sym)
	}
	return p.errorf(tok, "expected %q, found %q", sym, tok.Value)
}

func (p *parser) errorf(tok Token, format string, args ...any) error {
	err := queryir.NewParseError(format, args...)
	err.Detail = "at offset " + strconv.Itoa(tok.Offset)
	return err
}

func (p *parser) unsupported(tok Token, reason string) error {
	return queryir.NewUnsupportedError(source(p.sql, p.toks[:len(p.toks)-1]), reason)
}

func (p *parser) parseOr() (Expr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []Expr{first}
	for p.acceptKeyword("OR") {
		term, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return Or{Terms: terms}, nil
}

func (p *parser) parseAnd() (Expr, error) {
	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	terms := []Expr{first}
	for p.acceptKeyword("AND") {
		term, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return And{Terms: terms}, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.peek().IsKeyword("NOT") {
		if p.peekAt(1).IsKeyword("EXISTS") {
			return nil, p.unsupported(p.peek(), "subquery")
		}
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{X: x}, nil
	}
	return p.parsePredicate()
}

var comparisonOps = map[string]string{
	"=": "=", "!=": "!=", "<>": "!=", "<": "<", "<=": "<=",
	">": ">", ">=": ">=", "@>": "@>", "<@": "<@",
}

func (p *parser) parsePredicate() (Expr, error) {
	start := p.pos
	if p.peek().IsKeyword("EXISTS") {
		return nil, p.unsupported(p.peek(), "subquery")
	}
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	tok := p.peek()
	if tok.Type == TokOperator {
		if op, ok := comparisonOps[tok.Value]; ok {
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			if isTautology(left, op, right) {
				return Tautology{Text: source(p.sql, p.toks[start:p.pos])}, nil
			}
			return Compare{Left: left, Op: op, Right: right}, nil
		}
	}

	negate := false
	if tok.IsKeyword("NOT") {
		negate = true
		p.next()
		tok = p.peek()
	}

	switch {
	case tok.IsKeyword("IN"):
		p.next()
		list, err := p.parseInList()
		if err != nil {
			return nil, err
		}
		return InList{X: left, Not: negate, List: list}, nil
	case tok.IsKeyword("LIKE"), tok.IsKeyword("ILIKE"):
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		op := strings.ToUpper(tok.Value)
		if negate {
			op = "NOT " + op
		}
		return Compare{Left: left, Op: op, Right: right}, nil
	case tok.IsKeyword("BETWEEN"):
		return nil, p.unsupported(tok, "BETWEEN")
	case negate:
		return nil, p.errorf(tok, "expected IN, LIKE or ILIKE after NOT")
	case tok.IsKeyword("IS"):
		p.next()
		not := p.acceptKeyword("NOT")
		val := p.next()
		switch {
		case val.IsKeyword("NULL"), val.IsKeyword("TRUE"), val.IsKeyword("FALSE"):
			return Is{X: left, Not: not, Value: strings.ToUpper(val.Value)}, nil
		case val.IsKeyword("DISTINCT"):
			return nil, p.unsupported(val, "IS DISTINCT FROM")
		default:
			return nil, p.errorf(val, "expected NULL, TRUE or FALSE after IS")
		}
	}
	return left, nil
}

func isTautology(left Expr, op string, right Expr) bool {
	if op != "=" {
		return false
	}
	l, ok := left.(Literal)
	if !ok {
		return false
	}
	r, ok := right.(Literal)
	if !ok || ir.IsNull(l.Value) {
		return false
	}
	return l.String() == r.String()
}

func (p *parser) parseInList() ([]Expr, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	if p.peek().IsKeyword("SELECT") {
		return nil, p.unsupported(p.peek(), "subquery")
	}
	var list []Expr
	for {
		e, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
		if !p.accept(",") {
			break
		}
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if !tok.Is("+") && !tok.Is("-") && !tok.Is("||") {
			return left, nil
		}
		p.next()
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		left = Binary{Left: left, Op: tok.Value, Right: right}
	}
}

func (p *parser) parseMul() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if !tok.Is("*") && !tok.Is("/") && !tok.Is("%") {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = Binary{Left: left, Op: tok.Value, Right: right}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().Is("-") && p.peekAt(1).Type == TokNumber {
		p.next()
		num := p.next()
		v, err := numberValue("-" + num.Value)
		if err != nil {
			return nil, p.errorf(num, "%v", err)
		}
		return Literal{Value: v}, nil
	}
	return p.parsePostfix()
}

// castTypeWords may continue a multi-word type name after ::.
var castTypeWords = map[string]bool{
	"with": true, "without": true, "time": true, "zone": true,
	"precision": true, "varying": true,
}

func (p *parser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch {
		case tok.Is("::"):
			p.next()
			name := p.next()
			if name.Type != TokIdent {
				return nil, p.errorf(name, "expected type name after ::")
			}
			words := []string{strings.ToLower(name.Value)}
			for p.peek().Type == TokIdent && castTypeWords[strings.ToLower(p.peek().Value)] {
				words = append(words, strings.ToLower(p.next().Value))
			}
			typ := strings.Join(words, " ")
			if p.peek().Is("[") && p.peekAt(1).Is("]") {
				p.next()
				p.next()
				typ += "[]"
			}
			x = Cast{X: x, Type: typ}
		case tok.Is("->"), tok.Is("->>"):
			p.next()
			key := p.next()
			switch key.Type {
			case TokString:
				x = JSONPath{Base: x, Key: unquoteString(key.Value), Text: tok.Value == "->>"}
			case TokNumber:
				x = JSONPath{Base: x, Key: key.Value, Text: tok.Value == "->>"}
			default:
				return nil, p.unsupported(key, "dynamic JSON key")
			}
		default:
			return x, nil
		}
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case TokParam:
		p.next()
		idx, err := strconv.Atoi(tok.Value[1:])
		if err != nil || idx < 1 {
			return nil, p.errorf(tok, "invalid placeholder %s", tok.Value)
		}
		return Param{Index: idx}, nil
	case TokNumber:
		p.next()
		v, err := numberValue(tok.Value)
		if err != nil {
			return nil, p.errorf(tok, "%v", err)
		}
		return Literal{Value: v}, nil
	case TokString:
		p.next()
		return Literal{Value: ir.String(unquoteString(tok.Value))}, nil
	case TokPunct:
		if tok.Is("(") {
			p.next()
			if p.peek().IsKeyword("SELECT") {
				return nil, p.unsupported(p.peek(), "subquery")
			}
			x, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return Paren{X: x}, nil
		}
	case TokQuotedIdent:
		return p.parseName()
	case TokIdent:
		switch strings.ToUpper(tok.Value) {
		case "TRUE", "FALSE":
			p.next()
			return Literal{Value: ir.Bool(strings.EqualFold(tok.Value, "TRUE"))}, nil
		case "NULL":
			p.next()
			return Literal{Value: ir.Null{}}, nil
		case "INTERVAL":
			p.next()
			text := p.next()
			if text.Type != TokString {
				return nil, p.errorf(text, "expected string after INTERVAL")
			}
			return Interval{Text: unquoteString(text.Value)}, nil
		case "CURRENT_TIMESTAMP":
			p.next()
			return FuncCall{Name: "now"}, nil
		case "SELECT":
			return nil, p.unsupported(tok, "subquery")
		case "CASE":
			return nil, p.unsupported(tok, "CASE expression")
		}
		if isIdent(tok) {
			return p.parseName()
		}
	case TokEOF:
		return nil, p.errorf(tok, "unexpected end of condition")
	}
	return nil, p.errorf(tok, "unexpected %q", tok.Value)
}

// parseName parses a function call or a possibly qualified column.
func (p *parser) parseName() (Expr, error) {
	tok := p.next()
	name := identName(tok)

	if tok.Type == TokIdent && p.peek().Is("(") {
		p.next()
		call := FuncCall{Name: strings.ToLower(name)}
		if p.accept(")") {
			return call, nil
		}
		if p.peek().Is("*") && p.peekAt(1).Is(")") {
			p.next()
			p.next()
			call.Args = []Expr{Star{}}
			return call, nil
		}
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if !p.accept(",") {
				break
			}
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return call, nil
	}

	if p.peek().Is(".") && isIdent(p.peekAt(1)) {
		p.next()
		col := p.next()
		return ColumnRef{Table: name, Name: identName(col)}, nil
	}
	return ColumnRef{Name: name}, nil
}

func numberValue(text string) (ir.Value, error) {
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return ir.Int(n), nil
	}
	return ir.NewNumber(text)
}

// Fragment is one top-level AND-joined piece of a WHERE clause.
// Exactly one of Expr and Err is set.
type Fragment struct {
	Text string
	Expr Expr
	Err  error
}

// SplitConjuncts splits condition tokens on AND at parenthesis depth zero
// and parses each piece independently, so one unparseable piece never
// hides the others. The AND inside BETWEEN x AND y does not split.
func SplitConjuncts(sql string, toks []Token) []Fragment {
	var frags []Fragment
	depth := 0
	between := false
	start := 0

	flush := func(end int) {
		piece := toks[start:end]
		if len(piece) == 0 {
			frags = append(frags, Fragment{Err: queryir.NewParseError("empty condition")})
			return
		}
		frag := Fragment{Text: source(sql, piece)}
		frag.Expr, frag.Err = ParseExpr(sql, piece)
		frags = append(frags, frag)
	}

	for i, tok := range toks {
		if tok.Type == TokEOF {
			break
		}
		switch {
		case tok.Is("("):
			depth++
		case tok.Is(")"):
			depth--
		case depth == 0 && tok.IsKeyword("BETWEEN"):
			between = true
		case depth == 0 && tok.IsKeyword("AND"):
			if between {
				between = false
				continue
			}
			flush(i)
			start = i + 1
		}
	}
	end := len(toks)
	if end > 0 && toks[end-1].Type == TokEOF {
		end--
	}
	if start < end || len(frags) > 0 {
		flush(end)
	}
	return frags
}
