package sqltext

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/roach88/sqlrest/internal/queryir"
)

// sqlLexer tokenizes the supported SQL subset. Rules are tried in order,
// so multi-character operators precede their prefixes.
var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\n]*|/\*(?:[^*]|\*[^/])*\*/`},
	{Name: "Whitespace", Pattern: `\s+`},

	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "QuotedIdent", Pattern: `"(?:[^"]|"")*"`},
	{Name: "Param", Pattern: `\$\d+`},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?(?:[eE][-+]?\d+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},

	{Name: "Operator", Pattern: `->>|->|::|@>|<@|<>|!=|>=|<=|\|\||[=<>+\-*/%]`},
	{Name: "Punct", Pattern: `[(),.;\[\]]`},
})

// TokenType classifies a Token.
type TokenType int

const (
	TokEOF TokenType = iota
	TokIdent
	TokQuotedIdent
	TokString
	TokNumber
	TokParam
	TokOperator
	TokPunct
)

func (t TokenType) String() string {
	switch t {
	case TokEOF:
		return "EOF"
	case TokIdent:
		return "Ident"
	case TokQuotedIdent:
		return "QuotedIdent"
	case TokString:
		return "String"
	case TokNumber:
		return "Number"
	case TokParam:
		return "Param"
	case TokOperator:
		return "Operator"
	case TokPunct:
		return "Punct"
	default:
		return fmt.Sprintf("TokenType(%d)", int(t))
	}
}

// Token is one lexical element with its byte offset in the source text.
type Token struct {
	Type   TokenType
	Value  string
	Offset int
}

// End returns the offset just past the token.
func (t Token) End() int {
	return t.Offset + len(t.Value)
}

// IsKeyword reports whether the token is the (case-insensitive) keyword kw.
func (t Token) IsKeyword(kw string) bool {
	return t.Type == TokIdent && strings.EqualFold(t.Value, kw)
}

// Is reports whether the token is the operator or punctuation s.
func (t Token) Is(s string) bool {
	return (t.Type == TokOperator || t.Type == TokPunct) && t.Value == s
}

var symbolTypes = func() map[lexer.TokenType]TokenType {
	syms := sqlLexer.Symbols()
	return map[lexer.TokenType]TokenType{
		syms["EOF"]:         TokEOF,
		syms["String"]:      TokString,
		syms["QuotedIdent"]: TokQuotedIdent,
		syms["Param"]:       TokParam,
		syms["Number"]:      TokNumber,
		syms["Ident"]:       TokIdent,
		syms["Operator"]:    TokOperator,
		syms["Punct"]:       TokPunct,
	}
}()

var elided = func() map[lexer.TokenType]bool {
	syms := sqlLexer.Symbols()
	return map[lexer.TokenType]bool{
		syms["Comment"]:    true,
		syms["Whitespace"]: true,
	}
}()

// Tokenize splits statement text into tokens. Whitespace and comments are
// dropped; the result always ends with a TokEOF token.
func Tokenize(sql string) ([]Token, error) {
	lex, err := sqlLexer.Lex("", strings.NewReader(sql))
	if err != nil {
		return nil, queryir.NewParseError("tokenize: %v", err)
	}
	raw, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, queryir.NewParseError("tokenize: %v", err)
	}

	tokens := make([]Token, 0, len(raw))
	for _, tok := range raw {
		if elided[tok.Type] {
			continue
		}
		typ, ok := symbolTypes[tok.Type]
		if !ok {
			return nil, queryir.NewParseError("tokenize: unexpected token %q at offset %d", tok.Value, tok.Pos.Offset)
		}
		if typ == TokEOF {
			tokens = append(tokens, Token{Type: TokEOF, Offset: len(sql)})
			break
		}
		tokens = append(tokens, Token{Type: typ, Value: tok.Value, Offset: tok.Pos.Offset})
	}
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != TokEOF {
		tokens = append(tokens, Token{Type: TokEOF, Offset: len(sql)})
	}
	return tokens, nil
}

// unquoteString strips the quotes from a SQL string literal and collapses
// doubled quotes.
func unquoteString(s string) string {
	s = strings.TrimPrefix(strings.TrimSuffix(s, "'"), "'")
	return strings.ReplaceAll(s, "''", "'")
}

// identName returns the identifier a token names, unquoting "quoted"
// identifiers. Unquoted identifiers keep their spelling.
func identName(t Token) string {
	if t.Type == TokQuotedIdent {
		s := strings.TrimPrefix(strings.TrimSuffix(t.Value, `"`), `"`)
		return strings.ReplaceAll(s, `""`, `"`)
	}
	return t.Value
}

// isIdent reports whether t can name a column or table.
func isIdent(t Token) bool {
	if t.Type == TokQuotedIdent {
		return true
	}
	return t.Type == TokIdent && !reserved[strings.ToUpper(t.Value)]
}

// reserved keywords can never be read as column or table names.
var reserved = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AND": true, "OR": true,
	"NOT": true, "IN": true, "IS": true, "NULL": true, "TRUE": true,
	"FALSE": true, "LIKE": true, "ILIKE": true, "ORDER": true, "BY": true,
	"LIMIT": true, "OFFSET": true, "RETURNING": true, "SET": true,
	"VALUES": true, "INTO": true, "INTERVAL": true, "BETWEEN": true,
	"EXISTS": true, "JOIN": true, "GROUP": true, "HAVING": true,
	"UNION": true, "AS": true, "ON": true, "CASE": true,
}

// source re-slices the original text covered by tokens[from:to].
func source(sql string, tokens []Token) string {
	if len(tokens) == 0 {
		return ""
	}
	return strings.TrimSpace(sql[tokens[0].Offset:tokens[len(tokens)-1].End()])
}
