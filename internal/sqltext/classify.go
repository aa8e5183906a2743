package sqltext

import (
	"github.com/roach88/sqlrest/internal/queryir"
)

// errNotSupported is the classifier's single failure message.
const errNotSupported = "statement type not supported"

// Classify identifies the statement kind from its leading keyword(s).
// Keyword matching is case-insensitive and ignores surrounding whitespace,
// newlines and comments.
//
//	SELECT       -> KindSelect
//	INSERT INTO  -> KindInsert
//	UPDATE       -> KindUpdate
//	DELETE FROM  -> KindDelete
//
// Anything else returns a ParseError.
func Classify(sql string) (queryir.Kind, error) {
	toks, err := Tokenize(sql)
	if err != nil {
		return "", err
	}
	return classifyTokens(toks)
}

func classifyTokens(toks []Token) (queryir.Kind, error) {
	first, second := toks[0], Token{Type: TokEOF}
	if len(toks) > 1 {
		second = toks[1]
	}
	switch {
	case first.IsKeyword("SELECT"):
		return queryir.KindSelect, nil
	case first.IsKeyword("INSERT") && second.IsKeyword("INTO"):
		return queryir.KindInsert, nil
	case first.IsKeyword("UPDATE"):
		return queryir.KindUpdate, nil
	case first.IsKeyword("DELETE") && second.IsKeyword("FROM"):
		return queryir.KindDelete, nil
	default:
		return "", queryir.NewParseError(errNotSupported)
	}
}
