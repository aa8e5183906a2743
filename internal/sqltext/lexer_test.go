package sqltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlrest/internal/queryir"
)

func tokenValues(toks []Token) []string {
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if t.Type == TokEOF {
			continue
		}
		out = append(out, t.Value)
	}
	return out
}

func TestTokenize_Operators(t *testing.T) {
	toks, err := Tokenize(`(metadata->'tags')::jsonb @> $1::jsonb AND metadata->>'email' <> 'x'`)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"(", "metadata", "->", "'tags'", ")", "::", "jsonb", "@>", "$1", "::", "jsonb",
		"AND", "metadata", "->>", "'email'", "<>", "'x'",
	}, tokenValues(toks))
	assert.Equal(t, TokEOF, toks[len(toks)-1].Type)
}

func TestTokenize_TypesAndOffsets(t *testing.T) {
	sql := "SELECT \"Name\" FROM leads WHERE score >= 1.5 AND id = $12"
	toks, err := Tokenize(sql)
	require.NoError(t, err)

	byValue := map[string]Token{}
	for _, tok := range toks {
		byValue[tok.Value] = tok
	}
	assert.Equal(t, TokIdent, byValue["SELECT"].Type)
	assert.Equal(t, TokQuotedIdent, byValue[`"Name"`].Type)
	assert.Equal(t, TokNumber, byValue["1.5"].Type)
	assert.Equal(t, TokParam, byValue["$12"].Type)
	assert.Equal(t, TokOperator, byValue[">="].Type)

	for _, tok := range toks[:len(toks)-1] {
		assert.Equal(t, tok.Value, sql[tok.Offset:tok.End()])
	}
}

func TestTokenize_SkipsWhitespaceAndComments(t *testing.T) {
	toks, err := Tokenize("SELECT *\n\t-- trailing comment\nFROM /* inline */ leads")
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT", "*", "FROM", "leads"}, tokenValues(toks))
}

func TestTokenize_StringWithDoubledQuotes(t *testing.T) {
	toks, err := Tokenize(`name = 'O''Brien AND co'`)
	require.NoError(t, err)
	require.Len(t, toks, 4)
	assert.Equal(t, TokString, toks[2].Type)
	assert.Equal(t, "O'Brien AND co", unquoteString(toks[2].Value))
}

func TestTokenize_RejectsUnknownCharacters(t *testing.T) {
	_, err := Tokenize("SELECT * FROM leads WHERE id = ?")
	require.Error(t, err)
	assert.True(t, queryir.IsParseError(err))
}

func TestIdentName(t *testing.T) {
	assert.Equal(t, `we"ird`, identName(Token{Type: TokQuotedIdent, Value: `"we""ird"`}))
	assert.Equal(t, "plain", identName(Token{Type: TokIdent, Value: "plain"}))
}
