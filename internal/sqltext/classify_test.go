package sqltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlrest/internal/queryir"
)

func TestClassify_AllKindsAnyCaseAndWhitespace(t *testing.T) {
	tests := []struct {
		sql  string
		want queryir.Kind
	}{
		{"SELECT * FROM leads", queryir.KindSelect},
		{"select * from leads", queryir.KindSelect},
		{"  \n\tSeLeCt id FROM leads\n", queryir.KindSelect},
		{"INSERT INTO leads (name) VALUES ($1)", queryir.KindInsert},
		{"insert\n  into leads (name) values ($1)", queryir.KindInsert},
		{"UPDATE leads SET name = $1 WHERE id = $2", queryir.KindUpdate},
		{"\n\n  update leads set name=$1 where id=$2", queryir.KindUpdate},
		{"DELETE FROM leads WHERE id = $1", queryir.KindDelete},
		{"delete\r\nfrom leads where id = $1", queryir.KindDelete},
		{"-- leading comment\nDELETE FROM leads WHERE id = $1", queryir.KindDelete},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			got, err := Classify(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_Unsupported(t *testing.T) {
	for _, sql := range []string{
		"TRUNCATE leads",
		"WITH x AS (SELECT 1) SELECT * FROM x",
		"INSERT leads (a) VALUES (1)",
		"DELETE leads WHERE id = 1",
		"EXPLAIN SELECT * FROM leads",
		"",
	} {
		t.Run(sql, func(t *testing.T) {
			_, err := Classify(sql)
			require.Error(t, err)
			assert.True(t, queryir.IsParseError(err))
			assert.Contains(t, err.Error(), "statement type not supported")
		})
	}
}
