package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlrest/internal/ir"
	"github.com/roach88/sqlrest/internal/postgrest"
)

func TestCompile_SimpleSelect(t *testing.T) {
	compiler := NewSQLCompiler(SQLite)

	req := postgrest.From("leads").
		Select("id", "name").
		Eq(postgrest.Column("status"), ir.String("new")).
		Order("created_at", false).
		Range(20, 29).
		Request()

	stmt, err := compiler.Compile(req)
	require.NoError(t, err)

	assert.Equal(t, `SELECT "id", "name" FROM "leads" WHERE "status" = ? ORDER BY "created_at" DESC LIMIT ? OFFSET ?`, stmt.SQL)
	assert.Equal(t, []any{"new", int64(10), int64(20)}, stmt.Args)
	assert.True(t, stmt.Query)

	// Values are never interpolated.
	assert.NotContains(t, stmt.SQL, "new")
}

func TestCompile_PostgresPlaceholders(t *testing.T) {
	compiler := NewSQLCompiler(Postgres)

	req := postgrest.From("leads").
		Select().
		Eq(postgrest.Column("status"), ir.String("new")).
		In(postgrest.Column("owner_id"), []ir.Value{ir.Int(1), ir.Int(2)}).
		Range(0, 9).
		Request()

	stmt, err := compiler.Compile(req)
	require.NoError(t, err)

	assert.Equal(t, `SELECT * FROM "leads" WHERE "status" = $1 AND "owner_id" IN ($2, $3) LIMIT $4 OFFSET $5`, stmt.SQL)
	assert.Equal(t, []any{"new", int64(1), int64(2), int64(10), int64(0)}, stmt.Args)
}

func TestCompile_JSONPaths(t *testing.T) {
	field := postgrest.JSONText("metadata", "address", "city")

	tests := []struct {
		dialect Dialect
		want    string
	}{
		{Postgres, `SELECT * FROM "leads" WHERE "metadata"->'address'->>'city' = $1`},
		{SQLite, `SELECT * FROM "leads" WHERE json_extract("metadata", '$."address"."city"') = ?`},
		{MySQL, "SELECT * FROM `leads` WHERE JSON_UNQUOTE(JSON_EXTRACT(`metadata`, '$.\"address\".\"city\"')) = ?"},
	}
	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			req := postgrest.From("leads").Filter(field, postgrest.OpEq, ir.String("Oslo")).Request()
			stmt, err := NewSQLCompiler(tt.dialect).Compile(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stmt.SQL)
			assert.Equal(t, []any{"Oslo"}, stmt.Args)
		})
	}
}

func TestCompile_JSONKeysAreQuoted(t *testing.T) {
	req := postgrest.From("leads").Filter(postgrest.JSONText("metadata", "it's"), postgrest.OpEq, ir.String("x")).Request()

	stmt, err := NewSQLCompiler(Postgres).Compile(req)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "leads" WHERE "metadata"->>'it''s' = $1`, stmt.SQL)
}

func TestCompile_BoolOnJSONText(t *testing.T) {
	field := postgrest.JSONText("metadata", "archived")
	req := postgrest.From("leads").
		Or(
			postgrest.Cond(field, postgrest.OpIs, ir.Null{}),
			postgrest.Cond(field, postgrest.OpEq, ir.Bool(false)),
		).
		Request()

	pg, err := NewSQLCompiler(Postgres).Compile(req)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "leads" WHERE ("metadata"->>'archived' IS NULL OR "metadata"->>'archived' = $1)`, pg.SQL)
	assert.Equal(t, []any{"false"}, pg.Args)

	lite, err := NewSQLCompiler(SQLite).Compile(req)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(0)}, lite.Args)
}

func TestCompile_ILikeAndNegation(t *testing.T) {
	req := postgrest.From("leads").
		ILike(postgrest.Column("name"), ir.String("%ann%")).
		Not(postgrest.Column("email"), postgrest.OpIs, ir.Null{}).
		Is(postgrest.Column("active"), ir.Bool(true)).
		Request()

	pg, err := NewSQLCompiler(Postgres).Compile(req)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "leads" WHERE "name" ILIKE $1 AND NOT ("email" IS NULL) AND "active" IS TRUE`, pg.SQL)

	lite, err := NewSQLCompiler(SQLite).Compile(req)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "leads" WHERE "name" LIKE ? AND NOT ("email" IS NULL) AND "active" IS TRUE`, lite.SQL)
}

func TestCompile_EmptyIn(t *testing.T) {
	req := postgrest.From("leads").In(postgrest.Column("id"), nil).Request()

	stmt, err := NewSQLCompiler(SQLite).Compile(req)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "leads" WHERE 1 = 0`, stmt.SQL)
	assert.Empty(t, stmt.Args)
}

func TestCompile_Contains(t *testing.T) {
	field := postgrest.JSON("metadata", "tags")
	req := postgrest.From("leads").Contains(field, ir.Array{ir.String("vip"), ir.String("hot")}).Request()

	pg, err := NewSQLCompiler(Postgres).Compile(req)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "leads" WHERE ("metadata"->'tags')::jsonb @> $1::jsonb`, pg.SQL)
	assert.Equal(t, []any{`["vip","hot"]`}, pg.Args)

	my, err := NewSQLCompiler(MySQL).Compile(req)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `leads` WHERE JSON_CONTAINS(JSON_EXTRACT(`metadata`, '$.\"tags\"'), ?)", my.SQL)

	lite, err := NewSQLCompiler(SQLite).Compile(req)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT * FROM "leads" WHERE (EXISTS (SELECT 1 FROM json_each(json_extract("metadata", '$."tags"')) WHERE value = ?) AND `+
			`EXISTS (SELECT 1 FROM json_each(json_extract("metadata", '$."tags"')) WHERE value = ?))`,
		lite.SQL)
	assert.Equal(t, []any{"vip", "hot"}, lite.Args)
}

func TestCompile_ContainsNestedUnsupportedOnSQLite(t *testing.T) {
	req := postgrest.From("leads").Contains(postgrest.Column("tags"), ir.Array{ir.Array{ir.Int(1)}}).Request()

	_, err := NewSQLCompiler(SQLite).Compile(req)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestCompile_Count(t *testing.T) {
	req := postgrest.From("leads").Count().Eq(postgrest.Column("status"), ir.String("new")).Request()

	stmt, err := NewSQLCompiler(Postgres).Compile(req)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "leads" WHERE "status" = $1`, stmt.SQL)
	assert.True(t, stmt.Query)
}

func TestCompile_Insert(t *testing.T) {
	req := postgrest.From("activities").
		Insert(
			ir.Object{"kind": ir.String("call"), "lead_id": ir.Int(1)},
			ir.Object{"kind": ir.String("email"), "meta": ir.Object{"a": ir.Int(1)}},
		).
		Returning("id").
		Request()

	stmt, err := NewSQLCompiler(Postgres).Compile(req)
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "activities" ("kind", "lead_id", "meta") VALUES ($1, $2, NULL), ($3, NULL, $4) RETURNING "id"`,
		stmt.SQL)
	assert.Equal(t, []any{"call", int64(1), "email", `{"a":1}`}, stmt.Args)
	assert.True(t, stmt.Query)
}

func TestCompile_Update(t *testing.T) {
	req := postgrest.From("leads").
		Update(ir.Object{"status": ir.String("won"), "score": ir.Int(5)}).
		Eq(postgrest.Column("id"), ir.String("lead-1")).
		Request()

	stmt, err := NewSQLCompiler(Postgres).Compile(req)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "leads" SET "score" = $1, "status" = $2 WHERE "id" = $3`, stmt.SQL)
	assert.Equal(t, []any{int64(5), "won", "lead-1"}, stmt.Args)
	assert.False(t, stmt.Query)
}

func TestCompile_Delete(t *testing.T) {
	req := postgrest.From("leads").Delete().Eq(postgrest.Column("id"), ir.Int(3)).Returning().Request()

	stmt, err := NewSQLCompiler(SQLite).Compile(req)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "leads" WHERE "id" = ? RETURNING *`, stmt.SQL)
	assert.True(t, stmt.Query)
}

func TestCompile_MySQLRejectsReturning(t *testing.T) {
	req := postgrest.From("leads").Delete().Eq(postgrest.Column("id"), ir.Int(3)).Returning("id").Request()

	_, err := NewSQLCompiler(MySQL).Compile(req)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestCompile_SchemaQualifiedTable(t *testing.T) {
	stmt, err := NewSQLCompiler(Postgres).Compile(postgrest.From("crm.leads").Request())
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "crm"."leads"`, stmt.SQL)
}

func TestCompile_Errors(t *testing.T) {
	c := NewSQLCompiler(SQLite)

	_, err := c.Compile(nil)
	assert.Error(t, err)

	_, err = c.Compile(&postgrest.Request{Action: postgrest.ActionSelect})
	assert.Error(t, err)

	_, err = c.Compile(postgrest.From("leads").Update(ir.Object{}).Request())
	assert.Error(t, err)
}

func TestDialectForDriver(t *testing.T) {
	for driver, want := range map[string]Dialect{
		"pgx": Postgres, "postgres": Postgres, "mysql": MySQL, "sqlite3": SQLite,
	} {
		got, err := DialectForDriver(driver)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := DialectForDriver("oracle")
	assert.Error(t, err)
}
