package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlrest/internal/ir"
	"github.com/roach88/sqlrest/internal/queryir"
)

func TestCascade_Recognizers(t *testing.T) {
	tests := []struct {
		name   string
		where  string
		params []any
		want   []queryir.Filter
	}{
		{
			name:   "ilike",
			where:  "name ILIKE $1",
			params: []any{"%ann%"},
			want:   []queryir.Filter{{Column: queryir.Col("name"), Op: queryir.OpILike, Value: ir.String("%ann%")}},
		},
		{
			name:   "lower equality",
			where:  "LOWER(email) = LOWER($1)",
			params: []any{"Ann@Example.COM"},
			want:   []queryir.Filter{{Column: queryir.Col("email"), Op: queryir.OpEq, Value: ir.String("ann@example.com")}},
		},
		{
			name:   "json text equality",
			where:  "metadata->>'source' = $1",
			params: []any{"web"},
			want:   []queryir.Filter{{Column: queryir.JSONText("metadata", "source"), Op: queryir.OpJSONTextEq, Value: ir.String("web")}},
		},
		{
			name:   "nested json text equality",
			where:  "metadata->'address'->>'city' = $1",
			params: []any{"Oslo"},
			want:   []queryir.Filter{{Column: queryir.JSONText("metadata", "address", "city"), Op: queryir.OpJSONTextEq, Value: ir.String("Oslo")}},
		},
		{
			name:   "json text ilike",
			where:  "metadata->>'company' ILIKE $1",
			params: []any{"%acme%"},
			want:   []queryir.Filter{{Column: queryir.JSONText("metadata", "company"), Op: queryir.OpJSONTextILike, Value: ir.String("%acme%")}},
		},
		{
			name:   "json containment with json param",
			where:  "(metadata->'tags')::jsonb @> $1::jsonb",
			params: []any{`["vip"]`},
			want:   []queryir.Filter{{Column: queryir.JSONPath("metadata", "tags"), Op: queryir.OpJSONContains, Value: ir.Array{ir.String("vip")}}},
		},
		{
			name:   "json containment with raw param",
			where:  "(metadata->'tags')::jsonb @> $1::jsonb",
			params: []any{"vip"},
			want:   []queryir.Filter{{Column: queryir.JSONPath("metadata", "tags"), Op: queryir.OpJSONContains, Value: ir.Array{ir.String("vip")}}},
		},
		{
			name:   "json containment with array param",
			where:  "tags @> $1",
			params: []any{[]string{"a", "b"}},
			want:   []queryir.Filter{{Column: queryir.Col("tags"), Op: queryir.OpJSONContains, Value: ir.Array{ir.String("a"), ir.String("b")}}},
		},
		{
			name:  "coalesce false matches default",
			where: "COALESCE((metadata->>'archived')::boolean, false) = false",
			want: []queryir.Filter{{
				Column: queryir.JSONText("metadata", "archived"), Op: queryir.OpBoolOrDefault,
				Expected: false, Default: false,
			}},
		},
		{
			name:  "coalesce true is direct equality",
			where: "COALESCE((metadata->>'archived')::boolean, false) = true",
			want: []queryir.Filter{{
				Column: queryir.JSONText("metadata", "archived"), Op: queryir.OpBoolEq,
				Expected: true, Default: false,
			}},
		},
		{
			name:   "coalesce with param",
			where:  "COALESCE((metadata->>'archived')::boolean, false) = $1",
			params: []any{"true"},
			want: []queryir.Filter{{
				Column: queryir.JSONText("metadata", "archived"), Op: queryir.OpBoolEq,
				Expected: true, Default: false,
			}},
		},
		{
			name:   "date lower bound",
			where:  "to_date(metadata->>'due_date', 'yyyy-mm-dd') >= to_date($1, 'yyyy-mm-dd')",
			params: []any{"2024-02-01"},
			want:   []queryir.Filter{{Column: queryir.JSONText("metadata", "due_date"), Op: queryir.OpDateGte, Value: ir.String("2024-02-01")}},
		},
		{
			name:   "date upper bound",
			where:  "TO_DATE(metadata->>'due_date', 'YYYY-MM-DD') <= TO_DATE($1, 'YYYY-MM-DD')",
			params: []any{"2024-03-31"},
			want:   []queryir.Filter{{Column: queryir.JSONText("metadata", "due_date"), Op: queryir.OpDateLte, Value: ir.String("2024-03-31")}},
		},
		{
			name:   "in",
			where:  "status IN ($1, $2, 'won')",
			params: []any{"new", "open"},
			want: []queryir.Filter{{
				Column: queryir.Col("status"), Op: queryir.OpIn,
				Values: []ir.Value{ir.String("new"), ir.String("open"), ir.String("won")},
			}},
		},
		{
			name:   "in with array param",
			where:  "id IN ($1)",
			params: []any{[]any{1, 2, 3}},
			want: []queryir.Filter{{
				Column: queryir.Col("id"), Op: queryir.OpIn,
				Values: []ir.Value{ir.Int(1), ir.Int(2), ir.Int(3)},
			}},
		},
		{
			name:   "not equal",
			where:  "status != $1",
			params: []any{"lost"},
			want:   []queryir.Filter{{Column: queryir.Col("status"), Op: queryir.OpNotEq, Value: ir.String("lost")}},
		},
		{
			name:   "not equal angle brackets",
			where:  "status <> 'lost'",
			want:   []queryir.Filter{{Column: queryir.Col("status"), Op: queryir.OpNotEq, Value: ir.String("lost")}},
		},
		{
			name:   "qualified equality",
			where:  "leads.owner_id = $1",
			params: []any{7},
			want:   []queryir.Filter{{Column: queryir.Col("owner_id"), Op: queryir.OpEq, Value: ir.Int(7)}},
		},
		{
			name:   "interval lower bound from param",
			where:  "created_at > NOW() - $1::INTERVAL",
			params: []any{"24 hours"},
			want:   []queryir.Filter{{Column: queryir.Col("created_at"), Op: queryir.OpIntervalGt, Value: ir.String("2024-01-14T12:00:00Z")}},
		},
		{
			name:  "interval upper bound from literal",
			where: "last_contacted_at < NOW() - INTERVAL '7 days'",
			want:  []queryir.Filter{{Column: queryir.Col("last_contacted_at"), Op: queryir.OpIntervalLt, Value: ir.String("2024-01-08T12:00:00Z")}},
		},
		{
			name:   "range comparisons",
			where:  "score >= $1 AND score < 100",
			params: []any{10},
			want: []queryir.Filter{
				{Column: queryir.Col("score"), Op: queryir.OpGte, Value: ir.Int(10)},
				{Column: queryir.Col("score"), Op: queryir.OpLt, Value: ir.Int(100)},
			},
		},
		{
			name:  "is null",
			where: "deleted_at IS NULL AND owner_id IS NOT NULL",
			want: []queryir.Filter{
				{Column: queryir.Col("deleted_at"), Op: queryir.OpIsNull},
				{Column: queryir.Col("owner_id"), Op: queryir.OpNotNull},
			},
		},
		{
			name:  "is true",
			where: "active IS TRUE",
			want:  []queryir.Filter{{Column: queryir.Col("active"), Op: queryir.OpBoolEq, Expected: true}},
		},
		{
			name:   "or of leaves",
			where:  "(name ILIKE $1 OR metadata->>'email' ILIKE $1)",
			params: []any{"%ann%"},
			want: []queryir.Filter{{
				Op: queryir.OpAnyOf,
				Any: []queryir.Filter{
					{Column: queryir.Col("name"), Op: queryir.OpILike, Value: ir.String("%ann%")},
					{Column: queryir.JSONText("metadata", "email"), Op: queryir.OpJSONTextILike, Value: ir.String("%ann%")},
				},
			}},
		},
		{
			name:   "parenthesized conjunction",
			where:  "(status = $1 AND owner_id = $2)",
			params: []any{"new", 3},
			want: []queryir.Filter{
				{Column: queryir.Col("status"), Op: queryir.OpEq, Value: ir.String("new")},
				{Column: queryir.Col("owner_id"), Op: queryir.OpEq, Value: ir.Int(3)},
			},
		},
		{
			name:  "tautology skipped",
			where: "1 = 1 AND status = 'new'",
			want:  []queryir.Filter{{Column: queryir.Col("status"), Op: queryir.OpEq, Value: ir.String("new")}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt := translate(t, "SELECT * FROM leads WHERE "+tt.where, tt.params...)
			assert.Empty(t, stmt.Dropped)
			assert.Equal(t, tt.want, stmt.Filters)
		})
	}
}

func TestCascade_Declines(t *testing.T) {
	tests := []struct {
		name   string
		where  string
		params []any
		reason string
	}{
		{"like", "name LIKE $1", []any{"A%"}, "LIKE"},
		{"not ilike", "name NOT ILIKE $1", []any{"A%"}, "LIKE"},
		{"bad date", "to_date(metadata->>'due', 'yyyy-mm-dd') >= to_date($1, 'yyyy-mm-dd')", []any{"03/01/2024"}, "invalid date"},
		{"bad interval unit", "created_at > NOW() - $1::INTERVAL", []any{"3 months"}, "unsupported interval unit"},
		{"or with unsupported branch", "(status = $1 OR name LIKE $2)", []any{"a", "b"}, "OR alternative"},
		{"not", "NOT (status = $1)", []any{"a"}, "no supported pattern"},
		{"bare column", "active", nil, "no supported pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt := translate(t, "SELECT * FROM leads WHERE "+tt.where, tt.params...)
			assert.Empty(t, stmt.Filters)
			require.Len(t, stmt.Dropped, 1)
			assert.Contains(t, stmt.Dropped[0].Reason, tt.reason)
		})
	}
}

func TestCascade_NullNeverMatches(t *testing.T) {
	statusEq := func(v string) queryir.Filter {
		return queryir.Filter{Column: queryir.Col("status"), Op: queryir.OpEq, Value: ir.String(v)}
	}

	tests := []struct {
		name   string
		where  string
		params []any
		want   []queryir.Filter
		empty  bool
	}{
		{name: "equals null param", where: "owner_id = $1", params: []any{nil}, empty: true},
		{name: "not equals null literal", where: "owner_id != NULL", empty: true},
		{name: "range against null", where: "score >= $1", params: []any{nil}, empty: true},
		{name: "ilike null", where: "name ILIKE $1", params: []any{nil}, empty: true},
		{name: "lower of null", where: "LOWER(email) = LOWER($1)", params: []any{nil}, empty: true},
		{name: "null interval", where: "created_at > NOW() - $1::INTERVAL", params: []any{nil}, empty: true},
		{name: "coalesce compared with null", where: "COALESCE((metadata->>'archived')::boolean, false) = $1", params: []any{nil}, empty: true},
		{
			name:   "in list keeps non-null items",
			where:  "status IN ($1, $2)",
			params: []any{"c", nil},
			want:   []queryir.Filter{{Column: queryir.Col("status"), Op: queryir.OpIn, Values: []ir.Value{ir.String("c")}}},
		},
		{name: "in list of nulls", where: "status IN ($1, $2)", params: []any{nil, nil}, empty: true},
		{name: "empty array in", where: "id IN ($1)", params: []any{[]any{}}, empty: true},
		{name: "not in with null", where: "status NOT IN ($1, $2)", params: []any{"a", nil}, empty: true},
		{name: "not in with null array item", where: "status NOT IN ($1)", params: []any{[]any{"a", nil}}, empty: true},
		{name: "not in empty array", where: "status NOT IN ($1)", params: []any{[]any{}}},
		{
			name:   "or drops null alternative",
			where:  "(status = $1 OR status = $2)",
			params: []any{"a", nil},
			want:   []queryir.Filter{statusEq("a")},
		},
		{name: "or of nulls", where: "(status = $1 OR status = $2)", params: []any{nil, nil}, empty: true},
		{
			name:   "null next to a usable filter",
			where:  "tenant_id = $1 AND status = $2",
			params: []any{"t1", nil},
			want:   []queryir.Filter{{Column: queryir.Col("tenant_id"), Op: queryir.OpEq, Value: ir.String("t1")}},
			empty:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt := translate(t, "SELECT * FROM leads WHERE "+tt.where, tt.params...)
			assert.Empty(t, stmt.Dropped)
			assert.Equal(t, tt.want, stmt.Filters)
			assert.Equal(t, tt.empty, stmt.Empty)
		})
	}
}

func TestCascade_NullIsNotDroppedInStrictMode(t *testing.T) {
	stmt, err := newTestCompiler(Options{Strict: true}).
		Translate("SELECT * FROM leads WHERE status = $1", []any{nil})
	require.NoError(t, err)
	assert.True(t, stmt.Empty)
	assert.Empty(t, stmt.Dropped)
}

func TestCascade_OrWithTautologyIsSkipped(t *testing.T) {
	stmt := translate(t, "SELECT * FROM leads WHERE (1 = 1 OR status = $1)", "new")

	assert.Empty(t, stmt.Filters)
	assert.Empty(t, stmt.Dropped)
}

func TestContainmentValue(t *testing.T) {
	assert.Equal(t, ir.Array{ir.String("vip")}, containmentValue(ir.String(`["vip"]`)))
	assert.Equal(t, ir.Object{"tier": ir.String("gold")}, containmentValue(ir.String(`{"tier":"gold"}`)))
	assert.Equal(t, ir.Array{ir.String("vip")}, containmentValue(ir.String("vip")))
	assert.Equal(t, ir.Array{ir.Int(5)}, containmentValue(ir.Int(5)))
}
