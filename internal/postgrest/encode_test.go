package postgrest

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/sqlrest/internal/ir"
)

func TestQueryValues_Select(t *testing.T) {
	req := From("leads").
		Select("id", "name").
		Eq(Column("status"), ir.String("new")).
		Neq(Column("stage"), ir.String("a")).
		Neq(Column("stage"), ir.String("b")).
		ILike(JSONText("metadata", "company"), ir.String("%acme%")).
		In(Column("owner_id"), []ir.Value{ir.Int(1), ir.String("x,y")}).
		Is(Column("deleted_at"), ir.Null{}).
		Not(Column("email"), OpIs, ir.Null{}).
		Contains(JSON("metadata", "tags"), ir.Array{ir.String("vip")}).
		Gte(Column("score"), ir.MustNumber("1.5")).
		Order("created_at", false).
		Order("name", true).
		Request()

	q := QueryValues(req)

	assert.Equal(t, "id,name", q.Get("select"))
	assert.Equal(t, "eq.new", q.Get("status"))
	assert.Equal(t, []string{"neq.a", "neq.b"}, q["stage"])
	assert.Equal(t, "ilike.*acme*", q.Get("metadata->>company"))
	assert.Equal(t, `in.(1,"x,y")`, q.Get("owner_id"))
	assert.Equal(t, "is.null", q.Get("deleted_at"))
	assert.Equal(t, "not.is.null", q.Get("email"))
	assert.Equal(t, `cs.["vip"]`, q.Get("metadata->tags"))
	assert.Equal(t, "gte.1.5", q.Get("score"))
	assert.Equal(t, "created_at.desc,name.asc", q.Get("order"))
}

func TestQueryValues_Or(t *testing.T) {
	req := From("leads").
		Or(
			Cond(Column("name"), OpILike, ir.String("%ann%")),
			Cond(JSONText("metadata", "email"), OpILike, ir.String("%ann%")),
		).
		Or(
			Cond(JSONText("metadata", "archived"), OpIs, ir.Null{}),
			Cond(JSONText("metadata", "archived"), OpEq, ir.Bool(false)),
		).
		Request()

	q := QueryValues(req)
	assert.Equal(t, []string{
		"(name.ilike.*ann*,metadata->>email.ilike.*ann*)",
		"(metadata->>archived.is.null,metadata->>archived.eq.false)",
	}, q["or"])
}

func TestQueryValues_OrQuotesReservedValues(t *testing.T) {
	expr := OrExpression([]Condition{
		Cond(Column("city"), OpEq, ir.String("Oslo, Norway")),
		Cond(Column("due"), OpGt, ir.String("2024-01-14T12:00:00Z")),
	})
	assert.Equal(t, `city.eq."Oslo, Norway",due.gt."2024-01-14T12:00:00Z"`, expr)
}

func TestQueryValues_Mutations(t *testing.T) {
	insert := From("activities").
		Insert(ir.Object{"kind": ir.String("call")}, ir.Object{"kind": ir.String("email"), "done": ir.Bool(true)}).
		Request()
	q := QueryValues(insert)
	assert.Equal(t, "kind,done", q.Get("columns"))
	assert.False(t, q.Has("select"))

	update := From("leads").Update(ir.Object{"status": ir.String("won")}).Eq(Column("id"), ir.Int(1)).Returning("id", "status").Request()
	q = QueryValues(update)
	assert.Equal(t, "id,status", q.Get("select"))
	assert.Equal(t, "eq.1", q.Get("id"))

	count := From("leads").Count().Request()
	assert.Equal(t, url.Values{}, QueryValues(count))
}

func TestBodyColumns(t *testing.T) {
	cols := BodyColumns([]ir.Object{
		{"b": ir.Int(1), "a": ir.Int(2)},
		{"c": ir.Int(3), "a": ir.Int(4)},
	})
	assert.Equal(t, []string{"a", "b", "c"}, cols)
}
