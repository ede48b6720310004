package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextParamNameSharedCounter(t *testing.T) {
	stmt := &Statement{Verb: VerbSelect, Table: "orders"}

	name := stmt.NextParamName()
	assert.Equal(t, "param0", name)
	stmt.SetParam(name, 10)

	name = stmt.NextParamName()
	assert.Equal(t, "param1", name)
	stmt.SetParam(name, "open")
}

func TestNextParamNameSkipsColumnNames(t *testing.T) {
	stmt := &Statement{Verb: VerbUpdate, Table: "t"}
	stmt.SetParam("param1", "x")
	stmt.SetParam("name", "y")

	assert.Equal(t, "param2", stmt.NextParamName())

	stmt = &Statement{Verb: VerbUpdate, Table: "t"}
	stmt.SetParam("param0", "x")
	assert.Equal(t, "param1", stmt.NextParamName())
}

func TestSetParamStripsColonAndReplaces(t *testing.T) {
	stmt := &Statement{Verb: VerbRaw}
	stmt.SetParam(":id", 1)
	stmt.SetParam("id", 2)

	assert.Len(t, stmt.Params, 1)
	assert.Equal(t, map[string]interface{}{"id": 2}, stmt.ParamMap())
}

func TestBindingsIncludeLimit(t *testing.T) {
	stmt := &Statement{Verb: VerbSelect, Table: "users"}
	stmt.SetParam("param0", 18)
	assert.Equal(t, map[string]interface{}{"param0": 18}, stmt.Bindings())

	stmt.Limit = &LimitClause{Count: 10, Offset: 20}
	assert.Equal(t, map[string]interface{}{
		"param0":         18,
		LimitOffsetParam: 20,
		LimitCountParam:  10,
	}, stmt.Bindings())
}

func TestCloneIsIndependent(t *testing.T) {
	orig := &Statement{
		Verb:    VerbSelect,
		Table:   "users",
		Fields:  []string{"id"},
		OrderBy: []Order{{Column: "id", Direction: Asc}},
		Limit:   &LimitClause{Count: 5},
	}
	c := orig.Clone()
	c.Fields[0] = "name"
	c.OrderBy = nil
	c.Limit.Count = 50

	assert.Equal(t, "id", orig.Fields[0])
	assert.Len(t, orig.OrderBy, 1)
	assert.Equal(t, 5, orig.Limit.Count)
}

func TestReturns(t *testing.T) {
	tests := []struct {
		stmt Statement
		want bool
	}{
		{Statement{Verb: VerbSelect}, true},
		{Statement{Verb: VerbInsert}, false},
		{Statement{Verb: VerbDelete}, false},
		{Statement{Verb: VerbRaw, RawSQL: "  select 1"}, true},
		{Statement{Verb: VerbRaw, RawSQL: "WITH x AS (SELECT 1) SELECT * FROM x"}, true},
		{Statement{Verb: VerbRaw, RawSQL: "(SELECT 1) UNION (SELECT 2)"}, true},
		{Statement{Verb: VerbRaw, RawSQL: "UPDATE t SET a = 1"}, false},
		{Statement{Verb: VerbRaw, RawSQL: ""}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.stmt.Returns(), tt.stmt.RawSQL)
	}
}

func TestIsEmpty(t *testing.T) {
	var nilStmt *Statement
	assert.True(t, nilStmt.IsEmpty())
	assert.True(t, (&Statement{}).IsEmpty())
	assert.False(t, (&Statement{Verb: VerbDelete, Table: "t"}).IsEmpty())
}

func TestStatementTables(t *testing.T) {
	stmt := &Statement{
		Verb:  VerbSelect,
		Table: "users",
		Joins: []Join{
			{Type: InnerJoin, Table: "orders o"},
			{Type: LeftJoin, Table: "users"},
		},
	}
	assert.Equal(t, []string{"users", "orders"}, stmt.Tables())
	assert.Empty(t, (&Statement{Verb: VerbRaw, RawSQL: "SELECT 1"}).Tables())
}
