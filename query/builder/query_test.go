package builder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegaalfa/QueryBuilder/query"
	"github.com/omegaalfa/QueryBuilder/query/ast"
)

func TestRenderedSQL(t *testing.T) {
	b, _, _ := newMockBuilder(t, mysqlConfig)

	tests := []struct {
		name   string
		query  *Query
		sql    string
		params map[string]interface{}
	}{
		{
			name:   "select all",
			query:  b.Select("users"),
			sql:    "SELECT * FROM users",
			params: map[string]interface{}{},
		},
		{
			name: "clause order is fixed",
			query: b.Select("orders", "o.status", "COUNT(*) AS n").
				As("o").
				OrderBy("n", ast.Desc).
				Limit(5, 0).
				Where("o.region", ast.Equals, "eu").
				GroupBy("o.status").
				Having("COUNT(*)", ast.GreaterThan, 2).
				LeftJoin("customers c", "c.id", ast.Equals, "o.customer_id"),
			sql: "SELECT o.status, COUNT(*) AS n FROM orders AS o LEFT JOIN customers c ON c.id = o.customer_id " +
				"WHERE o.region = :param0 GROUP BY o.status HAVING COUNT(*) > :param1 ORDER BY n DESC " +
				"LIMIT :limit_offset, :limit_count",
			params: map[string]interface{}{"param0": "eu", "param1": 2},
		},
		{
			name:   "where in",
			query:  b.Delete("sessions").WhereIn("user_id", 1, 2, 3),
			sql:    "DELETE FROM sessions WHERE user_id IN (:param0)",
			params: map[string]interface{}{"param0": []interface{}{1, 2, 3}},
		},
		{
			name:   "insert columns are sorted",
			query:  b.Insert("users", map[string]interface{}{"name": "Ada", "age": 36}),
			sql:    "INSERT INTO users (age, name) VALUES (:age, :name)",
			params: map[string]interface{}{"age": 36, "name": "Ada"},
		},
		{
			// SET columns occupy the first slots, so WHERE numbering continues after them
			name:   "update where",
			query:  b.Update("users", map[string]interface{}{"name": "Ada"}).Where("id", ast.Equals, 1),
			sql:    "UPDATE users SET name = :name WHERE id = :param1",
			params: map[string]interface{}{"name": "Ada", "param1": 1},
		},
		{
			name: "update where after two columns",
			query: b.Update("users", map[string]interface{}{"name": "Ada", "age": 36}).
				Where("id", ast.Equals, 1).
				Where("status", ast.NotEquals, "banned"),
			sql:    "UPDATE users SET age = :age, name = :name WHERE id = :param2 AND status != :param3",
			params: map[string]interface{}{"age": 36, "name": "Ada", "param2": 1, "param3": "banned"},
		},
		{
			name:   "raw",
			query:  b.Raw("SELECT * FROM users WHERE email = :email", map[string]interface{}{":email": "a@b.c"}),
			sql:    "SELECT * FROM users WHERE email = :email",
			params: map[string]interface{}{"email": "a@b.c"},
		},
		{
			name:   "filter",
			query:  b.Select("users").Filter(`age >= 18 AND status IN ('active', 'trial')`),
			sql:    "SELECT * FROM users WHERE age >= :param0 AND status IN (:param1)",
			params: map[string]interface{}{"param0": int64(18), "param1": []interface{}{"active", "trial"}},
		},
		{
			name:   "page",
			query:  b.Select("users").Page(3, 25),
			sql:    "SELECT * FROM users LIMIT :limit_offset, :limit_count",
			params: map[string]interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, err := tt.query.SQL()
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.params, tt.query.Params())
		})
	}
}

func TestPageComputesOffset(t *testing.T) {
	b, _, _ := newMockBuilder(t, mysqlConfig)

	stmt := b.Select("users").Page(3, 25).Statement()
	require.NotNil(t, stmt.Limit)
	assert.Equal(t, ast.LimitClause{Count: 25, Offset: 50}, *stmt.Limit)

	stmt = b.Select("users").Page(0, 25).Statement()
	assert.Equal(t, 0, stmt.Limit.Offset)
}

func TestVerbResetsStatement(t *testing.T) {
	b, _, _ := newMockBuilder(t, mysqlConfig)

	q := b.Select("users").Where("age", ast.GreaterThan, 18).Limit(10, 0)
	q.Delete("sessions")

	sql, err := q.SQL()
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM sessions", sql)
	assert.Empty(t, q.Params())
}

func TestVerbDisarmsCacheOfReplacedStatement(t *testing.T) {
	b, _, _ := newMockBuilder(t, mysqlConfig)

	q := b.Query().Cache(time.Minute).Select("users")
	assert.Equal(t, time.Minute, q.cacheTTL)

	q.Delete("sessions")
	assert.Zero(t, q.cacheTTL)
}

func TestVerbClearsRecordedError(t *testing.T) {
	b, _, _ := newMockBuilder(t, mysqlConfig)

	q := b.Query().Where("id", ast.Equals, 1)
	require.ErrorIs(t, q.Err(), query.ErrNoStatement)

	q.Select("users")
	assert.NoError(t, q.Err())
}

func TestBuildErrors(t *testing.T) {
	b, _, _ := newMockBuilder(t, mysqlConfig)

	tests := []struct {
		name  string
		query *Query
	}{
		{"clause without verb", b.Query().OrderBy("id")},
		{"having before group by", b.Select("orders").Having("COUNT(*)", ast.GreaterThan, 1).GroupBy("status")},
		{"unknown operator", b.Select("users").Where("age", ast.ComparisonOperator("~"), 1)},
		{"where on insert", b.Insert("users", map[string]interface{}{"name": "Ada"}).Where("id", ast.Equals, 1)},
		{"limit on update", b.Update("users", map[string]interface{}{"name": "Ada"}).Limit(1, 0)},
		{"empty insert", b.Insert("users", nil)},
		{"empty update", b.Update("users", map[string]interface{}{})},
		{"list operator in join", b.Select("users").Join("orders", "orders.user_id", ast.In, "users.id")},
		{"unknown join type", b.Select("users").JoinWith(ast.JoinType("CROSS JOIN"), "orders", "a", ast.Equals, "b")},
		{"unknown direction", b.Select("users").OrderBy("id", ast.OrderDirection("SIDEWAYS"))},
		{"bad filter", b.Select("users").Filter("age >")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Err()
			require.Error(t, err)
			assert.True(t, query.IsValidationError(err), "got %v", err)

			_, err = tt.query.SQL()
			assert.True(t, query.IsValidationError(err))
		})
	}
}

func TestFirstErrorWins(t *testing.T) {
	b, _, _ := newMockBuilder(t, mysqlConfig)

	q := b.Select("orders").
		Having("COUNT(*)", ast.GreaterThan, 1).
		Where("age", ast.ComparisonOperator("~"), 1)

	var verr *query.ValidationError
	require.ErrorAs(t, q.Err(), &verr)
	assert.Equal(t, "having", verr.Field)
}

func TestNonPositiveLimitFailsAtExecute(t *testing.T) {
	b, _, opened := newMockBuilder(t, mysqlConfig)

	_, err := b.Select("users").Limit(0, 0).Execute(context.Background())
	assert.True(t, query.IsValidationError(err))
	assert.Zero(t, *opened)
}

func TestStatementIsACopy(t *testing.T) {
	b, _, _ := newMockBuilder(t, mysqlConfig)

	q := b.Select("users").Where("id", ast.Equals, 1)
	stmt := q.Statement()
	stmt.Params[0].Value = 2
	stmt.Where = nil

	assert.Equal(t, map[string]interface{}{"param0": 1}, q.Params())
	sql, err := q.SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE id = :param0", sql)
}
