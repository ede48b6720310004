package builder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegaalfa/QueryBuilder/query"
	"github.com/omegaalfa/QueryBuilder/query/ast"
	"github.com/omegaalfa/QueryBuilder/query/cache"
	"github.com/omegaalfa/QueryBuilder/runtime/connection"
)

var mysqlConfig = connection.Config{Driver: "mysql", Host: "127.0.0.1", Database: "shop", Username: "app"}

// newMockBuilder returns a builder whose provider opens a sqlmock handle and
// counts how often it does so
func newMockBuilder(t *testing.T, cfg connection.Config, opts ...Option) (*Builder, sqlmock.Sqlmock, *int) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	opened := 0
	p := connection.NewProvider(cfg, connection.WithOpener(func(driverName, dsn string) (*sqlx.DB, error) {
		opened++
		return sqlx.NewDb(db, driverName), nil
	}))
	return New(p, opts...), mock, &opened
}

func expectAdultsPage(mock sqlmock.Sqlmock) {
	mock.ExpectPrepare("SELECT id, name FROM users WHERE age > ? ORDER BY name ASC LIMIT ?, ?").ExpectQuery().
		WithArgs(18, 20, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(21), "Ada").
			AddRow(int64(22), "Grace"))
	mock.ExpectPrepare("SELECT COUNT(*) AS total FROM users WHERE age > ?").ExpectQuery().
		WithArgs(18).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(int64(95)))
}

func adultsPage(b *Builder) *Query {
	return b.Select("users", "id", "name").
		Where("age", ast.GreaterThan, 18).
		OrderBy("name").
		Limit(10, 20)
}

func TestSelectPage(t *testing.T) {
	b, mock, _ := newMockBuilder(t, mysqlConfig)
	expectAdultsPage(mock)

	q := adultsPage(b)
	sql, err := q.SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM users WHERE age > :param0 ORDER BY name ASC LIMIT :limit_offset, :limit_count", sql)
	assert.Equal(t, map[string]interface{}{"param0": 18}, q.Params())

	result, err := q.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.RowCount)
	require.NotNil(t, result.Pagination)
	assert.Equal(t, query.Pagination{CurrentPage: 3, PerPage: 10, TotalPages: 10, TotalItems: 95}, *result.Pagination)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteResetsQuery(t *testing.T) {
	b, mock, _ := newMockBuilder(t, mysqlConfig)
	expectAdultsPage(mock)

	q := adultsPage(b).Cache(time.Minute)
	_, err := q.Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, q.Statement().IsEmpty())
	assert.Empty(t, q.Params())
	_, err = q.SQL()
	assert.ErrorIs(t, err, query.ErrNoStatement)

	_, err = q.Execute(context.Background())
	assert.True(t, query.IsValidationError(err))
}

func TestExecuteResetsQueryOnFailure(t *testing.T) {
	b, mock, _ := newMockBuilder(t, mysqlConfig)
	mock.ExpectPrepare("DELETE FROM users WHERE id = ?").ExpectExec().
		WithArgs(7).
		WillReturnError(errors.New("lock wait timeout"))

	q := b.Delete("users").Where("id", ast.Equals, 7)
	_, err := q.Execute(context.Background())
	assert.True(t, query.IsQueryExecutionError(err))
	assert.True(t, q.Statement().IsEmpty())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAndUpdate(t *testing.T) {
	b, mock, _ := newMockBuilder(t, mysqlConfig)
	mock.ExpectPrepare("INSERT INTO users (email, name) VALUES (?, ?)").ExpectExec().
		WithArgs("ada@example.com", "Ada").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectPrepare("UPDATE users SET name = ? WHERE id = ?").ExpectExec().
		WithArgs("Ada L.", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	result, err := b.Insert("users", map[string]interface{}{"name": "Ada", "email": "ada@example.com"}).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.LastInsertID)

	result, err = b.Update("users", map[string]interface{}{"name": "Ada L."}).
		Where("id", ast.Equals, 7).
		Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.RowCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestZeroValueRejectedBeforeConnecting(t *testing.T) {
	b, _, opened := newMockBuilder(t, mysqlConfig)

	_, err := b.Select("users").Where("age", ast.GreaterThan, 0).Execute(context.Background())
	require.Error(t, err)

	var verr *query.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ":param0", verr.Field)
	assert.Zero(t, *opened)
}

func TestZeroValueAllowedWhenCheckDisabled(t *testing.T) {
	b, mock, _ := newMockBuilder(t, mysqlConfig, WithEmptyValueCheck(false))
	mock.ExpectPrepare("SELECT * FROM users WHERE age > ?").ExpectQuery().
		WithArgs(0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	result, err := b.Select("users").Where("age", ast.GreaterThan, 0).Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Empty())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheHitSkipsConnect(t *testing.T) {
	store := cache.NewLRUCache(16, time.Minute)
	ctx := context.Background()

	warm, mock, _ := newMockBuilder(t, mysqlConfig, WithCache(store))
	expectAdultsPage(mock)
	first, err := adultsPage(warm).Cache(time.Minute).Execute(ctx)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	cold, _, opened := newMockBuilder(t, mysqlConfig, WithCache(store))
	second, err := adultsPage(cold).Cache(time.Minute).Execute(ctx)
	require.NoError(t, err)

	assert.Zero(t, *opened)
	assert.False(t, cold.Provider().Connected())
	assert.Equal(t, first.Rows, second.Rows)
	assert.Equal(t, first.Pagination, second.Pagination)
}

func TestCacheIsPerExecution(t *testing.T) {
	store := cache.NewLRUCache(16, time.Minute)
	b, mock, _ := newMockBuilder(t, mysqlConfig, WithCache(store))
	expectAdultsPage(mock)
	expectAdultsPage(mock)

	ctx := context.Background()
	_, err := adultsPage(b).Execute(ctx)
	require.NoError(t, err)
	_, err = adultsPage(b).Execute(ctx)
	require.NoError(t, err)

	assert.Zero(t, store.GetStats().Size)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheArmedBeforeVerb(t *testing.T) {
	store := cache.NewLRUCache(16, time.Minute)
	b, mock, _ := newMockBuilder(t, mysqlConfig, WithCache(store))
	expectAdultsPage(mock)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := b.Query().Cache(time.Minute).
			Select("users", "id", "name").
			Where("age", ast.GreaterThan, 18).
			OrderBy("name").
			Limit(10, 20).
			Execute(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.GetStats().Size)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDefaultCacheTTL(t *testing.T) {
	store := cache.NewLRUCache(16, time.Minute)
	b, mock, _ := newMockBuilder(t, mysqlConfig, WithCache(store), WithDefaultCacheTTL(time.Minute))
	expectAdultsPage(mock)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := adultsPage(b).Execute(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteInvalidatesTableCache(t *testing.T) {
	store := cache.NewLRUCache(16, time.Minute)
	b, mock, _ := newMockBuilder(t, mysqlConfig, WithCache(store))
	expectAdultsPage(mock)
	mock.ExpectPrepare("DELETE FROM users WHERE id = ?").ExpectExec().
		WithArgs(21).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectAdultsPage(mock)

	ctx := context.Background()
	_, err := adultsPage(b).Cache(time.Minute).Execute(ctx)
	require.NoError(t, err)
	_, err = b.Delete("users").Where("id", ast.Equals, 21).Execute(ctx)
	require.NoError(t, err)
	_, err = adultsPage(b).Cache(time.Minute).Execute(ctx)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidateTable(t *testing.T) {
	store := cache.NewLRUCache(16, time.Minute)
	b, mock, _ := newMockBuilder(t, mysqlConfig, WithCache(store))
	expectAdultsPage(mock)

	_, err := adultsPage(b).Cache(time.Minute).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.GetStats().Size)

	assert.True(t, b.InvalidateTable("users"))
	assert.Zero(t, store.GetStats().Size)

	plain, _, _ := newMockBuilder(t, mysqlConfig)
	assert.False(t, plain.InvalidateTable("users"))
}

func TestTransaction(t *testing.T) {
	store := cache.NewLRUCache(16, time.Minute)
	b, mock, _ := newMockBuilder(t, mysqlConfig, WithCache(store), WithDefaultCacheTTL(time.Minute))
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO users (name) VALUES (?)").ExpectExec().
		WithArgs("Ada").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectPrepare("SELECT * FROM users").ExpectQuery().
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Ada"))
	mock.ExpectCommit()

	err := b.Transaction(context.Background(), func(tb *Builder) error {
		assert.True(t, tb.InTransaction())
		if _, err := tb.Insert("users", map[string]interface{}{"name": "Ada"}).Execute(context.Background()); err != nil {
			return err
		}
		result, err := tb.Select("users").Execute(context.Background())
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), result.RowCount)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, b.InTransaction())
	assert.Zero(t, store.GetStats().Size)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionInvalidatesAfterCommit(t *testing.T) {
	store := cache.NewLRUCache(16, time.Minute)
	b, mock, _ := newMockBuilder(t, mysqlConfig, WithCache(store))
	expectAdultsPage(mock)
	mock.ExpectBegin()
	mock.ExpectPrepare("DELETE FROM users WHERE id = ?").ExpectExec().
		WithArgs(21).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	_, err := adultsPage(b).Cache(time.Minute).Execute(ctx)
	require.NoError(t, err)

	err = b.Transaction(ctx, func(tb *Builder) error {
		if _, err := tb.Delete("users").Where("id", ast.Equals, 21).Execute(ctx); err != nil {
			return err
		}
		assert.Equal(t, 1, store.GetStats().Size, "cached results survive until commit")
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, store.GetStats().Size)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollbackKeepsCache(t *testing.T) {
	store := cache.NewLRUCache(16, time.Minute)
	b, mock, _ := newMockBuilder(t, mysqlConfig, WithCache(store))
	expectAdultsPage(mock)
	mock.ExpectBegin()
	mock.ExpectPrepare("DELETE FROM users WHERE id = ?").ExpectExec().
		WithArgs(21).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	ctx := context.Background()
	_, err := adultsPage(b).Cache(time.Minute).Execute(ctx)
	require.NoError(t, err)

	err = b.Transaction(ctx, func(tb *Builder) error {
		if _, err := tb.Delete("users").Where("id", ast.Equals, 21).Execute(ctx); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Equal(t, 1, store.GetStats().Size)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollback(t *testing.T) {
	b, mock, _ := newMockBuilder(t, mysqlConfig)
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO users (name) VALUES (?)").ExpectExec().
		WithArgs("Ada").
		WillReturnError(errors.New("duplicate entry"))
	mock.ExpectRollback()

	err := b.Transaction(context.Background(), func(tb *Builder) error {
		_, err := tb.Insert("users", map[string]interface{}{"name": "Ada"}).Execute(context.Background())
		return err
	})
	require.Error(t, err)
	assert.True(t, query.IsTransactionError(err))
	assert.True(t, query.IsQueryExecutionError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTablePrefix(t *testing.T) {
	cfg := mysqlConfig
	cfg.Prefix = "app_"
	b, _, _ := newMockBuilder(t, cfg)

	sql, err := b.Select("users", "users.id").Join("orders", "orders.user_id", ast.Equals, "users.id").SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT users.id FROM app_users INNER JOIN app_orders ON orders.user_id = users.id", sql)

	b, _, _ = newMockBuilder(t, cfg, WithTablePrefix(""))
	sql, err = b.Delete("users").SQL()
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM users", sql)
}
