// Package executor runs rendered statements against a database handle, adding
// pagination, result caching and middleware around every round trip.
package executor

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/omegaalfa/QueryBuilder/internal/debug"
	"github.com/omegaalfa/QueryBuilder/query"
	"github.com/omegaalfa/QueryBuilder/query/ast"
	"github.com/omegaalfa/QueryBuilder/query/cache"
	"github.com/omegaalfa/QueryBuilder/query/sqlgen"
)

// Handle is a database handle statements are prepared on. Both *sqlx.DB and
// *sqlx.Tx satisfy it.
type Handle interface {
	DriverName() string
	PreparexContext(ctx context.Context, query string) (*sqlx.Stmt, error)
}

// HandleFunc resolves the handle lazily, so that cache hits and validation
// failures never open a connection
type HandleFunc func(ctx context.Context) (Handle, error)

// Static returns a HandleFunc always resolving to h
func Static(h Handle) HandleFunc {
	return func(context.Context) (Handle, error) {
		return h, nil
	}
}

// Options control a single execution
type Options struct {
	// CacheTTL arms the result cache when positive
	CacheTTL time.Duration
}

// Option configures an Executor
type Option func(*Executor)

// WithCache stores results of cache-armed executions in adapter
func WithCache(adapter *cache.Adapter) Option {
	return func(e *Executor) {
		e.cache = adapter
	}
}

// WithEmptyValueCheck toggles rejection of empty and zero bound values
func WithEmptyValueCheck(enabled bool) Option {
	return func(e *Executor) {
		e.rejectEmpty = enabled
	}
}

// WithMiddleware appends middleware to the chain
func WithMiddleware(mw ...Middleware) Option {
	return func(e *Executor) {
		e.middlewares = append(e.middlewares, mw...)
	}
}

// Executor executes statements and maps rows to column maps
type Executor struct {
	cache       *cache.Adapter
	rejectEmpty bool
	middlewares []Middleware
}

// NewExecutor creates a new executor. Empty value rejection is on by default.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{rejectEmpty: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Use adds a middleware to the chain
func (e *Executor) Use(mw Middleware) {
	e.middlewares = append(e.middlewares, mw)
}

// Cache returns the cache adapter, or nil when caching is not configured
func (e *Executor) Cache() *cache.Adapter {
	return e.cache
}

// Execute renders stmt, serves it from cache when armed and possible, and
// otherwise runs it on the resolved handle. Statements carrying a LIMIT that
// return rows get pagination metadata from a second count statement.
//
// Validation failures are *query.ValidationError and driver failures are
// *query.QueryExecutionError. No partial result is returned on error.
func (e *Executor) Execute(ctx context.Context, resolve HandleFunc, stmt *ast.Statement, opts Options) (*query.Result, error) {
	text, err := sqlgen.Render(stmt)
	if err != nil {
		return nil, err
	}
	if e.rejectEmpty {
		if err := ValidateParams(stmt); err != nil {
			return nil, err
		}
	}
	if stmt.Limit != nil && stmt.Returns() && stmt.Limit.Count <= 0 {
		return nil, query.NewValidationError("limit", "page size must be positive to paginate")
	}
	bindings := stmt.Bindings()

	if opts.CacheTTL <= 0 || e.cache == nil {
		return e.run(ctx, resolve, stmt, text, bindings)
	}

	key, err := cache.Key(stmt.Table, text, bindings)
	if err != nil {
		return nil, query.NewValidationError("bindings", err.Error())
	}
	if result, ok := e.lookup(ctx, key, stmt, text); ok {
		return result, nil
	}

	result, _, err := e.cache.Do(key, func() (*query.Result, error) {
		r, err := e.run(ctx, resolve, stmt, text, bindings)
		if err != nil {
			return nil, err
		}
		if err := e.cache.Save(key, r, opts.CacheTTL, stmt.Tables()...); err != nil {
			debug.Warn("Failed to cache result", "key", key, "error", err)
		}
		return r, nil
	})
	return result, err
}

// lookup returns a cached result and reports it through the middleware chain
// as a cached event. Unreadable entries are treated as misses.
func (e *Executor) lookup(ctx context.Context, key string, stmt *ast.Statement, text string) (*query.Result, bool) {
	result, hit, err := e.cache.Lookup(key)
	if err != nil {
		debug.Warn("Discarding unreadable cache entry", "key", key, "error", err)
		return nil, false
	}
	if !hit {
		debug.Debug("Cache miss", "key", key)
		return nil, false
	}

	event := &QueryEvent{Kind: KindCache, Table: stmt.Table, Query: text, Cached: true, RowCount: result.RowCount}
	if err := runWithMiddleware(ctx, e.middlewares, event, func() error { return nil }); err != nil {
		return nil, false
	}
	debug.Debug("Cache hit", "key", key)
	return result, true
}

func (e *Executor) run(ctx context.Context, resolve HandleFunc, stmt *ast.Statement, text string, bindings map[string]interface{}) (*query.Result, error) {
	handle, err := resolve(ctx)
	if err != nil {
		return nil, query.NewQueryExecutionError("connect", text, err)
	}
	gen := sqlgen.NewGenerator(handle.DriverName())

	bound, args, err := gen.Bind(text, bindings)
	if err != nil {
		return nil, query.NewQueryExecutionError("bind", text, err)
	}

	if !stmt.Returns() {
		return e.exec(ctx, handle, stmt.Table, bound, args)
	}

	result, err := e.query(ctx, handle, stmt.Table, bound, args)
	if err != nil {
		return nil, err
	}

	if stmt.Limit != nil {
		total, err := e.count(ctx, handle, gen, stmt)
		if err != nil {
			return nil, err
		}
		p := query.Paginate(total, stmt.Limit.Count, stmt.Limit.Offset/stmt.Limit.Count+1)
		result.Pagination = &p
	}
	return result, nil
}

func (e *Executor) query(ctx context.Context, handle Handle, table, text string, args []interface{}) (*query.Result, error) {
	result := &query.Result{Rows: []map[string]interface{}{}}
	event := &QueryEvent{Kind: KindQuery, Table: table, Query: text, Args: args}

	err := runWithMiddleware(ctx, e.middlewares, event, func() error {
		debug.Debug("Executing query", "sql", text, "args", len(args))
		ps, err := handle.PreparexContext(ctx, text)
		if err != nil {
			return query.NewQueryExecutionError("prepare", text, err)
		}
		defer ps.Close()

		rows, err := ps.QueryxContext(ctx, args...)
		if err != nil {
			return query.NewQueryExecutionError("query", text, err)
		}
		defer rows.Close()

		if result.Columns, err = rows.Columns(); err != nil {
			return query.NewQueryExecutionError("fetch", text, err)
		}
		for rows.Next() {
			row := make(map[string]interface{}, len(result.Columns))
			if err := rows.MapScan(row); err != nil {
				return query.NewQueryExecutionError("fetch", text, err)
			}
			normalizeRow(row)
			result.Rows = append(result.Rows, row)
		}
		if err := rows.Err(); err != nil {
			return query.NewQueryExecutionError("fetch", text, err)
		}
		result.RowCount = int64(len(result.Rows))
		event.RowCount = result.RowCount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Executor) exec(ctx context.Context, handle Handle, table, text string, args []interface{}) (*query.Result, error) {
	result := &query.Result{Rows: []map[string]interface{}{}}
	event := &QueryEvent{Kind: KindExec, Table: table, Query: text, Args: args}

	err := runWithMiddleware(ctx, e.middlewares, event, func() error {
		debug.Debug("Executing statement", "sql", text, "args", len(args))
		ps, err := handle.PreparexContext(ctx, text)
		if err != nil {
			return query.NewQueryExecutionError("prepare", text, err)
		}
		defer ps.Close()

		res, err := ps.ExecContext(ctx, args...)
		if err != nil {
			return query.NewQueryExecutionError("exec", text, err)
		}
		if result.RowCount, err = res.RowsAffected(); err != nil {
			return query.NewQueryExecutionError("exec", text, err)
		}
		// not every driver reports insert ids
		if id, err := res.LastInsertId(); err == nil {
			result.LastInsertID = id
		}
		event.RowCount = result.RowCount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// count runs the count statement derived from stmt. The count and the page are
// two independent round trips and may disagree under concurrent writes.
func (e *Executor) count(ctx context.Context, handle Handle, gen sqlgen.Generator, stmt *ast.Statement) (int64, error) {
	countStmt, err := sqlgen.CountStatement(stmt)
	if err != nil {
		return 0, err
	}
	text, err := sqlgen.Render(countStmt)
	if err != nil {
		return 0, err
	}
	bound, args, err := gen.Bind(text, countStmt.Bindings())
	if err != nil {
		return 0, query.NewQueryExecutionError("bind", text, err)
	}

	var total int64
	event := &QueryEvent{Kind: KindCount, Table: stmt.Table, Query: bound, Args: args}
	err = runWithMiddleware(ctx, e.middlewares, event, func() error {
		debug.Debug("Counting rows", "sql", bound)
		ps, err := handle.PreparexContext(ctx, bound)
		if err != nil {
			return query.NewQueryExecutionError("prepare", bound, err)
		}
		defer ps.Close()

		if err := ps.QueryRowxContext(ctx, args...).Scan(&total); err != nil {
			return query.NewQueryExecutionError("count", bound, err)
		}
		event.RowCount = 1
		return nil
	})
	return total, err
}

// normalizeRow converts driver byte slices to strings
func normalizeRow(row map[string]interface{}) {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
}
