// Package builder provides a fluent statement builder. Each verb starts a new
// Query that accumulates clauses and bound values and is consumed by Execute.
package builder

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/omegaalfa/QueryBuilder/query/cache"
	"github.com/omegaalfa/QueryBuilder/query/executor"
	"github.com/omegaalfa/QueryBuilder/runtime/connection"
)

// Option configures a Builder
type Option func(*settings)

type settings struct {
	store       cache.Store
	defaultTTL  time.Duration
	rejectEmpty bool
	middlewares []executor.Middleware
	prefix      *string
}

// WithCache enables result caching in store
func WithCache(store cache.Store) Option {
	return func(s *settings) {
		s.store = store
	}
}

// WithDefaultCacheTTL arms the cache for every statement returning rows. A
// Query.Cache call overrides it for one execution.
func WithDefaultCacheTTL(ttl time.Duration) Option {
	return func(s *settings) {
		s.defaultTTL = ttl
	}
}

// WithEmptyValueCheck toggles rejection of empty and zero bound values. It is
// on by default.
func WithEmptyValueCheck(enabled bool) Option {
	return func(s *settings) {
		s.rejectEmpty = enabled
	}
}

// WithMiddleware adds middleware around every statement round trip
func WithMiddleware(mw ...executor.Middleware) Option {
	return func(s *settings) {
		s.middlewares = append(s.middlewares, mw...)
	}
}

// WithTablePrefix overrides the table prefix of the connection config
func WithTablePrefix(prefix string) Option {
	return func(s *settings) {
		s.prefix = &prefix
	}
}

// Builder starts statements against one connection provider. It holds no
// statement state and is safe for concurrent use; the Query values it returns
// are not.
type Builder struct {
	provider   *connection.Provider
	executor   *executor.Executor
	tx         *sqlx.Tx
	written    *writeSet
	defaultTTL time.Duration
	prefix     string
}

// writeSet collects the tables written inside a transaction until it commits
type writeSet struct {
	mu     sync.Mutex
	tables []string
}

func (w *writeSet) add(table string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.tables {
		if t == table {
			return
		}
	}
	w.tables = append(w.tables, table)
}

// New creates a builder executing through provider
func New(provider *connection.Provider, opts ...Option) *Builder {
	s := &settings{rejectEmpty: true}
	for _, opt := range opts {
		opt(s)
	}

	execOpts := []executor.Option{
		executor.WithEmptyValueCheck(s.rejectEmpty),
		executor.WithMiddleware(s.middlewares...),
	}
	if s.store != nil {
		execOpts = append(execOpts, executor.WithCache(cache.NewAdapter(s.store)))
	}

	b := &Builder{
		provider:   provider,
		executor:   executor.NewExecutor(execOpts...),
		defaultTTL: s.defaultTTL,
		prefix:     provider.Config().Prefix,
	}
	if s.prefix != nil {
		b.prefix = *s.prefix
	}
	return b
}

// Provider returns the connection provider
func (b *Builder) Provider() *connection.Provider {
	return b.provider
}

// Executor returns the executor statements run through
func (b *Builder) Executor() *executor.Executor {
	return b.executor
}

// Use adds a middleware to the chain
func (b *Builder) Use(mw executor.Middleware) {
	b.executor.Use(mw)
}

// Query returns an empty query; a verb must be chosen before it can execute
func (b *Builder) Query() *Query {
	return &Query{b: b}
}

// Select starts a SELECT of fields from table. No fields selects "*".
func (b *Builder) Select(table string, fields ...string) *Query {
	return b.Query().Select(table, fields...)
}

// Insert starts an INSERT of data into table, one placeholder per column
func (b *Builder) Insert(table string, data map[string]interface{}) *Query {
	return b.Query().Insert(table, data)
}

// Update starts an UPDATE of table setting data, one placeholder per column
func (b *Builder) Update(table string, data map[string]interface{}) *Query {
	return b.Query().Update(table, data)
}

// Delete starts a DELETE from table
func (b *Builder) Delete(table string) *Query {
	return b.Query().Delete(table)
}

// Raw starts a statement from SQL text with named placeholders
func (b *Builder) Raw(sql string, params map[string]interface{}) *Query {
	return b.Query().Raw(sql, params)
}

// Tx returns a builder running statements on tx. Results read inside a
// transaction are never cached. Writes through it invalidate cached results
// immediately since the builder cannot observe the commit; use Transaction to
// defer that until the transaction commits.
func (b *Builder) Tx(tx *sqlx.Tx) *Builder {
	c := *b
	c.tx = tx
	c.written = nil
	return &c
}

// InTransaction reports whether the builder is bound to a transaction
func (b *Builder) InTransaction() bool {
	return b.tx != nil
}

// Transaction runs fn with a builder bound to a new transaction, committing
// when fn returns nil and rolling back otherwise. Cached results of the tables
// written by fn are invalidated once the commit succeeds.
func (b *Builder) Transaction(ctx context.Context, fn func(tb *Builder) error) error {
	written := &writeSet{}
	err := b.provider.Transaction(ctx, func(tx *sqlx.Tx) error {
		tb := b.Tx(tx)
		tb.written = written
		return fn(tb)
	})
	if err != nil {
		return err
	}
	if adapter := b.executor.Cache(); adapter != nil {
		for _, table := range written.tables {
			adapter.InvalidateTable(table)
		}
	}
	return nil
}

// wrote invalidates cached results of table, or records it for invalidation
// on commit when running inside Transaction
func (b *Builder) wrote(table string) {
	if b.written != nil {
		b.written.add(table)
		return
	}
	if adapter := b.executor.Cache(); adapter != nil {
		adapter.InvalidateTable(table)
	}
}

// InvalidateTable drops cached results of statements on table. It reports
// false when no cache is configured or the store cannot invalidate by pattern.
func (b *Builder) InvalidateTable(table string) bool {
	adapter := b.executor.Cache()
	if adapter == nil {
		return false
	}
	return adapter.InvalidateTable(b.table(table))
}

func (b *Builder) table(name string) string {
	return b.prefix + name
}

func (b *Builder) resolve(ctx context.Context) (executor.Handle, error) {
	if b.tx != nil {
		return b.tx, nil
	}
	db, err := b.provider.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return db, nil
}
