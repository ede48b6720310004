package connection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/omegaalfa/QueryBuilder/internal/debug"
	"github.com/omegaalfa/QueryBuilder/query"
)

// IsolationLevel represents transaction isolation levels
type IsolationLevel int

const (
	// Default leaves the isolation level to the driver
	Default IsolationLevel = iota
	// ReadUncommitted allows dirty reads
	ReadUncommitted
	// ReadCommitted prevents dirty reads
	ReadCommitted
	// RepeatableRead prevents dirty reads and non-repeatable reads
	RepeatableRead
	// Serializable prevents dirty reads, non-repeatable reads, and phantom reads
	Serializable
)

// ToSQLIsolationLevel converts IsolationLevel to sql.IsolationLevel
func (level IsolationLevel) ToSQLIsolationLevel() sql.IsolationLevel {
	switch level {
	case ReadUncommitted:
		return sql.LevelReadUncommitted
	case ReadCommitted:
		return sql.LevelReadCommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// NewTxOptions creates sql.TxOptions from isolation level
func NewTxOptions(isolation IsolationLevel, readOnly bool) *sql.TxOptions {
	return &sql.TxOptions{
		Isolation: isolation.ToSQLIsolationLevel(),
		ReadOnly:  readOnly,
	}
}

// TransactionFunc is a unit of work run inside a transaction
type TransactionFunc func(tx *sqlx.Tx) error

// Transaction runs fn inside a transaction on the memoized handle.
// If fn returns an error the transaction is rolled back, otherwise it is
// committed. Every failure, including begin and commit failures, is returned
// as a *query.TransactionError.
func (p *Provider) Transaction(ctx context.Context, fn TransactionFunc) error {
	return p.TransactionWithOptions(ctx, nil, fn)
}

// TransactionWithOptions is Transaction with custom options
func (p *Provider) TransactionWithOptions(ctx context.Context, opts *sql.TxOptions, fn TransactionFunc) error {
	id := uuid.NewString()
	if err := p.acquireTx(); err != nil {
		return query.NewTransactionError(id, err)
	}
	defer p.releaseTx()

	db, err := p.Connect(ctx)
	if err != nil {
		return query.NewTransactionError(id, err)
	}

	log := debug.With("tx", id)
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return query.NewTransactionError(id, fmt.Errorf("failed to begin transaction: %w", err))
	}
	log.Debug("Transaction started")

	// Defer rollback in case of panic
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			log.Warn("Transaction rolled back after panic", "panic", r)
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		log.Debug("Transaction rolled back", "error", err)
		return query.NewTransactionError(id, err)
	}

	if err := tx.Commit(); err != nil {
		return query.NewTransactionError(id, fmt.Errorf("failed to commit transaction: %w", err))
	}
	log.Debug("Transaction committed")
	return nil
}

// TransactionWithIsolation runs a transaction with a specific isolation level
func (p *Provider) TransactionWithIsolation(ctx context.Context, isolation IsolationLevel, fn TransactionFunc) error {
	return p.TransactionWithOptions(ctx, NewTxOptions(isolation, false), fn)
}

// ReadOnlyTransaction runs a read-only transaction
func (p *Provider) ReadOnlyTransaction(ctx context.Context, fn TransactionFunc) error {
	return p.TransactionWithOptions(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

// InTransaction reports whether a transaction is active
func (p *Provider) InTransaction() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inTx
}

func (p *Provider) acquireTx() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inTx {
		return query.ErrTransactionActive
	}
	p.inTx = true
	return nil
}

func (p *Provider) releaseTx() {
	p.mu.Lock()
	p.inTx = false
	p.mu.Unlock()
}
