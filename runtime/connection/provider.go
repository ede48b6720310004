package connection

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver (cgo)
	_ "modernc.org/sqlite"             // SQLite driver (pure Go)

	"github.com/omegaalfa/QueryBuilder/internal/debug"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Opener opens a database handle for a driver name and data source name
type Opener func(driverName, dsn string) (*sqlx.DB, error)

// Option configures a Provider
type Option func(*Provider)

// WithOpener replaces sqlx.Open as the way handles are created
func WithOpener(open Opener) Option {
	return func(p *Provider) {
		p.opener = open
	}
}

// WithDB installs an already opened handle as the memoized connection
func WithDB(db *sqlx.DB) Option {
	return func(p *Provider) {
		p.db = db
	}
}

// Provider lazily opens one database handle from its Config and memoizes it
// until Disconnect. Connect, Disconnect and Transaction are safe for
// concurrent use; only one transaction may be active at a time.
type Provider struct {
	config Config
	opener Opener

	mu       sync.Mutex
	db       *sqlx.DB
	inTx     bool
	connects int
}

// NewProvider creates a provider for config. No connection is opened.
func NewProvider(config Config, opts ...Option) *Provider {
	p := &Provider{
		config: config,
		opener: sqlx.Open,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the provider configuration
func (p *Provider) Config() Config {
	return p.config
}

// DriverName returns the database/sql driver name of the memoized handle, or
// the one the configuration maps to when no handle is open
func (p *Provider) DriverName() string {
	p.mu.Lock()
	db := p.db
	p.mu.Unlock()
	if db != nil {
		return db.DriverName()
	}
	name, _ := p.config.DriverName()
	return name
}

// Connect returns the memoized handle, opening and pinging it on first use
func (p *Provider) Connect(ctx context.Context) (*sqlx.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db != nil {
		return p.db, nil
	}

	driverName, err := p.config.DriverName()
	if err != nil {
		return nil, err
	}
	dsn, err := p.config.DSN()
	if err != nil {
		return nil, fmt.Errorf("invalid connection config: %w", err)
	}

	debug.Debug("Opening database connection", "driver", driverName, "host", p.config.Host, "database", p.config.Database)
	db, err := p.opener(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	p.applyPool(db)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	p.db = db
	p.connects++
	return db, nil
}

// applyPool sets the pool limits. SQLite handles are limited to a single
// connection so that in-memory databases and write locks stay consistent.
func (p *Provider) applyPool(db *sqlx.DB) {
	if p.config.Kind() == "sqlite" {
		db.SetMaxOpenConns(1)
		return
	}
	if p.config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.config.MaxOpenConns)
	}
	if p.config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(p.config.MaxIdleConns)
	}
	if p.config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(p.config.ConnMaxLifetime)
	}
	if p.config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(p.config.ConnMaxIdleTime)
	}
}

// Connected reports whether a handle is memoized
func (p *Provider) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db != nil
}

// Connects returns how many times a handle has been opened
func (p *Provider) Connects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

// Disconnect closes the memoized handle. The next Connect reopens it.
func (p *Provider) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	debug.Debug("Closed database connection", "driver", p.config.Driver)
	return err
}
