package sqlgen

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/omegaalfa/QueryBuilder/query/ast"
)

// Generator binds rendered statements for a specific provider
type Generator interface {
	// Provider returns the database provider the generator targets
	Provider() string
	// Bind replaces named placeholders with the provider's bind variables and
	// returns the positional arguments. Slice values are expanded in place so
	// that IN (:name) receives one bind variable per element.
	Bind(text string, bindings map[string]interface{}) (string, []interface{}, error)
}

// NewGenerator creates a new generator for the given driver or provider name
func NewGenerator(provider string) Generator {
	switch strings.ToLower(provider) {
	case "postgresql", "postgres", "pgsql", "pgx":
		return &PostgresGenerator{}
	case "mysql":
		return &MySQLGenerator{}
	case "sqlite", "sqlite3":
		return &SQLiteGenerator{}
	default:
		bindType := sqlx.BindType(provider)
		if bindType == sqlx.UNKNOWN {
			bindType = sqlx.QUESTION
		}
		return &namedBinder{provider: provider, bindType: bindType}
	}
}

// namedBinder translates named placeholders through sqlx
type namedBinder struct {
	provider string
	bindType int
}

func (b *namedBinder) Provider() string { return b.provider }

func (b *namedBinder) Bind(text string, bindings map[string]interface{}) (string, []interface{}, error) {
	if bindings == nil {
		bindings = map[string]interface{}{}
	}
	bound, args, err := sqlx.Named(text, bindings)
	if err != nil {
		return "", nil, fmt.Errorf("bind named parameters: %w", err)
	}
	if hasSliceArg(args) {
		bound, args, err = sqlx.In(bound, args...)
		if err != nil {
			return "", nil, fmt.Errorf("expand list parameters: %w", err)
		}
	}
	return sqlx.Rebind(b.bindType, bound), args, nil
}

func hasSliceArg(args []interface{}) bool {
	for _, arg := range args {
		if _, ok := arg.(driver.Valuer); ok {
			continue
		}
		if _, ok := arg.([]byte); ok {
			continue
		}
		if v := reflect.ValueOf(arg); v.IsValid() && v.Kind() == reflect.Slice {
			return true
		}
	}
	return false
}

// MySQLGenerator binds for MySQL using ? bind variables
type MySQLGenerator struct{}

func (g *MySQLGenerator) Provider() string { return "mysql" }

func (g *MySQLGenerator) Bind(text string, bindings map[string]interface{}) (string, []interface{}, error) {
	return (&namedBinder{provider: "mysql", bindType: sqlx.QUESTION}).Bind(text, bindings)
}

// SQLiteGenerator binds for SQLite using ? bind variables. SQLite accepts the
// LIMIT offset, count form unchanged.
type SQLiteGenerator struct{}

func (g *SQLiteGenerator) Provider() string { return "sqlite" }

func (g *SQLiteGenerator) Bind(text string, bindings map[string]interface{}) (string, []interface{}, error) {
	return (&namedBinder{provider: "sqlite", bindType: sqlx.QUESTION}).Bind(text, bindings)
}

// PostgresGenerator binds for PostgreSQL using $n bind variables. PostgreSQL has
// no LIMIT offset, count form, so the canonical LIMIT clause is rewritten to
// LIMIT count OFFSET offset before binding.
type PostgresGenerator struct{}

func (g *PostgresGenerator) Provider() string { return "postgres" }

func (g *PostgresGenerator) Bind(text string, bindings map[string]interface{}) (string, []interface{}, error) {
	return (&namedBinder{provider: "postgres", bindType: sqlx.DOLLAR}).Bind(RewriteLimit(text), bindings)
}

// RewriteLimit turns a trailing canonical LIMIT clause into LIMIT/OFFSET form
func RewriteLimit(text string) string {
	if !strings.HasSuffix(text, LimitClause) {
		return text
	}
	return strings.TrimSuffix(text, LimitClause) +
		"LIMIT :" + ast.LimitCountParam + " OFFSET :" + ast.LimitOffsetParam
}
