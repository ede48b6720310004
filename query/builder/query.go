package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/omegaalfa/QueryBuilder/query"
	"github.com/omegaalfa/QueryBuilder/query/ast"
	"github.com/omegaalfa/QueryBuilder/query/executor"
	"github.com/omegaalfa/QueryBuilder/query/filter"
	"github.com/omegaalfa/QueryBuilder/query/sqlgen"
)

// Query accumulates the clauses and bound values of one statement.
//
// Clause methods are chainable. The first failure among them is recorded and
// returned by Err, SQL and Execute. Execute consumes the statement: afterwards
// the query is empty and a verb must be chosen again.
type Query struct {
	b        *Builder
	stmt     ast.Statement
	err      error
	cacheTTL time.Duration
}

// Select resets the query to a SELECT of fields from table
func (q *Query) Select(table string, fields ...string) *Query {
	q.reset(ast.VerbSelect, table)
	q.stmt.Fields = append([]string(nil), fields...)
	return q
}

// Insert resets the query to an INSERT of data into table
func (q *Query) Insert(table string, data map[string]interface{}) *Query {
	q.reset(ast.VerbInsert, table)
	return q.setColumns(data)
}

// Update resets the query to an UPDATE of table setting data
func (q *Query) Update(table string, data map[string]interface{}) *Query {
	q.reset(ast.VerbUpdate, table)
	return q.setColumns(data)
}

// Delete resets the query to a DELETE from table
func (q *Query) Delete(table string) *Query {
	q.reset(ast.VerbDelete, table)
	return q
}

// Raw resets the query to the given SQL text. Placeholders are written as
// :name and params keys may carry the leading colon or not.
func (q *Query) Raw(sql string, params map[string]interface{}) *Query {
	q.reset(ast.VerbRaw, "")
	q.stmt.RawSQL = sql
	for _, name := range ast.SortedKeys(params) {
		q.stmt.SetParam(name, params[name])
	}
	return q
}

// reset starts a new statement. Cache arming made before the first verb is
// kept; arming of a replaced statement is not.
func (q *Query) reset(verb ast.Verb, table string) {
	if !q.stmt.IsEmpty() {
		q.cacheTTL = 0
	}
	q.stmt = ast.Statement{Verb: verb}
	if table != "" {
		q.stmt.Table = q.b.table(table)
	}
	q.err = nil
}

func (q *Query) setColumns(data map[string]interface{}) *Query {
	if len(data) == 0 {
		q.fail(query.NewValidationError(q.stmt.Table, fmt.Sprintf("%s requires at least one column", q.stmt.Verb)))
		return q
	}
	for _, col := range ast.SortedKeys(data) {
		q.stmt.Columns = append(q.stmt.Columns, col)
		q.stmt.SetParam(col, data[col])
	}
	return q
}

func (q *Query) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

// requireVerb records an error when the clause cannot apply to the current verb
func (q *Query) requireVerb(clause string, allowed ...ast.Verb) bool {
	if q.stmt.IsEmpty() {
		q.fail(query.NoStatementError())
		return false
	}
	for _, v := range allowed {
		if q.stmt.Verb == v {
			return true
		}
	}
	q.fail(query.NewValidationError(clause, fmt.Sprintf("not supported on %s statements", q.stmt.Verb)))
	return false
}

// As sets the alias of the target table
func (q *Query) As(alias string) *Query {
	if q.requireVerb("alias", ast.VerbSelect, ast.VerbUpdate, ast.VerbDelete) {
		q.stmt.Alias = alias
	}
	return q
}

// Where appends the predicate "column op :paramN" bound to value
func (q *Query) Where(column string, op ast.ComparisonOperator, value interface{}) *Query {
	if !q.requireVerb("where", ast.VerbSelect, ast.VerbUpdate, ast.VerbDelete, ast.VerbRaw) {
		return q
	}
	if p, ok := q.predicate("where", column, op, value); ok {
		q.stmt.Where = append(q.stmt.Where, p)
	}
	return q
}

// WhereIn appends "column IN (:paramN)" bound to values
func (q *Query) WhereIn(column string, values ...interface{}) *Query {
	return q.Where(column, ast.In, values)
}

// Having appends the predicate "column op :paramN" to the HAVING clause. It
// must follow a GroupBy call.
func (q *Query) Having(column string, op ast.ComparisonOperator, value interface{}) *Query {
	if !q.requireVerb("having", ast.VerbSelect, ast.VerbRaw) {
		return q
	}
	if len(q.stmt.GroupBy) == 0 {
		q.fail(query.NewValidationError("having", "HAVING requires a preceding GROUP BY"))
		return q
	}
	if p, ok := q.predicate("having", column, op, value); ok {
		q.stmt.Having = append(q.stmt.Having, p)
	}
	return q
}

func (q *Query) predicate(clause, column string, op ast.ComparisonOperator, value interface{}) (ast.Predicate, bool) {
	if !op.Valid() {
		q.fail(query.NewValidationError(clause, fmt.Sprintf("unsupported comparison operator %q", op)))
		return ast.Predicate{}, false
	}
	name := q.stmt.NextParamName()
	q.stmt.SetParam(name, value)
	return ast.Predicate{Column: column, Operator: op, Param: name}, true
}

// Filter parses expr and appends each condition as a WHERE predicate
func (q *Query) Filter(expr string) *Query {
	conds, err := filter.Parse(expr)
	if err != nil {
		q.fail(err)
		return q
	}
	for _, c := range conds {
		q.Where(c.Column, c.Operator, c.Value)
	}
	return q
}

// HavingFilter parses expr and appends each condition as a HAVING predicate
func (q *Query) HavingFilter(expr string) *Query {
	conds, err := filter.Parse(expr)
	if err != nil {
		q.fail(err)
		return q
	}
	for _, c := range conds {
		q.Having(c.Column, c.Operator, c.Value)
	}
	return q
}

// Join appends an INNER JOIN of table on "left op right"
func (q *Query) Join(table, left string, op ast.ComparisonOperator, right string) *Query {
	return q.JoinWith(ast.InnerJoin, table, left, op, right)
}

// LeftJoin appends a LEFT JOIN of table on "left op right"
func (q *Query) LeftJoin(table, left string, op ast.ComparisonOperator, right string) *Query {
	return q.JoinWith(ast.LeftJoin, table, left, op, right)
}

// RightJoin appends a RIGHT JOIN of table on "left op right"
func (q *Query) RightJoin(table, left string, op ast.ComparisonOperator, right string) *Query {
	return q.JoinWith(ast.RightJoin, table, left, op, right)
}

// JoinWith appends a join of the given type. Operands are column references
// and are not bound.
func (q *Query) JoinWith(joinType ast.JoinType, table, left string, op ast.ComparisonOperator, right string) *Query {
	if !q.requireVerb("join", ast.VerbSelect, ast.VerbUpdate, ast.VerbDelete) {
		return q
	}
	if !joinType.Valid() {
		q.fail(query.NewValidationError("join", fmt.Sprintf("unsupported join type %q", joinType)))
		return q
	}
	if !op.Valid() || op.IsList() {
		q.fail(query.NewValidationError("join", fmt.Sprintf("unsupported join operator %q", op)))
		return q
	}
	q.stmt.Joins = append(q.stmt.Joins, ast.Join{
		Type:     joinType,
		Table:    q.b.table(table),
		Left:     left,
		Operator: op,
		Right:    right,
	})
	return q
}

// OrderBy appends an ORDER BY column, ascending unless a direction is given
func (q *Query) OrderBy(column string, direction ...ast.OrderDirection) *Query {
	if !q.requireVerb("order by", ast.VerbSelect, ast.VerbUpdate, ast.VerbDelete, ast.VerbRaw) {
		return q
	}
	dir := ast.Asc
	if len(direction) > 0 {
		dir = direction[0]
	}
	if !dir.Valid() {
		q.fail(query.NewValidationError("order by", fmt.Sprintf("unsupported direction %q", dir)))
		return q
	}
	q.stmt.OrderBy = append(q.stmt.OrderBy, ast.Order{Column: column, Direction: dir})
	return q
}

// GroupBy appends GROUP BY columns
func (q *Query) GroupBy(columns ...string) *Query {
	if q.requireVerb("group by", ast.VerbSelect, ast.VerbRaw) {
		q.stmt.GroupBy = append(q.stmt.GroupBy, columns...)
	}
	return q
}

// Limit sets the page size and offset. The values are stored verbatim; a
// non-positive size fails at Execute when pagination needs it.
func (q *Query) Limit(n, offset int) *Query {
	if q.requireVerb("limit", ast.VerbSelect, ast.VerbRaw) {
		q.stmt.Limit = &ast.LimitClause{Count: n, Offset: offset}
	}
	return q
}

// Page limits the query to page (1-based) of perPage rows
func (q *Query) Page(page, perPage int) *Query {
	if page < 1 {
		page = 1
	}
	return q.Limit(perPage, (page-1)*perPage)
}

// Cache arms the result cache for the next Execute only. It has no effect on
// statements that do not return rows or without a configured cache store.
// Choosing another verb afterwards disarms it, unless the query had no
// statement yet.
func (q *Query) Cache(ttl time.Duration) *Query {
	q.cacheTTL = ttl
	return q
}

// Err returns the first error recorded while building
func (q *Query) Err() error {
	return q.err
}

// SQL renders the statement with named placeholders
func (q *Query) SQL() (string, error) {
	if q.err != nil {
		return "", q.err
	}
	return sqlgen.Render(&q.stmt)
}

// Params returns the bound parameters keyed by placeholder name, without the
// LIMIT bounds
func (q *Query) Params() map[string]interface{} {
	return q.stmt.ParamMap()
}

// Statement returns a copy of the accumulated statement
func (q *Query) Statement() *ast.Statement {
	return q.stmt.Clone()
}

// Reset discards the statement, any recorded error and the cache arming
func (q *Query) Reset() {
	q.stmt = ast.Statement{}
	q.err = nil
	q.cacheTTL = 0
}

// Execute runs the statement and resets the query, whether execution
// succeeded or not. Successful writes invalidate cached results of their table,
// deferred to the commit inside Builder.Transaction.
func (q *Query) Execute(ctx context.Context) (*query.Result, error) {
	defer q.Reset()
	if q.err != nil {
		return nil, q.err
	}

	opts := executor.Options{}
	if q.stmt.Returns() && !q.b.InTransaction() {
		opts.CacheTTL = q.cacheTTL
		if opts.CacheTTL <= 0 {
			opts.CacheTTL = q.b.defaultTTL
		}
	}

	result, err := q.b.executor.Execute(ctx, q.b.resolve, &q.stmt, opts)
	if err != nil {
		return nil, err
	}
	if isWrite(q.stmt.Verb) {
		q.b.wrote(q.stmt.Table)
	}
	return result, nil
}

func isWrite(v ast.Verb) bool {
	return v == ast.VerbInsert || v == ast.VerbUpdate || v == ast.VerbDelete
}
