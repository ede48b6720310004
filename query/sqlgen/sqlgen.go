// Package sqlgen renders statement specifications into SQL text with named
// placeholders and binds them for a specific database driver.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/omegaalfa/QueryBuilder/query"
	"github.com/omegaalfa/QueryBuilder/query/ast"
)

// LimitClause is the canonical rendering of a LIMIT. The offset placeholder
// precedes the count placeholder.
const LimitClause = "LIMIT :" + ast.LimitOffsetParam + ", :" + ast.LimitCountParam

// CountField is the expression selected by count statements
const CountField = "COUNT(*) AS total"

// Render assembles the statement in the fixed clause order
// verb prefix, JOIN, WHERE, GROUP BY, HAVING, ORDER BY, LIMIT.
// Clauses without fragments are omitted.
func Render(stmt *ast.Statement) (string, error) {
	if stmt.IsEmpty() {
		return "", query.NoStatementError()
	}

	prefix, err := renderPrefix(stmt)
	if err != nil {
		return "", err
	}
	parts := []string{prefix}

	// JOIN
	for _, j := range stmt.Joins {
		parts = append(parts, fmt.Sprintf("%s %s ON %s %s %s", j.Type, j.Table, j.Left, j.Operator, j.Right))
	}

	// WHERE
	if len(stmt.Where) > 0 {
		parts = append(parts, "WHERE "+renderPredicates(stmt.Where))
	}

	// GROUP BY
	if len(stmt.GroupBy) > 0 {
		parts = append(parts, "GROUP BY "+strings.Join(stmt.GroupBy, ", "))
	}

	// HAVING
	if len(stmt.Having) > 0 {
		parts = append(parts, "HAVING "+renderPredicates(stmt.Having))
	}

	// ORDER BY
	if len(stmt.OrderBy) > 0 {
		orderParts := make([]string, len(stmt.OrderBy))
		for i, o := range stmt.OrderBy {
			dir := o.Direction
			if dir == "" {
				dir = ast.Asc
			}
			orderParts[i] = o.Column + " " + string(dir)
		}
		parts = append(parts, "ORDER BY "+strings.Join(orderParts, ", "))
	}

	// LIMIT
	if stmt.Limit != nil {
		parts = append(parts, LimitClause)
	}

	return strings.Join(parts, " "), nil
}

func renderPrefix(stmt *ast.Statement) (string, error) {
	switch stmt.Verb {
	case ast.VerbSelect:
		fields := "*"
		if len(stmt.Fields) > 0 {
			fields = strings.Join(stmt.Fields, ", ")
		}
		prefix := fmt.Sprintf("SELECT %s FROM %s", fields, stmt.Table)
		if stmt.Alias != "" {
			prefix += " AS " + stmt.Alias
		}
		return prefix, nil

	case ast.VerbInsert:
		if len(stmt.Columns) == 0 {
			return "", query.NewValidationError(stmt.Table, "insert requires at least one column")
		}
		placeholders := make([]string, len(stmt.Columns))
		for i, col := range stmt.Columns {
			placeholders[i] = ":" + col
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			stmt.Table, strings.Join(stmt.Columns, ", "), strings.Join(placeholders, ", ")), nil

	case ast.VerbUpdate:
		if len(stmt.Columns) == 0 {
			return "", query.NewValidationError(stmt.Table, "update requires at least one column")
		}
		assignments := make([]string, len(stmt.Columns))
		for i, col := range stmt.Columns {
			assignments[i] = col + " = :" + col
		}
		prefix := "UPDATE " + stmt.Table
		if stmt.Alias != "" {
			prefix += " AS " + stmt.Alias
		}
		return prefix + " SET " + strings.Join(assignments, ", "), nil

	case ast.VerbDelete:
		prefix := "DELETE FROM " + stmt.Table
		if stmt.Alias != "" {
			prefix += " AS " + stmt.Alias
		}
		return prefix, nil

	case ast.VerbRaw:
		if strings.TrimSpace(stmt.RawSQL) == "" {
			return "", query.NewValidationError("raw", "empty SQL text")
		}
		return strings.TrimSpace(stmt.RawSQL), nil
	}
	return "", query.NewValidationError("verb", fmt.Sprintf("unsupported verb %q", stmt.Verb))
}

func renderPredicates(preds []ast.Predicate) string {
	out := make([]string, len(preds))
	for i, p := range preds {
		if p.Operator.IsList() {
			out[i] = fmt.Sprintf("%s %s (:%s)", p.Column, p.Operator, p.Param)
		} else {
			out[i] = fmt.Sprintf("%s %s :%s", p.Column, p.Operator, p.Param)
		}
	}
	return strings.Join(out, " AND ")
}

// CountStatement derives the statement counting every row stmt would return
// without its LIMIT. A plain SELECT keeps its joins and predicates with the field
// list replaced by a count. Grouped, distinct and raw statements are wrapped in a
// derived table. ORDER BY and LIMIT are always dropped. stmt is not modified.
func CountStatement(stmt *ast.Statement) (*ast.Statement, error) {
	if stmt.IsEmpty() {
		return nil, query.NoStatementError()
	}
	inner := stmt.Clone()
	inner.OrderBy = nil
	inner.Limit = nil

	if inner.Verb == ast.VerbSelect && len(inner.GroupBy) == 0 && len(inner.Having) == 0 && !isDistinct(inner.Fields) {
		inner.Fields = []string{CountField}
		return inner, nil
	}

	text, err := Render(inner)
	if err != nil {
		return nil, err
	}
	return &ast.Statement{
		Verb:   ast.VerbRaw,
		Table:  stmt.Table,
		RawSQL: fmt.Sprintf("SELECT %s FROM (%s) AS counted", CountField, text),
		Params: inner.Params,
	}, nil
}

func isDistinct(fields []string) bool {
	for _, f := range fields {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(f)), "DISTINCT") {
			return true
		}
	}
	return false
}
