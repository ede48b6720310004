// Package ast defines the statement specification assembled by the builder and
// rendered by sqlgen.
package ast

import (
	"fmt"
	"strings"
)

// ComparisonOperator represents a comparison used in WHERE and HAVING predicates
type ComparisonOperator string

const (
	Equals              ComparisonOperator = "="
	NotEquals           ComparisonOperator = "!="
	GreaterThan         ComparisonOperator = ">"
	LessThan            ComparisonOperator = "<"
	GreaterThanOrEquals ComparisonOperator = ">="
	LessThanOrEquals    ComparisonOperator = "<="
	Like                ComparisonOperator = "LIKE"
	NotLike             ComparisonOperator = "NOT LIKE"
	In                  ComparisonOperator = "IN"
	NotIn               ComparisonOperator = "NOT IN"
)

var comparisonOperators = []ComparisonOperator{
	Equals, NotEquals, GreaterThan, LessThan, GreaterThanOrEquals,
	LessThanOrEquals, Like, NotLike, In, NotIn,
}

// Valid reports whether op belongs to the supported vocabulary
func (op ComparisonOperator) Valid() bool {
	for _, known := range comparisonOperators {
		if op == known {
			return true
		}
	}
	return false
}

// IsList reports whether the operator compares against a list of values
func (op ComparisonOperator) IsList() bool {
	return op == In || op == NotIn
}

func (op ComparisonOperator) String() string { return string(op) }

// ParseComparisonOperator resolves the literal SQL form of an operator.
// Keywords are matched case-insensitively and "<>" is accepted for "!=".
func ParseComparisonOperator(s string) (ComparisonOperator, error) {
	norm := strings.ToUpper(strings.Join(strings.Fields(s), " "))
	if norm == "<>" {
		return NotEquals, nil
	}
	op := ComparisonOperator(norm)
	if !op.Valid() {
		return "", fmt.Errorf("unknown comparison operator %q", s)
	}
	return op, nil
}

// JoinType represents the kind of JOIN clause
type JoinType string

const (
	InnerJoin JoinType = "INNER JOIN"
	LeftJoin  JoinType = "LEFT JOIN"
	RightJoin JoinType = "RIGHT JOIN"
)

// Valid reports whether t is a supported join type
func (t JoinType) Valid() bool {
	return t == InnerJoin || t == LeftJoin || t == RightJoin
}

func (t JoinType) String() string { return string(t) }

// ParseJoinType accepts "inner", "left", "right" or the full keyword form
func ParseJoinType(s string) (JoinType, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasSuffix(norm, " JOIN") {
		norm += " JOIN"
	}
	t := JoinType(norm)
	if !t.Valid() {
		return "", fmt.Errorf("unknown join type %q", s)
	}
	return t, nil
}

// OrderDirection represents the direction of an ORDER BY column
type OrderDirection string

const (
	Asc  OrderDirection = "ASC"
	Desc OrderDirection = "DESC"
)

// Valid reports whether d is ASC or DESC
func (d OrderDirection) Valid() bool {
	return d == Asc || d == Desc
}

func (d OrderDirection) String() string { return string(d) }

// ParseOrderDirection resolves "asc" or "desc" case-insensitively
func ParseOrderDirection(s string) (OrderDirection, error) {
	d := OrderDirection(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown order direction %q", s)
	}
	return d, nil
}
