// Package filter parses textual predicates such as
//
//	age >= 18 AND name LIKE 'A%' AND status IN ('active', 'trial')
//
// into conditions the builder turns into bound WHERE or HAVING predicates.
// The left operand may also be an aggregate call such as COUNT(*) or
// SUM(o.total), for HAVING filters.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/omegaalfa/QueryBuilder/query"
	"github.com/omegaalfa/QueryBuilder/query/ast"
)

// Condition is one parsed comparison
type Condition struct {
	Column   string
	Operator ast.ComparisonOperator
	// Value is a string, int64, float64 or bool, or a []interface{} of those
	// for IN and NOT IN
	Value interface{}
}

var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Aggregate", Pattern: `(?i)\b(?:COUNT|SUM|AVG|MIN|MAX)\(\s*(?:\*|(?:DISTINCT\s+)?[\p{L}_][\p{L}\p{N}_]*(?:\.[\p{L}_][\p{L}\p{N}_]*)?)\s*\)`},
	{Name: "Keyword", Pattern: `(?i)\b(AND|NOT|LIKE|IN|TRUE|FALSE)\b`},
	{Name: "String", Pattern: `'(?:\\.|[^'\\])*'|"(?:\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `[-+]?\d+(?:\.\d+)?`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_]*(?:\.[\p{L}_][\p{L}\p{N}_]*)?`},
	{Name: "Operator", Pattern: `!=|<>|>=|<=|=|>|<`},
	{Name: "Punct", Pattern: `[(),]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

type expression struct {
	Conditions []*condition `@@ ( "AND" @@ )*`
}

type condition struct {
	Pos    lexer.Position
	Column string    `@( Aggregate | Ident )`
	Op     *operator `@@`
	Value  *value    `@@`
}

type operator struct {
	Symbol  string     `  @Operator`
	Keyword *keywordOp `| @@`
}

type keywordOp struct {
	Not  bool   `@"NOT"?`
	Word string `@( "LIKE" | "IN" )`
}

type value struct {
	String *string  `  @String`
	Number *string  `| @Number`
	Bool   *string  `| @( "TRUE" | "FALSE" )`
	List   []*value `| "(" @@ ( "," @@ )* ")"`
}

var parser = participle.MustBuild[expression](
	participle.Lexer(filterLexer),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Keyword"),
	participle.UseLookahead(2),
)

// Parse parses expr into conditions joined by AND. Failures are returned as
// *query.ValidationError.
func Parse(expr string) ([]Condition, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, query.NewValidationError("filter", "empty expression")
	}
	raw, err := parser.ParseString("filter", expr)
	if err != nil {
		return nil, &query.ValidationError{Field: "filter", Reason: err.Error(), Err: err}
	}

	conds := make([]Condition, 0, len(raw.Conditions))
	for _, c := range raw.Conditions {
		cond, err := c.convert()
		if err != nil {
			return nil, &query.ValidationError{
				Field:  "filter",
				Reason: fmt.Sprintf("%s: %v", c.Pos, err),
				Err:    err,
			}
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

func (c *condition) convert() (Condition, error) {
	op, err := c.Op.resolve()
	if err != nil {
		return Condition{}, err
	}
	v, err := c.Value.resolve()
	if err != nil {
		return Condition{}, err
	}

	_, isList := v.([]interface{})
	switch {
	case op.IsList() && !isList:
		v = []interface{}{v}
	case !op.IsList() && isList:
		return Condition{}, fmt.Errorf("operator %s does not accept a list", op)
	}
	return Condition{Column: c.Column, Operator: op, Value: v}, nil
}

func (o *operator) resolve() (ast.ComparisonOperator, error) {
	if o.Symbol != "" {
		return ast.ParseComparisonOperator(o.Symbol)
	}
	text := o.Keyword.Word
	if o.Keyword.Not {
		text = "NOT " + text
	}
	return ast.ParseComparisonOperator(text)
}

func (v *value) resolve() (interface{}, error) {
	switch {
	case v.String != nil:
		return unquote(*v.String)
	case v.Number != nil:
		if !strings.Contains(*v.Number, ".") {
			return strconv.ParseInt(*v.Number, 10, 64)
		}
		return strconv.ParseFloat(*v.Number, 64)
	case v.Bool != nil:
		return strings.EqualFold(*v.Bool, "TRUE"), nil
	default:
		list := make([]interface{}, 0, len(v.List))
		for _, item := range v.List {
			if item.List != nil {
				return nil, fmt.Errorf("nested lists are not supported")
			}
			iv, err := item.resolve()
			if err != nil {
				return nil, err
			}
			list = append(list, iv)
		}
		return list, nil
	}
}

// unquote strips the surrounding quotes of a string token and resolves
// backslash escapes
func unquote(s string) (string, error) {
	quote := s[0]
	s = s[1 : len(s)-1]
	var out strings.Builder
	for s != "" {
		r, _, tail, err := strconv.UnquoteChar(s, quote)
		if err != nil {
			return "", fmt.Errorf("invalid string literal: %w", err)
		}
		out.WriteRune(r)
		s = tail
	}
	return out.String(), nil
}
