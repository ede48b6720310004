package ast

import (
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Verb identifies the kind of statement
type Verb string

const (
	VerbSelect Verb = "SELECT"
	VerbInsert Verb = "INSERT"
	VerbUpdate Verb = "UPDATE"
	VerbDelete Verb = "DELETE"
	VerbRaw    Verb = "RAW"
)

// Names of the placeholders carrying the LIMIT bounds.
const (
	LimitOffsetParam = "limit_offset"
	LimitCountParam  = "limit_count"
)

// Join is a JOIN clause. Operands are column references and are never bound.
type Join struct {
	Type     JoinType
	Table    string
	Left     string
	Operator ComparisonOperator
	Right    string
}

// Predicate is one WHERE or HAVING condition bound to a single placeholder
type Predicate struct {
	Column   string
	Operator ComparisonOperator
	Param    string
}

// Order is one ORDER BY column
type Order struct {
	Column    string
	Direction OrderDirection
}

// LimitClause holds the LIMIT bounds verbatim
type LimitClause struct {
	Count  int
	Offset int
}

// Param is a named bound value. Names carry no leading colon.
type Param struct {
	Name  string
	Value interface{}
}

// Statement is the complete specification of one SQL statement. A zero
// Statement has no verb and cannot be rendered.
type Statement struct {
	Verb    Verb
	Table   string
	Alias   string
	Fields  []string
	Columns []string // insert and update columns, in placeholder order
	RawSQL  string
	Joins   []Join
	Where   []Predicate
	GroupBy []string
	Having  []Predicate
	OrderBy []Order
	Limit   *LimitClause
	Params  []Param
}

// IsEmpty reports whether no verb has been chosen
func (s *Statement) IsEmpty() bool {
	return s == nil || s.Verb == ""
}

// Returns reports whether executing the statement yields rows. Raw statements are
// classified by their leading keyword.
func (s *Statement) Returns() bool {
	switch s.Verb {
	case VerbSelect:
		return true
	case VerbRaw:
		fields := strings.Fields(strings.TrimLeft(s.RawSQL, "( \t\r\n"))
		if len(fields) == 0 {
			return false
		}
		switch strings.ToUpper(fields[0]) {
		case "SELECT", "WITH", "SHOW", "PRAGMA", "EXPLAIN", "VALUES", "DESCRIBE":
			return true
		}
	}
	return false
}

// Tables returns the target table followed by each joined table, without
// duplicates. A join written as "table alias" contributes only its table name.
// Raw statements report nothing.
func (s *Statement) Tables() []string {
	var tables []string
	add := func(name string) {
		if f := strings.Fields(name); len(f) > 0 && !slices.Contains(tables, f[0]) {
			tables = append(tables, f[0])
		}
	}
	add(s.Table)
	for _, j := range s.Joins {
		add(j.Table)
	}
	return tables
}

// NextParamName returns the placeholder name for the next WHERE or HAVING
// predicate: "param" followed by the number of parameters bound so far. A name
// already taken by an insert or update column is skipped.
func (s *Statement) NextParamName() string {
	for n := len(s.Params); ; n++ {
		name := "param" + strconv.Itoa(n)
		if !s.HasParam(name) {
			return name
		}
	}
}

// HasParam reports whether a parameter with the given name is bound
func (s *Statement) HasParam(name string) bool {
	for _, p := range s.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

// SetParam binds value to name, replacing an existing binding of the same name
func (s *Statement) SetParam(name string, value interface{}) {
	name = strings.TrimPrefix(name, ":")
	for i := range s.Params {
		if s.Params[i].Name == name {
			s.Params[i].Value = value
			return
		}
	}
	s.Params = append(s.Params, Param{Name: name, Value: value})
}

// ParamMap returns the bound parameters keyed by placeholder name
func (s *Statement) ParamMap() map[string]interface{} {
	m := make(map[string]interface{}, len(s.Params))
	for _, p := range s.Params {
		m[p.Name] = p.Value
	}
	return m
}

// Bindings returns every value the rendered statement refers to: the bound
// parameters plus the LIMIT bounds when a LIMIT is set.
func (s *Statement) Bindings() map[string]interface{} {
	m := s.ParamMap()
	if s.Limit != nil {
		m[LimitOffsetParam] = s.Limit.Offset
		m[LimitCountParam] = s.Limit.Count
	}
	return m
}

// Clone returns a deep copy of the statement's clause lists. Bound values are
// shared.
func (s *Statement) Clone() *Statement {
	if s == nil {
		return nil
	}
	c := *s
	c.Fields = append([]string(nil), s.Fields...)
	c.Columns = append([]string(nil), s.Columns...)
	c.Joins = append([]Join(nil), s.Joins...)
	c.Where = append([]Predicate(nil), s.Where...)
	c.GroupBy = append([]string(nil), s.GroupBy...)
	c.Having = append([]Predicate(nil), s.Having...)
	c.OrderBy = append([]Order(nil), s.OrderBy...)
	c.Params = append([]Param(nil), s.Params...)
	if s.Limit != nil {
		l := *s.Limit
		c.Limit = &l
	}
	return &c
}

// SortedKeys returns the keys of data in ascending order
func SortedKeys(data map[string]interface{}) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
