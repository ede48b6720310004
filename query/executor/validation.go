package executor

import (
	"reflect"

	"github.com/omegaalfa/QueryBuilder/query"
	"github.com/omegaalfa/QueryBuilder/query/ast"
)

// ValidateParams rejects bound values that are empty or zero: nil, "", "0",
// false, numeric zero, and empty slices or maps. The first offending
// placeholder is named in the returned *query.ValidationError. LIMIT bounds are
// not part of the bound parameters and are never rejected.
func ValidateParams(stmt *ast.Statement) error {
	for _, p := range stmt.Params {
		if IsEmptyValue(p.Value) {
			return query.NewValidationError(":"+p.Name, "empty or zero value cannot be bound")
		}
	}
	return nil
}

// IsEmptyValue reports whether v counts as empty for parameter binding
func IsEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return val == "" || val == "0"
	case bool:
		return !val
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	case reflect.String:
		return rv.String() == "" || rv.String() == "0"
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
