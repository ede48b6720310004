// Package query provides the result types, pagination and error taxonomy shared by
// the statement builder, the executor and the cache adapter.
package query

import "fmt"

// Result represents the outcome of an executed statement.
type Result struct {
	// Columns lists the column names in the order the driver returned them.
	Columns []string `msgpack:"columns" json:"columns" yaml:"columns"`
	// Rows holds one column name to value mapping per fetched row.
	Rows []map[string]interface{} `msgpack:"rows" json:"rows" yaml:"rows"`
	// RowCount is the number of fetched rows for queries and the number of
	// affected rows for INSERT, UPDATE and DELETE statements.
	RowCount int64 `msgpack:"row_count" json:"row_count" yaml:"row_count"`
	// LastInsertID is set when the driver reports one.
	LastInsertID int64 `msgpack:"last_insert_id,omitempty" json:"last_insert_id,omitempty" yaml:"last_insert_id,omitempty"`
	// Pagination is set when the statement carried a LIMIT clause.
	Pagination *Pagination `msgpack:"pagination,omitempty" json:"pagination,omitempty" yaml:"pagination,omitempty"`
}

// Pagination describes the page a limited query returned.
type Pagination struct {
	CurrentPage int   `msgpack:"current_page" json:"current_page" yaml:"current_page"`
	PerPage     int   `msgpack:"per_page" json:"per_page" yaml:"per_page"`
	TotalPages  int   `msgpack:"total_pages" json:"total_pages" yaml:"total_pages"`
	TotalItems  int64 `msgpack:"total_items" json:"total_items" yaml:"total_items"`
}

// Paginate computes pagination metadata for total items split into pages of
// perPage items. currentPage and perPage are passed through unchanged, so a page
// beyond the last one is reported as requested.
//
// perPage must be positive; Paginate panics otherwise.
func Paginate(total int64, perPage, currentPage int) Pagination {
	if perPage <= 0 {
		panic(fmt.Sprintf("query: Paginate called with non-positive perPage %d", perPage))
	}
	pages := total / int64(perPage)
	if total%int64(perPage) != 0 {
		pages++
	}
	return Pagination{
		CurrentPage: currentPage,
		PerPage:     perPage,
		TotalPages:  int(pages),
		TotalItems:  total,
	}
}

// Empty reports whether the result holds no rows.
func (r *Result) Empty() bool {
	return r == nil || len(r.Rows) == 0
}
