package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/omegaalfa/QueryBuilder/query"
	"github.com/omegaalfa/QueryBuilder/telemetry"
)

func init() {
	color.NoColor = true
}

func usersResult() *query.Result {
	return &query.Result{
		Columns:  []string{"id", "name"},
		Rows:     []map[string]interface{}{{"id": int64(1), "name": "Ada"}, {"id": int64(2), "name": nil}},
		RowCount: 2,
		Pagination: &query.Pagination{
			CurrentPage: 1, PerPage: 2, TotalPages: 3, TotalItems: 5,
		},
	}
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "2 row(s), page 1 of 3, 5 total", Summary(usersResult()))
	assert.Equal(t, "1 row(s) affected, last insert id 9", Summary(&query.Result{RowCount: 1, LastInsertID: 9}))
	assert.Equal(t, "0 row(s)", Summary(&query.Result{Columns: []string{"id"}}))
}

func TestMarkdownTable(t *testing.T) {
	r := usersResult()
	r.Rows[0]["name"] = "A|da"

	want := "| id | name |\n" +
		"| --- | --- |\n" +
		"| 1 | A\\|da |\n" +
		"| 2 | NULL |\n" +
		"\n" +
		"_2 row(s), page 1 of 3, 5 total_\n"
	assert.Equal(t, want, MarkdownTable(r))
}

func TestFormatCell(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "NULL", FormatCell(nil))
	assert.Equal(t, "raw", FormatCell([]byte("raw")))
	assert.Equal(t, "2024-03-01T12:00:00Z", FormatCell(ts))
	assert.Equal(t, "3.5", FormatCell(3.5))
}

func TestRenderResultJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderResult(&buf, usersResult(), FormatJSON))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, float64(2), decoded["row_count"])
	assert.Len(t, decoded["rows"], 2)
}

func TestRenderResultYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderResult(&buf, usersResult(), FormatYAML))

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, []interface{}{"id", "name"}, decoded["columns"])
}

func TestRenderResultTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderResult(&buf, usersResult(), FormatTable))
	assert.Contains(t, buf.String(), "Ada")
	assert.Contains(t, buf.String(), "page 1 of 3")

	buf.Reset()
	require.NoError(t, RenderResult(&buf, &query.Result{RowCount: 3}, FormatTable))
	assert.Equal(t, "3 row(s) affected\n", buf.String())
}

func TestRenderResultRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, RenderResult(&bytes.Buffer{}, usersResult(), "xml"))
	assert.False(t, ValidFormat("xml"))
	assert.True(t, ValidFormat(FormatMarkdown))
}

func TestStatsTable(t *testing.T) {
	headers, rows := StatsTable(telemetry.Snapshot{Queries: 2, Tables: map[string]int64{"users": 2}})
	assert.Equal(t, []string{"metric", "value"}, headers)
	assert.Equal(t, []string{"queries", "2"}, rows[0])
	assert.Equal(t, []string{"table users", "2"}, rows[len(rows)-1])
}
