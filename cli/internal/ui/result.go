package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/omegaalfa/QueryBuilder/query"
	"github.com/omegaalfa/QueryBuilder/telemetry"
)

// Output formats
const (
	FormatTable    = "table"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// Formats lists the accepted output formats
var Formats = []string{FormatTable, FormatJSON, FormatYAML, FormatMarkdown}

// ValidFormat reports whether format is accepted
func ValidFormat(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

// RenderResult writes result to w in format
func RenderResult(w io.Writer, result *query.Result, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)

	case FormatYAML:
		return WriteYAML(w, result)

	case FormatMarkdown:
		out, err := RenderMarkdown(MarkdownTable(result))
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err

	case FormatTable, "":
		if len(result.Columns) == 0 {
			_, err := fmt.Fprintln(w, Summary(result))
			return err
		}
		out, err := RenderTable(result.Columns, cells(result))
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, out); err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, footerColor.Sprint(Summary(result)))
		return err
	}
	return fmt.Errorf("unsupported format %q (expected one of %s)", format, strings.Join(Formats, ", "))
}

// WriteYAML encodes v as YAML with two space indentation
func WriteYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// Summary describes the row count and, when paginated, the page position
func Summary(result *query.Result) string {
	if len(result.Columns) == 0 {
		s := fmt.Sprintf("%d row(s) affected", result.RowCount)
		if result.LastInsertID > 0 {
			s += fmt.Sprintf(", last insert id %d", result.LastInsertID)
		}
		return s
	}
	s := fmt.Sprintf("%d row(s)", result.RowCount)
	if p := result.Pagination; p != nil {
		s += fmt.Sprintf(", page %d of %d, %d total", p.CurrentPage, p.TotalPages, p.TotalItems)
	}
	return s
}

// MarkdownTable renders result as a GitHub flavored markdown table followed
// by its summary
func MarkdownTable(result *query.Result) string {
	var b strings.Builder
	if len(result.Columns) > 0 {
		b.WriteString("| " + strings.Join(result.Columns, " | ") + " |\n")
		b.WriteString("|" + strings.Repeat(" --- |", len(result.Columns)) + "\n")
		for _, row := range cells(result) {
			for i := range row {
				row[i] = strings.ReplaceAll(row[i], "|", `\|`)
			}
			b.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("_" + Summary(result) + "_\n")
	return b.String()
}

func cells(result *query.Result) [][]string {
	rows := make([][]string, len(result.Rows))
	for i, row := range result.Rows {
		line := make([]string, len(result.Columns))
		for j, col := range result.Columns {
			line[j] = FormatCell(row[col])
		}
		rows[i] = line
	}
	return rows
}

// FormatCell renders one column value
func FormatCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return nullColor.Sprint("NULL")
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// StatsTable renders a statistics snapshot as header and rows
func StatsTable(s telemetry.Snapshot) ([]string, [][]string) {
	headers := []string{"metric", "value"}
	rows := [][]string{
		{"queries", fmt.Sprint(s.Queries)},
		{"execs", fmt.Sprint(s.Execs)},
		{"counts", fmt.Sprint(s.Counts)},
		{"cache hits", fmt.Sprint(s.CacheHits)},
		{"rows", fmt.Sprint(s.Rows)},
		{"errors", fmt.Sprint(s.Errors)},
		{"slow", fmt.Sprint(s.SlowStatement)},
		{"total time", s.TotalDuration.String()},
		{"average time", s.AvgDuration().String()},
	}
	for _, table := range s.TableNames() {
		rows = append(rows, []string{"table " + table, fmt.Sprint(s.Tables[table])})
	}
	return headers, rows
}
