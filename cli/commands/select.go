package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/omegaalfa/QueryBuilder/cli/internal/ui"
	"github.com/omegaalfa/QueryBuilder/query/ast"
	"github.com/omegaalfa/QueryBuilder/query/builder"
)

type selectOptions struct {
	fields   []string
	where    string
	joins    []string
	groupBy  []string
	having   string
	orderBy  []string
	limit    int
	offset   int
	page     int
	cacheTTL time.Duration
	format   string
	dryRun   bool
}

// NewSelectCommand creates the select command
func NewSelectCommand(a *app) *cobra.Command {
	opts := &selectOptions{}

	cmd := &cobra.Command{
		Use:   "select <table>",
		Short: "Run a SELECT built from flags",
		Long: `Build a SELECT statement from flags and run it.

Filters use the expression syntax "column op value [AND ...]", for example:
  --where "age >= 18 AND status IN ('active', 'trial')"

Joins are written as table:left=right with an optional :inner, :left or :right
suffix, for example --join "orders o:o.user_id=users.id:left".`,
		Example: `  querybuilder select users --fields id,name --where "age > 18" --order-by name --limit 10
  querybuilder select orders --fields status,"COUNT(*) AS n" --group-by status --having "COUNT(*) > 5"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !ui.ValidFormat(opts.format) {
				return fmt.Errorf("unsupported format %q (expected one of %s)", opts.format, strings.Join(ui.Formats, ", "))
			}
			b, err := a.open()
			if err != nil {
				return err
			}
			q, err := buildSelect(b, args[0], opts)
			if err != nil {
				return err
			}
			if opts.dryRun {
				return printStatement(a, q)
			}

			result, err := q.Execute(cmd.Context())
			if err != nil {
				return err
			}
			return ui.RenderResult(a.out, result, opts.format)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&opts.fields, "fields", nil, "columns to select (default *)")
	flags.StringVar(&opts.where, "where", "", "WHERE filter expression")
	flags.StringArrayVar(&opts.joins, "join", nil, "join as table:left=right[:inner|left|right] (repeatable)")
	flags.StringSliceVar(&opts.groupBy, "group-by", nil, "GROUP BY columns")
	flags.StringVar(&opts.having, "having", "", "HAVING filter expression, requires --group-by")
	flags.StringArrayVar(&opts.orderBy, "order-by", nil, "ORDER BY column[:asc|desc] (repeatable)")
	flags.IntVar(&opts.limit, "limit", 0, "page size; enables pagination metadata")
	flags.IntVar(&opts.offset, "offset", 0, "rows to skip, used with --limit")
	flags.IntVar(&opts.page, "page", 0, "1-based page number, used with --limit instead of --offset")
	flags.DurationVar(&opts.cacheTTL, "cache-ttl", 0, "cache the result for this long")
	flags.StringVarP(&opts.format, "format", "o", ui.FormatTable, "output format: "+strings.Join(ui.Formats, ", "))
	flags.BoolVar(&opts.dryRun, "dry-run", false, "print the statement and parameters without running it")

	return cmd
}

func buildSelect(b *builder.Builder, table string, opts *selectOptions) (*builder.Query, error) {
	q := b.Select(table, opts.fields...)

	for _, arg := range opts.joins {
		j, err := parseJoin(arg)
		if err != nil {
			return nil, err
		}
		q.JoinWith(j.Type, j.Table, j.Left, j.Operator, j.Right)
	}
	if opts.where != "" {
		q.Filter(opts.where)
	}
	if len(opts.groupBy) > 0 {
		q.GroupBy(opts.groupBy...)
	}
	if opts.having != "" {
		q.HavingFilter(opts.having)
	}
	for _, arg := range opts.orderBy {
		column, dir, err := parseOrder(arg)
		if err != nil {
			return nil, err
		}
		q.OrderBy(column, dir)
	}
	if opts.limit != 0 {
		if opts.page > 0 {
			q.Page(opts.page, opts.limit)
		} else {
			q.Limit(opts.limit, opts.offset)
		}
	}
	if opts.cacheTTL > 0 {
		q.Cache(opts.cacheTTL)
	}
	return q, q.Err()
}

// parseJoin parses table:left=right[:type]. The table part may carry an alias.
func parseJoin(arg string) (ast.Join, error) {
	parts := strings.Split(arg, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return ast.Join{}, fmt.Errorf("invalid join %q, expected table:left=right[:type]", arg)
	}
	left, right, ok := strings.Cut(parts[1], "=")
	if !ok || strings.TrimSpace(left) == "" || strings.TrimSpace(right) == "" {
		return ast.Join{}, fmt.Errorf("invalid join condition %q, expected left=right", parts[1])
	}

	joinType := ast.InnerJoin
	if len(parts) == 3 {
		var err error
		if joinType, err = ast.ParseJoinType(parts[2]); err != nil {
			return ast.Join{}, err
		}
	}
	return ast.Join{
		Type:     joinType,
		Table:    strings.TrimSpace(parts[0]),
		Left:     strings.TrimSpace(left),
		Operator: ast.Equals,
		Right:    strings.TrimSpace(right),
	}, nil
}

func parseOrder(arg string) (string, ast.OrderDirection, error) {
	column, dir, ok := strings.Cut(arg, ":")
	if !ok {
		return arg, ast.Asc, nil
	}
	d, err := ast.ParseOrderDirection(dir)
	if err != nil {
		return "", "", err
	}
	return column, d, nil
}

// printStatement writes the rendered SQL and its bound parameters
func printStatement(a *app, q *builder.Query) error {
	sql, err := q.SQL()
	if err != nil {
		return err
	}
	params := q.Params()
	if l := q.Statement().Limit; l != nil {
		params[ast.LimitOffsetParam] = l.Offset
		params[ast.LimitCountParam] = l.Count
	}
	fmt.Fprintln(a.out, sql)
	if len(params) > 0 {
		return ui.WriteYAML(a.out, params)
	}
	return nil
}
