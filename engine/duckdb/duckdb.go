// Package duckdb implements the core.Engine contract on an embedded DuckDB
// instance. Registered table names are rewritten into read_parquet scans
// over the providers' materialized file sets.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/sievedb/sieve/core"
)

type Engine struct {
	db        *sql.DB
	batchSize int
}

// New opens an in-process DuckDB database for one execution context.
func New(batchSize int) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &Engine{db: db, batchSize: batchSize}, nil
}

func (e *Engine) Exec(ctx context.Context, stmt string) error {
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("exec %q: %w", stmt, err)
	}
	return nil
}

type streamPlan struct {
	sql string
}

func (p *streamPlan) SQL() string { return p.sql }

// Compile resolves every registered table name in the statement into a
// parquet scan subquery. Names are substituted longest-first so a table
// name that prefixes another cannot steal its references.
func (e *Engine) Compile(ctx context.Context, sqlText string, tables map[string]core.TableProvider) (core.StreamPlan, error) {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	rewritten := sqlText
	for _, name := range names {
		sub, err := subqueryFor(ctx, tables[name])
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", name, err)
		}
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(name) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", name, err)
		}
		rewritten = re.ReplaceAllStringFunc(rewritten, func(string) string { return sub })
	}
	return &streamPlan{sql: rewritten}, nil
}

func (e *Engine) Execute(ctx context.Context, plan core.StreamPlan) (core.BatchStream, error) {
	rows, err := e.db.QueryContext(ctx, plan.SQL())
	if err != nil {
		return nil, fmt.Errorf("execute plan: %w", err)
	}
	cols, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("resolve result schema: %w", err)
	}
	return newBatchStream(rows, schemaFromColumns(cols), e.batchSize), nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

func subqueryFor(ctx context.Context, tp core.TableProvider) (string, error) {
	type unionProvider interface {
		Children() []core.TableProvider
	}
	if u, ok := tp.(unionProvider); ok {
		branches := make([]string, 0, len(u.Children()))
		for _, c := range u.Children() {
			spec, err := c.Scan(ctx)
			if err != nil {
				return "", err
			}
			sel, err := scanSelect(spec)
			if err != nil {
				return "", err
			}
			branches = append(branches, sel)
		}
		return "(" + strings.Join(branches, " UNION ALL BY NAME ") + ")", nil
	}

	spec, err := tp.Scan(ctx)
	if err != nil {
		return "", err
	}
	sel, err := scanSelect(spec)
	if err != nil {
		return "", err
	}
	return "(" + sel + ")", nil
}

func scanSelect(spec core.ScanSpec) (string, error) {
	if len(spec.Files) == 0 {
		return "", fmt.Errorf("no segment files to scan")
	}
	quoted := make([]string, len(spec.Files))
	for i, f := range spec.Files {
		quoted[i] = "'" + strings.ReplaceAll(f, "'", "''") + "'"
	}
	proj := spec.Projection
	if proj == "" {
		proj = "*"
	}
	sel := fmt.Sprintf("SELECT %s FROM read_parquet([%s], union_by_name=true)", proj, strings.Join(quoted, ", "))
	if spec.Condition != "" {
		sel += " WHERE " + spec.Condition
	}
	return sel, nil
}
