package core

import (
	"context"

	"github.com/apache/arrow/go/v14/arrow"
)

// ScanSpec tells the engine how to read one table provider.
type ScanSpec struct {
	// Files are local parquet paths, already materialized and ordered.
	Files []string
	// Condition is an optional pushed-down row filter, SQL syntax.
	Condition string
	// Projection replaces the scan's column list, "*" when empty. Used
	// for type-coercion rewrites.
	Projection string
}

// TableStats is the aggregated statistics of a provider's file set.
type TableStats struct {
	Rows  int64
	Bytes int64
	MinTS int64
	MaxTS int64
}

// TableProvider presents a set of segment files as one logical table.
// Variants: single-schema listing table and multi-schema union table; both
// expose the same read-only scan/schema/statistics capability set.
type TableProvider interface {
	Schema() *arrow.Schema
	Scan(ctx context.Context) (ScanSpec, error)
	// Statistics may return nil when statistics collection is disabled.
	Statistics() *TableStats
}

// StreamPlan is an executable plan compiled from one SQL string.
type StreamPlan interface {
	// SQL returns the fully-resolved statement the engine will run.
	SQL() string
}

// BatchStream is a pull-based stream of result batches. Next returns io.EOF
// after the last batch. The caller must Release each record.
type BatchStream interface {
	Schema() *arrow.Schema
	Next(ctx context.Context) (arrow.Record, error)
	Close() error
}

// Engine is the narrow contract over the embedded query engine. Any engine
// able to compile SQL over parquet file sets and stream record batches
// satisfies it.
type Engine interface {
	// Exec runs a session statement (settings, macro DDL).
	Exec(ctx context.Context, sql string) error
	// Compile resolves registered table names against their providers and
	// produces an executable plan.
	Compile(ctx context.Context, sql string, tables map[string]TableProvider) (StreamPlan, error)
	// Execute starts the plan and returns its batch stream.
	Execute(ctx context.Context, plan StreamPlan) (BatchStream, error)
	Close() error
}
