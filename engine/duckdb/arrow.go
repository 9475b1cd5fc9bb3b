package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
)

// schemaFromColumns maps the driver's column types onto arrow fields.
// Timestamps are kept in nanoseconds, matching the fabric's time column.
func schemaFromColumns(cols []*sql.ColumnType) *arrow.Schema {
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		nullable := true
		if n, ok := c.Nullable(); ok {
			nullable = n
		}
		fields[i] = arrow.Field{
			Name:     c.Name(),
			Type:     arrowTypeFor(c.DatabaseTypeName()),
			Nullable: nullable,
		}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowTypeFor(dbType string) arrow.DataType {
	switch strings.ToUpper(dbType) {
	case "TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT":
		return arrow.PrimitiveTypes.Int64
	case "FLOAT", "REAL", "DOUBLE", "DECIMAL":
		return arrow.PrimitiveTypes.Float64
	case "BOOLEAN":
		return arrow.FixedWidthTypes.Boolean
	case "TIMESTAMP", "TIMESTAMP_NS", "TIMESTAMP_MS", "TIMESTAMP_S", "DATE":
		return &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}
	default:
		return arrow.BinaryTypes.String
	}
}

// batchStream chunks a sql.Rows cursor into arrow records of at most
// batchSize rows. One batch is materialized at a time.
type batchStream struct {
	rows      *sql.Rows
	schema    *arrow.Schema
	batchSize int
	done      bool
}

func newBatchStream(rows *sql.Rows, schema *arrow.Schema, batchSize int) *batchStream {
	return &batchStream{rows: rows, schema: schema, batchSize: batchSize}
}

func (s *batchStream) Schema() *arrow.Schema { return s.schema }

func (s *batchStream) Next(ctx context.Context) (arrow.Record, error) {
	if s.done {
		return nil, io.EOF
	}
	builder := array.NewRecordBuilder(memory.DefaultAllocator, s.schema)
	defer builder.Release()

	ncols := s.schema.NumFields()
	values := make([]any, ncols)
	ptrs := make([]any, ncols)
	for i := range values {
		ptrs[i] = &values[i]
	}

	n := 0
	for n < s.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.rows.Next() {
			s.done = true
			if err := s.rows.Err(); err != nil {
				return nil, fmt.Errorf("stream rows: %w", err)
			}
			break
		}
		if err := s.rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i := 0; i < ncols; i++ {
			if err := appendValue(builder.Field(i), values[i]); err != nil {
				return nil, fmt.Errorf("column %s: %w", s.schema.Field(i).Name, err)
			}
		}
		n++
	}
	if n == 0 {
		return nil, io.EOF
	}
	return builder.NewRecord(), nil
}

func (s *batchStream) Close() error {
	s.done = true
	return s.rows.Close()
}

func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch bld := b.(type) {
	case *array.Int64Builder:
		switch x := v.(type) {
		case int64:
			bld.Append(x)
		case int32:
			bld.Append(int64(x))
		case int:
			bld.Append(int64(x))
		case uint64:
			bld.Append(int64(x))
		case float64:
			bld.Append(int64(x))
		case *big.Int:
			// HUGEINT, e.g. SUM over BIGINT.
			bld.Append(x.Int64())
		default:
			return fmt.Errorf("unexpected int value %T", v)
		}
	case *array.Float64Builder:
		switch x := v.(type) {
		case float64:
			bld.Append(x)
		case float32:
			bld.Append(float64(x))
		case int64:
			bld.Append(float64(x))
		default:
			return fmt.Errorf("unexpected float value %T", v)
		}
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return fmt.Errorf("unexpected bool value %T", v)
		}
		bld.Append(x)
	case *array.TimestampBuilder:
		switch x := v.(type) {
		case time.Time:
			bld.Append(arrow.Timestamp(x.UnixNano()))
		case int64:
			bld.Append(arrow.Timestamp(x))
		default:
			return fmt.Errorf("unexpected timestamp value %T", v)
		}
	case *array.StringBuilder:
		switch x := v.(type) {
		case string:
			bld.Append(x)
		case []byte:
			bld.Append(string(x))
		default:
			bld.Append(fmt.Sprint(x))
		}
	default:
		return fmt.Errorf("unsupported builder %T", b)
	}
	return nil
}
