package provider

import (
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/cespare/xxhash/v2"
)

// SchemaKey fingerprints a schema's ordered (name, type, nullable) triples.
// Files sharing a key are interchangeable within one registration; files
// with differing keys take the union path.
func SchemaKey(schema *arrow.Schema) string {
	h := xxhash.New()
	for _, f := range schema.Fields() {
		h.WriteString(f.Name)
		h.WriteString(":")
		h.WriteString(f.Type.String())
		if f.Nullable {
			h.WriteString(":1;")
		} else {
			h.WriteString(":0;")
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// NormalizeTimestamp rewrites a nullable time column to non-nullable Int64.
// Compacted and queried time values are never null even when an upstream
// schema historically allowed it.
func NormalizeTimestamp(schema *arrow.Schema, tsColumn string) *arrow.Schema {
	idx := schema.FieldIndices(tsColumn)
	if len(idx) == 0 || !schema.Field(idx[0]).Nullable {
		return schema
	}
	fields := make([]arrow.Field, schema.NumFields())
	for i := 0; i < schema.NumFields(); i++ {
		f := schema.Field(i)
		if f.Name == tsColumn {
			f = arrow.Field{Name: tsColumn, Type: arrow.PrimitiveTypes.Int64, Nullable: false}
		}
		fields[i] = f
	}
	md := schema.Metadata()
	return arrow.NewSchema(fields, &md)
}
