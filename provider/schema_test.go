package provider

import (
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/stretchr/testify/assert"
)

func logSchema(tsNullable bool) *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "_timestamp", Type: arrow.PrimitiveTypes.Int64, Nullable: tsNullable},
		{Name: "level", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "message", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}

func TestSchemaKeyStable(t *testing.T) {
	a := SchemaKey(logSchema(false))
	b := SchemaKey(logSchema(false))
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestSchemaKeySensitivity(t *testing.T) {
	base := SchemaKey(logSchema(false))

	// Nullability participates in the fingerprint.
	assert.NotEqual(t, base, SchemaKey(logSchema(true)))

	// So do field names and types.
	renamed := arrow.NewSchema([]arrow.Field{
		{Name: "_timestamp", Type: arrow.PrimitiveTypes.Int64},
		{Name: "severity", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "message", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	assert.NotEqual(t, base, SchemaKey(renamed))

	retyped := arrow.NewSchema([]arrow.Field{
		{Name: "_timestamp", Type: arrow.PrimitiveTypes.Float64},
		{Name: "level", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "message", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	assert.NotEqual(t, base, SchemaKey(retyped))
}

func TestNormalizeTimestampRewritesNullable(t *testing.T) {
	in := arrow.NewSchema([]arrow.Field{
		{Name: "_timestamp", Type: &arrow.TimestampType{Unit: arrow.Microsecond}, Nullable: true},
		{Name: "message", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	out := NormalizeTimestamp(in, "_timestamp")
	ts := out.Field(0)
	assert.Equal(t, "_timestamp", ts.Name)
	assert.Equal(t, arrow.PrimitiveTypes.Int64, ts.Type)
	assert.False(t, ts.Nullable)

	// Other fields pass through untouched.
	assert.Equal(t, in.Field(1), out.Field(1))
}

func TestNormalizeTimestampNoopCases(t *testing.T) {
	nonNull := logSchema(false)
	assert.Same(t, nonNull, NormalizeTimestamp(nonNull, "_timestamp"))

	missing := logSchema(true)
	assert.Same(t, missing, NormalizeTimestamp(missing, "no_such_column"))
}
