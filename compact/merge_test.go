package compact

import (
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/stretchr/testify/assert"

	"github.com/sievedb/sieve/config"
	"github.com/sievedb/sieve/core"
)

func withConfig(t *testing.T, mutate func(*config.Settings)) {
	t.Helper()
	prev := *config.Config
	mutate(config.Config)
	t.Cleanup(func() { *config.Config = prev })
}

func distinctSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "_timestamp", Type: arrow.PrimitiveTypes.Int64},
		{Name: "count", Type: arrow.PrimitiveTypes.Int64},
		{Name: "field_name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "field_value", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}

func TestBuildMergeSQLDefault(t *testing.T) {
	withConfig(t, func(c *config.Settings) { c.TimestampColumn = "_timestamp" })

	got := buildMergeSQL(core.StreamLogs, "app_logs", distinctSchema())
	assert.Equal(t, "SELECT * FROM tbl ORDER BY _timestamp DESC", got)
}

func TestBuildMergeSQLIndexStream(t *testing.T) {
	withConfig(t, func(c *config.Settings) { c.TimestampColumn = "_timestamp" })

	got := buildMergeSQL(core.StreamIndex, "file_list_index", distinctSchema())
	assert.Equal(t,
		"SELECT * FROM tbl WHERE file_name NOT IN (SELECT file_name FROM tbl WHERE deleted IS TRUE ORDER BY _timestamp DESC) ORDER BY _timestamp DESC",
		got)
}

func TestBuildMergeSQLDistinctValues(t *testing.T) {
	withConfig(t, func(c *config.Settings) {
		c.TimestampColumn = "_timestamp"
		c.DistinctValuesHourly = true
	})

	got := buildMergeSQL(core.StreamMetadata, "distinct_values_logs", distinctSchema())
	assert.Equal(t,
		"SELECT MIN(_timestamp) AS _timestamp, SUM(count) AS count, field_name, field_value FROM tbl GROUP BY field_name, field_value ORDER BY _timestamp DESC",
		got)
}

func TestBuildMergeSQLDistinctValuesRequiresAllGates(t *testing.T) {
	def := "SELECT * FROM tbl ORDER BY _timestamp DESC"

	// Rollup disabled.
	withConfig(t, func(c *config.Settings) {
		c.TimestampColumn = "_timestamp"
		c.DistinctValuesHourly = false
	})
	assert.Equal(t, def, buildMergeSQL(core.StreamMetadata, "distinct_values_logs", distinctSchema()))

	withConfig(t, func(c *config.Settings) {
		c.TimestampColumn = "_timestamp"
		c.DistinctValuesHourly = true
	})
	// Wrong stream type.
	assert.Equal(t, def, buildMergeSQL(core.StreamLogs, "distinct_values_logs", distinctSchema()))
	// Wrong stream name prefix.
	assert.Equal(t, def, buildMergeSQL(core.StreamMetadata, "plain_metadata", distinctSchema()))
}

func TestBuildMergeSQLCustomTimestampColumn(t *testing.T) {
	withConfig(t, func(c *config.Settings) { c.TimestampColumn = "ts" })

	got := buildMergeSQL(core.StreamMetrics, "cpu", distinctSchema())
	assert.Equal(t, "SELECT * FROM tbl ORDER BY ts DESC", got)
}
