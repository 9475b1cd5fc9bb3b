package duckdb

import (
	"context"
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievedb/sieve/core"
)

type fixedProvider struct {
	spec core.ScanSpec
}

func (p *fixedProvider) Schema() *arrow.Schema { return nil }

func (p *fixedProvider) Scan(context.Context) (core.ScanSpec, error) {
	return p.spec, nil
}

func (p *fixedProvider) Statistics() *core.TableStats { return nil }

type fixedUnion struct {
	fixedProvider
	children []core.TableProvider
}

func (p *fixedUnion) Children() []core.TableProvider { return p.children }

func TestScanSelect(t *testing.T) {
	sel, err := scanSelect(core.ScanSpec{Files: []string{"/tmp/a.parquet", "/tmp/b.parquet"}})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM read_parquet(['/tmp/a.parquet', '/tmp/b.parquet'], union_by_name=true)",
		sel)
}

func TestScanSelectConditionAndProjection(t *testing.T) {
	sel, err := scanSelect(core.ScanSpec{
		Files:      []string{"/tmp/a.parquet"},
		Condition:  "level = 'error'",
		Projection: "* REPLACE (CAST(count AS BIGINT) AS count)",
	})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * REPLACE (CAST(count AS BIGINT) AS count) FROM read_parquet(['/tmp/a.parquet'], union_by_name=true) WHERE level = 'error'",
		sel)
}

func TestScanSelectQuotesPaths(t *testing.T) {
	sel, err := scanSelect(core.ScanSpec{Files: []string{"/tmp/o'brien.parquet"}})
	require.NoError(t, err)
	assert.Contains(t, sel, "'/tmp/o''brien.parquet'")
}

func TestScanSelectEmptyFileSet(t *testing.T) {
	_, err := scanSelect(core.ScanSpec{})
	require.Error(t, err)
}

func TestCompileRewritesTableNames(t *testing.T) {
	e := &Engine{}
	tables := map[string]core.TableProvider{
		"tbl": &fixedProvider{spec: core.ScanSpec{Files: []string{"/d/a.parquet"}}},
	}

	plan, err := e.Compile(context.Background(),
		"SELECT * FROM tbl ORDER BY _timestamp DESC", tables)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM (SELECT * FROM read_parquet(['/d/a.parquet'], union_by_name=true)) ORDER BY _timestamp DESC",
		plan.SQL())
}

func TestCompileLeavesPrefixedIdentifiersAlone(t *testing.T) {
	e := &Engine{}
	tables := map[string]core.TableProvider{
		"tbl": &fixedProvider{spec: core.ScanSpec{Files: []string{"/d/a.parquet"}}},
	}

	plan, err := e.Compile(context.Background(), "SELECT mytbl.x FROM tbl", tables)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL(), "mytbl.x")
}

func TestCompileLongestNameFirst(t *testing.T) {
	e := &Engine{}
	tables := map[string]core.TableProvider{
		"tbl":       &fixedProvider{spec: core.ScanSpec{Files: []string{"/d/a.parquet"}}},
		"tbl_index": &fixedProvider{spec: core.ScanSpec{Files: []string{"/d/idx.parquet"}}},
	}

	plan, err := e.Compile(context.Background(),
		"SELECT * FROM tbl JOIN tbl_index ON true", tables)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL(), "/d/a.parquet")
	assert.Contains(t, plan.SQL(), "/d/idx.parquet")
	assert.NotContains(t, plan.SQL(), "tbl_index")
}

func TestCompileUnionByName(t *testing.T) {
	e := &Engine{}
	u := &fixedUnion{children: []core.TableProvider{
		&fixedProvider{spec: core.ScanSpec{Files: []string{"/d/gen1.parquet"}}},
		&fixedProvider{spec: core.ScanSpec{Files: []string{"/d/gen2.parquet"}}},
	}}

	plan, err := e.Compile(context.Background(),
		"SELECT count(*) FROM tbl", map[string]core.TableProvider{"tbl": u})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT count(*) FROM (SELECT * FROM read_parquet(['/d/gen1.parquet'], union_by_name=true) UNION ALL BY NAME SELECT * FROM read_parquet(['/d/gen2.parquet'], union_by_name=true))",
		plan.SQL())
}
