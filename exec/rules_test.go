package exec

import (
	"context"
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievedb/sieve/core"
)

type stubTable struct {
	stats *core.TableStats
}

func (s *stubTable) Schema() *arrow.Schema { return nil }

func (s *stubTable) Scan(context.Context) (core.ScanSpec, error) {
	return core.ScanSpec{}, nil
}

func (s *stubTable) Statistics() *core.TableStats { return s.stats }

func TestJoinReorderSwapsSmallerToRight(t *testing.T) {
	tables := map[string]core.TableProvider{
		"small": &stubTable{stats: &core.TableStats{Rows: 10}},
		"big":   &stubTable{stats: &core.TableStats{Rows: 1000}},
	}

	out, err := JoinReorderRule{}.Rewrite(
		"SELECT * FROM small JOIN big ON small.id = big.id", tables)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM big JOIN small ON small.id = big.id", out)
}

func TestJoinReorderKeepsOrderWhenRightIsSmaller(t *testing.T) {
	tables := map[string]core.TableProvider{
		"small": &stubTable{stats: &core.TableStats{Rows: 10}},
		"big":   &stubTable{stats: &core.TableStats{Rows: 1000}},
	}

	in := "SELECT * FROM big JOIN small ON big.id = small.id"
	out, err := JoinReorderRule{}.Rewrite(in, tables)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestJoinReorderSkipsWithoutStatistics(t *testing.T) {
	tables := map[string]core.TableProvider{
		"a": &stubTable{stats: &core.TableStats{Rows: 1}},
		"b": &stubTable{},
	}

	in := "SELECT * FROM a JOIN b ON a.id = b.id"
	out, err := JoinReorderRule{}.Rewrite(in, tables)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestJoinReorderIgnoresUnregisteredNames(t *testing.T) {
	in := "SELECT * FROM x JOIN y ON x.id = y.id"
	out, err := JoinReorderRule{}.Rewrite(in, map[string]core.TableProvider{})
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
