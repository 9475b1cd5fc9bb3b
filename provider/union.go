package provider

import (
	"context"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"

	"github.com/sievedb/sieve/core"
)

// UnionTable presents providers from different schema generations as one
// relation. The output schema is the caller-supplied merged schema; column
// reconciliation happens in the engine's union-by-name scan.
type UnionTable struct {
	schema   *arrow.Schema
	children []core.TableProvider
}

// NewUnionTable builds a union over one provider per schema generation.
func NewUnionTable(schema *arrow.Schema, children []core.TableProvider) (*UnionTable, error) {
	if schema == nil {
		return nil, fmt.Errorf("union table: schema is required")
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("union table: at least one provider is required")
	}
	return &UnionTable{schema: schema, children: children}, nil
}

func (t *UnionTable) Schema() *arrow.Schema { return t.schema }

// Children exposes the per-generation providers so the engine can plan a
// by-name union instead of one flat scan.
func (t *UnionTable) Children() []core.TableProvider { return t.children }

// Scan concatenates the children's file sets in child order. Children carry
// no per-branch filters: a pushed-down condition cannot be scoped to one
// branch of a merged scan.
func (t *UnionTable) Scan(ctx context.Context) (core.ScanSpec, error) {
	var spec core.ScanSpec
	for _, c := range t.children {
		child, err := c.Scan(ctx)
		if err != nil {
			return core.ScanSpec{}, err
		}
		if child.Condition != "" {
			return core.ScanSpec{}, fmt.Errorf("union table: child providers must not carry row filters")
		}
		spec.Files = append(spec.Files, child.Files...)
	}
	return spec, nil
}

func (t *UnionTable) Statistics() *core.TableStats {
	var agg *core.TableStats
	for _, c := range t.children {
		st := c.Statistics()
		if st == nil {
			continue
		}
		if agg == nil {
			agg = &core.TableStats{MinTS: st.MinTS, MaxTS: st.MaxTS}
		}
		agg.Rows += st.Rows
		agg.Bytes += st.Bytes
		if st.MinTS < agg.MinTS {
			agg.MinTS = st.MinTS
		}
		if st.MaxTS > agg.MaxTS {
			agg.MaxTS = st.MaxTS
		}
	}
	return agg
}

// Close releases any child scratch files.
func (t *UnionTable) Close() error {
	var first error
	for _, c := range t.children {
		if cl, ok := c.(interface{ Close() error }); ok {
			if err := cl.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
