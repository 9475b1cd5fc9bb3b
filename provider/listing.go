package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/panjf2000/ants/v2"

	"github.com/sievedb/sieve/core"
	"github.com/sievedb/sieve/fabric"
)

// ParquetExt is the canonical extension of segment files.
const ParquetExt = ".parquet"

// SortField is a file-level sort-order hint handed to the planner.
type SortField struct {
	Column     string
	Descending bool
	NullsFirst bool
}

// ListingOptions control how a registration's file set is listed.
type ListingOptions struct {
	Extension        string
	TargetPartitions int
	CollectStats     bool
	// CollectPaths keeps the scanned paths on the table for diagnostics.
	CollectPaths bool
	SortOrder    []SortField
	// TimeRange prunes files whose summary does not overlap it.
	TimeRange *core.TimeRange
}

// ListingConfig ties a listing to its storage location.
type ListingConfig struct {
	SessionID string
	Storage   core.StorageType
	SchemaKey string
	// Prefix is the fabric URL the listing addresses.
	Prefix  string
	Store   fabric.ObjectStore
	Schema  *arrow.Schema
	Options ListingOptions
}

// ListingTable presents the segment files under one fabric prefix as a
// logical table with a single schema.
type ListingTable struct {
	cfg        ListingConfig
	rules      map[string]string
	indexCond  string
	fastFields []string
	cache      *fabric.StatsCache

	mu         sync.Mutex
	scratchDir string
	paths      []string
	stats      *core.TableStats
}

// NewListingTable builds a listing table from a listing configuration plus
// pass-through planning hints: type-coercion rules, an optional row-level
// index filter and the fast-field name list.
func NewListingTable(cfg ListingConfig, rules map[string]string, indexCondition string, fastFields []string) (*ListingTable, error) {
	if cfg.Schema == nil {
		return nil, fmt.Errorf("listing table: schema is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("listing table: store is required")
	}
	if cfg.Options.Extension == "" {
		cfg.Options.Extension = ParquetExt
	}
	return &ListingTable{
		cfg:        cfg,
		rules:      rules,
		indexCond:  indexCondition,
		fastFields: fastFields,
	}, nil
}

// WithCache attaches the shared file-statistics cache.
func (t *ListingTable) WithCache(cache *fabric.StatsCache) *ListingTable {
	t.cache = cache
	return t
}

func (t *ListingTable) Schema() *arrow.Schema { return t.cfg.Schema }

// FastFields returns the column names eligible for secondary fast-field
// lookups during predicate evaluation.
func (t *ListingTable) FastFields() []string { return t.fastFields }

// Paths returns the file paths of the last scan when path collection is on.
func (t *ListingTable) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paths
}

// Scan resolves the table's file set into local parquet paths. Memory-tier
// bytes are copied into a per-table scratch directory; WAL and scratch tiers
// are read in place.
func (t *ListingTable) Scan(ctx context.Context) (core.ScanSpec, error) {
	keys, err := t.resolveKeys(ctx)
	if err != nil {
		return core.ScanSpec{}, err
	}
	keys = t.selectKeys(keys)

	locals, err := t.materialize(ctx, keys)
	if err != nil {
		return core.ScanSpec{}, err
	}

	t.mu.Lock()
	t.stats = aggregateStats(keys)
	if t.cfg.Options.CollectPaths {
		t.paths = locals
	}
	t.mu.Unlock()

	if t.cfg.Options.CollectStats && t.cache != nil {
		for _, k := range keys {
			if _, ok := t.cache.Get(k.Path); !ok {
				t.cache.Put(k.Path, fabric.FileStatistics{
					Records: k.Meta.Records,
					MinTS:   k.Meta.MinTS,
					MaxTS:   k.Meta.MaxTS,
					Size:    k.Meta.CompressedSize,
				})
			}
		}
	}

	return core.ScanSpec{
		Files:      locals,
		Condition:  t.indexCond,
		Projection: projectionFor(t.rules),
	}, nil
}

// Statistics returns the aggregated statistics of the last resolved file
// set, nil before the first scan or when collection is disabled.
func (t *ListingTable) Statistics() *core.TableStats {
	if !t.cfg.Options.CollectStats {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Close removes any scratch files materialized for this table.
func (t *ListingTable) Close() error {
	t.mu.Lock()
	dir := t.scratchDir
	t.scratchDir = ""
	t.mu.Unlock()
	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}

func (t *ListingTable) resolveKeys(ctx context.Context) ([]core.SegmentFileKey, error) {
	switch t.cfg.Storage {
	case core.StorageMemory, core.StorageWal:
		return fabric.Staged(t.cfg.SessionID, t.cfg.SchemaKey), nil
	case core.StorageTmpfs:
		paths, err := t.cfg.Store.List(ctx, t.cfg.SessionID+"/")
		if err != nil {
			return nil, fmt.Errorf("list scratch prefix %s: %w", t.cfg.SessionID, err)
		}
		keys := make([]core.SegmentFileKey, 0, len(paths))
		for _, p := range paths {
			keys = append(keys, core.SegmentFileKey{Path: p})
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("%w: storage type %q", core.ErrUnsupportedBackend, t.cfg.Storage)
	}
}

// selectKeys applies the extension filter, time-range pruning and the sort
// hint. Ordering is stable so repeated listings of one file set scan in the
// same order.
func (t *ListingTable) selectKeys(keys []core.SegmentFileKey) []core.SegmentFileKey {
	out := make([]core.SegmentFileKey, 0, len(keys))
	for _, k := range keys {
		if !strings.HasSuffix(k.Path, t.cfg.Options.Extension) {
			continue
		}
		if tr := t.cfg.Options.TimeRange; tr != nil && k.Meta.MaxTS > 0 && !tr.Overlaps(k.Meta.MinTS, k.Meta.MaxTS) {
			continue
		}
		out = append(out, k)
	}

	byTimeDesc := len(t.cfg.Options.SortOrder) == 1 && t.cfg.Options.SortOrder[0].Descending
	sort.SliceStable(out, func(i, j int) bool {
		if byTimeDesc && out[i].Meta.MaxTS != out[j].Meta.MaxTS {
			return out[i].Meta.MaxTS > out[j].Meta.MaxTS
		}
		return out[i].Path < out[j].Path
	})
	return out
}

func (t *ListingTable) materialize(ctx context.Context, keys []core.SegmentFileKey) ([]string, error) {
	locals := make([]string, len(keys))
	var pending []int
	for i, k := range keys {
		if p, ok := t.cfg.Store.Local(k.Path); ok {
			locals[i] = p
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return locals, nil
	}

	dir, err := t.scratch()
	if err != nil {
		return nil, err
	}

	workers := t.cfg.Options.TargetPartitions
	if workers <= 0 || workers > len(pending) {
		workers = len(pending)
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("materialize pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	for _, i := range pending {
		i := i
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			local, err := copyToScratch(ctx, t.cfg.Store, keys[i].Path, dir)
			if err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}
			locals[i] = local
		})
		if submitErr != nil {
			wg.Done()
			errMu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("materialize submit: %w", submitErr)
			}
			errMu.Unlock()
			break
		}
	}
	// Already-submitted copies must finish before the pool is torn down and
	// before locals is read.
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return locals, nil
}

func (t *ListingTable) scratch() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.scratchDir != "" {
		return t.scratchDir, nil
	}
	dir, err := os.MkdirTemp("", "sieve-scan-")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	t.scratchDir = dir
	return dir, nil
}

func copyToScratch(ctx context.Context, store fabric.ObjectStore, p, dir string) (string, error) {
	rc, err := store.Get(ctx, p)
	if err != nil {
		return "", fmt.Errorf("materialize %s: %w", p, err)
	}
	defer rc.Close()

	local := filepath.Join(dir, strings.ReplaceAll(strings.TrimPrefix(p, "/"), "/", "_"))
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("materialize %s: %w", p, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return "", fmt.Errorf("materialize %s: %w", p, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("materialize %s: %w", p, err)
	}
	return local, nil
}

// projectionFor renders type-coercion rules as a deterministic SELECT
// replacement list.
func projectionFor(rules map[string]string) string {
	if len(rules) == 0 {
		return ""
	}
	fields := make([]string, 0, len(rules))
	for f := range rules {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("CAST(%s AS %s) AS %s", f, rules[f], f))
	}
	return "* REPLACE (" + strings.Join(parts, ", ") + ")"
}

func aggregateStats(keys []core.SegmentFileKey) *core.TableStats {
	st := &core.TableStats{}
	for i, k := range keys {
		st.Rows += k.Meta.Records
		st.Bytes += k.Meta.CompressedSize
		if i == 0 || k.Meta.MinTS < st.MinTS {
			st.MinTS = k.Meta.MinTS
		}
		if k.Meta.MaxTS > st.MaxTS {
			st.MaxTS = k.Meta.MaxTS
		}
	}
	return st
}
