// Package exec builds per-request execution contexts: session configuration,
// memory pool, storage fabric, function registry and the embedded engine,
// plus the table-registration entry points the search and compaction paths
// share.
package exec

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/apache/arrow/go/v14/arrow"

	"github.com/sievedb/sieve/config"
	"github.com/sievedb/sieve/core"
	"github.com/sievedb/sieve/engine/duckdb"
	"github.com/sievedb/sieve/fabric"
	"github.com/sievedb/sieve/metrics"
	"github.com/sievedb/sieve/provider"
)

const (
	// BatchSize is the fixed row count of one result batch.
	BatchSize = 8192
	// MinMemoryBytes floors every context's memory ceiling at 256 MiB.
	MinMemoryBytes = 256 << 20
	// MinPartitions is the hard floor applied when partition resolution
	// still yields zero.
	MinPartitions = 2
)

// SessionConfig is the resolved per-context configuration.
type SessionConfig struct {
	BatchSize             int
	TargetPartitions      int
	InformationSchema     bool
	ListingRecurseSubdirs bool
	Dialect               string
	BloomFilterOnRead     bool
	// SplitFileGroupsByStatistics lets the planner partition files by
	// their time statistics; only sound when output is time-sorted.
	SplitFileGroupsByStatistics bool
	// SkipAggregateSchemaCheck trusts the planner's own schema
	// derivation for aggregates over the input schema.
	SkipAggregateSchemaCheck bool
}

func resolveTargetPartitions(n int) int {
	cfg := config.Config
	if n == 0 {
		n = cfg.EffectiveWorkers()
	} else {
		n = max(cfg.MinPartitions, n)
	}
	if n == 0 {
		n = MinPartitions
	}
	return n
}

// NewSessionConfig builds the session configuration from the sortedness
// assertion and requested parallelism.
func NewSessionConfig(sortedByTime bool, targetPartitions int) SessionConfig {
	cfg := config.Config
	bloom := false
	if cfg.BloomFilterEnabled {
		bloom = true
	}
	if cfg.BloomFilterDisabledOnSearch {
		// The force-disable switch wins over enable.
		bloom = false
	}
	return SessionConfig{
		BatchSize:                   BatchSize,
		TargetPartitions:            resolveTargetPartitions(targetPartitions),
		InformationSchema:           true,
		ListingRecurseSubdirs:       false,
		Dialect:                     "postgresql",
		BloomFilterOnRead:           bloom,
		SplitFileGroupsByStatistics: sortedByTime,
		SkipAggregateSchemaCheck:    true,
	}
}

// Context is one request's execution context. Created at request start,
// torn down at request end, never shared across concurrent requests.
type Context struct {
	cfg        SessionConfig
	pool       MemoryPool
	stores     *fabric.Registry
	statsCache *fabric.StatsCache
	engine     core.Engine
	funcs      *FunctionRegistry
	rules      []RewriteRule

	mu      sync.Mutex
	tables  map[string]core.TableProvider
	owned   []io.Closer
	session *core.Session
}

// PrepareContext constructs a ready-to-query execution context. The
// workgroup, when set, scales the partition count and memory ceiling by the
// tenant's live allowance before the floors apply.
func PrepareContext(ctx context.Context, workGroup string, rules []RewriteRule, sortedByTime bool, targetPartitions int) (*Context, error) {
	cfg := config.Config

	partitions, memory, err := ApplyWorkGroupLimits(ctx, workGroup, targetPartitions, cfg.MemoryLimitBytes)
	if err != nil {
		return nil, err
	}
	sc := NewSessionConfig(sortedByTime, partitions)

	strategy, err := ParsePoolStrategy(cfg.MemoryPool)
	if err != nil {
		return nil, err
	}
	if memory < MinMemoryBytes {
		memory = MinMemoryBytes
	}
	pool := NewMemoryPool(strategy, memory)

	stores := fabric.NewRegistry()
	stores.Register(fabric.NewMemoryStore())
	stores.Register(fabric.NewWalStore(cfg.WalDir))
	stores.Register(fabric.NewTmpfsStore(cfg.TmpDir))
	if cfg.S3Bucket != "" {
		s3, err := fabric.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region)
		if err != nil {
			return nil, err
		}
		stores.Register(s3)
	}

	eng, err := duckdb.New(sc.BatchSize)
	if err != nil {
		return nil, err
	}

	stmts := []string{
		fmt.Sprintf("SET threads TO %d", sc.TargetPartitions),
	}
	if strategy != PoolNone {
		stmts = append(stmts, fmt.Sprintf("SET memory_limit = '%dMB'", memory>>20))
	}
	if cfg.FeatureJoinMatchOne {
		// Alternative join matching prefers range joins over hash joins
		// for inequality predicates.
		stmts = append(stmts, "SET prefer_range_joins TO true")
	}
	for _, s := range stmts {
		if err := eng.Exec(ctx, s); err != nil {
			eng.Close()
			return nil, err
		}
	}

	funcs := NewFunctionRegistry()
	for _, f := range builtinFunctions() {
		if err := funcs.Register(f); err != nil {
			eng.Close()
			return nil, err
		}
		if f.DDL == "" {
			continue
		}
		if err := eng.Exec(ctx, f.DDL); err != nil {
			eng.Close()
			return nil, err
		}
	}

	ec := &Context{
		cfg:        sc,
		pool:       pool,
		stores:     stores,
		statsCache: fabric.GlobalStatsCache(cfg.FileStatCacheMaxEntries),
		engine:     eng,
		funcs:      funcs,
		tables:     make(map[string]core.TableProvider),
	}
	if len(rules) > 0 {
		ec.rules = append(append([]RewriteRule{}, rules...), JoinReorderRule{})
	}
	return ec, nil
}

func (c *Context) Config() SessionConfig          { return c.cfg }
func (c *Context) Pool() MemoryPool               { return c.pool }
func (c *Context) Stores() *fabric.Registry       { return c.stores }
func (c *Context) StatsCache() *fabric.StatsCache { return c.statsCache }
func (c *Context) Funcs() *FunctionRegistry       { return c.funcs }

// RegisterTable installs a provider under a name. Duplicate names are
// rejected.
func (c *Context) RegisterTable(name string, tp core.TableProvider) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[name]; ok {
		return fmt.Errorf("table %s already registered", name)
	}
	c.tables[name] = tp
	return nil
}

// DeregisterTable removes a provider. Provider lifecycle stays with its
// creator.
func (c *Context) DeregisterTable(name string) {
	c.mu.Lock()
	delete(c.tables, name)
	c.mu.Unlock()
}

func (c *Context) snapshotTables() map[string]core.TableProvider {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]core.TableProvider, len(c.tables))
	for k, v := range c.tables {
		out[k] = v
	}
	return out
}

// Query plans and executes a statement against the registered tables,
// returning a memory-admitted batch stream.
func (c *Context) Query(ctx context.Context, sqlText string) (core.BatchStream, error) {
	start := time.Now()
	tables := c.snapshotTables()

	rewritten := sqlText
	for _, r := range c.rules {
		var err error
		rewritten, err = r.Rewrite(rewritten, tables)
		if err != nil {
			metrics.QueriesTotal.WithLabelValues("planning_error").Inc()
			return nil, fmt.Errorf("%w: rule %s: %v", core.ErrPlanning, r.Name(), err)
		}
	}

	plan, err := c.engine.Compile(ctx, rewritten, tables)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("planning_error").Inc()
		core.Errorf(ctx, "plan compilation failed: %v", err)
		return nil, fmt.Errorf("%w: %v", core.ErrPlanning, err)
	}
	core.Debugf(ctx, "compiled plan: %s", plan.SQL())

	stream, err := c.engine.Execute(ctx, plan)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("execution_error").Inc()
		core.Errorf(ctx, "plan execution failed: %v", err)
		return nil, fmt.Errorf("%w: %v", core.ErrExecution, err)
	}
	metrics.QueriesTotal.WithLabelValues("ok").Inc()
	metrics.QueryDuration.Observe(time.Since(start).Seconds())
	ps := &pooledStream{inner: stream, pool: c.pool}
	if fp, ok := c.pool.(*fairSpillPool); ok {
		fp.RegisterSpiller(ps)
	}
	return ps, nil
}

// Close tears the context down: engine, owned tables and any staged file
// lists of the owning session.
func (c *Context) Close() error {
	c.mu.Lock()
	owned := c.owned
	c.owned = nil
	c.tables = make(map[string]core.TableProvider)
	session := c.session
	c.mu.Unlock()

	var first error
	for _, cl := range owned {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	if session != nil {
		fabric.ClearSession(context.Background(), session.ID)
	}
	if err := c.engine.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// RegisterTable builds a context sized for the session, creates the segment
// table and registers it under tableName. The sort key asserts time
// sortedness only for a single descending sort on the time column.
func RegisterTable(ctx context.Context, session *core.Session, schema *arrow.Schema, tableName string, files []core.SegmentFileKey, rules map[string]string, sortKey []provider.SortField) (*Context, error) {
	cfg := config.Config
	sortedByTime := len(sortKey) == 1 &&
		sortKey[0].Column == cfg.TimestampColumn && sortKey[0].Descending

	ec, err := PrepareContext(ctx, session.WorkGroup, nil, sortedByTime, session.TargetPartitions)
	if err != nil {
		return nil, err
	}

	tbl, err := CreateSegmentTable(ctx, ec, session, schema, files, rules, sortedByTime, ec.StatsCache(), "", nil)
	if err != nil {
		ec.Close()
		return nil, err
	}
	if err := ec.RegisterTable(tableName, tbl); err != nil {
		tbl.Close()
		ec.Close()
		return nil, err
	}

	ec.mu.Lock()
	ec.owned = append(ec.owned, tbl)
	ec.session = session
	ec.mu.Unlock()
	return ec, nil
}

// CreateSegmentTable turns a session's file set into a listing table:
// partition sizing through the governor, staging into the fabric, timestamp
// normalization and planner hints.
func CreateSegmentTable(ctx context.Context, ec *Context, session *core.Session, schema *arrow.Schema, files []core.SegmentFileKey, rules map[string]string, sortedByTime bool, statsCache *fabric.StatsCache, indexCondition string, fastFields []string) (*provider.ListingTable, error) {
	cfg := config.Config

	target := session.TargetPartitions
	if target == 0 {
		target = cfg.EffectiveWorkers()
	} else {
		target = max(cfg.MinPartitions, target)
	}
	// The governor sizes this listing independently of the execution
	// context; its memory output is not used here.
	target, _, err := ApplyWorkGroupLimits(ctx, session.WorkGroup, target, 0)
	if err != nil {
		return nil, err
	}
	if target == 0 {
		target = MinPartitions
	}

	opts := provider.ListingOptions{
		Extension:        provider.ParquetExt,
		TargetPartitions: target,
		CollectStats:     true,
	}
	if sortedByTime {
		opts.SortOrder = []provider.SortField{{
			Column:     cfg.TimestampColumn,
			Descending: true,
			NullsFirst: false,
		}}
	}

	schemaKey := provider.SchemaKey(schema)
	prefix, err := fabric.Prefix(session.StorageType, session.ID, schemaKey)
	if err != nil {
		return nil, err
	}
	if session.StorageType == core.StorageMemory || session.StorageType == core.StorageWal {
		if err := fabric.Stage(ctx, ec.Stores(), session.StorageType, session.ID, schemaKey, files); err != nil {
			return nil, err
		}
	}
	store, err := ec.Stores().ResolveKind(session.StorageType)
	if err != nil {
		return nil, err
	}

	schema = provider.NormalizeTimestamp(schema, cfg.TimestampColumn)

	tbl, err := provider.NewListingTable(provider.ListingConfig{
		SessionID: session.ID,
		Storage:   session.StorageType,
		SchemaKey: schemaKey,
		Prefix:    prefix,
		Store:     store,
		Schema:    schema,
		Options:   opts,
	}, rules, indexCondition, fastFields)
	if err != nil {
		return nil, err
	}
	// Scratch-tier files are single-use; caching their statistics only
	// churns the shared cache.
	if session.StorageType != core.StorageTmpfs && statsCache != nil {
		tbl = tbl.WithCache(statsCache)
	}
	return tbl, nil
}

// pooledStream admission-controls batches against the context's memory
// pool: each batch's bytes stay reserved until the next one is pulled. On a
// fair pool the stream also acts as a spill consumer: an overcommitting
// reservation elsewhere in the context may take over accounting for the
// current batch.
type pooledStream struct {
	inner core.BatchStream
	pool  MemoryPool

	mu       sync.Mutex
	reserved int64
}

func (s *pooledStream) Schema() *arrow.Schema { return s.inner.Schema() }

func (s *pooledStream) Next(ctx context.Context) (arrow.Record, error) {
	s.release()
	rec, err := s.inner.Next(ctx)
	if err != nil {
		return nil, err
	}
	n := recordBytes(rec)
	if err := s.pool.Reserve(n); err != nil {
		rec.Release()
		return nil, err
	}
	s.mu.Lock()
	s.reserved = n
	s.mu.Unlock()
	return rec, nil
}

func (s *pooledStream) Close() error {
	s.release()
	return s.inner.Close()
}

// Spill hands the current batch's reservation back to the pool. The batch
// itself stays with its consumer; only the accounting moves.
func (s *pooledStream) Spill() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.reserved
	s.reserved = 0
	return n
}

func (s *pooledStream) release() {
	s.mu.Lock()
	n := s.reserved
	s.reserved = 0
	s.mu.Unlock()
	if n > 0 {
		s.pool.Release(n)
	}
}

func recordBytes(rec arrow.Record) int64 {
	var n int64
	for i := 0; i < int(rec.NumCols()); i++ {
		for _, buf := range rec.Column(i).Data().Buffers() {
			if buf != nil {
				n += int64(buf.Len())
			}
		}
	}
	return n
}
