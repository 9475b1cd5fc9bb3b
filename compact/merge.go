// Package compact drives the streaming merge pipeline that rewrites many
// small segment files into one sorted, statistics-annotated output file.
package compact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/apache/arrow/go/v14/arrow"

	"github.com/sievedb/sieve/codec"
	"github.com/sievedb/sieve/config"
	"github.com/sievedb/sieve/core"
	"github.com/sievedb/sieve/exec"
	"github.com/sievedb/sieve/metrics"
	"github.com/sievedb/sieve/provider"
)

// buildMergeSQL selects the compaction query template by stream semantics.
func buildMergeSQL(streamType core.StreamType, streamName string, schema *arrow.Schema) string {
	cfg := config.Config
	ts := cfg.TimestampColumn

	if streamType == core.StreamIndex {
		// Reconcile soft-deletes during compaction: drop every row whose
		// file name appears among the most recently deleted names.
		return fmt.Sprintf(
			"SELECT * FROM tbl WHERE file_name NOT IN (SELECT file_name FROM tbl WHERE deleted IS TRUE ORDER BY %s DESC) ORDER BY %s DESC",
			ts, ts)
	}

	if cfg.DistinctValuesHourly &&
		streamType == core.StreamMetadata &&
		strings.HasPrefix(streamName, core.DistinctStreamPrefix) {
		// Collapse duplicate distinct-value observations within the
		// compaction window.
		var fields []string
		for _, f := range schema.Fields() {
			if f.Name != ts && f.Name != "count" {
				fields = append(fields, f.Name)
			}
		}
		fieldsStr := strings.Join(fields, ", ")
		return fmt.Sprintf(
			"SELECT MIN(%s) AS %s, SUM(count) AS count, %s FROM tbl GROUP BY %s ORDER BY %s DESC",
			ts, ts, fieldsStr, fieldsStr, ts)
	}

	return fmt.Sprintf("SELECT * FROM tbl ORDER BY %s DESC", ts)
}

// MergeSegmentFiles executes the compaction query over the unioned input
// providers and streams the result into one parquet buffer. It returns the
// realized output schema, which may differ from the nominal schema by
// timestamp non-nullability normalization, and the serialized bytes.
// Committing the buffer to durable storage is the caller's responsibility.
func MergeSegmentFiles(ctx context.Context, streamType core.StreamType, streamName string, schema *arrow.Schema, tables []core.TableProvider, bloomFields []string, meta *core.FileMeta) (*arrow.Schema, []byte, error) {
	start := time.Now()
	cfg := config.Config

	sqlText := buildMergeSQL(streamType, streamName, schema)
	core.Debugf(ctx, "merge segment files sql: %s", sqlText)

	realized, buf, err := runMerge(ctx, sqlText, schema, tables, bloomFields, meta, cfg.EffectiveWorkers())
	if err != nil {
		metrics.CompactionsTotal.WithLabelValues("error").Inc()
		return nil, nil, err
	}

	metrics.CompactionsTotal.WithLabelValues("ok").Inc()
	metrics.CompactionDuration.Observe(time.Since(start).Seconds())
	metrics.CompactionOutputBytes.Add(float64(len(buf)))
	core.Debugf(ctx, "merge segment files took %d ms", time.Since(start).Milliseconds())
	return realized, buf, nil
}

func runMerge(ctx context.Context, sqlText string, schema *arrow.Schema, tables []core.TableProvider, bloomFields []string, meta *core.FileMeta, workers int) (*arrow.Schema, []byte, error) {
	// Compaction output is always time-sorted.
	ec, err := exec.PrepareContext(ctx, "", nil, true, workers)
	if err != nil {
		return nil, nil, err
	}
	defer ec.Close()

	union, err := provider.NewUnionTable(schema, tables)
	if err != nil {
		return nil, nil, err
	}
	if err := ec.RegisterTable("tbl", union); err != nil {
		return nil, nil, err
	}

	stream, err := ec.Query(ctx, sqlText)
	if err != nil {
		return nil, nil, err
	}
	defer stream.Close()

	realized := stream.Schema()
	var buf bytes.Buffer
	writer, err := codec.NewWriter(&buf, realized, bloomFields, meta)
	if err != nil {
		return nil, nil, err
	}

	for {
		rec, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			core.Errorf(ctx, "merge segment files stream error: %v", err)
			return nil, nil, err
		}
		werr := writer.Write(rec)
		rec.Release()
		if werr != nil {
			core.Errorf(ctx, "merge segment files write error: %v", werr)
			return nil, nil, fmt.Errorf("%w: %v", core.ErrWrite, werr)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrWrite, err)
	}

	ec.DeregisterTable("tbl")
	return realized, buf.Bytes(), nil
}
