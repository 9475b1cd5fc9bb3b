// Package codec wraps the columnar file writer used to persist compaction
// output. Bloom-filter fields and the file-level summary travel as parquet
// key/value metadata.
package codec

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/sievedb/sieve/core"
)

// Writer streams record batches into one parquet file.
type Writer struct {
	fw   *pqarrow.FileWriter
	rows int64
}

// NewWriter opens a parquet writer for the given output schema. The file
// summary and bloom-filter field list are embedded so downstream readers
// can prune without opening row groups.
func NewWriter(w io.Writer, schema *arrow.Schema, bloomFields []string, meta *core.FileMeta) (*Writer, error) {
	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(true),
	)
	fw, err := pqarrow.NewFileWriter(schema, w, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, fmt.Errorf("open parquet writer: %w", err)
	}

	kv := map[string]string{
		"sieve:bloom_fields": strings.Join(bloomFields, ","),
	}
	if meta != nil {
		kv["sieve:records"] = strconv.FormatInt(meta.Records, 10)
		kv["sieve:min_ts"] = strconv.FormatInt(meta.MinTS, 10)
		kv["sieve:max_ts"] = strconv.FormatInt(meta.MaxTS, 10)
		kv["sieve:original_size"] = strconv.FormatInt(meta.OriginalSize, 10)
	}
	for k, v := range kv {
		if err := fw.AppendKeyValueMetadata(k, v); err != nil {
			return nil, fmt.Errorf("annotate parquet metadata %s: %w", k, err)
		}
	}
	return &Writer{fw: fw}, nil
}

// Write persists one batch.
func (w *Writer) Write(rec arrow.Record) error {
	if err := w.fw.Write(rec); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	w.rows += rec.NumRows()
	return nil
}

// Rows returns the number of rows written so far.
func (w *Writer) Rows() int64 { return w.rows }

// Close flushes the footer and statistics.
func (w *Writer) Close() error {
	if err := w.fw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
