package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"

	"github.com/sievedb/sieve/compact"
	"github.com/sievedb/sieve/config"
	"github.com/sievedb/sieve/core"
	"github.com/sievedb/sieve/exec"
	"github.com/sievedb/sieve/fabric"
	"github.com/sievedb/sieve/provider"
)

func main() {
	configFlag := flag.String("config", "", "Path to a config file")
	queryFlag := flag.String("query", "", "Execute a single query against the input files, registered as table tbl")
	compactFlag := flag.Bool("compact", false, "Compact the input files into one output file")
	filesFlag := flag.String("files", "", "Comma-separated list of input parquet files")
	streamFlag := flag.String("stream", "default", "Stream name")
	typeFlag := flag.String("type", string(core.StreamLogs), "Stream type")
	outFlag := flag.String("out", "compacted.parquet", "Compaction output path")
	flag.Parse()

	if err := config.InitConfig(*configFlag); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	ctx := core.WithDefaultLogger(context.Background(), "main")

	if *filesFlag == "" || (*queryFlag == "" && !*compactFlag) {
		flag.Usage()
		os.Exit(2)
	}
	inputs := strings.Split(*filesFlag, ",")

	var err error
	if *queryFlag != "" {
		err = runQuery(ctx, inputs, *queryFlag)
	} else {
		err = runCompact(ctx, inputs, core.StreamType(*typeFlag), *streamFlag, *outFlag)
	}
	if err != nil {
		core.Errorf(ctx, "%v", err)
		os.Exit(1)
	}
}

// stage copies the input files into the scratch tier and returns a session
// addressing them. Scratch listings discover their files from the store, so
// no explicit file list is carried.
func stage(ctx context.Context, inputs []string) (*core.Session, error) {
	session := core.NewSession(core.StorageTmpfs, "", 0)
	store := fabric.NewTmpfsStore(config.Config.TmpDir)
	for _, in := range inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", in, err)
		}
		p := session.ID + "/" + filepath.Base(in)
		if err := store.Put(ctx, p, data); err != nil {
			return nil, fmt.Errorf("stage %s: %w", in, err)
		}
	}
	return session, nil
}

// minimalSchema covers registration when the inputs' real schema is unknown;
// the scan derives the full column set with union-by-name.
func minimalSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: config.Config.TimestampColumn, Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	}, nil)
}

func runQuery(ctx context.Context, inputs []string, query string) error {
	session, err := stage(ctx, inputs)
	if err != nil {
		return err
	}

	ec, err := exec.RegisterTable(ctx, session, minimalSchema(), "tbl", nil, nil, []provider.SortField{
		{Column: config.Config.TimestampColumn, Descending: true},
	})
	if err != nil {
		return err
	}
	defer ec.Close()

	stream, err := ec.Query(ctx, query)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		rec, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := array.RecordToJSON(rec, os.Stdout); err != nil {
			rec.Release()
			return err
		}
		rec.Release()
	}
	return nil
}

func runCompact(ctx context.Context, inputs []string, streamType core.StreamType, streamName, out string) error {
	session, err := stage(ctx, inputs)
	if err != nil {
		return err
	}

	ec, err := exec.PrepareContext(ctx, "", nil, true, 0)
	if err != nil {
		return err
	}
	defer ec.Close()

	schema := minimalSchema()
	tbl, err := exec.CreateSegmentTable(ctx, ec, session, schema, nil, nil, true, ec.StatsCache(), "", nil)
	if err != nil {
		return err
	}
	defer tbl.Close()

	realized, buf, err := compact.MergeSegmentFiles(ctx, streamType, streamName, schema,
		[]core.TableProvider{tbl}, nil, &core.FileMeta{})
	if err != nil {
		return err
	}

	if err := os.WriteFile(out, buf, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	core.Infof(ctx, "compacted %d files into %s (%d bytes, %d columns)",
		len(inputs), out, len(buf), realized.NumFields())
	return nil
}
