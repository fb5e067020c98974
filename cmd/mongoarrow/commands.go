package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mongoarrow/pkg/api"
	"github.com/ajitpratap0/mongoarrow/pkg/compression"
	"github.com/ajitpratap0/mongoarrow/pkg/config"
	"github.com/ajitpratap0/mongoarrow/pkg/errors"
	"github.com/ajitpratap0/mongoarrow/pkg/logger"
	"github.com/ajitpratap0/mongoarrow/pkg/materialize"
	"github.com/ajitpratap0/mongoarrow/pkg/observability"
	"github.com/ajitpratap0/mongoarrow/pkg/project"
	"github.com/ajitpratap0/mongoarrow/pkg/schema"
	"github.com/ajitpratap0/mongoarrow/pkg/table"
	"github.com/ajitpratap0/mongoarrow/pkg/writer"
)

// fieldReport is the JSON description of one schema field
type fieldReport struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Arrow string `json:"arrow"`
}

// writeReport is printed after a write, successful or not
type writeReport struct {
	Inserted    int              `json:"nInserted"`
	Batches     int              `json:"batches"`
	WriteErrors []map[string]any `json:"writeErrors,omitempty"`
	Error       string           `json:"error,omitempty"`
}

func describeSchema(s *schema.Schema) []fieldReport {
	out := make([]fieldReport, 0, s.Len())
	for _, f := range s.Fields() {
		out = append(out, fieldReport{Name: f.Name, Type: f.Type.String(), Arrow: f.Type.ArrowType().String()})
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSchemaCommand() *cobra.Command {
	var arrowFile string
	cmd := &cobra.Command{
		Use:   "schema [schema.yaml]",
		Short: "Resolve a schema file, or derive one from an Arrow file, and print it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				s   *schema.Schema
				err error
			)
			switch {
			case arrowFile != "":
				s, err = schemaFromArrowFile(arrowFile)
			case len(args) == 1:
				s, err = config.LoadSchema(args[0])
			default:
				return errors.New(errors.ErrorTypeConfig, "a schema file or --arrow is required")
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), describeSchema(s))
		},
	}
	cmd.Flags().StringVar(&arrowFile, "arrow", "", "Derive the schema from an Arrow IPC file")
	return cmd
}

func schemaFromArrowFile(path string) (*schema.Schema, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "opening arrow file")
	}
	defer f.Close()

	for rec, err := range arrowRecords(f, memory.NewGoAllocator()) {
		if err != nil {
			return nil, err
		}
		return schema.FromArrow(rec.Schema())
	}
	return nil, errors.New(errors.ErrorTypeFile, "arrow file has no records")
}

// queryFlags are shared by find and aggregate
type queryFlags struct {
	schemaFile string
	out        string
}

func (q *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&q.schemaFile, "schema", "", "Schema file mapping field names to types (required)")
	cmd.Flags().StringVarP(&q.out, "out", "o", "-", "Output file, - for stdout")
	cmd.Flags().String("format", "", "Output format: arrow or jsonl")
	cmd.Flags().String("compression", "", "Arrow body codec (zstd, lz4) or jsonl stream codec (gzip, zstd, snappy, s2, lz4)")
	_ = cmd.MarkFlagRequired("schema")
	cmd.Annotations = map[string]string{
		"output.format":      "format",
		"output.compression": "compression",
	}
}

func newFindCommand(a *app) *cobra.Command {
	var (
		q            queryFlags
		filter, sort string
		limit, skip  int64
	)
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Run a find projected to the schema and export the result",
		Example: `  mongoarrow find --db shop --collection orders --schema orders.yaml \
    --filter '{"status": "paid"}' --sort '{"_id": -1}' -o orders.arrow`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := config.LoadSchema(q.schemaFile)
			if err != nil {
				return err
			}
			f, err := parseDocument(filter)
			if err != nil {
				return err
			}
			opts := []api.QueryOption{
				api.WithNamespace(a.cfg.Namespace()),
				api.WithMaterializer(materialize.New(materialize.WithLogger(a.log))),
				api.WithLimit(limit),
				api.WithSkip(skip),
			}
			if sort != "" {
				sd, err := parseDocument(sort)
				if err != nil {
					return err
				}
				opts = append(opts, api.WithSort(sd))
			}

			ctx := cmd.Context()
			coll, closeFn, err := a.collection(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			tbl, err := api.FindArrowAll(ctx, coll, f, s, opts...)
			if err != nil {
				return err
			}
			defer tbl.Release()
			return a.export(tbl, q.out)
		},
	}
	q.register(cmd)
	cmd.Flags().StringVar(&filter, "filter", "", "Query filter as extended JSON")
	cmd.Flags().StringVar(&sort, "sort", "", "Sort document as extended JSON")
	cmd.Flags().Int64Var(&limit, "limit", 0, "Maximum documents to return")
	cmd.Flags().Int64Var(&skip, "skip", 0, "Documents to skip")
	return cmd
}

func newAggregateCommand(a *app) *cobra.Command {
	var (
		q        queryFlags
		pipeline string
	)
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Run an aggregation with a trailing $project for the schema and export the result",
		Example: `  mongoarrow aggregate --db shop --collection orders --schema totals.yaml \
    --pipeline '[{"$group": {"_id": "$customer", "total": {"$sum": "$amount"}}}]' --format jsonl`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := config.LoadSchema(q.schemaFile)
			if err != nil {
				return err
			}
			stages, err := parsePipeline(pipeline)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			coll, closeFn, err := a.collection(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			tbl, err := api.AggregateArrowAll(ctx, coll, stages, s,
				api.WithNamespace(a.cfg.Namespace()),
				api.WithMaterializer(materialize.New(materialize.WithLogger(a.log))))
			if err != nil {
				return err
			}
			defer tbl.Release()
			return a.export(tbl, q.out)
		},
	}
	q.register(cmd)
	cmd.Flags().StringVar(&pipeline, "pipeline", "[]", "Aggregation pipeline as an extended JSON array")
	return cmd
}

// export writes tbl to path in the configured output format
func (a *app) export(tbl *table.Table, path string) (err error) {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, ferr := os.Create(path) //nolint:gosec // path comes from the operator
		if ferr != nil {
			return errors.Wrap(ferr, errors.ErrorTypeFile, "creating output file")
		}
		defer func() {
			if cerr := f.Close(); err == nil && cerr != nil {
				err = errors.Wrap(cerr, errors.ErrorTypeFile, "closing output file")
			}
		}()
		w = f
	}

	out := a.cfg.Output
	switch out.Format {
	case config.FormatJSONL:
		alg, err := compression.Parse(out.Compression)
		if err != nil {
			return err
		}
		if alg == compression.None && path != "-" {
			alg = compression.FromPath(path)
		}
		if err := writeJSONLines(w, tbl, alg, nullMode(a.cfg)); err != nil {
			return err
		}
	default:
		if err := writeArrowFile(w, tbl, out.Compression, memory.DefaultAllocator); err != nil {
			return err
		}
	}
	a.log.Info("exported",
		zap.Int("rows", tbl.NumRows()),
		zap.String("format", out.Format),
		zap.String("path", path))
	return nil
}

func nullMode(cfg *config.Config) project.NullMode {
	if cfg.Write.NullMarker {
		return project.NullMarker
	}
	return project.OmitNulls
}

func newWriteCommand(a *app) *cobra.Command {
	var in, schemaFile string
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Bulk-insert an Arrow IPC file or extended JSON lines into a collection",
		Example: `  mongoarrow write --db shop --collection orders_copy --in orders.arrow
  mongoarrow write --db shop --collection orders_copy --in orders.jsonl.gz --schema orders.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			coll, closeFn, err := a.collection(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			opts := []writer.Option{writer.WithBatchSize(a.cfg.Write.BatchSize), writer.WithLogger(a.log)}
			if a.cfg.Write.NullMarker {
				opts = append(opts, writer.WithNullMarker())
			}

			var res *writer.WriteResult
			if isJSONLines(in) {
				res, err = a.writeJSONLines(ctx, coll, in, schemaFile, opts)
			} else {
				res, err = a.writeArrow(ctx, writer.New(writer.NewMongoInserter(coll), opts...), in)
			}
			return report(cmd.OutOrStdout(), res, err)
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Input file: .arrow IPC or .jsonl (optionally compressed)")
	cmd.Flags().StringVar(&schemaFile, "schema", "", "Schema file, required for JSON lines input")
	cmd.Flags().Int("batch-size", 0, "Documents per InsertMany call")
	cmd.Flags().Bool("null-marker", false, "Write null values as explicit BSON nulls")
	_ = cmd.MarkFlagRequired("in")
	cmd.Annotations = map[string]string{
		"write.batch_size":  "batch-size",
		"write.null_marker": "null-marker",
	}
	return cmd
}

// isJSONLines reports whether path names a JSON-lines file, looking past a
// trailing compression extension.
func isJSONLines(path string) bool {
	if compression.FromPath(path) != compression.None {
		path = strings.TrimSuffix(path, filepath.Ext(path))
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson", ".json":
		return true
	}
	return false
}

func (a *app) writeJSONLines(ctx context.Context, coll writer.Collection, path, schemaFile string, opts []writer.Option) (*writer.WriteResult, error) {
	if schemaFile == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "--schema is required for JSON lines input")
	}
	s, err := config.LoadSchema(schemaFile)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "opening input")
	}
	defer f.Close()

	m := materialize.New(materialize.WithLogger(a.log))
	tbl, err := m.Materialize(ctx, jsonLines(f, compression.FromPath(path)), s)
	if err != nil {
		return nil, err
	}
	defer tbl.Release()
	return api.Write(ctx, coll, tbl, opts...)
}

// writeArrow writes every record of an Arrow file, keeping row indices and
// inserted counts relative to the whole file.
func (a *app) writeArrow(ctx context.Context, b *writer.Batcher, path string) (total *writer.WriteResult, err error) {
	ctx = logger.WithOperation(ctx, "write", a.cfg.Namespace())
	ctx, span := observability.StartSpan(ctx, "write", attribute.String("mongo.namespace", a.cfg.Namespace()))
	defer func() { observability.EndSpan(span, err) }()

	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "opening input")
	}
	defer f.Close()

	total = &writer.WriteResult{}
	offset := 0
	for rec, err := range arrowRecords(f, memory.DefaultAllocator) {
		if err != nil {
			return nil, err
		}
		res, err := b.WriteRecord(ctx, rec)
		var werr *writer.ArrowWriteError
		if errors.As(err, &werr) {
			werr.NInserted += total.InsertedCount
			werr.Batch += total.Batches
			werr.Partial = werr.NInserted > 0
			for i := range werr.WriteErrors {
				werr.WriteErrors[i].Index += offset
			}
			return nil, werr
		}
		if err != nil {
			return nil, err
		}
		total.InsertedCount += res.InsertedCount
		total.Batches += res.Batches
		offset += int(rec.NumRows())
	}
	return total, nil
}

// report prints the outcome of a write and passes err through
func report(w io.Writer, res *writer.WriteResult, err error) error {
	var werr *writer.ArrowWriteError
	switch {
	case err == nil:
		return printJSON(w, writeReport{Inserted: res.InsertedCount, Batches: res.Batches})
	case errors.As(err, &werr):
		details := werr.Details()
		rep := writeReport{
			Inserted:    werr.NInserted,
			Batches:     werr.Batch,
			WriteErrors: details["writeErrors"].([]map[string]any),
		}
		if werr.Cause != nil {
			rep.Error = werr.Cause.Error()
		}
		if perr := printJSON(w, rep); perr != nil {
			return perr
		}
		return err
	default:
		return err
	}
}
