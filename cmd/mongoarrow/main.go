package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mongoarrow/pkg/config"
	"github.com/ajitpratap0/mongoarrow/pkg/errors"
	"github.com/ajitpratap0/mongoarrow/pkg/logger"
	"github.com/ajitpratap0/mongoarrow/pkg/observability"
)

var version = "0.1.0"

// app carries the resolved configuration between the root command and its
// subcommands.
type app struct {
	v           *viper.Viper
	configFile  string
	metricsFile string
	cfg         *config.Config
	log         *zap.Logger
	shutdown    func(context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "mongoarrow",
		Short: "Move data between MongoDB and Apache Arrow",
		Long: `mongoarrow runs MongoDB queries shaped by a typed schema and writes the
results as Arrow IPC files or extended JSON lines, and bulk-inserts Arrow
files back into a collection.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "Path to a YAML configuration file")
	pf.String("uri", "", "MongoDB connection string")
	pf.String("db", "", "Database name")
	pf.String("collection", "", "Collection name")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.Bool("trace", false, "Print OpenTelemetry spans to stderr")
	pf.StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	bindFlags(a.v, root, map[string]string{
		"mongo.uri":        "uri",
		"mongo.database":   "db",
		"mongo.collection": "collection",
		"log.level":        "log-level",
		"trace.enabled":    "trace",
	}, true)

	root.AddCommand(
		newVersionCommand(),
		newSchemaCommand(),
		newFindCommand(a),
		newAggregateCommand(a),
		newWriteCommand(a),
	)
	return root
}

// bindFlags binds config keys to flag names on cmd's persistent or local
// flags. Annotations on subcommands use the same key to flag name layout.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string, persistent bool) {
	flags := cmd.Flags()
	if persistent {
		flags = cmd.PersistentFlags()
	}
	for key, name := range keys {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	if cmd.Name() == "version" || cmd.Name() == "schema" {
		return nil
	}
	// local flags are bound per run; find and aggregate share config keys
	bindFlags(a.v, cmd, cmd.Annotations, false)
	cfg, err := config.Resolve(a.configFile, a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		Encoding:    cfg.Log.Encoding,
	}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "initializing logger")
	}
	a.log = logger.Named("cli").With(zap.String("command", cmd.Name()))

	if cfg.Trace.Enabled {
		tc := observability.DefaultTracingConfig()
		tc.ServiceVersion = version
		tc.SamplingRate = cfg.Trace.SamplingRate
		a.shutdown, err = observability.InitTracing(tc)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "initializing tracing")
		}
	}
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.shutdown != nil {
		if err := a.shutdown(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn("failed to flush spans", zap.Error(err))
		}
	}
	if a.metricsFile != "" {
		if err := prometheus.WriteToTextfile(a.metricsFile, prometheus.DefaultGatherer); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "writing metrics file")
		}
	}
	_ = logger.Sync()
	return nil
}

// collection connects to the configured deployment. The returned function
// disconnects the client.
func (a *app) collection(ctx context.Context) (*mongo.Collection, func(), error) {
	if err := a.cfg.RequireCollection(); err != nil {
		return nil, nil, err
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(a.cfg.Mongo.URI))
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to MongoDB")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to ping MongoDB")
	}
	a.log.Debug("connected to MongoDB", zap.String("namespace", a.cfg.Namespace()))

	coll := client.Database(a.cfg.Mongo.Database).Collection(a.cfg.Mongo.Collection)
	return coll, func() {
		if err := client.Disconnect(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn("failed to disconnect", zap.Error(err))
		}
	}, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mongoarrow v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
