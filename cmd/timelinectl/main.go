// Command timelinectl replays timeline scenarios and manages subject
// snapshots.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"timelines/internal/config"
	"timelines/internal/core"
	"timelines/pkg/domain"
	"timelines/pkg/timeline"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries the state shared by every subcommand of one invocation.
type app struct {
	configPath string
	logFormat  string
	policy     string
	tracing    string

	cfg      config.Config
	logger   *slog.Logger
	metrics  core.MetricsRecorder
	tracer   core.Tracer
	registry *prometheus.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "timelinectl",
		Short:        "Inspect and maintain effective-dated timelines",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.reportMetrics()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	root.PersistentFlags().StringVar(&a.policy, "policy", "", "timeline policy: period-of-existence or perpetual")
	root.PersistentFlags().StringVar(&a.tracing, "tracing", "", "span exporter: otel, json (stderr) or none")

	root.AddCommand(
		newReplayCmd(a),
		newGapsCmd(a),
		newAsOfCmd(a),
		newExportCmd(a),
		newRestoreCmd(a),
		newLatestCmd(a),
	)
	return root
}

func (a *app) setup(stderr io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.policy != "" {
		cfg.Policy = a.policy
	}
	if a.tracing != "" {
		cfg.Tracing = a.tracing
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(stderr, cfg.Log)

	switch cfg.Metrics {
	case "prometheus":
		a.registry = prometheus.NewRegistry()
		a.metrics = core.NewPrometheusMetricsRecorder(a.registry)
	case "expvar":
		a.metrics = core.NewExpvarMetricsRecorder("")
	default:
		a.metrics = nil
	}

	switch cfg.Tracing {
	case "json":
		a.tracer = core.NewJSONTracer(stderr)
	case "otel":
		a.tracer = core.NewOTelTracer(nil)
	default:
		a.tracer = nil
	}
	return nil
}

// reportMetrics logs what the metrics backend collected during the run.
func (a *app) reportMetrics() {
	switch m := a.metrics.(type) {
	case *core.ExpvarMetricsRecorder:
		snap := m.Snapshot()
		a.logger.Debug("metrics", "backend", "expvar", "name", m.Name(), "results", snap.Results)
	case *core.PrometheusMetricsRecorder:
		families, err := a.registry.Gather()
		if err != nil {
			a.logger.Warn("gather metrics", "error", err)
			return
		}
		a.logger.Debug("metrics", "backend", "prometheus", "families", len(families))
	}
}

func newLogger(w io.Writer, cfg config.Log) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// service wires store into a core.Service using the invocation's policy,
// logger, metrics backend and span exporter.
func (a *app) service(store domain.EntryStore, policy timeline.Policy) *core.Service {
	opts := []core.Option{
		core.WithPolicy(policy),
		core.WithLogger(core.NewSlogLogger(a.logger)),
		core.WithAuditRecorder(slogAuditRecorder{logger: a.logger}),
	}
	if a.tracer != nil {
		opts = append(opts, core.WithTracer(a.tracer))
	}
	if a.metrics != nil {
		opts = append(opts, core.WithMetricsRecorder(a.metrics))
	}
	return core.NewService(store, opts...)
}

// openBackends opens the configured store and archive. The returned cleanup
// closes the store when it holds a connection.
func (a *app) openBackends(ctx context.Context) (*core.Service, domain.SnapshotArchive, func(), error) {
	store, err := core.OpenEntryStore(ctx, a.cfg.Storage)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	cleanup := func() {
		if c, ok := store.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				a.logger.Warn("close store", "error", cerr)
			}
		}
	}
	archive, err := core.OpenArchive(ctx, a.cfg.Archive)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("open archive: %w", err)
	}
	return a.service(store, a.cfg.TimelinePolicy()), archive, cleanup, nil
}

// slogAuditRecorder writes audit entries of mutating operations to the log.
type slogAuditRecorder struct {
	logger *slog.Logger
}

func (r slogAuditRecorder) Record(ctx context.Context, e core.AuditEntry) {
	level := slog.LevelDebug
	attrs := []slog.Attr{
		slog.String("operation", e.Operation),
		slog.String("subject", e.Subject),
		slog.String("status", string(e.Status)),
		slog.Int("inserted", e.Inserted),
		slog.Int("updated", e.Updated),
		slog.Int("deleted", e.Deleted),
		slog.Duration("duration", e.Duration),
	}
	if e.Error != "" {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", e.Error))
	}
	r.logger.LogAttrs(ctx, level, "audit", attrs...)
}
