package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roadrisk/internal/config"
	"roadrisk/internal/infrastructure"
	"roadrisk/internal/operations"
	"roadrisk/pkg/contracts"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("Pipeline failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

type options struct {
	configFile string
	step       string
	version    bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("pipeline", flag.ContinueOnError)
	fs.StringVar(&opts.configFile, "config", "", "YAML configuration file (defaults to ROADRISK_CONFIG or ./config.yaml)")
	fs.StringVar(&opts.step, "step", "", "run a single step: clean, aggregate, population, normalize or publish")
	fs.BoolVar(&opts.version, "version", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.step != "" && !validStep(opts.step) {
		return opts, fmt.Errorf("unknown step %q", opts.step)
	}
	return opts, nil
}

func validStep(step string) bool {
	switch step {
	case operations.StageIDClean, operations.StageIDAggregate, operations.StageIDPopulation,
		operations.StageIDNormalize, operations.StageIDPublish:
		return true
	}
	return false
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

// run wires the pipeline from configuration, executes it and writes the
// run summary as JSON to out.
func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.version {
		_, err := fmt.Fprintln(out, contracts.GetFullVersionString())
		return err
	}

	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		return err
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	paths, err := cfg.Resolve()
	if err != nil {
		return err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return err
	}
	paths.LogPathResolution(logger)

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	metrics, err := infrastructure.CreatePipelineMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	manager := operations.NewManager(nil, operations.ConfigFrom(cfg.Pipeline),
		operations.NewOperationTracer(nil, metrics), logger)
	if err := operations.RegisterPipeline(manager, operations.StageDependencies{
		Config:  cfg,
		Paths:   paths,
		Metrics: metrics,
		Logger:  logger,
		Sinks:   operations.SinksFrom(cfg, logger),
	}); err != nil {
		return err
	}

	ctx, runID := infrastructure.NewRunContext(ctx)
	_, state, runErr := manager.Execute(ctx, operations.OperationRequest{ID: runID, Step: opts.step})

	if cfg.Telemetry.MetricsFile != "" {
		metricsPath := paths.Join(cfg.Telemetry.MetricsFile)
		if err := providers.WriteMetrics(metricsPath); err != nil {
			logger.Warn("Failed to write metrics", slog.String("path", metricsPath), slog.String("error", err.Error()))
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state.Snapshot(manager.GetRegistry().ListIDs())); err != nil {
		return err
	}

	return runErr
}
