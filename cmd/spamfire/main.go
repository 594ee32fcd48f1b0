package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/torosent/spamfire/internal/agent"
	"github.com/torosent/spamfire/internal/bus"
	"github.com/torosent/spamfire/internal/bus/wsbridge"
	"github.com/torosent/spamfire/internal/config"
	"github.com/torosent/spamfire/internal/dashboard"
	"github.com/torosent/spamfire/internal/directory"
	"github.com/torosent/spamfire/internal/experiment"
	"github.com/torosent/spamfire/internal/master"
	"github.com/torosent/spamfire/internal/output"
	"github.com/torosent/spamfire/internal/threshold"
	"github.com/torosent/spamfire/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// errThresholdsFailed is returned when the run completed but a threshold did not hold.
var errThresholdsFailed = errors.New("thresholds failed")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", slog.Any("error", err))
		}
	}()

	switch {
	case cfg.Role == config.RoleHub:
		return runHub(ctx, cfg, logger, provider)
	case cfg.Role.Remote():
		return runAgent(ctx, cfg, logger, provider)
	default:
		return runExperiment(ctx, cancel, cfg, logger, provider)
	}
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func experimentOptions(cfg *config.Config, logger *slog.Logger, provider *tracing.Provider) experiment.Options {
	return experiment.Options{
		Producers:         cfg.Producers,
		Consumers:         cfg.Consumers,
		PriorityConsumers: cfg.PriorityConsumers,
		Messages:          cfg.Messages,
		PayloadSize:       cfg.PayloadSize,
		Rate:              cfg.Rate,
		PrioritySender:    cfg.PrioritySender,
		Coordinator:       cfg.Coordinator,
		BareReport:        cfg.BareReport,
		MailboxCapacity:   cfg.MailboxCapacity,
		Timeout:           cfg.Timeout,
		Sink:              master.LogSink(logger),
		Logger:            logger,
		Tracer:            provider.Tracer(),
	}
}

func dashboardConfig(cfg *config.Config, opt experiment.Options) dashboard.RunConfig {
	return dashboard.RunConfig{
		Producers:         opt.Producers,
		Consumers:         opt.Consumers,
		PriorityConsumers: opt.PriorityConsumers,
		Messages:          opt.Messages,
		Rate:              float64(opt.Rate),
		PrioritySender:    opt.PrioritySender,
		Timeout:           opt.Timeout,
		ConfigFile:        cfg.ConfigFile,
	}
}

func runExperiment(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger *slog.Logger, provider *tracing.Provider) error {
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	exp, err := experiment.New(experimentOptions(cfg, logger, provider))
	if err != nil {
		return err
	}

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(exp, dashboardConfig(cfg, exp.Options()), cancel)
		if err != nil {
			return err
		}
		dash.Start()
	}

	// the HTML report needs history even when nothing is printed
	var progress *output.ProgressReporter
	if cfg.Progress || cfg.HTMLOutput != "" {
		var w io.Writer = io.Discard
		if cfg.Progress && !cfg.Dashboard {
			w = os.Stderr
		}
		progress = output.NewProgressReporter(exp, progressInterval, w)
		progress.Start()
	}

	res, runErr := exp.Run(ctx)

	if progress != nil {
		progress.Stop()
		if cfg.Progress && !cfg.Dashboard {
			fmt.Fprintln(os.Stderr)
		}
	}
	if dash != nil {
		dash.Stop()
	}

	var results []threshold.Result
	if len(thresholds) > 0 {
		results = threshold.NewEvaluator(thresholds).Evaluate(res.Summary)
	}

	switch {
	case cfg.JSONOutput:
		if err := output.PrintJSONReport(os.Stdout, res, results); err != nil {
			return err
		}
	case cfg.YAMLOutput:
		if err := output.PrintYAMLReport(os.Stdout, res, results); err != nil {
			return err
		}
	default:
		output.PrintReport(os.Stdout, res)
		if len(results) > 0 {
			output.PrintThresholds(os.Stdout, results)
		}
	}

	if cfg.HTMLOutput != "" {
		if err := writeHTMLReport(cfg.HTMLOutput, res, progress.History(), results, output.MetadataFromOptions(exp.Options())); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "HTML report written to %s\n", cfg.HTMLOutput)
	}

	if runErr != nil {
		return runErr
	}
	if !threshold.AllPassed(results) {
		return fmt.Errorf("%w: %d of %d", errThresholdsFailed, countFailed(results), len(results))
	}
	return nil
}

func writeHTMLReport(path string, res experiment.Result, history []output.Sample, results []threshold.Result, meta output.ReportMetadata) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create html report: %w", err)
	}
	if err := output.GenerateHTMLReport(f, res, history, results, meta); err != nil {
		_ = f.Close()
		return fmt.Errorf("generate html report: %w", err)
	}
	return f.Close()
}

func countFailed(results []threshold.Result) int {
	n := 0
	for _, r := range results {
		if !r.Pass {
			n++
		}
	}
	return n
}

func runHub(ctx context.Context, cfg *config.Config, logger *slog.Logger, provider *tracing.Provider) error {
	server := wsbridge.NewServer(wsbridge.ServerConfig{
		Hub: bus.NewHub(bus.Config{
			Name:            "hub",
			MailboxCapacity: cfg.MailboxCapacity,
			Logger:          logger,
		}),
		Directory: directory.NewMemory(),
		Logger:    logger,
		Tracer:    provider.Tracer(),
	})
	return server.ListenAndServe(ctx, cfg.Listen)
}

// runAgent attaches a single agent to a remote hub and runs it to completion.
func runAgent(ctx context.Context, cfg *config.Config, logger *slog.Logger, provider *tracing.Provider) error {
	name := cfg.Name
	if cfg.Role == config.RoleMaster {
		name = cfg.Coordinator
	}

	busURL, err := wsbridge.BusURL(cfg.HubURL)
	if err != nil {
		return err
	}
	dir, err := wsbridge.NewRemoteDirectory(cfg.HubURL, 0)
	if err != nil {
		return err
	}

	role, err := newRoleRuntime(cfg, name, logger, os.Stdout)
	if err != nil {
		return err
	}

	port, err := wsbridge.Dial(ctx, wsbridge.ClientConfig{
		URL:             busURL,
		Name:            name,
		MailboxCapacity: cfg.MailboxCapacity,
		Propagate:       provider.ShouldPropagate(),
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer port.Close()

	ag, err := agent.New(agent.Config{
		Name:       name,
		Capability: role.capability,
		Port:       port,
		Directory:  dir,
		Setup:      role.setup,
		Logger:     logger,
		Tracer:     provider.Tracer(),
	})
	if err != nil {
		return err
	}
	role.install(ag)
	defer ag.Takedown(context.WithoutCancel(ctx))

	return ag.Run(ctx)
}
