package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/torosent/spamfire/internal/agent"
	"github.com/torosent/spamfire/internal/config"
	"github.com/torosent/spamfire/internal/consumer"
	"github.com/torosent/spamfire/internal/master"
	"github.com/torosent/spamfire/internal/metrics"
	"github.com/torosent/spamfire/internal/output"
	"github.com/torosent/spamfire/internal/protocol"
	"github.com/torosent/spamfire/internal/spammer"
)

// roleRuntime is what a single-agent process installs on its agent.
type roleRuntime struct {
	capability string
	setup      func(context.Context, *agent.Agent) error
	install    func(*agent.Agent)
}

// newRoleRuntime builds the agent for cfg.Role from the positional cfg.Args.
// The master prints the console summary to out.
func newRoleRuntime(cfg *config.Config, name string, logger *slog.Logger, out io.Writer) (roleRuntime, error) {
	switch cfg.Role {
	case config.RoleProducer:
		scfg := spammer.ConfigFromArgs(name, cfg.Coordinator, cfg.Args, logger)
		scfg.Rate = cfg.Rate
		s := spammer.New(scfg)
		return roleRuntime{
			capability: protocol.CapabilityProducer,
			install:    s.Install,
		}, nil

	case config.RoleConsumer:
		ccfg := consumer.ConfigFromArgs(name, cfg.Coordinator, cfg.Args, logger)
		ccfg.BareReport = cfg.BareReport
		c := consumer.New(ccfg)
		return roleRuntime{
			capability: protocol.CapabilityConsumer,
			setup:      c.Setup,
			install:    c.Install,
		}, nil

	case config.RolePriorityConsumer:
		c, err := consumer.NewPriorityFromArgs(name, cfg.Coordinator, cfg.Args)
		if err != nil {
			return roleRuntime{}, err
		}
		return roleRuntime{
			capability: protocol.CapabilityConsumer,
			setup:      c.Setup,
			install:    c.Install,
		}, nil

	case config.RoleMaster:
		m := master.New(master.Config{Name: name, Sink: consoleSink(out, logger)})
		return roleRuntime{install: m.Install}, nil

	default:
		return roleRuntime{}, fmt.Errorf("role %q does not run an agent", cfg.Role)
	}
}

// consoleSink logs the summary and prints the reference console lines.
func consoleSink(out io.Writer, logger *slog.Logger) master.Sink {
	logSink := master.LogSink(logger)
	return master.SinkFunc(func(ctx context.Context, s metrics.Summary) error {
		if err := logSink.Publish(ctx, s); err != nil {
			return err
		}
		output.PrintSummary(out, s)
		return nil
	})
}
