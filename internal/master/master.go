// Package master implements the coordinating agent that starts the producers,
// collects every consumer's completion report and publishes the run summary.
package master

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/spamfire/internal/agent"
	"github.com/torosent/spamfire/internal/bus"
	"github.com/torosent/spamfire/internal/metrics"
	"github.com/torosent/spamfire/internal/protocol"
)

// Sink receives the final summary once the run completes.
type Sink interface {
	Publish(ctx context.Context, summary metrics.Summary) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, summary metrics.Summary) error

func (f SinkFunc) Publish(ctx context.Context, summary metrics.Summary) error {
	return f(ctx, summary)
}

// LogSink logs the summary at INFO.
func LogSink(logger *slog.Logger) Sink {
	return SinkFunc(func(_ context.Context, s metrics.Summary) error {
		attrs := []any{
			slog.Float64("elapsed_ms", s.ElapsedMs),
			slog.Int64("messages", s.TotalMessages),
			slog.Int("reports", s.Reports),
		}
		if s.HasAverage {
			attrs = append(attrs, slog.Float64("average_ms", s.AverageMs))
		}
		if s.HasLatency {
			attrs = append(attrs,
				slog.Float64("min_latency_ms", s.MinLatencyMs),
				slog.Float64("max_latency_ms", s.MaxLatencyMs),
			)
		}
		logger.Info("experiment finished", attrs...)
		return nil
	})
}

// Config configures the coordinator.
type Config struct {
	Name  string
	Sink  Sink
	Clock func() time.Time
}

// Master is the coordinator's state. The aggregate is owned by the agent
// goroutine; Producers, Reports and Expected may be read concurrently.
type Master struct {
	cfg Config

	producers []string
	agg       *metrics.Aggregate
	expected  atomic.Int64
	reports   atomic.Int64
	started   atomic.Bool

	mu      sync.Mutex
	summary *metrics.Summary
}

func New(cfg Config) *Master {
	if cfg.Name == "" {
		cfg.Name = protocol.DefaultCoordinator
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Sink == nil {
		cfg.Sink = LogSink(slog.New(slog.DiscardHandler))
	}
	m := &Master{cfg: cfg}
	m.expected.Store(-1)
	return m
}

func (m *Master) Name() string { return m.cfg.Name }

// Producers returns the producers START was sent to.
func (m *Master) Producers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.producers)
}

// Expected is the consumer count captured at setup, or -1 before setup.
func (m *Master) Expected() int { return int(m.expected.Load()) }

// Reports is the number of reports folded so far.
func (m *Master) Reports() int { return int(m.reports.Load()) }

// Started reports whether START has been broadcast.
func (m *Master) Started() bool { return m.started.Load() }

// Summary returns the final summary, if the run has completed.
func (m *Master) Summary() (metrics.Summary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summary == nil {
		return metrics.Summary{}, false
	}
	return *m.summary, true
}

// Install adds the one-shot setup behaviour to a. It switches to collection
// once START has gone out.
func (m *Master) Install(a *agent.Agent) {
	a.AddBehaviour(agent.OneShot("start-experiment", m.start))
}

func (m *Master) start(ctx context.Context, a *agent.Agent) error {
	producers := a.Find(ctx, protocol.CapabilityProducer)
	consumers := a.Find(ctx, protocol.CapabilityConsumer)
	m.mu.Lock()
	m.producers = producers
	m.mu.Unlock()
	m.expected.Store(int64(len(consumers)))

	if len(producers) > 0 {
		msg := bus.NewRequest(m.cfg.Name, protocol.ContentStart, producers...).Build()
		if err := a.Send(ctx, msg); err != nil {
			return fmt.Errorf("broadcast start: %w", err)
		}
	} else {
		a.Logger().Warn("no producers found, start not sent")
	}

	m.agg = metrics.NewAggregate(m.cfg.Clock())
	m.started.Store(true)
	a.Logger().Info("experiment started",
		slog.Int("producers", len(producers)),
		slog.Int("consumers", len(consumers)),
	)
	a.AddBehaviour(agent.Func("collect-reports", m.collect))
	return nil
}

func reportTemplate() bus.Template {
	return bus.And(
		bus.MatchPerformative(bus.Inform),
		func(msg *bus.Message) bool { return protocol.IsReport(msg.Content) },
	)
}

func (m *Master) collect(ctx context.Context, a *agent.Agent) (agent.Outcome, error) {
	expected := m.Expected()
	if m.agg.Complete(expected) {
		return agent.Finished, m.finish(ctx, a, expected)
	}

	msg := a.Receive(reportTemplate())
	if msg == nil {
		return agent.Blocked, nil
	}
	r, err := protocol.DecodeReport(msg.Content)
	if err != nil {
		return agent.Finished, fmt.Errorf("report from %s: %w", msg.From, err)
	}
	m.agg.Fold(r)
	m.reports.Store(int64(m.agg.Reports()))
	a.Logger().Debug("report received",
		slog.String("from", msg.From),
		slog.Int("processed", r.Processed),
		slog.Int("reports", m.agg.Reports()),
	)

	if m.agg.Complete(expected) {
		return agent.Finished, m.finish(ctx, a, expected)
	}
	return agent.Progress, nil
}

func (m *Master) finish(ctx context.Context, a *agent.Agent, expected int) error {
	s := m.agg.Finalize(m.cfg.Clock(), expected)
	m.mu.Lock()
	m.summary = &s
	m.mu.Unlock()

	if err := m.cfg.Sink.Publish(ctx, s); err != nil {
		return fmt.Errorf("publish summary: %w", err)
	}
	a.Logger().Info("all reports collected", slog.Int("reports", s.Reports))
	return nil
}
