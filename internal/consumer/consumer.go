// Package consumer implements the message consuming agents. A consumer counts
// spam per producer, measures per-message processing latency and sends one
// completion report to the coordinator once every producer's quota is met.
//
// The priority variant serves one designated producer immediately and
// buffers everyone else's messages in arrival order, draining that buffer
// only when nothing new is waiting.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/torosent/spamfire/internal/agent"
	"github.com/torosent/spamfire/internal/bus"
	"github.com/torosent/spamfire/internal/metrics"
	"github.com/torosent/spamfire/internal/protocol"
)

// Config configures a consumer.
type Config struct {
	Name string
	// MessageCount is the quota expected from every producer.
	MessageCount int
	Coordinator  string
	// BareReport sends "done" without statistics.
	BareReport bool
	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

func (c *Config) normalize() {
	if c.MessageCount < 1 {
		c.MessageCount = protocol.DefaultQuota
	}
	if c.Coordinator == "" {
		c.Coordinator = protocol.DefaultCoordinator
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// ConfigFromArgs builds a baseline Config from the positional quota argument,
// substituting the default quota for malformed input.
func ConfigFromArgs(name, coordinator string, args []string, logger *slog.Logger) Config {
	quota, ok := protocol.ParseConsumerArgs(args)
	if !ok && logger != nil {
		logger.Warn("malformed consumer arguments, using default quota",
			slog.String("agent", name),
			slog.Any("args", args),
			slog.Int("quota", quota),
		)
	}
	return Config{Name: name, MessageCount: quota, Coordinator: coordinator}
}

// Result is a consumer's outcome. It is only stable once the agent has stopped.
type Result struct {
	Name      string
	Priority  bool
	Reported  bool
	Processed int
	PerSender map[string]int
	Latency   metrics.LatencySnapshot
}

// Consumer holds the state of one consuming agent. The state is mutated only
// from the agent's goroutine; the atomic progress counters may be read from
// anywhere.
type Consumer struct {
	cfg            Config
	prioritySender string
	priority       bool

	expected map[string]struct{}
	counter  *ReceiptCounter
	stats    *metrics.LatencyStats
	queue    backlog

	processed atomic.Int64
	buffered  atomic.Int64
	reported  atomic.Bool
}

// New returns a baseline consumer.
func New(cfg Config) *Consumer {
	cfg.normalize()
	return &Consumer{
		cfg:      cfg,
		expected: map[string]struct{}{},
		counter:  NewReceiptCounter(),
		stats:    metrics.NewLatencyStats(),
	}
}

func (c *Consumer) Name() string { return c.cfg.Name }

func (c *Consumer) Config() Config { return c.cfg }

// IsPriority reports whether this is the priority variant.
func (c *Consumer) IsPriority() bool { return c.priority }

// PrioritySender is the producer served first by a priority consumer.
func (c *Consumer) PrioritySender() string { return c.prioritySender }

// Processed is the number of messages processed so far.
func (c *Consumer) Processed() int64 { return c.processed.Load() }

// Buffered is the current backlog length of a priority consumer.
func (c *Consumer) Buffered() int64 { return c.buffered.Load() }

// Reported reports whether the completion report was sent.
func (c *Consumer) Reported() bool { return c.reported.Load() }

// Expected returns the producers discovered at setup.
func (c *Consumer) Expected() []string {
	out := make([]string, 0, len(c.expected))
	for name := range c.expected {
		out = append(out, name)
	}
	return out
}

// SetExpected fixes the set of producers this consumer waits for.
func (c *Consumer) SetExpected(producers []string) {
	c.expected = make(map[string]struct{}, len(producers))
	for _, p := range producers {
		c.expected[p] = struct{}{}
	}
}

// Setup snapshots the producer set from the directory. It is meant to run as
// the agent's setup hook, after registration.
func (c *Consumer) Setup(ctx context.Context, a *agent.Agent) error {
	producers := a.Find(ctx, protocol.CapabilityProducer)
	c.SetExpected(producers)
	if _, ok := c.expected[c.prioritySender]; c.priority && !ok {
		a.Logger().Warn("priority producer not found in directory",
			slog.String("priority_sender", c.prioritySender),
		)
	}
	a.Logger().Info("consumer ready",
		slog.Int("producers", len(producers)),
		slog.Int("quota", c.cfg.MessageCount),
		slog.Bool("priority", c.priority),
	)
	return nil
}

// Install adds the consuming behaviour to a.
func (c *Consumer) Install(a *agent.Agent) {
	if c.priority {
		a.AddBehaviour(agent.Func("consume-priority", c.actPriority))
		return
	}
	a.AddBehaviour(agent.Func("consume", c.act))
}

// Done evaluates the completion predicate. Once a report has been sent it is
// always true.
func (c *Consumer) Done() bool {
	return c.reported.Load() || c.counter.Saturated(c.expected, c.cfg.MessageCount)
}

// Result snapshots the consumer's outcome.
func (c *Consumer) Result() Result {
	return Result{
		Name:      c.cfg.Name,
		Priority:  c.priority,
		Reported:  c.reported.Load(),
		Processed: c.counter.Total(),
		PerSender: c.counter.Snapshot(),
		Latency:   c.stats.Snapshot(),
	}
}

func spamTemplate() bus.Template {
	return bus.And(
		bus.MatchPerformative(bus.Inform),
		bus.MatchTag(protocol.TagSpam),
	)
}

func (c *Consumer) act(ctx context.Context, a *agent.Agent) (agent.Outcome, error) {
	began := c.cfg.Clock()
	msg := a.Receive(spamTemplate())
	if msg == nil {
		return c.settle(ctx, a, agent.Blocked)
	}
	c.process(a, msg, began)
	return c.settle(ctx, a, agent.Progress)
}

// process counts msg and records the latency since began.
func (c *Consumer) process(a *agent.Agent, msg *bus.Message, began time.Time) {
	c.counter.Add(msg.From)
	c.stats.Observe(c.cfg.Clock().Sub(began))
	c.processed.Add(1)
	a.Logger().Debug("message processed", slog.String("from", msg.From))
}

// settle sends the report and finishes when complete, otherwise returns outcome.
func (c *Consumer) settle(ctx context.Context, a *agent.Agent, outcome agent.Outcome) (agent.Outcome, error) {
	if !c.Done() {
		return outcome, nil
	}
	if err := c.report(ctx, a); err != nil {
		return agent.Finished, err
	}
	return agent.Finished, nil
}

func (c *Consumer) report(ctx context.Context, a *agent.Agent) error {
	if c.reported.Load() {
		return nil
	}

	r := protocol.Report{Processed: c.counter.Total(), Bare: c.cfg.BareReport}
	r.Min, r.HasLatency = c.stats.Min()
	r.Max, _ = c.stats.Max()

	content := protocol.EncodeReport(r)
	msg := bus.NewInform(c.cfg.Name, content, c.cfg.Coordinator).Build()
	if err := a.Send(ctx, msg); err != nil {
		return fmt.Errorf("send completion report: %w", err)
	}
	c.reported.Store(true)
	a.Logger().Info("completion reported",
		slog.String("coordinator", c.cfg.Coordinator),
		slog.String("report", content),
	)
	return nil
}
