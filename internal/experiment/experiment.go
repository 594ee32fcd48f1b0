package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/spamfire/internal/agent"
	"github.com/torosent/spamfire/internal/bus"
	"github.com/torosent/spamfire/internal/consumer"
	"github.com/torosent/spamfire/internal/directory"
	"github.com/torosent/spamfire/internal/master"
	"github.com/torosent/spamfire/internal/metrics"
	"github.com/torosent/spamfire/internal/protocol"
	"github.com/torosent/spamfire/internal/spammer"
	"github.com/torosent/spamfire/internal/tracing"
)

// ErrTimeout is returned when the run exceeds Options.Timeout.
var ErrTimeout = errors.New("experiment timed out")

// ProducerResult describes one producer after the run.
type ProducerResult struct {
	Name    string `json:"name" yaml:"name"`
	Sent    int64  `json:"sent" yaml:"sent"`
	Targets int    `json:"targets" yaml:"targets"`
}

// Result captures the outcome of a run.
type Result struct {
	Summary   metrics.Summary     `json:"summary" yaml:"summary"`
	Producers []ProducerResult    `json:"producers" yaml:"producers"`
	Transport bus.MetricsSnapshot `json:"transport" yaml:"transport"`
	Completed bool                `json:"completed" yaml:"completed"`
}

// Experiment wires producers, consumers and the coordinator onto one hub.
type Experiment struct {
	opt    Options
	runID  string
	hub    *bus.Hub
	dir    *directory.Memory
	tracer trace.Tracer

	spammers  []*spammer.Spammer
	consumers []*consumer.Consumer
	master    *master.Master

	mu      sync.Mutex
	started time.Time
}

// New validates opt and builds the agents. Nothing runs until Run.
func New(opt Options) (*Experiment, error) {
	opt.normalize()
	if opt.PriorityConsumers > 0 && opt.Producers == 0 {
		opt.Logger.Warn("priority consumers configured without producers",
			slog.String("priority_sender", opt.PrioritySender))
	}

	runID := opt.RunID
	if runID == "" {
		runID = ulid.Make().String()
	}
	tracer := opt.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("spamfire")
	}

	e := &Experiment{
		opt:    opt,
		runID:  runID,
		dir:    directory.NewMemory(),
		tracer: tracer,
		hub: bus.NewHub(bus.Config{
			MailboxCapacity: opt.MailboxCapacity,
			Logger:          opt.Logger,
		}),
	}

	for i := 1; i <= opt.Producers; i++ {
		e.spammers = append(e.spammers, spammer.New(spammer.Config{
			Name:         ProducerName(i),
			MessageCount: opt.Messages,
			PayloadSize:  opt.PayloadSize,
			Rate:         opt.Rate,
			Coordinator:  opt.Coordinator,
		}))
	}
	for i := 1; i <= opt.Consumers; i++ {
		e.consumers = append(e.consumers, consumer.New(consumer.Config{
			Name:         ConsumerName(i),
			MessageCount: opt.Messages,
			Coordinator:  opt.Coordinator,
			BareReport:   opt.BareReport,
		}))
	}
	for i := 1; i <= opt.PriorityConsumers; i++ {
		c, err := consumer.NewPriority(consumer.Config{
			Name:         PriorityConsumerName(i),
			MessageCount: opt.Messages,
			Coordinator:  opt.Coordinator,
		}, opt.PrioritySender)
		if err != nil {
			return nil, err
		}
		e.consumers = append(e.consumers, c)
	}
	e.master = master.New(master.Config{Name: opt.Coordinator, Sink: opt.Sink})
	return e, nil
}

func (e *Experiment) RunID() string { return e.runID }

func (e *Experiment) Hub() *bus.Hub { return e.hub }

func (e *Experiment) Master() *master.Master { return e.master }

func (e *Experiment) Consumers() []*consumer.Consumer { return e.consumers }

func (e *Experiment) Spammers() []*spammer.Spammer { return e.spammers }

// Run starts producers, then consumers, then the coordinator, each stage
// only after the previous one is discoverable, and waits for every agent to
// stop. The hub is closed on return.
func (e *Experiment) Run(ctx context.Context) (res Result, err error) {
	ctx, span := e.tracer.Start(ctx, "experiment",
		trace.WithAttributes(
			attribute.String("spamfire.run_id", e.runID),
			attribute.Int("spamfire.producers", len(e.spammers)),
			attribute.Int("spamfire.consumers", len(e.consumers)),
			attribute.Int("spamfire.messages", e.opt.Messages),
		),
	)
	defer func() {
		tracing.EndSpan(span, err,
			attribute.Int64("spamfire.total_messages", res.Summary.TotalMessages),
			attribute.Int("spamfire.reports", res.Summary.Reports),
		)
	}()
	defer e.hub.Close()

	if e.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, e.opt.Timeout, ErrTimeout)
		defer cancel()
	}

	e.mu.Lock()
	e.started = time.Now()
	e.mu.Unlock()
	e.opt.Logger.Info("experiment starting",
		slog.String("run_id", e.runID),
		slog.Int("producers", len(e.spammers)),
		slog.Int("consumers", len(e.consumers)),
		slog.Int("messages", e.opt.Messages),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	abort := func(err error) (Result, error) {
		cancel()
		return e.finish(ctx, g, err)
	}

	// the coordinator's endpoint must exist before any consumer can report
	coordinator, err := e.newAgent(e.master.Name(), "", nil)
	if err != nil {
		return abort(err)
	}
	e.master.Install(coordinator)

	var producersReady sync.WaitGroup
	for _, s := range e.spammers {
		a, err := e.newAgent(s.Name(), protocol.CapabilityProducer, ready(&producersReady, nil))
		if err != nil {
			return abort(err)
		}
		s.Install(a)
		g.Go(func() error { return a.Run(gctx) })
	}
	if err := waitGroup(gctx, &producersReady); err != nil {
		return abort(err)
	}

	var consumersReady sync.WaitGroup
	for _, c := range e.consumers {
		a, err := e.newAgent(c.Name(), protocol.CapabilityConsumer, ready(&consumersReady, c.Setup))
		if err != nil {
			return abort(err)
		}
		c.Install(a)
		g.Go(func() error { return a.Run(gctx) })
	}
	if err := waitGroup(gctx, &consumersReady); err != nil {
		return abort(err)
	}

	g.Go(func() error { return coordinator.Run(gctx) })
	return e.finish(ctx, g, nil)
}

func (e *Experiment) finish(ctx context.Context, g *errgroup.Group, stageErr error) (Result, error) {
	err := g.Wait()
	if err == nil {
		err = stageErr
	}
	if err != nil && ctx.Err() != nil {
		if cause := context.Cause(ctx); errors.Is(cause, ErrTimeout) {
			err = fmt.Errorf("%w after %s", ErrTimeout, e.opt.Timeout)
		}
	}

	res := e.result(err == nil)
	if err != nil {
		e.opt.Logger.Error("experiment failed", slog.String("run_id", e.runID), slog.Any("error", err))
		return res, err
	}
	e.opt.Logger.Info("experiment complete",
		slog.String("run_id", e.runID),
		slog.Float64("elapsed_ms", res.Summary.ElapsedMs),
		slog.Int64("messages", res.Summary.TotalMessages),
	)
	return res, nil
}

func (e *Experiment) newAgent(name, capability string, setup func(context.Context, *agent.Agent) error) (*agent.Agent, error) {
	port, err := e.hub.Register(name)
	if err != nil {
		return nil, err
	}
	return agent.New(agent.Config{
		Name:       name,
		Capability: capability,
		Port:       port,
		Directory:  e.dir,
		Setup:      setup,
		Logger:     e.opt.Logger,
		Tracer:     e.tracer,
	})
}

// ready wraps setup so wg is released once it succeeds.
func ready(wg *sync.WaitGroup, setup func(context.Context, *agent.Agent) error) func(context.Context, *agent.Agent) error {
	wg.Add(1)
	return func(ctx context.Context, a *agent.Agent) error {
		if setup != nil {
			if err := setup(ctx, a); err != nil {
				return err
			}
		}
		wg.Done()
		return nil
	}
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Experiment) result(completed bool) Result {
	res := Result{Completed: completed, Transport: e.hub.Metrics()}
	if s, ok := e.master.Summary(); ok {
		res.Summary = s
	} else {
		res.Summary.Expected = max(e.master.Expected(), 0)
		res.Summary.Reports = e.master.Reports()
	}
	res.Summary.RunID = e.runID
	for _, c := range e.consumers {
		r := c.Result()
		res.Summary.Consumers = append(res.Summary.Consumers, metrics.ConsumerSummary{
			Name:      r.Name,
			Priority:  r.Priority,
			Processed: r.Processed,
			PerSender: r.PerSender,
			Latency:   r.Latency,
		})
	}
	for _, s := range e.spammers {
		res.Producers = append(res.Producers, ProducerResult{Name: s.Name(), Sent: s.Sent(), Targets: s.Targets()})
	}
	return res
}
