package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/spamfire/internal/bus"
	"github.com/torosent/spamfire/internal/directory"
	"github.com/torosent/spamfire/internal/tracing"
)

var (
	// ErrRegistration wraps a failed directory registration.
	ErrRegistration = errors.New("directory registration failed")
	// ErrTransportClosed is returned when the agent's port closes under it.
	ErrTransportClosed = errors.New("transport closed")
)

// Config describes an agent.
type Config struct {
	Name string
	// Capability is advertised in the directory before Setup runs. Empty
	// skips registration.
	Capability string
	Port       bus.Port
	Directory  directory.Directory
	// Setup runs once after registration and before the first behaviour.
	Setup  func(ctx context.Context, a *Agent) error
	Logger *slog.Logger
	Tracer trace.Tracer
}

// Agent runs its behaviours round-robin on a single goroutine. When a full
// round makes no progress the agent parks on its port until a message arrives.
type Agent struct {
	name       string
	capability string
	port       bus.Port
	dir        directory.Directory
	setup      func(ctx context.Context, a *Agent) error
	logger     *slog.Logger
	tracer     trace.Tracer

	behaviours []Behaviour
	added      []Behaviour
	registered bool
	rounds     int64
}

func New(cfg Config) (*Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("agent: name is required")
	}
	if cfg.Port == nil {
		return nil, fmt.Errorf("agent %s: port is required", cfg.Name)
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("agent %s: directory is required", cfg.Name)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("spamfire")
	}
	return &Agent{
		name:       cfg.Name,
		capability: cfg.Capability,
		port:       cfg.Port,
		dir:        cfg.Directory,
		setup:      cfg.Setup,
		logger:     logger.With(slog.String("agent", cfg.Name)),
		tracer:     tracer,
	}, nil
}

func (a *Agent) Name() string { return a.name }

func (a *Agent) Logger() *slog.Logger { return a.logger }

func (a *Agent) Directory() directory.Directory { return a.dir }

// AddBehaviour schedules b. Behaviours added while running join the next round.
func (a *Agent) AddBehaviour(b Behaviour) {
	a.added = append(a.added, b)
}

// Send transmits msg from this agent.
func (a *Agent) Send(ctx context.Context, msg *bus.Message) error {
	msg.From = a.name
	return a.port.Send(ctx, msg)
}

// Receive takes the oldest queued message matching tmpl without blocking.
func (a *Agent) Receive(tmpl bus.Template) *bus.Message {
	return a.port.Receive(tmpl)
}

// Find looks up agents by capability. Failures are logged and yield an empty
// result.
func (a *Agent) Find(ctx context.Context, capability string) []string {
	ids, err := a.dir.Find(ctx, capability)
	if err != nil {
		a.logger.Warn("directory lookup failed",
			slog.String("capability", capability),
			slog.Any("error", err),
		)
		return nil
	}
	return ids
}

// Run registers the agent, runs Setup and schedules behaviours until all have
// finished, a behaviour fails, or ctx ends. The agent stays registered after a
// normal finish; call Takedown to leave the directory.
func (a *Agent) Run(ctx context.Context) (err error) {
	ctx, span := tracing.StartAgentSpan(ctx, a.tracer, a.name, a.capability)
	defer func() {
		tracing.EndSpan(span, err, attribute.Int64("spamfire.rounds", a.rounds))
	}()

	if a.capability != "" {
		if err := a.dir.Register(ctx, a.name, a.capability); err != nil {
			a.logger.Error("registration failed", slog.Any("error", err))
			if !errors.Is(err, directory.ErrAlreadyRegistered) {
				// a remote directory may have applied the registration before failing
				a.deregister(context.WithoutCancel(ctx))
			}
			return fmt.Errorf("%w: %s: %w", ErrRegistration, a.name, err)
		}
		a.registered = true
		a.logger.Debug("registered", slog.String("capability", a.capability))
	}

	if a.setup != nil {
		if err := a.setup(ctx, a); err != nil {
			a.Takedown(context.WithoutCancel(ctx))
			return fmt.Errorf("agent %s setup: %w", a.name, err)
		}
	}

	return a.schedule(ctx)
}

func (a *Agent) schedule(ctx context.Context) error {
	a.behaviours = append(a.behaviours, a.added...)
	a.added = nil

	for len(a.behaviours) > 0 {
		a.rounds++
		progressed := false
		remaining := a.behaviours[:0]
		for _, b := range a.behaviours {
			outcome, err := b.Action(ctx, a)
			if err != nil {
				return fmt.Errorf("agent %s behaviour %s: %w", a.name, b.Name(), err)
			}
			switch outcome {
			case Finished:
				progressed = true
				a.logger.Debug("behaviour finished", slog.String("behaviour", b.Name()))
			case Progress:
				progressed = true
				remaining = append(remaining, b)
			default:
				remaining = append(remaining, b)
			}
		}
		a.behaviours = remaining

		if len(a.added) > 0 {
			a.behaviours = append(a.behaviours, a.added...)
			a.added = nil
			continue
		}
		if len(a.behaviours) == 0 {
			break
		}
		if progressed {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}

		if err := a.port.Wait(ctx); err != nil {
			if errors.Is(err, bus.ErrMailboxClosed) {
				return fmt.Errorf("agent %s: %w", a.name, ErrTransportClosed)
			}
			return err
		}
	}
	return nil
}

// Takedown removes the agent from the directory if it registered.
func (a *Agent) Takedown(ctx context.Context) {
	if !a.registered {
		return
	}
	a.deregister(ctx)
	a.registered = false
}

func (a *Agent) deregister(ctx context.Context) {
	if err := a.dir.Deregister(ctx, a.name); err != nil && !errors.Is(err, directory.ErrNotRegistered) {
		a.logger.Warn("deregistration failed", slog.Any("error", err))
	}
}
