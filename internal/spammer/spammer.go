// Package spammer implements the producer agent: it waits for the
// coordinator's START and then floods every consumer with fixed-size payloads.
package spammer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/torosent/spamfire/internal/agent"
	"github.com/torosent/spamfire/internal/bus"
	"github.com/torosent/spamfire/internal/protocol"
)

// Config configures a producer.
type Config struct {
	Name         string
	MessageCount int
	PayloadSize  int
	// Rate caps messages per second; 0 is unlimited.
	Rate        int
	Coordinator string
	// LimiterFactory overrides limiter construction in tests.
	LimiterFactory func(rps int) *rate.Limiter
}

// ConfigFromArgs builds a Config from positional (messageCount, payloadSize)
// arguments, substituting defaults for malformed input.
func ConfigFromArgs(name, coordinator string, args []string, logger *slog.Logger) Config {
	parsed, ok := protocol.ParseProducerArgs(args)
	if !ok && logger != nil {
		logger.Warn("malformed producer arguments, using defaults",
			slog.String("agent", name),
			slog.Any("args", args),
			slog.Int("messages", parsed.MessageCount),
			slog.Int("payload_size", parsed.PayloadSize),
		)
	}
	return Config{
		Name:         name,
		MessageCount: parsed.MessageCount,
		PayloadSize:  parsed.PayloadSize,
		Coordinator:  coordinator,
	}
}

func (c *Config) normalize() {
	if c.MessageCount < 0 {
		c.MessageCount = 0
	}
	if c.PayloadSize < 0 {
		c.PayloadSize = 0
	}
	if c.Rate < 0 {
		c.Rate = 0
	}
	if c.Coordinator == "" {
		c.Coordinator = protocol.DefaultCoordinator
	}
	if c.LimiterFactory == nil {
		c.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// Spammer is a producer agent.
type Spammer struct {
	cfg     Config
	limiter *rate.Limiter

	started atomic.Bool
	sent    atomic.Int64
	targets atomic.Int64
}

func New(cfg Config) *Spammer {
	cfg.normalize()
	return &Spammer{
		cfg:     cfg,
		limiter: cfg.LimiterFactory(cfg.Rate),
	}
}

func (s *Spammer) Name() string { return s.cfg.Name }

func (s *Spammer) Config() Config { return s.cfg }

// Started reports whether START has been received.
func (s *Spammer) Started() bool { return s.started.Load() }

// Sent is the number of payload messages sent so far.
func (s *Spammer) Sent() int64 { return s.sent.Load() }

// Targets is the number of consumers discovered when spamming began.
func (s *Spammer) Targets() int { return int(s.targets.Load()) }

// Payload returns PayloadSize repetitions of 'A'.
func (s *Spammer) Payload() string {
	return strings.Repeat("A", s.cfg.PayloadSize)
}

// Install adds the producer behaviours to a.
func (s *Spammer) Install(a *agent.Agent) {
	a.AddBehaviour(s.awaitStart())
}

func (s *Spammer) awaitStart() agent.Behaviour {
	tmpl := bus.And(
		bus.MatchSender(s.cfg.Coordinator),
		bus.MatchContent(protocol.ContentStart),
	)
	return agent.Func("await-start", func(ctx context.Context, a *agent.Agent) (agent.Outcome, error) {
		if msg := a.Receive(tmpl); msg == nil {
			return agent.Blocked, nil
		}
		s.started.Store(true)
		a.Logger().Info("start received", slog.String("coordinator", s.cfg.Coordinator))
		a.AddBehaviour(agent.OneShot("spam", s.spam))
		return agent.Finished, nil
	})
}

func (s *Spammer) spam(ctx context.Context, a *agent.Agent) error {
	consumers := a.Find(ctx, protocol.CapabilityConsumer)
	s.targets.Store(int64(len(consumers)))
	if len(consumers) == 0 {
		a.Logger().Warn("no consumers found, nothing to send")
		return nil
	}

	payload := s.Payload()
	a.Logger().Info("spamming",
		slog.Int("messages", s.cfg.MessageCount),
		slog.Int("payload_size", s.cfg.PayloadSize),
		slog.Int("consumers", len(consumers)),
	)
	for i := 0; i < s.cfg.MessageCount; i++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("pacing: %w", err)
		}
		msg := bus.NewInform(s.cfg.Name, payload, consumers...).Tag(protocol.TagSpam).Build()
		if err := a.Send(ctx, msg); err != nil {
			return fmt.Errorf("send message %d: %w", i+1, err)
		}
		s.sent.Add(1)
	}
	a.Logger().Debug("spam complete", slog.Int64("sent", s.sent.Load()))
	return nil
}
