package spammer

import (
	"context"
	"testing"
	"time"

	"github.com/torosent/spamfire/internal/agent"
	"github.com/torosent/spamfire/internal/bus"
	"github.com/torosent/spamfire/internal/directory"
	"github.com/torosent/spamfire/internal/protocol"
)

type fixture struct {
	hub       *bus.Hub
	dir       *directory.Memory
	master    bus.Port
	consumers []bus.Port
}

func newFixture(t *testing.T, consumers ...string) *fixture {
	t.Helper()
	f := &fixture{hub: bus.NewHub(bus.Config{}), dir: directory.NewMemory()}
	t.Cleanup(f.hub.Close)

	var err error
	f.master, err = f.hub.Register(protocol.DefaultCoordinator)
	if err != nil {
		t.Fatalf("Register(master) error = %v", err)
	}
	for _, name := range consumers {
		port, err := f.hub.Register(name)
		if err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
		if err := f.dir.Register(context.Background(), name, protocol.CapabilityConsumer); err != nil {
			t.Fatalf("directory Register(%s) error = %v", name, err)
		}
		f.consumers = append(f.consumers, port)
	}
	return f
}

func (f *fixture) startAgent(t *testing.T, s *Spammer) (*agent.Agent, chan error) {
	t.Helper()
	port, err := f.hub.Register(s.Name())
	if err != nil {
		t.Fatalf("Register(%s) error = %v", s.Name(), err)
	}
	a, err := agent.New(agent.Config{
		Name:       s.Name(),
		Capability: protocol.CapabilityProducer,
		Port:       port,
		Directory:  f.dir,
	})
	if err != nil {
		t.Fatalf("agent.New() error = %v", err)
	}
	s.Install(a)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	return a, done
}

func (f *fixture) sendStart(t *testing.T, from bus.Port, to string) {
	t.Helper()
	msg := bus.NewRequest(from.Name(), protocol.ContentStart, to).Build()
	if err := from.Send(context.Background(), msg); err != nil {
		t.Fatalf("send start: %v", err)
	}
}

func TestSpammerFloodsEveryConsumerAfterStart(t *testing.T) {
	f := newFixture(t, "Consumer1", "Consumer2")
	s := New(Config{Name: "Spammer1", MessageCount: 5, PayloadSize: 4})
	_, done := f.startAgent(t, s)

	f.sendStart(t, f.master, "Spammer1")
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if s.Sent() != 5 || s.Targets() != 2 || !s.Started() {
		t.Errorf("sent=%d targets=%d started=%v", s.Sent(), s.Targets(), s.Started())
	}
	tmpl := bus.And(bus.MatchTag(protocol.TagSpam), bus.MatchPerformative(bus.Inform))
	for _, c := range f.consumers {
		for i := 0; i < 5; i++ {
			msg := c.Receive(tmpl)
			if msg == nil {
				t.Fatalf("%s: message %d missing", c.Name(), i+1)
			}
			if msg.Content != "AAAA" || msg.From != "Spammer1" {
				t.Errorf("%s: unexpected message %v content %q", c.Name(), msg, msg.Content)
			}
		}
		if extra := c.Receive(nil); extra != nil {
			t.Errorf("%s: unexpected extra message %v", c.Name(), extra)
		}
	}
}

func TestSpammerIgnoresStartFromOtherSender(t *testing.T) {
	f := newFixture(t, "Consumer1")
	impostor, _ := f.hub.Register("Impostor")
	s := New(Config{Name: "Spammer1", MessageCount: 1, PayloadSize: 1})
	_, done := f.startAgent(t, s)

	f.sendStart(t, impostor, "Spammer1")
	time.Sleep(30 * time.Millisecond)
	if s.Started() || s.Sent() != 0 {
		t.Fatalf("spammer reacted to START from a non-coordinator")
	}

	f.sendStart(t, f.master, "Spammer1")
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if s.Sent() != 1 {
		t.Errorf("sent = %d, want 1", s.Sent())
	}
}

func TestSpammerWithoutConsumersSendsNothing(t *testing.T) {
	f := newFixture(t)
	s := New(Config{Name: "Spammer1", MessageCount: 3, PayloadSize: 3})
	_, done := f.startAgent(t, s)

	f.sendStart(t, f.master, "Spammer1")
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if s.Sent() != 0 {
		t.Errorf("sent = %d, want 0", s.Sent())
	}
}

func TestSpammerStaysRegisteredAfterSpamming(t *testing.T) {
	f := newFixture(t, "Consumer1")
	s := New(Config{Name: "Spammer1", MessageCount: 1, PayloadSize: 1})
	_, done := f.startAgent(t, s)

	f.sendStart(t, f.master, "Spammer1")
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	ids, _ := f.dir.Find(context.Background(), protocol.CapabilityProducer)
	if len(ids) != 1 || ids[0] != "Spammer1" {
		t.Errorf("producers = %v, want [Spammer1]", ids)
	}
}

func TestSpammerPacingHonoursContext(t *testing.T) {
	f := newFixture(t, "Consumer1")
	s := New(Config{Name: "Spammer1", MessageCount: 1000, PayloadSize: 1, Rate: 1})
	port, _ := f.hub.Register(s.Name())
	a, _ := agent.New(agent.Config{Name: s.Name(), Port: port, Directory: f.dir})
	s.Install(a)

	f.sendStart(t, f.master, "Spammer1")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := a.Run(ctx); err == nil {
		t.Fatal("Run() succeeded, want pacing to stop at the deadline")
	}
	if s.Sent() != 1 {
		t.Errorf("rate limit not applied, sent %d", s.Sent())
	}
}

func TestConfigFromArgs(t *testing.T) {
	cfg := ConfigFromArgs("Spammer1", "", []string{"20", "64"}, nil)
	if cfg.MessageCount != 20 || cfg.PayloadSize != 64 {
		t.Errorf("ConfigFromArgs() = %+v", cfg)
	}

	cfg = ConfigFromArgs("Spammer1", "", []string{"oops"}, nil)
	if cfg.MessageCount != protocol.DefaultMessageCount || cfg.PayloadSize != protocol.DefaultPayloadSize {
		t.Errorf("ConfigFromArgs() with malformed args = %+v, want defaults", cfg)
	}

	s := New(cfg)
	if s.Config().Coordinator != protocol.DefaultCoordinator {
		t.Errorf("Coordinator = %q, want default", s.Config().Coordinator)
	}
	if s.Payload() != "AAA" {
		t.Errorf("Payload() = %q, want AAA", s.Payload())
	}
}
