package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	ErrEndpointExists  = errors.New("endpoint already registered")
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	ErrHubClosed       = errors.New("hub closed")
)

// Port is an agent's attachment to a transport.
type Port interface {
	Name() string
	// Send delivers msg to every receiver in msg.To. It blocks only on
	// receiver backpressure.
	Send(ctx context.Context, msg *Message) error
	// Receive returns the oldest queued message matching tmpl, or nil.
	Receive(tmpl Template) *Message
	// Wait blocks until a new message arrives.
	Wait(ctx context.Context) error
	Close() error
}

// Config configures a Hub.
type Config struct {
	Name string
	// MailboxCapacity bounds each endpoint's mailbox; 0 is unbounded.
	MailboxCapacity int
	Logger          *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		Name:   "spamfire",
		Logger: slog.New(slog.DiscardHandler),
	}
}

// Merge overlays non-zero fields of source onto c.
func (c *Config) Merge(source *Config) {
	if source.Name != "" {
		c.Name = source.Name
	}
	if source.MailboxCapacity > 0 {
		c.MailboxCapacity = source.MailboxCapacity
	}
	if source.Logger != nil {
		c.Logger = source.Logger
	}
}

type endpoint struct {
	name      string
	mailbox   *Mailbox
	delivered atomic.Int64
}

// Hub is an in-process transport. Delivery is synchronous, so messages from
// one sender reach each receiver in send order.
type Hub struct {
	name     string
	capacity int
	logger   *slog.Logger
	metrics  *Metrics

	mu        sync.RWMutex
	endpoints map[string]*endpoint
	closed    bool
}

func NewHub(cfg Config) *Hub {
	merged := DefaultConfig()
	merged.Merge(&cfg)
	return &Hub{
		name:      merged.Name,
		capacity:  merged.MailboxCapacity,
		logger:    merged.Logger,
		metrics:   NewMetrics(),
		endpoints: make(map[string]*endpoint),
	}
}

// Register attaches a new endpoint and returns its port.
func (h *Hub) Register(name string) (Port, error) {
	if name == "" {
		return nil, fmt.Errorf("register: empty endpoint name")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if _, exists := h.endpoints[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrEndpointExists, name)
	}

	ep := &endpoint{name: name, mailbox: NewMailbox(h.capacity)}
	h.endpoints[name] = ep
	h.metrics.RecordEndpoint(1)

	h.logger.Debug("endpoint registered",
		slog.String("hub_name", h.name),
		slog.String("endpoint", name),
	)
	return &localPort{hub: h, ep: ep}, nil
}

// Unregister detaches an endpoint and closes its mailbox.
func (h *Hub) Unregister(name string) error {
	h.mu.Lock()
	ep, exists := h.endpoints[name]
	if exists {
		delete(h.endpoints, name)
	}
	h.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
	}
	ep.mailbox.Close()
	h.metrics.RecordEndpoint(-1)

	h.logger.Debug("endpoint unregistered",
		slog.String("hub_name", h.name),
		slog.String("endpoint", name),
	)
	return nil
}

// Send delivers a copy of msg to each receiver. Unknown receivers are skipped
// and reported in the returned error after the others have been served.
func (h *Hub) Send(ctx context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("send: nil message")
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	targets := make([]*endpoint, 0, len(msg.To))
	var missing []string
	for _, to := range msg.To {
		if ep, ok := h.endpoints[to]; ok {
			targets = append(targets, ep)
		} else {
			missing = append(missing, to)
		}
	}
	h.mu.RUnlock()

	h.metrics.RecordMessageSent(1)

	var errs []error
	for _, ep := range targets {
		if err := ep.mailbox.Put(ctx, msg.Clone()); err != nil {
			h.metrics.RecordMessageDropped(1)
			errs = append(errs, fmt.Errorf("deliver to %s: %w", ep.name, err))
			continue
		}
		ep.delivered.Add(1)
		h.metrics.RecordMessageDelivered(1)
	}
	for _, name := range missing {
		h.metrics.RecordMessageDropped(1)
		h.logger.Warn("message for unknown endpoint dropped",
			slog.String("hub_name", h.name),
			slog.String("from", msg.From),
			slog.String("to", name),
		)
		errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownEndpoint, name))
	}
	return errors.Join(errs...)
}

// Metrics returns counters plus per-endpoint delivered and pending counts.
func (h *Hub) Metrics() MetricsSnapshot {
	snap := h.metrics.Snapshot()

	h.mu.RLock()
	defer h.mu.RUnlock()
	snap.Delivered = make(map[string]int64, len(h.endpoints))
	snap.Pending = make(map[string]int, len(h.endpoints))
	for name, ep := range h.endpoints {
		snap.Delivered[name] = ep.delivered.Load()
		snap.Pending[name] = ep.mailbox.Len()
	}
	return snap
}

// Close unregisters every endpoint. Blocked senders and waiters return.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	eps := h.endpoints
	h.endpoints = make(map[string]*endpoint)
	h.mu.Unlock()

	for _, ep := range eps {
		ep.mailbox.Close()
	}
	h.metrics.RecordEndpoint(-len(eps))
}

type localPort struct {
	hub *Hub
	ep  *endpoint
}

func (p *localPort) Name() string { return p.ep.name }

func (p *localPort) Send(ctx context.Context, msg *Message) error {
	if msg.From == "" {
		msg.From = p.ep.name
	}
	return p.hub.Send(ctx, msg)
}

func (p *localPort) Receive(tmpl Template) *Message {
	return p.ep.mailbox.Receive(tmpl)
}

func (p *localPort) Wait(ctx context.Context) error {
	return p.ep.mailbox.Wait(ctx)
}

func (p *localPort) Close() error {
	err := p.hub.Unregister(p.ep.name)
	if errors.Is(err, ErrUnknownEndpoint) {
		return nil
	}
	return err
}
