package wsbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torosent/spamfire/internal/bus"
	"github.com/torosent/spamfire/internal/tracing"
)

// ClientConfig configures a remote port.
type ClientConfig struct {
	// URL is the hub's bus endpoint, e.g. ws://127.0.0.1:7070/bus.
	URL              string
	Name             string
	Headers          http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// MailboxCapacity bounds the local receive queue; 0 is unbounded.
	MailboxCapacity int
	// Propagate injects the sender's trace context into every frame.
	Propagate bool
	Logger    *slog.Logger
}

// ClientMetrics counts frames crossing the bridge.
type ClientMetrics struct {
	MessagesSent     int64
	MessagesReceived int64
	RemoteErrors     int64
}

// Client is a bus.Port attached to a remote hub.
type Client struct {
	name         string
	conn         *websocket.Conn
	mailbox      *bus.Mailbox
	logger       *slog.Logger
	propagate    bool
	writeTimeout time.Duration

	writeMu sync.Mutex
	done    chan struct{}
	closed  atomic.Bool

	sent     atomic.Int64
	received atomic.Int64
	remote   atomic.Int64
}

var _ bus.Port = (*Client)(nil)

// Dial attaches cfg.Name to the hub at cfg.URL. It fails if the name is
// already taken there.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("dial: empty endpoint name")
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, cfg.Headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	conn.SetReadLimit(maxFrameSize)

	c := &Client{
		name:         cfg.Name,
		conn:         conn,
		mailbox:      bus.NewMailbox(cfg.MailboxCapacity),
		logger:       cfg.Logger.With(slog.String("endpoint", cfg.Name)),
		propagate:    cfg.Propagate,
		writeTimeout: cfg.WriteTimeout,
		done:         make(chan struct{}),
	}

	if err := c.handshake(cfg.HandshakeTimeout); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("attach %s: %w", cfg.Name, err)
	}

	go c.readLoop()
	return c, nil
}

func (c *Client) handshake(timeout time.Duration) error {
	if err := c.write(frame{Op: opRegister, Name: c.name}); err != nil {
		return err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read registration reply: %w", err)
	}
	_ = c.conn.SetReadDeadline(time.Time{})
	_, err = decodeFrame(data, opRegistered)
	return err
}

func (c *Client) Name() string { return c.name }

func (c *Client) Send(ctx context.Context, msg *bus.Message) error {
	if msg == nil {
		return fmt.Errorf("send: nil message")
	}
	if c.closed.Load() {
		return bus.ErrHubClosed
	}
	if msg.From == "" {
		msg.From = c.name
	}

	f := frame{Op: opSend, Message: msg}
	if c.propagate {
		f.Trace = tracing.Inject(ctx, nil)
	}
	if err := c.write(f); err != nil {
		return fmt.Errorf("bridge send: %w", err)
	}
	c.sent.Add(1)
	return nil
}

func (c *Client) Receive(tmpl bus.Template) *bus.Message {
	return c.mailbox.Receive(tmpl)
}

func (c *Client) Wait(ctx context.Context) error {
	return c.mailbox.Wait(ctx)
}

// Done is closed once the connection to the hub is lost or closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close detaches from the hub. Messages already received stay readable.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.writeMu.Lock()
	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	c.mailbox.Close()
	closeErr := c.conn.Close()
	<-c.done
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return closeErr
}

func (c *Client) Metrics() ClientMetrics {
	return ClientMetrics{
		MessagesSent:     c.sent.Load(),
		MessagesReceived: c.received.Load(),
		RemoteErrors:     c.remote.Load(),
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.mailbox.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("connection to hub lost", slog.Any("error", err))
			}
			c.closed.Store(true)
			return
		}

		op, err := peekOp(data)
		if err != nil {
			c.logger.Warn("dropping frame from hub", slog.Any("error", err))
			continue
		}
		switch op {
		case opDeliver:
			f, err := decodeFrame(data, opDeliver)
			if err != nil || f.Message == nil {
				c.logger.Warn("dropping malformed delivery", slog.Any("error", err))
				continue
			}
			if err := c.mailbox.Put(context.Background(), f.Message); err != nil {
				return
			}
			c.received.Add(1)
		case opError:
			c.remote.Add(1)
			f, _ := decodeFrame(data, opError)
			c.logger.Warn("hub rejected frame", slog.String("error", f.Error))
		default:
			c.logger.Warn("unexpected frame from hub", slog.String("op", op))
		}
	}
}

func (c *Client) write(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(f)
}
