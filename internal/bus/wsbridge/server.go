// Package wsbridge exposes a bus.Hub and a directory.Directory over the
// network so agents can run in separate processes. Agents attach with a
// websocket per endpoint; directory calls are plain HTTP JSON.
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/spamfire/internal/bus"
	"github.com/torosent/spamfire/internal/directory"
	"github.com/torosent/spamfire/internal/tracing"
)

var (
	// ErrBadFrame is returned for frames that are not valid JSON envelopes.
	ErrBadFrame = errors.New("malformed frame")
	// ErrRemote wraps an error reported by the other side of the bridge.
	ErrRemote = errors.New("remote error")
)

// Paths served by Server.Handler.
const (
	BusPath       = "/bus"
	DirectoryPath = "/directory"
	MetricsPath   = "/metrics"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	maxFrameSize            = 1 << 20
)

// ServerConfig configures a Server.
type ServerConfig struct {
	Hub       *bus.Hub
	Directory directory.Directory
	Logger    *slog.Logger
	Tracer    trace.Tracer
	// WriteTimeout bounds each frame write to a remote agent.
	WriteTimeout time.Duration
}

// Server bridges remote agents onto a local hub and directory.
type Server struct {
	hub          *bus.Hub
	dir          directory.Directory
	logger       *slog.Logger
	tracer       trace.Tracer
	writeTimeout time.Duration
	upgrader     websocket.Upgrader

	wg sync.WaitGroup
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Hub == nil {
		cfg.Hub = bus.NewHub(bus.Config{})
	}
	if cfg.Directory == nil {
		cfg.Directory = directory.NewMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("spamfire")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Server{
		hub:          cfg.Hub,
		dir:          cfg.Directory,
		logger:       cfg.Logger,
		tracer:       cfg.Tracer,
		writeTimeout: cfg.WriteTimeout,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: defaultHandshakeTimeout,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Hub() *bus.Hub { return s.hub }

// Handler routes the bus websocket, directory and metrics endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+BusPath, s.serveBus)
	mux.HandleFunc("POST "+DirectoryPath+"/register", s.serveRegister)
	mux.HandleFunc("POST "+DirectoryPath+"/deregister", s.serveDeregister)
	mux.HandleFunc("GET "+DirectoryPath, s.serveFind)
	mux.HandleFunc("GET "+MetricsPath, s.serveMetrics)
	return mux
}

// ListenAndServe serves on addr until ctx ends, then shuts down and waits
// for bridged sessions to unwind.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultHandshakeTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("hub listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.hub.Close()
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// session is one remote endpoint attached over a websocket.
type session struct {
	server  *Server
	conn    *websocket.Conn
	port    bus.Port
	writeMu sync.Mutex
	logger  *slog.Logger
}

func (s *Server) serveBus(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	conn.SetReadLimit(maxFrameSize)

	sess := &session{server: s, conn: conn, logger: s.logger}
	if err := sess.register(); err != nil {
		s.logger.Warn("bridge registration failed", slog.Any("error", err))
		_ = sess.write(frame{Op: opError, Error: err.Error()})
		_ = conn.Close()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.serve(r.Context())
	}()
}

func (sess *session) register() error {
	_ = sess.conn.SetReadDeadline(time.Now().Add(defaultHandshakeTimeout))
	_, data, err := sess.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read register frame: %w", err)
	}
	_ = sess.conn.SetReadDeadline(time.Time{})

	f, err := decodeFrame(data, opRegister)
	if err != nil {
		return err
	}
	port, err := sess.server.hub.Register(f.Name)
	if err != nil {
		return err
	}
	sess.port = port
	sess.logger = sess.logger.With(slog.String("endpoint", f.Name))
	if err := sess.write(frame{Op: opRegistered, Name: f.Name}); err != nil {
		_ = port.Close()
		return err
	}
	sess.logger.Debug("remote endpoint attached")
	return nil
}

// serve forwards inbound send frames to the hub and the endpoint's mailbox
// back to the remote side until either direction fails.
func (sess *session) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		sess.forward(ctx)
	}()

	sess.readLoop(ctx)
	cancel()
	_ = sess.port.Close()
	_ = sess.conn.Close()
	wg.Wait()
	sess.logger.Debug("remote endpoint detached")
}

func (sess *session) readLoop(ctx context.Context) {
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				sess.logger.Debug("bridge read ended", slog.Any("error", err))
			}
			return
		}

		f, err := decodeFrame(data, opSend)
		if err == nil && f.Message == nil {
			err = fmt.Errorf("%w: send without message", ErrBadFrame)
		}
		if err != nil {
			sess.logger.Warn("dropping bridge frame", slog.Any("error", err))
			_ = sess.write(frame{Op: opError, Error: err.Error()})
			continue
		}

		if err := sess.send(ctx, f); err != nil {
			sess.logger.Warn("bridged send failed", slog.Any("error", err))
			_ = sess.write(frame{Op: opError, Error: err.Error()})
		}
	}
}

func (sess *session) send(ctx context.Context, f frame) (err error) {
	f.Message.From = sess.port.Name()
	if len(f.Trace) == 0 {
		return sess.port.Send(ctx, f.Message)
	}

	ctx, span := sess.server.tracer.Start(tracing.Extract(ctx, f.Trace), "bridge send",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("spamfire.from", f.Message.From),
			attribute.Int("spamfire.receivers", len(f.Message.To)),
		),
	)
	defer func() { tracing.EndSpan(span, err) }()
	return sess.port.Send(ctx, f.Message)
}

func (sess *session) forward(ctx context.Context) {
	for {
		for msg := sess.port.Receive(nil); msg != nil; msg = sess.port.Receive(nil) {
			if err := sess.write(frame{Op: opDeliver, Message: msg}); err != nil {
				sess.logger.Debug("bridge write ended", slog.Any("error", err))
				_ = sess.conn.Close()
				return
			}
		}
		if err := sess.port.Wait(ctx); err != nil {
			_ = sess.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub closed"),
				time.Now().Add(time.Second),
			)
			_ = sess.conn.Close()
			return
		}
	}
}

func (sess *session) write(f frame) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	_ = sess.conn.SetWriteDeadline(time.Now().Add(sess.server.writeTimeout))
	return sess.conn.WriteJSON(f)
}

type registration struct {
	ID         string `json:"id"`
	Capability string `json:"capability,omitempty"`
}

type findResponse struct {
	IDs []string `json:"ids"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) serveRegister(w http.ResponseWriter, r *http.Request) {
	var reg registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	err := s.dir.Register(r.Context(), reg.ID, reg.Capability)
	switch {
	case errors.Is(err, directory.ErrAlreadyRegistered):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.logger.Debug("agent registered", slog.String("agent", reg.ID), slog.String("capability", reg.Capability))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) serveDeregister(w http.ResponseWriter, r *http.Request) {
	var reg registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	err := s.dir.Deregister(r.Context(), reg.ID)
	switch {
	case errors.Is(err, directory.ErrNotRegistered):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) serveFind(w http.ResponseWriter, r *http.Request) {
	capability := r.URL.Query().Get("capability")
	if capability == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "capability query parameter is required"})
		return
	}
	ids, err := s.dir.Find(r.Context(), capability)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, findResponse{IDs: ids})
}

func (s *Server) serveMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Metrics())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
