package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"webchat/internal/domain"
	"webchat/internal/infra/config"
	"webchat/internal/infra/metrics"
	"webchat/internal/infra/middleware"
	"webchat/internal/usecase"
)

// RPCHandler handles a single RPC method call for one connected client.
type RPCHandler func(ctx context.Context, c *Client, payload json.RawMessage) (json.RawMessage, error)

var errClientGone = errors.New("gateway: client disconnected")

// defaultOrigins are accepted in addition to same-origin requests.
var defaultOrigins = []string{
	"localhost",
	"localhost:*",
	"127.0.0.1",
	"127.0.0.1:*",
	"[::1]",
	"[::1]:*",
}

// Client is one WebSocket connection and the chat session it owns.
type Client struct {
	ID      uint64
	Info    *ClientInfo
	Session *usecase.Session

	ws        *websocket.Conn
	sendCh    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Client) close() { c.closeOnce.Do(func() { close(c.done) }) }

// send queues f for the write loop. It blocks until there is room so that
// frames are never dropped or reordered, and fails once the client is gone.
func (c *Client) send(f Frame) error {
	select {
	case c.sendCh <- f:
		return nil
	case <-c.done:
		return errClientGone
	}
}

// Emit pushes an event to the client.
func (c *Client) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	return c.send(Frame{Type: FrameTypeEvent, Event: event, Payload: data})
}

// Deps holds what the gateway serves.
type Deps struct {
	Sessions   *usecase.SessionManager
	Controller *usecase.Controller
	Auth       Authenticator
	Metrics    *metrics.Collector // nil disables /metrics and RPC counters
	Markdown   *Markdown
	Logger     *slog.Logger
	Status     StatusInfo
}

// Server is the HTTP + WebSocket front end of the chat.
type Server struct {
	cfg         config.ServerConfig
	metricsPath string
	deps        Deps
	logger      *slog.Logger

	handlersMu sync.RWMutex
	handlers   map[string]RPCHandler

	clients   sync.Map // conn ID -> *Client
	nextID    atomic.Uint64
	startTime time.Time

	httpSrv   *http.Server
	boundMu   sync.RWMutex
	boundAddr string
}

// NewServer creates a gateway server with the built-in RPC methods
// registered. metricsPath is where the collector is mounted when
// deps.Metrics is set.
func NewServer(cfg config.ServerConfig, metricsPath string, deps Deps) *Server {
	if deps.Markdown == nil {
		deps.Markdown = NewMarkdown()
	}
	if deps.Auth == nil {
		deps.Auth = NewAuthenticator(cfg.Auth.Tokens)
	}
	s := &Server{
		cfg:         cfg,
		metricsPath: metricsPath,
		deps:        deps,
		logger:      deps.Logger,
		handlers:    make(map[string]RPCHandler),
		startTime:   time.Now(),
	}
	registerDefaultHandlers(s)
	return s
}

// RegisterHandler adds an RPC handler for the given method name.
// Safe to call concurrently with active connections.
func (s *Server) RegisterHandler(method string, handler RPCHandler) {
	s.handlersMu.Lock()
	s.handlers[method] = handler
	s.handlersMu.Unlock()
}

// Handler builds the HTTP routes. Background work started for the
// middleware stops when ctx is cancelled.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.AccessLog(s.logger), middleware.SecurityHeaders)
	if s.cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerSecond: s.cfg.RateLimit.RequestsPerSecond,
			Burst:             s.cfg.RateLimit.Burst,
			TrustedProxies:    s.cfg.TrustedProxies,
		}))
	}

	r.Get("/", serveIndex)
	r.Handle("/static/*", staticHandler())
	r.Get("/healthz", healthHandler)
	r.Get("/ws", s.handleUpgrade)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth(s.deps.Auth))
		r.Get("/api/v1/status", s.statusHandler)
		if s.deps.Metrics != nil && s.metricsPath != "" {
			r.Handle(s.metricsPath, s.deps.Metrics.Handler())
		}
	})
	return r
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundMu.Lock()
	s.boundAddr = listener.Addr().String()
	s.httpSrv = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpSrv
	s.boundMu.Unlock()

	s.logger.Info("gateway started", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Stop(shutdownCtx)
}

// Stop closes every client connection and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.clients.Range(func(_, value any) bool {
		c := value.(*Client)
		c.close()
		c.ws.Close(websocket.StatusGoingAway, "server shutting down")
		return true
	})

	s.boundMu.RLock()
	srv := s.httpSrv
	s.boundMu.RUnlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	s.logger.Info("gateway stopped")
	return nil
}

// BoundAddr returns the address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string {
	s.boundMu.RLock()
	defer s.boundMu.RUnlock()
	return s.boundAddr
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Auth.Authenticate(requestToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	session, err := s.deps.Sessions.Create()
	if err != nil {
		s.logger.Warn("session rejected", "error", err)
		http.Error(w, "too many active sessions", http.StatusServiceUnavailable)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: append(append([]string{}, defaultOrigins...), s.cfg.AllowedOrigins...),
	})
	if err != nil {
		_ = s.deps.Sessions.Delete(session.ID)
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	c := &Client{
		ID:      s.nextID.Add(1),
		Info:    info,
		Session: session,
		ws:      ws,
		sendCh:  make(chan Frame, 64),
		done:    make(chan struct{}),
	}
	s.clients.Store(c.ID, c)
	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionOpened()
	}
	s.logger.Info("session opened", "conn_id", c.ID, "session_id", session.ID, "client", info.Name)

	// The session's turns are bound to the connection.
	ctx, cancel := context.WithCancel(r.Context())
	var inflight sync.WaitGroup

	go s.writeLoop(c)

	if err := c.Emit(EventSessionReady, newSessionInfo(session)); err == nil {
		s.readLoop(ctx, c, &inflight)
	}

	cancel()
	c.close()
	inflight.Wait()
	s.clients.Delete(c.ID)
	_ = s.deps.Sessions.Delete(session.ID)
	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionClosed()
	}
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("session closed", "conn_id", c.ID, "session_id", session.ID)
}

func (s *Server) readLoop(ctx context.Context, c *Client, inflight *sync.WaitGroup) {
	for {
		var frame Frame
		if err := wsjson.Read(ctx, c.ws, &frame); err != nil {
			return // connection closed or error
		}
		if frame.Type != FrameTypeRequest {
			continue
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			s.dispatchRPC(ctx, c, frame)
		}()
	}
}

func (s *Server) writeLoop(c *Client) {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, c.ws, frame)
			cancel()
			if err != nil {
				s.logger.Debug("gateway write failed", "conn_id", c.ID, "error", err)
				c.close()
				return
			}
		}
	}
}

func (s *Server) dispatchRPC(ctx context.Context, c *Client, req Frame) {
	s.handlersMu.RLock()
	handler, ok := s.handlers[req.Method]
	s.handlersMu.RUnlock()

	var (
		result json.RawMessage
		err    error
	)
	if ok {
		result, err = handler(ctx, c, req.Payload)
	} else {
		err = domain.ErrRPCMethodNotFound
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RPC(req.Method, err)
	}
	s.sendResponse(c, req.ID, result, err)
}

func (s *Server) sendResponse(c *Client, id uint64, result json.RawMessage, err error) {
	resp := Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		Payload: result,
	}
	if err != nil {
		resp.Error = errorMessage(err)
		resp.Code = string(domain.ErrorCodeOf(err))
	}
	if sendErr := c.send(resp); sendErr != nil {
		s.logger.Debug("gateway: response not delivered", "conn_id", c.ID, "frame_id", id)
	}
}

// errorMessage returns the text shown to the user for err.
func errorMessage(err error) string {
	var ce *domain.ChatError
	if errors.As(err, &ce) {
		return ce.Message
	}
	var de *domain.DomainError
	if errors.As(err, &de) {
		return de.Err.Error()
	}
	return err.Error()
}
