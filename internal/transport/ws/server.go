// Package ws accepts player websocket connections and bridges them to session
// handles.
//
// Each connection runs a read loop on the HTTP handler goroutine and a keepalive
// loop that sends control pings and WS_HEALTH_PING envelopes.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/smuggle/internal/config"
	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
	"github.com/cory-johannsen/smuggle/internal/game/session"
	"github.com/cory-johannsen/smuggle/internal/protocol"
)

// PlayerIDParam is the query parameter carrying the connecting player's id.
const PlayerIDParam = "player_id"

// Handler receives connection events. The game server's dispatcher implements it.
type Handler interface {
	// Admit decides whether playerID may connect; it runs before the upgrade.
	Admit(ctx context.Context, playerID int64) error
	// Connect creates the session for an upgraded connection.
	Connect(ctx context.Context, playerID int64, sender session.Sender) (*session.Handle, error)
	// Receive handles one inbound text frame.
	Receive(ctx context.Context, h *session.Handle, data []byte)
	// Disconnect runs once after the connection's read loop ends.
	Disconnect(h *session.Handle)
}

// Server is the websocket acceptor.
type Server struct {
	cfg      config.WebsocketConfig
	handler  Handler
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	http     *http.Server
	conns    map[*conn]struct{}
	shutdown bool
}

// NewServer creates a Server.
//
// Precondition: cfg must pass config validation; handler and logger must be non-nil.
func NewServer(cfg config.WebsocketConfig, handler Handler, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
}

// Handler returns an http.Handler serving the websocket endpoint at cfg.Path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s)
	return mux
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.http = srv
	s.mu.Unlock()

	s.logger.Info("websocket listening", zap.String("addr", lis.Addr().String()), zap.String("path", s.cfg.Path))
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

// Start listens on cfg.Addr and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(lis)
}

// Stop closes the listener and every open connection with CloseGoingAway.
func (s *Server) Stop() {
	s.mu.Lock()
	s.shutdown = true
	srv := s.http
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warn("websocket shutdown", zap.Error(err))
		}
	}
	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
}

// ServeHTTP upgrades one player connection and runs it until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.stopping() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	playerID, err := strconv.ParseInt(r.URL.Query().Get(PlayerIDParam), 10, 64)
	if err != nil || playerID <= 0 {
		http.Error(w, "player_id must be a positive integer", http.StatusBadRequest)
		return
	}
	if err := s.handler.Admit(r.Context(), playerID); err != nil {
		status := http.StatusForbidden
		if !gameerr.Rejectable(err) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Info("connection refused", zap.Int64("player_id", playerID), zap.Error(err))
		http.Error(w, err.Error(), status)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Int64("player_id", playerID), zap.Error(err))
		return
	}
	c := newConn(wsConn, s.cfg.WriteWait, s.logger.With(zap.Int64("player_id", playerID)))
	if !s.track(c) {
		c.close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.untrack(c)

	h, err := s.handler.Connect(r.Context(), playerID, c)
	if err != nil {
		s.refuse(c, playerID, err)
		return
	}

	go s.keepalive(c, h)
	s.readLoop(r.Context(), c, h)
	s.handler.Disconnect(h)
	c.close(websocket.CloseNormalClosure, "")
}

// refuse tells the client why its session could not be created and closes.
// A timeout asks the client to reconnect.
func (s *Server) refuse(c *conn, playerID int64, err error) {
	s.logger.Warn("session creation failed", zap.Int64("player_id", playerID), zap.Error(err))
	if errors.Is(err, gameerr.ErrTimeout) {
		_ = c.Send(protocol.MustEnvelope(protocol.WSReconnect, protocol.ExceptionPayload{
			Kind:    gameerr.Kind(err),
			Message: "session could not be created in time, reconnect",
		}))
		c.close(websocket.CloseTryAgainLater, "retry")
		return
	}
	_ = c.Send(protocol.MustEnvelope(protocol.ExceptionMessage, protocol.ExceptionPayload{
		Kind:    gameerr.Kind(err),
		Message: err.Error(),
	}))
	c.close(websocket.CloseInternalServerErr, "session unavailable")
}

func (s *Server) readLoop(ctx context.Context, c *conn, h *session.Handle) {
	c.ws.SetReadLimit(s.cfg.ReadLimit)
	extend := func() {
		if err := c.ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait)); err != nil {
			c.logger.Debug("set read deadline", zap.Error(err))
		}
	}
	extend()
	c.ws.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Info("websocket read error", zap.Error(err))
			}
			return
		}
		extend()
		if msgType != websocket.TextMessage {
			continue
		}
		s.handler.Receive(ctx, h, data)
	}
}

// keepalive pings the peer and closes the socket once the session handle is done.
func (s *Server) keepalive(c *conn, h *session.Handle) {
	pings := time.NewTicker(s.cfg.PingPeriod)
	health := time.NewTicker(s.cfg.HealthPingPeriod)
	defer pings.Stop()
	defer health.Stop()

	for {
		select {
		case <-c.Closed():
			return
		case <-h.Done():
			c.close(websocket.CloseNormalClosure, "session closed")
			return
		case <-pings.C:
			if err := c.ping(); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-health.C:
			if err := h.Deliver(protocol.Empty(protocol.WSHealthPing)); err != nil {
				c.logger.Debug("health ping not queued", zap.Error(err))
			}
		}
	}
}

func (s *Server) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}
