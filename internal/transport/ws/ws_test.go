package ws_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/smuggle/internal/config"
	"github.com/cory-johannsen/smuggle/internal/game/event"
	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
	"github.com/cory-johannsen/smuggle/internal/game/session"
	"github.com/cory-johannsen/smuggle/internal/protocol"
	"github.com/cory-johannsen/smuggle/internal/testutil"
	"github.com/cory-johannsen/smuggle/internal/transport/ws"
)

// echoHandler answers every frame with HEARTBEAT_PONG.
type echoHandler struct {
	supervisor *session.Supervisor
	blocked    map[int64]bool
	admitErr   error
	connectErr error

	mu           sync.Mutex
	handles      map[int64]*session.Handle
	disconnected chan int64
}

func (h *echoHandler) Admit(_ context.Context, playerID int64) error {
	if h.admitErr != nil {
		return h.admitErr
	}
	if h.blocked[playerID] {
		return gameerr.Argumentf("player %d is blocked", playerID)
	}
	return nil
}

func (h *echoHandler) Connect(ctx context.Context, playerID int64, sender session.Sender) (*session.Handle, error) {
	if h.connectErr != nil {
		return nil, h.connectErr
	}
	handle, err := h.supervisor.CreateSession(ctx, playerID, sender)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.handles[playerID] = handle
	h.mu.Unlock()
	return handle, nil
}

func (h *echoHandler) Receive(_ context.Context, handle *session.Handle, _ []byte) {
	_ = handle.Deliver(protocol.Empty(protocol.HeartbeatPong))
}

func (h *echoHandler) Disconnect(handle *session.Handle) {
	h.supervisor.Remove(handle.PlayerID(), handle)
	h.disconnected <- handle.PlayerID()
}

func (h *echoHandler) handle(playerID int64) *session.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handles[playerID]
}

func testConfig() config.WebsocketConfig {
	return config.WebsocketConfig{
		Host:             "127.0.0.1",
		Port:             0,
		Path:             "/ws",
		ReadLimit:        4096,
		WriteWait:        time.Second,
		PongWait:         5 * time.Second,
		PingPeriod:       time.Second,
		HealthPingPeriod: time.Hour,
		SendBuffer:       16,
	}
}

func newServer(t *testing.T, cfg config.WebsocketConfig) (*ws.Server, *echoHandler, string) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	sup := session.NewSupervisor(session.NewRegistry(), event.NewPublisher(event.NewBus(logger), logger), logger, time.Second, cfg.SendBuffer)
	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)
	t.Cleanup(cancel)

	h := &echoHandler{
		supervisor:   sup,
		blocked:      map[int64]bool{},
		handles:      map[int64]*session.Handle{},
		disconnected: make(chan int64, 8),
	}
	srv := ws.NewServer(cfg, h, logger)
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)
	return srv, h, httpSrv.URL + cfg.Path
}

func TestServer_RoundTrip(t *testing.T) {
	_, _, url := newServer(t, testConfig())
	c := testutil.DialWS(t, url+"?player_id=1")

	c.Send(protocol.Command{Type: protocol.Heartbeat})
	env := c.ReadUntil(protocol.HeartbeatPong, 2*time.Second)
	assert.JSONEq(t, `{}`, string(env.Payload))
}

func TestServer_HealthPings(t *testing.T) {
	cfg := testConfig()
	cfg.HealthPingPeriod = 20 * time.Millisecond
	_, _, url := newServer(t, cfg)
	c := testutil.DialWS(t, url+"?player_id=1")

	env := c.ReadUntil(protocol.WSHealthPing, 2*time.Second)
	assert.JSONEq(t, `{}`, string(env.Payload))
}

func TestServer_RefusesHandshake(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		admitErr error
		status   int
	}{
		{name: "missing player id", query: "", status: http.StatusBadRequest},
		{name: "non numeric player id", query: "?player_id=abc", status: http.StatusBadRequest},
		{name: "negative player id", query: "?player_id=-3", status: http.StatusBadRequest},
		{name: "blocked", query: "?player_id=9", status: http.StatusForbidden},
		{name: "blacklist unavailable", query: "?player_id=1", admitErr: errors.New("db down"), status: http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, h, url := newServer(t, testConfig())
			h.blocked[9] = true
			h.admitErr = tc.admitErr

			conn, resp, err := testutil.DialWSRaw(url + tc.query)
			if conn != nil {
				conn.Close()
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestServer_ConnectTimeoutAsksToReconnect(t *testing.T) {
	_, h, url := newServer(t, testConfig())
	h.connectErr = gameerr.Timeoutf("no reply")

	c := testutil.DialWS(t, url+"?player_id=1")
	env := c.ReadUntil(protocol.WSReconnect, 2*time.Second)
	var payload protocol.ExceptionPayload
	require.NoError(t, env.Decode(&payload))
	assert.Equal(t, "timeout", payload.Kind)

	_, _, err := c.Conn().ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseTryAgainLater, closeErr.Code)
}

func TestServer_ConnectFailureSendsException(t *testing.T) {
	_, h, url := newServer(t, testConfig())
	h.connectErr = errors.New("supervisor stopped")

	c := testutil.DialWS(t, url+"?player_id=1")
	env := c.ReadUntil(protocol.ExceptionMessage, 2*time.Second)
	var payload protocol.ExceptionPayload
	require.NoError(t, env.Decode(&payload))
	assert.Equal(t, "internal", payload.Kind)
}

func TestServer_ClientCloseDisconnects(t *testing.T) {
	_, h, url := newServer(t, testConfig())
	c := testutil.DialWS(t, url+"?player_id=4")
	c.Send(protocol.Command{Type: protocol.Heartbeat})
	c.ReadUntil(protocol.HeartbeatPong, 2*time.Second)

	require.NoError(t, c.Conn().Close())
	select {
	case id := <-h.disconnected:
		assert.Equal(t, int64(4), id)
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect was not called")
	}
}

func TestServer_ClosedHandleClosesConnection(t *testing.T) {
	_, h, url := newServer(t, testConfig())
	c := testutil.DialWS(t, url+"?player_id=5")
	c.Send(protocol.Command{Type: protocol.Heartbeat})
	c.ReadUntil(protocol.HeartbeatPong, 2*time.Second)

	handle := h.handle(5)
	require.NotNil(t, handle)
	require.NoError(t, handle.Deliver(protocol.Empty(protocol.WSReconnect)))
	handle.Close()

	c.ReadUntil(protocol.WSReconnect, 2*time.Second)
	_ = c.Conn().SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.Conn().ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestServer_OversizedFrameDropsConnection(t *testing.T) {
	cfg := testConfig()
	cfg.ReadLimit = 64
	_, h, url := newServer(t, cfg)
	c := testutil.DialWS(t, url+"?player_id=6")

	big := make([]byte, 1024)
	for i := range big {
		big[i] = 'x'
	}
	require.NoError(t, c.Conn().WriteMessage(websocket.TextMessage, big))
	select {
	case id := <-h.disconnected:
		assert.Equal(t, int64(6), id)
	case <-time.After(2 * time.Second):
		t.Fatal("oversized frame did not end the connection")
	}
}

func TestServer_StopClosesConnections(t *testing.T) {
	srv, h, url := newServer(t, testConfig())
	c := testutil.DialWS(t, url+"?player_id=7")
	c.Send(protocol.Command{Type: protocol.Heartbeat})
	c.ReadUntil(protocol.HeartbeatPong, 2*time.Second)

	srv.Stop()

	_ = c.Conn().SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.Conn().ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
	select {
	case <-h.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect was not called after Stop")
	}

	conn, resp, err := testutil.DialWSRaw(url + "?player_id=8")
	if conn != nil {
		conn.Close()
	}
	require.Error(t, err, "dial after Stop must fail")
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
