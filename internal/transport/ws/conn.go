package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/smuggle/internal/protocol"
)

// errConnClosed is returned by Send after the connection closed.
var errConnClosed = errors.New("websocket connection closed")

// conn is one player's websocket. It implements session.Sender.
//
// Writes are serialized by writeMu; gorilla permits one concurrent writer plus
// WriteControl and Close from any goroutine.
type conn struct {
	ws        *websocket.Conn
	writeWait time.Duration
	logger    *zap.Logger

	writeMu   sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, writeWait time.Duration, logger *zap.Logger) *conn {
	return &conn{
		ws:        ws,
		writeWait: writeWait,
		logger:    logger,
		closed:    make(chan struct{}),
	}
}

// Send writes env as one JSON text frame.
func (c *conn) Send(env protocol.Envelope) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(env)
}

// ping writes a control ping frame.
func (c *conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// close sends a close frame with code and reason, then closes the socket.
// Safe to call multiple times.
func (c *conn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		msg := websocket.FormatCloseMessage(code, reason)
		if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait)); err != nil {
			c.logger.Debug("write close message failed", zap.Error(err))
		}
		if err := c.ws.Close(); err != nil {
			c.logger.Debug("closing websocket", zap.Error(err))
		}
	})
}

// Closed is closed once close has run.
func (c *conn) Closed() <-chan struct{} { return c.closed }
