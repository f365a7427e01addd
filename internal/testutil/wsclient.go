package testutil

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cory-johannsen/smuggle/internal/protocol"
)

// WSClient is a websocket test client speaking the game protocol.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// DialWS connects to url, converting an http:// scheme to ws://.
//
// Postcondition: Returns a connected client or fails the test. The connection is
// closed by t.Cleanup.
func DialWS(t *testing.T, url string) *WSClient {
	t.Helper()
	conn, resp, err := DialWSRaw(url)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dialing %s: %v (status %d)", url, err, status)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &WSClient{conn: conn, t: t}
}

// DialWSRaw dials without failing the test, for asserting on rejected handshakes.
func DialWSRaw(url string) (*websocket.Conn, *http.Response, error) {
	url = strings.Replace(url, "http://", "ws://", 1)
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	return dialer.Dial(url, nil)
}

// Send writes cmd as a JSON text frame.
func (c *WSClient) Send(cmd protocol.Command) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteJSON(cmd); err != nil {
		c.t.Fatalf("sending %s: %v", cmd.Type, err)
	}
}

// ReadUntil reads envelopes until one of type want arrives, skipping others.
//
// Postcondition: Returns the matching envelope, or fails the test on timeout.
func (c *WSClient) ReadUntil(want protocol.MessageType, timeout time.Duration) protocol.Envelope {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	var seen []protocol.MessageType
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("reading until %s: saw %v, error: %v", want, seen, err)
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.t.Fatalf("decoding envelope %q: %v", data, err)
		}
		if env.Type == want {
			return env
		}
		seen = append(seen, env.Type)
	}
}

// Conn exposes the underlying connection for protocol-level assertions.
func (c *WSClient) Conn() *websocket.Conn { return c.conn }
