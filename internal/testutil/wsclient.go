package testutil

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is a test-side websocket peer that speaks the event frame format
type WSClient struct {
	t    *testing.T
	conn *websocket.Conn
	ID   string
}

// received mirrors the server's outbound frame
type received struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DialWS connects to an http(s) test server URL plus path and waits for the
// connected frame so ID is populated
func DialWS(t *testing.T, serverURL, path string) *WSClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(serverURL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", url, err)
	}
	c := &WSClient{t: t, conn: conn}
	t.Cleanup(func() { _ = conn.Close() })

	var hello struct {
		ConnectionID string `json:"connectionId"`
	}
	c.Expect("connected", &hello)
	if hello.ConnectionID == "" {
		t.Fatal("connected frame carried no connectionId")
	}
	c.ID = hello.ConnectionID
	return c
}

// Send writes one event frame
func (c *WSClient) Send(event string, data interface{}) {
	c.t.Helper()
	if err := c.conn.WriteJSON(map[string]interface{}{"event": event, "data": data}); err != nil {
		c.t.Fatalf("Send %s failed: %v", event, err)
	}
}

// SendRaw writes an arbitrary text frame
func (c *WSClient) SendRaw(payload string) {
	c.t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		c.t.Fatalf("SendRaw failed: %v", err)
	}
}

// Expect reads frames until one with the given event arrives, decoding its
// data into out when out is non-nil. Other events are skipped.
func (c *WSClient) Expect(event string, out interface{}) {
	c.t.Helper()
	c.ExpectWhere(event, out, nil)
}

// ExpectWhere is Expect that also skips frames of the event whose decoded
// data fails match. A nil match accepts the first frame.
func (c *WSClient) ExpectWhere(event string, out interface{}, match func() bool) {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			c.t.Fatalf("SetReadDeadline failed: %v", err)
		}
		var frame received
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.t.Fatalf("Waiting for %s: %v", event, err)
		}
		if frame.Event != event {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(frame.Data, out); err != nil {
				c.t.Fatalf("Decoding %s payload: %v", event, err)
			}
		}
		if match == nil || match() {
			return
		}
	}
}

// ExpectClosed waits for the server to close the socket
func (c *WSClient) ExpectClosed() {
	c.t.Helper()
	if err := c.conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		c.t.Fatalf("SetReadDeadline failed: %v", err)
	}
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				c.t.Fatal("Connection was not closed by server")
			}
			return
		}
	}
}

// Close closes the client side of the socket
func (c *WSClient) Close() {
	_ = c.conn.Close()
}
