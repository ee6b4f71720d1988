package push

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// handshakeTimeout bounds the websocket dial itself.
	handshakeTimeout = 10 * time.Second

	// pongWait is how long a healthy connection may stay silent before a
	// read fails. The server pings well inside this window.
	pongWait = 60 * time.Second
)

// Dialer opens push transports. The default implementation speaks websocket
// to the backend's alarm endpoint; tests substitute in-memory fakes.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// Conn is one physical push connection. ReadMessage blocks until a message
// arrives, the deadline passes, or the transport dies.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// WebsocketDialer dials the backend push endpoint over websocket.
type WebsocketDialer struct{}

// Dial implements Dialer.
func (WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	c, resp, err := d.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	return data, err
}

func (w *wsConn) Close() error {
	// Best-effort close frame so the server tears the stream down promptly.
	_ = w.c.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return w.c.Close()
}
