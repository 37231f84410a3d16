package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// clientConn is the relay.Conn for one websocket. gorilla allows one
// concurrent writer, so every data frame goes through mu.
type clientConn struct {
	rawConn *websocket.Conn
	mu      sync.Mutex
}

func newClientConn(raw *websocket.Conn) *clientConn { return &clientConn{rawConn: raw} }

// Send writes payload as one text frame. The write deadline comes from ctx,
// falling back to writeWait.
func (c *clientConn) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(deadline(ctx))
	return c.rawConn.WriteMessage(websocket.TextMessage, payload)
}

func (c *clientConn) ping() error {
	return c.rawConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// closeWith sends a close frame and tears the socket down.
func (c *clientConn) closeWith(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.rawConn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.rawConn.Close()
}

func deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(writeWait)
}
