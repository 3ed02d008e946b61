// Package server adapts WebSocket connections to the line-oriented transport
// the session handler expects.
package server

import (
	"bytes"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// wsPongWait bounds how long a bridged peer may go without answering a
	// ping before its reads fail.
	wsPongWait = 60 * time.Second
	// wsPingPeriod must be shorter than wsPongWait so a live peer always
	// refreshes its deadline in time.
	wsPingPeriod = 54 * time.Second
)

// wsConn presents a *websocket.Conn as a Conn: each inbound text frame is one
// newline-terminated line, and each outbound line becomes one text frame.
// The session's single reader goroutine is the only caller of Read, and the
// session loop is the only caller of Write, matching the one-reader
// one-writer contract of gorilla connections. A background keepalive pings
// the peer so a silently-vanished browser is detected by the read side
// instead of lingering until the next write.
type wsConn struct {
	ws   *websocket.Conn
	buf  bytes.Buffer
	stop chan struct{}
	once sync.Once
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return newWSConnKeepalive(ws, wsPingPeriod, wsPongWait)
}

func newWSConnKeepalive(ws *websocket.Conn, pingPeriod, pongWait time.Duration) *wsConn {
	c := &wsConn{ws: ws, stop: make(chan struct{})}

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.keepalive(pingPeriod)

	return c
}

// keepalive pings the peer until the connection closes. Control frames may be
// written concurrently with the session's data frames.
func (c *wsConn) keepalive(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(pingPeriod)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-c.stop:
			return
		}
	}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for c.buf.Len() == 0 {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.buf.Write(data)
		c.buf.WriteByte('\n')
	}
	return c.buf.Read(p)
}

func (c *wsConn) Write(p []byte) (int, error) {
	message := bytes.TrimSuffix(p, []byte{'\n'})
	if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.once.Do(func() { close(c.stop) })

	// Best effort close frame so browsers see a clean shutdown.
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.ws.Close()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}
