package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsPair upgrades one real WebSocket connection and returns both ends.
func wsPair(t *testing.T) (serverSide, clientSide *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}

	conns := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(ts.Close)

	clientSide, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientSide.Close() })

	select {
	case serverSide = <-conns:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the server side of the upgrade")
	}
	t.Cleanup(func() { _ = serverSide.Close() })

	return serverSide, clientSide
}

func TestWSConnFramesCarryLines(t *testing.T) {
	serverSide, clientSide := wsPair(t)
	conn := newWSConn(serverSide)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, clientSide.WriteMessage(websocket.TextMessage, []byte("hello")))

	buf := make([]byte, 32)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(buf[:n]))

	_, err = conn.Write([]byte("reply\n"))
	require.NoError(t, err)

	_, data, err := clientSide.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "reply", string(data), "the trailing newline must not leak into the frame")
}

func TestWSConnKeepaliveKeepsLivePeerOpen(t *testing.T) {
	serverSide, clientSide := wsPair(t)
	conn := newWSConnKeepalive(serverSide, 100*time.Millisecond, 300*time.Millisecond)
	t.Cleanup(func() { _ = conn.Close() })

	// The client read pump answers pings with pongs via the default handler.
	go func() {
		for {
			if _, _, err := clientSide.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		// Stay idle well past the pong deadline, then speak; the pongs in
		// between must have kept the connection alive.
		time.Sleep(900 * time.Millisecond)
		_ = clientSide.WriteMessage(websocket.TextMessage, []byte("still here"))
	}()

	buf := make([]byte, 32)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "still here\n", string(buf[:n]))
}

func TestWSConnKeepaliveDetectsDeadPeer(t *testing.T) {
	serverSide, clientSide := wsPair(t)
	conn := newWSConnKeepalive(serverSide, 100*time.Millisecond, 300*time.Millisecond)
	t.Cleanup(func() { _ = conn.Close() })

	// Swallow pings so the peer looks alive at the TCP level but dead at the
	// protocol level.
	clientSide.SetPingHandler(func(string) error { return nil })
	go func() {
		for {
			if _, _, err := clientSide.ReadMessage(); err != nil {
				return
			}
		}
	}()

	buf := make([]byte, 32)
	_, err := conn.Read(buf)
	require.Error(t, err, "reads must fail once the peer stops answering pings")
}

func TestWSConnCloseIsIdempotent(t *testing.T) {
	serverSide, _ := wsPair(t)
	conn := newWSConn(serverSide)

	require.NoError(t, conn.Close())
	assert.Error(t, conn.Close(), "second close reports the already-closed socket without panicking")
}
