// Package testhelpers provides common utilities and helper functions for
// testing the relay.
//
// It contains reusable line-protocol clients for TCP and WebSocket transports
// that are shared across integration tests, reducing duplication when a test
// needs to join the chat, exchange lines, and assert on server responses.
package testhelpers

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ioTimeout = 2 * time.Second

// ChatClient is a line-oriented TCP test client for the relay.
type ChatClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects a ChatClient to the relay's TCP endpoint. The connection is
// closed automatically at the end of the test.
func Dial(t *testing.T, addr string) *ChatClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err, "failed to dial relay at %s", addr)
	t.Cleanup(func() { _ = conn.Close() })

	return &ChatClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

// SendLine writes one newline-terminated line to the server.
func (c *ChatClient) SendLine(line string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(ioTimeout)))
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.t, err)
}

// ReadLine reads the next line from the server, failing the test on timeout.
func (c *ChatClient) ReadLine() string {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	line, err := c.reader.ReadString('\n')
	require.NoError(c.t, err, "expected a line from the server")
	return strings.TrimSuffix(line, "\n")
}

// ExpectLine asserts that the next line from the server equals want.
func (c *ChatClient) ExpectLine(want string) {
	c.t.Helper()
	assert.Equal(c.t, want, c.ReadLine())
}

// ExpectNoLine asserts that the server sends nothing for the given duration.
func (c *ChatClient) ExpectNoLine(wait time.Duration) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(wait)))
	line, err := c.reader.ReadString('\n')
	if err == nil {
		c.t.Fatalf("expected no traffic, received %q", line)
	}
	var netErr net.Error
	require.ErrorAs(c.t, err, &netErr)
	assert.True(c.t, netErr.Timeout(), "read should have timed out, got: %v", err)
}

// ExpectClosed asserts that the server has closed the connection.
func (c *ChatClient) ExpectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	_, err := c.reader.ReadString('\n')
	assert.ErrorIs(c.t, err, io.EOF)
}

// ExpectEventuallyClosed reads and discards any in-flight lines (such as
// departure announcements racing a shutdown) until the server closes the
// connection.
func (c *ChatClient) ExpectEventuallyClosed() {
	c.t.Helper()
	for i := 0; i < 100; i++ {
		require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
		if _, err := c.reader.ReadString('\n'); err != nil {
			return
		}
	}
	c.t.Fatal("connection was never closed by the server")
}

// Close closes the client's end of the connection.
func (c *ChatClient) Close() {
	_ = c.conn.Close()
}

// Join completes the naming handshake and consumes the client's own join
// announcement.
func (c *ChatClient) Join(name string) {
	c.t.Helper()
	c.ExpectLine("Enter your Username:")
	c.SendLine(name)
	c.ExpectLine("*** " + name + " has joined the chat ***")
}

// WSClient is a line-oriented WebSocket test client: one text frame carries
// one protocol line.
type WSClient struct {
	t    *testing.T
	conn *websocket.Conn
}

// ConnectWebSocket dials the relay's WebSocket bridge with an Origin header
// the default test configuration accepts.
func ConnectWebSocket(t *testing.T, url string) *WSClient {
	t.Helper()
	header := http.Header{}
	header.Set("Origin", "http://localhost:8081")

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	require.NoError(t, err, "failed to dial WebSocket bridge at %s", url)
	t.Cleanup(func() { _ = conn.Close() })

	return &WSClient{t: t, conn: conn}
}

// SendLine sends one protocol line as a text frame.
func (c *WSClient) SendLine(line string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(line)))
}

// ReadLine reads the next text frame, failing the test on timeout.
func (c *WSClient) ReadLine() string {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err, "expected a frame from the server")
	return string(data)
}

// ExpectLine asserts that the next frame from the server equals want.
func (c *WSClient) ExpectLine(want string) {
	c.t.Helper()
	assert.Equal(c.t, want, c.ReadLine())
}

// ExpectClosed asserts that the server has closed the WebSocket.
func (c *WSClient) ExpectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	_, _, err := c.conn.ReadMessage()
	assert.Error(c.t, err)
}

// Join completes the naming handshake over the bridge.
func (c *WSClient) Join(name string) {
	c.t.Helper()
	c.ExpectLine("Enter your Username:")
	c.SendLine(name)
	c.ExpectLine("*** " + name + " has joined the chat ***")
}
