// Package server exposes HTTP handlers for the WebSocket bridge, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Bridge serves chat sessions over WebSocket. Bridged clients share the
// relay's Registry and Bus, so they chat with TCP clients transparently:
// one text frame carries one protocol line in each direction.
type Bridge struct {
	relay    *Relay
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewBridge creates a Bridge feeding sessions into the given relay, with
// origin checking configured from cfg.AllowedOrigins.
func NewBridge(relay *Relay, cfg Config, log zerolog.Logger) *Bridge {
	log = log.With().Str("component", "bridge").Logger()
	origin := newOriginPolicy(cfg.AllowedOrigins, log)

	return &Bridge{
		relay: relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origin.check,
		},
		log: log,
	}
}

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the HTTP connection, and hands the
// adapted connection to the relay, which runs the usual session handshake
// over it.
func (b *Bridge) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	if err := b.relay.StartSession(newWSConn(conn)); err != nil {
		b.log.Warn().Err(err).Msg("rejecting WebSocket client, relay is shutting down")
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server
// status as plain text.
func (b *Bridge) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Nexus Relay is running! %d client(s) connected.", b.relay.Registry().Len())
}

// TestPageHandler serves an HTML test page for exercising the chat over
// WebSocket: a minimal browser client that completes the naming handshake
// and speaks the line protocol.
func (b *Bridge) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Nexus Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] {
            width: 300px;
            padding: 5px;
            margin-right: 10px;
        }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status {
            margin: 10px 0;
            padding: 5px;
            border-radius: 3px;
        }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Nexus Relay Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a line (name first, then chat or /users, /quit)..." disabled>
        <button id="sendButton" onclick="sendLine()" disabled>Send</button>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addLine(line, type = 'info') {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.padding = '3px';
            el.style.color = type === 'sent' ? 'blue' : type === 'received' ? 'green' : 'gray';
            el.textContent = line;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            ws = new WebSocket('ws://' + window.location.host + '/ws');
            ws.onopen = function() { addLine('Connected to Nexus Relay'); updateStatus(true); };
            ws.onmessage = function(event) { addLine(event.data, 'received'); };
            ws.onclose = function() { addLine('Connection closed'); updateStatus(false); ws = null; };
            ws.onerror = function(error) { addLine('Connection error: ' + error); updateStatus(false); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendLine() {
            const line = messageInput.value.trim();
            if (line && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(line);
                addLine(line, 'sent');
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendLine();
            }
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		b.log.Warn().Err(err).Msg("error writing HTML response")
	}
}
