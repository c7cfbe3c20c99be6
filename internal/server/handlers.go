// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// NewWebSocketHandler returns the upgrade handler for the given hub. It
// validates the GET method, upgrades the connection with origin checking
// against the configured allow-list, and registers the new client with the
// hub, which launches the pump goroutines.
func NewWebSocketHandler(hub *Hub) http.HandlerFunc {
	policy := newOriginPolicy(hub.cfg.AllowedOrigins, hub.log)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("WebSocket upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)
		hub.register <- client
	}
}

// HealthHandler provides a simple health check endpoint that returns server
// status as plain text.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat relay server is running!")
}

// NewTestPageHandler serves an HTML page speaking the full event protocol:
// join, broadcast, typing, and private messages. It is a development stand-in
// for the real client application.
func NewTestPageHandler(log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := fmt.Fprint(w, testPageHTML); err != nil {
			log.Warn("Error writing HTML response", zap.Error(err))
		}
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Relay Test</title>
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
        #users { color: #555; margin: 10px 0; }
        #typing { color: #999; font-style: italic; height: 1em; }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        #messageInput { width: 300px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
    </style>
</head>
<body>
    <h1>Chat Relay Test</h1>

    <div>
        <input type="text" id="nameInput" placeholder="Display name...">
        <button onclick="join()">Join</button>
    </div>

    <div id="users"></div>
    <div id="messages"></div>
    <div id="typing"></div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <input type="text" id="recipientInput" placeholder="DM recipient (optional)" disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <script>
        let ws = null;
        let users = [];
        let typingTimer = null;
        const messagesDiv = document.getElementById('messages');
        const usersDiv = document.getElementById('users');
        const typingDiv = document.getElementById('typing');
        const messageInput = document.getElementById('messageInput');
        const recipientInput = document.getElementById('recipientInput');
        const sendButton = document.getElementById('sendButton');

        function addLine(text, color) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.color = color || 'black';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function renderUsers() {
            usersDiv.textContent = 'Online: ' + users.join(', ');
        }

        function send(event, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({event: event, data: data}));
            }
        }

        function join() {
            const name = document.getElementById('nameInput').value.trim();
            if (!name) return;

            ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onopen = function() {
                send('join', name);
                messageInput.disabled = false;
                recipientInput.disabled = false;
                sendButton.disabled = false;
            };
            ws.onmessage = function(raw) {
                const frame = JSON.parse(raw.data);
                switch (frame.event) {
                case 'activeUsers':
                    users = frame.data;
                    renderUsers();
                    break;
                case 'userJoined':
                    users.push(frame.data);
                    renderUsers();
                    addLine(frame.data + ' joined', 'gray');
                    break;
                case 'userLeft':
                    users = users.filter(function(u) { return u !== frame.data; });
                    renderUsers();
                    addLine(frame.data + ' left', 'gray');
                    break;
                case 'userTyping':
                    typingDiv.textContent = frame.data.isTyping
                        ? frame.data.username + ' is typing...' : '';
                    break;
                case 'receiveMessage':
                    addLine(frame.data.sender + ': ' + frame.data.text, 'black');
                    break;
                case 'receivePrivateMessage':
                    addLine('[DM] ' + frame.data.sender + ': ' + frame.data.text, 'purple');
                    break;
                }
            };
            ws.onclose = function() {
                addLine('Connection closed', 'gray');
                messageInput.disabled = true;
                recipientInput.disabled = true;
                sendButton.disabled = true;
                ws = null;
            };
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            if (!text) return;
            const recipient = recipientInput.value.trim();
            if (recipient) {
                send('privateMessage', {recipient: recipient, message: text});
            } else {
                send('sendMessage', {text: text});
            }
            send('typing', false);
            messageInput.value = '';
        }

        messageInput.addEventListener('input', function() {
            send('typing', true);
            clearTimeout(typingTimer);
            typingTimer = setTimeout(function() { send('typing', false); }, 1000);
        });
        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') sendMessage();
        });
    </script>
</body>
</html>`
