package transport

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

var testUpgrader = websocket.Upgrader{}

// echoServer greets every connection and then echoes whatever it receives.
func echoServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		if err := conn.WriteMessage(websocket.TextMessage, []byte("welcome")); err != nil {
			return
		}
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWebsocketRoundtrip(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	ws, err := DialWebsocket(wsURL(server))
	require.NoError(t, err)
	defer ws.Close()

	received := collectMessages(ws)

	// the greeting was sent before our handler existed, backlog replay
	// hands it over first
	assert.Equal(t, "welcome", waitMessage(t, received))

	assert.NoError(t, ws.Send("ping"))
	assert.Equal(t, "ping", waitMessage(t, received))
}

func TestWebsocketDialFailure(t *testing.T) {
	_, err := DialWebsocket("ws://127.0.0.1:1/nowhere", WithDialAttempts(2), WithDialDelay(10*time.Millisecond))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "could not connect to relay")
}

func TestWebsocketSendAfterClose(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	ws, err := DialWebsocket(wsURL(server))
	require.NoError(t, err)
	require.NoError(t, ws.Close())

	time.Sleep(50 * time.Millisecond)
	assert.Error(t, ws.Send("too late"))
}
