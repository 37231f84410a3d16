package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"roomrelay/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRelay struct {
	srv      *httptest.Server
	ws       *WsServer
	registry *relay.Registry
}

func newTestRelay(t *testing.T, opts Options) *testRelay {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := relay.NewRegistry()
	sessions := relay.NewSessions(reg, relay.NewEngine(reg, relay.WithSendTimeout(time.Second)), nil)
	wsSrv := NewWsServer(sessions, opts)

	r := gin.New()
	r.GET("/ws/:user_id/:room_id", wsSrv.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testRelay{srv: srv, ws: wsSrv, registry: reg}
}

func (tr *testRelay) dial(t *testing.T, userID, roomID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(tr.srv.URL, "http") + "/ws/" + userID + "/" + roomID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		_, ok := tr.registry.RoomOf(userID)
		return ok
	}, time.Second, 5*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) relay.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev relay.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func assertSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "expected no frame")
}

func TestWsServer_JoinMessageLeave(t *testing.T) {
	tr := newTestRelay(t, Options{AllowedOrigins: []string{"*"}})

	alice := tr.dial(t, "alice", "general")
	bob := tr.dial(t, "bob", "general")

	joined := readEvent(t, alice)
	assert.Equal(t, relay.EventUserJoined, joined.Type)
	assert.Equal(t, "bob", joined.UserID)
	assert.Equal(t, "general", joined.RoomID)

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "message", "content": "hello"}))
	msg := readEvent(t, bob)
	assert.Equal(t, relay.EventMessage, msg.Type)
	assert.Equal(t, "alice", msg.UserID)
	assert.Equal(t, "hello", msg.Content)
	assert.NotEmpty(t, msg.MessageID)

	require.NoError(t, bob.Close())
	left := readEvent(t, alice)
	assert.Equal(t, relay.EventUserLeft, left.Type)
	assert.Equal(t, "bob", left.UserID)
}

func TestWsServer_RoomIsolation(t *testing.T) {
	tr := newTestRelay(t, Options{AllowedOrigins: []string{"*"}})

	alice := tr.dial(t, "alice", "general")
	carol := tr.dial(t, "carol", "other")

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "message", "content": "hi"}))
	assertSilent(t, carol)
}

func TestWsServer_MalformedPayloadEndsSession(t *testing.T) {
	tr := newTestRelay(t, Options{AllowedOrigins: []string{"*"}})

	alice := tr.dial(t, "alice", "general")
	mallory := tr.dial(t, "mallory", "general")
	_ = readEvent(t, alice) // mallory joined

	require.NoError(t, mallory.WriteMessage(websocket.TextMessage, []byte(`{"type":"message"}`)))

	left := readEvent(t, alice)
	assert.Equal(t, relay.EventUserLeft, left.Type)
	assert.Equal(t, "mallory", left.UserID)

	require.NoError(t, mallory.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := mallory.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseUnsupportedData), "got %v", err)
}

func TestWsServer_UnknownTypeIsIgnored(t *testing.T) {
	tr := newTestRelay(t, Options{AllowedOrigins: []string{"*"}})

	alice := tr.dial(t, "alice", "general")
	bob := tr.dial(t, "bob", "general")
	_ = readEvent(t, alice)

	require.NoError(t, bob.WriteJSON(map[string]string{"type": "typing"}))
	require.NoError(t, bob.WriteJSON(map[string]string{"type": "message", "content": "still here"}))

	msg := readEvent(t, alice)
	assert.Equal(t, "still here", msg.Content)
}

func TestWsServer_OriginCheck(t *testing.T) {
	tr := newTestRelay(t, Options{AllowedOrigins: []string{"http://allowed.example"}})
	url := "ws" + strings.TrimPrefix(tr.srv.URL, "http") + "/ws/alice/general"

	hdr := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	hdr = http.Header{"Origin": []string{"http://allowed.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	require.NoError(t, err)
	_ = resp.Body.Close()
	_ = conn.Close()
}

func TestWsServer_ShutdownClosesSessions(t *testing.T) {
	tr := newTestRelay(t, Options{AllowedOrigins: []string{"*"}})
	alice := tr.dial(t, "alice", "general")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.ws.Shutdown(ctx))

	assert.Equal(t, 0, tr.registry.Stats().Connections)
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := alice.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestWsServer_RefusesUpgradesOnceDraining(t *testing.T) {
	tr := newTestRelay(t, Options{AllowedOrigins: []string{"*"}})
	require.NoError(t, tr.ws.Shutdown(context.Background()))

	assert.False(t, tr.ws.track(&clientConn{}), "late upgrade must not join the live set")

	url := "ws" + strings.TrimPrefix(tr.srv.URL, "http") + "/ws/alice/general"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	_ = resp.Body.Close()
	assert.Equal(t, 0, tr.registry.Stats().Connections)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tr.ws.Shutdown(ctx), "no session was counted after draining")
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "wildcard", allowed: []string{"*"}, origin: "http://any.example", want: true},
		{name: "no origin header", allowed: []string{"http://a.example"}, origin: "", want: true},
		{name: "listed", allowed: []string{" http://A.example/ "}, origin: "http://a.example", want: true},
		{name: "not listed", allowed: []string{"http://a.example"}, origin: "http://b.example", want: false},
		{name: "empty list", allowed: nil, origin: "http://a.example", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws/a/b", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, originChecker(tt.allowed)(r))
		})
	}
}
