package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"babelchat/internal/config"
	"babelchat/internal/history"
	"babelchat/internal/presence"
	"babelchat/internal/server"
	"babelchat/internal/stats"
	"babelchat/internal/testutil"
	"babelchat/internal/types"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passthroughTranslator struct{}

func (passthroughTranslator) TranslateFrom(_ context.Context, text, _, _ string) string {
	return text
}

func newTestApp(t *testing.T) *ChatApp {
	t.Helper()

	logger := testutil.TestLogger(t)
	store := history.NewStore(filepath.Join(t.TempDir(), "messages.json"), 24*time.Hour, logger)

	su := (&stats.MockStatsUpdater{}).AllowAll()
	cs, err := server.NewChatServer(logger, presence.NewRegistry(), store, passthroughTranslator{}, su, 24*time.Hour, time.Hour)
	require.NoError(t, err, "failed to create test ChatServer")

	go cs.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	})

	cfg := &config.Config{ServerAddr: ":0"}
	return NewChatApp(http.NewServeMux(), logger, cs, cfg)
}

func Test_listRooms(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	rec := httptest.NewRecorder()
	app.mux.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "expected 200 response")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), "expected JSON content type")

	var rooms map[string]types.RoomInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rooms), "expected response to be valid JSON")
	require.Contains(t, rooms, server.DefaultRoomId, "expected default room to be listed")
	assert.Equal(t, "Global", rooms[server.DefaultRoomId].Name, "expected default room name")
	assert.NotContains(t, rec.Body.String(), "password", "expected no password material in the listing")
}

func Test_index(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	app.mux.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "expected 200 response")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html", "expected HTML content type")
	assert.NotEmpty(t, rec.Body.Bytes(), "expected page body")
}

func Test_serveWs(t *testing.T) {
	t.Run("rejects disallowed origin", func(t *testing.T) {
		app := newTestApp(t)
		app.allowedOrigins = []string{"http://allowed.example"}

		srv := httptest.NewServer(app.mux.Handler)
		t.Cleanup(srv.Close)

		header := http.Header{"Origin": []string{"http://evil.example"}}
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
		require.Error(t, err, "expected handshake to fail")
		require.NotNil(t, resp, "expected an HTTP response")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, "expected 403 on origin mismatch")
	})

	t.Run("name claim over websocket", func(t *testing.T) {
		app := newTestApp(t)

		srv := httptest.NewServer(app.mux.Handler)
		t.Cleanup(srv.Close)

		conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
		require.NoError(t, err, "expected handshake to succeed")
		t.Cleanup(func() { conn.Close() })

		require.NoError(t, conn.WriteJSON(map[string]any{
			"id":              1,
			"choose_username": map[string]string{"name": "alice", "lang": "en"},
		}))

		ack := readServerMessage(t, conn)
		require.NotNil(t, ack.Response, "expected an ack")
		assert.True(t, ack.Response.Ok, "expected the claim to succeed")
		assert.Equal(t, 1, ack.Id, "expected ack id to match the request")

		roomList := readServerMessage(t, conn)
		assert.Contains(t, roomList.RoomList, server.DefaultRoomId, "expected room list push after the claim")
	})
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func readServerMessage(t *testing.T, conn *websocket.Conn) *server.ServerMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg server.ServerMessage
	require.NoError(t, conn.ReadJSON(&msg), "expected to read a server message")
	return &msg
}
