package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedServer(t *testing.T, subs chan<- string) *httptest.Server {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var msg map[string]string
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		subs <- msg["symbol"]
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"trade","data":[{"s":"AAPL","p":190.5,"v":10,"t":1741014000123}]}`))
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string { return "ws" + strings.TrimPrefix(srv.URL, "http") }

func TestStreamDeliversTradesInMilliseconds(t *testing.T) {
	subs := make(chan string, 1)
	srv := feedServer(t, subs)
	c := New("key", wsURL(srv), []string{" aapl "}, 0, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	assert.True(t, c.IsConnected())
	require.NoError(t, c.Subscribe(ctx))
	assert.Equal(t, "AAPL", <-subs)

	trades, _ := c.Read(ctx)
	tr := <-trades
	require.NotNil(t, tr)
	assert.Equal(t, "AAPL", tr.Symbol)
	assert.Equal(t, int64(1741014000123), tr.Timestamp)
	assert.Equal(t, 190.5, tr.Price)

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}

func TestReadWithoutConnection(t *testing.T) {
	c := New("key", "ws://127.0.0.1:1", nil, 0, 0)
	trades, errs := c.Read(context.Background())
	assert.ErrorIs(t, <-errs, errNotConnected)
	_, open := <-trades
	assert.False(t, open)
	assert.ErrorIs(t, c.Subscribe(context.Background()), errNotConnected)
}

func TestConnectRejectsBadToken(t *testing.T) {
	srv := feedServer(t, make(chan string, 1))
	c := New("wrong", wsURL(srv), []string{"AAPL"}, 0, 0)
	assert.Error(t, c.Connect(context.Background()))
	assert.False(t, c.IsConnected())
}

func TestReconnectHonoursContext(t *testing.T) {
	c := New("key", "ws://127.0.0.1:1", nil, time.Hour, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Reconnect(ctx), context.Canceled)
}
