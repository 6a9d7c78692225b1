package notify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialHub(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_DeliversSubscribedSymbolsOnly(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	aapl := dialHub(t, srv, "symbol=AAPL")
	msft := dialHub(t, srv, "symbol=MSFT")
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)

	hub.TradeExecuted(context.Background(), testTrade())

	_ = aapl.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := aapl.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "trade.executed", msg["event"])

	_ = msft.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = msft.ReadMessage()
	assert.Error(t, err, "MSFT subscriber should not receive AAPL trades")
}

func TestHub_SubscribeMessage(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dialHub(t, srv, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(subscribeRequest{Op: "subscribe", Symbols: []string{"MSFT"}}))

	// The subscription is applied asynchronously; keep publishing until it lands.
	got := make(chan []byte, 1)
	go func() {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err == nil {
			got <- data
		}
		close(got)
	}()

	deadline := time.After(2 * time.Second)
	for {
		hub.OrderCancelled(context.Background(), testCancelledOrder())
		select {
		case data, ok := <-got:
			require.True(t, ok, "no message received")
			assert.Contains(t, string(data), "order.cancelled")
			return
		case <-deadline:
			t.Fatal("timed out waiting for message")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestHub_ClientDisconnectIsRemoved(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv, "symbol=AAPL")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
