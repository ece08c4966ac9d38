package client

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isqad/livelook-meet/internal/eventbus/rpc"
)

// echoServer replies to every message with the same message and records what it got
func echoServer(t *testing.T) (*httptest.Server, *[][]byte, *sync.Mutex) {
	t.Helper()

	var (
		mu       sync.Mutex
		received [][]byte
	)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = append(received, msg)
			mu.Unlock()

			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return srv, &received, &mu
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSignalingRoundTrip(t *testing.T) {
	srv, received, mu := echoServer(t)

	s, err := Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.Listen(ctx)
	}()

	require.NoError(t, s.Send(rpc.NewJoinRoomRpc("room", "Alice")))

	select {
	case payload := <-s.Messages():
		msg, err := rpc.RpcFromReader(bytes.NewReader(payload))
		require.NoError(t, err)
		assert.Equal(t, rpc.NewJoinRoomRpc("room", "Alice"), msg)
	case <-time.After(5 * time.Second):
		t.Fatal("no echo")
	}

	select {
	case payload := <-s.Messages():
		assert.Equal(t, "not json", string(payload))
	case <-time.After(5 * time.Second):
		t.Fatal("no second frame")
	}

	mu.Lock()
	assert.Len(t, *received, 1)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listen did not return")
	}

	_, open := <-s.Messages()
	assert.False(t, open)

	assert.ErrorIs(t, s.Send(rpc.NewLeaveRoomRpc()), ErrClosed)
	assert.NoError(t, s.Close())
}

func TestSignalingDialError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1/ws")
	assert.Error(t, err)
}
