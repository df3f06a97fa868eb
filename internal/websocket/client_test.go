package websocket

import (
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
)

// newFrameServer upgrades and pushes the given frames, then waits for the client
// to disconnect.
func newFrameServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}

		// Drain until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func Test_Dial_RequiresEndpointAndHandler(t *testing.T) {
	_, err := Dial(context.Background(), Config{Handler: func([]byte) error { return nil }})
	assert.Error(t, err)

	_, err = Dial(context.Background(), Config{Endpoint: "ws://localhost:1/ws"})
	assert.Error(t, err)
}

func Test_DeliversFramesToHandler(t *testing.T) {
	server := newFrameServer(t, []string{"one", "two", "three"})

	var mu sync.Mutex
	var received []string
	got := make(chan struct{}, 3)

	client, err := Dial(context.Background(), Config{
		Endpoint: wsURL(server),
		Handler: func(payload []byte) error {
			mu.Lock()
			received = append(received, string(payload))
			mu.Unlock()
			got <- struct{}{}
			return nil
		},
	})
	require.NoError(t, err)
	defer client.Close()

	for i := 0; i < 3; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one", "two", "three"}, received)
}

func Test_DisconnectChanClosesWhenServerDrops(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	t.Cleanup(server.Close)

	client, err := Dial(context.Background(), Config{
		Endpoint: wsURL(server),
		Handler:  func([]byte) error { return nil },
	})
	require.NoError(t, err)
	defer client.Close()

	select {
	case <-client.DisconnectChan():
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect channel never closed")
	}
}

func Test_ContextCancellationClosesClient(t *testing.T) {
	server := newFrameServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	client, err := Dial(ctx, Config{
		Endpoint: wsURL(server),
		Handler:  func([]byte) error { return nil },
	})
	require.NoError(t, err)

	cancel()

	select {
	case <-client.DisconnectChan():
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation did not close the connection")
	}
}

func Test_HandshakeRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such stream", http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	_, err := Dial(context.Background(), Config{
		Endpoint: wsURL(server),
		Handler:  func([]byte) error { return nil },
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandshakeRejected)
}
