package exchange

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

// tickerServer accepts stream connections and pushes one miniTicker frame
// per connection after reading the subscribe message.
type tickerServer struct {
	t       *testing.T
	upg     websocket.Upgrader
	mu      sync.Mutex
	accepts int
}

func (s *tickerServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.accepts++
	s.mu.Unlock()
	conn, err := s.upg.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// subscribe message first
	if _, _, err := conn.ReadMessage(); err != nil {
		return
	}
	frame := `{"e":"24hrMiniTicker","E":1700000000000,"s":"BTCUSDT","c":"50000.5","q":"1234.5"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return
	}
	// hold the connection until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *tickerServer) accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepts
}

func newTestStream(t *testing.T) (*BinanceStream, *tickerServer) {
	t.Helper()
	ts := &tickerServer{t: t}
	srv := httptest.NewServer(ts)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewBinanceStream(wsURL, []string{"BTC"}, 10*time.Millisecond, time.Minute, testSuppressor(t))
	return s.(*BinanceStream), ts
}

func TestStreamReadDeliversObservations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, _ := newTestStream(t)

	require.NoError(t, s.Connect(ctx))
	defer s.Close()
	require.True(t, s.IsConnected())
	require.NoError(t, s.Subscribe(ctx))

	obsCh, errCh := s.Read(ctx)
	select {
	case o := <-obsCh:
		require.NotNil(t, o)
		assert.Equal(t, "BTC", o.Symbol)
		assert.Equal(t, "binance", o.Exchange)
		assert.Equal(t, 50000.5, o.Price)
		assert.Equal(t, 1234.5, o.Volume)
		assert.Equal(t, int64(1700000000000), o.Timestamp)
	case err := <-errCh:
		t.Fatalf("unexpected stream error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("no observation within deadline")
	}
}

func TestStreamReconnectOpensFreshConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, srv := newTestStream(t)

	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Subscribe(ctx))
	assert.Equal(t, 1, srv.accepted())

	require.NoError(t, s.Reconnect(ctx))
	defer s.Close()
	assert.True(t, s.IsConnected())
	assert.Equal(t, 2, srv.accepted())

	// the redialed connection serves a fresh read
	obsCh, errCh := s.Read(ctx)
	select {
	case o := <-obsCh:
		require.NotNil(t, o)
		assert.Equal(t, "BTC", o.Symbol)
	case err := <-errCh:
		t.Fatalf("unexpected stream error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("no observation within deadline")
	}
}

func TestStreamReadErrorsAfterClose(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStream(t)

	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Subscribe(ctx))
	obsCh, errCh := s.Read(ctx)

	require.NoError(t, s.Close())
	assert.False(t, s.IsConnected())

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-errCh:
			if ok {
				return // reader surfaced the closed connection
			}
			errCh = nil
		case _, ok := <-obsCh:
			if !ok {
				obsCh = nil
			}
		case <-deadline:
			t.Fatal("reader did not terminate after close")
		}
		if obsCh == nil && errCh == nil {
			t.Fatal("channels closed without a read error")
		}
	}
}

func TestStreamSubscribeRequiresConnection(t *testing.T) {
	s, _ := newTestStream(t)
	assert.Error(t, s.Subscribe(context.Background()))
}
