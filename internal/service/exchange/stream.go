package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"CoinSentry/internal/domain/models"
	drepo "CoinSentry/internal/domain/repository"
	"CoinSentry/pkg/logger"

	"github.com/gorilla/websocket"
)

// BinanceStream implements ObservationStream over the Binance miniTicker
// WebSocket feed. It supplements the polling path with fresher ticks between
// cycles; consensus still treats it as one contributor among the configured
// sources.
type BinanceStream struct {
	url            string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Suppressor

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// NewBinanceStream creates the stream for the given canonical symbols.
func NewBinanceStream(url string, symbols []string, reconnectDelay, pingInterval time.Duration, log *logger.Suppressor) drepo.ObservationStream {
	if url == "" {
		url = "wss://stream.binance.com:9443/ws"
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &BinanceStream{
		url:            url,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// Connect establishes the WebSocket connection.
func (s *BinanceStream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("binance stream connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	return nil
}

// current returns the live connection, nil when disconnected.
func (s *BinanceStream) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	return s.conn
}

// Subscribe subscribes to the miniTicker stream for each symbol.
func (s *BinanceStream) Subscribe(ctx context.Context) error {
	conn := s.current()
	if conn == nil {
		return fmt.Errorf("binance stream not connected")
	}
	params := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		params = append(params, strings.ToLower(sym)+"usdt@miniTicker")
	}
	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("binance stream subscribe: %w", err)
	}
	return nil
}

type miniTicker struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	QuoteVol  string `json:"q"`
}

// Read streams observations and errors from the current connection until the
// context is cancelled or the connection drops. Each call owns the connection
// captured at call time; after a Reconnect the caller must Read again.
func (s *BinanceStream) Read(ctx context.Context) (<-chan *models.Observation, <-chan error) {
	obs := make(chan *models.Observation, 1024)
	errs := make(chan error, 1)
	conn := s.current()

	// keepalive, stopped with the reader so a new Read never stacks pingers
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	go func() {
		defer close(obs)
		defer close(errs)
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if conn == nil {
					errs <- fmt.Errorf("binance stream conn nil")
					return
				}
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("binance stream read: %w", err)
					return
				}
				var m miniTicker
				if err := json.Unmarshal(b, &m); err != nil {
					// subscription acks and other non-ticker frames
					continue
				}
				if m.Event != "24hrMiniTicker" {
					continue
				}
				o := s.toObservation(&m)
				if o == nil {
					continue
				}
				select {
				case obs <- o:
				default:
					// drop on backpressure; the next tick supersedes anyway
				}
			}
		}
	}()

	return obs, errs
}

func (s *BinanceStream) toObservation(m *miniTicker) *models.Observation {
	sym := strings.TrimSuffix(m.Symbol, "USDT")
	if sym == m.Symbol || sym == "" {
		return nil
	}
	price, volume := parseTickFloat(s.log, "stream.c", m.Close), parseTickFloat(s.log, "stream.q", m.QuoteVol)
	if price <= 0 {
		return nil
	}
	ts := m.EventTime
	if ts == 0 {
		ts = nowMillis()
	}
	return &models.Observation{
		Symbol:    sym,
		Exchange:  "binance",
		Price:     price,
		Volume:    volume,
		Timestamp: ts,
	}
}

// Reconnect closes and redials, pausing for the configured delay.
func (s *BinanceStream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-time.After(s.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close tears down the connection.
func (s *BinanceStream) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsConnected reports the connection state.
func (s *BinanceStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func parseTickFloat(log *logger.Suppressor, field, v string) float64 {
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn("binance:parse:"+field, "unparseable stream field",
			logger.String("field", field),
			logger.String("value", v))
		return 0
	}
	return f
}
