package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ticker-orchestrator/internal/domain"
)

// Config configures WebSocket feed behavior.
type Config struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Buffer is the update channel capacity.
	Buffer int
}

// DefaultConfig returns default WebSocket feed configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		Buffer:            10000,
	}
}

// WSSource streams MarketUpdate messages from a WebSocket endpoint.
// It reconnects with exponential backoff and resubscribes to the same
// ticker set after a reconnect.
type WSSource struct {
	endpoint string
	tickers  []string
	config   Config
	log      zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	updates chan domain.MarketUpdate

	done         chan struct{}
	wg           sync.WaitGroup
	reconnecting atomic.Bool
}

// subscribeRequest asks the upstream feed for updates on a set of tickers.
type subscribeRequest struct {
	Action  string   `json:"action"`
	Tickers []string `json:"tickers"`
}

// NewWSSource connects to the endpoint and subscribes to the given tickers.
func NewWSSource(ctx context.Context, endpoint string, tickers []string, config *Config, log zerolog.Logger) (*WSSource, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}

	s := &WSSource{
		endpoint: endpoint,
		tickers:  tickers,
		config:   cfg,
		log:      log.With().Str("component", "feed").Logger(),
		updates:  make(chan domain.MarketUpdate, cfg.Buffer),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	if err := s.subscribe(); err != nil {
		s.closeConn()
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// Updates returns the channel of inbound market updates. The channel is
// closed when the source is closed.
func (s *WSSource) Updates() <-chan domain.MarketUpdate {
	return s.updates
}

// Close closes the WebSocket connection and the update channel.
func (s *WSSource) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.updates)
	return nil
}

// connect establishes the WebSocket connection.
func (s *WSSource) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	return nil
}

// subscribe sends the ticker subscription over the current connection.
func (s *WSSource) subscribe() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("not connected")
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteJSON(subscribeRequest{Action: "subscribe", Tickers: s.tickers}); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

func (s *WSSource) closeConn() {
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()
}

// readLoop reads messages and forwards parsed updates.
func (s *WSSource) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}

			if !s.reconnecting.Swap(true) {
				go s.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay

		s.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (s *WSSource) reconnect(delay time.Duration) {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}

	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	s.closeConn()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		s.log.Warn().Err(err).Msg("feed reconnect failed, will retry")
		return
	}
	if err := s.subscribe(); err != nil {
		s.log.Warn().Err(err).Msg("feed resubscribe failed, will retry")
		s.closeConn()
		return
	}

	s.log.Info().Msg("feed reconnected")
}

// handleMessage parses one inbound message. Malformed payloads are
// logged and dropped, never fatal.
func (s *WSSource) handleMessage(message []byte) {
	update, err := ParseUpdate(message)
	if err != nil {
		s.log.Debug().Err(err).Msg("dropping malformed feed message")
		return
	}

	// Block until the consumer drains; never drop valid updates
	select {
	case s.updates <- update:
	case <-s.done:
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (s *WSSource) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
					s.log.Debug().Err(err).Msg("feed ping failed")
				}
			}
			s.connMu.Unlock()
		}
	}
}

// ParseUpdate decodes and validates one market update payload.
func ParseUpdate(message []byte) (domain.MarketUpdate, error) {
	var update domain.MarketUpdate
	if err := json.Unmarshal(message, &update); err != nil {
		return domain.MarketUpdate{}, fmt.Errorf("decode market update: %w", err)
	}
	if update.Ticker == "" {
		return domain.MarketUpdate{}, fmt.Errorf("market update missing ticker")
	}
	if update.Confidence < 0 || update.Confidence > 1 {
		return domain.MarketUpdate{}, fmt.Errorf("confidence %f out of range", update.Confidence)
	}
	if update.Conviction < 0 || update.Conviction > 1 {
		return domain.MarketUpdate{}, fmt.Errorf("conviction %f out of range", update.Conviction)
	}
	return update, nil
}
