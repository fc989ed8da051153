package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/exchange"
)

const (
	defaultStreamURL     = "wss://stream.binance.com:9443/ws"
	pingInterval         = 30 * time.Second
	reconnectDelay       = 5 * time.Second
	maxReconnectAttempts = 10
)

// Stream is a spot mini-ticker websocket feed
type Stream struct {
	url        string
	quoteAsset string
	log        *zap.Logger

	conn        *websocket.Conn
	connMux     sync.RWMutex
	isConnected bool

	subscriber exchange.PriceSubscriber
	subMux     sync.RWMutex

	subscribed    map[string]bool
	subscribedMux sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reconnectAttempts int
}

// miniTicker is the 24hrMiniTicker event payload
type miniTicker struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	Open      string `json:"o"`
}

// NewStream creates a stream client
func NewStream(url, quoteAsset string, log *zap.Logger) *Stream {
	if url == "" {
		url = defaultStreamURL
	}
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}
	return &Stream{
		url:        url,
		quoteAsset: strings.ToUpper(quoteAsset),
		log:        log.Named("binance-stream"),
		subscribed: make(map[string]bool),
	}
}

// IsConnected returns whether the WebSocket is connected
func (s *Stream) IsConnected() bool {
	s.connMux.RLock()
	defer s.connMux.RUnlock()
	return s.isConnected
}

// Connect establishes WebSocket connection
func (s *Stream) Connect(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.connect(); err != nil {
		return err
	}

	s.wg.Add(2)
	go s.messageLoop()
	go s.pingLoop()
	return nil
}

func (s *Stream) connect() error {
	s.connMux.Lock()
	defer s.connMux.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(s.ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to Binance WebSocket: %w", err)
	}

	s.conn = conn
	s.isConnected = true
	s.reconnectAttempts = 0
	s.log.Info("websocket connected", zap.String("url", s.url))

	// Resubscribe to previous symbols
	s.subscribedMux.RLock()
	symbols := make([]string, 0, len(s.subscribed))
	for symbol := range s.subscribed {
		symbols = append(symbols, symbol)
	}
	s.subscribedMux.RUnlock()

	if len(symbols) > 0 {
		go func() {
			if err := s.subscribe(symbols); err != nil {
				s.log.Warn("resubscribe failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// Subscribe subscribes to ticker updates for token symbols
func (s *Stream) Subscribe(symbols []string) error {
	s.subscribedMux.Lock()
	for _, symbol := range symbols {
		s.subscribed[strings.ToUpper(symbol)] = true
	}
	s.subscribedMux.Unlock()

	return s.subscribe(symbols)
}

func (s *Stream) subscribe(symbols []string) error {
	if !s.IsConnected() {
		return fmt.Errorf("not connected")
	}

	streams := make([]string, len(symbols))
	for i, symbol := range symbols {
		streams[i] = strings.ToLower(symbol+s.quoteAsset) + "@miniTicker"
	}

	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": streams,
		"id":     time.Now().UnixNano(),
	}

	s.connMux.Lock()
	err := s.conn.WriteJSON(msg)
	s.connMux.Unlock()
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	s.log.Info("subscribed", zap.Int("symbols", len(symbols)))
	return nil
}

// SetSubscriber sets the price update subscriber
func (s *Stream) SetSubscriber(subscriber exchange.PriceSubscriber) {
	s.subMux.Lock()
	defer s.subMux.Unlock()
	s.subscriber = subscriber
}

// Close stops the loops and closes the connection
func (s *Stream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.connMux.Lock()
	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}
	s.isConnected = false
	s.connMux.Unlock()

	s.wg.Wait()
	return err
}

func (s *Stream) messageLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.connMux.RLock()
		conn := s.conn
		s.connMux.RUnlock()

		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("websocket error", zap.Error(err))
			}
			s.handleDisconnect()
			continue
		}

		if update, ok := s.parse(message); ok {
			s.subMux.RLock()
			subscriber := s.subscriber
			s.subMux.RUnlock()
			if subscriber != nil {
				subscriber.OnPriceUpdate(update)
			}
		}
	}
}

// parse turns a mini-ticker event into a PriceUpdate keyed by token symbol
func (s *Stream) parse(message []byte) (exchange.PriceUpdate, bool) {
	var t miniTicker
	if err := json.Unmarshal(message, &t); err != nil || t.Event != "24hrMiniTicker" {
		return exchange.PriceUpdate{}, false
	}
	price, err := decimal.NewFromString(t.Close)
	if err != nil {
		return exchange.PriceUpdate{}, false
	}

	update := exchange.PriceUpdate{
		Exchange:  "binance",
		Symbol:    strings.TrimSuffix(t.Symbol, s.quoteAsset),
		Price:     price,
		Timestamp: t.EventTime,
	}
	if open, err := decimal.NewFromString(t.Open); err == nil && open.IsPositive() {
		update.Change24h = price.Sub(open).Div(open)
	}
	return update, true
}

func (s *Stream) handleDisconnect() {
	s.connMux.Lock()
	s.isConnected = false
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMux.Unlock()

	for s.reconnectAttempts < maxReconnectAttempts {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}

		s.reconnectAttempts++
		s.log.Info("reconnecting", zap.Int("attempt", s.reconnectAttempts))

		if err := s.connect(); err != nil {
			s.log.Warn("reconnect failed", zap.Error(err))
			continue
		}
		return
	}

	s.log.Error("max reconnect attempts reached")
	s.cancel()
}

func (s *Stream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.connMux.Lock()
			if s.isConnected && s.conn != nil {
				if err := s.conn.WriteMessage(websocket.PongMessage, nil); err != nil {
					s.log.Warn("ping failed", zap.Error(err))
				}
			}
			s.connMux.Unlock()
		}
	}
}
