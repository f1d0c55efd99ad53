package kalshi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ProdWSURL is the production WebSocket endpoint.
const ProdWSURL = "wss://api.elections.kalshi.com/trade-api/ws/v2"

var (
	// ErrNotConnected is returned when an operation requires an active connection.
	ErrNotConnected = errors.New("stream: not connected")

	// ErrAlreadyConnected is returned when Connect is called twice.
	ErrAlreadyConnected = errors.New("stream: already connected")

	// ErrStreamSpent is returned when Connect is called after the updates
	// channel has closed. A stream serves one connection; reconnect with a
	// fresh NewStream.
	ErrStreamSpent = errors.New("stream: spent, create a new stream")
)

// TickerUpdate is one price update from the ticker channel.
type TickerUpdate struct {
	Ticker   string `json:"market_ticker"`
	YesBid   int    `json:"yes_bid"`
	YesAsk   int    `json:"yes_ask"`
	NoBid    int    `json:"no_bid"`
	NoAsk    int    `json:"no_ask"`
	Volume   int    `json:"volume"`
	OpenTS   int64  `json:"ts"`
	LastSeq  int64  `json:"-"`
}

// Stream delivers live ticker updates for subscribed markets over a
// WebSocket connection.
type Stream struct {
	url     string
	client  *Client
	log     zerolog.Logger
	updates chan TickerUpdate

	mu    sync.Mutex
	conn  *websocket.Conn
	done  chan struct{}
	spent bool // updates has been closed, stream cannot reconnect
	msgID atomic.Int64
}

// NewStream builds a stream reusing the REST client's credentials for the
// connection handshake.
func NewStream(client *Client, log zerolog.Logger) *Stream {
	return &Stream{
		url:     ProdWSURL,
		client:  client,
		log:     log,
		updates: make(chan TickerUpdate, 64),
	}
}

// Updates returns the channel of ticker updates. It is closed when the
// connection ends.
func (s *Stream) Updates() <-chan TickerUpdate {
	return s.updates
}

// Connect dials the WebSocket endpoint and starts the read and ping loops.
func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return ErrAlreadyConnected
	}
	if s.spent {
		return ErrStreamSpent
	}

	header := http.Header{}
	if s.client != nil && s.client.privateKey != nil {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		sig, err := generateSignature(s.client.privateKey, ts, http.MethodGet, "/trade-api/ws/v2")
		if err != nil {
			return fmt.Errorf("generate signature: %w", err)
		}
		header.Set("KALSHI-ACCESS-KEY", s.client.apiKey)
		header.Set("KALSHI-ACCESS-SIGNATURE", sig)
		header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	s.done = make(chan struct{})

	go s.readLoop()
	go s.pingLoop()

	return nil
}

// Subscribe subscribes to the ticker channel for the given markets.
func (s *Stream) Subscribe(tickers ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrNotConnected
	}

	req := struct {
		ID     int64  `json:"id"`
		Cmd    string `json:"cmd"`
		Params struct {
			Channels      []string `json:"channels"`
			MarketTickers []string `json:"market_tickers"`
		} `json:"params"`
	}{
		ID:  s.msgID.Add(1),
		Cmd: "subscribe",
	}
	req.Params.Channels = []string{"ticker"}
	req.Params.MarketTickers = tickers

	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// Close shuts the connection down.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	close(s.done)
	_ = s.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Stream) readLoop() {
	defer func() {
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.spent = true
		s.mu.Unlock()
		close(s.updates)
	}()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("stream read failed")
			}
			return
		}

		var env struct {
			Type string          `json:"type"`
			Seq  int64           `json:"seq"`
			Msg  json.RawMessage `json:"msg"`
		}
		if err := json.Unmarshal(message, &env); err != nil {
			s.log.Warn().Err(err).Msg("stream parse failed")
			continue
		}
		if env.Type != "ticker" {
			continue
		}

		var upd TickerUpdate
		if err := json.Unmarshal(env.Msg, &upd); err != nil {
			s.log.Warn().Err(err).Msg("ticker parse failed")
			continue
		}
		upd.LastSeq = env.Seq

		select {
		case s.updates <- upd:
		case <-s.done:
			return
		}
	}
}

func (s *Stream) pingLoop() {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			var err error
			if conn != nil {
				err = conn.WriteMessage(websocket.PingMessage, nil)
			}
			s.mu.Unlock()
			if conn == nil || err != nil {
				return
			}
		}
	}
}
