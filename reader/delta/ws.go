package delta

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"optionflow/logger"
	"optionflow/models"
)

const wsReconnectDelay = 5 * time.Second

// quoteStream keeps a live quote overlay from the exchange websocket. The
// refresh cycle prefers a fresh streamed quote over a REST round trip; if the
// stream falls behind or disconnects the reader transparently falls back to
// REST.
type quoteStream struct {
	url string
	log *logger.Log

	mu      sync.RWMutex
	symbols []string
	quotes  map[string]models.Quote
	resub   chan struct{}
}

type wsSubscribeRequest struct {
	Type    string             `json:"type"`
	Payload wsSubscribePayload `json:"payload"`
}

type wsSubscribePayload struct {
	Channels []wsChannel `json:"channels"`
}

type wsChannel struct {
	Name    string   `json:"name"`
	Symbols []string `json:"symbols,omitempty"`
}

type wsTickerMessage struct {
	Type     string      `json:"type"`
	Symbol   string      `json:"symbol"`
	BestBid  json.Number `json:"best_bid"`
	BestAsk  json.Number `json:"best_ask"`
	Mark     json.Number `json:"mark_price"`
	Spot     json.Number `json:"spot_price"`
	Time     int64       `json:"timestamp"`
}

func newQuoteStream(url string) *quoteStream {
	return &quoteStream{
		url:    url,
		log:    logger.GetLogger(),
		quotes: make(map[string]models.Quote),
		resub:  make(chan struct{}, 1),
	}
}

// Start runs the connection loop until the context is cancelled.
func (s *quoteStream) Start(ctx context.Context) {
	go s.run(ctx)
}

// SetSymbols replaces the subscription set. No-op when the set is unchanged.
func (s *quoteStream) SetSymbols(symbols []string) {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)

	s.mu.Lock()
	if equalStrings(s.symbols, sorted) {
		s.mu.Unlock()
		return
	}
	s.symbols = sorted
	s.mu.Unlock()

	select {
	case s.resub <- struct{}{}:
	default:
	}
}

// Quote returns the streamed quote for symbol if it is younger than maxAge.
func (s *quoteStream) Quote(symbol string, maxAge time.Duration) (models.Quote, bool) {
	s.mu.RLock()
	q, ok := s.quotes[symbol]
	s.mu.RUnlock()
	if !ok || time.Since(q.Timestamp) > maxAge {
		return models.Quote{}, false
	}
	return q, true
}

func (s *quoteStream) run(ctx context.Context) {
	log := s.log.WithComponent("delta_stream")

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			log.WithError(err).Warn("websocket dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(wsReconnectDelay):
			}
			continue
		}

		log.WithFields(logger.Fields{"url": s.url}).Info("websocket connected")
		s.serve(ctx, conn)
		conn.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(wsReconnectDelay):
		}
	}
}

// serve pumps ticker messages from one connection until it fails or the
// subscription set changes require a fresh subscribe.
func (s *quoteStream) serve(ctx context.Context, conn *websocket.Conn) {
	log := s.log.WithComponent("delta_stream")

	if err := s.subscribe(conn); err != nil {
		log.WithError(err).Warn("websocket subscribe failed")
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg wsTickerMessage
			if err := conn.ReadJSON(&msg); err != nil {
				log.WithError(err).Warn("websocket read failed")
				return
			}
			if msg.Type != "v2/ticker" || msg.Symbol == "" {
				continue
			}
			s.store(msg)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-done:
			return
		case <-s.resub:
			if err := s.subscribe(conn); err != nil {
				log.WithError(err).Warn("websocket resubscribe failed")
				return
			}
		}
	}
}

func (s *quoteStream) subscribe(conn *websocket.Conn) error {
	s.mu.RLock()
	symbols := append([]string(nil), s.symbols...)
	s.mu.RUnlock()
	if len(symbols) == 0 {
		return nil
	}

	req := wsSubscribeRequest{
		Type: "subscribe",
		Payload: wsSubscribePayload{
			Channels: []wsChannel{{Name: "v2/ticker", Symbols: symbols}},
		},
	}
	return conn.WriteJSON(req)
}

func (s *quoteStream) store(msg wsTickerMessage) {
	q := models.Quote{
		Symbol:    msg.Symbol,
		BestBid:   parsePrice(msg.BestBid),
		BestAsk:   parsePrice(msg.BestAsk),
		MarkPrice: parsePrice(msg.Mark),
		SpotPrice: parsePrice(msg.Spot),
		Timestamp: time.Now().UTC(),
	}

	s.mu.Lock()
	s.quotes[msg.Symbol] = q
	s.mu.Unlock()
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
