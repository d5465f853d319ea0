package delta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	appconfig "optionflow/config"
	"optionflow/internal/channel"
	"optionflow/models"
)

func testConfig(baseURL string) *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Source.Delta.BaseURL = baseURL
	cfg.Source.Delta.Underlyings = []string{"BTC"}
	cfg.Source.Delta.QuoteSource = "ticker"
	cfg.Source.Delta.ConnectionPool.MaxIdleConns = 4
	cfg.Source.Delta.ConnectionPool.MaxConnsPerHost = 4
	cfg.Source.Delta.ConnectionPool.IdleConnTimeout = 30 * time.Second
	cfg.Reader.Interval = 30 * time.Second
	cfg.Reader.Timeout = 5 * time.Second
	cfg.Reader.MaxConcurrentQuotes = 4
	cfg.Reader.RateLimit.RequestsPerSecond = 1000
	cfg.Reader.RateLimit.BurstSize = 1000
	cfg.Channels.RawBuffer = 10
	cfg.Channels.ProcessedBuffer = 10
	return cfg
}

func productJSON(id int, symbol, contractType, strike, settlement string) string {
	return fmt.Sprintf(`{
		"id": %d,
		"symbol": %q,
		"contract_type": %q,
		"state": "live",
		"strike_price": %q,
		"tick_size": "0.1",
		"settlement_time": %q,
		"underlying_asset": {"symbol": "BTC"}
	}`, id, symbol, contractType, strike, settlement)
}

func envelope(result string) string {
	return fmt.Sprintf(`{"success": true, "result": %s}`, result)
}

func TestBuildInstruments(t *testing.T) {
	settlement := "2026-09-04T12:00:00Z"
	raw := "[" + strings.Join([]string{
		productJSON(1, "C-BTC-110000-040926", "call_options", "110000", settlement),
		productJSON(2, "P-BTC-110000-040926", "put_options", "110000", settlement),
	}, ",") + "]"

	var products []models.DeltaProduct
	if err := json.Unmarshal([]byte(raw), &products); err != nil {
		t.Fatalf("unmarshal products: %v", err)
	}

	instruments, dropped := BuildInstruments(products)
	if dropped != 0 {
		t.Fatalf("dropped = %d, want 0", dropped)
	}
	if len(instruments) != 2 {
		t.Fatalf("len(instruments) = %d, want 2", len(instruments))
	}

	call := instruments[0]
	if call.OptionType != models.OptionTypeCall {
		t.Errorf("OptionType = %q, want call", call.OptionType)
	}
	if call.Underlying != "BTC" {
		t.Errorf("Underlying = %q, want BTC", call.Underlying)
	}
	if call.Strike != 110000 {
		t.Errorf("Strike = %v, want 110000", call.Strike)
	}
	want := time.Date(2026, 9, 4, 12, 0, 0, 0, time.UTC)
	if !call.SettlementTime.Equal(want) {
		t.Errorf("SettlementTime = %v, want %v", call.SettlementTime, want)
	}
}

func TestBuildInstrumentsSymbolFallback(t *testing.T) {
	// No structured strike or settlement; everything must come from the
	// symbol grammar.
	products := []models.DeltaProduct{
		{ID: 7, Symbol: "C-BTC-95000-040926", ContractType: "call_options"},
	}

	instruments, dropped := BuildInstruments(products)
	if dropped != 0 {
		t.Fatalf("dropped = %d, want 0", dropped)
	}
	if len(instruments) != 1 {
		t.Fatalf("len(instruments) = %d, want 1", len(instruments))
	}
	if instruments[0].Strike != 95000 {
		t.Errorf("Strike = %v, want 95000", instruments[0].Strike)
	}
	if instruments[0].Underlying != "BTC" {
		t.Errorf("Underlying = %q, want BTC", instruments[0].Underlying)
	}
}

func TestBuildInstrumentsDropsMalformed(t *testing.T) {
	products := []models.DeltaProduct{
		{ID: 1, Symbol: "not-an-option", ContractType: "call_options"},
		{ID: 2, Symbol: "C-BTC-95000-040926", ContractType: "call_options"},
	}

	instruments, dropped := BuildInstruments(products)
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if len(instruments) != 1 {
		t.Errorf("len(instruments) = %d, want 1", len(instruments))
	}
}

func TestTickerToQuote(t *testing.T) {
	at := time.Now().UTC()
	tk := models.DeltaTicker{
		Symbol:       "C-BTC-110000-040926",
		BestBidPrice: "10.5",
		BestAskPrice: "12.5",
		MarkPrice:    "11.4",
		SpotPrice:    "109000",
	}

	q := tickerToQuote(tk.Symbol, tk, at)
	if q.BestBid == nil || *q.BestBid != 10.5 {
		t.Errorf("BestBid = %v, want 10.5", q.BestBid)
	}
	if q.BestAsk == nil || *q.BestAsk != 12.5 {
		t.Errorf("BestAsk = %v, want 12.5", q.BestAsk)
	}
	if q.MarkPrice == nil || *q.MarkPrice != 11.4 {
		t.Errorf("MarkPrice = %v, want 11.4", q.MarkPrice)
	}
}

func TestTickerToQuoteMissingSides(t *testing.T) {
	q := tickerToQuote("X", models.DeltaTicker{BestBidPrice: "", BestAskPrice: "junk"}, time.Now())
	if q.BestBid != nil {
		t.Errorf("BestBid = %v, want nil for absent field", q.BestBid)
	}
	if q.BestAsk != nil {
		t.Errorf("BestAsk = %v, want nil for unparsable field", q.BestAsk)
	}
}

func TestOrderbookToQuote(t *testing.T) {
	book := models.DeltaOrderbook{
		Symbol: "C-BTC-110000-040926",
		Buy:    []models.DeltaOrderbookLevel{{Price: "10", Size: "3"}},
		Sell:   []models.DeltaOrderbookLevel{{Price: "12", Size: "1"}},
	}

	q := orderbookToQuote(book.Symbol, book, time.Now())
	if q.BestBid == nil || *q.BestBid != 10 {
		t.Errorf("BestBid = %v, want 10", q.BestBid)
	}
	if q.BestAsk == nil || *q.BestAsk != 12 {
		t.Errorf("BestAsk = %v, want 12", q.BestAsk)
	}

	empty := orderbookToQuote("X", models.DeltaOrderbook{}, time.Now())
	if empty.BestBid != nil || empty.BestAsk != nil {
		t.Error("empty book must yield nil bid and ask")
	}
}

func TestOrderbookRequestsConfiguredDepth(t *testing.T) {
	var gotDepth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDepth = r.URL.Query().Get("depth")
		fmt.Fprint(w, envelope(`{"symbol": "C-BTC-110000-TEST", "buy": [{"price": "10", "size": "3"}], "sell": [{"price": "12", "size": "1"}]}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Source.Delta.OrderbookDepth = 5
	client := NewClient(cfg)

	book, err := client.Orderbook(context.Background(), "C-BTC-110000-TEST")
	if err != nil {
		t.Fatalf("orderbook: %v", err)
	}
	if gotDepth != "5" {
		t.Errorf("depth query = %q, want 5", gotDepth)
	}
	if len(book.Buy) != 1 || len(book.Sell) != 1 {
		t.Fatalf("unexpected book: %+v", book)
	}

	// Depth zero means no truncation parameter at all.
	cfg.Source.Delta.OrderbookDepth = 0
	if _, err := NewClient(cfg).Orderbook(context.Background(), "C-BTC-110000-TEST"); err != nil {
		t.Fatalf("orderbook: %v", err)
	}
	if gotDepth != "" {
		t.Errorf("depth query = %q, want empty", gotDepth)
	}
}

// fakeExchange serves a catalog and per-symbol tickers the way the public
// REST API does.
type fakeExchange struct {
	mu         sync.Mutex
	catalog    string
	tickers    map[string]string
	catalogErr bool
}

func (f *fakeExchange) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.catalogErr {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, envelope(f.catalog))
	})
	mux.HandleFunc("/tickers/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		symbol := strings.TrimPrefix(r.URL.Path, "/tickers/")
		body, ok := f.tickers[symbol]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, envelope(body))
	})
	return mux
}

func TestReaderRefreshChain(t *testing.T) {
	settlement := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second).Format(time.RFC3339)
	exchange := &fakeExchange{
		catalog: "[" + strings.Join([]string{
			productJSON(1, "C-BTC-110000-TEST", "call_options", "110000", settlement),
			productJSON(2, "P-BTC-110000-TEST", "put_options", "110000", settlement),
		}, ",") + "]",
		tickers: map[string]string{
			"C-BTC-110000-TEST": `{"symbol": "C-BTC-110000-TEST", "best_bid_price": "10", "best_ask_price": "12", "mark_price": "11", "spot_price": "109000"}`,
			"P-BTC-110000-TEST": `{"symbol": "P-BTC-110000-TEST", "best_bid_price": "8", "best_ask_price": "10", "mark_price": "9", "spot_price": "109000"}`,
		},
	}
	server := httptest.NewServer(exchange.handler())
	defer server.Close()

	ch := channel.NewChannels(10, 10)
	reader := NewReader(testConfig(server.URL), ch)
	reader.ctx = context.Background()

	reader.refreshChain("BTC")

	select {
	case slice := <-ch.Raw:
		if len(slice.Instruments) != 2 {
			t.Fatalf("len(Instruments) = %d, want 2", len(slice.Instruments))
		}
		if len(slice.Quotes) != 2 {
			t.Fatalf("len(Quotes) = %d, want 2", len(slice.Quotes))
		}
		call, ok := slice.Quotes["C-BTC-110000-TEST"]
		if !ok {
			t.Fatal("missing call quote")
		}
		if call.BestBid == nil || *call.BestBid != 10 {
			t.Errorf("call BestBid = %v, want 10", call.BestBid)
		}
		if slice.SpotPrice == nil || *slice.SpotPrice != 109000 {
			t.Errorf("SpotPrice = %v, want 109000", slice.SpotPrice)
		}
	default:
		t.Fatal("no market slice emitted")
	}
}

func TestReaderRefreshChainQuoteFailure(t *testing.T) {
	settlement := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second).Format(time.RFC3339)
	exchange := &fakeExchange{
		catalog: "[" + strings.Join([]string{
			productJSON(1, "C-BTC-110000-TEST", "call_options", "110000", settlement),
			productJSON(2, "P-BTC-110000-TEST", "put_options", "110000", settlement),
		}, ",") + "]",
		tickers: map[string]string{
			"C-BTC-110000-TEST": `{"symbol": "C-BTC-110000-TEST", "best_bid_price": "10", "best_ask_price": "12"}`,
			// Put ticker intentionally absent: its row must still flow
			// through, just without a quote.
		},
	}
	server := httptest.NewServer(exchange.handler())
	defer server.Close()

	ch := channel.NewChannels(10, 10)
	reader := NewReader(testConfig(server.URL), ch)
	reader.ctx = context.Background()

	reader.refreshChain("BTC")

	select {
	case slice := <-ch.Raw:
		if len(slice.Instruments) != 2 {
			t.Fatalf("len(Instruments) = %d, want 2", len(slice.Instruments))
		}
		if len(slice.Quotes) != 1 {
			t.Fatalf("len(Quotes) = %d, want 1", len(slice.Quotes))
		}
		if _, ok := slice.Quotes["P-BTC-110000-TEST"]; ok {
			t.Error("failed quote must not appear in the slice")
		}
	default:
		t.Fatal("no market slice emitted")
	}
}

func TestReaderCatalogFailureSkipsCycle(t *testing.T) {
	exchange := &fakeExchange{catalogErr: true}
	server := httptest.NewServer(exchange.handler())
	defer server.Close()

	ch := channel.NewChannels(10, 10)
	reader := NewReader(testConfig(server.URL), ch)
	reader.ctx = context.Background()

	reader.refreshChain("BTC")

	select {
	case <-ch.Raw:
		t.Fatal("catalog failure must not emit a slice")
	default:
	}
}

func TestReaderEmptyCatalogEmitsEmptySlice(t *testing.T) {
	exchange := &fakeExchange{catalog: "[]"}
	server := httptest.NewServer(exchange.handler())
	defer server.Close()

	ch := channel.NewChannels(10, 10)
	reader := NewReader(testConfig(server.URL), ch)
	reader.ctx = context.Background()

	reader.refreshChain("BTC")

	select {
	case slice := <-ch.Raw:
		if len(slice.Instruments) != 0 {
			t.Fatalf("len(Instruments) = %d, want 0", len(slice.Instruments))
		}
	default:
		t.Fatal("empty catalog must still emit an empty slice")
	}
}
