package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                           "0.0.0.0:8080",
		"  :9090  ":                  "0.0.0.0:9090",
		"localhost":                  "localhost:8080",
		"0.0.0.0:80":                 "0.0.0.0:80",
		"[::1]:443":                  "[::1]:443",
		"::1":                        "[::1]:8080",
		"*:8080":                     "0.0.0.0:8080",
		"http://13.200.112.203:8080": "13.200.112.203:8080",
		"https://13.200.112.203":     "13.200.112.203:8080",
		"http://:7070":               "0.0.0.0:7070",
		"tcp://localhost:5050":       "localhost:5050",
	}

	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewServerNormalizesConfiguredAddress(t *testing.T) {
	cfg := config.DashboardConfig{Enabled: true, Address: ":9000"}
	log := logger.Logger()

	srv, err := NewServer(cfg, log)
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	if srv == nil {
		t.Fatal("expected dashboard server, got nil")
	}
	if got := srv.Address(); got != "0.0.0.0:9000" {
		t.Fatalf("server address = %q, want %q", got, "0.0.0.0:9000")
	}
	srv.cleanup()
}

func TestNewServerDisabled(t *testing.T) {
	srv, err := NewServer(config.DashboardConfig{Enabled: false}, logger.Logger())
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	if srv != nil {
		t.Fatal("disabled dashboard must yield a nil server")
	}
	// Nil server must still accept updates from the pipeline.
	srv.UpdateChain(models.ChainSnapshot{Underlying: "BTC"})
}

func testServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(config.DashboardConfig{
		Enabled:         true,
		RefreshInterval: time.Second,
		MetricsHistory:  10,
		LogHistory:      10,
	}, logger.Logger())
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	if srv == nil {
		t.Fatal("expected non-nil server")
	}
	t.Cleanup(srv.cleanup)
	return srv
}

func TestChainEndpointServesSnapshot(t *testing.T) {
	srv := testServer(t)

	srv.UpdateChain(models.ChainSnapshot{
		Underlying:  "BTC",
		Expiry:      time.Date(2026, 9, 4, 12, 0, 0, 0, time.UTC),
		PricingMode: models.PricingModeMid,
		Rows: []models.ChainRow{
			{Strike: 110000, CallSymbol: "C-BTC-110000-040926", CallPrice: models.Float64Ptr(11)},
		},
		SpotPrice: models.Float64Ptr(109000),
		FetchedAt: time.Now().UTC(),
	})

	router, err := srv.buildRouter("optionflow")
	if err != nil {
		t.Fatalf("buildRouter error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chain/btc", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}

	var payload struct {
		Underlying string  `json:"underlying"`
		Expiry     string  `json:"expiry"`
		SpotPrice  float64 `json:"spot_price"`
		Empty      bool    `json:"empty"`
		Rows       []struct {
			Strike    float64  `json:"strike"`
			CallPrice *float64 `json:"call_price"`
			PutPrice  *float64 `json:"put_price"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}

	if payload.Underlying != "BTC" || payload.Empty {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.SpotPrice != 109000 {
		t.Fatalf("spot_price = %v, want 109000", payload.SpotPrice)
	}
	if len(payload.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(payload.Rows))
	}
	if payload.Rows[0].CallPrice == nil || *payload.Rows[0].CallPrice != 11 {
		t.Fatalf("call_price = %v, want 11", payload.Rows[0].CallPrice)
	}
	if payload.Rows[0].PutPrice != nil {
		t.Fatalf("put_price must be absent for a missing quote, got %v", *payload.Rows[0].PutPrice)
	}
}

func TestChainEndpointUnknownUnderlying(t *testing.T) {
	srv := testServer(t)

	router, err := srv.buildRouter("optionflow")
	if err != nil {
		t.Fatalf("buildRouter error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chain/DOGE", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.Code)
	}
}

func TestChainEndpointListsEmptySnapshots(t *testing.T) {
	srv := testServer(t)

	srv.UpdateChain(models.ChainSnapshot{Underlying: "ETH", FetchedAt: time.Now().UTC()})

	router, err := srv.buildRouter("optionflow")
	if err != nil {
		t.Fatalf("buildRouter error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chain", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}

	var payload struct {
		Chains []struct {
			Underlying string `json:"underlying"`
			Empty      bool   `json:"empty"`
		} `json:"chains"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Chains) != 1 || !payload.Chains[0].Empty {
		t.Fatalf("expected one explicit empty chain, got %+v", payload.Chains)
	}
}
