package delta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

// Client is a thin wrapper over the Delta Exchange v2 public REST API. All
// calls go through a shared rate limiter so a burst of per-symbol quote
// fetches cannot trip the exchange limits.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	bookDepth  int
	log        *logger.Log
}

func NewClient(cfg *appconfig.Config) *Client {
	pool := cfg.Source.Delta.ConnectionPool
	transport := &http.Transport{
		MaxIdleConns:        pool.MaxIdleConns,
		MaxIdleConnsPerHost: pool.MaxIdleConns,
		MaxConnsPerHost:     pool.MaxConnsPerHost,
		IdleConnTimeout:     pool.IdleConnTimeout,
		DisableCompression:  false,
	}

	rps := cfg.Reader.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Reader.RateLimit.BurstSize
	if burst <= 0 {
		burst = rps
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.Source.Delta.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Reader.Timeout,
		},
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		bookDepth: cfg.Source.Delta.OrderbookDepth,
		log:       logger.GetLogger(),
	}
}

// Products fetches the option catalog. contractTypes narrows the listing
// server-side (call_options, put_options).
func (c *Client) Products(ctx context.Context, contractTypes ...string) ([]models.DeltaProduct, error) {
	q := url.Values{}
	if len(contractTypes) > 0 {
		q.Set("contract_types", strings.Join(contractTypes, ","))
	}
	q.Set("states", "live")

	var products []models.DeltaProduct
	if err := c.get(ctx, "/products", q, &products); err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}
	return products, nil
}

// Ticker fetches the ticker for one symbol, including best bid/ask and the
// exchange mark price.
func (c *Client) Ticker(ctx context.Context, symbol string) (models.DeltaTicker, error) {
	var ticker models.DeltaTicker
	if err := c.get(ctx, "/tickers/"+url.PathEscape(symbol), nil, &ticker); err != nil {
		return models.DeltaTicker{}, fmt.Errorf("fetch ticker %s: %w", symbol, err)
	}
	return ticker, nil
}

// Orderbook fetches the L2 book for one symbol, truncated server-side to the
// configured depth. Only the top of book is needed for a mid price.
func (c *Client) Orderbook(ctx context.Context, symbol string) (models.DeltaOrderbook, error) {
	var q url.Values
	if c.bookDepth > 0 {
		q = url.Values{"depth": []string{strconv.Itoa(c.bookDepth)}}
	}

	var book models.DeltaOrderbook
	if err := c.get(ctx, "/l2orderbook/"+url.PathEscape(symbol), q, &book); err != nil {
		return models.DeltaOrderbook{}, fmt.Errorf("fetch orderbook %s: %w", symbol, err)
	}
	return book, nil
}

// get performs one GET request and unmarshals the result field of the
// response envelope into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var envelope models.DeltaEnvelope
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if !envelope.Success {
		if envelope.Error != nil {
			return fmt.Errorf("api error: %s", envelope.Error.Code)
		}
		return fmt.Errorf("api error: success=false")
	}

	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
