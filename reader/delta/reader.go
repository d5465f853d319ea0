package delta

import (
	"context"
	"fmt"
	"sync"
	"time"

	appconfig "optionflow/config"
	"optionflow/internal/channel"
	"optionflow/internal/metrics"
	"optionflow/logger"
	"optionflow/models"
	"optionflow/processor"
)

// Reader periodically refreshes the option catalog for each configured
// underlying, selects the nearest unexpired settlement, fetches quotes for
// the selected contracts in parallel and emits one MarketSlice per cycle.
type Reader struct {
	config   *appconfig.Config
	client   *Client
	channels *channel.Channels
	stream   *quoteStream
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

func NewReader(cfg *appconfig.Config, channels *channel.Channels) *Reader {
	r := &Reader{
		config:   cfg,
		client:   NewClient(cfg),
		channels: channels,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
	if cfg.Source.Delta.Websocket.Enabled {
		r.stream = newQuoteStream(cfg.Source.Delta.Websocket.URL)
	}

	r.log.WithComponent("delta_reader").WithFields(logger.Fields{
		"base_url":     cfg.Source.Delta.BaseURL,
		"underlyings":  cfg.Source.Delta.Underlyings,
		"quote_source": cfg.Source.Delta.QuoteSource,
		"interval":     cfg.Reader.Interval,
	}).Info("delta reader initialized")

	return r
}

// Start launches one refresh worker per underlying.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("delta_reader").WithFields(logger.Fields{"operation": "start"})

	if len(r.config.Source.Delta.Underlyings) == 0 {
		log.Warn("no underlyings configured")
		return fmt.Errorf("no underlyings configured")
	}

	if r.stream != nil {
		r.stream.Start(ctx)
	}

	for _, underlying := range r.config.Source.Delta.Underlyings {
		r.wg.Add(1)
		go r.refreshWorker(underlying)
	}

	log.WithFields(logger.Fields{
		"underlyings": r.config.Source.Delta.Underlyings,
	}).Info("delta reader started")
	return nil
}

// Stop signals all workers to stop and waits for completion.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("delta_reader").Info("stopping delta reader")
	r.wg.Wait()
	r.log.WithComponent("delta_reader").Info("delta reader stopped")
}

func (r *Reader) refreshWorker(underlying string) {
	defer r.wg.Done()

	log := r.log.WithComponent("delta_reader").WithFields(logger.Fields{
		"underlying": underlying,
		"worker":     "chain_refresher",
	})
	log.Info("starting refresh worker")

	interval := r.config.Reader.Interval

	// First cycle runs immediately, subsequent cycles align to the interval
	// grid so multiple underlyings refresh in lockstep.
	r.refreshChain(underlying)

	now := time.Now()
	nextTick := now.Truncate(interval).Add(interval)
	timer := time.NewTimer(nextTick.Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-r.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case <-timer.C:
			start := time.Now()
			r.refreshChain(underlying)
			duration := time.Since(start)

			if duration > interval {
				log.WithFields(logger.Fields{
					"duration_ms": duration.Milliseconds(),
					"interval":    interval.String(),
				}).Warn("refresh took longer than interval")
			}

			nextTick = start.Truncate(interval).Add(interval)
			timer.Reset(time.Until(nextTick))
		}
	}
}

// refreshChain runs one full fetch cycle. A catalog failure skips the cycle
// and keeps the previous snapshot on screen; missing quotes never abort the
// cycle, the affected rows simply carry no price.
func (r *Reader) refreshChain(underlying string) {
	log := r.log.WithComponent("delta_reader").WithFields(logger.Fields{
		"underlying": underlying,
		"operation":  "refresh_chain",
	})

	start := time.Now()
	products, err := r.client.Products(r.ctx, "call_options", "put_options")
	if err != nil {
		log.WithError(err).Error("failed to fetch option catalog")
		metrics.IncrementCatalogError(underlying)
		return
	}
	metrics.IncrementCatalogSuccess(underlying)
	logger.IncrementCatalogRead(len(products))
	logger.LogPerformanceEntry(log, "delta_reader", "catalog_request", time.Since(start), logger.Fields{
		"products": len(products),
	})

	instruments, dropped := BuildInstruments(products)
	if dropped > 0 {
		log.WithFields(logger.Fields{"dropped": dropped}).Warn("dropped malformed catalog entries")
		metrics.IncrementDroppedInstruments(underlying, dropped)
	}

	selected := processor.SelectNearestExpiry(instruments, underlying, time.Now().UTC())

	slice := models.MarketSlice{
		Underlying:         underlying,
		Instruments:        selected,
		Quotes:             make(map[string]models.Quote, len(selected)),
		DroppedInstruments: dropped,
		FetchedAt:          time.Now().UTC(),
	}

	if len(selected) == 0 {
		// A listed underlying with no live options is a normal empty state,
		// not an error. An empty slice clears the chain downstream.
		log.Info("no live option contracts for underlying")
		r.sendSlice(log, slice)
		return
	}
	slice.Expiry = selected[0].SettlementTime

	if r.stream != nil {
		r.stream.SetSymbols(symbolsOf(selected))
	}

	r.fetchQuotes(&slice, selected)

	log.WithFields(logger.Fields{
		"expiry":      slice.Expiry.Format("2006-01-02"),
		"instruments": len(selected),
		"quotes":      len(slice.Quotes),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("chain slice fetched")

	r.sendSlice(log, slice)
}

// fetchQuotes pulls a quote for every selected contract with bounded
// concurrency and joins before the slice is emitted. A fresh websocket quote
// short-circuits the REST request for that symbol.
func (r *Reader) fetchQuotes(slice *models.MarketSlice, selected []models.Instrument) {
	log := r.log.WithComponent("delta_reader").WithFields(logger.Fields{
		"underlying": slice.Underlying,
		"operation":  "fetch_quotes",
	})

	sem := make(chan struct{}, r.config.Reader.MaxConcurrentQuotes)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, inst := range selected {
		symbol := inst.Symbol

		if r.stream != nil {
			if q, ok := r.stream.Quote(symbol, 2*r.config.Reader.Interval); ok {
				mu.Lock()
				slice.Quotes[symbol] = q
				mu.Unlock()
				continue
			}
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			q, err := r.fetchQuote(symbol)
			if err != nil {
				log.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Warn("quote unavailable")
				metrics.IncrementQuoteError(slice.Underlying)
				return
			}
			metrics.IncrementQuoteSuccess(slice.Underlying)
			logger.IncrementQuoteRead(1)

			mu.Lock()
			slice.Quotes[symbol] = q
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, q := range slice.Quotes {
		if q.SpotPrice != nil {
			slice.SpotPrice = q.SpotPrice
			break
		}
	}
}

func (r *Reader) fetchQuote(symbol string) (models.Quote, error) {
	now := time.Now().UTC()
	if r.config.Source.Delta.QuoteSource == "orderbook" {
		book, err := r.client.Orderbook(r.ctx, symbol)
		if err != nil {
			return models.Quote{}, err
		}
		return orderbookToQuote(symbol, book, now), nil
	}

	ticker, err := r.client.Ticker(r.ctx, symbol)
	if err != nil {
		return models.Quote{}, err
	}
	return tickerToQuote(symbol, ticker, now), nil
}

func (r *Reader) sendSlice(log *logger.Entry, slice models.MarketSlice) {
	if r.channels.SendRaw(r.ctx, slice) {
		logger.LogDataFlowEntry(log, "delta_api", "raw_channel", len(slice.Instruments), "instruments")
		logger.RecordChannelMessage("raw", len(slice.Instruments))
	} else {
		log.Warn("raw channel is full, dropping market slice")
	}
}

func symbolsOf(instruments []models.Instrument) []string {
	out := make([]string, len(instruments))
	for i, inst := range instruments {
		out[i] = inst.Symbol
	}
	return out
}
