package processor

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
)

// Builder consumes raw market slices and emits chain snapshots. The chain
// assembly itself is pure (see chain.go); this component supplies the
// channel plumbing, lifecycle and counters around it.
type Builder struct {
	config   *appconfig.Config
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	// Metrics
	slicesProcessed int64
	rowsEmitted     int64
	emptyChains     int64
}

func NewBuilder(cfg *appconfig.Config, ch *channel.Channels) *Builder {
	return &Builder{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (b *Builder) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("builder already running")
	}
	b.running = true
	b.ctx = ctx
	b.mu.Unlock()

	log := b.log.WithComponent("chain_builder").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting chain builder")

	numWorkers := b.config.Processor.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	for i := 0; i < numWorkers; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	log.WithFields(logger.Fields{"workers": numWorkers}).Info("chain builder started")
	return nil
}

func (b *Builder) Stop() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	b.log.WithComponent("chain_builder").Info("stopping chain builder")
	b.wg.Wait()
	b.log.WithComponent("chain_builder").WithFields(logger.Fields{
		"slices_processed": b.slicesProcessed,
		"rows_emitted":     b.rowsEmitted,
	}).Info("chain builder stopped")
}

func (b *Builder) worker(workerID int) {
	defer b.wg.Done()

	log := b.log.WithComponent("chain_builder").WithFields(logger.Fields{
		"worker_id": workerID,
	})

	for {
		select {
		case <-b.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case slice, ok := <-b.channels.Raw:
			if !ok {
				log.Info("raw channel closed, worker stopping")
				return
			}

			start := time.Now()
			snapshot := b.buildSnapshot(slice)
			duration := time.Since(start)

			b.mu.Lock()
			b.slicesProcessed++
			b.rowsEmitted += int64(len(snapshot.Rows))
			if snapshot.Empty() {
				b.emptyChains++
			}
			b.mu.Unlock()

			metrics.IncrementChainBuild(slice.Underlying)
			logger.IncrementChainBuild(len(snapshot.Rows))
			logger.LogPerformanceEntry(log, "chain_builder", "build_chain", duration, logger.Fields{
				"underlying": slice.Underlying,
				"rows":       len(snapshot.Rows),
			})

			if b.channels.SendNorm(b.ctx, snapshot) {
				logger.LogDataFlowEntry(log, "raw_channel", "norm_channel", len(snapshot.Rows), "chain_rows")
			} else if b.ctx.Err() != nil {
				return
			} else {
				log.Warn("norm channel is full, dropping chain snapshot")
			}
		}
	}
}

// buildSnapshot turns one market slice into a chain snapshot. An empty slice
// produces an empty snapshot that downstream consumers render as an explicit
// "no options found" state.
func (b *Builder) buildSnapshot(slice models.MarketSlice) models.ChainSnapshot {
	mode := models.PricingMode(b.config.Processor.PricingMode)
	if mode != models.PricingModeMark {
		mode = models.PricingModeMid
	}

	rows := BuildChain(slice.Instruments, slice.Quotes, mode)

	missing := 0
	for _, row := range rows {
		if row.CallSymbol != "" && row.CallPrice == nil {
			missing++
		}
		if row.PutSymbol != "" && row.PutPrice == nil {
			missing++
		}
	}

	if len(rows) == 0 {
		b.log.WithComponent("chain_builder").WithFields(logger.Fields{
			"underlying": slice.Underlying,
		}).Info("no instruments for nearest expiry")
	}

	return models.ChainSnapshot{
		Underlying:         slice.Underlying,
		Expiry:             slice.Expiry,
		PricingMode:        mode,
		Rows:               rows,
		SpotPrice:          slice.SpotPrice,
		InstrumentCount:    len(slice.Instruments),
		DroppedInstruments: slice.DroppedInstruments,
		MissingQuotes:      missing,
		FetchedAt:          slice.FetchedAt,
		BuiltAt:            time.Now().UTC(),
	}
}
