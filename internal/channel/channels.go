package channel

import (
	"context"
	"sync"
	"time"

	"optionflow/logger"
	"optionflow/models"
)

type ChannelStats struct {
	RawSent     int64
	NormSent    int64
	RawDropped  int64
	NormDropped int64
}

// Channels carries one fetch cycle through the pipeline: the reader publishes
// raw MarketSlice messages, the chain builder publishes normalized
// ChainSnapshot messages for the dashboard and the archive writer.
type Channels struct {
	Raw  chan models.MarketSlice
	Norm chan models.ChainSnapshot

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, normBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:  make(chan models.MarketSlice, rawBufferSize),
		Norm: make(chan models.ChainSnapshot, normBufferSize),
		log:  log,
	}

	log.WithComponent("chain_channels").WithFields(logger.Fields{
		"raw_buffer_size":  rawBufferSize,
		"norm_buffer_size": normBufferSize,
	}).Info("chain channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	close(c.Norm)
	c.log.WithComponent("chain_channels").Info("chain channels closed")
}

// SendRaw delivers a market slice without blocking; a full buffer drops the
// slice and records the drop. The next fetch cycle supersedes it anyway.
func (c *Channels) SendRaw(ctx context.Context, msg models.MarketSlice) bool {
	select {
	case c.Raw <- msg:
		c.incrementRawSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementRawDropped()
		return false
	}
}

func (c *Channels) SendNorm(ctx context.Context, msg models.ChainSnapshot) bool {
	select {
	case c.Norm <- msg:
		c.incrementNormSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementNormDropped()
		return false
	}
}

func (c *Channels) incrementRawSent() {
	c.statsMutex.Lock()
	c.stats.RawSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementNormSent() {
	c.statsMutex.Lock()
	c.stats.NormSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementRawDropped() {
	c.statsMutex.Lock()
	c.stats.RawDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementNormDropped() {
	c.statsMutex.Lock()
	c.stats.NormDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

// StartMetricsReporting logs channel occupancy and send/drop counters every
// 30 seconds until the context is cancelled.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	log := c.log.WithComponent("chain_channels")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.GetStats()
			log.WithFields(logger.Fields{
				"raw_len":      len(c.Raw),
				"raw_cap":      cap(c.Raw),
				"norm_len":     len(c.Norm),
				"norm_cap":     cap(c.Norm),
				"raw_sent":     stats.RawSent,
				"norm_sent":    stats.NormSent,
				"raw_dropped":  stats.RawDropped,
				"norm_dropped": stats.NormDropped,
			}).Info("channel stats")
		}
	}
}
