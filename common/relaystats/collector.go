package relaystats

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Collector accumulates relay outcomes in memory and flushes them to Redis
// periodically. Safe for concurrent use.
type Collector struct {
	client        *Client
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	batches map[string]*BatchUpdate

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollector starts a collector that flushes every flushInterval.
func NewCollector(client *Client, flushInterval time.Duration, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Collector{
		client:        client,
		flushInterval: flushInterval,
		logger:        logger,
		batches:       make(map[string]*BatchUpdate),
		ctx:           ctx,
		cancel:        cancel,
	}

	c.wg.Add(1)
	go c.flushLoop()

	return c
}

// Record counts one event for guildID.
func (c *Collector) Record(guildID, eventType, outcome string) {
	key := bucket(guildID)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	batch, ok := c.batches[key]
	if !ok {
		batch = NewBatchUpdate(key)
		c.batches[key] = batch
	}
	batch.Add(eventType, outcome, now)
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.flush()
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

func (c *Collector) flush() {
	c.mu.Lock()
	batches := c.batches
	c.batches = make(map[string]*BatchUpdate)
	c.mu.Unlock()

	if len(batches) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	flushed := 0
	var total int64

	for _, batch := range batches {
		if err := c.client.FlushBatch(ctx, batch); err != nil {
			c.logger.Error("failed to flush relay stats batch",
				"guild_id", batch.GuildID,
				"event_count", batch.Total(),
				"error", err,
			)
			// Keep the counts for the next tick.
			c.mu.Lock()
			if existing, ok := c.batches[batch.GuildID]; ok {
				existing.Merge(batch)
			} else {
				c.batches[batch.GuildID] = batch
			}
			c.mu.Unlock()
			continue
		}
		flushed++
		total += batch.Total()
	}

	if flushed > 0 {
		c.logger.Debug("flushed relay stats",
			"guilds", flushed,
			"total_events", total,
		)
	}
}

// FlushNow flushes synchronously.
func (c *Collector) FlushNow() {
	c.flush()
}

// Stop stops the flush loop after a final flush. Counts that could not be
// flushed are logged and dropped.
func (c *Collector) Stop() {
	c.cancel()
	c.wg.Wait()

	if lost := c.pending(); len(lost) > 0 {
		c.logger.Warn("relay stats not flushed before stop", "pending", lost)
	}
}

// pending returns unflushed event counts per guild.
func (c *Collector) pending() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.batches))
	for guild, batch := range c.batches {
		out[guild] = batch.Total()
	}
	return out
}
