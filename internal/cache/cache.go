// Package cache implements the shared-state boundary of spec §6: a TTL
// cache for book snapshots and VWAP results, plus pub/sub channels for
// trade prints and fills, backed by github.com/patrickmn/go-cache. The
// teacher does not carry go-cache into its own cache layer (it reaches for
// gorm/sqlx instead), so this package is grounded on the library's own
// idiomatic usage together with the teacher's channel/broadcast style in
// internal/marketdata/external.
package cache

import (
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Cache is the shared orderbook/VWAP cache plus trade/fill pub/sub used by
// every component (spec §6).
type Cache struct {
	store *gocache.Cache
	log   *zap.Logger

	mu      sync.RWMutex
	tradeSubs map[string][]chan interface{}
	fillSubs  map[string][]chan interface{}
}

// New constructs a Cache with the given default TTL and cleanup interval.
func New(defaultTTL, cleanupInterval time.Duration, log *zap.Logger) *Cache {
	return &Cache{
		store:     gocache.New(defaultTTL, cleanupInterval),
		log:       log,
		tradeSubs: make(map[string][]chan interface{}),
		fillSubs:  make(map[string][]chan interface{}),
	}
}

// OrderBookKey formats the spec §6 orderbook cache key.
func OrderBookKey(venue, asset string) string {
	return fmt.Sprintf("orderbook:%s:%s", venue, asset)
}

// VWAPKey formats the spec §6 VWAP cache key.
func VWAPKey(asset string, depthUSD int64) string {
	return fmt.Sprintf("vwap:%s:%d", asset, depthUSD)
}

// PutWithTTL stores value under key with an explicit TTL, overriding the
// cache's default expiry.
func (c *Cache) PutWithTTL(key string, value interface{}, ttl time.Duration) {
	c.store.Set(key, value, ttl)
}

// Get retrieves a cached value, reporting whether it was present and
// unexpired.
func (c *Cache) Get(key string) (interface{}, bool) {
	return c.store.Get(key)
}

// Delete evicts key. Nothing in the core calls it; a book entering Desync
// leaves its last published snapshot in place until its TTL expires.
func (c *Cache) Delete(key string) {
	c.store.Delete(key)
}

const subscriberBuffer = 64

// SubscribeTrades opens a channel on the trade:{asset} topic (spec §6).
// Callers must drain the returned channel; Publish drops events for slow
// subscribers rather than blocking the publisher.
func (c *Cache) SubscribeTrades(asset string) <-chan interface{} {
	return c.subscribe(&c.tradeSubs, topicTrade(asset))
}

// SubscribeFills opens a channel on the fill:{trade_id} topic (spec §6).
func (c *Cache) SubscribeFills(tradeID string) <-chan interface{} {
	return c.subscribe(&c.fillSubs, topicFill(tradeID))
}

// PublishTrade broadcasts a trade print to trade:{asset} subscribers.
func (c *Cache) PublishTrade(asset string, event interface{}) {
	c.publish(&c.tradeSubs, topicTrade(asset), event)
}

// PublishFill broadcasts a fill update to fill:{trade_id} subscribers.
func (c *Cache) PublishFill(tradeID string, event interface{}) {
	c.publish(&c.fillSubs, topicFill(tradeID), event)
}

func topicTrade(asset string) string  { return fmt.Sprintf("trade:%s", asset) }
func topicFill(tradeID string) string { return fmt.Sprintf("fill:%s", tradeID) }

func (c *Cache) subscribe(subs *map[string][]chan interface{}, topic string) <-chan interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan interface{}, subscriberBuffer)
	(*subs)[topic] = append((*subs)[topic], ch)
	return ch
}

func (c *Cache) publish(subs *map[string][]chan interface{}, topic string, event interface{}) {
	c.mu.RLock()
	recipients := (*subs)[topic]
	c.mu.RUnlock()

	for _, ch := range recipients {
		select {
		case ch <- event:
		default:
			if c.log != nil {
				c.log.Warn("dropping cache publish to slow subscriber", zap.String("topic", topic))
			}
		}
	}
}
