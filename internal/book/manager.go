// Package book implements the Book Manager (C2): per-asset L2 order book
// state, snapshot/delta application with integrity checking, and
// subscriber fan-out. Grounded on the teacher's order_matching.OrderBook
// (internal/core/matching/order_book.go) — same RWMutex-guarded struct
// shape and zap-logged lifecycle — adapted from heap-based order matching
// to L2 snapshot/delta reconstruction per spec §3/§4.2.
package book

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/arbicore/internal/cache"
	"github.com/abdoElHodaky/arbicore/internal/coreerrors"
	"github.com/abdoElHodaky/arbicore/internal/metrics"
	"github.com/abdoElHodaky/arbicore/internal/types"
)

// Callback is invoked synchronously after every successful apply for the
// subscribed asset (spec §4.2: "must not block").
type Callback func(types.ReadOnlyBook)

// book is the mutable per-asset state exclusively owned by the Manager.
type book struct {
	bids        *types.Level2Side
	asks        *types.Level2Side
	timestamp   time.Time
	fingerprint string
	healthy     bool
	hasSnapshot bool
	subscribers []Callback
}

// Manager owns one order book per asset (spec §2 C2, §3 Ownership).
type Manager struct {
	mu     sync.RWMutex
	books  map[string]*book
	depth  int
	cache  *cache.Cache
	metrics *metrics.Core
	log    *zap.Logger
}

// New constructs a Manager. defaultDepth is the default snapshot() depth
// (spec default 20).
func New(defaultDepth int, c *cache.Cache, m *metrics.Core, log *zap.Logger) *Manager {
	return &Manager{
		books:   make(map[string]*book),
		depth:   defaultDepth,
		cache:   c,
		metrics: m,
		log:     log,
	}
}

func (mgr *Manager) bookFor(asset types.Asset) *book {
	key := asset.Key()
	b, ok := mgr.books[key]
	if !ok {
		b = &book{
			bids: types.NewLevel2Side(false),
			asks: types.NewLevel2Side(true),
		}
		mgr.books[key] = b
	}
	return b
}

// Apply mutates the book for event.EventAsset() (spec §4.2). It is the
// single entry point through which all C2 state transitions flow.
func (mgr *Manager) Apply(event types.Event) error {
	start := time.Now()
	defer func() {
		if mgr.metrics != nil {
			mgr.metrics.BookApplyLatency.Observe(time.Since(start).Seconds())
		}
	}()

	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	switch e := event.(type) {
	case types.BookSnapshotEvent:
		mgr.applySnapshot(e)
	case types.BookDeltaEvent:
		if err := mgr.applyDelta(e); err != nil {
			return err
		}
	default:
		// TradePrint/TickSizeChange/TopOfBook/MarketCreated/MarketResolved
		// carry no book-mutation semantics for C2; they are routed
		// elsewhere (trade history, cache publish) by the caller.
		return nil
	}

	b := mgr.bookFor(event.EventAsset())
	mgr.checkCrossed(event.EventAsset(), b)
	mgr.notify(event.EventAsset(), b)
	return nil
}

func (mgr *Manager) applySnapshot(e types.BookSnapshotEvent) {
	b := mgr.bookFor(e.Asset)
	b.bids.Replace(sortDescending(e.Bids))
	b.asks.Replace(sortAscending(e.Asks))
	b.timestamp = e.Timestamp
	b.fingerprint = e.Fingerprint
	b.hasSnapshot = true
	b.healthy = true
}

func (mgr *Manager) applyDelta(e types.BookDeltaEvent) error {
	b := mgr.bookFor(e.Asset)
	if !b.hasSnapshot {
		if mgr.metrics != nil {
			mgr.metrics.BookDesyncTotal.WithLabelValues(e.Asset.Key()).Inc()
		}
		return coreerrors.New(coreerrors.KindDesync, "delta before snapshot").
			WithDetail("asset", e.Asset.Key())
	}

	for _, ch := range e.Changes {
		switch ch.Side {
		case types.SideBuy:
			b.bids.Set(ch.Price, ch.NewSize)
		case types.SideSell:
			b.asks.Set(ch.Price, ch.NewSize)
		}
	}
	if e.Timestamp.After(b.timestamp) {
		b.timestamp = e.Timestamp
	}
	return nil
}

// VerifyFingerprint recomputes the internal fingerprint and compares it to
// a venue-provided one (spec §4.2 Integrity). A mismatch raises Desync and
// marks the book as requiring a fresh snapshot.
func (mgr *Manager) VerifyFingerprint(asset types.Asset, venueFingerprint string) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	b, ok := mgr.books[asset.Key()]
	if !ok {
		return coreerrors.New(coreerrors.KindDesync, "fingerprint check on unknown asset")
	}
	local := Fingerprint(b.bids.Levels(), b.asks.Levels())
	if local != venueFingerprint {
		b.hasSnapshot = false
		b.healthy = false
		if mgr.metrics != nil {
			mgr.metrics.BookDesyncTotal.WithLabelValues(asset.Key()).Inc()
		}
		return coreerrors.New(coreerrors.KindDesync, "fingerprint mismatch").
			WithDetail("asset", asset.Key()).
			WithDetail("local", local).
			WithDetail("venue", venueFingerprint)
	}
	return nil
}

// checkCrossed marks the book unhealthy (spec §7 CrossedBook) when
// best_bid >= best_ask after an apply, suppressing it from VWAP/allocator
// reads until the next clean snapshot.
func (mgr *Manager) checkCrossed(asset types.Asset, b *book) {
	bestBid, hasBid := b.bids.Best()
	bestAsk, hasAsk := b.asks.Best()
	if hasBid && hasAsk && !bestBid.Price.LessThan(bestAsk.Price) {
		b.healthy = false
		if mgr.metrics != nil {
			mgr.metrics.BookCrossedTotal.WithLabelValues(asset.Key()).Inc()
		}
		if mgr.log != nil {
			mgr.log.Warn("crossed book detected",
				zap.String("asset", asset.Key()),
				zap.String("best_bid", bestBid.Price.String()),
				zap.String("best_ask", bestAsk.Price.String()))
		}
	}
}

// Snapshot returns a point-in-time, by-value copy of the top depthK levels
// on each side (spec §4.2). depthK <= 0 uses the manager's configured
// default.
func (mgr *Manager) Snapshot(asset types.Asset, depthK int) types.ReadOnlyBook {
	start := time.Now()
	defer func() {
		if mgr.metrics != nil {
			mgr.metrics.BookSnapshotLatency.Observe(time.Since(start).Seconds())
		}
	}()

	if depthK <= 0 {
		depthK = mgr.depth
	}

	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	b, ok := mgr.books[asset.Key()]
	if !ok {
		return types.ReadOnlyBook{Asset: asset}
	}
	return types.ReadOnlyBook{
		Asset:       asset,
		Bids:        b.bids.TopK(depthK),
		Asks:        b.asks.TopK(depthK),
		Timestamp:   b.timestamp,
		Fingerprint: b.fingerprint,
		Healthy:     b.healthy,
	}
}

// Subscribe registers cb to be invoked synchronously after every
// successful Apply for asset (spec §4.2). Returns an unsubscribe func.
func (mgr *Manager) Subscribe(asset types.Asset, cb Callback) func() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	b := mgr.bookFor(asset)
	b.subscribers = append(b.subscribers, cb)
	idx := len(b.subscribers) - 1
	return func() {
		mgr.mu.Lock()
		defer mgr.mu.Unlock()
		if idx < len(b.subscribers) {
			b.subscribers[idx] = nil
		}
	}
}

func (mgr *Manager) notify(asset types.Asset, b *book) {
	if len(b.subscribers) == 0 {
		return
	}
	ro := types.ReadOnlyBook{
		Asset:       asset,
		Bids:        b.bids.TopK(mgr.depth),
		Asks:        b.asks.TopK(mgr.depth),
		Timestamp:   b.timestamp,
		Fingerprint: b.fingerprint,
		Healthy:     b.healthy,
	}
	for _, cb := range b.subscribers {
		if cb != nil {
			cb(ro)
		}
	}
}

// PublishCache writes the current top-K snapshot to the shared cache with
// the given ttl for observers outside the process boundary (spec §4.2,
// §6). venue identifies the cache key's namespace.
func (mgr *Manager) PublishCache(venue string, asset types.Asset, ttl time.Duration) {
	ro := mgr.Snapshot(asset, 0)
	if mgr.cache != nil {
		mgr.cache.PutWithTTL(cache.OrderBookKey(venue, asset.Key()), ro, ttl)
	}
}

// Fingerprint computes a reproducible hex digest over a book's price/size
// pairs (spec §3, §6: "hex strings of an opaque but reproducible hash").
// No example repo in the pack implements book fingerprinting; crypto/sha256
// is the standard-library primitive for this and no domain library in the
// corpus offers a drop-in replacement (DESIGN.md).
func Fingerprint(bids, asks []types.BookLevel) string {
	var sb strings.Builder
	sb.WriteString("B:")
	for _, l := range bids {
		sb.WriteString(l.Price.String())
		sb.WriteByte(':')
		sb.WriteString(l.Size.String())
		sb.WriteByte(',')
	}
	sb.WriteString("|A:")
	for _, l := range asks {
		sb.WriteString(l.Price.String())
		sb.WriteByte(':')
		sb.WriteString(l.Size.String())
		sb.WriteByte(',')
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func sortDescending(levels []types.BookLevel) []types.BookLevel {
	out := append([]types.BookLevel(nil), levels...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Price.GreaterThan(out[j-1].Price); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func sortAscending(levels []types.BookLevel) []types.BookLevel {
	out := append([]types.BookLevel(nil), levels...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Price.LessThan(out[j-1].Price); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
