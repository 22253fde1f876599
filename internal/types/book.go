package types

import (
	"sort"
	"time"
)

// Side is the side of an order book or a leg's direction.
type Side string

const (
	SideBuy Side = "BUY"
	SideSell Side = "SELL"
)

// BookLevel is a single price level: (price, size) with size > 0 (spec §3;
// a zero-size level is equivalent to a level removal and is never stored).
type BookLevel struct {
	Price Price
	Size  Size
}

// Level2Side is one side (bids or asks) of an order book: a price-sorted,
// price-unique slice of levels. Bids are stored strictly descending by
// price; asks strictly ascending. The zero value is an empty side.
type Level2Side struct {
	levels    []BookLevel
	ascending bool
}

// NewLevel2Side constructs an empty side. ascending=true for asks (lowest
// price first), false for bids (highest price first).
func NewLevel2Side(ascending bool) *Level2Side {
	return &Level2Side{ascending: ascending}
}

// Levels returns a read-only view of the levels in priority order.
func (s *Level2Side) Levels() []BookLevel { return s.levels }

func (s *Level2Side) Len() int { return len(s.levels) }

func (s *Level2Side) Best() (BookLevel, bool) {
	if len(s.levels) == 0 {
		return BookLevel{}, false
	}
	return s.levels[0], true
}

func (s *Level2Side) less(a, b Price) bool {
	if s.ascending {
		return a.LessThan(b)
	}
	return a.GreaterThan(b)
}

// Set inserts, updates, or removes (size <= 0) the level at price.
func (s *Level2Side) Set(price Price, size Size) {
	idx := sort.Search(len(s.levels), func(i int) bool {
		return !s.less(s.levels[i].Price, price)
	})
	found := idx < len(s.levels) && s.levels[idx].Price.Equal(price)

	if size.IsZero() || !size.IsPositive() {
		if found {
			s.levels = append(s.levels[:idx], s.levels[idx+1:]...)
		}
		return
	}

	if found {
		s.levels[idx].Size = size
		return
	}

	s.levels = append(s.levels, BookLevel{})
	copy(s.levels[idx+1:], s.levels[idx:])
	s.levels[idx] = BookLevel{Price: price, Size: size}
}

// Clear empties the side in place, keeping the backing array allocated
// (spec §3: a book "may be vacated to empty but kept allocated").
func (s *Level2Side) Clear() {
	s.levels = s.levels[:0]
}

// Replace atomically swaps the side's contents for a snapshot-derived set of
// levels, which must already be sorted and de-duplicated by the caller.
// Levels with a non-positive size are dropped.
func (s *Level2Side) Replace(levels []BookLevel) {
	s.levels = s.levels[:0]
	for _, l := range levels {
		if l.Size.IsPositive() {
			s.levels = append(s.levels, l)
		}
	}
}

// TopK returns a copy of the first k levels (or fewer if the side is
// shallower), for handing to C3/C4 as a read-only snapshot.
func (s *Level2Side) TopK(k int) []BookLevel {
	n := k
	if n > len(s.levels) {
		n = len(s.levels)
	}
	out := make([]BookLevel, n)
	copy(out, s.levels[:n])
	return out
}

// TotalSize sums the size across the top k levels (0 means all levels).
func (s *Level2Side) TotalSize(k int) Size {
	n := len(s.levels)
	if k > 0 && k < n {
		n = k
	}
	total := NewSize(0)
	for i := 0; i < n; i++ {
		total = total.Add(s.levels[i].Size)
	}
	return total
}

// ReadOnlyBook is the point-in-time, by-value snapshot handed to C3/C4
// (spec §3 Ownership: "by value ... never by mutable shared reference").
type ReadOnlyBook struct {
	Asset       Asset
	Bids        []BookLevel
	Asks        []BookLevel
	Timestamp   time.Time
	Fingerprint string
	Healthy     bool // false when the book is suppressed after a CrossedBook violation
}

func (b ReadOnlyBook) BestBid() (BookLevel, bool) {
	if len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

func (b ReadOnlyBook) BestAsk() (BookLevel, bool) {
	if len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}

// TradeEvent is an immutable print published by C1 (spec §3 & §4.1).
type TradeEvent struct {
	Asset         Asset
	Price         Price
	Size          Size
	AggressorSide Side
	Timestamp     time.Time
}

// TradeHistoryLimit bounds the retained trade history per asset (spec §3
// default: last 100).
const TradeHistoryLimit = 100
