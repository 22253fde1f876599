package types

import "time"

// EventType discriminates the closed set of feed events (spec §4.1, §9:
// "tagged variant over the closed event set ... the parser produces a
// variant, never a heterogeneous map").
type EventType string

const (
	EventBookSnapshot   EventType = "BOOK_SNAPSHOT"
	EventBookDelta      EventType = "BOOK_DELTA"
	EventTradePrint     EventType = "TRADE_PRINT"
	EventTickSizeChange EventType = "TICK_SIZE_CHANGE"
	EventTopOfBook      EventType = "TOP_OF_BOOK"
	EventMarketCreated  EventType = "MARKET_CREATED"
	EventMarketResolved EventType = "MARKET_RESOLVED"
)

// Event is the closed interface every feed event variant implements. C2
// type-switches on the concrete variant rather than consuming a
// heterogeneous map.
type Event interface {
	Type() EventType
	EventAsset() Asset
	EventTimestamp() time.Time
}

// BookSnapshotEvent replaces both sides of the book for Asset (spec §4.1).
type BookSnapshotEvent struct {
	Asset       Asset
	Bids        []BookLevel
	Asks        []BookLevel
	Timestamp   time.Time
	Fingerprint string
}

func (e BookSnapshotEvent) Type() EventType        { return EventBookSnapshot }
func (e BookSnapshotEvent) EventAsset() Asset      { return e.Asset }
func (e BookSnapshotEvent) EventTimestamp() time.Time { return e.Timestamp }

// LevelChange is one (price, new_size, side) tuple within a BookDeltaEvent;
// new_size == 0 means remove.
type LevelChange struct {
	Price   Price
	NewSize Size
	Side    Side
}

// BookDeltaEvent incrementally updates Asset's book (spec §4.1).
type BookDeltaEvent struct {
	Asset     Asset
	Changes   []LevelChange
	Timestamp time.Time
}

func (e BookDeltaEvent) Type() EventType        { return EventBookDelta }
func (e BookDeltaEvent) EventAsset() Asset      { return e.Asset }
func (e BookDeltaEvent) EventTimestamp() time.Time { return e.Timestamp }

// TradePrintEvent reports an executed trade on the venue (spec §4.1).
type TradePrintEvent struct {
	Asset         Asset
	Price         Price
	Size          Size
	AggressorSide Side
	Timestamp     time.Time
}

func (e TradePrintEvent) Type() EventType        { return EventTradePrint }
func (e TradePrintEvent) EventAsset() Asset      { return e.Asset }
func (e TradePrintEvent) EventTimestamp() time.Time { return e.Timestamp }

// TickSizeChangeEvent reports a change in minimum price increment.
type TickSizeChangeEvent struct {
	Asset     Asset
	OldTick   Price
	NewTick   Price
	Timestamp time.Time
}

func (e TickSizeChangeEvent) Type() EventType        { return EventTickSizeChange }
func (e TickSizeChangeEvent) EventAsset() Asset      { return e.Asset }
func (e TickSizeChangeEvent) EventTimestamp() time.Time { return e.Timestamp }

// TopOfBookEvent is an optional, hint-only best-bid/ask update.
type TopOfBookEvent struct {
	Asset     Asset
	BestBid   Price
	BestAsk   Price
	Timestamp time.Time
}

func (e TopOfBookEvent) Type() EventType        { return EventTopOfBook }
func (e TopOfBookEvent) EventAsset() Asset      { return e.Asset }
func (e TopOfBookEvent) EventTimestamp() time.Time { return e.Timestamp }

// MarketCreatedEvent announces a new tradable asset.
type MarketCreatedEvent struct {
	Asset     Asset
	Metadata  map[string]string
	Timestamp time.Time
}

func (e MarketCreatedEvent) Type() EventType        { return EventMarketCreated }
func (e MarketCreatedEvent) EventAsset() Asset      { return e.Asset }
func (e MarketCreatedEvent) EventTimestamp() time.Time { return e.Timestamp }

// MarketResolvedEvent announces an asset's terminal resolution.
type MarketResolvedEvent struct {
	Asset       Asset
	WinningSide Side
	Timestamp   time.Time
}

func (e MarketResolvedEvent) Type() EventType        { return EventMarketResolved }
func (e MarketResolvedEvent) EventAsset() Asset      { return e.Asset }
func (e MarketResolvedEvent) EventTimestamp() time.Time { return e.Timestamp }
