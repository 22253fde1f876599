// Package feed implements the Feed Client (C1): one persistent WebSocket
// connection per venue, parsing the venue's wire messages into the closed
// types.Event variant set and dispatching them in arrival order to
// subscribers, grounded on the teacher's BinanceProvider WebSocket handler
// (handleWebSocketMessages in the teacher's internal/external package,
// generalized here from Binance's market-data discriminators to the
// spec's BOOK_SNAPSHOT/BOOK_DELTA/TRADE_PRINT/TICK_SIZE_CHANGE/
// TOP_OF_BOOK/MARKET_CREATED/MARKET_RESOLVED set) and dialed with
// github.com/gorilla/websocket exactly as the teacher does.
package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abdoElHodaky/arbicore/internal/types"
)

// wireMessage is the tagged-variant envelope every venue message parses
// into before being converted to a types.Event (spec §9: "the parser
// produces a variant, never a heterogeneous map").
type wireMessage struct {
	Type      string          `json:"type"`
	Asset     string          `json:"asset"`
	Venue     string          `json:"venue"`
	Timestamp int64           `json:"ts_ms"`
	Bids      [][2]string     `json:"bids,omitempty"`
	Asks      [][2]string     `json:"asks,omitempty"`
	Changes   []wireLevelDiff `json:"changes,omitempty"`
	Price     string          `json:"price,omitempty"`
	Size      string          `json:"size,omitempty"`
	Side      string          `json:"side,omitempty"`
	OldTick   string          `json:"old_tick,omitempty"`
	NewTick   string          `json:"new_tick,omitempty"`
	BestBid   string          `json:"best_bid,omitempty"`
	BestAsk   string          `json:"best_ask,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Fingerprint string        `json:"fingerprint,omitempty"`
}

type wireLevelDiff struct {
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
}

// parseEvent decodes raw into the closed types.Event variant set. An
// unrecognized or malformed discriminator returns an error; the caller
// logs and discards per spec §7 (malformed message policy).
func parseEvent(raw []byte) (types.Event, error) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode wire message: %w", err)
	}

	asset := types.Asset{ID: msg.Asset, Venue: types.Venue(msg.Venue)}
	ts := time.UnixMilli(msg.Timestamp)

	switch types.EventType(msg.Type) {
	case types.EventBookSnapshot:
		bids, err := parseLevels(msg.Bids)
		if err != nil {
			return nil, fmt.Errorf("bids: %w", err)
		}
		asks, err := parseLevels(msg.Asks)
		if err != nil {
			return nil, fmt.Errorf("asks: %w", err)
		}
		return types.BookSnapshotEvent{Asset: asset, Bids: bids, Asks: asks, Timestamp: ts, Fingerprint: msg.Fingerprint}, nil

	case types.EventBookDelta:
		changes := make([]types.LevelChange, 0, len(msg.Changes))
		for _, c := range msg.Changes {
			price, err := types.NewPrice(c.Price)
			if err != nil {
				return nil, fmt.Errorf("delta price: %w", err)
			}
			size, err := parseSize(c.Size)
			if err != nil {
				return nil, fmt.Errorf("delta size: %w", err)
			}
			changes = append(changes, types.LevelChange{Price: price, NewSize: size, Side: types.Side(c.Side)})
		}
		return types.BookDeltaEvent{Asset: asset, Changes: changes, Timestamp: ts}, nil

	case types.EventTradePrint:
		price, err := types.NewPrice(msg.Price)
		if err != nil {
			return nil, fmt.Errorf("trade price: %w", err)
		}
		size, err := parseSize(msg.Size)
		if err != nil {
			return nil, fmt.Errorf("trade size: %w", err)
		}
		return types.TradePrintEvent{Asset: asset, Price: price, Size: size, AggressorSide: types.Side(msg.Side), Timestamp: ts}, nil

	case types.EventTickSizeChange:
		oldTick, err := types.NewPrice(msg.OldTick)
		if err != nil {
			return nil, fmt.Errorf("old_tick: %w", err)
		}
		newTick, err := types.NewPrice(msg.NewTick)
		if err != nil {
			return nil, fmt.Errorf("new_tick: %w", err)
		}
		return types.TickSizeChangeEvent{Asset: asset, OldTick: oldTick, NewTick: newTick, Timestamp: ts}, nil

	case types.EventTopOfBook:
		bestBid, err := types.NewPrice(msg.BestBid)
		if err != nil {
			return nil, fmt.Errorf("best_bid: %w", err)
		}
		bestAsk, err := types.NewPrice(msg.BestAsk)
		if err != nil {
			return nil, fmt.Errorf("best_ask: %w", err)
		}
		return types.TopOfBookEvent{Asset: asset, BestBid: bestBid, BestAsk: bestAsk, Timestamp: ts}, nil

	case types.EventMarketCreated:
		return types.MarketCreatedEvent{Asset: asset, Metadata: msg.Metadata, Timestamp: ts}, nil

	case types.EventMarketResolved:
		return types.MarketResolvedEvent{Asset: asset, WinningSide: types.Side(msg.Side), Timestamp: ts}, nil

	default:
		return nil, fmt.Errorf("unknown event discriminator %q", msg.Type)
	}
}

func parseLevels(raw [][2]string) ([]types.BookLevel, error) {
	out := make([]types.BookLevel, 0, len(raw))
	for _, lvl := range raw {
		price, err := types.NewPrice(lvl[0])
		if err != nil {
			return nil, err
		}
		size, err := parseSize(lvl[1])
		if err != nil {
			return nil, err
		}
		out = append(out, types.BookLevel{Price: price, Size: size})
	}
	return out, nil
}

func parseSize(s string) (types.Size, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return types.Size{}, err
	}
	return types.NewSizeFromDecimal(d), nil
}
