package book

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/abdoElHodaky/arbicore/internal/coreerrors"
	"github.com/abdoElHodaky/arbicore/internal/types"
)

func testAsset() types.Asset {
	return types.Asset{ID: "YES-2026", Venue: types.VenueCentralizedCLOB}
}

func level(price string, size int64) types.BookLevel {
	return types.BookLevel{Price: types.MustPrice(price), Size: types.NewSize(size)}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return New(20, nil, nil, zaptest.NewLogger(t))
}

func TestApplySnapshotThenDeltaInvariants(t *testing.T) {
	mgr := newTestManager(t)
	asset := testAsset()

	snap := types.BookSnapshotEvent{
		Asset: asset,
		Bids:  []types.BookLevel{level("0.48", 500), level("0.47", 300)},
		Asks:  []types.BookLevel{level("0.50", 400), level("0.52", 600)},
		Timestamp: time.Unix(100, 0),
	}
	if err := mgr.Apply(snap); err != nil {
		t.Fatalf("snapshot apply: %v", err)
	}

	ro := mgr.Snapshot(asset, 0)
	assertBookOrdered(t, ro)

	delta := types.BookDeltaEvent{
		Asset: asset,
		Changes: []types.LevelChange{
			{Price: types.MustPrice("0.49"), NewSize: types.NewSize(200), Side: types.SideBuy},
			{Price: types.MustPrice("0.47"), NewSize: types.NewSize(0), Side: types.SideBuy},
		},
		Timestamp: time.Unix(101, 0),
	}
	if err := mgr.Apply(delta); err != nil {
		t.Fatalf("delta apply: %v", err)
	}

	ro = mgr.Snapshot(asset, 0)
	assertBookOrdered(t, ro)

	bestBid, ok := ro.BestBid()
	if !ok || !bestBid.Price.Equal(types.MustPrice("0.49")) {
		t.Fatalf("expected best bid 0.49, got %+v ok=%v", bestBid, ok)
	}
	for _, l := range ro.Bids {
		if l.Price.Equal(types.MustPrice("0.47")) {
			t.Fatalf("level removed by zero-size delta still present: %+v", l)
		}
	}
}

func assertBookOrdered(t *testing.T, ro types.ReadOnlyBook) {
	t.Helper()
	for i := 1; i < len(ro.Bids); i++ {
		if !ro.Bids[i-1].Price.GreaterThan(ro.Bids[i].Price) {
			t.Fatalf("bids not strictly descending: %+v", ro.Bids)
		}
	}
	for i := 1; i < len(ro.Asks); i++ {
		if !ro.Asks[i].Price.GreaterThan(ro.Asks[i-1].Price) {
			t.Fatalf("asks not strictly ascending: %+v", ro.Asks)
		}
	}
	if bb, okb := ro.BestBid(); okb {
		if ba, oka := ro.BestAsk(); oka {
			if !bb.Price.LessThan(ba.Price) {
				t.Fatalf("crossed book: best_bid=%s best_ask=%s", bb.Price, ba.Price)
			}
		}
	}
}

// Scenario 5 (spec §8): a delta before any snapshot is discarded and raises Desync.
func TestDeltaBeforeSnapshotRaisesDesync(t *testing.T) {
	mgr := newTestManager(t)
	asset := testAsset()

	delta := types.BookDeltaEvent{
		Asset: asset,
		Changes: []types.LevelChange{
			{Price: types.MustPrice("0.50"), NewSize: types.NewSize(100), Side: types.SideSell},
		},
		Timestamp: time.Unix(1, 0),
	}
	err := mgr.Apply(delta)
	if err == nil {
		t.Fatal("expected desync error, got nil")
	}
	if !coreerrors.Is(err, coreerrors.KindDesync) {
		t.Fatalf("expected Desync kind, got %v", coreerrors.KindOf(err))
	}

	ro := mgr.Snapshot(asset, 0)
	if len(ro.Asks) != 0 {
		t.Fatalf("discarded delta must not mutate book, got asks=%+v", ro.Asks)
	}

	snap := types.BookSnapshotEvent{
		Asset:     asset,
		Asks:      []types.BookLevel{level("0.50", 100)},
		Timestamp: time.Unix(2, 0),
	}
	if err := mgr.Apply(snap); err != nil {
		t.Fatalf("recovery snapshot apply: %v", err)
	}
	if err := mgr.Apply(types.BookDeltaEvent{
		Asset: asset,
		Changes: []types.LevelChange{
			{Price: types.MustPrice("0.51"), NewSize: types.NewSize(50), Side: types.SideSell},
		},
		Timestamp: time.Unix(3, 0),
	}); err != nil {
		t.Fatalf("post-recovery delta apply: %v", err)
	}
}

// Idempotence law (spec §8): applying the same delta twice equals applying once.
func TestDeltaIdempotence(t *testing.T) {
	mgr := newTestManager(t)
	asset := testAsset()
	mgr.Apply(types.BookSnapshotEvent{Asset: asset, Timestamp: time.Unix(1, 0)})

	delta := types.BookDeltaEvent{
		Asset: asset,
		Changes: []types.LevelChange{
			{Price: types.MustPrice("0.50"), NewSize: types.NewSize(300), Side: types.SideSell},
		},
		Timestamp: time.Unix(2, 0),
	}
	mgr.Apply(delta)
	first := mgr.Snapshot(asset, 0)
	mgr.Apply(delta)
	second := mgr.Snapshot(asset, 0)

	if len(first.Asks) != len(second.Asks) || !first.Asks[0].Size.Equal(second.Asks[0].Size)  {
		t.Fatalf("delta not idempotent: first=%+v second=%+v", first.Asks, second.Asks)
	}
}

func TestCrossedBookMarksUnhealthy(t *testing.T) {
	mgr := newTestManager(t)
	asset := testAsset()

	mgr.Apply(types.BookSnapshotEvent{
		Asset:     asset,
		Bids:      []types.BookLevel{level("0.60", 100)},
		Asks:      []types.BookLevel{level("0.50", 100)},
		Timestamp: time.Unix(1, 0),
	})

	ro := mgr.Snapshot(asset, 0)
	if ro.Healthy {
		t.Fatal("expected crossed book to be marked unhealthy")
	}
}

func TestFingerprintRoundTrip(t *testing.T) {
	bids := []types.BookLevel{level("0.48", 500)}
	asks := []types.BookLevel{level("0.50", 400)}
	a := Fingerprint(bids, asks)
	b := Fingerprint(append([]types.BookLevel(nil), bids...), append([]types.BookLevel(nil), asks...))
	if a != b {
		t.Fatalf("fingerprint not reproducible: %s vs %s", a, b)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	mgr := newTestManager(t)
	asset := testAsset()

	var got types.ReadOnlyBook
	unsub := mgr.Subscribe(asset, func(ro types.ReadOnlyBook) { got = ro })
	defer unsub()

	mgr.Apply(types.BookSnapshotEvent{
		Asset:     asset,
		Bids:      []types.BookLevel{level("0.48", 500)},
		Timestamp: time.Unix(1, 0),
	})

	if len(got.Bids) != 1 {
		t.Fatalf("subscriber not notified, got %+v", got)
	}
}
