package feed

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/abdoElHodaky/arbicore/internal/config"
	"github.com/abdoElHodaky/arbicore/internal/types"
)

// fakeConn feeds a scripted sequence of raw messages to the Client and
// blocks (simulating an idle connection) once exhausted, until closed.
type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	idx      int
	closed   chan struct{}
}

func newFakeConn(messages ...[]byte) *fakeConn {
	return &fakeConn{messages: messages, closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	c.mu.Lock()
	if c.idx < len(c.messages) {
		msg := c.messages[c.idx]
		c.idx++
		c.mu.Unlock()
		return msg, nil
	}
	c.mu.Unlock()
	<-c.closed
	return nil, context.Canceled
}

func (c *fakeConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error { return nil }

func snapshotMsg(assetID string) []byte {
	b, _ := json.Marshal(wireMessage{
		Type: string(types.EventBookSnapshot), Asset: assetID, Venue: string(types.VenueCentralizedCLOB),
		Bids: [][2]string{{"0.48", "100"}}, Asks: [][2]string{{"0.52", "100"}},
	})
	return b
}

func deltaMsg(assetID string) []byte {
	b, _ := json.Marshal(wireMessage{
		Type: string(types.EventBookDelta), Asset: assetID, Venue: string(types.VenueCentralizedCLOB),
		Changes: []wireLevelDiff{{Price: "0.49", Size: "50", Side: "BUY"}},
	})
	return b
}

func TestClientDispatchesEventsInOrder(t *testing.T) {
	conn := newFakeConn(snapshotMsg("X"), deltaMsg("X"))
	dialed := make(chan struct{}, 1)
	dial := func(url string) (Conn, error) {
		select {
		case dialed <- struct{}{}:
		default:
			return nil, context.Canceled // only one connection for this test
		}
		return conn, nil
	}

	c := New(types.VenueCentralizedCLOB, "wss://test", dial, config.FeedConfig{IdleTimeout: time.Second}, nil, zaptest.NewLogger(t))

	var mu sync.Mutex
	var received []types.EventType
	done := make(chan struct{}, 1)
	_, err := c.Subscribe(types.Asset{ID: "X", Venue: types.VenueCentralizedCLOB}, func(ev types.Event) {
		mu.Lock()
		received = append(received, ev.Type())
		if len(received) == 2 {
			select {
			case done <- struct{}{}:
			default:
			}
		}
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go c.Run(ctx)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched events")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 || received[0] != types.EventBookSnapshot || received[1] != types.EventBookDelta {
		t.Fatalf("received = %v, want [BOOK_SNAPSHOT BOOK_DELTA]", received)
	}
}

func TestParseEventRejectsUnknownDiscriminator(t *testing.T) {
	raw, _ := json.Marshal(map[string]string{"type": "NOT_A_REAL_EVENT", "asset": "X"})
	if _, err := parseEvent(raw); err == nil {
		t.Fatal("expected an error for an unknown discriminator")
	}
}

func TestParseEventRoundTripsSnapshot(t *testing.T) {
	ev, err := parseEvent(snapshotMsg("X"))
	if err != nil {
		t.Fatalf("parseEvent: %v", err)
	}
	snap, ok := ev.(types.BookSnapshotEvent)
	if !ok {
		t.Fatalf("got %T, want BookSnapshotEvent", ev)
	}
	if len(snap.Bids) != 1 || !snap.Bids[0].Price.Equal(types.MustPrice("0.48")) {
		t.Fatalf("unexpected bids: %+v", snap.Bids)
	}
}

func TestClientStopTerminatesRunWithoutWaitingOutIdleTimeout(t *testing.T) {
	conn := newFakeConn(snapshotMsg("X"))
	dial := func(url string) (Conn, error) { return conn, nil }

	c := New(types.VenueCentralizedCLOB, "wss://test", dial, config.FeedConfig{IdleTimeout: time.Minute}, nil, zaptest.NewLogger(t))

	runErr := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { runErr <- c.Run(ctx) }()

	// Give Run a moment to dial and block in readLoop on the fakeConn's
	// idle channel (an IdleTimeout of a minute means ctx/stopCh must be
	// what actually ends the loop here, not the read deadline).
	time.Sleep(20 * time.Millisecond)
	c.Stop()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned %v after Stop, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stop did not terminate Run promptly")
	}
}
