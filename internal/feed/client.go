package feed

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/arbicore/internal/config"
	"github.com/abdoElHodaky/arbicore/internal/metrics"
	"github.com/abdoElHodaky/arbicore/internal/types"
)

// Handler consumes events in arrival order for one asset. The Book Manager
// registers one Handler per subscribed asset (spec §4.1: "ordered per
// asset"; no ordering guarantee across assets).
type Handler func(types.Event)

// Dialer opens a venue WebSocket connection; swappable in tests.
type Dialer func(url string) (Conn, error)

// Conn is the minimal websocket surface the Client depends on, so tests can
// substitute an in-memory implementation without a real socket.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
	SetReadDeadline(t time.Time) error
}

type gorillaConn struct{ *websocket.Conn }

func (c gorillaConn) ReadMessage() ([]byte, error) {
	_, data, err := c.Conn.ReadMessage()
	return data, err
}

// DialGorilla opens url with github.com/gorilla/websocket (spec §4.1's
// "persistent WebSocket connection per venue"; grounded on the teacher's
// BinanceProvider.connectWebSocket).
func DialGorilla(url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return gorillaConn{conn}, nil
}

// Client owns one venue's WebSocket connection, reconnect/backoff policy,
// and the per-asset ordered dispatch bus (spec §2 C1 Feed Client).
type Client struct {
	venue  types.Venue
	url    string
	dial   Dialer
	cfg    config.FeedConfig
	metrics *metrics.Core
	log    *zap.Logger

	bus      *message.Router
	pub      message.Publisher
	sub      message.Subscriber

	mu            sync.Mutex
	subscribers   map[string][]Handler
	conn          Conn
	lastMsgAt     time.Time
	needsSnapshot map[string]bool // set on (re)connect; cleared once a BookSnapshotEvent lands
	reconnected   bool
	stopCh        chan struct{}
}

// New constructs a Client for one venue. url is the venue's WebSocket
// endpoint; dial defaults to DialGorilla when nil.
func New(v types.Venue, url string, dial Dialer, cfg config.FeedConfig, m *metrics.Core, log *zap.Logger) *Client {
	if dial == nil {
		dial = DialGorilla
	}
	wmLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1024}, wmLogger)
	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		panic(err) // only fails on invalid static RouterConfig, never at runtime
	}
	return &Client{
		venue:       v,
		url:         url,
		dial:        dial,
		cfg:         cfg,
		metrics:     m,
		log:         log,
		bus:         router,
		pub:         pubSub,
		sub:         pubSub,
		subscribers:   make(map[string][]Handler),
		needsSnapshot: make(map[string]bool),
		stopCh:        make(chan struct{}),
	}
}

// topic returns the per-asset watermill topic name. gochannel preserves
// publish order within a topic and runs each topic's handler on its own
// goroutine, so giving every asset its own topic is what delivers C1's
// ordered-per-asset guarantee while letting a slow consumer for one asset
// never stall another's delivery (grounded on the teacher's
// WatermillEventBus topic-per-aggregate convention).
func topic(asset types.Asset) string { return "feed." + asset.Key() }

// Subscribe registers h to receive every event for asset, in arrival order,
// via a dedicated watermill handler on asset's topic. Returns an
// unsubscribe function. Must be called before Run publishes the asset's
// first message, since gochannel is non-persistent: a topic with no
// attached handler silently drops messages published to it.
func (c *Client) Subscribe(asset types.Asset, h Handler) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := asset.Key()
	if _, exists := c.subscribers[key]; !exists {
		c.bus.AddNoPublisherHandler("feed-dispatch-"+key, topic(asset), c.sub, func(msg *message.Message) error {
			ev, err := parseEvent(msg.Payload)
			if err != nil {
				return nil // already validated at publish time; defensive only
			}
			c.mu.Lock()
			handlers := append([]Handler(nil), c.subscribers[key]...)
			c.mu.Unlock()
			for _, handler := range handlers {
				handler(ev)
			}
			return nil
		})
	}
	c.subscribers[key] = append(c.subscribers[key], h)
	idx := len(c.subscribers[key]) - 1
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		hs := c.subscribers[key]
		if idx < len(hs) {
			c.subscribers[key] = append(hs[:idx], hs[idx+1:]...)
		}
	}, nil
}

// dispatch publishes raw (the validated wire payload for ev) to ev's
// per-asset topic, to be replayed and fanned out by the registered
// watermill handler (see Subscribe).
func (c *Client) dispatch(ev types.Event, raw []byte) error {
	return c.pub.Publish(topic(ev.EventAsset()), message.NewMessage(watermill.NewUUID(), raw))
}

// Run starts the dispatch router, connects, reads, reconnects-with-backoff,
// and heartbeats until ctx is cancelled (spec §4.1/§5: heartbeat 10s,
// disconnect threshold 30s, backoff schedule 1,2,5,10,30,60s).
func (c *Client) Run(ctx context.Context) error {
	routerErr := make(chan error, 1)
	go func() { routerErr <- c.bus.Run(ctx) }()
	select {
	case <-c.bus.Running():
	case err := <-routerErr:
		return err
	}

	go c.heartbeatLoop(ctx)

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return nil
		default:
		}

		conn, err := c.dial(c.url)
		if err != nil {
			c.recordReconnect()
			if !c.sleepBackoff(ctx, attempt) {
				return ctx.Err()
			}
			attempt++
			continue
		}

		c.mu.Lock()
		c.conn = conn
		if c.reconnected {
			for asset := range c.subscribers {
				c.needsSnapshot[asset] = true
			}
		}
		c.reconnected = true
		c.mu.Unlock()
		attempt = 0

		err = c.readLoop(ctx, conn)
		conn.Close()

		select {
		case <-c.stopCh:
			return nil
		default:
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("feed connection lost, reconnecting", zap.String("venue", string(c.venue)), zap.Error(err))
		c.recordReconnect()
		if !c.sleepBackoff(ctx, attempt) {
			return ctx.Err()
		}
		attempt++
	}
}

// heartbeatLoop periodically publishes the feed's liveness age so an
// orchestrator can alert on a silently stalled (but not errored) venue
// connection (spec §5: heartbeat 10s, disconnect threshold 30s). It does
// not itself send a "PING" keepalive frame to the venue socket; liveness is
// inferred purely from inbound message timing, since gorilla/websocket's
// ReadMessage already resets on any control frame the peer sends.
func (c *Client) heartbeatLoop(ctx context.Context) {
	interval := c.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.metrics == nil {
				continue
			}
			c.mu.Lock()
			last := c.lastMsgAt
			c.mu.Unlock()
			if last.IsZero() {
				continue
			}
			c.metrics.FeedHeartbeatAge.WithLabelValues(string(c.venue)).Set(time.Since(last).Seconds())
		}
	}
}

func (c *Client) recordReconnect() {
	if c.metrics != nil {
		c.metrics.FeedReconnects.WithLabelValues(string(c.venue)).Inc()
	}
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) bool {
	schedule := c.cfg.BackoffSchedule
	if len(schedule) == 0 {
		schedule = []time.Duration{time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second, 60 * time.Second}
	}
	idx := attempt
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	select {
	case <-time.After(schedule[idx]):
		return true
	case <-ctx.Done():
		return false
	}
}

// readLoop reads and dispatches messages until the connection errors or
// goes idle past IdleTimeout (spec §4.1 heartbeat/liveness).
func (c *Client) readLoop(ctx context.Context, conn Conn) error {
	idleTimeout := c.cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Second
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return err
		}
		raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.lastMsgAt = time.Now()
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.FeedHeartbeatAge.WithLabelValues(string(c.venue)).Set(0)
		}

		ev, err := parseEvent(raw)
		if err != nil {
			c.log.Warn("discarding malformed feed message", zap.String("venue", string(c.venue)), zap.Error(err))
			if c.metrics != nil {
				c.metrics.FeedMessagesDropped.WithLabelValues(string(c.venue), "malformed").Inc()
			}
			continue
		}
		if c.awaitingSnapshot(ev) {
			c.log.Warn("discarding event before post-reconnect snapshot", zap.String("asset", ev.EventAsset().Key()), zap.String("type", string(ev.Type())))
			if c.metrics != nil {
				c.metrics.FeedMessagesDropped.WithLabelValues(string(c.venue), "awaiting_snapshot").Inc()
			}
			continue
		}
		if err := c.dispatch(ev, raw); err != nil {
			c.log.Warn("dispatch failed", zap.String("venue", string(c.venue)), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// awaitingSnapshot enforces the reconnect contract (spec §8 boundary case:
// "after a simulated disconnect, the first event per subscribed asset must
// be BookSnapshot"). Any non-snapshot event for an asset still marked
// needsSnapshot is stale relative to the new connection and is discarded;
// BookSnapshotEvent clears the mark.
func (c *Client) awaitingSnapshot(ev types.Event) bool {
	key := ev.EventAsset().Key()
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.Type() == types.EventBookSnapshot {
		delete(c.needsSnapshot, key)
		return false
	}
	return c.needsSnapshot[key]
}

// Stop signals a running Run call to exit instead of reconnecting. Closing
// the live connection unblocks readLoop's in-flight ReadMessage so Run
// observes stopCh promptly rather than waiting out IdleTimeout.
func (c *Client) Stop() {
	close(c.stopCh)
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
