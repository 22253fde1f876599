// Package notify broadcasts terminal trade outcomes to external
// subscribers (risk dashboards, PnL reconciliation, alerting) over NATS,
// grounded on the teacher's NatsCQRSAdapter
// (internal/architecture/cqrs/handlers/nats_cqrs.go: github.com/nats-io/nats.go
// connection lifecycle, subject-per-concern publish) adapted from CQRS
// command/event replay to a simple fire-and-forget trade outcome feed,
// since SPEC_FULL's notification surface has no replay or ordering
// requirement of its own.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/arbicore/internal/types"
)

// TradeSubject is the single NATS subject every trade outcome is published
// under, whatever venues the trade touched.
const TradeSubject = "arbicore.trades"

// outcomeMessage is the wire shape published for every terminal trade
// (spec §4.5: "COMMITTED"/"ROLLED_BACK" outcomes with realized PnL).
type outcomeMessage struct {
	TradeID        string    `json:"trade_id"`
	OverallState   string    `json:"overall_state"`
	RealizedProfit string    `json:"realized_profit"`
	LegCount       int       `json:"leg_count"`
	EndTime        time.Time `json:"end_time"`
}

// Publisher publishes terminal MultiLegTrade outcomes over a NATS
// connection. A nil *Publisher is valid and every method is a no-op, so
// callers can wire it unconditionally and skip it only when no NATS URL
// is configured.
type Publisher struct {
	conn *nats.Conn
	log  *zap.Logger
}

// Dial connects to url (e.g. "nats://localhost:4222") with the teacher's
// reconnect policy (bounded retries, fixed wait between attempts).
func Dial(url string, log *zap.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %q: %w", url, err)
	}
	return &Publisher{conn: conn, log: log}, nil
}

// PublishOutcome publishes trade's terminal state. Marshal/publish errors
// are logged and swallowed: a missed notification must never fail or
// delay the execution path that produced it.
func (p *Publisher) PublishOutcome(trade types.MultiLegTrade) {
	if p == nil || p.conn == nil {
		return
	}
	msg := outcomeMessage{
		TradeID:        trade.ID,
		OverallState:   string(trade.OverallState),
		RealizedProfit: trade.RealizedProfit.String(),
		LegCount:       len(trade.Legs),
		EndTime:        trade.EndTime,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn("marshal trade outcome", zap.Error(err))
		return
	}
	if err := p.conn.Publish(TradeSubject, data); err != nil {
		p.log.Warn("publish trade outcome", zap.Error(err))
	}
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
