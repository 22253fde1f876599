package venue

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/abdoElHodaky/arbicore/internal/coreerrors"
	"github.com/abdoElHodaky/arbicore/internal/types"
)

// weiPerGwei converts the go-ethereum suggested gas price (wei) into the
// gwei units spec §4.5/§6's GasOracle.price and ExecutionConfig.MaxGasGwei
// are expressed in.
var weiPerGwei = decimal.New(1, 9)

// urgencyMultiplier scales the network's suggested gas price per the
// caller's urgency (spec §6: "GasOracle.price(urgency) -> decimal"), since
// go-ethereum's SuggestGasPrice returns a single network-median figure with
// no urgency dimension of its own.
var urgencyMultiplier = map[string]float64{
	"low":    0.9,
	"normal": 1.0,
	"high":   1.5,
}

// EthGasOracle implements GasOracle against a live chain RPC endpoint via
// github.com/ethereum/go-ethereum's ethclient, grounded on the teacher
// corpus's blackholedex example (ethclient.Dial + EffectiveGasPrice
// accounting in blackhole.go), adapted from post-hoc receipt accounting to
// a forward-looking price quote.
type EthGasOracle struct {
	client *ethclient.Client
}

// DialEthGasOracle connects to rpcURL and returns a ready EthGasOracle.
func DialEthGasOracle(rpcURL string) (*EthGasOracle, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	return &EthGasOracle{client: client}, nil
}

// Price returns the gas price in gwei suitable for the given urgency
// ("low", "normal", "high"), defaulting to the network's suggested price
// unmultiplied for any unrecognized urgency.
func (o *EthGasOracle) Price(ctx context.Context, urgency string) (decimal.Decimal, error) {
	wei, err := o.client.SuggestGasPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	gwei := decimal.NewFromBigInt(wei, 0).Div(weiPerGwei)
	mult, ok := urgencyMultiplier[urgency]
	if !ok {
		mult = 1.0
	}
	return gwei.Mul(decimal.NewFromFloat(mult)), nil
}

// Close releases the underlying RPC connection.
func (o *EthGasOracle) Close() { o.client.Close() }

// ChainBalance reads the native balance (wei, converted to whole units)
// of address at the latest block, for the blockchain venue's GetBalance
// (spec §6).
func ChainBalance(ctx context.Context, client *ethclient.Client, address string) (decimal.Decimal, error) {
	wei, err := client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(wei, 0).Div(decimal.New(1, 18)), nil
}

// ChainVenue adapts an inner order-matching Venue (the chain CLOB's own
// trading surface). Connected, PlaceOrder and CancelOrder delegate straight
// to inner; GetBalance and the block-number lookup in GetOrderStatus are
// routed through a round-robin, health-weighted pool of RPC endpoints.
// Each pooled call records the endpoint's observed latency and
// success/failure back into the Pool so a degrading endpoint's score
// decays and future selections favor its healthier peers.
type ChainVenue struct {
	inner   Venue
	address string
	pool    *Pool

	mu      sync.Mutex
	clients map[int]*ethclient.Client
}

// NewChainVenue constructs a ChainVenue delegating order placement,
// cancellation, and status polling to inner, while GetBalance and
// block-confirmation lookups round-robin across endpoints weighted by
// HealthScore (decaying at decayPerObservation per sample, 0 < decay < 1).
func NewChainVenue(inner Venue, address string, endpoints []string, decayPerObservation float64) *ChainVenue {
	return &ChainVenue{
		inner:   inner,
		address: address,
		pool:    NewPool(endpoints, decayPerObservation),
		clients: make(map[int]*ethclient.Client),
	}
}

// dial lazily connects to endpoint idx, reusing the connection across
// subsequent selections of the same endpoint.
func (c *ChainVenue) dial(idx int, endpoint string) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[idx]; ok {
		return client, nil
	}
	client, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, err
	}
	c.clients[idx] = client
	return client, nil
}

// withEndpoint selects the healthiest pool endpoint, runs fn against its
// dialed client, and feeds the call's latency and outcome back into the
// endpoint's HealthScore.
func (c *ChainVenue) withEndpoint(fn func(*ethclient.Client) error) error {
	endpoint, idx := c.pool.Select()
	if idx < 0 {
		return coreerrors.New(coreerrors.KindConfigError, "chain venue has no RPC endpoints configured")
	}
	client, err := c.dial(idx, endpoint)
	if err != nil {
		c.pool.Observe(idx, 0, false)
		return coreerrors.Wrap(err, coreerrors.KindTransientNetwork, "dial chain RPC endpoint")
	}
	start := time.Now()
	err = fn(client)
	c.pool.Observe(idx, time.Since(start), err == nil)
	return err
}

func (c *ChainVenue) Connected() bool { return c.inner.Connected() }

func (c *ChainVenue) PlaceOrder(ctx context.Context, asset types.Asset, side types.Side, kind OrderKind, quantity decimal.Decimal, price types.Price) (PlaceResult, error) {
	return c.inner.PlaceOrder(ctx, asset, side, kind, quantity, price)
}

func (c *ChainVenue) CancelOrder(ctx context.Context, orderID string) error {
	return c.inner.CancelOrder(ctx, orderID)
}

// GetOrderStatus polls the inner order state, then, for a FILLED or
// PARTIALLY_FILLED order, stamps the confirming block number by reading it
// from a pool-selected RPC endpoint, so the executor can tell whether every
// leg of a trade confirmed within_block (spec §4.5).
func (c *ChainVenue) GetOrderStatus(ctx context.Context, orderID string) (StatusResult, error) {
	status, err := c.inner.GetOrderStatus(ctx, orderID)
	if err != nil || (status.Status != StatusFilled && status.Status != StatusPartiallyFilled) {
		return status, err
	}

	var blockNumber uint64
	rpcErr := c.withEndpoint(func(client *ethclient.Client) error {
		n, err := client.BlockNumber(ctx)
		blockNumber = n
		return err
	})
	if rpcErr == nil {
		status.BlockNumber = blockNumber
	}
	return status, nil
}

// GetBalance reads the venue's native on-chain balance through a
// pool-selected RPC endpoint (spec §6 GetBalance, spec §4.5 endpoint
// selection).
func (c *ChainVenue) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := c.withEndpoint(func(client *ethclient.Client) error {
		b, err := ChainBalance(ctx, client, c.address)
		balance = b
		return err
	})
	return balance, err
}

var _ Venue = (*ChainVenue)(nil)
