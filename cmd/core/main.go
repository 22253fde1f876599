// Command core runs the arbitrage execution core: C1 Feed Client, C2 Book
// Manager, C3 VWAP Engine, C4 Allocator, and C5 Atomic Executor wired
// together via go.uber.org/fx, grounded on the teacher's cmd/gateway/main.go
// fx.New(fx.Supply(...), Module, fx.Invoke(...)) shape.
package main

import (
	"context"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/arbicore/internal/book"
	"github.com/abdoElHodaky/arbicore/internal/cache"
	"github.com/abdoElHodaky/arbicore/internal/config"
	"github.com/abdoElHodaky/arbicore/internal/execution"
	"github.com/abdoElHodaky/arbicore/internal/feed"
	"github.com/abdoElHodaky/arbicore/internal/metrics"
	"github.com/abdoElHodaky/arbicore/internal/notify"
	"github.com/abdoElHodaky/arbicore/internal/riskgate"
	"github.com/abdoElHodaky/arbicore/internal/types"
	"github.com/abdoElHodaky/arbicore/internal/venue"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	app := fx.New(
		fx.Supply(logger),
		fx.Provide(
			loadConfig,
			newMetrics,
			newCache,
			newBookManager,
			newRiskGate,
			newVenueRegistry,
			newExecutor,
		),
		fx.Invoke(run),
	)

	app.Run()
}

func loadConfig() (*config.Config, error) {
	return config.Load(os.Getenv("ARBICORE_CONFIG"))
}

func newMetrics() *metrics.Core {
	return metrics.New(prometheus.DefaultRegisterer)
}

func newCache(cfg *config.Config, log *zap.Logger) *cache.Cache {
	return cache.New(cfg.Book.CacheTTL, cfg.Book.CacheTTL*2, log)
}

func newBookManager(cfg *config.Config, c *cache.Cache, m *metrics.Core, log *zap.Logger) *book.Manager {
	return book.New(cfg.Book.DefaultDepth, c, m, log)
}

func newRiskGate() riskgate.RiskGate {
	return riskgate.NewInMemory(decimal.NewFromInt(1_000_000), decimal.NewFromInt(250_000))
}

// venueRegistry is every Venue this process can submit legs to, keyed by
// its originating venue identifier (spec §1: centralized CLOB + chain CLOB).
type venueRegistry map[types.Venue]venue.Venue

func newVenueRegistry(log *zap.Logger) venueRegistry {
	centralized := venue.NewBreakerVenue("centralized_clob",
		venue.NewRateLimitedVenue(venue.NewMockVenue(decimal.NewFromInt(1_000_000)), 20, 5, log), log)

	var chainInner venue.Venue = venue.NewMockVenue(decimal.NewFromInt(1_000_000))
	if endpoints := chainRPCEndpoints(); len(endpoints) > 0 {
		chainInner = venue.NewChainVenue(chainInner, os.Getenv("ARBICORE_CHAIN_ADDRESS"), endpoints, 0.9)
	}
	chain := venue.NewBreakerVenue("chain_clob",
		venue.NewRateLimitedVenue(chainInner, 5, 2, log), log)

	return venueRegistry{
		types.VenueCentralizedCLOB: centralized,
		types.VenueChainCLOB:       chain,
	}
}

// chainRPCEndpoints parses the comma-separated ARBICORE_CHAIN_RPC_URLS env
// var into the pool of RPC endpoints the chain venue round-robins across,
// weighted by per-endpoint HealthScore (spec §4.5).
func chainRPCEndpoints() []string {
	raw := os.Getenv("ARBICORE_CHAIN_RPC_URLS")
	if raw == "" {
		return nil
	}
	urls := strings.Split(raw, ",")
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func newExecutor(cfg *config.Config, venues venueRegistry, rg riskgate.RiskGate, m *metrics.Core, log *zap.Logger) (*execution.Executor, error) {
	exec, err := execution.NewExecutor(cfg.Execution, venues, rg, 16, m, log)
	if err != nil {
		return nil, err
	}
	if rpcURL := os.Getenv("ARBICORE_CHAIN_RPC_URL"); rpcURL != "" {
		oracle, err := venue.DialEthGasOracle(rpcURL)
		if err != nil {
			log.Warn("gas oracle unavailable, proceeding without a gas ceiling", zap.Error(err))
		} else {
			exec.SetGasOracle(oracle)
		}
	}
	if natsURL := os.Getenv("ARBICORE_NATS_URL"); natsURL != "" {
		pub, err := notify.Dial(natsURL, log)
		if err != nil {
			log.Warn("trade outcome publisher unavailable", zap.Error(err))
		} else {
			exec.SetNotifier(pub)
		}
	}
	return exec, nil
}

// watchedAssets parses the comma-separated ARBICORE_ASSETS env var into the
// asset IDs this process reconstructs order books for (e.g. "YES,NO").
func watchedAssets() []string {
	raw := os.Getenv("ARBICORE_ASSETS")
	if raw == "" {
		return nil
	}
	ids := strings.Split(raw, ",")
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// newFeedClients opens one feed.Client per configured venue endpoint and
// subscribes every watched asset's handler to forward events into the
// Book Manager (spec §2: C1 -> C2 flow).
func newFeedClients(cfg *config.Config, bm *book.Manager, m *metrics.Core, log *zap.Logger) []*feed.Client {
	endpoints := map[types.Venue]string{
		types.VenueCentralizedCLOB: os.Getenv("ARBICORE_CENTRALIZED_WS_URL"),
		types.VenueChainCLOB:       os.Getenv("ARBICORE_CHAIN_WS_URL"),
	}
	assets := watchedAssets()

	clients := make([]*feed.Client, 0, len(endpoints))
	for v, url := range endpoints {
		if url == "" {
			continue
		}
		c := feed.New(v, url, nil, cfg.Feed, m, log)
		for _, assetID := range assets {
			asset := types.Asset{ID: assetID, Venue: v}
			if _, err := c.Subscribe(asset, func(ev types.Event) {
				if err := bm.Apply(ev); err != nil {
					log.Warn("book apply failed", zap.String("asset", asset.Key()), zap.Error(err))
				}
			}); err != nil {
				log.Error("feed subscribe failed", zap.String("asset", asset.Key()), zap.Error(err))
			}
		}
		clients = append(clients, c)
	}
	return clients
}

// run starts every feed client's connection loop under the application's
// lifecycle and logs the fully wired core's readiness (spec §1 overview).
func run(lc fx.Lifecycle, cfg *config.Config, bm *book.Manager, m *metrics.Core, exec *execution.Executor, log *zap.Logger) {
	clients := newFeedClients(cfg, bm, m, log)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for _, c := range clients {
				c := c
				go func() {
					if err := c.Run(context.Background()); err != nil {
						log.Error("feed client stopped", zap.Error(err))
					}
				}()
			}
			log.Info("arbitrage execution core started", zap.Int("feed_clients", len(clients)))
			_ = exec
			return nil
		},
		OnStop: func(ctx context.Context) error {
			for _, c := range clients {
				c.Stop()
			}
			log.Info("arbitrage execution core stopped")
			return nil
		},
	})
}
