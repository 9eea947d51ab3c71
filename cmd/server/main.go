// Package main is the entry point for the metaswap gateway, a uniform API
// over on-chain prediction market and sports betting venues.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/metaswap-gateway/internal/audit"
	"github.com/yourorg/metaswap-gateway/internal/config"
	"github.com/yourorg/metaswap-gateway/internal/execution"
	"github.com/yourorg/metaswap-gateway/internal/otel"
	"github.com/yourorg/metaswap-gateway/internal/provider"
	"github.com/yourorg/metaswap-gateway/internal/quote"
	"github.com/yourorg/metaswap-gateway/internal/server"
	"github.com/yourorg/metaswap-gateway/internal/signer"
	"github.com/yourorg/metaswap-gateway/internal/telemetry"
	"github.com/yourorg/metaswap-gateway/internal/types"
)

// main is the entry point for the application
func main() {
	cfg := config.Load()
	setupLogging(cfg.LogFormat, cfg.LogLevel)

	shutdownTracer := otel.InitTracer(cfg.OtelEndpoint)
	defer shutdownTracer()

	exporter := audit.NewExporter(audit.Config{
		WebhookURL:    cfg.AuditWebhookURL,
		WebhookAPIKey: cfg.AuditWebhookAPIKey,
		BatchSize:     cfg.AuditBatchSize,
		Interval:      cfg.AuditInterval,
	})
	defer exporter.Stop()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	observer := telemetry.NewObserver(metrics, exporter)

	key, err := signer.FromHex(cfg.PrivateKey)
	if err != nil {
		logrus.Fatalf("Invalid ETH_PRIVATE_KEY: %v", err)
	}
	var txSigner execution.Signer
	if key != nil {
		defer key.Destroy()
		txSigner = key
		logrus.WithField("address", key.Address().Hex()).Info("Signer loaded")
	} else {
		logrus.Warn("No ETH_PRIVATE_KEY configured, executions will be rejected")
	}

	var rdb redis.UniversalClient
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
	}

	registry, closeClients := buildRegistry(cfg, rdb, txSigner, metrics, observer)
	defer closeClients()

	srv := server.New(registry, server.Options{
		RequestRPS:   cfg.RequestRPS,
		RequestBurst: cfg.RequestBurst,
		Audit:        exporter,
	})
	serve(cfg.Port, srv.Router())
}

// setupLogging configures the logging for the application
func setupLogging(format, level string) {
	switch format {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
	if parsed != logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	logrus.Info("Logging configured")
}

// buildRegistry dials each chain and registers providers in routing order:
// Overtime first, then Azuro per chain.
func buildRegistry(cfg config.Config, rdb redis.UniversalClient, txSigner execution.Signer,
	metrics *telemetry.Metrics, observer *telemetry.Observer) (*provider.Registry, func()) {

	timeouts := provider.Timeouts{OnChain: cfg.OnChainTimeout, Indexer: cfg.IndexerTimeout, REST: cfg.RESTTimeout}
	clients := map[types.SupportedChain]*ethclient.Client{}
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}

	dial := func(chain types.SupportedChain, url string) *ethclient.Client {
		c, err := ethclient.Dial(url)
		if err != nil {
			logrus.WithFields(logrus.Fields{"chain": chain, "error": err}).Error("Failed to dial RPC endpoint")
			return nil
		}
		clients[chain] = c
		verifyChain(chain, c)
		return c
	}

	deps := func(name string, client provider.ChainClient) provider.Deps {
		d := provider.Deps{Client: client, Signer: txSigner, Recorder: metrics, Observer: observer}
		if rdb != nil {
			d.Cache = quote.NewRedisCache(rdb, name, cfg.QuoteCacheTTL)
			d.Store = execution.NewRedisStore(rdb, cfg.ExecutionTTL)
		} else {
			d.Cache = quote.NewMemoryCache()
			d.Store = execution.NewMemoryStore(cfg.ExecutionTTL)
		}
		return d
	}

	executorConfig := func(name string) execution.Config {
		ec := execution.DefaultConfig(name)
		ec.GasBufferPercent = cfg.GasBufferPercent
		ec.WaitBudget = cfg.WaitBudget
		ec.PollInterval = cfg.PollInterval
		ec.Confirmations = cfg.Confirmations
		ec.OddsTolerance = cfg.OddsTolerance
		return ec
	}

	var providers []provider.Provider
	add := func(name string, p provider.Provider, err error) {
		if err != nil {
			logrus.WithFields(logrus.Fields{"provider": name, "error": err}).Error("Failed to build provider")
			return
		}
		providers = append(providers, p)
	}

	// The registry routes (chain, category) to the first match, so only one
	// sports venue is registered per chain.
	if arb := dial(types.ChainArbitrum, cfg.ArbitrumRPCURL); arb != nil {
		switch cfg.ArbitrumSportsVenue {
		case config.VenueAzuro:
			az := azuroConfig(cfg, types.ChainArbitrum, cfg.AzuroCoreAddress, cfg.AzuroSubgraphURL, timeouts)
			az.Executor = executorConfig(provider.AzuroName)
			p, err := provider.NewAzuro(az, deps("azuro-arbitrum", arb))
			add("azuro-arbitrum", p, err)
		default:
			ot := provider.DefaultOvertimeConfig()
			if cfg.OvertimeSportsAMM != "" {
				ot.SportsAMM = common.HexToAddress(cfg.OvertimeSportsAMM)
			}
			ot.SubgraphURL = cfg.OvertimeSubgraphURL
			ot.SubgraphAPIKey = cfg.SubgraphAPIKey
			ot.APIURL = cfg.OvertimeAPIURL
			ot.APIKey = cfg.OvertimeAPIKey
			ot.PartnerRPS = cfg.PartnerRPS
			ot.Timeouts = timeouts
			ot.IndexerMaxAge = cfg.IndexerMaxAge
			ot.BreakerFailures = cfg.BreakerFailures
			ot.BreakerReset = cfg.BreakerReset
			ot.Executor = executorConfig(provider.OvertimeName)
			p, err := provider.NewOvertime(ot, deps(provider.OvertimeName, arb))
			add(provider.OvertimeName, p, err)
		}
	}

	if poly := dial(types.ChainPolygon, cfg.PolygonRPCURL); poly != nil {
		az := azuroConfig(cfg, types.ChainPolygon, cfg.AzuroPolygonCoreAddress, cfg.AzuroPolygonSubgraphURL, timeouts)
		az.Executor = executorConfig(provider.AzuroName)
		p, err := provider.NewAzuro(az, deps("azuro-polygon", poly))
		add("azuro-polygon", p, err)
	}

	if len(providers) == 0 {
		logrus.Fatal("No providers configured")
	}

	registry := provider.NewRegistry(providers...)
	for _, name := range registry.Shadowed() {
		logrus.WithField("provider", name).Warn("Provider is shadowed by an earlier registration and will not serve requests")
	}
	for _, d := range registry.Descriptors() {
		logrus.WithFields(logrus.Fields{
			"provider":   d.Name,
			"chains":     d.Chains,
			"categories": d.Categories,
		}).Info("Provider registered")
	}
	return registry, closeAll
}

// verifyChain warns when an RPC endpoint serves a different network than configured
func verifyChain(chain types.SupportedChain, c *ethclient.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := c.ChainID(ctx)
	if err != nil {
		logrus.WithFields(logrus.Fields{"chain": chain, "error": err}).Warn("Could not read chain id")
		return
	}
	if id.Int64() != chain.ChainID() {
		logrus.WithFields(logrus.Fields{
			"chain":    chain,
			"expected": chain.ChainID(),
			"actual":   id.Int64(),
		}).Warn("RPC endpoint chain id mismatch")
	}
}

func azuroConfig(cfg config.Config, chain types.SupportedChain, core, subgraph string, timeouts provider.Timeouts) provider.AzuroConfig {
	az := provider.DefaultAzuroConfig(chain)
	if core != "" {
		az.Core = common.HexToAddress(core)
	}
	az.SubgraphURL = subgraph
	az.SubgraphAPIKey = cfg.SubgraphAPIKey
	az.Timeouts = timeouts
	az.IndexerMaxAge = cfg.IndexerMaxAge
	az.BreakerFailures = cfg.BreakerFailures
	az.BreakerReset = cfg.BreakerReset
	return az
}

// serve runs the HTTP server until SIGINT or SIGTERM, then shuts down gracefully
func serve(port string, handler http.Handler) {
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Server starting on port %s", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logrus.Errorf("Server shutdown failed: %v", err)
	}
	logrus.Info("Server stopped")
}
