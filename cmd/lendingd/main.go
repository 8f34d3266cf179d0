package main

import (
	"context"
	"encoding/hex"
	"flag"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nhblend/config"
	"nhblend/crypto"
	"nhblend/internal/controller"
	"nhblend/internal/events"
	"nhblend/internal/market"
	"nhblend/internal/oracle"
	"nhblend/native/lending"
	"nhblend/observability"
	"nhblend/observability/logging"
	telemetry "nhblend/observability/otel"
)

// walletSink is the UnderlyingSink every registered market's fee withdrawal
// pays into. A production deployment wires this to the chain's native
// transfer module; this binary logs the payout until that wiring exists.
type walletSink struct {
	logger *slog.Logger
}

func (w *walletSink) CreditUnderlying(underlyingID string, recipient crypto.Address, amount *big.Int) {
	w.logger.Info("underlying credited",
		"underlying", underlyingID, "recipient", recipient.String(), "amount", amount.String())
}

func main() {
	configFile := flag.String("config", "./lendingd.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LENDINGD_ENV"))
	logger := logging.Setup("lendingd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "lendingd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		logger.Error("failed to initialise telemetry", "err", err)
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	operatorKeyBytes, err := hex.DecodeString(cfg.OperatorKey)
	if err != nil {
		logger.Error("invalid operator key", "err", err)
		os.Exit(1)
	}
	operatorKey, err := crypto.PrivateKeyFromBytes(operatorKeyBytes)
	if err != nil {
		logger.Error("invalid operator key", "err", err)
		os.Exit(1)
	}
	operatorAddress := operatorKey.PubKey().Address().String()

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			logger.Error("failed to create data dir", "err", err)
			os.Exit(1)
		}
	}
	eventStore, err := events.OpenStore(filepath.Join(cfg.DataDir, "events.db"))
	if err != nil {
		logger.Error("failed to open event store", "err", err)
		os.Exit(1)
	}

	// No DEX/aggregator feed is wired at startup; tokens priced via
	// MethodPriceAggregator or registered later default to the anchor and
	// reporter sources staying nil until an admin path wires them.
	priceOracle, err := oracle.New(oracle.Config{
		FirstBand: oracle.ToleranceBand{LowBps: 200, HighBps: 200},
		LastBand:  oracle.ToleranceBand{LowBps: 500, HighBps: 500},
	}, nil, nil)
	if err != nil {
		logger.Error("failed to construct oracle", "err", err)
		os.Exit(1)
	}

	now := func() int64 { return time.Now().Unix() }
	riskController := controller.New(priceOracle, operatorAddress, operatorAddress, now)
	sink := &walletSink{logger: logger}
	ledger := lending.NewLedger(riskController, sink)

	markets := make(map[string]*market.Market, len(cfg.Markets))
	marketIDs := make([]string, 0, len(cfg.Markets))
	for id := range cfg.Markets {
		marketIDs = append(marketIDs, id)
	}
	sort.Strings(marketIDs)

	for _, marketID := range marketIDs {
		mktCfg := cfg.Markets[marketID]

		model, err := mktCfg.ToRateModel()
		if err != nil {
			logger.Error("invalid rate model", "market", marketID, "err", err)
			os.Exit(1)
		}
		m, err := market.New(mktCfg.ToMarketConfig(marketID), model, now)
		if err != nil {
			logger.Error("failed to construct market", "market", marketID, "err", err)
			os.Exit(1)
		}
		m.SetController(riskController)
		m.SetSink(eventStore)
		m.Activate()

		if err := riskController.Whitelist(marketID, m); err != nil {
			logger.Error("failed to whitelist market", "market", marketID, "err", err)
			os.Exit(1)
		}

		routing, err := mktCfg.ToCollateralRouting(mktCfg.LiquidatorBps, operatorKey.PubKey().Address())
		if err != nil {
			logger.Error("invalid collateral routing", "market", marketID, "err", err)
			os.Exit(1)
		}
		pauses := lending.ActionPauses{}
		oracleCfg := lending.OracleConfig{MaxAgeBlocks: cfg.Global.Oracle.MaxAgeBlocks, MaxDeviationBps: cfg.Global.Oracle.MaxDeviationBps}
		if err := ledger.RegisterMarket(marketID, m, routing, mktCfg.ToBorrowCaps(), pauses, oracleCfg); err != nil {
			logger.Error("failed to register market", "market", marketID, "err", err)
			os.Exit(1)
		}
		if err := mktCfg.ApplyBreaker(riskController, marketID); err != nil {
			logger.Error("failed to apply breaker thresholds", "market", marketID, "err", err)
			os.Exit(1)
		}
		if err := ledger.ApplyRiskParameters(marketID, mktCfg.ToRiskParameters()); err != nil {
			logger.Error("failed to apply risk parameters", "market", marketID, "err", err)
			os.Exit(1)
		}

		markets[marketID] = m
		logger.Info("market registered", "market", marketID, "underlying", mktCfg.UnderlyingID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runAccrualLoop(ctx, markets, priceOracle, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{Addr: cfg.MetricsAddress, Handler: mux}

	go func() {
		logger.Info("metrics server listening", "addr", cfg.MetricsAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "err", err)
	}
	if err := eventStore.LastError(); err != nil {
		logger.Error("event store reported a write error during this run", "err", err)
	}
}

// runAccrualLoop ticks interest accrual for every registered market once a
// second, recording the accrual latency each pass and
// logging the market's underlying price whenever the oracle has a route for
// it (silently skipping markets with no feed registered yet).
func runAccrualLoop(ctx context.Context, markets map[string]*market.Market, priceOracle *oracle.Oracle, logger *slog.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for marketID, m := range markets {
				start := time.Now()
				if err := m.AccrueInterest(); err != nil {
					logger.Error("accrual failed", "market", marketID, "err", err)
					continue
				}
				observability.Market().ObserveAccrual(marketID, time.Since(start))

				if price, err := priceOracle.PriceInNumeraire(m.UnderlyingID()); err == nil {
					logger.Debug("price refreshed", "market", marketID, "price", priceOracle.FormatPrice(m.UnderlyingID(), price))
				}
			}
		}
	}
}
