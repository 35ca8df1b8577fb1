package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolGuard/internal/chain"
	"poolGuard/internal/config"
	"poolGuard/internal/events"
	"poolGuard/internal/fixed"
	"poolGuard/internal/metrics"
	"poolGuard/internal/pool"
	"poolGuard/internal/registry"
	"poolGuard/internal/storage"
	"poolGuard/internal/storage/postgres"
	"poolGuard/internal/storage/sqlite"
	"poolGuard/internal/weighted"
)

// app is everything one command invocation needs.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *registry.Registry
	ctrl     *pool.Controller
	promReg  *prometheus.Registry
	closers  []func()
}

func openApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })
	if err := a.wire(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg
	policy := chain.RetryPolicy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryBackoff}

	reg, err := registry.Load(cfg.Registry)
	if err != nil {
		return err
	}
	a.registry = reg

	var clock pool.Clock = pool.SystemClock{}
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL, policy)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		a.closers = append(a.closers, chainClient.Close)
		a.logger.Debug("rpc connected", zap.String("chain_id", chainClient.ChainID().String()))
		reg.SetDecimalsSource(chain.NewTokenReader(chainClient, policy, a.logger))
		if cfg.Clock == config.ClockChain {
			clock = chain.NewHeadClock(chainClient, policy)
		}
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = store.Close() })

	fee, err := fixed.ParseUnits(cfg.SwapFee, fixed.Decimals)
	if err != nil {
		return fmt.Errorf("swap fee: %w", err)
	}
	pricer, err := weighted.NewPricer(fee)
	if err != nil {
		return err
	}

	sinks := events.Multi{events.NewLogSink(a.logger)}
	if cfg.Events != "" {
		sinks = append(sinks, events.NewJSONLSink(cfg.Events))
	}

	var auth pool.Authorizer = pool.AllowAll{}
	if admins := cfg.AdminAddresses(); len(admins) > 0 {
		auth = pool.NewAllowList(admins...)
	}

	a.promReg = prometheus.NewRegistry()
	a.promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a.ctrl, err = pool.New(pool.Config{
		PoolID:   cfg.PoolID,
		Store:    store,
		Registry: reg,
		Clock:    pool.NonDecreasing(clock),
		Auth:     auth,
		Events:   sinks,
		Pricer:   pricer,
		Metrics:  metrics.NewMetrics(a.promReg),
		Logger:   a.logger,
	})
	return err
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return storage.NewMemoryStore(), nil
	case config.StoreSQLite:
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, nil
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
