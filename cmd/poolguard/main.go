package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "poolguard",
		Short:        "Weighted pool controller with scheduled weights and circuit breakers",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file path")
	pf.String("pool-id", "default", "pool identifier")
	pf.String("store", "sqlite", "state backend (memory, sqlite, postgres)")
	pf.String("sqlite-path", "./data/pool.db", "sqlite database path")
	pf.String("pg-dsn", "", "Postgres DSN")
	pf.String("registry", "./data/registry.yaml", "token registry file")
	pf.String("events", "./data/events.jsonl", "event JSONL path (empty disables)")
	pf.String("rpc", "", "RPC URL for token metadata and chain time")
	pf.String("clock", "system", "time source (system, chain)")
	pf.StringSlice("admins", nil, "addresses allowed to administer the pool (empty allows all)")
	pf.String("caller", "", "address acting on the pool")
	pf.String("swap-fee", "0.003", "swap fee as a fraction")
	pf.Int("max-retries", 5, "maximum RPC retry attempts")
	pf.Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newRegisterCmd(),
		newCreateCmd(),
		newSetSwapEnabledCmd(),
		newScheduleCmd(),
		newSetBreakersCmd(),
		newStatusCmd(),
		newSwapCmd(),
		newJoinCmd(),
		newExitCmd(),
		newEventsCmd(),
		newServeCmd(),
	)
	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
