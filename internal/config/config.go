package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Clock sources.
const (
	ClockSystem = "system"
	ClockChain  = "chain"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	PoolID          string
	Store           string
	SQLitePath      string
	PGDSN           string
	Registry        string
	Events          string
	RPCURL          string
	Clock           string
	Admins          []string
	Caller          string
	SwapFee         string
	Listen          string
	PublishInterval time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("pool-id", "default")
	v.SetDefault("store", StoreSQLite)
	v.SetDefault("sqlite-path", "./data/pool.db")
	v.SetDefault("registry", "./data/registry.yaml")
	v.SetDefault("events", "./data/events.jsonl")
	v.SetDefault("clock", ClockSystem)
	v.SetDefault("swap-fee", "0.003")
	v.SetDefault("listen", ":9100")
	v.SetDefault("publish-interval", 15*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		PoolID:          v.GetString("pool-id"),
		Store:           strings.ToLower(v.GetString("store")),
		SQLitePath:      v.GetString("sqlite-path"),
		PGDSN:           v.GetString("pg-dsn"),
		Registry:        v.GetString("registry"),
		Events:          v.GetString("events"),
		RPCURL:          v.GetString("rpc"),
		Clock:           strings.ToLower(v.GetString("clock")),
		Admins:          getStringSlice(v, "admins"),
		Caller:          v.GetString("caller"),
		SwapFee:         v.GetString("swap-fee"),
		Listen:          v.GetString("listen"),
		PublishInterval: v.GetDuration("publish-interval"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, cfg.Validate()
}

// Validate checks that the selected backends have what they need.
func (c Config) Validate() error {
	if c.PoolID == "" {
		return fmt.Errorf("pool-id is required")
	}
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite-path is required for the sqlite store")
		}
	case StorePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	switch c.Clock {
	case ClockSystem:
	case ClockChain:
		if c.RPCURL == "" {
			return fmt.Errorf("rpc is required for the chain clock")
		}
	default:
		return fmt.Errorf("unknown clock %q", c.Clock)
	}
	for _, admin := range c.Admins {
		if !common.IsHexAddress(admin) {
			return fmt.Errorf("invalid admin address %q", admin)
		}
	}
	if c.Caller != "" && !common.IsHexAddress(c.Caller) {
		return fmt.Errorf("invalid caller address %q", c.Caller)
	}
	return nil
}

// AdminAddresses returns the parsed admin list.
func (c Config) AdminAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.Admins))
	for _, admin := range c.Admins {
		out = append(out, common.HexToAddress(admin))
	}
	return out
}

// CallerAddress returns the configured caller, or the zero address.
func (c Config) CallerAddress() common.Address {
	if c.Caller == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Caller)
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
