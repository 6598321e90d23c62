// Package config loads the indexer's runtime configuration from the
// environment, following the teacher's .env-then-environment precedence.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Config is everything cmd/indexer needs to start: which chain/contract to
// follow, how hard to poll it, where to seed the snapshot from, and where to
// serve the read-only view.
type Config struct {
	ChainId         uint64
	ContractAddress common.Address
	PollInterval    time.Duration
	SnapshotBlock   uint64 // 0 means "latest"
	ListenAddr      string
	LogLevel        string
	CollateralDecimals uint8
}

// Default returns the configuration used when nothing in the environment
// overrides it: a local devnet contract polled once a second.
func Default() Config {
	return Config{
		ChainId:            1337,
		PollInterval:       time.Second,
		SnapshotBlock:      0,
		ListenAddr:         ":8080",
		LogLevel:           "info",
		CollateralDecimals: 6,
	}
}

// LoadFromEnv loads an optional .env file then applies environment variable
// overrides on top of Default(). Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("CHAIN_ID"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.ChainId = n
		}
	}
	if v := os.Getenv("CONTRACT_ADDRESS"); v != "" {
		cfg.ContractAddress = common.HexToAddress(v)
	}
	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.PollInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("SNAPSHOT_BLOCK"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.SnapshotBlock = n
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("COLLATERAL_DECIMALS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			cfg.CollateralDecimals = uint8(n)
		}
	}

	return cfg
}
