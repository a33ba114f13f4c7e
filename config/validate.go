package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}

	switch cfg.Storage.Backend {
	case "":
		cfg.Storage.Backend = BackendBadger
	case BackendBadger, BackendLevelDB, BackendMemory:
	default:
		return fmt.Errorf("db.backend must be %s, %s or %s", BackendBadger, BackendLevelDB, BackendMemory)
	}
	if cfg.Storage.BlockCache < 0 {
		return fmt.Errorf("db.cache must not be negative")
	}

	if cfg.Chain.MaxReorgDepth == 0 {
		return fmt.Errorf("chain.maxreorgdepth must be at least 1")
	}
	if cfg.Chain.MaxForkDistance == 0 {
		return fmt.Errorf("chain.maxforkdistance must be at least 1")
	}
	if cfg.Chain.ForkRetention <= 0 {
		return fmt.Errorf("chain.forkretention must be positive")
	}

	if cfg.Mempool.MaxSize <= 0 {
		return fmt.Errorf("mempool.maxsize must be positive")
	}

	if cfg.RPC.Enabled {
		if _, _, err := net.SplitHostPort(cfg.RPC.Addr); err != nil {
			return fmt.Errorf("rpc.addr: %w", err)
		}
	}
	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
			return fmt.Errorf("metrics.addr: %w", err)
		}
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "", "trace", "debug", "info", "warn", "error", "disabled", "off":
	default:
		return fmt.Errorf("log.level %q is not a known level", cfg.Log.Level)
	}

	return nil
}
