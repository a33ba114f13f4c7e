// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: structural limits and chain selection bounds, identical on every node
//   - Node settings: Runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Storage backends accepted by db.backend.
const (
	BackendBadger  = "badger"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Block and state storage
	Storage StorageConfig

	// Chain selection (operational bounds on top of the protocol defaults)
	Chain ChainConfig

	// Transaction pool
	Mempool MempoolConfig

	// RPC server
	RPC RPCConfig

	// Prometheus endpoint
	Metrics MetricsConfig

	// Logging
	Log LogConfig

	// Block file to import on startup (not persisted in config file).
	Import string
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	Backend    string `conf:"db.backend"` // badger, leveldb or memory
	BlockCache int    `conf:"db.cache"`   // Decoded blocks kept in memory
}

// ChainConfig holds chain selection bounds.
type ChainConfig struct {
	MaxReorgDepth   uint64        `conf:"chain.maxreorgdepth"`
	MaxForkDistance uint64        `conf:"chain.maxforkdistance"`
	ForkRetention   time.Duration `conf:"chain.forkretention"`
	VerifyPoW       bool          `conf:"chain.verifypow"`
}

// MempoolConfig holds transaction pool settings.
type MempoolConfig struct {
	MaxSize int `conf:"mempool.maxsize"`
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// MetricsConfig holds the Prometheus HTTP endpoint settings.
type MetricsConfig struct {
	Enabled bool   `conf:"metrics.enabled"`
	Addr    string `conf:"metrics.addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.chainstate
//	macOS:   ~/Library/Application Support/Chainstate
//	Windows: %APPDATA%\Chainstate
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chainstate"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Chainstate")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Chainstate")
		}
		return filepath.Join(home, "AppData", "Roaming", "Chainstate")
	default:
		return filepath.Join(home, ".chainstate")
	}
}

// ChainDataDir returns the chain-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// DBDir returns the key-value store directory for the configured backend.
func (c *Config) DBDir() string {
	backend := c.Storage.Backend
	if backend == "" {
		backend = BackendBadger
	}
	return filepath.Join(c.ChainDataDir(), backend)
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "chainstate.conf")
}
