package config

// DefaultBlockCache is the default number of decoded blocks kept in memory.
const DefaultBlockCache = 512

// DefaultMempoolSize is the default transaction pool capacity.
const DefaultMempoolSize = 5000

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Storage: StorageConfig{
			Backend:    BackendBadger,
			BlockCache: DefaultBlockCache,
		},
		Chain: ChainConfig{
			MaxReorgDepth:   MaxReorgDepth,
			MaxForkDistance: MaxForkDistance,
			ForkRetention:   ForkPointRetention,
			VerifyPoW:       true,
		},
		Mempool: MempoolConfig{
			MaxSize: DefaultMempoolSize,
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1:8545",
			AllowedIPs: []string{"127.0.0.1"},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.RPC.Addr = "127.0.0.1:8645"
	cfg.Metrics.Addr = "127.0.0.1:9465"
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
