package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Version is reported by --version.
const Version = "0.1.0"

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// Storage
	Backend    string
	BlockCache int

	// Chain selection
	MaxReorgDepth   uint64
	MaxForkDistance uint64
	ForkRetention   time.Duration
	VerifyPoW       bool

	// Mempool
	MempoolSize int

	// RPC
	RPC        bool
	RPCAddr    string
	RPCAllowed string
	RPCCORS    string

	// Metrics
	Metrics     bool
	MetricsAddr string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Import
	Import string

	// Remaining args (subcommands)
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetVerifyPoW bool
	SetRPC       bool
	SetMetrics   bool
	SetLogJSON   bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return f
}

func parseArgs(args []string, output io.Writer) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("chainstated", flag.ContinueOnError)
	fs.SetOutput(output)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	testnet := fs.Bool("testnet", false, "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Storage
	fs.StringVar(&f.Backend, "db", "", "Storage backend (badger, leveldb, memory)")
	fs.IntVar(&f.BlockCache, "db-cache", 0, "Decoded blocks kept in memory")

	// Chain selection
	fs.Uint64Var(&f.MaxReorgDepth, "max-reorg-depth", 0, "Largest reorganization depth accepted")
	fs.Uint64Var(&f.MaxForkDistance, "max-fork-distance", 0, "Largest distance a block may attach from a known ancestor")
	fs.DurationVar(&f.ForkRetention, "fork-retention", 0, "How long fork points are tracked")
	fs.BoolVar(&f.VerifyPoW, "verify-pow", true, "Check header proof of work")

	// Mempool
	fs.IntVar(&f.MempoolSize, "mempool-size", 0, "Maximum mempool transactions")

	// RPC
	fs.BoolVar(&f.RPC, "rpc", true, "Enable RPC server")
	fs.StringVar(&f.RPCAddr, "rpc-addr", "", "RPC listen address (host:port)")
	fs.StringVar(&f.RPCAllowed, "rpc-allowed", "", "Allowed IPs for RPC (comma-separated)")
	fs.StringVar(&f.RPCCORS, "rpc-cors", "", "Allowed CORS origins for RPC (comma-separated)")

	// Metrics
	fs.BoolVar(&f.Metrics, "metrics", false, "Serve Prometheus metrics")
	fs.StringVar(&f.MetricsAddr, "metrics-addr", "", "Metrics listen address")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	// Import
	fs.StringVar(&f.Import, "import", "", "Import blocks from a JSON-lines file on startup")

	fs.Usage = func() {
		printUsage(output)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *testnet {
		f.Network = string(Testnet)
	}
	f.SetVerifyPoW = isFlagSet(fs, "verify-pow")
	f.SetRPC = isFlagSet(fs, "rpc")
	f.SetMetrics = isFlagSet(fs, "metrics")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	// Detect unparsed flags caused by positional arguments stopping the parser.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Storage
	if f.Backend != "" {
		cfg.Storage.Backend = strings.ToLower(f.Backend)
	}
	if f.BlockCache != 0 {
		cfg.Storage.BlockCache = f.BlockCache
	}

	// Chain selection
	if f.MaxReorgDepth != 0 {
		cfg.Chain.MaxReorgDepth = f.MaxReorgDepth
	}
	if f.MaxForkDistance != 0 {
		cfg.Chain.MaxForkDistance = f.MaxForkDistance
	}
	if f.ForkRetention != 0 {
		cfg.Chain.ForkRetention = f.ForkRetention
	}
	if f.SetVerifyPoW {
		cfg.Chain.VerifyPoW = f.VerifyPoW
	}

	// Mempool
	if f.MempoolSize != 0 {
		cfg.Mempool.MaxSize = f.MempoolSize
	}

	// RPC
	if f.SetRPC {
		cfg.RPC.Enabled = f.RPC
	}
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}
	if f.RPCAllowed != "" {
		cfg.RPC.AllowedIPs = parseStringList(f.RPCAllowed)
	}
	if f.RPCCORS != "" {
		cfg.RPC.CORSOrigins = parseStringList(f.RPCCORS)
	}

	// Metrics
	if f.SetMetrics {
		cfg.Metrics.Enabled = f.Metrics
	}
	if f.MetricsAddr != "" {
		cfg.Metrics.Addr = f.MetricsAddr
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}

	if f.Import != "" {
		cfg.Import = f.Import
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage(w io.Writer) {
	usage := `Chainstate - UTXO chain state engine with fork choice and reorganization

Usage:
  chainstated [options]            Run node
  chainstated [options] status     Print chain state and exit (via RPC when a node is running)
  chainstated --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --network       Network type: mainnet (default) or testnet
  --testnet       Shorthand for --network=testnet
  --datadir       Data directory (default: ~/.chainstate)
  --config, -c    Config file path (default: <datadir>/chainstate.conf)

Storage Options:
  --db            Storage backend: badger (default), leveldb, memory
  --db-cache      Decoded blocks kept in memory (default: 512)

Chain Options:
  --max-reorg-depth     Largest reorganization depth accepted (default: 100)
  --max-fork-distance   Largest distance from a known ancestor (default: 6)
  --fork-retention      How long fork points are tracked (default: 24h)
  --verify-pow          Check header proof of work (default: true)

Mempool Options:
  --mempool-size  Maximum mempool transactions (default: 5000)

RPC Options:
  --rpc           Enable RPC server (default: true)
  --rpc-addr      RPC listen address (mainnet: 127.0.0.1:8545, testnet: 127.0.0.1:8645)
  --rpc-allowed   Allowed IPs for RPC (comma-separated)
  --rpc-cors      Allowed CORS origins for RPC (comma-separated)

Metrics Options:
  --metrics       Serve Prometheus metrics
  --metrics-addr  Metrics listen address (mainnet: 127.0.0.1:9464, testnet: 127.0.0.1:9465)

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: <datadir>/logs/chainstate.log)
  --log-json      Output logs as JSON

Import:
  --import        Feed blocks from a JSON-lines file through the chain on startup

Examples:
  # Start mainnet node
  chainstated

  # Import a block dump into a LevelDB-backed testnet store
  chainstated --testnet --db=leveldb --import=blocks.jsonl

  # Print the current tip
  chainstated status
`
	fmt.Fprint(w, usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage(os.Stdout)
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("chainstated version " + Version)
		os.Exit(0)
	}

	cfg, err := Resolve(flags)
	if err != nil {
		return nil, nil, err
	}
	return cfg, flags, nil
}

// Resolve builds the effective configuration for parsed flags.
func Resolve(flags *Flags) (*Config, error) {
	// Determine network first (needed for defaults)
	network := Mainnet
	if strings.ToLower(flags.Network) == string(Testnet) {
		network = Testnet
	}

	cfg := Default(network)
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	// Auto-create data directories and default config on first start.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// EnsureDataDirs creates the data directories and a default config file.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.ChainDataDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
