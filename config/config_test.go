package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	main := Default(Mainnet)
	if main.Network != Mainnet || main.Storage.Backend != BackendBadger {
		t.Errorf("mainnet defaults = %+v", main)
	}
	if main.Chain.MaxReorgDepth != MaxReorgDepth || main.Chain.MaxForkDistance != MaxForkDistance {
		t.Errorf("chain defaults = %+v", main.Chain)
	}
	if !main.Chain.VerifyPoW {
		t.Error("pow verification should default on")
	}

	test := Default(Testnet)
	if test.Network != Testnet || test.Metrics.Addr == main.Metrics.Addr {
		t.Errorf("testnet defaults = %+v", test)
	}
	if err := Validate(main); err != nil {
		t.Errorf("mainnet defaults invalid: %v", err)
	}
	if err := Validate(test); err != nil {
		t.Errorf("testnet defaults invalid: %v", err)
	}
}

func TestDirs(t *testing.T) {
	cfg := Default(Testnet)
	cfg.DataDir = "/data"
	cfg.Storage.Backend = BackendLevelDB

	if got := cfg.ChainDataDir(); got != filepath.Join("/data", "testnet") {
		t.Errorf("ChainDataDir = %s", got)
	}
	if got := cfg.DBDir(); got != filepath.Join("/data", "testnet", "leveldb") {
		t.Errorf("DBDir = %s", got)
	}
	if got := cfg.ConfigFile(); got != filepath.Join("/data", "chainstate.conf") {
		t.Errorf("ConfigFile = %s", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.conf")
	content := `# comment
network = testnet
db.backend = "leveldb"

chain.maxreorgdepth = 42
chain.forkretention = '6h'
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	want := map[string]string{
		"network":             "testnet",
		"db.backend":          "leveldb",
		"chain.maxreorgdepth": "42",
		"chain.forkretention": "6h",
	}
	if len(values) != len(want) {
		t.Fatalf("got %d values, want %d: %v", len(values), len(want), values)
	}
	for k, v := range want {
		if values[k] != v {
			t.Errorf("%s = %q, want %q", k, values[k], v)
		}
	}
}

func TestLoadFile_Missing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "nope.conf"))
	if err != nil || len(values) != 0 {
		t.Errorf("missing file = %v, %v", values, err)
	}
}

func TestLoadFile_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	if err := os.WriteFile(path, []byte("network = mainnet\njunk\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for line without '='")
	}
}

func TestApplyFileConfig(t *testing.T) {
	cfg := Default(Mainnet)
	err := ApplyFileConfig(cfg, map[string]string{
		"db.backend":            "LevelDB",
		"db.cache":              "64",
		"chain.maxreorgdepth":   "10",
		"chain.maxforkdistance": "3",
		"chain.forkretention":   "90m",
		"chain.verifypow":       "off",
		"mempool.maxsize":       "12",
		"rpc":                   "false",
		"rpc.addr":              "0.0.0.0:7000",
		"rpc.allowed":           "127.0.0.1, 10.0.0.0/8,",
		"rpc.cors":              "*",
		"metrics":               "yes",
		"metrics.addr":          "0.0.0.0:9000",
		"log.json":              "1",
		"unknown.key":           "ignored",
	})
	if err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	if cfg.Storage.Backend != BackendLevelDB || cfg.Storage.BlockCache != 64 {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	want := ChainConfig{MaxReorgDepth: 10, MaxForkDistance: 3, ForkRetention: 90 * time.Minute}
	if cfg.Chain != want {
		t.Errorf("chain = %+v, want %+v", cfg.Chain, want)
	}
	if cfg.RPC.Enabled || cfg.RPC.Addr != "0.0.0.0:7000" {
		t.Errorf("rpc = %+v", cfg.RPC)
	}
	if len(cfg.RPC.AllowedIPs) != 2 || cfg.RPC.AllowedIPs[1] != "10.0.0.0/8" {
		t.Errorf("rpc.allowed = %q", cfg.RPC.AllowedIPs)
	}
	if len(cfg.RPC.CORSOrigins) != 1 || cfg.RPC.CORSOrigins[0] != "*" {
		t.Errorf("rpc.cors = %q", cfg.RPC.CORSOrigins)
	}
	if cfg.Mempool.MaxSize != 12 || !cfg.Metrics.Enabled || cfg.Metrics.Addr != "0.0.0.0:9000" || !cfg.Log.JSON {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestApplyFileConfig_BadValues(t *testing.T) {
	for _, kv := range [][2]string{
		{"db.cache", "lots"},
		{"chain.maxreorgdepth", "-1"},
		{"chain.maxforkdistance", "x"},
		{"chain.forkretention", "1 day"},
		{"mempool.maxsize", "1.5"},
	} {
		t.Run(kv[0], func(t *testing.T) {
			if err := ApplyFileConfig(Default(Mainnet), map[string]string{kv[0]: kv[1]}); err == nil {
				t.Errorf("%s = %q accepted", kv[0], kv[1])
			}
		})
	}
}

func TestParseArgs(t *testing.T) {
	f, err := parseArgs([]string{
		"--testnet", "--db=memory", "--max-reorg-depth=9", "--verify-pow=false",
		"--fork-retention=2h", "--metrics", "--rpc=false", "--rpc-allowed=10.1.1.1,10.1.1.2",
		"--import=blocks.jsonl", "status",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if f.Network != "testnet" || f.Backend != "memory" || f.MaxReorgDepth != 9 {
		t.Errorf("flags = %+v", f)
	}
	if !f.SetVerifyPoW || f.VerifyPoW {
		t.Error("--verify-pow=false not recorded")
	}
	if !f.SetRPC || f.RPC {
		t.Error("--rpc=false not recorded")
	}
	if !f.SetMetrics || f.SetLogJSON {
		t.Errorf("set markers = metrics:%v logjson:%v", f.SetMetrics, f.SetLogJSON)
	}
	if len(f.Args) != 1 || f.Args[0] != "status" {
		t.Errorf("args = %v", f.Args)
	}

	cfg := Default(Mainnet)
	ApplyFlags(cfg, f)
	if cfg.Network != Testnet || cfg.Storage.Backend != BackendMemory || cfg.Chain.VerifyPoW {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Chain.ForkRetention != 2*time.Hour || !cfg.Metrics.Enabled || cfg.Import != "blocks.jsonl" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RPC.Enabled || len(cfg.RPC.AllowedIPs) != 2 || cfg.RPC.Addr != "127.0.0.1:8545" {
		t.Errorf("rpc = %+v", cfg.RPC)
	}
	// Unset flags leave defaults alone.
	if cfg.Chain.MaxForkDistance != MaxForkDistance || cfg.Mempool.MaxSize != DefaultMempoolSize {
		t.Errorf("defaults overwritten: %+v", cfg)
	}
}

func TestParseArgs_Errors(t *testing.T) {
	tests := [][]string{
		{"--no-such-flag"},
		{"status", "--metrics"},
		{"--max-reorg-depth=deep"},
	}
	for _, args := range tests {
		if _, err := parseArgs(args, io.Discard); err == nil {
			t.Errorf("parseArgs(%v) accepted", args)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"network", func(c *Config) { c.Network = "devnet" }},
		{"backend", func(c *Config) { c.Storage.Backend = "rocksdb" }},
		{"cache", func(c *Config) { c.Storage.BlockCache = -1 }},
		{"reorg depth", func(c *Config) { c.Chain.MaxReorgDepth = 0 }},
		{"fork distance", func(c *Config) { c.Chain.MaxForkDistance = 0 }},
		{"retention", func(c *Config) { c.Chain.ForkRetention = 0 }},
		{"mempool", func(c *Config) { c.Mempool.MaxSize = 0 }},
		{"rpc addr", func(c *Config) { c.RPC.Addr = "" }},
		{"metrics addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "nohost" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(Mainnet)
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := Validate(nil); err == nil {
		t.Error("nil config accepted")
	}

	cfg := Default(Mainnet)
	cfg.Storage.Backend = ""
	if err := Validate(cfg); err != nil || cfg.Storage.Backend != BackendBadger {
		t.Errorf("empty backend = %q, %v", cfg.Storage.Backend, err)
	}

	// Addresses of disabled servers are not checked.
	cfg = Default(Mainnet)
	cfg.RPC.Enabled = false
	cfg.RPC.Addr = "nohost"
	if err := Validate(cfg); err != nil {
		t.Errorf("disabled rpc addr checked: %v", err)
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()

	// First run writes the default config file.
	cfg, err := Resolve(&Flags{Network: "testnet", DataDir: dir})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "chainstate.conf")); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Network != Testnet || cfg.DataDir != dir {
		t.Errorf("cfg = %+v", cfg)
	}
	defaults := Default(Testnet)
	if cfg.Chain != defaults.Chain || cfg.Storage != defaults.Storage || cfg.Metrics != defaults.Metrics {
		t.Errorf("written defaults did not round-trip: %+v", cfg)
	}

	// File values apply, flags win over them.
	conf := filepath.Join(dir, "custom.conf")
	if err := os.WriteFile(conf, []byte("db.backend = leveldb\nchain.maxreorgdepth = 20\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Resolve(&Flags{DataDir: dir, Config: conf, MaxReorgDepth: 30})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Storage.Backend != BackendLevelDB || cfg.Chain.MaxReorgDepth != 30 {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := Resolve(&Flags{DataDir: dir, Backend: "rocksdb"}); err == nil {
		t.Error("invalid backend accepted")
	}
}
