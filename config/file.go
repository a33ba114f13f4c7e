package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads node configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a node config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// Storage
	case "db.backend":
		cfg.Storage.Backend = strings.ToLower(value)
	case "db.cache":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Storage.BlockCache = n

	// Chain selection
	case "chain.maxreorgdepth":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Chain.MaxReorgDepth = n
	case "chain.maxforkdistance":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Chain.MaxForkDistance = n
	case "chain.forkretention":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Chain.ForkRetention = d
	case "chain.verifypow":
		cfg.Chain.VerifyPoW = parseBool(value)

	// Mempool
	case "mempool.maxsize":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Mempool.MaxSize = n

	// RPC
	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	// Metrics
	case "metrics.enabled", "metrics":
		cfg.Metrics.Enabled = parseBool(value)
	case "metrics.addr":
		cfg.Metrics.Addr = value

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default node configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	def := Default(network)
	content := `# Chainstate Node Configuration
#
# This file contains NODE settings only.
# Structural block limits and the proof-of-work limit are protocol rules
# and cannot be changed here.

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.chainstate)
# datadir = ~/.chainstate

# ============================================================================
# Storage
# ============================================================================

# Backend: badger (default), leveldb or memory
db.backend = ` + def.Storage.Backend + `

# Decoded blocks kept in memory
db.cache = ` + strconv.Itoa(def.Storage.BlockCache) + `

# ============================================================================
# Chain Selection
# ============================================================================

# Largest number of canonical blocks a reorganization may disconnect
chain.maxreorgdepth = ` + strconv.FormatUint(def.Chain.MaxReorgDepth, 10) + `

# How far from its nearest known ancestor a block may attach
chain.maxforkdistance = ` + strconv.FormatUint(def.Chain.MaxForkDistance, 10) + `

# How long fork points are tracked (Go duration)
chain.forkretention = ` + def.Chain.ForkRetention.String() + `

# Check header proof of work against the protocol limit
chain.verifypow = true

# ============================================================================
# Mempool
# ============================================================================

mempool.maxsize = ` + strconv.Itoa(def.Mempool.MaxSize) + `

# ============================================================================
# RPC Server
# ============================================================================

rpc.enabled = true
rpc.addr = ` + def.RPC.Addr + `
rpc.allowed = ` + strings.Join(def.RPC.AllowedIPs, ",") + `
# CORS allowed origins ("*" for all)
# rpc.cors = http://localhost:3000

# ============================================================================
# Metrics
# ============================================================================

metrics.enabled = false
metrics.addr = ` + def.Metrics.Addr + `

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
