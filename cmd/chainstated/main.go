// Chainstate node daemon.
//
// Usage:
//
//	chainstated [--import=blocks.jsonl]   Run node
//	chainstated status                    Print chain state and exit
//	chainstated --help                    Show help
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Klingon-tech/klingnet-chainstate/config"
	"github.com/Klingon-tech/klingnet-chainstate/internal/node"
	"github.com/Klingon-tech/klingnet-chainstate/internal/rpcclient"
)

func main() {
	cfg, flags, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(flags.Args) > 0 {
		os.Exit(runCommand(cfg, flags.Args))
	}

	n, err := node.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		n.Stop()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Import != "" {
		stats, err := n.ImportFile(ctx, cfg.Import)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: import %s: %v\n", cfg.Import, err)
			n.Stop()
			os.Exit(1)
		}
		fmt.Printf("Imported %s: %d read, %d connected, %d ignored, %d rejected\n",
			cfg.Import, stats.Read, stats.Connected, stats.Ignored, stats.Rejected)
	}

	<-ctx.Done()
	n.Stop()
}

func runCommand(cfg *config.Config, args []string) int {
	switch args[0] {
	case "status":
		st, err := status(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(st); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", args[0])
		return 1
	}
}

// status asks a running node over RPC first. The store is locked while a
// node runs, so the local fallback only works when none is listening.
func status(cfg *config.Config) (interface{}, error) {
	if cfg.RPC.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		info, err := rpcclient.New("http://" + cfg.RPC.Addr + "/").ChainInfo(ctx)
		if err == nil {
			return info, nil
		}
		var rpcErr *rpcclient.RPCError
		if errors.As(err, &rpcErr) {
			return nil, err
		}
	}

	cfg.RPC.Enabled = false
	cfg.Metrics.Enabled = false
	n, err := node.New(cfg)
	if err != nil {
		return nil, err
	}
	defer n.Stop()
	return n.Status()
}
