// Package node provides a reusable chain-state node that can be embedded
// in any binary (daemon, importer, tests).
package node

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Klingon-tech/klingnet-chainstate/config"
	"github.com/Klingon-tech/klingnet-chainstate/internal/chain"
	"github.com/Klingon-tech/klingnet-chainstate/internal/consensus"
	klog "github.com/Klingon-tech/klingnet-chainstate/internal/log"
	"github.com/Klingon-tech/klingnet-chainstate/internal/mempool"
	"github.com/Klingon-tech/klingnet-chainstate/internal/metrics"
	"github.com/Klingon-tech/klingnet-chainstate/internal/rpc"
	"github.com/Klingon-tech/klingnet-chainstate/internal/storage"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/block"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/tx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ErrNotRunning = errors.New("node is not running")
	ErrStopped    = errors.New("node stopped")
)

// request is one block waiting for the ingestion loop.
type request struct {
	blk  *block.Block
	done chan result
}

type result struct {
	connected bool
	err       error
}

// ImportStats summarizes an ImportFile run.
type ImportStats struct {
	Read      int
	Connected int
	Ignored   int
	Rejected  int
}

// Node is a fully-initialized chain-state node.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Core
	db   storage.DB
	ch   *chain.ChainState
	pool *mempool.Pool

	// RPC
	rpcServer *rpc.Server

	// Metrics
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	metricsSrv *http.Server
	metricsLn  net.Listener

	// Ingestion
	queue   chan *request
	running atomic.Bool

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, storage, chain, mempool, metrics) but does NOT start the
// ingestion loop or the metrics server. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	startTime := time.Now()

	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := expandHome(cfg.Log.File)
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "chainstate.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("backend", cfg.Storage.Backend).
		Bool("verify_pow", cfg.Chain.VerifyPoW).
		Msg("Starting chain state node")

	// ── 2. Open storage ─────────────────────────────────────────────
	dbPath := cfg.DBDir()
	db, err := storage.Open(cfg.Storage.Backend, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", dbPath, err)
	}
	logger.Info().Str("path", dbPath).Msg("Database opened")

	// ── 3. Chain ────────────────────────────────────────────────────
	ch, err := chain.New(storage.NewPrefixDB(db, chainNamespace), chainOptions(cfg))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create chain: %w", err)
	}
	if ch.Height() == 0 {
		logger.Info().Msg("Chain is empty, waiting for a first block")
	} else {
		logger.Info().
			Uint64("height", ch.Height()).
			Str("tip", ch.BestBlockHash().String()[:16]+"...").
			Uint64("total_difficulty", ch.TotalDifficulty()).
			Msg("Chain resumed from database")
	}

	// ── 4. Mempool ──────────────────────────────────────────────────
	pool := mempool.New(ch.UTXOs(), cfg.Mempool.MaxSize)
	logger.Info().Int("max_size", cfg.Mempool.MaxSize).Msg("Mempool ready")

	// ── 5. Metrics ──────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	m := metrics.New(registry, startTime)
	m.ChainHeight.Set(float64(ch.Height()))
	m.TotalDifficulty.Set(float64(ch.TotalDifficulty()))

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		ch:       ch,
		pool:     pool,
		registry: registry,
		metrics:  m,
		queue:    make(chan *request),
		ctx:      ctx,
		cancel:   cancel,
	}
	n.wireHandlers()

	// ── 6. RPC ──────────────────────────────────────────────────────
	if cfg.RPC.Enabled {
		n.rpcServer = rpc.New(cfg.RPC.Addr, ch, pool, n.Submit, n.SubmitTx, cfg.RPC)
	}
	return n, nil
}

// chainOptions maps node config onto chain options.
func chainOptions(cfg *config.Config) chain.Options {
	opts := chain.DefaultOptions()
	opts.MaxReorgDepth = cfg.Chain.MaxReorgDepth
	opts.MaxForkDistance = cfg.Chain.MaxForkDistance
	opts.ForkPointRetention = cfg.Chain.ForkRetention
	opts.BlockCacheSize = cfg.Storage.BlockCache

	var engine consensus.Engine
	if cfg.Chain.VerifyPoW {
		engine = consensus.DefaultPoW()
	}
	opts.Validator = consensus.NewValidator(engine)
	return opts
}

// wireHandlers connects chain events to the mempool and metrics.
// Handlers run while the chain holds its write lock and must not call
// back into ChainState mutators.
func (n *Node) wireHandlers() {
	n.ch.SetRevertedTxHandler(func(txs []*tx.Transaction) {
		back := n.pool.Reinsert(txs)
		evicted := n.pool.EvictInvalid()
		n.logger.Debug().
			Int("reverted", len(txs)).
			Int("reinserted", back).
			Int("evicted", evicted).
			Msg("Mempool updated after reorganization")
	})
	n.ch.SetBlockConnectedHandler(func(blk *block.Block) {
		if removed := n.pool.RemoveConfirmed(blk); removed > 0 {
			n.logger.Debug().
				Uint64("height", blk.Header.Height).
				Int("removed", removed).
				Msg("Confirmed transactions left mempool")
		}
	})
	n.ch.SetReorgHandler(func(ev *chain.ReorgEvent) {
		n.metrics.ObserveReorg(ev.Depth())
	})
}

// Start runs the ingestion loop and, if enabled, the metrics server.
func (n *Node) Start() error {
	if n.ctx.Err() != nil {
		return ErrStopped
	}
	if !n.running.CompareAndSwap(false, true) {
		return nil
	}

	if n.cfg.Metrics.Enabled {
		if err := n.startMetricsServer(); err != nil {
			n.running.Store(false)
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	// RPC binds before ingestion starts so a failed bind leaves nothing running.
	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			n.stopMetricsServer()
			n.wg.Wait()
			n.running.Store(false)
			return fmt.Errorf("start rpc server: %w", err)
		}
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.runIngest()
	}()

	n.logger.Info().
		Uint64("height", n.ch.Height()).
		Str("tip", n.ch.BestBlockHash().String()[:16]+"...").
		Bool("rpc", n.rpcServer != nil).
		Bool("metrics", n.cfg.Metrics.Enabled).
		Msg("Node started successfully")

	return nil
}

// Stop shuts down background work and closes the database.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.cancel()
		if n.rpcServer != nil {
			if err := n.rpcServer.Stop(); err != nil {
				n.logger.Warn().Err(err).Msg("RPC server shutdown")
			}
		}
		n.stopMetricsServer()
		n.wg.Wait()
		n.running.Store(false)

		if n.db != nil {
			if err := n.db.Close(); err != nil {
				n.logger.Error().Err(err).Msg("Database close failed")
			}
		}

		n.logger.Info().Msg("Goodbye!")
	})
}

// stopMetricsServer shuts the metrics server down if one is running.
func (n *Node) stopMetricsServer() {
	if n.metricsSrv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.metricsSrv.Shutdown(shutdownCtx); err != nil {
		n.logger.Warn().Err(err).Msg("Metrics server shutdown")
	}
	n.metricsSrv = nil
}

func (n *Node) startMetricsServer() error {
	ln, err := net.Listen("tcp", n.cfg.Metrics.Addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{}))
	n.metricsLn = ln
	n.metricsSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	n.logger.Info().Str("addr", ln.Addr().String()).Msg("Metrics server listening")
	return nil
}

// runIngest is the single goroutine that feeds blocks into the chain.
func (n *Node) runIngest() {
	for {
		select {
		case <-n.ctx.Done():
			return
		case req := <-n.queue:
			connected, err := n.ch.ProcessBlock(req.blk)
			n.observe(connected, err)
			req.done <- result{connected: connected, err: err}
		}
	}
}

func (n *Node) observe(connected bool, err error) {
	outcome := metrics.ResultIgnored
	switch {
	case err != nil:
		outcome = metrics.ResultRejected
	case connected:
		outcome = metrics.ResultConnected
	}
	n.metrics.ObserveBlock(outcome, n.ch.Height(), n.ch.TotalDifficulty())
	n.metrics.ObserveMempool(n.pool.Count())
}

// Submit queues a block for admission and waits for the outcome. It
// returns true when the block became the new tip.
func (n *Node) Submit(ctx context.Context, blk *block.Block) (bool, error) {
	if !n.running.Load() {
		return false, ErrNotRunning
	}
	req := &request{blk: blk, done: make(chan result, 1)}
	select {
	case n.queue <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-n.ctx.Done():
		return false, ErrStopped
	}
	select {
	case res := <-req.done:
		return res.connected, res.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// SubmitTx adds a transaction to the mempool.
func (n *Node) SubmitTx(t *tx.Transaction) error {
	if err := n.pool.Add(t); err != nil {
		return err
	}
	n.metrics.ObserveMempool(n.pool.Count())
	return nil
}

// ImportFile feeds JSON-lines encoded blocks through the ingestion loop.
// Blocks the chain rejects are counted and skipped; malformed lines and
// storage failures stop the import.
func (n *Node) ImportFile(ctx context.Context, path string) (*ImportStats, error) {
	f, err := os.Open(expandHome(path))
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	stats := &ImportStats{}
	done := klog.Benchmark("import " + filepath.Base(path))
	defer done()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxImportLine)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var blk block.Block
		if err := json.Unmarshal(line, &blk); err != nil {
			return stats, fmt.Errorf("line %d: decode block: %w", lineNum, err)
		}
		stats.Read++

		connected, err := n.Submit(ctx, &blk)
		switch {
		case err == nil && connected:
			stats.Connected++
		case err == nil:
			stats.Ignored++
		case isBlockError(err):
			stats.Rejected++
			n.logger.Warn().Err(err).Int("line", lineNum).Msg("Imported block rejected")
		default:
			return stats, fmt.Errorf("line %d: %w", lineNum, err)
		}
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("read import file: %w", err)
	}

	n.logger.Info().
		Int("read", stats.Read).
		Int("connected", stats.Connected).
		Int("ignored", stats.Ignored).
		Int("rejected", stats.Rejected).
		Uint64("height", n.ch.Height()).
		Msg("Import finished")
	return stats, nil
}

// Status returns a snapshot of the chain state.
func (n *Node) Status() (*chain.State, error) {
	return n.ch.State()
}

// Chain returns the node's chain state.
func (n *Node) Chain() *chain.ChainState { return n.ch }

// Mempool returns the node's transaction pool.
func (n *Node) Mempool() *mempool.Pool { return n.pool }

// Registry returns the Prometheus registry backing the node's metrics.
func (n *Node) Registry() *prometheus.Registry { return n.registry }

// RPCAddr returns the RPC listen address, or "" if RPC is disabled.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// MetricsAddr returns the metrics server's listen address, or "" if not serving.
func (n *Node) MetricsAddr() string {
	if n.metricsLn == nil {
		return ""
	}
	return n.metricsLn.Addr().String()
}

// Height returns the current chain height.
func (n *Node) Height() uint64 {
	return n.ch.Height()
}
