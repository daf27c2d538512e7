// Package node wires every component into a running oracle gateway: polling
// scheduler, peer collector and server, aggregator, reputation system,
// ledger client, metrics bus, operator socket, and the storage/budget/
// governance plumbing underneath them. It is the direct analog of the
// teacher's cmd/octoreflex/main.go startup sequence, factored out into a
// New/Run pair so cmd/oraclenode stays a thin entrypoint.
package node

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/credentials"

	"github.com/rodiolabs/oraclenode/internal/aggregator"
	"github.com/rodiolabs/oraclenode/internal/budget"
	"github.com/rodiolabs/oraclenode/internal/config"
	"github.com/rodiolabs/oraclenode/internal/governance"
	"github.com/rodiolabs/oraclenode/internal/ingest"
	"github.com/rodiolabs/oraclenode/internal/ledger"
	"github.com/rodiolabs/oraclenode/internal/metrics"
	"github.com/rodiolabs/oraclenode/internal/model"
	"github.com/rodiolabs/oraclenode/internal/operator"
	"github.com/rodiolabs/oraclenode/internal/peer"
	"github.com/rodiolabs/oraclenode/internal/reputation"
	"github.com/rodiolabs/oraclenode/internal/scheduler"
	"github.com/rodiolabs/oraclenode/internal/storage"
)

// Node is the assembled oracle gateway: every long-lived component plus the
// background tasks that tie them together.
type Node struct {
	cfg *config.Config
	log *zap.Logger

	db      *storage.DB
	bus     *metrics.Bus
	bucket  *budget.Bucket
	audit   *governance.Chain
	rep     *reputation.System
	ledger  *ledger.Client
	windows *windowStore

	collector     *peer.Collector
	peerServer    *peer.Server
	reach         *peer.Reachability
	peerEndpoints []peer.Endpoint

	agg *aggregator.Aggregator
	buf *ingest.Buffer
	sch *scheduler.Scheduler

	opServer *operator.Server

	wg sync.WaitGroup
}

// New builds every component from cfg; apart from goroutines some
// components start internally (such as the budget bucket's refill loop),
// nothing runs until Run is called.
func New(cfg *config.Config, log *zap.Logger) (*Node, error) {
	db, err := storage.Open(cfg.Storage.DBPath, cfg.Storage.RetentionDays)
	if err != nil {
		return nil, fmt.Errorf("node: open storage: %w", err)
	}

	bus := metrics.New()
	bucket := budget.New(cfg.Budget.Capacity, cfg.Budget.RefillPeriod)
	audit := governance.NewChain(governance.DefaultBounds())

	n := &Node{cfg: cfg, log: log, db: db, bus: bus, bucket: bucket, audit: audit}

	repCfg := reputation.Config{
		DefaultReputation:  cfg.Reputation.Default,
		DecayRatePerDay:    cfg.Reputation.DecayRatePerDay,
		EventRetentionDays: cfg.Reputation.EventRetentionDays,
		MinStake:           cfg.Node.MinStake,
		SlashVoteThreshold: cfg.Reputation.SlashVoteThreshold,
	}

	var peerEndpoints []peer.Endpoint
	for _, p := range cfg.Node.PeerNodes {
		peerEndpoints = append(peerEndpoints, peer.Endpoint{NodeID: p.ID, Addr: p.Addr})
	}
	n.peerEndpoints = peerEndpoints

	reachCfg := peer.ReachabilityConfig{
		TotalPeers:          len(peerEndpoints),
		PartitionThreshold:  cfg.Peer.PartitionThreshold,
		QuorumFraction:      cfg.Peer.QuorumFraction,
		BaseMinContributors: cfg.Consensus.MinNodes,
	}
	n.reach = peer.NewReachability(reachCfg, n.onPartitionTransition)

	peerTLS := peer.TLSMaterial{CertFile: cfg.Peer.TLSCertFile, KeyFile: cfg.Peer.TLSKeyFile, CAFile: cfg.Peer.TLSCAFile}
	n.collector = peer.New(cfg.Node.ID, peerEndpoints, peer.Config{
		MaxConcurrent: cfg.Peer.MaxConcurrent,
		CallTimeout:   cfg.Peer.CallTimeout,
		TLS:           peerTLS,
	}, n.reach, log)

	var chain ledger.Chain
	if cfg.Ledger.RPC != "" {
		creds, err := buildLedgerCreds(cfg.Ledger)
		if err != nil {
			return nil, fmt.Errorf("node: ledger TLS: %w", err)
		}
		grpcChain, err := ledger.DialChain(cfg.Ledger.RPC, ledger.WithTLS(creds))
		if err != nil {
			return nil, fmt.Errorf("node: dial ledger: %w", err)
		}
		chain = grpcChain
	}
	ledgerCfg := ledger.Config{
		MaxAttempts:    cfg.Ledger.MaxAttempts,
		ConfirmTimeout: cfg.Ledger.ConfirmTimeout,
		CacheTTL:       cfg.Ledger.CacheTTL,
		CacheSize:      cfg.Ledger.CacheSize,
		Scale:          cfg.Ledger.Scale,
		GasEstimate:    cfg.Ledger.GasDefaults,
	}
	n.ledger = ledger.New(chain, audit, db, bucket, ledgerCfg, log)

	// reputation.System reads stake through the ledger client (when a
	// ledger endpoint is configured; nil otherwise, which disables the
	// self-stake check) and collects non-auto-slash votes through the
	// peer collector.
	var stakeSource reputation.StakeSource
	if chain != nil {
		stakeSource = n.ledger
	}
	n.rep = reputation.New(repCfg, cfg.Node.ID, db, stakeSource, n.collector)

	n.windows = newWindowStore(2 * time.Duration(cfg.Consensus.TimeoutSeconds) * time.Second)
	n.peerServer = peer.NewServer(cfg.Node.ID, n.windows, newVoteSource(n.rep), log)

	aggCfg := aggregator.Config{
		MinNodes:           cfg.Consensus.MinNodes,
		ConsensusThreshold: cfg.Consensus.Threshold,
		OutlierTolerance:   cfg.Consensus.OutlierTolerance,
		AbsoluteFloor:      0.1,
		ScorerName:         cfg.Consensus.ScorerName,
	}
	n.agg = aggregator.New(aggCfg, n.rep)

	n.buf = ingest.NewBuffer(128, log, bus)

	signer, err := newNodeSigner(cfg.Node.SigningKeyHex)
	if err != nil {
		return nil, err
	}

	adapters := buildAdapters(cfg.Node.ID, cfg.Sensors)
	n.sch = scheduler.New(adapters, log, n.onWindowEvent, n.onAdapterFailure, signer)

	if cfg.Operator.Enabled {
		n.opServer = operator.NewServer(cfg.Operator.SocketPath, n.rep, n.rep, log)
	}

	return n, nil
}

// buildLedgerCreds loads this node's ledger mTLS material.
func buildLedgerCreds(cfg config.LedgerConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("ledger: load client cert: %w", err)
	}
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}), nil
}

// onWindowEvent is the scheduler's callback for every successfully read
// local sensor sample: it records the sample in the local window store and
// queues the window for a consensus attempt (handleBatch), which queries
// peers as soon as the batch is dequeued.
func (n *Node) onWindowEvent(evt scheduler.WindowEvent) {
	n.windows.Put(evt.Key, evt.Reading)
	n.buf.Push(ingest.Batch{Key: evt.Key, Readings: []model.Reading{evt.Reading}})
}

func (n *Node) onAdapterFailure(sensorID string, err error) {
	if n.log != nil {
		n.log.Warn("sensor adapter failure", zap.String("sensor_id", sensorID), zap.Error(err))
	}
	n.bus.Inc("adapter_failures_total", metrics.Labels{"sensor_id": sensorID}, 1)
}

func (n *Node) onPartitionTransition(mode peer.Mode, reachable, total, effectiveMin int) {
	if n.log != nil {
		n.log.Warn("peer reachability mode changed",
			zap.Int32("mode", int32(mode)), zap.Int("reachable", reachable),
			zap.Int("total", total), zap.Int("effective_min", effectiveMin))
	}
	n.bus.Set("peer_reachable_count", nil, float64(reachable))
	n.bus.Set("peer_effective_min_contributors", nil, float64(effectiveMin))
}

// handleBatch runs one consensus attempt for a window: pulls every peer's
// reading, folds in the local one, aggregates, and on success hands the
// result to the ledger client.
func (n *Node) handleBatch(ctx context.Context, batch ingest.Batch) {
	peerReadings, err := n.collector.CollectWindow(ctx, batch.Key.SensorID, batch.Key.WindowTS)
	if err != nil && n.log != nil {
		n.log.Warn("peer collection error", zap.Error(err))
	}
	all := append(append([]model.Reading{}, batch.Readings...), peerReadings...)

	responded := make(map[string]bool, len(peerReadings))
	for _, r := range peerReadings {
		responded[r.NodeID] = true
	}

	outcome := n.agg.Aggregate(all)
	flagged := make(map[string]bool, len(outcome.Flags))
	for _, f := range outcome.Flags {
		flagged[f.NodeID] = true
		_ = n.rep.RecordEvent(f.NodeID, model.EventDataQualityLow, "aggregation deviation flag")
	}
	if outcome.Err != nil {
		n.bus.Inc("consensus_failures_total", metrics.Labels{"sensor_id": batch.Key.SensorID}, 1)
		if n.log != nil {
			n.log.Info("no consensus reached", zap.String("sensor_id", batch.Key.SensorID), zap.Error(outcome.Err))
		}
		for _, r := range all {
			_ = n.rep.RecordEvent(r.NodeID, model.EventConsensusFailure, "window failed to reach consensus")
		}
		for _, ep := range n.peerEndpoints {
			if !responded[ep.NodeID] {
				_ = n.rep.RecordEvent(ep.NodeID, model.EventUptimePoor, "peer unreachable during consensus window")
			}
		}
		return
	}

	n.bus.Inc("consensus_success_total", metrics.Labels{"sensor_id": batch.Key.SensorID}, 1)
	n.bus.Observe("consensus_confidence", metrics.Labels{"sensor_id": batch.Key.SensorID}, outcome.Result.Confidence)
	for _, r := range all {
		_ = n.rep.RecordEvent(r.NodeID, model.EventConsensusSuccess, "window reached consensus")
		if !flagged[r.NodeID] {
			_ = n.rep.RecordEvent(r.NodeID, model.EventDataQualityHigh, "reading agreed with consensus")
		}
	}
	for _, ep := range n.peerEndpoints {
		if responded[ep.NodeID] {
			_ = n.rep.RecordEvent(ep.NodeID, model.EventUptimeGood, "peer responded during consensus window")
		}
	}

	if !n.rep.StakeOK() {
		if n.log != nil {
			n.log.Warn("ledger submit skipped: self stake below minimum", zap.String("sensor_id", outcome.Result.SensorID))
		}
		return
	}
	sub, err := n.ledger.Submit(ctx, outcome.Result.SensorID, outcome.Result.Value, outcome.Result.Timestamp)
	if err != nil {
		if n.log != nil {
			n.log.Error("ledger submit failed", zap.String("sensor_id", outcome.Result.SensorID), zap.Error(err))
		}
		return
	}
	go func() {
		<-n.ledger.ConfirmAsync(context.Background(), sub)
	}()
}

// Run starts every background goroutine and blocks until ctx is cancelled,
// then drains in-flight work before returning.
func (n *Node) Run(ctx context.Context) error {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.sch.Run(ctx)
	}()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.buf.Run(ctx, func(b ingest.Batch) { n.handleBatch(ctx, b) })
	}()

	if len(n.cfg.Node.PeerNodes) > 0 && n.cfg.Peer.ListenAddr != "" {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			tlsMat := peer.TLSMaterial{CertFile: n.cfg.Peer.TLSCertFile, KeyFile: n.cfg.Peer.TLSKeyFile, CAFile: n.cfg.Peer.TLSCAFile}
			if err := peer.ListenAndServe(ctx, n.cfg.Peer.ListenAddr, tlsMat, n.peerServer, n.log); err != nil && n.log != nil {
				n.log.Error("peer server error", zap.Error(err))
			}
		}()
	}

	if n.opServer != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.opServer.ListenAndServe(ctx); err != nil && n.log != nil {
				n.log.Error("operator server error", zap.Error(err))
			}
		}()
	}

	if n.cfg.Metrics.ListenAddr != "" {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.bus.ServeHTTP(ctx, n.cfg.Metrics.ListenAddr); err != nil && n.log != nil {
				n.log.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.backgroundTasks(ctx)
	}()

	<-ctx.Done()
	n.wg.Wait()
	return n.shutdown()
}

// backgroundTasks runs the periodic decay, self-stake check, and peer
// heartbeat ticks referenced throughout SPEC_FULL §4.5/§4.6.
func (n *Node) backgroundTasks(ctx context.Context) {
	decayTicker := time.NewTicker(24 * time.Hour)
	defer decayTicker.Stop()
	stakeTicker := time.NewTicker(5 * time.Minute)
	defer stakeTicker.Stop()
	heartbeatTicker := time.NewTicker(n.cfg.Peer.HeartbeatInterval)
	defer heartbeatTicker.Stop()

	if err := n.rep.CheckSelfStake(ctx); err != nil && n.log != nil {
		n.log.Warn("self stake check failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-decayTicker.C:
			n.rep.ApplyDecay()
		case <-stakeTicker.C:
			if err := n.rep.CheckSelfStake(ctx); err != nil && n.log != nil {
				n.log.Warn("self stake check failed", zap.Error(err))
			}
		case <-heartbeatTicker.C:
			reachable := n.collector.Heartbeat(ctx)
			n.reach.Update(reachable)
		}
	}
}

func (n *Node) shutdown() error {
	if n.log != nil {
		n.log.Info("node shutdown: draining complete, closing resources")
	}
	_ = n.collector.Close()
	n.bucket.Close()
	if err := n.db.Close(); err != nil {
		return fmt.Errorf("node: close storage: %w", err)
	}
	return nil
}
