// collector.go is the Peer Collector: for a given sensor window it fans out
// GetWindow RPCs to every configured peer, bounded to a configurable number
// of concurrent outbound calls, and folds the responses together with this
// node's own local reading. Fan-out/fan-in shape grounded on the teacher's
// federated baseline sharing loop (internal/gossip/federated_baseline.go),
// replacing its periodic push with on-demand pull per consensus window.
package peer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/rodiolabs/oraclenode/internal/model"
)

// Endpoint names one peer node's address and stable identifier.
type Endpoint struct {
	NodeID string
	Addr   string
}

// Config tunes the collector's fan-out behavior.
type Config struct {
	// MaxConcurrent bounds simultaneous outbound RPCs. Defaults to the
	// number of configured peers if zero.
	MaxConcurrent int64
	// CallTimeout bounds each individual peer RPC.
	CallTimeout time.Duration
	// TLS holds this node's mTLS material for dialing peers.
	TLS TLSMaterial
}

func (c Config) withDefaults(nPeers int) Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = int64(nPeers)
		if c.MaxConcurrent == 0 {
			c.MaxConcurrent = 1
		}
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	return c
}

// Collector gathers peer readings for consensus windows over mTLS gRPC.
type Collector struct {
	selfID    string
	peers     []Endpoint
	cfg       Config
	connsMu   sync.Mutex
	conns     map[string]*grpc.ClientConn
	reach     *Reachability
	log       *zap.Logger
}

// New builds a Collector for the given peer set. reach may be nil if
// partition recalibration is not wired up by the caller.
func New(selfID string, peers []Endpoint, cfg Config, reach *Reachability, log *zap.Logger) *Collector {
	return &Collector{
		selfID: selfID,
		peers:  peers,
		cfg:    cfg.withDefaults(len(peers)),
		conns:  make(map[string]*grpc.ClientConn),
		reach:  reach,
		log:    log,
	}
}

func (c *Collector) dial(ep Endpoint) (*grpc.ClientConn, error) {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()

	if cc, ok := c.conns[ep.Addr]; ok {
		return cc, nil
	}
	tlsCfg, err := buildClientTLS(c.cfg.TLS, ep.NodeID)
	if err != nil {
		return nil, err
	}
	cc, err := grpc.Dial(ep.Addr, grpc.WithTransportCredentials(credentials.NewTLS(tlsCfg)))
	if err != nil {
		return nil, err
	}
	c.conns[ep.Addr] = cc
	return cc, nil
}

// peerResult is one peer's outcome for a single CollectWindow call.
type peerResult struct {
	endpoint Endpoint
	reading  model.Reading
	ok       bool
	err      error
}

// CollectWindow pulls every reachable peer's reading for (sensorID,
// windowTS), bounded to cfg.MaxConcurrent concurrent outbound calls. It
// always returns whatever readings it could gather; a peer timing out or
// refusing the connection only narrows the result, it never fails the call.
func (c *Collector) CollectWindow(ctx context.Context, sensorID string, windowTS int64) ([]model.Reading, error) {
	sem := semaphore.NewWeighted(c.cfg.MaxConcurrent)
	resultCh := make(chan peerResult, len(c.peers))

	for _, ep := range c.peers {
		ep := ep
		if err := sem.Acquire(ctx, 1); err != nil {
			resultCh <- peerResult{endpoint: ep, err: err}
			continue
		}
		go func() {
			defer sem.Release(1)
			resultCh <- c.collectFrom(ctx, ep, sensorID, windowTS)
		}()
	}

	readings := make([]model.Reading, 0, len(c.peers))
	reachable := 0
	for range c.peers {
		res := <-resultCh
		if res.ok {
			readings = append(readings, res.reading)
			reachable++
		} else if c.log != nil && res.err != nil {
			c.log.Debug("peer collection failed", zap.String("peer", res.endpoint.NodeID), zap.Error(res.err))
		}
	}
	if c.reach != nil {
		c.reach.Update(reachable)
	}
	return readings, nil
}

func (c *Collector) collectFrom(ctx context.Context, ep Endpoint, sensorID string, windowTS int64) peerResult {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	cc, err := c.dial(ep)
	if err != nil {
		return peerResult{endpoint: ep, err: err}
	}
	client := newCollectorClient(cc)
	reqID := uuid.NewString()
	resp, err := client.GetWindow(callCtx, &GetWindowRequest{SensorID: sensorID, WindowTS: windowTS})
	if err != nil {
		if c.log != nil {
			c.log.Debug("peer RPC failed", zap.String("request_id", reqID), zap.String("peer", ep.NodeID), zap.Error(err))
		}
		return peerResult{endpoint: ep, err: err}
	}
	if !resp.Found {
		return peerResult{endpoint: ep, ok: false}
	}
	return peerResult{endpoint: ep, reading: resp.Reading, ok: true}
}

// Heartbeat probes every peer once and reports the number that answered,
// for the caller to feed into a Reachability tracker.
func (c *Collector) Heartbeat(ctx context.Context) int {
	reachable := 0
	for _, ep := range c.peers {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		cc, err := c.dial(ep)
		if err != nil {
			cancel()
			continue
		}
		client := newCollectorClient(cc)
		_, err = client.Heartbeat(callCtx, &HeartbeatRequest{NodeID: c.selfID})
		cancel()
		if err == nil {
			reachable++
		}
	}
	return reachable
}

// CollectSlashVotes polls every peer for its vote on a proposed slash of
// target and returns the approval ratio among peers that responded.
// Implements reputation.VoteCollector.
func (c *Collector) CollectSlashVotes(ctx context.Context, target string, reason model.SlashReason) (float64, error) {
	type voteResult struct {
		responded bool
		approve   bool
	}
	sem := semaphore.NewWeighted(c.cfg.MaxConcurrent)
	resultCh := make(chan voteResult, len(c.peers))

	for _, ep := range c.peers {
		ep := ep
		if err := sem.Acquire(ctx, 1); err != nil {
			resultCh <- voteResult{}
			continue
		}
		go func() {
			defer sem.Release(1)
			callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
			defer cancel()
			cc, err := c.dial(ep)
			if err != nil {
				resultCh <- voteResult{}
				return
			}
			client := newCollectorClient(cc)
			resp, err := client.CastVote(callCtx, &CastVoteRequest{Target: target, Reason: string(reason)})
			if err != nil {
				if c.log != nil {
					c.log.Debug("slash vote RPC failed", zap.String("peer", ep.NodeID), zap.Error(err))
				}
				resultCh <- voteResult{}
				return
			}
			resultCh <- voteResult{responded: true, approve: resp.Approve}
		}()
	}

	responded, approved := 0, 0
	for range c.peers {
		res := <-resultCh
		if res.responded {
			responded++
			if res.approve {
				approved++
			}
		}
	}
	if responded == 0 {
		return 0, nil
	}
	return float64(approved) / float64(responded), nil
}

// Close tears down cached peer connections.
func (c *Collector) Close() error {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()
	for _, cc := range c.conns {
		_ = cc.Close()
	}
	return nil
}
