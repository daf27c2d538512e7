// Package ledger is the Ledger Client: it submits confirmed consensus
// results to an external ledger, caches recent reads so repeated queries
// for the same sensor don't hit the network, retries transient submission
// failures with bounded backoff, and tracks confirmation asynchronously.
// Grounded on SPEC_FULL's Ledger Client section; gRPC client/server shape
// adapted from internal/gossip/server.go, retry/backoff shape adapted from
// internal/scheduler's exponential backoff loop.
package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/rodiolabs/oraclenode/internal/budget"
	"github.com/rodiolabs/oraclenode/internal/governance"
	"github.com/rodiolabs/oraclenode/internal/model"
)

const (
	defaultMaxAttempts        = 5
	defaultConfirmTimeout     = 60 * time.Second
	defaultCacheTTL           = 60 * time.Second
	defaultCacheSize          = 1024
	defaultRetryInitialDelay  = 500 * time.Millisecond
	defaultRetryMaxDelay      = 10 * time.Second
	defaultScale              = 100
	defaultGasEstimate        = 21000
)

// Chain is the subset of a ledger transport this client needs: submit a
// value and fetch the most recently confirmed one. The real implementation
// dials an external ledger service over gRPC+mTLS; tests supply a fake.
type Chain interface {
	Submit(ctx context.Context, sensorID string, valueQ int64, ts time.Time, txRef string) error
	Confirm(ctx context.Context, txRef string) (bool, error)
	GetLatest(ctx context.Context, sensorID string) (float64, int64, error)
}

// AuditStore persists submission state transitions for the node's
// compliance trail.
type AuditStore interface {
	AppendSubmission(model.LedgerSubmission) error
}

// StakeChain is an optional capability of Chain: transports that can answer
// an on-chain stake query implement it. The gRPC transport does; the fakes
// used in this package's own tests do not need to.
type StakeChain interface {
	StakeOf(ctx context.Context, nodeID string) (int64, error)
}

// Config tunes retry, confirmation, caching, and quantization behavior.
type Config struct {
	MaxAttempts    int
	ConfirmTimeout time.Duration
	CacheTTL       time.Duration
	CacheSize      int
	RetryInitial   time.Duration
	RetryMax       time.Duration
	Scale          int64 // fixed-point multiplier applied to a reading's value before submission
	GasEstimate    int64 // gas estimate attached to every submission
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = defaultConfirmTimeout
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = defaultCacheTTL
	}
	if c.CacheSize <= 0 {
		c.CacheSize = defaultCacheSize
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = defaultRetryInitialDelay
	}
	if c.RetryMax <= 0 {
		c.RetryMax = defaultRetryMaxDelay
	}
	if c.Scale <= 0 {
		c.Scale = defaultScale
	}
	if c.GasEstimate <= 0 {
		c.GasEstimate = defaultGasEstimate
	}
	return c
}

// Client is the Ledger Client: submit, cache, retry, confirm.
type Client struct {
	chain   Chain
	audit   *governance.Chain
	store   AuditStore
	budget  *budget.Bucket
	cache   *lru.LRU[string, model.CacheEntry]
	cfg     Config
	log     *zap.Logger
}

// New builds a Client. audit and budgetBucket may be nil to skip the
// respective concern (useful in tests).
func New(chain Chain, audit *governance.Chain, store AuditStore, budgetBucket *budget.Bucket, cfg Config, log *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	cache := lru.NewLRU[string, model.CacheEntry](cfg.CacheSize, nil, cfg.CacheTTL)
	return &Client{chain: chain, audit: audit, store: store, budget: budgetBucket, cache: cache, cfg: cfg, log: log}
}

// Submit quantizes value, hash-chains it through the audit trail, and writes
// it to the ledger with bounded exponential-backoff retry, then persists the
// resulting submission (pending on success, failed once attempts are
// exhausted). It returns once the write succeeds or attempts are exhausted;
// confirmation is tracked separately via ConfirmAsync.
func (c *Client) Submit(ctx context.Context, sensorID string, value float64, ts time.Time) (model.LedgerSubmission, error) {
	if c.budget != nil && !c.budget.ConsumeForOp(budget.OpSubmit) {
		return model.LedgerSubmission{}, model.New(model.KindOverloaded, "ledger submission budget exhausted")
	}

	txRef := uuid.NewString()
	if c.audit != nil {
		if _, err := c.audit.Validate(sensorID, value, ts, txRef, time.Now()); err != nil {
			return model.LedgerSubmission{}, model.Wrap(model.KindInvalidReading, err, "submission failed audit validation")
		}
	}

	valueQ := quantize(value, c.cfg.Scale)
	sub := model.LedgerSubmission{SensorID: sensorID, ValueQ: valueQ, Ts: ts, GasEst: c.cfg.GasEstimate, TxRef: txRef, State: model.SubmissionPending}

	delay := c.cfg.RetryInitial
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		sub.Attempts = attempt
		err := c.chain.Submit(ctx, sensorID, valueQ, ts, txRef)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if c.log != nil {
			c.log.Warn("ledger submit attempt failed", zap.String("sensor_id", sensorID), zap.Int("attempt", attempt), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = c.cfg.MaxAttempts
		case <-time.After(delay):
		}
		delay = time.Duration(math.Min(float64(delay*2), float64(c.cfg.RetryMax)))
	}

	if lastErr != nil {
		sub.State = model.SubmissionFailed
		c.persist(sub)
		return sub, model.Wrap(model.KindTransientLedger, lastErr, "ledger submission exhausted retries")
	}

	c.persist(sub)
	c.cache.Remove(sensorID) // invalidate stale reads for this sensor
	return sub, nil
}

// ConfirmAsync polls the ledger for confirmation of txRef until confirmed,
// the confirmation timeout elapses, or ctx is cancelled. The returned
// channel receives exactly one SubmissionState and is then closed.
func (c *Client) ConfirmAsync(ctx context.Context, sub model.LedgerSubmission) <-chan model.SubmissionState {
	out := make(chan model.SubmissionState, 1)
	go func() {
		defer close(out)
		deadline := time.Now().Add(c.cfg.ConfirmTimeout)
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		for {
			confirmed, err := c.chain.Confirm(ctx, sub.TxRef)
			if err == nil && confirmed {
				sub.State = model.SubmissionConfirmed
				c.persist(sub)
				out <- model.SubmissionConfirmed
				return
			}
			if time.Now().After(deadline) {
				sub.State = model.SubmissionFailed
				c.persist(sub)
				out <- model.SubmissionFailed
				return
			}
			select {
			case <-ctx.Done():
				out <- sub.State
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}

// GetLatest returns the most recently confirmed value for sensorID,
// serving from the TTL cache when possible.
func (c *Client) GetLatest(ctx context.Context, sensorID string) (float64, error) {
	if entry, ok := c.cache.Get(sensorID); ok {
		return entry.Value, nil
	}
	value, block, err := c.chain.GetLatest(ctx, sensorID)
	if err != nil {
		return 0, model.Wrap(model.KindTransientLedger, err, "get_latest failed")
	}
	c.cache.Add(sensorID, model.CacheEntry{Key: sensorID, Value: value, Block: block, InsertedAt: time.Now()})
	return value, nil
}

// StakeOf reports nodeID's on-chain stake, implementing
// reputation.StakeSource when the underlying Chain supports it.
func (c *Client) StakeOf(ctx context.Context, nodeID string) (int64, error) {
	sc, ok := c.chain.(StakeChain)
	if !ok {
		return 0, model.New(model.KindFatal, "ledger transport does not support stake queries")
	}
	return sc.StakeOf(ctx, nodeID)
}

// BatchSubmit submits multiple consensus results, budget-gated as a single
// batch operation rather than N individual submits.
func (c *Client) BatchSubmit(ctx context.Context, results map[string]model.ConsensusResult) ([]model.LedgerSubmission, error) {
	if c.budget != nil && !c.budget.ConsumeForOp(budget.OpBatchSubmit) {
		return nil, model.New(model.KindOverloaded, "ledger batch-submit budget exhausted")
	}
	subs := make([]model.LedgerSubmission, 0, len(results))
	for sensorID, res := range results {
		sub, err := c.Submit(ctx, sensorID, res.Value, res.Timestamp)
		if err != nil {
			return subs, fmt.Errorf("batch submit %s: %w", sensorID, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (c *Client) persist(sub model.LedgerSubmission) {
	if c.store == nil {
		return
	}
	if err := c.store.AppendSubmission(sub); err != nil && c.log != nil {
		c.log.Error("failed to persist ledger submission", zap.String("tx_ref", sub.TxRef), zap.Error(err))
	}
}

// quantize converts a float64 reading into the integer representation the
// ledger accepts, fixed-point scaled by scale (e.g. scale=100 keeps 2
// decimal places).
func quantize(value float64, scale int64) int64 {
	return int64(math.Round(value * float64(scale)))
}
