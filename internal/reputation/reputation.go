// Package reputation is the single owner of NodeRecord, ReputationEvent and
// SlashRecord state: weighting peer contributions, updating scores on
// pipeline outcomes, running the stake gate, and arbitrating slashing. It
// unifies what the reference implementation split across two overlapping
// stores into one component, per SPEC_FULL §4.5 / §9 Open Question 3.
package reputation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rodiolabs/oraclenode/internal/model"
)

// AuditLog is the durable sink for events this component appends; the
// storage package implements it.
type AuditLog interface {
	AppendReputationEvent(model.ReputationEvent) error
	AppendSlashRecord(model.SlashRecord) error
}

// StakeSource abstracts the on-chain stake read the ledger component
// exposes, so this package does not import internal/ledger directly.
type StakeSource interface {
	StakeOf(ctx context.Context, nodeID string) (int64, error)
}

// VoteCollector abstracts peer-vote collection for non-auto-slash
// proposals; internal/peer implements it.
type VoteCollector interface {
	CollectSlashVotes(ctx context.Context, target string, reason model.SlashReason) (approveRatio float64, err error)
}

// Config holds the tunables from SPEC_FULL §6 reputation.* / node.* keys.
type Config struct {
	DefaultReputation  float64 // 0.8
	DecayRatePerDay    float64 // 0.001
	EventRetentionDays int     // 30
	MinStake           int64
	SlashVoteThreshold float64 // 0.75
}

func DefaultConfig() Config {
	return Config{
		DefaultReputation:  model.DefaultReputation,
		DecayRatePerDay:    0.001,
		EventRetentionDays: 30,
		SlashVoteThreshold: 0.75,
	}
}

// System is the Reputation & Stake Gate component.
type System struct {
	cfg    Config
	log    AuditLog
	stakes StakeSource
	votes  VoteCollector

	mu      sync.RWMutex
	records map[string]*model.NodeRecord
	ladders map[string]*trustLadder
	pinned  map[string]model.TrustState

	stakeOK bool // result of the most recent self stake check
	selfID  string
}

func New(cfg Config, selfID string, log AuditLog, stakes StakeSource, votes VoteCollector) *System {
	return &System{
		cfg:     cfg,
		log:     log,
		stakes:  stakes,
		votes:   votes,
		records: make(map[string]*model.NodeRecord),
		ladders: make(map[string]*trustLadder),
		pinned:  make(map[string]model.TrustState),
		stakeOK: true,
		selfID:  selfID,
	}
}

func (s *System) getOrCreate(nodeID string) *model.NodeRecord {
	if r, ok := s.records[nodeID]; ok {
		return r
	}
	r := &model.NodeRecord{
		NodeID:     nodeID,
		Reputation: s.cfg.DefaultReputation,
		Trust:      model.TrustTrusted,
		LastSeen:   time.Now(),
	}
	s.records[nodeID] = r
	s.ladders[nodeID] = newTrustLadder()
	return r
}

// Snapshot returns a read-only copy of a node's record, creating it at
// default reputation if unseen before.
func (s *System) Snapshot(nodeID string) model.NodeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreate(nodeID).Snapshot()
}

// ConsensusWeight implements aggregator.ReputationLookup.
func (s *System) ConsensusWeight(nodeID string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[nodeID]
	if !ok {
		return 0, false
	}
	return model.ConsensusWeight(r.Reputation), true
}

// Stake implements aggregator.ReputationLookup.
func (s *System) Stake(nodeID string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[nodeID]
	if !ok {
		return 0, false
	}
	return r.Stake, true
}

// RecordEvent applies a discrete event to a node's reputation, clamps it,
// appends to the audit log, and runs trust-state escalation off the
// event's severity.
func (s *System) RecordEvent(nodeID string, kind model.EventKind, details string) error {
	return s.recordEventWithImpact(nodeID, kind, model.DefaultEventImpacts[kind], details)
}

func (s *System) recordEventWithImpact(nodeID string, kind model.EventKind, impact float64, details string) error {
	s.mu.Lock()
	r := s.getOrCreate(nodeID)
	r.Reputation = clamp01(r.Reputation + impact)
	r.LastSeen = time.Now()
	if pinnedState, ok := s.pinned[nodeID]; ok {
		r.Trust = pinnedState
	} else {
		ladder := s.ladders[nodeID]
		r.Trust = ladder.observe(severityOf(impact))
	}
	evt := model.ReputationEvent{NodeID: nodeID, Kind: kind, Impact: impact, Ts: time.Now(), Details: details}
	s.mu.Unlock()

	if s.log != nil {
		return s.log.AppendReputationEvent(evt)
	}
	return nil
}

// ApplyDecay runs one linear-toward-0.5 decay step, proportional to the
// distance from 0.5, for every known node. Intended to be called once per
// tick by a background ticker in internal/node.
func (s *System) ApplyDecay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		delta := s.cfg.DecayRatePerDay * (r.Reputation - model.DecayTarget)
		r.Reputation = clamp01(r.Reputation - delta)
		if _, pinned := s.pinned[id]; pinned {
			continue
		}
		if decayed, ok := s.ladders[id].decay(); ok {
			r.Trust = decayed
		}
	}
}

// Pin overrides nodeID's trust state, holding it fixed until Unpin is
// called. Used by the operator control socket for manual intervention.
func (s *System) Pin(nodeID string, state model.TrustState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.getOrCreate(nodeID)
	s.pinned[nodeID] = state
	r.Trust = state
}

// Unpin removes a pin, resuming normal escalation/decay.
func (s *System) Unpin(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pinned, nodeID)
}

// IsPinned reports whether nodeID currently has an operator-pinned state.
func (s *System) IsPinned(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pinned[nodeID]
	return ok
}

// ListAll returns a snapshot of every tracked node's record.
func (s *System) ListAll() []model.NodeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.NodeRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Snapshot())
	}
	return out
}

// CheckSelfStake verifies this node's own stake against MinStake. Failure
// blocks new submissions but is not fatal; callers consult StakeOK.
func (s *System) CheckSelfStake(ctx context.Context) error {
	if s.stakes == nil {
		return nil
	}
	stake, err := s.stakes.StakeOf(ctx, s.selfID)
	if err != nil {
		return model.Wrap(model.KindStakeInsufficient, err, "stake check failed")
	}
	s.mu.Lock()
	s.stakeOK = stake >= s.cfg.MinStake
	s.mu.Unlock()
	if !s.stakeOK {
		return model.New(model.KindStakeInsufficient, fmt.Sprintf("stake %d below minimum %d", stake, s.cfg.MinStake))
	}
	return nil
}

// StakeOK reports the result of the most recent self stake check.
func (s *System) StakeOK() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stakeOK
}

// ProposeSlash runs the slashing protocol for a flagged peer: auto-slash
// for the listed reasons, otherwise gated on a 75% peer-vote approval.
func (s *System) ProposeSlash(ctx context.Context, target string, reason model.SlashReason) (*model.SlashRecord, error) {
	approved := model.AutoSlashReasons[reason]
	if !approved {
		if s.votes == nil {
			return nil, model.New(model.KindFatal, "no vote collector configured for non-auto-slash reason")
		}
		ratio, err := s.votes.CollectSlashVotes(ctx, target, reason)
		if err != nil {
			return nil, model.Wrap(model.KindTransientLedger, err, "vote collection failed")
		}
		approved = ratio >= s.cfg.SlashVoteThreshold
	}
	if !approved {
		return nil, nil
	}

	s.mu.Lock()
	r := s.getOrCreate(target)
	amount := r.Stake / 5 // default slash amount: 20% of current stake
	if amount > r.Stake {
		amount = r.Stake
	}
	r.Stake -= amount
	s.mu.Unlock()

	txRef := fmt.Sprintf("slash-%s-%d", target, time.Now().UnixNano())
	rec := model.SlashRecord{Target: target, Amount: amount, Reason: reason, Ts: time.Now(), TxRef: txRef}
	if s.log != nil {
		if err := s.log.AppendSlashRecord(rec); err != nil {
			return nil, model.Wrap(model.KindTransientLedger, err, "append slash record")
		}
	}
	if err := s.recordEventWithImpact(target, model.EventStakeSlash, model.DefaultEventImpacts[model.EventStakeSlash], string(reason)); err != nil {
		return &rec, err
	}
	return &rec, nil
}

func clamp01(v float64) float64 {
	if v < model.MinReputation {
		return model.MinReputation
	}
	if v > model.MaxReputation {
		return model.MaxReputation
	}
	return v
}
