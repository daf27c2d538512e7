package reputation

import (
	"context"
	"testing"

	"github.com/rodiolabs/oraclenode/internal/model"
)

type fakeLog struct {
	events []model.ReputationEvent
	slashes []model.SlashRecord
}

func (f *fakeLog) AppendReputationEvent(e model.ReputationEvent) error {
	f.events = append(f.events, e)
	return nil
}
func (f *fakeLog) AppendSlashRecord(r model.SlashRecord) error {
	f.slashes = append(f.slashes, r)
	return nil
}

func TestNewNodeDefaultsAt08(t *testing.T) {
	sys := New(DefaultConfig(), "self", &fakeLog{}, nil, nil)
	rec := sys.Snapshot("peer-1")
	if rec.Reputation != 0.8 {
		t.Fatalf("expected default reputation 0.8, got %v", rec.Reputation)
	}
}

func TestReputationClampedToUnitInterval(t *testing.T) {
	sys := New(DefaultConfig(), "self", &fakeLog{}, nil, nil)
	for i := 0; i < 20; i++ {
		sys.RecordEvent("peer-1", model.EventMaliciousBehavior, "bad")
	}
	rec := sys.Snapshot("peer-1")
	if rec.Reputation < 0 || rec.Reputation > 1 {
		t.Fatalf("reputation escaped [0,1]: %v", rec.Reputation)
	}
	if rec.Reputation != 0 {
		t.Fatalf("expected clamp to 0 after repeated malicious events, got %v", rec.Reputation)
	}
}

func TestDecayMovesTowardHalf(t *testing.T) {
	sys := New(DefaultConfig(), "self", &fakeLog{}, nil, nil)
	sys.RecordEvent("peer-1", model.EventStakeIncrease, "")
	before := sys.Snapshot("peer-1").Reputation
	for i := 0; i < 100; i++ {
		sys.ApplyDecay()
	}
	after := sys.Snapshot("peer-1").Reputation
	if after >= before {
		t.Fatalf("expected decay to pull reputation down toward 0.5, before=%v after=%v", before, after)
	}
	if after < 0.5 {
		t.Fatalf("decay should not overshoot past 0.5, got %v", after)
	}
}

func TestConsensusWeightTiers(t *testing.T) {
	cases := []struct {
		rep  float64
		want float64
	}{
		{0.9, 1.0}, {0.8, 1.0}, {0.7, 0.8}, {0.6, 0.8}, {0.5, 0.5}, {0.3, 0.2}, {0.1, 0.1},
	}
	for _, c := range cases {
		if got := model.ConsensusWeight(c.rep); got != c.want {
			t.Fatalf("ConsensusWeight(%v) = %v, want %v", c.rep, got, c.want)
		}
	}
}

func TestAutoSlashBypassesVoting(t *testing.T) {
	log := &fakeLog{}
	sys := New(DefaultConfig(), "self", log, nil, nil)
	sys.mu.Lock()
	sys.getOrCreate("peer-1").Stake = 1000
	sys.mu.Unlock()

	rec, err := sys.ProposeSlash(context.Background(), "peer-1", model.ReasonDataManipulation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected slash record for auto-slash reason")
	}
	if rec.Amount > 1000 {
		t.Fatalf("slash amount must be capped at stake, got %v", rec.Amount)
	}
	if len(log.slashes) != 1 {
		t.Fatalf("expected 1 slash record appended, got %d", len(log.slashes))
	}
}

type refuseVotes struct{}

func (refuseVotes) CollectSlashVotes(ctx context.Context, target string, reason model.SlashReason) (float64, error) {
	return 0.2, nil // below 75% threshold
}

func TestNonAutoSlashRequiresVoteThreshold(t *testing.T) {
	sys := New(DefaultConfig(), "self", &fakeLog{}, nil, refuseVotes{})
	rec, err := sys.ProposeSlash(context.Background(), "peer-1", model.ReasonDataQualityLow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Fatal("expected no slash when vote ratio below threshold")
	}
}
