package peer

import "testing"

func TestReachabilityStaysNormalAboveThreshold(t *testing.T) {
	var gotMode Mode
	transitions := 0
	r := NewReachability(ReachabilityConfig{TotalPeers: 4, BaseMinContributors: 3}, func(m Mode, reachable, total, min int) {
		transitions++
		gotMode = m
	})
	r.Update(4)
	r.Update(3)
	if transitions != 0 {
		t.Fatalf("expected no transition while above threshold, got %d (mode=%v)", transitions, gotMode)
	}
	if r.EffectiveMinContributors() != 3 {
		t.Fatalf("expected base min contributors, got %d", r.EffectiveMinContributors())
	}
}

func TestReachabilityRecalibratesUnderPartition(t *testing.T) {
	var lastMin int
	r := NewReachability(ReachabilityConfig{TotalPeers: 10, BaseMinContributors: 5, PartitionThreshold: 0.5, QuorumFraction: 0.5}, func(m Mode, reachable, total, min int) {
		lastMin = min
	})
	r.Update(2) // 2/10 = 0.2 < 0.5 threshold
	if mode, reachable := r.State(); mode != ModePartitioned || reachable != 2 {
		t.Fatalf("expected partitioned mode with reachable=2, got mode=%v reachable=%d", mode, reachable)
	}
	// floor(2*0.5) = 1
	if r.EffectiveMinContributors() != 1 || lastMin != 1 {
		t.Fatalf("expected recalibrated min 1, got %d (callback %d)", r.EffectiveMinContributors(), lastMin)
	}
}

func TestReachabilityRecoversFromPartition(t *testing.T) {
	r := NewReachability(ReachabilityConfig{TotalPeers: 10, BaseMinContributors: 5}, nil)
	r.Update(2)
	r.Update(9)
	if mode, _ := r.State(); mode != ModeNormal {
		t.Fatalf("expected recovery to normal mode, got %v", mode)
	}
	if r.EffectiveMinContributors() != 5 {
		t.Fatalf("expected restored base min, got %d", r.EffectiveMinContributors())
	}
}

func TestReachabilitySingleNodeDeploymentAlwaysNormal(t *testing.T) {
	r := NewReachability(ReachabilityConfig{TotalPeers: 0, BaseMinContributors: 1}, nil)
	r.Update(0)
	if mode, _ := r.State(); mode != ModeNormal {
		t.Fatalf("expected normal mode with zero configured peers, got %v", mode)
	}
}
