package node

import (
	"context"
	"testing"

	"github.com/rodiolabs/oraclenode/internal/model"
	"github.com/rodiolabs/oraclenode/internal/reputation"
)

type fakeAuditLog struct{}

func (fakeAuditLog) AppendReputationEvent(model.ReputationEvent) error { return nil }
func (fakeAuditLog) AppendSlashRecord(model.SlashRecord) error         { return nil }

func TestVoteSourceRejectsUnobservedTarget(t *testing.T) {
	rep := reputation.New(reputation.DefaultConfig(), "self", fakeAuditLog{}, nil, nil)
	vs := newVoteSource(rep)

	if vs.CastVote(context.Background(), "peer-1", model.ReasonDataManipulation) {
		t.Fatal("expected vote rejected for a target with no observed drift")
	}
}

func TestVoteSourceApprovesWatchedOrWorse(t *testing.T) {
	rep := reputation.New(reputation.DefaultConfig(), "self", fakeAuditLog{}, nil, nil)
	vs := newVoteSource(rep)

	rep.Pin("peer-1", model.TrustWatched)
	if !vs.CastVote(context.Background(), "peer-1", model.ReasonDataManipulation) {
		t.Fatal("expected vote approved for a watched target")
	}

	rep.Pin("peer-2", model.TrustSlashed)
	if !vs.CastVote(context.Background(), "peer-2", model.ReasonDataManipulation) {
		t.Fatal("expected vote approved for an already-slashed target")
	}
}

func TestVoteSourceRejectsTrusted(t *testing.T) {
	rep := reputation.New(reputation.DefaultConfig(), "self", fakeAuditLog{}, nil, nil)
	vs := newVoteSource(rep)

	rep.Pin("peer-1", model.TrustTrusted)
	if vs.CastVote(context.Background(), "peer-1", model.ReasonDataManipulation) {
		t.Fatal("expected vote rejected for a normally trusted target")
	}
}
