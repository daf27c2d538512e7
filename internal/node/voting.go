package node

import (
	"context"

	"github.com/rodiolabs/oraclenode/internal/model"
	"github.com/rodiolabs/oraclenode/internal/reputation"
)

// voteSource answers a peer's CastVote RPC using this node's own view of
// the target's trust state: if this node has already observed the target
// drifting toward watched/suspended, it approves; otherwise it abstains by
// rejecting. Implements peer.VoteSource.
type voteSource struct {
	rep *reputation.System
}

func newVoteSource(rep *reputation.System) *voteSource {
	return &voteSource{rep: rep}
}

func (v *voteSource) CastVote(ctx context.Context, target string, reason model.SlashReason) bool {
	rec := v.rep.Snapshot(target)
	switch rec.Trust {
	case model.TrustWatched, model.TrustSuspended, model.TrustSlashed:
		return true
	default:
		return false
	}
}
