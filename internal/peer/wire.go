package peer

import "github.com/rodiolabs/oraclenode/internal/model"

// GetWindowRequest asks a peer for its reading of one sensor window.
type GetWindowRequest struct {
	SensorID string `json:"sensor_id"`
	WindowTS int64  `json:"window_ts"`
}

// GetWindowResponse carries the peer's reading, if it has one.
type GetWindowResponse struct {
	Found   bool          `json:"found"`
	Reading model.Reading `json:"reading"`
}

// HeartbeatRequest is sent on the periodic reachability probe.
type HeartbeatRequest struct {
	NodeID string `json:"node_id"`
}

// HeartbeatResponse confirms liveness and echoes the responder's identity.
type HeartbeatResponse struct {
	NodeID  string `json:"node_id"`
	Healthy bool   `json:"healthy"`
}

// CastVoteRequest asks a peer to vote on a pending slash proposal.
type CastVoteRequest struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// CastVoteResponse carries one peer's approve/reject vote.
type CastVoteResponse struct {
	Approve bool `json:"approve"`
}
