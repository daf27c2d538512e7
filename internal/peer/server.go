package peer

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/rodiolabs/oraclenode/internal/model"
)

// WindowSource answers this node's own reading for a sensor window, so that
// peers collecting consensus inputs can pull it over GetWindow.
type WindowSource interface {
	LocalReading(sensorID string, windowTS int64) (model.Reading, bool)
}

// VoteSource decides this node's own vote on a peer's slash proposal, so
// the reputation component's non-auto-slash path can solicit peer votes.
type VoteSource interface {
	CastVote(ctx context.Context, target string, reason model.SlashReason) bool
}

// Server is the gRPC-side handler for incoming peer collector RPCs.
type Server struct {
	nodeID string
	source WindowSource
	votes  VoteSource
	log    *zap.Logger
}

// NewServer constructs a Server backed by source for local window lookups.
// votes may be nil if this node never reviews slash proposals on behalf of
// peers; CastVote then always rejects.
func NewServer(nodeID string, source WindowSource, votes VoteSource, log *zap.Logger) *Server {
	return &Server{nodeID: nodeID, source: source, votes: votes, log: log}
}

// GetWindow implements CollectorServer.
func (s *Server) GetWindow(ctx context.Context, req *GetWindowRequest) (*GetWindowResponse, error) {
	reading, ok := s.source.LocalReading(req.SensorID, req.WindowTS)
	if !ok {
		return &GetWindowResponse{Found: false}, nil
	}
	return &GetWindowResponse{Found: true, Reading: reading}, nil
}

// Heartbeat implements CollectorServer.
func (s *Server) Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error) {
	return &HeartbeatResponse{NodeID: s.nodeID, Healthy: true}, nil
}

// CastVote implements CollectorServer.
func (s *Server) CastVote(ctx context.Context, req *CastVoteRequest) (*CastVoteResponse, error) {
	if s.votes == nil {
		return &CastVoteResponse{Approve: false}, nil
	}
	approve := s.votes.CastVote(ctx, req.Target, model.SlashReason(req.Reason))
	return &CastVoteResponse{Approve: approve}, nil
}

// ListenAndServe starts the mTLS gRPC listener and blocks until ctx is
// cancelled, then gracefully stops the server.
func ListenAndServe(ctx context.Context, addr string, tlsMaterial TLSMaterial, srv *Server, log *zap.Logger) error {
	tlsCfg, err := buildServerTLS(tlsMaterial)
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("peer: listen on %s: %w", addr, err)
	}

	gs := grpc.NewServer(
		grpc.Creds(credentials.NewTLS(tlsCfg)),
		grpc.MaxRecvMsgSize(64*1024),
		grpc.MaxSendMsgSize(64*1024),
	)
	RegisterCollectorServer(gs, srv)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gs.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		gs.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}
