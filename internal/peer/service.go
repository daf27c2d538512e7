package peer

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "oraclenode.peer.v1.PeerCollector"

// CollectorServer is implemented by the RPC handler side (see server.go).
type CollectorServer interface {
	GetWindow(ctx context.Context, req *GetWindowRequest) (*GetWindowResponse, error)
	Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error)
	CastVote(ctx context.Context, req *CastVoteRequest) (*CastVoteResponse, error)
}

func handleGetWindow(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(GetWindowRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CollectorServer).GetWindow(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/GetWindow"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CollectorServer).GetWindow(ctx, req.(*GetWindowRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func handleHeartbeat(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(HeartbeatRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CollectorServer).Heartbeat(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Heartbeat"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CollectorServer).Heartbeat(ctx, req.(*HeartbeatRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func handleCastVote(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(CastVoteRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CollectorServer).CastVote(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/CastVote"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CollectorServer).CastVote(ctx, req.(*CastVoteRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// serviceDesc is the hand-written equivalent of a protoc-generated
// _ServiceDesc. Registered against a *grpc.Server by RegisterCollectorServer.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CollectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetWindow", Handler: handleGetWindow},
		{MethodName: "Heartbeat", Handler: handleHeartbeat},
		{MethodName: "CastVote", Handler: handleCastVote},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/peer/service.go",
}

// RegisterCollectorServer registers srv's handlers on s.
func RegisterCollectorServer(s *grpc.Server, srv CollectorServer) {
	s.RegisterService(&serviceDesc, srv)
}

// collectorClient invokes the peer collector RPCs over an existing
// connection, always selecting the JSON codec registered in codec.go.
type collectorClient struct {
	cc *grpc.ClientConn
}

func newCollectorClient(cc *grpc.ClientConn) *collectorClient {
	return &collectorClient{cc: cc}
}

func (c *collectorClient) GetWindow(ctx context.Context, req *GetWindowRequest) (*GetWindowResponse, error) {
	resp := new(GetWindowResponse)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/GetWindow", req, resp, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *collectorClient) Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error) {
	resp := new(HeartbeatResponse)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/Heartbeat", req, resp, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *collectorClient) CastVote(ctx context.Context, req *CastVoteRequest) (*CastVoteResponse, error) {
	resp := new(CastVoteResponse)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/CastVote", req, resp, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	return resp, nil
}
