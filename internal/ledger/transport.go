// transport.go is the gRPC-backed implementation of Chain, talking to an
// external ledger service over mutual TLS. Reuses the JSON codec and
// hand-written ServiceDesc pattern established in internal/peer, since the
// same constraint applies here: no protoc-generated stubs are available for
// this module.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/encoding"
)

const (
	codecName   = "json"
	serviceName = "oraclenode.ledger.v1.Ledger"
)

func init() {
	// Registering twice under the same name (internal/peer already does this
	// in a process that imports both packages) is harmless:
	// encoding.RegisterCodec simply overwrites the prior registration with an
	// equivalent implementation.
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

type submitRequest struct {
	SensorID string    `json:"sensor_id"`
	ValueQ   int64     `json:"value_q"`
	Ts       time.Time `json:"ts"`
	TxRef    string    `json:"tx_ref"`
}

type submitResponse struct {
	Accepted bool `json:"accepted"`
}

type confirmRequest struct {
	TxRef string `json:"tx_ref"`
}

type confirmResponse struct {
	Confirmed bool `json:"confirmed"`
}

type getLatestRequest struct {
	SensorID string `json:"sensor_id"`
}

type getLatestResponse struct {
	Value float64 `json:"value"`
	Block int64   `json:"block"`
}

type stakeOfRequest struct {
	NodeID string `json:"node_id"`
}

type stakeOfResponse struct {
	Stake int64 `json:"stake"`
}

// GRPCChain implements Chain against a dialed ledger service connection.
type GRPCChain struct {
	cc *grpc.ClientConn
}

// DialChain dials addr with the given TLS material and returns a Chain
// implementation backed by that connection. Callers own the returned
// GRPCChain's lifetime and should Close it on shutdown.
func DialChain(addr string, tlsCfgOpt grpc.DialOption) (*GRPCChain, error) {
	cc, err := grpc.Dial(addr, tlsCfgOpt)
	if err != nil {
		return nil, err
	}
	return &GRPCChain{cc: cc}, nil
}

// WithTLS builds the grpc.DialOption for a TLS-secured ledger connection.
func WithTLS(creds credentials.TransportCredentials) grpc.DialOption {
	return grpc.WithTransportCredentials(creds)
}

func (g *GRPCChain) Close() error { return g.cc.Close() }

func (g *GRPCChain) Submit(ctx context.Context, sensorID string, valueQ int64, ts time.Time, txRef string) error {
	resp := new(submitResponse)
	req := &submitRequest{SensorID: sensorID, ValueQ: valueQ, Ts: ts, TxRef: txRef}
	return g.cc.Invoke(ctx, "/"+serviceName+"/Submit", req, resp, grpc.CallContentSubtype(codecName))
}

func (g *GRPCChain) Confirm(ctx context.Context, txRef string) (bool, error) {
	resp := new(confirmResponse)
	req := &confirmRequest{TxRef: txRef}
	if err := g.cc.Invoke(ctx, "/"+serviceName+"/Confirm", req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return false, err
	}
	return resp.Confirmed, nil
}

func (g *GRPCChain) GetLatest(ctx context.Context, sensorID string) (float64, int64, error) {
	resp := new(getLatestResponse)
	req := &getLatestRequest{SensorID: sensorID}
	if err := g.cc.Invoke(ctx, "/"+serviceName+"/GetLatest", req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return 0, 0, err
	}
	return resp.Value, resp.Block, nil
}

// StakeOf queries the external ledger's staking contract for nodeID's
// locked balance. Implements StakeChain.
func (g *GRPCChain) StakeOf(ctx context.Context, nodeID string) (int64, error) {
	resp := new(stakeOfResponse)
	req := &stakeOfRequest{NodeID: nodeID}
	if err := g.cc.Invoke(ctx, "/"+serviceName+"/StakeOf", req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return 0, err
	}
	return resp.Stake, nil
}
