package peer

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rodiolabs/oraclenode/internal/model"
)

type fakeWindowSource struct {
	readings map[string]model.Reading
}

func (f fakeWindowSource) LocalReading(sensorID string, windowTS int64) (model.Reading, bool) {
	r, ok := f.readings[sensorID]
	return r, ok
}

// dialBufconn wires an in-process listener so the hand-written ServiceDesc,
// handlers, and JSON codec can be exercised without real sockets or TLS.
func dialBufconn(t *testing.T, srv CollectorServer) (*grpc.ClientConn, func()) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	gs := grpc.NewServer()
	RegisterCollectorServer(gs, srv)
	go gs.Serve(lis)

	cc, err := grpc.Dial("bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	return cc, func() { cc.Close(); gs.Stop() }
}

func TestGetWindowRoundTrip(t *testing.T) {
	src := fakeWindowSource{readings: map[string]model.Reading{
		"temp-1": {SensorID: "temp-1", Value: 21.5},
	}}
	cc, cleanup := dialBufconn(t, NewServer("node-a", src, nil, nil))
	defer cleanup()

	client := newCollectorClient(cc)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.GetWindow(ctx, &GetWindowRequest{SensorID: "temp-1", WindowTS: 42})
	if err != nil {
		t.Fatalf("GetWindow: %v", err)
	}
	if !resp.Found || resp.Reading.Value != 21.5 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGetWindowMissingSensorReturnsNotFound(t *testing.T) {
	cc, cleanup := dialBufconn(t, NewServer("node-a", fakeWindowSource{readings: map[string]model.Reading{}}, nil, nil))
	defer cleanup()

	client := newCollectorClient(cc)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.GetWindow(ctx, &GetWindowRequest{SensorID: "missing", WindowTS: 1})
	if err != nil {
		t.Fatalf("GetWindow: %v", err)
	}
	if resp.Found {
		t.Fatalf("expected not found, got %+v", resp)
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	cc, cleanup := dialBufconn(t, NewServer("node-a", fakeWindowSource{}, nil, nil))
	defer cleanup()

	client := newCollectorClient(cc)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Heartbeat(ctx, &HeartbeatRequest{NodeID: "node-b"})
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if !resp.Healthy || resp.NodeID != "node-a" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
