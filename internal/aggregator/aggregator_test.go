package aggregator

import (
	"strings"
	"testing"
	"time"

	"github.com/rodiolabs/oraclenode/internal/model"
)

// validSig is a stand-in 64-byte hex-digest-shaped signature, matching
// what VerifySignature requires without needing a real HMAC key in tests
// that don't care about authenticity, only shape.
var validSig = []byte(strings.Repeat("deadbeefcafebabe", 4))

func reading(sensorID, nodeID string, value float64, ts time.Time) model.Reading {
	return model.Reading{
		SensorID:  sensorID,
		NodeID:    nodeID,
		Value:     value,
		Timestamp: ts,
		Signature: validSig,
	}
}

func makeReadings(values []float64) []model.Reading {
	now := time.Now()
	out := make([]model.Reading, len(values))
	for i, v := range values {
		out[i] = reading("sensor-1", nodeName(i), v, now.Add(time.Duration(i)*time.Second))
	}
	return out
}

func nodeName(i int) string {
	names := []string{"a", "b", "c", "d", "e", "f"}
	if i < len(names) {
		return names[i]
	}
	return "x"
}

func TestAggregateS1AllAgree(t *testing.T) {
	agg := New(DefaultConfig(), nil)
	out := agg.Aggregate(makeReadings([]float64{22.8, 23.0, 23.1, 22.9, 23.2}))
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Result.Value < 22.9 || out.Result.Value > 23.1 {
		t.Fatalf("expected value near 23.0, got %v", out.Result.Value)
	}
	if out.Result.OutliersRemoved != 0 {
		t.Fatalf("expected 0 outliers removed, got %d", out.Result.OutliersRemoved)
	}
	if out.Result.Confidence <= 0.8 {
		t.Fatalf("expected confidence > 0.8, got %v", out.Result.Confidence)
	}
}

func TestAggregateS2OneOutlier(t *testing.T) {
	agg := New(DefaultConfig(), nil)
	out := agg.Aggregate(makeReadings([]float64{23.0, 23.1, 45.0, 22.9, 23.2}))
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Result.Value < 22.5 || out.Result.Value > 23.5 {
		t.Fatalf("expected value in [22.5, 23.5], got %v", out.Result.Value)
	}
	if out.Result.OutliersRemoved != 1 {
		t.Fatalf("expected 1 outlier removed, got %d", out.Result.OutliersRemoved)
	}
	found := false
	for _, f := range out.Flags {
		if f.NodeID == "c" { // index 2, value 45.0
			found = true
		}
	}
	if !found {
		t.Fatal("expected node emitting 45.0 to be flagged")
	}
}

func TestAggregateS3ExactMinNodes(t *testing.T) {
	agg := New(DefaultConfig(), nil)
	out := agg.Aggregate(makeReadings([]float64{23.0, 23.1, 22.9}))
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Result.NodesParticipated != 3 {
		t.Fatalf("expected 3 participants, got %d", out.Result.NodesParticipated)
	}
}

func TestAggregateS4InsufficientContributors(t *testing.T) {
	agg := New(DefaultConfig(), nil)
	out := agg.Aggregate(makeReadings([]float64{23.0, 23.1}))
	if out.Err == nil {
		t.Fatal("expected error")
	}
	if out.Err.Kind != model.KindInsufficientContribs {
		t.Fatalf("expected InsufficientContributors, got %v", out.Err.Kind)
	}
	if out.Result != nil {
		t.Fatal("expected no result")
	}
}

func TestAggregateS5NoConsensus(t *testing.T) {
	agg := New(DefaultConfig(), nil)
	out := agg.Aggregate(makeReadings([]float64{10, 20, 30, 40, 50}))
	if out.Err == nil {
		t.Fatal("expected error")
	}
	if out.Err.Kind != model.KindNoConsensus {
		t.Fatalf("expected NoConsensus, got %v", out.Err.Kind)
	}
}

func TestIQRFilterIdempotent(t *testing.T) {
	values := []float64{23.0, 23.1, 45.0, 22.9, 23.2, 23.05}
	once, _ := iqrFilter(values)
	twice, removedAgain := iqrFilter(once)
	if removedAgain != 0 {
		t.Fatalf("expected idempotent filter to remove nothing on second pass, removed %d", removedAgain)
	}
	if len(once) != len(twice) {
		t.Fatalf("expected same length, got %d vs %d", len(once), len(twice))
	}
}

type fakeRep struct {
	weights map[string]float64
}

func (f fakeRep) ConsensusWeight(nodeID string) (float64, bool) {
	w, ok := f.weights[nodeID]
	return w, ok
}
func (f fakeRep) Stake(nodeID string) (int64, bool) { return 0, false }

func TestAggregateWeightedMedianUsesReputation(t *testing.T) {
	rep := fakeRep{weights: map[string]float64{"a": 1.0, "b": 1.0, "c": 0.1, "d": 1.0, "e": 1.0}}
	agg := New(DefaultConfig(), rep)
	out := agg.Aggregate(makeReadings([]float64{23.0, 23.1, 23.3, 22.9, 23.2}))
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Result.Method != model.MethodWeightedMedianIQR {
		t.Fatalf("expected weighted method, got %v", out.Result.Method)
	}
}
