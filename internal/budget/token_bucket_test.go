package budget

import (
	"testing"
	"time"
)

func TestConsumeRespectsCapacity(t *testing.T) {
	b := New(5, time.Hour)
	defer b.Close()
	for i := 0; i < 5; i++ {
		if !b.Consume(1) {
			t.Fatalf("expected consume %d to succeed", i)
		}
	}
	if b.Consume(1) {
		t.Fatal("expected bucket to be exhausted")
	}
}

func TestConsumeForOpUsesCostModel(t *testing.T) {
	b := New(10, time.Hour)
	defer b.Close()
	if !b.ConsumeForOp(OpBatchSubmit) {
		t.Fatal("expected batch submit to succeed")
	}
	if b.Remaining() != 5 {
		t.Fatalf("expected 5 remaining after cost-5 op, got %d", b.Remaining())
	}
}

func TestRefillRestoresCapacity(t *testing.T) {
	b := New(2, 20*time.Millisecond)
	defer b.Close()
	b.Consume(2)
	if b.Consume(1) {
		t.Fatal("expected exhaustion before refill")
	}
	time.Sleep(60 * time.Millisecond)
	if !b.Consume(1) {
		t.Fatal("expected refill to restore tokens")
	}
}
