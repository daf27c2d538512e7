package governance

import (
	"math"
	"testing"
	"time"
)

func TestValidateRejectsNaN(t *testing.T) {
	c := NewChain(DefaultBounds())
	now := time.Now()
	_, err := c.Validate("s1", math.NaN(), now, "tx1", now)
	if err == nil {
		t.Fatal("expected error for NaN value")
	}
}

func TestValidateRejectsSkew(t *testing.T) {
	c := NewChain(DefaultBounds())
	now := time.Now()
	_, err := c.Validate("s1", 1.0, now.Add(-time.Hour), "tx1", now)
	if err == nil {
		t.Fatal("expected error for excessive timestamp skew")
	}
}

func TestChainLinksAndVerifies(t *testing.T) {
	c := NewChain(DefaultBounds())
	now := time.Now()
	r1, err := c.Validate("s1", 1.0, now, "tx1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r2, err := c.Validate("s1", 2.0, now, "tx2", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r2.ParentHash != r1.DecisionHash {
		t.Fatal("expected r2 to chain from r1")
	}
	if err := VerifyChain([]SubmissionRecord{*r1, *r2}); err != nil {
		t.Fatalf("expected chain to verify, got %v", err)
	}
}

func TestVerifyChainDetectsTamper(t *testing.T) {
	c := NewChain(DefaultBounds())
	now := time.Now()
	r1, _ := c.Validate("s1", 1.0, now, "tx1", now)
	tampered := *r1
	tampered.Value = 999
	if err := VerifyChain([]SubmissionRecord{tampered}); err == nil {
		t.Fatal("expected tamper detection to fail verification")
	}
}
