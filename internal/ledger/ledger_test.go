package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rodiolabs/oraclenode/internal/model"
)

type fakeChain struct {
	mu          sync.Mutex
	submitErrs  []error // consumed in order; nil once exhausted means success
	confirmed   map[string]bool
	latest      map[string]float64
	submitCalls int
}

func (f *fakeChain) Submit(ctx context.Context, sensorID string, valueQ int64, ts time.Time, txRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return err
		}
	}
	if f.confirmed == nil {
		f.confirmed = map[string]bool{}
	}
	f.confirmed[txRef] = true
	return nil
}

func (f *fakeChain) Confirm(ctx context.Context, txRef string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmed[txRef], nil
}

func (f *fakeChain) GetLatest(ctx context.Context, sensorID string) (float64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest[sensorID], 1, nil
}

type fakeStore struct {
	mu   sync.Mutex
	subs []model.LedgerSubmission
}

func (f *fakeStore) AppendSubmission(s model.LedgerSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, s)
	return nil
}

func TestSubmitSucceedsOnFirstTry(t *testing.T) {
	chain := &fakeChain{}
	store := &fakeStore{}
	c := New(chain, nil, store, nil, Config{RetryInitial: time.Millisecond}, nil)

	sub, err := c.Submit(context.Background(), "temp-1", 21.5, time.Now())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.State != model.SubmissionPending {
		t.Fatalf("expected pending immediately after submit, got %v", sub.State)
	}
	if chain.submitCalls != 1 {
		t.Fatalf("expected exactly one submit call, got %d", chain.submitCalls)
	}
}

func TestSubmitRetriesThenSucceeds(t *testing.T) {
	chain := &fakeChain{submitErrs: []error{errors.New("transient"), errors.New("transient"), nil}}
	c := New(chain, nil, &fakeStore{}, nil, Config{RetryInitial: time.Millisecond, RetryMax: time.Millisecond}, nil)

	sub, err := c.Submit(context.Background(), "temp-1", 21.5, time.Now())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", sub.Attempts)
	}
}

func TestSubmitExhaustsRetriesAndFails(t *testing.T) {
	chain := &fakeChain{submitErrs: []error{
		errors.New("e1"), errors.New("e2"), errors.New("e3"), errors.New("e4"), errors.New("e5"),
	}}
	c := New(chain, nil, &fakeStore{}, nil, Config{MaxAttempts: 5, RetryInitial: time.Millisecond, RetryMax: time.Millisecond}, nil)

	sub, err := c.Submit(context.Background(), "temp-1", 21.5, time.Now())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if sub.State != model.SubmissionFailed {
		t.Fatalf("expected failed state, got %v", sub.State)
	}
	if !model.Is(err, model.KindTransientLedger) {
		t.Fatalf("expected KindTransientLedger, got %v", model.KindOf(err))
	}
}

func TestConfirmAsyncReportsConfirmed(t *testing.T) {
	chain := &fakeChain{}
	c := New(chain, nil, &fakeStore{}, nil, Config{RetryInitial: time.Millisecond}, nil)

	sub, err := c.Submit(context.Background(), "temp-1", 21.5, time.Now())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ch := c.ConfirmAsync(context.Background(), sub)
	select {
	case state := <-ch:
		if state != model.SubmissionConfirmed {
			t.Fatalf("expected confirmed, got %v", state)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ConfirmAsync did not report within timeout")
	}
}

func TestGetLatestCachesWithinTTL(t *testing.T) {
	chain := &fakeChain{latest: map[string]float64{"temp-1": 99}}
	c := New(chain, nil, nil, nil, Config{CacheTTL: time.Hour}, nil)

	v1, err := c.GetLatest(context.Background(), "temp-1")
	if err != nil || v1 != 99 {
		t.Fatalf("unexpected first GetLatest: %v %v", v1, err)
	}
	chain.latest["temp-1"] = 5 // change backing value; cache should still serve 99
	v2, err := c.GetLatest(context.Background(), "temp-1")
	if err != nil || v2 != 99 {
		t.Fatalf("expected cached value 99, got %v (%v)", v2, err)
	}
}
