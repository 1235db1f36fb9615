package reconcile

import (
	"context"
	"sync"
	"testing"

	"github.com/condwatch/indexer/internal/coretypes"
	"github.com/condwatch/indexer/internal/store"
	"github.com/condwatch/indexer/internal/store/storetest"
)

func amt(v uint64) coretypes.Amount { return coretypes.NewAmountFromUint64(v) }

var (
	tokenAcct = coretypes.MustParsePubkey("CM78CPUeXjn8o3yroDHxUtKsZZgoy4GPkPPXfouKNH12")
	mintAcct  = coretypes.MustParsePubkey("So11111111111111111111111111111111111111112")
	ownerAcct = coretypes.MustParsePubkey("Stake11111111111111111111111111111111111111")
)

// Delta coherence across a monotonic slot sequence.
func TestReconcile_DeltaCoherence(t *testing.T) {
	fake := storetest.New()
	r := New(fake, nil)
	ctx := context.Background()

	amounts := []uint64{500, 480, 600, 600, 0}
	slots := []uint64{100, 150, 200, 250, 300}

	for i := range amounts {
		if err := r.Reconcile(ctx, tokenAcct, mintAcct, ownerAcct, amt(amounts[i]), slots[i], coretypes.Signature{}); err != nil {
			t.Fatalf("reconcile[%d]: %v", i, err)
		}
	}

	rows := fake.BalanceRows(tokenAcct)
	if len(rows) != len(amounts) {
		t.Fatalf("got %d rows, want %d", len(rows), len(amounts))
	}
	prev := uint64(0)
	for i, row := range rows {
		wantDelta := amt(amounts[i]).Sub(amt(prev))
		if row.Delta.String() != wantDelta.String() {
			t.Errorf("row %d: delta = %s, want %s", i, row.Delta.String(), wantDelta.String())
		}
		if row.Amount.String() != amt(amounts[i]).String() {
			t.Errorf("row %d: amount = %s, want %d", i, row.Amount.String(), amounts[i])
		}
		prev = amounts[i]
	}
}

// Attaching a signature never changes amount, and a repeat attach is a
// no-op.
func TestReconcile_SignatureAttachIdempotent(t *testing.T) {
	fake := storetest.New()
	r := New(fake, nil)
	ctx := context.Background()
	sig := coretypes.NewSignature("3yZe7d1tVmgwjWGXXsPXXmXofJ6HVM9Zrrrzfi4Dm28c5TvWDqaSSGfr35fFMqCzukSGxdRqnN95WCQ6SHiNuDhp")

	if err := r.Reconcile(ctx, tokenAcct, mintAcct, ownerAcct, amt(500), 100, coretypes.Signature{}); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if err := r.Reconcile(ctx, tokenAcct, mintAcct, ownerAcct, amt(500), 100, sig); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	rows := fake.BalanceRows(tokenAcct)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if !rows[0].TxSig.Equal(sig) {
		t.Errorf("tx_sig = %q, want %q", rows[0].TxSig, sig)
	}
	if rows[0].Amount.String() != amt(500).String() {
		t.Errorf("amount = %s, want 500", rows[0].Amount.String())
	}

	// A subsequent identical call is a no-op.
	if err := r.Reconcile(ctx, tokenAcct, mintAcct, ownerAcct, amt(500), 100, sig); err != nil {
		t.Fatalf("third reconcile: %v", err)
	}
	rows = fake.BalanceRows(tokenAcct)
	if len(rows) != 1 {
		t.Fatalf("got %d rows after no-op, want 1", len(rows))
	}
}

// Order independence at the same slot between the stream path (no
// signature) and the decoder path (signature attached).
func TestReconcile_OrderIndependentAtSameSlot(t *testing.T) {
	sig := coretypes.NewSignature("3yZe7d1tVmgwjWGXXsPXXmXofJ6HVM9Zrrrzfi4Dm28c5TvWDqaSSGfr35fFMqCzukSGxdRqnN95WCQ6SHiNuDhp")

	run := func(streamFirst bool) []store.BalanceHistory {
		fake := storetest.New()
		r := New(fake, nil)
		ctx := context.Background()
		calls := []func() error{
			func() error { return r.Reconcile(ctx, tokenAcct, mintAcct, ownerAcct, amt(42), 7, coretypes.Signature{}) },
			func() error { return r.Reconcile(ctx, tokenAcct, mintAcct, ownerAcct, amt(42), 7, sig) },
		}
		if !streamFirst {
			calls[0], calls[1] = calls[1], calls[0]
		}
		for i, c := range calls {
			if err := c(); err != nil {
				t.Fatalf("call %d: %v", i, err)
			}
		}
		return fake.BalanceRows(tokenAcct)
	}

	a := run(true)
	b := run(false)
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected exactly one row each: got %d and %d", len(a), len(b))
	}
	if a[0].Amount.String() != b[0].Amount.String() || !a[0].TxSig.Equal(b[0].TxSig) {
		t.Fatalf("final state differs by order: %+v vs %+v", a[0], b[0])
	}
	if a[0].Amount.String() != amt(42).String() || !a[0].TxSig.Equal(sig) {
		t.Fatalf("unexpected final state: %+v", a[0])
	}
}

// Concurrent first-writes at the same slot must leave exactly one row,
// with the signature attached regardless of which goroutine wins the
// insert race.
func TestReconcile_ConcurrentFirstWriteRace(t *testing.T) {
	fake := storetest.New()
	r := New(fake, nil)
	ctx := context.Background()
	sig := coretypes.NewSignature("3yZe7d1tVmgwjWGXXsPXXmXofJ6HVM9Zrrrzfi4Dm28c5TvWDqaSSGfr35fFMqCzukSGxdRqnN95WCQ6SHiNuDhp")

	var wg sync.WaitGroup
	wg.Add(2)
	var errA, errB error
	go func() {
		defer wg.Done()
		errA = r.Reconcile(ctx, tokenAcct, mintAcct, ownerAcct, amt(9), 55, coretypes.Signature{})
	}()
	go func() {
		defer wg.Done()
		errB = r.Reconcile(ctx, tokenAcct, mintAcct, ownerAcct, amt(9), 55, sig)
	}()
	wg.Wait()
	if errA != nil {
		t.Fatalf("goroutine A: %v", errA)
	}
	if errB != nil {
		t.Fatalf("goroutine B: %v", errB)
	}

	rows := fake.BalanceRows(tokenAcct)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if !rows[0].TxSig.Equal(sig) {
		t.Errorf("tx_sig = %q, want %q", rows[0].TxSig, sig)
	}
}
