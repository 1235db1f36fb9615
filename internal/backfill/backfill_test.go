package backfill

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/condwatch/indexer/internal/coretypes"
	"github.com/condwatch/indexer/internal/decode"
	"github.com/condwatch/indexer/internal/payload"
	"github.com/condwatch/indexer/internal/reconcile"
	"github.com/condwatch/indexer/internal/store"
	"github.com/condwatch/indexer/internal/store/storetest"
)

// Running the backfill twice over the same set of transactions produces
// the same BalanceHistory: no duplicate rows, no double-applied deltas.
func TestJob_RunIsIdempotent(t *testing.T) {
	fake := storetest.New()
	mint := coretypes.MustParsePubkey("So11111111111111111111111111111111111111112")
	vault := coretypes.MustParsePubkey("CM78CPUeXjn8o3yroDHxUtKsZZgoy4GPkPPXfouKNH12")
	userUnderlying := coretypes.MustParsePubkey("Stake11111111111111111111111111111111111111")
	authority := coretypes.MustParsePubkey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	sig := coretypes.NewSignature("3yZe7d1tVmgwjWGXXsPXXmXofJ6HVM9Zrrrzfi4Dm28c5TvWDqaSSGfr35fFMqCzukSGxdRqnN95WCQ6SHiNuDhp")

	fake.PutToken(store.Token{MintAcct: mint})
	fake.PutVault(store.ConditionalVault{CondVaultAcct: vault, UnderlyingMintAcct: mint})

	p := payload.Payload{
		Slot: 100,
		Accounts: []payload.Account{
			{Pubkey: userUnderlying.String(), PostTokenBalance: &payload.TokenBalance{Mint: mint.String(), Owner: authority.String(), Amount: "BIGINT:500"}},
		},
		Instructions: []payload.Instruction{
			{
				Name: "mintConditionalTokens",
				AccountsWithData: []payload.InstructionAccount{
					{Name: "authority", Pubkey: authority.String()},
					{Name: "vault", Pubkey: vault.String()},
					{Name: "userUnderlyingTokenAccount", Pubkey: userUnderlying.String()},
				},
				Args: []payload.InstructionArg{{Name: "amount", Type: "u64", Data: "500"}},
			},
		},
	}
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	tx := store.Transaction{
		TxSig:      sig,
		Slot:       100,
		BlockTime:  now.Add(-time.Hour),
		Payload:    string(raw),
		MainIxType: coretypes.InstructionVaultMintConditionalTokens,
	}
	fake.PutTransaction(tx)

	rec := reconcile.New(fake, nil)
	dec := decode.New(fake, rec, nil)
	job := New(fake, dec, nil)

	if err := job.Run(context.Background(), now); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := job.Run(context.Background(), now); err != nil {
		t.Fatalf("second run: %v", err)
	}

	rows := fake.BalanceRows(userUnderlying)
	if len(rows) != 1 {
		t.Fatalf("got %d balance rows after two runs, want 1", len(rows))
	}
	if rows[0].Amount.String() != "500" || rows[0].Delta.String() != "500" {
		t.Errorf("row = %+v, want amount=500 delta=500", rows[0])
	}
}

// Transactions outside the lookback window are not selected.
func TestJob_Run_RespectsLookbackWindow(t *testing.T) {
	fake := storetest.New()
	sig := coretypes.NewSignature("3yZe7d1tVmgwjWGXXsPXXmXofJ6HVM9Zrrrzfi4Dm28c5TvWDqaSSGfr35fFMqCzukSGxdRqnN95WCQ6SHiNuDhp")
	now := time.Unix(1_700_000_000, 0)
	old := store.Transaction{
		TxSig:      sig,
		Slot:       1,
		BlockTime:  now.Add(-LookbackWindow - time.Hour),
		Payload:    "{}",
		MainIxType: coretypes.InstructionAmmSwap,
	}
	fake.PutTransaction(old)

	idx := &countingIndexer{}
	job := New(fake, idx, nil)

	if err := job.Run(context.Background(), now); err != nil {
		t.Fatalf("run: %v", err)
	}
	if idx.n != 0 {
		t.Errorf("indexed %d transactions, want 0 (the only one is outside the lookback window)", idx.n)
	}
}

// countingIndexer counts Index calls without decoding anything.
type countingIndexer struct{ n int }

func (c *countingIndexer) Index(context.Context, store.Transaction) error {
	c.n++
	return nil
}
