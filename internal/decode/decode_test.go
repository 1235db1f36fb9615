package decode

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/condwatch/indexer/internal/coretypes"
	"github.com/condwatch/indexer/internal/payload"
	"github.com/condwatch/indexer/internal/reconcile"
	"github.com/condwatch/indexer/internal/store"
	"github.com/condwatch/indexer/internal/store/storetest"
)

// pk builds a distinct Pubkey from a single seed byte; test fixtures
// don't need realistic on-chain keys, just distinct valid ones.
func pk(seed byte) coretypes.Pubkey {
	var p coretypes.Pubkey
	p[0] = seed
	return p
}

func marshalPayload(t *testing.T, p payload.Payload) string {
	t.Helper()
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return string(b)
}

func newDecoder(fake *storetest.Fake) *Decoder {
	rec := reconcile.New(fake, nil)
	return New(fake, rec, nil)
}

// A fresh mint records a deposit and one balance row.
func TestIndex_FreshMint(t *testing.T) {
	fake := storetest.New()
	mint := pk(1)
	vault := pk(2)
	finalizeMint := pk(3)
	revertMint := pk(4)
	userUnderlying := pk(5)
	authority := pk(6)
	txSig := coretypes.NewSignature("3yZe7d1tVmgwjWGXXsPXXmXofJ6HVM9Zrrrzfi4Dm28c5TvWDqaSSGfr35fFMqCzukSGxdRqnN95WCQ6SHiNuDhp")

	fake.PutToken(store.Token{MintAcct: mint})
	fake.PutVault(store.ConditionalVault{
		CondVaultAcct:             vault,
		UnderlyingMintAcct:        mint,
		CondFinalizeTokenMintAcct: finalizeMint,
		CondRevertTokenMintAcct:   revertMint,
	})

	p := payload.Payload{
		Slot: 100,
		Accounts: []payload.Account{
			{Pubkey: userUnderlying.String(), PostTokenBalance: &payload.TokenBalance{Mint: mint.String(), Owner: authority.String(), Amount: "BIGINT:500", Decimals: 6}},
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
	tx := store.Transaction{TxSig: txSig, Slot: 100, Payload: marshalPayload(t, p), MainIxType: coretypes.InstructionVaultMintConditionalTokens}

	d := newDecoder(fake)
	if err := d.Index(context.Background(), tx); err != nil {
		t.Fatalf("index: %v", err)
	}

	rows := fake.BalanceRows(userUnderlying)
	if len(rows) != 1 {
		t.Fatalf("got %d balance rows, want 1", len(rows))
	}
	if rows[0].Amount.String() != "500" || rows[0].Delta.String() != "500" || !rows[0].TxSig.Equal(txSig) {
		t.Errorf("row = %+v, want amount=500 delta=500 tx_sig=%s", rows[0], txSig)
	}

	ta, found, _ := fake.TokenAccountByAcct(context.Background(), userUnderlying)
	if !found {
		t.Fatal("token account not created")
	}
	if ta.Status != coretypes.StatusWatching || ta.Amount.String() != "500" || ta.OwnerAcct != authority {
		t.Errorf("token account = %+v, want status=Watching amount=500 owner=%s", ta, authority)
	}

	deposits := fake.Deposits()
	if len(deposits) != 1 {
		t.Fatalf("got %d deposits, want 1", len(deposits))
	}
	if deposits[0].UserAcct != authority || deposits[0].TokenAmount.String() != "500" || deposits[0].MintAcct != mint || !deposits[0].TxSig.Equal(txSig) {
		t.Errorf("deposit = %+v", deposits[0])
	}
}

// When the RPC stream observes the slot first (no tx_sig), indexing the
// transaction must attach the signature without creating a second row
// or changing amount.
func TestIndex_RPCThenTransaction(t *testing.T) {
	fake := storetest.New()
	mint := pk(11)
	vault := pk(12)
	userUnderlying := pk(15)
	authority := pk(16)
	txSig := coretypes.NewSignature("3yZe7d1tVmgwjWGXXsPXXmXofJ6HVM9Zrrrzfi4Dm28c5TvWDqaSSGfr35fFMqCzukSGxdRqnN95WCQ6SHiNuDhp")

	fake.PutToken(store.Token{MintAcct: mint})
	fake.PutVault(store.ConditionalVault{CondVaultAcct: vault, UnderlyingMintAcct: mint})

	// userUnderlying isn't a token account yet until the decoder creates
	// it, so reconcile directly against the fake the way C5 would.
	rec := reconcile.New(fake, nil)
	if _, err := fake.UpsertTokenAccount(context.Background(), store.TokenAccount{TokenAcct: userUnderlying, MintAcct: mint, OwnerAcct: authority, Status: coretypes.StatusWatching}); err != nil {
		t.Fatalf("seed token account: %v", err)
	}
	if err := rec.Reconcile(context.Background(), userUnderlying, mint, authority, coretypes.NewAmountFromUint64(500), 100, coretypes.Signature{}); err != nil {
		t.Fatalf("seed reconcile: %v", err)
	}

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
	tx := store.Transaction{TxSig: txSig, Slot: 100, Payload: marshalPayload(t, p), MainIxType: coretypes.InstructionVaultMintConditionalTokens}

	d := New(fake, rec, nil)
	if err := d.Index(context.Background(), tx); err != nil {
		t.Fatalf("index: %v", err)
	}

	rows := fake.BalanceRows(userUnderlying)
	if len(rows) != 1 {
		t.Fatalf("got %d balance rows, want 1", len(rows))
	}
	if rows[0].Amount.String() != "500" || rows[0].Delta.String() != "500" || !rows[0].TxSig.Equal(txSig) {
		t.Errorf("row = %+v, want amount=500 delta=500 tx_sig=%s", rows[0], txSig)
	}
}

// A swap produces two balance rows.
func TestIndex_Swap(t *testing.T) {
	fake := storetest.New()
	amm := pk(21)
	base := pk(22)
	quote := pk(23)
	userBase := pk(24)
	userQuote := pk(25)
	authority := pk(26)

	fake.PutToken(store.Token{MintAcct: base})
	fake.PutToken(store.Token{MintAcct: quote})
	fake.PutMarket(store.Market{MarketAcct: amm, BaseMintAcct: base, QuoteMintAcct: quote})

	p := payload.Payload{
		Slot: 200,
		Accounts: []payload.Account{
			{Pubkey: userBase.String(), PostTokenBalance: &payload.TokenBalance{Mint: base.String(), Owner: authority.String(), Amount: "BIGINT:10"}},
			{Pubkey: userQuote.String(), PostTokenBalance: &payload.TokenBalance{Mint: quote.String(), Owner: authority.String(), Amount: "BIGINT:30"}},
		},
		Instructions: []payload.Instruction{
			{
				Name: "swap",
				AccountsWithData: []payload.InstructionAccount{
					{Name: "authority", Pubkey: authority.String()},
					{Name: "amm", Pubkey: amm.String()},
					{Name: "userBaseAccount", Pubkey: userBase.String()},
					{Name: "userQuoteAccount", Pubkey: userQuote.String()},
				},
			},
		},
	}
	tx := store.Transaction{TxSig: coretypes.Signature{}, Slot: 200, Payload: marshalPayload(t, p), MainIxType: coretypes.InstructionAmmSwap}

	d := newDecoder(fake)
	if err := d.Index(context.Background(), tx); err != nil {
		t.Fatalf("index: %v", err)
	}

	baseRows := fake.BalanceRows(userBase)
	quoteRows := fake.BalanceRows(userQuote)
	if len(baseRows) != 1 || baseRows[0].Delta.String() != "10" {
		t.Errorf("base rows = %+v, want one row with delta 10", baseRows)
	}
	if len(quoteRows) != 1 || quoteRows[0].Delta.String() != "30" {
		t.Errorf("quote rows = %+v, want one row with delta 30", quoteRows)
	}
}

// An unknown mint's pair is skipped; the known pair still reconciles.
func TestIndex_UnknownMintSkipped(t *testing.T) {
	fake := storetest.New()
	amm := pk(31)
	base := pk(32)
	quote := pk(33) // deliberately never added via PutToken
	userBase := pk(34)
	userQuote := pk(35)
	authority := pk(36)

	fake.PutToken(store.Token{MintAcct: base})
	fake.PutMarket(store.Market{MarketAcct: amm, BaseMintAcct: base, QuoteMintAcct: quote})

	p := payload.Payload{
		Slot: 200,
		Accounts: []payload.Account{
			{Pubkey: userBase.String(), PostTokenBalance: &payload.TokenBalance{Mint: base.String(), Owner: authority.String(), Amount: "BIGINT:10"}},
			{Pubkey: userQuote.String(), PostTokenBalance: &payload.TokenBalance{Mint: quote.String(), Owner: authority.String(), Amount: "BIGINT:30"}},
		},
		Instructions: []payload.Instruction{
			{
				Name: "swap",
				AccountsWithData: []payload.InstructionAccount{
					{Name: "authority", Pubkey: authority.String()},
					{Name: "amm", Pubkey: amm.String()},
					{Name: "userBaseAccount", Pubkey: userBase.String()},
					{Name: "userQuoteAccount", Pubkey: userQuote.String()},
				},
			},
		},
	}
	tx := store.Transaction{TxSig: coretypes.Signature{}, Slot: 200, Payload: marshalPayload(t, p), MainIxType: coretypes.InstructionAmmSwap}

	d := newDecoder(fake)
	if err := d.Index(context.Background(), tx); err != nil {
		t.Fatalf("index: %v", err)
	}

	if rows := fake.BalanceRows(userBase); len(rows) != 1 {
		t.Errorf("got %d base rows, want 1", len(rows))
	}
	if rows := fake.BalanceRows(userQuote); len(rows) != 0 {
		t.Errorf("got %d quote rows, want 0 (mint not in Token table)", len(rows))
	}
}

// If the pair's pubkey isn't in the accounts list at all, the amount is
// treated as 0.
func TestIndex_MissingAccountEntryTreatedAsZero(t *testing.T) {
	fake := storetest.New()
	mint := pk(41)
	vault := pk(42)
	userUnderlying := pk(45)
	authority := pk(46)

	fake.PutToken(store.Token{MintAcct: mint})
	fake.PutVault(store.ConditionalVault{CondVaultAcct: vault, UnderlyingMintAcct: mint})

	p := payload.Payload{
		Slot:     300,
		Accounts: nil, // userUnderlying is absent entirely
		Instructions: []payload.Instruction{
			{
				Name: "redeemConditionalTokensForUnderlyingTokens",
				AccountsWithData: []payload.InstructionAccount{
					{Name: "authority", Pubkey: authority.String()},
					{Name: "vault", Pubkey: vault.String()},
					{Name: "userUnderlyingTokenAccount", Pubkey: userUnderlying.String()},
				},
			},
		},
	}
	tx := store.Transaction{TxSig: coretypes.NewSignature("3yZe7d1tVmgwjWGXXsPXXmXofJ6HVM9Zrrrzfi4Dm28c5TvWDqaSSGfr35fFMqCzukSGxdRqnN95WCQ6SHiNuDhp"), Slot: 300, Payload: marshalPayload(t, p), MainIxType: coretypes.InstructionVaultRedeemConditionalTokens}

	d := newDecoder(fake)
	if err := d.Index(context.Background(), tx); err != nil {
		t.Fatalf("index: %v", err)
	}

	rows := fake.BalanceRows(userUnderlying)
	if len(rows) != 1 || rows[0].Amount.String() != "0" {
		t.Errorf("rows = %+v, want one row with amount 0", rows)
	}
}

// Indexing the same transaction twice leaves the same single row.
func TestIndex_IdempotentReplay(t *testing.T) {
	fake := storetest.New()
	mint := pk(51)
	vault := pk(52)
	userUnderlying := pk(55)
	authority := pk(56)
	txSig := coretypes.NewSignature("3yZe7d1tVmgwjWGXXsPXXmXofJ6HVM9Zrrrzfi4Dm28c5TvWDqaSSGfr35fFMqCzukSGxdRqnN95WCQ6SHiNuDhp")

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
	tx := store.Transaction{TxSig: txSig, Slot: 100, Payload: marshalPayload(t, p), MainIxType: coretypes.InstructionVaultMintConditionalTokens}

	d := newDecoder(fake)
	if err := d.Index(context.Background(), tx); err != nil {
		t.Fatalf("first index: %v", err)
	}
	if err := d.Index(context.Background(), tx); err != nil {
		t.Fatalf("second index: %v", err)
	}

	rows := fake.BalanceRows(userUnderlying)
	if len(rows) != 1 {
		t.Fatalf("got %d rows after replay, want 1", len(rows))
	}
	if rows[0].Amount.String() != "500" || rows[0].Delta.String() != "500" {
		t.Errorf("row = %+v, want amount=500 delta=500", rows[0])
	}
	if deposits := fake.Deposits(); len(deposits) != 2 {
		// recordDeposit has no dedup key in this design (the source
		// treats deposit recording as append-only per user action, same
		// as a real transaction only being replayed by an operator
		// re-running backfill over already-seen rows); note this for
		// the backfill-idempotence discussion rather than asserting a
		// stronger guarantee than the store schema provides.
		t.Logf("got %d deposit rows after replay, want 2 for an append-only deposit log", len(deposits))
	}
}
