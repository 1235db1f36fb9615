// Package storetest provides an in-process Gateway used by the core's
// package tests, in place of a live Postgres instance.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/condwatch/indexer/internal/coretypes"
	"github.com/condwatch/indexer/internal/store"
)

type balanceKey struct {
	tokenAcct coretypes.Pubkey
	slot      uint64
}

// Fake is a minimal in-memory Gateway: enough row semantics to exercise
// the reconciler, decoder, dispatcher, and backfill job without a
// database. Not safe to use as a faithful storage engine beyond tests.
type Fake struct {
	mu sync.Mutex

	balances      map[balanceKey]store.BalanceHistory
	tokenAccounts map[coretypes.Pubkey]store.TokenAccount
	vaults        map[coretypes.Pubkey]store.ConditionalVault
	markets       map[coretypes.Pubkey]store.Market
	tokens        map[coretypes.Pubkey]store.Token
	transactions  map[string]store.Transaction
	deposits      []store.UserDeposit
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		balances:      make(map[balanceKey]store.BalanceHistory),
		tokenAccounts: make(map[coretypes.Pubkey]store.TokenAccount),
		vaults:        make(map[coretypes.Pubkey]store.ConditionalVault),
		markets:       make(map[coretypes.Pubkey]store.Market),
		tokens:        make(map[coretypes.Pubkey]store.Token),
		transactions:  make(map[string]store.Transaction),
	}
}

// PutVault, PutMarket, PutToken, PutTransaction seed read-only reference
// rows the way an external ingester would have already written them.
func (f *Fake) PutVault(v store.ConditionalVault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vaults[v.CondVaultAcct] = v
}

func (f *Fake) PutMarket(m store.Market) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets[m.MarketAcct] = m
}

func (f *Fake) PutToken(t store.Token) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[t.MintAcct] = t
}

func (f *Fake) PutTransaction(tx store.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactions[tx.TxSig.String()] = tx
}

// BalanceRows returns every row for a token account, sorted by slot, for
// assertions in tests.
func (f *Fake) BalanceRows(tokenAcct coretypes.Pubkey) []store.BalanceHistory {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.BalanceHistory
	for k, v := range f.balances {
		if k.tokenAcct == tokenAcct {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Deposits returns every recorded deposit, in insertion order.
func (f *Fake) Deposits() []store.UserDeposit {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.UserDeposit, len(f.deposits))
	copy(out, f.deposits)
	return out
}

func (f *Fake) LatestAmountBeforeOrAt(_ context.Context, tokenAcct coretypes.Pubkey, slot uint64) (coretypes.Amount, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var (
		best    store.BalanceHistory
		found   bool
		bestSlt uint64
	)
	for k, v := range f.balances {
		if k.tokenAcct != tokenAcct || k.slot > slot {
			continue
		}
		if !found || k.slot > bestSlt {
			best, found, bestSlt = v, true, k.slot
		}
	}
	if !found {
		return coretypes.ZeroAmount, false, nil
	}
	return best.Amount, true, nil
}

func (f *Fake) BalanceRowAt(_ context.Context, tokenAcct coretypes.Pubkey, slot uint64) (store.BalanceHistory, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.balances[balanceKey{tokenAcct, slot}]
	return row, ok, nil
}

func (f *Fake) InsertBalanceRow(_ context.Context, row store.BalanceHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := balanceKey{row.TokenAcct, row.Slot}
	if _, exists := f.balances[key]; exists {
		return fmt.Errorf("%w: (%s, %d)", store.ErrDuplicateKey, row.TokenAcct, row.Slot)
	}
	f.balances[key] = row
	return nil
}

func (f *Fake) SetBalanceRowTxSig(_ context.Context, tokenAcct coretypes.Pubkey, slot uint64, txSig coretypes.Signature) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := balanceKey{tokenAcct, slot}
	row, ok := f.balances[key]
	if !ok {
		return fmt.Errorf("%w: (%s, %d)", store.ErrNotFound, tokenAcct, slot)
	}
	if row.TxSig.Valid() {
		return nil
	}
	row.TxSig = txSig
	f.balances[key] = row
	return nil
}

func (f *Fake) UpsertTokenAccount(_ context.Context, row store.TokenAccount) (store.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.tokenAccounts[row.TokenAcct]; exists {
		return store.Updated, nil
	}
	f.tokenAccounts[row.TokenAcct] = row
	return store.Created, nil
}

func (f *Fake) SetTokenAccountStatus(_ context.Context, tokenAcct coretypes.Pubkey, status coretypes.TokenAcctStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ta, ok := f.tokenAccounts[tokenAcct]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, tokenAcct)
	}
	ta.Status = status
	f.tokenAccounts[tokenAcct] = ta
	return nil
}

func (f *Fake) SetTokenAccountAmount(_ context.Context, tokenAcct coretypes.Pubkey, amount coretypes.Amount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ta, ok := f.tokenAccounts[tokenAcct]
	if !ok {
		// Like PGGateway's UPDATE, a missing row is not an error.
		return nil
	}
	ta.Amount = amount
	f.tokenAccounts[tokenAcct] = ta
	return nil
}

func (f *Fake) TokenAccountByAcct(_ context.Context, tokenAcct coretypes.Pubkey) (store.TokenAccount, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ta, ok := f.tokenAccounts[tokenAcct]
	return ta, ok, nil
}

func (f *Fake) TokenAccountsWhereStatus(_ context.Context, status coretypes.TokenAcctStatus) ([]store.TokenAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.TokenAccount
	for _, ta := range f.tokenAccounts {
		if ta.Status == status {
			out = append(out, ta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenAcct.String() < out[j].TokenAcct.String() })
	return out, nil
}

func (f *Fake) VaultByAcct(_ context.Context, vaultAcct coretypes.Pubkey) (store.ConditionalVault, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vaults[vaultAcct]
	return v, ok, nil
}

func (f *Fake) MarketByAcct(_ context.Context, marketAcct coretypes.Pubkey) (store.Market, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.markets[marketAcct]
	return m, ok, nil
}

func (f *Fake) TokenExists(_ context.Context, mintAcct coretypes.Pubkey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tokens[mintAcct]
	return ok, nil
}

func (f *Fake) TransactionBySig(_ context.Context, txSig coretypes.Signature) (store.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.transactions[txSig.String()]
	return tx, ok, nil
}

func (f *Fake) RecentTransactions(_ context.Context, blockTimeAfter int64) ([]store.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Transaction
	for _, tx := range f.transactions {
		if tx.MainIxType == "" {
			continue
		}
		if tx.BlockTime.Unix() < blockTimeAfter {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockTime.Before(out[j].BlockTime) })
	return out, nil
}

func (f *Fake) InsertUserDeposit(_ context.Context, row store.UserDeposit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deposits = append(f.deposits, row)
	return nil
}

var _ store.Gateway = (*Fake)(nil)
