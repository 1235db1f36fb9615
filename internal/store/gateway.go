package store

import (
	"context"

	"github.com/condwatch/indexer/internal/coretypes"
)

// UpsertResult reports whether Gateway.UpsertTokenAccount created a new
// row or found one already present.
type UpsertResult int

const (
	Created UpsertResult = iota
	Updated
)

// Gateway is the typed store surface the core depends on. It is
// implemented by *PGGateway against Postgres and by
// storetest.Fake in package tests; every other component takes a Gateway,
// never a concrete pgx type, so it can run against either.
type Gateway interface {
	LatestAmountBeforeOrAt(ctx context.Context, tokenAcct coretypes.Pubkey, slot uint64) (coretypes.Amount, bool, error)
	BalanceRowAt(ctx context.Context, tokenAcct coretypes.Pubkey, slot uint64) (BalanceHistory, bool, error)
	InsertBalanceRow(ctx context.Context, row BalanceHistory) error
	SetBalanceRowTxSig(ctx context.Context, tokenAcct coretypes.Pubkey, slot uint64, txSig coretypes.Signature) error

	UpsertTokenAccount(ctx context.Context, row TokenAccount) (UpsertResult, error)
	SetTokenAccountStatus(ctx context.Context, tokenAcct coretypes.Pubkey, status coretypes.TokenAcctStatus) error
	SetTokenAccountAmount(ctx context.Context, tokenAcct coretypes.Pubkey, amount coretypes.Amount) error
	TokenAccountByAcct(ctx context.Context, tokenAcct coretypes.Pubkey) (TokenAccount, bool, error)
	TokenAccountsWhereStatus(ctx context.Context, status coretypes.TokenAcctStatus) ([]TokenAccount, error)

	VaultByAcct(ctx context.Context, vaultAcct coretypes.Pubkey) (ConditionalVault, bool, error)
	MarketByAcct(ctx context.Context, marketAcct coretypes.Pubkey) (Market, bool, error)
	TokenExists(ctx context.Context, mintAcct coretypes.Pubkey) (bool, error)
	TransactionBySig(ctx context.Context, txSig coretypes.Signature) (Transaction, bool, error)
	RecentTransactions(ctx context.Context, blockTimeAfter int64) ([]Transaction, error)

	InsertUserDeposit(ctx context.Context, row UserDeposit) error
}
