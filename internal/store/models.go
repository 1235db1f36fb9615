package store

import (
	"time"

	"github.com/condwatch/indexer/internal/coretypes"
)

// TokenAccount is the identity+attributes record for one watched SPL
// token account. Its Amount is always the amount of the highest-slot
// BalanceHistory row for this key; that invariant is maintained by the
// reconciler, never by callers.
type TokenAccount struct {
	TokenAcct coretypes.Pubkey
	MintAcct  coretypes.Pubkey
	OwnerAcct coretypes.Pubkey
	Amount    coretypes.Amount
	UpdatedAt time.Time
	Status    coretypes.TokenAcctStatus
}

// BalanceHistory is one append-only row, identified by
// (TokenAcct, Slot, TxSig). TxSig may be absent until a later reconcile
// attaches it.
type BalanceHistory struct {
	TokenAcct coretypes.Pubkey
	MintAcct  coretypes.Pubkey
	OwnerAcct coretypes.Pubkey
	Amount    coretypes.Amount
	Slot      uint64
	Delta     coretypes.Delta
	TxSig     coretypes.Signature
	CreatedAt time.Time
}

// ConditionalVault is read-only to the core; written by an external
// ingester.
type ConditionalVault struct {
	CondVaultAcct              coretypes.Pubkey
	UnderlyingMintAcct         coretypes.Pubkey
	CondFinalizeTokenMintAcct  coretypes.Pubkey
	CondRevertTokenMintAcct    coretypes.Pubkey
	SettlementAuthority        coretypes.Pubkey
	Status                     string
	Nonce                      int64
}

// Market is read-only to the core; written by an external ingester.
type Market struct {
	MarketAcct   coretypes.Pubkey
	MarketType   string
	BaseMintAcct coretypes.Pubkey
	QuoteMintAcct coretypes.Pubkey
	CreateTxSig  coretypes.Signature
	ProposalAcct coretypes.Pubkey
}

// Token gates whether the core tracks balance rows for a mint.
type Token struct {
	MintAcct coretypes.Pubkey
	Decimals uint8
	Supply   coretypes.Amount
	Symbol   string
	Name     string
}

// Transaction is the persisted payload record the decoder parses.
type Transaction struct {
	TxSig                  coretypes.Signature
	Slot                   uint64
	BlockTime              time.Time
	Failed                 bool
	Payload                string
	SerializerLogicVersion int16
	MainIxType             coretypes.InstructionType
}

// UserDeposit is written by the decoder on mint-conditional instructions.
type UserDeposit struct {
	UserAcct    coretypes.Pubkey
	TokenAmount coretypes.Amount
	MintAcct    coretypes.Pubkey
	TxSig       coretypes.Signature
	CreatedAt   time.Time
}
