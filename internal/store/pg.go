package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/condwatch/indexer/internal/coretypes"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// PGGateway is the Postgres-backed Gateway, a pgxpool.Pool wrapped with
// typed reads/writes over the balance-history, token-account, vault,
// market, token, transaction, and deposit tables. It owns no in-memory
// state; every operation round-trips to the pool.
type PGGateway struct {
	pool *pgxpool.Pool
}

// NewPGGateway connects a pool to databaseURL.
func NewPGGateway(ctx context.Context, databaseURL string) (*PGGateway, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect pool: %w", err)
	}
	return &PGGateway{pool: pool}, nil
}

// Close releases the pool.
func (g *PGGateway) Close() { g.pool.Close() }

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w", ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, pgErr.ConstraintName)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func (g *PGGateway) LatestAmountBeforeOrAt(ctx context.Context, tokenAcct coretypes.Pubkey, slot uint64) (coretypes.Amount, bool, error) {
	var amt decimal.Decimal
	err := g.pool.QueryRow(ctx, `
		SELECT amount FROM balance_history
		WHERE token_acct = $1 AND slot <= $2
		ORDER BY slot DESC LIMIT 1
	`, tokenAcct.String(), int64(slot)).Scan(&amt)
	if errors.Is(err, pgx.ErrNoRows) {
		return coretypes.ZeroAmount, false, nil
	}
	if err != nil {
		return coretypes.ZeroAmount, false, mapErr(err)
	}
	return coretypes.AmountFromDecimal(amt), true, nil
}

func (g *PGGateway) BalanceRowAt(ctx context.Context, tokenAcct coretypes.Pubkey, slot uint64) (BalanceHistory, bool, error) {
	var (
		row       BalanceHistory
		amt, del  decimal.Decimal
		mint, own string
		txSig     *string
		tok       string
	)
	err := g.pool.QueryRow(ctx, `
		SELECT token_acct, mint_acct, owner_acct, amount, delta, slot, tx_sig, created_at
		FROM balance_history WHERE token_acct = $1 AND slot = $2
	`, tokenAcct.String(), int64(slot)).Scan(&tok, &mint, &own, &amt, &del, &row.Slot, &txSig, &row.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BalanceHistory{}, false, nil
	}
	if err != nil {
		return BalanceHistory{}, false, mapErr(err)
	}
	row.TokenAcct, err = coretypes.ParsePubkey(tok)
	if err != nil {
		return BalanceHistory{}, false, err
	}
	if row.MintAcct, err = coretypes.ParsePubkey(mint); err != nil {
		return BalanceHistory{}, false, err
	}
	if row.OwnerAcct, err = coretypes.ParsePubkey(own); err != nil {
		return BalanceHistory{}, false, err
	}
	row.Amount = coretypes.AmountFromDecimal(amt)
	row.Delta = coretypes.DeltaFromDecimal(del)
	if txSig != nil {
		row.TxSig = coretypes.NewSignature(*txSig)
	}
	return row, true, nil
}

func (g *PGGateway) InsertBalanceRow(ctx context.Context, row BalanceHistory) error {
	var txSig interface{}
	if row.TxSig.Valid() {
		txSig = row.TxSig.String()
	}
	_, err := g.pool.Exec(ctx, `
		INSERT INTO balance_history (token_acct, mint_acct, owner_acct, amount, delta, slot, tx_sig, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, row.TokenAcct.String(), row.MintAcct.String(), row.OwnerAcct.String(),
		row.Amount.Decimal(), row.Delta.Decimal(), int64(row.Slot), txSig, row.CreatedAt)
	return mapErr(err)
}

func (g *PGGateway) SetBalanceRowTxSig(ctx context.Context, tokenAcct coretypes.Pubkey, slot uint64, txSig coretypes.Signature) error {
	_, err := g.pool.Exec(ctx, `
		UPDATE balance_history SET tx_sig = $1
		WHERE token_acct = $2 AND slot = $3 AND tx_sig IS NULL
	`, txSig.String(), tokenAcct.String(), int64(slot))
	return mapErr(err)
}

func (g *PGGateway) UpsertTokenAccount(ctx context.Context, row TokenAccount) (UpsertResult, error) {
	tag, err := g.pool.Exec(ctx, `
		INSERT INTO token_accts (token_acct, mint_acct, owner_acct, amount, updated_at, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (token_acct) DO NOTHING
	`, row.TokenAcct.String(), row.MintAcct.String(), row.OwnerAcct.String(), row.Amount.Decimal(), row.UpdatedAt, string(row.Status))
	if err != nil {
		return 0, mapErr(err)
	}
	if tag.RowsAffected() == 1 {
		return Created, nil
	}
	return Updated, nil
}

func (g *PGGateway) SetTokenAccountStatus(ctx context.Context, tokenAcct coretypes.Pubkey, status coretypes.TokenAcctStatus) error {
	_, err := g.pool.Exec(ctx, `UPDATE token_accts SET status = $1 WHERE token_acct = $2`, string(status), tokenAcct.String())
	return mapErr(err)
}

func (g *PGGateway) SetTokenAccountAmount(ctx context.Context, tokenAcct coretypes.Pubkey, amount coretypes.Amount) error {
	_, err := g.pool.Exec(ctx, `
		UPDATE token_accts SET amount = $1, updated_at = now() WHERE token_acct = $2
	`, amount.Decimal(), tokenAcct.String())
	return mapErr(err)
}

func (g *PGGateway) scanTokenAccount(row pgx.Row) (TokenAccount, error) {
	var (
		ta                   TokenAccount
		tok, mint, own       string
		amt                  decimal.Decimal
		status               string
	)
	if err := row.Scan(&tok, &mint, &own, &amt, &ta.UpdatedAt, &status); err != nil {
		return TokenAccount{}, err
	}
	var err error
	if ta.TokenAcct, err = coretypes.ParsePubkey(tok); err != nil {
		return TokenAccount{}, err
	}
	if ta.MintAcct, err = coretypes.ParsePubkey(mint); err != nil {
		return TokenAccount{}, err
	}
	if ta.OwnerAcct, err = coretypes.ParsePubkey(own); err != nil {
		return TokenAccount{}, err
	}
	ta.Amount = coretypes.AmountFromDecimal(amt)
	if err := ta.Status.Scan(status); err != nil {
		return TokenAccount{}, err
	}
	return ta, nil
}

func (g *PGGateway) TokenAccountByAcct(ctx context.Context, tokenAcct coretypes.Pubkey) (TokenAccount, bool, error) {
	row := g.pool.QueryRow(ctx, `
		SELECT token_acct, mint_acct, owner_acct, amount, updated_at, status
		FROM token_accts WHERE token_acct = $1
	`, tokenAcct.String())
	ta, err := g.scanTokenAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return TokenAccount{}, false, nil
	}
	if err != nil {
		return TokenAccount{}, false, mapErr(err)
	}
	return ta, true, nil
}

func (g *PGGateway) TokenAccountsWhereStatus(ctx context.Context, status coretypes.TokenAcctStatus) ([]TokenAccount, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT token_acct, mint_acct, owner_acct, amount, updated_at, status
		FROM token_accts WHERE status = $1
	`, string(status))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []TokenAccount
	for rows.Next() {
		ta, err := g.scanTokenAccount(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, ta)
	}
	return out, mapErr(rows.Err())
}

func (g *PGGateway) VaultByAcct(ctx context.Context, vaultAcct coretypes.Pubkey) (ConditionalVault, bool, error) {
	var (
		v                                                      ConditionalVault
		acct, underlying, finalize, revert, settlementAuthority string
	)
	err := g.pool.QueryRow(ctx, `
		SELECT cond_vault_acct, underlying_mint_acct, cond_finalize_token_mint_acct,
		       cond_revert_token_mint_acct, settlement_authority, status, nonce
		FROM conditional_vaults WHERE cond_vault_acct = $1
	`, vaultAcct.String()).Scan(&acct, &underlying, &finalize, &revert, &settlementAuthority, &v.Status, &v.Nonce)
	if errors.Is(err, pgx.ErrNoRows) {
		return ConditionalVault{}, false, nil
	}
	if err != nil {
		return ConditionalVault{}, false, mapErr(err)
	}
	var perr error
	if v.CondVaultAcct, perr = coretypes.ParsePubkey(acct); perr != nil {
		return ConditionalVault{}, false, perr
	}
	if v.UnderlyingMintAcct, perr = coretypes.ParsePubkey(underlying); perr != nil {
		return ConditionalVault{}, false, perr
	}
	if v.CondFinalizeTokenMintAcct, perr = coretypes.ParsePubkey(finalize); perr != nil {
		return ConditionalVault{}, false, perr
	}
	if v.CondRevertTokenMintAcct, perr = coretypes.ParsePubkey(revert); perr != nil {
		return ConditionalVault{}, false, perr
	}
	if v.SettlementAuthority, perr = coretypes.ParsePubkey(settlementAuthority); perr != nil {
		return ConditionalVault{}, false, perr
	}
	return v, true, nil
}

func (g *PGGateway) MarketByAcct(ctx context.Context, marketAcct coretypes.Pubkey) (Market, bool, error) {
	var (
		m                            Market
		acctStr, baseStr, quoteStr   string
		createTxSig, proposal        *string
	)
	err := g.pool.QueryRow(ctx, `
		SELECT market_acct, market_type, base_mint_acct, quote_mint_acct, create_tx_sig, proposal_acct
		FROM markets WHERE market_acct = $1
	`, marketAcct.String()).Scan(&acctStr, &m.MarketType, &baseStr, &quoteStr, &createTxSig, &proposal)
	if errors.Is(err, pgx.ErrNoRows) {
		return Market{}, false, nil
	}
	if err != nil {
		return Market{}, false, mapErr(err)
	}
	var perr error
	if m.MarketAcct, perr = coretypes.ParsePubkey(acctStr); perr != nil {
		return Market{}, false, perr
	}
	if m.BaseMintAcct, perr = coretypes.ParsePubkey(baseStr); perr != nil {
		return Market{}, false, perr
	}
	if m.QuoteMintAcct, perr = coretypes.ParsePubkey(quoteStr); perr != nil {
		return Market{}, false, perr
	}
	if createTxSig != nil {
		m.CreateTxSig = coretypes.NewSignature(*createTxSig)
	}
	if proposal != nil {
		if m.ProposalAcct, perr = coretypes.ParsePubkey(*proposal); perr != nil {
			return Market{}, false, perr
		}
	}
	return m, true, nil
}

func (g *PGGateway) TokenExists(ctx context.Context, mintAcct coretypes.Pubkey) (bool, error) {
	var exists bool
	err := g.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tokens WHERE mint_acct = $1)`, mintAcct.String()).Scan(&exists)
	if err != nil {
		return false, mapErr(err)
	}
	return exists, nil
}

func (g *PGGateway) TransactionBySig(ctx context.Context, txSig coretypes.Signature) (Transaction, bool, error) {
	var (
		tx         Transaction
		sig        string
		mainIxType *string
	)
	err := g.pool.QueryRow(ctx, `
		SELECT tx_sig, slot, block_time, failed, payload, serializer_logic_version, main_ix_type
		FROM transactions WHERE tx_sig = $1
	`, txSig.String()).Scan(&sig, &tx.Slot, &tx.BlockTime, &tx.Failed, &tx.Payload, &tx.SerializerLogicVersion, &mainIxType)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, false, nil
	}
	if err != nil {
		return Transaction{}, false, mapErr(err)
	}
	tx.TxSig = coretypes.NewSignature(sig)
	if mainIxType != nil {
		tx.MainIxType = coretypes.InstructionType(*mainIxType)
	}
	return tx, true, nil
}

func (g *PGGateway) RecentTransactions(ctx context.Context, blockTimeAfter int64) ([]Transaction, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT tx_sig, slot, block_time, failed, payload, serializer_logic_version, main_ix_type
		FROM transactions
		WHERE main_ix_type IS NOT NULL AND block_time >= to_timestamp($1)
		ORDER BY block_time ASC
	`, blockTimeAfter)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var (
			tx         Transaction
			sig        string
			mainIxType *string
		)
		if err := rows.Scan(&sig, &tx.Slot, &tx.BlockTime, &tx.Failed, &tx.Payload, &tx.SerializerLogicVersion, &mainIxType); err != nil {
			return nil, mapErr(err)
		}
		tx.TxSig = coretypes.NewSignature(sig)
		if mainIxType != nil {
			tx.MainIxType = coretypes.InstructionType(*mainIxType)
		}
		out = append(out, tx)
	}
	return out, mapErr(rows.Err())
}

func (g *PGGateway) InsertUserDeposit(ctx context.Context, row UserDeposit) error {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO user_deposits (user_acct, token_amount, mint_acct, tx_sig, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, row.UserAcct.String(), row.TokenAmount.Decimal(), row.MintAcct.String(), row.TxSig.String(), row.CreatedAt)
	return mapErr(err)
}

var _ Gateway = (*PGGateway)(nil)
