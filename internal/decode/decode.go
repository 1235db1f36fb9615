package decode

import (
	"context"
	"errors"
	"fmt"

	"github.com/condwatch/indexer/internal/coretypes"
	"github.com/condwatch/indexer/internal/payload"
	"github.com/condwatch/indexer/internal/reconcile"
	"github.com/condwatch/indexer/internal/store"
	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
)

// Decoder is the transaction decoder's single public operation, index.
type Decoder struct {
	gw  store.Gateway
	rec *reconcile.Reconciler
	log *logrus.Entry
}

// New builds a Decoder over the given Gateway and Reconciler.
func New(gw store.Gateway, rec *reconcile.Reconciler, log *logrus.Entry) *Decoder {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Decoder{gw: gw, rec: rec, log: log.WithField("component", "decode")}
}

// pairTarget is one (token account field name, mint accessor) the
// instruction kind contributes.
type pairTarget struct {
	accountField string
	mintAcct     coretypes.Pubkey
}

// Index parses, classifies, and dispatches one persisted transaction.
// Failures are logged and swallowed: nothing here propagates to the
// caller as fatal, but a non-nil return lets backfill/dispatch record
// the attempt if they wish.
func (d *Decoder) Index(ctx context.Context, tx store.Transaction) error {
	p, err := payload.Parse(tx.Payload)
	if err != nil {
		d.log.WithError(err).WithField("tx_sig", tx.TxSig).Warn("malformed transaction payload")
		return nil
	}
	if d.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		d.log.Debug(spew.Sdump(p))
	}

	names := make([]string, len(p.Instructions))
	for i, ix := range p.Instructions {
		names[i] = ix.Name
	}
	name, cls, ok := classify(names)
	if !ok {
		return nil
	}
	ix, _ := p.FindInstruction(name)

	authorityStr, _ := ix.Account("authority")
	authority, err := coretypes.ParsePubkey(authorityStr)
	if err != nil {
		d.log.WithError(err).WithField("tx_sig", tx.TxSig).Warn("instruction missing a valid authority account")
		return nil
	}

	switch {
	case cls.isVault:
		return d.indexVault(ctx, cls.vaultKind, ix, p, tx, authority)
	case cls.isAmm:
		return d.indexAmm(ctx, cls.ammKind, ix, p, tx, authority)
	default:
		// Classified but not decoded further (placeOrder, cancelOrder,
		// initializeProposal, finalizeProposal).
		return nil
	}
}

// indexVault handles the Vault* instructions: mint, merge, and redeem
// all touch the same three conditional-vault token accounts, so one
// function covers all three account pairs regardless of which of the
// three instructions triggered it.
func (d *Decoder) indexVault(ctx context.Context, kind vaultKind, ix payload.Instruction, p payload.Payload, tx store.Transaction, authority coretypes.Pubkey) error {
	vaultStr, _ := ix.Account("vault")
	vaultAcct, err := coretypes.ParsePubkey(vaultStr)
	if err != nil {
		d.log.WithError(err).WithField("tx_sig", tx.TxSig).Warn("vault instruction missing a valid vault account")
		return nil
	}
	vault, found, err := d.gw.VaultByAcct(ctx, vaultAcct)
	if err != nil {
		return fmt.Errorf("decode: vault lookup: %w", err)
	}
	if !found {
		// Missing vault for a kind that requires it is a hard error for
		// the instruction.
		d.log.WithField("vault_acct", vaultAcct).WithField("tx_sig", tx.TxSig).Error("conditional vault not found, dropping instruction")
		return fmt.Errorf("decode: %w: vault %s", store.ErrNotFound, vaultAcct)
	}

	targets := []pairTarget{
		{"userConditionalOnFinalizeTokenAccount", vault.CondFinalizeTokenMintAcct},
		{"userConditionalOnRevertTokenAccount", vault.CondRevertTokenMintAcct},
		{"userUnderlyingTokenAccount", vault.UnderlyingMintAcct},
	}
	for _, t := range targets {
		tokenAcctStr, hasAcct := ix.Account(t.accountField)
		if !hasAcct {
			continue
		}
		if err := d.processPair(ctx, tokenAcctStr, t.mintAcct, authority, p, tx); err != nil {
			d.log.WithError(err).WithField("tx_sig", tx.TxSig).WithField("field", t.accountField).Warn("failed to process account pair")
		}
	}

	if kind == vaultMint {
		amountStr, _ := ix.Arg("amount")
		if err := d.recordDeposit(ctx, authority, amountStr, vault.UnderlyingMintAcct, tx.TxSig); err != nil {
			d.log.WithError(err).WithField("tx_sig", tx.TxSig).Warn("failed to record user deposit")
		}
	}
	return nil
}

// indexAmm handles the Amm* instructions: swap, addLiquidity, and
// removeLiquidity all resolve their token pairs against the same
// Market row.
func (d *Decoder) indexAmm(ctx context.Context, kind ammKind, ix payload.Instruction, p payload.Payload, tx store.Transaction, authority coretypes.Pubkey) error {
	ammStr, _ := ix.Account("amm")
	ammAcct, err := coretypes.ParsePubkey(ammStr)
	if err != nil {
		d.log.WithError(err).WithField("tx_sig", tx.TxSig).Warn("amm instruction missing a valid amm account")
		return nil
	}
	market, found, err := d.gw.MarketByAcct(ctx, ammAcct)
	if err != nil {
		return fmt.Errorf("decode: market lookup: %w", err)
	}
	if !found {
		d.log.WithField("amm_acct", ammAcct).WithField("tx_sig", tx.TxSig).Error("market not found, dropping instruction")
		return fmt.Errorf("decode: %w: market %s", store.ErrNotFound, ammAcct)
	}

	targets := []pairTarget{
		{"userBaseAccount", market.BaseMintAcct},
		{"userQuoteAccount", market.QuoteMintAcct},
	}
	if kind == ammDeposit || kind == ammWithdraw {
		// lpMint is read from the instruction's own named accounts: a
		// liquidity pool's LP mint isn't part of the Market row itself.
		if lpMintStr, ok := ix.Account("lpMint"); ok {
			lpMint, err := coretypes.ParsePubkey(lpMintStr)
			if err == nil {
				targets = append(targets, pairTarget{"userLpAccount", lpMint})
			}
		}
	}

	for _, t := range targets {
		tokenAcctStr, hasAcct := ix.Account(t.accountField)
		if !hasAcct {
			continue
		}
		if err := d.processPair(ctx, tokenAcctStr, t.mintAcct, authority, p, tx); err != nil {
			d.log.WithError(err).WithField("tx_sig", tx.TxSig).WithField("field", t.accountField).Warn("failed to process account pair")
		}
	}
	return nil
}

// processPair token-gates, extracts the post balance, upserts the
// TokenAccount row, and reconciles for one (token_acct, mint) pair.
func (d *Decoder) processPair(ctx context.Context, tokenAcctStr string, mintAcct coretypes.Pubkey, authority coretypes.Pubkey, p payload.Payload, tx store.Transaction) error {
	tokenAcct, err := coretypes.ParsePubkey(tokenAcctStr)
	if err != nil {
		return fmt.Errorf("parse token acct %q: %w", tokenAcctStr, err)
	}
	exists, err := d.gw.TokenExists(ctx, mintAcct)
	if err != nil {
		return fmt.Errorf("token exists check: %w", err)
	}
	if !exists {
		// Mint absent from the Token table: silently skip this pair.
		return nil
	}

	amount := coretypes.ZeroAmount
	if entry, ok := p.AccountEntry(tokenAcctStr); ok && entry.PostTokenBalance != nil {
		amount, err = coretypes.ParseTypedAmount(entry.PostTokenBalance.Amount)
		if err != nil {
			return fmt.Errorf("parse post token balance: %w", err)
		}
	}

	existing, found, err := d.gw.TokenAccountByAcct(ctx, tokenAcct)
	if err != nil {
		return fmt.Errorf("token account lookup: %w", err)
	}
	if !found {
		_, err := d.gw.UpsertTokenAccount(ctx, store.TokenAccount{
			TokenAcct: tokenAcct,
			MintAcct:  mintAcct,
			OwnerAcct: authority,
			Amount:    amount,
			Status:    coretypes.StatusWatching,
		})
		if err != nil {
			return fmt.Errorf("upsert token account: %w", err)
		}
	} else if existing.Status != coretypes.StatusWatching {
		if err := d.gw.SetTokenAccountStatus(ctx, tokenAcct, coretypes.StatusWatching); err != nil {
			return fmt.Errorf("ensure watching status: %w", err)
		}
	}

	if err := d.rec.Reconcile(ctx, tokenAcct, mintAcct, authority, amount, tx.Slot, tx.TxSig); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	return nil
}

var errBadArg = errors.New("decode: missing or unparseable instruction argument")
