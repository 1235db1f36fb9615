// Package reconcile implements the per-slot balance-history algorithm:
// an upsert-by-(token_acct,slot) with delta computation and
// late-arriving signature attachment, commutative regardless of whether
// the chain stream or the transaction decoder observes a slot first.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/condwatch/indexer/internal/coretypes"
	"github.com/condwatch/indexer/internal/store"
	"github.com/sirupsen/logrus"
)

// Reconciler owns the single public Reconcile operation.
type Reconciler struct {
	gw  store.Gateway
	log *logrus.Entry
}

// New builds a Reconciler over the given Gateway.
func New(gw store.Gateway, log *logrus.Entry) *Reconciler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reconciler{gw: gw, log: log.WithField("component", "reconcile")}
}

// Reconcile applies one observed (token_acct, slot, amount) to the
// store: compute the signed delta against the highest-slot amount seen
// so far, then upsert the balance-history row for this slot. txSig is
// the zero Signature when the observation did not arrive with a
// transaction attached (the RPC stream case).
func (r *Reconciler) Reconcile(ctx context.Context, tokenAcct, mint, owner coretypes.Pubkey, newAmount coretypes.Amount, slot uint64, txSig coretypes.Signature) error {
	previous, had, err := r.gw.LatestAmountBeforeOrAt(ctx, tokenAcct, slot)
	if err != nil {
		return fmt.Errorf("reconcile: latest amount: %w", err)
	}
	if !had {
		previous = coretypes.ZeroAmount
	}
	delta := newAmount.Sub(previous)

	if err := r.applyRow(ctx, tokenAcct, mint, owner, newAmount, delta, slot, txSig); err != nil {
		return err
	}

	if err := r.gw.SetTokenAccountAmount(ctx, tokenAcct, newAmount); err != nil {
		return fmt.Errorf("reconcile: set token account amount: %w", err)
	}
	return nil
}

// applyRow finds the row for this slot, inserts it if absent, or
// attaches a late-arriving signature if present, with one retry if a
// concurrent first-write races us to the insert (the store's uniqueness
// on (token_acct, slot) is the tie-break; the loser falls back to the
// attach-or-no-op branch).
func (r *Reconciler) applyRow(ctx context.Context, tokenAcct, mint, owner coretypes.Pubkey, amount coretypes.Amount, delta coretypes.Delta, slot uint64, txSig coretypes.Signature) error {
	existing, found, err := r.gw.BalanceRowAt(ctx, tokenAcct, slot)
	if err != nil {
		return fmt.Errorf("reconcile: balance row at slot: %w", err)
	}

	if found {
		return r.reconcileExisting(ctx, tokenAcct, slot, existing, txSig)
	}

	row := store.BalanceHistory{
		TokenAcct: tokenAcct,
		MintAcct:  mint,
		OwnerAcct: owner,
		Amount:    amount,
		Delta:     delta,
		Slot:      slot,
		TxSig:     txSig,
		CreatedAt: time.Now(),
	}
	err = r.gw.InsertBalanceRow(ctx, row)
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrDuplicateKey) {
		// Lost the race to insert the first-write; the winner's row is
		// now visible. Fall back to attach-or-no-op.
		existing, found, lookupErr := r.gw.BalanceRowAt(ctx, tokenAcct, slot)
		if lookupErr != nil {
			return fmt.Errorf("reconcile: balance row at slot after duplicate: %w", lookupErr)
		}
		if !found {
			return fmt.Errorf("reconcile: duplicate key reported but row not found for (%s, %d)", tokenAcct, slot)
		}
		return r.reconcileExisting(ctx, tokenAcct, slot, existing, txSig)
	}
	return fmt.Errorf("reconcile: insert balance row: %w", err)
}

// reconcileExisting handles a row that already exists for this slot:
// attach a late-arriving signature, or no-op if the row is already fully
// recorded. amount is never overwritten here.
func (r *Reconciler) reconcileExisting(ctx context.Context, tokenAcct coretypes.Pubkey, slot uint64, existing store.BalanceHistory, txSig coretypes.Signature) error {
	if existing.TxSig.Valid() {
		// Already fully recorded for this slot; this is a no-op.
		return nil
	}
	if !txSig.Valid() {
		// Both the existing row and this observation lack a signature
		// (two stream updates racing, or a decoder call with no sig);
		// nothing to attach.
		return nil
	}
	if err := r.gw.SetBalanceRowTxSig(ctx, tokenAcct, slot, txSig); err != nil {
		return fmt.Errorf("reconcile: attach tx_sig: %w", err)
	}
	r.log.WithFields(logrus.Fields{"token_acct": tokenAcct, "slot": slot, "tx_sig": txSig}).Debug("attached late-arriving signature")
	return nil
}
