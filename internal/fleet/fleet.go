// Package fleet is the subscription fleet: one long-lived task per
// watched token account, reconciling its initial balance and then
// streaming chain updates into the reconciler.
package fleet

import (
	"context"
	"sync"

	"github.com/condwatch/indexer/internal/chain"
	"github.com/condwatch/indexer/internal/coretypes"
	"github.com/condwatch/indexer/internal/reconcile"
	"github.com/condwatch/indexer/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ChainReader is the unary subset of chain.Client the fleet needs.
// Satisfied by *chain.Client; package tests substitute a stub.
type ChainReader interface {
	GetTokenAccount(ctx context.Context, account coretypes.Pubkey) (chain.TokenAccountInfo, bool, error)
	RecentSignatures(ctx context.Context, account coretypes.Pubkey, limit int) ([]chain.SignatureInfo, error)
}

// Subscriber is the pubsub subset of chain.PubsubSession the fleet needs.
// Satisfied by *chain.PubsubSession; package tests substitute a stub.
type Subscriber interface {
	AccountSubscribe(ctx context.Context, account coretypes.Pubkey, ch chan<- chain.AccountUpdate) (chain.Subscription, error)
}

// Fleet owns the set of currently-running per-account tasks. Spawn is
// idempotent: a token account already being watched is a no-op, so a
// redundant Watching→Watching notification never double-spawns.
type Fleet struct {
	gw     store.Gateway
	chain  ChainReader
	pubsub Subscriber
	rec    *reconcile.Reconciler
	log    *logrus.Entry

	mu     sync.Mutex
	active map[coretypes.Pubkey]struct{}
}

// New builds a Fleet. pubsub is a single shared session: PubsubSession
// already multiplexes many AccountSubscribe calls over one connection,
// so per-account tasks do not each dial their own websocket.
func New(gw store.Gateway, chainClient ChainReader, pubsub Subscriber, rec *reconcile.Reconciler, log *logrus.Entry) *Fleet {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Fleet{
		gw:     gw,
		chain:  chainClient,
		pubsub: pubsub,
		rec:    rec,
		log:    log.WithField("component", "fleet"),
		active: make(map[coretypes.Pubkey]struct{}),
	}
}

// Spawn starts watching tokenAcct if it isn't already being watched.
// ctx governs the lifetime of the task; callers typically pass the
// process-wide shutdown context.
func (f *Fleet) Spawn(ctx context.Context, tokenAcct coretypes.Pubkey) {
	f.mu.Lock()
	if _, already := f.active[tokenAcct]; already {
		f.mu.Unlock()
		return
	}
	f.active[tokenAcct] = struct{}{}
	f.mu.Unlock()

	taskID := uuid.New().String()
	go func() {
		defer func() {
			f.mu.Lock()
			delete(f.active, tokenAcct)
			f.mu.Unlock()
		}()
		f.run(ctx, tokenAcct, taskID)
	}()
}

// ActiveCount reports how many per-account tasks are currently running;
// exposed for tests and operational metrics.
func (f *Fleet) ActiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}

// run drives one watched account's lifecycle: initial reconcile, then
// subscribe and stream updates until the subscription ends or the
// context is cancelled.
func (f *Fleet) run(ctx context.Context, tokenAcct coretypes.Pubkey, taskID string) {
	log := f.log.WithFields(logrus.Fields{"token_acct": tokenAcct, "task": taskID})

	ta, found, err := f.gw.TokenAccountByAcct(ctx, tokenAcct)
	if err != nil || !found {
		log.WithError(err).Warn("token account not found at fleet startup, exiting task")
		return
	}

	if err := f.initialReconcile(ctx, ta, log); err != nil {
		log.WithError(err).Warn("initial reconcile failed, exiting task")
		return
	}

	updates := make(chan chain.AccountUpdate, 64)
	sub, err := f.pubsub.AccountSubscribe(ctx, tokenAcct, updates)
	if err != nil {
		// Subscription failure: log and exit; status stays Watching so
		// the notification path re-enrols later.
		log.WithError(err).Warn("account subscribe failed, exiting task")
		return
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				// Stream closed: normal termination.
				return
			}
			if update.Binary {
				log.WithField("slot", update.Slot).Debug("ignoring binary/legacy account update")
				continue
			}
			amount, err := coretypes.ParseAmount(update.Amount)
			if err != nil {
				log.WithError(err).Warn("malformed account update amount")
				continue
			}
			mint, err := coretypes.ParsePubkey(update.Mint)
			if err != nil {
				log.WithError(err).Warn("malformed account update mint")
				continue
			}
			owner, err := coretypes.ParsePubkey(update.Owner)
			if err != nil {
				log.WithError(err).Warn("malformed account update owner")
				continue
			}
			if err := f.rec.Reconcile(ctx, tokenAcct, mint, owner, amount, update.Slot, coretypes.Signature{}); err != nil {
				log.WithError(err).Warn("reconcile failed for stream update")
			}
		case err := <-sub.Err():
			if err != nil {
				log.WithError(err).Warn("pubsub transport error, exiting task")
			}
			return
		}
	}
}

// initialReconcile reconciles the account's on-chain balance against the
// last-known TokenAccount.Amount before the live subscription starts, so
// any change that happened while the account was unwatched is recorded.
func (f *Fleet) initialReconcile(ctx context.Context, ta store.TokenAccount, log *logrus.Entry) error {
	info, found, err := f.chain.GetTokenAccount(ctx, ta.TokenAcct)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	chainAmount, err := coretypes.ParseAmount(info.Amount)
	if err != nil {
		return err
	}
	if chainAmount.Equal(ta.Amount) {
		return nil
	}

	var txSig coretypes.Signature
	slot := info.Slot
	sigs, err := f.chain.RecentSignatures(ctx, ta.TokenAcct, 1)
	if err != nil {
		log.WithError(err).Debug("recent signatures lookup failed, reconciling without tx_sig")
	} else if len(sigs) > 0 {
		// Prefer the signature's own slot over the getAccountInfo
		// context slot: the balance-history row this reconcile produces
		// should key on the slot the signature actually landed in, so a
		// later decoder pass for the same signature finds the same row
		// instead of inserting a second one at the read's slot.
		slot = sigs[0].Slot
		if storedTx, found, err := f.gw.TransactionBySig(ctx, coretypes.NewSignature(sigs[0].Signature)); err == nil && found {
			txSig = storedTx.TxSig
		}
	}

	return f.rec.Reconcile(ctx, ta.TokenAcct, ta.MintAcct, ta.OwnerAcct, chainAmount, slot, txSig)
}
