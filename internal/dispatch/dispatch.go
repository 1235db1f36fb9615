// Package dispatch is the notification dispatcher: it listens to the
// three database channels and routes each notification to the
// subscription fleet or the transaction decoder. The dispatcher itself
// never blocks on a handler.
package dispatch

import (
	"context"

	"github.com/condwatch/indexer/internal/coretypes"
	"github.com/condwatch/indexer/internal/store"
	"github.com/sirupsen/logrus"
)

// Spawner is the fleet capability the dispatcher drives; satisfied by
// *fleet.Fleet.
type Spawner interface {
	Spawn(ctx context.Context, tokenAcct coretypes.Pubkey)
}

// Indexer is the decoder capability the dispatcher drives; satisfied by
// *decode.Decoder.
type Indexer interface {
	Index(ctx context.Context, tx store.Transaction) error
}

// Listener is the notification source; satisfied by *store.Listener.
type Listener interface {
	Next(ctx context.Context) (store.Notification, error)
}

// Dispatcher routes store notifications.
type Dispatcher struct {
	gw     store.Gateway
	fleet  Spawner
	decode Indexer
	log    *logrus.Entry
}

// New builds a Dispatcher.
func New(gw store.Gateway, fleet Spawner, decoder Indexer, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{gw: gw, fleet: fleet, decode: decoder, log: log.WithField("component", "dispatch")}
}

// Run reads notifications from l until ctx is cancelled or l.Next
// errors. Each notification is handled on its own goroutine so a slow
// handler never blocks delivery of the next one.
func (d *Dispatcher) Run(ctx context.Context, l Listener) error {
	for {
		note, err := l.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go d.handle(ctx, note)
	}
}

func (d *Dispatcher) handle(ctx context.Context, note store.Notification) {
	log := d.log.WithField("channel", note.Channel)
	switch note.Channel {
	case store.ChannelTokenAcctsInsert:
		d.handleTokenAcctInsert(ctx, note, log)
	case store.ChannelTokenAcctsStatusUpdate:
		d.handleTokenAcctStatusUpdate(ctx, note, log)
	case store.ChannelTransactionsInsert:
		d.handleTransactionInsert(ctx, note, log)
	default:
		log.Warn("notification on unrecognised channel")
	}
}

func (d *Dispatcher) handleTokenAcctInsert(ctx context.Context, note store.Notification, log *logrus.Entry) {
	payload, err := store.DecodeTokenAcctInsert(note.Payload)
	if err != nil {
		log.WithError(err).Warn("malformed token_accts_insert_channel payload")
		return
	}
	tokenAcct, err := coretypes.ParsePubkey(payload.TokenAcct)
	if err != nil {
		log.WithError(err).Warn("invalid token_acct in insert notification")
		return
	}
	if _, found, err := d.gw.TokenAccountByAcct(ctx, tokenAcct); err != nil || !found {
		log.WithError(err).WithField("token_acct", tokenAcct).Warn("token account not found for insert notification")
		return
	}
	d.fleet.Spawn(ctx, tokenAcct)
}

func (d *Dispatcher) handleTokenAcctStatusUpdate(ctx context.Context, note store.Notification, log *logrus.Entry) {
	payload, err := store.DecodeTokenAcctStatus(note.Payload)
	if err != nil {
		log.WithError(err).Warn("malformed token_accts_status_update_channel payload")
		return
	}
	if coretypes.TokenAcctStatus(payload.Status) != coretypes.StatusWatching {
		return
	}
	tokenAcct, err := coretypes.ParsePubkey(payload.TokenAcct)
	if err != nil {
		log.WithError(err).Warn("invalid token_acct in status update notification")
		return
	}
	d.fleet.Spawn(ctx, tokenAcct)
}

func (d *Dispatcher) handleTransactionInsert(ctx context.Context, note store.Notification, log *logrus.Entry) {
	payload, err := store.DecodeTransactionInsert(note.Payload)
	if err != nil {
		log.WithError(err).Warn("malformed transactions_insert_channel payload")
		return
	}
	txSig := coretypes.NewSignature(payload.TxSig)
	tx, found, err := d.gw.TransactionBySig(ctx, txSig)
	if err != nil || !found {
		log.WithError(err).WithField("tx_sig", txSig).Warn("transaction not found for insert notification")
		return
	}
	if err := d.decode.Index(ctx, tx); err != nil {
		log.WithError(err).WithField("tx_sig", txSig).Warn("index failed")
	}
}
