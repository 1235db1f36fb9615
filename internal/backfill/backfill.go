// Package backfill is the backfill job: on startup, or on a
// standalone rerun, drive the transaction decoder over recently-persisted
// transactions whose primary instruction is classified.
package backfill

import (
	"context"
	"time"

	"github.com/condwatch/indexer/internal/store"
	"github.com/sirupsen/logrus"
)

// LookbackWindow is the fixed look-back the job selects transactions
// over.
const LookbackWindow = 5 * 24 * time.Hour

// Indexer is the decoder capability backfill drives; satisfied by
// *decode.Decoder.
type Indexer interface {
	Index(ctx context.Context, tx store.Transaction) error
}

// Job runs the backfill pass.
type Job struct {
	gw     store.Gateway
	decode Indexer
	log    *logrus.Entry
}

// New builds a Job.
func New(gw store.Gateway, decoder Indexer, log *logrus.Entry) *Job {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Job{gw: gw, decode: decoder, log: log.WithField("component", "backfill")}
}

// Run selects every classified Transaction within the lookback window and
// feeds each to the decoder sequentially; per-row failures are logged and
// do not abort the run. now is the reference instant, passed by the
// caller since the core itself must not call time.Now outside of row
// timestamps.
func (j *Job) Run(ctx context.Context, now time.Time) error {
	since := now.Add(-LookbackWindow).Unix()
	txs, err := j.gw.RecentTransactions(ctx, since)
	if err != nil {
		return err
	}
	j.log.WithField("count", len(txs)).Info("starting backfill")
	for _, tx := range txs {
		if err := j.decode.Index(ctx, tx); err != nil {
			j.log.WithError(err).WithField("tx_sig", tx.TxSig).Warn("backfill row failed")
		}
	}
	j.log.Info("backfill complete")
	return nil
}
