package main

import (
	"context"
	"time"

	"github.com/condwatch/indexer/internal/backfill"
	"github.com/condwatch/indexer/internal/decode"
	"github.com/condwatch/indexer/internal/reconcile"
	"github.com/condwatch/indexer/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// newBackfillCmd runs C7 alone, for a manual rerun against an already
// running deployment without restarting the serving process.
func newBackfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Replay recently-persisted transactions through the decoder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd.Context())
		},
	}
}

func runBackfill(ctx context.Context) error {
	log := newLogger()
	cfg := loadConfigOrDie(log)
	entry := logrus.NewEntry(log)

	gw, err := store.NewPGGateway(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("store: could not connect")
	}
	defer gw.Close()

	rec := reconcile.New(gw, entry)
	dec := decode.New(gw, rec, entry)
	job := backfill.New(gw, dec, entry)
	return job.Run(ctx, time.Now())
}
