package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/condwatch/indexer/internal/api"
	"github.com/condwatch/indexer/internal/backfill"
	"github.com/condwatch/indexer/internal/chain"
	"github.com/condwatch/indexer/internal/coretypes"
	"github.com/condwatch/indexer/internal/decode"
	"github.com/condwatch/indexer/internal/dispatch"
	"github.com/condwatch/indexer/internal/fleet"
	"github.com/condwatch/indexer/internal/reconcile"
	"github.com/condwatch/indexer/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// newServeCmd runs the full process: the subscription fleet, the
// notification dispatcher, a startup backfill pass, and the
// watch-request HTTP endpoint, all sharing one reconciler and decoder so
// every write path funnels through the same balance-history semantics.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the indexer: subscription fleet, dispatcher, backfill and HTTP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	log := newLogger()
	cfg := loadConfigOrDie(log)
	entry := logrus.NewEntry(log)

	gw, err := store.NewPGGateway(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("store: could not connect")
	}
	defer gw.Close()

	listener, err := store.NewListener(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("store: could not open listener connection")
	}
	defer listener.Close(context.Background())

	chainHTTP := chain.NewClient(cfg.RPCEndpointHTTP)
	pubsub, err := chain.Dial(ctx, cfg.RPCEndpointWSS)
	if err != nil {
		log.WithError(err).Fatal("chain: could not dial pubsub endpoint")
	}
	defer pubsub.Close()

	rec := reconcile.New(gw, entry)
	dec := decode.New(gw, rec, entry)
	fl := fleet.New(gw, chainHTTP, pubsub, rec, entry)
	disp := dispatch.New(gw, fl, dec, entry)
	job := backfill.New(gw, dec, entry)
	authClient := api.NewSidecarAuthClient(cfg.AuthServiceURL)
	handler := api.New(gw, chainHTTP, authClient, entry)

	// Backfill runs once at startup before the fleet and dispatcher take
	// over streaming duty.
	if err := job.Run(ctx, time.Now()); err != nil {
		entry.WithError(err).Warn("startup backfill failed")
	}

	// Re-enrol every row already marked Watching; a process restart must
	// not lose coverage for accounts notified before it came up.
	watching, err := gw.TokenAccountsWhereStatus(ctx, coretypes.StatusWatching)
	if err != nil {
		entry.WithError(err).Warn("could not list watching token accounts at startup")
	}
	for _, ta := range watching {
		fl.Spawn(ctx, ta.TokenAcct)
	}

	dispatchErrCh := make(chan error, 1)
	go func() { dispatchErrCh <- disp.Run(ctx, listener) }()

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler.Router()}
	srvErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErrCh <- err
			return
		}
		srvErrCh <- nil
	}()

	select {
	case <-ctx.Done():
		entry.Info("shutdown signal received")
	case err := <-dispatchErrCh:
		if err != nil {
			entry.WithError(err).Error("dispatcher stopped unexpectedly")
		}
	case err := <-srvErrCh:
		if err != nil {
			entry.WithError(err).Error("http server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
