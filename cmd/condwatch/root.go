// Package main is the condwatch process entrypoint: a cobra CLI binding
// the core's components (C1-C8) to the environment configuration loaded
// by internal/config.
package main

import (
	"github.com/condwatch/indexer/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "condwatch",
		Short: "On-chain balance indexer for conditional-token vaults and AMM pools",
	}
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newBackfillCmd())
	return cmd
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	return log
}

func loadConfigOrDie(log *logrus.Logger) config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config: could not load environment")
	}
	return cfg
}
