package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/chklst/deploysync/internal/http"
	"github.com/chklst/deploysync/internal/logging"
	"github.com/chklst/deploysync/internal/mirror"
	"github.com/chklst/deploysync/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sync the caches and expose them on a local read API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := logging.New(cfg.LogLevel)

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		sess, err := session.New(cfg, logger, reg)
		if err != nil {
			return err
		}

		httpServer := &http.Server{
			Addr:              cfg.MirrorAddr,
			Handler:           mirror.New(sess, reg, logger).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error { return sess.Run(ctx) })
		g.Go(func() error { return httpapi.RunServer(ctx, httpServer, logger) })

		logger.Info("mirror starting", "addr", httpServer.Addr, "origin", cfg.Origin)
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("mirror terminated with error", "err", err)
			return err
		}
		logger.Info("mirror stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
