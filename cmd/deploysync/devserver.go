package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chklst/deploysync/internal/devserver"
	httpapi "github.com/chklst/deploysync/internal/http"
	"github.com/chklst/deploysync/internal/logging"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local sqlite-backed tracker API with push events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := logging.New(cfg.LogLevel)

		if err := os.MkdirAll(cfg.DBDir(), 0o755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
		srv, err := devserver.Open(cmd.Context(), cfg.DevServerDBPath, logger)
		if err != nil {
			return err
		}
		defer srv.Close()

		// No WriteTimeout: it would cut long-lived push connections.
		httpServer := &http.Server{
			Addr:              cfg.DevServerAddr,
			Handler:           srv.Handler(cfg.APIPath, cfg.PushPath),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		httpServer.RegisterOnShutdown(srv.Hub.Close)

		logger.Info("dev server starting", "addr", httpServer.Addr, "db", cfg.DevServerDBPath)
		if err := httpapi.RunServer(cmd.Context(), httpServer, logger); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("dev server terminated with error", "err", err)
			return err
		}
		logger.Info("dev server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devserverCmd)
}
