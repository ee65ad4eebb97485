package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/lostfound/internal/api"
	"github.com/erazemk/lostfound/internal/auth"
	"github.com/erazemk/lostfound/internal/notify"
	"github.com/erazemk/lostfound/internal/store"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr, adminUser string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}

			lock, err := lockDatabase(cfg.Server.DBPath)
			if err != nil {
				return err
			}
			defer lock.Unlock()

			// First run: create the database and an admin account.
			if _, err := os.Stat(cfg.Server.DBPath); os.IsNotExist(err) {
				database, password, err := initDatabase(cfg.Server.DBPath, adminUser)
				if err != nil {
					return fmt.Errorf("initializing database: %w", err)
				}
				database.Close()
				printInitResult(cmd.OutOrStdout(), cfg.Server.DBPath, adminUser, password)
				fmt.Fprintln(cmd.OutOrStdout())
			}

			database, err := ctx.openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()
			slog.Info("database ready", "path", cfg.Server.DBPath)

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if n, err := store.PurgeExpiredTokens(runCtx, database, time.Now().UTC()); err != nil {
				slog.Warn("purging revoked tokens failed", "error", err)
			} else if n > 0 {
				slog.Info("purged expired token revocations", "count", n)
			}

			// JWT secret lives in the database (generated on first use).
			secret, err := store.GetJWTSecret(runCtx, database)
			if err != nil {
				return fmt.Errorf("getting JWT secret: %w", err)
			}

			var queue notify.Queue = notify.Discard
			var dispatcher *notify.Dispatcher
			if sink := buildSink(cfg.Notifications, cfg.RequestTimeout()); sink != nil {
				dispatcher = notify.NewDispatcher(sink, cfg.Notifications.QueueSize, cfg.RequestTimeout(), slog.Default())
				queue = dispatcher
			}

			svc, err := buildServices(runCtx, cfg, database, queue)
			if err != nil {
				return err
			}

			router := api.NewRouter(api.Deps{
				DB:               database,
				Tokens:           auth.NewTokens(secret, cfg.TokenExpiry()),
				Registry:         svc.registry,
				Workflow:         svc.workflow,
				Extractor:        svc.extractor,
				Taxonomy:         svc.taxonomy,
				StrictCategories: cfg.Matching.StrictCategories,
			})

			server := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           api.LoggingMiddleware(router),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			go func() {
				<-runCtx.Done()
				slog.Info("shutdown signal received")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("server forced to shutdown", "error", err)
				}
			}()

			slog.Info("server started", "addr", cfg.Server.Addr, "notifications", cfg.Notifications.Sink,
				"scorer", cfg.Matching.Scorer)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}

			if dispatcher != nil {
				closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
				defer cancel()
				if err := dispatcher.Close(closeCtx); err != nil {
					slog.Warn("notifications left undelivered", "error", err)
				}
			}

			slog.Info("server stopped, closing database")
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides config)")
	cmd.Flags().StringVarP(&adminUser, "user", "u", "admin", "admin username on first run")
	return cmd
}
