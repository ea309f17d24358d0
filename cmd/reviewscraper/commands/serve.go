package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gratefulvortex/reviews-scraper/internal/api"
	"github.com/gratefulvortex/reviews-scraper/internal/jobs"
	"github.com/gratefulvortex/reviews-scraper/internal/queue"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the run API and works through queued scrapes one at a time.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		logger := log.Logger

		d, err := openDeps(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer d.Close()

		runner, err := newRunner(cfg, browserSessions(cfg), d, logger)
		if err != nil {
			return err
		}

		var store jobs.Store = jobs.NewMemoryStore()
		if d.db != nil {
			pg := jobs.NewPostgresStore(d.db)
			if err := pg.EnsureSchema(ctx); err != nil {
				return err
			}
			store = pg
		}

		q := queue.NewInMemoryQueue(cfg.Queue.MaxSize)
		manager := jobs.NewManager(store, q, runner, logger)

		workerDone := make(chan struct{})
		go func() {
			defer close(workerDone)
			manager.StartWorker(ctx)
		}()

		server := &http.Server{
			Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: api.NewRouter(api.NewHandlers(manager, logger), api.RouterOptions{
				AllowedOrigins: cfg.Server.AllowedOrigins,
				RequestTimeout: cfg.Server.WriteTimeout,
			}),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			logger.Info("shutting down server...")
			q.Close()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown failed", "error", err)
			}
		}()

		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cancel()
			<-workerDone
			return fmt.Errorf("server failed: %w", err)
		}

		<-workerDone
		logger.Info("server stopped")
		return nil
	},
}
