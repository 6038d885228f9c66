package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gilby125/flight-offers-harvester/api"
	"github.com/gilby125/flight-offers-harvester/offers"
	"github.com/gilby125/flight-offers-harvester/pkg/logger"
	"github.com/gilby125/flight-offers-harvester/worker"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveWithSpool bool

func init() {
	serveCmd.Flags().BoolVar(&serveWithSpool, "spool", false, "also watch the spool directory")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the ingest HTTP API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(ctx, cfg, stop, offers.ModeText, offers.ModeAPI)
		if err != nil {
			return err
		}
		defer rt.Close()

		if cfg.Environment == "production" {
			gin.SetMode(gin.ReleaseMode)
		}
		router := api.NewRouter(api.Dependencies{
			Service:        rt.service,
			Parser:         rt.parser,
			Cache:          rt.cacheManager(),
			Health:         rt.health,
			Auth:           cfg.AuthConfig,
			IdempotencyTTL: cfg.RedisConfig.IdempotencyTTL,
		})

		if serveWithSpool {
			spooler, closeLedger, err := startSpooler(ctx, rt)
			if err != nil {
				return err
			}
			defer closeLedger()
			defer spooler.Stop()
		}

		srv := &http.Server{
			Addr:              ":" + cfg.HTTPPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Server starting", "port", cfg.HTTPPort)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("Server exited properly")
		return nil
	},
}

func startSpooler(ctx context.Context, rt *runtime) (*worker.Spooler, func(), error) {
	ledger, err := worker.OpenLedger(cfg.SpoolConfig.LedgerPath)
	if err != nil {
		return nil, nil, err
	}
	spooler := rt.newSpooler(ledger)
	if err := spooler.Start(ctx, cfg.SpoolConfig.Schedule); err != nil {
		ledger.Close()
		return nil, nil, err
	}
	return spooler, func() { ledger.Close() }, nil
}

// newSpooler returns a spooler over the configured directory that alerts on
// rejected and failed files.
func (rt *runtime) newSpooler(ledger *worker.Ledger) *worker.Spooler {
	spooler := worker.NewSpooler(rt.cfg.SpoolConfig.Dir, ledger, rt.service)
	spooler.OnReport(func(ctx context.Context, report worker.ScanReport) {
		dir := rt.cfg.SpoolConfig.Dir
		if report.Failed > 0 {
			if err := rt.notify.AlertWriteFailure(ctx, dir, report.Failed); err != nil {
				logger.Error(err, "Failed to send alert")
			}
		}
		if report.Rejected > 0 {
			if err := rt.notify.AlertRejected(ctx, dir, report.Rejected); err != nil {
				logger.Error(err, "Failed to send alert")
			}
		}
	})
	return spooler
}
