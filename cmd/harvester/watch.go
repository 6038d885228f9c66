package main

import (
	"os/signal"
	"syscall"

	"github.com/gilby125/flight-offers-harvester/offers"
	"github.com/gilby125/flight-offers-harvester/worker"
	"github.com/spf13/cobra"
)

var watchOnce bool

func init() {
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "scan the spool directory once and exit")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Ingests envelopes dropped into the spool directory.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(ctx, cfg, stop, offers.ModeText, offers.ModeAPI)
		if err != nil {
			return err
		}
		defer rt.Close()

		if watchOnce {
			ledger, err := worker.OpenLedger(cfg.SpoolConfig.LedgerPath)
			if err != nil {
				return err
			}
			defer ledger.Close()

			report, err := rt.newSpooler(ledger).Scan(ctx)
			if err != nil {
				return err
			}
			renderScan(cmd.OutOrStdout(), report)
			return nil
		}

		spooler, closeLedger, err := startSpooler(ctx, rt)
		if err != nil {
			return err
		}
		defer closeLedger()
		defer spooler.Stop()

		<-ctx.Done()
		return nil
	},
}
