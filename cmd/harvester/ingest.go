package main

import (
	"fmt"
	"io"
	"os"

	"github.com/gilby125/flight-offers-harvester/harvest"
	"github.com/gilby125/flight-offers-harvester/offers"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Ingests JSON envelopes from files (- for stdin).",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		envs := make([]harvest.Envelope, len(args))
		var modes []offers.Mode
		seen := map[offers.Mode]bool{}
		for i, name := range args {
			env, err := readEnvelope(cmd.InOrStdin(), name)
			if err != nil {
				return err
			}
			envs[i] = env
			if !seen[env.Mode] {
				seen[env.Mode] = true
				modes = append(modes, env.Mode)
			}
		}

		rt, err := newRuntime(ctx, cfg, nil, modes...)
		if err != nil {
			return err
		}
		defer rt.Close()

		rows := make([]batchRow, 0, len(envs))
		var failure error
		for i, env := range envs {
			res, err := rt.service.Ingest(ctx, env)
			row := batchRow{Source: args[i], Result: res}
			if err != nil {
				row.Error = err.Error()
				failure = fmt.Errorf("%s: %w", args[i], err)
			}
			rows = append(rows, row)
			if failure != nil {
				break
			}
		}

		if err := renderResults(cmd.OutOrStdout(), outFormat, rows); err != nil {
			return err
		}
		if outFormat != "json" {
			renderDiagnostics(cmd.OutOrStdout(), rows)
		}
		return failure
	},
}

func readEnvelope(stdin io.Reader, name string) (harvest.Envelope, error) {
	if name == "-" {
		env, err := harvest.DecodeEnvelope(stdin)
		if err != nil {
			return harvest.Envelope{}, fmt.Errorf("stdin: %w", err)
		}
		return env, nil
	}

	f, err := os.Open(name)
	if err != nil {
		return harvest.Envelope{}, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	env, err := harvest.DecodeEnvelope(f)
	if err != nil {
		return harvest.Envelope{}, fmt.Errorf("%s: %w", name, err)
	}
	return env, nil
}
