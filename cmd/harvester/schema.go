package main

import (
	"github.com/gilby125/flight-offers-harvester/offers"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(schemaCmd)
}

var schemaCmd = &cobra.Command{
	Use:       "schema text|api",
	Short:     "Prints the output columns of a mode.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(offers.ModeText), string(offers.ModeAPI)},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := offers.ParseMode(args[0])
		if err != nil {
			return err
		}
		renderSchema(cmd.OutOrStdout(), offers.SchemaFor(mode, cfg.ParserConfig.AttributionSlots))
		return nil
	},
}
