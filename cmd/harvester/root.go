package main

import (
	"fmt"
	"os"

	"github.com/gilby125/flight-offers-harvester/config"
	"github.com/gilby125/flight-offers-harvester/pkg/buildinfo"
	"github.com/gilby125/flight-offers-harvester/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	cfg       *config.Config
	logLevel  string
	envFile   string
	outFormat string
)

var rootCmd = &cobra.Command{
	Use:           "harvester",
	Short:         "harvester extracts, deduplicates and stores flight offers.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadFile(envFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if logLevel != "" {
			loaded.LoggingConfig.Level = logLevel
		}
		logger.Init(logger.Config{
			Level:  loaded.LoggingConfig.Level,
			Format: loaded.LoggingConfig.Format,
			Output: os.Stderr,
		})
		cfg = loaded
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints build information.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load instead of .env")
	rootCmd.PersistentFlags().StringVarP(&outFormat, "output", "o", "table", "summary format: table or json")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
