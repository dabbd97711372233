package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/config"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	asJSON   bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "resale",
	Short: "HDB resale buyer assistant",
	Long: `resale answers questions about buying an HDB resale flat using the
official HDB website, and reports price trends from the resale
transactions dataset.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		level := cfg.Log.Level
		if logLevel != "" {
			level = logLevel
		}
		logging.Setup(level, cfg.Log.Format)
		return nil
	},
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./resale.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false,
		"print the full pipeline result as JSON")
}
