package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/app"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/config"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/dataset"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Import the resale transactions CSV into the dataset database",
	Long: `Load reads the resale flat prices export and stores it in the SQLite
database named by dataset.db, so later runs start without parsing the CSV.`,
	RunE: runLoad,
}

var (
	loadCSV     string
	loadDB      string
	loadReplace bool
)

func init() {
	rootCmd.AddCommand(loadCmd)
	loadCmd.Flags().StringVar(&loadCSV, "csv", "", "CSV export to import (default: dataset.csv)")
	loadCmd.Flags().StringVar(&loadDB, "db", "", "database file (default: dataset.db)")
	loadCmd.Flags().BoolVar(&loadReplace, "replace", false, "replace transactions already stored")
}

func runLoad(cmd *cobra.Command, _ []string) error {
	dc := config.DatasetConfig{CSV: cfg.Dataset.CSV, DB: cfg.Dataset.DB}
	if loadCSV != "" {
		dc.CSV = loadCSV
	}
	if loadDB != "" {
		dc.DB = loadDB
	}
	if dc.DB == "" {
		return errors.New("no database file given (set --db or dataset.db)")
	}

	var (
		store *dataset.Store
		err   error
	)
	if loadReplace {
		store, err = dataset.Open(dc.DB)
		if err == nil {
			var txs []dataset.Transaction
			if txs, err = dataset.ReadCSVFile(dc.CSV); err == nil {
				err = store.Import(cmd.Context(), txs)
			}
		}
	} else {
		store, err = app.OpenDataset(cmd.Context(), dc)
	}
	if store != nil {
		defer store.Close()
	}
	if err != nil {
		return err
	}

	n, err := store.Count(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d transactions, %s\n", n, store.Range())
	return nil
}
