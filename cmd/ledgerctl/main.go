// Command ledgerctl runs maintenance tasks against the ledger database.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/log"
)

type app struct {
	cfg    *config.Config
	logger *log.Logger
	dbPath string
}

func main() {
	a := &app{}

	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Maintenance commands for the ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.cfg, a.logger = cli.LoadConfig((*config.Config).Validate)
			if !cmd.Flags().Changed("db") {
				a.dbPath = a.cfg.SQLiteDBPath
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (default $SQLITE_DB_PATH)")

	root.AddCommand(
		a.migrateCmd(),
		a.createAdminCmd(),
		a.exportSheetsCmd(),
		a.scanCmd(),
	)

	if err := root.Execute(); err != nil {
		if a.logger != nil {
			a.logger.Error("Command failed", log.FieldError, err)
		} else {
			root.PrintErrln("Error:", err)
		}
		os.Exit(1)
	}
}
