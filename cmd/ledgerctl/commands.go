package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ledger/internal/auth"
	"ledger/internal/cli"
	"ledger/internal/export"
	"ledger/internal/export/memory"
	"ledger/internal/export/sheets"
	"ledger/internal/storage"
)

func (a *app) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect schema migrations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := storage.RunMigrations(a.dbPath); err != nil {
					return err
				}
				return a.printVersion(cmd)
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations (default 1 step)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return fmt.Errorf("invalid step count %q", args[0])
					}
					steps = n
				}
				if err := storage.RollbackMigrations(a.dbPath, steps); err != nil {
					return err
				}
				return a.printVersion(cmd)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.printVersion(cmd)
			},
		},
	)
	return cmd
}

func (a *app) printVersion(cmd *cobra.Command) error {
	version, dirty, err := storage.MigrationVersion(a.dbPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", version, dirty)
	return nil
}

func (a *app) createAdminCmd() *cobra.Command {
	var signup auth.Signup
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a company together with its first admin user",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := cli.InitStorage(a.logger, a.dbPath)
			defer repo.Close()

			user, company, err := auth.NewPasswordAuthenticator(repo).Register(cmd.Context(), signup)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created company %s (%s) with admin %s\n", company.Name, company.ID, user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&signup.CompanyName, "company", "", "company name")
	cmd.Flags().StringVar(&signup.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&signup.DisplayName, "name", "", "admin display name")
	cmd.Flags().StringVar(&signup.Password, "password", "", "admin password")
	for _, f := range []string{"company", "email", "password"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func (a *app) exportSheetsCmd() *cobra.Command {
	var (
		companyID string
		year      int
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "export-sheets",
		Short: "Append a year of invoices and expenses to Google Sheets",
		RunE: func(cmd *cobra.Command, args []string) error {
			var exporter export.LedgerExporter
			if dryRun {
				exporter = memory.New()
			} else {
				if !a.cfg.SheetsEnabled() {
					return errors.New("GOOGLE_SPREADSHEET_ID is not set (use --dry-run to skip Sheets)")
				}
				client, err := sheets.New(cmd.Context(), a.cfg.GoogleSpreadsheetID,
					a.cfg.GoogleServiceAccountFile, a.cfg.GoogleServiceAccountJSON)
				if err != nil {
					return err
				}
				exporter = client
			}

			repo := cli.InitStorage(a.logger, a.dbPath)
			defer repo.Close()

			svc := cli.NewServices(a.logger, a.cfg, repo, nil)
			res, err := svc.Export.ExportYear(cmd.Context(), companyID, year, exporter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d invoices and %d expenses for %d\n", res.Invoices, res.Expenses, year)
			if mem, ok := exporter.(*memory.Store); ok {
				for _, sheet := range mem.Sheets() {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d rows\n", sheet, len(mem.Rows(sheet)))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&companyID, "company-id", "", "company to export")
	cmd.Flags().IntVar(&year, "year", time.Now().Year(), "calendar year to export")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "export into memory and print row counts")
	_ = cmd.MarkFlagRequired("company-id")
	return cmd
}

func (a *app) scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run the overdue, recurring and low stock scanners once",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := cli.InitStorage(a.logger, a.dbPath)
			defer repo.Close()

			broker := cli.InitBroker(a.logger, a.cfg)
			if broker != nil {
				defer broker.Close()
			}
			svc := cli.NewServices(a.logger, a.cfg, repo, broker)
			res, err := svc.Scanner.RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "overdue: %d, recurring: %d, low stock: %d\n", res.Overdue, res.Recurring, res.LowStock)
			return err
		},
	}
}
