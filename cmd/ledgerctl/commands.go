package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"contratto/app"
	"contratto/config"
	"contratto/cron"
	"contratto/database"
	"contratto/services/tasks"
	"contratto/utils"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url := config.AppConfig.PostgresURL
			if url == "" {
				return errors.New("POSTGRES_URL is not set")
			}
			if err := database.RunMigrations(url); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func auditCmd() *cobra.Command {
	var walletID string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Compare a wallet's balances with the sum of its ledger",
		Long: `Checks that available + pending equals the sum of the wallet's
transactions and that the available balance is not negative.
Exits non-zero when the wallet drifted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), config.AppConfig, utils.GetLogger())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Wallets.Audit(cmd.Context(), walletID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if !report.Balanced {
				return fmt.Errorf("wallet %s drifted by %s", report.WalletID, report.Drift)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&walletID, "wallet", "", "wallet id to audit")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "run <job>",
		Short:     "Run one maintenance job immediately",
		Long:      "Jobs: " + strings.Join(jobNames(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := utils.GetLogger()
			a, err := app.New(cmd.Context(), config.AppConfig, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			jobs := &cron.Jobs{Orders: a.Orders, Wallets: a.Wallets, Relay: a.Relay, Logger: logger}
			n, err := jobs.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d item(s)\n", args[0], n)
			return nil
		},
	}
}

func jobNames() []string {
	names := make([]string, 0, len(tasks.Schedule))
	for typ := range tasks.Schedule {
		names = append(names, typ)
	}
	sort.Strings(names)
	return names
}
