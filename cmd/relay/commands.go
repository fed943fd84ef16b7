package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inaiurai/relay/internal/auth"
	"github.com/inaiurai/relay/internal/dashboard"
)

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema, River migrations and legacy history migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(v)
			if err != nil {
				return err
			}
			st, err := openStorage(cmd.Context(), cfg, true, logger)
			if err != nil {
				logger.Error("migration failed", "error", err)
				return err
			}
			st.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newAdminTokenCmd(v *viper.Viper) *cobra.Command {
	var accountID string
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Mint an admin JWT for the dashboard API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(v)
			if err != nil {
				return err
			}
			if err := cfg.RequireAdmin(); err != nil {
				return err
			}
			svc, err := auth.NewService(cfg.AdminJWTSecret, cfg.AdminAccountIDs, cfg.AdminTokenTTL)
			if err != nil {
				return err
			}
			if accountID == "" {
				accountID = cfg.AdminAccountIDs[0]
			}
			token, err := svc.IssueToken(accountID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "admin account id (defaults to the first of ADMIN_ACCOUNT_IDS)")
	return cmd
}

func newReportCmd(v *viper.Viper) *cobra.Command {
	var days, top int
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the admin usage report as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 1 || days > 90 || top < 1 || top > 100 {
				return fmt.Errorf("--days must be 1..90 and --top 1..100")
			}
			cfg, logger, err := loadConfig(v)
			if err != nil {
				return err
			}
			st, err := openStorage(cmd.Context(), cfg, false, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			rep, err := st.Report(cmd.Context(), days, top, time.Now().UTC())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
	cmd.Flags().IntVar(&days, "days", dashboard.DefaultReportDays, "days of daily activity")
	cmd.Flags().IntVar(&top, "top", dashboard.DefaultReportTop, "number of top accounts")
	return cmd
}
