package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inaiurai/relay/internal/config"
)

func newRootCmd() *cobra.Command {
	v := config.New()

	root := &cobra.Command{
		Use:          "relay",
		Short:        "Entitlement and context relay between a chat transport and a generative backend",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}
	root.PersistentFlags().String("store-driver", "", "storage backend: postgres or sqlite (env STORE_DRIVER)")
	root.PersistentFlags().String("log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	root.PersistentFlags().String("port", "", "HTTP listen port (env PORT)")
	// Flags override the environment only when set.
	_ = v.BindPFlag("STORE_DRIVER", root.PersistentFlags().Lookup("store-driver"))
	_ = v.BindPFlag("LOG_LEVEL", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("PORT", root.PersistentFlags().Lookup("port"))

	root.AddCommand(
		newServeCmd(v),
		newMigrateCmd(v),
		newAdminTokenCmd(v),
		newReportCmd(v),
	)
	return root
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}
}

// loadConfig reads the configuration and installs the JSON logger.
func loadConfig(v *viper.Viper) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}
