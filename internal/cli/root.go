package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gasledger/internal/app"
	"gasledger/internal/config"
	"gasledger/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	dsn       string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:           "gasledger",
	Short:         "Enrich Ethereum transactions with USD gas cost and serve them",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		applyOverrides(cfg)

		logger := logging.NewLogger(cfg.Logging)
		logger.Debug().Str("command", cmd.Name()).Str("environment", cfg.App.Environment).Msg("configuration loaded")
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

func applyOverrides(cfg *config.Config) {
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if dsn != "" {
		cfg.Database.DSN = dsn
	}
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Override log format (json or console)")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Override database.dsn")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(testAlertCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
