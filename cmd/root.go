package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/killallgit/normachat/pkg/config"
	"github.com/killallgit/normachat/pkg/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "normachat",
	Short: "Chat about Argentine legislation",
	Long: `normachat talks to the normachat backend: streamed legal chat,
conversation history, feedback, favorite normas and document lookup.
It can also fetch texts from InfoLEG and SAIJ and answer locally over them.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./.normachat/settings.yaml)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("backend-url", "", "backend base url")
	rootCmd.PersistentFlags().String("token", "", "backend bearer token")
}

// setup loads configuration, applies flag overrides and starts the logger
func setup(cmd *cobra.Command, args []string) error {
	config.Reset()
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("backend-url") {
		cfg.Backend.URL, _ = flags.GetString("backend-url")
	}
	if flags.Changed("token") {
		cfg.Backend.Token, _ = flags.GetString("token")
	}

	if err := logger.Init(); err != nil {
		return err
	}
	logger.Debug("config loaded from %q", config.GetConfigFileUsed())
	return nil
}
