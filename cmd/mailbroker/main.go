package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/mailbroker/cmd/mailbroker/commands"
	"github.com/systmms/mailbroker/internal/config"
	"github.com/systmms/mailbroker/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile string
		debug      bool
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "mailbroker",
		Short: "Exchange mailbox credentials for scoped storage credentials",
		Long: `mailbroker authenticates mailbox users against a DynamoDB directory and
returns their storage bucket, prefix and region with temporary credentials
for their role. It also rotates the service keypair held in Secrets Manager.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.Debug = debug
			// Log lines go to stdout, one JSON object each
			cfg.Logger = logging.New(os.Stdout, debug)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultConfigPath, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewServeCommand(cfg),
		commands.NewAuthFunctionCommand(cfg),
		commands.NewRotationFunctionCommand(cfg),
		commands.NewRotateCommand(cfg),
		commands.NewHashPasswordCommand(),
	)

	return rootCmd.Execute()
}
