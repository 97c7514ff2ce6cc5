package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/systmms/mailbroker/internal/config"
	"github.com/systmms/mailbroker/internal/server"
)

func NewServeCommand(cfg *config.Config) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP authentication endpoint",
		Long: `Serve answers GET requests carrying HTTP Basic credentials with the
user's storage bundle as JSON (200), an empty 401 for rejected credentials,
or {"error": ...} with 500 when a dependency fails.

GET /healthz always answers OK. GET /metrics is served when METRICS_ENABLED
is true.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}
			if listen != "" {
				cfg.Settings.ListenAddr = listen
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rec := newRecorder(cfg)
			b, err := newBroker(ctx, cfg, rec)
			if err != nil {
				return err
			}

			srvCfg := server.DefaultConfig()
			srvCfg.Addr = cfg.Settings.ListenAddr
			return server.New(srvCfg, server.NewRouter(b, rec), cfg.Logger).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides LISTEN_ADDR)")
	return cmd
}
