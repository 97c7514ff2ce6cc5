package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/systmms/mailbroker/internal/config"
	mberrors "github.com/systmms/mailbroker/internal/errors"
	"github.com/systmms/mailbroker/internal/rotation"
)

func NewRotateCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Drive keypair rotation from the command line",
		Long: `Run rotation steps against Secrets Manager without the function runtime.

Examples:
  # Ask Secrets Manager to begin a rotation
  mailbroker rotate start --secret-id tls-key

  # Run one step by hand (honours SECRETS_MANAGER_ENDPOINT)
  mailbroker rotate step --secret-id tls-key --token <version> --step createSecret`,
	}

	cmd.AddCommand(newRotateStepCommand(cfg), newRotateStartCommand(cfg))
	return cmd
}

func newRotateStepCommand(cfg *config.Config) *cobra.Command {
	var secretID, token, step string

	cmd := &cobra.Command{
		Use:   "step",
		Short: "Run one rotation step",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := newSecretStore(ctx, cfg)
			if err != nil {
				return err
			}

			event := rotation.Event{SecretID: secretID, ClientRequestToken: token, Step: rotation.Step(step)}
			if err := newCoordinator(store, cfg, nil).Handle(ctx, event); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s completed for %s version %s\n", step, secretID, token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secretID, "secret-id", "", "Secret id or ARN (required)")
	cmd.Flags().StringVar(&token, "token", "", "Client request token of the pending version (required)")
	cmd.Flags().StringVar(&step, "step", "", "createSecret, setSecret, testSecret or finishSecret (required)")
	_ = cmd.MarkFlagRequired("secret-id")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("step")
	return cmd
}

func newRotateStartCommand(cfg *config.Config) *cobra.Command {
	var secretID, token string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a rotation in Secrets Manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}
			if token == "" {
				token = uuid.NewString()
			} else if _, err := uuid.Parse(token); err != nil {
				return mberrors.ConfigError{
					Field:      "token",
					Value:      token,
					Message:    "client request token must be a UUID",
					Suggestion: "Omit --token to generate one",
				}
			}

			ctx := cmd.Context()
			store, err := newSecretStore(ctx, cfg)
			if err != nil {
				return err
			}

			version, err := store.StartRotation(ctx, secretID, token)
			if err != nil {
				return err
			}
			cfg.Logger.Info(ctx, "rotation started", "secret_id", secretID, "token", version)
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}

	cmd.Flags().StringVar(&secretID, "secret-id", "", "Secret id or ARN (required)")
	cmd.Flags().StringVar(&token, "token", "", "Client request token (default: random UUID)")
	_ = cmd.MarkFlagRequired("secret-id")
	return cmd
}
