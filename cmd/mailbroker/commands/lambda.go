package commands

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/systmms/mailbroker/internal/config"
	"github.com/systmms/mailbroker/internal/lambdafn"
)

func NewAuthFunctionCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "auth-function",
		Short: "Run as the authentication function handler",
		Long: `Run the authentication handler under the Lambda runtime. Invocations take
{"User", "Password"} and return {"StatusCode", ...bundle} with 200, 403 for
rejected credentials, or 500 with a Message.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}
			b, err := newBroker(context.Background(), cfg, nil)
			if err != nil {
				return err
			}
			lambda.Start(lambdafn.NewAuthFunction(b).Handle)
			return nil
		},
	}
}

func NewRotationFunctionCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "rotation-function",
		Short: "Run as the Secrets Manager rotation handler",
		Long: `Run the keypair rotation handler under the Lambda runtime. Each invocation
carries one Secrets Manager rotation step; a failed step fails the
invocation so Secrets Manager retries it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}
			store, err := newSecretStore(context.Background(), cfg)
			if err != nil {
				return err
			}
			lambda.Start(lambdafn.NewRotationFunction(newCoordinator(store, cfg, nil)).Handle)
			return nil
		},
	}
}
