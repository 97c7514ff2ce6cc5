package commands

import (
	"context"
	"os"

	"github.com/systmms/mailbroker/internal/broker"
	"github.com/systmms/mailbroker/internal/config"
	"github.com/systmms/mailbroker/internal/logging"
	"github.com/systmms/mailbroker/internal/metrics"
	"github.com/systmms/mailbroker/internal/password"
	"github.com/systmms/mailbroker/internal/providers"
	"github.com/systmms/mailbroker/internal/rotation"
)

// secretStore is the rotation store plus the rotation trigger.
type secretStore interface {
	rotation.SecretStore
	StartRotation(ctx context.Context, secretID, token string) (string, error)
}

// newSecretStore builds the Secrets Manager store. Tests replace it.
var newSecretStore = func(ctx context.Context, cfg *config.Config) (secretStore, error) {
	opts := awsOptions(cfg)
	awsCfg, err := providers.LoadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return providers.NewSecretsManagerStore(providers.NewSecretsManagerClient(awsCfg, opts.SecretsManagerEndpoint)), nil
}

// loadConfig resolves settings and raises the log level when LOG_LEVEL asks for it.
func loadConfig(cfg *config.Config) error {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if err := cfg.Load(); err != nil {
		return err
	}
	if !cfg.Debug && logging.ParseLevel(cfg.Settings.LogLevel) {
		cfg.Debug = true
		cfg.Logger = logging.New(os.Stdout, true)
	}
	return nil
}

func awsOptions(cfg *config.Config) providers.AWSOptions {
	return providers.AWSOptions{
		Region:                 cfg.Settings.Region,
		SecretsManagerEndpoint: cfg.Settings.SecretsManagerEndpoint,
		AccessKeyID:            cfg.Settings.StaticAccessKeyID,
		SecretAccessKey:        cfg.Settings.StaticSecretAccessKey,
	}
}

func newRecorder(cfg *config.Config) *metrics.Recorder {
	if !cfg.Settings.MetricsEnabled {
		return nil
	}
	return metrics.NewRecorder()
}

// newBroker wires the broker to DynamoDB, S3 and STS.
func newBroker(ctx context.Context, cfg *config.Config, rec *metrics.Recorder) (*broker.Broker, error) {
	if err := cfg.RequireTable(); err != nil {
		return nil, err
	}

	opts := awsOptions(cfg)
	awsCfg, err := providers.LoadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	clients := providers.NewClients(awsCfg, opts)

	cache, err := broker.NewRegionCache(cfg.Settings.RegionCacheSize)
	if err != nil {
		return nil, err
	}
	resolver := broker.NewLocationResolver(
		providers.NewS3BucketLocator(clients.S3),
		cache,
		broker.WithDefaultRegion(cfg.Settings.DefaultRegion),
		broker.WithResolverMetrics(rec),
	)

	return broker.New(
		providers.NewDynamoDBDirectory(clients.DynamoDB, cfg.Settings.TableName),
		password.NewVerifier(),
		resolver,
		providers.NewSTSRoleAssumer(clients.STS, providers.WithSessionDuration(cfg.Settings.SessionDuration)),
		broker.WithLogger(cfg.Logger),
		broker.WithMetrics(rec),
	), nil
}

func newCoordinator(store rotation.SecretStore, cfg *config.Config, rec *metrics.Recorder) *rotation.Coordinator {
	return rotation.NewCoordinator(store,
		rotation.WithLogger(cfg.Logger),
		rotation.WithMetrics(rec),
	)
}
