// Package providers adapts the AWS SDK clients to the broker and rotation
// interfaces.
package providers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// AWSOptions selects region, credentials and endpoint overrides.
type AWSOptions struct {
	Region string
	// SecretsManagerEndpoint overrides the Secrets Manager endpoint only
	SecretsManagerEndpoint string
	// Static credentials for LocalStack or testing
	AccessKeyID     string
	SecretAccessKey string
}

// LoadAWSConfig loads the default AWS configuration with opts applied.
func LoadAWSConfig(ctx context.Context, opts AWSOptions) (aws.Config, error) {
	var configOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		configOpts = append(configOpts, config.WithRegion(opts.Region))
	}

	// Use static credentials if provided (for LocalStack/testing)
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

var (
	_ DynamoDBClientAPI       = (*dynamodb.Client)(nil)
	_ S3ClientAPI             = (*s3.Client)(nil)
	_ STSClientAPI            = (*sts.Client)(nil)
	_ SecretsManagerClientAPI = (*secretsmanager.Client)(nil)
)

// Clients bundles the SDK clients the commands need.
type Clients struct {
	DynamoDB       *dynamodb.Client
	S3             *s3.Client
	STS            *sts.Client
	SecretsManager *secretsmanager.Client
}

// NewClients creates every client from one configuration.
func NewClients(cfg aws.Config, opts AWSOptions) *Clients {
	return &Clients{
		DynamoDB:       dynamodb.NewFromConfig(cfg),
		S3:             s3.NewFromConfig(cfg),
		STS:            sts.NewFromConfig(cfg),
		SecretsManager: NewSecretsManagerClient(cfg, opts.SecretsManagerEndpoint),
	}
}

// NewSecretsManagerClient creates a Secrets Manager client with an optional
// custom endpoint.
func NewSecretsManagerClient(cfg aws.Config, endpoint string) *secretsmanager.Client {
	var clientOpts []func(*secretsmanager.Options)
	if endpoint != "" {
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	return secretsmanager.NewFromConfig(cfg, clientOpts...)
}
